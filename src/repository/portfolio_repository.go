package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradepilot/src/database"
	"tradepilot/src/model"
)

// PortfolioRepository persists per-user cash and totals.
type PortfolioRepository struct {
	db *gorm.DB
}

func NewPortfolioRepository() *PortfolioRepository {
	return &PortfolioRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *PortfolioRepository) WithDB(db *gorm.DB) *PortfolioRepository {
	return &PortfolioRepository{db: db}
}

// Upsert writes the ledger's portfolio snapshot, inserting or replacing on
// user_id.
func (r *PortfolioRepository) Upsert(
	ctx context.Context,
	portfolio *model.Portfolio,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":    "PortfolioRepository",
		"op":      "Upsert",
		"user_id": portfolio.UserID,
		"cash":    portfolio.CashBalance,
	}).Debug("Upserting portfolio")

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"cash_balance", "total_value", "total_pnl", "updated_at",
			}),
		}).
		Create(portfolio).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "PortfolioRepository",
			"op":      "Upsert",
			"user_id": portfolio.UserID,
		}).WithError(err).Error("Failed to upsert portfolio")

		return err
	}

	return nil
}

// FindByUser fetches the user's portfolio. Returns (nil, nil) if no row
// exists yet.
func (r *PortfolioRepository) FindByUser(
	ctx context.Context,
	userID uint,
) (*model.Portfolio, error) {

	var portfolio model.Portfolio

	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&portfolio).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":    "PortfolioRepository",
			"op":      "FindByUser",
			"user_id": userID,
		}).WithError(err).Error("Failed to fetch portfolio")

		return nil, err
	}

	return &portfolio, nil
}
