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

// PositionRepository persists the per-user position table the ledger keeps in
// memory.
type PositionRepository struct {
	db *gorm.DB
}

func NewPositionRepository() *PositionRepository {
	return &PositionRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *PositionRepository) WithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// Upsert writes the ledger's view of one (user, symbol, venue) position,
// inserting or replacing on the unique index.
func (r *PositionRepository) Upsert(
	ctx context.Context,
	position *model.Position,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":    "PositionRepository",
		"op":      "Upsert",
		"user_id": position.UserID,
		"symbol":  position.Symbol,
		"venue":   position.Venue,
	}).Debug("Upserting position")

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "user_id"}, {Name: "symbol"}, {Name: "venue"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"quantity", "average_entry_price", "current_price",
				"stop_loss_price", "take_profit_price",
				"realized_pnl", "unrealized_pnl", "updated_at",
			}),
		}).
		Create(position).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "PositionRepository",
			"op":      "Upsert",
			"user_id": position.UserID,
			"symbol":  position.Symbol,
		}).WithError(err).Error("Failed to upsert position")

		return err
	}

	return nil
}

// FindByUser returns all persisted positions for the user, open and closed.
func (r *PositionRepository) FindByUser(
	ctx context.Context,
	userID uint,
) ([]model.Position, error) {

	var positions []model.Position

	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("symbol ASC, venue ASC").
		Find(&positions).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "PositionRepository",
			"op":      "FindByUser",
			"user_id": userID,
		}).WithError(err).Error("Failed to fetch positions")

		return nil, err
	}

	return positions, nil
}

// FindOpen fetches the position for one (user, symbol, venue) key.
// Returns (nil, nil) if no row exists.
func (r *PositionRepository) FindOpen(
	ctx context.Context,
	userID uint,
	symbol string,
	venue string,
) (*model.Position, error) {

	var position model.Position

	err := r.db.WithContext(ctx).
		Where("user_id = ? AND symbol = ? AND venue = ?", userID, symbol, venue).
		First(&position).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":    "PositionRepository",
			"op":      "FindOpen",
			"user_id": userID,
			"symbol":  symbol,
		}).WithError(err).Error("Failed to fetch position")

		return nil, err
	}

	return &position, nil
}
