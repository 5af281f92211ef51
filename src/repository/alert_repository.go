package repository

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradepilot/src/database"
	"tradepilot/src/model"
)

// AlertRepository persists price alerts for the monitor loop.
type AlertRepository struct {
	db *gorm.DB
}

func NewAlertRepository() *AlertRepository {
	return &AlertRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *AlertRepository) WithDB(db *gorm.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create inserts a new price alert.
func (r *AlertRepository) Create(
	ctx context.Context,
	alert *model.Alert,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":      "AlertRepository",
		"op":        "Create",
		"user_id":   alert.UserID,
		"symbol":    alert.Symbol,
		"target":    alert.TargetPrice,
		"direction": alert.Direction,
	}).Info("Creating price alert")

	err := r.db.WithContext(ctx).Create(alert).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "AlertRepository",
			"op":   "Create",
		}).WithError(err).Error("Failed to create alert")

		return err
	}

	return nil
}

// FindActive lists all alerts still waiting for their trigger price.
func (r *AlertRepository) FindActive(
	ctx context.Context,
) ([]model.Alert, error) {

	var alerts []model.Alert

	err := r.db.WithContext(ctx).
		Where("status = ?", model.AlertStatusActive).
		Order("id ASC").
		Find(&alerts).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "AlertRepository",
			"op":   "FindActive",
		}).WithError(err).Error("Failed to fetch active alerts")

		return nil, err
	}

	return alerts, nil
}

// MarkTriggered flips the alert to triggered so it fires exactly once.
func (r *AlertRepository) MarkTriggered(
	ctx context.Context,
	id uint,
) error {

	logger.WithFields(map[string]interface{}{
		"repo": "AlertRepository",
		"op":   "MarkTriggered",
		"id":   id,
	}).Info("Marking alert triggered")

	now := time.Now()

	err := r.db.WithContext(ctx).
		Model(&model.Alert{}).
		Where("id = ? AND status = ?", id, model.AlertStatusActive).
		Updates(map[string]interface{}{
			"status":       model.AlertStatusTriggered,
			"triggered_at": &now,
		}).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "AlertRepository",
			"op":   "MarkTriggered",
			"id":   id,
		}).WithError(err).Error("Failed to mark alert triggered")

		return err
	}

	return nil
}
