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

// SessionRepository persists session snapshots so a restart can tell stale
// sessions from fresh ones.
type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *SessionRepository) WithDB(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Save writes the live session state, inserting or replacing on user_id.
func (r *SessionRepository) Save(
	ctx context.Context,
	session *model.UserSession,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":       "SessionRepository",
		"op":         "Save",
		"user_id":    session.UserID,
		"session_id": session.SessionID,
		"state":      session.State,
	}).Debug("Saving session snapshot")

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"session_id", "state", "pending_request", "pending_risk",
				"last_activity_at",
			}),
		}).
		Create(session).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "SessionRepository",
			"op":      "Save",
			"user_id": session.UserID,
		}).WithError(err).Error("Failed to save session snapshot")

		return err
	}

	return nil
}

// FindByUser fetches the persisted session for a user.
// Returns (nil, nil) if none exists.
func (r *SessionRepository) FindByUser(
	ctx context.Context,
	userID uint,
) (*model.UserSession, error) {

	var session model.UserSession

	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&session).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":    "SessionRepository",
			"op":      "FindByUser",
			"user_id": userID,
		}).WithError(err).Error("Failed to fetch session snapshot")

		return nil, err
	}

	return &session, nil
}
