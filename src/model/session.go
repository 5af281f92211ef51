package model

import "time"

// Session states. A session always returns to idle at the end of a cycle.
const (
	SessionStateIdle                 = "idle"
	SessionStateAwaitingConfirmation = "awaiting_confirmation"
	SessionStateExecuting            = "executing"
)

// Confirmation decisions accepted from the front-end.
const (
	DecisionConfirm = "confirm"
	DecisionCancel  = "cancel"
)

// UserSession is the persisted snapshot of one user's conversational state.
// The live copy is held by the session store; this record exists so a restart
// can tell stale sessions from fresh ones.
type UserSession struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	UserID         uint            `gorm:"uniqueIndex" json:"user_id"`
	SessionID      string          `gorm:"size:40;index" json:"session_id"`
	State          string          `gorm:"size:30;not null;default:idle" json:"state"`
	PendingRequest *TradeRequest   `gorm:"serializer:json" json:"pending_request,omitempty"`
	PendingRisk    *RiskAssessment `gorm:"serializer:json" json:"pending_assessment,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	LastActivityAt time.Time       `json:"last_activity_at"`
}

func (UserSession) TableName() string {
	return "user_sessions"
}
