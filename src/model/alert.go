package model

import "time"

const (
	AlertDirectionAbove = "above"
	AlertDirectionBelow = "below"

	AlertStatusActive    = "active"
	AlertStatusTriggered = "triggered"
)

// Alert is a price watch created from an alert_request intent. The monitor
// fires it once and marks it triggered.
type Alert struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UserID      uint       `gorm:"index" json:"user_id"`
	Symbol      string     `gorm:"size:20;index" json:"symbol"`
	TargetPrice float64    `json:"target_price"`
	Direction   string     `gorm:"size:10" json:"direction"`
	Status      string     `gorm:"size:20;not null;default:active" json:"status"`
	TriggeredAt *time.Time `json:"triggered_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Alert) TableName() string {
	return "alerts"
}
