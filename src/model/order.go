package model

import (
	"fmt"
	"time"
)

const (
	OrderStatusPending         = "pending"
	OrderStatusPartiallyFilled = "partially_filled"
	OrderStatusFilled          = "filled"
	OrderStatusCancelled       = "cancelled"
	OrderStatusFailed          = "failed"
)

const (
	OrderRolePrimary    = "primary"
	OrderRoleStopLoss   = "stop_loss"
	OrderRoleTakeProfit = "take_profit"
)

// Order represents an order this system has sent to a venue.
type Order struct {
	ID     uint `gorm:"primaryKey" json:"id"`
	UserID uint `gorm:"index" json:"user_id"`

	// ClientID is our uuid sent with the submission, ExternalID the venue's
	// own order id from the ack.
	ClientID   string `gorm:"size:40;index" json:"client_id"`
	ExternalID string `gorm:"size:80;index" json:"external_id,omitempty"`

	Venue           string   `gorm:"size:40;index" json:"venue"`
	Symbol          string   `gorm:"size:20" json:"symbol"`
	Side            string   `gorm:"size:10" json:"side"`
	OrderType       string   `gorm:"size:20" json:"order_type"`
	RequestedAmount float64  `json:"requested_amount"`
	FilledAmount    float64  `json:"filled_amount"`
	AveragePrice    float64  `json:"average_price"`
	Fees            float64  `json:"fees"`
	Price           *float64 `json:"price,omitempty"`

	Status string `gorm:"size:50;not null;default:pending" json:"status"`

	// Role distinguishes the primary order from protective orders linked to
	// it through LinkedOrderID.
	Role          string `gorm:"size:20;not null;default:primary" json:"role"`
	LinkedOrderID *uint  `gorm:"index" json:"linked_order_id,omitempty"`

	// NeedsReconcile is set when a submission timed out with unknown fate;
	// the monitor resolves it from the next status poll instead of
	// resubmitting.
	NeedsReconcile bool `json:"needs_reconcile"`

	ExecutedAt *time.Time `json:"executed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	Logs []OrderLog `gorm:"foreignKey:OrderID" json:"order_logs,omitempty"`
}

// TableName allows you to control the exact table name for orders.
func (Order) TableName() string {
	return "orders"
}

// IsTerminal reports whether the order reached a final lifecycle state.
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether the lifecycle permits moving to next.
// Terminal states never transition again.
func (o *Order) CanTransition(next string) bool {
	if o.IsTerminal() {
		return false
	}

	switch o.Status {
	case OrderStatusPending:
		switch next {
		case OrderStatusPartiallyFilled, OrderStatusFilled, OrderStatusCancelled, OrderStatusFailed:
			return true
		}
	case OrderStatusPartiallyFilled:
		switch next {
		case OrderStatusFilled, OrderStatusCancelled:
			return true
		}
	}
	return false
}

// ErrInvalidTransition reports a lifecycle move the order state machine
// forbids.
func ErrInvalidTransition(from, to string) error {
	return fmt.Errorf("order status cannot move from %q to %q", from, to)
}

// OrderLog is one row of order audit history, written alongside every
// creation and status change.
type OrderLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OrderID   uint      `gorm:"index" json:"order_id"`
	Venue     string    `gorm:"size:40" json:"venue"`
	Symbol    string    `gorm:"size:20" json:"symbol"`
	Side      string    `gorm:"size:10" json:"side"`
	OrderType string    `gorm:"size:20" json:"order_type"`
	Quantity  float64   `json:"quantity"`
	Price     *float64  `json:"price,omitempty"`
	Status    string    `gorm:"size:50" json:"status"`
	Reason    string    `gorm:"type:text" json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (OrderLog) TableName() string {
	return "order_logs"
}
