package model

import "time"

// Position is one holding per (user, symbol, venue). Quantity never goes
// negative for spot holdings; a fully exited position keeps its realized PnL.
type Position struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	UserID            uint      `gorm:"index:idx_positions_user_symbol_venue,unique" json:"user_id"`
	Symbol            string    `gorm:"size:20;index:idx_positions_user_symbol_venue,unique" json:"symbol"`
	Venue             string    `gorm:"size:40;index:idx_positions_user_symbol_venue,unique" json:"venue"`
	Quantity          float64   `json:"quantity"`
	AverageEntryPrice float64   `json:"average_entry_price"`
	CurrentPrice      float64   `json:"current_price"`
	StopLossPrice     *float64  `json:"stop_loss_price,omitempty"`
	TakeProfitPrice   *float64  `json:"take_profit_price,omitempty"`
	RealizedPnl       float64   `json:"realized_pnl"`
	UnrealizedPnl     float64   `json:"unrealized_pnl"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (Position) TableName() string {
	return "positions"
}

// MarketValue is the position's worth at the last known price.
func (p *Position) MarketValue() float64 {
	return p.Quantity * p.CurrentPrice
}

// Portfolio is the authoritative per-user record of cash and holdings.
// Invariant: TotalValue == CashBalance + sum of position market values.
type Portfolio struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UserID      uint       `gorm:"uniqueIndex" json:"user_id"`
	CashBalance float64    `json:"cash_balance"`
	TotalValue  float64    `json:"total_value"`
	TotalPnl    float64    `json:"total_pnl"`
	Positions   []Position `gorm:"-" json:"positions,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Portfolio) TableName() string {
	return "portfolios"
}
