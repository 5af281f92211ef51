package model

import "time"

// TradeRequest is a fully specified, not yet submitted order candidate built
// by merging extracted entities with configured defaults. It is owned by the
// user's session while awaiting confirmation and becomes immutable once
// submitted.
type TradeRequest struct {
	UserID          uint     `json:"user_id"`
	Symbol          string   `json:"symbol"`
	Side            string   `json:"side"`
	OrderType       string   `json:"order_type"`
	Amount          float64  `json:"amount"`
	LimitPrice      *float64 `json:"limit_price,omitempty"`
	StopLoss        *float64 `json:"stop_loss,omitempty"`
	TakeProfit      *float64 `json:"take_profit,omitempty"`
	VenuePreference string   `json:"venue_preference,omitempty"`
}

// RiskAssessment is the accept/reject verdict and sizing numbers computed for
// a TradeRequest against a portfolio snapshot. Computed fresh for every
// request, never persisted beyond the session.
type RiskAssessment struct {
	IsValid          bool      `json:"is_valid"`
	Reason           string    `json:"reason,omitempty"`
	PositionSize     float64   `json:"position_size"`
	PositionValue    float64   `json:"position_value"`
	RiskAmount       float64   `json:"risk_amount"`
	RiskPercentage   float64   `json:"risk_percentage"`
	RequiredCapital  float64   `json:"required_capital"`
	AvailableBalance float64   `json:"available_balance"`
	EntryPrice       float64   `json:"entry_price"`
	StopLossPrice    *float64  `json:"stop_loss_price,omitempty"`
	TakeProfitPrice  *float64  `json:"take_profit_price,omitempty"`
	AssessedAt       time.Time `json:"assessed_at"`
}

// CommandReply is what the engine hands back for one inbound message. For
// trade requests it carries the pending session id the front-end must echo in
// the confirmation action.
type CommandReply struct {
	Intent     TradeIntent       `json:"intent"`
	Entities   ExtractedEntities `json:"entities"`
	Text       string            `json:"text"`
	SessionID  string            `json:"session_id,omitempty"`
	Request    *TradeRequest     `json:"request,omitempty"`
	Assessment *RiskAssessment   `json:"assessment,omitempty"`
}

// OrderResult is the structured outcome of a confirmed execution, handed to
// the notification collaborator. Protective-order problems land in Warnings,
// never in Error.
type OrderResult struct {
	Success        bool     `json:"success"`
	OrderID        uint     `json:"order_id,omitempty"`
	Error          string   `json:"error,omitempty"`
	VenueUsed      string   `json:"venue_used,omitempty"`
	ExecutedPrice  float64  `json:"executed_price,omitempty"`
	ExecutedAmount float64  `json:"executed_amount,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
}
