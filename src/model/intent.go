package model

// IntentKind classifies what the user is asking for.
type IntentKind string

const (
	IntentTradeRequest   IntentKind = "trade_request"
	IntentPortfolioQuery IntentKind = "portfolio_query"
	IntentPriceQuery     IntentKind = "price_query"
	IntentAlertRequest   IntentKind = "alert_request"
	IntentCancelRequest  IntentKind = "cancel_request"
	IntentUnknown        IntentKind = "unknown"
)

// TradeIntent is the classified form of one raw message. It is created per
// interpreted message and discarded after use.
type TradeIntent struct {
	Kind       IntentKind `json:"intent_kind"`
	Confidence float64    `json:"confidence"`
	RawText    string     `json:"raw_text"`
}

const (
	SideBuy  = "buy"
	SideSell = "sell"

	OrderTypeMarket = "market"
	OrderTypeLimit  = "limit"
	OrderTypeStop   = "stop"
)

// ExtractedEntities holds whatever the interpreter could pull out of the
// message. All fields are optional; nil means "not present in the text".
type ExtractedEntities struct {
	Symbol     string   `json:"symbol,omitempty"`
	Amount     *float64 `json:"amount,omitempty"`
	Price      *float64 `json:"price,omitempty"`
	Percentage *float64 `json:"percentage,omitempty"`
	OrderType  string   `json:"order_type,omitempty"`
	Side       string   `json:"side,omitempty"`
	Timeframe  string   `json:"timeframe,omitempty"`
	Venue      string   `json:"venue,omitempty"`
}
