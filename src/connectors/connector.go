package connectors

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tradepilot/src/model"
)

func decimalFromFloat(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

// Ticker is one top-of-book snapshot.
type Ticker struct {
	Symbol string    `json:"symbol"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	Last   float64   `json:"last"`
	Volume float64   `json:"volume"`
	At     time.Time `json:"at"`
}

// Spread is the ask/bid gap. Zero or negative book data yields zero.
func (t *Ticker) Spread() float64 {
	s := t.Ask - t.Bid
	if s < 0 {
		return 0
	}
	return s
}

type OrderBookLevel struct {
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
}

type OrderBook struct {
	Symbol string           `json:"symbol"`
	Bids   []OrderBookLevel `json:"bids"`
	Asks   []OrderBookLevel `json:"asks"`
}

// OrderSubmission is everything a venue needs to accept an order. ClientID is
// our uuid for idempotency bookkeeping on our side.
type OrderSubmission struct {
	ClientID  string   `json:"client_id"`
	Symbol    string   `json:"symbol"`
	Side      string   `json:"side"`
	OrderType string   `json:"order_type"`
	Amount    float64  `json:"amount"`
	Price     *float64 `json:"price,omitempty"`
}

// OrderAck is a venue's view of an order, both from the submission response
// and from later status polls. Status uses the model order lifecycle values.
type OrderAck struct {
	ExternalID   string  `json:"external_id"`
	Status       string  `json:"status"`
	FilledAmount float64 `json:"filled_amount"`
	AveragePrice float64 `json:"average_price"`
	Fee          float64 `json:"fee"`
}

// Balance is the per-currency account state at the venue.
type Balance struct {
	Free  map[string]float64 `json:"free"`
	Used  map[string]float64 `json:"used"`
	Total map[string]float64 `json:"total"`
}

// ExchangeConnector is the uniform venue abstraction. Read calls (ticker,
// order book, candles, balance, status) may be retried by implementations;
// CreateOrder must be a single attempt — a timed-out submission has unknown
// fate and is reconciled via FetchOrderStatus, never resubmitted.
type ExchangeConnector interface {
	Name() string
	HasSymbol(symbol string) bool

	FetchTicker(ctx context.Context, symbol string) (*Ticker, error)
	FetchOrderBook(ctx context.Context, symbol string, depth int) (*OrderBook, error)
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error)
	FetchBalance(ctx context.Context) (*Balance, error)

	CreateOrder(ctx context.Context, sub OrderSubmission) (*OrderAck, error)
	CancelOrder(ctx context.Context, externalID, symbol string) error
	FetchOrderStatus(ctx context.Context, externalID, symbol string) (*OrderAck, error)
}

// VenueError wraps a failure from a venue call with enough context to build
// an actionable user-facing reason.
type VenueError struct {
	Venue string
	Op    string
	Err   error
}

func (e *VenueError) Error() string {
	return fmt.Sprintf("venue %s: %s: %v", e.Venue, e.Op, e.Err)
}

func (e *VenueError) Unwrap() error {
	return e.Err
}
