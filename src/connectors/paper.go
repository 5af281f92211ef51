package connectors

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"tradepilot/src/model"
)

// PaperConnector is an in-process venue with immediate fills at the current
// mark price. It backs paper-trading accounts and the engine tests. Safe for
// concurrent use.
type PaperConnector struct {
	name    string
	feeRate float64

	mu      sync.RWMutex
	prices  map[string]*Ticker
	orders  map[string]*OrderAck
	balance map[string]float64
}

func NewPaperConnector(name string, symbols []string, quoteBalance, feeRate float64) *PaperConnector {
	p := &PaperConnector{
		name:    name,
		feeRate: feeRate,
		prices:  make(map[string]*Ticker),
		orders:  make(map[string]*OrderAck),
		balance: map[string]float64{"USDT": quoteBalance},
	}

	for _, s := range symbols {
		p.prices[s] = &Ticker{Symbol: s, At: time.Now()}
	}

	return p
}

// SetQuote seeds or moves the mark price for a symbol.
func (p *PaperConnector) SetQuote(symbol string, bid, ask, volume float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = &Ticker{
		Symbol: symbol,
		Bid:    bid,
		Ask:    ask,
		Last:   (bid + ask) / 2,
		Volume: volume,
		At:     time.Now(),
	}
}

func (p *PaperConnector) Name() string { return p.name }

func (p *PaperConnector) HasSymbol(symbol string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.prices[symbol]
	return ok
}

func (p *PaperConnector) FetchTicker(_ context.Context, symbol string) (*Ticker, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	t, ok := p.prices[symbol]
	if !ok || t.Last <= 0 {
		return nil, &VenueError{Venue: p.name, Op: "FetchTicker", Err: fmt.Errorf("no quote for %s", symbol)}
	}
	copied := *t
	return &copied, nil
}

func (p *PaperConnector) FetchOrderBook(ctx context.Context, symbol string, depth int) (*OrderBook, error) {
	t, err := p.FetchTicker(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if depth <= 0 {
		depth = 1
	}

	// a synthetic one-level book is enough for spread-based routing
	return &OrderBook{
		Symbol: symbol,
		Bids:   []OrderBookLevel{{Price: t.Bid, Amount: t.Volume}},
		Asks:   []OrderBookLevel{{Price: t.Ask, Amount: t.Volume}},
	}, nil
}

func (p *PaperConnector) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error) {
	// the paper venue keeps no history; callers fall back to price-derived
	// estimates (see risk.EstimateATR)
	return nil, nil
}

func (p *PaperConnector) FetchBalance(_ context.Context) (*Balance, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	free := make(map[string]float64, len(p.balance))
	total := make(map[string]float64, len(p.balance))
	for cur, amt := range p.balance {
		free[cur] = amt
		total[cur] = amt
	}

	return &Balance{Free: free, Used: map[string]float64{}, Total: total}, nil
}

func (p *PaperConnector) CreateOrder(_ context.Context, sub OrderSubmission) (*OrderAck, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.prices[sub.Symbol]
	if !ok || t.Last <= 0 {
		return nil, &VenueError{Venue: p.name, Op: "CreateOrder", Err: fmt.Errorf("no quote for %s", sub.Symbol)}
	}
	if sub.Amount <= 0 {
		return nil, &VenueError{Venue: p.name, Op: "CreateOrder", Err: fmt.Errorf("non-positive amount")}
	}

	price := t.Ask
	if sub.Side == model.SideSell {
		price = t.Bid
	}
	if sub.OrderType != model.OrderTypeMarket && sub.Price != nil {
		price = *sub.Price
	}

	ack := &OrderAck{
		ExternalID:   "paper-" + uuid.NewString(),
		Status:       model.OrderStatusFilled,
		FilledAmount: sub.Amount,
		AveragePrice: price,
		Fee:          sub.Amount * price * p.feeRate,
	}
	p.orders[ack.ExternalID] = ack

	logger.WithFields(logger.Fields{
		"venue":  p.name,
		"symbol": sub.Symbol,
		"side":   sub.Side,
		"amount": sub.Amount,
		"price":  price,
	}).Info("Paper order filled")

	return ack, nil
}

func (p *PaperConnector) CancelOrder(_ context.Context, externalID, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ack, ok := p.orders[externalID]
	if !ok {
		return &VenueError{Venue: p.name, Op: "CancelOrder", Err: fmt.Errorf("unknown order %s", externalID)}
	}
	if ack.Status == model.OrderStatusFilled {
		return &VenueError{Venue: p.name, Op: "CancelOrder", Err: fmt.Errorf("order %s already filled", externalID)}
	}

	ack.Status = model.OrderStatusCancelled
	return nil
}

func (p *PaperConnector) FetchOrderStatus(_ context.Context, externalID, _ string) (*OrderAck, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ack, ok := p.orders[externalID]
	if !ok {
		return nil, &VenueError{Venue: p.name, Op: "FetchOrderStatus", Err: fmt.Errorf("unknown order %s", externalID)}
	}
	copied := *ack
	return &copied, nil
}

var _ ExchangeConnector = (*PaperConnector)(nil)

// NormalizeSymbol strips whitespace and upper-cases a pair.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
