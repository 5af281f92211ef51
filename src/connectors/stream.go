package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"
)

// QuoteCache holds the most recent ticker per symbol, fed by the websocket
// stream and read by the monitor for revaluation and alert checks.
type QuoteCache struct {
	mu     sync.RWMutex
	quotes map[string]Ticker
}

func NewQuoteCache() *QuoteCache {
	return &QuoteCache{quotes: make(map[string]Ticker)}
}

func (c *QuoteCache) Set(t Ticker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[NormalizeSymbol(t.Symbol)] = t
}

func (c *QuoteCache) Get(symbol string) (Ticker, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.quotes[NormalizeSymbol(symbol)]
	return t, ok
}

// Snapshot returns last prices per symbol.
func (c *QuoteCache) Snapshot() map[string]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	prices := make(map[string]float64, len(c.quotes))
	for s, t := range c.quotes {
		prices[s] = t.Last
	}
	return prices
}

// streamFrame is the gateway's ticker message format.
type streamFrame struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Last   float64 `json:"last"`
	Volume float64 `json:"volume"`
	TS     int64   `json:"ts"`
}

// TickerStream consumes a ticker websocket into a QuoteCache, reconnecting
// with capped backoff until the context is done.
type TickerStream struct {
	url     string
	symbols []string
	cache   *QuoteCache
}

func NewTickerStream(url string, symbols []string, cache *QuoteCache) *TickerStream {
	return &TickerStream{url: url, symbols: symbols, cache: cache}
}

func (s *TickerStream) Run(ctx context.Context) {
	backoff := time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		if err := s.consume(ctx); err != nil && ctx.Err() == nil {
			logger.WithError(err).WithField("url", s.url).Warn("Ticker stream disconnected")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (s *TickerStream) consume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}

	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("ws dial failed: %w", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]any{
		"op":      "subscribe",
		"channel": "ticker",
		"symbols": s.symbols,
	}); err != nil {
		return fmt.Errorf("ws subscribe failed: %w", err)
	}

	logger.WithField("symbols", s.symbols).Info("Ticker stream connected")

	// unblock ReadMessage when the context is cancelled
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("ws read failed: %w", err)
		}

		var frame streamFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			logger.WithError(err).Debug("Skipping malformed ticker frame")
			continue
		}
		if frame.Symbol == "" || frame.Last <= 0 {
			continue
		}

		s.cache.Set(Ticker{
			Symbol: frame.Symbol,
			Bid:    frame.Bid,
			Ask:    frame.Ask,
			Last:   frame.Last,
			Volume: frame.Volume,
			At:     time.UnixMilli(frame.TS),
		})
	}
}
