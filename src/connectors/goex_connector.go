package connectors

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goex "github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/builder"
	logger "github.com/sirupsen/logrus"

	"tradepilot/src/model"
)

const (
	readRetryAttempts  = 3
	readRetryBaseDelay = 500 * time.Millisecond
)

// GoexConnector adapts a goex spot API to the ExchangeConnector interface,
// giving the engine real venues (binance, kraken, ...) through one client.
type GoexConnector struct {
	name          string
	api           goex.API
	symbols       map[string]bool
	submitTimeout time.Duration
}

// NewGoexConnector builds a connector for the configured venue. Credentials
// may be empty for market-data-only use.
func NewGoexConnector(cfg Config) (*GoexConnector, error) {
	exName, err := goexExchangeName(cfg.Venue)
	if err != nil {
		return nil, err
	}

	api := builder.NewAPIBuilder().
		HttpTimeout(cfg.HTTPTimeout).
		APIKey(cfg.APIKey).
		APISecretkey(cfg.APISecret).
		Build(exName)

	symbols := make(map[string]bool, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		symbols[NormalizeSymbol(s)] = true
	}

	return &GoexConnector{
		name:          strings.ToLower(cfg.Venue),
		api:           api,
		symbols:       symbols,
		submitTimeout: cfg.SubmitTimeout,
	}, nil
}

func goexExchangeName(venue string) (string, error) {
	switch strings.ToLower(venue) {
	case "binance":
		return goex.BINANCE, nil
	case "kraken":
		return goex.KRAKEN, nil
	case "huobi":
		return goex.HUOBI_PRO, nil
	case "bitstamp":
		return goex.BITSTAMP, nil
	case "okex":
		return goex.OKEX_V3, nil
	}
	return "", fmt.Errorf("venue %q not supported", venue)
}

func currencyPair(symbol string) goex.CurrencyPair {
	return goex.NewCurrencyPair2(strings.ReplaceAll(NormalizeSymbol(symbol), "/", "_"))
}

func (g *GoexConnector) Name() string { return g.name }

func (g *GoexConnector) HasSymbol(symbol string) bool {
	return g.symbols[NormalizeSymbol(symbol)]
}

// retryRead runs an idempotent read with bounded backoff. Order submission
// never goes through here.
func (g *GoexConnector) retryRead(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	delay := readRetryBaseDelay

	for attempt := 1; attempt <= readRetryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return &VenueError{Venue: g.name, Op: op, Err: err}
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}

		logger.WithError(lastErr).WithFields(logger.Fields{
			"venue":   g.name,
			"op":      op,
			"attempt": attempt,
		}).Warn("Venue read failed")

		if attempt < readRetryAttempts {
			select {
			case <-ctx.Done():
				return &VenueError{Venue: g.name, Op: op, Err: ctx.Err()}
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return &VenueError{Venue: g.name, Op: op, Err: lastErr}
}

func (g *GoexConnector) FetchTicker(ctx context.Context, symbol string) (*Ticker, error) {
	var raw *goex.Ticker

	err := g.retryRead(ctx, "FetchTicker", func() error {
		var err error
		raw, err = g.api.GetTicker(currencyPair(symbol))
		return err
	})
	if err != nil {
		return nil, err
	}

	return &Ticker{
		Symbol: NormalizeSymbol(symbol),
		Bid:    raw.Buy,
		Ask:    raw.Sell,
		Last:   raw.Last,
		Volume: raw.Vol,
		At:     time.Now(),
	}, nil
}

func (g *GoexConnector) FetchOrderBook(ctx context.Context, symbol string, depth int) (*OrderBook, error) {
	if depth <= 0 {
		depth = 20
	}

	var raw *goex.Depth
	err := g.retryRead(ctx, "FetchOrderBook", func() error {
		var err error
		raw, err = g.api.GetDepth(depth, currencyPair(symbol))
		return err
	})
	if err != nil {
		return nil, err
	}

	book := &OrderBook{Symbol: NormalizeSymbol(symbol)}
	for _, r := range raw.BidList {
		book.Bids = append(book.Bids, OrderBookLevel{Price: r.Price, Amount: r.Amount})
	}
	for _, r := range raw.AskList {
		book.Asks = append(book.Asks, OrderBookLevel{Price: r.Price, Amount: r.Amount})
	}

	return book, nil
}

func klinePeriod(timeframe string) (goex.KlinePeriod, error) {
	switch timeframe {
	case "1m":
		return goex.KLINE_PERIOD_1MIN, nil
	case "5m":
		return goex.KLINE_PERIOD_5MIN, nil
	case "15m":
		return goex.KLINE_PERIOD_15MIN, nil
	case "30m":
		return goex.KLINE_PERIOD_30MIN, nil
	case "1h":
		return goex.KLINE_PERIOD_1H, nil
	case "4h":
		return goex.KLINE_PERIOD_4H, nil
	case "1d":
		return goex.KLINE_PERIOD_1DAY, nil
	case "1w":
		return goex.KLINE_PERIOD_1WEEK, nil
	}
	return 0, fmt.Errorf("timeframe %q not supported", timeframe)
}

func (g *GoexConnector) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error) {
	period, err := klinePeriod(timeframe)
	if err != nil {
		return nil, &VenueError{Venue: g.name, Op: "FetchOHLCV", Err: err}
	}
	if limit <= 0 {
		limit = 100
	}

	var raw []goex.Kline
	err = g.retryRead(ctx, "FetchOHLCV", func() error {
		var err error
		raw, err = g.api.GetKlineRecords(currencyPair(symbol), period, limit)
		return err
	})
	if err != nil {
		return nil, err
	}

	candles := make([]model.Candle, 0, len(raw))
	for _, k := range raw {
		candles = append(candles, model.Candle{
			Timestamp: time.Unix(k.Timestamp, 0),
			Open:      decimalFromFloat(k.Open),
			High:      decimalFromFloat(k.High),
			Low:       decimalFromFloat(k.Low),
			Close:     decimalFromFloat(k.Close),
			Volume:    decimalFromFloat(k.Vol),
		})
	}

	return candles, nil
}

func (g *GoexConnector) FetchBalance(ctx context.Context) (*Balance, error) {
	var acc *goex.Account

	err := g.retryRead(ctx, "FetchBalance", func() error {
		var err error
		acc, err = g.api.GetAccount()
		return err
	})
	if err != nil {
		return nil, err
	}

	balance := &Balance{
		Free:  map[string]float64{},
		Used:  map[string]float64{},
		Total: map[string]float64{},
	}
	for cur, sub := range acc.SubAccounts {
		balance.Free[cur.Symbol] = sub.Amount
		balance.Used[cur.Symbol] = sub.ForzenAmount
		balance.Total[cur.Symbol] = sub.Amount + sub.ForzenAmount
	}

	return balance, nil
}

// CreateOrder is a single attempt with a hard deadline. On timeout the
// order's fate at the venue is unknown: the error wraps
// context.DeadlineExceeded and the caller must reconcile via
// FetchOrderStatus instead of resubmitting.
func (g *GoexConnector) CreateOrder(ctx context.Context, sub OrderSubmission) (*OrderAck, error) {
	ctx, cancel := context.WithTimeout(ctx, g.submitTimeout)
	defer cancel()

	type result struct {
		order *goex.Order
		err   error
	}
	done := make(chan result, 1)

	go func() {
		order, err := g.submit(sub)
		done <- result{order: order, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, &VenueError{Venue: g.name, Op: "CreateOrder", Err: ctx.Err()}
	case res := <-done:
		if res.err != nil {
			return nil, &VenueError{Venue: g.name, Op: "CreateOrder", Err: res.err}
		}
		return ackFromOrder(res.order), nil
	}
}

func (g *GoexConnector) submit(sub OrderSubmission) (*goex.Order, error) {
	pair := currencyPair(sub.Symbol)
	amount := strconv.FormatFloat(sub.Amount, 'f', -1, 64)

	price := "0"
	if sub.Price != nil {
		price = strconv.FormatFloat(*sub.Price, 'f', -1, 64)
	}

	switch {
	case sub.OrderType == model.OrderTypeMarket && sub.Side == model.SideBuy:
		return g.api.MarketBuy(amount, price, pair)
	case sub.OrderType == model.OrderTypeMarket && sub.Side == model.SideSell:
		return g.api.MarketSell(amount, price, pair)
	case sub.Side == model.SideBuy:
		return g.api.LimitBuy(amount, price, pair)
	case sub.Side == model.SideSell:
		return g.api.LimitSell(amount, price, pair)
	}

	return nil, fmt.Errorf("unsupported order %s/%s", sub.Side, sub.OrderType)
}

func (g *GoexConnector) CancelOrder(ctx context.Context, externalID, symbol string) error {
	ok, err := g.api.CancelOrder(externalID, currencyPair(symbol))
	if err != nil {
		return &VenueError{Venue: g.name, Op: "CancelOrder", Err: err}
	}
	if !ok {
		return &VenueError{Venue: g.name, Op: "CancelOrder", Err: errors.New("venue refused cancel")}
	}
	return nil
}

func (g *GoexConnector) FetchOrderStatus(ctx context.Context, externalID, symbol string) (*OrderAck, error) {
	var raw *goex.Order

	err := g.retryRead(ctx, "FetchOrderStatus", func() error {
		var err error
		raw, err = g.api.GetOneOrder(externalID, currencyPair(symbol))
		return err
	})
	if err != nil {
		return nil, err
	}

	return ackFromOrder(raw), nil
}

func ackFromOrder(order *goex.Order) *OrderAck {
	return &OrderAck{
		ExternalID:   order.OrderID2,
		Status:       statusFromGoex(order.Status),
		FilledAmount: order.DealAmount,
		AveragePrice: order.AvgPrice,
		Fee:          order.Fee,
	}
}

func statusFromGoex(status goex.TradeStatus) string {
	switch status {
	case goex.ORDER_FINISH:
		return model.OrderStatusFilled
	case goex.ORDER_PART_FINISH:
		return model.OrderStatusPartiallyFilled
	case goex.ORDER_CANCEL:
		return model.OrderStatusCancelled
	case goex.ORDER_REJECT, goex.ORDER_FAIL:
		return model.OrderStatusFailed
	default:
		return model.OrderStatusPending
	}
}

var _ ExchangeConnector = (*GoexConnector)(nil)
