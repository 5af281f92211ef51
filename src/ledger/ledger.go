package ledger

import (
	"fmt"
	"sort"
	"sync"

	logger "github.com/sirupsen/logrus"

	"tradepilot/src/model"
)

// Fill is one executed quantity applied to the ledger.
type Fill struct {
	Symbol          string
	Venue           string
	Side            string
	Quantity        float64
	Price           float64
	Fee             float64
	StopLossPrice   *float64
	TakeProfitPrice *float64
}

type positionKey struct {
	symbol string
	venue  string
}

type account struct {
	mu        sync.Mutex
	portfolio model.Portfolio
	positions map[positionKey]*model.Position
}

// Ledger is the authoritative record of cash, holdings and PnL, partitioned
// by user. Mutations for one user are serialized in fill order; different
// users never contend.
type Ledger struct {
	mu           sync.Mutex
	accounts     map[uint]*account
	startingCash float64
}

func New(startingCash float64) *Ledger {
	return &Ledger{
		accounts:     make(map[uint]*account),
		startingCash: startingCash,
	}
}

func (l *Ledger) account(userID uint) *account {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.accounts[userID]
	if !ok {
		acc = &account{
			portfolio: model.Portfolio{
				UserID:      userID,
				CashBalance: l.startingCash,
				TotalValue:  l.startingCash,
			},
			positions: make(map[positionKey]*model.Position),
		}
		l.accounts[userID] = acc
	}
	return acc
}

// Hydrate loads a persisted portfolio and its positions, replacing any
// in-memory state for that user. Called once per user at startup.
func (l *Ledger) Hydrate(portfolio model.Portfolio, positions []model.Position) {
	acc := l.account(portfolio.UserID)
	acc.mu.Lock()
	defer acc.mu.Unlock()

	acc.portfolio = portfolio
	acc.positions = make(map[positionKey]*model.Position, len(positions))
	for i := range positions {
		p := positions[i]
		acc.positions[positionKey{symbol: p.Symbol, venue: p.Venue}] = &p
	}
	recomputeLocked(acc)
}

// Snapshot returns a deep copy of the user's portfolio with totals
// recomputed, positions sorted for stable output.
func (l *Ledger) Snapshot(userID uint) model.Portfolio {
	acc := l.account(userID)
	acc.mu.Lock()
	defer acc.mu.Unlock()

	recomputeLocked(acc)

	out := acc.portfolio
	out.Positions = make([]model.Position, 0, len(acc.positions))
	for _, p := range acc.positions {
		out.Positions = append(out.Positions, *p)
	}
	sort.Slice(out.Positions, func(i, j int) bool {
		if out.Positions[i].Symbol != out.Positions[j].Symbol {
			return out.Positions[i].Symbol < out.Positions[j].Symbol
		}
		return out.Positions[i].Venue < out.Positions[j].Venue
	})

	return out
}

// ApplyFill mutates cash and the (symbol, venue) position for one fill.
// Selling more than is held is rejected: spot quantities never go negative.
func (l *Ledger) ApplyFill(userID uint, fill Fill) (model.Position, model.Portfolio, error) {
	acc := l.account(userID)
	acc.mu.Lock()
	defer acc.mu.Unlock()

	key := positionKey{symbol: fill.Symbol, venue: fill.Venue}
	pos, ok := acc.positions[key]
	if !ok {
		pos = &model.Position{
			UserID: userID,
			Symbol: fill.Symbol,
			Venue:  fill.Venue,
		}
		acc.positions[key] = pos
	}

	switch fill.Side {
	case model.SideBuy:
		cost := fill.Quantity*fill.Price + fill.Fee
		newQty := pos.Quantity + fill.Quantity
		pos.AverageEntryPrice = (pos.AverageEntryPrice*pos.Quantity + fill.Price*fill.Quantity) / newQty
		pos.Quantity = newQty
		acc.portfolio.CashBalance -= cost

	case model.SideSell:
		if fill.Quantity > pos.Quantity {
			return model.Position{}, model.Portfolio{}, fmt.Errorf(
				"cannot sell %.8f %s, only %.8f held", fill.Quantity, fill.Symbol, pos.Quantity,
			)
		}
		pos.RealizedPnl += (fill.Price - pos.AverageEntryPrice) * fill.Quantity
		pos.Quantity -= fill.Quantity
		acc.portfolio.CashBalance += fill.Quantity*fill.Price - fill.Fee

	default:
		return model.Position{}, model.Portfolio{}, fmt.Errorf("unknown side %q", fill.Side)
	}

	pos.CurrentPrice = fill.Price
	if fill.StopLossPrice != nil {
		pos.StopLossPrice = fill.StopLossPrice
	}
	if fill.TakeProfitPrice != nil {
		pos.TakeProfitPrice = fill.TakeProfitPrice
	}

	recomputeLocked(acc)

	logger.WithFields(logger.Fields{
		"user_id":  userID,
		"symbol":   fill.Symbol,
		"venue":    fill.Venue,
		"side":     fill.Side,
		"quantity": fill.Quantity,
		"price":    fill.Price,
		"cash":     acc.portfolio.CashBalance,
	}).Info("Ledger fill applied")

	return *pos, acc.portfolio, nil
}

// Revalue marks open positions to the given last prices and refreshes
// unrealized PnL and totals.
func (l *Ledger) Revalue(userID uint, prices map[string]float64) model.Portfolio {
	acc := l.account(userID)
	acc.mu.Lock()
	defer acc.mu.Unlock()

	for _, pos := range acc.positions {
		if price, ok := prices[pos.Symbol]; ok && price > 0 {
			pos.CurrentPrice = price
		}
	}
	recomputeLocked(acc)

	return acc.portfolio
}

// UpdateStops moves the protective levels on an open position, used by the
// trailing-stop pass. Returns the updated position, or false when the user
// holds no such position.
func (l *Ledger) UpdateStops(userID uint, symbol, venue string, stopLoss, takeProfit *float64) (model.Position, bool) {
	acc := l.account(userID)
	acc.mu.Lock()
	defer acc.mu.Unlock()

	pos, ok := acc.positions[positionKey{symbol: symbol, venue: venue}]
	if !ok {
		return model.Position{}, false
	}

	if stopLoss != nil {
		pos.StopLossPrice = stopLoss
	}
	if takeProfit != nil {
		pos.TakeProfitPrice = takeProfit
	}

	return *pos, true
}

// Users lists all user ids with an account, for periodic revaluation.
func (l *Ledger) Users() []uint {
	l.mu.Lock()
	defer l.mu.Unlock()

	users := make([]uint, 0, len(l.accounts))
	for id := range l.accounts {
		users = append(users, id)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users
}

// recomputeLocked restores the invariant
// total_value == cash + sum(quantity * current_price). Caller holds acc.mu.
func recomputeLocked(acc *account) {
	total := acc.portfolio.CashBalance
	pnl := 0.0

	for _, pos := range acc.positions {
		pos.UnrealizedPnl = (pos.CurrentPrice - pos.AverageEntryPrice) * pos.Quantity
		total += pos.MarketValue()
		pnl += pos.RealizedPnl + pos.UnrealizedPnl
	}

	acc.portfolio.TotalValue = total
	acc.portfolio.TotalPnl = pnl
}
