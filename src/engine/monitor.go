package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradepilot/src/connectors"
	"tradepilot/src/ledger"
	"tradepilot/src/model"
	"tradepilot/src/tp_sl"
)

const trailingLookback = 20

// Monitor is the engine's background loop: portfolio revaluation, protective
// order triggers, trailing stops, price alerts and reconciliation of orders
// whose submission fate was unknown.
type Monitor struct {
	engine *Engine
}

func NewMonitor(e *Engine) *Monitor {
	return &Monitor{engine: e}
}

// Run ticks until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	interval := m.engine.cfg.MonitorInterval

	logger.WithField("interval", interval.String()).Info("Monitor loop starting")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Monitor loop stopping")
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	m.revalue(ctx)
	m.watchProtective(ctx)
	m.trailStops(ctx)
	m.checkAlerts(ctx)
	m.reconcile(ctx)
}

// revalue marks every account to the latest prices and persists the totals.
func (m *Monitor) revalue(ctx context.Context) {
	for _, userID := range m.engine.deps.Ledger.Users() {
		snapshot := m.engine.deps.Ledger.Snapshot(userID)

		prices := make(map[string]float64)
		for _, pos := range snapshot.Positions {
			if pos.Quantity <= 0 {
				continue
			}
			if price, ok := m.lastPrice(ctx, pos.Symbol, pos.Venue); ok {
				prices[pos.Symbol] = price
			}
		}
		if len(prices) == 0 {
			continue
		}

		portfolio := m.engine.deps.Ledger.Revalue(userID, prices)
		if err := m.engine.deps.Portfolios.Upsert(ctx, &portfolio); err != nil {
			logger.WithError(err).WithField("user_id", userID).
				Warn("Failed to persist revalued portfolio")
		}
	}
}

// watchProtective fires local stop-loss and take-profit orders whose trigger
// price has been crossed, exiting at market and cancelling the sibling.
func (m *Monitor) watchProtective(ctx context.Context) {
	orders, err := m.engine.deps.Orders.FindOpenProtective(ctx)
	if err != nil {
		return
	}

	for i := range orders {
		order := orders[i]
		if order.Price == nil {
			continue
		}

		price, ok := m.lastPrice(ctx, order.Symbol, order.Venue)
		if !ok || !protectiveTriggered(order, price) {
			continue
		}

		logger.WithFields(logger.Fields{
			"order_id": order.ID,
			"role":     order.Role,
			"symbol":   order.Symbol,
			"trigger":  *order.Price,
			"last":     price,
		}).Info("Protective order triggered")

		m.executeProtective(ctx, order, orders)
	}
}

func protectiveTriggered(order model.Order, price float64) bool {
	trigger := *order.Price

	// A sell exit protects a long; a buy exit protects a short.
	if order.Side == model.SideSell {
		if order.Role == model.OrderRoleStopLoss {
			return price <= trigger
		}
		return price >= trigger
	}
	if order.Role == model.OrderRoleStopLoss {
		return price >= trigger
	}
	return price <= trigger
}

func (m *Monitor) executeProtective(ctx context.Context, order model.Order, open []model.Order) {
	venue, ok := m.engine.deps.Router.ByName(order.Venue)
	if !ok {
		return
	}

	ack, err := venue.CreateOrder(ctx, connectors.OrderSubmission{
		ClientID:  uuid.NewString(),
		Symbol:    order.Symbol,
		Side:      order.Side,
		OrderType: model.OrderTypeMarket,
		Amount:    order.RequestedAmount,
	})
	if err != nil {
		logger.WithError(err).WithField("order_id", order.ID).
			Error("Protective exit failed at venue")
		m.engine.recordException(ctx, order.Venue, "CreateOrder", err)
		return
	}

	if err := m.engine.deps.Orders.UpdateFill(ctx, order.ID, ack.ExternalID, ack.FilledAmount, ack.AveragePrice, ack.Fee); err != nil {
		logger.WithError(err).WithField("order_id", order.ID).
			Warn("Failed to record protective fill")
	}
	if order.CanTransition(ack.Status) {
		if err := m.engine.deps.Orders.UpdateStatusWithAutoLog(ctx, order.ID, ack.Status, order.Role+" triggered"); err != nil {
			logger.WithError(err).WithField("order_id", order.ID).
				Warn("Failed to update protective order status")
		}
	}

	if ack.FilledAmount > 0 {
		position, portfolio, err := m.engine.deps.Ledger.ApplyFill(order.UserID, ledger.Fill{
			Symbol:   order.Symbol,
			Venue:    order.Venue,
			Side:     order.Side,
			Quantity: ack.FilledAmount,
			Price:    ack.AveragePrice,
			Fee:      ack.Fee,
		})
		if err != nil {
			logger.WithError(err).WithField("order_id", order.ID).
				Error("Ledger rejected protective fill")
		} else {
			if err := m.engine.deps.Positions.Upsert(ctx, &position); err != nil {
				logger.WithError(err).Warn("Failed to persist position after protective exit")
			}
			if err := m.engine.deps.Portfolios.Upsert(ctx, &portfolio); err != nil {
				logger.WithError(err).Warn("Failed to persist portfolio after protective exit")
			}
		}
	}

	// The sibling protecting the same primary order is now pointless.
	for _, other := range open {
		if other.ID == order.ID || other.LinkedOrderID == nil || order.LinkedOrderID == nil {
			continue
		}
		if *other.LinkedOrderID == *order.LinkedOrderID {
			if err := m.engine.deps.Orders.UpdateStatusWithAutoLog(ctx, other.ID, model.OrderStatusCancelled, "sibling protective order filled"); err != nil {
				logger.WithError(err).WithField("order_id", other.ID).
					Warn("Failed to cancel sibling protective order")
			}
		}
	}

	order.Status = ack.Status
	m.engine.deps.Notifier.NotifyOrderUpdate(ctx, order, "Protective order executed")
}

// trailStops walks open long positions and ratchets their stop-loss using
// recent candles. Stops only ever move in the position's favor.
func (m *Monitor) trailStops(ctx context.Context) {
	for _, userID := range m.engine.deps.Ledger.Users() {
		snapshot := m.engine.deps.Ledger.Snapshot(userID)

		for _, pos := range snapshot.Positions {
			if pos.Quantity <= 0 || pos.StopLossPrice == nil {
				continue
			}

			venue, ok := m.engine.deps.Router.ByName(pos.Venue)
			if !ok {
				continue
			}

			candles, err := venue.FetchOHLCV(ctx, pos.Symbol, "1h", trailingLookback+2)
			if err != nil || len(candles) < 2 {
				continue
			}

			current := decimal.NewFromFloat(*pos.StopLossPrice)
			next, moved := tp_sl.ComputeNextStopLoss(tp_sl.SideLong, current, candles, trailingLookback)
			if !moved {
				continue
			}

			newStop, _ := next.Float64()
			updated, ok := m.engine.deps.Ledger.UpdateStops(userID, pos.Symbol, pos.Venue, &newStop, nil)
			if !ok {
				continue
			}

			logger.WithFields(logger.Fields{
				"user_id": userID,
				"symbol":  pos.Symbol,
				"old_sl":  *pos.StopLossPrice,
				"new_sl":  newStop,
			}).Info("Trailing stop moved")

			if err := m.engine.deps.Positions.Upsert(ctx, &updated); err != nil {
				logger.WithError(err).Warn("Failed to persist trailed stop")
			}
		}
	}
}

// checkAlerts fires active price alerts exactly once.
func (m *Monitor) checkAlerts(ctx context.Context) {
	alerts, err := m.engine.deps.Alerts.FindActive(ctx)
	if err != nil {
		return
	}

	for _, alert := range alerts {
		price, ok := m.lastPrice(ctx, alert.Symbol, "")
		if !ok {
			continue
		}

		fired := (alert.Direction == model.AlertDirectionAbove && price >= alert.TargetPrice) ||
			(alert.Direction == model.AlertDirectionBelow && price <= alert.TargetPrice)
		if !fired {
			continue
		}

		if err := m.engine.deps.Alerts.MarkTriggered(ctx, alert.ID); err != nil {
			logger.WithError(err).WithField("alert_id", alert.ID).
				Warn("Failed to mark alert triggered")
			continue
		}

		m.engine.deps.Notifier.NotifyAlert(ctx, alert, price)
	}
}

// reconcile resolves orders whose submission timed out. Orders that never got
// an external id are written off after the grace period; the rest are polled
// at the venue.
func (m *Monitor) reconcile(ctx context.Context) {
	orders, err := m.engine.deps.Orders.FindNeedingReconcile(ctx)
	if err != nil {
		return
	}

	for _, order := range orders {
		if order.ExternalID == "" {
			if m.engine.now().Sub(order.CreatedAt) > m.engine.cfg.ReconcileGrace {
				if err := m.engine.deps.Orders.UpdateStatusWithAutoLog(ctx, order.ID, model.OrderStatusFailed, "submission fate unknown after grace period"); err != nil {
					logger.WithError(err).WithField("order_id", order.ID).
						Warn("Failed to write off unreconcilable order")
				}
			}
			continue
		}

		venue, ok := m.engine.deps.Router.ByName(order.Venue)
		if !ok {
			continue
		}

		ack, err := venue.FetchOrderStatus(ctx, order.ExternalID, order.Symbol)
		if err != nil {
			continue
		}

		if ack.FilledAmount > order.FilledAmount {
			if err := m.engine.deps.Orders.UpdateFill(ctx, order.ID, ack.ExternalID, ack.FilledAmount, ack.AveragePrice, ack.Fee); err != nil {
				logger.WithError(err).WithField("order_id", order.ID).
					Warn("Failed to record reconciled fill")
			}

			delta := ack.FilledAmount - order.FilledAmount
			position, portfolio, err := m.engine.deps.Ledger.ApplyFill(order.UserID, ledger.Fill{
				Symbol:   order.Symbol,
				Venue:    order.Venue,
				Side:     order.Side,
				Quantity: delta,
				Price:    ack.AveragePrice,
				Fee:      ack.Fee,
			})
			if err == nil {
				if perr := m.engine.deps.Positions.Upsert(ctx, &position); perr != nil {
					logger.WithError(perr).Warn("Failed to persist reconciled position")
				}
				if perr := m.engine.deps.Portfolios.Upsert(ctx, &portfolio); perr != nil {
					logger.WithError(perr).Warn("Failed to persist reconciled portfolio")
				}
			}
		}

		if order.CanTransition(ack.Status) {
			if err := m.engine.deps.Orders.UpdateStatusWithAutoLog(ctx, order.ID, ack.Status, "reconciled from venue"); err != nil {
				logger.WithError(err).WithField("order_id", order.ID).
					Warn("Failed to update reconciled order status")
			}
		}
	}
}

// lastPrice prefers the streamed quote cache and falls back to a venue call.
func (m *Monitor) lastPrice(ctx context.Context, symbol, venueName string) (float64, bool) {
	if m.engine.deps.Quotes != nil {
		if quote, ok := m.engine.deps.Quotes.Get(symbol); ok && quote.Last > 0 {
			return quote.Last, true
		}
	}

	if venueName != "" {
		if venue, ok := m.engine.deps.Router.ByName(venueName); ok {
			if ticker, err := venue.FetchTicker(ctx, symbol); err == nil && ticker.Last > 0 {
				return ticker.Last, true
			}
		}
		return 0, false
	}

	venue, err := m.engine.deps.Router.SelectVenue(ctx, symbol, "")
	if err != nil {
		return 0, false
	}
	ticker, err := venue.FetchTicker(ctx, symbol)
	if err != nil || ticker.Last <= 0 {
		return 0, false
	}
	return ticker.Last, true
}
