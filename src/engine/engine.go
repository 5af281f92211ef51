package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"tradepilot/src/connectors"
	"tradepilot/src/ledger"
	"tradepilot/src/model"
	"tradepilot/src/nlp"
	"tradepilot/src/risk"
	"tradepilot/src/router"
	"tradepilot/src/session"
)

// OrderStore is the slice of the order repository the engine needs.
type OrderStore interface {
	CreateWithAutoLog(ctx context.Context, order *model.Order) error
	UpdateStatusWithAutoLog(ctx context.Context, orderID uint, newStatus string, reason string) error
	UpdateFill(ctx context.Context, orderID uint, externalID string, filledAmount, averagePrice, fees float64) error
	SetNeedsReconcile(ctx context.Context, orderID uint) error
	FindByID(ctx context.Context, id uint) (*model.Order, error)
	FindNeedingReconcile(ctx context.Context) ([]model.Order, error)
	FindOpenProtective(ctx context.Context) ([]model.Order, error)
}

type PositionStore interface {
	Upsert(ctx context.Context, position *model.Position) error
}

type PortfolioStore interface {
	Upsert(ctx context.Context, portfolio *model.Portfolio) error
}

type AlertStore interface {
	Create(ctx context.Context, alert *model.Alert) error
	FindActive(ctx context.Context) ([]model.Alert, error)
	MarkTriggered(ctx context.Context, id uint) error
}

// SnapshotStore persists session snapshots. Optional.
type SnapshotStore interface {
	Save(ctx context.Context, sess *model.UserSession) error
}

// ExceptionStore records venue and execution failures for auditing. Optional.
type ExceptionStore interface {
	Create(ctx context.Context, exc *model.Exception) error
}

// Deps collects the engine's collaborators. Orders, Positions, Portfolios and
// Alerts are required; Snapshots, Notifier and Quotes are optional.
type Deps struct {
	Interpreter *nlp.Interpreter
	Router      *router.Router
	Sessions    *session.Store
	Ledger      *ledger.Ledger
	Limits      risk.Limits

	Orders     OrderStore
	Positions  PositionStore
	Portfolios PortfolioStore
	Alerts     AlertStore
	Snapshots  SnapshotStore
	Exceptions ExceptionStore

	Notifier Notifier
	Quotes   *connectors.QuoteCache
}

// Engine drives the whole command cycle: interpret, assess, park for
// confirmation, execute, record. One instance serves all users; per-user
// ordering comes from the session store.
type Engine struct {
	cfg  Config
	deps Deps
	now  func() time.Time
}

func New(cfg Config, deps Deps) *Engine {
	if deps.Notifier == nil {
		deps.Notifier = LogNotifier{}
	}
	return &Engine{
		cfg:  cfg,
		deps: deps,
		now:  time.Now,
	}
}

// WithClock overrides the engine's clock. Tests only.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// HandleCommand turns one raw message into a reply. Trade requests that pass
// risk checks are parked on the session and the reply carries the session id
// to confirm; everything else is answered directly.
func (e *Engine) HandleCommand(ctx context.Context, userID uint, text string) (model.CommandReply, error) {
	sess, release, err := e.deps.Sessions.Acquire(userID)
	if err != nil {
		return model.CommandReply{}, err
	}
	defer release()

	intent, entities := e.deps.Interpreter.Interpret(ctx, text, userID)
	reply := model.CommandReply{Intent: intent, Entities: entities}

	logger.WithFields(logger.Fields{
		"user_id":    userID,
		"intent":     intent.Kind,
		"confidence": intent.Confidence,
	}).Info("Command interpreted")

	switch intent.Kind {
	case model.IntentTradeRequest:
		e.handleTradeRequest(ctx, sess, userID, entities, &reply)

	case model.IntentPortfolioQuery:
		e.handlePortfolioQuery(userID, &reply)

	case model.IntentPriceQuery:
		e.handlePriceQuery(ctx, entities, &reply)

	case model.IntentAlertRequest:
		e.handleAlertRequest(ctx, userID, text, entities, &reply)

	case model.IntentCancelRequest:
		if err := e.deps.Sessions.CancelPending(sess, sess.SessionID); err != nil {
			reply.Text = "There is no pending trade to cancel."
		} else {
			reply.Text = "Pending trade cancelled."
		}

	default:
		reply.Text = "I could not work out what you want to do. Try something like \"buy 0.1 BTC at market\"."
	}

	e.deps.Sessions.Touch(sess)
	e.persistSession(ctx, sess)

	return reply, nil
}

func (e *Engine) handleTradeRequest(
	ctx context.Context,
	sess *session.Session,
	userID uint,
	entities model.ExtractedEntities,
	reply *model.CommandReply,
) {
	if entities.Side == "" {
		reply.Text = fmt.Sprintf("Should I buy or sell %s?", entities.Symbol)
		return
	}

	req := model.TradeRequest{
		UserID:          userID,
		Symbol:          entities.Symbol,
		Side:            entities.Side,
		OrderType:       entities.OrderType,
		VenuePreference: entities.Venue,
	}
	if req.OrderType == "" {
		req.OrderType = model.OrderTypeMarket
	}
	if entities.Amount != nil {
		req.Amount = *entities.Amount
	}
	if req.OrderType == model.OrderTypeLimit && entities.Price != nil {
		req.LimitPrice = entities.Price
	}

	venue, ticker, err := e.priceFor(ctx, req.Symbol, req.VenuePreference)
	if err != nil {
		reply.Text = fmt.Sprintf("Could not price %s right now: %v", req.Symbol, err)
		return
	}

	portfolio := e.deps.Ledger.Snapshot(userID)
	assessment := risk.Assess(req, entryFromTicker(ticker, req), portfolio, e.deps.Limits)

	reply.Request = &req
	reply.Assessment = &assessment

	if !assessment.IsValid {
		reply.Text = fmt.Sprintf("Trade rejected: %s", assessment.Reason)
		return
	}

	sessionID := e.deps.Sessions.Await(sess, req, assessment)
	reply.SessionID = sessionID
	reply.Text = fmt.Sprintf(
		"Ready to %s %.6f %s on %s at ~%.2f (risking %.2f, %.2f%% of portfolio). Confirm?",
		req.Side, assessment.PositionSize, req.Symbol, venue.Name(),
		assessment.EntryPrice, assessment.RiskAmount, assessment.RiskPercentage,
	)
}

func (e *Engine) handlePortfolioQuery(userID uint, reply *model.CommandReply) {
	if e.deps.Quotes != nil {
		e.deps.Ledger.Revalue(userID, e.deps.Quotes.Snapshot())
	}
	portfolio := e.deps.Ledger.Snapshot(userID)

	var b strings.Builder
	fmt.Fprintf(&b, "Portfolio value %.2f (cash %.2f, PnL %+.2f).",
		portfolio.TotalValue, portfolio.CashBalance, portfolio.TotalPnl)
	for _, pos := range portfolio.Positions {
		if pos.Quantity <= 0 {
			continue
		}
		fmt.Fprintf(&b, " %s: %.6f @ %.2f (unrealized %+.2f).",
			pos.Symbol, pos.Quantity, pos.AverageEntryPrice, pos.UnrealizedPnl)
	}
	reply.Text = b.String()
}

func (e *Engine) handlePriceQuery(ctx context.Context, entities model.ExtractedEntities, reply *model.CommandReply) {
	symbol := entities.Symbol
	if symbol == "" {
		reply.Text = "Which symbol do you want a price for?"
		return
	}

	venue, ticker, err := e.priceFor(ctx, symbol, entities.Venue)
	if err != nil {
		reply.Text = fmt.Sprintf("Could not price %s right now: %v", symbol, err)
		return
	}

	reply.Text = fmt.Sprintf("%s on %s: last %.2f, bid %.2f, ask %.2f.",
		symbol, venue.Name(), ticker.Last, ticker.Bid, ticker.Ask)
}

func (e *Engine) handleAlertRequest(
	ctx context.Context,
	userID uint,
	text string,
	entities model.ExtractedEntities,
	reply *model.CommandReply,
) {
	// "alert me when BTC goes above 70000" has no price marker, so the
	// trigger may land in Amount instead of Price.
	target := entities.Price
	if target == nil {
		target = entities.Amount
	}

	if entities.Symbol == "" || target == nil {
		reply.Text = "Tell me the symbol and the trigger price, e.g. \"alert me when BTC goes above 70000\"."
		return
	}

	alert := &model.Alert{
		UserID:      userID,
		Symbol:      entities.Symbol,
		TargetPrice: *target,
		Direction:   alertDirection(text),
		Status:      model.AlertStatusActive,
	}

	if err := e.deps.Alerts.Create(ctx, alert); err != nil {
		reply.Text = "Could not save the alert, please try again."
		return
	}

	reply.Text = fmt.Sprintf("Alert set: %s %s %.2f.", alert.Symbol, alert.Direction, alert.TargetPrice)
}

// Confirm resolves a pending trade. A confirm decision executes it; a cancel
// decision discards it. Confirming the same session twice, or after expiry,
// fails with session.ErrSessionExpired.
func (e *Engine) Confirm(ctx context.Context, userID uint, sessionID, decision string) (model.OrderResult, error) {
	sess, release, err := e.deps.Sessions.Acquire(userID)
	if err != nil {
		return model.OrderResult{}, err
	}
	defer release()

	if decision == model.DecisionCancel {
		if err := e.deps.Sessions.CancelPending(sess, sessionID); err != nil {
			return model.OrderResult{}, err
		}
		e.persistSession(ctx, sess)
		return model.OrderResult{Success: false, Error: "cancelled by user"}, nil
	}

	req, assessment, err := e.deps.Sessions.BeginExecute(sess, sessionID)
	if err != nil {
		return model.OrderResult{}, err
	}

	result := e.execute(ctx, req, assessment)

	e.deps.Sessions.Resolve(sess)
	e.persistSession(ctx, sess)

	return result, nil
}

// execute submits the confirmed request. The venue call is a single attempt;
// a timeout leaves the order pending and flagged for reconciliation instead
// of retrying.
func (e *Engine) execute(ctx context.Context, req model.TradeRequest, assessment model.RiskAssessment) model.OrderResult {
	if e.now().Sub(assessment.AssessedAt) > e.cfg.AssessmentFreshness {
		logger.WithField("user_id", req.UserID).Info("Assessment stale, re-checking before execution")

		_, ticker, err := e.priceFor(ctx, req.Symbol, req.VenuePreference)
		if err != nil {
			return model.OrderResult{Success: false, Error: fmt.Sprintf("could not re-price %s: %v", req.Symbol, err)}
		}

		assessment = risk.Assess(req, entryFromTicker(ticker, req), e.deps.Ledger.Snapshot(req.UserID), e.deps.Limits)
		if !assessment.IsValid {
			return model.OrderResult{Success: false, Error: fmt.Sprintf("conditions changed: %s", assessment.Reason)}
		}
	}

	venue, err := e.deps.Router.SelectVenue(ctx, req.Symbol, req.VenuePreference)
	if err != nil {
		return model.OrderResult{Success: false, Error: err.Error()}
	}

	order := &model.Order{
		UserID:          req.UserID,
		ClientID:        uuid.NewString(),
		Venue:           venue.Name(),
		Symbol:          req.Symbol,
		Side:            req.Side,
		OrderType:       req.OrderType,
		RequestedAmount: assessment.PositionSize,
		Price:           req.LimitPrice,
		Status:          model.OrderStatusPending,
		Role:            model.OrderRolePrimary,
	}

	if err := e.deps.Orders.CreateWithAutoLog(ctx, order); err != nil {
		return model.OrderResult{Success: false, Error: "could not record order"}
	}

	ack, err := venue.CreateOrder(ctx, connectors.OrderSubmission{
		ClientID:  order.ClientID,
		Symbol:    req.Symbol,
		Side:      req.Side,
		OrderType: req.OrderType,
		Amount:    assessment.PositionSize,
		Price:     req.LimitPrice,
	})

	if err != nil {
		e.recordException(ctx, venue.Name(), "CreateOrder", err)

		if errors.Is(err, context.DeadlineExceeded) {
			// Fate unknown: keep the order pending and let the monitor
			// reconcile it. Never resubmit.
			if rerr := e.deps.Orders.SetNeedsReconcile(ctx, order.ID); rerr != nil {
				logger.WithError(rerr).WithField("order_id", order.ID).
					Error("Failed to flag timed-out order")
			}
			return model.OrderResult{
				Success:   false,
				OrderID:   order.ID,
				VenueUsed: venue.Name(),
				Error:     "submission timed out; the order will be reconciled against the venue",
			}
		}

		if uerr := e.deps.Orders.UpdateStatusWithAutoLog(ctx, order.ID, model.OrderStatusFailed, err.Error()); uerr != nil {
			logger.WithError(uerr).WithField("order_id", order.ID).
				Error("Failed to mark order failed")
		}
		return model.OrderResult{
			Success:   false,
			OrderID:   order.ID,
			VenueUsed: venue.Name(),
			Error:     fmt.Sprintf("venue rejected the order: %v", err),
		}
	}

	result := model.OrderResult{
		Success:        true,
		OrderID:        order.ID,
		VenueUsed:      venue.Name(),
		ExecutedPrice:  ack.AveragePrice,
		ExecutedAmount: ack.FilledAmount,
	}

	if err := e.deps.Orders.UpdateFill(ctx, order.ID, ack.ExternalID, ack.FilledAmount, ack.AveragePrice, ack.Fee); err != nil {
		result.Warnings = append(result.Warnings, "order executed but fill details were not recorded")
	}
	if ack.Status != model.OrderStatusPending && order.CanTransition(ack.Status) {
		if err := e.deps.Orders.UpdateStatusWithAutoLog(ctx, order.ID, ack.Status, "venue acknowledgement"); err != nil {
			result.Warnings = append(result.Warnings, "order executed but status update failed")
		}
	}

	if ack.FilledAmount > 0 {
		e.applyFill(ctx, req.UserID, order, ack, assessment, &result)
	}

	e.createProtectiveOrders(ctx, order, assessment, &result)

	return result
}

// applyFill pushes the executed quantity into the ledger and persists the
// resulting position and portfolio. Persistence problems downgrade to
// warnings: the venue execution already happened.
func (e *Engine) applyFill(
	ctx context.Context,
	userID uint,
	order *model.Order,
	ack *connectors.OrderAck,
	assessment model.RiskAssessment,
	result *model.OrderResult,
) {
	position, portfolio, err := e.deps.Ledger.ApplyFill(userID, ledger.Fill{
		Symbol:          order.Symbol,
		Venue:           order.Venue,
		Side:            order.Side,
		Quantity:        ack.FilledAmount,
		Price:           ack.AveragePrice,
		Fee:             ack.Fee,
		StopLossPrice:   assessment.StopLossPrice,
		TakeProfitPrice: assessment.TakeProfitPrice,
	})
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("ledger rejected fill: %v", err))
		return
	}

	if err := e.deps.Positions.Upsert(ctx, &position); err != nil {
		result.Warnings = append(result.Warnings, "position was not persisted")
	}
	if err := e.deps.Portfolios.Upsert(ctx, &portfolio); err != nil {
		result.Warnings = append(result.Warnings, "portfolio was not persisted")
	}
}

// createProtectiveOrders records the stop-loss and take-profit companions of
// a filled primary order. They live as local pending orders watched by the
// monitor; failure to create them never fails the primary execution.
func (e *Engine) createProtectiveOrders(
	ctx context.Context,
	primary *model.Order,
	assessment model.RiskAssessment,
	result *model.OrderResult,
) {
	exitSide := model.SideSell
	if primary.Side == model.SideSell {
		exitSide = model.SideBuy
	}

	protect := func(role string, price *float64) {
		if price == nil {
			return
		}
		order := &model.Order{
			UserID:          primary.UserID,
			ClientID:        uuid.NewString(),
			Venue:           primary.Venue,
			Symbol:          primary.Symbol,
			Side:            exitSide,
			OrderType:       model.OrderTypeStop,
			RequestedAmount: primary.RequestedAmount,
			Price:           price,
			Status:          model.OrderStatusPending,
			Role:            role,
			LinkedOrderID:   &primary.ID,
		}
		if err := e.deps.Orders.CreateWithAutoLog(ctx, order); err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("trade executed but %s order could not be created", role))
		}
	}

	protect(model.OrderRoleStopLoss, assessment.StopLossPrice)
	protect(model.OrderRoleTakeProfit, assessment.TakeProfitPrice)
}

// CancelOrder cancels a non-terminal order, at the venue when it has an
// external id, then locally.
func (e *Engine) CancelOrder(ctx context.Context, userID, orderID uint) error {
	order, err := e.deps.Orders.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil || order.UserID != userID {
		return ErrOrderNotFound
	}
	if order.IsTerminal() {
		return ErrOrderNotCancelable
	}

	if order.ExternalID != "" {
		venue, ok := e.deps.Router.ByName(order.Venue)
		if !ok {
			return fmt.Errorf("venue %s not configured", order.Venue)
		}
		if err := venue.CancelOrder(ctx, order.ExternalID, order.Symbol); err != nil {
			return err
		}
	}

	return e.deps.Orders.UpdateStatusWithAutoLog(ctx, order.ID, model.OrderStatusCancelled, "user cancel")
}

// priceFor selects a venue for the symbol and fetches its ticker.
func (e *Engine) priceFor(ctx context.Context, symbol, preference string) (connectors.ExchangeConnector, *connectors.Ticker, error) {
	venue, err := e.deps.Router.SelectVenue(ctx, symbol, preference)
	if err != nil {
		return nil, nil, err
	}

	ticker, err := venue.FetchTicker(ctx, symbol)
	if err != nil {
		return nil, nil, err
	}

	return venue, ticker, nil
}

// recordException writes a failure to the audit store when one is configured.
func (e *Engine) recordException(ctx context.Context, module, method string, cause error) {
	if e.deps.Exceptions == nil {
		return
	}

	exc := &model.Exception{
		Service: "trade_engine",
		Module:  module,
		Method:  method,
		Message: cause.Error(),
		Level:   "error",
	}
	if err := e.deps.Exceptions.Create(ctx, exc); err != nil {
		logger.WithError(err).Warn("Failed to persist exception")
	}
}

func (e *Engine) persistSession(ctx context.Context, sess *session.Session) {
	if e.deps.Snapshots == nil {
		return
	}

	snapshot := e.deps.Sessions.Snapshot(sess)
	if err := e.deps.Snapshots.Save(ctx, &snapshot); err != nil {
		logger.WithError(err).WithField("user_id", snapshot.UserID).
			Warn("Failed to persist session snapshot")
	}
}

// entryFromTicker picks the execution-relevant price: the limit price for
// limit orders, otherwise the side of the book a market order would cross.
func entryFromTicker(ticker *connectors.Ticker, req model.TradeRequest) float64 {
	if req.OrderType == model.OrderTypeLimit && req.LimitPrice != nil {
		return *req.LimitPrice
	}
	if req.Side == model.SideBuy && ticker.Ask > 0 {
		return ticker.Ask
	}
	if req.Side == model.SideSell && ticker.Bid > 0 {
		return ticker.Bid
	}
	return ticker.Last
}

func alertDirection(text string) string {
	lower := strings.ToLower(text)
	for _, word := range []string{"below", "under", "drops", "falls"} {
		if strings.Contains(lower, word) {
			return model.AlertDirectionBelow
		}
	}
	return model.AlertDirectionAbove
}
