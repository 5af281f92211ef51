package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"tradepilot/src/connectors"
	"tradepilot/src/ledger"
	"tradepilot/src/model"
	"tradepilot/src/nlp"
	"tradepilot/src/risk"
	"tradepilot/src/router"
	"tradepilot/src/session"
)

// ----- in-memory stores -----

type memOrders struct {
	mu     sync.Mutex
	nextID uint
	orders map[uint]*model.Order
	logs   []model.OrderLog
}

func newMemOrders() *memOrders {
	return &memOrders{orders: make(map[uint]*model.Order)}
}

func (s *memOrders) CreateWithAutoLog(_ context.Context, order *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	order.ID = s.nextID
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}

	copied := *order
	s.orders[order.ID] = &copied
	s.logs = append(s.logs, model.OrderLog{OrderID: order.ID, Status: order.Status})
	return nil
}

func (s *memOrders) UpdateStatusWithAutoLog(_ context.Context, orderID uint, newStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("order %d not found", orderID)
	}
	if !order.CanTransition(newStatus) {
		return model.ErrInvalidTransition(order.Status, newStatus)
	}

	order.Status = newStatus
	order.NeedsReconcile = false
	if newStatus == model.OrderStatusFilled {
		now := time.Now()
		order.ExecutedAt = &now
	}
	s.logs = append(s.logs, model.OrderLog{OrderID: orderID, Status: newStatus, Reason: reason})
	return nil
}

func (s *memOrders) UpdateFill(_ context.Context, orderID uint, externalID string, filledAmount, averagePrice, fees float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("order %d not found", orderID)
	}
	order.ExternalID = externalID
	order.FilledAmount = filledAmount
	order.AveragePrice = averagePrice
	order.Fees = fees
	return nil
}

func (s *memOrders) SetNeedsReconcile(_ context.Context, orderID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("order %d not found", orderID)
	}
	order.NeedsReconcile = true
	return nil
}

func (s *memOrders) FindByID(_ context.Context, id uint) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	copied := *order
	return &copied, nil
}

func (s *memOrders) FindNeedingReconcile(context.Context) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Order
	for _, order := range s.orders {
		if order.NeedsReconcile && !order.IsTerminal() {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (s *memOrders) FindOpenProtective(context.Context) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Order
	for _, order := range s.orders {
		if (order.Role == model.OrderRoleStopLoss || order.Role == model.OrderRoleTakeProfit) && !order.IsTerminal() {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (s *memOrders) byRole(role string) []model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Order
	for _, order := range s.orders {
		if order.Role == role {
			out = append(out, *order)
		}
	}
	return out
}

func (s *memOrders) get(t *testing.T, id uint) model.Order {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		t.Fatalf("order %d not in store", id)
	}
	return *order
}

type memPositions struct {
	mu   sync.Mutex
	last *model.Position
}

func (s *memPositions) Upsert(_ context.Context, position *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *position
	s.last = &copied
	return nil
}

type memPortfolios struct {
	mu   sync.Mutex
	last *model.Portfolio
}

func (s *memPortfolios) Upsert(_ context.Context, portfolio *model.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *portfolio
	s.last = &copied
	return nil
}

type memAlerts struct {
	mu     sync.Mutex
	nextID uint
	alerts map[uint]*model.Alert
}

func newMemAlerts() *memAlerts {
	return &memAlerts{alerts: make(map[uint]*model.Alert)}
}

func (s *memAlerts) Create(_ context.Context, alert *model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	alert.ID = s.nextID
	copied := *alert
	s.alerts[alert.ID] = &copied
	return nil
}

func (s *memAlerts) FindActive(context.Context) ([]model.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Alert
	for _, alert := range s.alerts {
		if alert.Status == model.AlertStatusActive {
			out = append(out, *alert)
		}
	}
	return out, nil
}

func (s *memAlerts) MarkTriggered(_ context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.alerts[id]
	if !ok || alert.Status != model.AlertStatusActive {
		return fmt.Errorf("alert %d not active", id)
	}
	alert.Status = model.AlertStatusTriggered
	now := time.Now()
	alert.TriggeredAt = &now
	return nil
}

// ----- fixture -----

type fixture struct {
	engine     *Engine
	paper      *connectors.PaperConnector
	orders     *memOrders
	positions  *memPositions
	portfolios *memPortfolios
	alerts     *memAlerts
	ledger     *ledger.Ledger
	limits     risk.Limits
}

func newFixture() *fixture {
	paper := connectors.NewPaperConnector("paper", []string{"BTC/USDT"}, 1e6, 0)
	paper.SetQuote("BTC/USDT", 44990, 45010, 1e6)

	f := &fixture{
		paper:      paper,
		orders:     newMemOrders(),
		positions:  &memPositions{},
		portfolios: &memPortfolios{},
		alerts:     newMemAlerts(),
		ledger:     ledger.New(10000),
		limits: risk.Limits{
			RiskPercentage:        2,
			MaxPositionPercentage: 90,
			MaxPortfolioRisk:      10,
			RiskRewardRatio:       2,
			DefaultStopLossPct:    2,
			ATRMultiplier:         2,
		},
	}

	f.engine = New(
		Config{
			AssessmentFreshness: 30 * time.Second,
			StartingCash:        10000,
			MonitorInterval:     time.Minute,
			ReconcileGrace:      5 * time.Minute,
		},
		Deps{
			Interpreter: nlp.NewInterpreter(nlp.Config{DefaultPair: "BTC/USDT", ConfidenceThreshold: 0.5}),
			Router:      router.New(paper),
			Sessions:    session.NewStore(session.Config{TTL: 10 * time.Minute}),
			Ledger:      f.ledger,
			Limits:      f.limits,
			Orders:      f.orders,
			Positions:   f.positions,
			Portfolios:  f.portfolios,
			Alerts:      f.alerts,
		},
	)

	return f
}

func ptrFloat(v float64) *float64 { return &v }

// ----- tests -----

func TestTradeLifecycle(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	reply, err := f.engine.HandleCommand(ctx, 1, "buy 0.1 BTC at market")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Intent.Kind != model.IntentTradeRequest {
		t.Fatalf("expected trade_request intent, got %s", reply.Intent.Kind)
	}
	if reply.Assessment == nil || !reply.Assessment.IsValid {
		t.Fatalf("expected a valid assessment, got %+v", reply.Assessment)
	}
	if reply.SessionID == "" {
		t.Fatal("a valid trade request must park a session to confirm")
	}
	if !strings.Contains(reply.Text, "Confirm?") {
		t.Fatalf("unexpected reply text %q", reply.Text)
	}

	result, err := f.engine.Confirm(ctx, 1, reply.SessionID, model.DecisionConfirm)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected execution to succeed: %+v", result)
	}
	if result.VenueUsed != "paper" {
		t.Fatalf("expected paper venue, got %s", result.VenueUsed)
	}
	if result.ExecutedAmount != 0.1 || result.ExecutedPrice != 45010 {
		t.Fatalf("unexpected execution: %+v", result)
	}

	order := f.orders.get(t, result.OrderID)
	if order.Status != model.OrderStatusFilled {
		t.Fatalf("expected order filled, got %s", order.Status)
	}
	if order.Role != model.OrderRolePrimary || !strings.HasPrefix(order.ExternalID, "paper-") {
		t.Fatalf("unexpected order record %+v", order)
	}

	portfolio := f.ledger.Snapshot(1)
	wantCash := 10000 - 0.1*45010
	if portfolio.CashBalance != wantCash {
		t.Fatalf("expected cash %.2f, got %.2f", wantCash, portfolio.CashBalance)
	}
	if len(portfolio.Positions) != 1 || portfolio.Positions[0].Quantity != 0.1 {
		t.Fatalf("expected a 0.1 BTC position, got %+v", portfolio.Positions)
	}
	if f.positions.last == nil || f.portfolios.last == nil {
		t.Fatal("position and portfolio should have been persisted")
	}

	// confirming the same session again must not double-execute
	if _, err := f.engine.Confirm(ctx, 1, reply.SessionID, model.DecisionConfirm); !errors.Is(err, session.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired on repeat confirm, got %v", err)
	}
}

func TestConfirmCancelDecision(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	reply, err := f.engine.HandleCommand(ctx, 1, "buy 0.1 BTC at market")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := f.engine.Confirm(ctx, 1, reply.SessionID, model.DecisionCancel)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success || result.Error != "cancelled by user" {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(f.orders.byRole(model.OrderRolePrimary)) != 0 {
		t.Fatal("a cancelled confirmation must not create orders")
	}
}

func TestConfirmUnknownSession(t *testing.T) {
	f := newFixture()

	if _, err := f.engine.Confirm(context.Background(), 1, "no-such-session", model.DecisionConfirm); !errors.Is(err, session.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestHandleCommandRejectsOversizedTrade(t *testing.T) {
	f := newFixture()

	reply, err := f.engine.HandleCommand(context.Background(), 1, "buy 100 BTC at market")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Assessment == nil || reply.Assessment.IsValid {
		t.Fatalf("expected a rejected assessment, got %+v", reply.Assessment)
	}
	if reply.SessionID != "" {
		t.Fatal("rejected trades must not await confirmation")
	}
	if !strings.HasPrefix(reply.Text, "Trade rejected:") {
		t.Fatalf("unexpected reply text %q", reply.Text)
	}
}

func TestStaleAssessmentRecheckedBeforeExecution(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	reply, err := f.engine.HandleCommand(ctx, 1, "buy 0.1 BTC at market")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.SessionID == "" {
		t.Fatalf("expected awaiting session, got %q", reply.Text)
	}

	// age the assessment past the freshness window and move the market so the
	// re-check fails the position limit
	f.engine.WithClock(func() time.Time { return time.Now().Add(time.Minute) })
	f.paper.SetQuote("BTC/USDT", 89990, 90010, 1e6)

	result, err := f.engine.Confirm(ctx, 1, reply.SessionID, model.DecisionConfirm)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("expected a stale assessment to be rejected on re-check")
	}
	if !strings.HasPrefix(result.Error, "conditions changed:") {
		t.Fatalf("unexpected error %q", result.Error)
	}
	if len(f.orders.byRole(model.OrderRolePrimary)) != 0 {
		t.Fatal("no order should be submitted after a failed re-check")
	}
}

func TestExecuteCreatesProtectiveOrders(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	req := model.TradeRequest{
		UserID:    1,
		Symbol:    "BTC/USDT",
		Side:      model.SideBuy,
		OrderType: model.OrderTypeMarket,
		Amount:    0.1,
		StopLoss:  ptrFloat(44000),
	}
	assessment := risk.Assess(req, 45010, f.ledger.Snapshot(1), f.limits)
	if !assessment.IsValid {
		t.Fatalf("fixture assessment should pass: %s", assessment.Reason)
	}

	result := f.engine.execute(ctx, req, assessment)
	if !result.Success {
		t.Fatalf("expected execution to succeed: %+v", result)
	}

	stops := f.orders.byRole(model.OrderRoleStopLoss)
	takes := f.orders.byRole(model.OrderRoleTakeProfit)
	if len(stops) != 1 || len(takes) != 1 {
		t.Fatalf("expected one stop and one take-profit order, got %d/%d", len(stops), len(takes))
	}

	stop, take := stops[0], takes[0]
	if stop.Side != model.SideSell || take.Side != model.SideSell {
		t.Fatal("protective orders for a long must exit with a sell")
	}
	if stop.Status != model.OrderStatusPending || stop.ExternalID != "" {
		t.Fatalf("protective orders are local until triggered, got %+v", stop)
	}
	if stop.LinkedOrderID == nil || *stop.LinkedOrderID != result.OrderID {
		t.Fatal("stop order must link back to the primary")
	}
	if stop.Price == nil || *stop.Price != 44000 {
		t.Fatalf("unexpected stop price %v", stop.Price)
	}
	// take profit mirrors the stop distance at the 2:1 reward ratio
	if take.Price == nil || *take.Price != 45010+2*(45010-44000) {
		t.Fatalf("unexpected take-profit price %v", take.Price)
	}

	portfolio := f.ledger.Snapshot(1)
	if len(portfolio.Positions) != 1 || portfolio.Positions[0].StopLossPrice == nil {
		t.Fatalf("position should carry the stop, got %+v", portfolio.Positions)
	}
}

// timeoutVenue simulates a venue where the submission times out with unknown
// fate.
type timeoutVenue struct {
	*connectors.PaperConnector
}

func (v *timeoutVenue) CreateOrder(context.Context, connectors.OrderSubmission) (*connectors.OrderAck, error) {
	return nil, fmt.Errorf("create order: %w", context.DeadlineExceeded)
}

func TestExecuteSubmissionTimeoutFlagsReconcile(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	slow := &timeoutVenue{PaperConnector: f.paper}
	f.engine.deps.Router = router.New(slow)

	req := model.TradeRequest{
		UserID:    1,
		Symbol:    "BTC/USDT",
		Side:      model.SideBuy,
		OrderType: model.OrderTypeMarket,
		Amount:    0.1,
	}
	assessment := risk.Assess(req, 45010, f.ledger.Snapshot(1), f.limits)

	result := f.engine.execute(ctx, req, assessment)
	if result.Success {
		t.Fatal("a timed-out submission must not report success")
	}
	if !strings.Contains(result.Error, "reconciled") {
		t.Fatalf("unexpected error %q", result.Error)
	}

	order := f.orders.get(t, result.OrderID)
	if order.Status != model.OrderStatusPending || !order.NeedsReconcile {
		t.Fatalf("timed-out order must stay pending and flagged, got %+v", order)
	}

	// fate unknown: the ledger must not move
	if portfolio := f.ledger.Snapshot(1); portfolio.CashBalance != 10000 {
		t.Fatalf("cash must be untouched, got %.2f", portfolio.CashBalance)
	}
}

func TestHandleCommandAlertRequest(t *testing.T) {
	f := newFixture()

	reply, err := f.engine.HandleCommand(context.Background(), 1, "alert me when BTC drops below 40000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Intent.Kind != model.IntentAlertRequest {
		t.Fatalf("expected alert_request intent, got %s", reply.Intent.Kind)
	}

	active, err := f.alerts.FindActive(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected one active alert, got %d", len(active))
	}
	alert := active[0]
	if alert.Symbol != "BTC/USDT" || alert.TargetPrice != 40000 || alert.Direction != model.AlertDirectionBelow {
		t.Fatalf("unexpected alert %+v", alert)
	}
}

func TestCancelOrder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	req := model.TradeRequest{
		UserID:    1,
		Symbol:    "BTC/USDT",
		Side:      model.SideBuy,
		OrderType: model.OrderTypeMarket,
		Amount:    0.1,
		StopLoss:  ptrFloat(44000),
	}
	assessment := risk.Assess(req, 45010, f.ledger.Snapshot(1), f.limits)
	result := f.engine.execute(ctx, req, assessment)
	if !result.Success {
		t.Fatalf("fixture trade should execute: %+v", result)
	}

	t.Run("filled order is not cancelable", func(t *testing.T) {
		if err := f.engine.CancelOrder(ctx, 1, result.OrderID); !errors.Is(err, ErrOrderNotCancelable) {
			t.Fatalf("expected ErrOrderNotCancelable, got %v", err)
		}
	})

	t.Run("other users cannot cancel", func(t *testing.T) {
		stop := f.orders.byRole(model.OrderRoleStopLoss)[0]
		if err := f.engine.CancelOrder(ctx, 2, stop.ID); !errors.Is(err, ErrOrderNotFound) {
			t.Fatalf("expected ErrOrderNotFound, got %v", err)
		}
	})

	t.Run("pending protective order cancels locally", func(t *testing.T) {
		stop := f.orders.byRole(model.OrderRoleStopLoss)[0]
		if err := f.engine.CancelOrder(ctx, 1, stop.ID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := f.orders.get(t, stop.ID); got.Status != model.OrderStatusCancelled {
			t.Fatalf("expected cancelled, got %s", got.Status)
		}
	})

	t.Run("unknown order", func(t *testing.T) {
		if err := f.engine.CancelOrder(ctx, 1, 999); !errors.Is(err, ErrOrderNotFound) {
			t.Fatalf("expected ErrOrderNotFound, got %v", err)
		}
	})
}
