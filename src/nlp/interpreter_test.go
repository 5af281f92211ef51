package nlp

import (
	"context"
	"errors"
	"testing"

	"tradepilot/src/model"
)

func testConfig() Config {
	return Config{
		DefaultPair:         "BTC/USDT",
		ConfidenceThreshold: 0.5,
	}
}

func TestInterpretTradeRequest(t *testing.T) {
	interpreter := NewInterpreter(testConfig())

	intent, entities := interpreter.Interpret(context.Background(), "buy 0.1 BTC at market", 1)

	if intent.Kind != model.IntentTradeRequest {
		t.Fatalf("expected trade_request, got %s", intent.Kind)
	}
	if intent.Confidence < 0.5 {
		t.Fatalf("expected accepted confidence, got %f", intent.Confidence)
	}
	if entities.Symbol != "BTC/USDT" {
		t.Fatalf("expected BTC/USDT, got %q", entities.Symbol)
	}
	if entities.Amount == nil || *entities.Amount != 0.1 {
		t.Fatalf("expected amount 0.1, got %+v", entities.Amount)
	}
	if entities.OrderType != model.OrderTypeMarket {
		t.Fatalf("expected market order, got %q", entities.OrderType)
	}
	if entities.Side != model.SideBuy {
		t.Fatalf("expected buy side, got %q", entities.Side)
	}
}

func TestInterpretIntentClassification(t *testing.T) {
	interpreter := NewInterpreter(testConfig())

	tests := []struct {
		name string
		text string
		want model.IntentKind
	}{
		{"limit sell", "sell 2 ETH limit at 3500", model.IntentTradeRequest},
		{"portfolio", "show me my portfolio", model.IntentPortfolioQuery},
		{"price", "what's the price of bitcoin", model.IntentPriceQuery},
		{"alert", "alert me when BTC goes above 70000", model.IntentAlertRequest},
		{"cancel wins over trade", "cancel my order", model.IntentCancelRequest},
		{"gibberish", "qwerty asdf", model.IntentUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent, _ := interpreter.Interpret(context.Background(), tt.text, 1)
			if intent.Kind != tt.want {
				t.Fatalf("text %q: expected %s, got %s", tt.text, tt.want, intent.Kind)
			}
		})
	}
}

func TestInterpretEmptyText(t *testing.T) {
	interpreter := NewInterpreter(testConfig())

	intent, entities := interpreter.Interpret(context.Background(), "   ", 1)

	if intent.Kind != model.IntentUnknown || intent.Confidence != 0 {
		t.Fatalf("expected unknown intent with zero confidence, got %s/%f", intent.Kind, intent.Confidence)
	}
	if entities.Symbol != "" {
		t.Fatalf("expected no entities, got %+v", entities)
	}
}

func TestInterpretDefaultsSymbolForTrades(t *testing.T) {
	interpreter := NewInterpreter(testConfig())

	_, entities := interpreter.Interpret(context.Background(), "buy 1 at market", 1)

	if entities.Symbol != "BTC/USDT" {
		t.Fatalf("expected default pair, got %q", entities.Symbol)
	}
}

type stubClassifier struct {
	kind  model.IntentKind
	score float64
	err   error
	calls int
}

func (s *stubClassifier) Classify(_ context.Context, _ string) (model.IntentKind, float64, error) {
	s.calls++
	return s.kind, s.score, s.err
}

func TestInterpretRemoteClassifierPreferred(t *testing.T) {
	stub := &stubClassifier{kind: model.IntentPortfolioQuery, score: 0.8}
	interpreter := NewInterpreter(testConfig()).WithClassifier(stub)

	intent, _ := interpreter.Interpret(context.Background(), "buy 1 BTC", 1)

	if stub.calls != 1 {
		t.Fatalf("expected remote classifier to be called once, got %d", stub.calls)
	}
	if intent.Kind != model.IntentPortfolioQuery {
		t.Fatalf("expected remote verdict to win, got %s", intent.Kind)
	}
	if intent.Confidence != 0.8 {
		t.Fatalf("expected remote confidence, got %f", intent.Confidence)
	}
}

func TestInterpretFallsBackToRules(t *testing.T) {
	tests := []struct {
		name string
		stub *stubClassifier
	}{
		{"remote error", &stubClassifier{err: errors.New("boom")}},
		{"below threshold", &stubClassifier{kind: model.IntentPriceQuery, score: 0.2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			interpreter := NewInterpreter(testConfig()).WithClassifier(tt.stub)

			intent, _ := interpreter.Interpret(context.Background(), "buy 1 BTC", 1)

			if intent.Kind != model.IntentTradeRequest {
				t.Fatalf("expected rule fallback to trade_request, got %s", intent.Kind)
			}
		})
	}
}
