package nlp

import (
	"context"
	"strings"

	"tradepilot/src/model"
)

// Classifier turns raw text into an intent kind with a confidence score.
// Implementations must never mutate shared state; the interpreter calls them
// concurrently for different users.
type Classifier interface {
	Classify(ctx context.Context, text string) (model.IntentKind, float64, error)
}

// ruleConfidence is what a keyword hit is worth. It sits above any sane
// fallback threshold so rule hits are always accepted.
const ruleConfidence = 0.9

// RuleClassifier is the deterministic keyword classifier. It doubles as the
// fallback when the remote classifier is unavailable, slow, or unsure.
type RuleClassifier struct{}

func (RuleClassifier) Classify(_ context.Context, text string) (model.IntentKind, float64, error) {
	lower := strings.ToLower(text)

	contains := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(lower, w) {
				return true
			}
		}
		return false
	}

	// cancel must win over trade: "cancel my order" mentions "order" too
	switch {
	case contains("cancel", "abort", "never mind", "nevermind"):
		return model.IntentCancelRequest, ruleConfidence, nil
	case contains("buy", "sell", "trade", "execute", "order", "long", "short"):
		return model.IntentTradeRequest, ruleConfidence, nil
	case contains("portfolio", "balance", "holdings", "positions"):
		return model.IntentPortfolioQuery, ruleConfidence, nil
	case contains("alert", "notify", "watch", "monitor"):
		return model.IntentAlertRequest, ruleConfidence, nil
	case contains("price", "chart", "volume", "market", "quote"):
		return model.IntentPriceQuery, ruleConfidence, nil
	}

	return model.IntentUnknown, 0, nil
}
