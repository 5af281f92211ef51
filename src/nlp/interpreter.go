package nlp

import (
	"context"
	"strings"

	logger "github.com/sirupsen/logrus"

	"tradepilot/src/model"
)

// Interpreter converts raw text into a classified intent plus extracted
// entities. It is a pure function over text and static config: no side
// effects, and it never fails — malformed text comes back as an unknown
// intent with confidence zero.
type Interpreter struct {
	remote    Classifier
	rules     RuleClassifier
	threshold float64
	pair      string
}

// NewInterpreter builds an interpreter from config. The remote classifier is
// optional; without a classifier URL every message takes the rule-based path.
func NewInterpreter(cfg Config) *Interpreter {
	i := &Interpreter{
		threshold: cfg.ConfidenceThreshold,
		pair:      cfg.DefaultPair,
	}

	if cfg.ClassifierURL != "" {
		i.remote = NewRemoteClassifier(cfg.ClassifierURL, cfg.ClassifierToken, cfg.ClassifierTimeout)
	}

	return i
}

// WithClassifier overrides the remote classifier. Used by tests and by
// callers that bring their own model client.
func (i *Interpreter) WithClassifier(c Classifier) *Interpreter {
	i.remote = c
	return i
}

// Interpret classifies text and extracts entities. The remote classifier is
// consulted first when configured; on error, timeout, or a score below the
// configured threshold the deterministic rule classifier decides instead.
func (i *Interpreter) Interpret(ctx context.Context, text string, userID uint) (model.TradeIntent, model.ExtractedEntities) {
	intent := model.TradeIntent{Kind: model.IntentUnknown, RawText: text}

	if strings.TrimSpace(text) == "" {
		return intent, model.ExtractedEntities{}
	}

	kind, confidence := i.classify(ctx, text, userID)
	intent.Kind = kind
	intent.Confidence = confidence

	entities := ExtractEntities(text)
	if entities.Symbol == "" && kind == model.IntentTradeRequest {
		entities.Symbol = i.pair
	}

	return intent, entities
}

func (i *Interpreter) classify(ctx context.Context, text string, userID uint) (model.IntentKind, float64) {
	if i.remote != nil {
		kind, score, err := i.remote.Classify(ctx, text)
		if err == nil && score >= i.threshold {
			return kind, score
		}

		if err != nil {
			logger.WithError(err).WithField("user_id", userID).
				Warn("Remote classifier unavailable, falling back to rules")
		} else {
			logger.WithFields(logger.Fields{
				"user_id": userID,
				"score":   score,
			}).Debug("Remote classification below threshold, falling back to rules")
		}
	}

	kind, score, _ := i.rules.Classify(ctx, text)
	return kind, score
}
