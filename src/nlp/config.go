package nlp

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// DefaultPair is used when a trade_request carries no resolvable symbol.
	DefaultPair string `envconfig:"NLP_DEFAULT_PAIR" default:"BTC/USDT"`

	// ConfidenceThreshold gates the remote classifier; anything below it
	// falls back to the rule-based path.
	ConfidenceThreshold float64 `envconfig:"NLP_CONFIDENCE_THRESHOLD" default:"0.5"`

	// ClassifierURL is the zero-shot classification endpoint. Empty disables
	// the remote path entirely.
	ClassifierURL     string        `envconfig:"NLP_CLASSIFIER_URL" default:""`
	ClassifierToken   string        `envconfig:"NLP_CLASSIFIER_TOKEN" default:""`
	ClassifierTimeout time.Duration `envconfig:"NLP_CLASSIFIER_TIMEOUT" default:"5s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
