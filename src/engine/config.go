package engine

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// AssessmentFreshness bounds how old a confirmed assessment may be before
	// the engine re-prices and re-checks it.
	AssessmentFreshness time.Duration `envconfig:"ENGINE_ASSESSMENT_FRESHNESS" default:"30s"`

	// StartingCash seeds a user's ledger account on first contact.
	StartingCash float64 `envconfig:"LEDGER_STARTING_CASH" default:"10000"`

	MonitorInterval time.Duration `envconfig:"ENGINE_MONITOR_INTERVAL" default:"15s"`

	// ReconcileGrace is how long an acked-but-unconfirmed submission may stay
	// without an external id before it is written off as failed.
	ReconcileGrace time.Duration `envconfig:"ENGINE_RECONCILE_GRACE" default:"5m"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
