package session

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// TTL is the inactivity window after which any session state falls back
	// to idle, discarding whatever was pending.
	TTL time.Duration `envconfig:"SESSION_TTL" default:"10m"`

	// SweepInterval drives the optional background sweep that frees memory
	// held by long-idle users. Expiry itself is checked lazily on access.
	SweepInterval time.Duration `envconfig:"SESSION_SWEEP_INTERVAL" default:"1m"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
