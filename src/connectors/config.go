package connectors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Venue is the goex exchange name the live connector binds to.
	Venue     string `envconfig:"VENUE_NAME" default:"binance"`
	APIKey    string `envconfig:"VENUE_API_KEY" default:""`
	APISecret string `envconfig:"VENUE_API_SECRET" default:""`

	// Symbols the venue is considered to list, comma separated.
	Symbols []string `envconfig:"VENUE_SYMBOLS" default:"BTC/USDT,ETH/USDT,SOL/USDT"`

	HTTPTimeout time.Duration `envconfig:"VENUE_HTTP_TIMEOUT" default:"15s"`

	// SubmitTimeout is the hard deadline for a single order submission.
	SubmitTimeout time.Duration `envconfig:"VENUE_SUBMIT_TIMEOUT" default:"10s"`

	// TickerStreamURL enables the websocket quote feed when set.
	TickerStreamURL string `envconfig:"VENUE_TICKER_STREAM_URL" default:""`

	// PaperQuoteBalance is the starting quote-currency balance of the paper
	// venue.
	PaperQuoteBalance float64 `envconfig:"PAPER_QUOTE_BALANCE" default:"100000"`
	PaperFeeRate      float64 `envconfig:"PAPER_FEE_RATE" default:"0.001"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
