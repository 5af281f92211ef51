package risk

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Limits are the portfolio-level risk parameters. All percentages are
// expressed as whole numbers (2.0 means 2%).
type Limits struct {
	RiskPercentage        float64 `envconfig:"RISK_PERCENTAGE" default:"2.0"`
	MaxPositionPercentage float64 `envconfig:"RISK_MAX_POSITION_PERCENTAGE" default:"10.0"`
	MaxPortfolioRisk      float64 `envconfig:"RISK_MAX_PORTFOLIO_RISK" default:"10.0"`
	RiskRewardRatio       float64 `envconfig:"RISK_REWARD_RATIO" default:"2.0"`

	// DefaultStopLossPct is the assumed price risk when a request carries no
	// stop-loss, and the width of the default percentage stop.
	DefaultStopLossPct float64 `envconfig:"RISK_DEFAULT_STOP_LOSS_PCT" default:"2.0"`

	ATRMultiplier float64 `envconfig:"RISK_ATR_MULTIPLIER" default:"2.0"`
}

func GetLimits() Limits {
	var limits Limits
	if err := envconfig.Process("", &limits); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return limits
}
