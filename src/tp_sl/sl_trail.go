package tp_sl

import (
	"github.com/shopspring/decimal"

	"tradepilot/src/model"
)

type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// SideForOrder maps an order side onto the position direction the trailing
// logic reasons about.
func SideForOrder(orderSide string) Side {
	if orderSide == model.SideSell {
		return SideShort
	}
	return SideLong
}

func IsBullish(c model.Candle) bool { return c.Close.GreaterThan(c.Open) }
func IsBearish(c model.Candle) bool { return c.Close.LessThan(c.Open) }

func AvgLow(candles []model.Candle) decimal.Decimal {
	if len(candles) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, c := range candles {
		sum = sum.Add(c.Low)
	}
	return sum.Div(decimal.NewFromInt(int64(len(candles))))
}

func AvgHigh(candles []model.Candle) decimal.Decimal {
	if len(candles) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, c := range candles {
		sum = sum.Add(c.High)
	}
	return sum.Div(decimal.NewFromInt(int64(len(candles))))
}

// ComputeNextStopLoss applies trailing SL for a long or short position.
//
// Long:
// - gate: previous candle bullish
// - floor: avg(low) over lookback
// - clamp: candidate <= prev.Low
// - update: SL = max(SL, candidate)
//
// Short:
// - gate: previous candle bearish
// - ceiling: avg(high) over lookback
// - clamp: candidate >= prev.High
// - update: SL = min(SL, candidate)
func ComputeNextStopLoss(
	side Side,
	currentSL decimal.Decimal,
	candles []model.Candle,
	lookback int,
) (newSL decimal.Decimal, moved bool) {
	if len(candles) < 2 {
		return currentSL, false
	}
	if lookback <= 0 {
		lookback = 20
	}
	if lookback > len(candles) {
		lookback = len(candles)
	}

	prev := candles[len(candles)-2]
	window := candles[len(candles)-lookback:]

	switch side {
	case SideLong:
		if !IsBullish(prev) {
			return currentSL, false
		}
		floorAvg := AvgLow(window)

		candidate := floorAvg
		if candidate.GreaterThan(prev.Low) {
			candidate = prev.Low
		}

		if candidate.GreaterThan(currentSL) {
			return candidate, true
		}
		return currentSL, false

	case SideShort:
		if !IsBearish(prev) {
			return currentSL, false
		}
		ceilAvg := AvgHigh(window)

		candidate := ceilAvg
		// For shorts, do not set stop below the last bearish candle high
		if candidate.LessThan(prev.High) {
			candidate = prev.High
		}

		// Stop only moves down for shorts
		if candidate.LessThan(currentSL) {
			return candidate, true
		}
		return currentSL, false

	default:
		return currentSL, false
	}
}
