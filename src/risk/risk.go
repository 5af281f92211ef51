package risk

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tradepilot/src/model"
)

// ----- stop-loss methods -----

type StopLossMethod string

const (
	MethodPercentage        StopLossMethod = "percentage"
	MethodATR               StopLossMethod = "atr"
	MethodSupportResistance StopLossMethod = "support_resistance"
)

var (
	ErrUnknownMethod = errors.New("unknown stop-loss method")
	// ErrLevelWrongSide means a caller-supplied support/resistance level sits
	// on the profit side of the entry.
	ErrLevelWrongSide = errors.New("stop level on wrong side of entry")
)

var hundred = decimal.NewFromInt(100)

// ----- public API -----

// CalculateStopLoss derives a protective stop price for the given entry and
// side. level is only consulted for the support_resistance method, atr only
// for the atr method.
func CalculateStopLoss(
	entry decimal.Decimal,
	side string,
	method StopLossMethod,
	limits Limits,
	atr decimal.Decimal,
	level *float64,
) (decimal.Decimal, error) {
	long := side == model.SideBuy

	switch method {
	case MethodPercentage:
		pct := decimal.NewFromFloat(limits.DefaultStopLossPct).Div(hundred)
		if long {
			return entry.Mul(decimal.NewFromInt(1).Sub(pct)), nil
		}
		return entry.Mul(decimal.NewFromInt(1).Add(pct)), nil

	case MethodATR:
		dist := atr.Mul(decimal.NewFromFloat(limits.ATRMultiplier))
		if long {
			return entry.Sub(dist), nil
		}
		return entry.Add(dist), nil

	case MethodSupportResistance:
		if level == nil {
			return decimal.Zero, fmt.Errorf("support_resistance method requires a level")
		}
		lv := decimal.NewFromFloat(*level)
		if long && lv.GreaterThanOrEqual(entry) {
			return decimal.Zero, ErrLevelWrongSide
		}
		if !long && lv.LessThanOrEqual(entry) {
			return decimal.Zero, ErrLevelWrongSide
		}
		return lv, nil
	}

	return decimal.Zero, ErrUnknownMethod
}

// CalculateTakeProfit mirrors the stop distance by the configured risk:reward
// ratio. When no stop is known it falls back to targetPct of the entry.
func CalculateTakeProfit(
	entry decimal.Decimal,
	side string,
	stopLoss *decimal.Decimal,
	limits Limits,
	targetPct float64,
) decimal.Decimal {
	long := side == model.SideBuy

	if stopLoss != nil {
		reward := entry.Sub(*stopLoss).Abs().Mul(decimal.NewFromFloat(limits.RiskRewardRatio))
		if long {
			return entry.Add(reward)
		}
		return entry.Sub(reward)
	}

	pct := decimal.NewFromFloat(targetPct).Div(hundred)
	if long {
		return entry.Mul(decimal.NewFromInt(1).Add(pct))
	}
	return entry.Mul(decimal.NewFromInt(1).Sub(pct))
}

// EstimateATR computes the average true range over the candle window. With
// fewer than two candles it falls back to 2% of the entry price, which is
// what the sizing maths assume when no market data is available.
func EstimateATR(entry decimal.Decimal, candles []model.Candle) decimal.Decimal {
	if len(candles) < 2 {
		return entry.Mul(decimal.NewFromFloat(0.02))
	}

	sum := decimal.Zero
	count := 0
	for i := 1; i < len(candles); i++ {
		c, prev := candles[i], candles[i-1]
		tr := c.High.Sub(c.Low)
		if hc := c.High.Sub(prev.Close).Abs(); hc.GreaterThan(tr) {
			tr = hc
		}
		if lc := c.Low.Sub(prev.Close).Abs(); lc.GreaterThan(tr) {
			tr = lc
		}
		sum = sum.Add(tr)
		count++
	}

	return sum.Div(decimal.NewFromInt(int64(count)))
}

// Assess validates a trade request against a portfolio snapshot and the
// configured limits. Pure function of its inputs; the verdict plus all sizing
// numbers come back in one RiskAssessment, and the first failing check wins
// (capital, then position limit, then portfolio risk).
func Assess(
	req model.TradeRequest,
	entryPrice float64,
	portfolio model.Portfolio,
	limits Limits,
) model.RiskAssessment {
	assessment := model.RiskAssessment{
		EntryPrice:       entryPrice,
		AvailableBalance: portfolio.CashBalance,
		AssessedAt:       time.Now().UTC(),
	}

	if entryPrice <= 0 {
		assessment.Reason = "entry price unavailable"
		return assessment
	}

	entry := decimal.NewFromFloat(entryPrice)
	totalValue := decimal.NewFromFloat(portfolio.TotalValue)
	if totalValue.LessThanOrEqual(decimal.Zero) {
		assessment.Reason = "portfolio has no value to trade against"
		return assessment
	}

	var stop *decimal.Decimal
	if req.StopLoss != nil {
		s := decimal.NewFromFloat(*req.StopLoss)
		stop = &s
	}

	size, riskAmount := positionSize(req, entry, stop, totalValue, limits)
	if size.LessThanOrEqual(decimal.Zero) {
		assessment.Reason = "no executable quantity after risk limits"
		return assessment
	}

	positionValue := size.Mul(entry)

	assessment.PositionSize, _ = size.Float64()
	assessment.PositionValue, _ = positionValue.Float64()
	assessment.RiskAmount, _ = riskAmount.Float64()
	assessment.RiskPercentage, _ = riskAmount.Div(totalValue).Mul(hundred).Float64()
	assessment.RequiredCapital = assessment.PositionValue

	if stop != nil {
		v, _ := stop.Float64()
		assessment.StopLossPrice = &v
	}
	if req.TakeProfit != nil {
		assessment.TakeProfitPrice = req.TakeProfit
	} else if stop != nil {
		tp, _ := CalculateTakeProfit(entry, req.Side, stop, limits, 0).Float64()
		assessment.TakeProfitPrice = &tp
	}

	// checks in fixed order so failures are deterministic

	if positionValue.GreaterThan(decimal.NewFromFloat(portfolio.CashBalance)) {
		assessment.Reason = fmt.Sprintf(
			"required capital %.2f exceeds available balance %.2f",
			assessment.RequiredCapital, portfolio.CashBalance,
		)
		return assessment
	}

	maxPositionValue := totalValue.Mul(decimal.NewFromFloat(limits.MaxPositionPercentage)).Div(hundred)
	if positionValue.GreaterThan(maxPositionValue) {
		assessment.Reason = fmt.Sprintf(
			"position value %.2f exceeds %.1f%% position limit",
			assessment.PositionValue, limits.MaxPositionPercentage,
		)
		return assessment
	}

	openRisk := openPositionsRisk(portfolio, limits)
	aggregate := openRisk.Add(riskAmount.Div(totalValue).Mul(hundred))
	if aggregate.GreaterThan(decimal.NewFromFloat(limits.MaxPortfolioRisk)) {
		agg, _ := aggregate.Float64()
		assessment.Reason = fmt.Sprintf(
			"aggregate portfolio risk %.1f%% exceeds %.1f%% limit",
			agg, limits.MaxPortfolioRisk,
		)
		return assessment
	}

	assessment.IsValid = true
	return assessment
}

// positionSize computes the executable quantity and the capital at risk. A
// user-specified amount is honored and its implied risk reported; otherwise
// the size is derived from the configured risk percentage.
func positionSize(
	req model.TradeRequest,
	entry decimal.Decimal,
	stop *decimal.Decimal,
	totalValue decimal.Decimal,
	limits Limits,
) (size, riskAmount decimal.Decimal) {
	defaultRisk := entry.Mul(decimal.NewFromFloat(limits.DefaultStopLossPct)).Div(hundred)

	if req.Amount > 0 {
		size = decimal.NewFromFloat(req.Amount)
		if stop != nil {
			riskAmount = size.Mul(entry.Sub(*stop).Abs())
		} else {
			riskAmount = size.Mul(defaultRisk)
		}
		return size, riskAmount
	}

	riskAmount = totalValue.Mul(decimal.NewFromFloat(limits.RiskPercentage)).Div(hundred)

	if stop != nil {
		priceRisk := entry.Sub(*stop).Abs()
		if priceRisk.LessThanOrEqual(decimal.Zero) {
			return decimal.Zero, riskAmount
		}
		return riskAmount.Div(priceRisk), riskAmount
	}

	size = riskAmount.Div(defaultRisk)

	// without a stop the position is capped at the configured share of the
	// portfolio instead
	maxSize := totalValue.Mul(decimal.NewFromFloat(limits.MaxPositionPercentage)).Div(hundred).Div(entry)
	if size.GreaterThan(maxSize) {
		size = maxSize
	}

	riskAmount = size.Mul(defaultRisk)
	return size, riskAmount
}

// openPositionsRisk sums the risk already carried by open positions, as a
// percentage of total value. Positions without a stop are assumed to risk 2%
// of their market value.
func openPositionsRisk(portfolio model.Portfolio, limits Limits) decimal.Decimal {
	totalValue := decimal.NewFromFloat(portfolio.TotalValue)
	if totalValue.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}

	total := decimal.Zero
	for _, pos := range portfolio.Positions {
		if pos.Quantity <= 0 {
			continue
		}

		qty := decimal.NewFromFloat(pos.Quantity)
		current := decimal.NewFromFloat(pos.CurrentPrice)

		var positionRisk decimal.Decimal
		if pos.StopLossPrice != nil {
			perUnit := current.Sub(decimal.NewFromFloat(*pos.StopLossPrice)).Abs()
			positionRisk = perUnit.Mul(qty).Div(totalValue).Mul(hundred)
		} else {
			positionValue := qty.Mul(current)
			positionRisk = positionValue.Div(totalValue).Mul(hundred).Mul(decimal.NewFromFloat(0.02))
		}

		total = total.Add(positionRisk)
	}

	return total
}
