package tp_sl

import (
	"testing"

	"github.com/shopspring/decimal"

	"tradepilot/src/model"
)

func candle(open, high, low, close float64) model.Candle {
	return model.Candle{
		Open:  decimal.NewFromFloat(open),
		High:  decimal.NewFromFloat(high),
		Low:   decimal.NewFromFloat(low),
		Close: decimal.NewFromFloat(close),
	}
}

func TestComputeNextStopLossLong(t *testing.T) {
	candles := []model.Candle{
		candle(100, 110, 95, 105),
		candle(105, 115, 100, 110), // prev, bullish
		candle(110, 120, 105, 115),
	}

	t.Run("raises stop to the average low", func(t *testing.T) {
		// avg(low) = (95+100+105)/3 = 100, prev.Low = 100, no clamp
		sl, moved := ComputeNextStopLoss(SideLong, decimal.NewFromInt(90), candles, 3)
		if !moved {
			t.Fatal("expected stop to move")
		}
		if !sl.Equal(decimal.NewFromInt(100)) {
			t.Fatalf("expected stop 100, got %s", sl)
		}
	})

	t.Run("clamped to the previous candle low", func(t *testing.T) {
		clamped := []model.Candle{
			candle(100, 110, 102, 105),
			candle(105, 115, 100, 110), // prev, bullish, low 100
			candle(110, 120, 110, 115),
		}
		// avg(low) = 104 > prev.Low, candidate falls back to 100
		sl, moved := ComputeNextStopLoss(SideLong, decimal.NewFromInt(90), clamped, 3)
		if !moved {
			t.Fatal("expected stop to move")
		}
		if !sl.Equal(decimal.NewFromInt(100)) {
			t.Fatalf("expected stop clamped to 100, got %s", sl)
		}
	})

	t.Run("gated on a bearish previous candle", func(t *testing.T) {
		gated := []model.Candle{
			candle(100, 110, 95, 105),
			candle(110, 115, 100, 105), // prev, bearish
			candle(105, 120, 105, 115),
		}
		if _, moved := ComputeNextStopLoss(SideLong, decimal.NewFromInt(90), gated, 3); moved {
			t.Fatal("stop must not move after a bearish candle")
		}
	})

	t.Run("never lowers the stop", func(t *testing.T) {
		sl, moved := ComputeNextStopLoss(SideLong, decimal.NewFromInt(105), candles, 3)
		if moved {
			t.Fatal("stop must not move down")
		}
		if !sl.Equal(decimal.NewFromInt(105)) {
			t.Fatalf("expected stop unchanged at 105, got %s", sl)
		}
	})
}

func TestComputeNextStopLossShort(t *testing.T) {
	candles := []model.Candle{
		candle(120, 120, 100, 110),
		candle(118, 115, 100, 108), // prev, bearish, high 115
		candle(108, 105, 95, 100),
	}

	t.Run("lowers stop but not below the previous high", func(t *testing.T) {
		// avg(high) = (120+115+105)/3 ≈ 113.33, clamped up to prev.High = 115
		sl, moved := ComputeNextStopLoss(SideShort, decimal.NewFromInt(130), candles, 3)
		if !moved {
			t.Fatal("expected stop to move")
		}
		if !sl.Equal(decimal.NewFromInt(115)) {
			t.Fatalf("expected stop 115, got %s", sl)
		}
	})

	t.Run("gated on a bullish previous candle", func(t *testing.T) {
		gated := []model.Candle{
			candle(120, 120, 100, 110),
			candle(100, 115, 100, 108), // prev, bullish
			candle(108, 105, 95, 100),
		}
		if _, moved := ComputeNextStopLoss(SideShort, decimal.NewFromInt(130), gated, 3); moved {
			t.Fatal("stop must not move after a bullish candle")
		}
	})

	t.Run("never raises the stop", func(t *testing.T) {
		sl, moved := ComputeNextStopLoss(SideShort, decimal.NewFromInt(110), candles, 3)
		if moved {
			t.Fatal("stop must not move up")
		}
		if !sl.Equal(decimal.NewFromInt(110)) {
			t.Fatalf("expected stop unchanged at 110, got %s", sl)
		}
	})
}

func TestComputeNextStopLossEdgeCases(t *testing.T) {
	if _, moved := ComputeNextStopLoss(SideLong, decimal.NewFromInt(90), []model.Candle{candle(100, 110, 95, 105)}, 20); moved {
		t.Fatal("a single candle carries no trailing signal")
	}

	// lookback longer than history falls back to the full window
	candles := []model.Candle{
		candle(100, 110, 95, 105),
		candle(105, 115, 100, 110),
		candle(110, 120, 105, 115),
	}
	sl, moved := ComputeNextStopLoss(SideLong, decimal.NewFromInt(90), candles, 50)
	if !moved || !sl.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected stop 100 with full-window lookback, got %s (moved=%v)", sl, moved)
	}
}

func TestSideForOrder(t *testing.T) {
	if SideForOrder(model.SideSell) != SideShort {
		t.Fatal("sell orders trail as a short")
	}
	if SideForOrder(model.SideBuy) != SideLong {
		t.Fatal("buy orders trail as a long")
	}
}
