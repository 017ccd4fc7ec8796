package signal

import (
	"testing"

	"CoinSight/internal/domain/models"
)

func neutralRegime() models.MarketRegime {
	return models.MarketRegime{Regime: models.RegimeNeutral, ThresholdMultiplier: 1.0}
}

// Five bullish checks matching: ema20 uptrend above (1.5), rsi sweet
// spot (1.0), volume surge (1.5), macd bullish (1.0), momentum (0.75).
func strongBullIndicators() *models.IndicatorSet {
	return &models.IndicatorSet{
		RSI:           65,
		EMA20Trend:    models.TrendUp,
		PriceVsEMA20:  1.2,
		VolumeRatio:   2.1,
		MACD:          1.0,
		MACDSignal:    0.5,
		MACDHistogram: 0.5,
		Momentum24h:   3,
		EMA20:         100,
		EMA50:         105, // ema stack check must not fire
		BBPosition:    0.3, // breakout zone check must not fire
		RSIDivergence: models.DivergenceNone,
		ATRPercent:    2,
	}
}

func TestGenerateStrongBullScenario(t *testing.T) {
	set := Generate(strongBullIndicators(), models.CoinMeta{MarketCap: 5e9}, neutralRegime())

	if set.BullScore != 5.75 {
		t.Fatalf("bull score = %v, want 5.75", set.BullScore)
	}
	if set.BearScore != 0 {
		t.Fatalf("bear score = %v, want 0", set.BearScore)
	}
	if set.NetScore != 5.75 {
		t.Fatalf("net score = %v, want 5.75", set.NetScore)
	}
	if set.ConfidenceTier != models.TierHigh {
		t.Fatalf("tier = %q, want high", set.ConfidenceTier)
	}
	if set.BullSignalCount() != 5 {
		t.Fatalf("bull signal count = %d, want 5", set.BullSignalCount())
	}
	if set.MarketCapTier != models.CapTierLarge {
		t.Fatalf("cap tier = %q, want large", set.MarketCapTier)
	}
	if set.VolatilityTier != models.VolTierLow {
		t.Fatalf("vol tier = %q, want low", set.VolatilityTier)
	}
}

func TestRegimeDampening(t *testing.T) {
	// bullScore 5.5 under risk_off multiplier 1.25 adjusts to 4.4:
	// below the 5.5 high threshold, above medium's 4.0.
	if got := Tier(5.5/1.25, 5.5/1.25); got != models.TierMedium {
		t.Fatalf("dampened tier = %q, want medium", got)
	}
	if got := Tier(5.5, 5.5); got != models.TierHigh {
		t.Fatalf("undampened tier = %q, want high", got)
	}
}

func TestTierDeterministic(t *testing.T) {
	cases := []struct {
		adj, net float64
		want     string
	}{
		{5.5, 4.0, models.TierHigh},
		{5.5, 3.9, models.TierMedium}, // net misses high, adj clears medium
		{5.4, 9.0, models.TierMedium},
		{4.0, 2.0, models.TierMedium},
		{4.0, 1.9, models.TierLow},
		{3.9, 9.0, models.TierLow},
		{0, 0, models.TierLow},
	}
	for _, tc := range cases {
		for i := 0; i < 3; i++ {
			if got := Tier(tc.adj, tc.net); got != tc.want {
				t.Fatalf("Tier(%v, %v) = %q, want %q", tc.adj, tc.net, got, tc.want)
			}
		}
	}
}

func TestVolumeThresholdsExclusive(t *testing.T) {
	in := strongBullIndicators()
	in.VolumeRatio = 1.7
	set := Generate(in, models.CoinMeta{}, neutralRegime())
	// surge (1.5) swapped for elevated (1.0)
	if set.BullScore != 5.25 {
		t.Fatalf("bull score = %v, want 5.25", set.BullScore)
	}
	for _, s := range set.Signals {
		if s.Name == "volume_surge" {
			t.Fatalf("surge should not fire at ratio 1.7")
		}
	}
}

func TestBearishChecks(t *testing.T) {
	in := &models.IndicatorSet{
		RSI:           82,
		PriceVsEMA20:  -1,
		RSIDivergence: models.DivergenceBearish,
		BBPosition:    0.97,
		MACDHistogram: -0.2,
		ATRPercent:    7,
	}
	set := Generate(in, models.CoinMeta{MarketCap: 2e8}, neutralRegime())
	if set.BearScore != 5.75 {
		t.Fatalf("bear score = %v, want 5.75", set.BearScore)
	}
	if set.ConfidenceTier != models.TierLow {
		t.Fatalf("tier = %q, want low", set.ConfidenceTier)
	}
	if set.MarketCapTier != models.CapTierMid {
		t.Fatalf("cap tier = %q, want mid", set.MarketCapTier)
	}
	if set.VolatilityTier != models.VolTierHigh {
		t.Fatalf("vol tier = %q, want high", set.VolatilityTier)
	}
}

func TestCapTierUnknown(t *testing.T) {
	set := Generate(strongBullIndicators(), models.CoinMeta{}, neutralRegime())
	if set.MarketCapTier != models.CapTierUnknown {
		t.Fatalf("cap tier = %q, want unknown", set.MarketCapTier)
	}
}

func TestCalculateEntryExit(t *testing.T) {
	in := &models.IndicatorSet{ATR: 10, EMA20: 95}
	levels := CalculateEntryExit(100, in)
	if levels.EntryPrice != 100 {
		t.Fatalf("entry = %v", levels.EntryPrice)
	}
	if levels.StopLoss != 85 {
		t.Fatalf("stop loss = %v, want 85", levels.StopLoss)
	}
	if levels.TakeProfit != 120 {
		t.Fatalf("take profit = %v, want 120", levels.TakeProfit)
	}
	if levels.TrailingStop != 95 {
		t.Fatalf("trailing stop = %v, want 95", levels.TrailingStop)
	}
	if levels.OptimalEntry != 95 {
		t.Fatalf("optimal entry = %v, want min(price, ema20) = 95", levels.OptimalEntry)
	}

	in.EMA20 = 110
	levels = CalculateEntryExit(100, in)
	if levels.OptimalEntry != 100 {
		t.Fatalf("optimal entry = %v, want 100", levels.OptimalEntry)
	}
}

func TestExpectedReturnRange(t *testing.T) {
	r := ExpectedReturnRange(models.TierHigh, models.VolTierModerate)
	if !(r.P25 < r.P50 && r.P50 < r.P75) {
		t.Fatalf("percentiles not ordered: %+v", r)
	}
	// Unknown inputs fall back to the most conservative cell.
	fallback := ExpectedReturnRange("bogus", "bogus")
	conservative := expectedReturns[models.TierLow][models.VolTierLow]
	if fallback != conservative {
		t.Fatalf("fallback = %+v, want %+v", fallback, conservative)
	}
}
