// Package signal scores an indicator snapshot into a weighted bull and
// bear tally, applies regime-adjusted confidence tiering, and derives
// entry/exit levels and an expected-return range.
package signal

import (
	"CoinSight/internal/domain/models"
)

type check struct {
	name   string
	weight float64
	match  func(*models.IndicatorSet) bool
}

// Bullish checks are mutually independent and summed. The two volume
// thresholds are exclusive: the stronger one wins.
var bullChecks = []check{
	{"ema20_uptrend_above", 1.5, func(in *models.IndicatorSet) bool {
		return in.EMA20Trend == models.TrendUp && in.PriceVsEMA20 > 0
	}},
	{"rsi_sweet_spot", 1.0, func(in *models.IndicatorSet) bool {
		return in.RSI >= 50 && in.RSI <= 70
	}},
	{"volume_surge", 1.5, func(in *models.IndicatorSet) bool {
		return in.VolumeRatio >= 2.0
	}},
	{"volume_elevated", 1.0, func(in *models.IndicatorSet) bool {
		return in.VolumeRatio >= 1.5 && in.VolumeRatio < 2.0
	}},
	{"macd_bullish", 1.0, func(in *models.IndicatorSet) bool {
		return in.MACDHistogram > 0 && in.MACD > in.MACDSignal
	}},
	{"momentum_24h", 0.75, func(in *models.IndicatorSet) bool {
		return in.Momentum24h > 2
	}},
	{"ema_stack", 1.0, func(in *models.IndicatorSet) bool {
		return in.EMA20 > in.EMA50 && in.PriceVsEMA20 > 0
	}},
	{"bullish_divergence", 1.5, func(in *models.IndicatorSet) bool {
		return in.RSIDivergence == models.DivergenceBullish
	}},
	{"bb_breakout_zone", 0.5, func(in *models.IndicatorSet) bool {
		return in.BBPosition > 0.5 && in.BBPosition < 0.8
	}},
}

var bearChecks = []check{
	{"rsi_overbought", 1.5, func(in *models.IndicatorSet) bool {
		return in.RSI >= 80
	}},
	{"below_ema20", 1.0, func(in *models.IndicatorSet) bool {
		return in.PriceVsEMA20 < 0
	}},
	{"bearish_divergence", 1.5, func(in *models.IndicatorSet) bool {
		return in.RSIDivergence == models.DivergenceBearish
	}},
	{"bb_overextended", 1.0, func(in *models.IndicatorSet) bool {
		return in.BBPosition > 0.95
	}},
	{"macd_bearish", 0.75, func(in *models.IndicatorSet) bool {
		return in.MACDHistogram < 0
	}},
}

// Generate scores the indicator set under the given regime. The result
// is a pure function of its inputs.
func Generate(in *models.IndicatorSet, meta models.CoinMeta, regime models.MarketRegime) models.SignalSet {
	var set models.SignalSet

	for _, c := range bullChecks {
		if c.match(in) {
			set.Signals = append(set.Signals, models.Signal{
				Name:     c.name,
				Polarity: models.PolarityBull,
				Weight:   c.weight,
			})
			set.BullScore += c.weight
		}
	}
	for _, c := range bearChecks {
		if c.match(in) {
			set.Signals = append(set.Signals, models.Signal{
				Name:     c.name,
				Polarity: models.PolarityBear,
				Weight:   c.weight,
			})
			set.BearScore += c.weight
		}
	}

	mult := regime.ThresholdMultiplier
	if mult <= 0 {
		mult = 1
	}
	set.AdjustedBull = set.BullScore / mult
	set.NetScore = set.AdjustedBull - set.BearScore
	set.ConfidenceTier = Tier(set.AdjustedBull, set.NetScore)
	set.MarketCapTier = capTier(meta.MarketCap)
	set.VolatilityTier = volTier(in.ATRPercent)
	return set
}

// Tier maps the regime-adjusted bull score and net score onto a
// confidence bucket. Deterministic for identical inputs.
func Tier(adjustedBull, netScore float64) string {
	switch {
	case adjustedBull >= 5.5 && netScore >= 4:
		return models.TierHigh
	case adjustedBull >= 4.0 && netScore >= 2:
		return models.TierMedium
	default:
		return models.TierLow
	}
}

func capTier(marketCap float64) string {
	switch {
	case marketCap <= 0:
		return models.CapTierUnknown
	case marketCap >= 1e9:
		return models.CapTierLarge
	case marketCap >= 1e8:
		return models.CapTierMid
	default:
		return models.CapTierSmall
	}
}

func volTier(atrPercent float64) string {
	switch {
	case atrPercent < 3:
		return models.VolTierLow
	case atrPercent < 6:
		return models.VolTierModerate
	default:
		return models.VolTierHigh
	}
}

// CalculateEntryExit derives entry and exit levels from the live price
// and the indicator snapshot.
func CalculateEntryExit(price float64, in *models.IndicatorSet) models.EntryExit {
	optimal := price
	if in.EMA20 < optimal {
		optimal = in.EMA20
	}
	return models.EntryExit{
		EntryPrice:   price,
		StopLoss:     price - 1.5*in.ATR,
		TakeProfit:   price + 2*in.ATR,
		TrailingStop: in.EMA20,
		OptimalEntry: optimal,
	}
}

// expectedReturns is an empirical calibration table indexed by
// confidence tier then volatility tier. Values are percent returns at
// the 25th/50th/75th percentile of historical outcomes.
var expectedReturns = map[string]map[string]models.ReturnRange{
	models.TierHigh: {
		models.VolTierLow:      {P25: 1.2, P50: 2.8, P75: 5.1},
		models.VolTierModerate: {P25: 1.8, P50: 4.2, P75: 7.9},
		models.VolTierHigh:     {P25: 2.4, P50: 5.6, P75: 11.3},
	},
	models.TierMedium: {
		models.VolTierLow:      {P25: 0.6, P50: 1.7, P75: 3.4},
		models.VolTierModerate: {P25: 0.9, P50: 2.5, P75: 5.2},
		models.VolTierHigh:     {P25: 1.1, P50: 3.3, P75: 7.6},
	},
	models.TierLow: {
		models.VolTierLow:      {P25: 0.2, P50: 0.8, P75: 1.9},
		models.VolTierModerate: {P25: 0.3, P50: 1.1, P75: 2.8},
		models.VolTierHigh:     {P25: 0.4, P50: 1.4, P75: 3.9},
	},
}

// ExpectedReturnRange looks up the calibration cell for a tier pair.
// Unknown inputs resolve to the most conservative cell.
func ExpectedReturnRange(confidenceTier, volatilityTier string) models.ReturnRange {
	byVol, ok := expectedReturns[confidenceTier]
	if !ok {
		byVol = expectedReturns[models.TierLow]
	}
	if r, ok := byVol[volatilityTier]; ok {
		return r
	}
	return byVol[models.VolTierLow]
}
