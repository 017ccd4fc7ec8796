package models

// Signal polarity.
const (
	PolarityBull = "bull"
	PolarityBear = "bear"
)

// Confidence tiers.
const (
	TierLow    = "low"
	TierMedium = "medium"
	TierHigh   = "high"
)

// Market-cap tiers.
const (
	CapTierLarge   = "large"
	CapTierMid     = "mid"
	CapTierSmall   = "small"
	CapTierUnknown = "unknown"
)

// Volatility tiers.
const (
	VolTierLow      = "low"
	VolTierModerate = "moderate"
	VolTierHigh     = "high"
)

// Signal is one matched scoring rule.
type Signal struct {
	Name     string  `json:"name"`
	Polarity string  `json:"polarity"`
	Weight   float64 `json:"weight"`
}

// SignalSet is the pure scoring result for one asset: a function of an
// IndicatorSet, coin metadata, and the current market regime.
type SignalSet struct {
	Signals        []Signal
	BullScore      float64 // raw sum of bullish weights
	AdjustedBull   float64 // BullScore / regime threshold multiplier
	BearScore      float64 // sum of bearish weights (absolute)
	NetScore       float64 // AdjustedBull - BearScore
	ConfidenceTier string
	MarketCapTier  string
	VolatilityTier string
}

// BullSignalCount returns the number of matched bullish signals.
func (s *SignalSet) BullSignalCount() int {
	n := 0
	for _, sig := range s.Signals {
		if sig.Polarity == PolarityBull {
			n++
		}
	}
	return n
}

// EntryExit holds reproducible entry and exit levels derived from the
// live price and ATR/EMA20.
type EntryExit struct {
	EntryPrice   float64
	StopLoss     float64 // price - 1.5*ATR
	TakeProfit   float64 // price + 2*ATR
	TrailingStop float64 // EMA20
	OptimalEntry float64 // min(price, EMA20)
}

// ReturnRange is one cell of the expected-return calibration table,
// percent returns at the 25th/50th/75th percentile.
type ReturnRange struct {
	P25 float64 `json:"p25"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
}
