package models

import "time"

// Market regime classifications.
const (
	RegimeRiskOn  = "risk_on"
	RegimeRiskOff = "risk_off"
	RegimeNeutral = "neutral"
)

// MarketRegime is the per-cycle market classification. Rows are appended
// to the regime log; the latest row is authoritative.
type MarketRegime struct {
	Timestamp           time.Time
	BTC24hChange        float64 // percent
	FearGreedIndex      int     // 0..100
	Regime              string
	ThresholdMultiplier float64 // scales the bull-score tiering thresholds
}

// ClassifyRegime maps BTC 24h change and the fear/greed index to a
// regime and its threshold multiplier. Risk-off dampens confidence by
// raising the bar (1.25); risk-on lowers it (0.85).
func ClassifyRegime(btc24hChange float64, fearGreed int) (string, float64) {
	switch {
	case btc24hChange < -5 || fearGreed < 25:
		return RegimeRiskOff, 1.25
	case btc24hChange > 5 || fearGreed > 75:
		return RegimeRiskOn, 0.85
	default:
		return RegimeNeutral, 1.0
	}
}
