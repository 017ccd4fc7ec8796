package models

// Trend labels for EMA slope classification.
const (
	TrendUp      = "up"
	TrendDown    = "down"
	TrendNeutral = "neutral"
)

// RSI divergence labels.
const (
	DivergenceBullish = "bullish"
	DivergenceBearish = "bearish"
	DivergenceNone    = "none"
)

// IndicatorSet is a derived snapshot computed from a candle series. It is
// never stored independently; it is recomputed on demand and is only
// defined when the series has at least 30 points.
type IndicatorSet struct {
	RSI           float64
	MACD          float64
	MACDSignal    float64
	MACDHistogram float64
	EMA20         float64
	EMA50         float64
	ATR           float64
	BBUpper       float64
	BBMiddle      float64
	BBLower       float64
	VolumeSMA     float64

	VolumeRatio   float64
	PriceVsEMA20  float64 // percent deviation of close from EMA20
	PriceVsEMA50  float64
	BBPosition    float64 // (close-lower)/(upper-lower), 0.5 if degenerate
	ATRPercent    float64 // ATR/close*100
	EMA20Trend    string
	EMA50Trend    string
	Momentum24h   float64 // percent change over the last 24 periods
	Momentum7d    float64 // percent change over the last 7*24 periods
	RSIDivergence string
}
