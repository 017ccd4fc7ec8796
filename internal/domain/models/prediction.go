package models

import "time"

// Prediction is one ranked trade candidate. Rows are immutable; a new
// cycle supersedes prior rows rather than mutating them.
type Prediction struct {
	Asset          string      `json:"asset"`
	CreatedAt      time.Time   `json:"created_at"`
	WindowHours    int         `json:"window_hours"`
	Probability    float64     `json:"probability"`
	ConfidenceTier string      `json:"confidence_tier"`
	SignalCount    int         `json:"signal_count"`
	Signals        []Signal    `json:"signals"`
	NetScore       float64     `json:"net_score"`
	EntryPrice     float64     `json:"entry_price"`
	StopLoss       float64     `json:"stop_loss"`
	TakeProfit     float64     `json:"take_profit"`
	ExpectedReturn ReturnRange `json:"expected_return"`
	MarketCapTier  string      `json:"market_cap_tier"`
	VolatilityTier string      `json:"volatility_tier"`
}
