package models

import "time"

// Candle represents one OHLCV bar for an asset. Series are ordered by
// Timestamp and unique per (Asset, Timestamp); a refetch may overwrite
// the latest bar but never duplicates it.
type Candle struct {
	Asset     string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Quote is a live price snapshot owned by the quote cache. It is never
// persisted durably.
type Quote struct {
	Asset     string
	Price     float64
	FetchedAt time.Time
}

// CoinMeta carries listing metadata used for universe filtering and
// market-cap tiering.
type CoinMeta struct {
	Asset     string  // canonical id, e.g. "bitcoin"
	Symbol    string  // short symbol, e.g. "BTC"
	Pair      string  // primary-venue trading pair, e.g. "BTCUSDT"; empty if unlisted
	MarketCap float64 // USD; 0 when unknown
	Volume24h float64 // USD
}
