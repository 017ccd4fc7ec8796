package repository

import (
	"context"

	"CoinSight/internal/domain/models"
)

// MarketStore is the durable row store behind the pipeline: candle
// history, the market-regime log, and the prediction log. Implementations
// must upsert candles by (asset, timestamp) and answer "most recent N"
// queries in ascending order.
type MarketStore interface {
	UpsertCandles(ctx context.Context, candles []models.Candle) error
	LatestCandle(ctx context.Context, asset string) (*models.Candle, error)
	LatestNCandles(ctx context.Context, asset string, n int) ([]models.Candle, error)

	AppendRegime(ctx context.Context, regime models.MarketRegime) error
	LatestRegime(ctx context.Context) (*models.MarketRegime, error)

	InsertPrediction(ctx context.Context, p models.Prediction) error
	LatestPredictions(ctx context.Context, n int) ([]models.Prediction, error)

	Health(ctx context.Context) error
	Close() error
}

// Metrics records operational measurements for the pipeline.
type Metrics interface {
	RecordUpstreamCall(provider, op string)
	RecordUpstreamError(provider, kind string)
	RecordCacheHit(cache string)
	RecordCacheMiss(cache string)
	RecordBatchFlush(size int)
	RecordRetry(provider string)
	RecordPredictions(count int)
	RecordCycleDuration(seconds float64)
	RecordFetchDuration(source string, seconds float64)
	SetPipelineState(generating bool)
}
