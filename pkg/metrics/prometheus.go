package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	upstreamCalls  *prometheus.CounterVec
	upstreamErrors *prometheus.CounterVec
	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	batchFlushes   prometheus.Histogram
	retries        *prometheus.CounterVec
	predictions    prometheus.Gauge
	cycleDuration  prometheus.Histogram
	fetchDuration  *prometheus.HistogramVec
	pipelineState  prometheus.Gauge
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		upstreamCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinsight_upstream_calls_total",
				Help: "Total upstream provider calls",
			},
			[]string{"provider", "op"},
		),
		upstreamErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinsight_upstream_errors_total",
				Help: "Total upstream provider errors by kind",
			},
			[]string{"provider", "kind"},
		),
		cacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinsight_cache_hits_total",
				Help: "Cache hits by cache name",
			},
			[]string{"cache"},
		),
		cacheMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinsight_cache_misses_total",
				Help: "Cache misses by cache name",
			},
			[]string{"cache"},
		),
		batchFlushes: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "coinsight_quote_batch_size",
				Help:    "Assets per quote batch flush",
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
			},
		),
		retries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinsight_upstream_retries_total",
				Help: "Rate-limit retries by provider",
			},
			[]string{"provider"},
		),
		predictions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "coinsight_predictions_last_cycle",
				Help: "Predictions persisted in the last cycle",
			},
		),
		cycleDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "coinsight_cycle_duration_seconds",
				Help:    "Prediction cycle duration",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
			},
		),
		fetchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coinsight_fetch_duration_seconds",
				Help:    "Candle fetch duration by source",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		pipelineState: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "coinsight_pipeline_generating",
				Help: "1 while a prediction cycle is in flight",
			},
		),
	}
}

func (r *Recorder) RecordUpstreamCall(provider, op string) {
	r.upstreamCalls.WithLabelValues(provider, op).Inc()
}

func (r *Recorder) RecordUpstreamError(provider, kind string) {
	r.upstreamErrors.WithLabelValues(provider, kind).Inc()
}

func (r *Recorder) RecordCacheHit(cache string) {
	r.cacheHits.WithLabelValues(cache).Inc()
}

func (r *Recorder) RecordCacheMiss(cache string) {
	r.cacheMisses.WithLabelValues(cache).Inc()
}

func (r *Recorder) RecordBatchFlush(size int) {
	r.batchFlushes.Observe(float64(size))
}

func (r *Recorder) RecordRetry(provider string) {
	r.retries.WithLabelValues(provider).Inc()
}

func (r *Recorder) RecordPredictions(count int) {
	r.predictions.Set(float64(count))
}

func (r *Recorder) RecordCycleDuration(seconds float64) {
	r.cycleDuration.Observe(seconds)
}

func (r *Recorder) RecordFetchDuration(source string, seconds float64) {
	r.fetchDuration.WithLabelValues(source).Observe(seconds)
}

func (r *Recorder) SetPipelineState(generating bool) {
	if generating {
		r.pipelineState.Set(1)
		return
	}
	r.pipelineState.Set(0)
}
