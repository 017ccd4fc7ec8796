package repository

// NopMetrics discards all measurements; used in tests and as a default.
type NopMetrics struct{}

func (NopMetrics) RecordUpstreamCall(provider, op string)             {}
func (NopMetrics) RecordUpstreamError(provider, kind string)          {}
func (NopMetrics) RecordCacheHit(cache string)                        {}
func (NopMetrics) RecordCacheMiss(cache string)                       {}
func (NopMetrics) RecordBatchFlush(size int)                          {}
func (NopMetrics) RecordRetry(provider string)                        {}
func (NopMetrics) RecordPredictions(count int)                        {}
func (NopMetrics) RecordCycleDuration(seconds float64)                {}
func (NopMetrics) RecordFetchDuration(source string, seconds float64) {}
func (NopMetrics) SetPipelineState(generating bool)                   {}
