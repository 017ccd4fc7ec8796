// Package quote implements the live-price layer: a per-asset TTL
// cache in front of a single-flight, debounced batch fetcher. Many
// concurrent callers asking for the same uncached asset resolve from
// exactly one upstream batch call.
package quote

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"CoinSight/internal/domain/models"
	"CoinSight/internal/domain/repository"
	xhttp "CoinSight/pkg/http"
	applogger "CoinSight/pkg/logger"
	"CoinSight/pkg/retry"
)

// DirectQuoter is the low-latency single-symbol path, tried first when
// a ticker hint is available.
type DirectQuoter interface {
	Price(ctx context.Context, pair string) (float64, error)
}

// BatchQuoter resolves many assets in one call. It may return fewer
// entries than requested and may fail with a rate-limit error carrying
// a retry hint.
type BatchQuoter interface {
	SimplePrices(ctx context.Context, ids []string) (map[string]float64, error)
}

type pendingEntry struct {
	done  chan struct{}
	price float64
	ok    bool
}

// Service is the quote cache and request coalescer.
type Service struct {
	direct  DirectQuoter
	batch   BatchQuoter
	metrics repository.Metrics
	l       *applogger.Logger

	ttl         time.Duration
	debounce    time.Duration
	maxDebounce time.Duration
	policy      retry.Policy

	mu      sync.Mutex
	cache   map[string]models.Quote
	pending map[string]*pendingEntry
	timer   *time.Timer
	opened  time.Time // when the current debounce window opened

	now func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithTTL sets how long a cached quote stays servable.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) { s.ttl = ttl }
}

// WithDebounce sets the flush delay and its hard cap.
func WithDebounce(delay, maxDelay time.Duration) Option {
	return func(s *Service) {
		s.debounce = delay
		s.maxDebounce = maxDelay
	}
}

// WithRetryPolicy sets the backoff policy for rate-limited batches.
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m repository.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a quote service over the given providers.
func NewService(direct DirectQuoter, batch BatchQuoter, l *applogger.Logger, opts ...Option) *Service {
	if l == nil {
		l = applogger.Nop()
	}
	s := &Service{
		direct:      direct,
		batch:       batch,
		metrics:     repository.NopMetrics{},
		l:           l,
		ttl:         15 * time.Second,
		debounce:    200 * time.Millisecond,
		maxDebounce: time.Second,
		policy:      retry.Default(),
		cache:       make(map[string]models.Quote),
		pending:     make(map[string]*pendingEntry),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetPrice returns a price at most one TTL old, or false when every
// source failed. tickerHint, when non-empty, enables the direct venue
// lookup before falling back to the shared batch. forceRefresh skips
// the cache read but still populates it.
func (s *Service) GetPrice(ctx context.Context, asset, tickerHint string, forceRefresh bool) (float64, bool) {
	if !forceRefresh {
		if q, ok := s.cached(asset); ok {
			s.metrics.RecordCacheHit("quote")
			return q.Price, true
		}
		s.metrics.RecordCacheMiss("quote")
	}

	if tickerHint != "" && s.direct != nil {
		s.metrics.RecordUpstreamCall("venue", "price")
		price, err := s.direct.Price(ctx, tickerHint)
		if err == nil {
			s.store(asset, price)
			return price, true
		}
		s.metrics.RecordUpstreamError("venue", "price")
		s.l.Debug("direct quote failed, joining batch",
			applogger.String("asset", asset),
			applogger.Error(err),
		)
	}

	entry := s.join(asset)
	select {
	case <-entry.done:
		return entry.price, entry.ok
	case <-ctx.Done():
		return 0, false
	}
}

// GetPrices resolves a de-duplicated asset list in parallel. Assets
// that cannot be priced are absent from the result.
func (s *Service) GetPrices(ctx context.Context, assets []string) map[string]float64 {
	uniq := make([]string, 0, len(assets))
	seen := make(map[string]struct{}, len(assets))
	for _, a := range assets {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		uniq = append(uniq, a)
	}

	var (
		mu  sync.Mutex
		out = make(map[string]float64, len(uniq))
		wg  sync.WaitGroup
	)
	for _, asset := range uniq {
		wg.Add(1)
		go func(asset string) {
			defer wg.Done()
			if price, ok := s.GetPrice(ctx, asset, "", false); ok {
				mu.Lock()
				out[asset] = price
				mu.Unlock()
			}
		}(asset)
	}
	wg.Wait()
	return out
}

func (s *Service) cached(asset string) (models.Quote, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.cache[asset]
	if !ok || s.now().Sub(q.FetchedAt) > s.ttl {
		return models.Quote{}, false
	}
	return q, true
}

func (s *Service) store(asset string, price float64) {
	s.mu.Lock()
	s.cache[asset] = models.Quote{Asset: asset, Price: price, FetchedAt: s.now()}
	s.mu.Unlock()
}

// join adds asset to the shared pending batch, creating or extending
// the debounce window. Concurrent joins for the same asset share one
// entry.
func (s *Service) join(asset string) *pendingEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.pending[asset]; ok {
		return e
	}
	e := &pendingEntry{done: make(chan struct{})}
	s.pending[asset] = e

	jitter := time.Duration(rand.Int63n(int64(s.debounce)/4 + 1))
	delay := s.debounce + jitter
	if s.timer == nil {
		s.opened = s.now()
		s.timer = time.AfterFunc(delay, s.flush)
		return e
	}
	// Extend the window for the newcomer, but never past the cap
	// measured from when the window opened.
	if remaining := s.maxDebounce - s.now().Sub(s.opened); delay > remaining {
		delay = remaining
	}
	if delay > 0 {
		s.timer.Reset(delay)
	}
	return e
}

// flush takes the whole pending set and resolves it with one batch
// call (plus bounded retries). Runs on the debounce timer goroutine.
func (s *Service) flush() {
	s.mu.Lock()
	batch := s.pending
	s.pending = make(map[string]*pendingEntry)
	s.timer = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	assets := make([]string, 0, len(batch))
	for asset := range batch {
		assets = append(assets, asset)
	}
	s.metrics.RecordBatchFlush(len(assets))

	prices := s.fetchBatch(context.Background(), assets)
	now := s.now()

	s.mu.Lock()
	for asset, price := range prices {
		s.cache[asset] = models.Quote{Asset: asset, Price: price, FetchedAt: now}
	}
	s.mu.Unlock()

	for asset, e := range batch {
		if price, ok := prices[asset]; ok {
			e.price, e.ok = price, true
		}
		close(e.done)
	}
}

// fetchBatch calls the batch provider with exponential backoff on rate
// limits. Exhausting the retry budget returns nil rather than an
// error; members settle unresolved.
func (s *Service) fetchBatch(ctx context.Context, assets []string) map[string]float64 {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for attempt := 0; attempt < s.policy.MaxAttempts; attempt++ {
		s.metrics.RecordUpstreamCall("aggregator", "simple_price")
		prices, err := s.batch.SimplePrices(ctx, assets)
		if err == nil {
			return prices
		}

		hint, limited := xhttp.IsRateLimited(err)
		kind := "unavailable"
		if limited {
			kind = "rate_limited"
		}
		s.metrics.RecordUpstreamError("aggregator", kind)
		if !limited {
			s.l.Warn("quote batch failed",
				applogger.Int("assets", len(assets)),
				applogger.Error(err),
			)
			return nil
		}

		if attempt == s.policy.MaxAttempts-1 {
			break
		}
		s.metrics.RecordRetry("aggregator")
		s.l.Debug("quote batch rate limited, backing off",
			applogger.Int("attempt", attempt+1),
			applogger.Duration("hint", hint),
		)
		if err := s.policy.Sleep(ctx, attempt, hint, rng); err != nil {
			return nil
		}
	}
	s.l.Warn("quote batch retries exhausted", applogger.Int("assets", len(assets)))
	return nil
}
