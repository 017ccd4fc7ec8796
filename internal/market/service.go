// Package market implements candle acquisition and universe
// resolution. History reads are freshness-checked against the local
// store before any network call; upstream sources are tried in
// priority order and every retrieved candle is upserted by
// (asset, timestamp), so re-fetching a window is idempotent.
package market

import (
	"context"
	"sort"
	"time"

	"CoinSight/internal/domain/models"
	"CoinSight/internal/domain/repository"
	"CoinSight/internal/provider/binance"
	applogger "CoinSight/pkg/logger"
)

// Venue is the primary real-time source: per-pair kline history and a
// 24h ticker snapshot for universe resolution.
type Venue interface {
	Klines(ctx context.Context, asset, pair, interval string, limit int) ([]models.Candle, error)
	Tickers24h(ctx context.Context, pairs []string) ([]binance.Ticker24h, error)
}

// Aggregator is the secondary source: OHLC by coin id and listing
// metadata (market cap, 24h volume).
type Aggregator interface {
	OHLC(ctx context.Context, asset, id string, days int) ([]models.Candle, error)
	Markets(ctx context.Context, ids []string) ([]models.CoinMeta, error)
}

// Service fetches candle history and resolves the tradeable universe.
type Service struct {
	store   repository.MarketStore
	venue   Venue
	agg     Aggregator
	metrics repository.Metrics
	l       *applogger.Logger

	freshness    time.Duration
	minVolume24h float64
	targets      []string

	now func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithFreshness sets the local-history freshness window.
func WithFreshness(d time.Duration) Option {
	return func(s *Service) { s.freshness = d }
}

// WithMinVolume sets the 24h quote-volume floor for the universe.
func WithMinVolume(v float64) Option {
	return func(s *Service) { s.minVolume24h = v }
}

// WithTargets sets the fixed target list the universe resolves from.
func WithTargets(targets []string) Option {
	return func(s *Service) { s.targets = targets }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m repository.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a market data service.
func NewService(store repository.MarketStore, venue Venue, agg Aggregator, l *applogger.Logger, opts ...Option) *Service {
	if l == nil {
		l = applogger.Nop()
	}
	s := &Service{
		store:        store,
		venue:        venue,
		agg:          agg,
		metrics:      repository.NopMetrics{},
		l:            l,
		freshness:    time.Hour,
		minVolume24h: 1_000_000,
		targets:      fallbackUniverse,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchCandles returns up to count candles for asset at the given
// timeframe, ascending. Fresh local history short-circuits with zero
// network calls. When every source fails the result is empty, never an
// error; the asset is simply skipped for the cycle.
func (s *Service) FetchCandles(ctx context.Context, asset string, tf repository.Timeframe, count int) []models.Candle {
	start := s.now()

	latest, err := s.store.LatestCandle(ctx, asset)
	if err != nil {
		s.l.Warn("latest candle lookup failed",
			applogger.String("asset", asset),
			applogger.Error(err),
		)
	}
	if latest != nil && s.now().Sub(latest.Timestamp) < s.freshness {
		tail, err := s.store.LatestNCandles(ctx, asset, count)
		if err == nil && len(tail) > 0 {
			s.metrics.RecordCacheHit("candles")
			return tail
		}
		if err != nil {
			s.l.Warn("stored candle read failed",
				applogger.String("asset", asset),
				applogger.Error(err),
			)
		}
	}
	s.metrics.RecordCacheMiss("candles")

	candles := s.fetchUpstream(ctx, asset, tf, count)
	if len(candles) == 0 {
		return nil
	}

	if err := s.store.UpsertCandles(ctx, candles); err != nil {
		// Keep the in-memory result; persistence catches up next cycle.
		s.l.Error("candle upsert failed",
			applogger.String("asset", asset),
			applogger.Int("rows", len(candles)),
			applogger.Error(err),
		)
	}
	s.metrics.RecordFetchDuration("candles", s.now().Sub(start).Seconds())

	if len(candles) > count {
		candles = candles[len(candles)-count:]
	}
	return candles
}

// fetchUpstream tries sources in priority order: the venue when a
// trading pair is known, then the aggregator. Results are ascending
// and de-duplicated by timestamp.
func (s *Service) fetchUpstream(ctx context.Context, asset string, tf repository.Timeframe, count int) []models.Candle {
	if pair, ok := PairFor(asset); ok {
		s.metrics.RecordUpstreamCall("venue", "klines")
		candles, err := s.venue.Klines(ctx, asset, pair, string(tf), count)
		if err == nil && len(candles) > 0 {
			return normalize(candles)
		}
		if err != nil {
			s.metrics.RecordUpstreamError("venue", "klines")
			s.l.Warn("venue klines failed, falling back",
				applogger.String("asset", asset),
				applogger.String("pair", pair),
				applogger.Error(err),
			)
		}
	}

	days := ohlcDays(tf, count)
	s.metrics.RecordUpstreamCall("aggregator", "ohlc")
	candles, err := s.agg.OHLC(ctx, asset, asset, days)
	if err != nil {
		s.metrics.RecordUpstreamError("aggregator", "ohlc")
		s.l.Warn("aggregator ohlc failed",
			applogger.String("asset", asset),
			applogger.Error(err),
		)
		return nil
	}
	return normalize(candles)
}

// ResolveUniverse returns the cycle's tradeable assets with listing
// metadata. The venue snapshot prices the fixed target list; assets
// with no resolvable quote, denylisted assets, and thin listings are
// dropped. An empty snapshot substitutes the hardcoded fallback so the
// pipeline never runs over nothing.
func (s *Service) ResolveUniverse(ctx context.Context) []models.CoinMeta {
	type candidate struct {
		asset string
		pair  string
	}
	cands := make([]candidate, 0, len(s.targets))
	pairs := make([]string, 0, len(s.targets))
	for _, asset := range s.targets {
		if Denylisted(asset) {
			continue
		}
		pair, ok := PairFor(asset)
		if !ok {
			continue
		}
		cands = append(cands, candidate{asset: asset, pair: pair})
		pairs = append(pairs, pair)
	}

	s.metrics.RecordUpstreamCall("venue", "tickers")
	tickers, err := s.venue.Tickers24h(ctx, pairs)
	if err != nil {
		s.metrics.RecordUpstreamError("venue", "tickers")
		s.l.Warn("universe snapshot failed", applogger.Error(err))
	}
	byPair := make(map[string]binance.Ticker24h, len(tickers))
	for _, t := range tickers {
		byPair[t.Pair] = t
	}

	universe := make([]models.CoinMeta, 0, len(cands))
	for _, c := range cands {
		t, ok := byPair[c.pair]
		if !ok || t.LastPrice <= 0 {
			continue
		}
		if t.QuoteVolume < s.minVolume24h {
			continue
		}
		universe = append(universe, models.CoinMeta{
			Asset:     c.asset,
			Symbol:    SymbolFor(c.asset),
			Pair:      c.pair,
			Volume24h: t.QuoteVolume,
		})
	}

	if len(universe) == 0 {
		s.l.Warn("universe empty, using fallback list",
			applogger.Int("targets", len(s.targets)),
		)
		for _, asset := range fallbackUniverse {
			pair, _ := PairFor(asset)
			universe = append(universe, models.CoinMeta{
				Asset:  asset,
				Symbol: SymbolFor(asset),
				Pair:   pair,
			})
		}
	}

	s.enrichMarketCaps(ctx, universe)
	return universe
}

// enrichMarketCaps fills market cap from the aggregator listing,
// best-effort. Missing caps leave the tier "unknown" downstream.
func (s *Service) enrichMarketCaps(ctx context.Context, universe []models.CoinMeta) {
	ids := make([]string, 0, len(universe))
	for _, m := range universe {
		ids = append(ids, m.Asset)
	}
	s.metrics.RecordUpstreamCall("aggregator", "markets")
	metas, err := s.agg.Markets(ctx, ids)
	if err != nil {
		s.metrics.RecordUpstreamError("aggregator", "markets")
		s.l.Warn("market cap enrichment failed", applogger.Error(err))
		return
	}
	caps := make(map[string]float64, len(metas))
	for _, m := range metas {
		caps[m.Asset] = m.MarketCap
	}
	for i := range universe {
		universe[i].MarketCap = caps[universe[i].Asset]
	}
}

// normalize sorts ascending and drops duplicate timestamps, keeping
// the last occurrence.
func normalize(candles []models.Candle) []models.Candle {
	if len(candles) == 0 {
		return candles
	}
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})
	out := candles[:1]
	for _, c := range candles[1:] {
		if c.Timestamp.Equal(out[len(out)-1].Timestamp) {
			out[len(out)-1] = c
			continue
		}
		out = append(out, c)
	}
	return out
}

// ohlcDays maps a (timeframe, count) window onto the aggregator's
// fixed day buckets, picking the smallest bucket covering the window.
func ohlcDays(tf repository.Timeframe, count int) int {
	need := int(tf.Duration().Hours())*count/24 + 1
	for _, d := range []int{1, 7, 14, 30, 90, 180, 365} {
		if need <= d {
			return d
		}
	}
	return 365
}
