// Package predict orchestrates one prediction cycle: resolve the
// universe, classify the market regime once, score every asset, rank,
// truncate, and persist. Cycles are serialized by an explicit
// Idle/Generating state machine; overlapping generation requests
// collapse to the last completed result.
package predict

import (
	"context"
	"sync"
	"time"

	"CoinSight/internal/domain/models"
	"CoinSight/internal/domain/repository"
	"CoinSight/internal/provider/feargreed"
	"CoinSight/internal/signal"
	"CoinSight/pkg/cache"
	applogger "CoinSight/pkg/logger"
)

// Pipeline states.
const (
	StateIdle       = "idle"
	StateGenerating = "generating"
)

const snapshotKey = "predictions:latest"

// MarketData supplies the universe and candle histories.
type MarketData interface {
	ResolveUniverse(ctx context.Context) []models.CoinMeta
	FetchCandles(ctx context.Context, asset string, tf repository.Timeframe, count int) []models.Candle
}

// Quotes supplies live prices; entry prices always force a refresh.
type Quotes interface {
	GetPrice(ctx context.Context, asset, tickerHint string, forceRefresh bool) (float64, bool)
}

// Indicators computes an indicator set from candles.
type Indicators func(candles []models.Candle, tf repository.Timeframe) *models.IndicatorSet

// Sentiment supplies the external fear/greed reading.
type Sentiment interface {
	Latest(ctx context.Context) (feargreed.Reading, error)
}

// Publisher emits prediction events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// Snapshot is the cached result of the last completed cycle.
type Snapshot struct {
	GeneratedAt time.Time           `json:"generated_at"`
	Regime      models.MarketRegime `json:"regime"`
	Predictions []models.Prediction `json:"predictions"`
}

// Pipeline drives prediction generation.
type Pipeline struct {
	market    MarketData
	quotes    Quotes
	compute   Indicators
	sentiment Sentiment
	store     repository.MarketStore
	snapshots cache.Service
	publisher Publisher
	metrics   repository.Metrics
	l         *applogger.Logger

	tf          repository.Timeframe
	candleCount int
	windowHours int
	topN        int
	staleness   time.Duration
	topic       string
	workers     int

	mu    sync.Mutex
	state string
	last  *Snapshot

	now func() time.Time
}

// Option configures the Pipeline.
type Option func(*Pipeline)

// WithTimeframe sets the candle resolution and history depth.
func WithTimeframe(tf repository.Timeframe, count int) Option {
	return func(p *Pipeline) {
		p.tf = tf
		p.candleCount = count
	}
}

// WithWindow sets the prediction horizon in hours.
func WithWindow(hours int) Option {
	return func(p *Pipeline) { p.windowHours = hours }
}

// WithTopN caps the ranked output size.
func WithTopN(n int) Option {
	return func(p *Pipeline) { p.topN = n }
}

// WithStaleness sets how old a cached snapshot may be before a read
// triggers regeneration.
func WithStaleness(d time.Duration) Option {
	return func(p *Pipeline) { p.staleness = d }
}

// WithSnapshots attaches a snapshot cache surviving restarts.
func WithSnapshots(c cache.Service) Option {
	return func(p *Pipeline) { p.snapshots = c }
}

// WithPublisher attaches an event publisher and topic.
func WithPublisher(pub Publisher, topic string) Option {
	return func(p *Pipeline) {
		p.publisher = pub
		p.topic = topic
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m repository.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline creates a prediction pipeline.
func NewPipeline(m MarketData, q Quotes, compute Indicators, s Sentiment, store repository.MarketStore, l *applogger.Logger, opts ...Option) *Pipeline {
	if l == nil {
		l = applogger.Nop()
	}
	p := &Pipeline{
		market:      m,
		quotes:      q,
		compute:     compute,
		sentiment:   s,
		store:       store,
		metrics:     repository.NopMetrics{},
		l:           l,
		tf:          repository.DefaultTimeframe(),
		candleCount: 168,
		windowHours: 24,
		topN:        40,
		staleness:   6 * time.Hour,
		workers:     8,
		state:       StateIdle,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the current pipeline state.
func (p *Pipeline) State() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// LatestRegime returns the last classified regime, nil before the
// first completed cycle (the durable log is the fallback).
func (p *Pipeline) LatestRegime(ctx context.Context) (*models.MarketRegime, error) {
	p.mu.Lock()
	if p.last != nil {
		r := p.last.Regime
		p.mu.Unlock()
		return &r, nil
	}
	p.mu.Unlock()
	return p.store.LatestRegime(ctx)
}

// GetPredictions returns the last snapshot, regenerating when it is
// older than the staleness bound or a refresh is forced.
func (p *Pipeline) GetPredictions(ctx context.Context, forceRefresh bool) ([]models.Prediction, error) {
	if !forceRefresh {
		if snap := p.snapshot(ctx); snap != nil && p.now().Sub(snap.GeneratedAt) < p.staleness {
			p.metrics.RecordCacheHit("predictions")
			return snap.Predictions, nil
		}
		p.metrics.RecordCacheMiss("predictions")
	}
	return p.Generate(ctx)
}

// snapshot returns the in-memory snapshot, falling back to the shared
// cache and then to the durable prediction log, so a restarted process
// serves the previous cycle instead of regenerating on first read.
func (p *Pipeline) snapshot(ctx context.Context) *Snapshot {
	p.mu.Lock()
	if p.last != nil {
		snap := p.last
		p.mu.Unlock()
		return snap
	}
	p.mu.Unlock()

	snap := p.cachedSnapshot(ctx)
	if snap == nil {
		snap = p.storedSnapshot(ctx)
	}
	if snap == nil {
		return nil
	}
	p.mu.Lock()
	if p.last == nil {
		p.last = snap
	}
	p.mu.Unlock()
	return snap
}

func (p *Pipeline) cachedSnapshot(ctx context.Context) *Snapshot {
	if p.snapshots == nil {
		return nil
	}
	var snap Snapshot
	if err := p.snapshots.Get(ctx, snapshotKey, &snap); err != nil {
		return nil
	}
	return &snap
}

// storedSnapshot rebuilds a snapshot from the persisted latest batch.
// Row timestamps carry through as GeneratedAt, so the staleness bound
// applies to the stored batch the same as to a cached one.
func (p *Pipeline) storedSnapshot(ctx context.Context) *Snapshot {
	preds, err := p.store.LatestPredictions(ctx, p.topN)
	if err != nil || len(preds) == 0 {
		return nil
	}
	snap := &Snapshot{GeneratedAt: preds[0].CreatedAt, Predictions: preds}
	if r, err := p.store.LatestRegime(ctx); err == nil && r != nil {
		snap.Regime = *r
	}
	return snap
}

// Generate runs one full cycle. A request arriving while a cycle is in
// flight does not start a second one; it returns the last completed
// result immediately.
func (p *Pipeline) Generate(ctx context.Context) ([]models.Prediction, error) {
	p.mu.Lock()
	if p.state == StateGenerating {
		var prior []models.Prediction
		if p.last != nil {
			prior = p.last.Predictions
		}
		p.mu.Unlock()
		return prior, nil
	}
	p.state = StateGenerating
	p.mu.Unlock()
	p.metrics.SetPipelineState(true)

	start := p.now()
	defer func() {
		p.mu.Lock()
		p.state = StateIdle
		p.mu.Unlock()
		p.metrics.SetPipelineState(false)
		p.metrics.RecordCycleDuration(p.now().Sub(start).Seconds())
	}()

	universe := p.market.ResolveUniverse(ctx)
	regime := p.resolveRegime(ctx)
	p.l.Info("prediction cycle started",
		applogger.Int("universe", len(universe)),
		applogger.String("regime", regime.Regime),
		applogger.Float64("btc_24h", regime.BTC24hChange),
		applogger.Int("fear_greed", regime.FearGreedIndex),
	)

	candidates := p.scoreUniverse(ctx, universe, regime)
	ranked := Rank(candidates, p.topN)

	for _, pred := range ranked {
		if err := p.store.InsertPrediction(ctx, pred); err != nil {
			// Per-row persistence failures never abort the cycle.
			p.l.Error("prediction persist failed",
				applogger.String("asset", pred.Asset),
				applogger.Error(err),
			)
		}
	}
	p.metrics.RecordPredictions(len(ranked))
	p.publish(ctx, ranked)

	snap := &Snapshot{GeneratedAt: p.now(), Regime: regime, Predictions: ranked}
	p.mu.Lock()
	p.last = snap
	p.mu.Unlock()
	if p.snapshots != nil {
		if err := p.snapshots.Set(ctx, snapshotKey, snap, p.staleness); err != nil {
			p.l.Warn("snapshot cache write failed", applogger.Error(err))
		}
	}

	p.l.Info("prediction cycle finished",
		applogger.Int("candidates", len(candidates)),
		applogger.Int("ranked", len(ranked)),
		applogger.Duration("duration_ms", p.now().Sub(start)),
	)
	return ranked, nil
}

// resolveRegime classifies the cycle's market regime from BTC 24h
// change and the fear/greed index, once per cycle. Sentiment failures
// degrade to a neutral reading.
func (p *Pipeline) resolveRegime(ctx context.Context) models.MarketRegime {
	var btcChange float64
	btc := p.market.FetchCandles(ctx, "bitcoin", p.tf, p.candleCount)
	if n := p.periodsPerDay(); len(btc) > n {
		prev := btc[len(btc)-1-n].Close
		if prev != 0 {
			btcChange = (btc[len(btc)-1].Close - prev) / prev * 100
		}
	}

	fgi := 50
	if p.sentiment != nil {
		p.metrics.RecordUpstreamCall("sentiment", "fng")
		reading, err := p.sentiment.Latest(ctx)
		if err != nil {
			p.metrics.RecordUpstreamError("sentiment", "fng")
			p.l.Warn("fear greed fetch failed, assuming neutral", applogger.Error(err))
		} else {
			fgi = reading.Value
		}
	}

	regimeName, mult := models.ClassifyRegime(btcChange, fgi)
	regime := models.MarketRegime{
		Timestamp:           p.now().UTC(),
		BTC24hChange:        btcChange,
		FearGreedIndex:      fgi,
		Regime:              regimeName,
		ThresholdMultiplier: mult,
	}
	if err := p.store.AppendRegime(ctx, regime); err != nil {
		p.l.Warn("regime log append failed", applogger.Error(err))
	}
	return regime
}

func (p *Pipeline) periodsPerDay() int {
	if h := p.tf.Duration().Hours(); h > 0 && h < 24 {
		return int(24 / h)
	}
	return 1
}

// scoreUniverse evaluates every asset against the shared regime
// snapshot. Per-asset failures are skipped, never fatal. Assets are
// scored concurrently; the regime is the only shared read.
func (p *Pipeline) scoreUniverse(ctx context.Context, universe []models.CoinMeta, regime models.MarketRegime) []models.Prediction {
	var (
		mu        sync.Mutex
		out       = make([]models.Prediction, 0, len(universe))
		wg        sync.WaitGroup
		sem       = make(chan struct{}, p.workers)
		createdAt = p.now().UTC()
	)
	for _, meta := range universe {
		wg.Add(1)
		sem <- struct{}{}
		go func(meta models.CoinMeta) {
			defer wg.Done()
			defer func() { <-sem }()
			pred, ok := p.scoreAsset(ctx, meta, regime, createdAt)
			if !ok {
				return
			}
			mu.Lock()
			out = append(out, pred)
			mu.Unlock()
		}(meta)
	}
	wg.Wait()
	return out
}

// scoreAsset runs indicators, signals, levels, and probability for one
// asset. Returns false when the asset is excluded for the cycle.
func (p *Pipeline) scoreAsset(ctx context.Context, meta models.CoinMeta, regime models.MarketRegime, createdAt time.Time) (models.Prediction, bool) {
	candles := p.market.FetchCandles(ctx, meta.Asset, p.tf, p.candleCount)
	in := p.compute(candles, p.tf)
	if in == nil {
		return models.Prediction{}, false
	}

	// Entry price must be live at generation time, never a stale read.
	price, ok := p.quotes.GetPrice(ctx, meta.Asset, meta.Pair, true)
	if !ok || price <= 0 {
		p.l.Debug("no live price, skipping", applogger.String("asset", meta.Asset))
		return models.Prediction{}, false
	}

	set := signal.Generate(in, meta, regime)
	signalCount := set.BullSignalCount()
	if set.ConfidenceTier == models.TierLow || signalCount < 4 {
		return models.Prediction{}, false
	}

	levels := signal.CalculateEntryExit(price, in)
	ret := signal.ExpectedReturnRange(set.ConfidenceTier, set.VolatilityTier)

	return models.Prediction{
		Asset:          meta.Asset,
		CreatedAt:      createdAt,
		WindowHours:    p.windowHours,
		Probability:    Probability(set.NetScore, set.ConfidenceTier),
		ConfidenceTier: set.ConfidenceTier,
		SignalCount:    signalCount,
		Signals:        set.Signals,
		NetScore:       set.NetScore,
		EntryPrice:     levels.EntryPrice,
		StopLoss:       levels.StopLoss,
		TakeProfit:     levels.TakeProfit,
		ExpectedReturn: ret,
		MarketCapTier:  set.MarketCapTier,
		VolatilityTier: set.VolatilityTier,
	}, true
}

// publish emits one event per prediction, best-effort.
func (p *Pipeline) publish(ctx context.Context, preds []models.Prediction) {
	if p.publisher == nil || p.topic == "" {
		return
	}
	for _, pred := range preds {
		if err := p.publisher.Publish(ctx, p.topic, []byte(pred.Asset), pred); err != nil {
			p.l.Warn("prediction publish failed",
				applogger.String("asset", pred.Asset),
				applogger.Error(err),
			)
			return
		}
	}
}
