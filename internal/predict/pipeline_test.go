package predict

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"CoinSight/internal/domain/models"
	"CoinSight/internal/domain/repository"
	"CoinSight/internal/provider/feargreed"
)

type fakeMarket struct {
	universeCalls int64
	universe      []models.CoinMeta
	candles       map[string][]models.Candle
	block         chan struct{} // when set, ResolveUniverse waits on it
}

func (f *fakeMarket) ResolveUniverse(_ context.Context) []models.CoinMeta {
	atomic.AddInt64(&f.universeCalls, 1)
	if f.block != nil {
		<-f.block
	}
	return f.universe
}

func (f *fakeMarket) FetchCandles(_ context.Context, asset string, _ repository.Timeframe, _ int) []models.Candle {
	return f.candles[asset]
}

type fakeQuotes struct {
	prices map[string]float64
}

func (f *fakeQuotes) GetPrice(_ context.Context, asset, _ string, _ bool) (float64, bool) {
	p, ok := f.prices[asset]
	return p, ok
}

type fakeSentiment struct {
	value int
	err   error
}

func (f *fakeSentiment) Latest(_ context.Context) (feargreed.Reading, error) {
	return feargreed.Reading{Value: f.value}, f.err
}

type fakeStore struct {
	mu          sync.Mutex
	inserted    []models.Prediction
	insertErr   error
	regimes     []models.MarketRegime
	latestPreds []models.Prediction
}

func (f *fakeStore) UpsertCandles(_ context.Context, _ []models.Candle) error { return nil }
func (f *fakeStore) LatestCandle(_ context.Context, _ string) (*models.Candle, error) {
	return nil, nil
}
func (f *fakeStore) LatestNCandles(_ context.Context, _ string, _ int) ([]models.Candle, error) {
	return nil, nil
}
func (f *fakeStore) AppendRegime(_ context.Context, r models.MarketRegime) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regimes = append(f.regimes, r)
	return nil
}

func (f *fakeStore) LatestRegime(_ context.Context) (*models.MarketRegime, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.regimes) == 0 {
		return nil, nil
	}
	r := f.regimes[len(f.regimes)-1]
	return &r, nil
}

func (f *fakeStore) InsertPrediction(_ context.Context, p models.Prediction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, p)
	return nil
}

func (f *fakeStore) LatestPredictions(_ context.Context, _ int) ([]models.Prediction, error) {
	return f.latestPreds, nil
}
func (f *fakeStore) Health(_ context.Context) error { return nil }
func (f *fakeStore) Close() error                   { return nil }

// strongBull matches five bullish checks summing to 5.75.
func strongBull() *models.IndicatorSet {
	return &models.IndicatorSet{
		RSI:           65,
		EMA20Trend:    models.TrendUp,
		PriceVsEMA20:  1.2,
		VolumeRatio:   2.1,
		MACD:          1.0,
		MACDSignal:    0.5,
		MACDHistogram: 0.5,
		Momentum24h:   3,
		EMA20:         100,
		EMA50:         105,
		BBPosition:    0.3,
		RSIDivergence: models.DivergenceNone,
		ATR:           2,
		ATRPercent:    2,
	}
}

// threeBull matches exactly three bullish checks summing to 4.0: tier
// medium by score, excluded by the signal-count filter.
func threeBull() *models.IndicatorSet {
	return &models.IndicatorSet{
		RSI:           40,
		EMA20Trend:    models.TrendUp,
		PriceVsEMA20:  0.5,
		VolumeRatio:   1.0,
		MACD:          1.0,
		MACDSignal:    0.5,
		MACDHistogram: 0.5,
		EMA20:         100,
		EMA50:         105,
		BBPosition:    0.3,
		RSIDivergence: models.DivergenceBullish,
		ATR:           2,
		ATRPercent:    2,
	}
}

func flatSeries(n int) []models.Candle {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, n)
	for i := range out {
		out[i] = models.Candle{Timestamp: base.Add(time.Duration(i) * time.Hour), Close: 100}
	}
	return out
}

func newTestPipeline(m MarketData, q Quotes, compute Indicators, s Sentiment, store repository.MarketStore, opts ...Option) *Pipeline {
	return NewPipeline(m, q, compute, s, store, nil, opts...)
}

func indicatorsByAsset(sets map[string]*models.IndicatorSet) Indicators {
	return func(candles []models.Candle, _ repository.Timeframe) *models.IndicatorSet {
		if len(candles) == 0 {
			return nil
		}
		return sets[candles[0].Asset]
	}
}

func TestGenerateFiltersAndRanks(t *testing.T) {
	mkCandles := func(asset string) []models.Candle {
		out := flatSeries(48)
		for i := range out {
			out[i].Asset = asset
		}
		return out
	}
	m := &fakeMarket{
		universe: []models.CoinMeta{
			{Asset: "bitcoin", Pair: "BTCUSDT", MarketCap: 1e12},
			{Asset: "ethereum", Pair: "ETHUSDT", MarketCap: 4e11},
			{Asset: "dogecoin", Pair: "DOGEUSDT", MarketCap: 2e10},
			{Asset: "stellar", Pair: "XLMUSDT", MarketCap: 1e10},
		},
		candles: map[string][]models.Candle{
			"bitcoin":  mkCandles("bitcoin"),
			"ethereum": mkCandles("ethereum"),
			"dogecoin": mkCandles("dogecoin"),
			"stellar":  {}, // too little history, excluded
		},
	}
	q := &fakeQuotes{prices: map[string]float64{"bitcoin": 60000, "ethereum": 3000, "dogecoin": 0.1}}
	compute := indicatorsByAsset(map[string]*models.IndicatorSet{
		"bitcoin":  strongBull(),
		"ethereum": {RSI: 40, ATRPercent: 2}, // no signals, low tier
		"dogecoin": threeBull(),              // 3 signals, dropped by count filter
	})
	store := &fakeStore{}

	p := newTestPipeline(m, q, compute, &fakeSentiment{value: 50}, store)
	preds, err := p.Generate(context.Background())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(preds) != 1 {
		t.Fatalf("got %d predictions, want 1", len(preds))
	}
	pr := preds[0]
	if pr.Asset != "bitcoin" {
		t.Fatalf("surviving asset = %q", pr.Asset)
	}
	if pr.ConfidenceTier != models.TierHigh {
		t.Fatalf("tier = %q, want high", pr.ConfidenceTier)
	}
	if pr.SignalCount != 5 {
		t.Fatalf("signal count = %d, want 5", pr.SignalCount)
	}
	if pr.EntryPrice != 60000 {
		t.Fatalf("entry price = %v, want live quote", pr.EntryPrice)
	}
	// netScore 5.75: 0.5 + 0.05*5.75 + 0.10 = 0.8875, clamped to 0.85.
	if pr.Probability != 0.85 {
		t.Fatalf("probability = %v, want 0.85", pr.Probability)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("persisted %d rows, want 1", len(store.inserted))
	}
	if p.State() != StateIdle {
		t.Fatalf("state = %q after cycle", p.State())
	}
}

func TestGenerationGuard(t *testing.T) {
	m := &fakeMarket{block: make(chan struct{})}
	p := newTestPipeline(m, &fakeQuotes{}, indicatorsByAsset(nil), &fakeSentiment{value: 50}, &fakeStore{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Generate(context.Background())
	}()

	// Wait for the first cycle to enter Generating.
	for i := 0; p.State() != StateGenerating; i++ {
		if i > 1000 {
			t.Fatalf("pipeline never started generating")
		}
		time.Sleep(time.Millisecond)
	}

	preds, err := p.Generate(context.Background())
	if err != nil {
		t.Fatalf("concurrent generate: %v", err)
	}
	if preds != nil {
		t.Fatalf("expected prior (empty) result, got %d", len(preds))
	}
	if got := atomic.LoadInt64(&m.universeCalls); got != 1 {
		t.Fatalf("universe calls = %d, want 1 while in flight", got)
	}

	close(m.block)
	<-done
	if p.State() != StateIdle {
		t.Fatalf("state = %q after completion", p.State())
	}
}

func TestPersistFailureDoesNotAbortCycle(t *testing.T) {
	m := &fakeMarket{
		universe: []models.CoinMeta{{Asset: "bitcoin", Pair: "BTCUSDT", MarketCap: 1e12}},
		candles:  map[string][]models.Candle{"bitcoin": flatSeriesFor("bitcoin", 48)},
	}
	store := &fakeStore{insertErr: errors.New("write failed")}
	p := newTestPipeline(m, &fakeQuotes{prices: map[string]float64{"bitcoin": 60000}},
		indicatorsByAsset(map[string]*models.IndicatorSet{"bitcoin": strongBull()}),
		&fakeSentiment{value: 50}, store)

	preds, err := p.Generate(context.Background())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(preds) != 1 {
		t.Fatalf("in-memory result discarded on persist failure")
	}
}

func TestRegimeClassifiedOncePerCycle(t *testing.T) {
	// BTC up >5% over the last 24 hourly bars forces risk_on.
	btc := flatSeriesFor("bitcoin", 48)
	for i := range btc {
		btc[i].Close = 100
	}
	btc[len(btc)-1].Close = 110

	m := &fakeMarket{
		universe: []models.CoinMeta{{Asset: "bitcoin", Pair: "BTCUSDT"}},
		candles:  map[string][]models.Candle{"bitcoin": btc},
	}
	store := &fakeStore{}
	p := newTestPipeline(m, &fakeQuotes{prices: map[string]float64{"bitcoin": 110}},
		indicatorsByAsset(map[string]*models.IndicatorSet{"bitcoin": strongBull()}),
		&fakeSentiment{err: errors.New("down")}, store)

	if _, err := p.Generate(context.Background()); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(store.regimes) != 1 {
		t.Fatalf("regime logged %d times, want 1", len(store.regimes))
	}
	r := store.regimes[0]
	if r.Regime != models.RegimeRiskOn {
		t.Fatalf("regime = %q, want risk_on", r.Regime)
	}
	// Sentiment failure degrades to a neutral reading.
	if r.FearGreedIndex != 50 {
		t.Fatalf("fear greed = %d, want neutral 50", r.FearGreedIndex)
	}
}

func TestGetPredictionsStaleness(t *testing.T) {
	m := &fakeMarket{
		universe: []models.CoinMeta{{Asset: "bitcoin", Pair: "BTCUSDT", MarketCap: 1e12}},
		candles:  map[string][]models.Candle{"bitcoin": flatSeriesFor("bitcoin", 48)},
	}
	now := time.Now()
	p := newTestPipeline(m, &fakeQuotes{prices: map[string]float64{"bitcoin": 60000}},
		indicatorsByAsset(map[string]*models.IndicatorSet{"bitcoin": strongBull()}),
		&fakeSentiment{value: 50}, &fakeStore{},
		WithStaleness(6*time.Hour),
		WithClock(func() time.Time { return now }),
	)

	if _, err := p.Generate(context.Background()); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := p.GetPredictions(context.Background(), false); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := atomic.LoadInt64(&m.universeCalls); got != 1 {
		t.Fatalf("fresh snapshot should not regenerate, cycles = %d", got)
	}

	now = now.Add(7 * time.Hour)
	if _, err := p.GetPredictions(context.Background(), false); err != nil {
		t.Fatalf("stale read: %v", err)
	}
	if got := atomic.LoadInt64(&m.universeCalls); got != 2 {
		t.Fatalf("stale snapshot should regenerate, cycles = %d", got)
	}
}

func TestColdStartServesPersistedBatch(t *testing.T) {
	m := &fakeMarket{
		universe: []models.CoinMeta{{Asset: "bitcoin", Pair: "BTCUSDT", MarketCap: 1e12}},
		candles:  map[string][]models.Candle{"bitcoin": flatSeriesFor("bitcoin", 48)},
	}
	now := time.Now()
	store := &fakeStore{
		latestPreds: []models.Prediction{
			{Asset: "bitcoin", CreatedAt: now.Add(-time.Hour), Probability: 0.7},
		},
		regimes: []models.MarketRegime{{Regime: models.RegimeNeutral, ThresholdMultiplier: 1.0}},
	}
	p := newTestPipeline(m, &fakeQuotes{prices: map[string]float64{"bitcoin": 60000}},
		indicatorsByAsset(map[string]*models.IndicatorSet{"bitcoin": strongBull()}),
		&fakeSentiment{value: 50}, store,
		WithStaleness(6*time.Hour),
		WithClock(func() time.Time { return now }),
	)

	// A fresh restart has no snapshot in memory or cache; the durable
	// batch serves the read without starting a cycle.
	preds, err := p.GetPredictions(context.Background(), false)
	if err != nil {
		t.Fatalf("cold read: %v", err)
	}
	if len(preds) != 1 || preds[0].Asset != "bitcoin" || preds[0].Probability != 0.7 {
		t.Fatalf("persisted batch not served: %+v", preds)
	}
	if got := atomic.LoadInt64(&m.universeCalls); got != 0 {
		t.Fatalf("cold start regenerated, cycles = %d", got)
	}
	r, err := p.LatestRegime(context.Background())
	if err != nil || r == nil || r.Regime != models.RegimeNeutral {
		t.Fatalf("regime not rebuilt from store: %v %v", r, err)
	}
}

func TestColdStartStaleBatchRegenerates(t *testing.T) {
	m := &fakeMarket{
		universe: []models.CoinMeta{{Asset: "bitcoin", Pair: "BTCUSDT", MarketCap: 1e12}},
		candles:  map[string][]models.Candle{"bitcoin": flatSeriesFor("bitcoin", 48)},
	}
	now := time.Now()
	store := &fakeStore{
		latestPreds: []models.Prediction{
			{Asset: "bitcoin", CreatedAt: now.Add(-7 * time.Hour)},
		},
	}
	p := newTestPipeline(m, &fakeQuotes{prices: map[string]float64{"bitcoin": 60000}},
		indicatorsByAsset(map[string]*models.IndicatorSet{"bitcoin": strongBull()}),
		&fakeSentiment{value: 50}, store,
		WithStaleness(6*time.Hour),
		WithClock(func() time.Time { return now }),
	)

	if _, err := p.GetPredictions(context.Background(), false); err != nil {
		t.Fatalf("stale cold read: %v", err)
	}
	if got := atomic.LoadInt64(&m.universeCalls); got != 1 {
		t.Fatalf("stale persisted batch should regenerate, cycles = %d", got)
	}
}

func flatSeriesFor(asset string, n int) []models.Candle {
	out := flatSeries(n)
	for i := range out {
		out[i].Asset = asset
	}
	return out
}
