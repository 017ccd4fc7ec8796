package market

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"CoinSight/internal/domain/models"
	"CoinSight/internal/domain/repository"
	"CoinSight/internal/provider/binance"
)

type fakeStore struct {
	latest   *models.Candle
	stored   []models.Candle
	upserted [][]models.Candle
}

func (f *fakeStore) UpsertCandles(_ context.Context, candles []models.Candle) error {
	f.upserted = append(f.upserted, candles)
	return nil
}

func (f *fakeStore) LatestCandle(_ context.Context, _ string) (*models.Candle, error) {
	return f.latest, nil
}

func (f *fakeStore) LatestNCandles(_ context.Context, _ string, n int) ([]models.Candle, error) {
	if len(f.stored) > n {
		return f.stored[len(f.stored)-n:], nil
	}
	return f.stored, nil
}

func (f *fakeStore) AppendRegime(_ context.Context, _ models.MarketRegime) error { return nil }
func (f *fakeStore) LatestRegime(_ context.Context) (*models.MarketRegime, error) {
	return nil, nil
}
func (f *fakeStore) InsertPrediction(_ context.Context, _ models.Prediction) error { return nil }
func (f *fakeStore) LatestPredictions(_ context.Context, _ int) ([]models.Prediction, error) {
	return nil, nil
}
func (f *fakeStore) Health(_ context.Context) error { return nil }
func (f *fakeStore) Close() error                   { return nil }

type fakeVenue struct {
	klineCalls  int64
	tickerCalls int64
	candles     []models.Candle
	tickers     []binance.Ticker24h
	err         error
}

func (f *fakeVenue) Klines(_ context.Context, _, _, _ string, _ int) ([]models.Candle, error) {
	atomic.AddInt64(&f.klineCalls, 1)
	return f.candles, f.err
}

func (f *fakeVenue) Tickers24h(_ context.Context, _ []string) ([]binance.Ticker24h, error) {
	atomic.AddInt64(&f.tickerCalls, 1)
	return f.tickers, f.err
}

type fakeAgg struct {
	ohlcCalls int64
	candles   []models.Candle
	metas     []models.CoinMeta
	err       error
}

func (f *fakeAgg) OHLC(_ context.Context, _, _ string, _ int) ([]models.Candle, error) {
	atomic.AddInt64(&f.ohlcCalls, 1)
	return f.candles, f.err
}

func (f *fakeAgg) Markets(_ context.Context, _ []string) ([]models.CoinMeta, error) {
	return f.metas, f.err
}

func series(n int, start time.Time) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		out[i] = models.Candle{
			Asset:     "bitcoin",
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      100, High: 101, Low: 99, Close: 100, Volume: 10,
		}
	}
	return out
}

func TestFreshLocalHistorySkipsNetwork(t *testing.T) {
	now := time.Now()
	stored := series(50, now.Add(-50*time.Hour))
	store := &fakeStore{latest: &stored[len(stored)-1], stored: stored}
	venue := &fakeVenue{}
	agg := &fakeAgg{}
	// Latest candle is 1h old minus a bit; still inside the window.
	store.latest.Timestamp = now.Add(-30 * time.Minute)

	s := NewService(store, venue, agg, nil, WithFreshness(time.Hour))
	got := s.FetchCandles(context.Background(), "bitcoin", repository.TF1h, 40)
	if len(got) != 40 {
		t.Fatalf("got %d candles, want 40", len(got))
	}
	if venue.klineCalls != 0 || agg.ohlcCalls != 0 {
		t.Fatalf("expected zero upstream calls, got venue=%d agg=%d", venue.klineCalls, agg.ohlcCalls)
	}
}

func TestStaleHistoryFetchesAndUpserts(t *testing.T) {
	now := time.Now()
	fresh := series(48, now.Add(-48*time.Hour))
	store := &fakeStore{}
	venue := &fakeVenue{candles: fresh}
	agg := &fakeAgg{}

	s := NewService(store, venue, agg, nil, WithFreshness(time.Hour))
	got := s.FetchCandles(context.Background(), "bitcoin", repository.TF1h, 48)
	if len(got) != 48 {
		t.Fatalf("got %d candles, want 48", len(got))
	}
	if venue.klineCalls != 1 {
		t.Fatalf("venue calls = %d, want 1", venue.klineCalls)
	}
	if len(store.upserted) != 1 {
		t.Fatalf("expected one upsert batch, got %d", len(store.upserted))
	}
}

func TestVenueFailureFallsBackToAggregator(t *testing.T) {
	now := time.Now()
	store := &fakeStore{}
	venue := &fakeVenue{err: errors.New("503")}
	agg := &fakeAgg{candles: series(40, now.Add(-40*time.Hour))}

	s := NewService(store, venue, agg, nil)
	got := s.FetchCandles(context.Background(), "bitcoin", repository.TF1h, 40)
	if len(got) != 40 {
		t.Fatalf("got %d candles, want aggregator fallback", len(got))
	}
	if agg.ohlcCalls != 1 {
		t.Fatalf("aggregator calls = %d, want 1", agg.ohlcCalls)
	}
}

func TestAllSourcesFailingYieldEmpty(t *testing.T) {
	store := &fakeStore{}
	venue := &fakeVenue{err: errors.New("down")}
	agg := &fakeAgg{err: errors.New("down")}

	s := NewService(store, venue, agg, nil)
	got := s.FetchCandles(context.Background(), "bitcoin", repository.TF1h, 40)
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %d", len(got))
	}
	if len(store.upserted) != 0 {
		t.Fatalf("nothing should be upserted on total failure")
	}
}

func TestNormalizeSortsAndDedupes(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	in := []models.Candle{
		{Timestamp: base.Add(2 * time.Hour), Close: 3},
		{Timestamp: base, Close: 1},
		{Timestamp: base.Add(time.Hour), Close: 2},
		{Timestamp: base.Add(time.Hour), Close: 9}, // duplicate, later wins
	}
	out := normalize(in)
	if len(out) != 3 {
		t.Fatalf("got %d candles, want 3", len(out))
	}
	if out[1].Close != 9 {
		t.Fatalf("duplicate timestamp should keep last value, got %v", out[1].Close)
	}
	for i := 1; i < len(out); i++ {
		if !out[i-1].Timestamp.Before(out[i].Timestamp) {
			t.Fatalf("not ascending at %d", i)
		}
	}
}

func TestResolveUniverseFilters(t *testing.T) {
	venue := &fakeVenue{tickers: []binance.Ticker24h{
		{Pair: "BTCUSDT", LastPrice: 60000, QuoteVolume: 5e9},
		{Pair: "ETHUSDT", LastPrice: 3000, QuoteVolume: 2e9},
		{Pair: "DOGEUSDT", LastPrice: 0.1, QuoteVolume: 5e5}, // below floor
	}}
	agg := &fakeAgg{metas: []models.CoinMeta{
		{Asset: "bitcoin", MarketCap: 1.2e12},
		{Asset: "ethereum", MarketCap: 4e11},
	}}

	s := NewService(&fakeStore{}, venue, agg, nil,
		WithMinVolume(1e6),
		WithTargets([]string{"bitcoin", "ethereum", "dogecoin", "tether", "solana"}),
	)
	universe := s.ResolveUniverse(context.Background())
	if len(universe) != 2 {
		t.Fatalf("universe size = %d, want 2", len(universe))
	}
	for _, m := range universe {
		if m.Asset == "dogecoin" {
			t.Fatalf("thin listing should be filtered")
		}
		if m.Asset == "tether" {
			t.Fatalf("denylisted asset should be filtered")
		}
		if m.Asset == "solana" {
			t.Fatalf("unquoted asset should be dropped")
		}
	}
	if universe[0].MarketCap == 0 {
		t.Fatalf("expected market cap enrichment")
	}
}

func TestResolveUniverseFallback(t *testing.T) {
	venue := &fakeVenue{err: errors.New("down")}
	agg := &fakeAgg{err: errors.New("down")}

	s := NewService(&fakeStore{}, venue, agg, nil, WithTargets([]string{"bitcoin"}))
	universe := s.ResolveUniverse(context.Background())
	if len(universe) != len(fallbackUniverse) {
		t.Fatalf("universe size = %d, want fallback %d", len(universe), len(fallbackUniverse))
	}
}
