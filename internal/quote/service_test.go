package quote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	xhttp "CoinSight/pkg/http"
	"CoinSight/pkg/retry"
)

type fakeBatch struct {
	calls  int64
	prices map[string]float64
	err    error
}

func (f *fakeBatch) SimplePrices(_ context.Context, ids []string) (map[string]float64, error) {
	atomic.AddInt64(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]float64, len(ids))
	for _, id := range ids {
		if p, ok := f.prices[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type fakeDirect struct {
	calls int64
	price float64
	err   error
}

func (f *fakeDirect) Price(_ context.Context, _ string) (float64, error) {
	atomic.AddInt64(&f.calls, 1)
	return f.price, f.err
}

func newTestService(batch BatchQuoter) *Service {
	return NewService(nil, batch, nil,
		WithTTL(15*time.Second),
		WithDebounce(20*time.Millisecond, 100*time.Millisecond),
		WithRetryPolicy(retry.Policy{MaxAttempts: 2, Base: time.Millisecond, Cap: 2 * time.Millisecond}),
	)
}

func TestSingleFlight(t *testing.T) {
	batch := &fakeBatch{prices: map[string]float64{"bitcoin": 60000}}
	s := newTestService(batch)

	const n = 16
	var wg sync.WaitGroup
	results := make([]float64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			price, ok := s.GetPrice(context.Background(), "bitcoin", "", false)
			if !ok {
				t.Errorf("caller %d: expected price", i)
				return
			}
			results[i] = price
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt64(&batch.calls); got != 1 {
		t.Fatalf("upstream batch calls = %d, want 1", got)
	}
	for i, p := range results {
		if p != 60000 {
			t.Fatalf("caller %d got %v", i, p)
		}
	}
}

func TestCacheHitWithinTTL(t *testing.T) {
	batch := &fakeBatch{prices: map[string]float64{"ethereum": 3000}}
	s := newTestService(batch)

	if _, ok := s.GetPrice(context.Background(), "ethereum", "", false); !ok {
		t.Fatalf("expected price")
	}
	for i := 0; i < 5; i++ {
		if _, ok := s.GetPrice(context.Background(), "ethereum", "", false); !ok {
			t.Fatalf("expected cached price")
		}
	}
	if got := atomic.LoadInt64(&batch.calls); got != 1 {
		t.Fatalf("upstream calls = %d, want 1", got)
	}
}

func TestTTLExpiry(t *testing.T) {
	batch := &fakeBatch{prices: map[string]float64{"solana": 150}}
	now := time.Now()
	s := NewService(nil, batch, nil,
		WithTTL(15*time.Second),
		WithDebounce(5*time.Millisecond, 20*time.Millisecond),
		WithClock(func() time.Time { return now }),
	)

	if _, ok := s.GetPrice(context.Background(), "solana", "", false); !ok {
		t.Fatalf("expected price")
	}
	now = now.Add(16 * time.Second)
	if _, ok := s.GetPrice(context.Background(), "solana", "", false); !ok {
		t.Fatalf("expected refetched price")
	}
	if got := atomic.LoadInt64(&batch.calls); got != 2 {
		t.Fatalf("upstream calls = %d, want 2 after expiry", got)
	}
}

func TestDirectPathShortCircuits(t *testing.T) {
	batch := &fakeBatch{prices: map[string]float64{}}
	direct := &fakeDirect{price: 60123}
	s := NewService(direct, batch, nil, WithDebounce(5*time.Millisecond, 20*time.Millisecond))

	price, ok := s.GetPrice(context.Background(), "bitcoin", "BTCUSDT", false)
	if !ok || price != 60123 {
		t.Fatalf("got %v %v, want direct price", price, ok)
	}
	if atomic.LoadInt64(&batch.calls) != 0 {
		t.Fatalf("batch should not be called on direct success")
	}
}

func TestDirectFailureFallsBackToBatch(t *testing.T) {
	batch := &fakeBatch{prices: map[string]float64{"bitcoin": 59000}}
	direct := &fakeDirect{err: errors.New("timeout")}
	s := newTestService(batch)
	s.direct = direct

	price, ok := s.GetPrice(context.Background(), "bitcoin", "BTCUSDT", false)
	if !ok || price != 59000 {
		t.Fatalf("got %v %v, want batch fallback", price, ok)
	}
}

func TestRetriesExhaustedResolveNull(t *testing.T) {
	batch := &fakeBatch{err: &xhttp.StatusError{Code: 429, Body: "slow down"}}
	s := newTestService(batch)

	price, ok := s.GetPrice(context.Background(), "bitcoin", "", false)
	if ok {
		t.Fatalf("expected unresolved price, got %v", price)
	}
	if got := atomic.LoadInt64(&batch.calls); got != 2 {
		t.Fatalf("upstream calls = %d, want MaxAttempts", got)
	}
}

func TestBatchPopulatesEveryMember(t *testing.T) {
	batch := &fakeBatch{prices: map[string]float64{"bitcoin": 60000, "ethereum": 3000, "solana": 150}}
	s := newTestService(batch)

	out := s.GetPrices(context.Background(), []string{"bitcoin", "ethereum", "solana", "bitcoin"})
	if len(out) != 3 {
		t.Fatalf("resolved %d assets, want 3", len(out))
	}
	if got := atomic.LoadInt64(&batch.calls); got != 1 {
		t.Fatalf("upstream calls = %d, want 1", got)
	}
	// All members now cached; further reads hit no upstream.
	s.GetPrice(context.Background(), "ethereum", "", false)
	if got := atomic.LoadInt64(&batch.calls); got != 1 {
		t.Fatalf("upstream calls after cache hit = %d, want 1", got)
	}
}

func TestForceRefreshSkipsCache(t *testing.T) {
	batch := &fakeBatch{prices: map[string]float64{"bitcoin": 60000}}
	s := newTestService(batch)

	s.GetPrice(context.Background(), "bitcoin", "", false)
	s.GetPrice(context.Background(), "bitcoin", "", true)
	if got := atomic.LoadInt64(&batch.calls); got != 2 {
		t.Fatalf("upstream calls = %d, want 2 with force refresh", got)
	}
}

func TestWindowCapBeatsContinuousJoins(t *testing.T) {
	batch := &fakeBatch{prices: map[string]float64{"anchor": 1}}
	s := NewService(nil, batch, nil,
		WithTTL(15*time.Second),
		WithDebounce(25*time.Millisecond, 80*time.Millisecond),
		WithRetryPolicy(retry.Policy{MaxAttempts: 1, Base: time.Millisecond, Cap: time.Millisecond}),
	)

	start := time.Now()
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.GetPrice(context.Background(), "anchor", "", false)
	}()

	// Fresh joins arrive faster than the debounce delay; each one
	// extends the window, but never past the cap measured from when
	// the window opened.
	stop := make(chan struct{})
	go func() {
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			case <-time.After(10 * time.Millisecond):
				go s.GetPrice(context.Background(), fmt.Sprintf("filler-%d", i), "", false)
			}
		}
	}()
	defer close(stop)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("flush starved by continuous joins")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("anchor resolved after %v, window cap not applied", elapsed)
	}
	if got := atomic.LoadInt64(&batch.calls); got < 1 {
		t.Fatalf("upstream calls = %d, want at least 1", got)
	}
}
