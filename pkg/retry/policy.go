// Package retry provides a bounded, jittered exponential backoff policy.
// The policy is a plain value so callers can compute and test delays
// deterministically; jitter is injected via a rand source.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Policy describes a bounded retry schedule. Delay for attempt i
// (0-based) is min(Cap, Base*2^i) plus up to JitterFrac of that value.
// A server-supplied hint (e.g. Retry-After) takes precedence over the
// computed delay when it is longer.
type Policy struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
	JitterFrac  float64
}

// Default returns the policy used against rate-limited quote providers.
func Default() Policy {
	return Policy{
		MaxAttempts: 4,
		Base:        500 * time.Millisecond,
		Cap:         8 * time.Second,
		JitterFrac:  0.2,
	}
}

// Delay computes the backoff delay for the given 0-based attempt,
// without jitter.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.Cap {
			return p.Cap
		}
	}
	if d > p.Cap {
		d = p.Cap
	}
	return d
}

// DelayWithJitter computes the delay for attempt plus random jitter,
// honoring hint when it exceeds the computed delay.
func (p Policy) DelayWithJitter(attempt int, hint time.Duration, rng *rand.Rand) time.Duration {
	d := p.Delay(attempt)
	if hint > d {
		d = hint
	}
	if p.JitterFrac > 0 && rng != nil {
		d += time.Duration(rng.Float64() * p.JitterFrac * float64(d))
	}
	return d
}

// Sleep blocks for the attempt's delay or until ctx is done. It returns
// ctx.Err() when cancelled, nil otherwise.
func (p Policy) Sleep(ctx context.Context, attempt int, hint time.Duration, rng *rand.Rand) error {
	t := time.NewTimer(p.DelayWithJitter(attempt, hint, rng))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
