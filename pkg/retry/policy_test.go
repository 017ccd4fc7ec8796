package retry

import (
	"math/rand"
	"testing"
	"time"
)

func TestDelayMonotonicUpToCap(t *testing.T) {
	p := Policy{MaxAttempts: 8, Base: 100 * time.Millisecond, Cap: time.Second}
	prev := time.Duration(0)
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		d := p.Delay(attempt)
		if d < prev {
			t.Fatalf("delay decreased at attempt %d: %v < %v", attempt, d, prev)
		}
		if d > p.Cap {
			t.Fatalf("delay exceeds cap at attempt %d: %v", attempt, d)
		}
		prev = d
	}
	if p.Delay(p.MaxAttempts-1) != p.Cap {
		t.Fatalf("late attempts should reach the cap")
	}
}

func TestDelayExactSchedule(t *testing.T) {
	p := Policy{Base: 500 * time.Millisecond, Cap: 8 * time.Second}
	want := []time.Duration{
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		8 * time.Second,
	}
	for attempt, w := range want {
		if got := p.Delay(attempt); got != w {
			t.Fatalf("Delay(%d) = %v, want %v", attempt, got, w)
		}
	}
}

func TestHintOverridesShorterDelay(t *testing.T) {
	p := Policy{Base: 100 * time.Millisecond, Cap: time.Second}
	hint := 3 * time.Second
	if got := p.DelayWithJitter(0, hint, nil); got != hint {
		t.Fatalf("got %v, want server hint %v", got, hint)
	}
	// A shorter hint defers to the computed delay.
	if got := p.DelayWithJitter(3, 10*time.Millisecond, nil); got != 800*time.Millisecond {
		t.Fatalf("got %v, want computed 800ms", got)
	}
}

func TestJitterBounded(t *testing.T) {
	p := Policy{Base: 100 * time.Millisecond, Cap: time.Second, JitterFrac: 0.2}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		d := p.DelayWithJitter(1, 0, rng)
		base := 200 * time.Millisecond
		if d < base || d > base+base/5 {
			t.Fatalf("jittered delay %v outside [%v, %v]", d, base, base+base/5)
		}
	}
}

func TestNegativeAttemptClamped(t *testing.T) {
	p := Default()
	if got := p.Delay(-3); got != p.Base {
		t.Fatalf("Delay(-3) = %v, want base", got)
	}
}
