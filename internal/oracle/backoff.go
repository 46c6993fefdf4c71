package oracle

import (
	"math/rand/v2"
	"time"
)

// Backoff yields the wait before a retry.
type Backoff interface {
	Next(attempt int) time.Duration
}

// ExponentialBackoff grows the wait by Factor per attempt up to Max and
// spreads it by +/- Jitter.
type ExponentialBackoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64
}

// DefaultBackoff starts at 1s and caps at 60s, which matches the one
// minute cool-down typical model providers ask for on HTTP 429.
func DefaultBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		Base:   1 * time.Second,
		Max:    60 * time.Second,
		Factor: 2.0,
		Jitter: 0.2,
	}
}

// Next returns the wait for the zero-based attempt.
func (b *ExponentialBackoff) Next(attempt int) time.Duration {
	if attempt < 0 {
		return b.Base
	}

	delay := float64(b.Base)
	for range attempt {
		delay *= b.Factor
		if delay > float64(b.Max) {
			break
		}
	}
	delay = min(delay, float64(b.Max))

	if b.Jitter > 0 {
		delay += delay * (rand.Float64()*2 - 1) * b.Jitter //nolint:gosec // jitter only
	}
	if delay < 0 {
		return 0
	}
	return time.Duration(delay)
}
