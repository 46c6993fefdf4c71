package crawler

import (
	"sync"
	"time"
)

// Budget defaults.
const (
	DefaultMaxCrawlTime      = 8 * time.Hour
	DefaultAverageOracleTime = 5 * time.Second
)

// Budget is the wall-clock allowance of a crawl. Slow oracle answers are
// paid back: the part of a call beyond the expected average extends the
// budget, up to twice the base allowance.
type Budget struct {
	mu        sync.Mutex
	base      time.Duration
	average   time.Duration
	extension time.Duration
	start     time.Time
	now       func() time.Time
}

// NewBudget creates a budget of maxCrawlTime. Oracle calls are expected to
// take averageOracleTime.
func NewBudget(maxCrawlTime, averageOracleTime time.Duration) *Budget {
	return &Budget{
		base:    maxCrawlTime,
		average: averageOracleTime,
		now:     time.Now,
	}
}

// Start starts the clock.
func (b *Budget) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.start = b.now()
	b.extension = 0
}

// Compensate extends the budget for an oracle call that took elapsed.
func (b *Budget) Compensate(elapsed time.Duration) {
	if elapsed <= b.average {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.extension = min(b.extension+elapsed-b.average, b.base)
}

// Limit returns the current allowance.
func (b *Budget) Limit() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.base + b.extension
}

// Extension returns the time added by Compensate.
func (b *Budget) Extension() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.extension
}

// Elapsed returns the time since Start.
func (b *Budget) Elapsed() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.now().Sub(b.start)
}

// Expired reports whether the allowance is used up. A budget of zero
// never expires.
func (b *Budget) Expired() bool {
	if b.base <= 0 {
		return false
	}
	return b.Elapsed() > b.Limit()
}
