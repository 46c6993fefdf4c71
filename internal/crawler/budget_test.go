package crawler

import (
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestBudget(base, average time.Duration) (*Budget, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := NewBudget(base, average)
	b.now = clock.Now
	b.Start()
	return b, clock
}

func TestBudget(t *testing.T) {
	t.Parallel()

	t.Run("expires after base", func(t *testing.T) {
		t.Parallel()

		b, clock := newTestBudget(time.Hour, 5*time.Second)
		clock.now = clock.now.Add(59 * time.Minute)
		if b.Expired() {
			t.Error("expected budget to be running")
		}
		clock.now = clock.now.Add(2 * time.Minute)
		if !b.Expired() {
			t.Error("expected budget to be expired")
		}
	})

	t.Run("compensates slow oracle calls", func(t *testing.T) {
		t.Parallel()

		b, clock := newTestBudget(time.Hour, 5*time.Second)
		b.Compensate(3 * time.Second)
		if b.Extension() != 0 {
			t.Errorf("expected fast call not to extend, got %v", b.Extension())
		}
		b.Compensate(65 * time.Second)
		if b.Extension() != time.Minute {
			t.Errorf("expected one minute extension, got %v", b.Extension())
		}

		clock.now = clock.now.Add(time.Hour + 30*time.Second)
		if b.Expired() {
			t.Error("expected extension to keep budget running")
		}
	})

	t.Run("extension is capped at twice the base", func(t *testing.T) {
		t.Parallel()

		b, _ := newTestBudget(time.Hour, 5*time.Second)
		for range 10 {
			b.Compensate(30 * time.Minute)
		}
		if b.Limit() != 2*time.Hour {
			t.Errorf("expected limit of 2h, got %v", b.Limit())
		}
	})

	t.Run("zero budget never expires", func(t *testing.T) {
		t.Parallel()

		b, clock := newTestBudget(0, time.Second)
		clock.now = clock.now.Add(1000 * time.Hour)
		if b.Expired() {
			t.Error("expected unlimited budget")
		}
	})

	t.Run("start resets extension", func(t *testing.T) {
		t.Parallel()

		b, _ := newTestBudget(time.Hour, time.Second)
		b.Compensate(time.Minute)
		b.Start()
		if b.Extension() != 0 {
			t.Errorf("expected reset extension, got %v", b.Extension())
		}
	})
}
