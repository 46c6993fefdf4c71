package navigation

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
)

// DefaultMaxFailedCount is the failure ceiling above which a node is
// dropped as unschedulable.
const DefaultMaxFailedCount = 10

// DefaultDeleteGate is the threshold a draw from [0, 100] must reach before
// an ungated delete cluster is scheduled.
const DefaultDeleteGate = 90

// CycleStrategy selects how LinkClusters resolves a cycle.
type CycleStrategy string

const (
	// CycleMerge collapses every cluster on the cycle into one survivor.
	CycleMerge CycleStrategy = "merge"

	// CycleBreak removes one randomly chosen edge of the cycle.
	CycleBreak CycleStrategy = "break"

	// CycleSkip leaves the graph untouched and only refuses the new edge.
	CycleSkip CycleStrategy = "skip"
)

// ParseCycleStrategy converts a configuration string to a CycleStrategy.
func ParseCycleStrategy(s string) (CycleStrategy, error) {
	switch CycleStrategy(s) {
	case CycleMerge, CycleBreak, CycleSkip:
		return CycleStrategy(s), nil
	case "":
		return CycleMerge, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCycleStrategy, s)
	}
}

// CycleEvent describes a resolved cycle.
type CycleEvent struct {
	// Path lists the clusters of the cycle starting at the destination of
	// the refused edge and ending at its source.
	Path []ClusterKey

	// Strategy is the resolution that was applied.
	Strategy CycleStrategy

	// Removed is the edge deleted by CycleBreak.
	Removed [2]ClusterKey

	// Merged lists the clusters absorbed by CycleMerge.
	Merged []ClusterKey
}

// Option configures a DependencyGraph.
type Option func(*DependencyGraph)

// WithMaxFailedCount sets the failure ceiling for nodes.
func WithMaxFailedCount(n int) Option {
	return func(g *DependencyGraph) {
		g.maxFailedCount = n
	}
}

// WithCycleStrategy sets how cycles are resolved.
func WithCycleStrategy(s CycleStrategy) Option {
	return func(g *DependencyGraph) {
		g.strategy = s
	}
}

// WithRand sets the random source used for sampling and cycle breaking.
// Tests pass a seeded source to get reproducible results.
func WithRand(r *rand.Rand) Option {
	return func(g *DependencyGraph) {
		g.rng = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *DependencyGraph) {
		g.logger = logger
	}
}

// WithRelationCache replaces the in-memory relation cache, e.g. with one
// shared through Redis.
func WithRelationCache(cache RelationCache) Option {
	return func(g *DependencyGraph) {
		g.relations = cache
	}
}

// WithCycleObserver registers a callback invoked after each resolved cycle.
func WithCycleObserver(fn func(CycleEvent)) Option {
	return func(g *DependencyGraph) {
		g.onCycle = fn
	}
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithDeleteGate sets the delete gate threshold in [0, 101]. A threshold of
// 0 always lets ungated delete clusters through and 101 never does.
func WithDeleteGate(threshold int) SchedulerOption {
	return func(s *Scheduler) {
		s.deleteGate = threshold
	}
}

// WithSchedulerRand sets the scheduler's random source. By default the
// scheduler shares the graph's source.
func WithSchedulerRand(r *rand.Rand) SchedulerOption {
	return func(s *Scheduler) {
		s.rng = r
	}
}

// WithSchedulerLogger sets the scheduler's logger.
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// NewRand returns a PCG-backed source. A zero seed yields a random seed.
func NewRand(seed uint64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // scheduling, not security
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) //nolint:gosec // scheduling, not security
}
