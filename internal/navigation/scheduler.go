package navigation

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"slices"
)

// Scheduler picks the next action to execute from a DependencyGraph and
// applies execution feedback to it.
type Scheduler struct {
	graph      *DependencyGraph
	rng        *rand.Rand
	deleteGate int
	logger     *slog.Logger
}

// NewScheduler creates a scheduler over graph.
func NewScheduler(graph *DependencyGraph, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		graph:      graph,
		deleteGate: DefaultDeleteGate,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = graph.rng
	}
	if s.logger == nil {
		s.logger = graph.logger
	}
	return s
}

// Graph returns the underlying dependency graph.
func (s *Scheduler) Graph() *DependencyGraph {
	return s.graph
}

// Eligible returns every cluster whose predecessor closure is empty,
// including clusters that have no pending nodes themselves.
func (s *Scheduler) Eligible() []*Cluster {
	var out []*Cluster
	for _, c := range s.graph.order {
		if s.graph.IsAllPredecessorsEmpty(c, nil) {
			out = append(out, c)
		}
	}
	return out
}

// Pick selects and removes the next node. The boolean is false when no
// cluster is ready.
//
// A random eligible cluster is drawn until one is accepted. Empty clusters
// are discarded. A delete cluster without a confirmed unmet dependency is
// accepted only when a draw from [0, 100] reaches the delete gate. Within
// the accepted cluster a node with the lowest failed count is chosen at
// random.
func (s *Scheduler) Pick(ctx context.Context) (Node, bool) {
	candidates := s.Eligible()

	var chosen *Cluster
	for len(candidates) > 0 {
		i := s.rng.IntN(len(candidates))
		c := candidates[i]
		if !c.IsEmpty() && s.accept(ctx, c) {
			chosen = c
			break
		}
		candidates = slices.Delete(candidates, i, i+1)
	}
	if chosen == nil {
		return Node{}, false
	}

	lowest := chosen.minFailedNodes()
	n := chosen.removeNode(lowest[s.rng.IntN(len(lowest))])
	s.logger.Debug("node scheduled",
		"cluster", chosen.String(),
		"node", n.String(),
	)
	return *n, true
}

func (s *Scheduler) accept(ctx context.Context, c *Cluster) bool {
	if c.Operation != OpDelete {
		return true
	}
	if s.graph.HasPredecessorForDelete(ctx, c) {
		return true
	}
	return s.rng.IntN(101) >= s.deleteGate
}

// PickAndRun returns the action index of the next node to execute, or
// NoAction when nothing is ready. The node leaves the graph; the caller
// reports the outcome through Feedback.
func (s *Scheduler) PickAndRun(ctx context.Context) int {
	n, ok := s.Pick(ctx)
	if !ok {
		return NoAction
	}
	return n.Index
}

// Feedback applies the outcome of executing node. On success every pending
// node of the same cluster with the same Key4 is retired. On failure those
// nodes have their failed count incremented and any node above the
// graph's ceiling is dropped. Feedback for an unknown cluster is ignored.
func (s *Scheduler) Feedback(node Node, succeed bool) {
	c, ok := s.graph.clusters[node.ClusterKey()]
	if !ok {
		s.logger.Warn("no cluster found, skipping feedback",
			"resource", node.Resource,
			"operation", node.Operation,
		)
		return
	}

	key := node.Key4()
	if succeed {
		c.nodes = slices.DeleteFunc(c.nodes, func(n *Node) bool { return n.Key4() == key })
		return
	}

	for _, n := range c.nodes {
		if n.Key4() == key {
			n.FailedCount++
		}
	}
	limit := s.graph.maxFailedCount
	c.nodes = slices.DeleteFunc(c.nodes, func(n *Node) bool {
		if n.FailedCount > limit {
			s.logger.Info("node failed too many times, dropping", "node", n.String())
			return true
		}
		return false
	})
}
