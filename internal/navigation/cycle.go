package navigation

import (
	"slices"
	"strings"
)

// LinkClusters adds the edge src -> dst unless it already exists or would
// close a cycle. A cycle is resolved with the graph's CycleStrategy and the
// edge is dropped. It reports whether the edge was added.
func (g *DependencyGraph) LinkClusters(src, dst *Cluster) bool {
	if src == dst || src.HasSuccessor(dst) {
		return false
	}

	if path := g.findPath(dst, src); path != nil {
		g.resolveCycle(path)
		return false
	}

	src.addSuccessor(dst)
	dst.addPredecessor(src)
	return true
}

// findPath searches the successors of from for to and returns the path
// from..to, or nil if to is unreachable.
func (g *DependencyGraph) findPath(from, to *Cluster) []*Cluster {
	seen := make(map[*Cluster]bool)
	var trace []*Cluster

	var dfs func(c *Cluster) bool
	dfs = func(c *Cluster) bool {
		if seen[c] {
			return false
		}
		seen[c] = true
		trace = append(trace, c)
		if c == to {
			return true
		}
		for _, s := range c.successors {
			if dfs(s) {
				return true
			}
		}
		trace = trace[:len(trace)-1]
		return false
	}

	if !dfs(from) {
		return nil
	}
	return trace
}

// resolveCycle applies the configured strategy to the cycle closed by the
// refused edge path[len-1] -> path[0].
func (g *DependencyGraph) resolveCycle(path []*Cluster) {
	event := CycleEvent{Strategy: g.strategy}
	for _, c := range path {
		event.Path = append(event.Path, c.Key())
	}

	switch g.strategy {
	case CycleMerge:
		event.Merged = g.mergeCycle(path)
	case CycleBreak:
		event.Removed = g.breakCycle(path)
	case CycleSkip:
	}

	g.logger.Info("dependency cycle resolved",
		"cycle", formatPath(event.Path),
		"strategy", string(g.strategy),
	)
	if g.onCycle != nil {
		g.onCycle(event)
	}
}

// mergeCycle collapses every cluster lying on some path from path[0] to
// path[len-1] into path[0]. Taking the whole set, not just the reported
// path, is what keeps the merged graph acyclic. Nodes and external edges
// move to the survivor and registry keys of absorbed clusters are
// redirected to it.
func (g *DependencyGraph) mergeCycle(path []*Cluster) []ClusterKey {
	survivor := path[0]
	forward := reach(survivor, func(c *Cluster) []*Cluster { return c.successors })
	backward := reach(path[len(path)-1], func(c *Cluster) []*Cluster { return c.predecessors })

	inSet := map[*Cluster]bool{survivor: true}
	var members []*Cluster
	for _, c := range g.order {
		if c != survivor && forward[c] && backward[c] {
			inSet[c] = true
			members = append(members, c)
		}
	}

	var merged []ClusterKey
	for _, a := range members {
		survivor.nodes = append(survivor.nodes, a.nodes...)

		for _, s := range a.successors {
			s.removePredecessor(a)
			if !inSet[s] {
				survivor.addSuccessor(s)
				s.addPredecessor(survivor)
			}
		}
		for _, p := range a.predecessors {
			p.removeSuccessor(a)
			if !inSet[p] {
				p.addSuccessor(survivor)
				survivor.addPredecessor(p)
			}
		}

		keys := append([]ClusterKey{a.Key()}, a.absorbed...)
		for _, k := range keys {
			g.clusters[k] = survivor
		}
		survivor.absorbed = append(survivor.absorbed, keys...)
		merged = append(merged, keys...)

		a.nodes = nil
		a.successors = nil
		a.predecessors = nil
		a.absorbed = nil
		g.order = slices.DeleteFunc(g.order, func(c *Cluster) bool { return c == a })
	}
	return merged
}

// breakCycle removes one edge of the path, chosen uniformly at random.
func (g *DependencyGraph) breakCycle(path []*Cluster) [2]ClusterKey {
	type edge struct{ src, dst *Cluster }
	var edges []edge
	for i := 0; i+1 < len(path); i++ {
		if path[i].HasSuccessor(path[i+1]) {
			edges = append(edges, edge{path[i], path[i+1]})
		}
	}
	if len(edges) == 0 {
		return [2]ClusterKey{}
	}

	e := edges[g.rng.IntN(len(edges))]
	e.src.removeSuccessor(e.dst)
	e.dst.removePredecessor(e.src)
	return [2]ClusterKey{e.src.Key(), e.dst.Key()}
}

// reach returns every cluster reachable from start through next,
// including start.
func reach(start *Cluster, next func(*Cluster) []*Cluster) map[*Cluster]bool {
	seen := map[*Cluster]bool{start: true}
	stack := []*Cluster{start}
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, n := range next(c) {
			if !seen[n] {
				seen[n] = true
				stack = append(stack, n)
			}
		}
	}
	return seen
}

func formatPath(keys []ClusterKey) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.String()
	}
	return strings.Join(parts, " -> ")
}
