package navigation

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"slices"
)

// contextSampleSize is the number of create and read indices sampled per
// resource when asking the dependency oracle.
const contextSampleSize = 3

// DependencyGraph is the registry of clusters and of the cross-resource
// relations inferred so far.
type DependencyGraph struct {
	// clusters maps every known key to its cluster. After a merge several
	// keys point to the same survivor.
	clusters map[ClusterKey]*Cluster

	// order holds the distinct clusters in creation order.
	order []*Cluster

	// parents maps a child resource to its confirmed parent resources.
	parents map[string][]string

	relations      RelationCache
	inferer        DependencyInferer
	maxFailedCount int
	strategy       CycleStrategy
	rng            *rand.Rand
	logger         *slog.Logger
	onCycle        func(CycleEvent)
}

// NewDependencyGraph creates an empty graph. inferer may be nil, in which
// case no cross-resource relations are ever confirmed.
func NewDependencyGraph(inferer DependencyInferer, opts ...Option) *DependencyGraph {
	g := &DependencyGraph{
		clusters:       make(map[ClusterKey]*Cluster),
		parents:        make(map[string][]string),
		inferer:        inferer,
		maxFailedCount: DefaultMaxFailedCount,
		strategy:       CycleMerge,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.relations == nil {
		g.relations = NewMemoryRelationCache()
	}
	if g.rng == nil {
		g.rng = NewRand(0)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g
}

// MaxFailedCount returns the failure ceiling.
func (g *DependencyGraph) MaxFailedCount() int {
	return g.maxFailedCount
}

// Strategy returns the configured cycle strategy.
func (g *DependencyGraph) Strategy() CycleStrategy {
	return g.strategy
}

// EnsurePlaceholders creates the five canonical clusters of resource if
// they are missing and wires the default ordering chain.
func (g *DependencyGraph) EnsurePlaceholders(resource string) {
	for _, op := range Operations {
		key := ClusterKey{Resource: resource, Operation: op}
		if _, ok := g.clusters[key]; ok {
			continue
		}
		c := newCluster(resource, op)
		g.clusters[key] = c
		g.order = append(g.order, c)
	}
	g.BuildDefaultOrderEdges(resource)
}

// BuildDefaultOrderEdges links create -> read -> update -> unknown -> delete
// for resource. Existing edges are left alone.
func (g *DependencyGraph) BuildDefaultOrderEdges(resource string) {
	for i := 0; i < len(Operations)-1; i++ {
		src := g.clusters[ClusterKey{Resource: resource, Operation: Operations[i]}]
		dst := g.clusters[ClusterKey{Resource: resource, Operation: Operations[i+1]}]
		if src == nil || dst == nil {
			continue
		}
		g.LinkClusters(src, dst)
	}
}

// AddNode enqueues node into its cluster. Placeholders for the node's
// resource are created first, even when the node itself is rejected.
// It returns false when the node already failed more often than the
// graph allows or when its operation is not a canonical one.
func (g *DependencyGraph) AddNode(node Node) bool {
	g.EnsurePlaceholders(node.Resource)

	if node.FailedCount > g.maxFailedCount {
		g.logger.Info("node failed too many times, skipping",
			"node", node.String(),
			"max_failed_count", g.maxFailedCount,
		)
		return false
	}

	c, ok := g.clusters[node.ClusterKey()]
	if !ok {
		g.logger.Warn("no cluster for node operation",
			"resource", node.Resource,
			"operation", node.Operation,
		)
		return false
	}
	n := node
	c.nodes = append(c.nodes, &n)
	return true
}

// Cluster returns the cluster registered under (resource, operation), or
// nil. For a merged key the survivor is returned.
func (g *DependencyGraph) Cluster(resource, operation string) *Cluster {
	return g.clusters[ClusterKey{Resource: resource, Operation: operation}]
}

// Clusters returns the distinct clusters in creation order.
func (g *DependencyGraph) Clusters() []*Cluster {
	return slices.Clone(g.order)
}

// Resources returns the known resources in first-seen order.
func (g *DependencyGraph) Resources() []string {
	var out []string
	for _, c := range g.order {
		if !slices.Contains(out, c.Resource) {
			out = append(out, c.Resource)
		}
	}
	return out
}

// PendingCount returns the total number of pending nodes.
func (g *DependencyGraph) PendingCount() int {
	total := 0
	for _, c := range g.order {
		total += c.Len()
	}
	return total
}

// Parents returns the confirmed parent resources of child.
func (g *DependencyGraph) Parents(child string) []string {
	return slices.Clone(g.parents[child])
}

// IsAllPredecessorsEmpty reports whether cluster is ready: every
// predecessor is empty and, recursively, ready itself. visited memoizes
// clusters already known to be satisfied and may be nil. A cluster that is
// reached again while it is still being evaluated counts as satisfied, so
// residual cycles cannot recurse forever.
func (g *DependencyGraph) IsAllPredecessorsEmpty(c *Cluster, visited map[*Cluster]bool) bool {
	if visited == nil {
		visited = make(map[*Cluster]bool)
	}
	return g.allPredecessorsEmpty(c, visited, make(map[*Cluster]bool))
}

func (g *DependencyGraph) allPredecessorsEmpty(c *Cluster, visited, inProgress map[*Cluster]bool) bool {
	if visited[c] || inProgress[c] {
		return true
	}
	inProgress[c] = true
	defer delete(inProgress, c)

	for _, p := range c.predecessors {
		if !p.IsEmpty() {
			return false
		}
		if !g.allPredecessorsEmpty(p, visited, inProgress) {
			return false
		}
		visited[p] = true
	}
	return true
}

// HasPredecessorForDelete asks the dependency oracle whether the resource of
// the delete cluster c is a parent of any other resource. Every confirmed
// child links child/delete -> c. The result is true only if one of those
// confirmed relations leaves c gated by pending work; a relation that is
// already satisfied does not count.
func (g *DependencyGraph) HasPredecessorForDelete(ctx context.Context, c *Cluster) bool {
	gated := false
	parent := c.Resource
	parentContext := g.sampleContext(parent)

	for _, other := range g.Clusters() {
		if other.Operation != OpDelete || other.Resource == parent || other == c || !g.isLive(other) {
			continue
		}
		if ctx.Err() != nil {
			return gated
		}
		child := other.Resource
		childContext := g.sampleContext(child)
		if !g.inferRelation(ctx, parent, parentContext, child, childContext) {
			continue
		}
		g.LinkClusters(other, c)
		if !gated {
			gated = !g.IsAllPredecessorsEmpty(c, nil)
		}
	}
	return gated
}

// isLive reports whether c has not been absorbed by a merge.
func (g *DependencyGraph) isLive(c *Cluster) bool {
	return g.clusters[c.Key()] == c
}

// sampleContext returns up to three create and three read indices of
// resource for the oracle to look at.
func (g *DependencyGraph) sampleContext(resource string) []int {
	var out []int
	for _, op := range []string{OpCreate, OpRead} {
		c := g.clusters[ClusterKey{Resource: resource, Operation: op}]
		if c == nil {
			continue
		}
		k := min(contextSampleSize, len(c.nodes))
		for _, i := range g.rng.Perm(len(c.nodes))[:k] {
			out = append(out, c.nodes[i].Index)
		}
	}
	return out
}
