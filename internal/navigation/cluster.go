package navigation

import "slices"

// ClusterKey addresses a cluster in the DependencyGraph.
type ClusterKey struct {
	Resource  string
	Operation string
}

func (k ClusterKey) String() string {
	return k.Resource + "/" + k.Operation
}

// Cluster holds all pending nodes that share a resource and an operation.
// It is also a vertex of the dependency graph: a predecessor gates the
// cluster until the predecessor and its own predecessors are empty.
//
// Edges are kept as ordered slices with set semantics so that iteration
// order, and therefore seeded scheduling, is reproducible.
type Cluster struct {
	// Resource is the resource name shared by all nodes.
	Resource string

	// Operation is one of Operations.
	Operation string

	nodes        []*Node
	predecessors []*Cluster
	successors   []*Cluster

	// absorbed lists the keys merged into this cluster by cycle resolution.
	absorbed []ClusterKey
}

func newCluster(resource, operation string) *Cluster {
	return &Cluster{Resource: resource, Operation: operation}
}

// Key returns the cluster's own key. Keys of absorbed clusters are
// reported by Absorbed.
func (c *Cluster) Key() ClusterKey {
	return ClusterKey{Resource: c.Resource, Operation: c.Operation}
}

func (c *Cluster) String() string {
	return c.Key().String()
}

// IsEmpty reports whether the cluster has no pending nodes.
func (c *Cluster) IsEmpty() bool {
	return len(c.nodes) == 0
}

// Len returns the number of pending nodes.
func (c *Cluster) Len() int {
	return len(c.nodes)
}

// Nodes returns a copy of the pending nodes.
func (c *Cluster) Nodes() []Node {
	out := make([]Node, len(c.nodes))
	for i, n := range c.nodes {
		out[i] = *n
	}
	return out
}

// Predecessors returns the clusters gating this one.
func (c *Cluster) Predecessors() []*Cluster {
	return slices.Clone(c.predecessors)
}

// Successors returns the clusters gated by this one.
func (c *Cluster) Successors() []*Cluster {
	return slices.Clone(c.successors)
}

// Absorbed returns the keys of clusters merged into this one.
func (c *Cluster) Absorbed() []ClusterKey {
	return slices.Clone(c.absorbed)
}

// HasSuccessor reports whether the edge c -> other exists.
func (c *Cluster) HasSuccessor(other *Cluster) bool {
	return slices.Contains(c.successors, other)
}

func (c *Cluster) addSuccessor(other *Cluster) {
	if !slices.Contains(c.successors, other) {
		c.successors = append(c.successors, other)
	}
}

func (c *Cluster) addPredecessor(other *Cluster) {
	if !slices.Contains(c.predecessors, other) {
		c.predecessors = append(c.predecessors, other)
	}
}

func (c *Cluster) removeSuccessor(other *Cluster) {
	c.successors = slices.DeleteFunc(c.successors, func(s *Cluster) bool { return s == other })
}

func (c *Cluster) removePredecessor(other *Cluster) {
	c.predecessors = slices.DeleteFunc(c.predecessors, func(p *Cluster) bool { return p == other })
}

// removeNode removes the node at position i.
func (c *Cluster) removeNode(i int) *Node {
	n := c.nodes[i]
	c.nodes = slices.Delete(c.nodes, i, i+1)
	return n
}

// minFailedNodes returns the positions of the nodes with the lowest
// failed count.
func (c *Cluster) minFailedNodes() []int {
	if len(c.nodes) == 0 {
		return nil
	}
	lowest := c.nodes[0].FailedCount
	for _, n := range c.nodes[1:] {
		lowest = min(lowest, n.FailedCount)
	}
	var out []int
	for i, n := range c.nodes {
		if n.FailedCount == lowest {
			out = append(out, i)
		}
	}
	return out
}
