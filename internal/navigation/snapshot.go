package navigation

// ClusterSnapshot is a read-only view of a cluster for reports and
// persistence.
type ClusterSnapshot struct {
	Resource     string   `json:"resource"`
	Operation    string   `json:"operation"`
	Pending      []Node   `json:"pending,omitempty"`
	Predecessors []string `json:"predecessors,omitempty"`
	Successors   []string `json:"successors,omitempty"`
	Absorbed     []string `json:"absorbed,omitempty"`
	Ready        bool     `json:"ready"`
}

// Snapshot returns the state of every distinct cluster in creation order.
func (g *DependencyGraph) Snapshot() []ClusterSnapshot {
	out := make([]ClusterSnapshot, 0, len(g.order))
	for _, c := range g.order {
		snap := ClusterSnapshot{
			Resource:  c.Resource,
			Operation: c.Operation,
			Pending:   c.Nodes(),
			Ready:     g.IsAllPredecessorsEmpty(c, nil),
		}
		for _, p := range c.predecessors {
			snap.Predecessors = append(snap.Predecessors, p.String())
		}
		for _, s := range c.successors {
			snap.Successors = append(snap.Successors, s.String())
		}
		for _, k := range c.absorbed {
			snap.Absorbed = append(snap.Absorbed, k.String())
		}
		out = append(out, snap)
	}
	return out
}
