package navigation

import "fmt"

// Canonical cluster operations. Every resource owns exactly one cluster
// per operation in Operations.
const (
	OpCreate  = "create"
	OpRead    = "read"
	OpUpdate  = "update"
	OpUnknown = "unknown"
	OpDelete  = "delete"

	// OpBlock marks actions that must never be executed (logout, account
	// removal). Blocking actions are kept out of the dependency graph.
	OpBlock = "block"
)

// Operations lists the canonical operations in default execution order.
var Operations = []string{OpCreate, OpRead, OpUpdate, OpUnknown, OpDelete}

// NoAction is returned by PickAndRun when no cluster is ready.
const NoAction = -1

// Node is one pending, classified action.
type Node struct {
	// Action is the kind of crawl action (get, form, event, iframe, ui_form).
	Action string `json:"action"`

	// Resource is the normalized resource name, e.g. "order" or "blog post".
	Resource string `json:"resource"`

	// Operation is the cluster operation the node is scheduled under.
	Operation string `json:"operation"`

	// Subtype carries the finer grained label reported by the classifier.
	Subtype string `json:"subtype"`

	// Index refers to the edge in the caller's action graph.
	Index int `json:"index"`

	// FailedCount is the number of failed executions so far.
	FailedCount int `json:"failed_count"`
}

// Key4 identifies a retry target. Two nodes with equal keys are treated as
// the same piece of work regardless of their action index.
type Key4 struct {
	Action    string
	Resource  string
	Operation string
	Subtype   string
}

// Key4 returns the node's identity key.
func (n Node) Key4() Key4 {
	return Key4{
		Action:    n.Action,
		Resource:  n.Resource,
		Operation: n.Operation,
		Subtype:   n.Subtype,
	}
}

// ClusterKey returns the key of the cluster the node belongs to.
func (n Node) ClusterKey() ClusterKey {
	return ClusterKey{Resource: n.Resource, Operation: n.Operation}
}

func (n Node) String() string {
	return fmt.Sprintf("Node(%s, %s, %s, %s, index=%d, failed=%d)",
		n.Action, n.Resource, n.Operation, n.Subtype, n.Index, n.FailedCount)
}
