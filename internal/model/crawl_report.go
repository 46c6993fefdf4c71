package model

import (
	"sort"
	"time"
)

// CrawlReport is the result of one crawl session against one target.
type CrawlReport struct {
	// Target is the start URL.
	Target string `json:"target"`

	// SessionID identifies the crawl session; relation caches and database
	// rows are scoped by it.
	SessionID string `json:"session_id"`

	// StartedAt and FinishedAt bound the crawl.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// TimedOut is true if the crawl stopped because the budget ran out or
	// the context was cancelled.
	TimedOut bool `json:"timed_out"`

	// BudgetExtension is the time added to the budget to make up for slow
	// oracle responses.
	BudgetExtension time.Duration `json:"budget_extension"`

	// Requests and Edges are the sizes of the action graph.
	Requests int `json:"requests"`
	Edges    int `json:"edges"`

	// Scheduled counts executions chosen by the dependency scheduler and
	// Fallbacks those taken from the unvisited edge list.
	Scheduled int `json:"scheduled"`
	Fallbacks int `json:"fallbacks"`

	// Succeeded and Failed count execution outcomes.
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`

	// Blocked counts edges classified as blocking and BlockedActions
	// describes them.
	Blocked        int      `json:"blocked"`
	BlockedActions []string `json:"blocked_actions,omitempty"`

	// Unvisited counts, per action kind, the edges the crawl never got to.
	Unvisited map[string]int `json:"unvisited,omitempty"`

	// Unclassified counts edges the classifier returned nothing for.
	Unclassified int `json:"unclassified"`

	// Rejected counts nodes refused by the dependency graph.
	Rejected int `json:"rejected"`

	// Cycles counts dependency cycles resolved during the crawl.
	Cycles int `json:"cycles"`

	// Executions lists every executed action in order.
	Executions []ExecutionRecord `json:"executions,omitempty"`

	// Clusters is the final state of the dependency graph.
	Clusters []ClusterSummary `json:"clusters,omitempty"`

	// Relations lists the confirmed parent/child resource pairs.
	Relations []Relation `json:"relations,omitempty"`

	// PerformedSteps lists the pipeline steps that ran.
	PerformedSteps []string `json:"performed_steps,omitempty"`

	// Error is the error that stopped the session, if any.
	Error error `json:"-"`

	// ErrorMessage is the string form of Error for serialization.
	ErrorMessage string `json:"error,omitempty"`
}

// ExecutionRecord describes one executed action.
type ExecutionRecord struct {
	EdgeIndex int        `json:"edge_index"`
	Kind      ActionKind `json:"kind"`
	Target    string     `json:"target"`
	Resource  string     `json:"resource,omitempty"`
	Operation string     `json:"operation,omitempty"`
	CRUDType  string     `json:"crud_type,omitempty"` //nolint:tagliatelle // CRUD is an acronym
	Success   bool       `json:"success"`
	Scheduled bool       `json:"scheduled"`
	At        time.Time  `json:"at"`
}

// ClusterSummary is the reported state of one dependency cluster.
type ClusterSummary struct {
	Resource     string   `json:"resource"`
	Operation    string   `json:"operation"`
	Pending      int      `json:"pending"`
	Ready        bool     `json:"ready"`
	Predecessors []string `json:"predecessors,omitempty"`
	Absorbed     []string `json:"absorbed,omitempty"`
}

// Relation is a confirmed parent/child dependency between two resources.
type Relation struct {
	Parent string `json:"parent"`
	Child  string `json:"child"`
}

// NewCrawlReport creates a report for target.
func NewCrawlReport(target, sessionID string) *CrawlReport {
	return &CrawlReport{
		Target:    target,
		SessionID: sessionID,
		StartedAt: time.Now(),
	}
}

// AddExecution appends rec and updates the outcome counters.
func (r *CrawlReport) AddExecution(rec ExecutionRecord) {
	r.Executions = append(r.Executions, rec)
	if rec.Scheduled {
		r.Scheduled++
	} else {
		r.Fallbacks++
	}
	if rec.Success {
		r.Succeeded++
	} else {
		r.Failed++
	}
}

// Executed returns the number of executed actions.
func (r *CrawlReport) Executed() int {
	return len(r.Executions)
}

// Duration returns how long the crawl ran.
func (r *CrawlReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// CRUDCounts returns the number of executions per CRUD type. Executions
// without a classification count as unknown.
func (r *CrawlReport) CRUDCounts() map[string]int {
	out := make(map[string]int)
	for _, e := range r.Executions {
		crud := e.CRUDType
		if crud == "" {
			crud = CRUDUnknown
		}
		out[crud]++
	}
	return out
}

// Resources returns the sorted names of resources seen in the clusters.
func (r *CrawlReport) Resources() []string {
	seen := make(map[string]bool)
	for _, c := range r.Clusters {
		seen[c.Resource] = true
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// PendingTotal returns the number of nodes still pending at the end.
func (r *CrawlReport) PendingTotal() int {
	total := 0
	for _, c := range r.Clusters {
		total += c.Pending
	}
	return total
}

// HasDestructiveExecutions reports whether any delete action was executed.
func (r *CrawlReport) HasDestructiveExecutions() bool {
	for _, e := range r.Executions {
		if e.CRUDType == CRUDDelete {
			return true
		}
	}
	return false
}
