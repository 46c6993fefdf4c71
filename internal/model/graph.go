package model

// Edge is an action that leads from one request to another.
type Edge struct {
	// From and To are request indices in the graph.
	From int `json:"from"`
	To   int `json:"to"`

	// Kind is the action kind.
	Kind ActionKind `json:"kind"`

	// Target is the link URL, the form action or the event selector.
	Target string `json:"target"`

	// Form is set for form submissions.
	Form *Form `json:"form,omitempty"`

	// Parent is the index of the edge that led to From, or -1.
	Parent int `json:"parent"`

	// Depth is the number of edges between the root and this edge.
	Depth int `json:"depth"`

	// Context is the text describing the action for the classifier.
	Context string `json:"-"`

	// Before is the classification made before execution.
	Before ResourceOperation `json:"before"`

	// Classified is true once the pre-execution classification arrived,
	// even if it was empty.
	Classified bool `json:"classified"`

	// After is the classification made after execution.
	After ResourceOperation `json:"after"`

	// Executed is true once the action has been executed.
	Executed bool `json:"executed"`

	// Visited is true once the crawler no longer needs to consider the edge.
	Visited bool `json:"visited"`

	// Success is the outcome of the last execution.
	Success bool `json:"success"`
}

// Key returns the identity of the edge used for deduplication.
func (e *Edge) Key() string {
	switch e.Kind {
	case ActionGet, ActionIframe:
		return string(e.Kind) + " " + CanonicalURL(e.Target)
	case ActionForm, ActionUIForm:
		if e.Form != nil {
			return string(e.Kind) + " " + e.Form.Signature()
		}
	}
	return string(e.Kind) + " " + e.Target
}

func (e *Edge) String() string {
	s := string(e.Kind) + " " + e.Target
	switch {
	case !e.After.IsEmpty():
		s += " " + e.After.String()
	case !e.Before.IsEmpty():
		s += " " + e.Before.String()
	}
	return s
}

// operationKey indexes success and failure counters.
type operationKey struct {
	resource  string
	method    ActionKind
	operation string
	crud      string
}

func newOperationKey(method ActionKind, op ResourceOperation) operationKey {
	return operationKey{resource: op.Resource, method: method, operation: op.Operation, crud: op.CRUDType}
}

// Graph is the action graph built while crawling. Requests are nodes and
// actions are edges. Graph is not safe for concurrent use.
type Graph struct {
	requests []Request
	index    map[string]int
	edges    []*Edge
	edgeKeys map[string]int

	succeeded map[operationKey]int
	failed    map[operationKey]int
	blocking  []int
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		index:     make(map[string]int),
		edgeKeys:  make(map[string]int),
		succeeded: make(map[operationKey]int),
		failed:    make(map[operationKey]int),
	}
}

// AddRequest adds r if no equivalent request exists. It returns the index
// of the request and whether it was added.
func (g *Graph) AddRequest(r Request) (int, bool) {
	if i, ok := g.index[r.Key()]; ok {
		return i, false
	}
	g.requests = append(g.requests, r)
	i := len(g.requests) - 1
	g.index[r.Key()] = i
	return i, true
}

// RequestIndex returns the index of r, or -1.
func (g *Graph) RequestIndex(r Request) int {
	if i, ok := g.index[r.Key()]; ok {
		return i
	}
	return -1
}

// Request returns the request at index i.
func (g *Graph) Request(i int) Request {
	return g.requests[i]
}

// RequestCount returns the number of requests.
func (g *Graph) RequestCount() int {
	return len(g.requests)
}

// Connect adds e between two existing requests. It returns the index of the
// new edge and true, the index of an equal existing edge and false, or -1
// and false when either request is unknown.
func (g *Graph) Connect(from, to Request, e Edge) (int, bool) {
	fi, ti := g.RequestIndex(from), g.RequestIndex(to)
	if fi < 0 || ti < 0 {
		return -1, false
	}
	e.From, e.To = fi, ti
	if i, ok := g.edgeKeys[e.Key()]; ok {
		return i, false
	}
	if e.Parent >= 0 && e.Parent < len(g.edges) {
		e.Depth = g.edges[e.Parent].Depth + 1
	} else {
		e.Parent = -1
	}
	edge := e
	g.edges = append(g.edges, &edge)
	i := len(g.edges) - 1
	g.edgeKeys[edge.Key()] = i
	return i, true
}

// Edge returns the edge at index i, or nil.
func (g *Graph) Edge(i int) *Edge {
	if i < 0 || i >= len(g.edges) {
		return nil
	}
	return g.edges[i]
}

// Edges returns the edges in discovery order. The pointers are shared with
// the graph.
func (g *Graph) Edges() []*Edge {
	out := make([]*Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

// Parents returns the requests with an edge into r.
func (g *Graph) Parents(r Request) []Request {
	ti := g.RequestIndex(r)
	var out []Request
	for _, e := range g.edges {
		if e.To == ti {
			out = append(out, g.requests[e.From])
		}
	}
	return out
}

// VisitEdge marks edge i as visited.
func (g *Graph) VisitEdge(i int) {
	if e := g.Edge(i); e != nil {
		e.Visited = true
	}
}

// UnvisitEdge clears the visited flag of edge i.
func (g *Graph) UnvisitEdge(i int) bool {
	e := g.Edge(i)
	if e == nil {
		return false
	}
	e.Visited = false
	return true
}

// VisitSameTarget marks every other GET edge leading to the same request
// as edge i as visited, so a page is rarely fetched twice.
func (g *Graph) VisitSameTarget(i int) {
	e := g.Edge(i)
	if e == nil || e.Kind != ActionGet {
		return
	}
	for j, other := range g.edges {
		if j != i && other.Kind == ActionGet && other.To == e.To {
			other.Visited = true
		}
	}
}

// HasSuccessfulEdge reports whether edge i already succeeded, or whether
// another action with the same classification did.
func (g *Graph) HasSuccessfulEdge(i int) bool {
	e := g.Edge(i)
	if e == nil {
		return false
	}
	if !e.Before.IsEmpty() && e.Before.Resource != UnknownResource {
		if g.succeeded[newOperationKey(e.Kind, e.Before)] > 0 {
			return true
		}
	}
	return e.Executed && e.Success
}

// FailedCount returns how often actions classified like edge i have failed.
func (g *Graph) FailedCount(i int) int {
	e := g.Edge(i)
	if e == nil || e.Before.IsEmpty() {
		return 0
	}
	return g.failed[newOperationKey(e.Kind, e.Before)]
}

// IsBlocking reports whether edge i was classified as blocking.
func (g *Graph) IsBlocking(i int) bool {
	e := g.Edge(i)
	return e != nil && e.Before.CRUDType == CRUDBlock
}

// IsUnknownResource reports whether the classifier could not name the
// resource of edge i.
func (g *Graph) IsUnknownResource(i int) bool {
	e := g.Edge(i)
	return e != nil && !e.Before.IsEmpty() && e.Before.Resource == UnknownResource
}

// AddSuccess records a successful execution of edge i. The post-execution
// classification counts as a success. If the pre-execution classification
// differs, it counts as a failure: the action did not do what was expected.
func (g *Graph) AddSuccess(i int) {
	e := g.Edge(i)
	if e == nil {
		return
	}
	e.Executed, e.Success = true, true
	g.count(g.succeeded, e.Kind, e.After)
	if !e.Before.SameAs(e.After) {
		g.count(g.failed, e.Kind, e.Before)
	}
}

// AddFailed records a failed execution of edge i.
func (g *Graph) AddFailed(i int) {
	e := g.Edge(i)
	if e == nil {
		return
	}
	e.Executed, e.Success = true, false
	g.count(g.failed, e.Kind, e.After)
	if !e.Before.SameAs(e.After) {
		g.count(g.failed, e.Kind, e.Before)
	}
}

func (g *Graph) count(counter map[operationKey]int, kind ActionKind, op ResourceOperation) {
	if op.IsEmpty() || op.Resource == UnknownResource {
		return
	}
	counter[newOperationKey(kind, op)]++
}

// AddBlocking records edge i as blocking. Blocking edges are never executed
// during the crawl.
func (g *Graph) AddBlocking(i int) {
	for _, b := range g.blocking {
		if b == i {
			return
		}
	}
	g.blocking = append(g.blocking, i)
}

// BlockingEdges returns the indices of blocking edges.
func (g *Graph) BlockingEdges() []int {
	out := make([]int, len(g.blocking))
	copy(out, g.blocking)
	return out
}

// UnvisitedCandidates returns, in discovery order, the edges the crawler may
// fall back to when the scheduler has nothing ready: not visited, not yet
// executed and not blocking. skip may exclude further edges and may be nil.
func (g *Graph) UnvisitedCandidates(skip func(i int) bool) []int {
	var out []int
	for i, e := range g.edges {
		if e.Visited || e.Executed || g.IsBlocking(i) {
			continue
		}
		if skip != nil && skip(i) {
			continue
		}
		out = append(out, i)
	}
	return out
}

// UnvisitedByKind counts unvisited edges per action kind.
func (g *Graph) UnvisitedByKind() map[ActionKind]int {
	out := make(map[ActionKind]int)
	for _, e := range g.edges {
		if !e.Visited {
			out[e.Kind]++
		}
	}
	return out
}
