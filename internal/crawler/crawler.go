package crawler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/crudcrawl/internal/metrics"
	"github.com/nao1215/crudcrawl/internal/model"
	"github.com/nao1215/crudcrawl/internal/navigation"
	"github.com/nao1215/crudcrawl/internal/oracle"
)

// Crawler defaults.
const (
	// DefaultBatchSize is the number of classification results taken per
	// tick, one minute worth of model requests.
	DefaultBatchSize = 1200

	// DefaultPollInterval is the wait while only classifications are
	// outstanding.
	DefaultPollInterval = 50 * time.Millisecond
)

// Crawler drives one crawl session: it executes actions, feeds discovered
// actions to the classifier and lets the dependency scheduler decide what
// runs next. A Crawler runs once.
type Crawler struct {
	target    string
	sessionID string

	oracle   oracle.Oracle
	executor Executor
	pool     *oracle.Pool

	graph     *model.Graph
	deps      *navigation.DependencyGraph
	scheduler *navigation.Scheduler

	budget       *Budget
	recorder     Recorder
	metrics      *metrics.Metrics
	logger       *slog.Logger
	batchSize    int
	pollInterval time.Duration
	maxSteps     int
	concurrency  int

	graphOpts     []navigation.Option
	schedulerOpts []navigation.SchedulerOption

	root      model.Request
	snapshots map[int]string
	awaiting  map[int]bool
	report    *model.CrawlReport
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithSessionID sets the session identifier used in reports and records.
func WithSessionID(id string) Option {
	return func(c *Crawler) {
		c.sessionID = id
	}
}

// WithBudget sets the crawl budget.
func WithBudget(b *Budget) Option {
	return func(c *Crawler) {
		c.budget = b
	}
}

// WithRecorder stores every execution.
func WithRecorder(r Recorder) Option {
	return func(c *Crawler) {
		c.recorder = r
	}
}

// WithMetrics records crawl activity.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Crawler) {
		c.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) {
		c.logger = logger
	}
}

// WithBatchSize sets how many classification results are applied per tick.
func WithBatchSize(n int) Option {
	return func(c *Crawler) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithClassifyConcurrency sets the number of concurrent classifications.
func WithClassifyConcurrency(n int) Option {
	return func(c *Crawler) {
		c.concurrency = n
	}
}

// WithPollInterval sets the wait while only classifications are pending.
func WithPollInterval(d time.Duration) Option {
	return func(c *Crawler) {
		c.pollInterval = d
	}
}

// WithMaxSteps stops after n executions. Zero means no limit.
func WithMaxSteps(n int) Option {
	return func(c *Crawler) {
		c.maxSteps = n
	}
}

// WithGraphOptions passes options to the dependency graph.
func WithGraphOptions(opts ...navigation.Option) Option {
	return func(c *Crawler) {
		c.graphOpts = append(c.graphOpts, opts...)
	}
}

// WithSchedulerOptions passes options to the scheduler.
func WithSchedulerOptions(opts ...navigation.SchedulerOption) Option {
	return func(c *Crawler) {
		c.schedulerOpts = append(c.schedulerOpts, opts...)
	}
}

// New creates a crawler for target. o classifies actions, verifies
// executions and infers resource dependencies; exec performs actions.
func New(target string, o oracle.Oracle, exec Executor, opts ...Option) *Crawler {
	c := &Crawler{
		target:       target,
		oracle:       o,
		executor:     exec,
		batchSize:    DefaultBatchSize,
		pollInterval: DefaultPollInterval,
		concurrency:  oracle.DefaultConcurrency,
		graph:        model.NewGraph(),
		root:         model.Request{URL: model.RootURL, Method: model.ActionGet},
		snapshots:    make(map[int]string),
		awaiting:     make(map[int]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.budget == nil {
		c.budget = NewBudget(DefaultMaxCrawlTime, DefaultAverageOracleTime)
	}
	c.report = model.NewCrawlReport(target, c.sessionID)

	c.pool = oracle.NewPool(o,
		oracle.WithConcurrency(c.concurrency),
		oracle.WithQueueSize(max(c.batchSize, oracle.DefaultQueueSize)),
		oracle.WithPoolLogger(c.logger),
	)

	graphOpts := append([]navigation.Option{navigation.WithLogger(c.logger)}, c.graphOpts...)
	graphOpts = append(graphOpts, navigation.WithCycleObserver(c.onCycle))
	c.deps = navigation.NewDependencyGraph(navigation.InfererFunc(c.inferDependency), graphOpts...)

	schedOpts := append([]navigation.SchedulerOption{navigation.WithSchedulerLogger(c.logger)}, c.schedulerOpts...)
	c.scheduler = navigation.NewScheduler(c.deps, schedOpts...)
	return c
}

// Graph returns the action graph.
func (c *Crawler) Graph() *model.Graph {
	return c.graph
}

// Dependencies returns the dependency graph.
func (c *Crawler) Dependencies() *navigation.DependencyGraph {
	return c.deps
}

// Run crawls until no work is left, the budget expires or ctx is done. The
// report is returned in every case; the error is ctx's error when the crawl
// was cancelled.
func (c *Crawler) Run(ctx context.Context) (*model.CrawlReport, error) {
	poolCtx, cancelPool := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := c.pool.Run(poolCtx); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Warn("classification pool stopped", "error", err)
		}
	}()
	defer func() {
		c.pool.Close()
		cancelPool()
		wg.Wait()
	}()

	c.report.StartedAt = time.Now()
	c.budget.Start()

	if err := c.seed(ctx); err != nil {
		return c.finish(err), err
	}

	err := c.loop(ctx)
	return c.finish(err), err
}

func (c *Crawler) seed(ctx context.Context) error {
	c.graph.AddRequest(c.root)
	start := model.Request{URL: c.target, Method: model.ActionGet}
	c.graph.AddRequest(start)
	idx, _ := c.graph.Connect(c.root, start, model.Edge{
		Kind:    model.ActionGet,
		Target:  c.target,
		Parent:  -1,
		Context: "Start page of the application",
	})
	return c.submit(ctx, idx)
}

func (c *Crawler) loop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			c.report.TimedOut = true
			return err
		}
		if c.budget.Expired() {
			c.logger.Info("max crawl time reached", "elapsed", c.budget.Elapsed(), "limit", c.budget.Limit())
			c.report.TimedOut = true
			return nil
		}
		if c.maxSteps > 0 && c.report.Executed() >= c.maxSteps {
			c.logger.Info("max steps reached", "steps", c.maxSteps)
			return nil
		}

		c.receiveAnalysis()

		idx := c.scheduler.PickAndRun(ctx)
		scheduled := idx != navigation.NoAction
		if scheduled {
			c.metrics.ObservePick(c.graph.Edge(idx).Before.CRUDType)
		} else {
			c.metrics.ObservePick("")
		}

		var candidates []int
		if scheduled {
			candidates = []int{idx}
		} else {
			candidates = c.graph.UnvisitedCandidates(func(i int) bool { return c.awaiting[i] })
		}

		if len(candidates) > 0 {
			c.execList(ctx, candidates, scheduled)
			continue
		}
		if scheduled || c.deps.PendingCount() > 0 {
			continue
		}
		if c.pool.Pending() == 0 {
			c.logger.Info("done crawling", "executed", c.report.Executed())
			return nil
		}

		select {
		case <-ctx.Done():
		case <-time.After(c.pollInterval):
		}
	}
}

// receiveAnalysis applies finished classifications: blocking actions are
// set aside, actions on unknown resources stay plain edges, and the rest
// enter the dependency graph unless an equivalent action already
// succeeded.
func (c *Crawler) receiveAnalysis() {
	for _, r := range c.pool.Drain(c.batchSize) {
		delete(c.awaiting, r.Edge)
		e := c.graph.Edge(r.Edge)
		if e == nil {
			continue
		}
		e.Classified = true
		if r.Err != nil || r.Operation.IsEmpty() {
			c.report.Unclassified++
			continue
		}
		e.Before = r.Operation.Normalize()
		c.logger.Debug("received analysis", "edge", r.Edge, "classification", e.Before.String())

		switch {
		case c.graph.IsBlocking(r.Edge):
			c.graph.AddBlocking(r.Edge)
			c.logger.Info("blocking action set aside", "edge", e.String())
		case c.graph.IsUnknownResource(r.Edge):
			c.logger.Debug("unknown resource", "edge", r.Edge)
		case c.graph.HasSuccessfulEdge(r.Edge):
			c.graph.VisitEdge(r.Edge)
		case e.Visited:
			// Already run from the fallback list.
		default:
			node := navigation.Node{
				Action:      string(e.Kind),
				Resource:    e.Before.Resource,
				Operation:   e.Before.CRUDType,
				Subtype:     e.Before.Operation,
				Index:       r.Edge,
				FailedCount: c.graph.FailedCount(r.Edge),
			}
			if !c.deps.AddNode(node) {
				c.graph.VisitEdge(r.Edge)
				c.report.Rejected++
				c.metrics.ObserveRejected()
			}
		}
	}
	c.metrics.SetPending(c.deps.PendingCount())
}

// execList executes the first candidate that can still be run.
func (c *Crawler) execList(ctx context.Context, candidates []int, scheduled bool) bool {
	for _, i := range candidates {
		e := c.graph.Edge(i)
		if e == nil || e.Visited {
			continue
		}
		if err := c.execute(ctx, i, scheduled); err != nil {
			c.logger.Warn("failed to execute action", "edge", e.String(), "error", err)
			continue
		}
		return true
	}
	return false
}

func (c *Crawler) execute(ctx context.Context, i int, scheduled bool) error {
	e := c.graph.Edge(i)
	before := c.snapshots[e.From]

	out, err := c.executor.Execute(ctx, e)
	c.graph.VisitEdge(i)
	if err != nil {
		if ctx.Err() != nil {
			// Interrupted, not attempted: leave it for the unvisited tally.
			c.graph.UnvisitEdge(i)
		}
		return err
	}
	c.graph.VisitSameTarget(i)
	c.metrics.ObserveExecution(string(e.Kind), scheduled)

	reached, _ := c.graph.AddRequest(out.Request)
	c.snapshots[reached] = out.Page.Snapshot
	for _, d := range out.Actions {
		c.discover(ctx, out.Request, i, d)
	}

	after := c.verify(ctx, e, out, before)
	e.After = after
	succeed := after.Succeeded()
	if succeed {
		c.graph.AddSuccess(i)
	} else {
		c.graph.AddFailed(i)
	}
	if !after.IsEmpty() {
		c.scheduler.Feedback(navigation.Node{
			Action:    string(e.Kind),
			Resource:  after.Resource,
			Operation: after.CRUDType,
			Subtype:   after.Operation,
			Index:     navigation.NoAction,
		}, succeed)
		c.metrics.ObserveFeedback(succeed)
	}

	rec := model.ExecutionRecord{
		EdgeIndex: i,
		Kind:      e.Kind,
		Target:    e.Target,
		Success:   succeed,
		Scheduled: scheduled,
		At:        time.Now(),
	}
	op := after
	if op.IsEmpty() {
		op = e.Before
	}
	rec.Resource, rec.Operation, rec.CRUDType = op.Resource, op.Operation, op.CRUDType
	c.report.AddExecution(rec)
	if c.recorder != nil {
		if err := c.recorder.RecordExecution(ctx, c.sessionID, rec); err != nil {
			c.logger.Warn("failed to record execution", "error", err)
		}
	}
	c.logger.Info("executed action",
		"edge", e.String(),
		"scheduled", scheduled,
		"success", succeed,
	)
	return nil
}

// verify asks the oracle what the execution did. The answer is empty when
// the oracle fails.
func (c *Crawler) verify(ctx context.Context, e *model.Edge, out *Outcome, before string) model.ResourceOperation {
	start := time.Now()
	after, err := c.oracle.Verify(ctx, oracle.Execution{
		Action:     actionOf(e),
		Predicted:  e.Before,
		StatusCode: out.Page.StatusCode,
		Before:     before,
		After:      out.Page.Snapshot,
	})
	c.budget.Compensate(time.Since(start))
	if err != nil {
		c.logger.Warn("failed to verify execution", "edge", e.String(), "error", err)
		return model.ResourceOperation{}
	}
	if after.IsEmpty() {
		return after
	}
	return after.Normalize()
}

func (c *Crawler) discover(ctx context.Context, from model.Request, parent int, d Discovered) {
	to := model.Request{URL: d.Target, Method: d.Kind}
	c.graph.AddRequest(to)
	idx, added := c.graph.Connect(from, to, model.Edge{
		Kind:    d.Kind,
		Target:  d.Target,
		Form:    d.Form,
		Parent:  parent,
		Context: d.Context,
	})
	if !added {
		return
	}
	if err := c.submit(ctx, idx); err != nil {
		c.logger.Warn("failed to queue classification", "edge", idx, "error", err)
	}
}

func (c *Crawler) submit(ctx context.Context, idx int) error {
	e := c.graph.Edge(idx)
	if e == nil {
		return nil
	}
	c.awaiting[idx] = true
	if err := c.pool.Submit(ctx, oracle.Job{Edge: idx, Action: actionOf(e)}); err != nil {
		delete(c.awaiting, idx)
		return err
	}
	return nil
}

// inferDependency bridges the dependency graph, which speaks in edge
// indices, to the oracle, which needs descriptions.
func (c *Crawler) inferDependency(ctx context.Context, parent string, parentContext []int, child string, childContext []int) (bool, error) {
	start := time.Now()
	related, err := c.oracle.InferDependency(ctx, parent, c.describe(parent, parentContext), child, c.describe(child, childContext))
	c.budget.Compensate(time.Since(start))
	if err != nil || !related {
		return related, err
	}
	if c.recorder != nil {
		if rerr := c.recorder.RecordRelation(ctx, c.sessionID, model.Relation{Parent: parent, Child: child}); rerr != nil {
			c.logger.Warn("failed to record relation", "parent", parent, "child", child, "error", rerr)
		}
	}
	return true, nil
}

// contextSampleSize bounds the actions described per resource.
const contextSampleSize = 3

// describe renders the actions at indices. Once a resource has no pending
// create or read work left, its already classified actions are used.
func (c *Crawler) describe(resource string, indices []int) []string {
	out := make([]string, 0, len(indices))
	for _, i := range indices {
		if e := c.graph.Edge(i); e != nil {
			out = append(out, e.String())
		}
	}
	if len(out) > 0 {
		return out
	}
	for i := 0; i < c.graph.EdgeCount() && len(out) < contextSampleSize; i++ {
		if e := c.graph.Edge(i); e.Before.Resource == resource {
			out = append(out, e.String())
		}
	}
	return out
}

func (c *Crawler) onCycle(ev navigation.CycleEvent) {
	c.report.Cycles++
	c.metrics.ObserveCycle(string(ev.Strategy))
}

func (c *Crawler) finish(err error) *model.CrawlReport {
	r := c.report
	r.FinishedAt = time.Now()
	r.BudgetExtension = c.budget.Extension()
	r.Requests = c.graph.RequestCount()
	r.Edges = c.graph.EdgeCount()
	for _, i := range c.graph.BlockingEdges() {
		r.BlockedActions = append(r.BlockedActions, c.graph.Edge(i).String())
	}
	r.Blocked = len(r.BlockedActions)
	for kind, n := range c.graph.UnvisitedByKind() {
		if r.Unvisited == nil {
			r.Unvisited = make(map[string]int)
		}
		r.Unvisited[string(kind)] = n
	}
	if err != nil {
		r.Error = err
		r.ErrorMessage = err.Error()
	}

	for _, snap := range c.deps.Snapshot() {
		r.Clusters = append(r.Clusters, model.ClusterSummary{
			Resource:     snap.Resource,
			Operation:    snap.Operation,
			Pending:      len(snap.Pending),
			Ready:        snap.Ready,
			Predecessors: snap.Predecessors,
			Absorbed:     snap.Absorbed,
		})
	}
	for _, child := range c.deps.Resources() {
		for _, parent := range c.deps.Parents(child) {
			r.Relations = append(r.Relations, model.Relation{Parent: parent, Child: child})
		}
	}
	return r
}

func actionOf(e *model.Edge) oracle.Action {
	return oracle.Action{
		Kind:    e.Kind,
		Target:  e.Target,
		Form:    e.Form,
		Context: e.Context,
	}
}
