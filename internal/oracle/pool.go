package oracle

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/crudcrawl/internal/model"
)

// Pool defaults.
const (
	DefaultConcurrency = 4
	DefaultQueueSize   = 1024
)

// Job asks for the classification of the action of one edge.
type Job struct {
	Edge   int
	Action Action
}

// Result is the classification of a Job. Operation is empty when the
// classifier could not tell or Err is set.
type Result struct {
	Edge      int
	Operation model.ResourceOperation
	Err       error
}

// Pool classifies actions in the background. Jobs are submitted by the
// crawl loop, classified concurrently and collected with Drain. Identical
// actions are only classified once.
type Pool struct {
	classifier  Classifier
	concurrency int
	logger      *slog.Logger
	jobs        chan Job

	// sendMu guards jobs against being closed during a send.
	sendMu sync.RWMutex
	closed bool

	mu      sync.Mutex
	results []Result
	pending int
	seen    map[string]model.ResourceOperation
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithConcurrency sets the number of concurrent classifications.
func WithConcurrency(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithQueueSize sets the number of jobs that can wait for a worker.
func WithQueueSize(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.jobs = make(chan Job, n)
		}
	}
}

// WithPoolLogger sets the logger.
func WithPoolLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) {
		p.logger = logger
	}
}

// NewPool creates a pool around classifier. Run must be called to start
// processing.
func NewPool(classifier Classifier, opts ...PoolOption) *Pool {
	p := &Pool{
		classifier:  classifier,
		concurrency: DefaultConcurrency,
		jobs:        make(chan Job, DefaultQueueSize),
		seen:        make(map[string]model.ResourceOperation),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Submit queues job. It blocks while the queue is full.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.sendMu.RLock()
	defer p.sendMu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	p.mu.Lock()
	p.pending++
	p.mu.Unlock()

	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		p.mu.Lock()
		p.pending--
		p.mu.Unlock()
		return ctx.Err()
	}
}

// Run classifies queued jobs until Close is called and the queue is
// drained, or ctx is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			return ctx.Err()
		case job, ok := <-p.jobs:
			if !ok {
				return g.Wait()
			}
			g.Go(func() error {
				p.handle(gctx, job)
				return nil
			})
		}
	}
}

// Close stops accepting jobs. Jobs already queued are still classified.
func (p *Pool) Close() {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.jobs)
}

// Drain removes and returns up to limit results in completion order.
// limit <= 0 returns all.
func (p *Pool) Drain(limit int) []Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.results)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Result, n)
	copy(out, p.results[:n])
	p.results = p.results[n:]
	p.pending -= n
	return out
}

// Pending returns the number of submitted jobs whose results have not been
// drained yet.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

func (p *Pool) handle(ctx context.Context, job Job) {
	fp := job.Action.fingerprint()

	p.mu.Lock()
	cached, ok := p.seen[fp]
	p.mu.Unlock()
	if ok {
		p.deliver(Result{Edge: job.Edge, Operation: cached})
		return
	}

	op, err := p.classifier.Classify(ctx, job.Action)
	if err != nil {
		p.logger.Warn("failed to classify action",
			"edge", job.Edge,
			"action", job.Action.Describe(),
			"error", err,
		)
		p.deliver(Result{Edge: job.Edge, Err: err})
		return
	}

	if !op.IsEmpty() {
		p.mu.Lock()
		p.seen[fp] = op
		p.mu.Unlock()
	}
	p.deliver(Result{Edge: job.Edge, Operation: op})
}

func (p *Pool) deliver(r Result) {
	p.mu.Lock()
	p.results = append(p.results, r)
	p.mu.Unlock()
}
