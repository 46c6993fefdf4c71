package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/crudcrawl/internal/crawler"
	"github.com/nao1215/crudcrawl/internal/model"
	"github.com/nao1215/crudcrawl/internal/report"
)

// CrawlerFactory builds the crawler of one session against target.
// Session-scoped state such as relation caches is keyed by sessionID. opts
// carry session settings and must be passed on to crawler.New.
type CrawlerFactory func(target, sessionID string, opts ...crawler.Option) (*crawler.Crawler, error)

// SessionStore registers a session before its first execution is recorded.
type SessionStore interface {
	CreateSession(ctx context.Context, sessionID, target string, startedAt time.Time) error
}

// ReportStore keeps finished reports.
type ReportStore interface {
	SaveReport(ctx context.Context, report *model.CrawlReport) error
}

// CrawlStep runs the crawler and fills the report with its results.
type CrawlStep struct {
	factory  CrawlerFactory
	sessions SessionStore
	logger   *slog.Logger
}

// CrawlStepOption configures a CrawlStep.
type CrawlStepOption func(*CrawlStep)

// WithSessionStore registers each session before crawling.
func WithSessionStore(s SessionStore) CrawlStepOption {
	return func(c *CrawlStep) {
		c.sessions = s
	}
}

// WithCrawlLogger sets a custom logger for the crawl step.
func WithCrawlLogger(logger *slog.Logger) CrawlStepOption {
	return func(c *CrawlStep) {
		c.logger = logger
	}
}

// NewCrawlStep creates a crawl step.
func NewCrawlStep(factory CrawlerFactory, opts ...CrawlStepOption) *CrawlStep {
	s := &CrawlStep{
		factory: factory,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do implements Step. Only cancellation is returned as an error; a crawl
// that ran out of budget is a normal, partial result.
func (s *CrawlStep) Do(ctx context.Context, r *model.CrawlReport) error {
	c, err := s.factory(r.Target, r.SessionID, crawler.WithSessionID(r.SessionID))
	if err != nil {
		return fmt.Errorf("failed to create crawler: %w", err)
	}

	if s.sessions != nil {
		if err := s.sessions.CreateSession(ctx, r.SessionID, r.Target, time.Now()); err != nil {
			s.logger.Warn("failed to register session", "session", r.SessionID, "error", err)
		}
	}

	result, runErr := c.Run(ctx)
	performed := r.PerformedSteps
	*r = *result
	r.PerformedSteps = performed

	s.logger.Info("crawl completed",
		"target", r.Target,
		"executed", r.Executed(),
		"succeeded", r.Succeeded,
		"failed", r.Failed,
		"timed_out", r.TimedOut,
	)

	if runErr != nil && (errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded)) {
		return runErr
	}
	return nil
}

// ReportStep writes the report with a report.Writer.
type ReportStep struct {
	writer report.Writer
}

// NewReportStep creates a report step.
func NewReportStep(w report.Writer) *ReportStep {
	return &ReportStep{writer: w}
}

// Name returns the step name.
func (s *ReportStep) Name() string {
	return "report"
}

// Do implements Step.
func (s *ReportStep) Do(_ context.Context, r *model.CrawlReport) error {
	if _, err := s.writer.Write(r); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// PersistStep saves the report to the crawl history.
type PersistStep struct {
	store ReportStore
}

// NewPersistStep creates a persist step.
func NewPersistStep(store ReportStore) *PersistStep {
	return &PersistStep{store: store}
}

// Name returns the step name.
func (s *PersistStep) Name() string {
	return "persist"
}

// Do implements Step. The report is saved even if ctx is already done.
func (s *PersistStep) Do(ctx context.Context, r *model.CrawlReport) error {
	if err := s.store.SaveReport(context.WithoutCancel(ctx), r); err != nil {
		return fmt.Errorf("failed to persist report: %w", err)
	}
	return nil
}
