package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "crudcrawl"

// Metrics holds the crawl collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	Picks         *prometheus.CounterVec
	EmptyPicks    prometheus.Counter
	Executions    *prometheus.CounterVec
	Feedback      *prometheus.CounterVec
	Rejected      prometheus.Counter
	Cycles        *prometheus.CounterVec
	OracleLatency *prometheus.HistogramVec
	Pending       prometheus.Gauge
}

// New creates the collectors and registers them with a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Picks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "picks_total",
				Help:      "Nodes picked by the scheduler, by CRUD operation",
			},
			[]string{"operation"},
		),
		EmptyPicks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "empty_picks_total",
				Help:      "Scheduler ticks that found no ready cluster",
			},
		),
		Executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_total",
				Help:      "Executed actions, by action kind and source (scheduled or fallback)",
			},
			[]string{"kind", "source"},
		),
		Feedback: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feedback_total",
				Help:      "Execution feedback, by outcome",
			},
			[]string{"outcome"},
		),
		Rejected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "nodes_rejected_total",
				Help:      "Nodes refused by the dependency graph",
			},
		),
		Cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_total",
				Help:      "Dependency cycles resolved, by strategy",
			},
			[]string{"strategy"},
		),
		OracleLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "oracle_latency_seconds",
				Help:      "Oracle call latency including retries",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 180},
			},
			[]string{"call"},
		),
		Pending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pending_nodes",
				Help:      "Nodes waiting in the dependency graph",
			},
		),
	}
	m.registry.MustRegister(
		m.Picks,
		m.EmptyPicks,
		m.Executions,
		m.Feedback,
		m.Rejected,
		m.Cycles,
		m.OracleLatency,
		m.Pending,
	)
	return m
}

// ObservePick records a scheduler tick. An empty operation means nothing
// was ready.
func (m *Metrics) ObservePick(operation string) {
	if m == nil {
		return
	}
	if operation == "" {
		m.EmptyPicks.Inc()
		return
	}
	m.Picks.WithLabelValues(operation).Inc()
}

// ObserveExecution records an executed action.
func (m *Metrics) ObserveExecution(kind string, scheduled bool) {
	if m == nil {
		return
	}
	source := "fallback"
	if scheduled {
		source = "scheduled"
	}
	m.Executions.WithLabelValues(kind, source).Inc()
}

// ObserveFeedback records the outcome of an execution.
func (m *Metrics) ObserveFeedback(succeed bool) {
	if m == nil {
		return
	}
	outcome := "failure"
	if succeed {
		outcome = "success"
	}
	m.Feedback.WithLabelValues(outcome).Inc()
}

// ObserveRejected records a node the graph refused.
func (m *Metrics) ObserveRejected() {
	if m == nil {
		return
	}
	m.Rejected.Inc()
}

// ObserveCycle records a resolved cycle.
func (m *Metrics) ObserveCycle(strategy string) {
	if m == nil {
		return
	}
	m.Cycles.WithLabelValues(strategy).Inc()
}

// ObserveOracle records the latency of one oracle call.
func (m *Metrics) ObserveOracle(call string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.OracleLatency.WithLabelValues(call).Observe(elapsed.Seconds())
}

// SetPending sets the pending node gauge.
func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.Pending.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx) //nolint:contextcheck // parent is already done
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server failed: %w", err)
	}
}
