package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	t.Parallel()

	m := New()
	m.ObservePick("create")
	m.ObservePick("create")
	m.ObservePick("")
	m.ObserveExecution("form", true)
	m.ObserveExecution("get", false)
	m.ObserveFeedback(true)
	m.ObserveFeedback(false)
	m.ObserveFeedback(false)
	m.ObserveRejected()
	m.ObserveCycle("merge")
	m.ObserveOracle("classify", 2*time.Second)
	m.SetPending(7)

	if got := testutil.ToFloat64(m.Picks.WithLabelValues("create")); got != 2 {
		t.Errorf("expected 2 create picks, got %v", got)
	}
	if got := testutil.ToFloat64(m.EmptyPicks); got != 1 {
		t.Errorf("expected 1 empty pick, got %v", got)
	}
	if got := testutil.ToFloat64(m.Executions.WithLabelValues("get", "fallback")); got != 1 {
		t.Errorf("expected 1 fallback execution, got %v", got)
	}
	if got := testutil.ToFloat64(m.Feedback.WithLabelValues("failure")); got != 2 {
		t.Errorf("expected 2 failures, got %v", got)
	}
	if got := testutil.ToFloat64(m.Rejected); got != 1 {
		t.Errorf("expected 1 rejected node, got %v", got)
	}
	if got := testutil.ToFloat64(m.Cycles.WithLabelValues("merge")); got != 1 {
		t.Errorf("expected 1 merge cycle, got %v", got)
	}
	if got := testutil.ToFloat64(m.Pending); got != 7 {
		t.Errorf("expected 7 pending, got %v", got)
	}
	if got := testutil.CollectAndCount(m.OracleLatency); got != 1 {
		t.Errorf("expected 1 latency series, got %d", got)
	}
}

func TestNilMetrics(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.ObservePick("read")
	m.ObserveExecution("get", true)
	m.ObserveFeedback(true)
	m.ObserveRejected()
	m.ObserveCycle("break")
	m.ObserveOracle("verify", time.Second)
	m.SetPending(1)
}

func TestHandler(t *testing.T) {
	t.Parallel()

	m := New()
	m.ObserveCycle("skip")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL) //nolint:noctx // test
	if err != nil {
		t.Fatalf("failed to fetch metrics: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	if !strings.Contains(string(body), `crudcrawl_cycles_total{strategy="skip"} 1`) {
		t.Errorf("expected cycle counter in output, got:\n%s", body)
	}
}
