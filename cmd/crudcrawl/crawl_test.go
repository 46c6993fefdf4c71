package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/nao1215/crudcrawl/internal/cache"
	"github.com/nao1215/crudcrawl/internal/config"
	"github.com/nao1215/crudcrawl/internal/database"
	"github.com/nao1215/crudcrawl/internal/model"
	"github.com/nao1215/crudcrawl/internal/oracle"
	"github.com/nao1215/crudcrawl/internal/report"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testSite is a small application with a logout link that must never be
// followed.
type testSite struct {
	*httptest.Server
	loggedOut atomic.Bool
}

func newTestSite(t *testing.T) *testSite {
	t.Helper()

	site := &testSite{}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/logout":
			site.loggedOut.Store(true)
			fmt.Fprint(w, `<html><body>Bye</body></html>`)
		case "/about":
			fmt.Fprint(w, `<html><body><p>About us</p></body></html>`)
		default:
			fmt.Fprint(w, `<html><body><a href="/about">About</a> <a href="/logout">Logout</a></body></html>`)
		}
	})
	site.Server = httptest.NewServer(mux)
	t.Cleanup(site.Close)
	return site
}

// testConfig returns a configuration crawling targets without touching the
// user's database.
func testConfig(targets ...string) *config.Config {
	cfg := config.NewConfig()
	cfg.Targets = targets
	cfg.MaxCrawlTime = 20 * time.Second
	cfg.ClassifyConcurrency = 1
	cfg.Timeout = 5 * time.Second
	cfg.OracleToken = ""
	return cfg
}

func TestNewCrawlCmd(t *testing.T) {
	t.Parallel()

	cmd := NewCrawlCmd()
	if cmd.Use != "crawl [url]..." {
		t.Errorf("unexpected Use: %q", cmd.Use)
	}

	flagsWithShort := map[string]string{
		"batch":    "b",
		"config":   "c",
		"json":     "j",
		"markdown": "m",
		"output":   "o",
		"timeout":  "t",
	}
	for flag, shorthand := range flagsWithShort {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			t.Errorf("expected flag %q to exist", flag)
			continue
		}
		if f.Shorthand != shorthand {
			t.Errorf("flag %q: expected shorthand %q, got %q", flag, shorthand, f.Shorthand)
		}
	}
	for _, flag := range []string{"max-time", "max-steps", "cycle-strategy", "delete-gate", "seed", "oracle-url", "oracle-retries", "oracle-max-backoff", "redis", "metrics-addr", "no-db", "log-json"} {
		if cmd.Flags().Lookup(flag) == nil {
			t.Errorf("expected flag %q to exist", flag)
		}
	}
}

func TestGetVerboseFlag(t *testing.T) {
	t.Parallel()

	t.Run("returns false when flag not set", func(t *testing.T) {
		t.Parallel()
		if getVerboseFlag(NewCrawlCmd()) {
			t.Error("expected false when flag not set")
		}
	})

	t.Run("returns value from parent verbose flag", func(t *testing.T) {
		t.Parallel()
		root := NewRootCmd()
		_ = root.PersistentFlags().Set("verbose", "true")
		crawlCmd, _, err := root.Find([]string{"crawl"})
		if err != nil {
			t.Fatalf("failed to find crawl command: %v", err)
		}
		if !getVerboseFlag(crawlCmd) {
			t.Error("expected true from parent verbose flag")
		}
	})
}

func TestBuildConfig(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		cfg, err := buildConfig(NewCrawlCmd(), []string{"http://localhost:8080/"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cfg.Targets) != 1 || cfg.Targets[0] != "http://localhost:8080/" {
			t.Errorf("unexpected targets %v", cfg.Targets)
		}
		if cfg.MaxCrawlTime != config.DefaultMaxCrawlTime {
			t.Errorf("expected default crawl time, got %v", cfg.MaxCrawlTime)
		}
		if cfg.CycleStrategy != config.DefaultCycleStrategy {
			t.Errorf("expected default cycle strategy, got %q", cfg.CycleStrategy)
		}
		if cfg.DeleteGate != config.DefaultDeleteGate {
			t.Errorf("expected default delete gate, got %d", cfg.DeleteGate)
		}
		if !cfg.SaveToDB {
			t.Error("expected SaveToDB by default")
		}
		if cfg.DBDir != config.XDGDataDir() {
			t.Errorf("unexpected DBDir %q", cfg.DBDir)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("default config should be valid: %v", err)
		}
	})

	t.Run("flags override defaults", func(t *testing.T) {
		t.Parallel()

		cmd := NewCrawlCmd()
		for name, value := range map[string]string{
			"max-time":       "90s",
			"max-steps":      "25",
			"cycle-strategy": "break",
			"delete-gate":    "101",
			"seed":           "42",
			"oracle-url":     "http://oracle.test/v1",
			"redis":          "127.0.0.1:6379",
			"batch":          "3",
			"no-db":          "true",
			"json":           "true",
			"output":         "out/report.json",
		} {
			if err := cmd.Flags().Set(name, value); err != nil {
				t.Fatalf("failed to set %s: %v", name, err)
			}
		}

		cfg, err := buildConfig(cmd, []string{"a.test", "b.test"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.MaxCrawlTime != 90*time.Second || cfg.MaxSteps != 25 {
			t.Errorf("unexpected budget %v / %d", cfg.MaxCrawlTime, cfg.MaxSteps)
		}
		if cfg.CycleStrategy != "break" || cfg.DeleteGate != 101 || cfg.Seed != 42 {
			t.Errorf("unexpected scheduling %q / %d / %d", cfg.CycleStrategy, cfg.DeleteGate, cfg.Seed)
		}
		if cfg.OracleURL != "http://oracle.test/v1" || cfg.RedisAddress != "127.0.0.1:6379" {
			t.Errorf("unexpected services %q / %q", cfg.OracleURL, cfg.RedisAddress)
		}
		if cfg.BatchSize != 3 || cfg.SaveToDB || !cfg.JSONReport || cfg.ReportFile != "out/report.json" {
			t.Errorf("unexpected output settings %+v", cfg)
		}
		if len(cfg.Targets) != 2 {
			t.Errorf("expected two targets, got %v", cfg.Targets)
		}
	})

	t.Run("conflicting formats fail validation", func(t *testing.T) {
		t.Parallel()

		cmd := NewCrawlCmd()
		_ = cmd.Flags().Set("json", "true")
		_ = cmd.Flags().Set("markdown", "true")
		cfg, err := buildConfig(cmd, []string{"http://localhost/"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := cfg.Validate(); err == nil {
			t.Error("expected validation error")
		}
	})
}

func TestRunCrawlCmdErrors(t *testing.T) {
	t.Parallel()

	t.Run("no targets", func(t *testing.T) {
		t.Parallel()
		cmd := NewCrawlCmd()
		cmd.SetArgs([]string{"--no-db"})
		cmd.SetOut(&bytes.Buffer{})
		err := cmd.Execute()
		if err == nil || !strings.Contains(err.Error(), "no target") {
			t.Errorf("expected no target error, got %v", err)
		}
	})

	t.Run("invalid cycle strategy", func(t *testing.T) {
		t.Parallel()
		cmd := NewCrawlCmd()
		cmd.SetArgs([]string{"--no-db", "--cycle-strategy", "rotate", "http://localhost/"})
		cmd.SetOut(&bytes.Buffer{})
		err := cmd.Execute()
		if err == nil || !strings.Contains(err.Error(), "cycle strategy") {
			t.Errorf("expected cycle strategy error, got %v", err)
		}
	})
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		json    bool
		wantPre string
	}{
		{"text", false, "time="},
		{"json", true, "{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			newLogger(&config.Config{LogJSON: tt.json}, &buf).Warn("request failed", "cookie", "sessionid=secret")
			if !strings.HasPrefix(buf.String(), tt.wantPre) {
				t.Errorf("expected output starting with %q, got %q", tt.wantPre, buf.String())
			}
			if strings.Contains(buf.String(), "secret") {
				t.Errorf("expected the cookie to be masked, got %q", buf.String())
			}
		})
	}
}

func TestNewOracle(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	deps := crawlDeps{logger: discardLogger()}

	if _, ok := newOracle(cfg, config.SiteConfig{}, deps).(*oracle.KeywordClassifier); !ok {
		t.Error("expected the keyword classifier without an oracle URL")
	}

	cfg.OracleURL = "http://oracle.test/v1"
	if _, ok := newOracle(cfg, config.SiteConfig{Purpose: "blog"}, deps).(*oracle.ChatClient); !ok {
		t.Error("expected the chat client with an oracle URL")
	}
}

func TestNewOracleBackoff(t *testing.T) {
	t.Parallel()

	b := newOracleBackoff(10 * time.Second)
	if b.Max != 10*time.Second {
		t.Errorf("expected cap of 10s, got %v", b.Max)
	}
	b.Jitter = 0
	if got := b.Next(20); got != 10*time.Second {
		t.Errorf("expected late retries to wait the cap, got %v", got)
	}

	short := newOracleBackoff(100 * time.Millisecond)
	if short.Base != 100*time.Millisecond {
		t.Errorf("expected the base to shrink to the cap, got %v", short.Base)
	}
}

func TestNewReportWriter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  func(*config.Config)
		want any
	}{
		{"simple", func(*config.Config) {}, &report.SimpleWriter{}},
		{"json", func(c *config.Config) { c.JSONReport = true }, &report.JSONWriter{}},
		{"markdown", func(c *config.Config) { c.MarkdownReport = true }, &report.MarkdownWriter{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig()
			tt.cfg(cfg)
			got := newReportWriter(cfg, io.Discard)
			if fmt.Sprintf("%T", got) != fmt.Sprintf("%T", tt.want) {
				t.Errorf("expected %T, got %T", tt.want, got)
			}
		})
	}
}

func TestOpenOutput(t *testing.T) {
	t.Parallel()

	t.Run("stdout when path is empty", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		out, err := openOutput("", &buf)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		fmt.Fprint(out, "hello")
		if err := out.Close(); err != nil {
			t.Fatalf("unexpected close error: %v", err)
		}
		if buf.String() != "hello" {
			t.Errorf("expected write to stdout, got %q", buf.String())
		}
	})

	t.Run("creates directories and file", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "reports", "nested", "report.txt")
		out, err := openOutput(path, io.Discard)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		fmt.Fprint(out, "report")
		_ = out.Close()

		content, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read report: %v", err)
		}
		if string(content) != "report" {
			t.Errorf("unexpected content %q", content)
		}
	})
}

func TestRunCrawl(t *testing.T) {
	t.Parallel()

	t.Run("single target prints a report and never logs out", func(t *testing.T) {
		t.Parallel()

		site := newTestSite(t)
		cfg := testConfig(site.URL)
		cfg.SaveToDB = false

		var out bytes.Buffer
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := runCrawl(ctx, cfg, discardLogger(), &out); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := out.String()
		if !strings.Contains(output, "CRUDCRAWL REPORT") {
			t.Errorf("expected a report, got %q", output)
		}
		if !strings.Contains(output, site.URL+"/") {
			t.Errorf("expected the normalized target in the report, got %q", output)
		}
		if site.loggedOut.Load() {
			t.Error("logout must never be requested")
		}
	})

	t.Run("batch writes JSON for every target", func(t *testing.T) {
		t.Parallel()

		first, second := newTestSite(t), newTestSite(t)
		cfg := testConfig(first.URL, second.URL)
		cfg.SaveToDB = false
		cfg.BatchSize = 2
		cfg.JSONReport = true

		var out bytes.Buffer
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := runCrawl(ctx, cfg, discardLogger(), &out); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var doc report.Document
		if err := json.Unmarshal(out.Bytes(), &doc); err != nil {
			t.Fatalf("invalid JSON output: %v\n%s", err, out.String())
		}
		if len(doc.Reports) != 2 {
			t.Fatalf("expected 2 reports, got %d", len(doc.Reports))
		}
		if doc.Reports[0].Target != first.URL+"/" || doc.Reports[1].Target != second.URL+"/" {
			t.Errorf("reports out of order: %s, %s", doc.Reports[0].Target, doc.Reports[1].Target)
		}
		if doc.Reports[0].SessionID == doc.Reports[1].SessionID {
			t.Error("expected one session per target")
		}
	})

	t.Run("stores sessions with the redis relation cache", func(t *testing.T) {
		t.Parallel()

		mr := miniredis.RunT(t)
		site := newTestSite(t)
		cfg := testConfig(site.URL)
		cfg.DBDir = t.TempDir()
		cfg.SaveToDB = true
		cfg.RedisAddress = mr.Addr()
		cfg.Seed = 7
		cfg.ReportFile = filepath.Join(t.TempDir(), "report.md")
		cfg.MarkdownReport = true

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		var stdout bytes.Buffer
		if err := runCrawl(ctx, cfg, discardLogger(), &stdout); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		content, err := os.ReadFile(cfg.ReportFile)
		if err != nil {
			t.Fatalf("expected report file: %v", err)
		}
		if !strings.Contains(string(content), "# crudcrawl Report") {
			t.Errorf("expected markdown report, got %q", content)
		}
		if !strings.Contains(stdout.String(), "CRUDCRAWL REPORT") {
			t.Errorf("expected a text summary on stdout, got %q", stdout.String())
		}

		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		history, err := db.GetHistory(ctx, site.URL+"/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(history) != 1 {
			t.Fatalf("expected one stored session, got %d", len(history))
		}
		execs, err := db.ListExecutions(ctx, history[0].SessionID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(execs) == 0 {
			t.Error("expected executions to be recorded while crawling")
		}
		if keys := mr.Keys(); len(keys) != 0 {
			t.Errorf("expected relation answers to be dropped with the session, got keys %v", keys)
		}
	})

	t.Run("invalid target", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig("ftp://example.com/")
		cfg.SaveToDB = false
		err := runCrawl(context.Background(), cfg, discardLogger(), io.Discard)
		if err == nil {
			t.Error("expected error for non-http target")
		}
	})
}

func TestClearRelationCaches(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	ctx := context.Background()
	client, err := cache.Dial(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer client.Close()

	finished := cache.NewRelationCache(client, "finished")
	running := cache.NewRelationCache(client, "running")
	for _, c := range []*cache.RelationCache{finished, running} {
		if err := c.Store(ctx, "post", "comment", false); err != nil {
			t.Fatalf("failed to store: %v", err)
		}
	}

	deps := crawlDeps{redis: client, logger: discardLogger()}
	clearRelationCaches(ctx, deps, []*model.CrawlReport{
		model.NewCrawlReport("http://blog.test/", "finished"),
		nil,
	})

	if _, found, _ := finished.Lookup(ctx, "post", "comment"); found {
		t.Error("expected a negative answer not to survive its session")
	}
	if _, found, _ := running.Lookup(ctx, "post", "comment"); !found {
		t.Error("expected other sessions to keep their answers")
	}
}
