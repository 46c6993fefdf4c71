package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nao1215/crudcrawl/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *CrawlDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestReport(target, sessionID string) *model.CrawlReport {
	r := model.NewCrawlReport(target, sessionID)
	r.AddExecution(model.ExecutionRecord{EdgeIndex: 0, Kind: model.ActionGet, Target: target, Resource: "home", Operation: "view", CRUDType: model.CRUDRead, Success: true, Scheduled: true})
	r.AddExecution(model.ExecutionRecord{EdgeIndex: 3, Kind: model.ActionForm, Target: target + "posts", Resource: "post", Operation: "create", CRUDType: model.CRUDCreate, Success: false})
	r.Blocked = 1
	r.Relations = []model.Relation{{Parent: "post", Child: "comment"}}
	r.FinishedAt = r.StartedAt.Add(time.Minute)
	return r
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, FileName)); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != filepath.Join(dbDir, FileName) {
			t.Errorf("unexpected path %s", db.Path())
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		_, err := Open(filepath.Join(t.TempDir(), "missing"), Options{CreateIfNotExists: false})
		if err == nil {
			t.Error("expected error for missing database")
		}
	})

	t.Run("CreateIfNotExists=false opens existing database", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		db, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		_ = db.Close()

		db, err = Open(dir, Options{CreateIfNotExists: false})
		if err != nil {
			t.Fatalf("failed to reopen database: %v", err)
		}
		_ = db.Close()
	})
}

func TestCrawlDB_Executions(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.CreateSession(ctx, "s1", "http://app.test/", time.Now()); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	if err := db.CreateSession(ctx, "s1", "http://app.test/", time.Now()); err != nil {
		t.Fatalf("creating a session twice should be a no-op: %v", err)
	}

	at := time.Date(2024, 5, 1, 12, 0, 0, 500, time.UTC)
	records := []model.ExecutionRecord{
		{EdgeIndex: 0, Kind: model.ActionGet, Target: "http://app.test/", Resource: "home", Operation: "view", CRUDType: model.CRUDRead, Success: true, Scheduled: true, At: at},
		{EdgeIndex: 4, Kind: model.ActionForm, Target: "http://app.test/posts/1/delete", Success: false, At: at.Add(time.Second)},
	}
	for _, rec := range records {
		if err := db.RecordExecution(ctx, "s1", rec); err != nil {
			t.Fatalf("failed to record execution: %v", err)
		}
	}
	if err := db.RecordExecution(ctx, "s2", records[0]); err != nil {
		t.Fatalf("failed to record execution: %v", err)
	}

	got, err := db.ListExecutions(ctx, "s1")
	if err != nil {
		t.Fatalf("failed to list executions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 executions, got %d", len(got))
	}
	first := got[0]
	if !first.At.Equal(records[0].At) {
		t.Errorf("expected time %v, got %v", records[0].At, first.At)
	}
	first.At = records[0].At
	if first != records[0] {
		t.Errorf("expected %+v, got %+v", records[0], first)
	}
	if got[1].Success || got[1].Scheduled || got[1].Resource != "" || got[1].Kind != model.ActionForm {
		t.Errorf("unexpected second execution %+v", got[1])
	}
}

func TestCrawlDB_Relations(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	for _, s := range []struct{ id, target string }{{"s1", "http://app.test/"}, {"s2", "http://app.test/"}, {"s3", "http://other.test/"}} {
		if err := db.CreateSession(ctx, s.id, s.target, time.Now()); err != nil {
			t.Fatal(err)
		}
	}
	for _, r := range []struct {
		session string
		rel     model.Relation
	}{
		{"s1", model.Relation{Parent: "post", Child: "comment"}},
		{"s1", model.Relation{Parent: "post", Child: "comment"}},
		{"s2", model.Relation{Parent: "post", Child: "comment"}},
		{"s2", model.Relation{Parent: "user", Child: "post"}},
		{"s3", model.Relation{Parent: "order", Child: "item"}},
	} {
		if err := db.RecordRelation(ctx, r.session, r.rel); err != nil {
			t.Fatalf("failed to record relation: %v", err)
		}
	}

	got, err := db.ListRelations(ctx, "http://app.test/")
	if err != nil {
		t.Fatalf("failed to list relations: %v", err)
	}
	want := []model.Relation{{Parent: "post", Child: "comment"}, {Parent: "user", Child: "post"}}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("relation %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestCrawlDB_Reports(t *testing.T) {
	t.Parallel()

	t.Run("save and get latest", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		ctx := context.Background()

		first := newTestReport("http://app.test/", "s1")
		second := newTestReport("http://app.test/", "s2")
		second.TimedOut = true
		for _, r := range []*model.CrawlReport{first, second} {
			if err := db.SaveReport(ctx, r); err != nil {
				t.Fatalf("failed to save report: %v", err)
			}
		}

		latest, err := db.GetLatestReport(ctx, "http://app.test/")
		if err != nil {
			t.Fatalf("failed to get latest report: %v", err)
		}
		if latest == nil || latest.SessionID != "s2" || !latest.TimedOut {
			t.Fatalf("expected session s2, got %+v", latest)
		}
		if latest.Executed() != 2 || latest.Succeeded != 1 || latest.Failed != 1 {
			t.Errorf("unexpected counters in stored report %+v", latest)
		}

		rels, err := db.ListRelations(ctx, "http://app.test/")
		if err != nil {
			t.Fatal(err)
		}
		if len(rels) != 1 || rels[0].Parent != "post" {
			t.Errorf("expected report relations to be stored, got %v", rels)
		}
	})

	t.Run("relations recorded while crawling are stored once", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		ctx := context.Background()

		r := newTestReport("http://app.test/", "s1")
		if err := db.RecordRelation(ctx, "s1", r.Relations[0]); err != nil {
			t.Fatalf("failed to record relation: %v", err)
		}
		if err := db.SaveReport(ctx, r); err != nil {
			t.Fatalf("failed to save report: %v", err)
		}

		var n int
		if err := db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM relations WHERE session_id = ?`, "s1").Scan(&n); err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Errorf("expected one relation row, got %d", n)
		}
	})

	t.Run("missing report is nil", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		got, err := db.GetLatestReport(context.Background(), "http://nothing.test/")
		if err != nil || got != nil {
			t.Errorf("expected nil report without error, got %v %v", got, err)
		}
		got, err = db.GetReportByID(context.Background(), 42)
		if err != nil || got != nil {
			t.Errorf("expected nil report without error, got %v %v", got, err)
		}
	})

	t.Run("history and targets", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		ctx := context.Background()

		for _, r := range []*model.CrawlReport{
			newTestReport("http://b.test/", "s1"),
			newTestReport("http://a.test/", "s2"),
			newTestReport("http://a.test/", "s3"),
		} {
			if err := db.SaveReport(ctx, r); err != nil {
				t.Fatal(err)
			}
		}

		targets, err := db.ListTargets(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(targets) != 2 || targets[0] != "http://a.test/" || targets[1] != "http://b.test/" {
			t.Errorf("unexpected targets %v", targets)
		}

		history, err := db.GetHistory(ctx, "http://a.test/")
		if err != nil {
			t.Fatal(err)
		}
		if len(history) != 2 {
			t.Fatalf("expected 2 history entries, got %d", len(history))
		}
		if history[0].SessionID != "s3" {
			t.Errorf("expected newest first, got %s", history[0].SessionID)
		}
		if history[0].Summary["executed"] != 2 || history[0].Summary["blocked"] != 1 || history[0].Summary["relations"] != 1 {
			t.Errorf("unexpected summary %v", history[0].Summary)
		}
		if history[0].Timestamp.IsZero() {
			t.Error("expected parsed timestamp")
		}

		report, err := db.GetReportByID(ctx, history[1].ID)
		if err != nil || report == nil || report.SessionID != "s2" {
			t.Errorf("expected report s2 by id, got %v %v", report, err)
		}
	})
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-01-02 03:04:05", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"2024-01-02T03:04:05Z", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"2024-01-02T03:04:05.5Z", time.Date(2024, 1, 2, 3, 4, 5, 500000000, time.UTC)},
		{"not a time", time.Time{}},
	}
	for _, tt := range tests {
		if got := parseTimestamp(tt.in); !got.Equal(tt.want) {
			t.Errorf("parseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
