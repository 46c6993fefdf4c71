package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/crudcrawl/internal/model"
)

// FileName is the database file created in the data directory.
const FileName = "crudcrawl.db"

// CrawlDB stores crawl sessions, their executions, the resource relations
// they confirmed and the final reports in a single SQLite file.
type CrawlDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the database in dbDir.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	dsn := dbPath + "?mode=rwc"
	if opts.CreateIfNotExists {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	} else {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return cdb, nil
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

func (cdb *CrawlDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		target TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		timed_out INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_target ON sessions(target);

	-- One row per executed action, written while the crawl runs
	CREATE TABLE IF NOT EXISTS executions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		edge_index INTEGER NOT NULL,
		kind TEXT NOT NULL,
		target TEXT NOT NULL,
		resource TEXT,
		operation TEXT,
		crud_type TEXT,
		success INTEGER NOT NULL,
		scheduled INTEGER NOT NULL,
		executed_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_executions_session ON executions(session_id);

	-- Confirmed parent/child resource relations
	CREATE TABLE IF NOT EXISTS relations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		parent TEXT NOT NULL,
		child TEXT NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(session_id, parent, child)
	);

	CREATE INDEX IF NOT EXISTS idx_relations_session ON relations(session_id);

	CREATE TABLE IF NOT EXISTS reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		target TEXT NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		report_json TEXT NOT NULL,
		summary TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_reports_target ON reports(target);
	CREATE INDEX IF NOT EXISTS idx_reports_timestamp ON reports(timestamp);
	`
	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// CreateSession registers a crawl session. Registering an existing
// session is a no-op.
func (cdb *CrawlDB) CreateSession(ctx context.Context, sessionID, target string, startedAt time.Time) error {
	_, err := cdb.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (id, target, started_at) VALUES (?, ?, ?)`,
		sessionID, target, formatTime(startedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// RecordExecution stores one executed action of sessionID. Together with
// RecordRelation it satisfies the crawler's Recorder.
func (cdb *CrawlDB) RecordExecution(ctx context.Context, sessionID string, rec model.ExecutionRecord) error {
	query := `
	INSERT INTO executions (session_id, edge_index, kind, target, resource, operation, crud_type, success, scheduled, executed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := cdb.db.ExecContext(ctx, query,
		sessionID,
		rec.EdgeIndex,
		string(rec.Kind),
		rec.Target,
		rec.Resource,
		rec.Operation,
		rec.CRUDType,
		rec.Success,
		rec.Scheduled,
		formatTime(rec.At),
	)
	if err != nil {
		return fmt.Errorf("failed to record execution: %w", err)
	}
	return nil
}

// ListExecutions returns the executions of sessionID in execution order.
func (cdb *CrawlDB) ListExecutions(ctx context.Context, sessionID string) ([]model.ExecutionRecord, error) {
	query := `
	SELECT edge_index, kind, target, resource, operation, crud_type, success, scheduled, executed_at
	FROM executions
	WHERE session_id = ?
	ORDER BY id
	`
	rows, err := cdb.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var results []model.ExecutionRecord
	for rows.Next() {
		var (
			rec                       model.ExecutionRecord
			kind, at                  string
			resource, operation, crud sql.NullString
		)
		if err := rows.Scan(&rec.EdgeIndex, &kind, &rec.Target, &resource, &operation, &crud, &rec.Success, &rec.Scheduled, &at); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		rec.Kind = model.ActionKind(kind)
		rec.Resource, rec.Operation, rec.CRUDType = resource.String, operation.String, crud.String
		rec.At = parseTimestamp(at)
		results = append(results, rec)
	}
	return results, rows.Err()
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRelation(ctx context.Context, ex execer, sessionID string, rel model.Relation) error {
	_, err := ex.ExecContext(ctx,
		`INSERT OR IGNORE INTO relations (session_id, parent, child) VALUES (?, ?, ?)`,
		sessionID, rel.Parent, rel.Child,
	)
	return err
}

// RecordRelation stores a relation sessionID confirmed while crawling. It
// satisfies the crawler's Recorder. Duplicates are ignored.
func (cdb *CrawlDB) RecordRelation(ctx context.Context, sessionID string, rel model.Relation) error {
	if err := insertRelation(ctx, cdb.db, sessionID, rel); err != nil {
		return fmt.Errorf("failed to record relation: %w", err)
	}
	return nil
}

// ListRelations returns the distinct relations confirmed by any session
// against target, sorted by child then parent.
func (cdb *CrawlDB) ListRelations(ctx context.Context, target string) ([]model.Relation, error) {
	query := `
	SELECT DISTINCT r.parent, r.child
	FROM relations r
	JOIN sessions s ON s.id = r.session_id
	WHERE s.target = ?
	ORDER BY r.child, r.parent
	`
	rows, err := cdb.db.QueryContext(ctx, query, target)
	if err != nil {
		return nil, fmt.Errorf("failed to query relations: %w", err)
	}
	defer rows.Close()

	var results []model.Relation
	for rows.Next() {
		var rel model.Relation
		if err := rows.Scan(&rel.Parent, &rel.Child); err != nil {
			return nil, fmt.Errorf("failed to scan relation: %w", err)
		}
		results = append(results, rel)
	}
	return results, rows.Err()
}

// SaveReport stores report as JSON, closes its session and records its
// relations, all in one transaction.
func (cdb *CrawlDB) SaveReport(ctx context.Context, report *model.CrawlReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}
	summaryJSON, err := json.Marshal(summarize(report))
	if err != nil {
		return fmt.Errorf("failed to serialize report summary: %w", err)
	}

	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO sessions (id, target, started_at, finished_at, timed_out)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		finished_at = excluded.finished_at,
		timed_out = excluded.timed_out
	`, report.SessionID, report.Target, formatTime(report.StartedAt), formatTime(report.FinishedAt), report.TimedOut)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	for _, rel := range report.Relations {
		if err := insertRelation(ctx, tx, report.SessionID, rel); err != nil {
			return fmt.Errorf("failed to save relation: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO reports (session_id, target, report_json, summary) VALUES (?, ?, ?, ?)`,
		report.SessionID, report.Target, string(reportJSON), string(summaryJSON),
	); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return tx.Commit()
}

func summarize(r *model.CrawlReport) map[string]int {
	return map[string]int{
		"executed":  r.Executed(),
		"succeeded": r.Succeeded,
		"failed":    r.Failed,
		"blocked":   r.Blocked,
		"relations": len(r.Relations),
	}
}

// GetLatestReport returns the most recent report for target, or nil.
func (cdb *CrawlDB) GetLatestReport(ctx context.Context, target string) (*model.CrawlReport, error) {
	query := `
	SELECT report_json FROM reports
	WHERE target = ?
	ORDER BY timestamp DESC, id DESC
	LIMIT 1
	`
	return cdb.queryReport(ctx, query, target)
}

// GetReportByID returns a report by its database ID, or nil.
func (cdb *CrawlDB) GetReportByID(ctx context.Context, id int64) (*model.CrawlReport, error) {
	return cdb.queryReport(ctx, `SELECT report_json FROM reports WHERE id = ?`, id)
}

func (cdb *CrawlDB) queryReport(ctx context.Context, query string, arg any) (*model.CrawlReport, error) {
	var reportJSON string
	err := cdb.db.QueryRowContext(ctx, query, arg).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	var report model.CrawlReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// ListTargets returns every target with at least one stored report.
func (cdb *CrawlDB) ListTargets(ctx context.Context) ([]string, error) {
	rows, err := cdb.db.QueryContext(ctx, `SELECT DISTINCT target FROM reports ORDER BY target`)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	defer rows.Close()

	var targets []string
	for rows.Next() {
		var target string
		if err := rows.Scan(&target); err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		targets = append(targets, target)
	}
	return targets, rows.Err()
}

// ReportMetadata summarizes a stored report without loading it.
type ReportMetadata struct {
	// ID is the report's database ID.
	ID int64

	// SessionID is the crawl session that produced the report.
	SessionID string

	// Target is the crawled start URL.
	Target string

	// Timestamp is when the report was stored.
	Timestamp time.Time

	// Summary holds the executed, succeeded, failed, blocked and relations
	// counts.
	Summary map[string]int
}

// GetHistory returns the report metadata of target, newest first.
func (cdb *CrawlDB) GetHistory(ctx context.Context, target string) ([]ReportMetadata, error) {
	query := `
	SELECT id, session_id, target, timestamp, summary
	FROM reports
	WHERE target = ?
	ORDER BY timestamp DESC, id DESC
	`
	rows, err := cdb.db.QueryContext(ctx, query, target)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var results []ReportMetadata
	for rows.Next() {
		var (
			meta      ReportMetadata
			timestamp string
			summary   sql.NullString
		)
		if err := rows.Scan(&meta.ID, &meta.SessionID, &meta.Target, &timestamp, &summary); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}
		meta.Timestamp = parseTimestamp(timestamp)
		meta.Summary = make(map[string]int)
		if summary.Valid && summary.String != "" {
			_ = json.Unmarshal([]byte(summary.String), &meta.Summary) //nolint:errcheck // a broken summary leaves the map empty
		}
		results = append(results, meta)
	}
	return results, rows.Err()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// timestampFormats are the formats SQLite may return, most specific first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	time.RFC3339,              // Full RFC3339 format
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp returns the zero time when no format matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
