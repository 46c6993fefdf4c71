package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/nao1215/crudcrawl/internal/config"
	"github.com/nao1215/crudcrawl/internal/database"
	"github.com/nao1215/crudcrawl/internal/model"
)

// Coverage trends between two sessions.
const (
	trendExpanded  = "expanded"
	trendShrunk    = "shrunk"
	trendUnchanged = "unchanged"
)

// NewCompareCmd creates the compare command.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare [url]",
		Short: "Compare two crawl sessions of a target",
		Long: `Compare shows how two stored crawl sessions of the same target differ:

- Resource dependencies found or lost
- Resources that appeared or disappeared
- Executions per CRUD type
- Succeeded and failed executions

By default the latest two sessions are compared. Use 'crudcrawl history'
to list the stored sessions and their IDs.

Examples:
  # Compare the latest two crawls
  crudcrawl compare http://localhost:8080/

  # Compare the latest crawl with a specific session
  crudcrawl compare --with-id 5 http://localhost:8080/

  # Compare with the first crawl since a date
  crudcrawl compare --since 2026-01-01 http://localhost:8080/

  # Output in JSON format
  crudcrawl compare --json http://localhost:8080/`,
		Args: cobra.ExactArgs(1),
		RunE: runCompareCmd,
	}

	cmd.Flags().Int64P("with-id", "i", 0,
		"Compare with a specific stored report by ID (see 'crudcrawl history')")
	cmd.Flags().StringP("since", "s", "",
		"Compare with the first report stored on or after this date (YYYY-MM-DD)")
	cmd.Flags().BoolP("json", "j", false,
		"Output comparison result in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output comparison result in Markdown format")

	return cmd
}

// compareOptions selects the previous report and the output format.
type compareOptions struct {
	withID   int64
	since    string
	json     bool
	markdown bool
}

func runCompareCmd(cmd *cobra.Command, args []string) error {
	// Validate before opening the database.
	target, err := config.NormalizeTarget(args[0])
	if err != nil {
		return err
	}

	var opts compareOptions
	if opts.withID, err = cmd.Flags().GetInt64("with-id"); err != nil {
		return err
	}
	if opts.since, err = cmd.Flags().GetString("since"); err != nil {
		return err
	}
	if opts.json, err = cmd.Flags().GetBool("json"); err != nil {
		return err
	}
	if opts.markdown, err = cmd.Flags().GetBool("markdown"); err != nil {
		return err
	}
	if opts.json && opts.markdown {
		return config.ErrConflictingReportFormats
	}

	db, err := database.Open(config.XDGDataDir(), database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	return runComparison(cmd.Context(), db, target, opts, cmd.OutOrStdout())
}

// runComparison compares the latest report of target with an earlier one.
func runComparison(ctx context.Context, db *database.CrawlDB, target string, opts compareOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	history, err := db.GetHistory(ctx, target)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return fmt.Errorf("no crawl history found for %s", target)
	}
	if len(history) < 2 && opts.withID == 0 && opts.since == "" {
		return fmt.Errorf("at least 2 crawls are required for comparison (found %d)", len(history))
	}

	// History is newest first.
	current := history[0]
	var previous *database.ReportMetadata

	switch {
	case opts.withID > 0:
		for i := range history {
			if history[i].ID == opts.withID {
				previous = &history[i]
				break
			}
		}
		if previous == nil {
			return fmt.Errorf("report %d not found for %s", opts.withID, target)
		}
	case opts.since != "":
		since, err := time.Parse("2006-01-02", opts.since)
		if err != nil {
			return fmt.Errorf("invalid date format (use YYYY-MM-DD): %w", err)
		}
		for i := len(history) - 1; i >= 0; i-- {
			if !history[i].Timestamp.Before(since) {
				previous = &history[i]
				break
			}
		}
		if previous == nil {
			return fmt.Errorf("no crawls found since %s", opts.since)
		}
	default:
		previous = &history[1]
	}
	if previous.ID == current.ID {
		return fmt.Errorf("report %d is the latest crawl; at least 2 crawls are required for comparison", current.ID)
	}

	prevReport, err := db.GetReportByID(ctx, previous.ID)
	if err != nil {
		return err
	}
	currReport, err := db.GetReportByID(ctx, current.ID)
	if err != nil {
		return err
	}
	if prevReport == nil || currReport == nil {
		return fmt.Errorf("stored report of %s is missing", target)
	}

	result := compareReports(summarizeSession(*previous, prevReport), summarizeSession(current, currReport), prevReport, currReport)

	switch {
	case opts.json:
		return outputComparisonJSON(out, result)
	case opts.markdown:
		return outputComparisonMarkdown(out, result)
	default:
		return outputComparisonText(out, result)
	}
}

// ComparisonResult is the difference between two crawl sessions.
type ComparisonResult struct {
	Target   string         `json:"target"`
	Previous SessionSummary `json:"previous"`
	Current  SessionSummary `json:"current"`

	// AddedRelations were confirmed only by the current session and
	// RemovedRelations only by the previous one.
	AddedRelations     []model.Relation `json:"added_relations,omitempty"`
	RemovedRelations   []model.Relation `json:"removed_relations,omitempty"`
	UnchangedRelations int              `json:"unchanged_relations"`

	AddedResources   []string `json:"added_resources,omitempty"`
	RemovedResources []string `json:"removed_resources,omitempty"`

	// CRUDDelta is current minus previous executions per CRUD type.
	CRUDDelta map[string]int `json:"crud_delta"` //nolint:tagliatelle // CRUD is an acronym

	// Trend is expanded, shrunk or unchanged by succeeded executions.
	Trend string `json:"trend"`
}

// SessionSummary describes one side of a comparison.
type SessionSummary struct {
	ID         int64          `json:"id"`
	SessionID  string         `json:"session_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Executed   int            `json:"executed"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
	Blocked    int            `json:"blocked"`
	Pending    int            `json:"pending"`
	TimedOut   bool           `json:"timed_out"`
	CRUDCounts map[string]int `json:"crud_counts"` //nolint:tagliatelle // CRUD is an acronym
}

func summarizeSession(meta database.ReportMetadata, r *model.CrawlReport) SessionSummary {
	return SessionSummary{
		ID:         meta.ID,
		SessionID:  r.SessionID,
		Timestamp:  meta.Timestamp,
		Executed:   r.Executed(),
		Succeeded:  r.Succeeded,
		Failed:     r.Failed,
		Blocked:    r.Blocked,
		Pending:    r.PendingTotal(),
		TimedOut:   r.TimedOut,
		CRUDCounts: r.CRUDCounts(),
	}
}

// compareReports computes the difference between two sessions of the same
// target.
func compareReports(prevSummary, currSummary SessionSummary, previous, current *model.CrawlReport) *ComparisonResult {
	result := &ComparisonResult{
		Target:    current.Target,
		Previous:  prevSummary,
		Current:   currSummary,
		CRUDDelta: make(map[string]int),
	}

	prevRel := relationSet(previous.Relations)
	currRel := relationSet(current.Relations)
	for key, rel := range currRel {
		if _, ok := prevRel[key]; ok {
			result.UnchangedRelations++
			continue
		}
		result.AddedRelations = append(result.AddedRelations, rel)
	}
	for key, rel := range prevRel {
		if _, ok := currRel[key]; !ok {
			result.RemovedRelations = append(result.RemovedRelations, rel)
		}
	}
	sortRelations(result.AddedRelations)
	sortRelations(result.RemovedRelations)

	result.AddedResources = difference(current.Resources(), previous.Resources())
	result.RemovedResources = difference(previous.Resources(), current.Resources())

	for _, crud := range crudTypes {
		if d := currSummary.CRUDCounts[crud] - prevSummary.CRUDCounts[crud]; d != 0 {
			result.CRUDDelta[crud] = d
		}
	}

	switch {
	case currSummary.Succeeded > prevSummary.Succeeded:
		result.Trend = trendExpanded
	case currSummary.Succeeded < prevSummary.Succeeded:
		result.Trend = trendShrunk
	default:
		result.Trend = trendUnchanged
	}
	return result
}

var crudTypes = []string{
	model.CRUDCreate, model.CRUDRead, model.CRUDUpdate, model.CRUDDelete, model.CRUDUnknown,
}

func relationSet(rels []model.Relation) map[string]model.Relation {
	out := make(map[string]model.Relation, len(rels))
	for _, r := range rels {
		out[r.Parent+"|"+r.Child] = r
	}
	return out
}

func sortRelations(rels []model.Relation) {
	sort.Slice(rels, func(i, j int) bool {
		if rels[i].Parent != rels[j].Parent {
			return rels[i].Parent < rels[j].Parent
		}
		return rels[i].Child < rels[j].Child
	})
}

// difference returns the sorted elements of a not in b.
func difference(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, s := range b {
		in[s] = true
	}
	var out []string
	for _, s := range a {
		if !in[s] {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func outputComparisonJSON(out io.Writer, result *ComparisonResult) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func outputComparisonMarkdown(out io.Writer, result *ComparisonResult) error {
	md := markdown.NewMarkdown(out)
	md.H1("Crawl Comparison: " + result.Target)
	md.PlainText("")
	md.PlainTextf("**Coverage:** %s", formatTrend(result.Trend))
	md.PlainText("")

	rows := [][]string{
		{"Date", result.Previous.Timestamp.Format("2006-01-02 15:04"), result.Current.Timestamp.Format("2006-01-02 15:04"), "-"},
		{"Executed", strconv.Itoa(result.Previous.Executed), strconv.Itoa(result.Current.Executed), formatDelta(result.Current.Executed - result.Previous.Executed)},
		{"Succeeded", strconv.Itoa(result.Previous.Succeeded), strconv.Itoa(result.Current.Succeeded), formatDelta(result.Current.Succeeded - result.Previous.Succeeded)},
		{"Failed", strconv.Itoa(result.Previous.Failed), strconv.Itoa(result.Current.Failed), formatDelta(result.Current.Failed - result.Previous.Failed)},
		{"Pending", strconv.Itoa(result.Previous.Pending), strconv.Itoa(result.Current.Pending), formatDelta(result.Current.Pending - result.Previous.Pending)},
	}
	for _, crud := range crudTypes {
		rows = append(rows, []string{
			strings.ToUpper(crud[:1]) + crud[1:],
			strconv.Itoa(result.Previous.CRUDCounts[crud]),
			strconv.Itoa(result.Current.CRUDCounts[crud]),
			formatDelta(result.CRUDDelta[crud]),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Previous", "Current", "Change"},
		Rows:   rows,
	})
	md.PlainText("")

	if len(result.AddedRelations) > 0 {
		md.H2(fmt.Sprintf("New Dependencies (%d)", len(result.AddedRelations)))
		md.BulletList(relationItems(result.AddedRelations, "`%s` -> `%s`")...)
		md.PlainText("")
	}
	if len(result.RemovedRelations) > 0 {
		md.H2(fmt.Sprintf("Lost Dependencies (%d)", len(result.RemovedRelations)))
		md.BulletList(relationItems(result.RemovedRelations, "~~`%s` -> `%s`~~")...)
		md.PlainText("")
	}
	if len(result.AddedResources) > 0 || len(result.RemovedResources) > 0 {
		md.H2("Resources")
		var items []string
		for _, r := range result.AddedResources {
			items = append(items, "added `"+r+"`")
		}
		for _, r := range result.RemovedResources {
			items = append(items, "removed `"+r+"`")
		}
		md.BulletList(items...)
		md.PlainText("")
	}
	if result.UnchangedRelations > 0 {
		md.HorizontalRule()
		md.PlainTextf("*%d dependencies unchanged*", result.UnchangedRelations)
	}
	return md.Build()
}

func relationItems(rels []model.Relation, format string) []string {
	items := make([]string, 0, len(rels))
	for _, r := range rels {
		items = append(items, fmt.Sprintf(format, r.Parent, r.Child))
	}
	return items
}

func outputComparisonText(out io.Writer, result *ComparisonResult) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Crawl Comparison: %s\n", result.Target)
	sb.WriteString(strings.Repeat("=", 60) + "\n")
	fmt.Fprintf(&sb, "\nCoverage: %s\n", formatTrend(result.Trend))
	fmt.Fprintf(&sb, "\nPrevious crawl: %s (ID %d)\n", result.Previous.Timestamp.Format("2006-01-02 15:04:05"), result.Previous.ID)
	fmt.Fprintf(&sb, "Current crawl:  %s (ID %d)\n", result.Current.Timestamp.Format("2006-01-02 15:04:05"), result.Current.ID)

	sb.WriteString("\nExecutions:\n")
	fmt.Fprintf(&sb, "  %-10s  %-10s  %-10s  %-10s\n", "Metric", "Previous", "Current", "Change")
	sb.WriteString("  " + strings.Repeat("-", 45) + "\n")
	line := func(name string, prev, curr int) {
		fmt.Fprintf(&sb, "  %-10s  %-10d  %-10d  %-10s\n", name, prev, curr, formatDelta(curr-prev))
	}
	line("Executed", result.Previous.Executed, result.Current.Executed)
	line("Succeeded", result.Previous.Succeeded, result.Current.Succeeded)
	line("Failed", result.Previous.Failed, result.Current.Failed)
	line("Pending", result.Previous.Pending, result.Current.Pending)
	sb.WriteString("  " + strings.Repeat("-", 45) + "\n")
	for _, crud := range crudTypes {
		line(crud, result.Previous.CRUDCounts[crud], result.Current.CRUDCounts[crud])
	}

	if len(result.AddedRelations) > 0 {
		fmt.Fprintf(&sb, "\nNew Dependencies (%d):\n", len(result.AddedRelations))
		for _, r := range result.AddedRelations {
			fmt.Fprintf(&sb, "  [+] %s -> %s\n", r.Parent, r.Child)
		}
	}
	if len(result.RemovedRelations) > 0 {
		fmt.Fprintf(&sb, "\nLost Dependencies (%d):\n", len(result.RemovedRelations))
		for _, r := range result.RemovedRelations {
			fmt.Fprintf(&sb, "  [-] %s -> %s\n", r.Parent, r.Child)
		}
	}
	for _, r := range result.AddedResources {
		fmt.Fprintf(&sb, "\nNew resource: %s", r)
	}
	for _, r := range result.RemovedResources {
		fmt.Fprintf(&sb, "\nResource gone: %s", r)
	}
	if len(result.AddedResources)+len(result.RemovedResources) > 0 {
		sb.WriteString("\n")
	}
	if result.UnchangedRelations > 0 {
		fmt.Fprintf(&sb, "\nUnchanged: %d dependencies\n", result.UnchangedRelations)
	}

	_, err := io.WriteString(out, sb.String())
	return err
}

func formatTrend(trend string) string {
	switch trend {
	case trendExpanded:
		return "EXPANDED (more actions succeeded)"
	case trendShrunk:
		return "SHRUNK (fewer actions succeeded)"
	default:
		return "UNCHANGED"
	}
}

// formatDelta formats a numeric delta with sign for display.
func formatDelta(delta int) string {
	if delta > 0 {
		return "+" + strconv.Itoa(delta)
	}
	return strconv.Itoa(delta)
}
