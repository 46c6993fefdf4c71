package report

import (
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/crudcrawl/internal/model"
)

// maxExecutionRows limits the executions table; longer lists are folded into
// a details block.
const maxExecutionRows = 50

// MarkdownWriter outputs reports in Markdown format for documentation and
// sharing.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write implements Writer.
func (w *MarkdownWriter) Write(report *model.CrawlReport) (int, error) {
	md := markdown.NewMarkdown(w.output)
	w.writeReport(md, report)
	w.writeFooter(md)
	return len(md.String()), md.Build()
}

// WriteBatch implements Writer.
func (w *MarkdownWriter) WriteBatch(reports []*model.CrawlReport) (int, error) {
	md := markdown.NewMarkdown(w.output)
	if len(reports) > 1 {
		md.H1("crudcrawl Batch Report")
		md.PlainText("")
		rows := make([][]string, 0, len(reports))
		for _, r := range reports {
			rows = append(rows, []string{
				"`" + r.Target + "`",
				strconv.Itoa(r.Executed()),
				strconv.Itoa(r.Succeeded),
				strconv.Itoa(r.Failed),
				statusText(r),
			})
		}
		md.Table(markdown.TableSet{
			Header: []string{"Target", "Executed", "Succeeded", "Failed", "Status"},
			Rows:   rows,
		})
		md.PlainText("")
	}
	for _, r := range reports {
		w.writeReport(md, r)
	}
	w.writeFooter(md)
	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeReport(md *markdown.Markdown, r *model.CrawlReport) {
	w.writeHeader(md, r)
	w.writeSummary(md, r)
	w.writeClusters(md, r)
	w.writeRelations(md, r)
	w.writeExecutions(md, r)
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, r *model.CrawlReport) {
	md.H1("crudcrawl Report")
	md.PlainText("")

	rows := [][]string{
		{"Target", "`" + r.Target + "`"},
		{"Started", r.StartedAt.Format("2006-01-02 15:04:05 MST")},
		{"Duration", r.Duration().Round(1e6).String()},
		{"Status", statusText(r)},
	}
	if r.SessionID != "" {
		rows = append(rows, []string{"Session", "`" + r.SessionID + "`"})
	}
	if r.BudgetExtension > 0 {
		rows = append(rows, []string{"Budget Extension", r.BudgetExtension.Round(1e6).String()})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

func statusText(r *model.CrawlReport) string {
	if r.ErrorMessage != "" {
		return "❌ Error - " + r.ErrorMessage
	}
	if r.TimedOut {
		return "⚠️ Timed Out (partial results)"
	}
	return "✅ Complete"
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, r *model.CrawlReport) {
	md.H2("Summary")
	md.PlainText("")

	rows := [][]string{
		{"Requests", strconv.Itoa(r.Requests)},
		{"Actions", strconv.Itoa(r.Edges)},
		{"Executed (scheduled)", strconv.Itoa(r.Scheduled)},
		{"Executed (fallback)", strconv.Itoa(r.Fallbacks)},
		{"Succeeded", strconv.Itoa(r.Succeeded)},
		{"Failed", strconv.Itoa(r.Failed)},
		{"Blocked", strconv.Itoa(r.Blocked)},
		{"Unclassified", strconv.Itoa(r.Unclassified)},
		{"Rejected", strconv.Itoa(r.Rejected)},
		{"Cycles resolved", strconv.Itoa(r.Cycles)},
	}
	for _, kind := range slices.Sorted(maps.Keys(r.Unvisited)) {
		rows = append(rows, []string{"Unvisited (" + kind + ")", strconv.Itoa(r.Unvisited[kind])})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Count"},
		Rows:   rows,
	})
	md.PlainText("")

	if len(r.BlockedActions) > 0 {
		md.H3("Blocking Actions")
		md.PlainText("")
		items := make([]string, len(r.BlockedActions))
		for i, a := range r.BlockedActions {
			items[i] = "`" + a + "`"
		}
		md.BulletList(items...)
		md.PlainText("")
	}

	if r.Executed() > 0 {
		w.writePieChart(md, r)
	}
	w.writeAlert(md, r)
}

// writePieChart writes a mermaid pie chart of executions per CRUD type.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, r *model.CrawlReport) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Executions by CRUD Type"),
		piechart.WithShowData(true),
	)
	counts := r.CRUDCounts()
	for _, crud := range crudOrder {
		if n := counts[crud]; n > 0 {
			chart.LabelAndIntValue(crud, uint64(n)) //nolint:gosec // n is positive
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, r *model.CrawlReport) {
	pending := r.PendingTotal()
	switch {
	case r.HasDestructiveExecutions():
		md.Cautionf(
			"Delete actions were executed. %d resource(s) on the target may have been removed.",
			r.CRUDCounts()[model.CRUDDelete],
		)
	case r.Failed > 0:
		md.Warningf("%d of %d executed action(s) failed.", r.Failed, r.Executed())
	case pending > 0:
		md.Importantf("%d classified action(s) were never executed.", pending)
	case r.Blocked > 0:
		md.Note(strconv.Itoa(r.Blocked) + " blocking action(s) such as logout were skipped.")
	default:
		md.Tip("Every discovered action was executed successfully.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeClusters(md *markdown.Markdown, r *model.CrawlReport) {
	md.H2("Dependency Clusters")
	md.PlainText("")

	if len(r.Clusters) == 0 {
		md.PlainText("No classified actions.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(r.Clusters))
	for i, c := range r.Clusters {
		ready := "no"
		if c.Ready {
			ready = "yes"
		}
		rows[i] = []string{
			c.Resource,
			c.Operation,
			strconv.Itoa(c.Pending),
			ready,
			orDash(strings.Join(c.Predecessors, ", ")),
			orDash(strings.Join(c.Absorbed, ", ")),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Resource", "Operation", "Pending", "Ready", "Waits For", "Merged"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeRelations(md *markdown.Markdown, r *model.CrawlReport) {
	if len(r.Relations) == 0 {
		return
	}
	md.H2("Resource Dependencies")
	md.PlainText("")
	items := make([]string, len(r.Relations))
	for i, rel := range r.Relations {
		items[i] = "`" + rel.Parent + "` → `" + rel.Child + "`"
	}
	md.BulletList(items...)
	md.PlainText("")
}

func (w *MarkdownWriter) writeExecutions(md *markdown.Markdown, r *model.CrawlReport) {
	if len(r.Executions) == 0 {
		return
	}
	md.H2("Executions")
	md.PlainText("")

	shown := r.Executions
	if len(shown) > maxExecutionRows {
		shown = shown[:maxExecutionRows]
	}
	md.Table(markdown.TableSet{
		Header: []string{"#", "Kind", "Target", "Resource", "CRUD", "Result"},
		Rows:   executionRows(shown, 0),
	})
	md.PlainText("")

	if rest := r.Executions[len(shown):]; len(rest) > 0 {
		var sb strings.Builder
		for _, row := range executionRows(rest, len(shown)) {
			sb.WriteString(strings.Join(row, " | "))
			sb.WriteString("\n")
		}
		md.Details(strconv.Itoa(len(rest))+" more executions", sb.String())
		md.PlainText("")
	}
}

func executionRows(execs []model.ExecutionRecord, offset int) [][]string {
	rows := make([][]string, len(execs))
	for i, e := range execs {
		result := "✅"
		if !e.Success {
			result = "❌"
		}
		rows[i] = []string{
			strconv.Itoa(offset + i + 1),
			string(e.Kind),
			truncateString(e.Target, 60),
			orDash(e.Resource),
			orDash(e.CRUDType),
			result,
		}
	}
	return rows
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [crudcrawl](https://github.com/nao1215/crudcrawl)*")
}
