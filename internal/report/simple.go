package report

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/nao1215/crudcrawl/internal/model"
)

// SimpleWriter outputs plain text reports for terminal display.
type SimpleWriter struct {
	baseWriter

	// verbose lists every execution.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose lists every executed action.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write implements Writer.
func (w *SimpleWriter) Write(report *model.CrawlReport) (int, error) {
	var sb strings.Builder
	w.writeReport(&sb, report)
	return io.WriteString(w.output, sb.String())
}

// WriteBatch implements Writer. Each report is followed by a one line per
// target overview.
func (w *SimpleWriter) WriteBatch(reports []*model.CrawlReport) (int, error) {
	var sb strings.Builder
	for _, r := range reports {
		w.writeReport(&sb, r)
	}
	if len(reports) > 1 {
		sb.WriteString(strings.Repeat("=", 70))
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "%d targets crawled\n", len(reports))
		for _, r := range reports {
			fmt.Fprintf(&sb, "  %-40s executed=%d succeeded=%d failed=%d status=%s\n",
				truncateString(r.Target, 40), r.Executed(), r.Succeeded, r.Failed, statusOf(r))
		}
	}
	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) writeReport(sb *strings.Builder, r *model.CrawlReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                         CRUDCRAWL REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Target:     %s\n", r.Target)
	if r.SessionID != "" {
		fmt.Fprintf(sb, "Session:    %s\n", r.SessionID)
	}
	fmt.Fprintf(sb, "Started:    %s\n", r.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Duration:   %s\n", r.Duration().Round(1e6))
	if r.BudgetExtension > 0 {
		fmt.Fprintf(sb, "Extension:  %s (slow oracle)\n", r.BudgetExtension.Round(1e6))
	}
	fmt.Fprintf(sb, "Status:     %s\n\n", statusOf(r))

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\nSUMMARY\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	fmt.Fprintf(sb, "  Requests:      %d\n", r.Requests)
	fmt.Fprintf(sb, "  Actions:       %d\n", r.Edges)
	fmt.Fprintf(sb, "  Executed:      %d (%d scheduled, %d fallback)\n", r.Executed(), r.Scheduled, r.Fallbacks)
	fmt.Fprintf(sb, "  Succeeded:     %d\n", r.Succeeded)
	fmt.Fprintf(sb, "  Failed:        %d\n", r.Failed)
	fmt.Fprintf(sb, "  Blocked:       %d\n", r.Blocked)
	fmt.Fprintf(sb, "  Unclassified:  %d\n", r.Unclassified)
	fmt.Fprintf(sb, "  Rejected:      %d\n", r.Rejected)
	fmt.Fprintf(sb, "  Cycles:        %d\n\n", r.Cycles)

	counts := r.CRUDCounts()
	if len(counts) > 0 {
		sb.WriteString("  Executions by CRUD type:\n")
		for _, crud := range crudOrder {
			if n := counts[crud]; n > 0 {
				fmt.Fprintf(sb, "    %-8s %d\n", crud, n)
			}
		}
		sb.WriteString("\n")
	}

	if len(r.Unvisited) > 0 {
		sb.WriteString("  Unvisited actions by kind:\n")
		for _, kind := range slices.Sorted(maps.Keys(r.Unvisited)) {
			fmt.Fprintf(sb, "    %-8s %d\n", kind, r.Unvisited[kind])
		}
		sb.WriteString("\n")
	}

	if len(r.BlockedActions) > 0 {
		sb.WriteString("  Never executed (blocking):\n")
		for _, a := range r.BlockedActions {
			fmt.Fprintf(sb, "    %s\n", truncateString(a, 64))
		}
		sb.WriteString("\n")
	}

	if len(r.Relations) > 0 {
		sb.WriteString(strings.Repeat("-", 70))
		sb.WriteString("\nRESOURCE DEPENDENCIES\n")
		sb.WriteString(strings.Repeat("-", 70))
		sb.WriteString("\n")
		for _, rel := range r.Relations {
			fmt.Fprintf(sb, "  %s -> %s\n", rel.Parent, rel.Child)
		}
		sb.WriteString("\n")
	}

	if pending := r.PendingTotal(); pending > 0 {
		fmt.Fprintf(sb, "[!] %d classified actions were never executed.\n\n", pending)
	}

	if w.verbose && len(r.Executions) > 0 {
		sb.WriteString(strings.Repeat("-", 70))
		sb.WriteString("\nEXECUTIONS\n")
		sb.WriteString(strings.Repeat("-", 70))
		sb.WriteString("\n")
		for i, e := range r.Executions {
			mark := "ok  "
			if !e.Success {
				mark = "FAIL"
			}
			fmt.Fprintf(sb, "  %3d. [%s] %-7s %-40s %s/%s\n",
				i+1, mark, e.Kind, truncateString(e.Target, 40), e.Resource, e.CRUDType)
		}
		sb.WriteString("\n")
	}
}
