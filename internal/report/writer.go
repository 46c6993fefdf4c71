package report

import (
	"io"

	"github.com/nao1215/crudcrawl/internal/model"
)

// Writer writes crawl reports in one output format.
type Writer interface {
	// Write outputs one crawl report.
	Write(report *model.CrawlReport) (int, error)

	// WriteBatch outputs the reports of a multi-target crawl.
	WriteBatch(reports []*model.CrawlReport) (int, error)
}

// MultiWriter writes to several Writers, stopping at the first error.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write implements Writer.
func (m *MultiWriter) Write(report *model.CrawlReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteBatch implements Writer.
func (m *MultiWriter) WriteBatch(reports []*model.CrawlReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteBatch(reports)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter holds the output destination shared by all writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// statusOf describes how a crawl ended.
func statusOf(r *model.CrawlReport) string {
	switch {
	case r.ErrorMessage != "":
		return "ERROR - " + r.ErrorMessage
	case r.TimedOut:
		return "TIMED OUT (partial results)"
	default:
		return "Complete"
	}
}

// crudOrder is the display order of CRUD types.
var crudOrder = []string{
	model.CRUDCreate, model.CRUDRead, model.CRUDUpdate, model.CRUDDelete, model.CRUDUnknown,
}

// truncateString truncates s to maxLen bytes with an ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
