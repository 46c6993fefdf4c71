package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/crudcrawl/internal/model"
)

// JSONWriter outputs reports as JSON for tool integration.
type JSONWriter struct {
	baseWriter

	indent       bool
	indentPrefix string
	indentString string
	version      string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables indented output.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint is WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion wraps every report in a Document carrying version.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Document is the JSON envelope written when a version is configured.
type Document struct {
	// Version is the crudcrawl version that produced the reports.
	Version string `json:"version"`

	// Reports are the crawl reports, one per target.
	Reports []*model.CrawlReport `json:"reports"`

	// CRUDCounts totals the executions per CRUD type over all reports.
	CRUDCounts map[string]int `json:"crud_counts"` //nolint:tagliatelle // CRUD is an acronym
}

// NewDocument wraps reports with version information.
func NewDocument(version string, reports ...*model.CrawlReport) *Document {
	doc := &Document{Version: version, Reports: reports, CRUDCounts: make(map[string]int)}
	for _, r := range reports {
		for crud, n := range r.CRUDCounts() {
			doc.CRUDCounts[crud] += n
		}
	}
	return doc
}

// Write implements Writer.
func (w *JSONWriter) Write(report *model.CrawlReport) (int, error) {
	if w.version != "" {
		return w.writeJSON(NewDocument(w.version, report))
	}
	return w.writeJSON(report)
}

// WriteBatch implements Writer.
func (w *JSONWriter) WriteBatch(reports []*model.CrawlReport) (int, error) {
	if w.version != "" {
		return w.writeJSON(NewDocument(w.version, reports...))
	}
	return w.writeJSON(reports)
}

func (w *JSONWriter) writeJSON(v any) (int, error) {
	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}
	data = append(data, '\n')
	return w.output.Write(data)
}
