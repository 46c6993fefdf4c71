// Package report writes crawl reports.
//
// Three formats are available:
//   - SimpleWriter: plain text for the terminal
//   - JSONWriter: JSON for other tools, optionally wrapped with a version
//   - MarkdownWriter: Markdown with tables and a mermaid chart of the
//     executed CRUD operations
//
// All writers implement Writer and can be combined with MultiWriter.
package report
