package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/crudcrawl/internal/config"
	"github.com/nao1215/crudcrawl/internal/database"
	"github.com/nao1215/crudcrawl/internal/report"
)

const noSummaryMessage = "N/A"

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [url]",
		Short: "Show stored crawl sessions",
		Long: `History lists what the crawl database knows.

Without an argument it lists every crawled target. With a target it lists
the stored sessions of that target, newest first. --session lists the
actions a session executed, also for crawls that were interrupted before
their report was saved.

Examples:
  # List crawled targets
  crudcrawl history

  # List sessions of a target
  crudcrawl history http://localhost:8080/

  # Show every resource dependency confirmed for a target
  crudcrawl history --relations http://localhost:8080/

  # Show what one session executed
  crudcrawl history --session 7c9e6679-7425-40de-944b-e07fc1f90ae7

  # Print the latest report of a target again
  crudcrawl history --latest --markdown http://localhost:8080/`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().BoolP("relations", "r", false,
		"List resource dependencies confirmed by any session of the target")
	cmd.Flags().StringP("session", "s", "",
		"List the actions executed by a session")
	cmd.Flags().Bool("latest", false,
		"Print the latest stored report of the target")
	cmd.Flags().BoolP("json", "j", false,
		"Print the report in JSON format (with --latest)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Print the report in Markdown format (with --latest)")

	return cmd
}

// historyOptions selects what history prints.
type historyOptions struct {
	relations bool
	session   string
	latest    bool
	json      bool
	markdown  bool
}

func runHistoryCmd(cmd *cobra.Command, args []string) error {
	var (
		opts historyOptions
		err  error
	)
	if opts.relations, err = cmd.Flags().GetBool("relations"); err != nil {
		return err
	}
	if opts.session, err = cmd.Flags().GetString("session"); err != nil {
		return err
	}
	if opts.latest, err = cmd.Flags().GetBool("latest"); err != nil {
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

	var target string
	if len(args) == 1 {
		if target, err = config.NormalizeTarget(args[0]); err != nil {
			return err
		}
	} else if opts.relations || opts.latest {
		return config.ErrNoTarget
	}

	db, err := database.Open(config.XDGDataDir(), database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	return runHistory(cmd.Context(), db, target, opts, cmd.OutOrStdout())
}

// runHistory prints targets, sessions, executions, relations or the
// latest report.
func runHistory(ctx context.Context, db *database.CrawlDB, target string, opts historyOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	switch {
	case opts.session != "":
		return listExecutions(ctx, db, opts.session, out)
	case target == "":
		return listTargets(ctx, db, out)
	case opts.relations:
		return listRelations(ctx, db, target, out)
	case opts.latest:
		return printLatest(ctx, db, target, opts, out)
	default:
		return listSessions(ctx, db, target, out)
	}
}

func listTargets(ctx context.Context, db *database.CrawlDB, out io.Writer) error {
	targets, err := db.ListTargets(ctx)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		fmt.Fprintln(out, "No crawled targets found in the database.")
		fmt.Fprintln(out, "\nUse 'crudcrawl crawl <url>' to crawl an application.")
		return nil
	}

	fmt.Fprintf(out, "Crawled targets (%d):\n\n", len(targets))
	for _, t := range targets {
		fmt.Fprintf(out, "  • %s\n", t)
	}
	fmt.Fprintln(out, "\nUse 'crudcrawl history <url>' to see the sessions of a target.")
	return nil
}

func listSessions(ctx context.Context, db *database.CrawlDB, target string, out io.Writer) error {
	history, err := db.GetHistory(ctx, target)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Fprintf(out, "No crawl history found for %s\n", target)
		return nil
	}

	fmt.Fprintf(out, "Crawl history for %s (%d sessions):\n\n", target, len(history))
	fmt.Fprintf(out, "  %-6s  %-20s  %-36s  %s\n", "ID", "Date", "Session", "Summary")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 90))
	for _, meta := range history {
		fmt.Fprintf(out, "  %-6d  %-20s  %-36s  %s\n",
			meta.ID,
			meta.Timestamp.Format("2006-01-02 15:04:05"),
			meta.SessionID,
			formatSummary(meta.Summary),
		)
	}
	fmt.Fprintln(out, "\nUse 'crudcrawl compare <url>' to compare the latest two sessions.")
	fmt.Fprintln(out, "Use 'crudcrawl compare --with-id <id> <url>' to compare with a specific session.")
	return nil
}

// formatSummary formats a stored summary as "E:12 S:10 F:2 B:1 R:3".
func formatSummary(summary map[string]int) string {
	if len(summary) == 0 {
		return noSummaryMessage
	}
	return fmt.Sprintf("E:%d S:%d F:%d B:%d R:%d",
		summary["executed"],
		summary["succeeded"],
		summary["failed"],
		summary["blocked"],
		summary["relations"],
	)
}

func listExecutions(ctx context.Context, db *database.CrawlDB, sessionID string, out io.Writer) error {
	execs, err := db.ListExecutions(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(execs) == 0 {
		fmt.Fprintf(out, "No executions recorded for session %s\n", sessionID)
		return nil
	}

	fmt.Fprintf(out, "Executions of session %s (%d):\n\n", sessionID, len(execs))
	for i, e := range execs {
		mark := "ok  "
		if !e.Success {
			mark = "FAIL"
		}
		source := "fallback"
		if e.Scheduled {
			source = "scheduled"
		}
		op := noSummaryMessage
		if e.Resource != "" {
			op = e.Resource + "/" + e.CRUDType
		}
		fmt.Fprintf(out, "  %3d. [%s] %-9s %-6s %s  %s\n", i+1, mark, source, e.Kind, e.Target, op)
	}
	return nil
}

func listRelations(ctx context.Context, db *database.CrawlDB, target string, out io.Writer) error {
	relations, err := db.ListRelations(ctx, target)
	if err != nil {
		return err
	}
	if len(relations) == 0 {
		fmt.Fprintf(out, "No resource dependencies found for %s\n", target)
		return nil
	}
	fmt.Fprintf(out, "Resource dependencies of %s (%d):\n\n", target, len(relations))
	for _, r := range relations {
		fmt.Fprintf(out, "  %s -> %s\n", r.Parent, r.Child)
	}
	return nil
}

func printLatest(ctx context.Context, db *database.CrawlDB, target string, opts historyOptions, out io.Writer) error {
	r, err := db.GetLatestReport(ctx, target)
	if err != nil {
		return err
	}
	if r == nil {
		return fmt.Errorf("no crawl history found for %s", target)
	}

	var w report.Writer
	switch {
	case opts.json:
		w = report.NewJSONWriter(out, report.WithPrettyPrint())
	case opts.markdown:
		w = report.NewMarkdownWriter(out)
	default:
		w = report.NewSimpleWriter(out)
	}
	_, err = w.Write(r)
	return err
}
