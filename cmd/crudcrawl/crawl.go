package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/nao1215/crudcrawl/internal/cache"
	"github.com/nao1215/crudcrawl/internal/config"
	"github.com/nao1215/crudcrawl/internal/crawler"
	"github.com/nao1215/crudcrawl/internal/database"
	applog "github.com/nao1215/crudcrawl/internal/log"
	"github.com/nao1215/crudcrawl/internal/metrics"
	"github.com/nao1215/crudcrawl/internal/model"
	"github.com/nao1215/crudcrawl/internal/navigation"
	"github.com/nao1215/crudcrawl/internal/oracle"
	"github.com/nao1215/crudcrawl/internal/pipeline"
	"github.com/nao1215/crudcrawl/internal/report"
)

// relationCacheTTL bounds how long the answers of a session survive in
// Redis when the process dies before clearing them.
const relationCacheTTL = 24 * time.Hour

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [url]...",
		Short: "Crawl web applications in CRUD dependency order",
		Long: `Crawl explores each target by following links and submitting forms.

Discovered actions are classified as create, read, update or delete on a
resource. A scheduler then runs create before read before update before
delete for every resource, and deletes child resources before their
parents. Delete actions are additionally held back until nothing else is
ready, except for a small random share. Logout-like actions never run.

Examples:
  # Crawl a local application with the offline classifier
  crudcrawl crawl http://localhost:8080/

  # Use a language model as oracle
  export CRUDCRAWL_ORACLE_TOKEN=sk-...
  crudcrawl crawl --oracle-url https://api.openai.com/v1 http://localhost:8080/

  # Crawl two applications concurrently and write a Markdown report
  crudcrawl crawl -b 2 -m -o report.md http://blog.test/ http://shop.test/

  # Reproducible scheduling and a one hour budget
  crudcrawl crawl --seed 42 --max-time 1h http://localhost:8080/

Profile file (.crudcrawl) example:
  sites:
    localhost:8080:
      cookie: "sessionid=abc123"
      blockingStrings: ["logout", "delete account"]
      purpose: "A blog with posts and comments"`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// Crawl budget and scheduling
	cmd.Flags().Duration("max-time", config.DefaultMaxCrawlTime,
		"Crawl budget per target (0 = unlimited)")
	cmd.Flags().Duration("avg-oracle-time", config.DefaultAverageOracleTime,
		"Oracle latency that does not extend the budget")
	cmd.Flags().Int("max-steps", 0,
		"Stop after this many executed actions (0 = unlimited)")
	cmd.Flags().Int("max-failed", config.DefaultMaxFailedCount,
		"Drop pending actions that failed more often than this")
	cmd.Flags().String("cycle-strategy", config.DefaultCycleStrategy,
		"How dependency cycles are resolved: merge, break or skip")
	cmd.Flags().Int("delete-gate", config.DefaultDeleteGate,
		"Threshold (0-101) a random draw from 0-100 must reach to run an unconstrained delete early")
	cmd.Flags().Int("concurrency", config.DefaultClassifyConcurrency,
		"Number of concurrent classification requests")
	cmd.Flags().Int("analysis-batch", config.DefaultAnalysisBatchSize,
		"Classification results applied per scheduler tick")
	cmd.Flags().Uint64("seed", 0,
		"Seed for the scheduler's random choices (0 = time based)")

	// Oracle
	cmd.Flags().String("oracle-url", "",
		"OpenAI compatible endpoint (empty = offline keyword classifier); token from "+config.OracleTokenEnv)
	cmd.Flags().String("oracle-model", config.DefaultOracleModel,
		"Model name sent to the oracle")
	cmd.Flags().Duration("oracle-timeout", config.DefaultOracleTimeout,
		"Timeout of one oracle request")
	cmd.Flags().Int("oracle-retries", config.DefaultOracleRetries,
		"Retries of a failed or rate limited oracle request")
	cmd.Flags().Duration("oracle-max-backoff", config.DefaultOracleMaxBackoff,
		"Longest wait between oracle retries")

	// HTTP
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout of one request to the target")
	cmd.Flags().Duration("delay", config.DefaultCrawlDelay,
		"Wait before every request to the target")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent to the target")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum response body size in bytes")
	cmd.Flags().String("proxy", "",
		"Route requests through a SOCKS5 proxy (host:port)")

	// Services
	cmd.Flags().String("redis", "",
		"Keep each session's resource relation answers in Redis (host:port)")
	cmd.Flags().String("metrics-addr", "",
		"Serve Prometheus metrics on this address, e.g. :9090")
	cmd.Flags().Bool("no-db", false,
		"Do not store sessions and reports in the history database")
	cmd.Flags().Bool("log-json", false,
		"Write logs to stderr as JSON lines")

	// Batch crawling
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of targets crawled concurrently")

	// Profile
	cmd.Flags().StringP("config", "c", "",
		"Profile path (default: .crudcrawl in current, XDG config or home directory)")

	// Report
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	return cmd
}

func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.LoadProfile(); err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := newLogger(cfg, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCrawl(ctx, cfg, logger, cmd.OutOrStdout())
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags. The profile is
// loaded separately.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.MaxCrawlTime, err = flags.GetDuration("max-time"); err != nil {
		return nil, err
	}
	if cfg.AverageOracleTime, err = flags.GetDuration("avg-oracle-time"); err != nil {
		return nil, err
	}
	if cfg.MaxSteps, err = flags.GetInt("max-steps"); err != nil {
		return nil, err
	}
	if cfg.MaxFailedCount, err = flags.GetInt("max-failed"); err != nil {
		return nil, err
	}
	if cfg.CycleStrategy, err = flags.GetString("cycle-strategy"); err != nil {
		return nil, err
	}
	if cfg.DeleteGate, err = flags.GetInt("delete-gate"); err != nil {
		return nil, err
	}
	if cfg.ClassifyConcurrency, err = flags.GetInt("concurrency"); err != nil {
		return nil, err
	}
	if cfg.AnalysisBatchSize, err = flags.GetInt("analysis-batch"); err != nil {
		return nil, err
	}
	if cfg.Seed, err = flags.GetUint64("seed"); err != nil {
		return nil, err
	}
	if cfg.OracleURL, err = flags.GetString("oracle-url"); err != nil {
		return nil, err
	}
	if cfg.OracleModel, err = flags.GetString("oracle-model"); err != nil {
		return nil, err
	}
	if cfg.OracleTimeout, err = flags.GetDuration("oracle-timeout"); err != nil {
		return nil, err
	}
	if cfg.OracleRetries, err = flags.GetInt("oracle-retries"); err != nil {
		return nil, err
	}
	if cfg.OracleMaxBackoff, err = flags.GetDuration("oracle-max-backoff"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.CrawlDelay, err = flags.GetDuration("delay"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.MaxBodySize, err = flags.GetInt64("max-body-size"); err != nil {
		return nil, err
	}
	if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.RedisAddress, err = flags.GetString("redis"); err != nil {
		return nil, err
	}
	if cfg.MetricsAddress, err = flags.GetString("metrics-addr"); err != nil {
		return nil, err
	}
	noDB, err := flags.GetBool("no-db")
	if err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return nil, err
	}
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}

	if cfg.LogJSON, err = flags.GetBool("log-json"); err != nil {
		return nil, err
	}

	cfg.Verbose = getVerboseFlag(cmd)
	cfg.SaveToDB = !noDB
	cfg.DBDir = config.XDGDataDir()
	cfg.Targets = args
	return cfg, nil
}

// newLogger returns the masking logger selected by cfg.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	if cfg.LogJSON {
		return applog.NewSecureJSONLogger(w, cfg.Verbose)
	}
	return applog.NewSecureLogger(w, cfg.Verbose)
}

// crawlDeps are the services shared by every crawl of one invocation.
// Nil fields are disabled.
type crawlDeps struct {
	db      *database.CrawlDB
	metrics *metrics.Metrics
	redis   *redis.Client
	logger  *slog.Logger
}

func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout io.Writer) error {
	targets := make([]string, 0, len(cfg.Targets))
	for _, t := range cfg.Targets {
		normalized, err := config.NormalizeTarget(t)
		if err != nil {
			return err
		}
		targets = append(targets, normalized)
	}

	deps := crawlDeps{logger: logger}

	if cfg.SaveToDB {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		deps.db = db
		logger.Info("database opened", "path", db.Path())
	}

	if cfg.RedisAddress != "" {
		client, err := cache.Dial(ctx, cfg.RedisAddress)
		if err != nil {
			return err
		}
		defer client.Close()
		deps.redis = client
	}

	if cfg.MetricsAddress != "" {
		deps.metrics = metrics.New()
		metricsCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := deps.metrics.Serve(metricsCtx, cfg.MetricsAddress); err != nil {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	out, err := openOutput(cfg.ReportFile, stdout)
	if err != nil {
		return err
	}
	defer out.Close()
	writer := newReportWriter(cfg, out)
	if cfg.ReportFile != "" {
		// Keep a readable summary on the terminal next to the file.
		writer = report.NewMultiWriter(writer, report.NewSimpleWriter(stdout, report.WithVerbose(cfg.Verbose)))
	}

	factory := newCrawlerFactory(cfg, deps)
	single := len(targets) == 1

	bp := pipeline.NewBatchProcessor(
		func() *pipeline.Pipeline {
			p := pipeline.New(
				pipeline.WithLogger(logger),
				pipeline.WithContinueOnError(true),
			)
			stepOpts := []pipeline.CrawlStepOption{pipeline.WithCrawlLogger(logger)}
			if deps.db != nil {
				stepOpts = append(stepOpts, pipeline.WithSessionStore(deps.db))
			}
			p.AddStep(pipeline.NewCrawlStep(factory, stepOpts...))
			var after []pipeline.Step
			if single {
				after = append(after, pipeline.NewReportStep(writer))
			}
			if deps.db != nil {
				after = append(after, pipeline.NewPersistStep(deps.db))
			}
			p.AddSteps(after...)
			return p
		},
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)

	reports, err := bp.ProcessBatch(ctx, targets)
	if deps.redis != nil {
		clearRelationCaches(context.WithoutCancel(ctx), deps, reports)
	}
	if !single {
		finished := make([]*model.CrawlReport, 0, len(reports))
		for _, r := range reports {
			if r != nil {
				finished = append(finished, r)
			}
		}
		if _, werr := writer.WriteBatch(finished); werr != nil {
			return fmt.Errorf("failed to write report: %w", werr)
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newCrawlerFactory returns the factory building one crawler per target.
// Every crawler gets its own HTTP client (cookie jar), oracle and
// dependency graph.
func newCrawlerFactory(cfg *config.Config, deps crawlDeps) pipeline.CrawlerFactory {
	return func(target, sessionID string, opts ...crawler.Option) (*crawler.Crawler, error) {
		site := cfg.ForTarget(target)

		client, err := crawler.NewHTTPClient(crawler.ClientConfig{
			Timeout:      cfg.Timeout,
			ProxyAddress: cfg.ProxyAddress,
			Cookie:       site.Cookie,
			Headers:      site.Headers,
		})
		if err != nil {
			return nil, err
		}
		exec := crawler.NewHTTPExecutor(client,
			crawler.WithUserAgent(cfg.UserAgent),
			crawler.WithMaxBodySize(cfg.MaxBodySize),
			crawler.WithDelay(cfg.CrawlDelay),
			crawler.WithScope(crawler.Scope{Ignore: site.IgnorePatterns, Follow: site.FollowPatterns}),
		)

		strategy, err := navigation.ParseCycleStrategy(cfg.CycleStrategy)
		if err != nil {
			return nil, err
		}
		graphOpts := []navigation.Option{
			navigation.WithMaxFailedCount(cfg.MaxFailedCount),
			navigation.WithCycleStrategy(strategy),
		}
		schedOpts := []navigation.SchedulerOption{navigation.WithDeleteGate(cfg.DeleteGate)}
		if cfg.Seed != 0 {
			graphOpts = append(graphOpts, navigation.WithRand(navigation.NewRand(cfg.Seed)))
			schedOpts = append(schedOpts, navigation.WithSchedulerRand(navigation.NewRand(cfg.Seed+1)))
		}
		if deps.redis != nil {
			graphOpts = append(graphOpts, navigation.WithRelationCache(
				cache.NewRelationCache(deps.redis, sessionID, cache.WithTTL(relationCacheTTL)),
			))
		}

		crawlOpts := []crawler.Option{
			crawler.WithLogger(deps.logger),
			crawler.WithMetrics(deps.metrics),
			crawler.WithBudget(crawler.NewBudget(cfg.MaxCrawlTime, cfg.AverageOracleTime)),
			crawler.WithBatchSize(cfg.AnalysisBatchSize),
			crawler.WithClassifyConcurrency(cfg.ClassifyConcurrency),
			crawler.WithMaxSteps(cfg.MaxSteps),
			crawler.WithGraphOptions(graphOpts...),
			crawler.WithSchedulerOptions(schedOpts...),
		}
		if deps.db != nil {
			crawlOpts = append(crawlOpts, crawler.WithRecorder(deps.db))
		}
		crawlOpts = append(crawlOpts, opts...)

		return crawler.New(target, newOracle(cfg, site, deps), exec, crawlOpts...), nil
	}
}

// clearRelationCaches drops the Redis relation answers of finished
// sessions. Answers never outlive the crawl that asked for them.
func clearRelationCaches(ctx context.Context, deps crawlDeps, reports []*model.CrawlReport) {
	for _, r := range reports {
		if r == nil || r.SessionID == "" {
			continue
		}
		if err := cache.NewRelationCache(deps.redis, r.SessionID).Clear(ctx); err != nil {
			deps.logger.Warn("failed to clear relation cache", "session", r.SessionID, "error", err)
		}
	}
}

// newOracleBackoff is the default backoff capped at limit.
func newOracleBackoff(limit time.Duration) *oracle.ExponentialBackoff {
	b := oracle.DefaultBackoff()
	b.Max = limit
	if b.Base > limit {
		b.Base = limit
	}
	return b
}

// newOracle returns the model client when an endpoint is configured and
// the offline keyword classifier otherwise.
func newOracle(cfg *config.Config, site config.SiteConfig, deps crawlDeps) oracle.Oracle {
	if cfg.OracleURL == "" {
		return oracle.NewKeywordClassifier(site.BlockingStrings)
	}
	return oracle.NewChatClient(cfg.OracleURL, cfg.OracleModel,
		oracle.WithAPIKey(cfg.OracleToken),
		oracle.WithPurpose(site.Purpose),
		oracle.WithHTTPClient(&http.Client{Timeout: cfg.OracleTimeout}),
		oracle.WithMaxRetries(cfg.OracleRetries),
		oracle.WithBackoff(newOracleBackoff(cfg.OracleMaxBackoff)),
		oracle.WithClientLogger(deps.logger),
		oracle.WithLatencyObserver(deps.metrics.ObserveOracle),
	)
}

func newReportWriter(cfg *config.Config, out io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(out, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(out)
	default:
		return report.NewSimpleWriter(out, report.WithVerbose(cfg.Verbose))
	}
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// openOutput opens path for the report, or returns stdout when path is
// empty.
func openOutput(path string, stdout io.Writer) (io.WriteCloser, error) {
	if path == "" {
		return nopCloser{stdout}, nil
	}
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	// Reports list the URLs and forms of possibly private applications.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // user-chosen output path
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}
