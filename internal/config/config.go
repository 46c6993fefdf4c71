package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "crudcrawl"

	// DefaultMaxCrawlTime is the wall-clock allowance of one crawl before
	// oracle latency compensation.
	DefaultMaxCrawlTime = 8 * time.Hour

	// DefaultAverageOracleTime is the expected duration of one oracle call.
	// Only the part of a call beyond it extends the crawl budget.
	DefaultAverageOracleTime = 5 * time.Second

	// DefaultMaxFailedCount is the number of failed executions after which a
	// pending action is dropped.
	DefaultMaxFailedCount = 10

	// DefaultCycleStrategy resolves dependency cycles by merging clusters.
	DefaultCycleStrategy = "merge"

	// DefaultDeleteGate is the threshold a draw from [0, 100] must reach for
	// an unconstrained delete cluster to be scheduled.
	DefaultDeleteGate = 90

	// DefaultClassifyConcurrency is the number of concurrent classification
	// requests.
	DefaultClassifyConcurrency = 4

	// DefaultAnalysisBatchSize is the number of classification results
	// applied per scheduler tick, one minute worth of model requests.
	DefaultAnalysisBatchSize = 1200

	// DefaultOracleTimeout is the per-request timeout of the oracle client.
	DefaultOracleTimeout = 180 * time.Second

	// DefaultOracleModel is the model name sent to the oracle endpoint.
	DefaultOracleModel = "gpt-4o-mini"

	// DefaultOracleRetries is how often a rate limited or failed oracle
	// request is retried.
	DefaultOracleRetries = 5

	// DefaultOracleMaxBackoff caps the wait between oracle retries.
	DefaultOracleMaxBackoff = 60 * time.Second

	// DefaultTimeout is the per-request timeout for the target application.
	DefaultTimeout = 30 * time.Second

	// DefaultBatchSize is the number of targets crawled concurrently.
	DefaultBatchSize = 1

	// DefaultCrawlDelay is the wait before every request to the target.
	DefaultCrawlDelay = 0

	// DefaultUserAgent identifies crudcrawl in HTTP requests.
	DefaultUserAgent = "crudcrawl/1.0 (+https://github.com/nao1215/crudcrawl)"

	// DefaultMaxBodySize limits the response body read per action.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// OracleTokenEnv is the environment variable holding the oracle API key.
	OracleTokenEnv = "CRUDCRAWL_ORACLE_TOKEN" //nolint:gosec // variable name, not a credential
)

// Config holds all configuration options for crudcrawl.
// It is populated from CLI flags and the profile file and passed down
// explicitly.
type Config struct {
	// Targets are the start URLs, one crawl per target.
	Targets []string

	// MaxCrawlTime is the crawl budget per target. Zero means unlimited.
	MaxCrawlTime time.Duration

	// AverageOracleTime is the oracle latency that does not extend the budget.
	AverageOracleTime time.Duration

	// MaxFailedCount drops pending actions that failed more often.
	MaxFailedCount int

	// CycleStrategy is one of merge, break or skip.
	CycleStrategy string

	// DeleteGate is the delete acceptance threshold in [0, 101].
	DeleteGate int

	// ClassifyConcurrency is the number of concurrent classifications.
	ClassifyConcurrency int

	// AnalysisBatchSize is the number of classification results applied per
	// tick.
	AnalysisBatchSize int

	// MaxSteps stops a crawl after that many executions. Zero means no
	// limit.
	MaxSteps int

	// Seed seeds the scheduler's random source. Zero picks a time-based seed.
	Seed uint64

	// OracleURL is the base URL of an OpenAI compatible endpoint, e.g.
	// "https://api.openai.com/v1". Empty selects the offline keyword
	// classifier.
	OracleURL string

	// OracleModel is the model name sent to the oracle.
	OracleModel string

	// OracleToken is the bearer token for the oracle.
	OracleToken string

	// OracleTimeout is the per-request timeout of the oracle client.
	OracleTimeout time.Duration

	// OracleRetries and OracleMaxBackoff control retries of failed oracle
	// requests.
	OracleRetries    int
	OracleMaxBackoff time.Duration

	// Timeout is the per-request timeout for the target application.
	Timeout time.Duration

	// ProxyAddress routes crawl traffic through a SOCKS5 proxy.
	ProxyAddress string

	// CrawlDelay is the wait before every request to the target.
	CrawlDelay time.Duration

	// UserAgent is the User-Agent header sent to the target.
	UserAgent string

	// MaxBodySize is the maximum response body size in bytes.
	MaxBodySize int64

	// RedisAddress moves the per-session relation cache to Redis when set.
	RedisAddress string

	// MetricsAddress serves Prometheus metrics when set, e.g. ":9090".
	MetricsAddress string

	// Verbose enables debug logging.
	Verbose bool

	// LogJSON writes logs as JSON lines instead of text.
	LogJSON bool

	// BatchSize is the number of targets crawled concurrently.
	BatchSize int

	// ConfigFilePath is the profile file path. Empty searches the default
	// locations.
	ConfigFilePath string

	// SiteConfigs holds the loaded profile file.
	SiteConfigs *File

	// JSONReport selects JSON output.
	JSONReport bool

	// MarkdownReport selects Markdown output.
	MarkdownReport bool

	// ReportFile writes the report to a file instead of stdout.
	ReportFile string

	// DBDir is the directory of the SQLite history database.
	DBDir string

	// SaveToDB stores sessions and reports in the database.
	SaveToDB bool
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		MaxCrawlTime:        DefaultMaxCrawlTime,
		AverageOracleTime:   DefaultAverageOracleTime,
		MaxFailedCount:      DefaultMaxFailedCount,
		CycleStrategy:       DefaultCycleStrategy,
		DeleteGate:          DefaultDeleteGate,
		ClassifyConcurrency: DefaultClassifyConcurrency,
		AnalysisBatchSize:   DefaultAnalysisBatchSize,
		OracleModel:         DefaultOracleModel,
		OracleToken:         os.Getenv(OracleTokenEnv),
		OracleTimeout:       DefaultOracleTimeout,
		OracleRetries:       DefaultOracleRetries,
		OracleMaxBackoff:    DefaultOracleMaxBackoff,
		Timeout:             DefaultTimeout,
		CrawlDelay:          DefaultCrawlDelay,
		UserAgent:           DefaultUserAgent,
		MaxBodySize:         DefaultMaxBodySize,
		BatchSize:           DefaultBatchSize,
	}
}

// XDGDataDir returns the XDG data directory for crudcrawl.
// On Linux: ~/.local/share/crudcrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for crudcrawl.
// On Linux: ~/.config/crudcrawl
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.CrawlDelay < 0 {
		return ErrInvalidCrawlDelay
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if c.MaxCrawlTime < 0 || c.AverageOracleTime < 0 {
		return ErrInvalidCrawlTime
	}
	if c.MaxFailedCount < 0 {
		return ErrInvalidMaxFailedCount
	}
	switch c.CycleStrategy {
	case "merge", "break", "skip":
	default:
		return ErrInvalidCycleStrategy
	}
	if c.DeleteGate < 0 || c.DeleteGate > 101 {
		return ErrInvalidDeleteGate
	}
	if c.ClassifyConcurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.OracleRetries < 0 || c.OracleMaxBackoff <= 0 {
		return ErrInvalidOracleRetry
	}
	return nil
}

// ForTarget returns the profile settings for target merged over the
// profile defaults. Without a profile the zero SiteConfig is returned.
func (c *Config) ForTarget(target string) SiteConfig {
	if c.SiteConfigs == nil {
		return SiteConfig{}
	}
	return c.SiteConfigs.GetSiteConfig(HostOf(target))
}
