package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoTarget is returned when no start URL is given.
	ErrNoTarget = errors.New("no target specified: provide a start URL")

	// ErrInvalidTimeout is returned when the request timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidCrawlDelay is returned when the crawl delay is negative.
	ErrInvalidCrawlDelay = errors.New("invalid crawl delay: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidCrawlTime is returned for a negative crawl budget or oracle
	// average.
	ErrInvalidCrawlTime = errors.New("invalid crawl time: must be non-negative")

	// ErrInvalidMaxFailedCount is returned when the failure ceiling is negative.
	ErrInvalidMaxFailedCount = errors.New("invalid max failed count: must be non-negative")

	// ErrInvalidCycleStrategy is returned for an unknown cycle strategy.
	ErrInvalidCycleStrategy = errors.New("invalid cycle strategy: must be merge, break or skip")

	// ErrInvalidDeleteGate is returned when the delete gate is outside 0..101.
	ErrInvalidDeleteGate = errors.New("invalid delete gate: must be between 0 and 101")

	// ErrInvalidTarget is returned by NormalizeTarget for URLs that are not
	// absolute http(s) URLs.
	ErrInvalidTarget = errors.New("invalid target: must be an http or https URL")

	// ErrInvalidConcurrency is returned when the classification concurrency
	// is not positive.
	ErrInvalidConcurrency = errors.New("invalid classify concurrency: must be positive")

	// ErrInvalidOracleRetry is returned for negative oracle retries or a
	// backoff cap that is not positive.
	ErrInvalidOracleRetry = errors.New("invalid oracle retry settings: retries must be non-negative and max backoff positive")
)
