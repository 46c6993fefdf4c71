// Package log provides slog loggers that mask secrets before they are
// written.
//
// A crawl handles material that must not end up in log files: session
// cookies injected from the profile, CSRF tokens found in forms, the
// oracle API key and tokens carried in crawled URLs. SecureHandler masks
// attributes by key (cookie, authorization, csrf_token, ...), by value
// pattern (bearer tokens, JWTs, API keys) and rewrites sensitive query
// parameters of URLs.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Warn("request failed",
//	    "url", "http://app.test/reset?token=abc", // token is masked
//	    "cookie", "session=abc123",              // value is masked
//	)
package log
