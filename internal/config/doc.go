// Package config provides the configuration of crudcrawl: crawl budget,
// scheduler policy, oracle endpoint, HTTP client settings and report
// preferences, plus the per-site profile file.
package config
