// Package cache provides a Redis-backed store for resource dependency
// answers. Each crawl session owns one hash, which is dropped when the
// session ends and expires on its own if the process dies first.
package cache
