// Package pipeline runs crawl sessions as a sequence of steps: the crawl
// itself, report output and persistence to the crawl history.
//
// BatchProcessor crawls several targets concurrently with errgroup; every
// target gets a fresh pipeline, and therefore its own dependency graph and
// scheduler.
package pipeline
