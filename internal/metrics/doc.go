// Package metrics exposes crawl activity as Prometheus metrics: scheduler
// picks and feedback, rejected nodes, resolved cycles, oracle latency and
// the number of pending nodes.
package metrics
