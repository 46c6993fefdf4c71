// Package navigation decides which discovered action the crawler should
// execute next.
//
// Every classified action becomes a Node. Nodes that share a resource and a
// CRUD operation live in the same Cluster, and clusters form a directed
// graph in which an edge A -> B means "B is not scheduled while A still has
// pending work". For each resource the chain
//
//	create -> read -> update -> unknown -> delete
//
// is wired as soon as the resource is first seen. Delete clusters of
// different resources are linked on demand, after the dependency oracle
// confirms a parent/child relationship between the two resources.
//
// # Scheduling
//
// Scheduler.PickAndRun chooses a random ready cluster (one whose whole
// predecessor closure is empty), then the least-failed node inside it, and
// hands the node's action index back to the caller. Delete clusters without
// a confirmed unmet dependency are only chosen when a random draw passes the
// delete gate, which keeps destructive actions rare. Scheduler.Feedback
// retires or penalizes nodes after execution.
//
// # Cycles
//
// Links are added online, so a new edge can close a cycle. LinkClusters
// detects this with a depth-first search and resolves it with the configured
// CycleStrategy. The edge that closed the cycle is never added.
//
// # Concurrency
//
// DependencyGraph and Scheduler are not safe for concurrent use. The crawl
// driver calls AddNode, PickAndRun and Feedback from a single goroutine.
package navigation
