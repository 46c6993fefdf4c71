// Package model defines the data structures shared across crudcrawl.
//
// This package contains the following main types:
//   - Request and Edge: the action graph discovered while crawling
//   - ResourceOperation: the CRUD classification of an action
//   - Graph: the action graph with its success, failure and blocking records
//   - CrawlReport: the result of one crawl session
//
// Multiple packages (crawler, oracle, report, database) use these types;
// keeping them here avoids import cycles.
package model
