// Package database provides the SQLite crawl history of crudcrawl.
//
// CrawlDB stores:
//   - crawl sessions (target, start, end, whether the budget ran out)
//   - every executed action as it happens, so interrupted crawls leave a
//     trace
//   - the parent/child resource relations a session confirmed
//   - final reports as JSON with a small summary for history listings
//
// The database is a single file opened through the CGO-free
// modernc.org/sqlite driver.
package database
