// Package crawler drives a crawl session against one web application.
//
// # Loop
//
// Every tick the Crawler applies finished classifications, asks the
// dependency scheduler for the next action and executes it. When the
// scheduler has nothing ready, the first unvisited, unexecuted and
// non-blocking edge is taken instead; edges still waiting for their
// classification are skipped. After execution the oracle verifies the
// outcome and the scheduler receives feedback.
//
// # Budget
//
// A crawl stops when its Budget expires. Time spent waiting on slow
// synchronous oracle calls beyond the expected average extends the budget,
// up to twice its base.
//
// # Execution
//
// HTTPExecutor performs link, iframe and form actions over HTTP, optionally
// through a SOCKS5 proxy, and reports the actions found on the resulting
// page. Script events are discovered but not executed.
//
//	client, _ := crawler.NewHTTPClient(crawler.ClientConfig{Timeout: 30 * time.Second})
//	exec := crawler.NewHTTPExecutor(client)
//	c := crawler.New("http://localhost:8080/", oracle.NewKeywordClassifier(nil), exec)
//	report, err := c.Run(ctx)
package crawler
