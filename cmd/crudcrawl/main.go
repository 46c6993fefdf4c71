// Package main provides the entry point for the crudcrawl CLI.
//
// crudcrawl explores a web application by executing its links and forms,
// and orders state-changing actions by the CRUD dependencies between the
// application's resources, so that records are created before they are
// updated and children are deleted before their parents.
//
// Usage:
//
//	crudcrawl crawl <url>
//	crudcrawl history <url>
//
// See --help for all available options.
package main

func main() {
	Execute()
}
