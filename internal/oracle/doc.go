// Package oracle provides the semantic oracles the crawler relies on.
//
// Three questions are asked during a crawl:
//   - Classifier: before an action runs, which resource does it touch and
//     what CRUD operation does it perform?
//   - Verifier: after it ran, was the prediction right and did it succeed?
//   - DependencyInferer: is resource A a parent of resource B, so that B
//     records must be deleted before A records?
//
// ChatClient answers all three through an OpenAI-compatible chat
// completions endpoint with JSON responses, retrying rate limits and server
// errors with exponential backoff. KeywordClassifier answers them offline
// from URL and form vocabulary, which is useful for tests and for crawls
// without a model.
//
// Pool runs classification asynchronously: the crawler submits jobs as it
// discovers actions and drains finished results at the top of each
// iteration.
package oracle
