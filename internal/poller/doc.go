// Package poller provides the status polling loop for provisionwatch.
//
// This package is internal to provisionwatch and handles fetching an
// install's status resource at a fixed interval. Unlike a ticker, the
// [Scheduler] arms its timer only after the previous response has been
// handled, so requests for one install never overlap.
//
// The main components are:
//
//   - [Client]: Fetches and decodes status documents with per-request timeouts
//   - [Scheduler]: Sequential polling loop with cancellation and bounded retry
//   - [StatusResult]: Decoded outcome of a single poll
//
// Users of the provisionwatch library should not need to interact with this
// package directly. Configuration is done through the main provisionwatch package.
package poller
