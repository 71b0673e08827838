// Package pipeline is the application-facing surface of the enrichment
// queue: batch submission, blocking waits with partial results, status
// reads, and cancellation.
//
// A Pipeline owns the queue store, the worker pool, and the recovery sweep.
// Workers spin up lazily on the first submission and wind down after the
// queue stays empty for the configured idle grace, so an idle process holds
// no claim loops.
package pipeline
