// Package worker drains enrichment queues through a chain of lookup
// providers with bounded concurrency.
//
// A Pool runs a fixed number of claim loops. Each loop claims a small batch
// of items, fans them out to the provider chain, and reports exactly one
// outcome per claim: success, permanent failure, or a release back to
// pending when the failure was retryable and attempts remain. Stale-claim
// rejections from the store are dropped silently; the recovery sweep owns
// those items now.
package worker
