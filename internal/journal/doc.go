// Package journal implements a durable audit trail of queue item transitions.
//
// # Overview
//
// The journal is kept per queue and persisted in Pebble under its own prefix.
// Keys are lexicographically ordered for efficient range scans:
//   - j/{queue}/m           (metadata: lastSeq)
//   - j/{queue}/e/{seq_be8} (entries, JSON-encoded)
//
// Entries record one item state change each: batch, contact, from/to state,
// attempts, error, and the wall-clock time of the change.
//
// API surface (internal)
//
//	j, _ := Open(db, "email_enrichment", logger)
//
//	// Journal implements queue.Observer, so it can be attached at store
//	// open time; every committed transition becomes one entry.
//	store, _ := queue.Open(db, "email_enrichment", queue.Options{Observer: j})
//
//	// Read newest-first, optionally scoped to one batch
//	entries, _ := j.Recent(100)
//	entries, _ = j.ForBatch("weekly-refresh", 100)
//
//	// Age-based retention, batched
//	deleted, lastSeq, _ := j.TrimOlderThan(ctx, cutoffMs, 1024, 0)
//	_ = deleted
//	_ = lastSeq
//
// A background trimmer (StartTrimmer/StopTrimmer) applies the retention
// periodically with jitter.
package journal
