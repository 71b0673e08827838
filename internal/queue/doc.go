// Package queue implements the durable enrichment queue: items, batches,
// atomic claims, result recording, and the claim-timeout recovery sweep.
//
// Each item is one contact to enrich, grouped into batches that are tracked
// as incremental aggregates. Items are delivered to exactly one worker at a
// time through lease-style claims:
//
//   - Claim: ClaimNext atomically moves items pending -> processing under a
//     claim token with an expiry, ordered by priority (higher first) with
//     FIFO tie-break by enqueue sequence.
//   - Fairness: a batch whose oldest pending item has waited longer than the
//     fairness window is guaranteed one claim slot per ClaimNext call, so a
//     high-priority flood cannot starve other batches indefinitely.
//   - Recovery: claims that outlive their timeout are swept back to pending
//     with an incremented attempt count, or failed once attempts are
//     exhausted. This is the only crash-recovery mechanism; there is no
//     worker heartbeat.
//
// # Keyspace
//
// All keys are prefixed with q/{queue}/:
//
//	meta                                 - lastSeq + global pending/processing counts
//	item/{batch}/{contact_be8}           - item record (JSON)
//	prio_idx/{^prio_be4}/{seq_be8}       - global availability index
//	batch_idx/{batch}/{^prio_be4}/{seq_be8} - per-batch availability index
//	claim_idx/{expires_be8}/{seq_be8}    - claim expiry index for the sweep
//	batch/{batch}                        - batch aggregate (JSON)
//	done/{completed_be8}/{batch}         - archived terminal batches
//	done_meta                            - archive entry count
//
// Priorities are stored bit-inverted so higher priorities sort first;
// sequence numbers preserve enqueue order within a priority.
package queue
