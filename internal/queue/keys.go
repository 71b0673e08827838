package queue

import (
	"encoding/binary"
	"fmt"
)

// Key prefixes for queue data structures.
const (
	prefixItem     = "item/"      // Item records
	prefixPrio     = "prio_idx/"  // Global availability index
	prefixBatchIdx = "batch_idx/" // Per-batch availability index
	prefixClaim    = "claim_idx/" // Claim expiry index
	prefixBatch    = "batch/"     // Batch aggregates
	prefixDone     = "done/"      // Archived terminal batches
)

// queuePrefix returns the base prefix for a queue.
// Format: q/{queue}/
func queuePrefix(queue string) string {
	return "q/" + queue + "/"
}

// metaKey returns the queue metadata key.
// Format: q/{queue}/meta
func metaKey(queue string) []byte {
	return []byte(queuePrefix(queue) + "meta")
}

// itemKey returns the key for an item record.
// Format: q/{queue}/item/{batch}/{contact_be8}
func itemKey(queue, batchID string, contactID int64) []byte {
	prefix := queuePrefix(queue) + prefixItem + batchID + "/"
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], uint64(contactID))
	return key
}

// prioKey returns the global availability index key. Priority is stored
// bit-inverted so that higher priorities sort first; seq preserves FIFO
// order within a priority.
// Format: q/{queue}/prio_idx/{^prio_be4}/{seq_be8}
func prioKey(queue string, priority int32, seq uint64) []byte {
	prefix := queuePrefix(queue) + prefixPrio
	key := make([]byte, len(prefix)+4+8)
	copy(key, prefix)
	binary.BigEndian.PutUint32(key[len(prefix):], ^uint32(priority))
	binary.BigEndian.PutUint64(key[len(prefix)+4:], seq)
	return key
}

// batchIdxKey returns the per-batch availability index key, ordered like the
// global index but scoped to one batch. Used for fairness reservations and
// batch cancellation.
// Format: q/{queue}/batch_idx/{batch}/{^prio_be4}/{seq_be8}
func batchIdxKey(queue, batchID string, priority int32, seq uint64) []byte {
	prefix := queuePrefix(queue) + prefixBatchIdx + batchID + "/"
	key := make([]byte, len(prefix)+4+8)
	copy(key, prefix)
	binary.BigEndian.PutUint32(key[len(prefix):], ^uint32(priority))
	binary.BigEndian.PutUint64(key[len(prefix)+4:], seq)
	return key
}

// claimIdxKey returns the claim expiry index key scanned by the recovery
// sweep.
// Format: q/{queue}/claim_idx/{expires_be8}/{seq_be8}
func claimIdxKey(queue string, expiresMs int64, seq uint64) []byte {
	prefix := queuePrefix(queue) + prefixClaim
	key := make([]byte, len(prefix)+8+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], uint64(expiresMs))
	binary.BigEndian.PutUint64(key[len(prefix)+8:], seq)
	return key
}

// batchKey returns the key for a batch aggregate.
// Format: q/{queue}/batch/{batch}
func batchKey(queue, batchID string) []byte {
	return []byte(queuePrefix(queue) + prefixBatch + batchID)
}

// doneKey returns the key for an archived terminal batch.
// Format: q/{queue}/done/{completed_be8}/{batch}
func doneKey(queue string, completedMs int64, batchID string) []byte {
	prefix := queuePrefix(queue) + prefixDone
	key := make([]byte, len(prefix)+8+len(batchID))
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], uint64(completedMs))
	copy(key[len(prefix)+8:], batchID)
	return key
}

// doneMetaKey returns the archive metadata key.
// Format: q/{queue}/done_meta
func doneMetaKey(queue string) []byte {
	return []byte(queuePrefix(queue) + "done_meta")
}

// prioPrefix returns the scan prefix for the global availability index.
func prioPrefix(queue string) []byte {
	return []byte(queuePrefix(queue) + prefixPrio)
}

// batchIdxPrefix returns the scan prefix for one batch's availability index.
func batchIdxPrefix(queue, batchID string) []byte {
	return []byte(queuePrefix(queue) + prefixBatchIdx + batchID + "/")
}

// claimIdxPrefix returns the scan prefix for the claim expiry index.
func claimIdxPrefix(queue string) []byte {
	return []byte(queuePrefix(queue) + prefixClaim)
}

// batchPrefix returns the scan prefix for batch aggregates.
func batchPrefix(queue string) []byte {
	return []byte(queuePrefix(queue) + prefixBatch)
}

// donePrefix returns the scan prefix for archived batches.
func donePrefix(queue string) []byte {
	return []byte(queuePrefix(queue) + prefixDone)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	return append(append([]byte{}, prefix...), 0xFF)
}

// seqFromIndexKey extracts the trailing sequence number from prio, batch and
// claim index keys.
func seqFromIndexKey(key []byte) uint64 {
	if len(key) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(key[len(key)-8:])
}

// expiryFromClaimKey extracts the expiry timestamp from a claim index key.
func expiryFromClaimKey(queue string, key []byte) (int64, bool) {
	prefix := claimIdxPrefix(queue)
	if len(key) < len(prefix)+8 {
		return 0, false
	}
	return int64(binary.BigEndian.Uint64(key[len(prefix) : len(prefix)+8])), true
}

// completedFromDoneKey extracts timestamp and batch id from an archive key.
func completedFromDoneKey(queue string, key []byte) (int64, string, bool) {
	prefix := donePrefix(queue)
	if len(key) < len(prefix)+8 {
		return 0, "", false
	}
	ms := int64(binary.BigEndian.Uint64(key[len(prefix) : len(prefix)+8]))
	return ms, string(key[len(prefix)+8:]), true
}

// refValue encodes the item reference stored as index values.
func refValue(batchID string, contactID int64) []byte {
	return []byte(fmt.Sprintf("%s/%d", batchID, contactID))
}

// parseRefValue decodes an index value back into an item reference.
func parseRefValue(v []byte) (string, int64, bool) {
	for i := len(v) - 1; i >= 0; i-- {
		if v[i] == '/' {
			var contactID int64
			if _, err := fmt.Sscanf(string(v[i+1:]), "%d", &contactID); err != nil {
				return "", 0, false
			}
			return string(v[:i]), contactID, true
		}
	}
	return "", 0, false
}
