package queue

import (
	"encoding/json"
	"fmt"
)

// BatchState is the derived state of a batch aggregate.
type BatchState string

const (
	BatchPending    BatchState = "pending"
	BatchProcessing BatchState = "processing"
	BatchCompleted  BatchState = "completed"
	BatchFailed     BatchState = "failed"
	BatchCancelled  BatchState = "cancelled"
)

// Terminal reports whether the batch has reached a final state.
func (s BatchState) Terminal() bool {
	return s == BatchCompleted || s == BatchFailed || s == BatchCancelled
}

// BatchStatus is the per-batch aggregate, updated incrementally in the same
// storage batch as each item transition. It is never recomputed by scanning
// items on the hot path.
type BatchStatus struct {
	BatchID        string `json:"batchId"`
	TotalItems     int    `json:"totalItems"`
	CompletedItems int    `json:"completedItems"` // succeeded + failed
	SuccessCount   int    `json:"successCount"`
	FailureCount   int    `json:"failureCount"`

	PendingCount    int `json:"pendingCount"`
	ProcessingCount int `json:"processingCount"`

	State         BatchState `json:"status"`
	CreatedAtMs   int64      `json:"createdAtMs"`
	LastUpdatedMs int64      `json:"lastUpdatedMs"`
	CompletedAtMs int64      `json:"completedAtMs,omitempty"`

	// OldestPendingMs drives the fairness reservation: set when the batch
	// gains its first pending item, refreshed only when the pending count
	// drops to zero. A conservative stale value keeps the batch guaranteed
	// a slot, which is the safe direction.
	OldestPendingMs int64 `json:"oldestPendingMs,omitempty"`
}

// recompute derives State from the counters. failureThreshold is the
// tolerated fraction of failed items; a terminal batch whose failure
// fraction exceeds it is marked failed. Cancelled is sticky.
func (b *BatchStatus) recompute(failureThreshold float64) {
	if b.State == BatchCancelled {
		return
	}
	switch {
	case b.TotalItems > 0 && b.CompletedItems >= b.TotalItems:
		if float64(b.FailureCount) > failureThreshold*float64(b.TotalItems) {
			b.State = BatchFailed
		} else {
			b.State = BatchCompleted
		}
	case b.ProcessingCount > 0 || b.CompletedItems > 0:
		b.State = BatchProcessing
	default:
		b.State = BatchPending
	}
}

func encodeBatchStatus(b *BatchStatus) ([]byte, error) { return json.Marshal(b) }

func decodeBatchStatus(data []byte) (*BatchStatus, error) {
	var b BatchStatus
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode batch status: %w", err)
	}
	return &b, nil
}
