package queue

import (
	"encoding/json"
	"fmt"

	"github.com/jononovo/5ducksperday-sub010/internal/provider"
)

// State is the lifecycle state of a queue item. Transitions are monotone:
// pending -> processing -> succeeded|failed, with two exceptions: the
// recovery sweep may return an expired claim to pending, and batch
// cancellation moves pending items to cancelled.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// Ref identifies one item. Exactly one item exists per (BatchID, ContactID).
type Ref struct {
	BatchID   string `json:"batchId"`
	ContactID int64  `json:"contactId"`
}

func (r Ref) String() string { return fmt.Sprintf("%s/%d", r.BatchID, r.ContactID) }

// EnqueueItem is the caller-facing shape for adding work to a batch.
type EnqueueItem struct {
	Identity provider.ContactIdentity
	Priority int32
}

// Item is the durable record of one enrichment unit of work.
type Item struct {
	ContactID int64  `json:"contactId"`
	CompanyID int64  `json:"companyId,omitempty"`
	BatchID   string `json:"batchId"`
	Priority  int32  `json:"priority"`
	// Seq is assigned once at first enqueue and preserves FIFO order among
	// items of equal priority; priority bumps keep the original seq.
	Seq   uint64 `json:"seq"`
	State State  `json:"state"`
	// Attempts counts claims made on this item, including sweep requeues.
	Attempts     int   `json:"attempts"`
	EnqueuedAtMs int64 `json:"enqueuedAtMs"`
	UpdatedAtMs  int64 `json:"updatedAtMs"`

	// Claim token for the current processing attempt; cleared on transition
	// out of processing.
	ClaimID          string `json:"claimId,omitempty"`
	ClaimExpiresAtMs int64  `json:"claimExpiresAtMs,omitempty"`

	Identity provider.ContactIdentity `json:"identity"`
	Enriched *provider.EnrichedData   `json:"enriched,omitempty"`
	Error    string                   `json:"error,omitempty"`
}

// Ref returns the item's identity pair.
func (it *Item) Ref() Ref { return Ref{BatchID: it.BatchID, ContactID: it.ContactID} }

func encodeItem(it *Item) ([]byte, error) { return json.Marshal(it) }

func decodeItem(data []byte) (*Item, error) {
	var it Item
	if err := json.Unmarshal(data, &it); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	return &it, nil
}

// Claim is the snapshot handed to a worker for one processing attempt.
// Workers keep only this snapshot, never a live reference to stored state.
type Claim struct {
	Ref              Ref
	ClaimID          string
	Attempts         int
	Priority         int32
	Identity         provider.ContactIdentity
	ClaimExpiresAtMs int64
}

// Outcome is the terminal result of one processing attempt.
type Outcome struct {
	Succeeded bool
	Enriched  *provider.EnrichedData
	Err       string
}
