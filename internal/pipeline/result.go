package pipeline

import (
	"time"

	"github.com/jononovo/5ducksperday-sub010/internal/provider"
	"github.com/jononovo/5ducksperday-sub010/internal/queue"
)

// ContactResult is the per-contact entry of a batch result.
type ContactResult struct {
	ContactID    int64                  `json:"contactId"`
	Success      bool                   `json:"success"`
	EnrichedData *provider.EnrichedData `json:"enrichedData,omitempty"`
	Error        string                 `json:"error,omitempty"`
}

// BatchEnrichmentResult is what a batch submission resolves to. On timeout
// or cancellation it carries whatever finished; unresolved contacts are
// simply absent from Results.
type BatchEnrichmentResult struct {
	BatchID        string          `json:"batchId"`
	Results        []ContactResult `json:"results"`
	CompletedAt    time.Time       `json:"completedAt"`
	TotalProcessed int             `json:"totalProcessed"`
	SuccessCount   int             `json:"successCount"`
	FailureCount   int             `json:"failureCount"`
}

// buildResult snapshots the batch's resolved items into a result. Items
// still pending or in flight are left out. A zero completedAt stays zero,
// marking a partial result for a batch that has not finished.
func buildResult(store *queue.Store, batchID string, completedAt time.Time) (*BatchEnrichmentResult, error) {
	items, err := store.ListItems(batchID)
	if err != nil {
		return nil, err
	}
	res := &BatchEnrichmentResult{
		BatchID: batchID,
		Results: make([]ContactResult, 0, len(items)),
	}
	if !completedAt.IsZero() {
		res.CompletedAt = completedAt.UTC()
	}
	for _, it := range items {
		switch it.State {
		case queue.StateSucceeded:
			res.Results = append(res.Results, ContactResult{
				ContactID:    it.ContactID,
				Success:      true,
				EnrichedData: it.Enriched,
			})
			res.SuccessCount++
		case queue.StateFailed:
			res.Results = append(res.Results, ContactResult{
				ContactID: it.ContactID,
				Error:     it.Error,
			})
			res.FailureCount++
		default:
			continue
		}
		res.TotalProcessed++
	}
	return res, nil
}
