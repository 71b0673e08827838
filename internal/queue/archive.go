package queue

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/cockroachdb/pebble"

	logpkg "github.com/jononovo/5ducksperday-sub010/pkg/log"
)

// ArchivedBatch is the compact record kept for a terminal batch, used by the
// recent-batches listing. Item records stay in place; only the aggregate is
// summarized here.
type ArchivedBatch struct {
	BatchID       string     `json:"batchId"`
	State         BatchState `json:"status"`
	TotalItems    int        `json:"totalItems"`
	SuccessCount  int        `json:"successCount"`
	FailureCount  int        `json:"failureCount"`
	CreatedAtMs   int64      `json:"createdAtMs"`
	CompletedAtMs int64      `json:"completedAtMs"`
	DurationMs    int64      `json:"durationMs"`
}

// archiveAdd appends the terminal batch to the archive inside the caller's
// storage batch. Caller holds s.mu.
func (s *Store) archiveAdd(b *pebble.Batch, st *BatchStatus, nowMs int64) error {
	rec := ArchivedBatch{
		BatchID:       st.BatchID,
		State:         st.State,
		TotalItems:    st.TotalItems,
		SuccessCount:  st.SuccessCount,
		FailureCount:  st.FailureCount,
		CreatedAtMs:   st.CreatedAtMs,
		CompletedAtMs: st.CompletedAtMs,
		DurationMs:    st.CompletedAtMs - st.CreatedAtMs,
	}
	data, err := json.Marshal(&rec)
	if err != nil {
		return err
	}
	if err := b.Set(doneKey(s.queue, st.CompletedAtMs, st.BatchID), data, nil); err != nil {
		return err
	}
	s.doneCount++
	var dm [4]byte
	binary.BigEndian.PutUint32(dm[:], uint32(s.doneCount))
	return b.Set(doneMetaKey(s.queue), dm[:], nil)
}

// trimArchive drops the oldest archive records above the retention cap.
// Caller holds s.mu; runs as its own commit since it is best effort.
func (s *Store) trimArchive(ctx context.Context) {
	over := s.doneCount - s.opts.ArchiveMaxBatches
	if over <= 0 {
		return
	}
	prefix := donePrefix(s.queue)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: keyUpperBound(prefix)})
	if err != nil {
		return
	}
	b := s.db.NewBatch()
	defer b.Close()

	removed := 0
	for ok := iter.First(); ok && removed < over; ok = iter.Next() {
		if b.Delete(append([]byte{}, iter.Key()...), nil) != nil {
			break
		}
		removed++
	}
	iter.Close()
	if removed == 0 {
		return
	}
	s.doneCount -= removed
	var dm [4]byte
	binary.BigEndian.PutUint32(dm[:], uint32(s.doneCount))
	if b.Set(doneMetaKey(s.queue), dm[:], nil) != nil {
		return
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		s.logger.Warn("archive trim failed", logpkg.Err(err))
	}
}

// ListRecentBatches returns up to limit archived batches, most recently
// completed first, skipping records older than the retention age.
func (s *Store) ListRecentBatches(limit int) ([]*ArchivedBatch, error) {
	if limit <= 0 {
		limit = 50
	}
	cutoffMs := time.Now().Add(-s.opts.ArchiveMaxAge).UnixMilli()

	prefix := donePrefix(s.queue)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: keyUpperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []*ArchivedBatch
	for ok := iter.Last(); ok && len(out) < limit; ok = iter.Prev() {
		completedMs, _, valid := completedFromDoneKey(s.queue, iter.Key())
		if !valid || completedMs < cutoffMs {
			break
		}
		var rec ArchivedBatch
		if json.Unmarshal(iter.Value(), &rec) != nil {
			continue
		}
		out = append(out, &rec)
	}
	return out, nil
}
