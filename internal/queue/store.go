package queue

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	pebblestore "github.com/jononovo/5ducksperday-sub010/internal/storage/pebble"
	logpkg "github.com/jononovo/5ducksperday-sub010/pkg/log"
)

// Store errors.
var (
	// ErrNotFound means the referenced item does not exist.
	ErrNotFound = errors.New("queue: item not found")
	// ErrBatchNotFound means the batch has never been enqueued.
	ErrBatchNotFound = errors.New("queue: batch not found")
	// ErrStaleClaim means the claim token no longer owns the item, typically
	// because the recovery sweep requeued it. Callers must not retry.
	ErrStaleClaim = errors.New("queue: stale claim")
	// ErrBatchCancelled rejects enqueues into a cancelled batch.
	ErrBatchCancelled = errors.New("queue: batch cancelled")
	// ErrInvalidBatchID rejects batch ids that would break key isolation.
	// Batch ids are embedded as key segments, so '/' is reserved.
	ErrInvalidBatchID = errors.New("queue: batch id must be non-empty and must not contain '/'")
	// ErrInvalidContactID rejects non-positive contact ids, whose big-endian
	// encoding would sort outside the batch's scan range.
	ErrInvalidContactID = errors.New("queue: contact id must be positive")
)

// Options configures a Store.
type Options struct {
	// MaxAttempts caps claims per item before the sweep marks it failed.
	MaxAttempts int
	// ClaimTimeout bounds how long a claim may stay unresolved before the
	// recovery sweep requeues the item.
	ClaimTimeout time.Duration
	// FairnessWindow is the longest a batch with pending items may be
	// starved before ClaimNext reserves it one slot per call.
	FairnessWindow time.Duration
	// FailureThreshold is the tolerated failed fraction per batch.
	FailureThreshold float64

	ArchiveMaxBatches int
	ArchiveMaxAge     time.Duration

	Logger   logpkg.Logger
	Observer Observer
}

func (o *Options) withDefaults() {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.ClaimTimeout <= 0 {
		o.ClaimTimeout = 30 * time.Second
	}
	if o.FairnessWindow <= 0 {
		o.FairnessWindow = 5 * time.Second
	}
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = 0.5
	}
	if o.ArchiveMaxBatches <= 0 {
		o.ArchiveMaxBatches = 1000
	}
	if o.ArchiveMaxAge <= 0 {
		o.ArchiveMaxAge = 24 * time.Hour
	}
	if o.Logger == nil {
		o.Logger = logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel))
	}
	if o.Observer == nil {
		o.Observer = noopObserver{}
	}
}

// Store is the durable queue for one named queue ("email_enrichment",
// "post_search", ...). All mutations happen under one mutex and commit as a
// single storage batch, which is what makes ClaimNext atomic across
// concurrent workers.
type Store struct {
	db       *pebblestore.DB
	queue    string
	opts     Options
	logger   logpkg.Logger
	observer Observer

	mu         sync.Mutex
	lastSeq    uint64
	pending    int
	processing int
	doneCount  int

	sweepStop chan struct{}
	sweepWG   sync.WaitGroup
}

// EnqueueSummary reports what an Enqueue call did.
type EnqueueSummary struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
}

// Open initializes a Store for the named queue, restoring counters from
// metadata if present.
func Open(db *pebblestore.DB, queue string, opts Options) (*Store, error) {
	if queue == "" {
		return nil, errors.New("queue: name is required")
	}
	opts.withDefaults()
	s := &Store{
		db:       db,
		queue:    queue,
		opts:     opts,
		logger:   opts.Logger.With(logpkg.Component("queue"), logpkg.Str("queue", queue)),
		observer: opts.Observer,
	}
	if meta, err := db.Get(metaKey(queue)); err == nil && len(meta) >= 16 {
		s.lastSeq = binary.BigEndian.Uint64(meta[0:8])
		s.pending = int(binary.BigEndian.Uint32(meta[8:12]))
		s.processing = int(binary.BigEndian.Uint32(meta[12:16]))
	}
	if dm, err := db.Get(doneMetaKey(queue)); err == nil && len(dm) >= 4 {
		s.doneCount = int(binary.BigEndian.Uint32(dm[0:4]))
	}
	return s, nil
}

// Queue returns the queue name.
func (s *Store) Queue() string { return s.queue }

// Depth returns the global pending and processing counts.
func (s *Store) Depth() (pending, processing int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending, s.processing
}

func (s *Store) writeMeta(b *pebble.Batch) error {
	var meta [16]byte
	binary.BigEndian.PutUint64(meta[0:8], s.lastSeq)
	binary.BigEndian.PutUint32(meta[8:12], uint32(s.pending))
	binary.BigEndian.PutUint32(meta[12:16], uint32(s.processing))
	return b.Set(metaKey(s.queue), meta[:], nil)
}

// Enqueue upserts items into a batch as one transaction: either every write
// lands or none do. Re-enqueueing an existing pending (contact, batch) pair
// raises its priority to the max of old and new instead of duplicating.
// If nowMs <= 0, time.Now().UnixMilli() is used.
func (s *Store) Enqueue(ctx context.Context, batchID string, items []EnqueueItem, nowMs int64) (EnqueueSummary, error) {
	if batchID == "" || strings.Contains(batchID, "/") {
		return EnqueueSummary{}, ErrInvalidBatchID
	}
	// Validate before touching any state so a rejected submission leaves the
	// counters untouched.
	for _, in := range items {
		if in.Identity.ContactID <= 0 {
			return EnqueueSummary{}, fmt.Errorf("%w (batch %s, got %d)", ErrInvalidContactID, batchID, in.Identity.ContactID)
		}
	}
	if nowMs <= 0 {
		nowMs = time.Now().UnixMilli()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.loadBatch(batchID)
	if err != nil && !errors.Is(err, ErrBatchNotFound) {
		return EnqueueSummary{}, err
	}
	if st == nil {
		st = &BatchStatus{BatchID: batchID, State: BatchPending, CreatedAtMs: nowMs}
	}
	if st.State == BatchCancelled {
		return EnqueueSummary{}, ErrBatchCancelled
	}

	b := s.db.NewBatch()
	defer b.Close()

	var summary EnqueueSummary
	// seen tracks items touched earlier in this same call, since batch
	// writes are invisible to reads until commit.
	seen := make(map[int64]*Item, len(items))

	for _, in := range items {
		contactID := in.Identity.ContactID

		existing := seen[contactID]
		if existing == nil {
			if raw, getErr := s.db.Get(itemKey(s.queue, batchID, contactID)); getErr == nil {
				if existing, err = decodeItem(raw); err != nil {
					return EnqueueSummary{}, err
				}
			} else if !errors.Is(getErr, pebblestore.ErrNotFound) {
				return EnqueueSummary{}, getErr
			}
		}

		if existing == nil {
			s.lastSeq++
			it := &Item{
				ContactID:    contactID,
				CompanyID:    in.Identity.CompanyID,
				BatchID:      batchID,
				Priority:     in.Priority,
				Seq:          s.lastSeq,
				State:        StatePending,
				EnqueuedAtMs: nowMs,
				UpdatedAtMs:  nowMs,
				Identity:     in.Identity,
			}
			if err := s.putItem(b, it); err != nil {
				return EnqueueSummary{}, err
			}
			ref := refValue(batchID, contactID)
			if err := b.Set(prioKey(s.queue, it.Priority, it.Seq), ref, nil); err != nil {
				return EnqueueSummary{}, err
			}
			if err := b.Set(batchIdxKey(s.queue, batchID, it.Priority, it.Seq), ref, nil); err != nil {
				return EnqueueSummary{}, err
			}
			if st.PendingCount == 0 {
				st.OldestPendingMs = nowMs
			}
			st.TotalItems++
			st.PendingCount++
			s.pending++
			seen[contactID] = it
			summary.Inserted++
			continue
		}

		// Upsert path: only pending items can have their priority raised.
		if existing.State == StatePending && in.Priority > existing.Priority {
			if err := b.Delete(prioKey(s.queue, existing.Priority, existing.Seq), nil); err != nil {
				return EnqueueSummary{}, err
			}
			if err := b.Delete(batchIdxKey(s.queue, batchID, existing.Priority, existing.Seq), nil); err != nil {
				return EnqueueSummary{}, err
			}
			existing.Priority = in.Priority
			existing.UpdatedAtMs = nowMs
			ref := refValue(batchID, contactID)
			if err := b.Set(prioKey(s.queue, existing.Priority, existing.Seq), ref, nil); err != nil {
				return EnqueueSummary{}, err
			}
			if err := b.Set(batchIdxKey(s.queue, batchID, existing.Priority, existing.Seq), ref, nil); err != nil {
				return EnqueueSummary{}, err
			}
			if err := s.putItem(b, existing); err != nil {
				return EnqueueSummary{}, err
			}
		}
		seen[contactID] = existing
		summary.Updated++
	}

	st.LastUpdatedMs = nowMs
	st.recompute(s.opts.FailureThreshold)
	if err := s.putBatch(b, st); err != nil {
		return EnqueueSummary{}, err
	}
	if err := s.writeMeta(b); err != nil {
		return EnqueueSummary{}, err
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return EnqueueSummary{}, err
	}

	s.logger.Debug("enqueued batch items",
		logpkg.Str("batch", batchID),
		logpkg.Int("inserted", summary.Inserted),
		logpkg.Int("updated", summary.Updated),
	)
	return summary, nil
}

// ClaimNext atomically selects up to maxItems pending items ordered by
// (priority DESC, enqueue seq ASC), transitions them to processing under
// fresh claim tokens, and returns snapshots. Concurrent callers never
// receive overlapping items.
//
// Before the global priority order is consulted, every batch whose oldest
// pending item has waited longer than the fairness window is reserved one
// slot, oldest first.
func (s *Store) ClaimNext(ctx context.Context, maxItems int, excludeBatches []string, nowMs int64) ([]Claim, error) {
	if maxItems <= 0 {
		maxItems = 1
	}
	if nowMs <= 0 {
		nowMs = time.Now().UnixMilli()
	}
	exclude := make(map[string]bool, len(excludeBatches))
	for _, id := range excludeBatches {
		exclude[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.db.NewBatch()
	defer b.Close()

	var (
		claims      []Claim
		transitions []Transition
		claimedSeqs = make(map[uint64]bool)
		touched     = make(map[string]*BatchStatus)
	)

	claimOne := func(st *BatchStatus, batchID string, contactID int64) error {
		raw, err := s.db.Get(itemKey(s.queue, batchID, contactID))
		if err != nil {
			return err
		}
		it, err := decodeItem(raw)
		if err != nil {
			return err
		}
		if it.State != StatePending {
			return nil
		}
		it.State = StateProcessing
		it.ClaimID = uuid.NewString()
		it.ClaimExpiresAtMs = nowMs + s.opts.ClaimTimeout.Milliseconds()
		it.Attempts++
		it.UpdatedAtMs = nowMs
		if err := s.putItem(b, it); err != nil {
			return err
		}
		if err := b.Delete(prioKey(s.queue, it.Priority, it.Seq), nil); err != nil {
			return err
		}
		if err := b.Delete(batchIdxKey(s.queue, batchID, it.Priority, it.Seq), nil); err != nil {
			return err
		}
		if err := b.Set(claimIdxKey(s.queue, it.ClaimExpiresAtMs, it.Seq), refValue(batchID, contactID), nil); err != nil {
			return err
		}

		st.PendingCount--
		st.ProcessingCount++
		if st.PendingCount == 0 {
			st.OldestPendingMs = 0
		}
		s.pending--
		s.processing++
		claimedSeqs[it.Seq] = true
		claims = append(claims, Claim{
			Ref:              it.Ref(),
			ClaimID:          it.ClaimID,
			Attempts:         it.Attempts,
			Priority:         it.Priority,
			Identity:         it.Identity,
			ClaimExpiresAtMs: it.ClaimExpiresAtMs,
		})
		transitions = append(transitions, Transition{
			Queue: s.queue, Ref: it.Ref(), From: StatePending, To: StateProcessing, Attempts: it.Attempts,
		})
		return nil
	}

	loadTouched := func(batchID string) (*BatchStatus, error) {
		if st, ok := touched[batchID]; ok {
			return st, nil
		}
		st, err := s.loadBatch(batchID)
		if err != nil {
			return nil, err
		}
		touched[batchID] = st
		return st, nil
	}

	// Fairness pass: one slot per starved batch, oldest wait first.
	starved, err := s.starvedBatches(nowMs, exclude)
	if err != nil {
		return nil, err
	}
	for _, st := range starved {
		if len(claims) >= maxItems {
			break
		}
		touched[st.BatchID] = st
		batchID, contactID, ok, err := s.firstAvailable(st.BatchID, claimedSeqs)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if err := claimOne(st, batchID, contactID); err != nil {
			return nil, err
		}
	}

	// Global priority pass.
	if len(claims) < maxItems {
		prefix := prioPrefix(s.queue)
		iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: keyUpperBound(prefix)})
		if err != nil {
			return nil, err
		}
		defer iter.Close()
		for ok := iter.First(); ok && len(claims) < maxItems; ok = iter.Next() {
			seq := seqFromIndexKey(iter.Key())
			if claimedSeqs[seq] {
				continue
			}
			batchID, contactID, valid := parseRefValue(iter.Value())
			if !valid || exclude[batchID] {
				continue
			}
			st, err := loadTouched(batchID)
			if err != nil {
				return nil, err
			}
			if err := claimOne(st, batchID, contactID); err != nil {
				return nil, err
			}
		}
	}

	if len(claims) == 0 {
		return nil, nil
	}

	for _, st := range touched {
		st.LastUpdatedMs = nowMs
		st.recompute(s.opts.FailureThreshold)
		if err := s.putBatch(b, st); err != nil {
			return nil, err
		}
	}
	if err := s.writeMeta(b); err != nil {
		return nil, err
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return nil, err
	}
	s.notify(transitions)
	return claims, nil
}

// starvedBatches returns active batches whose oldest pending item has waited
// past the fairness window, ordered by wait time (longest first).
func (s *Store) starvedBatches(nowMs int64, exclude map[string]bool) ([]*BatchStatus, error) {
	prefix := batchPrefix(s.queue)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: keyUpperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	windowMs := s.opts.FairnessWindow.Milliseconds()
	var out []*BatchStatus
	for ok := iter.First(); ok; ok = iter.Next() {
		st, err := decodeBatchStatus(iter.Value())
		if err != nil {
			continue
		}
		if st.PendingCount <= 0 || st.State.Terminal() || exclude[st.BatchID] {
			continue
		}
		if st.OldestPendingMs > 0 && nowMs-st.OldestPendingMs >= windowMs {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OldestPendingMs < out[j].OldestPendingMs })
	return out, nil
}

// firstAvailable returns the highest-priority unclaimed item of a batch.
func (s *Store) firstAvailable(batchID string, claimedSeqs map[uint64]bool) (string, int64, bool, error) {
	prefix := batchIdxPrefix(s.queue, batchID)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: keyUpperBound(prefix)})
	if err != nil {
		return "", 0, false, err
	}
	defer iter.Close()
	for ok := iter.First(); ok; ok = iter.Next() {
		if claimedSeqs[seqFromIndexKey(iter.Key())] {
			continue
		}
		b, c, valid := parseRefValue(iter.Value())
		if !valid {
			continue
		}
		return b, c, true, nil
	}
	return "", 0, false, nil
}

// RecordResult transitions a processing item to its terminal state and folds
// the outcome into the batch aggregate in the same commit. Returns
// ErrStaleClaim when claimID no longer owns the item, which signals a lost
// race with the recovery sweep; callers must not retry on it.
// Results for cancelled batches are persisted but not counted.
func (s *Store) RecordResult(ctx context.Context, ref Ref, claimID string, outcome Outcome, nowMs int64) error {
	if nowMs <= 0 {
		nowMs = time.Now().UnixMilli()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.db.Get(itemKey(s.queue, ref.BatchID, ref.ContactID))
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	it, err := decodeItem(raw)
	if err != nil {
		return err
	}
	if it.State != StateProcessing || it.ClaimID != claimID {
		return ErrStaleClaim
	}
	st, err := s.loadBatch(ref.BatchID)
	if err != nil {
		return err
	}

	b := s.db.NewBatch()
	defer b.Close()

	if err := b.Delete(claimIdxKey(s.queue, it.ClaimExpiresAtMs, it.Seq), nil); err != nil {
		return err
	}

	to := StateFailed
	if outcome.Succeeded {
		to = StateSucceeded
		it.Enriched = outcome.Enriched
	} else {
		it.Error = outcome.Err
	}
	it.State = to
	it.ClaimID = ""
	it.ClaimExpiresAtMs = 0
	it.UpdatedAtMs = nowMs
	if err := s.putItem(b, it); err != nil {
		return err
	}
	s.processing--

	archived := false
	st.ProcessingCount--
	st.LastUpdatedMs = nowMs
	if st.State != BatchCancelled {
		st.CompletedItems++
		if outcome.Succeeded {
			st.SuccessCount++
		} else {
			st.FailureCount++
		}
		st.recompute(s.opts.FailureThreshold)
		if st.State.Terminal() && st.CompletedAtMs == 0 {
			st.CompletedAtMs = nowMs
			if err := s.archiveAdd(b, st, nowMs); err != nil {
				return err
			}
			archived = true
		}
	}
	if err := s.putBatch(b, st); err != nil {
		return err
	}
	if err := s.writeMeta(b); err != nil {
		return err
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return err
	}

	s.notify([]Transition{{
		Queue: s.queue, Ref: ref, From: StateProcessing, To: to, Attempts: it.Attempts, Error: it.Error,
	}})
	if archived {
		s.trimArchive(ctx)
	}
	return nil
}

// Release returns a claimed item to pending without consuming a terminal
// transition, keeping its attempt count. Workers call it when a processing
// attempt hit a retryable failure and attempts remain; the item keeps its
// original seq and priority. Returns ErrStaleClaim when claimID no longer
// owns the item.
func (s *Store) Release(ctx context.Context, ref Ref, claimID string, nowMs int64) error {
	if nowMs <= 0 {
		nowMs = time.Now().UnixMilli()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.db.Get(itemKey(s.queue, ref.BatchID, ref.ContactID))
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	it, err := decodeItem(raw)
	if err != nil {
		return err
	}
	if it.State != StateProcessing || it.ClaimID != claimID {
		return ErrStaleClaim
	}
	st, err := s.loadBatch(ref.BatchID)
	if err != nil {
		return err
	}

	b := s.db.NewBatch()
	defer b.Close()

	if err := b.Delete(claimIdxKey(s.queue, it.ClaimExpiresAtMs, it.Seq), nil); err != nil {
		return err
	}
	it.ClaimID = ""
	it.ClaimExpiresAtMs = 0
	it.UpdatedAtMs = nowMs
	s.processing--
	st.ProcessingCount--
	st.LastUpdatedMs = nowMs

	to := StatePending
	if st.State == BatchCancelled {
		// The batch was cancelled while this item was in flight; do not make
		// it claimable again.
		to = StateCancelled
		it.State = to
		if err := s.putItem(b, it); err != nil {
			return err
		}
	} else {
		it.State = to
		if err := s.putItem(b, it); err != nil {
			return err
		}
		rv := refValue(ref.BatchID, ref.ContactID)
		if err := b.Set(prioKey(s.queue, it.Priority, it.Seq), rv, nil); err != nil {
			return err
		}
		if err := b.Set(batchIdxKey(s.queue, ref.BatchID, it.Priority, it.Seq), rv, nil); err != nil {
			return err
		}
		s.pending++
		st.PendingCount++
		if st.OldestPendingMs == 0 || it.EnqueuedAtMs < st.OldestPendingMs {
			st.OldestPendingMs = it.EnqueuedAtMs
		}
		st.recompute(s.opts.FailureThreshold)
	}
	if err := s.putBatch(b, st); err != nil {
		return err
	}
	if err := s.writeMeta(b); err != nil {
		return err
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return err
	}

	s.notify([]Transition{{
		Queue: s.queue, Ref: ref, From: StateProcessing, To: to, Attempts: it.Attempts,
	}})
	return nil
}

// GetStatus returns the batch aggregate. Reads are snapshots; they never
// block writers.
func (s *Store) GetStatus(batchID string) (*BatchStatus, error) {
	raw, err := s.db.Get(batchKey(s.queue, batchID))
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return nil, ErrBatchNotFound
		}
		return nil, err
	}
	return decodeBatchStatus(raw)
}

// ListItems returns all items of a batch ordered by contact id.
func (s *Store) ListItems(batchID string) ([]*Item, error) {
	prefix := []byte(queuePrefix(s.queue) + prefixItem + batchID + "/")
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: keyUpperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var items []*Item
	for ok := iter.First(); ok; ok = iter.Next() {
		it, err := decodeItem(iter.Value())
		if err != nil {
			continue
		}
		items = append(items, it)
	}
	return items, nil
}

// CancelBatch removes the batch's pending items and marks the batch
// cancelled. Items currently processing finish naturally; their results are
// persisted but no longer counted. Cancelling a terminal batch is a no-op.
func (s *Store) CancelBatch(ctx context.Context, batchID string, nowMs int64) error {
	if nowMs <= 0 {
		nowMs = time.Now().UnixMilli()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.loadBatch(batchID)
	if err != nil {
		return err
	}
	if st.State.Terminal() {
		return nil
	}

	b := s.db.NewBatch()
	defer b.Close()

	var transitions []Transition
	prefix := batchIdxPrefix(s.queue, batchID)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: keyUpperBound(prefix)})
	if err != nil {
		return err
	}
	for ok := iter.First(); ok; ok = iter.Next() {
		_, contactID, valid := parseRefValue(iter.Value())
		if !valid {
			continue
		}
		raw, getErr := s.db.Get(itemKey(s.queue, batchID, contactID))
		if getErr != nil {
			continue
		}
		it, decErr := decodeItem(raw)
		if decErr != nil || it.State != StatePending {
			continue
		}
		if err := b.Delete(prioKey(s.queue, it.Priority, it.Seq), nil); err != nil {
			iter.Close()
			return err
		}
		if err := b.Delete(batchIdxKey(s.queue, batchID, it.Priority, it.Seq), nil); err != nil {
			iter.Close()
			return err
		}
		it.State = StateCancelled
		it.UpdatedAtMs = nowMs
		if err := s.putItem(b, it); err != nil {
			iter.Close()
			return err
		}
		s.pending--
		st.PendingCount--
		transitions = append(transitions, Transition{
			Queue: s.queue, Ref: it.Ref(), From: StatePending, To: StateCancelled, Attempts: it.Attempts,
		})
	}
	iter.Close()

	st.State = BatchCancelled
	st.OldestPendingMs = 0
	st.CompletedAtMs = nowMs
	st.LastUpdatedMs = nowMs
	if err := s.archiveAdd(b, st, nowMs); err != nil {
		return err
	}
	if err := s.putBatch(b, st); err != nil {
		return err
	}
	if err := s.writeMeta(b); err != nil {
		return err
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return err
	}

	s.logger.Info("batch cancelled",
		logpkg.Str("batch", batchID),
		logpkg.Int("removed_pending", len(transitions)),
		logpkg.Int("in_flight", st.ProcessingCount),
	)
	s.notify(transitions)
	s.trimArchive(ctx)
	return nil
}

func (s *Store) loadBatch(batchID string) (*BatchStatus, error) {
	raw, err := s.db.Get(batchKey(s.queue, batchID))
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return nil, ErrBatchNotFound
		}
		return nil, err
	}
	return decodeBatchStatus(raw)
}

func (s *Store) putBatch(b *pebble.Batch, st *BatchStatus) error {
	data, err := encodeBatchStatus(st)
	if err != nil {
		return err
	}
	return b.Set(batchKey(s.queue, st.BatchID), data, nil)
}

func (s *Store) putItem(b *pebble.Batch, it *Item) error {
	data, err := encodeItem(it)
	if err != nil {
		return err
	}
	return b.Set(itemKey(s.queue, it.BatchID, it.ContactID), data, nil)
}

func (s *Store) notify(transitions []Transition) {
	for _, t := range transitions {
		s.observer.OnTransition(t)
	}
}
