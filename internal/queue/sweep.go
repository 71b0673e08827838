package queue

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/jononovo/5ducksperday-sub010/internal/storage/pebble"
	logpkg "github.com/jononovo/5ducksperday-sub010/pkg/log"
)

// ReclaimExpired scans the claim expiry index and recovers items whose claim
// outlived its timeout: items with attempts left return to pending (original
// seq intact, so they keep their place in FIFO order), items at the attempt
// cap are marked failed. Returns how many went each way.
//
// A worker that later reports a result for a reclaimed item gets
// ErrStaleClaim, which keeps exactly one terminal transition per item.
func (s *Store) ReclaimExpired(ctx context.Context, nowMs int64, max int) (requeued, failed int, err error) {
	if nowMs <= 0 {
		nowMs = time.Now().UnixMilli()
	}
	if max <= 0 {
		max = 256
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := claimIdxPrefix(s.queue)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: keyUpperBound(prefix)})
	if err != nil {
		return 0, 0, err
	}
	defer iter.Close()

	b := s.db.NewBatch()
	defer b.Close()

	var (
		transitions []Transition
		touched     = make(map[string]*BatchStatus)
		archivedAny bool
	)

	for ok := iter.First(); ok && requeued+failed < max; ok = iter.Next() {
		expiresMs, valid := expiryFromClaimKey(s.queue, iter.Key())
		if !valid {
			continue
		}
		if expiresMs > nowMs {
			break // index is expiry-ordered
		}
		claimKey := append([]byte{}, iter.Key()...)
		batchID, contactID, valid := parseRefValue(iter.Value())
		if !valid {
			_ = b.Delete(claimKey, nil)
			continue
		}

		raw, getErr := s.db.Get(itemKey(s.queue, batchID, contactID))
		if getErr != nil {
			if errors.Is(getErr, pebblestore.ErrNotFound) {
				_ = b.Delete(claimKey, nil)
				continue
			}
			return 0, 0, getErr
		}
		it, decErr := decodeItem(raw)
		if decErr != nil {
			_ = b.Delete(claimKey, nil)
			continue
		}
		// The item may have been resolved and re-claimed since this index
		// entry was written; only a matching live claim is reclaimed.
		if it.State != StateProcessing || it.ClaimExpiresAtMs != expiresMs {
			_ = b.Delete(claimKey, nil)
			continue
		}

		st, ok := touched[batchID]
		if !ok {
			var loadErr error
			if st, loadErr = s.loadBatch(batchID); loadErr != nil {
				return 0, 0, loadErr
			}
			touched[batchID] = st
		}

		if err := b.Delete(claimKey, nil); err != nil {
			return 0, 0, err
		}
		it.ClaimID = ""
		it.ClaimExpiresAtMs = 0
		it.UpdatedAtMs = nowMs
		s.processing--
		st.ProcessingCount--

		if it.Attempts >= s.opts.MaxAttempts {
			it.State = StateFailed
			it.Error = "claim expired and no attempts remain"
			if err := s.putItem(b, it); err != nil {
				return 0, 0, err
			}
			if st.State != BatchCancelled {
				st.CompletedItems++
				st.FailureCount++
			}
			failed++
			transitions = append(transitions, Transition{
				Queue: s.queue, Ref: it.Ref(), From: StateProcessing, To: StateFailed,
				Attempts: it.Attempts, Error: it.Error,
			})
			continue
		}

		it.State = StatePending
		if err := s.putItem(b, it); err != nil {
			return 0, 0, err
		}
		ref := refValue(batchID, contactID)
		if err := b.Set(prioKey(s.queue, it.Priority, it.Seq), ref, nil); err != nil {
			return 0, 0, err
		}
		if err := b.Set(batchIdxKey(s.queue, batchID, it.Priority, it.Seq), ref, nil); err != nil {
			return 0, 0, err
		}
		s.pending++
		st.PendingCount++
		if st.OldestPendingMs == 0 || it.EnqueuedAtMs < st.OldestPendingMs {
			st.OldestPendingMs = it.EnqueuedAtMs
		}
		requeued++
		transitions = append(transitions, Transition{
			Queue: s.queue, Ref: it.Ref(), From: StateProcessing, To: StatePending, Attempts: it.Attempts,
		})
	}

	if requeued+failed == 0 && len(touched) == 0 {
		if b.Count() > 0 {
			// Only dangling index entries to clean up.
			if err := s.db.CommitBatch(ctx, b); err != nil {
				return 0, 0, err
			}
		}
		return 0, 0, nil
	}

	for _, st := range touched {
		st.LastUpdatedMs = nowMs
		if st.State != BatchCancelled {
			st.recompute(s.opts.FailureThreshold)
			if st.State.Terminal() && st.CompletedAtMs == 0 {
				st.CompletedAtMs = nowMs
				if err := s.archiveAdd(b, st, nowMs); err != nil {
					return 0, 0, err
				}
				archivedAny = true
			}
		}
		if err := s.putBatch(b, st); err != nil {
			return 0, 0, err
		}
	}
	if err := s.writeMeta(b); err != nil {
		return 0, 0, err
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return 0, 0, err
	}

	if requeued+failed > 0 {
		s.logger.Info("reclaimed expired claims",
			logpkg.Int("requeued", requeued),
			logpkg.Int("failed", failed),
		)
	}
	s.notify(transitions)
	if archivedAny {
		s.trimArchive(ctx)
	}
	return requeued, failed, nil
}

// StartSweeper runs ReclaimExpired on a jittered ticker until StopSweeper or
// ctx cancellation. Safe to call once per store.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration, maxPerTick int) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	s.sweepStop = make(chan struct{})
	s.sweepWG.Add(1)
	go func() {
		defer s.sweepWG.Done()
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		for {
			// Jitter keeps multiple queues from sweeping in lockstep.
			wait := interval + time.Duration(rng.Int63n(int64(interval)/4+1))
			select {
			case <-ctx.Done():
				return
			case <-s.sweepStop:
				return
			case <-time.After(wait):
			}
			if _, _, err := s.ReclaimExpired(ctx, 0, maxPerTick); err != nil {
				s.logger.Error("recovery sweep failed", logpkg.Err(err))
			}
		}
	}()
}

// StopSweeper stops the background sweep and waits for it to exit.
func (s *Store) StopSweeper() {
	if s.sweepStop == nil {
		return
	}
	close(s.sweepStop)
	s.sweepWG.Wait()
	s.sweepStop = nil
}
