package journal

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/cockroachdb/pebble"

	logpkg "github.com/jononovo/5ducksperday-sub010/pkg/log"
)

// TrimOlderThan deletes entries recorded before cutoffMs. Deletes are
// committed in batches of up to batchLimit keys with an optional throttle
// between commits. Returns the number of deleted entries and the last
// deleted sequence (0 if none).
func (j *Journal) TrimOlderThan(ctx context.Context, cutoffMs int64, batchLimit int, throttle time.Duration) (int, uint64, error) {
	if batchLimit <= 0 {
		batchLimit = 1024
	}

	low := entryKey(j.queue, 0)
	hi := entryKey(j.queue, ^uint64(0))
	iter, err := j.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: append(hi, 0x00)})
	if err != nil {
		return 0, 0, err
	}
	defer iter.Close()

	deleted := 0
	var lastSeq uint64
	for ok := iter.First(); ok; {
		b := j.db.NewBatch()
		n := 0
		for ok && n < batchLimit {
			var e Entry
			if json.Unmarshal(iter.Value(), &e) == nil && e.AtMs >= cutoffMs {
				// Entries are appended in time order; the rest are newer.
				ok = false
				break
			}
			seq := seqFromEntryKey(iter.Key())
			if err := b.Delete(iter.Key(), nil); err != nil {
				b.Close()
				return deleted, lastSeq, err
			}
			deleted++
			lastSeq = seq
			n++
			ok = iter.Next()
		}
		if n == 0 {
			b.Close()
			break
		}
		if err := j.db.CommitBatch(ctx, b); err != nil {
			b.Close()
			return deleted, lastSeq, err
		}
		b.Close()
		if throttle > 0 {
			time.Sleep(throttle)
		}
	}
	return deleted, lastSeq, nil
}

// StartTrimmer runs TrimOlderThan periodically with the given retention.
// Safe to call once per Journal; StopTrimmer shuts it down.
func (j *Journal) StartTrimmer(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	j.trimStop = make(chan struct{})
	j.trimWG.Add(1)
	go func() {
		defer j.trimWG.Done()
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		for {
			// Jitter so multiple journals don't trim in lockstep.
			d := interval + time.Duration(rng.Int63n(int64(interval)/4+1))
			select {
			case <-ctx.Done():
				return
			case <-j.trimStop:
				return
			case <-time.After(d):
			}
			cutoff := time.Now().Add(-maxAge).UnixMilli()
			if n, _, err := j.TrimOlderThan(ctx, cutoff, 1024, 0); err != nil {
				j.logger.Warn("journal trim failed", logpkg.Err(err))
			} else if n > 0 {
				j.logger.Debug("journal trimmed", logpkg.Int("deleted", n))
			}
		}
	}()
}

// StopTrimmer stops the background trimmer and waits for it to exit.
func (j *Journal) StopTrimmer() {
	if j.trimStop == nil {
		return
	}
	close(j.trimStop)
	j.trimWG.Wait()
	j.trimStop = nil
}
