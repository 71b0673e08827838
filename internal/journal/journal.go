package journal

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"sync"
	"time"

	"github.com/jononovo/5ducksperday-sub010/internal/queue"
	pebblestore "github.com/jononovo/5ducksperday-sub010/internal/storage/pebble"
	logpkg "github.com/jononovo/5ducksperday-sub010/pkg/log"
)

// Entry is one recorded item transition. Entries are assigned a sequence
// number at append time; sequence order matches commit order.
type Entry struct {
	Seq       uint64 `json:"seq"`
	BatchID   string `json:"batchId"`
	ContactID int64  `json:"contactId"`
	From      string `json:"from"`
	To        string `json:"to"`
	Attempts  int    `json:"attempts"`
	Error     string `json:"error,omitempty"`
	AtMs      int64  `json:"atMs"`
}

// Journal is an append-only audit trail of item transitions for one queue.
// It implements queue.Observer so it can be attached at store open time.
type Journal struct {
	db     *pebblestore.DB
	queue  string
	logger logpkg.Logger

	mu      sync.Mutex
	lastSeq uint64

	trimStop chan struct{}
	trimWG   sync.WaitGroup
}

// Open initializes a Journal and restores the last sequence from metadata.
func Open(db *pebblestore.DB, queueName string, logger logpkg.Logger) (*Journal, error) {
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel))
	}
	j := &Journal{db: db, queue: queueName, logger: logger.With(logpkg.Component("journal"), logpkg.Str("queue", queueName))}
	meta, err := db.Get(metaKey(queueName))
	if err == nil && len(meta) >= 8 {
		j.lastSeq = binary.BigEndian.Uint64(meta[:8])
	}
	return j, nil
}

// Append writes the provided entries as a single atomic batch and returns
// the assigned sequence numbers.
func (j *Journal) Append(ctx context.Context, entries []Entry) ([]uint64, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	b := j.db.NewBatch()
	defer b.Close()

	seqs := make([]uint64, len(entries))
	for i := range entries {
		j.lastSeq++
		entries[i].Seq = j.lastSeq
		val, err := json.Marshal(entries[i])
		if err != nil {
			return nil, err
		}
		if err := b.Set(entryKey(j.queue, j.lastSeq), val, nil); err != nil {
			return nil, err
		}
		seqs[i] = j.lastSeq
	}

	var meta [8]byte
	binary.BigEndian.PutUint64(meta[:], j.lastSeq)
	if err := b.Set(metaKey(j.queue), meta[:], nil); err != nil {
		return nil, err
	}
	if err := j.db.CommitBatch(ctx, b); err != nil {
		return nil, err
	}
	return seqs, nil
}

// OnTransition records a single transition. It runs on the store's mutating
// goroutine, so failures are logged rather than propagated.
func (j *Journal) OnTransition(t queue.Transition) {
	e := Entry{
		BatchID:   t.Ref.BatchID,
		ContactID: t.Ref.ContactID,
		From:      string(t.From),
		To:        string(t.To),
		Attempts:  t.Attempts,
		Error:     t.Error,
		AtMs:      time.Now().UnixMilli(),
	}
	if _, err := j.Append(context.Background(), []Entry{e}); err != nil {
		j.logger.Warn("journal append failed",
			logpkg.Str("batch", t.Ref.BatchID),
			logpkg.Err(err),
		)
	}
}
