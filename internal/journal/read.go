package journal

import (
	"encoding/json"

	"github.com/cockroachdb/pebble"
)

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	return j.scan(limit, func(Entry) bool { return true })
}

// ForBatch returns up to limit entries for one batch, newest first.
func (j *Journal) ForBatch(batchID string, limit int) ([]Entry, error) {
	return j.scan(limit, func(e Entry) bool { return e.BatchID == batchID })
}

func (j *Journal) scan(limit int, keep func(Entry) bool) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	low := entryKey(j.queue, 0)
	hi := entryKey(j.queue, ^uint64(0))
	iter, err := j.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: append(hi, 0x00)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	out := make([]Entry, 0, limit)
	for ok := iter.Last(); ok && len(out) < limit; ok = iter.Prev() {
		var e Entry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			continue
		}
		if keep(e) {
			out = append(out, e)
		}
	}
	return out, nil
}
