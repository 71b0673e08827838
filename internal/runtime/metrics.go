package runtime

import (
	"sync/atomic"
	"time"
)

// StorageStats is a snapshot of storage activity since the runtime opened.
type StorageStats struct {
	Reads         uint64 `json:"reads"`
	ReadBytes     uint64 `json:"readBytes"`
	Commits       uint64 `json:"commits"`
	CommitBytes   uint64 `json:"commitBytes"`
	CommitTotalMs uint64 `json:"commitTotalMs"`
}

// storageCounters implements pebblestore.MetricsHook with atomic counters.
type storageCounters struct {
	reads         atomic.Uint64
	readBytes     atomic.Uint64
	commits       atomic.Uint64
	commitBytes   atomic.Uint64
	commitTotalMs atomic.Uint64
}

func (c *storageCounters) ObserveRead(elapsed time.Duration, bytes int) {
	c.reads.Add(1)
	c.readBytes.Add(uint64(bytes))
}

func (c *storageCounters) ObserveBatchCommit(elapsed time.Duration, bytes int) {
	c.commits.Add(1)
	c.commitBytes.Add(uint64(bytes))
	c.commitTotalMs.Add(uint64(elapsed.Milliseconds()))
}

func (c *storageCounters) snapshot() StorageStats {
	return StorageStats{
		Reads:         c.reads.Load(),
		ReadBytes:     c.readBytes.Load(),
		Commits:       c.commits.Load(),
		CommitBytes:   c.commitBytes.Load(),
		CommitTotalMs: c.commitTotalMs.Load(),
	}
}

// StorageStats returns current storage counters.
func (r *Runtime) StorageStats() StorageStats { return r.metrics.snapshot() }
