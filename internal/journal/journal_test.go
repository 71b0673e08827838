package journal

import (
	"context"
	"testing"
	"time"

	"github.com/jononovo/5ducksperday-sub010/internal/queue"
	pebblestore "github.com/jononovo/5ducksperday-sub010/internal/storage/pebble"
)

func openTestDB(t *testing.T) *pebblestore.DB {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir: t.TempDir(),
		Fsync:   pebblestore.FsyncModeNever,
	})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func entry(batchID string, contactID int64, to string, atMs int64) Entry {
	return Entry{BatchID: batchID, ContactID: contactID, From: "pending", To: to, AtMs: atMs}
}

func TestAppendAssignsSequences(t *testing.T) {
	j, err := Open(openTestDB(t), "email_enrichment", nil)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	seqs, err := j.Append(context.Background(), []Entry{
		entry("b1", 1, "processing", 10),
		entry("b1", 1, "succeeded", 20),
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(seqs) != 2 || seqs[0] != 1 || seqs[1] != 2 {
		t.Fatalf("seqs = %v", seqs)
	}
}

func TestRecentNewestFirst(t *testing.T) {
	j, err := Open(openTestDB(t), "email_enrichment", nil)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	if _, err := j.Append(context.Background(), []Entry{
		entry("b1", 1, "processing", 10),
		entry("b2", 2, "processing", 20),
		entry("b1", 1, "succeeded", 30),
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := j.Recent(2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries", len(got))
	}
	if got[0].To != "succeeded" || got[1].BatchID != "b2" {
		t.Fatalf("unexpected order: %+v", got)
	}

	only, err := j.ForBatch("b1", 10)
	if err != nil {
		t.Fatalf("for batch: %v", err)
	}
	if len(only) != 2 || only[0].To != "succeeded" || only[1].To != "processing" {
		t.Fatalf("batch entries: %+v", only)
	}
}

func TestSequenceSurvivesReopen(t *testing.T) {
	db := openTestDB(t)
	j1, err := Open(db, "email_enrichment", nil)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	if _, err := j1.Append(context.Background(), []Entry{entry("b1", 1, "processing", 10)}); err != nil {
		t.Fatalf("append: %v", err)
	}

	j2, err := Open(db, "email_enrichment", nil)
	if err != nil {
		t.Fatalf("reopen journal: %v", err)
	}
	seqs, err := j2.Append(context.Background(), []Entry{entry("b1", 1, "succeeded", 20)})
	if err != nil {
		t.Fatalf("append after reopen: %v", err)
	}
	if seqs[0] != 2 {
		t.Fatalf("seq after reopen = %d, want 2", seqs[0])
	}
}

func TestTrimOlderThan(t *testing.T) {
	j, err := Open(openTestDB(t), "email_enrichment", nil)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	if _, err := j.Append(context.Background(), []Entry{
		entry("b1", 1, "processing", 10),
		entry("b1", 1, "succeeded", 20),
		entry("b2", 2, "processing", 100),
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	deleted, lastSeq, err := j.TrimOlderThan(context.Background(), 50, 1, 0)
	if err != nil {
		t.Fatalf("trim: %v", err)
	}
	if deleted != 2 || lastSeq != 2 {
		t.Fatalf("deleted=%d lastSeq=%d", deleted, lastSeq)
	}

	got, err := j.Recent(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 1 || got[0].BatchID != "b2" {
		t.Fatalf("remaining: %+v", got)
	}
}

func TestTrimKeepsAll(t *testing.T) {
	j, err := Open(openTestDB(t), "email_enrichment", nil)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	if _, err := j.Append(context.Background(), []Entry{entry("b1", 1, "processing", 100)}); err != nil {
		t.Fatalf("append: %v", err)
	}
	deleted, _, err := j.TrimOlderThan(context.Background(), 50, 0, 0)
	if err != nil {
		t.Fatalf("trim: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("deleted = %d, want 0", deleted)
	}
}

func TestObserverRecordsTransition(t *testing.T) {
	j, err := Open(openTestDB(t), "email_enrichment", nil)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	j.OnTransition(queue.Transition{
		Queue:    "email_enrichment",
		Ref:      queue.Ref{BatchID: "b1", ContactID: 7},
		From:     queue.StatePending,
		To:       queue.StateProcessing,
		Attempts: 1,
	})
	got, err := j.Recent(1)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 1 || got[0].ContactID != 7 || got[0].To != "processing" || got[0].Attempts != 1 {
		t.Fatalf("entry: %+v", got)
	}
	if got[0].AtMs <= 0 {
		t.Fatal("AtMs not set")
	}
}

func TestTrimmerStartStop(t *testing.T) {
	j, err := Open(openTestDB(t), "email_enrichment", nil)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	j.StartTrimmer(ctx, 10*time.Millisecond, time.Hour)
	time.Sleep(30 * time.Millisecond)
	j.StopTrimmer()
}
