package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jononovo/5ducksperday-sub010/internal/provider"
	"github.com/jononovo/5ducksperday-sub010/internal/queue"
	pebblestore "github.com/jononovo/5ducksperday-sub010/internal/storage/pebble"
	"github.com/jononovo/5ducksperday-sub010/internal/worker"
)

func testPipeline(t *testing.T, providers []provider.Provider) *Pipeline {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store, err := queue.Open(db, "email_enrichment", queue.Options{ClaimTimeout: 5 * time.Second})
	require.NoError(t, err)

	p := New(store, providers, Config{
		Worker: worker.Config{
			Workers:      2,
			Concurrency:  2,
			PollInterval: 10 * time.Millisecond,
			Backoff:      provider.BackoffConfig{BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		},
		SweepInterval: 100 * time.Millisecond,
		IdleGrace:     30 * time.Second,
		PollInterval:  10 * time.Millisecond,
	})
	t.Cleanup(p.Close)
	return p
}

func contact(id int64, first, last, domain string) provider.ContactIdentity {
	return provider.ContactIdentity{ContactID: id, FirstName: first, LastName: last, CompanyDomain: domain}
}

// gatedProvider blocks every call until the gate closes.
type gatedProvider struct{ gate chan struct{} }

func (g *gatedProvider) Name() string { return "gated" }

func (g *gatedProvider) Enrich(ctx context.Context, identity provider.ContactIdentity) (*provider.EnrichedData, error) {
	select {
	case <-ctx.Done():
		return nil, provider.Transient(g.Name(), ctx.Err())
	case <-g.gate:
		return &provider.EnrichedData{Email: "gated@acme.test", Source: g.Name()}, nil
	}
}

func TestSubmitBatchEndToEnd(t *testing.T) {
	p := testPipeline(t, []provider.Provider{&provider.PatternProvider{}})

	res, err := p.SubmitBatch(context.Background(), []provider.ContactIdentity{
		contact(1, "Ada", "Lovelace", "acme.test"),
		contact(2, "Grace", "Hopper", "acme.test"),
		contact(3, "", "", ""), // pattern provider has nothing to work with
	}, SubmitOptions{BatchID: "b1", Timeout: 10 * time.Second})
	require.NoError(t, err)

	require.Equal(t, "b1", res.BatchID)
	require.Equal(t, 3, res.TotalProcessed)
	require.Equal(t, 2, res.SuccessCount)
	require.Equal(t, 1, res.FailureCount)
	require.False(t, res.CompletedAt.IsZero())
	require.Len(t, res.Results, 3)

	byContact := map[int64]ContactResult{}
	for _, r := range res.Results {
		byContact[r.ContactID] = r
	}
	require.True(t, byContact[1].Success)
	require.Equal(t, "ada.lovelace@acme.test", byContact[1].EnrichedData.Email)
	require.True(t, byContact[2].Success)
	require.False(t, byContact[3].Success)
	require.NotEmpty(t, byContact[3].Error)

	st, err := p.GetBatchStatus("b1")
	require.NoError(t, err)
	require.Equal(t, queue.BatchCompleted, st.State)
}

func TestSubmitBatchTimeoutReturnsPartial(t *testing.T) {
	gate := make(chan struct{})
	p := testPipeline(t, []provider.Provider{&gatedProvider{gate: gate}})

	res, err := p.SubmitBatch(context.Background(), []provider.ContactIdentity{
		contact(1, "Ada", "Lovelace", "acme.test"),
	}, SubmitOptions{BatchID: "b1", Timeout: 100 * time.Millisecond})
	require.ErrorIs(t, err, ErrTimeout)
	require.NotNil(t, res)
	require.Equal(t, 0, res.TotalProcessed)
	// An unfinished batch has no completion stamp.
	require.True(t, res.CompletedAt.IsZero())

	// The batch keeps going after the caller gave up.
	close(gate)
	final, err := p.WaitForBatch(context.Background(), "b1", 10*time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, final.SuccessCount)
	require.False(t, final.CompletedAt.IsZero())
}

func TestWaitContextCancelReturnsPartial(t *testing.T) {
	gate := make(chan struct{})
	p := testPipeline(t, []provider.Provider{&gatedProvider{gate: gate}})
	defer close(gate)

	_, _, err := p.EnqueueAsync(context.Background(), []provider.ContactIdentity{
		contact(1, "Ada", "Lovelace", "acme.test"),
	}, SubmitOptions{BatchID: "b1"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res, err := p.WaitForBatch(ctx, "b1", 10*time.Second)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, res)
	require.True(t, res.CompletedAt.IsZero())
}

func TestSubmitBatchFilter(t *testing.T) {
	p := testPipeline(t, []provider.Provider{&provider.PatternProvider{}})

	batchID, summary, err := p.EnqueueAsync(context.Background(), []provider.ContactIdentity{
		contact(1, "Ada", "Lovelace", "acme.test"),
		contact(2, "Grace", "Hopper", "other.test"),
		contact(3, "Joan", "Clarke", "acme.test"),
	}, SubmitOptions{Filter: `company_domain == "acme.test"`})
	require.NoError(t, err)
	require.NotEmpty(t, batchID)
	require.Equal(t, 2, summary.Inserted)

	res, err := p.WaitForBatch(context.Background(), batchID, 10*time.Second)
	require.NoError(t, err)
	require.Equal(t, 2, res.TotalProcessed)
	for _, r := range res.Results {
		require.NotEqual(t, int64(2), r.ContactID)
	}
}

func TestSubmitBatchFilterRejectsEverything(t *testing.T) {
	p := testPipeline(t, []provider.Provider{&provider.PatternProvider{}})

	res, err := p.SubmitBatch(context.Background(), []provider.ContactIdentity{
		contact(1, "Ada", "Lovelace", "acme.test"),
	}, SubmitOptions{Filter: `false`})
	require.NoError(t, err)
	require.Empty(t, res.Results)
	require.Equal(t, 0, res.TotalProcessed)
}

func TestSubmitBatchBadFilter(t *testing.T) {
	p := testPipeline(t, []provider.Provider{&provider.PatternProvider{}})
	_, err := p.SubmitBatch(context.Background(), []provider.ContactIdentity{
		contact(1, "Ada", "Lovelace", "acme.test"),
	}, SubmitOptions{Filter: `no_such_field == 1`})
	require.Error(t, err)
}

func TestCancelBatchMidFlight(t *testing.T) {
	gate := make(chan struct{})
	p := testPipeline(t, []provider.Provider{&gatedProvider{gate: gate}})

	_, _, err := p.EnqueueAsync(context.Background(), []provider.ContactIdentity{
		contact(1, "Ada", "Lovelace", "acme.test"),
		contact(2, "Grace", "Hopper", "acme.test"),
		contact(3, "Joan", "Clarke", "acme.test"),
	}, SubmitOptions{BatchID: "b1"})
	require.NoError(t, err)

	// Give workers a moment to claim some items, then cancel.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, p.CancelBatch(context.Background(), "b1"))

	res, err := p.WaitForBatch(context.Background(), "b1", 5*time.Second)
	require.ErrorIs(t, err, ErrCancelled)
	require.NotNil(t, res)

	st, err := p.GetBatchStatus("b1")
	require.NoError(t, err)
	require.Equal(t, queue.BatchCancelled, st.State)
	close(gate)
}

func TestWaitForUnknownBatch(t *testing.T) {
	p := testPipeline(t, []provider.Provider{&provider.PatternProvider{}})
	_, err := p.WaitForBatch(context.Background(), "nope", time.Second)
	require.ErrorIs(t, err, ErrBatchNotFound)
}

func TestRecentBatches(t *testing.T) {
	p := testPipeline(t, []provider.Provider{&provider.PatternProvider{}})
	for _, id := range []string{"first", "second"} {
		_, err := p.SubmitBatch(context.Background(), []provider.ContactIdentity{
			contact(1, "Ada", "Lovelace", "acme.test"),
		}, SubmitOptions{BatchID: id, Timeout: 10 * time.Second})
		require.NoError(t, err)
	}
	recent, err := p.RecentBatches(10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "second", recent[0].BatchID)
}

func TestSubmitAfterClose(t *testing.T) {
	p := testPipeline(t, []provider.Provider{&provider.PatternProvider{}})
	p.Close()
	_, _, err := p.EnqueueAsync(context.Background(), []provider.ContactIdentity{
		contact(1, "Ada", "Lovelace", "acme.test"),
	}, SubmitOptions{})
	require.ErrorIs(t, err, ErrClosed)
	require.False(t, errors.Is(err, ErrNoContacts))
}
