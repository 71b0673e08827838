package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jononovo/5ducksperday-sub010/internal/provider"
	"github.com/jononovo/5ducksperday-sub010/internal/queue"
	"github.com/jononovo/5ducksperday-sub010/internal/worker"
	logpkg "github.com/jononovo/5ducksperday-sub010/pkg/log"
)

var (
	// ErrTimeout is returned with a partial result when a blocking wait ran
	// out of time before the batch finished.
	ErrTimeout = errors.New("pipeline: wait timed out")
	// ErrCancelled is returned with a partial result when the batch was
	// cancelled while being waited on.
	ErrCancelled = errors.New("pipeline: batch cancelled")
	// ErrNoContacts means the submission was empty after filtering.
	ErrNoContacts = errors.New("pipeline: no contacts to enrich")
	// ErrClosed rejects calls after Close.
	ErrClosed = errors.New("pipeline: closed")

	// ErrBatchNotFound aliases the store error for callers that only import
	// this package.
	ErrBatchNotFound = queue.ErrBatchNotFound
	// ErrInvalidBatchID and ErrInvalidContactID alias the store's input
	// validation errors.
	ErrInvalidBatchID   = queue.ErrInvalidBatchID
	ErrInvalidContactID = queue.ErrInvalidContactID
)

// Config tunes a Pipeline.
type Config struct {
	Worker worker.Config
	// SweepInterval is the recovery sweep cadence.
	SweepInterval   time.Duration
	SweepMaxPerTick int
	// IdleGrace is how long the queue must stay empty before the worker pool
	// winds down.
	IdleGrace time.Duration
	// PollInterval is the cadence of status polls during blocking waits.
	PollInterval time.Duration
	// DefaultTimeout bounds SubmitBatch when the caller gives no timeout.
	DefaultTimeout time.Duration
	Logger         logpkg.Logger
}

func (c *Config) withDefaults() {
	if c.SweepInterval <= 0 {
		c.SweepInterval = 2 * time.Second
	}
	if c.IdleGrace <= 0 {
		c.IdleGrace = 60 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 5 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel))
	}
	if c.Worker.Logger == nil {
		c.Worker.Logger = c.Logger
	}
}

// SubmitOptions shapes one batch submission.
type SubmitOptions struct {
	// BatchID names the batch; empty means a generated id.
	BatchID string
	// Priority applies to every item of the submission; higher runs first.
	Priority int32
	// Timeout bounds the blocking wait of SubmitBatch. Zero means the
	// pipeline default.
	Timeout time.Duration
	// Filter is an optional CEL expression over contact fields; contacts it
	// rejects are not enqueued.
	Filter string
}

// Pipeline owns the queue store, the worker pool, and the recovery sweep.
type Pipeline struct {
	store     *queue.Store
	providers []provider.Provider
	cfg       Config
	logger    logpkg.Logger

	mu          sync.Mutex
	closed      bool
	running     bool
	stopWorkers context.CancelFunc
	workerDone  chan struct{}
}

// New wires a Pipeline over an open store and provider chain, and starts
// the recovery sweep. Workers start lazily on first submission.
func New(store *queue.Store, providers []provider.Provider, cfg Config) *Pipeline {
	cfg.withDefaults()
	p := &Pipeline{
		store:     store,
		providers: providers,
		cfg:       cfg,
		logger:    cfg.Logger.With(logpkg.Component("pipeline"), logpkg.Str("queue", store.Queue())),
	}
	store.StartSweeper(context.Background(), cfg.SweepInterval, cfg.SweepMaxPerTick)
	return p
}

// Close stops workers and the sweep, waiting for in-flight items to finish.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	stop, done := p.stopWorkers, p.workerDone
	p.running = false
	p.stopWorkers, p.workerDone = nil, nil
	p.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
	p.store.StopSweeper()
}

// SubmitBatch enqueues the contacts and blocks until the batch finishes or
// the timeout elapses. On timeout the partial result comes back with
// ErrTimeout; an empty submission resolves immediately to an empty result.
func (p *Pipeline) SubmitBatch(ctx context.Context, contacts []provider.ContactIdentity, opts SubmitOptions) (*BatchEnrichmentResult, error) {
	batchID, _, err := p.EnqueueAsync(ctx, contacts, opts)
	if errors.Is(err, ErrNoContacts) {
		return &BatchEnrichmentResult{
			BatchID:     opts.BatchID,
			Results:     []ContactResult{},
			CompletedAt: time.Now().UTC(),
		}, nil
	}
	if err != nil {
		return nil, err
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = p.cfg.DefaultTimeout
	}
	return p.WaitForBatch(ctx, batchID, timeout)
}

// EnqueueAsync enqueues without waiting and returns the batch id. The
// worker pool is started if it is not already running.
func (p *Pipeline) EnqueueAsync(ctx context.Context, contacts []provider.ContactIdentity, opts SubmitOptions) (string, queue.EnqueueSummary, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return "", queue.EnqueueSummary{}, ErrClosed
	}

	filter, err := newContactFilter(opts.Filter)
	if err != nil {
		return "", queue.EnqueueSummary{}, err
	}
	items := make([]queue.EnqueueItem, 0, len(contacts))
	for _, c := range contacts {
		if !filter.Match(c) {
			continue
		}
		items = append(items, queue.EnqueueItem{Identity: c, Priority: opts.Priority})
	}
	if len(items) == 0 {
		return "", queue.EnqueueSummary{}, ErrNoContacts
	}

	batchID := opts.BatchID
	if batchID == "" {
		batchID = uuid.NewString()
	}
	summary, err := p.store.Enqueue(ctx, batchID, items, 0)
	if err != nil {
		return "", queue.EnqueueSummary{}, err
	}
	p.logger.Info("batch enqueued",
		logpkg.Str("batch", batchID),
		logpkg.Int("submitted", len(contacts)),
		logpkg.Int("enqueued", summary.Inserted),
	)
	p.ensureWorkers()
	return batchID, summary, nil
}

// WaitForBatch blocks until the batch reaches a terminal state, then
// returns its result. Timeouts and waits on cancelled batches return the
// partial result alongside ErrTimeout or ErrCancelled.
func (p *Pipeline) WaitForBatch(ctx context.Context, batchID string, timeout time.Duration) (*BatchEnrichmentResult, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		st, err := p.store.GetStatus(batchID)
		if err != nil {
			return nil, err
		}
		if st.State.Terminal() {
			res, err := buildResult(p.store, batchID, time.UnixMilli(st.CompletedAtMs))
			if err != nil {
				return nil, err
			}
			if st.State == queue.BatchCancelled {
				return res, ErrCancelled
			}
			return res, nil
		}
		select {
		case <-ctx.Done():
			// Partial result: the batch is still running, so CompletedAt
			// stays zero.
			res, _ := buildResult(p.store, batchID, time.Time{})
			return res, ctx.Err()
		case <-deadline:
			res, err := buildResult(p.store, batchID, time.Time{})
			if err != nil {
				return nil, err
			}
			p.logger.Warn("batch wait timed out",
				logpkg.Str("batch", batchID),
				logpkg.Int("processed", res.TotalProcessed),
			)
			return res, ErrTimeout
		case <-ticker.C:
		}
	}
}

// GetBatchStatus returns the live aggregate for a batch.
func (p *Pipeline) GetBatchStatus(batchID string) (*queue.BatchStatus, error) {
	return p.store.GetStatus(batchID)
}

// CancelBatch drops the batch's pending items; in-flight items finish but
// stop counting.
func (p *Pipeline) CancelBatch(ctx context.Context, batchID string) error {
	return p.store.CancelBatch(ctx, batchID, 0)
}

// RecentBatches lists recently finished batches, newest first.
func (p *Pipeline) RecentBatches(limit int) ([]*queue.ArchivedBatch, error) {
	return p.store.ListRecentBatches(limit)
}

// Depth returns the queue's pending and processing counts.
func (p *Pipeline) Depth() (pending, processing int) {
	return p.store.Depth()
}

// ensureWorkers starts the pool if it is not running.
func (p *Pipeline) ensureWorkers() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.stopWorkers = cancel
	p.workerDone = done
	p.running = true

	pool := worker.New(p.store, p.providers, p.cfg.Worker)
	go func() {
		defer close(done)
		if err := pool.Run(ctx); err != nil {
			p.logger.Error("worker pool exited", logpkg.Err(err))
		}
	}()
	go p.idleWatch(ctx)
	p.logger.Debug("worker pool started")
}

// idleWatch winds the pool down once the queue stays empty for IdleGrace.
func (p *Pipeline) idleWatch(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	idleSince := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		pending, processing := p.store.Depth()
		if pending+processing > 0 {
			idleSince = time.Now()
			continue
		}
		if time.Since(idleSince) < p.cfg.IdleGrace {
			continue
		}

		p.mu.Lock()
		// Re-check under the lock so a submission racing this shutdown
		// either sees a running pool or restarts it.
		pending, processing = p.store.Depth()
		if pending+processing > 0 || p.closed || !p.running {
			p.mu.Unlock()
			idleSince = time.Now()
			continue
		}
		stop, done := p.stopWorkers, p.workerDone
		p.running = false
		p.stopWorkers, p.workerDone = nil, nil
		p.mu.Unlock()

		stop()
		<-done
		p.logger.Debug("worker pool idled out")
		return
	}
}
