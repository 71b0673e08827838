package worker

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jononovo/5ducksperday-sub010/internal/provider"
	"github.com/jononovo/5ducksperday-sub010/internal/queue"
	logpkg "github.com/jononovo/5ducksperday-sub010/pkg/log"
)

// claimMargin is how long before claim expiry an attempt gives up, so the
// result lands while the claim token is still live.
const claimMargin = 500 * time.Millisecond

// providerTries bounds in-attempt retries against one provider for
// transient and rate-limited failures.
const providerTries = 3

// Config tunes a Pool.
type Config struct {
	// Workers is the number of claim loops.
	Workers int
	// Concurrency is the max in-flight items per claim loop.
	Concurrency int
	// ClaimBatch is how many items one ClaimNext call asks for.
	ClaimBatch int
	// PollInterval is the idle wait between empty claims.
	PollInterval time.Duration
	// MaxAttempts must match the store's cap; at the cap a retryable failure
	// becomes terminal instead of releasing.
	MaxAttempts int
	Backoff     provider.BackoffConfig
	Logger      logpkg.Logger
}

func (c *Config) withDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.ClaimBatch <= 0 {
		c.ClaimBatch = c.Concurrency
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Backoff == (provider.BackoffConfig{}) {
		c.Backoff = provider.DefaultBackoff()
	}
	if c.Logger == nil {
		c.Logger = logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel))
	}
}

// Pool processes claimed items through an ordered provider chain.
type Pool struct {
	store     *queue.Store
	providers []provider.Provider
	cfg       Config
	logger    logpkg.Logger
}

// New builds a Pool over the store and provider chain. Providers are
// consulted in order; earlier entries win.
func New(store *queue.Store, providers []provider.Provider, cfg Config) *Pool {
	cfg.withDefaults()
	return &Pool{
		store:     store,
		providers: providers,
		cfg:       cfg,
		logger:    cfg.Logger.With(logpkg.Component("worker"), logpkg.Str("queue", store.Queue())),
	}
}

// Run blocks until ctx is cancelled, draining the queue with cfg.Workers
// claim loops. In-flight items finish before Run returns.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info("worker pool starting",
		logpkg.Int("workers", p.cfg.Workers),
		logpkg.Int("concurrency", p.cfg.Concurrency),
	)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		g.Go(func() error { return p.claimLoop(ctx) })
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (p *Pool) claimLoop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		claims, err := p.store.ClaimNext(ctx, p.cfg.ClaimBatch, nil, 0)
		if err != nil {
			p.logger.Error("claim failed", logpkg.Err(err))
			if !sleep(ctx, p.cfg.PollInterval) {
				return ctx.Err()
			}
			continue
		}
		if len(claims) == 0 {
			if !sleep(ctx, p.cfg.PollInterval) {
				return ctx.Err()
			}
			continue
		}

		fan, fctx := errgroup.WithContext(ctx)
		fan.SetLimit(p.cfg.Concurrency)
		for _, c := range claims {
			c := c
			fan.Go(func() error {
				p.process(fctx, c)
				return nil
			})
		}
		_ = fan.Wait()
	}
}

// process runs one claimed item to exactly one outcome.
func (p *Pool) process(ctx context.Context, c queue.Claim) {
	attemptCtx := ctx
	cancel := context.CancelFunc(func() {})
	if c.ClaimExpiresAtMs > 0 {
		if deadline := time.UnixMilli(c.ClaimExpiresAtMs).Add(-claimMargin); deadline.After(time.Now()) {
			attemptCtx, cancel = context.WithDeadline(ctx, deadline)
		}
	}
	defer cancel()

	data, retryable, err := p.enrich(attemptCtx, c.Identity)
	switch {
	case err == nil:
		p.finish(c, queue.Outcome{Succeeded: true, Enriched: data})
	case retryable && c.Attempts < p.cfg.MaxAttempts:
		p.release(c, err)
	default:
		p.logger.Debug("item failed permanently",
			logpkg.Str("item", c.Ref.String()),
			logpkg.Int("attempts", c.Attempts),
			logpkg.Err(err),
		)
		p.finish(c, queue.Outcome{Err: err.Error()})
	}
}

// enrich walks the provider chain. Not-found and fatal failures move to the
// next provider; transient and rate-limited ones are retried in place a few
// times first. retryable reports whether any provider failed in a way worth
// another queue attempt.
func (p *Pool) enrich(ctx context.Context, identity provider.ContactIdentity) (*provider.EnrichedData, bool, error) {
	var (
		lastErr   error
		retryable bool
	)
	for _, prov := range p.providers {
		data, provErr := p.tryProvider(ctx, prov, identity)
		if provErr == nil {
			return data, false, nil
		}
		lastErr = provErr
		switch provider.KindOf(provErr) {
		case provider.KindNotFound, provider.KindFatal:
		default:
			retryable = true
		}
		if ctx.Err() != nil {
			return nil, true, provErr
		}
	}
	if lastErr == nil {
		return nil, false, provider.Fatal("chain", errors.New("no providers configured"))
	}
	return nil, retryable, lastErr
}

func (p *Pool) tryProvider(ctx context.Context, prov provider.Provider, identity provider.ContactIdentity) (*provider.EnrichedData, error) {
	for attempt := 1; ; attempt++ {
		data, err := prov.Enrich(ctx, identity)
		if err == nil {
			return data, nil
		}
		kind := provider.KindOf(err)
		if kind == provider.KindNotFound || kind == provider.KindFatal {
			return nil, err
		}
		if attempt >= providerTries || ctx.Err() != nil {
			return nil, err
		}
		delay := p.cfg.Backoff.NextDelay(attempt, nil)
		if ra := provider.RetryAfterOf(err); ra > 0 {
			delay = ra
		}
		p.logger.Debug("retrying provider",
			logpkg.Str("provider", prov.Name()),
			logpkg.Int64("contact", identity.ContactID),
			logpkg.Str("kind", kind.String()),
			logpkg.Dur("delay", delay),
		)
		if !sleep(ctx, delay) {
			return nil, err
		}
	}
}

// finish records a terminal outcome. Uses a background context so results
// survive shutdown; a stale claim means the sweep already took the item back.
func (p *Pool) finish(c queue.Claim, outcome queue.Outcome) {
	err := p.store.RecordResult(context.Background(), c.Ref, c.ClaimID, outcome, 0)
	if errors.Is(err, queue.ErrStaleClaim) {
		p.logger.Debug("dropping result for stale claim", logpkg.Str("item", c.Ref.String()))
		return
	}
	if err != nil {
		p.logger.Error("record result failed", logpkg.Str("item", c.Ref.String()), logpkg.Err(err))
	}
}

func (p *Pool) release(c queue.Claim, cause error) {
	p.logger.Debug("releasing item for retry",
		logpkg.Str("item", c.Ref.String()),
		logpkg.Int("attempts", c.Attempts),
		logpkg.Err(cause),
	)
	err := p.store.Release(context.Background(), c.Ref, c.ClaimID, 0)
	if err != nil && !errors.Is(err, queue.ErrStaleClaim) {
		p.logger.Error("release failed", logpkg.Str("item", c.Ref.String()), logpkg.Err(err))
	}
}

// sleep waits for d or ctx cancellation, reporting whether the full wait
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
