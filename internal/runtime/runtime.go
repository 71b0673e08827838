package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	cfgpkg "github.com/jononovo/5ducksperday-sub010/internal/config"
	"github.com/jononovo/5ducksperday-sub010/internal/journal"
	"github.com/jononovo/5ducksperday-sub010/internal/pipeline"
	"github.com/jononovo/5ducksperday-sub010/internal/provider"
	"github.com/jononovo/5ducksperday-sub010/internal/queue"
	pebblestore "github.com/jononovo/5ducksperday-sub010/internal/storage/pebble"
	"github.com/jononovo/5ducksperday-sub010/internal/worker"
	logpkg "github.com/jononovo/5ducksperday-sub010/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	DataDir       string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	Logger        logpkg.Logger
}

// Runtime wires storage, config, and the enrichment pipeline for a
// single-node instance. Pipelines are opened lazily per queue name and
// cached.
type Runtime struct {
	db      *pebblestore.DB
	config  cfgpkg.Config
	logger  logpkg.Logger
	metrics *storageCounters

	mu        sync.Mutex
	pipelines map[string]*pipeline.Pipeline

	jmu      sync.Mutex
	journals map[string]*journal.Journal

	trimCtx    context.Context
	trimCancel context.CancelFunc
}

// Open initializes the underlying storage and returns a Runtime.
func Open(opts Options) (*Runtime, error) {
	metrics := &storageCounters{}
	db, err := pebblestore.Open(pebblestore.Options{DataDir: opts.DataDir, Fsync: opts.Fsync, FsyncInterval: opts.FsyncInterval, Metrics: metrics})
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel))
	}
	trimCtx, trimCancel := context.WithCancel(context.Background())
	return &Runtime{
		db:         db,
		config:     opts.Config,
		logger:     logger,
		metrics:    metrics,
		pipelines:  make(map[string]*pipeline.Pipeline),
		journals:   make(map[string]*journal.Journal),
		trimCtx:    trimCtx,
		trimCancel: trimCancel,
	}, nil
}

// Close shuts down pipelines and the underlying storage.
func (r *Runtime) Close() error {
	r.mu.Lock()
	pipes := r.pipelines
	r.pipelines = make(map[string]*pipeline.Pipeline)
	r.mu.Unlock()
	r.jmu.Lock()
	journals := r.journals
	r.journals = make(map[string]*journal.Journal)
	r.jmu.Unlock()
	for _, p := range pipes {
		p.Close()
	}
	r.trimCancel()
	for _, j := range journals {
		j.StopTrimmer()
	}
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// CheckHealth performs a simple health check.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	it.Close()
	return nil
}

// OpenJournal returns the transition journal for the named queue, starting
// its retention trimmer on first use. Returns nil when journaling is off.
func (r *Runtime) OpenJournal(name string) (*journal.Journal, error) {
	q := r.config.Queue
	if !q.JournalEnabled {
		return nil, nil
	}
	r.jmu.Lock()
	defer r.jmu.Unlock()
	if j, ok := r.journals[name]; ok {
		return j, nil
	}
	j, err := journal.Open(r.db, name, r.logger)
	if err != nil {
		return nil, err
	}
	j.StartTrimmer(r.trimCtx, time.Minute, time.Duration(q.JournalMaxAgeMs)*time.Millisecond)
	r.journals[name] = j
	return j, nil
}

// OpenQueue opens the named queue's store with limits from config. When
// journaling is enabled, item transitions are recorded to the queue's
// journal.
func (r *Runtime) OpenQueue(name string) (*queue.Store, error) {
	q := r.config.Queue
	var obs queue.Observer
	if j, err := r.OpenJournal(name); err != nil {
		return nil, err
	} else if j != nil {
		obs = j
	}
	return queue.Open(r.db, name, queue.Options{
		MaxAttempts:       q.MaxAttempts,
		ClaimTimeout:      time.Duration(q.ClaimTimeoutMs) * time.Millisecond,
		FairnessWindow:    time.Duration(q.FairnessWindowMs) * time.Millisecond,
		FailureThreshold:  q.FailureThreshold,
		ArchiveMaxBatches: q.ArchiveMaxBatches,
		ArchiveMaxAge:     time.Duration(q.ArchiveMaxAgeMs) * time.Millisecond,
		Logger:            r.logger,
		Observer:          obs,
	})
}

// OpenPipeline returns the pipeline for the named queue, building it on
// first use from the configured provider chain.
func (r *Runtime) OpenPipeline(name string) (*pipeline.Pipeline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pipelines[name]; ok {
		return p, nil
	}

	store, err := r.OpenQueue(name)
	if err != nil {
		return nil, err
	}
	providers, err := BuildProviders(r.config.Providers)
	if err != nil {
		return nil, err
	}
	q := r.config.Queue
	p := pipeline.New(store, providers, pipeline.Config{
		Worker: worker.Config{
			Workers:      q.Workers,
			Concurrency:  q.WorkerConcurrency,
			ClaimBatch:   q.ClaimBatch,
			PollInterval: time.Duration(q.PollIntervalMs) * time.Millisecond,
			MaxAttempts:  q.MaxAttempts,
			Logger:       r.logger,
		},
		SweepInterval: time.Duration(q.SweepIntervalMs) * time.Millisecond,
		IdleGrace:     time.Duration(q.IdleGraceMs) * time.Millisecond,
		PollInterval:  time.Duration(q.PollIntervalMs) * time.Millisecond,
		Logger:        r.logger,
	})
	r.pipelines[name] = p
	return p, nil
}

// BuildProviders turns provider configs into a chain, in config order.
func BuildProviders(configs []cfgpkg.ProviderConfig) ([]provider.Provider, error) {
	out := make([]provider.Provider, 0, len(configs))
	for _, pc := range configs {
		var p provider.Provider
		switch pc.Kind {
		case "pattern", "":
			p = &provider.PatternProvider{}
		case "http":
			if pc.BaseURL == "" {
				return nil, fmt.Errorf("runtime: provider %q needs a baseUrl", pc.Name)
			}
			p = provider.NewHTTPLookup(provider.HTTPLookupOptions{
				Name:    pc.Name,
				BaseURL: pc.BaseURL,
				APIKey:  pc.APIKey,
				Timeout: time.Duration(pc.TimeoutMs) * time.Millisecond,
			})
		default:
			return nil, fmt.Errorf("runtime: unknown provider kind %q", pc.Kind)
		}
		out = append(out, provider.WithRateLimit(p, pc.RPS, pc.Burst))
	}
	if len(out) == 0 {
		out = append(out, &provider.PatternProvider{})
	}
	return out, nil
}

// DB exposes the underlying DB for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
