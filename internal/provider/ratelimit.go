package provider

import (
	"context"

	"golang.org/x/time/rate"
)

// limited wraps a Provider with a client-side token bucket so the worker pool
// cannot overload the upstream lookup API regardless of its concurrency.
type limited struct {
	inner   Provider
	limiter *rate.Limiter
}

// WithRateLimit wraps p so Enrich waits for a token before each call.
// rps <= 0 returns p unchanged.
func WithRateLimit(p Provider, rps float64, burst int) Provider {
	if rps <= 0 {
		return p
	}
	if burst <= 0 {
		burst = 1
	}
	return &limited{inner: p, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (l *limited) Name() string { return l.inner.Name() }

func (l *limited) Enrich(ctx context.Context, identity ContactIdentity) (*EnrichedData, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, Transient(l.inner.Name(), err)
	}
	return l.inner.Enrich(ctx, identity)
}
