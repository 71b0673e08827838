package provider

import (
	"math/rand"
	"time"
)

// BackoffConfig bounds the exponential retry delay for rate-limited and
// transient provider failures.
type BackoffConfig struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultBackoff returns the policy used when none is configured.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		BaseDelay: 200 * time.Millisecond,
		MaxDelay:  10 * time.Second,
	}
}

// NextDelay computes the delay before retry number attempt (1-based) using
// exponential backoff with full jitter: random in [0, base*2^(attempt-1)],
// capped at MaxDelay.
func (cfg BackoffConfig) NextDelay(attempt int, rng *rand.Rand) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := cfg.BaseDelay
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	max := cfg.MaxDelay
	if max <= 0 {
		max = 10 * time.Second
	}

	delay := base
	for i := 1; i < attempt && delay < max; i++ {
		delay *= 2
	}
	if delay > max {
		delay = max
	}

	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return time.Duration(rng.Int63n(int64(delay) + 1))
}
