package provider

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	require.Equal(t, KindNotFound, KindOf(NotFound("p", nil)))
	require.Equal(t, KindRateLimited, KindOf(RateLimited("p", time.Second, nil)))
	require.Equal(t, KindFatal, KindOf(Fatal("p", nil)))
	require.Equal(t, KindTransient, KindOf(errors.New("plain")))

	wrapped := errors.Join(errors.New("ctx"), NotFound("p", nil))
	require.Equal(t, KindNotFound, KindOf(wrapped))
}

func TestRetryAfterOf(t *testing.T) {
	require.Equal(t, 3*time.Second, RetryAfterOf(RateLimited("p", 3*time.Second, nil)))
	require.Equal(t, time.Duration(0), RetryAfterOf(errors.New("plain")))
}

func TestPatternProvider(t *testing.T) {
	p := &PatternProvider{}
	data, err := p.Enrich(context.Background(), ContactIdentity{
		ContactID:     1,
		FirstName:     "Ada",
		LastName:      "O'Brien",
		CompanyDomain: "Example.COM",
	})
	require.NoError(t, err)
	require.Equal(t, "ada.obrien@example.com", data.Email)
	require.Equal(t, "pattern", data.Source)
}

func TestPatternProviderCustomShape(t *testing.T) {
	p := &PatternProvider{Pattern: "{f}{last}"}
	data, err := p.Enrich(context.Background(), ContactIdentity{
		ContactID:     1,
		FirstName:     "Ada",
		LastName:      "Lovelace",
		CompanyDomain: "example.com",
	})
	require.NoError(t, err)
	require.Equal(t, "alovelace@example.com", data.Email)
}

func TestPatternProviderMissingFields(t *testing.T) {
	p := &PatternProvider{}
	_, err := p.Enrich(context.Background(), ContactIdentity{ContactID: 1, FirstName: "Ada"})
	require.Error(t, err)
	require.Equal(t, KindNotFound, KindOf(err))
}

func TestHTTPLookupStatusMapping(t *testing.T) {
	var status int
	var retryAfter string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if retryAfter != "" {
			w.Header().Set("Retry-After", retryAfter)
		}
		w.WriteHeader(status)
		if status == http.StatusOK {
			_, _ = w.Write([]byte(`{"email":"a@b.c","title":"CTO"}`))
		}
	}))
	defer srv.Close()

	p := NewHTTPLookup(HTTPLookupOptions{Name: "lookup", BaseURL: srv.URL})
	id := ContactIdentity{ContactID: 42, CompanyDomain: "b.c"}

	status = http.StatusOK
	data, err := p.Enrich(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "a@b.c", data.Email)
	require.Equal(t, "lookup", data.Source)

	status = http.StatusNotFound
	_, err = p.Enrich(context.Background(), id)
	require.Equal(t, KindNotFound, KindOf(err))

	status = http.StatusTooManyRequests
	retryAfter = "7"
	_, err = p.Enrich(context.Background(), id)
	require.Equal(t, KindRateLimited, KindOf(err))
	require.Equal(t, 7*time.Second, RetryAfterOf(err))

	status = http.StatusInternalServerError
	retryAfter = ""
	_, err = p.Enrich(context.Background(), id)
	require.Equal(t, KindTransient, KindOf(err))

	status = http.StatusForbidden
	_, err = p.Enrich(context.Background(), id)
	require.Equal(t, KindFatal, KindOf(err))
}

func TestBackoffBounds(t *testing.T) {
	cfg := BackoffConfig{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	rng := rand.New(rand.NewSource(1))
	for attempt := 1; attempt <= 10; attempt++ {
		d := cfg.NextDelay(attempt, rng)
		require.GreaterOrEqual(t, d, time.Duration(0))
		require.LessOrEqual(t, d, time.Second)
	}
}

type countingProvider struct{ calls int }

func (c *countingProvider) Name() string { return "counting" }
func (c *countingProvider) Enrich(context.Context, ContactIdentity) (*EnrichedData, error) {
	c.calls++
	return &EnrichedData{Email: "x@y.z"}, nil
}

func TestWithRateLimitWaits(t *testing.T) {
	inner := &countingProvider{}
	p := WithRateLimit(inner, 50, 1)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := p.Enrich(context.Background(), ContactIdentity{ContactID: 1})
		require.NoError(t, err)
	}
	// burst 1 at 50 rps: calls 2 and 3 wait ~20ms each
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	require.Equal(t, 3, inner.calls)
}

func TestWithRateLimitContextCancel(t *testing.T) {
	p := WithRateLimit(&countingProvider{}, 0.001, 1)
	// drain the single burst token
	_, err := p.Enrich(context.Background(), ContactIdentity{ContactID: 1})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Enrich(ctx, ContactIdentity{ContactID: 2})
	require.Error(t, err)
	require.Equal(t, KindTransient, KindOf(err))
}
