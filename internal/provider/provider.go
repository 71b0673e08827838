package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ContactIdentity is the already-resolved identity of a contact to enrich.
// ContactID is required; the remaining fields are whatever the caller knows.
type ContactIdentity struct {
	ContactID     int64  `json:"contactId"`
	CompanyID     int64  `json:"companyId,omitempty"`
	FirstName     string `json:"firstName,omitempty"`
	LastName      string `json:"lastName,omitempty"`
	Email         string `json:"email,omitempty"`
	Title         string `json:"title,omitempty"`
	CompanyName   string `json:"companyName,omitempty"`
	CompanyDomain string `json:"companyDomain,omitempty"`
}

// EnrichedData carries the partial contact fields a lookup produced. Empty
// fields mean the source had nothing for them.
type EnrichedData struct {
	Email         string `json:"email,omitempty"`
	FirstName     string `json:"firstName,omitempty"`
	LastName      string `json:"lastName,omitempty"`
	Title         string `json:"title,omitempty"`
	CompanyName   string `json:"companyName,omitempty"`
	CompanyDomain string `json:"companyDomain,omitempty"`
	LinkedInURL   string `json:"linkedinUrl,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Source        string `json:"source,omitempty"`
}

// Provider is a single external lookup source.
type Provider interface {
	Name() string
	Enrich(ctx context.Context, identity ContactIdentity) (*EnrichedData, error)
}

// Kind classifies provider failures for the worker's retry policy.
type Kind int

const (
	// KindTransient failures are retried against the same provider.
	KindTransient Kind = iota
	// KindNotFound means the source has no data; the chain moves on.
	KindNotFound
	// KindRateLimited means back off, then retry the same provider.
	KindRateLimited
	// KindFatal failures skip to the next provider immediately.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindFatal:
		return "fatal"
	default:
		return "transient"
	}
}

// Error is a typed provider failure.
type Error struct {
	Kind     Kind
	Provider string
	// RetryAfter is a server-suggested delay for KindRateLimited; zero means
	// the caller picks its own backoff.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound builds a KindNotFound error for the named provider.
func NotFound(provider string, err error) *Error {
	return &Error{Kind: KindNotFound, Provider: provider, Err: err}
}

// RateLimited builds a KindRateLimited error with an optional suggested delay.
func RateLimited(provider string, retryAfter time.Duration, err error) *Error {
	return &Error{Kind: KindRateLimited, Provider: provider, RetryAfter: retryAfter, Err: err}
}

// Transient builds a KindTransient error.
func Transient(provider string, err error) *Error {
	return &Error{Kind: KindTransient, Provider: provider, Err: err}
}

// Fatal builds a KindFatal error.
func Fatal(provider string, err error) *Error {
	return &Error{Kind: KindFatal, Provider: provider, Err: err}
}

// KindOf extracts the failure kind from an error. Errors that are not typed
// provider errors are treated as transient.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTransient
}

// RetryAfterOf returns the server-suggested delay carried by err, if any.
func RetryAfterOf(err error) time.Duration {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.RetryAfter
	}
	return 0
}
