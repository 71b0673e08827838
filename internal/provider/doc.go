// Package provider defines the enrichment capability: turning a contact
// identity into enriched contact data via an external lookup source.
//
// A Provider either returns data or fails with a typed error kind that tells
// the worker how to proceed:
//
//   - NotFound: the source has no data for this contact; try the next provider
//   - RateLimited: back off and retry the same provider after a delay
//   - Transient: retry the same provider
//   - Fatal: skip to the next provider immediately
//
// Concrete providers here are the offline email-pattern guesser and a generic
// HTTP JSON lookup client. Workers receive providers as an ordered chain and
// take the first success.
package provider
