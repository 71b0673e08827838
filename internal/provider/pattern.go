package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// PatternProvider derives a candidate work email from the contact's name and
// company domain. It performs no network calls and is typically the first
// link in the chain: cheap, deterministic, and often good enough.
type PatternProvider struct {
	// Pattern is the email shape, with {first}, {last}, {f} and {l}
	// placeholders. Default is "{first}.{last}".
	Pattern string
}

func (p *PatternProvider) Name() string { return "pattern" }

func (p *PatternProvider) Enrich(_ context.Context, identity ContactIdentity) (*EnrichedData, error) {
	first := normalizeNamePart(identity.FirstName)
	last := normalizeNamePart(identity.LastName)
	domain := strings.ToLower(strings.TrimSpace(identity.CompanyDomain))

	if first == "" || last == "" || domain == "" {
		return nil, NotFound(p.Name(), errors.New("need first name, last name and company domain"))
	}

	pattern := p.Pattern
	if pattern == "" {
		pattern = "{first}.{last}"
	}
	local := strings.NewReplacer(
		"{first}", first,
		"{last}", last,
		"{f}", first[:1],
		"{l}", last[:1],
	).Replace(pattern)

	return &EnrichedData{
		Email:         fmt.Sprintf("%s@%s", local, domain),
		FirstName:     identity.FirstName,
		LastName:      identity.LastName,
		CompanyDomain: domain,
		Source:        p.Name(),
	}, nil
}

// normalizeNamePart lowercases and strips everything but letters and digits,
// so "O'Brien" becomes "obrien".
func normalizeNamePart(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
