package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// HTTPLookupProvider calls an external contact-lookup API. The endpoint is
// expected to answer GET {base}/v1/enrich with contact fields as query
// parameters and an EnrichedData JSON body on success.
type HTTPLookupProvider struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
}

// HTTPLookupOptions configures an HTTPLookupProvider.
type HTTPLookupOptions struct {
	Name    string
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// Client overrides the default HTTP client; used by tests.
	Client *http.Client
}

// NewHTTPLookup builds an HTTP lookup provider.
func NewHTTPLookup(opts HTTPLookupOptions) *HTTPLookupProvider {
	name := opts.Name
	if name == "" {
		name = "http-lookup"
	}
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPLookupProvider{
		name:    name,
		baseURL: opts.BaseURL,
		apiKey:  opts.APIKey,
		client:  client,
	}
}

func (p *HTTPLookupProvider) Name() string { return p.name }

func (p *HTTPLookupProvider) Enrich(ctx context.Context, identity ContactIdentity) (*EnrichedData, error) {
	q := url.Values{}
	q.Set("contact_id", strconv.FormatInt(identity.ContactID, 10))
	if identity.CompanyID != 0 {
		q.Set("company_id", strconv.FormatInt(identity.CompanyID, 10))
	}
	if identity.FirstName != "" {
		q.Set("first_name", identity.FirstName)
	}
	if identity.LastName != "" {
		q.Set("last_name", identity.LastName)
	}
	if identity.CompanyName != "" {
		q.Set("company", identity.CompanyName)
	}
	if identity.CompanyDomain != "" {
		q.Set("domain", identity.CompanyDomain)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/enrich?"+q.Encode(), nil)
	if err != nil {
		return nil, Fatal(p.name, err)
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, Transient(p.name, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var data EnrichedData
		if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
			return nil, Transient(p.name, fmt.Errorf("decode response: %w", err))
		}
		data.Source = p.name
		return &data, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, NotFound(p.name, fmt.Errorf("no data for contact %d", identity.ContactID))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, RateLimited(p.name, parseRetryAfter(resp.Header.Get("Retry-After")), fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return nil, Transient(p.name, fmt.Errorf("status %d", resp.StatusCode))
	default:
		return nil, Fatal(p.name, fmt.Errorf("status %d", resp.StatusCode))
	}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
