// Package rates keeps the price oracle current by polling an external rate
// source for the fee tokens.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/dujyo/gasengine/pkg/logger"
)

// Fetcher retrieves the USD rate for a token, in micro-USD per whole token.
type Fetcher interface {
	Fetch(ctx context.Context, token string) (int64, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, token string) (int64, error)

func (f FetcherFunc) Fetch(ctx context.Context, token string) (int64, error) {
	if f == nil {
		return 0, fmt.Errorf("no fetcher configured")
	}
	return f(ctx, token)
}

// HTTPFetcher pulls rates from a JSON endpoint. The endpoint receives the
// token as a query parameter and responds with {"rate_micro_usd": n}.
type HTTPFetcher struct {
	client   *http.Client
	endpoint string
	apiKey   string
	log      *logger.Logger
}

// NewHTTPFetcher validates the endpoint and builds a fetcher.
func NewHTTPFetcher(client *http.Client, endpoint, apiKey string, log *logger.Logger) (*HTTPFetcher, error) {
	if log == nil {
		log = logger.NewDefault("rates-fetcher")
	}
	if client == nil {
		client = http.DefaultClient
	}
	parsed, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid rate endpoint %q", endpoint)
	}
	return &HTTPFetcher{client: client, endpoint: parsed.String(), apiKey: apiKey, log: log}, nil
}

// Fetch requests the current rate for one token.
func (f *HTTPFetcher) Fetch(ctx context.Context, token string) (int64, error) {
	endpoint, err := url.Parse(f.endpoint)
	if err != nil {
		return 0, err
	}
	query := endpoint.Query()
	query.Set("token", token)
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return 0, err
	}
	if f.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("rate endpoint returned %d for %s", resp.StatusCode, token)
	}

	var payload struct {
		RateMicroUSD int64 `json:"rate_micro_usd"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode rate response: %w", err)
	}
	if payload.RateMicroUSD <= 0 {
		return 0, fmt.Errorf("non-positive rate %d for %s", payload.RateMicroUSD, token)
	}
	return payload.RateMicroUSD, nil
}
