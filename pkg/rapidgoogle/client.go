// Package rapidgoogle provides a client for the RapidAPI Google Search API.
package rapidgoogle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultHost    = "google-search116.p.rapidapi.com"
	defaultBaseURL = "https://" + defaultHost
)

// Client performs Google search operations.
type Client interface {
	// Search runs one first-page search. An empty result list is not an
	// error; rate limiting and auth failures are surfaced as typed errors.
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// Result is a single search-result entry.
type Result struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"description"`
}

// searchResponse is the provider's response envelope.
type searchResponse struct {
	Results []Result `json:"results"`
}

// APIError is returned when the provider responds with an unexpected status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("rapidgoogle: HTTP %d: %s", e.StatusCode, e.Body)
}

// AuthFailure reports whether the error was an auth/subscription rejection.
func (e *APIError) AuthFailure() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// RateLimitError is returned when the provider signals quota exhaustion.
type RateLimitError struct {
	Body string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rapidgoogle: rate limited: %s", e.Body)
}

// RateLimited marks the error as provider backpressure.
func (e *RateLimitError) RateLimited() bool { return true }

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *httpClient) {
		c.baseURL = baseURL
	}
}

// WithHost overrides the x-rapidapi-host header.
func WithHost(host string) Option {
	return func(c *httpClient) {
		c.host = host
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	host    string
	baseURL string
	http    *http.Client
}

// NewClient creates a RapidAPI Google Search client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		host:    defaultHost,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "rapidgoogle: create request")
	}
	req.Header.Set("x-rapidapi-host", c.host)
	req.Header.Set("x-rapidapi-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "rapidgoogle: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "rapidgoogle: read response")
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitError{Body: string(body)}
	case resp.StatusCode != http.StatusOK:
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result searchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "rapidgoogle: unmarshal response")
	}

	return result.Results, nil
}
