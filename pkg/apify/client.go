// Package apify provides a client for the Apify instagram-scraper actor.
package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

// Default base URL for the Apify v2 API.
const defaultBaseURL = "https://api.apify.com/v2"

// defaultActorID is the public Instagram profile scraper actor.
const defaultActorID = "apify~instagram-scraper"

// Client defines the Apify scrape operations.
type Client interface {
	// ScrapeProfile runs the scraper actor synchronously for one profile
	// URL and returns the scraped item. Returns ErrNoItems when the run
	// completes without results (private or deleted profile).
	ScrapeProfile(ctx context.Context, profileURL string) (*ProfileItem, error)
}

// ProfileItem is one dataset item returned by the instagram-scraper actor.
type ProfileItem struct {
	Username          string `json:"username"`
	FullName          string `json:"fullName"`
	Biography         string `json:"biography"`
	FollowersCount    int    `json:"followersCount"`
	FollowsCount      int    `json:"followsCount"`
	PostsCount        int    `json:"postsCount"`
	Verified          bool   `json:"verified"`
	IsBusinessAccount bool   `json:"isBusinessAccount"`
	BusinessCategory  string `json:"businessCategoryName"`
	ExternalURL       string `json:"externalUrl"`
}

// runInput is the actor input for a single profile scrape.
type runInput struct {
	DirectURLs   []string `json:"directUrls"`
	ResultsType  string   `json:"resultsType"`
	ResultsLimit int      `json:"resultsLimit"`
	SearchType   string   `json:"searchType"`
	SearchLimit  int      `json:"searchLimit"`
}

// ErrNoItems is returned when an actor run completes but yields no dataset
// items, meaning the profile is private, deleted, or otherwise not scrapable.
var ErrNoItems = eris.New("apify: run returned no items")

// APIError is returned when Apify responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("apify: HTTP %d: %s", e.StatusCode, e.Body)
}

// RateLimitError is returned when Apify signals backpressure.
type RateLimitError struct {
	Body string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("apify: rate limited: %s", e.Body)
}

// RateLimited marks the error as provider backpressure.
func (e *RateLimitError) RateLimited() bool { return true }

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *httpClient) {
		c.baseURL = baseURL
	}
}

// WithActorID overrides the default actor.
func WithActorID(actorID string) Option {
	return func(c *httpClient) {
		c.actorID = actorID
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout sets the HTTP client timeout. Actor runs are slow; the
// default is generous.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.Timeout = d
	}
}

// httpClient implements Client using net/http.
type httpClient struct {
	apiKey  string
	baseURL string
	actorID string
	http    *http.Client
}

// NewClient creates a new Apify client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		actorID: defaultActorID,
		http: &http.Client{
			Timeout: 120 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) ScrapeProfile(ctx context.Context, profileURL string) (*ProfileItem, error) {
	input := runInput{
		DirectURLs:   []string{profileURL},
		ResultsType:  "details",
		ResultsLimit: 1,
		SearchType:   "user",
		SearchLimit:  1,
	}

	buf, err := json.Marshal(input)
	if err != nil {
		return nil, eris.Wrap(err, "apify: marshal run input")
	}

	endpoint := fmt.Sprintf("%s/acts/%s/run-sync-get-dataset-items?token=%s",
		c.baseURL, c.actorID, url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return nil, eris.Wrap(err, "apify: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "apify: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "apify: read response")
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitError{Body: string(body)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var items []ProfileItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, eris.Wrap(err, "apify: unmarshal dataset items")
	}

	if len(items) == 0 {
		return nil, ErrNoItems
	}

	return &items[0], nil
}
