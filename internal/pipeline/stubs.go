package pipeline

import (
	"context"
	"strings"

	"github.com/sells-group/leadenrich-cli/internal/query"
	"github.com/sells-group/leadenrich-cli/pkg/apify"
	"github.com/sells-group/leadenrich-cli/pkg/rapidgoogle"
)

// Compile-time interface checks.
var (
	_ rapidgoogle.Client = (*StubSearchClient)(nil)
	_ apify.Client       = (*StubScrapeClient)(nil)
)

// StubSearchClient implements rapidgoogle.Client with deterministic results
// for offline runs: the first quoted phrase of the query becomes the
// username.
type StubSearchClient struct{}

// Search implements rapidgoogle.Client.
func (s *StubSearchClient) Search(_ context.Context, query string, _ int) ([]rapidgoogle.Result, error) {
	username := stubUsername(query)
	if username == "" {
		return nil, nil
	}
	return []rapidgoogle.Result{
		{
			URL:     "https://www.instagram.com/" + username + "/",
			Title:   strings.Trim(firstQuoted(query), `"`) + " (@" + username + ") • Instagram photos and videos",
			Snippet: firstQuoted(query) + " on Instagram",
		},
	}, nil
}

// StubScrapeClient implements apify.Client with canned profile attributes.
type StubScrapeClient struct{}

// ScrapeProfile implements apify.Client.
func (s *StubScrapeClient) ScrapeProfile(_ context.Context, profileURL string) (*apify.ProfileItem, error) {
	username := strings.Trim(strings.TrimPrefix(profileURL, "https://www.instagram.com/"), "/")
	return &apify.ProfileItem{
		Username:       username,
		FullName:       query.NormalizeName(strings.ReplaceAll(username, ".", " ")),
		Biography:      "stub profile",
		FollowersCount: 1234,
		FollowsCount:   321,
		PostsCount:     88,
	}, nil
}

// firstQuoted returns the first double-quoted phrase of the query, quotes
// included, or the whole query when none exists.
func firstQuoted(query string) string {
	start := strings.Index(query, `"`)
	if start < 0 {
		return query
	}
	end := strings.Index(query[start+1:], `"`)
	if end < 0 {
		return query
	}
	return query[start : start+end+2]
}

func stubUsername(query string) string {
	phrase := strings.Trim(firstQuoted(query), `"`)
	phrase = strings.ToLower(strings.TrimSpace(phrase))
	if phrase == "" {
		return ""
	}
	return strings.ReplaceAll(phrase, " ", ".")
}
