package enricher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadenrich-cli/pkg/apify"
)

// stubScrape implements apify.Client with a canned response.
type stubScrape struct {
	item *apify.ProfileItem
	err  error
}

func (s stubScrape) ScrapeProfile(context.Context, string) (*apify.ProfileItem, error) {
	return s.item, s.err
}

func TestEnrichMapsAttributes(t *testing.T) {
	t.Parallel()

	e := New(stubScrape{item: &apify.ProfileItem{
		Username:          "janedoe",
		FullName:          "Jane Doe",
		Biography:         "photographer",
		FollowersCount:    12400,
		FollowsCount:      310,
		PostsCount:        87,
		Verified:          true,
		IsBusinessAccount: true,
		BusinessCategory:  "Photographer",
		ExternalURL:       "https://janedoe.example",
	}})

	attrs, err := e.Enrich(context.Background(), "https://www.instagram.com/janedoe/")
	require.NoError(t, err)

	assert.Equal(t, "janedoe", attrs.Username)
	assert.Equal(t, "Jane Doe", attrs.FullName)
	assert.Equal(t, "photographer", attrs.Bio)
	assert.Equal(t, 12400, attrs.Followers)
	assert.Equal(t, 310, attrs.Following)
	assert.Equal(t, 87, attrs.Posts)
	assert.True(t, attrs.Verified)
	assert.True(t, attrs.IsBusiness)
	assert.Equal(t, "Photographer", attrs.BusinessCategory)
	assert.Equal(t, "https://janedoe.example", attrs.ExternalURL)
}

func TestEnrichNotScrapable(t *testing.T) {
	t.Parallel()

	e := New(stubScrape{err: apify.ErrNoItems})
	_, err := e.Enrich(context.Background(), "https://www.instagram.com/ghost/")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotScrapable)
}

func TestEnrichProviderErrorPassesThrough(t *testing.T) {
	t.Parallel()

	e := New(stubScrape{err: &apify.RateLimitError{Body: "slow down"}})
	_, err := e.Enrich(context.Background(), "https://www.instagram.com/janedoe/")

	require.Error(t, err)
	var rle *apify.RateLimitError
	assert.ErrorAs(t, err, &rle)
	assert.NotErrorIs(t, err, ErrNotScrapable)
}
