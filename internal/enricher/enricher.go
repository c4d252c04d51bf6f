// Package enricher expands a resolved profile URL into structured
// attributes via the scrape provider.
package enricher

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadenrich-cli/internal/model"
	"github.com/sells-group/leadenrich-cli/pkg/apify"
)

// ErrNotScrapable is returned when the profile exists but the provider
// cannot scrape it (private or deleted). The row keeps its resolved URL.
var ErrNotScrapable = eris.New("enricher: profile not scrapable")

// Enricher retrieves profile attributes from the scrape provider.
type Enricher struct {
	scrape apify.Client
}

// New creates an Enricher.
func New(scrape apify.Client) *Enricher {
	return &Enricher{scrape: scrape}
}

// Enrich scrapes one profile URL. Returns ErrNotScrapable when the provider
// signals a private or deleted profile; other provider failures pass
// through for the caller to classify.
func (e *Enricher) Enrich(ctx context.Context, profileURL string) (*model.ProfileAttributes, error) {
	item, err := e.scrape.ScrapeProfile(ctx, profileURL)
	if err != nil {
		if errors.Is(err, apify.ErrNoItems) {
			return nil, ErrNotScrapable
		}
		return nil, eris.Wrapf(err, "enricher: scrape %s", profileURL)
	}

	attrs := &model.ProfileAttributes{
		Username:         item.Username,
		FullName:         item.FullName,
		Bio:              item.Biography,
		Followers:        item.FollowersCount,
		Following:        item.FollowsCount,
		Posts:            item.PostsCount,
		Verified:         item.Verified,
		IsBusiness:       item.IsBusinessAccount,
		BusinessCategory: item.BusinessCategory,
		ExternalURL:      item.ExternalURL,
	}

	zap.L().Debug("enricher: profile scraped",
		zap.String("profile_url", profileURL),
		zap.String("username", attrs.Username),
		zap.Int("followers", attrs.Followers),
	)

	return attrs, nil
}
