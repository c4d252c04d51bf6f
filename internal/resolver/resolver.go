// Package resolver selects a best-candidate profile URL from paid search
// results.
package resolver

import (
	"context"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadenrich-cli/internal/model"
	"github.com/sells-group/leadenrich-cli/internal/scorer"
	"github.com/sells-group/leadenrich-cli/pkg/rapidgoogle"
)

// profilePattern extracts the username from an Instagram URL.
var profilePattern = regexp.MustCompile(`instagram\.com/([a-zA-Z0-9_.]+)`)

// reservedSegments are instagram.com path segments that are never usernames.
var reservedSegments = map[string]bool{
	"reel": true, "reels": true, "p": true, "tv": true,
	"stories": true, "explore": true, "accounts": true,
}

// Config tunes candidate selection.
type Config struct {
	// ConfidenceThreshold is the minimum score a candidate must clear.
	ConfidenceThreshold float64
	// ResultLimit bounds each search to one first-page request.
	ResultLimit int
}

// Resolver tries a lead's query ladder in order and picks the lowest-rank
// candidate whose confidence clears the threshold.
type Resolver struct {
	search rapidgoogle.Client
	scorer scorer.Scorer
	cfg    Config
}

// New creates a Resolver. If sc is nil, the default lexical scorer is used.
func New(search rapidgoogle.Client, sc scorer.Scorer, cfg Config) *Resolver {
	if sc == nil {
		sc = scorer.NewLexical(scorer.DefaultConfig())
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 0.5
	}
	if cfg.ResultLimit <= 0 {
		cfg.ResultLimit = 10
	}
	return &Resolver{search: search, scorer: sc, cfg: cfg}
}

// Resolve runs each query term in order and returns the first confident
// profile candidate, or nil when every term is exhausted without one.
// One search call is issued per term; there is no pagination.
func (r *Resolver) Resolve(ctx context.Context, lead model.Lead, q model.Query) (*model.ResolvedProfile, error) {
	for _, term := range q.Terms {
		results, err := r.search.Search(ctx, term, r.cfg.ResultLimit)
		if err != nil {
			return nil, eris.Wrapf(err, "resolver: search %q", term)
		}

		candidates := extractCandidates(results, term)
		if len(candidates) == 0 {
			continue
		}

		if best := r.pick(candidates, lead); best != nil {
			zap.L().Debug("resolver: candidate selected",
				zap.Int("row", lead.Row),
				zap.String("query", term),
				zap.String("profile_url", best.ProfileURL),
				zap.Int("rank", best.Rank),
				zap.Float64("confidence", best.Confidence),
			)
			return best, nil
		}
	}

	return nil, nil
}

// pick scores candidates and selects the lowest-rank one clearing the
// threshold; ties break by shortest snippet edit distance to the lead name.
func (r *Resolver) pick(candidates []model.ResolvedProfile, lead model.Lead) *model.ResolvedProfile {
	var best *model.ResolvedProfile
	var bestDist int
	name := strings.ToLower(strings.TrimSpace(lead.Name))

	for i := range candidates {
		c := &candidates[i]
		c.Confidence = r.scorer.Score(c.SearchCandidate, lead)
		if c.Confidence < r.cfg.ConfidenceThreshold {
			continue
		}

		dist := scorer.EditDistance(name, strings.ToLower(c.Snippet))
		switch {
		case best == nil,
			c.Rank < best.Rank,
			c.Rank == best.Rank && dist < bestDist:
			best = c
			bestDist = dist
		}
	}
	return best
}

// extractCandidates keeps only results pointing at an Instagram profile page
// and attaches the canonical profile URL. Rank is the 1-based position in
// the provider's list.
func extractCandidates(results []rapidgoogle.Result, term string) []model.ResolvedProfile {
	var out []model.ResolvedProfile
	for i, res := range results {
		username, ok := ExtractUsername(res.URL)
		if !ok {
			continue
		}
		out = append(out, model.ResolvedProfile{
			SearchCandidate: model.SearchCandidate{
				URL:          res.URL,
				Title:        res.Title,
				Snippet:      res.Snippet,
				MatchedQuery: term,
				Rank:         i + 1,
			},
			ProfileURL: CanonicalURL(username),
			Username:   username,
		})
	}
	return out
}

// ExtractUsername pulls a profile username out of an Instagram URL. Post,
// reel and tv links are rejected, as are reserved path segments.
func ExtractUsername(rawURL string) (string, bool) {
	lower := strings.ToLower(rawURL)
	for _, nonProfile := range []string{"/reel/", "/p/", "/tv/"} {
		if strings.Contains(lower, nonProfile) {
			return "", false
		}
	}

	m := profilePattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", false
	}

	username := strings.TrimRight(m[1], "/.")
	if username == "" || reservedSegments[strings.ToLower(username)] {
		return "", false
	}
	return username, true
}

// CanonicalURL returns the canonical profile URL for a username.
func CanonicalURL(username string) string {
	return "https://www.instagram.com/" + username + "/"
}
