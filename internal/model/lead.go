package model

// Lead is one input row to be enriched. Identity is the row position in the
// source table; emails are not guaranteed unique across a batch.
type Lead struct {
	Row   int    `json:"row"`
	Name  string `json:"name"`
	Email string `json:"email"`
	// Extra holds passthrough columns from the source table, keyed by header.
	Extra map[string]string `json:"extra,omitempty"`
	// ExistingURL is a previously discovered profile URL found in the input,
	// used to skip already-enriched rows on resume.
	ExistingURL string `json:"existing_url,omitempty"`
	// ExistingStatus is the prior status column value, if the input carries one.
	ExistingStatus string `json:"existing_status,omitempty"`
}

// HasSearchableFields reports whether the lead carries enough data to build
// at least one search query.
func (l Lead) HasSearchableFields() bool {
	return l.Name != "" || l.Email != ""
}

// Query is an ordered sequence of candidate search strings for one lead.
// Higher-priority strings come first.
type Query struct {
	Terms []string `json:"terms"`
}

// Empty reports whether the query has no terms.
func (q Query) Empty() bool {
	return len(q.Terms) == 0
}

// SearchCandidate is one search-result entry under consideration.
type SearchCandidate struct {
	URL          string `json:"url"`
	Title        string `json:"title"`
	Snippet      string `json:"snippet"`
	MatchedQuery string `json:"matched_query"`
	// Rank is the 1-based position in the provider's result list.
	Rank int `json:"rank"`
}

// ResolvedProfile is the single candidate chosen for a lead, with the
// confidence that cleared the threshold.
type ResolvedProfile struct {
	SearchCandidate
	// ProfileURL is the canonical profile URL extracted from the candidate.
	ProfileURL string  `json:"profile_url"`
	Username   string  `json:"username"`
	Confidence float64 `json:"confidence"`
}

// ProfileAttributes holds structured profile data from the scrape provider.
type ProfileAttributes struct {
	Username         string `json:"username"`
	FullName         string `json:"full_name"`
	Bio              string `json:"bio"`
	Followers        int    `json:"followers"`
	Following        int    `json:"following"`
	Posts            int    `json:"posts"`
	Verified         bool   `json:"verified"`
	IsBusiness       bool   `json:"is_business"`
	BusinessCategory string `json:"business_category,omitempty"`
	ExternalURL      string `json:"external_url,omitempty"`
}
