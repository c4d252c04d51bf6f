package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadenrich-cli/internal/model"
	"github.com/sells-group/leadenrich-cli/pkg/rapidgoogle"
	"github.com/sells-group/leadenrich-cli/pkg/rapidgoogle/mocks"
)

// fixedScorer returns a canned confidence per candidate URL.
type fixedScorer struct {
	scores map[string]float64
}

func (f fixedScorer) Score(c model.SearchCandidate, _ model.Lead) float64 {
	return f.scores[c.URL]
}

func TestResolveLowestRankClearingThreshold(t *testing.T) {
	t.Parallel()

	// Rank 1 below threshold, ranks 2 and 3 clear it; the resolver must
	// pick rank 2 even though rank 3 scores higher.
	results := []rapidgoogle.Result{
		{URL: "https://www.instagram.com/first/", Title: "first"},
		{URL: "https://www.instagram.com/second/", Title: "second"},
		{URL: "https://www.instagram.com/third/", Title: "third"},
	}
	sc := fixedScorer{scores: map[string]float64{
		"https://www.instagram.com/first/":  0.3,
		"https://www.instagram.com/second/": 0.6,
		"https://www.instagram.com/third/":  0.8,
	}}

	search := mocks.NewMockClient(t)
	search.On("Search", mock.Anything, `"Jane Doe" instagram`, 10).Return(results, nil).Once()

	r := New(search, sc, Config{ConfidenceThreshold: 0.5})
	profile, err := r.Resolve(context.Background(), model.Lead{Name: "Jane Doe"},
		model.Query{Terms: []string{`"Jane Doe" instagram`}})

	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "second", profile.Username)
	assert.Equal(t, 2, profile.Rank)
	assert.InDelta(t, 0.6, profile.Confidence, 1e-9)
}

func TestResolveFallsThroughToNextQuery(t *testing.T) {
	t.Parallel()

	search := mocks.NewMockClient(t)
	search.On("Search", mock.Anything, "first query", 10).
		Return([]rapidgoogle.Result{}, nil).Once()
	search.On("Search", mock.Anything, "second query", 10).
		Return([]rapidgoogle.Result{
			{URL: "https://www.instagram.com/janedoe/", Title: "Jane Doe"},
		}, nil).Once()

	sc := fixedScorer{scores: map[string]float64{"https://www.instagram.com/janedoe/": 0.9}}
	r := New(search, sc, Config{})

	profile, err := r.Resolve(context.Background(), model.Lead{Name: "Jane Doe"},
		model.Query{Terms: []string{"first query", "second query"}})

	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "janedoe", profile.Username)
	assert.Equal(t, "second query", profile.MatchedQuery)
}

func TestResolveStopsAfterConfidentHit(t *testing.T) {
	t.Parallel()

	// Only the first term may be searched; the mock would fail the test on
	// an unexpected second call.
	search := mocks.NewMockClient(t)
	search.On("Search", mock.Anything, "q1", 10).
		Return([]rapidgoogle.Result{
			{URL: "https://www.instagram.com/janedoe/", Title: "Jane Doe"},
		}, nil).Once()

	sc := fixedScorer{scores: map[string]float64{"https://www.instagram.com/janedoe/": 0.7}}
	r := New(search, sc, Config{})

	profile, err := r.Resolve(context.Background(), model.Lead{Name: "Jane Doe"},
		model.Query{Terms: []string{"q1", "q2", "q3"}})

	require.NoError(t, err)
	require.NotNil(t, profile)
}

func TestResolveAbsentWhenNothingClears(t *testing.T) {
	t.Parallel()

	search := mocks.NewMockClient(t)
	search.On("Search", mock.Anything, "q1", 10).
		Return([]rapidgoogle.Result{
			{URL: "https://www.instagram.com/janedoe/", Title: "Jane Doe"},
		}, nil).Once()
	search.On("Search", mock.Anything, "q2", 10).
		Return([]rapidgoogle.Result{}, nil).Once()

	sc := fixedScorer{scores: map[string]float64{"https://www.instagram.com/janedoe/": 0.2}}
	r := New(search, sc, Config{ConfidenceThreshold: 0.5})

	profile, err := r.Resolve(context.Background(), model.Lead{Name: "Jane Doe"},
		model.Query{Terms: []string{"q1", "q2"}})

	require.NoError(t, err)
	assert.Nil(t, profile)
}

func TestResolveSkipsNonProfileURLs(t *testing.T) {
	t.Parallel()

	search := mocks.NewMockClient(t)
	search.On("Search", mock.Anything, "q1", 10).
		Return([]rapidgoogle.Result{
			{URL: "https://www.instagram.com/reel/xyz123/"},
			{URL: "https://www.instagram.com/p/abc456/"},
			{URL: "https://example.com/jane"},
			{URL: "https://www.instagram.com/janedoe/", Title: "Jane Doe"},
		}, nil).Once()

	sc := fixedScorer{scores: map[string]float64{"https://www.instagram.com/janedoe/": 0.9}}
	r := New(search, sc, Config{})

	profile, err := r.Resolve(context.Background(), model.Lead{Name: "Jane Doe"},
		model.Query{Terms: []string{"q1"}})

	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "janedoe", profile.Username)
	// Rank counts the provider's position, not the filtered position.
	assert.Equal(t, 4, profile.Rank)
}

func TestResolvePropagatesProviderError(t *testing.T) {
	t.Parallel()

	search := mocks.NewMockClient(t)
	search.On("Search", mock.Anything, "q1", 10).
		Return(nil, &rapidgoogle.RateLimitError{Body: "quota"}).Once()

	r := New(search, fixedScorer{}, Config{})
	_, err := r.Resolve(context.Background(), model.Lead{Name: "Jane Doe"},
		model.Query{Terms: []string{"q1"}})

	require.Error(t, err)
	var rle *rapidgoogle.RateLimitError
	assert.ErrorAs(t, err, &rle)
}

func TestResolveEmptyQuery(t *testing.T) {
	t.Parallel()

	r := New(mocks.NewMockClient(t), fixedScorer{}, Config{})
	profile, err := r.Resolve(context.Background(), model.Lead{}, model.Query{})

	require.NoError(t, err)
	assert.Nil(t, profile)
}

func TestResolveDefaultScorerUsed(t *testing.T) {
	t.Parallel()

	search := mocks.NewMockClient(t)
	search.On("Search", mock.Anything, "q1", 10).
		Return([]rapidgoogle.Result{
			{URL: "https://www.instagram.com/janedoe/", Title: "Jane Doe (@janedoe)", Snippet: "photos"},
		}, nil).Once()

	r := New(search, nil, Config{})
	profile, err := r.Resolve(context.Background(), model.Lead{Name: "Jane Doe"},
		model.Query{Terms: []string{"q1"}})

	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.GreaterOrEqual(t, profile.Confidence, 0.5)
}

func TestExtractUsername(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url    string
		want   string
		wantOK bool
	}{
		{"https://www.instagram.com/janedoe/", "janedoe", true},
		{"https://instagram.com/jane.doe", "jane.doe", true},
		{"http://www.instagram.com/jane_doe/?hl=en", "jane_doe", true},
		{"https://www.instagram.com/reel/xyz/", "", false},
		{"https://www.instagram.com/p/abc/", "", false},
		{"https://www.instagram.com/tv/def/", "", false},
		{"https://www.instagram.com/explore/", "", false},
		{"https://www.instagram.com/stories/", "", false},
		{"https://example.com/janedoe", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ExtractUsername(tt.url)
		assert.Equal(t, tt.wantOK, ok, tt.url)
		assert.Equal(t, tt.want, got, tt.url)
	}
}

func TestCanonicalURL(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "https://www.instagram.com/janedoe/", CanonicalURL("janedoe"))
}
