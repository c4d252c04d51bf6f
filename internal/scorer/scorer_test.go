package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/leadenrich-cli/internal/model"
)

func candidate(rank int, url, title, snippet string) model.SearchCandidate {
	return model.SearchCandidate{URL: url, Title: title, Snippet: snippet, Rank: rank}
}

func TestScoreFullNameMatch(t *testing.T) {
	t.Parallel()

	s := NewLexical(Config{})
	lead := model.Lead{Name: "Jane Doe"}
	c := candidate(1, "https://www.instagram.com/janedoe/", "Jane Doe (@janedoe)", "photographer")

	assert.InDelta(t, 1.0, s.Score(c, lead), 1e-9)
}

func TestScoreNoOverlap(t *testing.T) {
	t.Parallel()

	s := NewLexical(Config{})
	lead := model.Lead{Name: "Jane Doe"}
	c := candidate(1, "https://www.instagram.com/totally_other/", "Someone Else", "cooking")

	assert.InDelta(t, 0.0, s.Score(c, lead), 1e-9)
}

func TestScorePartialOverlapDecaysWithRank(t *testing.T) {
	t.Parallel()

	s := NewLexical(Config{RankDecay: 0.1})
	lead := model.Lead{Name: "Jane Doe"}

	// Only "jane" matches: lexical 0.5.
	first := s.Score(candidate(1, "https://www.instagram.com/jane123/", "jane", ""), lead)
	third := s.Score(candidate(3, "https://www.instagram.com/jane123/", "jane", ""), lead)

	assert.InDelta(t, 0.5, first, 1e-9)
	assert.InDelta(t, 0.5*0.8, third, 1e-9)
	assert.Less(t, third, first)
}

func TestScoreUsernameBoost(t *testing.T) {
	t.Parallel()

	s := NewLexical(Config{})
	lead := model.Lead{Name: "Jane Doe"}
	// Title/snippet say nothing, but the slug is the compacted name.
	c := candidate(1, "https://www.instagram.com/janedoe/", "", "")

	assert.InDelta(t, 0.8, s.Score(c, lead), 1e-9)
}

func TestScoreEmailFallbackTokens(t *testing.T) {
	t.Parallel()

	s := NewLexical(Config{})
	lead := model.Lead{Email: "jane.doe@example.com"}
	c := candidate(1, "https://www.instagram.com/janedoe/", "jane doe", "")

	assert.Greater(t, s.Score(c, lead), 0.9)
}

func TestScoreBlankLead(t *testing.T) {
	t.Parallel()

	s := NewLexical(Config{})
	c := candidate(1, "https://www.instagram.com/janedoe/", "Jane Doe", "")

	assert.Zero(t, s.Score(c, model.Lead{}))
}

func TestScoreRankWeightFloor(t *testing.T) {
	t.Parallel()

	s := NewLexical(Config{RankDecay: 0.5, MinRankWeight: 0.2})
	lead := model.Lead{Name: "Jane"}
	c := candidate(50, "https://www.instagram.com/jane/", "jane", "")

	assert.InDelta(t, 0.2, s.Score(c, lead), 1e-9)
}

func TestEditDistance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"jane", "jane", 0},
		{"jane", "", 4},
		{"", "doe", 3},
		{"jane", "janet", 1},
		{"kitten", "sitting", 3},
		{"jane doe", "jane roe", 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EditDistance(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
	}
}

func TestScoreIsPure(t *testing.T) {
	t.Parallel()

	s := NewLexical(Config{})
	lead := model.Lead{Name: "Jane Doe"}
	c := candidate(2, "https://www.instagram.com/janedoe/", "Jane Doe", "photos")

	first := s.Score(c, lead)
	for range 10 {
		assert.Equal(t, first, s.Score(c, lead))
	}
}
