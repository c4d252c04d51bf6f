// Package scorer assigns match confidence to search candidates.
package scorer

import (
	"strings"

	"github.com/sells-group/leadenrich-cli/internal/model"
)

// Scorer rates how likely a search candidate is the lead's own profile.
// Implementations must be pure and return values in [0, 1].
type Scorer interface {
	Score(candidate model.SearchCandidate, lead model.Lead) float64
}

// Config tunes the lexical scorer. The formula is a heuristic; treat the
// weights as runtime tunables, not invariants.
type Config struct {
	// RankDecay is the per-position confidence penalty. Default: 0.05.
	RankDecay float64 `yaml:"rank_decay" mapstructure:"rank_decay"`
	// MinRankWeight floors the rank penalty. Default: 0.2.
	MinRankWeight float64 `yaml:"min_rank_weight" mapstructure:"min_rank_weight"`
	// UsernameBoost is the floor applied when the lead's compacted tokens
	// appear verbatim in the candidate (typically the profile slug).
	// Default: 0.8.
	UsernameBoost float64 `yaml:"username_boost" mapstructure:"username_boost"`
}

// DefaultConfig returns the default scorer tuning.
func DefaultConfig() Config {
	return Config{
		RankDecay:     0.05,
		MinRankWeight: 0.2,
		UsernameBoost: 0.8,
	}
}

// Lexical scores candidates by rank-weighted token overlap between the
// lead's name (or email local part) and the candidate title/snippet/URL.
type Lexical struct {
	cfg Config
}

// NewLexical creates a lexical scorer. Zero-valued config fields fall back
// to defaults.
func NewLexical(cfg Config) *Lexical {
	def := DefaultConfig()
	if cfg.RankDecay <= 0 {
		cfg.RankDecay = def.RankDecay
	}
	if cfg.MinRankWeight <= 0 {
		cfg.MinRankWeight = def.MinRankWeight
	}
	if cfg.UsernameBoost <= 0 {
		cfg.UsernameBoost = def.UsernameBoost
	}
	return &Lexical{cfg: cfg}
}

// Score implements Scorer.
func (s *Lexical) Score(candidate model.SearchCandidate, lead model.Lead) float64 {
	tokens := matchTokens(lead)
	if len(tokens) == 0 {
		return 0
	}

	hay := strings.ToLower(candidate.Title + " " + candidate.Snippet + " " + candidate.URL)

	matched := 0
	for _, tok := range tokens {
		if strings.Contains(hay, tok) {
			matched++
		}
	}
	lex := float64(matched) / float64(len(tokens))

	// Compacted-token match catches usernames like "janedoe" built from
	// "Jane Doe" or "jane.doe".
	if compact := strings.Join(tokens, ""); len(compact) > 2 {
		if strings.Contains(compactString(hay), compact) {
			if lex < s.cfg.UsernameBoost {
				lex = s.cfg.UsernameBoost
			}
		}
	}

	rankWeight := 1.0
	if candidate.Rank > 1 {
		rankWeight = 1 - s.cfg.RankDecay*float64(candidate.Rank-1)
		if rankWeight < s.cfg.MinRankWeight {
			rankWeight = s.cfg.MinRankWeight
		}
	}

	score := lex * rankWeight
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// matchTokens extracts lowercase tokens from the lead's name, falling back
// to the email local part split on separators.
func matchTokens(lead model.Lead) []string {
	if fields := strings.Fields(strings.ToLower(lead.Name)); len(fields) > 0 {
		return fields
	}

	email := strings.ToLower(strings.TrimSpace(lead.Email))
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return nil
	}
	local := email[:at]
	var tokens []string
	for _, tok := range strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	}) {
		if len(tok) > 1 {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// compactString strips everything but letters and digits.
func compactString(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// EditDistance returns the Levenshtein distance between two strings. The
// resolver uses it to break ties between candidates at equal rank.
func EditDistance(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
