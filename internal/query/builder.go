// Package query derives search query strings from a lead's fields.
package query

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/leadenrich-cli/internal/model"
)

var titleCaser = cases.Title(language.English, cases.NoLower)

// Builder derives prioritized search queries from a lead. It is a pure
// function of the lead's fields.
type Builder struct {
	// Template, when non-empty, replaces the default query ladder with a
	// single query built from {name} and {email} placeholders.
	Template string
}

// Build returns the ordered query ladder for a lead. Name-based queries come
// first; they tend to rank profile pages better than email queries. Returns
// an empty Query when the lead has neither name nor email.
func (b Builder) Build(lead model.Lead) model.Query {
	name := NormalizeName(lead.Name)
	email := strings.TrimSpace(strings.ToLower(lead.Email))

	if b.Template != "" {
		if name == "" && email == "" {
			return model.Query{}
		}
		term := strings.NewReplacer("{name}", name, "{email}", email).Replace(b.Template)
		term = strings.Join(strings.Fields(term), " ")
		if term == "" {
			return model.Query{}
		}
		return model.Query{Terms: []string{term}}
	}

	var terms []string
	if name != "" {
		terms = append(terms, `"`+name+`" instagram`)
	}
	if local := emailLocalPart(email); local != "" {
		terms = append(terms, `"`+local+`" instagram`)
	}
	if email != "" {
		terms = append(terms, `"`+email+`" instagram`)
	}

	return model.Query{Terms: terms}
}

// NormalizeName collapses whitespace and title-cases a lead name, so that
// "  jane   DOE " and "Jane Doe" build the same query.
func NormalizeName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	joined := strings.ToLower(strings.Join(fields, " "))
	return titleCaser.String(joined)
}

// emailLocalPart returns the part before '@', or "" when it would not add
// signal over the full email (no '@', or an empty/1-char local part).
func emailLocalPart(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 1 {
		return ""
	}
	return email[:at]
}
