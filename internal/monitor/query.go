package monitor

import (
	"strings"

	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/model"
)

// BuildQuery turns a term group into a search query of the form
// ("main" OR "synonym") -"excluded". It returns an empty string when the
// group has no main terms or synonyms.
func BuildQuery(g model.TermGroup) string {
	include := uniqueTerms(append(append([]string{}, g.MainTerms...), g.Synonyms...))
	if len(include) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteByte('(')
	for i, t := range include {
		if i > 0 {
			b.WriteString(" OR ")
		}
		b.WriteString(quote(t))
	}
	b.WriteByte(')')

	for _, t := range uniqueTerms(g.ExcludedTerms) {
		b.WriteString(" -")
		b.WriteString(quote(t))
	}
	return b.String()
}

// Queries returns the query of every group, keyed by group.
func Queries(terms model.SearchTerms) map[model.SearchGroup]string {
	out := make(map[model.SearchGroup]string, len(model.Groups))
	for _, g := range model.Groups {
		out[g] = BuildQuery(terms.Group(g))
	}
	return out
}

func uniqueTerms(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	var out []string
	for _, t := range terms {
		t = strings.TrimSpace(strings.ReplaceAll(t, `"`, ""))
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

func quote(t string) string {
	return `"` + t + `"`
}
