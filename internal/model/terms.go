package model

// TermGroup holds the configured terms for one target group.
type TermGroup struct {
	MainTerms     []string `json:"main_terms"`
	Synonyms      []string `json:"synonyms"`
	ExcludedTerms []string `json:"excluded_terms"`
}

// SearchTerms is the platform-wide search configuration.
type SearchTerms struct {
	Brand       TermGroup `json:"brand"`
	Competitors TermGroup `json:"competitors"`
}

// Group returns the term group for g.
func (s SearchTerms) Group(g SearchGroup) TermGroup {
	if g == GroupCompetitors {
		return s.Competitors
	}
	return s.Brand
}
