package monitor

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/model"
)

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name  string
		group model.TermGroup
		want  string
	}{
		{
			name:  "empty group",
			group: model.TermGroup{},
			want:  "",
		},
		{
			name:  "only exclusions",
			group: model.TermGroup{ExcludedTerms: []string{"spam"}},
			want:  "",
		},
		{
			name:  "main terms and synonyms",
			group: model.TermGroup{MainTerms: []string{"Acme"}, Synonyms: []string{"Acme Corp"}},
			want:  `("Acme" OR "Acme Corp")`,
		},
		{
			name: "with exclusions",
			group: model.TermGroup{
				MainTerms:     []string{"Acme"},
				ExcludedTerms: []string{"cartoon", "coyote"},
			},
			want: `("Acme") -"cartoon" -"coyote"`,
		},
		{
			name: "duplicates, blanks and quotes removed",
			group: model.TermGroup{
				MainTerms: []string{" Acme ", "", `"acme"`},
				Synonyms:  []string{"ACME", "Road Runner"},
			},
			want: `("Acme" OR "Road Runner")`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, BuildQuery(tt.group)); diff != "" {
				t.Errorf("BuildQuery() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestQueries(t *testing.T) {
	terms := model.SearchTerms{
		Brand:       model.TermGroup{MainTerms: []string{"Acme"}},
		Competitors: model.TermGroup{},
	}
	want := map[model.SearchGroup]string{
		model.GroupBrand:       `("Acme")`,
		model.GroupCompetitors: "",
	}
	if diff := cmp.Diff(want, Queries(terms)); diff != "" {
		t.Errorf("Queries() mismatch (-want +got):\n%s", diff)
	}
}
