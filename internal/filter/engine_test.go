package filter

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseTerm(t *testing.T) {
	tests := []struct {
		term string
		want Rule
	}{
		{term: "eleições", want: Rule{Kind: Include, Value: "eleições", Term: "eleições"}},
		{term: " -futebol ", want: Rule{Kind: Exclude, Value: "futebol", Term: " -futebol "}},
		{term: "/^acme\\b/", want: Rule{Kind: IncludeRe, Value: "^acme\\b", Term: "/^acme\\b/"}},
		{term: "-/promo(ção)?/", want: Rule{Kind: ExcludeRe, Value: "promo(ção)?", Term: "-/promo(ção)?/"}},
		{term: "/", want: Rule{Kind: Include, Value: "/", Term: "/"}},
	}
	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ParseTerm(tt.term)); diff != "" {
				t.Errorf("rule mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name  string
		item  Item
		terms []string
		want  bool
	}{
		{
			name: "no rules passes everything",
			item: Item{Title: "anything", Description: "whatever"},
			want: true,
		},
		{
			name:  "include word matches",
			item:  Item{Title: "Acme anuncia nova fábrica"},
			terms: []string{"acme"},
			want:  true,
		},
		{
			name:  "include word no match",
			item:  Item{Title: "Globex anuncia resultados"},
			terms: []string{"acme"},
			want:  false,
		},
		{
			name:  "match ignores case and accents",
			item:  Item{Title: "SAO PAULO recebe evento"},
			terms: []string{"São Paulo"},
			want:  true,
		},
		{
			name:  "substring inside another word does not match",
			item:  Item{Title: "Acmeville festival"},
			terms: []string{"acme"},
			want:  false,
		},
		{
			name:  "exclude blocks match",
			item:  Item{Title: "Acme patrocina time de futebol"},
			terms: []string{"acme", "-futebol"},
			want:  false,
		},
		{
			name:  "exclude only passes non-matching items",
			item:  Item{Title: "Eleições 2026", Description: "debate"},
			terms: []string{"-futebol"},
			want:  true,
		},
		{
			name:  "regex include",
			item:  Item{Title: "Acme S.A. lucra 10%"},
			terms: []string{"/acme s\\.a\\./"},
			want:  true,
		},
		{
			name:  "regex exclude wins over include",
			item:  Item{Title: "Acme em promoção"},
			terms: []string{"acme", "-/promo(ção|cao)/"},
			want:  false,
		},
		{
			name:  "invalid regex never matches",
			item:  Item{Title: "acme"},
			terms: []string{"/[/"},
			want:  false,
		},
		{
			name:  "description is searched",
			item:  Item{Title: "Resumo do dia", Description: "Acme e Globex em alta"},
			terms: []string{"globex"},
			want:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rules []Rule
			for _, term := range tt.terms {
				rules = append(rules, ParseTerm(term))
			}
			if got := Match(tt.item, rules); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchedTerms(t *testing.T) {
	item := Item{Title: "Acme e Globex disputam mercado", Description: "análise"}
	tests := []struct {
		name  string
		terms []string
		want  []string
	}{
		{name: "all matching terms", terms: []string{"Globex", "acme", "Initech"}, want: []string{"Globex", "acme"}},
		{name: "none", terms: []string{"Initech"}, want: nil},
		{name: "vetoed", terms: []string{"acme", "-analise"}, want: nil},
		{name: "no terms", terms: nil, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, MatchedTerms(item, tt.terms)); diff != "" {
				t.Errorf("matched terms mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidateTerm(t *testing.T) {
	tests := []struct {
		term    string
		wantErr bool
	}{
		{term: "acme"},
		{term: "/acme|globex/"},
		{term: "-/[a-z]+/"},
		{term: "/[/", wantErr: true},
		{term: "  ", wantErr: true},
		{term: "-", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			err := ValidateTerm(tt.term)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTerm(%q) error = %v, wantErr %v", tt.term, err, tt.wantErr)
			}
		})
	}
}

func TestFold(t *testing.T) {
	if got := Fold("Eleições em São Paulo"); got != "eleicoes em sao paulo" {
		t.Errorf("Fold() = %q", got)
	}
}
