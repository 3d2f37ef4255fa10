// Package filter matches feed items against watched terms.
package filter

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Kind is the kind of a matching rule.
type Kind string

// Rule kinds.
const (
	Include   Kind = "include"
	Exclude   Kind = "exclude"
	IncludeRe Kind = "include_re"
	ExcludeRe Kind = "exclude_re"
)

// Rule is one parsed term.
type Rule struct {
	Kind  Kind
	Value string
	Term  string
}

// Item is a feed entry to be matched.
type Item struct {
	Title       string
	Description string
}

// ParseTerm turns a watched term into a rule. A leading '-' excludes and a
// value wrapped in slashes is a regular expression, so "-/^promo/" is an
// exclusion pattern.
func ParseTerm(term string) Rule {
	t := strings.TrimSpace(term)
	r := Rule{Kind: Include, Term: term}
	if strings.HasPrefix(t, "-") {
		r.Kind = Exclude
		t = strings.TrimSpace(t[1:])
	}
	if len(t) >= 2 && strings.HasPrefix(t, "/") && strings.HasSuffix(t, "/") {
		t = t[1 : len(t)-1]
		if r.Kind == Exclude {
			r.Kind = ExcludeRe
		} else {
			r.Kind = IncludeRe
		}
	}
	r.Value = t
	return r
}

// ValidateTerm checks that a term is non-empty and, for patterns, compiles.
func ValidateTerm(term string) error {
	r := ParseTerm(term)
	if r.Value == "" {
		return fmt.Errorf("empty term")
	}
	if r.Kind == IncludeRe || r.Kind == ExcludeRe {
		if _, err := regexp.Compile("(?i)" + r.Value); err != nil {
			return fmt.Errorf("invalid regex: %w", err)
		}
	}
	return nil
}

// Match checks whether an item passes rules. Include rules use OR logic and
// exclude rules use AND logic. Without rules every item passes.
func Match(item Item, rules []Rule) bool {
	if len(rules) == 0 {
		return true
	}
	_, ok := evaluate(item, rules)
	return ok
}

// MatchedTerms returns the include terms found in item, or nil when no
// include term matches or an exclude term does.
func MatchedTerms(item Item, terms []string) []string {
	rules := make([]Rule, 0, len(terms))
	for _, t := range terms {
		rules = append(rules, ParseTerm(t))
	}
	matched, ok := evaluate(item, rules)
	if !ok {
		return nil
	}
	return matched
}

func evaluate(item Item, rules []Rule) ([]string, bool) {
	raw := item.Title + " " + item.Description
	text := Fold(raw)
	hasIncludes := false
	var matched []string
	for _, r := range rules {
		if r.Value == "" {
			continue
		}
		switch r.Kind {
		case Include, IncludeRe:
			hasIncludes = true
			if matches(raw, text, r) {
				matched = append(matched, r.Term)
			}
		case Exclude, ExcludeRe:
			if matches(raw, text, r) {
				return nil, false
			}
		}
	}
	if hasIncludes && len(matched) == 0 {
		return nil, false
	}
	return matched, true
}

// matches applies plain terms to the folded text and patterns to the raw text.
func matches(raw, folded string, r Rule) bool {
	switch r.Kind {
	case Include, Exclude:
		return containsWord(folded, Fold(r.Value))
	case IncludeRe, ExcludeRe:
		re, err := regexp.Compile("(?i)" + r.Value)
		if err != nil {
			return false
		}
		return re.MatchString(raw)
	}
	return false
}

// containsWord reports whether term occurs in text on word boundaries.
func containsWord(text, term string) bool {
	if term == "" {
		return false
	}
	for i := 0; ; {
		j := strings.Index(text[i:], term)
		if j < 0 {
			return false
		}
		start, end := i+j, i+j+len(term)
		before, _ := utf8.DecodeLastRuneInString(text[:start])
		after, _ := utf8.DecodeRuneInString(text[end:])
		if !wordRune(before) && !wordRune(after) {
			return true
		}
		i = start + 1
	}
}

// wordRune reports whether r continues a word. utf8.RuneError marks the
// ends of the text.
func wordRune(r rune) bool {
	return r != utf8.RuneError && (unicode.IsLetter(r) || unicode.IsDigit(r))
}

// Fold lowercases s and strips diacritics, so "São Paulo" folds to "sao paulo".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}
