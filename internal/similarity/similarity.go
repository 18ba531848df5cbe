// Package similarity scores how alike two text values are. Strategies
// that tolerate drift (relaxed, positionless, hidden-parent scoring) go
// through the ladder here instead of raw equality.
//
// The ladder is ordered from cheap to expensive and from strong to weak
// evidence: exact equality, containment, stemmed token overlap, then
// fuzzy string distance with a floor. Each rung returns both the score
// and a label naming the rung, so traces can say why two strings were
// considered close.
package similarity

import (
	"strings"
	"unicode"

	"github.com/hbollon/go-edlib"
	"github.com/surgebase/porter2"
)

// DefaultFuzzyFloor is the minimum Jaro-Winkler similarity that still
// counts as evidence. Below it two strings are just different.
const DefaultFuzzyFloor = 0.80

const (
	scoreExact    = 1.0
	scoreContains = 0.8
)

// Scorer runs the similarity ladder with a configured fuzzy floor.
type Scorer struct {
	fuzzyFloor float64
}

// NewScorer creates a scorer. A floor outside (0,1] falls back to
// DefaultFuzzyFloor.
func NewScorer(fuzzyFloor float64) *Scorer {
	if fuzzyFloor <= 0 || fuzzyFloor > 1 {
		fuzzyFloor = DefaultFuzzyFloor
	}
	return &Scorer{fuzzyFloor: fuzzyFloor}
}

// Score runs the full ladder and returns the best rung's score together
// with the rung label: "exact", "contains", "token-overlap", "fuzzy", or
// "distinct". Empty input on either side scores zero.
func (s *Scorer) Score(expected, actual string) (float64, string) {
	if strings.TrimSpace(expected) == "" || strings.TrimSpace(actual) == "" {
		return 0, "empty"
	}
	if expected == actual {
		return scoreExact, "exact"
	}

	le := strings.ToLower(expected)
	la := strings.ToLower(actual)
	if le == la {
		return scoreExact, "exact"
	}

	// Containment needs at least two characters so single letters do
	// not latch onto everything.
	if len([]rune(le)) >= 2 && len([]rune(la)) >= 2 &&
		(strings.Contains(la, le) || strings.Contains(le, la)) {
		return scoreContains, "contains"
	}

	if overlap := tokenOverlap(Tokens(expected), Tokens(actual)); overlap > 0 {
		return overlap, "token-overlap"
	}

	if f := s.Fuzzy(le, la); f >= s.fuzzyFloor {
		return f, "fuzzy"
	}
	return 0, "distinct"
}

// Fuzzy returns the raw Jaro-Winkler similarity of two strings, without
// applying the floor. Identical strings score 1, empty input scores 0.
func (s *Scorer) Fuzzy(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	sim, err := edlib.StringsSimilarity(a, b, edlib.JaroWinkler)
	if err != nil {
		return 0
	}
	return float64(sim)
}

// Tokens splits a string on whitespace, punctuation, and camelCase
// boundaries, lowercases the words, and stems them. "Login Button" and
// "loginButtons" produce the same tokens.
func Tokens(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '_' || r == '-' || r == '/' || r == '.' || r == ':' || r == ','
	})

	var out []string
	for _, field := range fields {
		for _, word := range splitCamel(field) {
			word = strings.ToLower(word)
			if word == "" {
				continue
			}
			out = append(out, porter2.Stem(word))
		}
	}
	return out
}

// splitCamel breaks camelCase and handles acronym runs: "HTTPServer"
// splits into "HTTP", "Server".
func splitCamel(s string) []string {
	runes := []rune(s)
	if len(runes) == 0 {
		return nil
	}

	var words []string
	start := 0
	for i := 1; i < len(runes); i++ {
		prev, cur := runes[i-1], runes[i]
		boundary := unicode.IsUpper(cur) && (unicode.IsLower(prev) || unicode.IsDigit(prev))
		if !boundary && i+1 < len(runes) {
			boundary = unicode.IsUpper(prev) && unicode.IsUpper(cur) && unicode.IsLower(runes[i+1])
		}
		if boundary {
			words = append(words, string(runes[start:i]))
			start = i
		}
	}
	return append(words, string(runes[start:]))
}

// tokenOverlap is the Jaccard index of two token multisets collapsed to
// sets. Zero when either side is empty.
func tokenOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, tok := range a {
		set[tok] = struct{}{}
	}

	intersection := 0
	union := len(set)
	seen := make(map[string]struct{}, len(b))
	for _, tok := range b {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		if _, ok := set[tok]; ok {
			intersection++
		} else {
			union++
		}
	}
	return float64(intersection) / float64(union)
}
