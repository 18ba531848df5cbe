// Package strategy implements the closed catalog of matching strategies.
// Each strategy scores one candidate node against a target descriptor
// and reports the per-field comparisons behind the score; ranking,
// thresholds, and fallback order belong to the resolver.
//
// The catalog is a tagged union, not a plugin surface: adding a strategy
// means adding a Kind here, teaching the catalog to score it, and giving
// it a default threshold. Callers can neither inject scoring code nor
// observe matching order beyond what the trace reports.
package strategy

import (
	"fmt"
	"strings"

	"github.com/standardbeagle/refind/internal/types"
)

// Kind enumerates the catalog.
type Kind uint8

const (
	// Absolute requires verbatim bounds and path equality. Never part
	// of the default chain; callers opt into the brittleness.
	Absolute Kind = iota
	// Strict requires every meaningful descriptor field to match
	// exactly.
	Strict
	// Standard scores weighted exact matches over the semantic fields,
	// ignoring position entirely.
	Standard
	// Relaxed scores weighted similarity with a small bounds-proximity
	// term.
	Relaxed
	// Positionless is Standard with text compared by similarity and
	// dynamic resource IDs dropped.
	Positionless
	// PathFirstIndex walks the recorded path and takes the first
	// co-matching sibling in document order.
	PathFirstIndex
	// PathAllMatches walks the recorded path and keeps every
	// co-matching sibling, for batch callers.
	PathAllMatches
	// PathDirect walks the recorded path and fails closed on any
	// ambiguity.
	PathDirect
	// Custom scores the explicit field specs carried by the descriptor.
	Custom
	// Family matches structure rather than content: same class and
	// shape, leaf text free to differ.
	Family
	// Clone requires near-exact duplication of the semantic fields,
	// for finding repeated list items.
	Clone
)

var kindNames = map[Kind]string{
	Absolute:       "absolute",
	Strict:         "strict",
	Standard:       "standard",
	Relaxed:        "relaxed",
	Positionless:   "positionless",
	PathFirstIndex: "path-first-index",
	PathAllMatches: "path-all-matches",
	PathDirect:     "path-direct",
	Custom:         "custom",
	Family:         "family",
	Clone:          "clone",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind resolves a strategy name from configuration or tool
// arguments. Underscores are accepted in place of hyphens.
func ParseKind(name string) (Kind, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
	for k, n := range kindNames {
		if n == normalized {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown strategy %q", name)
}

// Kinds returns the whole catalog in declaration order.
func Kinds() []Kind {
	return []Kind{
		Absolute, Strict, Standard, Relaxed, Positionless,
		PathFirstIndex, PathAllMatches, PathDirect,
		Custom, Family, Clone,
	}
}

// PositionSensitive reports whether the strategy reads bounds or
// position at all.
func (k Kind) PositionSensitive() bool {
	switch k {
	case Absolute, Relaxed, PathFirstIndex, PathAllMatches, PathDirect:
		return true
	default:
		return false
	}
}

// DefaultThreshold is the qualification bar a candidate must reach for
// each strategy when configuration does not override it.
func DefaultThreshold(k Kind) float64 {
	switch k {
	case Absolute, Strict, PathDirect:
		return 1.0
	case Standard, Positionless, Custom:
		return 0.8
	case Relaxed:
		return 0.65
	case PathFirstIndex, PathAllMatches, Family:
		return 0.7
	case Clone:
		return 0.9
	default:
		return 1.0
	}
}

// Spec is one configured step of a resolution chain: a strategy plus its
// qualification threshold, and for Custom the explicit field specs.
type Spec struct {
	Kind      Kind
	Threshold float64
	Fields    []types.FieldSpec
}

// NewSpec builds a spec with the strategy's default threshold.
func NewSpec(k Kind) Spec {
	return Spec{Kind: k, Threshold: DefaultThreshold(k)}
}

// DefaultChain is the standard fallback ladder: exact identity first,
// then weighted matching, then similarity, then structure. Absolute is
// deliberately absent; callers opt into brittleness explicitly.
func DefaultChain() []Spec {
	return []Spec{
		NewSpec(Strict),
		NewSpec(Standard),
		NewSpec(Relaxed),
		NewSpec(PathFirstIndex),
	}
}
