// Package analysis computes per-subtree identifiability metrics. The
// resolver uses them to prune candidate sets and callers use them to
// decide which strategy a node deserves before anything moves.
//
// Everything here is a pure function of snapshot content. The same
// (snapshot, path) pair always produces byte-identical metrics, which is
// what makes the analysis cache safe without any TTL.
package analysis

import (
	"sort"

	"github.com/standardbeagle/refind/internal/classifier"
	apperrors "github.com/standardbeagle/refind/internal/errors"
	"github.com/standardbeagle/refind/internal/strategy"
	"github.com/standardbeagle/refind/internal/types"
)

// Weights for the uniqueness estimate. Resource IDs separate elements
// best, class names worst.
const (
	uniqueWeightResourceID  = 0.4
	uniqueWeightContentDesc = 0.3
	uniqueWeightText        = 0.2
	uniqueWeightClass       = 0.1
)

// Weights for the stability estimate. Text changes with locale and
// state, so it counts least.
const (
	stabilityWeightResourceID  = 0.5
	stabilityWeightContentDesc = 0.3
	stabilityWeightText        = 0.2
)

// Analyzer computes subtree metrics using the shared field significance
// policy.
type Analyzer struct {
	cls *classifier.Classifier
}

// New creates an analyzer on top of a classifier.
func New(cls *classifier.Classifier) *Analyzer {
	return &Analyzer{cls: cls}
}

// Compute builds the metrics for the subtree rooted at path. Returns a
// not-found error when the path does not traverse the snapshot.
func (a *Analyzer) Compute(snap *types.Snapshot, path types.Path) (types.SubtreeMetrics, error) {
	rootIdx, ok := snap.AtPath(path)
	if !ok {
		return types.SubtreeMetrics{}, apperrors.NewNotFoundError("path", path.String())
	}

	fields, count := a.subtreeFields(snap, rootIdx)

	root := snap.At(rootIdx)
	uniqueness := a.uniqueness(snap, root)
	stability := a.stability(root)

	return types.SubtreeMetrics{
		Fields:     fields,
		Uniqueness: uniqueness,
		Stability:  stability,
		Confidence: (uniqueness + stability) / 2,
		Suggested:  a.suggest(root).String(),
		Nodes:      count,
	}, nil
}

// subtreeFields walks the subtree collecting every field kind that is
// meaningful on at least one node, in FieldKind order so equal subtrees
// produce equal slices.
func (a *Analyzer) subtreeFields(snap *types.Snapshot, rootIdx int) ([]types.FieldKind, int) {
	present := make(map[types.FieldKind]bool)
	count := 0

	stack := []int{rootIdx}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		count++

		node := snap.At(idx)
		stack = append(stack, node.Children...)

		for _, kind := range []types.FieldKind{
			types.FieldText, types.FieldContentDesc, types.FieldResourceID, types.FieldClass,
		} {
			if present[kind] {
				continue
			}
			if a.cls.IsMeaningful(kind, node.FieldValue(kind), classifier.Context{}).Meaningful {
				present[kind] = true
			}
		}
		for kind := types.FieldClickable; kind <= types.FieldPassword; kind++ {
			if present[kind] {
				continue
			}
			if a.cls.IsMeaningful(kind, node.FieldValue(kind), classifier.Context{}).Meaningful {
				present[kind] = true
			}
		}
		if !present[types.FieldBounds] && !node.Bounds.IsZero() {
			present[types.FieldBounds] = true
		}
	}

	fields := make([]types.FieldKind, 0, len(present))
	for kind := range present {
		fields = append(fields, kind)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })
	return fields, count
}

// uniqueness weighs each meaningful field of the node by how rarely its
// value occurs across the whole snapshot. A value occurring n times
// contributes weight/n.
func (a *Analyzer) uniqueness(snap *types.Snapshot, node *types.Node) float64 {
	score := 0.0
	for _, f := range []struct {
		kind   types.FieldKind
		weight float64
	}{
		{types.FieldResourceID, uniqueWeightResourceID},
		{types.FieldContentDesc, uniqueWeightContentDesc},
		{types.FieldText, uniqueWeightText},
		{types.FieldClass, uniqueWeightClass},
	} {
		value := node.FieldValue(f.kind)
		if !a.cls.IsMeaningful(f.kind, value, classifier.Context{}).Meaningful {
			continue
		}
		score += f.weight / float64(occurrences(snap, f.kind, value))
	}
	return score
}

// occurrences counts nodes carrying the same value for a field. Always
// at least 1 because the node itself is in the snapshot.
func occurrences(snap *types.Snapshot, kind types.FieldKind, value string) int {
	count := 0
	for i := range snap.Nodes {
		if snap.Nodes[i].FieldValue(kind) == value {
			count++
		}
	}
	if count < 1 {
		count = 1
	}
	return count
}

// stability weighs the fields by how likely they survive a re-render.
// The resource ID contribution is scaled by its trust score.
func (a *Analyzer) stability(node *types.Node) float64 {
	score := 0.0
	if a.cls.IsMeaningful(types.FieldResourceID, node.ResourceID, classifier.Context{}).Meaningful {
		trust, _ := classifier.IDStability(node.ResourceID)
		score += stabilityWeightResourceID * trust
	}
	if a.cls.IsMeaningful(types.FieldContentDesc, node.ContentDesc, classifier.Context{}).Meaningful {
		score += stabilityWeightContentDesc
	}
	if a.cls.IsMeaningful(types.FieldText, node.Text, classifier.Context{}).Meaningful {
		score += stabilityWeightText
	}
	return score
}

// suggest names the weakest strategy expected to re-find the node on its
// own: strict needs a trustworthy resource ID, standard needs some text
// evidence, relaxed needs at least a class, and past that only the
// recorded path can help.
func (a *Analyzer) suggest(node *types.Node) strategy.Kind {
	rid := a.cls.IsMeaningful(types.FieldResourceID, node.ResourceID, classifier.Context{})
	if rid.Meaningful && !rid.Fuzzy {
		return strategy.Strict
	}
	text := a.cls.IsMeaningful(types.FieldText, node.Text, classifier.Context{})
	desc := a.cls.IsMeaningful(types.FieldContentDesc, node.ContentDesc, classifier.Context{})
	if text.Meaningful || desc.Meaningful || rid.Meaningful {
		return strategy.Standard
	}
	if a.cls.IsMeaningful(types.FieldClass, node.Class, classifier.Context{}).Meaningful {
		return strategy.Relaxed
	}
	return strategy.PathFirstIndex
}
