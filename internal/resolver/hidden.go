package resolver

import (
	"fmt"
	"strings"

	"github.com/standardbeagle/refind/internal/debug"
	"github.com/standardbeagle/refind/internal/types"
)

// Hidden-target scoring weights. Text evidence carries most, then the
// description, clickability, and widget class, with a small boost for
// ancestors that stay near the target in document order.
const (
	hiddenTextWeight      = 0.4
	hiddenDescWeight      = 0.3
	hiddenClickableWeight = 0.2
	hiddenClassButton     = 0.3
	hiddenClassTextView   = 0.2
	hiddenClassLayout     = 0.1
	hiddenProximityBoost  = 0.1
	hiddenProximityWindow = 20
)

// containerClassSuffixes never substitute for a hidden target; tapping
// a scroll container is never what the caller meant.
var containerClassSuffixes = []string{"ScrollView", "ListView", "RecyclerView"}

// substituteHidden retargets resolution from an invisible element to
// its nearest qualifying clickable ancestor, recording the substitution
// in the trace. When nothing qualifies the original descriptor stands.
func (r *Resolver) substituteHidden(snap *types.Snapshot, d *types.TargetDescriptor, result *types.MatchResult) *types.TargetDescriptor {
	cand, considered, ok := r.hiddenParent(snap, d.Path, d)
	step := types.TraceStep{
		Strategy:   "hidden-parent",
		Threshold:  r.opts.HiddenParentThreshold,
		Candidates: considered,
	}
	if !ok {
		if considered > 0 {
			step.Best = cand.Confidence
		}
		step.Reason = "hidden target, no clickable ancestor qualified"
		result.Trace = append(result.Trace, step)
		return d
	}

	step.Best = cand.Confidence
	step.Qualified = true
	step.Reason = fmt.Sprintf("hidden target, substituted clickable ancestor at path %s", cand.Path)
	result.Trace = append(result.Trace, step)
	debug.LogResolver("hidden target at %s, retargeting ancestor %s\n", d.Path, cand.Path)

	sub := types.DescriptorFromNode(snap, cand.Index)
	sub.Fields = d.Fields
	return sub
}

// substituteHiddenWinner swaps a zero-size winner for its nearest
// qualifying clickable ancestor after the chain already matched.
func (r *Resolver) substituteHiddenWinner(snap *types.Snapshot, d *types.TargetDescriptor, result *types.MatchResult) {
	cand, considered, ok := r.hiddenParent(snap, result.Winner.Path, d)
	step := types.TraceStep{
		Strategy:   "hidden-parent",
		Threshold:  r.opts.HiddenParentThreshold,
		Candidates: considered,
	}
	if !ok {
		if considered > 0 {
			step.Best = cand.Confidence
		}
		step.Reason = "matched node is invisible; no clickable ancestor qualified"
		result.Trace = append(result.Trace, step)
		return
	}

	step.Best = cand.Confidence
	step.Qualified = true
	step.Reason = fmt.Sprintf("matched node is invisible; substituted clickable ancestor at path %s", cand.Path)
	result.Trace = append(result.Trace, step)
	result.Winner = &cand
}

// hiddenParent walks ancestor prefixes of path, nearest first, and
// returns the first ancestor scoring at or above the threshold. When
// none qualifies it returns the best-scoring ancestor with ok false so
// the caller can still trace how close the walk came.
func (r *Resolver) hiddenParent(snap *types.Snapshot, path types.Path, d *types.TargetDescriptor) (best types.Candidate, considered int, ok bool) {
	targetIdx, haveTarget := snap.AtPath(path)
	best.Confidence = -1

	for prefix := len(path) - 1; prefix >= 0; prefix-- {
		idx, found := snap.AtPath(path[:prefix])
		if !found {
			continue
		}
		node := snap.At(idx)
		// A substitute has to be tappable, so zero-size ancestors are
		// out, and so are scroll containers.
		if node.Hidden() || isContainerClass(node.Class) {
			continue
		}

		considered++
		score, comps := r.scoreHiddenParent(node, targetIdx, haveTarget, d)
		cand := types.Candidate{
			Index:       idx,
			Path:        snap.PathTo(idx),
			Strategy:    "hidden-parent",
			Confidence:  score,
			Bounds:      node.Bounds,
			Class:       node.Class,
			Text:        node.Text,
			Comparisons: comps,
		}
		if cand.Confidence > 1 {
			cand.Confidence = 1
		}

		if cand.Confidence >= r.opts.HiddenParentThreshold {
			return cand, considered, true
		}
		if cand.Confidence > best.Confidence {
			best = cand
		}
	}
	return best, considered, false
}

// scoreHiddenParent rates one ancestor as a tap substitute for the
// descriptor's element.
func (r *Resolver) scoreHiddenParent(node *types.Node, targetIdx int, haveTarget bool, d *types.TargetDescriptor) (float64, []types.FieldComparison) {
	score := 0.0
	var comps []types.FieldComparison

	if want := strings.TrimSpace(d.Text); want != "" {
		matched := containsFold(node.Text, want)
		if matched {
			score += hiddenTextWeight
		}
		comps = append(comps, types.FieldComparison{
			Field: types.FieldText, Expected: d.Text, Actual: node.Text,
			Matched: matched, Weight: hiddenTextWeight, Note: "contains",
		})
	}
	if want := strings.TrimSpace(d.ContentDesc); want != "" {
		matched := containsFold(node.ContentDesc, want)
		if matched {
			score += hiddenDescWeight
		}
		comps = append(comps, types.FieldComparison{
			Field: types.FieldContentDesc, Expected: d.ContentDesc, Actual: node.ContentDesc,
			Matched: matched, Weight: hiddenDescWeight, Note: "contains",
		})
	}
	if node.Clickable {
		score += hiddenClickableWeight
	}
	score += classAffinity(node)
	if haveTarget && absInt(node.Index-targetIdx) <= hiddenProximityWindow {
		score += hiddenProximityBoost
	}
	return score, comps
}

// classAffinity favors widget classes that normally receive taps.
func classAffinity(node *types.Node) float64 {
	switch {
	case strings.HasSuffix(node.Class, "Button"):
		return hiddenClassButton
	case strings.HasSuffix(node.Class, "TextView") && node.Clickable:
		return hiddenClassTextView
	case strings.HasSuffix(node.Class, "Layout") && node.Clickable:
		return hiddenClassLayout
	}
	return 0
}

func isContainerClass(class string) bool {
	for _, suffix := range containerClassSuffixes {
		if strings.HasSuffix(class, suffix) {
			return true
		}
	}
	return false
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
