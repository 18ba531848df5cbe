// Package resolver runs descriptor resolution: a chain of strategies
// tried in order against one snapshot until a candidate qualifies. The
// resolver owns everything individual strategies should not know about:
// candidate pre-filtering, ranking ties, path-ambiguity policy, the
// hidden-element fallback, and the decision trace.
package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/standardbeagle/refind/internal/analysis"
	"github.com/standardbeagle/refind/internal/cache"
	"github.com/standardbeagle/refind/internal/debug"
	apperrors "github.com/standardbeagle/refind/internal/errors"
	"github.com/standardbeagle/refind/internal/store"
	"github.com/standardbeagle/refind/internal/strategy"
	"github.com/standardbeagle/refind/internal/types"
)

// DefaultHiddenParentThreshold is the score a clickable ancestor must
// reach before it substitutes for a hidden target.
const DefaultHiddenParentThreshold = 0.7

// maxReportedCandidates caps how many candidates a result carries.
// PathAllMatches is exempt: returning every co-match is its entire
// point.
const maxReportedCandidates = 10

// prefilterDepth is how deep the metrics probe descends before taking
// subtrees wholesale. Dumps are wide rather than deep; three levels
// separates the major screen regions.
const prefilterDepth = 3

// Options tunes resolver behavior outside the strategy chain.
type Options struct {
	// HiddenParentThreshold qualifies clickable-ancestor substitution.
	// Zero selects DefaultHiddenParentThreshold.
	HiddenParentThreshold float64
}

// Resolver coordinates one store, one strategy catalog, and one
// analysis cache. Safe for concurrent use.
type Resolver struct {
	store    *store.Store
	catalog  *strategy.Catalog
	cache    *cache.AnalysisCache
	analyzer *analysis.Analyzer
	opts     Options
}

// New builds a resolver over an engine stack.
func New(st *store.Store, cat *strategy.Catalog, ch *cache.AnalysisCache, an *analysis.Analyzer, opts Options) *Resolver {
	if opts.HiddenParentThreshold <= 0 {
		opts.HiddenParentThreshold = DefaultHiddenParentThreshold
	}
	return &Resolver{store: st, catalog: cat, cache: ch, analyzer: an, opts: opts}
}

// Resolve runs the chain against one snapshot. The only errors are an
// unknown snapshot id and context cancellation; every other outcome,
// including "nothing matched", is a MatchResult whose trace explains
// what was tried and why it fell through. An empty chain selects the
// default ladder. ctx is checked between strategies only; individual
// strategies are CPU-bound and never block.
func (r *Resolver) Resolve(ctx context.Context, id types.SnapshotID, d *types.TargetDescriptor, chain []strategy.Spec) (*types.MatchResult, error) {
	started := time.Now()
	if ctx == nil {
		ctx = context.Background()
	}
	if d == nil {
		return nil, apperrors.NewInternalError("resolver", "nil target descriptor", nil)
	}

	snap, err := r.store.Get(id)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		chain = strategy.DefaultChain()
	}

	result := &types.MatchResult{SnapshotID: id, Outcome: types.OutcomeNoMatch}

	// A zero-rect descriptor marks an element that was invisible at
	// capture time; resolution retargets its tappable ancestor up front.
	target := d
	var probedHidden types.Path
	if target.HasBounds && target.Bounds.IsZero() && target.HasPath {
		probedHidden = target.Path
		target = r.substituteHidden(snap, target, result)
	}

	candidates := r.prefilter(snap, target)
	debug.LogResolver("resolve %s: %d of %d nodes after prefilter, chain length %d\n",
		id, len(candidates), snap.Len(), len(chain))

	var (
		ambiguousSeen bool
		bestScore     = -1.0
		bestRanked    []types.Candidate
	)

	for _, spec := range chain {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		out := r.runStrategy(snap, spec, target, candidates)
		result.Trace = append(result.Trace, out.step)
		if out.ambiguous {
			ambiguousSeen = true
		}
		if len(out.ranked) > 0 && out.step.Best > bestScore {
			bestScore = out.step.Best
			bestRanked = out.ranked
		}
		if out.winner == nil {
			continue
		}

		result.Outcome = types.OutcomeMatched
		result.Winner = out.winner
		result.Candidates = capCandidates(out.ranked, spec.Kind)
		break
	}

	if result.Winner == nil {
		if ambiguousSeen {
			result.Outcome = types.OutcomeAmbiguous
		}
		// Report the closest misses so callers can see what almost won.
		result.Candidates = capCandidates(bestRanked, strategy.Strict)
	}

	// The chain can legitimately land on an invisible node. The match
	// stands; substitution only changes what the caller ends up tapping.
	if result.Winner != nil && result.Winner.Bounds.IsZero() &&
		len(result.Winner.Path) > 0 && !result.Winner.Path.Equal(probedHidden) {
		r.substituteHiddenWinner(snap, d, result)
	}

	result.Elapsed = time.Since(started)
	return result, nil
}

// stepOutcome is everything one strategy attempt produced.
type stepOutcome struct {
	step      types.TraceStep
	ranked    []types.Candidate // every candidate that scored, best first
	qualified []types.Candidate // ranked prefix at or above the threshold
	winner    *types.Candidate
	ambiguous bool // a uniqueness-requiring strategy refused to guess
}

// runStrategy scores, ranks, and thresholds one strategy over the
// candidate set, applying the per-kind ambiguity policy.
func (r *Resolver) runStrategy(snap *types.Snapshot, spec strategy.Spec, d *types.TargetDescriptor, candidates []int) stepOutcome {
	out := stepOutcome{step: types.TraceStep{
		Strategy:  spec.Kind.String(),
		Threshold: spec.Threshold,
	}}

	if reason := strategy.Requires(spec.Kind, d); reason != "" {
		out.step.Reason = reason
		return out
	}

	for _, idx := range candidates {
		cand := r.catalog.Score(spec, snap, idx, d)
		if cand.Confidence > 0 {
			out.ranked = append(out.ranked, cand)
		}
	}
	out.step.Candidates = len(out.ranked)
	if len(out.ranked) == 0 {
		out.step.Reason = "no candidate scored"
		return out
	}

	rank(out.ranked, snap, d)
	out.step.Best = out.ranked[0].Confidence

	for _, cand := range out.ranked {
		if cand.Confidence < spec.Threshold {
			break // ranked descending
		}
		out.qualified = append(out.qualified, cand)
	}
	if len(out.qualified) == 0 {
		out.step.Reason = missReason(out.ranked[0], spec.Threshold)
		return out
	}

	switch spec.Kind {
	case strategy.PathDirect:
		if len(out.qualified) > 1 {
			out.ambiguous = true
			out.step.Reason = fmt.Sprintf("%d nodes co-qualify under the recorded path; direct requires exactly one", len(out.qualified))
			return out
		}
		out.winner = &out.qualified[0]

	case strategy.PathFirstIndex:
		// Earliest in document order wins; every extra co-match
		// discounts the reported confidence.
		first := out.qualified[0]
		for _, cand := range out.qualified[1:] {
			if cand.Index < first.Index {
				first = cand
			}
		}
		for i := 1; i < len(out.qualified); i++ {
			first.Confidence *= 0.9
		}
		out.winner = &first
		if n := len(out.qualified); n > 1 {
			out.step.Reason = fmt.Sprintf("%d nodes co-qualified; picked earliest in document order", n)
		}

	default:
		out.winner = &out.qualified[0]
	}

	out.step.Qualified = true
	if out.step.Reason == "" {
		out.step.Reason = "matched"
	}
	return out
}

// rank orders candidates best first: confidence, then document-order
// distance from the recorded index when the descriptor carries one,
// then depth, then document order. The full chain makes every
// resolution deterministic.
func rank(cands []types.Candidate, snap *types.Snapshot, d *types.TargetDescriptor) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if d.HasIndex {
			da, db := absInt(a.Index-d.Index), absInt(b.Index-d.Index)
			if da != db {
				return da < db
			}
		}
		if da, db := snap.At(a.Index).Depth, snap.At(b.Index).Depth; da != db {
			return da < db
		}
		return a.Index < b.Index
	})
}

// missReason explains the closest miss in terms of the fields that
// failed it.
func missReason(best types.Candidate, threshold float64) string {
	var failed []string
	for _, cmp := range best.Comparisons {
		if !cmp.Matched {
			failed = append(failed, cmp.Field.String())
		}
	}
	if len(failed) == 0 {
		return fmt.Sprintf("best %.2f below threshold %.2f", best.Confidence, threshold)
	}
	return fmt.Sprintf("best %.2f below threshold %.2f; mismatched: %s",
		best.Confidence, threshold, strings.Join(failed, ", "))
}

func capCandidates(cands []types.Candidate, kind strategy.Kind) []types.Candidate {
	if kind == strategy.PathAllMatches || len(cands) <= maxReportedCandidates {
		return cands
	}
	return cands[:maxReportedCandidates:maxReportedCandidates]
}

// prefilter drops subtrees whose cached metrics share no meaningful
// field kind with the descriptor: no node inside one can score above
// zero on any evidence the descriptor carries. Indices come back in
// document order.
func (r *Resolver) prefilter(snap *types.Snapshot, d *types.TargetDescriptor) []int {
	if snap.Len() == 0 {
		return nil
	}
	want := descriptorFieldSet(d)
	if len(want) == 0 {
		out := make([]int, snap.Len())
		for i := range out {
			out[i] = i
		}
		return out
	}

	var out []int
	var walk func(idx int, path types.Path, depth int)
	walk = func(idx int, path types.Path, depth int) {
		metrics, err := r.cache.GetOrCompute(snap.ID, path, func() (types.SubtreeMetrics, error) {
			return r.analyzer.Compute(snap, path)
		})
		if err == nil && !fieldsOverlap(metrics.Fields, want) {
			return
		}

		out = append(out, idx)
		node := snap.At(idx)
		if depth >= prefilterDepth {
			// Nodes are stored in document order, so the subtree under
			// idx is the contiguous range that follows it.
			for i, end := idx+1, idx+snap.SubtreeSize(idx); i < end; i++ {
				out = append(out, i)
			}
			return
		}
		for pos, child := range node.Children {
			walk(child, append(path.Clone(), pos), depth+1)
		}
	}
	walk(0, types.Path{}, 0)
	return out
}

// descriptorFieldSet lists the semantic field kinds the descriptor
// carries evidence for. Bounds and flags stay out: pruning on them
// would be too eager, and they never qualify a candidate alone.
func descriptorFieldSet(d *types.TargetDescriptor) map[types.FieldKind]bool {
	set := make(map[types.FieldKind]bool, 4)
	if strings.TrimSpace(d.Text) != "" {
		set[types.FieldText] = true
	}
	if strings.TrimSpace(d.ContentDesc) != "" {
		set[types.FieldContentDesc] = true
	}
	if d.ResourceID != "" {
		set[types.FieldResourceID] = true
	}
	if d.Class != "" {
		set[types.FieldClass] = true
	}
	return set
}

func fieldsOverlap(fields []types.FieldKind, want map[types.FieldKind]bool) bool {
	for _, f := range fields {
		if want[f] {
			return true
		}
	}
	return false
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
