package strategy

import (
	"fmt"
	"math"
	"strings"

	"github.com/standardbeagle/refind/internal/classifier"
	"github.com/standardbeagle/refind/internal/similarity"
	"github.com/standardbeagle/refind/internal/types"
)

// Weighted-field weights shared by the standard and positionless
// strategies. Normalized over the fields the descriptor actually
// carries, so a descriptor with only text can still reach 1.0.
const (
	weightText        = 0.5
	weightContentDesc = 0.3
	weightClass       = 0.15
	weightResourceID  = 0.6
)

// Relaxed uses the same semantic weights but swaps the resource ID for a
// small bounds-proximity term and never normalizes: missing evidence
// costs score instead of shrinking the denominator.
const weightBoundsProximity = 0.05

// Catalog scores candidates for every strategy kind. It is stateless
// apart from the shared classifier and similarity scorer, so one catalog
// serves all resolutions concurrently.
type Catalog struct {
	cls           *classifier.Classifier
	sim           *similarity.Scorer
	disableBounds bool
}

// NewCatalog builds the catalog. disableBounds removes the proximity
// term from relaxed scoring, for callers replaying captures across
// devices with different screen geometry.
func NewCatalog(cls *classifier.Classifier, sim *similarity.Scorer, disableBounds bool) *Catalog {
	return &Catalog{cls: cls, sim: sim, disableBounds: disableBounds}
}

// Requires reports why a strategy cannot run against a descriptor at
// all, or "" when it can. The resolver records the reason in the trace
// instead of scoring an unrunnable strategy.
func Requires(k Kind, d *types.TargetDescriptor) string {
	switch k {
	case Absolute:
		if !d.HasBounds || !d.HasPath {
			return "absolute needs recorded bounds and path"
		}
	case PathFirstIndex, PathAllMatches, PathDirect:
		if !d.HasPath {
			return "descriptor has no recorded path"
		}
	case Custom:
		if len(d.Fields) == 0 {
			return "descriptor carries no field specs"
		}
	}
	return ""
}

// Score evaluates one candidate node under one strategy spec. The
// returned candidate always carries the per-field comparisons the score
// came from; confidence is in [0,1].
func (c *Catalog) Score(spec Spec, snap *types.Snapshot, idx int, d *types.TargetDescriptor) types.Candidate {
	node := snap.At(idx)
	cand := types.Candidate{
		Index:    idx,
		Path:     snap.PathTo(idx),
		Strategy: spec.Kind.String(),
		Bounds:   node.Bounds,
		Class:    node.Class,
		Text:     node.Text,
	}

	switch spec.Kind {
	case Absolute:
		c.scoreAbsolute(&cand, node, d)
	case Strict:
		c.scoreStrict(&cand, node, d)
	case Standard:
		c.scoreWeighted(&cand, node, d, false)
	case Positionless:
		c.scoreWeighted(&cand, node, d, true)
	case Relaxed:
		c.scoreRelaxed(&cand, snap, node, d)
	case PathFirstIndex, PathAllMatches, PathDirect:
		c.scorePath(&cand, snap, node, d)
	case Custom:
		c.scoreCustom(&cand, snap, node, d, d.Fields)
	case Family:
		c.scoreCustom(&cand, snap, node, d, FamilyFields())
	case Clone:
		c.scoreCustom(&cand, snap, node, d, CloneFields())
	}

	if cand.Confidence < 0 {
		cand.Confidence = 0
	} else if cand.Confidence > 1 {
		cand.Confidence = 1
	}
	return cand
}

// scoreAbsolute is all-or-nothing verbatim identity: same bounds, same
// path.
func (c *Catalog) scoreAbsolute(cand *types.Candidate, node *types.Node, d *types.TargetDescriptor) {
	boundsMatch := node.Bounds == d.Bounds
	pathMatch := cand.Path.Equal(d.Path)

	cand.Comparisons = append(cand.Comparisons,
		types.FieldComparison{
			Field:    types.FieldBounds,
			Expected: d.Bounds.String(),
			Actual:   node.Bounds.String(),
			Matched:  boundsMatch,
		},
		types.FieldComparison{
			Field:    types.FieldIndex,
			Expected: d.Path.String(),
			Actual:   cand.Path.String(),
			Matched:  pathMatch,
			Note:     "recorded path",
		},
	)
	if boundsMatch && pathMatch {
		cand.Confidence = 1
	}
}

// scoreStrict requires exact equality on every meaningful descriptor
// field. Bounds and index are not in the field set, so pure movement
// never breaks a strict match.
func (c *Catalog) scoreStrict(cand *types.Candidate, node *types.Node, d *types.TargetDescriptor) {
	required, matched := 0, 0

	check := func(kind types.FieldKind, expected, actual string) {
		verdict := c.cls.IsMeaningful(kind, expected, classifier.Context{})
		if !verdict.Meaningful || verdict.Fuzzy {
			return
		}
		required++
		ok := expected == actual
		if ok {
			matched++
		}
		cand.Comparisons = append(cand.Comparisons, types.FieldComparison{
			Field:    kind,
			Expected: expected,
			Actual:   actual,
			Matched:  ok,
		})
	}

	check(types.FieldResourceID, d.ResourceID, node.ResourceID)
	check(types.FieldClass, d.Class, node.Class)
	check(types.FieldText, d.Text, node.Text)
	check(types.FieldContentDesc, d.ContentDesc, node.ContentDesc)

	if required > 0 {
		cand.Confidence = float64(matched) / float64(required)
	}
}

// scoreWeighted implements standard and positionless matching: a
// weighted sum over the meaningful semantic fields, normalized by the
// weight actually present so partial descriptors are not penalized for
// what they never claimed. similarity switches text comparison from
// equality to the similarity ladder.
func (c *Catalog) scoreWeighted(cand *types.Candidate, node *types.Node, d *types.TargetDescriptor, useSimilarity bool) {
	total, scored := 0.0, 0.0

	evaluate := func(kind types.FieldKind, expected, actual string, weight float64) {
		verdict := c.cls.IsMeaningful(kind, expected, classifier.Context{})
		if !verdict.Meaningful || verdict.Fuzzy {
			return
		}
		total += weight

		match := 0.0
		note := ""
		if useSimilarity && (kind == types.FieldText || kind == types.FieldContentDesc) {
			match, note = c.sim.Score(expected, actual)
		} else if expected == actual {
			match = 1
		}
		scored += weight * match

		cand.Comparisons = append(cand.Comparisons, types.FieldComparison{
			Field:    kind,
			Expected: expected,
			Actual:   actual,
			Matched:  match > 0,
			Weight:   weight,
			Note:     note,
		})
	}

	evaluate(types.FieldResourceID, d.ResourceID, node.ResourceID, weightResourceID)
	evaluate(types.FieldText, d.Text, node.Text, weightText)
	evaluate(types.FieldContentDesc, d.ContentDesc, node.ContentDesc, weightContentDesc)
	evaluate(types.FieldClass, d.Class, node.Class, weightClass)

	if total > 0 {
		cand.Confidence = scored / total
	}
}

// scoreRelaxed is the last semantic resort. Text and description go
// through the similarity ladder, class compares exactly, and bounds add
// a small proximity term. The sum is never normalized, so a thin
// descriptor cannot reach high confidence.
func (c *Catalog) scoreRelaxed(cand *types.Candidate, snap *types.Snapshot, node *types.Node, d *types.TargetDescriptor) {
	score := 0.0

	if c.cls.IsMeaningful(types.FieldText, d.Text, classifier.Context{}).Meaningful {
		sim, rung := c.sim.Score(d.Text, node.Text)
		score += weightText * sim
		cand.Comparisons = append(cand.Comparisons, types.FieldComparison{
			Field: types.FieldText, Expected: d.Text, Actual: node.Text,
			Matched: sim > 0, Weight: weightText, Note: rung,
		})
	}
	if c.cls.IsMeaningful(types.FieldContentDesc, d.ContentDesc, classifier.Context{}).Meaningful {
		sim, rung := c.sim.Score(d.ContentDesc, node.ContentDesc)
		score += weightContentDesc * sim
		cand.Comparisons = append(cand.Comparisons, types.FieldComparison{
			Field: types.FieldContentDesc, Expected: d.ContentDesc, Actual: node.ContentDesc,
			Matched: sim > 0, Weight: weightContentDesc, Note: rung,
		})
	}
	if d.Class != "" {
		match := 0.0
		if node.Class == d.Class {
			match = 1
		}
		score += weightClass * match
		cand.Comparisons = append(cand.Comparisons, types.FieldComparison{
			Field: types.FieldClass, Expected: d.Class, Actual: node.Class,
			Matched: match > 0, Weight: weightClass,
		})
	}
	if prox, ok := c.boundsProximity(snap, node, d); ok {
		score += weightBoundsProximity * prox
		cand.Comparisons = append(cand.Comparisons, types.FieldComparison{
			Field: types.FieldBounds, Expected: d.Bounds.String(), Actual: node.Bounds.String(),
			Matched: prox > 0, Weight: weightBoundsProximity,
			Note: fmt.Sprintf("proximity %.2f", prox),
		})
	}

	cand.Confidence = score
}

// boundsProximity maps center distance to [0,1], scaled by the root
// diagonal so the term is resolution independent.
func (c *Catalog) boundsProximity(snap *types.Snapshot, node *types.Node, d *types.TargetDescriptor) (float64, bool) {
	if c.disableBounds || !d.HasBounds || d.Bounds.IsZero() || node.Bounds.IsZero() {
		return 0, false
	}
	root := snap.Root()
	if root == nil || root.Bounds.IsZero() {
		return 0, false
	}
	diag := math.Hypot(float64(root.Bounds.Width()), float64(root.Bounds.Height()))
	if diag <= 0 {
		return 0, false
	}
	dist := node.Bounds.CenterDistance(d.Bounds)
	prox := 1 - dist/diag
	if prox < 0 {
		prox = 0
	}
	return prox, true
}

// scorePath qualifies candidates structurally: the candidate must hang
// off the node the recorded parent path reaches, and must agree with the
// descriptor's class and meaningful text. The recorded final child index
// is not trusted here; siblings co-match, and the resolver decides what
// ambiguity means for each path variant.
func (c *Catalog) scorePath(cand *types.Candidate, snap *types.Snapshot, node *types.Node, d *types.TargetDescriptor) {
	if !d.HasPath {
		return
	}

	if len(d.Path) == 0 {
		// Recorded target was the root; only the root can match.
		if node.Parent == -1 {
			cand.Confidence = 1
		}
		return
	}

	parentIdx, ok := snap.AtPath(d.Path[:len(d.Path)-1])
	if !ok || node.Parent != parentIdx {
		return
	}

	match := true
	check := func(kind types.FieldKind, expected, actual string, meaningful bool) {
		if !meaningful {
			return
		}
		ok := expected == actual
		if !ok {
			match = false
		}
		cand.Comparisons = append(cand.Comparisons, types.FieldComparison{
			Field: kind, Expected: expected, Actual: actual, Matched: ok,
		})
	}

	check(types.FieldClass, d.Class, node.Class, d.Class != "")
	check(types.FieldText, d.Text, node.Text,
		c.cls.IsMeaningful(types.FieldText, d.Text, classifier.Context{}).Meaningful)
	check(types.FieldContentDesc, d.ContentDesc, node.ContentDesc,
		c.cls.IsMeaningful(types.FieldContentDesc, d.ContentDesc, classifier.Context{}).Meaningful)

	if match {
		cand.Confidence = 1
	}
}

// scoreCustom evaluates explicit field specs. Weights default to 1, a
// failed required spec zeroes the candidate, and the score normalizes
// over the specs that were actually evaluable.
func (c *Catalog) scoreCustom(cand *types.Candidate, snap *types.Snapshot, node *types.Node, d *types.TargetDescriptor, fields []types.FieldSpec) {
	total, scored := 0.0, 0.0
	requiredFailed := false

	for _, spec := range fields {
		weight := spec.Weight
		if weight <= 0 {
			weight = 1
		}

		pass, skip, cmp := c.evaluateSpec(spec, snap, node, d)
		if skip {
			if cmp.Note != "" {
				cand.Comparisons = append(cand.Comparisons, cmp)
			}
			continue
		}

		total += weight
		if pass {
			scored += weight
		} else if spec.Required {
			requiredFailed = true
		}
		cmp.Weight = weight
		cand.Comparisons = append(cand.Comparisons, cmp)
	}

	if requiredFailed || total == 0 {
		return
	}
	cand.Confidence = scored / total
}

// evaluateSpec runs one field spec. skip means the spec could not be
// evaluated against this descriptor and does not count either way.
func (c *Catalog) evaluateSpec(spec types.FieldSpec, snap *types.Snapshot, node *types.Node, d *types.TargetDescriptor) (pass, skip bool, cmp types.FieldComparison) {
	cmp = types.FieldComparison{Field: spec.Field, Note: spec.Mode.String()}

	switch spec.Mode {
	case types.CompareBothNonEmpty:
		expected, _ := d.FieldValue(spec.Field)
		if strings.TrimSpace(expected) == "" {
			// The capture never had this evidence to begin with.
			cmp.Note = "descriptor lacks field"
			return false, true, cmp
		}
		actual := node.FieldValue(spec.Field)
		cmp.Expected = expected
		cmp.Actual = actual
		pass = strings.TrimSpace(actual) != ""
		cmp.Matched = pass
		return pass, false, cmp

	case types.CompareConsistentWithParent:
		if spec.Field != types.FieldClass {
			cmp.Note = "parent consistency is only defined for class"
			return false, true, cmp
		}
		if d.ParentClass == "" {
			cmp.Note = "no parent context recorded"
			return false, true, cmp
		}
		parent := snap.At(node.Parent)
		actual := ""
		if parent != nil {
			actual = parent.Class
		}
		cmp.Expected = d.ParentClass
		cmp.Actual = actual
		pass = actual == d.ParentClass
		cmp.Matched = pass
		return pass, false, cmp

	default: // CompareExact
		expected, present := d.FieldValue(spec.Field)
		if !present && presenceGated(spec.Field) {
			cmp.Note = "descriptor lacks field"
			return false, true, cmp
		}
		actual := node.FieldValue(spec.Field)
		cmp.Expected = expected
		cmp.Actual = actual
		pass = expected == actual
		cmp.Matched = pass
		return pass, false, cmp
	}
}

// presenceGated reports whether absence in the descriptor means "not
// specified" rather than "empty". String fields compare their empty
// values; bounds, index, and flags skip when unset.
func presenceGated(kind types.FieldKind) bool {
	switch kind {
	case types.FieldText, types.FieldContentDesc, types.FieldResourceID,
		types.FieldClass, types.FieldPackage:
		return false
	default:
		return true
	}
}
