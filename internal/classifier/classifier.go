// Package classifier decides which field values actually discriminate
// between elements. Strategies never look at raw values directly; they
// ask the classifier first, so the policy for empty text, untrustworthy
// resource IDs, and default flags lives in exactly one place.
//
// The classifier is pure: same inputs, same verdicts, no tunables beyond
// the configured ID exclusion patterns and trust floor.
package classifier

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/standardbeagle/refind/internal/types"
)

// DefaultTrustFloor is the stability score below which a resource ID may
// only be used as weak evidence.
const DefaultTrustFloor = 0.6

// Context tells the classifier what kind of strategy is asking. Bounds
// and index are meaningful only to position-sensitive strategies, and
// flags sitting at their platform default only count when the strategy
// explicitly asks for negative evidence.
type Context struct {
	PositionSensitive bool
	RequireNegative   bool
}

// Classifier applies the field significance policy.
type Classifier struct {
	excludeIDs []string
	trustFloor float64
}

// New creates a classifier. excludeIDs holds glob patterns for resource
// IDs to ignore entirely. A trustFloor outside (0,1] falls back to
// DefaultTrustFloor.
func New(excludeIDs []string, trustFloor float64) *Classifier {
	if trustFloor <= 0 || trustFloor > 1 {
		trustFloor = DefaultTrustFloor
	}
	return &Classifier{excludeIDs: excludeIDs, trustFloor: trustFloor}
}

// IsMeaningful judges one field value. The value is the dump string form
// of the field: flags are "true"/"false", bounds are "[l,t][r,b]".
func (c *Classifier) IsMeaningful(field types.FieldKind, value string, ctx Context) types.Verdict {
	switch field {
	case types.FieldText, types.FieldContentDesc:
		if strings.TrimSpace(value) == "" {
			return types.Verdict{Reason: "empty or whitespace-only"}
		}
		return types.Verdict{Meaningful: true, Reason: "non-empty"}

	case types.FieldResourceID:
		return c.classifyResourceID(value)

	case types.FieldClass, types.FieldPackage:
		if value == "" {
			return types.Verdict{Reason: "empty"}
		}
		// Class never identifies an element alone but always narrows
		// the candidate set.
		return types.Verdict{Meaningful: true, Reason: "structural identity"}

	case types.FieldBounds:
		if !ctx.PositionSensitive {
			return types.Verdict{Reason: "position-independent strategy ignores bounds"}
		}
		if value == "" || value == (types.Rect{}).String() {
			return types.Verdict{Reason: "zero bounds mark an invisible element"}
		}
		return types.Verdict{Meaningful: true, Reason: "position-sensitive strategy"}

	case types.FieldIndex:
		if !ctx.PositionSensitive {
			return types.Verdict{Reason: "position-independent strategy ignores index"}
		}
		return types.Verdict{Meaningful: true, Reason: "position-sensitive strategy"}

	default:
		if field.IsFlag() {
			return classifyFlag(field, value, ctx)
		}
		return types.Verdict{Reason: fmt.Sprintf("unclassified field %s", field)}
	}
}

// classifyFlag treats flags resting at their platform default as noise:
// nearly every node is enabled and not focused, so those values separate
// nothing. A deviating value, or any value when the strategy demands
// negative evidence, is meaningful.
func classifyFlag(field types.FieldKind, value string, ctx Context) types.Verdict {
	def := "false"
	if field == types.FieldEnabled {
		def = "true"
	}
	if value != def {
		return types.Verdict{Meaningful: true, Reason: "deviates from platform default"}
	}
	if ctx.RequireNegative {
		return types.Verdict{Meaningful: true, Reason: "negative evidence requested"}
	}
	return types.Verdict{Reason: "platform default value"}
}

// classifyResourceID combines the exclusion patterns with the stability
// heuristics. IDs scoring below the trust floor stay usable, but only as
// fuzzy evidence: exact strategies must not anchor on them.
func (c *Classifier) classifyResourceID(id string) types.Verdict {
	if id == "" {
		return types.Verdict{Reason: "empty"}
	}
	if pattern, ok := c.excluded(id); ok {
		return types.Verdict{Reason: fmt.Sprintf("matches exclusion pattern %q", pattern)}
	}
	score, reason := IDStability(id)
	if score < c.trustFloor {
		return types.Verdict{Meaningful: true, Fuzzy: true, Reason: reason}
	}
	return types.Verdict{Meaningful: true, Reason: reason}
}

// ExcludedID reports whether a resource ID matches one of the configured
// exclusion patterns.
func (c *Classifier) ExcludedID(id string) bool {
	_, ok := c.excluded(id)
	return ok
}

func (c *Classifier) excluded(id string) (string, bool) {
	// Patterns are tried against the full ID, the bare name, and the
	// package prefix, so users can write "tmp_*" or "com.ads.**"
	// instead of spelling out the whole "pkg:id/name" form.
	candidates := []string{id, idName(id), idPackage(id)}
	for _, pattern := range c.excludeIDs {
		for _, candidate := range candidates {
			if candidate == "" {
				continue
			}
			if ok, err := doublestar.Match(pattern, candidate); err == nil && ok {
				return pattern, true
			}
		}
	}
	return "", false
}

var (
	digitRunPattern      = regexp.MustCompile(`[0-9]{10,}`)
	uuidPattern          = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	numericSuffixPattern = regexp.MustCompile(`_[0-9]{3,}$`)
)

// semanticKeywords mark IDs named after what the element is for. Such
// names survive refactors far better than layout-derived ones.
var semanticKeywords = []string{
	"btn", "button", "text", "image", "icon", "title", "desc",
	"header", "footer", "nav", "menu", "tab", "list", "item",
	"card", "avatar", "name", "info", "detail", "action",
}

// genericNames are structural filler that repeats across screens.
var genericNames = []string{
	"container", "wrapper", "layout", "frame", "root",
	"content", "main", "holder", "parent", "child",
}

// Stability score bands. An ID lands in exactly one band; obfuscation
// and dynamism are checked before naming quality because they poison an
// ID regardless of how semantic it looks.
const (
	scoreObfuscated = 0.2
	scoreDynamic    = 0.3
	scoreGeneric    = 0.6
	scorePlain      = 0.8
	scoreSemantic   = 1.0
)

// IDStability estimates how likely a resource ID is to survive a rebuild
// of the app. The score is one of the fixed bands; reason names the
// heuristic that fired.
func IDStability(id string) (float64, string) {
	name := idName(id)
	if name == "" {
		return scoreObfuscated, "empty name"
	}

	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "obfuscated") || strings.HasPrefix(lower, "obf_"):
		return scoreObfuscated, "obfuscation marker"
	case strings.HasPrefix(name, "0_") || strings.HasPrefix(name, "1_"):
		return scoreObfuscated, "generated numeric prefix"
	case isHashLike(name):
		return scoreObfuscated, "hash-like name"
	case isMinified(name):
		return scoreObfuscated, "minified name"
	case digitRunPattern.MatchString(name):
		return scoreDynamic, "long digit run"
	case uuidPattern.MatchString(name):
		return scoreDynamic, "uuid-shaped"
	case numericSuffixPattern.MatchString(name):
		return scoreDynamic, "numeric suffix"
	}

	for _, kw := range semanticKeywords {
		if strings.Contains(lower, kw) {
			return scoreSemantic, fmt.Sprintf("semantic keyword %q", kw)
		}
	}
	for _, g := range genericNames {
		if strings.Contains(lower, g) {
			return scoreGeneric, fmt.Sprintf("generic name %q", g)
		}
	}
	return scorePlain, "plain name"
}

// idName strips the "package:id/" prefix, leaving the developer-chosen
// name the heuristics apply to.
func idName(id string) string {
	if i := strings.LastIndex(id, "/"); i >= 0 {
		return id[i+1:]
	}
	return id
}

// idPackage returns the application package portion of a fully
// qualified resource ID, or "" when the ID has no package prefix.
func idPackage(id string) string {
	if i := strings.Index(id, ":"); i >= 0 {
		return id[:i]
	}
	return ""
}

// isHashLike recognizes long single-case alphanumeric blobs. Camel case
// or underscores mean a human named it.
func isHashLike(name string) bool {
	if len(name) < 16 {
		return false
	}
	hasUpper, hasLower := false, false
	for _, r := range name {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
		default:
			return false
		}
	}
	return !(hasUpper && hasLower)
}

// isMinified recognizes one or two letter lowercase names, the shape
// ProGuard and friends leave behind.
func isMinified(name string) bool {
	if len(name) > 2 {
		return false
	}
	for _, r := range name {
		if !unicode.IsLower(r) {
			return false
		}
	}
	return len(name) > 0
}
