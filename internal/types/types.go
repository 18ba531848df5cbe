// Package types defines the shared data model: snapshots and their node
// arenas, target descriptors, field classification verdicts, and the
// match results the resolver produces. Everything here is a plain value
// type so results can be compared, cached, and serialized without
// surprises.
package types

import (
	"encoding/json"
	"fmt"

	"github.com/standardbeagle/refind/internal/encoding"
	"github.com/standardbeagle/refind/pkg/nodepath"
)

// SnapshotID identifies one ingested hierarchy dump. IDs are unique per
// ingestion, so re-ingesting byte-identical markup yields a fresh ID.
type SnapshotID string

// FormatSnapshotID builds the canonical "snap_" form from the mixed
// 64-bit content hash and ingest sequence. Base-63 keeps the suffix to
// eleven characters at most.
func FormatSnapshotID(mixed uint64) SnapshotID {
	return SnapshotID("snap_" + encoding.Base63Encode(mixed))
}

// Path addresses a node as the sequence of child positions from the
// root. The empty path is the root itself. Paths serialize as their
// slash-joined wire form ("0/3/2").
type Path []int

// ParsePath parses the wire form of a path.
func ParsePath(s string) (Path, error) {
	steps, err := nodepath.Parse(s)
	if err != nil {
		return nil, err
	}
	return Path(steps), nil
}

func (p Path) String() string {
	return nodepath.Format([]int(p))
}

func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy. Paths built incrementally during
// tree walks share backing arrays, so anything retained must be cloned.
func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	out := make(Path, len(p))
	copy(out, p)
	return out
}

func (p Path) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Path) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePath(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// FieldKind enumerates the element fields a strategy can compare. The
// names mirror the dump attribute names.
type FieldKind uint8

const (
	FieldText FieldKind = iota
	FieldContentDesc
	FieldResourceID
	FieldClass
	FieldPackage
	FieldBounds
	FieldIndex
	FieldClickable
	FieldEnabled
	FieldFocusable
	FieldFocused
	FieldScrollable
	FieldSelected
	FieldCheckable
	FieldChecked
	FieldLongClickable
	FieldPassword
)

var fieldKindNames = map[FieldKind]string{
	FieldText:          "text",
	FieldContentDesc:   "content-desc",
	FieldResourceID:    "resource-id",
	FieldClass:         "class",
	FieldPackage:       "package",
	FieldBounds:        "bounds",
	FieldIndex:         "index",
	FieldClickable:     "clickable",
	FieldEnabled:       "enabled",
	FieldFocusable:     "focusable",
	FieldFocused:       "focused",
	FieldScrollable:    "scrollable",
	FieldSelected:      "selected",
	FieldCheckable:     "checkable",
	FieldChecked:       "checked",
	FieldLongClickable: "long-clickable",
	FieldPassword:      "password",
}

func (k FieldKind) String() string {
	if name, ok := fieldKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("field(%d)", int(k))
}

// IsFlag reports whether the field is one of the boolean state flags.
func (k FieldKind) IsFlag() bool {
	return k >= FieldClickable
}

func (k FieldKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *FieldKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseFieldKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseFieldKind resolves a field name as it appears in dump attributes
// or custom strategy configuration.
func ParseFieldKind(name string) (FieldKind, error) {
	for k, n := range fieldKindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown field %q", name)
}

// CompareMode selects how a custom strategy field spec compares the
// descriptor value against a candidate value.
type CompareMode uint8

const (
	// CompareExact requires value equality.
	CompareExact CompareMode = iota
	// CompareBothNonEmpty passes when both sides carry a non-blank
	// value, regardless of content. Used by family matching where leaf
	// text is expected to differ.
	CompareBothNonEmpty
	// CompareConsistentWithParent compares the candidate's parent value
	// against the parent value recorded in the descriptor.
	CompareConsistentWithParent
)

var compareModeNames = map[CompareMode]string{
	CompareExact:                "exact",
	CompareBothNonEmpty:         "both-non-empty",
	CompareConsistentWithParent: "consistent-with-parent",
}

func (m CompareMode) String() string {
	if name, ok := compareModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseCompareMode resolves a compare mode name from configuration.
func ParseCompareMode(name string) (CompareMode, error) {
	for m, n := range compareModeNames {
		if n == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown compare mode %q", name)
}

// Verdict is the classifier's judgement of one field value: whether it
// discriminates between elements, and whether it may only be used as
// weak (fuzzy) evidence.
type Verdict struct {
	Meaningful bool   `json:"meaningful"`
	Fuzzy      bool   `json:"fuzzy,omitempty"`
	Reason     string `json:"reason"`
}

// Outcome is the terminal disposition of a resolution.
type Outcome string

const (
	OutcomeMatched   Outcome = "matched"
	OutcomeNoMatch   Outcome = "no-match"
	OutcomeAmbiguous Outcome = "ambiguous"
)
