package types

// TargetDescriptor captures the identity of an element at selection
// time. It is the query side of resolution: a later snapshot is searched
// for the element this descriptor describes. String fields left empty
// are absent; optional scalars carry explicit presence markers because
// zero is a legal value for all of them.
type TargetDescriptor struct {
	Text        string
	ContentDesc string
	ResourceID  string
	Class       string
	Package     string

	// ParentClass is the class of the element's parent at capture time,
	// used by parent-consistency comparisons.
	ParentClass string

	Bounds    Rect
	HasBounds bool

	// Index is the element's document-order arena index at capture
	// time. Strategies use it only for tie-breaking, never matching.
	Index    int
	HasIndex bool

	// Path is the child-position path recorded at capture time. Path
	// strategies and the absolute strategy require it.
	Path    Path
	HasPath bool

	Clickable  *bool
	Enabled    *bool
	Focusable  *bool
	Scrollable *bool
	Selected   *bool

	// Fields carries explicit per-field specs for the custom strategy.
	// Empty for every other strategy.
	Fields []FieldSpec
}

// FieldSpec is one field requirement of a custom strategy: which field,
// how to compare it, how much it contributes, and whether failing it
// disqualifies the candidate outright.
type FieldSpec struct {
	Field    FieldKind   `json:"field"`
	Weight   float64     `json:"weight,omitempty"`
	Required bool        `json:"required,omitempty"`
	Mode     CompareMode `json:"mode,omitempty"`
}

// DescriptorFromNode records a descriptor from a node in a snapshot,
// copying every field the way a capture tool would at selection time.
func DescriptorFromNode(snap *Snapshot, idx int) *TargetDescriptor {
	node := snap.At(idx)
	if node == nil {
		return nil
	}
	d := &TargetDescriptor{
		Text:        node.Text,
		ContentDesc: node.ContentDesc,
		ResourceID:  node.ResourceID,
		Class:       node.Class,
		Package:     node.Package,
		Bounds:      node.Bounds,
		HasBounds:   true,
		Index:       node.Index,
		HasIndex:    true,
		Path:        snap.PathTo(idx),
		HasPath:     true,
	}
	if parent := snap.At(node.Parent); parent != nil {
		d.ParentClass = parent.Class
	}
	for _, f := range []struct {
		dst **bool
		val bool
	}{
		{&d.Clickable, node.Clickable},
		{&d.Enabled, node.Enabled},
		{&d.Focusable, node.Focusable},
		{&d.Scrollable, node.Scrollable},
		{&d.Selected, node.Selected},
	} {
		v := f.val
		*f.dst = &v
	}
	return d
}

// FieldValue renders a descriptor field the same way Node.FieldValue
// renders node fields, so comparisons see both sides in one format.
// ok is false when the descriptor does not carry the field.
func (d *TargetDescriptor) FieldValue(kind FieldKind) (string, bool) {
	switch kind {
	case FieldText:
		return d.Text, d.Text != ""
	case FieldContentDesc:
		return d.ContentDesc, d.ContentDesc != ""
	case FieldResourceID:
		return d.ResourceID, d.ResourceID != ""
	case FieldClass:
		return d.Class, d.Class != ""
	case FieldPackage:
		return d.Package, d.Package != ""
	case FieldBounds:
		return d.Bounds.String(), d.HasBounds
	case FieldIndex:
		if !d.HasIndex {
			return "", false
		}
		return (&Node{Index: d.Index}).FieldValue(FieldIndex), true
	case FieldClickable:
		return boolValue(d.Clickable)
	case FieldEnabled:
		return boolValue(d.Enabled)
	case FieldFocusable:
		return boolValue(d.Focusable)
	case FieldScrollable:
		return boolValue(d.Scrollable)
	case FieldSelected:
		return boolValue(d.Selected)
	default:
		return "", false
	}
}

func boolValue(p *bool) (string, bool) {
	if p == nil {
		return "", false
	}
	if *p {
		return "true", true
	}
	return "false", true
}
