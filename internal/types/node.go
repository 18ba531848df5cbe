package types

import (
	"strconv"
	"time"
)

// Node is one element of a snapshot, stored in the snapshot's arena.
// Index is the node's position in the arena and doubles as its document
// order (parents precede children, siblings run left to right). Parent
// is -1 for the root. Children holds arena indices in document order.
type Node struct {
	Index    int
	Parent   int
	Children []int
	Depth    int

	Text        string
	ContentDesc string
	ResourceID  string
	Class       string
	Package     string
	Bounds      Rect

	Clickable     bool
	Enabled       bool
	Focusable     bool
	Focused       bool
	Scrollable    bool
	Selected      bool
	Checkable     bool
	Checked       bool
	LongClickable bool
	Password      bool
}

// FieldValue renders any field as the string form it has in a dump.
// Flags render as "true"/"false", bounds as "[l,t][r,b]".
func (n *Node) FieldValue(kind FieldKind) string {
	switch kind {
	case FieldText:
		return n.Text
	case FieldContentDesc:
		return n.ContentDesc
	case FieldResourceID:
		return n.ResourceID
	case FieldClass:
		return n.Class
	case FieldPackage:
		return n.Package
	case FieldBounds:
		return n.Bounds.String()
	case FieldIndex:
		return strconv.Itoa(n.Index)
	default:
		if v, ok := n.Flag(kind); ok {
			return strconv.FormatBool(v)
		}
		return ""
	}
}

// Flag returns the value of a boolean state field. ok is false when the
// kind is not a flag.
func (n *Node) Flag(kind FieldKind) (value, ok bool) {
	switch kind {
	case FieldClickable:
		return n.Clickable, true
	case FieldEnabled:
		return n.Enabled, true
	case FieldFocusable:
		return n.Focusable, true
	case FieldFocused:
		return n.Focused, true
	case FieldScrollable:
		return n.Scrollable, true
	case FieldSelected:
		return n.Selected, true
	case FieldCheckable:
		return n.Checkable, true
	case FieldChecked:
		return n.Checked, true
	case FieldLongClickable:
		return n.LongClickable, true
	case FieldPassword:
		return n.Password, true
	default:
		return false, false
	}
}

// Hidden reports whether the element is present in the tree but not
// rendered, which dumps mark with all-zero bounds.
func (n *Node) Hidden() bool {
	return n.Bounds.IsZero()
}

// Snapshot is one immutable parsed hierarchy dump. Nodes is the arena in
// document order with the root at index 0. Snapshots are never mutated
// after ingestion, so they are safe to share across goroutines.
type Snapshot struct {
	ID          SnapshotID
	Device      string
	CapturedAt  time.Time
	ContentHash uint64
	RawSize     int
	Nodes       []Node
}

func (s *Snapshot) Len() int {
	return len(s.Nodes)
}

// At returns the node at an arena index, or nil when out of range.
func (s *Snapshot) At(idx int) *Node {
	if idx < 0 || idx >= len(s.Nodes) {
		return nil
	}
	return &s.Nodes[idx]
}

// Root returns the root node, or nil for an empty snapshot.
func (s *Snapshot) Root() *Node {
	return s.At(0)
}

// PathTo derives the path of the node at an arena index by walking the
// parent chain. Returns nil when the index is out of range.
func (s *Snapshot) PathTo(idx int) Path {
	if idx < 0 || idx >= len(s.Nodes) {
		return nil
	}
	var rev []int
	for cur := idx; s.Nodes[cur].Parent >= 0; cur = s.Nodes[cur].Parent {
		parent := &s.Nodes[s.Nodes[cur].Parent]
		pos := -1
		for i, child := range parent.Children {
			if child == cur {
				pos = i
				break
			}
		}
		if pos < 0 {
			return nil
		}
		rev = append(rev, pos)
	}
	path := make(Path, len(rev))
	for i, step := range rev {
		path[len(rev)-1-i] = step
	}
	return path
}

// AtPath walks a path from the root and returns the arena index it lands
// on. ok is false when any step is out of range.
func (s *Snapshot) AtPath(p Path) (int, bool) {
	if len(s.Nodes) == 0 {
		return 0, false
	}
	cur := 0
	for _, step := range p {
		children := s.Nodes[cur].Children
		if step < 0 || step >= len(children) {
			return 0, false
		}
		cur = children[step]
	}
	return cur, true
}

// SubtreeSize counts the nodes in the subtree rooted at idx, including
// the root itself.
func (s *Snapshot) SubtreeSize(idx int) int {
	if idx < 0 || idx >= len(s.Nodes) {
		return 0
	}
	count := 0
	stack := []int{idx}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		count++
		stack = append(stack, s.Nodes[cur].Children...)
	}
	return count
}
