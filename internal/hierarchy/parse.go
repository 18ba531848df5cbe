// Package hierarchy parses UI hierarchy dumps into the flat node arena
// the rest of the engine works on.
//
// The parser is deliberately loose about the markup dialect: it requires
// nested elements with key="value" attributes and recognizes the well
// known attribute names, but does not care what the elements are called.
// A top-level wrapper element named "hierarchy" (what uiautomator emits)
// is skipped; everything else becomes a node.
package hierarchy

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	apperrors "github.com/standardbeagle/refind/internal/errors"
	"github.com/standardbeagle/refind/internal/types"
)

var (
	errNoNodes       = errors.New("document contains no element nodes")
	errMultipleRoots = errors.New("document contains more than one root element")
)

// Parse turns raw dump markup into a node arena in document order. The
// root lands at index 0, parents precede children, and each node's
// Children slice preserves sibling order. All failures come back as
// *errors.ParseError with the markup position when known.
func Parse(raw []byte) ([]types.Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	var nodes []types.Node
	var stack []int

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			line, col := dec.InputPos()
			return nil, apperrors.NewParseError(line, col, "", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "hierarchy" && len(stack) == 0 {
				// uiautomator wrapper, carries only rotation metadata
				continue
			}
			if len(stack) == 0 && len(nodes) > 0 {
				line, col := dec.InputPos()
				return nil, apperrors.NewParseError(line, col, t.Name.Local, errMultipleRoots)
			}
			idx := len(nodes)
			node, err := elementNode(t, idx)
			if err != nil {
				line, col := dec.InputPos()
				return nil, apperrors.NewParseError(line, col, t.Name.Local, err)
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				node.Parent = parent
				node.Depth = nodes[parent].Depth + 1
				nodes[parent].Children = append(nodes[parent].Children, idx)
			} else {
				node.Parent = -1
			}
			nodes = append(nodes, node)
			stack = append(stack, idx)

		case xml.EndElement:
			if t.Name.Local == "hierarchy" && len(stack) == 0 {
				continue
			}
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if len(nodes) == 0 {
		return nil, apperrors.NewParseError(0, 0, "", errNoNodes)
	}
	return nodes, nil
}

// elementNode builds one arena node from a start element. Flags default
// to false except enabled, which the platform treats as true unless the
// dump says otherwise. Unknown attributes are ignored so dumps from
// newer tool versions still parse.
func elementNode(el xml.StartElement, idx int) (types.Node, error) {
	node := types.Node{Index: idx, Enabled: true}

	for _, attr := range el.Attr {
		switch attr.Name.Local {
		case "text":
			node.Text = attr.Value
		case "content-desc":
			node.ContentDesc = attr.Value
		case "resource-id":
			node.ResourceID = attr.Value
		case "class":
			node.Class = attr.Value
		case "package":
			node.Package = attr.Value
		case "bounds":
			rect, err := types.ParseRect(attr.Value)
			if err != nil {
				return node, err
			}
			node.Bounds = rect
		case "clickable":
			if err := setFlag(&node.Clickable, attr); err != nil {
				return node, err
			}
		case "enabled":
			if err := setFlag(&node.Enabled, attr); err != nil {
				return node, err
			}
		case "focusable":
			if err := setFlag(&node.Focusable, attr); err != nil {
				return node, err
			}
		case "focused":
			if err := setFlag(&node.Focused, attr); err != nil {
				return node, err
			}
		case "scrollable":
			if err := setFlag(&node.Scrollable, attr); err != nil {
				return node, err
			}
		case "selected":
			if err := setFlag(&node.Selected, attr); err != nil {
				return node, err
			}
		case "checkable":
			if err := setFlag(&node.Checkable, attr); err != nil {
				return node, err
			}
		case "checked":
			if err := setFlag(&node.Checked, attr); err != nil {
				return node, err
			}
		case "long-clickable":
			if err := setFlag(&node.LongClickable, attr); err != nil {
				return node, err
			}
		case "password":
			if err := setFlag(&node.Password, attr); err != nil {
				return node, err
			}
		}
	}
	return node, nil
}

func setFlag(dst *bool, attr xml.Attr) error {
	switch attr.Value {
	case "true":
		*dst = true
	case "false":
		*dst = false
	default:
		return fmt.Errorf("attribute %s: invalid boolean %q", attr.Name.Local, attr.Value)
	}
	return nil
}
