// Package nodepath converts hierarchy paths between their slice form and
// the slash-separated wire form used in tool arguments and trace output.
//
// A path is the sequence of child positions leading from the root of a
// snapshot to a node. The root itself is the empty path, rendered as "";
// "0/3/2" selects child 0 of the root, then child 3 of that node, then
// child 2 of that one.
package nodepath

import (
	"fmt"
	"strconv"
	"strings"
)

// Format renders a path as its wire form. The empty path (the root node)
// renders as "".
func Format(path []int) string {
	if len(path) == 0 {
		return ""
	}
	parts := make([]string, len(path))
	for i, step := range path {
		parts[i] = strconv.Itoa(step)
	}
	return strings.Join(parts, "/")
}

// Parse converts the wire form back into child positions. It accepts an
// optional leading slash so both "0/3/2" and "/0/3/2" parse to the same
// path. "" and "/" both mean the root.
func Parse(s string) ([]int, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "/")
	if s == "" {
		return []int{}, nil
	}
	parts := strings.Split(s, "/")
	path := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("path step %d: %q is not a child position", i, p)
		}
		if n < 0 {
			return nil, fmt.Errorf("path step %d: child position %d is negative", i, n)
		}
		path[i] = n
	}
	return path, nil
}
