package types

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
)

// boundsPattern matches the "[left,top][right,bottom]" attribute format
// emitted by uiautomator dumps. Coordinates may be negative for elements
// scrolled partially off screen.
var boundsPattern = regexp.MustCompile(`^\[(-?\d+),(-?\d+)\]\[(-?\d+),(-?\d+)\]$`)

// Rect is a screen-space bounding rectangle in pixels. The zero value is
// how invisible or unrendered elements report themselves, see IsZero.
type Rect struct {
	Left   int
	Top    int
	Right  int
	Bottom int
}

// ParseRect parses the "[l,t][r,b]" bounds format.
func ParseRect(s string) (Rect, error) {
	m := boundsPattern.FindStringSubmatch(s)
	if m == nil {
		return Rect{}, fmt.Errorf("bounds %q: want format [l,t][r,b]", s)
	}
	vals := make([]int, 4)
	for i, part := range m[1:] {
		n, err := strconv.Atoi(part)
		if err != nil {
			return Rect{}, fmt.Errorf("bounds %q: %w", s, err)
		}
		vals[i] = n
	}
	return Rect{Left: vals[0], Top: vals[1], Right: vals[2], Bottom: vals[3]}, nil
}

func (r Rect) String() string {
	return fmt.Sprintf("[%d,%d][%d,%d]", r.Left, r.Top, r.Right, r.Bottom)
}

// IsZero reports whether the rectangle is the all-zero rect, the marker
// dumps use for elements that are present in the tree but not rendered.
func (r Rect) IsZero() bool {
	return r.Left == 0 && r.Top == 0 && r.Right == 0 && r.Bottom == 0
}

func (r Rect) Width() int  { return r.Right - r.Left }
func (r Rect) Height() int { return r.Bottom - r.Top }
func (r Rect) Area() int   { return r.Width() * r.Height() }

func (r Rect) CenterX() int { return (r.Left + r.Right) / 2 }
func (r Rect) CenterY() int { return (r.Top + r.Bottom) / 2 }

// Contains reports whether the point (x, y) falls inside the rectangle.
// The right and bottom edges are exclusive, matching how the platform
// hit-tests views.
func (r Rect) Contains(x, y int) bool {
	return x >= r.Left && x < r.Right && y >= r.Top && y < r.Bottom
}

// CenterDistance is the euclidean distance between the centers of two
// rectangles, used for bounds-proximity scoring.
func (r Rect) CenterDistance(other Rect) float64 {
	dx := float64(r.CenterX() - other.CenterX())
	dy := float64(r.CenterY() - other.CenterY())
	return math.Sqrt(dx*dx + dy*dy)
}

// MarshalJSON renders the rect in the same "[l,t][r,b]" form the dumps
// use, so traces and tool output stay copy-pasteable.
func (r Rect) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Rect) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRect(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
