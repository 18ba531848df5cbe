package hierarchy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/standardbeagle/refind/internal/errors"
	"github.com/standardbeagle/refind/internal/types"
	"github.com/standardbeagle/refind/testhelpers"
)

func TestParseLoginScreen(t *testing.T) {
	dump := testhelpers.Dump(testhelpers.NodeSpec{
		Class:  "android.widget.FrameLayout",
		Bounds: "[0,0][1080,1920]",
		Children: []testhelpers.NodeSpec{{
			Class:  "android.widget.LinearLayout",
			Bounds: "[0,100][1080,500]",
			Children: []testhelpers.NodeSpec{
				{Class: "android.widget.Button", Text: "登录", ResourceID: "com.app:id/btn_login", Clickable: true, Bounds: "[40,120][540,220]"},
				{Class: "android.widget.Button", Text: "取消", ResourceID: "com.app:id/btn_cancel", Clickable: true, Bounds: "[540,120][1040,220]"},
			},
		}},
	})

	nodes, err := Parse([]byte(dump))
	require.NoError(t, err)
	require.Len(t, nodes, 4)

	root := nodes[0]
	assert.Equal(t, -1, root.Parent)
	assert.Equal(t, 0, root.Depth)
	assert.Equal(t, "android.widget.FrameLayout", root.Class)
	assert.Equal(t, []int{1}, root.Children)

	container := nodes[1]
	assert.Equal(t, 0, container.Parent)
	assert.Equal(t, 1, container.Depth)
	assert.Equal(t, []int{2, 3}, container.Children)

	login := nodes[2]
	assert.Equal(t, 1, login.Parent)
	assert.Equal(t, 2, login.Depth)
	assert.Equal(t, "登录", login.Text)
	assert.Equal(t, "com.app:id/btn_login", login.ResourceID)
	assert.True(t, login.Clickable)
	assert.True(t, login.Enabled)
	assert.Equal(t, types.Rect{Left: 40, Top: 120, Right: 540, Bottom: 220}, login.Bounds)

	cancel := nodes[3]
	assert.Equal(t, "取消", cancel.Text)
	assert.Empty(t, cancel.Children)
}

func TestParseDocumentOrder(t *testing.T) {
	// Document order must match arena order: parents before children,
	// siblings left to right.
	dump := testhelpers.Dump(testhelpers.NodeSpec{
		Class: "root",
		Children: []testhelpers.NodeSpec{
			{Class: "a", Children: []testhelpers.NodeSpec{{Class: "a1"}, {Class: "a2"}}},
			{Class: "b"},
		},
	})

	nodes, err := Parse([]byte(dump))
	require.NoError(t, err)

	classes := make([]string, len(nodes))
	for i, n := range nodes {
		classes[i] = n.Class
		assert.Equal(t, i, n.Index)
	}
	assert.Equal(t, []string{"root", "a", "a1", "a2", "b"}, classes)
}

func TestParseFlagDefaults(t *testing.T) {
	// enabled defaults to true, every other flag to false
	nodes, err := Parse([]byte(`<hierarchy><node class="x" /></hierarchy>`))
	require.NoError(t, err)
	require.Len(t, nodes, 1)

	n := nodes[0]
	assert.True(t, n.Enabled)
	assert.False(t, n.Clickable)
	assert.False(t, n.Focusable)
	assert.False(t, n.Scrollable)
	assert.False(t, n.Checked)
	assert.True(t, n.Bounds.IsZero(), "missing bounds parse as the zero rect")
}

func TestParseExplicitDisabled(t *testing.T) {
	nodes, err := Parse([]byte(`<hierarchy><node class="x" enabled="false" /></hierarchy>`))
	require.NoError(t, err)
	assert.False(t, nodes[0].Enabled)
}

func TestParseWithoutWrapper(t *testing.T) {
	// A bare root element without the uiautomator wrapper still parses.
	nodes, err := Parse([]byte(`<node class="root"><node class="child" /></node>`))
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, []int{1}, nodes[0].Children)
}

func TestParseHiddenElement(t *testing.T) {
	nodes, err := Parse([]byte(`<hierarchy><node class="root" bounds="[0,0][1080,1920]"><node class="ghost" bounds="[0,0][0,0]" /></node></hierarchy>`))
	require.NoError(t, err)
	assert.False(t, nodes[0].Hidden())
	assert.True(t, nodes[1].Hidden())
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty document", ""},
		{"wrapper only", `<hierarchy rotation="0"></hierarchy>`},
		{"unbalanced element", `<hierarchy><node class="x"></hierarchy>`},
		{"garbage", "not xml at all"},
		{"bad bounds", `<hierarchy><node class="x" bounds="10,10,20,20" /></hierarchy>`},
		{"bad flag", `<hierarchy><node class="x" clickable="yes" /></hierarchy>`},
		{"two roots", `<hierarchy><node class="a" /><node class="b" /></hierarchy>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.in))
			require.Error(t, err)
			assert.True(t, apperrors.IsParse(err), "want *errors.ParseError, got %T: %v", err, err)
		})
	}
}

func TestParseErrorPosition(t *testing.T) {
	dump := "<hierarchy>\n<node class=\"x\" bounds=\"broken\" />\n</hierarchy>"
	_, err := Parse([]byte(dump))
	require.Error(t, err)

	var pe *apperrors.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 2, pe.Line)
	assert.Equal(t, "node", pe.Token)
}

func TestParseUnknownAttributesIgnored(t *testing.T) {
	nodes, err := Parse([]byte(`<hierarchy><node class="x" drawing-order="3" hint="tap me" /></hierarchy>`))
	require.NoError(t, err)
	assert.Equal(t, "x", nodes[0].Class)
}

func TestParseEscapedText(t *testing.T) {
	dump := testhelpers.Dump(testhelpers.NodeSpec{Class: "root", Text: `Tom & "Jerry" <3`})
	require.True(t, strings.Contains(dump, "&amp;"))

	nodes, err := Parse([]byte(dump))
	require.NoError(t, err)
	assert.Equal(t, `Tom & "Jerry" <3`, nodes[0].Text)
}
