package nodepath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name string
		path []int
		want string
	}{
		{"root is empty", []int{}, ""},
		{"nil is root", nil, ""},
		{"single step", []int{0}, "0"},
		{"deep path", []int{0, 3, 2}, "0/3/2"},
		{"large positions", []int{12, 0, 147}, "12/0/147"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.path))
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []int
		wantErr bool
	}{
		{"empty is root", "", []int{}, false},
		{"slash is root", "/", []int{}, false},
		{"single step", "4", []int{4}, false},
		{"deep path", "0/3/2", []int{0, 3, 2}, false},
		{"leading slash accepted", "/0/3/2", []int{0, 3, 2}, false},
		{"surrounding whitespace", " 0/1 ", []int{0, 1}, false},
		{"non-numeric step", "0/x/2", nil, true},
		{"negative step", "0/-1", nil, true},
		{"empty step", "0//2", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	paths := [][]int{{}, {0}, {1, 2, 3}, {0, 0, 0, 7}}
	for _, p := range paths {
		got, err := Parse(Format(p))
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
}
