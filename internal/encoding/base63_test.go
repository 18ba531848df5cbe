package encoding

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBase63Encode(t *testing.T) {
	tests := []struct {
		value    uint64
		expected string
	}{
		{0, "A"},
		{1, "B"},
		{25, "Z"},
		{26, "a"},
		{51, "z"},
		{52, "0"},
		{61, "9"},
		{62, "_"},
		{63, "BA"},
		{64, "BB"},
		{125, "B_"},
		{126, "CA"},
		{255, "ED"},
		{3969, "BAA"},
		{0xdeadbeefdeadbeef, "QSVvUGAD8hl"},
		{^uint64(0), "St6VW1zpdiP"},
	}
	for _, tc := range tests {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, Base63Encode(tc.value))
		})
	}
}

func TestBase63EncodeNeverExceedsElevenChars(t *testing.T) {
	assert.Len(t, Base63Encode(^uint64(0)), 11)
}

func TestBase63RoundTrip(t *testing.T) {
	values := []uint64{0, 1, 62, 63, 64, 3968, 3969, 1 << 32, ^uint64(0)}
	for _, value := range values {
		encoded := Base63Encode(value)
		decoded, err := Base63Decode(encoded)
		require.NoError(t, err, "decode %q", encoded)
		assert.Equal(t, value, decoded)
	}
}

func TestBase63DecodeErrors(t *testing.T) {
	_, err := Base63Decode("")
	assert.ErrorIs(t, err, ErrEmptyString)

	_, err = Base63Decode("snap!")
	assert.ErrorIs(t, err, ErrInvalidChar)

	_, err = Base63Decode("abc-def")
	assert.ErrorIs(t, err, ErrInvalidChar)

	// 12 max-digit characters cannot fit in 64 bits.
	_, err = Base63Decode(strings.Repeat("_", 12))
	assert.ErrorIs(t, err, ErrOverflow)
}
