// Package encoding renders 64-bit values as short base-63 strings.
// Snapshot identifiers are built from xxhash content digests; base-63
// keeps them to at most 11 characters where hex would need 16.
//
// Alphabet: A-Z (0-25), a-z (26-51), 0-9 (52-61), _ (62). Every output
// character is safe in file names, URLs, and shell arguments without
// quoting.
package encoding

import (
	"errors"
	"fmt"
)

const (
	Base63     = 63
	Alphabet63 = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_"
)

var (
	ErrEmptyString = errors.New("empty encoded string")
	ErrInvalidChar = errors.New("invalid character in encoded string")
	ErrOverflow    = errors.New("decoded value overflow")
)

// Base63Encode encodes a uint64 as a base-63 string, most significant
// digit first. Zero encodes to "A" so the result is never empty.
func Base63Encode(value uint64) string {
	if value == 0 {
		return "A"
	}

	// 11 digits cover the full uint64 range.
	var buf [11]byte
	pos := len(buf)
	for value > 0 {
		pos--
		buf[pos] = Alphabet63[value%Base63]
		value /= Base63
	}
	return string(buf[pos:])
}

// Base63Decode is the inverse of Base63Encode. It rejects the empty
// string, characters outside the alphabet, and values that do not fit
// in a uint64.
func Base63Decode(encoded string) (uint64, error) {
	if encoded == "" {
		return 0, ErrEmptyString
	}

	var value uint64
	for _, c := range encoded {
		digit, err := charValue(c)
		if err != nil {
			return 0, err
		}
		if value > (^uint64(0)-digit)/Base63 {
			return 0, ErrOverflow
		}
		value = value*Base63 + digit
	}
	return value, nil
}

func charValue(c rune) (uint64, error) {
	switch {
	case c >= 'A' && c <= 'Z':
		return uint64(c - 'A'), nil
	case c >= 'a' && c <= 'z':
		return uint64(c-'a') + 26, nil
	case c >= '0' && c <= '9':
		return uint64(c-'0') + 52, nil
	case c == '_':
		return 62, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidChar, c)
	}
}
