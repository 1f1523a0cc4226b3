// Package bits provides the bit-string type shared by the randomness
// extractors. A Bits value holds one bit per element, each 0 or 1, in the
// order the bits were produced by the source.
package bits

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrInvalidBit is returned when a value other than 0 or 1 is found.
var ErrInvalidBit = errors.New("invalid bit")

// Bits is a sequence of bits stored one per byte.
type Bits []uint8

// Parse reads a string of '0' and '1' characters. Whitespace and '_'
// separators are ignored so long strings can be grouped for readability.
func Parse(s string) (Bits, error) {
	out := make(Bits, 0, len(s))
	for i, r := range s {
		switch {
		case r == '0':
			out = append(out, 0)
		case r == '1':
			out = append(out, 1)
		case r == '_' || unicode.IsSpace(r):
			continue
		default:
			return nil, fmt.Errorf("%w: %q at offset %d", ErrInvalidBit, r, i)
		}
	}
	return out, nil
}

// MustParse is like Parse but panics on malformed input. Intended for tests
// and constant tables.
func MustParse(s string) Bits {
	b, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return b
}

// String renders the bits as a string of '0' and '1'.
func (b Bits) String() string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, v := range b {
		if v&1 == 1 {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// Validate reports the first element that is not a bit.
func (b Bits) Validate() error {
	for i, v := range b {
		if v > 1 {
			return fmt.Errorf("%w: value %d at index %d", ErrInvalidBit, v, i)
		}
	}
	return nil
}

// Clone returns an independent copy of b.
func (b Bits) Clone() Bits {
	out := make(Bits, len(b))
	copy(out, b)
	return out
}

// Ones counts the set bits.
func (b Bits) Ones() int {
	n := 0
	for _, v := range b {
		n += int(v & 1)
	}
	return n
}

// FromBytes unpacks data most significant bit first.
func FromBytes(data []byte) Bits {
	out := make(Bits, 0, len(data)*8)
	for _, c := range data {
		for i := 7; i >= 0; i-- {
			out = append(out, (c>>uint(i))&1)
		}
	}
	return out
}

// Bytes packs b most significant bit first. A trailing partial byte is
// zero-padded on the right.
func (b Bits) Bytes() []byte {
	out := make([]byte, (len(b)+7)/8)
	for i, v := range b {
		if v&1 == 1 {
			out[i/8] |= 1 << uint(7-i%8)
		}
	}
	return out
}

// Random draws n uniformly random bits from crypto/rand.
func Random(n int) (Bits, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative length %d", n)
	}
	buf := make([]byte, (n+7)/8)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("reading random bytes: %w", err)
	}
	return FromBytes(buf)[:n], nil
}

// Equal reports whether a and b hold the same bits.
func Equal(a, b Bits) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i]&1 != b[i]&1 {
			return false
		}
	}
	return true
}
