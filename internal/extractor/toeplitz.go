package extractor

import (
	"fmt"

	"github.com/cryptomite-go/cryptomite/internal/bits"
	"github.com/cryptomite-go/cryptomite/internal/ntt"
)

// Toeplitz is the Toeplitz hashing extractor. The n1+m-1 seed bits define an
// m x n1 Toeplitz matrix that is multiplied with the n1 input bits over
// GF(2); the product is computed as one cyclic convolution.
type Toeplitz struct {
	n1 int
	m  int
	l  uint
}

// NewToeplitz returns a Toeplitz extractor for n1 input bits and m output bits.
func NewToeplitz(n1, m int) (*Toeplitz, error) {
	if m <= 0 || n1 < m {
		return nil, fmt.Errorf("%w: toeplitz needs 0 < m <= n1, got n1=%d m=%d", ErrInvalidParameters, n1, m)
	}
	return &Toeplitz{n1: n1, m: m, l: ntt.Log2(2 * n1)}, nil
}

func (t *Toeplitz) Name() string { return NameToeplitz }

// InputLength is the number of input bits.
func (t *Toeplitz) InputLength() int { return t.n1 }

// SeedLength is the number of seed bits, n1+m-1.
func (t *Toeplitz) SeedLength() int { return t.n1 + t.m - 1 }

// OutputLength is the number of output bits.
func (t *Toeplitz) OutputLength() int { return t.m }

// Extract hashes input1 (n1 bits) with the seed input2 (n1+m-1 bits).
func (t *Toeplitz) Extract(input1, input2 bits.Bits) (bits.Bits, error) {
	if err := checkLen("input", input1, t.n1); err != nil {
		return nil, err
	}
	if err := checkLen("seed", input2, t.SeedLength()); err != nil {
		return nil, err
	}
	size := 1 << t.l
	a := make([]uint64, size)
	spread(a, 0, input1)

	// The first m seed bits stay in front, the remaining n1-1 move to the
	// tail so the cyclic wrap lines them up with the matrix diagonals.
	b := make([]uint64, size)
	spread(b, 0, input2[:t.m])
	spread(b, size-(t.n1-1), input2[t.m:])

	c, err := ntt.Conv(t.l, a, b)
	if err != nil {
		return nil, fmt.Errorf("toeplitz convolution: %w", err)
	}
	out := make(bits.Bits, t.m)
	for i := range out {
		out[i] = uint8(c[i] & 1)
	}
	return out, nil
}
