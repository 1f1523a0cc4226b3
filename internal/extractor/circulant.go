package extractor

import (
	"fmt"

	"github.com/cryptomite-go/cryptomite/internal/bits"
	"github.com/cryptomite-go/cryptomite/internal/ntt"
)

// Circulant is the circulant-matrix seeded extractor. The input is n bits,
// the seed n+1 bits; n+1 should be prime for the extractor guarantees to
// hold.
type Circulant struct {
	n int
	m int
	l uint
}

// NewCirculant returns a Circulant extractor for n input bits and m output
// bits.
func NewCirculant(n, m int) (*Circulant, error) {
	if m <= 0 || n < m {
		return nil, fmt.Errorf("%w: circulant needs 0 < m <= n, got n=%d m=%d", ErrInvalidParameters, n, m)
	}
	return &Circulant{n: n, m: m, l: ntt.Log2(2 * n)}, nil
}

func (c *Circulant) Name() string { return NameCirculant }

// InputLength is the number of input bits.
func (c *Circulant) InputLength() int { return c.n }

// SeedLength is the number of seed bits, n+1.
func (c *Circulant) SeedLength() int { return c.n + 1 }

// OutputLength is the number of output bits.
func (c *Circulant) OutputLength() int { return c.m }

// Extract runs the extractor on input1 (n bits) and the seed input2 (n+1 bits).
func (c *Circulant) Extract(input1, input2 bits.Bits) (bits.Bits, error) {
	if err := checkLen("input", input1, c.n); err != nil {
		return nil, err
	}
	if err := checkLen("seed", input2, c.SeedLength()); err != nil {
		return nil, err
	}
	// The input is extended by one zero bit to the seed length.
	return circulantProduct(c.l, c.n+1, c.m, append(input1.Clone(), 0), input2)
}

// circulantProduct multiplies the n x n circulant matrix defined by b with a
// over GF(2), returning the first m rows. Both inputs have n bits.
func circulantProduct(l uint, n, m int, a, b bits.Bits) (bits.Bits, error) {
	size := 1 << l
	x := make([]uint64, size)
	x[0] = uint64(a[0] & 1)
	for i := 1; i < n; i++ {
		x[i] = uint64(a[n-i] & 1)
	}
	y := make([]uint64, size)
	spread(y, 0, b)

	conv, err := ntt.Conv(l, x, y)
	if err != nil {
		return nil, fmt.Errorf("circulant convolution: %w", err)
	}
	out := make(bits.Bits, m)
	for i := range out {
		out[i] = uint8((conv[i] + conv[i+n]) & 1)
	}
	return out, nil
}
