package extractor

import (
	"fmt"

	"github.com/cryptomite-go/cryptomite/internal/bits"
	"github.com/cryptomite-go/cryptomite/internal/ntt"
)

// Dodis is the two-source extractor of Dodis et al. built on a circulant
// matrix. Both inputs are n bits; n should be a prime with primitive root 2.
type Dodis struct {
	n int
	m int
	l uint
}

// NewDodis returns a Dodis extractor for two n-bit inputs and m output bits.
func NewDodis(n, m int) (*Dodis, error) {
	if n < 2 || m <= 0 || n < m {
		return nil, fmt.Errorf("%w: dodis needs 0 < m <= n and n >= 2, got n=%d m=%d", ErrInvalidParameters, n, m)
	}
	return &Dodis{n: n, m: m, l: ntt.Log2(2*n - 2)}, nil
}

func (d *Dodis) Name() string { return NameDodis }

// InputLength is the length of each input.
func (d *Dodis) InputLength() int { return d.n }

// SeedLength is the length of the second input.
func (d *Dodis) SeedLength() int { return d.n }

// OutputLength is the number of output bits.
func (d *Dodis) OutputLength() int { return d.m }

// Extract runs the extractor on two n-bit inputs.
func (d *Dodis) Extract(input1, input2 bits.Bits) (bits.Bits, error) {
	if err := checkLen("input1", input1, d.n); err != nil {
		return nil, err
	}
	if err := checkLen("input2", input2, d.n); err != nil {
		return nil, err
	}
	return circulantProduct(d.l, d.n, d.m, input1, input2)
}
