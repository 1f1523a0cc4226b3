package trevisan

import (
	"fmt"

	"github.com/cryptomite-go/cryptomite/internal/bits"
)

// rsh is the Reed–Solomon–Hadamard one-bit extractor. The input is split
// into s = ceil(n/l) blocks of l bits which are the coefficients of a
// polynomial over GF(2^l), highest degree first. A 2l-bit seed (alpha, beta)
// selects the evaluation point alpha and the Hadamard mask beta.
type rsh struct {
	field *Field
	n     int
	l     int
	s     int
}

func newRSH(n, l int) (*rsh, error) {
	field, err := NewField(l)
	if err != nil {
		return nil, fmt.Errorf("one-bit extractor field: %w", err)
	}
	return &rsh{field: field, n: n, l: l, s: (n + l - 1) / l}, nil
}

// coefficients packs the zero padded input into Reed–Solomon coefficients,
// constant term first. Block 0 becomes the leading coefficient.
func (r *rsh) coefficients(input bits.Bits) []Poly {
	coeffs := make([]Poly, r.s)
	for i := 0; i < r.s; i++ {
		var c Poly
		for j := 0; j < r.l; j++ {
			if k := i*r.l + j; k < len(input) && input[k]&1 == 1 {
				c.SetBit(j)
			}
		}
		coeffs[r.s-i-1] = c
	}
	return coeffs
}

// bit evaluates the input polynomial at alpha and returns the inner product
// of the result with beta.
func (r *rsh) bit(coeffs []Poly, alpha, beta Poly) uint8 {
	return r.field.Horner(coeffs, alpha).Parity(beta)
}
