package extractor

import (
	"fmt"

	"github.com/cryptomite-go/cryptomite/internal/bits"
	"github.com/cryptomite-go/cryptomite/internal/ntt"
)

// KnownTrinomials maps a field degree n to an s such that x^n + x^s + 1 is
// irreducible over GF(2).
var KnownTrinomials = map[int]int{
	3:        1,
	7:        1,
	15:       1,
	31:       3,
	63:       1,
	127:      7,
	255:      52,
	521:      32,
	1279:     216,
	2281:     715,
	3217:     67,
	4423:     271,
	23209:    1530,
	44497:    8575,
	110503:   25230,
	132049:   7000,
	756839:   279695,
	859433:   170340,
	3021377:  361604,
	6972593:  3037958,
	24036583: 8412642,
	25964951: 880890,
	30402457: 2162059,
	32582657: 5110722,
	42643801: 55981,
	43112609: 3569337,
	74207281: 9156813,
}

// Raz is the efficient construction of Raz's two-source extractor. The first
// input has n1 = 2n bits and is split into two field elements of GF(2^n);
// the second input has at most n bits.
type Raz struct {
	n    int
	m    int
	s    int
	logp uint
}

// NewRaz returns a Raz extractor for an n1-bit first input and m output bits.
// trinomial is the middle exponent s of the irreducible x^(n1/2) + x^s + 1;
// pass 0 to look it up in KnownTrinomials. An explicit value is not checked
// for irreducibility.
func NewRaz(n1, m, trinomial int) (*Raz, error) {
	n := n1 / 2
	if m <= 0 || m > n {
		return nil, fmt.Errorf("%w: raz needs 0 < m <= n1/2, got n1=%d m=%d", ErrInvalidParameters, n1, m)
	}
	s := trinomial
	if s == 0 {
		known, ok := KnownTrinomials[n]
		if !ok {
			return nil, fmt.Errorf("%w: no known irreducible trinomial of degree %d", ErrInvalidParameters, n)
		}
		s = known
	}
	if s <= 0 || s >= n {
		return nil, fmt.Errorf("%w: trinomial exponent %d outside (0, %d)", ErrInvalidParameters, s, n)
	}
	return &Raz{n: n, m: m, s: s, logp: ntt.Log2(n) + 1}, nil
}

func (r *Raz) Name() string { return NameRaz }

// InputLength is the length of the first input, 2n.
func (r *Raz) InputLength() int { return 2 * r.n }

// SeedLength is the maximum length of the second input.
func (r *Raz) SeedLength() int { return r.n }

// OutputLength is the number of output bits.
func (r *Raz) OutputLength() int { return r.m }

// Trinomial returns the middle exponent of the field polynomial.
func (r *Raz) Trinomial() int { return r.s }

// Extract evaluates the extractor on input1 (2n bits) and input2 (1..n bits).
// With x1, x2 the halves of input1 and y input2 zero padded to n bits, the
// output is the first m bits of x2 * prod_{i<logp} (delta^(2^i) + 1) where
// delta = y * x1 in GF(2^n).
func (r *Raz) Extract(input1, input2 bits.Bits) (bits.Bits, error) {
	if err := checkLen("input1", input1, 2*r.n); err != nil {
		return nil, err
	}
	if len(input2) == 0 || len(input2) > r.n {
		return nil, fmt.Errorf("%w: input2 has %d bits, want 1..%d", ErrInputLength, len(input2), r.n)
	}
	if err := input2.Validate(); err != nil {
		return nil, err
	}

	tr, err := ntt.Get(r.logp)
	if err != nil {
		return nil, err
	}
	size := tr.Size()
	x1 := make([]uint64, size)
	x2 := make([]uint64, size)
	y := make([]uint64, size)
	spread(x1, 0, input1[:r.n])
	spread(x2, 0, input1[r.n:])
	spread(y, 0, input2)

	delta, err := tr.ConvAndReduce(y, x1, r.n, r.s)
	if err != nil {
		return nil, fmt.Errorf("raz delta: %w", err)
	}
	product := make([]uint64, size)
	copy(product, delta)
	product[0] ^= 1
	if delta, err = tr.ConvAndReduce(delta, delta, r.n, r.s); err != nil {
		return nil, fmt.Errorf("raz delta squared: %w", err)
	}
	for i := uint(1); i < r.logp; i++ {
		if product, delta, err = tr.RazIteration(product, delta, r.n, r.s); err != nil {
			return nil, fmt.Errorf("raz iteration %d: %w", i, err)
		}
	}
	c, err := tr.ConvAndReduce(product, x2, r.n, r.s)
	if err != nil {
		return nil, fmt.Errorf("raz output: %w", err)
	}
	out := make(bits.Bits, r.m)
	for i := range out {
		out[i] = uint8(c[i] & 1)
	}
	return out, nil
}
