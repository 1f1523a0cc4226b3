package trevisan

import (
	"fmt"
	mbits "math/bits"
	"sync"

	"github.com/cryptomite-go/cryptomite/internal/primes"
)

// MaxDegree bounds the degree of the fields this package works in.
const MaxDegree = 255

// Poly is a polynomial over GF(2) of degree at most 255. Bit i of the
// little-endian word array is the coefficient of x^i.
type Poly [4]uint64

// PolyFromUint returns the polynomial whose coefficients are the bits of v.
func PolyFromUint(v uint64) Poly { return Poly{v} }

// Bit returns the coefficient of x^i.
func (p Poly) Bit(i int) uint64 { return p[i>>6] >> (uint(i) & 63) & 1 }

// SetBit sets the coefficient of x^i to 1.
func (p *Poly) SetBit(i int) { p[i>>6] |= 1 << (uint(i) & 63) }

// Add returns p + q, which over GF(2) is the bitwise xor.
func (p Poly) Add(q Poly) Poly {
	for i := range p {
		p[i] ^= q[i]
	}
	return p
}

// IsZero reports whether p is the zero polynomial.
func (p Poly) IsZero() bool { return p == Poly{} }

// Degree returns the degree of p, or -1 for the zero polynomial.
func (p Poly) Degree() int {
	for w := len(p) - 1; w >= 0; w-- {
		if p[w] != 0 {
			return w*64 + 63 - mbits.LeadingZeros64(p[w])
		}
	}
	return -1
}

// Uint64 returns the low 64 coefficients.
func (p Poly) Uint64() uint64 { return p[0] }

// Parity returns the xor of all coefficients of p AND q, i.e. the GF(2)
// inner product of the two coefficient vectors.
func (p Poly) Parity(q Poly) uint8 {
	n := 0
	for i := range p {
		n += mbits.OnesCount64(p[i] & q[i])
	}
	return uint8(n & 1)
}

func (p Poly) shl(k int) Poly {
	var out Poly
	words, off := k/64, uint(k%64)
	for i := len(p) - 1; i >= words; i-- {
		v := p[i-words] << off
		if off > 0 && i-words-1 >= 0 {
			v |= p[i-words-1] >> (64 - off)
		}
		out[i] = v
	}
	return out
}

// String renders p as a sum of powers, e.g. "x^8+x^4+x^3+x+1".
func (p Poly) String() string {
	if p.IsZero() {
		return "0"
	}
	s := ""
	for i := p.Degree(); i >= 0; i-- {
		if p.Bit(i) == 0 {
			continue
		}
		if s != "" {
			s += "+"
		}
		switch i {
		case 0:
			s += "1"
		case 1:
			s += "x"
		default:
			s += fmt.Sprintf("x^%d", i)
		}
	}
	return s
}

// Field is GF(2^deg), represented as GF(2)[x] modulo an irreducible
// polynomial of degree deg. Elements are polynomials of degree < deg.
type Field struct {
	deg   int
	irred Poly
}

var fields sync.Map // int -> *Field

// NewField returns GF(2^deg) for 0 < deg <= MaxDegree. The modulus is the
// minimum-weight irreducible polynomial found by FindIrreducible; fields are
// cached because finding it costs deg squarings per candidate.
func NewField(deg int) (*Field, error) {
	if f, ok := fields.Load(deg); ok {
		return f.(*Field), nil
	}
	irred, err := FindIrreducible(deg)
	if err != nil {
		return nil, err
	}
	f, _ := fields.LoadOrStore(deg, &Field{deg: deg, irred: irred})
	return f.(*Field), nil
}

// Degree returns the extension degree.
func (f *Field) Degree() int { return f.deg }

// Modulus returns the irreducible polynomial defining the field.
func (f *Field) Modulus() Poly { return f.irred }

// Mul returns x*y in the field. x and y must be reduced.
func (f *Field) Mul(x, y Poly) Poly {
	var r Poly
	top := y.Degree()
	for i := 0; i <= top; i++ {
		if y.Bit(i) == 1 {
			r = r.Add(x)
		}
		x = x.shl(1)
		if x.Bit(f.deg) == 1 {
			x = x.Add(f.irred)
		}
	}
	return r
}

// Horner evaluates sum coeffs[i] * x^i.
func (f *Field) Horner(coeffs []Poly, x Poly) Poly {
	var r Poly
	for i := len(coeffs) - 1; i >= 0; i-- {
		r = f.Mul(r, x).Add(coeffs[i])
	}
	return r
}

// FindIrreducible returns an irreducible polynomial of degree deg over GF(2)
// of minimum weight: the trinomial x^deg + x^k + 1 with the smallest k when
// one exists, otherwise the pentanomial x^deg + x^a + x^b + x^c + 1 with the
// lexicographically smallest (a, b, c).
func FindIrreducible(deg int) (Poly, error) {
	if deg <= 0 || deg > MaxDegree {
		return Poly{}, fmt.Errorf("trevisan: field degree %d outside [1, %d]", deg, MaxDegree)
	}
	var f Poly
	if deg == 1 {
		f.SetBit(1)
		f.SetBit(0)
		return f, nil
	}
	for k := 1; k < deg; k++ {
		f = monomials(deg, k, 0)
		if IsIrreducible(f) {
			return f, nil
		}
	}
	for a := 3; a < deg; a++ {
		for b := 2; b < a; b++ {
			for c := 1; c < b; c++ {
				f = monomials(deg, a, b, c, 0)
				if IsIrreducible(f) {
					return f, nil
				}
			}
		}
	}
	return Poly{}, fmt.Errorf("trevisan: no irreducible trinomial or pentanomial of degree %d", deg)
}

func monomials(exps ...int) Poly {
	var p Poly
	for _, e := range exps {
		p.SetBit(e)
	}
	return p
}

// IsIrreducible runs Rabin's test: f of degree n is irreducible iff
// x^(2^n) = x mod f and gcd(x^(2^(n/q)) - x, f) = 1 for every prime q | n.
func IsIrreducible(f Poly) bool {
	n := f.Degree()
	switch {
	case n < 1:
		return false
	case n == 1:
		return true
	}
	fld := Field{deg: n, irred: f}
	factors, _ := primes.Factorize(n)
	need := make(map[int]bool, len(factors))
	for _, q := range factors {
		need[n/q] = true
	}
	x := PolyFromUint(2)
	h := x
	for k := 1; k <= n; k++ {
		h = fld.Mul(h, h)
		if need[k] && gcd(h.Add(x), f).Degree() != 0 {
			return false
		}
	}
	return h == x
}

func gcd(a, b Poly) Poly {
	for !b.IsZero() {
		a, b = b, polyMod(a, b)
	}
	return a
}

func polyMod(a, b Poly) Poly {
	db := b.Degree()
	for {
		da := a.Degree()
		if da < db {
			return a
		}
		a = a.Add(b.shl(da - db))
	}
}
