// Package ntt implements the number theoretic transform used by the
// extractors for fast cyclic convolution of bit vectors.
//
// Two prime fields are supported. The small field P = 3*2^30+1 covers
// transforms of length up to 2^30; the big field P = 9*2^42+1 covers lengths
// up to 2^40. Both have 5 as a primitive root. Convolution outputs of 0/1
// vectors never exceed the transform length, so the results are exact
// integers in either field.
package ntt

import (
	"errors"
	"fmt"
	mbits "math/bits"
)

const (
	// SmallPrime is the modulus of the 32-bit field.
	SmallPrime uint64 = 3<<30 + 1
	// BigPrime is the modulus of the 64-bit field.
	BigPrime uint64 = 9<<42 + 1

	generator uint64 = 5

	maxSmallLog = 30
	maxBigLog   = 40
)

// ErrLength is returned when a transform is requested with an unsupported
// size or a vector of the wrong length is passed in.
var ErrLength = errors.New("ntt: invalid length")

// Transform holds the precomputed tables for transforms of length 2^l over
// one prime field. A Transform is immutable after construction and safe for
// concurrent use.
type Transform struct {
	l       uint
	size    int
	p       uint64
	sizeInv uint64
	roots   []uint64 // r^0 .. r^(size/2-1)
	inv     []uint64 // r^0 .. r^-(size/2-1)
	rev     []uint64
}

// New returns a transform of length 2^l over the small field.
func New(l uint) (*Transform, error) {
	if l < 1 || l > maxSmallLog {
		return nil, fmt.Errorf("%w: must have 1 <= l <= %d, got %d", ErrLength, maxSmallLog, l)
	}
	return newTransform(l, SmallPrime), nil
}

// NewBig returns a transform of length 2^l over the big field.
func NewBig(l uint) (*Transform, error) {
	if l < 1 || l > maxBigLog {
		return nil, fmt.Errorf("%w: must have 1 <= l <= %d, got %d", ErrLength, maxBigLog, l)
	}
	return newTransform(l, BigPrime), nil
}

// ForLog picks the small field when it is large enough and the big field
// otherwise.
func ForLog(l uint) (*Transform, error) {
	if FieldFor(l) == BigPrime {
		return NewBig(l)
	}
	return New(l)
}

// FieldFor returns the modulus ForLog uses for transforms of length 2^l.
func FieldFor(l uint) uint64 {
	if l > maxSmallLog {
		return BigPrime
	}
	return SmallPrime
}

func newTransform(l uint, p uint64) *Transform {
	size := 1 << l
	half := size / 2
	t := &Transform{
		l:     l,
		size:  size,
		p:     p,
		roots: make([]uint64, half),
		inv:   make([]uint64, half),
		rev:   make([]uint64, size),
	}
	t.sizeInv = t.pow(uint64(size)%p, p-2)

	r := t.pow(generator, (p-1)>>l)
	rInv := t.pow(r, p-2)
	fwd, bwd := uint64(1), uint64(1)
	for i := 0; i < half; i++ {
		t.roots[i] = fwd
		t.inv[i] = bwd
		fwd = t.mul(fwd, r)
		bwd = t.mul(bwd, rInv)
	}
	for i := 0; i < size; i++ {
		t.rev[i] = reverseBits(l, uint64(i))
	}
	return t
}

// Size returns the transform length.
func (t *Transform) Size() int { return t.size }

// Modulus returns the prime of the field the transform works in.
func (t *Transform) Modulus() uint64 { return t.p }

func (t *Transform) add(a, b uint64) uint64 {
	c := a + b
	if c >= t.p {
		c -= t.p
	}
	return c
}

func (t *Transform) sub(a, b uint64) uint64 {
	if a >= b {
		return a - b
	}
	return a + t.p - b
}

func (t *Transform) mul(a, b uint64) uint64 {
	hi, lo := mbits.Mul64(a, b)
	return mbits.Rem64(hi, lo, t.p)
}

func (t *Transform) pow(a, e uint64) uint64 {
	r := uint64(1)
	for e > 0 {
		if e&1 == 1 {
			r = t.mul(r, a)
		}
		e >>= 1
		a = t.mul(a, a)
	}
	return r
}

// Forward computes the transform of x. x is left untouched.
func (t *Transform) Forward(x []uint64) ([]uint64, error) {
	return t.run(x, false)
}

// Inverse computes the inverse transform of x, including the 1/size
// normalisation.
func (t *Transform) Inverse(x []uint64) ([]uint64, error) {
	return t.run(x, true)
}

func (t *Transform) run(x []uint64, inverse bool) ([]uint64, error) {
	if len(x) != t.size {
		return nil, fmt.Errorf("%w: vector has %d elements, transform size is %d", ErrLength, len(x), t.size)
	}
	u := t.roots
	if inverse {
		u = t.inv
	}
	y := make([]uint64, t.size)
	for i, v := range x {
		y[t.rev[i]] = v % t.p
	}
	for h, k, step := 2, 1, t.size/2; h <= t.size; k, h, step = h, h<<1, step>>1 {
		for i := 0; i < t.size; i += h {
			for j, v := 0, 0; j < k; j, v = j+1, v+step {
				r := i + j
				s := r + k
				a := y[r]
				b := t.mul(y[s], u[v])
				y[r] = t.add(a, b)
				y[s] = t.sub(a, b)
			}
		}
	}
	if inverse {
		for i := range y {
			y[i] = t.mul(t.sizeInv, y[i])
		}
	}
	return y, nil
}

// MulVec multiplies a and b element-wise in the field.
func (t *Transform) MulVec(a, b []uint64) ([]uint64, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("%w: %d vs %d elements", ErrLength, len(a), len(b))
	}
	c := make([]uint64, len(a))
	for i := range a {
		c[i] = t.mul(a[i]%t.p, b[i]%t.p)
	}
	return c, nil
}

// Conv returns the cyclic convolution of a and b, both of length Size().
func (t *Transform) Conv(a, b []uint64) ([]uint64, error) {
	fa, err := t.Forward(a)
	if err != nil {
		return nil, err
	}
	fb, err := t.Forward(b)
	if err != nil {
		return nil, err
	}
	c, err := t.MulVec(fa, fb)
	if err != nil {
		return nil, err
	}
	return t.Inverse(c)
}

func reverseBits(l uint, x uint64) uint64 {
	var y uint64
	for l > 0 {
		l--
		y |= (x & 1) << l
		x >>= 1
	}
	return y
}
