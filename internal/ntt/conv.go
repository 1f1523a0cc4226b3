package ntt

import (
	"fmt"
	mbits "math/bits"
	"sync"
)

var transforms sync.Map // uint -> *Transform

// Log2 returns the number of bits needed to represent n, which is
// ceil(log2(n+1)). Extractors use it to size their convolutions.
func Log2(n int) uint {
	if n <= 0 {
		return 0
	}
	return uint(mbits.Len(uint(n)))
}

// Get returns a cached transform of length 2^l, building it on first use.
func Get(l uint) (*Transform, error) {
	if t, ok := transforms.Load(l); ok {
		return t.(*Transform), nil
	}
	t, err := ForLog(l)
	if err != nil {
		return nil, err
	}
	actual, _ := transforms.LoadOrStore(l, t)
	return actual.(*Transform), nil
}

// Conv performs a cyclic convolution of size 2^l.
func Conv(l uint, a, b []uint64) ([]uint64, error) {
	size := 1 << l
	if len(a) != size || len(b) != size {
		return nil, fmt.Errorf("%w: convolution of size %d got %d and %d elements", ErrLength, size, len(a), len(b))
	}
	t, err := Get(l)
	if err != nil {
		return nil, err
	}
	return t.Conv(a, b)
}

// ConvAndReduce multiplies the GF(2) polynomials a and b and reduces the
// product modulo the trinomial x^r + x^s + 1. The returned vector has the
// transform length; only the first r entries can be non-zero.
func (t *Transform) ConvAndReduce(a, b []uint64, r, s int) ([]uint64, error) {
	if s <= 0 || s >= r {
		return nil, fmt.Errorf("%w: trinomial middle term %d outside (0, %d)", ErrLength, s, r)
	}
	if 2*r > t.size {
		return nil, fmt.Errorf("%w: degree %d needs a transform of at least %d, have %d", ErrLength, r, 2*r, t.size)
	}
	c, err := t.Conv(a, b)
	if err != nil {
		return nil, err
	}
	for i := range c {
		c[i] &= 1
	}
	reduceTrinomial(c, r, s)
	return c, nil
}

// RazIteration performs one step of the product evaluation used by the Raz
// extractor: it returns product*(delta+1) and delta^2, both in GF(2^r).
func (t *Transform) RazIteration(product, delta []uint64, r, s int) ([]uint64, []uint64, error) {
	lambda := make([]uint64, len(delta))
	copy(lambda, delta)
	if len(lambda) > 0 {
		lambda[0] ^= 1
	}
	next, err := t.ConvAndReduce(product, lambda, r, s)
	if err != nil {
		return nil, nil, fmt.Errorf("multiplying product: %w", err)
	}
	sq, err := t.ConvAndReduce(delta, delta, r, s)
	if err != nil {
		return nil, nil, fmt.Errorf("squaring delta: %w", err)
	}
	return next, sq, nil
}

// reduceTrinomial folds the terms of degree r..2r-1 of x back using
// x^r = x^s + 1 over GF(2).
func reduceTrinomial(x []uint64, r, s int) {
	for i := r - 1; i >= 0; i-- {
		red := x[r+i] & 1
		x[r+i] = 0
		x[s+i] = (x[s+i] & 1) ^ red
		x[i] = (x[i] & 1) ^ red
	}
}
