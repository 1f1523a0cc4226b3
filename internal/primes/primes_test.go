package primes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPrime(t *testing.T) {
	primes := []int{2, 3, 5, 7, 11, 13, 101, 7919, 1000003}
	for _, p := range primes {
		assert.True(t, IsPrime(p), "%d", p)
	}
	for _, n := range []int{-7, 0, 1, 4, 9, 15, 1001, 7917, 1000001} {
		assert.False(t, IsPrime(n), "%d", n)
	}
}

func TestFactorize(t *testing.T) {
	f, p := Factorize(24)
	assert.Equal(t, []int{2, 3}, f)
	assert.Equal(t, []int{3, 1}, p)

	f, p = Factorize(97)
	assert.Equal(t, []int{97}, f)
	assert.Equal(t, []int{1}, p)

	f, p = Factorize(2 * 2 * 5 * 5 * 5 * 13)
	assert.Equal(t, []int{2, 5, 13}, f)
	assert.Equal(t, []int{2, 3, 1}, p)

	f, _ = Factorize(1)
	assert.Empty(t, f)
}

func TestPrimeSearch(t *testing.T) {
	assert.Equal(t, 97, PreviousPrime(100))
	assert.Equal(t, 101, NextPrime(100))
	assert.Equal(t, 101, ClosestPrime(100))
	assert.Equal(t, 97, PreviousPrime(97))
	assert.Equal(t, 97, NextPrime(97))
	assert.Equal(t, 2, PreviousPrime(2))
	assert.Equal(t, 0, PreviousPrime(1))
	assert.Equal(t, 2, NextPrime(-5))
	// 12 sits between 11 and 13; ties go down.
	assert.Equal(t, 11, ClosestPrime(12))
}

func TestPrimitiveRootTwo(t *testing.T) {
	// OEIS A001122: primes with primitive root 2.
	na := []int{3, 5, 11, 13, 19, 29, 37, 53, 59, 61, 67, 83, 101, 107}
	set := make(map[int]bool)
	for _, p := range na {
		set[p] = true
		assert.True(t, HasPrimitiveRootTwo(p), "%d", p)
	}
	for p := 2; p <= 107; p++ {
		if IsPrime(p) && !set[p] {
			assert.False(t, HasPrimitiveRootTwo(p), "%d", p)
		}
	}
}

func TestNASetSearch(t *testing.T) {
	assert.Equal(t, 101, PreviousNASet(106))
	assert.Equal(t, 107, NextNASet(102))
	assert.Equal(t, 101, ClosestNASet(103))
	assert.Equal(t, 107, ClosestNASet(105))
	assert.Equal(t, 0, PreviousNASet(2))
	assert.Equal(t, 100, NASet(105))
	assert.Equal(t, 100, NASet(100))
}
