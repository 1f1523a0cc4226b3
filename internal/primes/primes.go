// Package primes holds the number-theoretic helpers used to pick valid
// extractor input lengths: primality, factorisation, and searches for primes
// and for primes that have 2 as a primitive root (the "na-set").
package primes

import (
	mbits "math/bits"
)

// IsPrime reports whether n is prime using trial division.
func IsPrime(n int) bool {
	if n < 2 {
		return false
	}
	if n < 4 {
		return true
	}
	if n%2 == 0 {
		return false
	}
	for i := 3; i*i <= n; i += 2 {
		if n%i == 0 {
			return false
		}
	}
	return true
}

// Factorize splits n into its distinct prime factors and their powers, so
// 24 = 2^3 * 3 yields ([2 3], [3 1]). Values below 2 have no factors.
func Factorize(n int) (factors []int, powers []int) {
	if n < 2 {
		return nil, nil
	}
	for p := 2; p*p <= n; p++ {
		if n%p != 0 {
			continue
		}
		e := 0
		for n%p == 0 {
			n /= p
			e++
		}
		factors = append(factors, p)
		powers = append(powers, e)
	}
	if n > 1 {
		factors = append(factors, n)
		powers = append(powers, 1)
	}
	return factors, powers
}

// PreviousPrime returns the largest prime <= k, or 0 if there is none.
func PreviousPrime(k int) int {
	if k < 2 {
		return 0
	}
	if k == 2 {
		return 2
	}
	if k%2 == 0 {
		k--
	}
	for ; k >= 3; k -= 2 {
		if IsPrime(k) {
			return k
		}
	}
	return 2
}

// NextPrime returns the smallest prime >= k.
func NextPrime(k int) int {
	if k <= 2 {
		return 2
	}
	if k%2 == 0 {
		k++
	}
	for !IsPrime(k) {
		k += 2
	}
	return k
}

// ClosestPrime returns the prime nearest to k. Ties go to the smaller prime.
func ClosestPrime(k int) int {
	next := NextPrime(k)
	prev := PreviousPrime(k)
	if prev == 0 || next-k < k-prev {
		return next
	}
	return prev
}

// HasPrimitiveRootTwo reports whether p is an odd prime for which 2
// generates the multiplicative group modulo p.
func HasPrimitiveRootTwo(p int) bool {
	if p < 3 || !IsPrime(p) {
		return false
	}
	order := p - 1
	factors, _ := Factorize(order)
	for _, q := range factors {
		if powMod(2, uint64(order/q), uint64(p)) == 1 {
			return false
		}
	}
	return true
}

// PreviousNASet returns the largest prime <= k with primitive root 2, or 0
// if there is none.
func PreviousNASet(k int) int {
	for p := PreviousPrime(k); p >= 3; p = PreviousPrime(p - 1) {
		if HasPrimitiveRootTwo(p) {
			return p
		}
	}
	return 0
}

// NextNASet returns the smallest prime >= k with primitive root 2.
func NextNASet(k int) int {
	p := NextPrime(k)
	for !HasPrimitiveRootTwo(p) {
		p = NextPrime(p + 1)
	}
	return p
}

// ClosestNASet returns the prime with primitive root 2 nearest to k. Ties go
// to the smaller prime.
func ClosestNASet(k int) int {
	next := NextNASet(k)
	prev := PreviousNASet(k)
	if prev == 0 || next-k < k-prev {
		return next
	}
	return prev
}

// NASet returns the largest even k' <= k such that k'+1 is in the na-set.
// Older parameter calculators express input lengths this way.
func NASet(k int) int {
	p := PreviousNASet(k + 1)
	if p == 0 {
		return 0
	}
	return p - 1
}

func powMod(base, exp, mod uint64) uint64 {
	result := uint64(1) % mod
	base %= mod
	for exp > 0 {
		if exp&1 == 1 {
			result = mulMod(result, base, mod)
		}
		base = mulMod(base, base, mod)
		exp >>= 1
	}
	return result
}

func mulMod(a, b, mod uint64) uint64 {
	hi, lo := mbits.Mul64(a, b)
	return mbits.Rem64(hi, lo, mod)
}
