package extractor

import (
	"fmt"
	"math"
)

// RazSearch tunes the parameter search behind OptErrorRaz and CalcRazOut.
type RazSearch struct {
	// MaxBasic bounds the number of l values tried around the initial guess.
	MaxBasic int
	// MaxDetailed bounds the l and p samples of the detailed search.
	MaxDetailed int
	// Detailed enables the exhaustive search, which is much slower.
	Detailed bool
	// MInit is the first output length CalcRazOut tries.
	MInit int
}

// DefaultRazSearch returns the search settings used by RazFromParams.
func DefaultRazSearch() RazSearch {
	return RazSearch{MaxBasic: 1, MaxDetailed: 1000, MInit: 1}
}

// RazBound is the best error bound found for one output length, along with
// the free parameters l (p' = 2^l) and p that achieve it. L and P are zero
// when no parameters improve on an error of 1.
type RazBound struct {
	Log2Error float64 `json:"log2_error"`
	L         int     `json:"l"`
	P         int     `json:"p"`
}

// Log2ErrorRaz bounds the base 2 logarithm of the error of the weak Raz
// extractor for output length m and free parameters l and p, where p is even
// and p <= 2^l/m.
func Log2ErrorRaz(n1 int, k1, k2 float64, m, l, p int) float64 {
	fp := float64(p)
	gamma := (float64(n1)-k1)/fp +
		math.Max((float64(l)-float64(n1)/2+1)/fp, math.Log2(fp)-k2/2) + 1
	return gamma + float64(m)/2
}

func checkRazInputs(n1 int, k1 float64, n2 int, k2 float64, m int, opts RazSearch) error {
	half := float64(n1) / 2
	switch {
	case n2 <= 0 || float64(n2) > half:
		return fmt.Errorf("%w: raz needs 0 < n2 <= n1/2, got n1=%d n2=%d", ErrInvalidParameters, n1, n2)
	case k1 <= 0 || k1 >= float64(n1) || k2 <= 0 || k2 >= float64(n2):
		return fmt.Errorf("%w: raz needs 0 < k1 < n1 and 0 < k2 < n2", ErrInvalidParameters)
	case m <= 0 || float64(m) > half:
		return fmt.Errorf("%w: raz needs 0 < m <= n1/2, got m=%d", ErrInvalidParameters, m)
	case n1%2 != 0:
		return fmt.Errorf("%w: raz needs an even n1, got %d", ErrInvalidParameters, n1)
	case opts.MaxBasic <= 0 || opts.MaxDetailed <= 0:
		return fmt.Errorf("%w: raz search limits must be positive", ErrInvalidParameters)
	}
	return nil
}

// OptErrorRaz searches the free parameters l and p for the smallest error
// bound at output length m.
func OptErrorRaz(n1 int, k1 float64, n2 int, k2 float64, m int, opts RazSearch) (RazBound, error) {
	if err := checkRazInputs(n1, k1, n2, k2, m, opts); err != nil {
		return RazBound{}, err
	}
	const maxPow = 32
	log2m := math.Log2(float64(m))
	ceilLog2m := int(math.Ceil(log2m))
	lMax := n2 + int(math.Floor(math.Log2(float64(n1)/2)))

	var best RazBound
	try := func(l, p int) {
		if eps := Log2ErrorRaz(n1, k1, k2, m, l, p); eps < best.Log2Error {
			best = RazBound{Log2Error: eps, L: l, P: p}
		}
	}
	// sampled tries evenly spread even values of p for one l.
	sampled := func(l int) {
		var pHalfMax int
		if float64(l)-log2m-1 < maxPow {
			pHalfMax = int(math.Exp2(float64(l) - log2m - 1))
		} else {
			pHalfMax = 1 << maxPow
		}
		n := min(pHalfMax, opts.MaxDetailed)
		if n <= 0 {
			return
		}
		step := float64(pHalfMax-1) / float64(n)
		for i := 0; i <= n; i++ {
			try(l, 2*int(math.RoundToEven(1+float64(i)*step)))
		}
	}

	lUse := max(int(math.Floor(math.Log2(float64(m)*(float64(n1)-k1)))), 1)
	maxPlus := min(lMax-lUse, (opts.MaxBasic-1)/2)
	maxMinus := min(lUse-ceilLog2m-1, (opts.MaxBasic-1)/2)
	for l := lUse - maxMinus; l <= lUse+maxPlus; l++ {
		pHalfMax := int(math.Floor(math.Exp2(float64(l)-log2m) / 2))
		for ph := 0; ph < pHalfMax; ph++ {
			try(l, 2*ph+2)
		}
	}

	if !opts.Detailed {
		return best, nil
	}
	n := min(lMax, opts.MaxDetailed)
	start := float64(ceilLog2m + 1)
	step := 0.0
	if n > 1 {
		step = (float64(lMax) - start) / float64(n-1)
	}
	for i := 0; i < n; i++ {
		sampled(int(math.RoundToEven(start + float64(i)*step)))
	}
	if best.L != 0 {
		bestL := best.L
		plus := min(lMax-bestL, opts.MaxDetailed/2)
		minus := min(bestL-ceilLog2m-1, opts.MaxDetailed/2)
		for l := bestL - minus; l <= bestL+plus; l++ {
			sampled(l)
		}
	}
	return best, nil
}

// CalcRazOut returns the largest output length whose optimised error bound
// does not exceed log2ErrorTol. It returns 0 when no positive length does.
func CalcRazOut(n1 int, k1 float64, n2 int, k2 float64, log2ErrorTol float64, opts RazSearch) (int, error) {
	if opts.MInit <= 0 {
		opts.MInit = 1
	}
	ok := func(m int) (bool, error) {
		b, err := OptErrorRaz(n1, k1, n2, k2, m, opts)
		if err != nil {
			return false, err
		}
		return b.Log2Error <= log2ErrorTol, nil
	}

	const initialTests = 100
	span := int(math.Floor(k2)) - opts.MInit
	steps := min(span, initialTests)
	ms := []int{opts.MInit}
	if steps > 0 {
		ms = ms[:0]
		step := float64(span) / float64(steps)
		for i := 0; i <= steps; i++ {
			ms = append(ms, int(math.RoundToEven(float64(opts.MInit)+float64(i)*step)))
		}
	}

	maxM := 0
	for _, m := range ms {
		good, err := ok(m)
		if err != nil {
			return 0, err
		}
		if !good {
			break
		}
		maxM = m
	}
	if opts.Detailed {
		for m := maxM + 1; m <= n1/2; m++ {
			good, err := ok(m)
			if err != nil {
				return 0, err
			}
			if !good {
				break
			}
			maxM = m
		}
	}
	return min(maxM, n1/2), nil
}
