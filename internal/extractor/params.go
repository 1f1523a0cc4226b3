package extractor

import (
	"fmt"
	"math"

	"github.com/cryptomite-go/cryptomite/internal/extractor/trevisan"
	"github.com/cryptomite-go/cryptomite/internal/primes"
)

// Sources describes the two inputs available for extraction: their lengths
// in bits and lower bounds on their min-entropies. Log2Error is the base 2
// logarithm of the acceptable extractor error and must be negative.
type Sources struct {
	N1        int     `json:"n1"`
	K1        float64 `json:"k1"`
	N2        int     `json:"n2"`
	K2        float64 `json:"k2"`
	Log2Error float64 `json:"log2_error"`
	// QuantumProof selects the output lengths that stay secure against
	// quantum side information (Markov model for Circulant and Dodis).
	QuantumProof bool `json:"quantum_proof,omitempty"`
}

func (s Sources) check(needSeed bool) error {
	if s.N1 <= 0 {
		return fmt.Errorf("%w: n1 must be positive, got %d", ErrInvalidParameters, s.N1)
	}
	if s.K1 < 0 || s.K1 > float64(s.N1) {
		return fmt.Errorf("%w: k1 must lie in [0, n1], got %g", ErrInvalidParameters, s.K1)
	}
	if needSeed {
		if s.N2 <= 0 {
			return fmt.Errorf("%w: n2 must be positive, got %d", ErrInvalidParameters, s.N2)
		}
		if s.K2 < 0 || s.K2 > float64(s.N2) {
			return fmt.Errorf("%w: k2 must lie in [0, n2], got %g", ErrInvalidParameters, s.K2)
		}
	}
	return nil
}

func nonPositiveOutput(name string, m int) error {
	return fmt.Errorf("%w: %s output length %d is not positive; increase the min-entropies or the error", ErrInvalidParameters, name, m)
}

// ToeplitzFromParams returns Toeplitz parameters for the given sources. The
// seed must be longer than the input. When the seed is longer than needed its
// surplus bits are dropped and K2 is lowered by the number of dropped bits.
// The output length is the same in the classical and quantum-proof models.
func ToeplitzFromParams(s Sources) (Params, error) {
	if err := s.check(true); err != nil {
		return Params{}, err
	}
	if s.Log2Error > 0 {
		return Params{}, fmt.Errorf("%w: log2_error must be <= 0, got %g", ErrInvalidParameters, s.Log2Error)
	}
	if s.N2 <= s.N1 {
		return Params{}, fmt.Errorf("%w: the seed (n2=%d) must be longer than the input (n1=%d)", ErrInvalidParameters, s.N2, s.N1)
	}
	mMax := int(math.Floor(s.K1 + (s.K2 - float64(s.N2)) + 2*s.Log2Error))
	m := min(mMax, s.N2-s.N1+1)
	if m <= 0 {
		return Params{}, nonPositiveOutput(NameToeplitz, m)
	}
	n2 := s.N1 + m - 1
	return Params{
		Extractor: NameToeplitz,
		N1:        s.N1,
		K1:        s.K1,
		N2:        n2,
		K2:        s.K2 - float64(max(0, s.N2-n2)),
		M:         m,
		Log2Error: s.Log2Error,
	}, nil
}

// CirculantFromParams returns Circulant parameters for the given sources.
// The seed length p is the prime closest to (n1+n2)/2, lowered to the largest
// prime both sources can supply when they are too short for it; the input
// length is p-1. Min-entropies are reduced by the number of dropped bits.
func CirculantFromParams(s Sources) (Params, error) {
	if err := s.check(true); err != nil {
		return Params{}, err
	}
	if s.Log2Error >= 0 {
		return Params{}, fmt.Errorf("%w: log2_error must be < 0, got %g", ErrInvalidParameters, s.Log2Error)
	}
	p := primes.ClosestPrime((s.N1 + s.N2) / 2)
	if p-1 > s.N1 || p > s.N2 {
		p = primes.PreviousPrime(min(s.N1+1, s.N2))
	}
	if p < 3 {
		return Params{}, fmt.Errorf("%w: sources too short for a circulant extractor", ErrInvalidParameters)
	}
	k1 := s.K1 - float64(s.N1-(p-1))
	k2 := s.K2 - float64(s.N2-p)

	var m int
	if s.QuantumProof {
		m = int(math.Floor(0.2 * (k1 + k2 - float64(p) + 8*s.Log2Error + 8 - 4*math.Log2(3))))
	} else {
		m = int(math.Floor(k1 + k2 - float64(p) + 2*s.Log2Error))
	}
	if m <= 0 {
		return Params{}, nonPositiveOutput(NameCirculant, m)
	}
	return Params{
		Extractor: NameCirculant,
		N1:        p - 1,
		K1:        k1,
		N2:        p,
		K2:        k2,
		M:         min(m, p-1),
		Log2Error: s.Log2Error,
	}, nil
}

// DodisFromParams returns Dodis parameters for the given sources. Both
// inputs are cut to the largest prime n <= min(n1, n2) that has 2 as a
// primitive root, and the min-entropies are reduced by the dropped bits.
func DodisFromParams(s Sources) (Params, error) {
	if err := s.check(true); err != nil {
		return Params{}, err
	}
	if s.Log2Error > 0 {
		return Params{}, fmt.Errorf("%w: log2_error must be <= 0, got %g", ErrInvalidParameters, s.Log2Error)
	}
	n := primes.PreviousNASet(min(s.N1, s.N2))
	if n == 0 {
		return Params{}, fmt.Errorf("%w: sources too short for a dodis extractor", ErrInvalidParameters)
	}
	k1 := s.K1 - float64(s.N1-n)
	k2 := s.K2 - float64(s.N2-n)

	var m int
	if s.QuantumProof {
		m = int(math.Floor(0.2*(k1+k2-float64(n)) + 8*s.Log2Error + 9 - 4*math.Log2(3)))
	} else {
		m = int(math.Floor(k1 + k2 - float64(n) + 1 + 2*s.Log2Error))
	}
	if m <= 0 {
		return Params{}, nonPositiveOutput(NameDodis, m)
	}
	return Params{
		Extractor: NameDodis,
		N1:        n,
		K1:        k1,
		N2:        n,
		K2:        k2,
		M:         min(m, n),
		Log2Error: s.Log2Error,
	}, nil
}

// TrevisanFromParams returns Trevisan parameters for an n1-bit input with
// min-entropy k1. The seed is uniform; N2 is the seed length the resulting
// configuration consumes.
func TrevisanFromParams(s Sources) (Params, error) {
	if err := s.check(false); err != nil {
		return Params{}, err
	}
	if s.Log2Error >= 0 {
		return Params{}, fmt.Errorf("%w: log2_error must be < 0, got %g", ErrInvalidParameters, s.Log2Error)
	}
	cfg, err := trevisan.NewConfig(s.N1, s.K1, math.Exp2(s.Log2Error))
	if err != nil {
		return Params{}, fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	if cfg.M <= 0 {
		return Params{}, nonPositiveOutput(NameTrevisan, cfg.M)
	}
	return Params{
		Extractor: NameTrevisan,
		N1:        s.N1,
		K1:        s.K1,
		N2:        cfg.SeedLength(),
		K2:        float64(cfg.SeedLength()),
		M:         cfg.M,
		Log2Error: s.Log2Error,
	}, nil
}

// RazFromParams returns Raz parameters for the given sources using the basic
// search of CalcRazOut; detailed enables the exhaustive search.
func RazFromParams(s Sources, detailed bool) (Params, error) {
	if err := s.check(true); err != nil {
		return Params{}, err
	}
	if s.Log2Error >= 0 {
		return Params{}, fmt.Errorf("%w: log2_error must be < 0, got %g", ErrInvalidParameters, s.Log2Error)
	}
	if _, ok := KnownTrinomials[s.N1/2]; !ok {
		return Params{}, fmt.Errorf("%w: no known irreducible trinomial of degree n1/2=%d", ErrInvalidParameters, s.N1/2)
	}
	opts := DefaultRazSearch()
	opts.Detailed = detailed
	m, err := CalcRazOut(s.N1, s.K1, s.N2, s.K2, s.Log2Error, opts)
	if err != nil {
		return Params{}, err
	}
	if m <= 0 {
		return Params{}, nonPositiveOutput(NameRaz, m)
	}
	return Params{
		Extractor: NameRaz,
		N1:        s.N1,
		K1:        s.K1,
		N2:        s.N2,
		K2:        s.K2,
		M:         m,
		Log2Error: s.Log2Error,
		Trinomial: KnownTrinomials[s.N1/2],
	}, nil
}

// NameHayashi names the Hayashi-Tsurumaru construction. Only its parameters
// are computed; New does not build it.
const NameHayashi = "hayashi"

// HayashiFromParams returns parameters for the Hayashi-Tsurumaru extractor,
// which takes c blocks of a uniform seed-length input and emits c-1 blocks.
// The seed is cut to the largest length whose successor is a prime with
// primitive root 2, and K1/N1 is taken as the entropy rate of the input. c is
// the largest block count whose error bound stays within Log2Error, capped so
// the input fits in N1.
func HayashiFromParams(s Sources) (Params, error) {
	if err := s.check(true); err != nil {
		return Params{}, err
	}
	if s.Log2Error >= 0 {
		return Params{}, fmt.Errorf("%w: log2_error must be < 0, got %g", ErrInvalidParameters, s.Log2Error)
	}
	seed := primes.NASet(s.N2)
	if seed <= 0 {
		return Params{}, fmt.Errorf("%w: seed too short for a hayashi extractor", ErrInvalidParameters)
	}
	rate := s.K1 / float64(s.N1)
	bound := func(c int) float64 {
		return math.Log2(float64(c-1)) - float64(seed)/2*(1+float64(c)*(rate-1))
	}
	c := 2
	for c*seed <= s.N1 && bound(c) <= s.Log2Error {
		c++
	}
	c--
	m := (c - 1) * seed
	if m <= 0 {
		return Params{}, nonPositiveOutput(NameHayashi, m)
	}
	return Params{
		Extractor: NameHayashi,
		N1:        c * seed,
		K1:        s.K1 * float64(c*seed) / float64(s.N1),
		N2:        seed,
		K2:        float64(seed),
		M:         m,
		Log2Error: s.Log2Error,
	}, nil
}

// Calculate dispatches to the calculator for name.
func Calculate(name string, s Sources, detailed bool) (Params, error) {
	switch Normalize(name) {
	case NameToeplitz:
		return ToeplitzFromParams(s)
	case NameCirculant:
		return CirculantFromParams(s)
	case NameDodis:
		return DodisFromParams(s)
	case NameTrevisan:
		return TrevisanFromParams(s)
	case NameRaz:
		return RazFromParams(s, detailed)
	case NameHayashi:
		return HayashiFromParams(s)
	default:
		return Params{}, fmt.Errorf("%w: no parameter calculator for %q", ErrUnknownExtractor, name)
	}
}

// Suggest recommends an extractor. Exchangeable sequences are best served by
// von Neumann; otherwise Circulant, unless the input is longer than 10^6
// bits and speed is not a concern, in which case Trevisan.
func Suggest(n1 int, exchangeable, efficient bool) string {
	switch {
	case exchangeable:
		return "Von Neumann"
	case n1 <= 1_000_000 || efficient:
		return "Circulant"
	default:
		return "Trevisan"
	}
}
