// Package trevisan implements Trevisan's seeded extractor: a block weak
// design selects, for every output bit, 2l positions of the seed, and a
// Reed–Solomon–Hadamard one-bit extractor applied to the whole input with
// those seed bits produces the output bit.
package trevisan

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/cryptomite-go/cryptomite/internal/bits"
)

var (
	// ErrInputLength is returned when the input or seed length does not
	// match the configuration.
	ErrInputLength = errors.New("trevisan: wrong input length")
	// ErrConfig is returned when no configuration satisfies the request.
	ErrConfig = errors.New("trevisan: no valid configuration")
)

// Name is the registry name of the extractor.
const Name = "trevisan"

// Config holds the derived parameters of a Trevisan extractor.
type Config struct {
	// N is the input length and K its min-entropy.
	N int     `json:"n"`
	K float64 `json:"k"`
	// M is the output length.
	M int `json:"m"`
	// L is the degree of the one-bit extractor field; each output bit
	// consumes 2L seed bits.
	L int `json:"l"`
	// LogT is log2 of the weak design field size T >= 2L.
	LogT int `json:"log_t"`
	T    int `json:"t"`
	// LogEps is log2 of the per-bit error.
	LogEps float64 `json:"log_eps"`
}

// NewConfig chooses the largest output length m such that the total error
// m * eps stays within maxEps, where each bit has error
// eps = 2^((m - k + 6) / 4) for the block weak design.
func NewConfig(n int, k, maxEps float64) (Config, error) {
	switch {
	case n <= 0:
		return Config{}, fmt.Errorf("%w: input length %d", ErrConfig, n)
	case k <= 0 || k > float64(n):
		return Config{}, fmt.Errorf("%w: min-entropy %g outside (0, %d]", ErrConfig, k, n)
	case maxEps <= 0 || maxEps >= 1:
		return Config{}, fmt.Errorf("%w: error %g outside (0, 1)", ErrConfig, maxEps)
	}
	const r = 1.0
	logMaxEps := math.Log2(maxEps)
	cfg := Config{N: n, K: k}
	for step := 1 << 30; step > 0; step >>= 1 {
		try := cfg.M + step
		logEps := (float64(try)*r - k + 6) / 4
		if math.Log2(float64(try))+logEps <= logMaxEps {
			cfg.M = try
			cfg.LogEps = logEps
		}
	}
	if cfg.M == 0 {
		return Config{}, fmt.Errorf("%w: min-entropy %g too low for error 2^%.2f", ErrConfig, k, logMaxEps)
	}
	cfg.L = int(math.Ceil(math.Log2(float64(n)) + 2*(1-cfg.LogEps)))
	if cfg.L > MaxDegree {
		return Config{}, fmt.Errorf("%w: one-bit extractor needs a field of degree %d, max %d", ErrConfig, cfg.L, MaxDegree)
	}
	cfg.LogT = int(math.Ceil(math.Log2(float64(2 * cfg.L))))
	cfg.T = 1 << cfg.LogT
	return cfg, nil
}

// SeedLength is the number of seed bits the configuration consumes.
func (c Config) SeedLength() int {
	return (blockCount(c.M, c.T) + 1) * c.T * c.T
}

// Extractor is a Trevisan extractor. It is safe for concurrent use.
type Extractor struct {
	cfg    Config
	design *blockDesign
	oneBit *rsh
}

// New builds the weak design and one-bit extractor for cfg.
func New(cfg Config) (*Extractor, error) {
	design, err := newBlockDesign(cfg.M, cfg.LogT)
	if err != nil {
		return nil, err
	}
	oneBit, err := newRSH(cfg.N, cfg.L)
	if err != nil {
		return nil, err
	}
	return &Extractor{cfg: cfg, design: design, oneBit: oneBit}, nil
}

func (e *Extractor) Name() string { return Name }

// Config returns the parameters the extractor was built with.
func (e *Extractor) Config() Config { return e.cfg }

// InputLength is the number of input bits.
func (e *Extractor) InputLength() int { return e.cfg.N }

// SeedLength is the number of seed bits.
func (e *Extractor) SeedLength() int { return e.design.seedLength() }

// OutputLength is the number of output bits.
func (e *Extractor) OutputLength() int { return e.cfg.M }

// Extract runs the extractor on an n-bit input and a SeedLength() seed.
func (e *Extractor) Extract(input, seed bits.Bits) (bits.Bits, error) {
	return e.ExtractContext(context.Background(), input, seed)
}

// ExtractContext is Extract with cancellation. Output bits are computed in
// parallel, one contiguous range per CPU.
func (e *Extractor) ExtractContext(ctx context.Context, input, seed bits.Bits) (bits.Bits, error) {
	if len(input) != e.cfg.N {
		return nil, fmt.Errorf("%w: input has %d bits, want %d", ErrInputLength, len(input), e.cfg.N)
	}
	if len(seed) != e.SeedLength() {
		return nil, fmt.Errorf("%w: seed has %d bits, want %d", ErrInputLength, len(seed), e.SeedLength())
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}
	if err := seed.Validate(); err != nil {
		return nil, err
	}

	coeffs := e.oneBit.coefficients(input)
	out := make(bits.Bits, e.cfg.M)
	workers := runtime.GOMAXPROCS(0)
	chunk := (e.cfg.M + workers - 1) / workers

	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < e.cfg.M; start += chunk {
		end := min(start+chunk, e.cfg.M)
		g.Go(func() error {
			positions := make([]uint64, 2*e.cfg.L)
			for i := start; i < end; i++ {
				if (i-start)%256 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				b, err := e.bit(i, coeffs, seed, positions)
				if err != nil {
					return err
				}
				out[i] = b
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ExtractBit computes output bit i alone.
func (e *Extractor) ExtractBit(input, seed bits.Bits, i int) (uint8, error) {
	if len(input) != e.cfg.N || len(seed) != e.SeedLength() {
		return 0, fmt.Errorf("%w: got %d input and %d seed bits, want %d and %d",
			ErrInputLength, len(input), len(seed), e.cfg.N, e.SeedLength())
	}
	return e.bit(i, e.oneBit.coefficients(input), seed, make([]uint64, 2*e.cfg.L))
}

func (e *Extractor) bit(i int, coeffs []Poly, seed bits.Bits, positions []uint64) (uint8, error) {
	if err := e.design.set(i, positions); err != nil {
		return 0, err
	}
	var alpha, beta Poly
	for j := 0; j < e.cfg.L; j++ {
		if seed[positions[j]]&1 == 1 {
			alpha.SetBit(j)
		}
		if seed[positions[e.cfg.L+j]]&1 == 1 {
			beta.SetBit(j)
		}
	}
	return e.oneBit.bit(coeffs, alpha, beta), nil
}
