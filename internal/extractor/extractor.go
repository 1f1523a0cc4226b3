// Package extractor implements the seeded and two-source randomness
// extractors: Toeplitz, Circulant, Dodis, Raz, von Neumann, and (through the
// trevisan subpackage) Trevisan. It also provides the calculators that turn
// source lengths, min-entropies and a target error into valid extractor
// parameters.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/cryptomite-go/cryptomite/internal/bits"
	"github.com/cryptomite-go/cryptomite/internal/extractor/trevisan"
)

var (
	// ErrInputLength is returned when an input does not have the length the
	// extractor was configured for.
	ErrInputLength = errors.New("extractor: wrong input length")
	// ErrInvalidParameters is returned for parameters under which no
	// extraction is possible.
	ErrInvalidParameters = errors.New("extractor: invalid parameters")
	// ErrUnknownExtractor is returned by New for an unregistered name.
	ErrUnknownExtractor = errors.New("extractor: unknown extractor")
)

// Extractor names accepted by New and used in Params.
const (
	NameToeplitz   = "toeplitz"
	NameCirculant  = "circulant"
	NameDodis      = "dodis"
	NameRaz        = "raz"
	NameTrevisan   = "trevisan"
	NameVonNeumann = "vonneumann"
)

// Extractor turns a weak input and a (weak) seed into output bits. Input and
// seed lengths are fixed at construction time.
type Extractor interface {
	Name() string
	Extract(input1, input2 bits.Bits) (bits.Bits, error)
}

// ContextExtractor is implemented by extractors whose work can be
// cancelled part way through.
type ContextExtractor interface {
	ExtractContext(ctx context.Context, input1, input2 bits.Bits) (bits.Bits, error)
}

// ExtractContext runs ext under ctx. Extractors that are not a
// ContextExtractor only check ctx before starting.
func ExtractContext(ctx context.Context, ext Extractor, input1, input2 bits.Bits) (bits.Bits, error) {
	if ce, ok := ext.(ContextExtractor); ok {
		return ce.ExtractContext(ctx, input1, input2)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ext.Extract(input1, input2)
}

// Sized is implemented by extractors with fixed input, seed and output
// lengths; every extractor except von Neumann is Sized.
type Sized interface {
	InputLength() int
	SeedLength() int
	OutputLength() int
}

// Params fully describes an extractor instance. N1 and N2 are the input and
// seed lengths the instance expects; K1 and K2 the min-entropies they were
// derived from.
type Params struct {
	Extractor string  `json:"extractor" yaml:"extractor"`
	N1        int     `json:"n1" yaml:"n1"`
	N2        int     `json:"n2" yaml:"n2"`
	M         int     `json:"m" yaml:"m"`
	K1        float64 `json:"k1,omitempty" yaml:"k1"`
	K2        float64 `json:"k2,omitempty" yaml:"k2"`
	Log2Error float64 `json:"log2_error,omitempty" yaml:"log2_error"`
	Trinomial int     `json:"trinomial,omitempty" yaml:"trinomial"`
}

// Names lists every extractor New understands.
func Names() []string {
	return []string{NameToeplitz, NameCirculant, NameDodis, NameRaz, NameTrevisan, NameVonNeumann}
}

// Normalize maps the display names used in suggestions ("Von Neumann",
// "Circulant") and mixed-case input to registry names.
func Normalize(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.NewReplacer(" ", "", "-", "", "_", "").Replace(n)
	return n
}

// New builds the extractor named by name from p. p.Extractor is ignored.
func New(name string, p Params) (Extractor, error) {
	ext, err := build(name, p)
	if err != nil {
		return nil, err
	}
	return ext, nil
}

// FromParams builds the extractor described by p.Extractor.
func FromParams(p Params) (Extractor, error) {
	return New(p.Extractor, p)
}

func build(name string, p Params) (Extractor, error) {
	switch Normalize(name) {
	case NameToeplitz:
		return NewToeplitz(p.N1, p.M)
	case NameCirculant:
		return NewCirculant(p.N1, p.M)
	case NameDodis:
		return NewDodis(p.N1, p.M)
	case NameRaz:
		return NewRaz(p.N1, p.M, p.Trinomial)
	case NameVonNeumann:
		return VonNeumann{}, nil
	case NameTrevisan:
		if p.Log2Error >= 0 {
			return nil, fmt.Errorf("%w: trevisan needs log2_error < 0, got %g", ErrInvalidParameters, p.Log2Error)
		}
		eps := math.Exp2(p.Log2Error)
		cfg, err := trevisan.NewConfig(p.N1, p.K1, eps)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidParameters, err)
		}
		ext, err := trevisan.New(cfg)
		if err != nil {
			return nil, err
		}
		return trevisanExtractor{ext}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownExtractor, name)
	}
}

func checkLen(what string, b bits.Bits, want int) error {
	if len(b) != want {
		return fmt.Errorf("%w: %s has %d bits, want %d", ErrInputLength, what, len(b), want)
	}
	return b.Validate()
}

// spread copies b into dst starting at off.
func spread(dst []uint64, off int, b bits.Bits) {
	for i, v := range b {
		dst[off+i] = uint64(v & 1)
	}
}

// trevisanExtractor reports trevisan length errors as ErrInputLength.
type trevisanExtractor struct {
	*trevisan.Extractor
}

func (t trevisanExtractor) Extract(input1, input2 bits.Bits) (bits.Bits, error) {
	return t.ExtractContext(context.Background(), input1, input2)
}

func (t trevisanExtractor) ExtractContext(ctx context.Context, input1, input2 bits.Bits) (bits.Bits, error) {
	out, err := t.Extractor.ExtractContext(ctx, input1, input2)
	if errors.Is(err, trevisan.ErrInputLength) {
		return nil, fmt.Errorf("%w: %v", ErrInputLength, err)
	}
	return out, err
}
