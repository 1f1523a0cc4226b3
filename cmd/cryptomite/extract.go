package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cryptomite-go/cryptomite/internal/bits"
	"github.com/cryptomite-go/cryptomite/internal/extractor"
	"github.com/cryptomite-go/cryptomite/internal/primes"
	"github.com/cryptomite-go/cryptomite/pkg/logger"
)

// bitsFlags reads an input either as a bit string or, with the -file
// variant, as the raw bytes of a file.
type bitsFlags struct {
	literal string
	file    string
}

func (b *bitsFlags) load(what string) (bits.Bits, error) {
	if b.file == "" {
		v, err := bits.Parse(b.literal)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", what, err)
		}
		return v, nil
	}
	if b.literal != "" {
		return nil, usageError{fmt.Errorf("%s: give a bit string or a file, not both", what)}
	}
	data, err := os.ReadFile(b.file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	return bits.FromBytes(data), nil
}

type extractOutput struct {
	Extractor  string  `json:"extractor"`
	Output     string  `json:"output"`
	OutputBits int     `json:"output_bits"`
	LatencyMS  float64 `json:"latency_ms"`
}

func runExtract(_ context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("extract")
	name := fs.String("extractor", "", "extractor name ("+fmt.Sprint(extractor.Names())+")")
	var p extractor.Params
	fs.IntVar(&p.N1, "n", 0, "input length in bits")
	fs.IntVar(&p.M, "m", 0, "output length in bits")
	fs.Float64Var(&p.K1, "k", 0, "input min-entropy (trevisan)")
	fs.Float64Var(&p.Log2Error, "error", 0, "log2 of the extractor error (trevisan)")
	fs.IntVar(&p.Trinomial, "trinomial", 0, "middle exponent of the reduction trinomial (raz, 0 = table)")
	var in1, in2 bitsFlags
	fs.StringVar(&in1.literal, "input1", "", "weak input as a bit string")
	fs.StringVar(&in1.file, "input1-file", "", "read the weak input from a binary file")
	fs.StringVar(&in2.literal, "input2", "", "seed as a bit string")
	fs.StringVar(&in2.file, "input2-file", "", "read the seed from a binary file")
	random := fs.Bool("random", false, "draw inputs that are not given from crypto/rand")
	asJSON := fs.Bool("json", false, "print a JSON result instead of the bare output bits")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *name == "" {
		return usageError{fmt.Errorf("-extractor is required")}
	}

	ext, err := extractor.New(*name, p)
	if err != nil {
		return err
	}
	input1, err := in1.load("input1")
	if err != nil {
		return err
	}
	input2, err := in2.load("input2")
	if err != nil {
		return err
	}
	if *random {
		if input1, input2, err = fillRandom(ext, input1, input2); err != nil {
			return err
		}
	}

	start := time.Now()
	out, err := ext.Extract(input1, input2)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)
	logger.WithComponent("cli").Debug("extraction completed",
		"extractor", ext.Name(),
		"input_bits", len(input1)+len(input2),
		"output_bits", len(out),
		"latency_ms", elapsed.Milliseconds(),
	)

	if *asJSON {
		return writeJSON(stdout, extractOutput{
			Extractor:  ext.Name(),
			Output:     out.String(),
			OutputBits: len(out),
			LatencyMS:  float64(elapsed.Microseconds()) / 1000,
		})
	}
	_, err = fmt.Fprintln(stdout, out.String())
	return err
}

// fillRandom replaces empty inputs with random bits of the lengths ext
// expects.
func fillRandom(ext extractor.Extractor, in1, in2 bits.Bits) (bits.Bits, bits.Bits, error) {
	sized, ok := ext.(extractor.Sized)
	if !ok {
		if len(in1) == 0 {
			return nil, nil, usageError{fmt.Errorf("%s has no fixed input length; give -input1", ext.Name())}
		}
		return in1, in2, nil
	}
	var err error
	if len(in1) == 0 {
		if in1, err = bits.Random(sized.InputLength()); err != nil {
			return nil, nil, err
		}
	}
	if len(in2) == 0 {
		if in2, err = bits.Random(sized.SeedLength()); err != nil {
			return nil, nil, err
		}
	}
	return in1, in2, nil
}

func runParams(_ context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("params")
	name := fs.String("extractor", "", "extractor name (toeplitz, circulant, dodis, trevisan, raz)")
	var s extractor.Sources
	fs.IntVar(&s.N1, "n1", 0, "length of the weak input")
	fs.Float64Var(&s.K1, "k1", 0, "min-entropy of the weak input")
	fs.IntVar(&s.N2, "n2", 0, "length of the seed")
	fs.Float64Var(&s.K2, "k2", 0, "min-entropy of the seed")
	fs.Float64Var(&s.Log2Error, "error", 0, "log2 of the acceptable error (negative)")
	fs.BoolVar(&s.QuantumProof, "quantum", false, "use output lengths secure against quantum side information")
	detailed := fs.Bool("detailed", false, "run the slower, tighter Raz output search")
	format := fs.String("format", "yaml", "output format: yaml or json")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *name == "" {
		return usageError{fmt.Errorf("-extractor is required")}
	}
	p, err := extractor.Calculate(*name, s, *detailed)
	if err != nil {
		return err
	}
	switch *format {
	case "json":
		return writeJSON(stdout, p)
	case "yaml":
		enc := yaml.NewEncoder(stdout)
		enc.SetIndent(2)
		if err := enc.Encode(p); err != nil {
			return err
		}
		return enc.Close()
	default:
		return usageError{fmt.Errorf("unknown format %q", *format)}
	}
}

func runSuggest(_ context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("suggest")
	n := fs.Int("n", 0, "input length in bits")
	exchangeable := fs.Bool("exchangeable", false, "the source emits exchangeable bits")
	efficient := fs.Bool("efficient", false, "prefer speed over seed length")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *n <= 0 {
		return usageError{fmt.Errorf("-n must be positive")}
	}
	display := extractor.Suggest(*n, *exchangeable, *efficient)
	_, err := fmt.Fprintf(stdout, "%s (%s)\n", display, extractor.Normalize(display))
	return err
}

type primesOutput struct {
	Near         int  `json:"near"`
	IsPrime      bool `json:"is_prime"`
	ClosestPrime int  `json:"closest_prime"`
	PreviousNA   int  `json:"previous_na_set"`
	NextNA       int  `json:"next_na_set"`
	ClosestNA    int  `json:"closest_na_set"`
	// CirculantN is the largest Circulant input length not above Near.
	CirculantN int `json:"circulant_n"`
}

func runPrimes(_ context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("primes")
	near := fs.Int("near", 0, "length to search around")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *near < 2 {
		return usageError{fmt.Errorf("-near must be at least 2")}
	}
	k := *near
	return writeJSON(stdout, primesOutput{
		Near:         k,
		IsPrime:      primes.IsPrime(k),
		ClosestPrime: primes.ClosestPrime(k),
		PreviousNA:   primes.PreviousNASet(k),
		NextNA:       primes.NextNASet(k),
		ClosestNA:    primes.ClosestNASet(k),
		CirculantN:   primes.NASet(k),
	})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
