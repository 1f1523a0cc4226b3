package extractor

import "github.com/cryptomite-go/cryptomite/internal/bits"

// VonNeumann is the deterministic von Neumann extractor for exchangeable
// sources. It takes no seed and its output length depends on the input.
type VonNeumann struct{}

func (VonNeumann) Name() string { return NameVonNeumann }

// Extract debiases input1; input2 is ignored and may be nil.
func (VonNeumann) Extract(input1, _ bits.Bits) (bits.Bits, error) {
	if err := input1.Validate(); err != nil {
		return nil, err
	}
	return VonNeumannExtract(input1), nil
}

// VonNeumannExtract reads the input in non-overlapping pairs and emits the
// first bit of every pair whose bits differ. A trailing odd bit is dropped.
func VonNeumannExtract(in bits.Bits) bits.Bits {
	out := make(bits.Bits, 0, len(in)/4)
	for i := 0; i+1 < len(in); i += 2 {
		if in[i] != in[i+1] {
			out = append(out, in[i])
		}
	}
	return out
}
