package tokenizer

import (
	"fmt"
	"strings"
	"testing"
)

var sampleTexts = map[string]string{
	"short": "Randomness extractors turn weak sources into uniform bits",
	"medium": `The Circulant extractor is a seeded extractor that takes an input of
        n bits and a uniform seed of n+1 bits. It is a two-universal hash family,
        so its output is close to uniform whenever the input min-entropy exceeds
        the output length by twice the log of the error. The implementation uses
        the number theoretic transform to compute the product in n log n time.`,
	"long": strings.Repeat(`Quantum random number generators produce raw bits whose
        distribution is only partially characterised. Extractors post-process the
        raw output into bits that are statistically close to uniform, even against
        an adversary holding quantum side information. Toeplitz, Circulant and
        Dodis et al. are two-universal; Trevisan is a strong seeded extractor with
        a short seed and Raz handles two weak sources at once. `, 20),
}

func BenchmarkTokenize(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = Tokenize(text)
			}
		})
	}
}

func BenchmarkTokenizeParallel(b *testing.B) {
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = Tokenize(text)
		}
	})
}

func BenchmarkStem(b *testing.B) {
	words := []string{
		"extractors", "randomness", "generating", "characterised",
		"distribution", "universal", "efficiently", "parameters",
		"convolution", "irreducible",
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		for _, w := range words {
			_ = Stem(w)
		}
	}
}

func BenchmarkTermsVaryingSize(b *testing.B) {
	sizes := []int{10, 100, 500, 1000, 5000}
	baseWord := "circulant toeplitz dodis trevisan extractor "
	for _, size := range sizes {
		text := strings.Repeat(baseWord, size/len(baseWord)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = Terms(text)
			}
		})
	}
}
