package docindex

import (
	"fmt"
	"os"
	"testing"
)

var benchTerms = []string{"toeplitz", "circulant", "dodis", "trevisan", "raz", "entropy", "seed", "error"}

// buildCorpus indexes n synthetic pages, each documenting one object.
func buildCorpus(b *testing.B, n int) *Index {
	b.Helper()
	bld := NewBuilder()
	for i := 0; i < n; i++ {
		doc := fmt.Sprintf("page-%d", i)
		title := fmt.Sprintf("%s and %s", benchTerms[i%len(benchTerms)], benchTerms[(i+1)%len(benchTerms)])
		body := fmt.Sprintf("this page covers %s %s %s extraction with quantum side information",
			benchTerms[i%len(benchTerms)], benchTerms[(i+2)%len(benchTerms)], benchTerms[(i+3)%len(benchTerms)])
		if err := bld.AddDocument(doc, doc+".rst", title, body); err != nil {
			b.Fatal(err)
		}
		if err := bld.AddObject("cryptomite.bench", fmt.Sprintf("Func%d", i), doc, "function", "", 1); err != nil {
			b.Fatal(err)
		}
	}
	idx, err := bld.Build()
	if err != nil {
		b.Fatal(err)
	}
	return idx
}

func BenchmarkBuild(b *testing.B) {
	for _, size := range []int{100, 1000, 5000} {
		b.Run(fmt.Sprintf("docs_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				buildCorpus(b, size)
			}
		})
	}
}

func BenchmarkTermLookup(b *testing.B) {
	idx := buildCorpus(b, 10000)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := idx.Term(benchTerms[i%len(benchTerms)]); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkTermLookupParallel(b *testing.B) {
	idx := buildCorpus(b, 10000)
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if _, err := idx.Term(benchTerms[i%len(benchTerms)]); err != nil {
				b.Fatal(err)
			}
			i++
		}
	})
}

func BenchmarkEncode(b *testing.B) {
	data, err := os.ReadFile("testdata/searchindex.js")
	if err != nil {
		b.Fatal(err)
	}
	idx, err := Decode(data)
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Encode(idx); err != nil {
			b.Fatal(err)
		}
	}
}
