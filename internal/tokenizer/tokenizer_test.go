package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	toks := Tokenize("The Toeplitz extractor hashes the input; see __init__ and x_1.")
	var terms []string
	for _, tok := range toks {
		terms = append(terms, tok.Term)
	}
	assert.Equal(t, []string{"toeplitz", "extractor", "hash", "input", "see", "__init__", "x_1"}, terms)
	assert.Equal(t, 0, toks[0].Position)
	assert.Equal(t, 6, toks[6].Position)
}

func TestStem(t *testing.T) {
	cases := map[string]string{
		"extractors":  "extractor",
		"computing":   "comput",
		"studies":     "study",
		"relational":  "relate",
		"class":       "class",
		"is":          "is",
		"v2":          "v2",
		"from_params": "from_params",
	}
	for in, want := range cases {
		assert.Equal(t, want, Stem(in), in)
	}
}

func TestTermsAreDistinct(t *testing.T) {
	assert.Equal(t, []string{"seed", "extractor"}, Terms("seed extractor seeds extractors"))
	assert.Empty(t, Terms("the and of"))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "extractor", Normalize("  Extractors "))
	assert.Equal(t, "", Normalize("The"))
	assert.Equal(t, "", Normalize(""))
}
