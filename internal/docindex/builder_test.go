package docindex

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSample(t *testing.T) *Index {
	t.Helper()
	b := NewBuilder()
	require.NoError(t, b.AddDocument("intro", "intro.rst", "Introduction",
		"Randomness extractors turn weak random sources into uniform bits."))
	require.NoError(t, b.AddDocument("api", "api.rst", "API Reference",
		"The Toeplitz extractor and the Circulant extractor. Use from_params."))
	require.NoError(t, b.AddObject("", "cryptomite", "api", "py:module", "module-cryptomite", 0))
	require.NoError(t, b.AddObject("cryptomite", "Toeplitz", "api", "class", "cryptomite.Toeplitz", 1))
	require.NoError(t, b.AddObject("cryptomite.Toeplitz", "extract", "api", "py:method", "", 1))
	require.NoError(t, b.AddObject("cryptomite", "helper", "intro", "py:function", "helper-anchor", -1))
	b.SetEnvVersion("sphinx", 56)
	idx, err := b.Build()
	require.NoError(t, err)
	return idx
}

func TestBuilder(t *testing.T) {
	idx := buildSample(t)
	require.NoError(t, Validate(idx))

	assert.Equal(t, []string{"intro", "api"}, idx.DocNames)
	assert.Equal(t, []int{0, 1}, idx.Terms["extractor"].Docs())
	assert.Equal(t, []int{1}, idx.Terms["toeplitz"].Docs())
	assert.Equal(t, []int{1}, idx.Terms["from_params"].Docs())
	assert.NotContains(t, idx.Terms, "the")
	assert.Equal(t, []int{0}, idx.TitleTerms["introduction"].Docs())

	assert.Equal(t, "py:module", idx.ObjTypes["0"])
	assert.Equal(t, ObjName{Domain: "py", Kind: "class", Display: "Python class"}, idx.ObjNames["1"])

	ref, err := idx.Object("cryptomite")
	require.NoError(t, err)
	assert.Equal(t, "-", ref.Anchor)
	assert.Equal(t, "module-cryptomite", ref.AnchorID)

	ref, err = idx.Object("cryptomite.Toeplitz")
	require.NoError(t, err)
	assert.Equal(t, "", ref.Anchor)

	ref, err = idx.Object("cryptomite.helper")
	require.NoError(t, err)
	assert.Equal(t, "helper-anchor", ref.AnchorID)
	assert.Equal(t, -1, ref.Priority)
	assert.Equal(t, "intro", ref.Document.Name)

	assert.JSONEq(t, "56", string(idx.EnvVersion["sphinx"]))
}

func TestBuiltIndexRoundTrips(t *testing.T) {
	idx := buildSample(t)
	out, err := Encode(idx)
	require.NoError(t, err)
	back, err := Decode(out)
	require.NoError(t, err)
	assert.Equal(t, idx, back)

	d, err := Diff("built", idx, "decoded", back)
	require.NoError(t, err)
	assert.Empty(t, d)
}

func TestBuilderRejectsBadInput(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.AddDocument("a", "a.rst", "A", "text"))

	err := b.AddDocument("a", "a2.rst", "A again", "")
	assert.True(t, errors.Is(err, ErrInvalidIndex))
	err = b.AddDocument("", "x.rst", "", "")
	assert.True(t, errors.Is(err, ErrInvalidIndex))
	err = b.AddObject("", "f", "missing", "py:function", "", 1)
	assert.True(t, errors.Is(err, ErrInvalidIndex))
	err = b.AddObject("", "f", "a", "py:function", "", 3)
	assert.True(t, errors.Is(err, ErrInvalidIndex))

	idx, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Len())
}
