package docindex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const manifestYAML = `
envversion:
  sphinx: 56
documents:
  - docname: index
    filename: index.rst
    title: Cryptomite
    body: Randomness extractors for quantum random number generators.
  - docname: performance
    filename: performance.rst
    title: Performance
    bodyFile: performance.txt
objects:
  - namespace: cryptomite
    name: Circulant
    docname: index
    kind: py:class
    priority: 1
  - namespace: cryptomite.circulant.Circulant
    name: extract
    docname: index
    kind: method
    priority: 1
`

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.yaml"), []byte(manifestYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "performance.txt"), []byte("Toeplitz throughput benchmarks"), 0o644))

	idx, err := LoadManifest(filepath.Join(dir, "manifest.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"index", "performance"}, idx.DocNames)
	assert.JSONEq(t, "56", string(idx.EnvVersion["sphinx"]))

	hits, err := idx.Term("toeplitz")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "performance", hits[0].Name)

	ref, err := idx.Object("cryptomite.circulant.Circulant.extract")
	require.NoError(t, err)
	assert.Equal(t, "method", ref.Type.Kind)
	assert.Equal(t, "Python method", ref.Type.Display)
}

func TestManifestErrors(t *testing.T) {
	_, err := ParseManifest([]byte("documents: [unclosed"))
	assert.Error(t, err)

	m, err := ParseManifest([]byte(`
documents:
  - docname: a
    bodyFile: missing.txt
`))
	require.NoError(t, err)
	_, err = m.Build(t.TempDir())
	assert.ErrorContains(t, err, `document "a"`)

	m, err = ParseManifest([]byte(`
documents:
  - docname: a
objects:
  - name: f
    docname: b
    kind: function
`))
	require.NoError(t, err)
	_, err = m.Build("")
	assert.ErrorIs(t, err, ErrInvalidIndex)
}
