package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptomite-go/cryptomite/internal/pipeline"
	"github.com/cryptomite-go/cryptomite/pkg/config"
	"github.com/cryptomite-go/cryptomite/pkg/kafka"
)

const fixture = "../../internal/docindex/testdata/searchindex.js"

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), err
}

func TestUnknownCommand(t *testing.T) {
	_, err := runCLI(t, "frobnicate")
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))

	_, err = runCLI(t)
	assert.ErrorIs(t, err, flag.ErrHelp)
}

func TestExtract(t *testing.T) {
	out, err := runCLI(t, "extract", "-extractor", "toeplitz", "-n", "16", "-m", "5",
		"-input1", "1011011010110010", "-input2", "10000011011010000101")
	require.NoError(t, err)
	assert.Equal(t, "01000\n", out)

	out, err = runCLI(t, "extract", "-extractor", "Von Neumann", "-json", "-input1", "01 10 11 00 10 01 1")
	require.NoError(t, err)
	var res extractOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "vonneumann", res.Extractor)
	assert.Equal(t, "0110", res.Output)
	assert.Equal(t, 4, res.OutputBits)
}

func TestExtractRandomInputs(t *testing.T) {
	out, err := runCLI(t, "extract", "-extractor", "toeplitz", "-n", "16", "-m", "5", "-random")
	require.NoError(t, err)
	assert.Len(t, strings.TrimSpace(out), 5)
}

func TestExtractFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.bin")
	require.NoError(t, os.WriteFile(path, []byte{0x66}, 0o644)) // 01100110
	out, err := runCLI(t, "extract", "-extractor", "vonneumann", "-input1-file", path)
	require.NoError(t, err)
	assert.Equal(t, "0101\n", out)

	_, err = runCLI(t, "extract", "-extractor", "vonneumann", "-input1", "01", "-input1-file", path)
	assert.Equal(t, 2, exitCode(err))
}

func TestExtractErrors(t *testing.T) {
	_, err := runCLI(t, "extract", "-n", "4")
	assert.Equal(t, 2, exitCode(err), "missing -extractor")

	_, err = runCLI(t, "extract", "-extractor", "toeplitz", "-n", "16", "-m", "5", "-input1", "01", "-input2", "01")
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))
}

func TestParams(t *testing.T) {
	out, err := runCLI(t, "params", "-extractor", "toeplitz",
		"-n1", "100", "-k1", "80", "-n2", "200", "-k2", "190", "-error", "-10")
	require.NoError(t, err)
	assert.Contains(t, out, "extractor: toeplitz")
	assert.Contains(t, out, "n2: 149")
	assert.Contains(t, out, "m: 50")

	out, err = runCLI(t, "params", "-format", "json", "-extractor", "toeplitz",
		"-n1", "100", "-k1", "80", "-n2", "200", "-k2", "190", "-error", "-10")
	require.NoError(t, err)
	var p map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	assert.Equal(t, float64(50), p["m"])

	_, err = runCLI(t, "params", "-extractor", "vonneumann", "-n1", "10")
	assert.Error(t, err)
}

func TestSuggestAndPrimes(t *testing.T) {
	out, err := runCLI(t, "suggest", "-n", "2000000")
	require.NoError(t, err)
	assert.Equal(t, "Trevisan (trevisan)\n", out)

	out, err = runCLI(t, "primes", "-near", "100")
	require.NoError(t, err)
	var res primesOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 101, res.ClosestPrime)
	assert.Equal(t, 83, res.PreviousNA)
	assert.Equal(t, 101, res.NextNA)
	assert.Equal(t, 100, res.CirculantN)
}

type fakePublisher struct {
	events  []kafka.Event
	batches int
	closed  bool
}

func (f *fakePublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	f.batches++
	f.events = append(f.events, events...)
	return nil
}

func (f *fakePublisher) Close() error { f.closed = true; return nil }

func TestSubmit(t *testing.T) {
	pub := &fakePublisher{}
	prev := newJobPublisher
	newJobPublisher = func(*config.Config) jobPublisher { return pub }
	t.Cleanup(func() { newJobPublisher = prev })

	out, err := runCLI(t, "submit", "-config", "", "-id", "job-7", "-extractor", "Toeplitz",
		"-n", "16", "-m", "5", "-input1", "1011011010110010", "-input2", "10000011011010000101")
	require.NoError(t, err)
	assert.Equal(t, "job-7\n", out)
	require.Len(t, pub.events, 1)
	assert.True(t, pub.closed)

	job := pub.events[0].Value.(pipeline.Job)
	assert.Equal(t, "job-7", pub.events[0].Key)
	assert.Equal(t, "toeplitz", job.Extractor)
	assert.Equal(t, "toeplitz", job.Params.Extractor)
	assert.Equal(t, 16, job.Params.N1)
	assert.Equal(t, "1011011010110010", job.Input1)

	_, err = runCLI(t, "submit", "-config", "", "-extractor", "blum")
	assert.Error(t, err)
	assert.Len(t, pub.events, 1, "invalid jobs are not published")
}

func TestSubmitBatch(t *testing.T) {
	pub := &fakePublisher{}
	prev := newJobPublisher
	newJobPublisher = func(*config.Config) jobPublisher { return pub }
	t.Cleanup(func() { newJobPublisher = prev })

	out, err := runCLI(t, "submit", "-config", "", "-extractor", "toeplitz",
		"-n", "16", "-m", "5", "-random", "-count", "3")
	require.NoError(t, err)
	ids := strings.Fields(out)
	require.Len(t, ids, 3)
	require.Len(t, pub.events, 3)
	assert.Equal(t, 1, pub.batches, "jobs go out in one write")

	seen := map[string]bool{}
	for i, e := range pub.events {
		job := e.Value.(pipeline.Job)
		assert.Equal(t, ids[i], job.ID)
		assert.Len(t, job.Input1, 16)
		assert.Len(t, job.Input2, 20)
		seen[job.ID] = true
	}
	assert.Len(t, seen, 3)

	_, err = runCLI(t, "submit", "-config", "", "-id", "x", "-extractor", "toeplitz",
		"-n", "16", "-m", "5", "-random", "-count", "2")
	assert.Error(t, err)
	_, err = runCLI(t, "submit", "-config", "", "-extractor", "toeplitz", "-count", "0")
	assert.Error(t, err)
	assert.Len(t, pub.events, 3)
}

func TestIndexCommands(t *testing.T) {
	out, err := runCLI(t, "index", "validate", fixture)
	require.NoError(t, err)
	assert.Contains(t, out, ": ok")

	out, err = runCLI(t, "index", "stats", fixture)
	require.NoError(t, err)
	assert.Contains(t, out, `"documents"`)

	out, err = runCLI(t, "index", "lookup", "-object", "cryptomite.Toeplitz", fixture)
	require.NoError(t, err)
	assert.Contains(t, out, `"full_name": "cryptomite.Toeplitz"`)

	_, err = runCLI(t, "index", "lookup", "-term", "a", "-doc", "b", fixture)
	assert.Equal(t, 2, exitCode(err))

	dir := t.TempDir()
	copyPath := filepath.Join(dir, "copy.js.gz")
	_, err = runCLI(t, "index", "copy", fixture, copyPath)
	require.NoError(t, err)

	out, err = runCLI(t, "index", "diff", "-exit-code", fixture, copyPath)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestIndexBuildAndDiff(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "manifest.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte(`
documents:
  - docname: index
    filename: index.rst
    title: Extractors
    body: Circulant and Toeplitz extractors
objects:
  - namespace: cryptomite
    name: Circulant
    docname: index
    kind: class
    priority: 1
`), 0o644))
	built := filepath.Join(dir, "searchindex.js")

	out, err := runCLI(t, "index", "build", "-manifest", manifest, built)
	require.NoError(t, err)
	assert.Contains(t, out, "1 documents")

	out, err = runCLI(t, "index", "lookup", "-term", "Toeplitz", built)
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "index"`)

	out, err = runCLI(t, "index", "diff", "-exit-code", built, fixture)
	assert.ErrorIs(t, err, errIndexesDiffer)
	assert.True(t, strings.HasPrefix(out, "--- "+built))

	_, err = runCLI(t, "index", "build", built)
	assert.Equal(t, 2, exitCode(err), "missing -manifest")
}

func TestIndexValidateReportsProblems(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.js")
	require.NoError(t, os.WriteFile(path, []byte(
		`Search.setIndex({docnames:["a"],filenames:[],titles:["A"],terms:{x:3},titleterms:{},objects:{},objnames:{},objtypes:{},envversion:{}})`,
	), 0o644))
	out, err := runCLI(t, "index", "validate", path)
	require.Error(t, err)
	assert.Contains(t, out, "problem(s)")
	assert.Contains(t, out, "filenames has 0 entries")
}
