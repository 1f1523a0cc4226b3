package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptomite-go/cryptomite/internal/docindex"
	"github.com/cryptomite-go/cryptomite/pkg/config"
)

const fixture = "../testdata/searchindex.js"

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStore() *memStore { return &memStore{objects: make(map[string][]byte)} }

func (m *memStore) Get(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStore) Put(_ context.Context, bucket, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = append([]byte(nil), data...)
	return nil
}

func TestCompressionFor(t *testing.T) {
	assert.Equal(t, CompressionGzip, CompressionFor("docs/searchindex.js.gz"))
	assert.Equal(t, CompressionZstd, CompressionFor("searchindex.js.ZST"))
	assert.Equal(t, CompressionLZ4, CompressionFor("a.lz4"))
	assert.Equal(t, CompressionNone, CompressionFor("searchindex.js"))
}

func TestFileRoundTripAllCompressions(t *testing.T) {
	raw, err := os.ReadFile(fixture)
	require.NoError(t, err)
	src := New(Options{})
	dir := t.TempDir()
	ctx := context.Background()

	for _, name := range []string{"plain.js", "index.js.gz", "index.js.zst", "index.js.lz4"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, "nested", name)
			require.NoError(t, src.Write(ctx, path, raw))

			stored, err := os.ReadFile(path)
			require.NoError(t, err)
			if CompressionFor(name) != CompressionNone {
				assert.Less(t, len(stored), len(raw))
			}

			got, err := src.Open(ctx, "file://"+filepath.ToSlash(path))
			require.NoError(t, err)
			assert.Equal(t, raw, got)
		})
	}
}

func TestLoadValidatesIndex(t *testing.T) {
	src := New(Options{})
	idx, err := src.Load(context.Background(), fixture)
	require.NoError(t, err)
	assert.Equal(t, 9, idx.Len())

	bad := filepath.Join(t.TempDir(), "bad.js")
	require.NoError(t, os.WriteFile(bad, []byte(`Search.setIndex({docnames:["a"],filenames:[],titles:["A"]})`), 0o644))
	_, err = src.Load(context.Background(), bad)
	assert.True(t, errors.Is(err, docindex.ErrInvalidIndex))

	garbage := filepath.Join(t.TempDir(), "garbage.js")
	require.NoError(t, os.WriteFile(garbage, []byte(`Search.setIndex({`), 0o644))
	_, err = src.Load(context.Background(), garbage)
	assert.True(t, errors.Is(err, docindex.ErrMalformedIndex))
}

func TestObjectStoreSchemes(t *testing.T) {
	store := newMemStore()
	src := New(Options{MinIO: store, S3: store})
	ctx := context.Background()

	idx, err := src.Load(ctx, fixture)
	require.NoError(t, err)
	require.NoError(t, src.Save(ctx, "minio://docs/v1/searchindex.js.zst", idx))
	assert.Contains(t, store.objects, "docs/v1/searchindex.js.zst")

	back, err := src.Load(ctx, "minio://docs/v1/searchindex.js.zst")
	require.NoError(t, err)
	assert.Equal(t, idx, back)

	_, err = src.Open(ctx, "s3://docs/missing.js")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSourceErrors(t *testing.T) {
	ctx := context.Background()
	src := New(Options{})

	_, err := src.Open(ctx, "ftp://host/file.js")
	assert.True(t, errors.Is(err, ErrUnsupportedScheme))
	_, err = src.Open(ctx, "minio://bucket/key.js")
	assert.True(t, errors.Is(err, ErrNotConfigured))
	_, err = src.Open(ctx, "s3://bucket")
	assert.Error(t, err)
	_, err = src.Open(ctx, filepath.Join(t.TempDir(), "none.js"))
	assert.True(t, errors.Is(err, ErrNotFound))

	small := New(Options{MaxBytes: 100})
	_, err = small.Open(ctx, fixture)
	assert.True(t, errors.Is(err, ErrTooLarge))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = src.Open(cancelled, fixture)
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeS3 struct {
	objects map[string]string
	puts    []*s3.PutObjectInput
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.puts = append(f.puts, in)
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Bucket+"/"+*in.Key] = string(data)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Store(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{}}
	store := NewS3StoreWithClient(fake)
	src := New(Options{S3: store})
	ctx := context.Background()

	require.NoError(t, src.Write(ctx, "s3://site/searchindex.js.gz", []byte("Search.setIndex({})")))
	require.Len(t, fake.puts, 1)
	assert.Equal(t, "application/octet-stream", *fake.puts[0].ContentType)

	got, err := src.Open(ctx, "s3://site/searchindex.js.gz")
	require.NoError(t, err)
	assert.Equal(t, "Search.setIndex({})", string(got))

	_, err = store.Get(ctx, "site", "other.js")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestNewFromConfig(t *testing.T) {
	src, err := NewFromConfig(context.Background(),
		config.DocsConfig{MaxBytes: 1 << 20},
		config.StorageConfig{MinIO: config.MinIOConfig{Endpoint: "localhost:9000", AccessKey: "k", SecretKey: "s"}})
	require.NoError(t, err)
	assert.Contains(t, src.stores, "minio")
	assert.NotContains(t, src.stores, "s3")
	assert.Equal(t, int64(1<<20), src.maxBytes)

	_, err = src.Open(context.Background(), "s3://bucket/searchindex.js")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
