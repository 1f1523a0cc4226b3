// Package source fetches and stores search index documents on the local
// filesystem, MinIO or S3, compressing them according to the key suffix.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/cryptomite-go/cryptomite/internal/docindex"
)

var (
	// ErrUnsupportedScheme is returned for URIs with an unknown scheme.
	ErrUnsupportedScheme = errors.New("unsupported index source scheme")
	// ErrNotFound is returned when the object or file does not exist.
	ErrNotFound = errors.New("index source not found")
	// ErrTooLarge is returned when a document exceeds Options.MaxBytes.
	ErrTooLarge = errors.New("index document too large")
	// ErrNotConfigured is returned when a scheme is used without a backend.
	ErrNotConfigured = errors.New("index source backend not configured")
)

// DefaultMaxBytes bounds the decoded size of an index document.
const DefaultMaxBytes = 64 << 20

// ObjectStore is the part of a bucket store Source needs.
type ObjectStore interface {
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Put(ctx context.Context, bucket, key string, data []byte) error
}

// Options configures a Source.
type Options struct {
	MaxBytes int64
	// MinIO serves minio:// URIs. S3 serves s3:// URIs.
	MinIO ObjectStore
	S3    ObjectStore
}

// Source reads and writes index documents addressed by URI: a plain path,
// file:///path, minio://bucket/key or s3://bucket/key.
type Source struct {
	maxBytes int64
	stores   map[string]ObjectStore
	logger   *slog.Logger
}

// New creates a Source. Nil stores leave their scheme unconfigured.
func New(opts Options) *Source {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	stores := make(map[string]ObjectStore)
	if opts.MinIO != nil {
		stores["minio"] = opts.MinIO
	}
	if opts.S3 != nil {
		stores["s3"] = opts.S3
	}
	return &Source{
		maxBytes: opts.MaxBytes,
		stores:   stores,
		logger:   slog.Default().With("component", "docsource"),
	}
}

type location struct {
	scheme string
	bucket string
	key    string
}

func parse(uri string) (location, error) {
	if !strings.Contains(uri, "://") {
		return location{scheme: "file", key: uri}, nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return location{}, fmt.Errorf("parsing %q: %w", uri, err)
	}
	switch u.Scheme {
	case "file":
		return location{scheme: "file", key: filepath.FromSlash(u.Host + u.Path)}, nil
	case "minio", "s3":
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return location{}, fmt.Errorf("%q: want %s://bucket/key", uri, u.Scheme)
		}
		return location{scheme: u.Scheme, bucket: u.Host, key: key}, nil
	default:
		return location{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

// Open returns the decompressed bytes of the document at uri.
func (s *Source) Open(ctx context.Context, uri string) ([]byte, error) {
	loc, err := parse(uri)
	if err != nil {
		return nil, err
	}
	rc, err := s.reader(ctx, loc)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := decompress(rc, CompressionFor(loc.key), s.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", uri, err)
	}
	s.logger.Debug("index document read", "uri", uri, "bytes", len(data))
	return data, nil
}

func (s *Source) reader(ctx context.Context, loc location) (io.ReadCloser, error) {
	if loc.scheme == "file" {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := os.Open(loc.key)
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, loc.key)
		}
		return f, err
	}
	store, ok := s.stores[loc.scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, loc.scheme)
	}
	return store.Get(ctx, loc.bucket, loc.key)
}

// Load opens, decodes and validates the index at uri.
func (s *Source) Load(ctx context.Context, uri string) (*docindex.Index, error) {
	data, err := s.Open(ctx, uri)
	if err != nil {
		return nil, err
	}
	idx, err := docindex.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", uri, err)
	}
	if err := docindex.Validate(idx); err != nil {
		return nil, fmt.Errorf("validating %s: %w", uri, err)
	}
	s.logger.Info("search index loaded", "uri", uri, "documents", idx.Len(), "terms", len(idx.Terms))
	return idx, nil
}

// Write stores data at uri, compressed according to its suffix.
func (s *Source) Write(ctx context.Context, uri string, data []byte) error {
	loc, err := parse(uri)
	if err != nil {
		return err
	}
	out, err := compress(data, CompressionFor(loc.key))
	if err != nil {
		return fmt.Errorf("writing %s: %w", uri, err)
	}
	if loc.scheme == "file" {
		if dir := filepath.Dir(loc.key); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("writing %s: %w", uri, err)
			}
		}
		return os.WriteFile(loc.key, out, 0o644)
	}
	store, ok := s.stores[loc.scheme]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotConfigured, loc.scheme)
	}
	if err := store.Put(ctx, loc.bucket, loc.key, out); err != nil {
		return fmt.Errorf("writing %s: %w", uri, err)
	}
	s.logger.Info("index document written", "uri", uri, "bytes", len(out))
	return nil
}

// Save encodes idx and writes it to uri.
func (s *Source) Save(ctx context.Context, uri string, idx *docindex.Index) error {
	data, err := docindex.Encode(idx)
	if err != nil {
		return err
	}
	return s.Write(ctx, uri, data)
}
