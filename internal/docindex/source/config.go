package source

import (
	"context"

	"github.com/cryptomite-go/cryptomite/pkg/config"
)

// NewFromConfig builds a Source with the object stores enabled in cfg. A
// MinIO store is created when an endpoint is set; S3 when enabled.
func NewFromConfig(ctx context.Context, docs config.DocsConfig, storage config.StorageConfig) (*Source, error) {
	opts := Options{MaxBytes: docs.MaxBytes}
	if m := storage.MinIO; m.Endpoint != "" {
		store, err := NewMinIOStore(MinIOConfig{
			Endpoint:  m.Endpoint,
			AccessKey: m.AccessKey,
			SecretKey: m.SecretKey,
			UseSSL:    m.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		opts.MinIO = store
	}
	if s := storage.S3; s.Enabled {
		store, err := NewS3Store(ctx, S3Config{
			Region:       s.Region,
			Endpoint:     s.Endpoint,
			UsePathStyle: s.UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		opts.S3 = store
	}
	return New(opts), nil
}
