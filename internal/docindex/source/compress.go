package source

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies how an index document is stored.
type Compression string

const (
	CompressionNone Compression = ""
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

// CompressionFor picks the compression from a key's suffix.
func CompressionFor(key string) Compression {
	switch strings.ToLower(path.Ext(key)) {
	case ".gz", ".gzip":
		return CompressionGzip
	case ".zst", ".zstd":
		return CompressionZstd
	case ".lz4":
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// decompress reads all of r, decoding it with c, and fails once more than
// limit decoded bytes are produced.
func decompress(r io.Reader, c Compression, limit int64) ([]byte, error) {
	var dec io.Reader
	switch c {
	case CompressionNone:
		dec = r
	case CompressionGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		dec = zr
	case CompressionZstd:
		zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		defer zr.Close()
		dec = zr
	case CompressionLZ4:
		dec = lz4.NewReader(r)
	default:
		return nil, fmt.Errorf("unknown compression %q", c)
	}

	data, err := io.ReadAll(io.LimitReader(dec, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s stream: %w", nameOf(c), err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	return data, nil
}

// compress encodes data with c.
func compress(data []byte, c Compression) ([]byte, error) {
	var buf bytes.Buffer
	var w io.WriteCloser
	switch c {
	case CompressionNone:
		return data, nil
	case CompressionGzip:
		w = gzip.NewWriter(&buf)
	case CompressionZstd:
		zw, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		w = zw
	case CompressionLZ4:
		w = lz4.NewWriter(&buf)
	default:
		return nil, fmt.Errorf("unknown compression %q", c)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("writing %s stream: %w", nameOf(c), err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing %s stream: %w", nameOf(c), err)
	}
	return buf.Bytes(), nil
}

func nameOf(c Compression) string {
	if c == CompressionNone {
		return "plain"
	}
	return string(c)
}
