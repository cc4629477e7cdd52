package loader

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// MaxDecompressedSize caps the output of a compressed guest binary.
const MaxDecompressedSize = 64 << 20

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Compression names a guest payload encoding.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

// Detect identifies the payload encoding by magic bytes.
func Detect(data []byte) Compression {
	switch {
	case bytes.HasPrefix(data, gzipMagic):
		return CompressionGzip
	case bytes.HasPrefix(data, zstdMagic):
		return CompressionZstd
	default:
		return CompressionNone
	}
}

// Decompress returns data unchanged unless it is gzip or zstd compressed.
func Decompress(data []byte) ([]byte, Compression, error) {
	kind := Detect(data)
	var r io.Reader
	switch kind {
	case CompressionGzip:
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, kind, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		r = zr
	case CompressionZstd:
		zr, err := zstd.NewReader(bytes.NewReader(data), zstd.WithDecoderMaxMemory(MaxDecompressedSize))
		if err != nil {
			return nil, kind, fmt.Errorf("zstd: %w", err)
		}
		defer zr.Close()
		r = zr
	default:
		return data, kind, nil
	}

	out, err := io.ReadAll(io.LimitReader(r, MaxDecompressedSize+1))
	if err != nil {
		return nil, kind, fmt.Errorf("%s: %w", kind, err)
	}
	if len(out) > MaxDecompressedSize {
		return nil, kind, fmt.Errorf("%s: decompressed size exceeds %d bytes", kind, MaxDecompressedSize)
	}
	return out, kind, nil
}
