// Copyright 2026 The niivue Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package medgfx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// CompressionMethod represents the compression algorithm used for a file in the ZIP archive
type CompressionMethod uint16

// Compression methods according to ZIP specification. Only Stored and
// Deflated ship with a decompressor; others can be installed with
// WithDecompressor.
const (
	Stored    CompressionMethod = 0  // No compression - file stored as-is
	Deflated  CompressionMethod = 8  // DEFLATE compression (most common)
	Deflate64 CompressionMethod = 9  // DEFLATE64(tm) enhanced compression
	BZIP2     CompressionMethod = 12 // BZIP2 compression
	LZMA      CompressionMethod = 14 // LZMA compression
	ZStandard CompressionMethod = 93 // Zstandard compression
)

func (m CompressionMethod) String() string {
	switch m {
	case Stored:
		return "stored"
	case Deflated:
		return "deflate"
	case Deflate64:
		return "deflate64"
	case BZIP2:
		return "bzip2"
	case LZMA:
		return "lzma"
	case ZStandard:
		return "zstd"
	default:
		return fmt.Sprintf("method(%d)", uint16(m))
	}
}

// Compression levels for DEFLATE algorithm
const (
	DeflateNormal    = 6 // Default compression level (good balance between speed and ratio)
	DeflateMaximum   = 9 // Maximum compression (best ratio, slowest speed)
	DeflateFast      = 3 // Fast compression (lower ratio, faster speed)
	DeflateSuperFast = 1 // Super fast compression (lowest ratio, fastest speed)
)

// Format identifies the envelope of a compressed byte stream.
type Format int

const (
	FormatDeflateRaw Format = iota // bare DEFLATE stream, no envelope
	FormatGzip                     // RFC 1952 gzip wrapper
	FormatZlib                     // RFC 1950 zlib wrapper
)

func (f Format) String() string {
	switch f {
	case FormatGzip:
		return "gzip"
	case FormatZlib:
		return "zlib"
	case FormatDeflateRaw:
		return "deflate-raw"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// ParseFormat maps a format name to its Format value. "deflate" is accepted
// as an alias for zlib, the name browsers use for the RFC 1950 envelope.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "gzip", "gz":
		return FormatGzip, nil
	case "zlib", "deflate":
		return FormatZlib, nil
	case "deflate-raw", "raw":
		return FormatDeflateRaw, nil
	default:
		return 0, fmt.Errorf("%w: unknown format %q", ErrAlgorithm, s)
	}
}

// DetectFormat classifies a compressed buffer by its magic bytes: 1F 8B 08
// is gzip, 0x78 followed by one of the four standard flag bytes is zlib,
// anything else is treated as a raw DEFLATE stream.
func DetectFormat(data []byte) Format {
	if len(data) >= 3 && data[0] == 0x1f && data[1] == 0x8b && data[2] == 0x08 {
		return FormatGzip
	}
	if len(data) >= 2 && data[0] == 0x78 {
		switch data[1] {
		case 0x01, 0x5e, 0x9c, 0xda:
			return FormatZlib
		}
	}
	return FormatDeflateRaw
}

// IsCompressed reports whether data starts with the gzip magic number.
// It is an inexpensive pre-check, not a full format probe; nil and short
// buffers report false.
func IsCompressed(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

// Codec performs whole-buffer stream compression and decompression.
// The zero value uses the default decoded-size ceiling.
type Codec struct {
	// MaxDecodedSize bounds decompression output; <= 0 means
	// DefaultMaxDecodedSize.
	MaxDecodedSize int64
}

// Decompress inflates data. See DecompressWithContext.
func (c Codec) Decompress(data []byte) ([]byte, error) {
	return c.DecompressWithContext(context.Background(), data)
}

// DecompressWithContext inflates data, autodetecting the gzip/zlib/raw-deflate
// envelope. It either returns the complete validated output or fails:
// ErrEmptyData for empty input, ErrDataLoss when non-empty input inflates
// to nothing, ErrSizeLimit when the output would exceed the ceiling. No
// partial output is ever returned.
func (c Codec) DecompressWithContext(ctx context.Context, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyData
	}
	limit := c.MaxDecodedSize
	if limit <= 0 {
		limit = DefaultMaxDecodedSize
	}

	src := &contextReader{ctx: ctx, r: bytes.NewReader(data)}
	format := DetectFormat(data)

	var (
		rc  io.ReadCloser
		err error
	)
	switch format {
	case FormatGzip:
		rc, err = gzip.NewReader(src)
	case FormatZlib:
		rc, err = zlib.NewReader(src)
	default:
		rc = flate.NewReader(src)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: open %s stream: %v", ErrFormat, format, err)
	}

	// Reading one byte over the ceiling is enough to prove the violation
	// without materializing the rest of a bomb.
	var out bytes.Buffer
	n, err := io.Copy(&out, io.LimitReader(rc, limit+1))
	rc.Close()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s stream: %v", ErrFormat, format, err)
	}
	if n > limit {
		return nil, fmt.Errorf("%w: output exceeds %d bytes", ErrSizeLimit, limit)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %d compressed bytes inflated to nothing", ErrDataLoss, len(data))
	}

	return out.Bytes(), nil
}

// Compress deflates data into the requested envelope. See CompressWithContext.
func (c Codec) Compress(data []byte, format Format) ([]byte, error) {
	return c.CompressWithContext(context.Background(), data, format)
}

// CompressWithContext deflates data into the requested envelope. No size
// ceiling is enforced on this path: the input is caller-controlled, not
// externally supplied.
func (c Codec) CompressWithContext(ctx context.Context, data []byte, format Format) ([]byte, error) {
	src := &contextReader{ctx: ctx, r: bytes.NewReader(data)}

	var buf bytes.Buffer
	switch format {
	case FormatGzip:
		w := gzipWriterPool.Get().(*gzip.Writer)
		defer gzipWriterPool.Put(w)
		w.Reset(&buf)
		if err := pumpCompressor(w, src); err != nil {
			return nil, err
		}
	case FormatZlib:
		w := zlibWriterPool.Get().(*zlib.Writer)
		defer zlibWriterPool.Put(w)
		w.Reset(&buf)
		if err := pumpCompressor(w, src); err != nil {
			return nil, err
		}
	case FormatDeflateRaw:
		w := flateWriterPool.Get().(*flate.Writer)
		defer flateWriterPool.Put(w)
		w.Reset(&buf)
		if err := pumpCompressor(w, src); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %v", ErrAlgorithm, format)
	}

	return buf.Bytes(), nil
}

// pumpCompressor runs src through w and flushes the stream trailer.
func pumpCompressor(w io.WriteCloser, src io.Reader) error {
	if _, err := io.Copy(w, src); err != nil {
		return err
	}
	return w.Close()
}

// Decompress inflates data with the default ceiling. See
// Codec.DecompressWithContext.
func Decompress(data []byte) ([]byte, error) {
	return Codec{}.Decompress(data)
}

// DecompressWithContext inflates data with the default ceiling. See
// Codec.DecompressWithContext.
func DecompressWithContext(ctx context.Context, data []byte) ([]byte, error) {
	return Codec{}.DecompressWithContext(ctx, data)
}

// Compress deflates data into the requested envelope with the default
// level. See Codec.CompressWithContext.
func Compress(data []byte, format Format) ([]byte, error) {
	return Codec{}.Compress(data, format)
}

// CompressWithContext deflates data into the requested envelope with the
// default level. See Codec.CompressWithContext.
func CompressWithContext(ctx context.Context, data []byte, format Format) ([]byte, error) {
	return Codec{}.CompressWithContext(ctx, data, format)
}

var (
	flateWriterPool = sync.Pool{
		New: func() interface{} {
			w, _ := flate.NewWriter(io.Discard, DeflateNormal)
			return w
		},
	}
	gzipWriterPool = sync.Pool{
		New: func() interface{} {
			w, _ := gzip.NewWriterLevel(io.Discard, DeflateNormal)
			return w
		},
	}
	zlibWriterPool = sync.Pool{
		New: func() interface{} {
			w, _ := zlib.NewWriterLevel(io.Discard, DeflateNormal)
			return w
		},
	}
)

// Decompressor turns one entry's raw payload stream into its original bytes.
type Decompressor interface {
	Decompress(src io.Reader) (io.ReadCloser, error)
}

// StoredDecompressor implements the "Store" method (no compression)
type StoredDecompressor struct{}

func (sd *StoredDecompressor) Decompress(src io.Reader) (io.ReadCloser, error) {
	if rc, ok := src.(io.ReadCloser); ok {
		return rc, nil
	}
	return io.NopCloser(src), nil
}

// DeflateDecompressor implements the "Deflate" method
type DeflateDecompressor struct{}

func (dd *DeflateDecompressor) Decompress(src io.Reader) (io.ReadCloser, error) {
	return flate.NewReader(src), nil
}

func builtinDecompressors() map[CompressionMethod]Decompressor {
	return map[CompressionMethod]Decompressor{
		Stored:   &StoredDecompressor{},
		Deflated: &DeflateDecompressor{},
	}
}
