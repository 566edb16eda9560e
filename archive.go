// Copyright 2026 The niivue Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package medgfx implements the container and codec layer used to unpack
// compressed medical imaging payloads: a strict ZIP reader that walks local
// file headers, central directory records and (classic or ZIP64) end of
// central directory records, including streamed entries with trailing data
// descriptors, paired with a stream codec that autodetects gzip, zlib and
// raw DEFLATE envelopes.
//
// Imaging payloads are irreplaceable, so the package is strict where
// general-purpose ZIP tooling is lenient: an unknown record signature
// aborts the scan instead of resynchronizing, every declared size is
// validated byte-exactly, and all decode paths are bounded against
// decompression bombs (500 MiB per entry, 2 GiB per stream by default).
// A failed operation returns no bytes at all; partial or unvalidated data
// is never surfaced.
//
// # Basic Usage
//
// Parsing an archive and extracting its entries:
//
//	archive, err := medgfx.NewArchive(buf)
//	if err != nil {
//		return err
//	}
//	for _, entry := range archive.Entries() {
//		data, err := entry.Extract()
//		...
//	}
//
// Standalone compressed streams (the envelope is autodetected):
//
//	raw, err := medgfx.Decompress(fetched)
//	packed, err := medgfx.Compress(raw, medgfx.FormatGzip)
//
// The archive is immutable after construction, so any number of goroutines
// may extract concurrently without locking. Long-running operations have
// *WithContext variants for cancellation.
package medgfx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Archive is a parsed ZIP archive over one immutable byte buffer. The
// buffer is scanned once during construction; afterwards the archive and
// its entries are read-only. The archive holds a view over the caller's
// buffer rather than a copy, and stored entries are extracted as subslices
// of it, so the buffer must not be mutated while the archive is in use.
type Archive struct {
	data []byte

	entries    []*Entry
	centralDir []*CentralDirectoryEntry
	eocd       *EndOfCentralDirectory

	limits          Limits
	verifyChecksums bool
	decompressors   map[CompressionMethod]Decompressor

	cacheSize int
	cache     *payloadCache
}

// Option configures an Archive during construction.
type Option func(*Archive)

// WithLimits replaces the extraction size ceilings.
func WithLimits(l Limits) Option {
	return func(a *Archive) { a.limits = l }
}

// WithMaxEntrySize overrides the per-entry uncompressed size ceiling.
func WithMaxEntrySize(n int64) Option {
	return func(a *Archive) { a.limits.MaxEntrySize = n }
}

// WithChecksumVerify enables CRC-32 validation of every extracted payload
// against the entry header. Extraction then fails with ErrChecksum on
// mismatch. Off by default: length validation alone matches the behavior
// of the loading pipeline this package serves.
func WithChecksumVerify() Option {
	return func(a *Archive) { a.verifyChecksums = true }
}

// WithCache retains up to n decompressed payloads in an LRU cache, so
// repeatedly extracted entries skip re-inflation. Cached slices are shared
// between callers; treat extracted buffers as read-only when enabling
// this. n <= 0 leaves caching off.
func WithCache(n int) Option {
	return func(a *Archive) { a.cacheSize = n }
}

// WithDecompressor installs or replaces the decompressor used for a
// compression method. Stored and Deflated are built in.
func WithDecompressor(method CompressionMethod, d Decompressor) Option {
	return func(a *Archive) { a.decompressors[method] = d }
}

// NewArchive scans data from offset 0 and returns the parsed archive.
// The scan stops at the end of central directory record; an archive that
// consists solely of that record is valid and has no entries. Scan
// failures are terminal and wrap ErrFormat or ErrTruncated.
func NewArchive(data []byte, opts ...Option) (*Archive, error) {
	parser := &archiveParser{data: data}
	if err := parser.scan(); err != nil {
		return nil, err
	}

	a := &Archive{
		data:          data,
		entries:       parser.entries,
		centralDir:    parser.centralDir,
		eocd:          parser.eocd,
		limits:        DefaultLimits(),
		decompressors: builtinDecompressors(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.limits = a.limits.withDefaults()

	if a.cacheSize > 0 {
		cache, err := newPayloadCache(a.cacheSize)
		if err != nil {
			return nil, err
		}
		a.cache = cache
	}

	for _, e := range a.entries {
		e.archive = a
	}

	return a, nil
}

// Entries returns the discovered local-file entries in archive order.
// The slice is the archive's own; callers must not modify it.
func (a *Archive) Entries() []*Entry { return a.entries }

// Entry returns the first entry with the given name.
func (a *Archive) Entry(name string) (*Entry, error) {
	for _, e := range a.entries {
		if e.name == name {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrFileNotFound, name)
}

// Names returns entry names in archive order.
func (a *Archive) Names() []string {
	names := make([]string, len(a.entries))
	for i, e := range a.entries {
		names[i] = e.name
	}
	return names
}

// CentralDirectory returns the parsed central directory records.
func (a *Archive) CentralDirectory() []*CentralDirectoryEntry { return a.centralDir }

// EOCD returns the end of central directory record that stopped the scan.
func (a *Archive) EOCD() *EndOfCentralDirectory { return a.eocd }

// Comment returns the archive comment.
func (a *Archive) Comment() string { return a.eocd.comment }

// Size returns the length of the backing buffer in bytes.
func (a *Archive) Size() int64 { return int64(len(a.data)) }

// Limits returns the ceilings the archive extracts under.
func (a *Archive) Limits() Limits { return a.limits }

// FS returns an fs.FS for reading archive content.
func (a *Archive) FS() fs.FS {
	return &archiveFS{a: a}
}

// Extract returns the decompressed content of e. See ExtractWithContext.
func (a *Archive) Extract(e *Entry) ([]byte, error) {
	return a.ExtractWithContext(context.Background(), e)
}

// ExtractWithContext returns the decompressed content of e.
//
// Entries whose declared uncompressed size exceeds the per-entry ceiling
// are rejected with ErrSizeLimit before any payload bytes are touched.
// Stored entries must match their declared size exactly and are returned
// as subslices of the archive buffer; deflate entries are inflated with
// raw framing and must likewise match exactly, or extraction fails with
// ErrSizeMismatch. Methods without an installed decompressor fail with
// ErrAlgorithm.
func (a *Archive) ExtractWithContext(ctx context.Context, e *Entry) ([]byte, error) {
	if e.uncompressedSize > a.limits.MaxEntrySize {
		return nil, fmt.Errorf("%w: entry %q declares %d bytes, ceiling is %d",
			ErrSizeLimit, e.name, e.uncompressedSize, a.limits.MaxEntrySize)
	}

	if a.cache != nil {
		if content, ok := a.cache.Get(e.offset); ok {
			return content, nil
		}
	}

	end := e.offset + e.compressedSize
	if end > int64(len(a.data)) || end < e.offset {
		return nil, fmt.Errorf("%w: entry %q payload [%d:%d) exceeds archive size %d",
			ErrTruncated, e.name, e.offset, end, len(a.data))
	}
	payload := a.data[e.offset:end]

	var content []byte
	switch e.method {
	case Stored:
		if int64(len(payload)) != e.uncompressedSize {
			return nil, fmt.Errorf("%w: stored entry %q holds %d bytes, header declares %d",
				ErrSizeMismatch, e.name, len(payload), e.uncompressedSize)
		}
		content = payload
	default:
		dec, ok := a.decompressors[e.method]
		if !ok {
			return nil, fmt.Errorf("%w: %v", ErrAlgorithm, e.method)
		}

		rc, err := dec.Decompress(&contextReader{ctx: ctx, r: bytes.NewReader(payload)})
		if err != nil {
			return nil, fmt.Errorf("%w: entry %q: %v", ErrFormat, e.name, err)
		}

		// One byte past the declared size is enough to prove a mismatch
		// without materializing an unbounded stream.
		var out bytes.Buffer
		n, err := io.Copy(&out, io.LimitReader(rc, e.uncompressedSize+1))
		rc.Close()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("%w: entry %q: %v", ErrFormat, e.name, err)
		}
		if n != e.uncompressedSize {
			return nil, fmt.Errorf("%w: entry %q inflated to %d bytes, header declares %d",
				ErrSizeMismatch, e.name, n, e.uncompressedSize)
		}
		content = out.Bytes()
	}

	if a.verifyChecksums {
		if got := crc32.ChecksumIEEE(content); got != e.crc32 {
			return nil, fmt.Errorf("%w: entry %q: got 0x%08x, header declares 0x%08x",
				ErrChecksum, e.name, got, e.crc32)
		}
	}

	if a.cache != nil {
		a.cache.Add(e.offset, content)
	}

	return content, nil
}

// Unpack extracts every entry to the destination directory. See
// UnpackWithContext.
func (a *Archive) Unpack(path string) error {
	return a.UnpackWithContext(context.Background(), path)
}

// UnpackWithContext extracts every entry to the destination directory,
// creating intermediate directories as needed. Entry paths are confined
// to the destination; an entry whose path would escape it fails with
// ErrInsecurePath. Per-entry failures are collected and joined so one bad
// entry does not abort the rest; cancellation does.
func (a *Archive) UnpackWithContext(ctx context.Context, path string) error {
	path = filepath.Clean(path)
	var errs []error
	var dirsToRestore []*Entry

	for _, e := range a.entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		fpath := filepath.Join(path, e.name)

		// Zip Slip Protection
		if !strings.HasPrefix(fpath, path+string(os.PathSeparator)) {
			errs = append(errs, fmt.Errorf("%w: %s", ErrInsecurePath, fpath))
			continue
		}

		if e.isDir {
			if err := os.MkdirAll(fpath, 0755); err != nil {
				errs = append(errs, err)
			} else {
				dirsToRestore = append(dirsToRestore, e)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(fpath), 0755); err != nil {
			errs = append(errs, fmt.Errorf("create dir for %s: %w", e.name, err))
			continue
		}

		if err := a.unpackEntry(ctx, e, fpath); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			errs = append(errs, fmt.Errorf("failed to extract %s: %w", fpath, err))
		}
	}

	// Directory mtimes are restored deepest first, after all the writes
	// into them are done.
	for i := len(dirsToRestore) - 1; i >= 0; i-- {
		d := dirsToRestore[i]
		os.Chtimes(filepath.Join(path, d.name), time.Now(), d.modTime)
	}

	return errors.Join(errs...)
}

func (a *Archive) unpackEntry(ctx context.Context, e *Entry, fpath string) error {
	content, err := a.ExtractWithContext(ctx, e)
	if err != nil {
		return err
	}
	if err := os.WriteFile(fpath, content, 0644); err != nil {
		return err
	}
	// Best-effort metadata restore. May fail on file systems that don't
	// support it.
	os.Chtimes(fpath, time.Now(), e.modTime)
	return nil
}
