// Copyright 2026 The niivue Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package medgfx

import (
	"context"
	"io/fs"
	"time"

	"github.com/niivue/medgfx/internal/sys"
)

// Entry is one local file record discovered by the archive scan. Its sizes
// are always resolved: directly from the fixed header, from the ZIP64 extra
// field when the header holds 0xFFFFFFFF placeholders, or from the trailing
// data descriptor when the entry was written in streaming mode. Entries are
// read-only once the scan returns.
type Entry struct {
	name  string // entry path within the archive (forward slashes, no trailing slash)
	isDir bool

	version uint16
	flags   uint16
	method  CompressionMethod

	crc32            uint32
	compressedSize   int64
	uncompressedSize int64

	// offset is the absolute position of the entry payload within the
	// archive buffer, right after the local header's name and extra field.
	offset int64

	modTime    time.Time
	extraField []byte

	archive *Archive
}

// Name returns the decoded entry path. Directory entries have their
// trailing slash trimmed; see IsDir.
func (e *Entry) Name() string { return e.name }

// IsDir reports whether the entry denotes a directory.
func (e *Entry) IsDir() bool { return e.isDir }

// Method returns the entry's compression method.
func (e *Entry) Method() CompressionMethod { return e.method }

// Flags returns the general purpose bit flags from the local header.
func (e *Entry) Flags() uint16 { return e.flags }

// Version returns the "version needed to extract" header field.
func (e *Entry) Version() uint16 { return e.version }

// CRC32 returns the checksum declared for the uncompressed content.
func (e *Entry) CRC32() uint32 { return e.crc32 }

// CompressedSize returns the resolved size of the payload in the archive.
func (e *Entry) CompressedSize() int64 { return e.compressedSize }

// UncompressedSize returns the resolved size of the original content.
func (e *Entry) UncompressedSize() int64 { return e.uncompressedSize }

// Offset returns the absolute byte position of the entry payload within the
// archive buffer.
func (e *Entry) Offset() int64 { return e.offset }

// ModTime returns the modification time recorded in the local header.
// DOS timestamps have two-second resolution.
func (e *Entry) ModTime() time.Time { return e.modTime }

// Extra returns the raw extra field bytes of the local header.
func (e *Entry) Extra() []byte { return e.extraField }

// Extract returns the entry's decompressed content. It is shorthand for
// calling Extract on the owning Archive.
func (e *Entry) Extract() ([]byte, error) {
	return e.archive.Extract(e)
}

// ExtractWithContext returns the entry's decompressed content. It is
// shorthand for calling ExtractWithContext on the owning Archive.
func (e *Entry) ExtractWithContext(ctx context.Context) ([]byte, error) {
	return e.archive.ExtractWithContext(ctx, e)
}

// CentralDirectoryEntry is one central directory record. The directory
// duplicates per-entry metadata and is parsed for structural completeness;
// extraction is driven by the local headers, not by these records.
type CentralDirectoryEntry struct {
	name    string
	comment string
	isDir   bool

	versionMadeBy uint16
	versionNeeded uint16
	flags         uint16
	method        CompressionMethod

	crc32            uint32
	compressedSize   int64
	uncompressedSize int64

	localHeaderOffset int64
	diskNumber        uint16

	hostSystem sys.HostSystem
	mode       fs.FileMode
	modTime    time.Time

	extraField map[uint16][]byte
}

// Name returns the decoded entry path, trailing slash trimmed.
func (d *CentralDirectoryEntry) Name() string { return d.name }

// IsDir reports whether the record denotes a directory.
func (d *CentralDirectoryEntry) IsDir() bool { return d.isDir }

// Comment returns the per-entry comment.
func (d *CentralDirectoryEntry) Comment() string { return d.comment }

// Method returns the compression method recorded in the directory.
func (d *CentralDirectoryEntry) Method() CompressionMethod { return d.method }

// Flags returns the general purpose bit flags.
func (d *CentralDirectoryEntry) Flags() uint16 { return d.flags }

// CRC32 returns the checksum recorded in the directory.
func (d *CentralDirectoryEntry) CRC32() uint32 { return d.crc32 }

// CompressedSize returns the payload size, ZIP64-resolved.
func (d *CentralDirectoryEntry) CompressedSize() int64 { return d.compressedSize }

// UncompressedSize returns the content size, ZIP64-resolved.
func (d *CentralDirectoryEntry) UncompressedSize() int64 { return d.uncompressedSize }

// LocalHeaderOffset returns the position of the matching local header.
func (d *CentralDirectoryEntry) LocalHeaderOffset() int64 { return d.localHeaderOffset }

// HostSystem returns the system that created the entry, taken from the high
// byte of "version made by".
func (d *CentralDirectoryEntry) HostSystem() sys.HostSystem { return d.hostSystem }

// Mode returns permissions decoded from the external file attributes for
// the creator host system.
func (d *CentralDirectoryEntry) Mode() fs.FileMode { return d.mode }

// ModTime returns the modification time recorded in the directory.
func (d *CentralDirectoryEntry) ModTime() time.Time { return d.modTime }

// HasExtraField reports whether the directory record carries the tag.
func (d *CentralDirectoryEntry) HasExtraField(tag uint16) bool {
	_, ok := d.extraField[tag]
	return ok
}

// GetExtraField returns the raw data of an extra field, without its tag and
// size prefix, or nil when absent.
func (d *CentralDirectoryEntry) GetExtraField(tag uint16) []byte { return d.extraField[tag] }

// EndOfCentralDirectory aggregates the archive's closing record. Either the
// classic 22-byte record or its ZIP64 variant populates it; IsZip64 tells
// which one ended the scan.
type EndOfCentralDirectory struct {
	entryCount       uint64
	centralDirSize   uint64
	centralDirOffset uint64
	comment          string
	zip64            bool
}

// EntryCount returns the total number of entries declared by the record.
func (r *EndOfCentralDirectory) EntryCount() uint64 { return r.entryCount }

// CentralDirSize returns the declared size of the central directory.
func (r *EndOfCentralDirectory) CentralDirSize() uint64 { return r.centralDirSize }

// CentralDirOffset returns the declared start of the central directory.
func (r *EndOfCentralDirectory) CentralDirOffset() uint64 { return r.centralDirOffset }

// Comment returns the archive comment. ZIP64 records carry none.
func (r *EndOfCentralDirectory) Comment() string { return r.comment }

// IsZip64 reports whether the scan was terminated by the ZIP64 variant.
func (r *EndOfCentralDirectory) IsZip64() bool { return r.zip64 }
