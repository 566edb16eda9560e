// Copyright 2026 The niivue Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package medgfx

import (
	"encoding/binary"
	"fmt"
	"io/fs"
	"math"
	"strings"

	"github.com/niivue/medgfx/internal"
	"github.com/niivue/medgfx/internal/sys"
)

// archiveParser walks an archive buffer from offset 0, dispatching on the
// record signature under its cursor. One parser value serves exactly one
// parse; the cursor is never shared, so concurrent parses of different
// archives stay independent.
type archiveParser struct {
	data   []byte
	cursor int64

	entries    []*Entry
	centralDir []*CentralDirectoryEntry
	eocd       *EndOfCentralDirectory
}

// scan consumes records until an end of central directory record stops it.
// Unknown signatures are fatal: resynchronizing could misread payload bytes
// as directory structure, which is never acceptable for imaging data.
func (p *archiveParser) scan() error {
	for {
		sig, err := p.nextSignature()
		if err != nil {
			return err
		}

		switch sig {
		case internal.LocalFileHeaderSignature:
			if err := p.parseLocalEntry(); err != nil {
				return err
			}
		case internal.CentralDirectorySignature:
			if err := p.parseCentralDirEntry(); err != nil {
				return err
			}
		case internal.EndOfCentralDirSignature:
			return p.parseEndOfCentralDir()
		case internal.Zip64EndOfCentralDirSignature:
			return p.parseZip64EndOfCentralDir()
		default:
			return fmt.Errorf("%w: unknown signature 0x%08x at offset %d", ErrFormat, sig, p.cursor)
		}
	}
}

func (p *archiveParser) remaining() int64 {
	return int64(len(p.data)) - p.cursor
}

func (p *archiveParser) nextSignature() (uint32, error) {
	if p.remaining() < internal.SignatureLen {
		return 0, fmt.Errorf("%w: no record signature at offset %d", ErrTruncated, p.cursor)
	}
	return binary.LittleEndian.Uint32(p.data[p.cursor : p.cursor+internal.SignatureLen]), nil
}

// parseLocalEntry reads one local file header at the cursor, resolves the
// entry sizes and leaves the cursor on the next record.
func (p *archiveParser) parseLocalEntry() error {
	hdr, err := internal.ParseLocalFileHeader(p.data[p.cursor+internal.SignatureLen:])
	if err != nil {
		return fmt.Errorf("%w: offset %d: %v", ErrTruncated, p.cursor, err)
	}

	compressedSize := int64(hdr.CompressedSize)
	uncompressedSize := int64(hdr.UncompressedSize)

	if hdr.CompressedSize == internal.SizePlaceholder && hdr.UncompressedSize == internal.SizePlaceholder {
		zip64, ok := internal.ParseExtraField(hdr.ExtraField)[internal.Zip64ExtraFieldTag]
		if !ok || len(zip64) < 16 {
			return fmt.Errorf("%w: entry %q declares zip64 sizes without the zip64 extra field", ErrFormat, hdr.Filename)
		}
		uncompressedSize = int64(binary.LittleEndian.Uint64(zip64[0:8]))
		compressedSize = int64(binary.LittleEndian.Uint64(zip64[8:16]))
		if uncompressedSize < 0 || compressedSize < 0 {
			return fmt.Errorf("%w: entry %q declares impossible zip64 sizes", ErrFormat, hdr.Filename)
		}
	}

	startsAt := p.cursor + internal.LocalFileHeaderLen + int64(hdr.FilenameLength) + int64(hdr.ExtraFieldLength)

	crc := hdr.CRC32
	if hdr.GeneralPurposeBitFlag&internal.FlagDeferredSizes != 0 && compressedSize == 0 {
		desc, next, err := p.scanDataDescriptor(startsAt)
		if err != nil {
			return err
		}
		crc = desc.CRC32
		compressedSize = int64(desc.CompressedSize)
		uncompressedSize = int64(desc.UncompressedSize)
		p.cursor = next
	} else {
		next := startsAt + compressedSize
		if next < startsAt {
			return fmt.Errorf("%w: entry %q payload overflows archive bounds", ErrTruncated, hdr.Filename)
		}
		p.cursor = next
	}

	name := decodeText(hdr.Filename, hdr.GeneralPurposeBitFlag)
	isDir := strings.HasSuffix(name, "/")
	if isDir {
		name = strings.TrimSuffix(name, "/")
	}

	p.entries = append(p.entries, &Entry{
		name:             name,
		isDir:            isDir,
		version:          hdr.VersionNeededToExtract,
		flags:            hdr.GeneralPurposeBitFlag,
		method:           CompressionMethod(hdr.CompressionMethod),
		crc32:            crc,
		compressedSize:   compressedSize,
		uncompressedSize: uncompressedSize,
		offset:           startsAt,
		modTime:          msDosToTime(hdr.LastModFileDate, hdr.LastModFileTime),
		extraField:       hdr.ExtraField,
	})

	return nil
}

// scanDataDescriptor hunts byte-by-byte for the descriptor that trails a
// streamed entry. Payload bytes can coincidentally equal the descriptor
// signature, so a match only counts when the position 16 bytes after the
// signature start holds the "PK" prefix of the next record. It returns the
// descriptor and the cursor position past it.
func (p *archiveParser) scanDataDescriptor(startsAt int64) (internal.DataDescriptor, int64, error) {
	for off := startsAt; ; off++ {
		if off+internal.DataDescriptorLen+2 > int64(len(p.data)) {
			return internal.DataDescriptor{}, 0, fmt.Errorf("%w: no data descriptor after offset %d", ErrTruncated, startsAt)
		}
		if binary.LittleEndian.Uint32(p.data[off:off+4]) != internal.DataDescriptorSignature {
			continue
		}
		if p.data[off+16] != 'P' || p.data[off+17] != 'K' {
			continue
		}

		desc, err := internal.ParseDataDescriptor(p.data[off+internal.SignatureLen:])
		if err != nil {
			return internal.DataDescriptor{}, 0, fmt.Errorf("%w: %v", ErrTruncated, err)
		}
		return desc, off + internal.DataDescriptorLen, nil
	}
}

func (p *archiveParser) parseCentralDirEntry() error {
	rec, err := internal.ParseCentralDirectory(p.data[p.cursor+internal.SignatureLen:])
	if err != nil {
		return fmt.Errorf("%w: offset %d: %v", ErrTruncated, p.cursor, err)
	}

	p.centralDir = append(p.centralDir, newCentralDirectoryEntry(rec))
	p.cursor += internal.CentralDirectoryLen +
		int64(rec.FilenameLength) + int64(rec.ExtraFieldLength) + int64(rec.FileCommentLength)

	return nil
}

func (p *archiveParser) parseEndOfCentralDir() error {
	rec, err := internal.ParseEndOfCentralDir(p.data[p.cursor+internal.SignatureLen:])
	if err != nil {
		return fmt.Errorf("%w: offset %d: %v", ErrTruncated, p.cursor, err)
	}

	p.eocd = &EndOfCentralDirectory{
		entryCount:       uint64(rec.TotalNumberOfEntries),
		centralDirSize:   uint64(rec.CentralDirSize),
		centralDirOffset: uint64(rec.CentralDirOffset),
		comment:          rec.Comment,
	}
	p.cursor += internal.EndOfCentralDirLen + int64(rec.CommentLength)

	return nil
}

func (p *archiveParser) parseZip64EndOfCentralDir() error {
	rec, err := internal.ParseZip64EndOfCentralDir(p.data[p.cursor+internal.SignatureLen:])
	if err != nil {
		return fmt.Errorf("%w: offset %d: %v", ErrTruncated, p.cursor, err)
	}

	p.eocd = &EndOfCentralDirectory{
		entryCount:       rec.TotalNumberOfEntries,
		centralDirSize:   rec.CentralDirSize,
		centralDirOffset: rec.CentralDirOffset,
		zip64:            true,
	}
	p.cursor += internal.Zip64EndOfCentralDirLen

	return nil
}

// newCentralDirectoryEntry converts a raw directory record, resolving ZIP64
// placeholders and decoding external attributes per the creator host system.
func newCentralDirectoryEntry(rec internal.CentralDirectory) *CentralDirectoryEntry {
	name := decodeText(rec.Filename, rec.GeneralPurposeBitFlag)
	comment := decodeText(rec.Comment, rec.GeneralPurposeBitFlag)

	isDir := strings.HasSuffix(name, "/")
	if isDir {
		name = strings.TrimSuffix(name, "/")
	}

	uncompressedSize := uint64(rec.UncompressedSize)
	compressedSize := uint64(rec.CompressedSize)
	localHeaderOffset := uint64(rec.LocalHeaderOffset)

	if zip64Data, ok := rec.ExtraField[internal.Zip64ExtraFieldTag]; ok {
		pos := 0

		if uncompressedSize == math.MaxUint32 && len(zip64Data) >= pos+8 {
			uncompressedSize = binary.LittleEndian.Uint64(zip64Data[pos : pos+8])
			pos += 8
		}
		if compressedSize == math.MaxUint32 && len(zip64Data) >= pos+8 {
			compressedSize = binary.LittleEndian.Uint64(zip64Data[pos : pos+8])
			pos += 8
		}
		if localHeaderOffset == math.MaxUint32 && len(zip64Data) >= pos+8 {
			localHeaderOffset = binary.LittleEndian.Uint64(zip64Data[pos : pos+8])
		}
	}

	return &CentralDirectoryEntry{
		name:              name,
		comment:           comment,
		isDir:             isDir,
		versionMadeBy:     rec.VersionMadeBy,
		versionNeeded:     rec.VersionNeededToExtract,
		flags:             rec.GeneralPurposeBitFlag,
		method:            CompressionMethod(rec.CompressionMethod),
		crc32:             rec.CRC32,
		compressedSize:    int64(compressedSize),
		uncompressedSize:  int64(uncompressedSize),
		localHeaderOffset: int64(localHeaderOffset),
		diskNumber:        rec.DiskNumberStart,
		hostSystem:        sys.HostSystem(rec.VersionMadeBy >> 8),
		mode:              parseExternalAttributes(rec),
		modTime:           msDosToTime(rec.LastModFileDate, rec.LastModFileTime),
		extraField:        rec.ExtraField,
	}
}

// parseExternalAttributes maps the external file attributes to an
// fs.FileMode according to the host system that wrote the entry.
func parseExternalAttributes(rec internal.CentralDirectory) fs.FileMode {
	var mode fs.FileMode
	hostSystem := sys.HostSystem(rec.VersionMadeBy >> 8)

	if hostSystem.IsUnix() {
		unixMode := rec.ExternalFileAttributes >> 16
		mode = fs.FileMode(unixMode & 0777)

		switch unixMode & sys.S_IFMT {
		case sys.S_IFDIR:
			mode |= fs.ModeDir
		case sys.S_IFLNK:
			mode |= fs.ModeSymlink
		case sys.S_IFSOCK:
			mode |= fs.ModeSocket
		case sys.S_IFIFO:
			mode |= fs.ModeNamedPipe
		case sys.S_IFCHR:
			mode |= fs.ModeCharDevice
		case sys.S_IFBLK:
			mode |= fs.ModeDevice
		}
		return mode
	}

	if hostSystem.IsWindows() {
		isDir := strings.HasSuffix(rec.Filename, "/") || rec.ExternalFileAttributes&sys.FATAttrDirectory != 0

		if isDir {
			mode = 0755 | fs.ModeDir
		} else {
			mode = 0644
		}

		if rec.ExternalFileAttributes&sys.FATAttrReadOnly != 0 {
			mode &^= 0222 // a-w
		}
		return mode
	}

	if strings.HasSuffix(rec.Filename, "/") {
		return 0755 | fs.ModeDir
	}
	return 0644
}
