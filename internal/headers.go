// Copyright 2026 The niivue Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package internal

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"slices"
)

// Each record type must be identified using a header signature that identifies the record type.
// Signature values begin with the two byte constant marker of 0x4b50, representing the characters "PK".
const (
	CentralDirectorySignature            uint32 = 0x02014b50
	LocalFileHeaderSignature             uint32 = 0x04034b50
	DigitalHeaderSignature               uint32 = 0x05054b50
	EndOfCentralDirSignature             uint32 = 0x06054b50
	Zip64EndOfCentralDirSignature        uint32 = 0x06064b50
	Zip64EndOfCentralDirLocatorSignature uint32 = 0x07064b50
	DataDescriptorSignature              uint32 = 0x08074b50
	ArchiveExtraDataSignature            uint32 = 0x08064b50
)

// Fixed record sizes, signature included.
const (
	SignatureLen            = 4
	LocalFileHeaderLen      = 30
	CentralDirectoryLen     = 46
	EndOfCentralDirLen      = 22
	Zip64EndOfCentralDirLen = 56
	DataDescriptorLen       = 16
)

// Zip64ExtraFieldTag identifies the extra field that carries 64-bit size
// values when the fixed header fields hold the 0xFFFFFFFF placeholder.
const Zip64ExtraFieldTag uint16 = 0x0001

// SizePlaceholder marks a 32-bit size field whose real value lives in the
// ZIP64 extra field.
const SizePlaceholder uint32 = math.MaxUint32

// FlagDeferredSizes is general purpose bit 3: crc32 and both sizes were
// unknown at header-write time and follow the payload in a data descriptor.
const FlagDeferredSizes uint16 = 0x0008

type LocalFileHeader struct {
	VersionNeededToExtract uint16
	GeneralPurposeBitFlag  uint16
	CompressionMethod      uint16
	LastModFileTime        uint16
	LastModFileDate        uint16
	CRC32                  uint32
	CompressedSize         uint32
	UncompressedSize       uint32
	FilenameLength         uint16
	ExtraFieldLength       uint16
	Filename               string
	ExtraField             []byte
}

// ParseLocalFileHeader decodes a local file header from b, which must start
// immediately after the 4-byte signature. It never reads past len(b).
func ParseLocalFileHeader(b []byte) (LocalFileHeader, error) {
	const fixed = LocalFileHeaderLen - SignatureLen
	if len(b) < fixed {
		return LocalFileHeader{}, fmt.Errorf("local file header: %w", io.ErrUnexpectedEOF)
	}

	h := LocalFileHeader{
		VersionNeededToExtract: binary.LittleEndian.Uint16(b[0:2]),
		GeneralPurposeBitFlag:  binary.LittleEndian.Uint16(b[2:4]),
		CompressionMethod:      binary.LittleEndian.Uint16(b[4:6]),
		LastModFileTime:        binary.LittleEndian.Uint16(b[6:8]),
		LastModFileDate:        binary.LittleEndian.Uint16(b[8:10]),
		CRC32:                  binary.LittleEndian.Uint32(b[10:14]),
		CompressedSize:         binary.LittleEndian.Uint32(b[14:18]),
		UncompressedSize:       binary.LittleEndian.Uint32(b[18:22]),
		FilenameLength:         binary.LittleEndian.Uint16(b[22:24]),
		ExtraFieldLength:       binary.LittleEndian.Uint16(b[24:26]),
	}

	end := fixed + int(h.FilenameLength) + int(h.ExtraFieldLength)
	if len(b) < end {
		return LocalFileHeader{}, fmt.Errorf("local file header name/extra: %w", io.ErrUnexpectedEOF)
	}
	h.Filename = string(b[fixed : fixed+int(h.FilenameLength)])
	h.ExtraField = b[fixed+int(h.FilenameLength) : end]

	return h, nil
}

func (h LocalFileHeader) Encode() []byte {
	// Fixed size (30 bytes) + variable filename length
	size := 30 + h.FilenameLength + h.ExtraFieldLength
	buf := make([]byte, size)

	binary.LittleEndian.PutUint32(buf[0:4], LocalFileHeaderSignature)
	binary.LittleEndian.PutUint16(buf[4:6], h.VersionNeededToExtract)
	binary.LittleEndian.PutUint16(buf[6:8], h.GeneralPurposeBitFlag)
	binary.LittleEndian.PutUint16(buf[8:10], h.CompressionMethod)
	binary.LittleEndian.PutUint16(buf[10:12], h.LastModFileTime)
	binary.LittleEndian.PutUint16(buf[12:14], h.LastModFileDate)
	binary.LittleEndian.PutUint32(buf[14:18], h.CRC32)
	binary.LittleEndian.PutUint32(buf[18:22], h.CompressedSize)
	binary.LittleEndian.PutUint32(buf[22:26], h.UncompressedSize)
	binary.LittleEndian.PutUint16(buf[26:28], h.FilenameLength)
	binary.LittleEndian.PutUint16(buf[28:30], h.ExtraFieldLength)

	copy(buf[30:], h.Filename)
	copy(buf[30+h.FilenameLength:], h.ExtraField)

	return buf
}

type CentralDirectory struct {
	VersionMadeBy          uint16
	VersionNeededToExtract uint16
	GeneralPurposeBitFlag  uint16
	CompressionMethod      uint16
	LastModFileTime        uint16
	LastModFileDate        uint16
	CRC32                  uint32
	CompressedSize         uint32
	UncompressedSize       uint32
	FilenameLength         uint16
	ExtraFieldLength       uint16
	FileCommentLength      uint16
	DiskNumberStart        uint16
	InternalFileAttributes uint16
	ExternalFileAttributes uint32
	LocalHeaderOffset      uint32
	Filename               string
	ExtraField             map[uint16][]byte
	Comment                string
}

// ParseCentralDirectory decodes a central directory record from b, which must
// start immediately after the 4-byte signature.
func ParseCentralDirectory(b []byte) (CentralDirectory, error) {
	const fixed = CentralDirectoryLen - SignatureLen
	if len(b) < fixed {
		return CentralDirectory{}, fmt.Errorf("central directory record: %w", io.ErrUnexpectedEOF)
	}

	entry := CentralDirectory{
		VersionMadeBy:          binary.LittleEndian.Uint16(b[0:2]),
		VersionNeededToExtract: binary.LittleEndian.Uint16(b[2:4]),
		GeneralPurposeBitFlag:  binary.LittleEndian.Uint16(b[4:6]),
		CompressionMethod:      binary.LittleEndian.Uint16(b[6:8]),
		LastModFileTime:        binary.LittleEndian.Uint16(b[8:10]),
		LastModFileDate:        binary.LittleEndian.Uint16(b[10:12]),
		CRC32:                  binary.LittleEndian.Uint32(b[12:16]),
		CompressedSize:         binary.LittleEndian.Uint32(b[16:20]),
		UncompressedSize:       binary.LittleEndian.Uint32(b[20:24]),
		FilenameLength:         binary.LittleEndian.Uint16(b[24:26]),
		ExtraFieldLength:       binary.LittleEndian.Uint16(b[26:28]),
		FileCommentLength:      binary.LittleEndian.Uint16(b[28:30]),
		DiskNumberStart:        binary.LittleEndian.Uint16(b[30:32]),
		InternalFileAttributes: binary.LittleEndian.Uint16(b[32:34]),
		ExternalFileAttributes: binary.LittleEndian.Uint32(b[34:38]),
		LocalHeaderOffset:      binary.LittleEndian.Uint32(b[38:42]),
	}

	nameEnd := fixed + int(entry.FilenameLength)
	extraEnd := nameEnd + int(entry.ExtraFieldLength)
	commentEnd := extraEnd + int(entry.FileCommentLength)
	if len(b) < commentEnd {
		return CentralDirectory{}, fmt.Errorf("central directory name/extra/comment: %w", io.ErrUnexpectedEOF)
	}
	entry.Filename = string(b[fixed:nameEnd])
	entry.ExtraField = ParseExtraField(b[nameEnd:extraEnd])
	entry.Comment = string(b[extraEnd:commentEnd])

	return entry, nil
}

func (d CentralDirectory) Encode() []byte {
	extra := EncodeExtraField(d.ExtraField)
	totalSize := 46 + int(d.FilenameLength) + len(extra) + int(d.FileCommentLength)
	buf := make([]byte, totalSize)

	binary.LittleEndian.PutUint32(buf[0:4], CentralDirectorySignature)
	binary.LittleEndian.PutUint16(buf[4:6], d.VersionMadeBy)
	binary.LittleEndian.PutUint16(buf[6:8], d.VersionNeededToExtract)
	binary.LittleEndian.PutUint16(buf[8:10], d.GeneralPurposeBitFlag)
	binary.LittleEndian.PutUint16(buf[10:12], d.CompressionMethod)
	binary.LittleEndian.PutUint16(buf[12:14], d.LastModFileTime)
	binary.LittleEndian.PutUint16(buf[14:16], d.LastModFileDate)
	binary.LittleEndian.PutUint32(buf[16:20], d.CRC32)
	binary.LittleEndian.PutUint32(buf[20:24], d.CompressedSize)
	binary.LittleEndian.PutUint32(buf[24:28], d.UncompressedSize)
	binary.LittleEndian.PutUint16(buf[28:30], d.FilenameLength)
	binary.LittleEndian.PutUint16(buf[30:32], uint16(len(extra)))
	binary.LittleEndian.PutUint16(buf[32:34], d.FileCommentLength)
	binary.LittleEndian.PutUint16(buf[34:36], d.DiskNumberStart)
	binary.LittleEndian.PutUint16(buf[36:38], d.InternalFileAttributes)
	binary.LittleEndian.PutUint32(buf[38:42], d.ExternalFileAttributes)
	binary.LittleEndian.PutUint32(buf[42:46], d.LocalHeaderOffset)

	offset := 46
	offset += copy(buf[offset:], d.Filename)
	offset += copy(buf[offset:], extra)
	copy(buf[offset:], d.Comment)

	return buf
}

// DataDescriptor trails a streamed entry whose sizes were unknown at
// header-write time. On the wire it may or may not carry its signature;
// this package only deals with the signed form.
type DataDescriptor struct {
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
}

// ParseDataDescriptor decodes the 12 bytes following a descriptor signature.
func ParseDataDescriptor(b []byte) (DataDescriptor, error) {
	const fixed = DataDescriptorLen - SignatureLen
	if len(b) < fixed {
		return DataDescriptor{}, fmt.Errorf("data descriptor: %w", io.ErrUnexpectedEOF)
	}
	return DataDescriptor{
		CRC32:            binary.LittleEndian.Uint32(b[0:4]),
		CompressedSize:   binary.LittleEndian.Uint32(b[4:8]),
		UncompressedSize: binary.LittleEndian.Uint32(b[8:12]),
	}, nil
}

func (d DataDescriptor) Encode() []byte {
	buf := make([]byte, DataDescriptorLen)
	binary.LittleEndian.PutUint32(buf[0:4], DataDescriptorSignature)
	binary.LittleEndian.PutUint32(buf[4:8], d.CRC32)
	binary.LittleEndian.PutUint32(buf[8:12], d.CompressedSize)
	binary.LittleEndian.PutUint32(buf[12:16], d.UncompressedSize)
	return buf
}

type EndOfCentralDirectory struct {
	ThisDiskNum                     uint16
	DiskNumWithTheStartOfCentralDir uint16
	TotalNumberOfEntriesOnThisDisk  uint16
	TotalNumberOfEntries            uint16
	CentralDirSize                  uint32
	CentralDirOffset                uint32
	CommentLength                   uint16
	Comment                         string
}

// ParseEndOfCentralDir decodes the end of central directory record from b,
// which must start immediately after the 4-byte signature.
func ParseEndOfCentralDir(b []byte) (EndOfCentralDirectory, error) {
	const fixed = EndOfCentralDirLen - SignatureLen
	if len(b) < fixed {
		return EndOfCentralDirectory{}, fmt.Errorf("end of central directory: %w", io.ErrUnexpectedEOF)
	}
	end := EndOfCentralDirectory{
		ThisDiskNum:                     binary.LittleEndian.Uint16(b[0:2]),
		DiskNumWithTheStartOfCentralDir: binary.LittleEndian.Uint16(b[2:4]),
		TotalNumberOfEntriesOnThisDisk:  binary.LittleEndian.Uint16(b[4:6]),
		TotalNumberOfEntries:            binary.LittleEndian.Uint16(b[6:8]),
		CentralDirSize:                  binary.LittleEndian.Uint32(b[8:12]),
		CentralDirOffset:                binary.LittleEndian.Uint32(b[12:16]),
		CommentLength:                   binary.LittleEndian.Uint16(b[16:18]),
	}
	if len(b) < fixed+int(end.CommentLength) {
		return EndOfCentralDirectory{}, fmt.Errorf("end of central directory comment: %w", io.ErrUnexpectedEOF)
	}
	end.Comment = string(b[fixed : fixed+int(end.CommentLength)])

	return end, nil
}

func EncodeEndOfCentralDirRecord(entriesNum int, centralDirSize uint64, centralDirOffset uint64, comment string) []byte {
	commentLen := min(len(comment), math.MaxUint16)
	buf := make([]byte, 22+commentLen)

	binary.LittleEndian.PutUint32(buf[0:4], EndOfCentralDirSignature)
	binary.LittleEndian.PutUint16(buf[4:6], 0)
	binary.LittleEndian.PutUint16(buf[6:8], 0)
	binary.LittleEndian.PutUint16(buf[8:10], uint16(min(math.MaxUint16, entriesNum)))
	binary.LittleEndian.PutUint16(buf[10:12], uint16(min(math.MaxUint16, entriesNum)))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(min(math.MaxUint32, centralDirSize)))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(min(math.MaxUint32, centralDirOffset)))
	binary.LittleEndian.PutUint16(buf[20:22], uint16(commentLen))

	copy(buf[22:], comment[:commentLen])

	return buf
}

type Zip64EndOfCentralDirectory struct {
	Size                            uint64
	VersionMadeBy                   uint16
	VersionNeededToExtract          uint16
	ThisDiskNum                     uint32
	DiskNumWithTheStartOfCentralDir uint32
	TotalNumberOfEntriesOnThisDisk  uint64
	TotalNumberOfEntries            uint64
	CentralDirSize                  uint64
	CentralDirOffset                uint64
}

// ParseZip64EndOfCentralDir decodes the ZIP64 end of central directory record
// from b, which must start immediately after the 4-byte signature.
func ParseZip64EndOfCentralDir(b []byte) (Zip64EndOfCentralDirectory, error) {
	const fixed = Zip64EndOfCentralDirLen - SignatureLen
	if len(b) < fixed {
		return Zip64EndOfCentralDirectory{}, fmt.Errorf("zip64 end of central directory: %w", io.ErrUnexpectedEOF)
	}
	return Zip64EndOfCentralDirectory{
		Size:                            binary.LittleEndian.Uint64(b[0:8]),
		VersionMadeBy:                   binary.LittleEndian.Uint16(b[8:10]),
		VersionNeededToExtract:          binary.LittleEndian.Uint16(b[10:12]),
		ThisDiskNum:                     binary.LittleEndian.Uint32(b[12:16]),
		DiskNumWithTheStartOfCentralDir: binary.LittleEndian.Uint32(b[16:20]),
		TotalNumberOfEntriesOnThisDisk:  binary.LittleEndian.Uint64(b[20:28]),
		TotalNumberOfEntries:            binary.LittleEndian.Uint64(b[28:36]),
		CentralDirSize:                  binary.LittleEndian.Uint64(b[36:44]),
		CentralDirOffset:                binary.LittleEndian.Uint64(b[44:52]),
	}, nil
}

func EncodeZip64EndOfCentralDirRecord(entriesNum uint64, centralDirSize uint64, centralDirOffset uint64) []byte {
	buf := make([]byte, 56)

	binary.LittleEndian.PutUint32(buf[0:4], Zip64EndOfCentralDirSignature)
	binary.LittleEndian.PutUint64(buf[4:12], 44)
	binary.LittleEndian.PutUint16(buf[12:14], 45)
	binary.LittleEndian.PutUint16(buf[14:16], 45)
	binary.LittleEndian.PutUint32(buf[16:20], 0)
	binary.LittleEndian.PutUint32(buf[20:24], 0)
	binary.LittleEndian.PutUint64(buf[24:32], entriesNum)
	binary.LittleEndian.PutUint64(buf[32:40], entriesNum)
	binary.LittleEndian.PutUint64(buf[40:48], centralDirSize)
	binary.LittleEndian.PutUint64(buf[48:56], centralDirOffset)

	return buf
}

type Zip64EndOfCentralDirectoryLocator struct {
	EndOfCentralDirStartDiskNum uint32
	Zip64EndOfCentralDirOffset  uint64
	TotalNumberOfDisks          uint32
}

func ParseZip64EndOfCentralDirLocator(b []byte) (Zip64EndOfCentralDirectoryLocator, error) {
	if len(b) < 16 {
		return Zip64EndOfCentralDirectoryLocator{}, fmt.Errorf("zip64 locator: %w", io.ErrUnexpectedEOF)
	}
	return Zip64EndOfCentralDirectoryLocator{
		EndOfCentralDirStartDiskNum: binary.LittleEndian.Uint32(b[0:4]),
		Zip64EndOfCentralDirOffset:  binary.LittleEndian.Uint64(b[4:12]),
		TotalNumberOfDisks:          binary.LittleEndian.Uint32(b[12:16]),
	}, nil
}

func EncodeZip64EndOfCentralDirLocator(endOfCentralDirOffset uint64) []byte {
	buf := make([]byte, 20)

	binary.LittleEndian.PutUint32(buf[0:4], Zip64EndOfCentralDirLocatorSignature)
	binary.LittleEndian.PutUint32(buf[4:8], 0)
	binary.LittleEndian.PutUint64(buf[8:16], endOfCentralDirOffset)
	binary.LittleEndian.PutUint32(buf[16:20], 1)

	return buf
}

// EncodeZip64ExtraField builds the tag 0x0001 record holding 64-bit sizes.
// Field order follows APPNOTE: original (uncompressed) size first.
func EncodeZip64ExtraField(uncompressedSize, compressedSize uint64) []byte {
	buf := make([]byte, 20)
	binary.LittleEndian.PutUint16(buf[0:2], Zip64ExtraFieldTag)
	binary.LittleEndian.PutUint16(buf[2:4], 16)
	binary.LittleEndian.PutUint64(buf[4:12], uncompressedSize)
	binary.LittleEndian.PutUint64(buf[12:20], compressedSize)
	return buf
}

// EncodeExtraField packs extra fields back into TLV wire form, in ascending
// tag order for deterministic output.
func EncodeExtraField(extraField map[uint16][]byte) []byte {
	if len(extraField) == 0 {
		return nil
	}
	keys := make([]uint16, 0, len(extraField))
	for key := range extraField {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	var buf []byte
	var hdr [4]byte
	for _, key := range keys {
		binary.LittleEndian.PutUint16(hdr[0:2], key)
		binary.LittleEndian.PutUint16(hdr[2:4], uint16(len(extraField[key])))
		buf = append(buf, hdr[:]...)
		buf = append(buf, extraField[key]...)
	}
	return buf
}

// ParseExtraField converts raw extra field bytes into a map keyed by tag ID.
// Values hold the field data only, without the 4-byte tag/size prefix.
// Malformed trailing bytes are ignored rather than treated as fatal; extra
// fields are advisory and a short tail never affects record framing.
func ParseExtraField(extraField []byte) map[uint16][]byte {
	m := make(map[uint16][]byte)

	for offset := 0; offset < len(extraField); {
		if offset+4 > len(extraField) {
			break
		}

		tag := binary.LittleEndian.Uint16(extraField[offset : offset+2])
		size := int(binary.LittleEndian.Uint16(extraField[offset+2 : offset+4]))

		offset += 4
		if offset+size > len(extraField) {
			break
		}

		m[tag] = extraField[offset : offset+size]
		offset += size
	}
	return m
}
