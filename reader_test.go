// Copyright 2026 The niivue Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package medgfx

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io/fs"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/niivue/medgfx/internal"
	"github.com/niivue/medgfx/internal/sys"
)

var fixtureModTime = time.Date(2024, time.March, 15, 10, 30, 0, 0, time.UTC)

// buildArchive concatenates encoded records into one archive buffer.
func buildArchive(parts ...[]byte) []byte {
	var buf bytes.Buffer
	for _, p := range parts {
		buf.Write(p)
	}
	return buf.Bytes()
}

// storedEntry encodes a local file header followed by its stored payload.
func storedEntry(name string, content []byte) []byte {
	dosDate, dosTime := timeToMsDos(fixtureModTime)
	hdr := internal.LocalFileHeader{
		VersionNeededToExtract: 20,
		CompressionMethod:      uint16(Stored),
		LastModFileTime:        dosTime,
		LastModFileDate:        dosDate,
		CRC32:                  crc32.ChecksumIEEE(content),
		CompressedSize:         uint32(len(content)),
		UncompressedSize:       uint32(len(content)),
		FilenameLength:         uint16(len(name)),
		Filename:               name,
	}
	return append(hdr.Encode(), content...)
}

// deflateEntry compresses content with raw framing and encodes its header.
func deflateEntry(t *testing.T, name string, content []byte) []byte {
	t.Helper()
	packed, err := Compress(content, FormatDeflateRaw)
	if err != nil {
		t.Fatalf("Failed to deflate fixture content: %v", err)
	}
	hdr := internal.LocalFileHeader{
		VersionNeededToExtract: 20,
		CompressionMethod:      uint16(Deflated),
		CRC32:                  crc32.ChecksumIEEE(content),
		CompressedSize:         uint32(len(packed)),
		UncompressedSize:       uint32(len(content)),
		FilenameLength:         uint16(len(name)),
		Filename:               name,
	}
	return append(hdr.Encode(), packed...)
}

func eocd(entries int, comment string) []byte {
	return internal.EncodeEndOfCentralDirRecord(entries, 0, 0, comment)
}

func TestNewArchive_StoredEntry(t *testing.T) {
	content := []byte("hi")
	data := buildArchive(storedEntry("a.txt", content), eocd(1, ""))

	archive, err := NewArchive(data)
	if err != nil {
		t.Fatalf("NewArchive() error = %v", err)
	}

	entries := archive.Entries()
	if len(entries) != 1 {
		t.Fatalf("Entry count mismatch: got %d, want 1", len(entries))
	}

	e := entries[0]
	if e.Name() != "a.txt" {
		t.Errorf("Name mismatch: got %q", e.Name())
	}
	if e.Method() != Stored {
		t.Errorf("Method mismatch: got %v", e.Method())
	}
	if e.CompressedSize() != 2 || e.UncompressedSize() != 2 {
		t.Errorf("Size mismatch: got %d/%d, want 2/2", e.CompressedSize(), e.UncompressedSize())
	}
	// Payload begins right after the 30-byte header and 5-byte name.
	if e.Offset() != 35 {
		t.Errorf("Offset mismatch: got %d, want 35", e.Offset())
	}
	if !e.ModTime().Equal(fixtureModTime) {
		t.Errorf("ModTime mismatch: got %v, want %v", e.ModTime(), fixtureModTime)
	}

	got, err := e.Extract()
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("Content mismatch: got %q, want %q", got, content)
	}
	// Stored payloads are returned as subslices of the archive buffer.
	if &got[0] != &data[35] {
		t.Error("Stored payload was copied instead of sliced")
	}
}

func TestNewArchive_EOCDOnly(t *testing.T) {
	archive, err := NewArchive(eocd(0, "archive comment"))
	if err != nil {
		t.Fatalf("NewArchive() error = %v", err)
	}

	if len(archive.Entries()) != 0 {
		t.Errorf("Entry count mismatch: got %d, want 0", len(archive.Entries()))
	}
	if archive.Comment() != "archive comment" {
		t.Errorf("Comment mismatch: got %q", archive.Comment())
	}
	if archive.EOCD().IsZip64() {
		t.Error("IsZip64() = true for a classic record")
	}
}

func TestNewArchive_Zip64EOCD(t *testing.T) {
	data := buildArchive(
		storedEntry("a.txt", []byte("hi")),
		internal.EncodeZip64EndOfCentralDirRecord(1, 60, 0),
	)

	archive, err := NewArchive(data)
	if err != nil {
		t.Fatalf("NewArchive() error = %v", err)
	}
	if !archive.EOCD().IsZip64() {
		t.Error("IsZip64() = false for a zip64 record")
	}
	if archive.EOCD().EntryCount() != 1 {
		t.Errorf("EntryCount mismatch: got %d", archive.EOCD().EntryCount())
	}
}

func TestNewArchive_Errors(t *testing.T) {
	valid := buildArchive(storedEntry("a.txt", []byte("hi")), eocd(1, ""))

	hugePayload := internal.LocalFileHeader{
		CompressionMethod: uint16(Stored),
		CompressedSize:    100,
		UncompressedSize:  100,
		FilenameLength:    5,
		Filename:          "a.bin",
	}.Encode()

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{
			name:    "Empty buffer",
			data:    nil,
			wantErr: ErrTruncated,
		},
		{
			name:    "Shorter than a signature",
			data:    []byte{0x50, 0x4B},
			wantErr: ErrTruncated,
		},
		{
			name:    "Cut inside local header",
			data:    valid[:10],
			wantErr: ErrTruncated,
		},
		{
			name:    "Unknown record signature",
			data:    []byte{0x50, 0x4B, 0xFF, 0xFF, 0x00, 0x00},
			wantErr: ErrFormat,
		},
		{
			name:    "Not an archive at all",
			data:    []byte("this is definitely not zip data"),
			wantErr: ErrFormat,
		},
		{
			name:    "Payload runs past buffer end",
			data:    append(hugePayload, []byte("short")...),
			wantErr: ErrTruncated,
		},
		{
			name:    "Missing end of central directory",
			data:    buildArchive(storedEntry("a.txt", []byte("hi"))),
			wantErr: ErrTruncated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewArchive(tt.data)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewArchive() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewArchive_Zip64Entry(t *testing.T) {
	content := []byte("Hello World")
	packed, err := Compress(content, FormatDeflateRaw)
	if err != nil {
		t.Fatalf("Failed to deflate fixture content: %v", err)
	}

	extra := internal.EncodeZip64ExtraField(uint64(len(content)), uint64(len(packed)))
	hdr := internal.LocalFileHeader{
		VersionNeededToExtract: 45,
		CompressionMethod:      uint16(Deflated),
		CRC32:                  crc32.ChecksumIEEE(content),
		CompressedSize:         internal.SizePlaceholder,
		UncompressedSize:       internal.SizePlaceholder,
		FilenameLength:         9,
		ExtraFieldLength:       uint16(len(extra)),
		Filename:               "large.dat",
		ExtraField:             extra,
	}
	data := buildArchive(hdr.Encode(), packed, eocd(1, ""))

	archive, err := NewArchive(data)
	if err != nil {
		t.Fatalf("NewArchive() error = %v", err)
	}

	e := archive.Entries()[0]
	if e.UncompressedSize() != int64(len(content)) {
		t.Errorf("Zip64 uncompressed size mismatch: got %d, want %d", e.UncompressedSize(), len(content))
	}
	if e.CompressedSize() != int64(len(packed)) {
		t.Errorf("Zip64 compressed size mismatch: got %d, want %d", e.CompressedSize(), len(packed))
	}

	got, err := e.Extract()
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("Content mismatch: got %q, want %q", got, content)
	}
}

func TestNewArchive_Zip64MissingExtra(t *testing.T) {
	shortExtra := make([]byte, 12) // tag + size + only 8 data bytes
	copy(shortExtra, internal.EncodeZip64ExtraField(0, 0)[:4])
	shortExtra[2] = 8

	tests := []struct {
		name  string
		extra []byte
	}{
		{name: "No extra field at all", extra: nil},
		{name: "Extra field too short", extra: shortExtra},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hdr := internal.LocalFileHeader{
				CompressionMethod: uint16(Stored),
				CompressedSize:    internal.SizePlaceholder,
				UncompressedSize:  internal.SizePlaceholder,
				FilenameLength:    9,
				ExtraFieldLength:  uint16(len(tt.extra)),
				Filename:          "large.dat",
				ExtraField:        tt.extra,
			}
			data := buildArchive(hdr.Encode(), eocd(1, ""))

			_, err := NewArchive(data)
			if !errors.Is(err, ErrFormat) {
				t.Errorf("NewArchive() error = %v, want ErrFormat", err)
			}
		})
	}
}

func TestNewArchive_DataDescriptor(t *testing.T) {
	content := []byte("Hello World")
	packed, err := Compress(content, FormatDeflateRaw)
	if err != nil {
		t.Fatalf("Failed to deflate fixture content: %v", err)
	}

	hdr := internal.LocalFileHeader{
		VersionNeededToExtract: 20,
		GeneralPurposeBitFlag:  internal.FlagDeferredSizes,
		CompressionMethod:      uint16(Deflated),
		FilenameLength:         10,
		Filename:               "stream.bin",
	}
	desc := internal.DataDescriptor{
		CRC32:            crc32.ChecksumIEEE(content),
		CompressedSize:   uint32(len(packed)),
		UncompressedSize: uint32(len(content)),
	}
	data := buildArchive(hdr.Encode(), packed, desc.Encode(), eocd(1, ""))

	archive, err := NewArchive(data)
	if err != nil {
		t.Fatalf("NewArchive() error = %v", err)
	}

	e := archive.Entries()[0]
	if e.CompressedSize() != int64(len(packed)) {
		t.Errorf("Descriptor compressed size mismatch: got %d, want %d", e.CompressedSize(), len(packed))
	}
	if e.UncompressedSize() != int64(len(content)) {
		t.Errorf("Descriptor uncompressed size mismatch: got %d, want %d", e.UncompressedSize(), len(content))
	}
	if e.CRC32() != crc32.ChecksumIEEE(content) {
		t.Errorf("Descriptor crc mismatch: got %08x", e.CRC32())
	}

	got, err := e.Extract()
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("Content mismatch: got %q, want %q", got, content)
	}
}

func TestNewArchive_DataDescriptorFalsePositive(t *testing.T) {
	// A stored payload that opens with the descriptor signature. The first
	// match fails the "PK" double check 16 bytes later and must be skipped.
	payload := []byte{0x50, 0x4B, 0x07, 0x08}
	payload = append(payload, []byte("0123456789ab")...) // 12 filler bytes
	payload = append(payload, 'x', 'y')                  // offsets 16,17: not "PK"

	hdr := internal.LocalFileHeader{
		GeneralPurposeBitFlag: internal.FlagDeferredSizes,
		CompressionMethod:     uint16(Stored),
		FilenameLength:        8,
		Filename:              "fake.bin",
	}
	desc := internal.DataDescriptor{
		CRC32:            crc32.ChecksumIEEE(payload),
		CompressedSize:   uint32(len(payload)),
		UncompressedSize: uint32(len(payload)),
	}
	data := buildArchive(hdr.Encode(), payload, desc.Encode(), eocd(1, ""))

	archive, err := NewArchive(data)
	if err != nil {
		t.Fatalf("NewArchive() error = %v", err)
	}

	e := archive.Entries()[0]
	if e.CompressedSize() != int64(len(payload)) {
		t.Fatalf("Descriptor size mismatch: got %d, want %d", e.CompressedSize(), len(payload))
	}

	got, err := e.Extract()
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("Content mismatch after skipping false descriptor signature")
	}
}

func TestNewArchive_DataDescriptorMissing(t *testing.T) {
	hdr := internal.LocalFileHeader{
		GeneralPurposeBitFlag: internal.FlagDeferredSizes,
		CompressionMethod:     uint16(Deflated),
		FilenameLength:        10,
		Filename:              "stream.bin",
	}
	data := buildArchive(hdr.Encode(), []byte("no descriptor follows this payload"))

	_, err := NewArchive(data)
	if !errors.Is(err, ErrTruncated) {
		t.Errorf("NewArchive() error = %v, want ErrTruncated", err)
	}
}

func TestExtract_SizeLimit(t *testing.T) {
	t.Run("Default ceiling", func(t *testing.T) {
		// The header declares 501 MiB; only the declaration matters, the
		// ceiling check runs before any payload bytes are read.
		hdr := internal.LocalFileHeader{
			CompressionMethod: uint16(Stored),
			CompressedSize:    2,
			UncompressedSize:  501 * 1024 * 1024,
			FilenameLength:    8,
			Filename:          "huge.bin",
		}
		data := buildArchive(hdr.Encode(), []byte("hi"), eocd(1, ""))

		archive, err := NewArchive(data)
		if err != nil {
			t.Fatalf("NewArchive() error = %v", err)
		}
		_, err = archive.Extract(archive.Entries()[0])
		if !errors.Is(err, ErrSizeLimit) {
			t.Errorf("Extract() error = %v, want ErrSizeLimit", err)
		}
	})

	t.Run("Custom ceiling", func(t *testing.T) {
		data := buildArchive(storedEntry("a.txt", []byte("12345")), eocd(1, ""))

		archive, err := NewArchive(data, WithMaxEntrySize(4))
		if err != nil {
			t.Fatalf("NewArchive() error = %v", err)
		}
		if archive.Limits().MaxEntrySize != 4 {
			t.Errorf("MaxEntrySize mismatch: got %d", archive.Limits().MaxEntrySize)
		}
		_, err = archive.Extract(archive.Entries()[0])
		if !errors.Is(err, ErrSizeLimit) {
			t.Errorf("Extract() error = %v, want ErrSizeLimit", err)
		}
	})
}

func TestExtract_SizeMismatch(t *testing.T) {
	t.Run("Stored entry", func(t *testing.T) {
		hdr := internal.LocalFileHeader{
			CompressionMethod: uint16(Stored),
			CompressedSize:    2,
			UncompressedSize:  5,
			FilenameLength:    5,
			Filename:          "a.txt",
		}
		data := buildArchive(hdr.Encode(), []byte("hi"), eocd(1, ""))

		archive, err := NewArchive(data)
		if err != nil {
			t.Fatalf("NewArchive() error = %v", err)
		}
		_, err = archive.Extract(archive.Entries()[0])
		if !errors.Is(err, ErrSizeMismatch) {
			t.Errorf("Extract() error = %v, want ErrSizeMismatch", err)
		}
	})

	t.Run("Deflated entry", func(t *testing.T) {
		content := []byte("Hello World")
		packed, err := Compress(content, FormatDeflateRaw)
		if err != nil {
			t.Fatalf("Failed to deflate fixture content: %v", err)
		}

		hdr := internal.LocalFileHeader{
			CompressionMethod: uint16(Deflated),
			CompressedSize:    uint32(len(packed)),
			UncompressedSize:  uint32(len(content)) + 9,
			FilenameLength:    5,
			Filename:          "a.txt",
		}
		data := buildArchive(hdr.Encode(), packed, eocd(1, ""))

		archive, err := NewArchive(data)
		if err != nil {
			t.Fatalf("NewArchive() error = %v", err)
		}
		_, err = archive.Extract(archive.Entries()[0])
		if !errors.Is(err, ErrSizeMismatch) {
			t.Errorf("Extract() error = %v, want ErrSizeMismatch", err)
		}
	})
}

func TestExtract_UnsupportedMethod(t *testing.T) {
	payload := []byte("abcde")
	hdr := internal.LocalFileHeader{
		CompressionMethod: uint16(ZStandard),
		CompressedSize:    uint32(len(payload)),
		UncompressedSize:  uint32(len(payload)),
		FilenameLength:    5,
		Filename:          "z.dat",
	}
	data := buildArchive(hdr.Encode(), payload, eocd(1, ""))

	archive, err := NewArchive(data)
	if err != nil {
		t.Fatalf("NewArchive() error = %v", err)
	}
	if _, err := archive.Extract(archive.Entries()[0]); !errors.Is(err, ErrAlgorithm) {
		t.Errorf("Extract() error = %v, want ErrAlgorithm", err)
	}

	// Installing a decompressor for the method makes the entry readable.
	// The payload above is not really zstd, so a passthrough stands in.
	archive, err = NewArchive(data, WithDecompressor(ZStandard, &StoredDecompressor{}))
	if err != nil {
		t.Fatalf("NewArchive() error = %v", err)
	}
	got, err := archive.Extract(archive.Entries()[0])
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Content mismatch: got %q, want %q", got, payload)
	}
}

func TestExtract_ChecksumVerify(t *testing.T) {
	content := []byte("hi")
	bad := internal.LocalFileHeader{
		CompressionMethod: uint16(Stored),
		CRC32:             0xDEADBEEF,
		CompressedSize:    2,
		UncompressedSize:  2,
		FilenameLength:    5,
		Filename:          "a.txt",
	}
	badData := buildArchive(bad.Encode(), content, eocd(1, ""))

	t.Run("Mismatch detected when enabled", func(t *testing.T) {
		archive, err := NewArchive(badData, WithChecksumVerify())
		if err != nil {
			t.Fatalf("NewArchive() error = %v", err)
		}
		if _, err := archive.Extract(archive.Entries()[0]); !errors.Is(err, ErrChecksum) {
			t.Errorf("Extract() error = %v, want ErrChecksum", err)
		}
	})

	t.Run("Mismatch ignored by default", func(t *testing.T) {
		archive, err := NewArchive(badData)
		if err != nil {
			t.Fatalf("NewArchive() error = %v", err)
		}
		if _, err := archive.Extract(archive.Entries()[0]); err != nil {
			t.Errorf("Extract() error = %v", err)
		}
	})

	t.Run("Valid checksum passes", func(t *testing.T) {
		data := buildArchive(storedEntry("a.txt", content), eocd(1, ""))
		archive, err := NewArchive(data, WithChecksumVerify())
		if err != nil {
			t.Fatalf("NewArchive() error = %v", err)
		}
		got, err := archive.Extract(archive.Entries()[0])
		if err != nil {
			t.Fatalf("Extract() error = %v", err)
		}
		if !bytes.Equal(got, content) {
			t.Errorf("Content mismatch: got %q", got)
		}
	})
}

func TestExtract_Concurrent(t *testing.T) {
	first := []byte("hi")
	second := []byte("Hello World, again and again and again")
	data := buildArchive(
		storedEntry("a.txt", first),
		deflateEntry(t, "b.txt", second),
		eocd(2, ""),
	)

	archive, err := NewArchive(data, WithCache(4))
	if err != nil {
		t.Fatalf("NewArchive() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, e := range archive.Entries() {
				got, err := e.Extract()
				if err != nil {
					t.Errorf("Extract(%s) error = %v", e.Name(), err)
					return
				}
				want := first
				if e.Name() == "b.txt" {
					want = second
				}
				if !bytes.Equal(got, want) {
					t.Errorf("Content mismatch for %s", e.Name())
				}
			}
		}()
	}
	wg.Wait()
}

func TestExtract_Cached(t *testing.T) {
	content := []byte("Hello World, cached")
	data := buildArchive(deflateEntry(t, "c.txt", content), eocd(1, ""))

	t.Run("Cache shares the decoded buffer", func(t *testing.T) {
		archive, err := NewArchive(data, WithCache(2))
		if err != nil {
			t.Fatalf("NewArchive() error = %v", err)
		}
		e := archive.Entries()[0]

		one, err := e.Extract()
		if err != nil {
			t.Fatalf("Extract() error = %v", err)
		}
		two, err := e.Extract()
		if err != nil {
			t.Fatalf("Extract() error = %v", err)
		}
		if &one[0] != &two[0] {
			t.Error("Cached extraction returned a different buffer")
		}
	})

	t.Run("No cache inflates fresh", func(t *testing.T) {
		archive, err := NewArchive(data)
		if err != nil {
			t.Fatalf("NewArchive() error = %v", err)
		}
		e := archive.Entries()[0]

		one, _ := e.Extract()
		two, _ := e.Extract()
		if &one[0] == &two[0] {
			t.Error("Uncached extraction shared a buffer")
		}
	})
}

func TestArchive_EntryLookup(t *testing.T) {
	data := buildArchive(
		storedEntry("a.txt", []byte("hi")),
		storedEntry("sub/b.txt", []byte("deeper")),
		eocd(2, ""),
	)

	archive, err := NewArchive(data)
	if err != nil {
		t.Fatalf("NewArchive() error = %v", err)
	}

	if _, err := archive.Entry("missing.txt"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("Entry() error = %v, want ErrFileNotFound", err)
	}

	e, err := archive.Entry("sub/b.txt")
	if err != nil {
		t.Fatalf("Entry() error = %v", err)
	}
	if e.Name() != "sub/b.txt" {
		t.Errorf("Name mismatch: got %q", e.Name())
	}

	names := archive.Names()
	if len(names) != 2 || names[0] != "a.txt" || names[1] != "sub/b.txt" {
		t.Errorf("Names mismatch: got %v", names)
	}
}

func TestNewArchive_CentralDirectory(t *testing.T) {
	entry := storedEntry("a.txt", []byte("hi"))
	cd := internal.CentralDirectory{
		VersionMadeBy:          uint16(sys.HostSystemUNIX)<<8 | 20,
		VersionNeededToExtract: 20,
		CompressionMethod:      uint16(Stored),
		CRC32:                  crc32.ChecksumIEEE([]byte("hi")),
		CompressedSize:         2,
		UncompressedSize:       2,
		FilenameLength:         5,
		FileCommentLength:      9,
		ExternalFileAttributes: uint32(0644) << 16,
		LocalHeaderOffset:      0,
		Filename:               "a.txt",
		Comment:                "a comment",
	}.Encode()
	data := buildArchive(entry, cd, eocd(1, "archive"))

	archive, err := NewArchive(data)
	if err != nil {
		t.Fatalf("NewArchive() error = %v", err)
	}

	records := archive.CentralDirectory()
	if len(records) != 1 {
		t.Fatalf("Central directory record count mismatch: got %d", len(records))
	}

	rec := records[0]
	if rec.Name() != "a.txt" {
		t.Errorf("Name mismatch: got %q", rec.Name())
	}
	if rec.Comment() != "a comment" {
		t.Errorf("Comment mismatch: got %q", rec.Comment())
	}
	if rec.HostSystem() != sys.HostSystemUNIX {
		t.Errorf("HostSystem mismatch: got %v", rec.HostSystem())
	}
	if rec.Mode() != 0644 {
		t.Errorf("Mode mismatch: got %v", rec.Mode())
	}
	if rec.LocalHeaderOffset() != 0 {
		t.Errorf("LocalHeaderOffset mismatch: got %d", rec.LocalHeaderOffset())
	}
	if archive.EOCD().EntryCount() != 1 {
		t.Errorf("EntryCount mismatch: got %d", archive.EOCD().EntryCount())
	}
}

func TestNewCentralDirectoryEntry_Zip64(t *testing.T) {
	// Sizes followed by the local header offset, each 8 bytes.
	extra := make([]byte, 0, 24)
	extra = append(extra, internal.EncodeZip64ExtraField(5000000000, 4000000000)[4:]...)
	extra = binary.LittleEndian.AppendUint64(extra, 1000000000)

	rec := internal.CentralDirectory{
		UncompressedSize:  math.MaxUint32,
		CompressedSize:    math.MaxUint32,
		LocalHeaderOffset: math.MaxUint32,
		Filename:          "large_file.dat",
		ExtraField: map[uint16][]byte{
			internal.Zip64ExtraFieldTag: extra,
		},
	}

	e := newCentralDirectoryEntry(rec)
	if e.UncompressedSize() != 5000000000 {
		t.Errorf("Zip64 uncompressed size mismatch: got %d", e.UncompressedSize())
	}
	if e.CompressedSize() != 4000000000 {
		t.Errorf("Zip64 compressed size mismatch: got %d", e.CompressedSize())
	}
	if e.LocalHeaderOffset() != 1000000000 {
		t.Errorf("Zip64 offset mismatch: got %d", e.LocalHeaderOffset())
	}
}

func TestParseExternalAttributes(t *testing.T) {
	tests := []struct {
		name     string
		entry    internal.CentralDirectory
		wantMode fs.FileMode
	}{
		{
			name: "Unix regular file (0644)",
			entry: internal.CentralDirectory{
				VersionMadeBy:          uint16(sys.HostSystemUNIX) << 8,
				ExternalFileAttributes: (sys.S_IFREG | 0644) << 16,
			},
			wantMode: 0644,
		},
		{
			name: "Unix directory (0755)",
			entry: internal.CentralDirectory{
				VersionMadeBy:          uint16(sys.HostSystemUNIX) << 8,
				ExternalFileAttributes: (sys.S_IFDIR | 0755) << 16,
			},
			wantMode: 0755 | fs.ModeDir,
		},
		{
			name: "Unix symlink",
			entry: internal.CentralDirectory{
				VersionMadeBy:          uint16(sys.HostSystemDarwin) << 8,
				ExternalFileAttributes: (sys.S_IFLNK | 0777) << 16,
			},
			wantMode: 0777 | fs.ModeSymlink,
		},
		{
			name: "Windows read-only file",
			entry: internal.CentralDirectory{
				VersionMadeBy:          uint16(sys.HostSystemFAT) << 8,
				ExternalFileAttributes: sys.FATAttrReadOnly,
				Filename:               "file.txt",
			},
			wantMode: 0444,
		},
		{
			name: "Windows directory",
			entry: internal.CentralDirectory{
				VersionMadeBy:          uint16(sys.HostSystemNTFS) << 8,
				ExternalFileAttributes: sys.FATAttrDirectory,
				Filename:               "folder/",
			},
			wantMode: 0755 | fs.ModeDir,
		},
		{
			name: "Unknown host falls back to the name",
			entry: internal.CentralDirectory{
				VersionMadeBy: uint16(sys.HostSystemMacintosh) << 8,
				Filename:      "folder/",
			},
			wantMode: 0755 | fs.ModeDir,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseExternalAttributes(tt.entry)
			if got != tt.wantMode {
				t.Errorf("parseExternalAttributes() = %v, want %v", got, tt.wantMode)
			}
		})
	}
}
