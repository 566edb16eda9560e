// Copyright 2026 The niivue Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package medgfx

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitsFromReader(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want Limits
	}{
		{
			name: "Both ceilings set",
			doc: `
max_entry_size: 1048576
max_decoded_size: 4194304
`,
			want: Limits{MaxEntrySize: 1048576, MaxDecodedSize: 4194304},
		},
		{
			name: "Partial document keeps defaults",
			doc:  `max_entry_size: 1048576`,
			want: Limits{MaxEntrySize: 1048576, MaxDecodedSize: DefaultMaxDecodedSize},
		},
		{
			name: "Empty document means all defaults",
			doc:  "",
			want: DefaultLimits(),
		},
		{
			name: "Negative values fall back",
			doc:  `max_entry_size: -1`,
			want: DefaultLimits(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LimitsFromReader(strings.NewReader(tt.doc))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLimitsFromReader_BadDocument(t *testing.T) {
	_, err := LimitsFromReader(strings.NewReader("max_entry_size: [not a number"))
	assert.Error(t, err)
}

func TestLimitsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limits.yaml")
	doc := "max_entry_size: 2097152\nmax_decoded_size: 8388608\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	limits, err := LimitsFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(2097152), limits.MaxEntrySize)
	assert.Equal(t, int64(8388608), limits.MaxDecodedSize)

	_, err = LimitsFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestWithLimits_PartialFillsDefaults(t *testing.T) {
	data := buildArchive(storedEntry("a.txt", []byte("hi")), eocd(1, ""))

	archive, err := NewArchive(data, WithLimits(Limits{MaxEntrySize: 4}))
	require.NoError(t, err)
	assert.Equal(t, int64(4), archive.Limits().MaxEntrySize)
	assert.Equal(t, DefaultMaxDecodedSize, archive.Limits().MaxDecodedSize)
}

func TestUnpack(t *testing.T) {
	scan := []byte("slice 0 raw voxel run, slice 1 raw voxel run, slice 2")
	notes := []byte("acquired 2024-03-15")
	data := buildArchive(
		storedEntry("imaging/", nil),
		deflateEntry(t, "imaging/scan.bin", scan),
		storedEntry("notes.txt", notes),
		eocd(3, ""),
	)

	archive, err := NewArchive(data)
	require.NoError(t, err)

	dest := t.TempDir()
	require.NoError(t, archive.Unpack(dest))

	assert.DirExists(t, filepath.Join(dest, "imaging"))

	got, err := os.ReadFile(filepath.Join(dest, "imaging", "scan.bin"))
	require.NoError(t, err)
	assert.Equal(t, scan, got)

	got, err = os.ReadFile(filepath.Join(dest, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, notes, got)

	info, err := os.Stat(filepath.Join(dest, "notes.txt"))
	require.NoError(t, err)
	assert.WithinDuration(t, fixtureModTime, info.ModTime(), time.Second)
}

func TestUnpack_CreatesIntermediateDirs(t *testing.T) {
	content := []byte("deep payload")
	data := buildArchive(
		storedEntry("a/b/c/leaf.bin", content),
		eocd(1, ""),
	)

	archive, err := NewArchive(data)
	require.NoError(t, err)

	dest := t.TempDir()
	require.NoError(t, archive.Unpack(dest))

	got, err := os.ReadFile(filepath.Join(dest, "a", "b", "c", "leaf.bin"))
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestUnpack_InsecurePath(t *testing.T) {
	safe := []byte("kept")
	data := buildArchive(
		storedEntry("good.txt", safe),
		storedEntry("../evil.txt", []byte("escaped")),
		eocd(2, ""),
	)

	archive, err := NewArchive(data)
	require.NoError(t, err)

	dest := t.TempDir()
	err = archive.Unpack(dest)
	assert.ErrorIs(t, err, ErrInsecurePath)

	// The traversal entry is rejected, the rest of the archive still lands.
	got, rerr := os.ReadFile(filepath.Join(dest, "good.txt"))
	require.NoError(t, rerr)
	assert.Equal(t, safe, got)
	assert.NoFileExists(t, filepath.Join(dest, "..", "evil.txt"))
}

func TestUnpack_Cancelled(t *testing.T) {
	data := buildArchive(storedEntry("a.txt", []byte("hi")), eocd(1, ""))

	archive, err := NewArchive(data)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = archive.UnpackWithContext(ctx, t.TempDir())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestArchive_Comment(t *testing.T) {
	data := buildArchive(eocd(0, "series export"))

	archive, err := NewArchive(data)
	require.NoError(t, err)
	assert.Equal(t, "series export", archive.Comment())
	assert.Equal(t, int64(len(data)), archive.Size())
}
