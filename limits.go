// Copyright 2026 The niivue Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package medgfx

import (
	"bufio"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Default decompression ceilings. Compressed imaging payloads are fetched
// from sources the loader does not control, so every decode path is bounded
// against decompression bombs.
const (
	// DefaultMaxEntrySize caps the declared uncompressed size of a single
	// archive entry (500 MiB).
	DefaultMaxEntrySize int64 = 500 * 1024 * 1024

	// DefaultMaxDecodedSize caps the output of a standalone stream
	// decompression (2 GiB).
	DefaultMaxDecodedSize int64 = 2 * 1024 * 1024 * 1024
)

// Limits defines the size ceilings enforced during extraction and
// decompression. A zero or negative field falls back to its default.
type Limits struct {
	// MaxEntrySize rejects entries whose declared uncompressed size
	// exceeds it, before any payload bytes are touched.
	MaxEntrySize int64 `yaml:"max_entry_size"`

	// MaxDecodedSize bounds the number of bytes a stream decompression may
	// produce.
	MaxDecodedSize int64 `yaml:"max_decoded_size"`
}

// DefaultLimits returns the standard ceilings.
func DefaultLimits() Limits {
	return Limits{
		MaxEntrySize:   DefaultMaxEntrySize,
		MaxDecodedSize: DefaultMaxDecodedSize,
	}
}

// withDefaults fills unset fields so partial configs (e.g. a YAML document
// setting only one ceiling) keep the default for the rest.
func (l Limits) withDefaults() Limits {
	if l.MaxEntrySize <= 0 {
		l.MaxEntrySize = DefaultMaxEntrySize
	}
	if l.MaxDecodedSize <= 0 {
		l.MaxDecodedSize = DefaultMaxDecodedSize
	}
	return l
}

// LimitsFromReader takes an io.Reader with a YAML limits document and
// returns the parsed ceilings, with unset fields defaulted.
func LimitsFromReader(in io.Reader) (l Limits, err error) {
	d, err := io.ReadAll(in)
	if err != nil {
		return l, err
	}

	err = yaml.Unmarshal(d, &l)
	if err != nil {
		return l, err
	}
	return l.withDefaults(), nil
}

// LimitsFromFile returns Limits read from a YAML file.
func LimitsFromFile(f string) (Limits, error) {
	in, err := os.Open(f)
	if err != nil {
		return Limits{}, err
	}
	defer in.Close()
	b := bufio.NewReader(in)
	return LimitsFromReader(b)
}
