// Copyright 2026 The niivue Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package medgfx

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// payloadCache holds recently extracted payloads keyed by their offset in
// the archive buffer. Offsets are unique per entry, unlike names, which
// the format allows to repeat.
type payloadCache struct {
	lru *lru.Cache[int64, []byte]
}

func newPayloadCache(size int) (*payloadCache, error) {
	c, err := lru.New[int64, []byte](size)
	if err != nil {
		return nil, err
	}
	return &payloadCache{lru: c}, nil
}

func (c *payloadCache) Get(offset int64) ([]byte, bool) {
	return c.lru.Get(offset)
}

func (c *payloadCache) Add(offset int64, content []byte) {
	c.lru.Add(offset, content)
}
