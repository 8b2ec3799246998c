// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package build

import (
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/AleutianAI/tidepool/services/langd/toolchain"
)

// resultCache memoizes single-file compile results by content hash.
//
// An edit that round-trips back to previously compiled content (undo,
// re-save) replays the cached result instead of invoking the toolchain.
// Events still publish, so listeners observe the compile as usual.
type resultCache struct {
	lru *lru.Cache[string, *toolchain.Result]
}

// newResultCache creates a cache bounded to size entries. A size of
// zero disables caching.
func newResultCache(size int) (*resultCache, error) {
	if size <= 0 {
		return &resultCache{}, nil
	}
	c, err := lru.New[string, *toolchain.Result](size)
	if err != nil {
		return nil, err
	}
	return &resultCache{lru: c}, nil
}

// key hashes file path and content into a cache key.
func (c *resultCache) key(path string, content []byte) string {
	h := sha256.New()
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

// get returns the cached result for key, if any.
func (c *resultCache) get(key string) (*toolchain.Result, bool) {
	if c.lru == nil {
		return nil, false
	}
	return c.lru.Get(key)
}

// put stores a successful compile result.
func (c *resultCache) put(key string, res *toolchain.Result) {
	if c.lru == nil || res == nil {
		return
	}
	c.lru.Add(key, res)
}
