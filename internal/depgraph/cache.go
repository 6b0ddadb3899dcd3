// SPDX-License-Identifier: MPL-2.0

package depgraph

import (
	"fmt"
	"os"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheEntries bounds the source cache when no size is configured.
const DefaultCacheEntries = 1024

type (
	// Reader reads module source text.
	Reader interface {
		Read(path string) ([]byte, error)
	}

	// SourceCache is a Reader backed by the filesystem with an LRU of recent
	// reads. It is shared by discovery and emission so that a module is
	// normally read from disk once per build. It is safe for concurrent use.
	SourceCache struct {
		entries *lru.Cache[string, []byte]
		reads   atomic.Int64
	}
)

// NewSourceCache creates a cache holding at most size files.
func NewSourceCache(size int) (*SourceCache, error) {
	if size <= 0 {
		size = DefaultCacheEntries
	}
	entries, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("create source cache: %w", err)
	}
	return &SourceCache{entries: entries}, nil
}

// Read returns the contents of path, reading it from disk on a miss.
// The returned slice must not be modified.
func (c *SourceCache) Read(path string) ([]byte, error) {
	if src, ok := c.entries.Get(path); ok {
		return src, nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c.reads.Add(1)
	c.entries.Add(path, src)
	return src, nil
}

// DiskReads returns how many reads missed the cache.
func (c *SourceCache) DiskReads() int64 {
	return c.reads.Load()
}

// Forget drops the given files so the next Read goes to disk.
func (c *SourceCache) Forget(paths ...string) {
	for _, p := range paths {
		c.entries.Remove(p)
	}
}

// Purge drops every cached file.
func (c *SourceCache) Purge() {
	c.entries.Purge()
}
