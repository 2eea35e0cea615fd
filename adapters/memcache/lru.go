// Package memcache provides core.MemoryCache implementations.
package memcache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Skryldev/imagefetch/core"
)

// LRU is a fixed-size, least-recently-used image cache.
type LRU struct {
	cache *lru.Cache[string, *core.ImageData]
}

// NewLRU returns a cache holding at most size images.
func NewLRU(size int) (*LRU, error) {
	c, err := lru.New[string, *core.ImageData](size)
	if err != nil {
		return nil, fmt.Errorf("memory cache: %w", err)
	}
	return &LRU{cache: c}, nil
}

func (l *LRU) Get(key string) (*core.ImageData, bool) { return l.cache.Get(key) }

func (l *LRU) Set(key string, img *core.ImageData) {
	if img == nil {
		return
	}
	l.cache.Add(key, img)
}

func (l *LRU) Remove(key string) { l.cache.Remove(key) }

// Len returns the number of cached images.
func (l *LRU) Len() int { return l.cache.Len() }

// Purge empties the cache.
func (l *LRU) Purge() { l.cache.Purge() }

var _ core.MemoryCache = (*LRU)(nil)
