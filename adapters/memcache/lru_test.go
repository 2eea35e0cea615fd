package memcache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/imagefetch/adapters/memcache"
	"github.com/Skryldev/imagefetch/core"
)

func TestLRU(t *testing.T) {
	c, err := memcache.NewLRU(2)
	require.NoError(t, err)

	a, b, d := &core.ImageData{}, &core.ImageData{}, &core.ImageData{}
	c.Set("a", a)
	c.Set("b", b)

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Same(t, a, got)

	// "b" is now the least recently used.
	c.Set("d", d)
	_, ok = c.Get("b")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())

	c.Remove("a")
	_, ok = c.Get("a")
	assert.False(t, ok)

	c.Set("nil", nil)
	_, ok = c.Get("nil")
	assert.False(t, ok)

	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestNewLRU_InvalidSize(t *testing.T) {
	_, err := memcache.NewLRU(0)
	assert.Error(t, err)
}
