package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "wmts:12:2185:1421:png", Key("wmts", 12, 2185, 1421, "png"))
}

func TestCacheSetGet(t *testing.T) {
	c, err := New(t.TempDir(), 10, nil)
	require.NoError(t, err)

	key := Key("wmts", 5, 1, 2, "png")
	_, ok := c.Get(key)
	assert.False(t, ok)

	require.NoError(t, c.Set(key, []byte("payload")))
	data, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, "payload", string(data))
	assert.Equal(t, 1, c.Len())
}

func TestCacheEvictionRemovesFiles(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, 2, nil)
	require.NoError(t, err)

	require.NoError(t, c.Set("a", []byte("1")))
	require.NoError(t, c.Set("b", []byte("2")))
	require.NoError(t, c.Set("c", []byte("3"))) // evicts "a"

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)

	// Only two backing files should remain on disk
	var files int
	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			files++
		}
		return nil
	})
	assert.Equal(t, 2, files)
}

func TestCacheStaleIndexEntry(t *testing.T) {
	c, err := New(t.TempDir(), 10, nil)
	require.NoError(t, err)

	require.NoError(t, c.Set("k", []byte("v")))
	// Remove the backing file behind the cache's back
	path := c.pathFor("k")
	require.NoError(t, os.Remove(path))

	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestNilCacheIsDisabled(t *testing.T) {
	var c *TileCache
	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.NoError(t, c.Set("k", []byte("v")))
	assert.Equal(t, 0, c.Len())
}
