// Package cache provides a disk-backed LRU cache for raw tile images so
// re-runs and overlapping AOIs avoid refetching the same tiles.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// TileCache stores tile payloads on disk under sha256-derived paths and
// tracks recency with an in-memory LRU index. Evicted entries have their
// backing files removed.
type TileCache struct {
	baseDir string
	index   *lru.Cache[string, string] // key -> file path
	mu      sync.Mutex                 // serializes disk writes on Set
	logger  *slog.Logger
}

// Key builds the cache key for a tile.
func Key(endpoint string, zoom, x, y int, format string) string {
	return fmt.Sprintf("%s:%d:%d:%d:%s", endpoint, zoom, x, y, format)
}

// New creates a tile cache rooted at baseDir holding at most maxEntries
// tiles.
func New(baseDir string, maxEntries int, logger *slog.Logger) (*TileCache, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &TileCache{baseDir: baseDir, logger: logger}

	index, err := lru.NewWithEvict(maxEntries, func(key, path string) {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			c.logger.Warn("failed to remove evicted cache file", "key", key, "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("create cache index: %w", err)
	}
	c.index = index

	return c, nil
}

// Get returns the cached payload for key, if present.
func (c *TileCache) Get(key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}

	path, ok := c.index.Get(key)
	if !ok {
		return nil, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		// Backing file vanished; drop the stale index entry
		c.index.Remove(key)
		return nil, false
	}
	return data, true
}

// Set stores a tile payload under key, evicting the least recently used
// entry when full.
func (c *TileCache) Set(key string, data []byte) error {
	if c == nil {
		return nil
	}

	path := c.pathFor(key)
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache subdirectory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write cache file: %w", err)
	}

	c.index.Add(key, path)
	return nil
}

// Len returns the number of cached tiles.
func (c *TileCache) Len() int {
	if c == nil {
		return 0
	}
	return c.index.Len()
}

// Purge drops every entry and its backing file.
func (c *TileCache) Purge() {
	if c == nil {
		return
	}
	c.index.Purge()
}

// pathFor hashes the key into a two-level directory layout to dodge
// filesystem limits on directory size.
func (c *TileCache) pathFor(key string) string {
	sum := sha256.Sum256([]byte(key))
	name := hex.EncodeToString(sum[:])
	return filepath.Join(c.baseDir, name[:2], name)
}
