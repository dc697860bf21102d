package attendance

import (
	"sync"
	"sync/atomic"

	"github.com/andresmejia3/facepunch/internal/types"
)

// GalleryLoader reads the full gallery.
type GalleryLoader interface {
	LoadAll() ([]types.GalleryEntry, error)
}

// Cache holds an immutable snapshot of the gallery. Readers never block on a reload;
// Reload builds a new slice and swaps the pointer.
type Cache struct {
	loader GalleryLoader
	snap   atomic.Pointer[[]types.GalleryEntry]
	loadMu sync.Mutex
}

func NewCache(loader GalleryLoader) *Cache {
	return &Cache{loader: loader}
}

// Snapshot returns the current gallery, loading it on first use.
// The returned slice must not be modified.
func (c *Cache) Snapshot() ([]types.GalleryEntry, error) {
	if p := c.snap.Load(); p != nil {
		return *p, nil
	}

	c.loadMu.Lock()
	defer c.loadMu.Unlock()
	if p := c.snap.Load(); p != nil {
		return *p, nil
	}
	return c.load()
}

// Reload re-reads the gallery. On failure the cache is emptied so the next Snapshot retries.
func (c *Cache) Reload() error {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()
	_, err := c.load()
	return err
}

// load runs with loadMu held.
func (c *Cache) load() ([]types.GalleryEntry, error) {
	entries, err := c.loader.LoadAll()
	if err != nil {
		c.snap.Store(nil)
		return nil, err
	}
	if entries == nil {
		entries = []types.GalleryEntry{}
	}
	c.snap.Store(&entries)
	return entries, nil
}
