package store

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// LoadFunc builds a table from a source identifier.
type LoadFunc func(ctx context.Context, source string) (*Table, error)

// Cache memoises tables per source. Concurrent first requests for the same
// source share one load; failed loads are not remembered.
type Cache struct {
	load   LoadFunc
	group  singleflight.Group
	mu     sync.RWMutex
	tables map[string]*Table
}

func NewCache(load LoadFunc) *Cache {
	return &Cache{
		load:   load,
		tables: make(map[string]*Table),
	}
}

// Get returns the cached table for source, loading it on first use.
func (c *Cache) Get(ctx context.Context, source string) (*Table, error) {
	if t, ok := c.lookup(source); ok {
		return t, nil
	}

	v, err, _ := c.group.Do(source, func() (any, error) {
		if t, ok := c.lookup(source); ok {
			return t, nil
		}
		t, err := c.load(ctx, source)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.tables[source] = t
		c.mu.Unlock()
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Table), nil
}

// Loaded reports whether source has a cached table.
func (c *Cache) Loaded(source string) bool {
	_, ok := c.lookup(source)
	return ok
}

func (c *Cache) lookup(source string) (*Table, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[source]
	return t, ok
}
