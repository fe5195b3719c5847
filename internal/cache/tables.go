package cache

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/scaling-viz/server/internal/data/table"
)

// Tables caches parsed datasets by ID for the lifetime of the process.
// Entries are never evicted. Concurrent loads of the same ID share one call.
type Tables struct {
	mu     sync.RWMutex
	tables map[string]*table.Table
	group  singleflight.Group
}

// NewTables creates an empty dataset cache.
func NewTables() *Tables {
	return &Tables{tables: make(map[string]*table.Table)}
}

// Get returns the cached table for id, calling load on a miss.
// Failed loads are not cached.
func (c *Tables) Get(id string, load func() (*table.Table, error)) (*table.Table, error) {
	c.mu.RLock()
	t, ok := c.tables[id]
	c.mu.RUnlock()
	if ok {
		return t, nil
	}

	v, err, _ := c.group.Do(id, func() (interface{}, error) {
		c.mu.RLock()
		t, ok := c.tables[id]
		c.mu.RUnlock()
		if ok {
			return t, nil
		}

		t, err := load()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.tables[id] = t
		c.mu.Unlock()
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*table.Table), nil
}

// Loaded reports whether id is cached.
func (c *Tables) Loaded(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.tables[id]
	return ok
}

// Len returns the number of cached datasets.
func (c *Tables) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tables)
}
