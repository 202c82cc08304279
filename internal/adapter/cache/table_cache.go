package cache

import (
	"sync"

	"vecsearch/internal/domain"
	"vecsearch/internal/port"
)

// Entry is the loaded state of one table: its similarity index and the
// index-aligned records.
type Entry struct {
	Index   port.SimilarityIndex
	Records []domain.Record
}

// TableCache keeps loaded table state in memory, keyed by table id.
//
// Entries never expire on their own; they are replaced on save and dropped
// when a table is cleared. With a positive maxSize the least recently used
// table is evicted first.
type TableCache struct {
	mu      sync.Mutex
	entries map[string]*Entry
	order   []string
	maxSize int
}

// NewTableCache creates a cache holding at most maxSize tables.
// maxSize <= 0 means unbounded.
func NewTableCache(maxSize int) *TableCache {
	return &TableCache{
		entries: make(map[string]*Entry),
		maxSize: maxSize,
	}
}

func (c *TableCache) Get(tableID string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[tableID]
	if !ok {
		return nil, false
	}
	c.moveToEnd(tableID)
	return entry, true
}

func (c *TableCache) Put(tableID string, entry *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[tableID]; exists {
		c.entries[tableID] = entry
		c.moveToEnd(tableID)
		return
	}

	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[tableID] = entry
	c.order = append(c.order, tableID)
}

// Invalidate drops the entry for one table.
func (c *TableCache) Invalidate(tableID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[tableID]; !ok {
		return
	}
	delete(c.entries, tableID)
	c.removeFromOrder(tableID)
}

// Len returns the number of cached tables.
func (c *TableCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *TableCache) evictOldest() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.entries, oldest)
}

func (c *TableCache) moveToEnd(key string) {
	c.removeFromOrder(key)
	c.order = append(c.order, key)
}

func (c *TableCache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
