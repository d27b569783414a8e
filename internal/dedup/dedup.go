// Package dedup suppresses redundant processing of transport events that the
// upstream session redelivers. It is a throughput optimization only: the
// durable store's unique constraint on message_id is the real idempotency
// backstop, so a cleared cache re-admitting an old id is safe.
package dedup

import (
	"context"
	"sync"
)

// DefaultLimit is the high-water mark at which the in-memory set is cleared.
const DefaultLimit = 2000

// Deduper reports and records an event id in one atomic step.
type Deduper interface {
	// Seen returns true if id was already recorded. Otherwise it records
	// the id and returns false.
	Seen(ctx context.Context, id string) bool
}

// Cache is a process-local Deduper bounded by a high-water mark. When
// recording an id would grow the set past the limit, the whole set is
// cleared first; a full clear is cheaper than LRU bookkeeping and the
// transport only redelivers recently-seen events.
type Cache struct {
	mu    sync.Mutex
	limit int
	ids   map[string]struct{}
}

// NewCache creates a Cache. A non-positive limit falls back to DefaultLimit.
func NewCache(limit int) *Cache {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Cache{
		limit: limit,
		ids:   make(map[string]struct{}, limit),
	}
}

// Seen implements Deduper. The context is unused; it exists so callers can
// swap in a shared cache behind the same interface.
func (c *Cache) Seen(_ context.Context, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.ids) >= c.limit {
		c.ids = make(map[string]struct{}, c.limit)
	}

	if _, ok := c.ids[id]; ok {
		return true
	}
	c.ids[id] = struct{}{}
	return false
}

// Size returns the number of ids currently recorded.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ids)
}
