package internal

import (
	"sync"
	"time"

	"github.com/lychee-technology/facets"
)

// snapshotCache keeps recently loaded schema snapshots per category. A nil
// cache never hits.
type snapshotCache struct {
	ttl     time.Duration
	nowFunc func() time.Time

	mu      sync.RWMutex
	entries map[int64]cachedSnapshot
}

type cachedSnapshot struct {
	snapshot  *facets.SchemaSnapshot
	expiresAt time.Time
}

func newSnapshotCache(ttl time.Duration) *snapshotCache {
	if ttl <= 0 {
		return nil
	}
	return &snapshotCache{
		ttl:     ttl,
		nowFunc: time.Now,
		entries: make(map[int64]cachedSnapshot),
	}
}

func (c *snapshotCache) get(categoryID int64) (*facets.SchemaSnapshot, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	entry, ok := c.entries[categoryID]
	c.mu.RUnlock()
	if !ok || !c.nowFunc().Before(entry.expiresAt) {
		return nil, false
	}
	return entry.snapshot, true
}

func (c *snapshotCache) put(snapshot *facets.SchemaSnapshot) {
	if c == nil || snapshot == nil {
		return
	}
	c.mu.Lock()
	c.entries[snapshot.Category.ID] = cachedSnapshot{
		snapshot:  snapshot,
		expiresAt: c.nowFunc().Add(c.ttl),
	}
	c.mu.Unlock()
}

func (c *snapshotCache) invalidate(categoryID int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.entries, categoryID)
	c.mu.Unlock()
}

func (c *snapshotCache) size() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
