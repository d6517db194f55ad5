// Package cache provides an LRU byte cache for immutable blobs.
//
// Every blob in the content store is immutable, so cached entries never
// need invalidation, only eviction. Memory is accounted against the
// resource controller so the cache competes fairly with the rest of the
// process.
package cache

import (
	"container/list"
	"context"
	"sync"

	"github.com/Arke-Institute/arke/resource"
)

// ByteCache caches immutable blobs by name.
type ByteCache interface {
	Get(ctx context.Context, name string) ([]byte, bool)
	Set(ctx context.Context, name string, data []byte)
}

// LRU is a size-bounded ByteCache with least-recently-used eviction.
type LRU struct {
	mu      sync.Mutex
	limit   int64
	size    int64
	order   *list.List // front = most recent
	entries map[string]*list.Element
	rc      *resource.Controller
}

type lruEntry struct {
	name string
	data []byte
}

// NewLRU creates a cache bounded to limit bytes. rc may be nil; if set,
// cached bytes are also reserved against the controller's memory limit
// and entries are evicted when the global limit pushes back.
func NewLRU(limit int64, rc *resource.Controller) *LRU {
	return &LRU{
		limit:   limit,
		order:   list.New(),
		entries: make(map[string]*list.Element),
		rc:      rc,
	}
}

// Get returns the cached blob, if present.
func (c *LRU) Get(_ context.Context, name string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[name]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*lruEntry).data, true
}

// Set inserts a blob. Oversized blobs (larger than the cache limit) are
// not cached at all.
func (c *LRU) Set(_ context.Context, name string, data []byte) {
	n := int64(len(data))
	if n > c.limit {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[name]; ok {
		// Blobs are immutable: same name means same bytes.
		return
	}

	// Evict until the new entry fits both the local and global limit.
	for c.size+n > c.limit {
		if !c.evictOldest() {
			return
		}
	}
	for c.rc != nil && !c.rc.TryAcquireMemory(n) {
		if !c.evictOldest() {
			return
		}
	}

	el := c.order.PushFront(&lruEntry{name: name, data: data})
	c.entries[name] = el
	c.size += n
}

// Size returns the current cached byte count.
func (c *LRU) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

func (c *LRU) evictOldest() bool {
	el := c.order.Back()
	if el == nil {
		return false
	}
	entry := el.Value.(*lruEntry)
	c.order.Remove(el)
	delete(c.entries, entry.name)
	n := int64(len(entry.data))
	c.size -= n
	if c.rc != nil {
		c.rc.ReleaseMemory(n)
	}
	return true
}
