// Package ttlcache implements a bounded in-process map whose entries
// expire a fixed duration after insertion. Reads never refresh an entry;
// eviction order is oldest-insertion-first.
package ttlcache

import (
	"sort"
	"sync"
	"time"
)

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Size      int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

type entry[V any] struct {
	value      V
	insertedAt time.Time
}

// Cache maps string keys to values of type V with insertion-time TTL.
// All operations are safe for concurrent use.
type Cache[V any] struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	evictCount int
	entries    map[string]entry[V]
	hits       uint64
	misses     uint64
	evictions  uint64

	now func() time.Time // test hook
}

// New creates a cache holding at most maxEntries values; when full, the
// evictCount oldest entries are dropped before the next insert.
func New[V any](ttl time.Duration, maxEntries, evictCount int) *Cache[V] {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	if evictCount <= 0 {
		evictCount = 1
	}
	return &Cache[V]{
		ttl:        ttl,
		maxEntries: maxEntries,
		evictCount: evictCount,
		entries:    make(map[string]entry[V], maxEntries),
		now:        time.Now,
	}
}

// Get returns the live value for key, if any. Expired entries are deleted
// on read.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(key)
}

// GetMany returns the live values for every key found.
func (c *Cache[V]) GetMany(keys []string) map[string]V {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]V, len(keys))
	for _, k := range keys {
		if v, ok := c.getLocked(k); ok {
			out[k] = v
		}
	}
	return out
}

func (c *Cache[V]) getLocked(key string) (V, bool) {
	var zero V
	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return zero, false
	}
	if c.now().Sub(e.insertedAt) > c.ttl {
		delete(c.entries, key)
		c.misses++
		return zero, false
	}
	c.hits++
	return e.value, true
}

// Set inserts or replaces the value for key with a fresh timestamp.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value)
}

// SetMany inserts every pair atomically with respect to other operations.
func (c *Cache[V]) SetMany(pairs map[string]V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range pairs {
		c.setLocked(k, v)
	}
}

func (c *Cache[V]) setLocked(key string, value V) {
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked(c.evictCount)
	}
	c.entries[key] = entry[V]{value: value, insertedAt: c.now()}
}

func (c *Cache[V]) evictOldestLocked(n int) {
	type aged struct {
		key string
		at  time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{key: k, at: e.insertedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })
	if n > len(all) {
		n = len(all)
	}
	for _, a := range all[:n] {
		delete(c.entries, a.key)
		c.evictions++
	}
}

// Clear drops every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[V], c.maxEntries)
}

// Stats returns current counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:      len(c.entries),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}
