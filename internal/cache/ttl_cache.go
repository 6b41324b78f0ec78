// Package cache provides a thread-safe, size-bounded cache whose entries
// expire individually.
package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
	"github.com/golang/groupcache/singleflight"
)

// DefaultMaxEntries bounds a cache created with maxEntries <= 0.
const DefaultMaxEntries = 256

type entry[V any] struct {
	value   V
	expires time.Time
}

// TTLCache maps keys to values that expire ttl after they were stored.
// When full, the least recently used entry is evicted.
type TTLCache[K comparable, V any] struct {
	mu    sync.Mutex
	items *lru.Cache
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	hits, misses uint64
}

// New creates a cache holding at most maxEntries values for ttl each.
func New[K comparable, V any](ttl time.Duration, maxEntries int) *TTLCache[K, V] {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &TTLCache[K, V]{
		items: lru.New(maxEntries),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get returns the value for key if it is present and not expired.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(key)
}

func (c *TTLCache[K, V]) getLocked(key K) (V, bool) {
	var zero V
	raw, ok := c.items.Get(key)
	if !ok {
		c.misses++
		return zero, false
	}
	e := raw.(entry[V])
	if !c.now().Before(e.expires) {
		c.items.Remove(key)
		c.misses++
		return zero, false
	}
	c.hits++
	return e.value, true
}

// Set stores value under key, restarting its TTL.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Add(key, entry[V]{value: value, expires: c.now().Add(c.ttl)})
}

// GetOrLoad returns the cached value for key or calls load to produce it.
// Concurrent callers asking for the same missing key share one load.
// Errors are returned to every waiting caller and are not cached.
func (c *TTLCache[K, V]) GetOrLoad(key K, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	raw, err := c.group.Do(fmt.Sprint(key), func() (interface{}, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := load()
		if err != nil {
			return nil, err
		}
		c.Set(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return raw.(V), nil
}

// Delete removes key.
func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Remove(key)
}

// Len returns the number of stored entries, including expired ones not yet evicted.
func (c *TTLCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.Len()
}

// Stats reports hit and miss counts since creation.
type Stats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

// Stats returns a snapshot of the cache counters.
func (c *TTLCache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Entries: c.items.Len(), Hits: c.hits, Misses: c.misses}
}
