// Package cache provides an in-memory TTL cache for expensive computations,
// primarily cost forecast reports. Entries expire on read and via a
// background janitor; invalidation supports prefix patterns so a new cost
// point can evict every forecast for its service.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Stats reports cache effectiveness.
type Stats struct {
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	EntryCount int   `json:"entry_count"`
}

// Cache is the interface the pipeline caches against.
type Cache interface {
	// Get retrieves a cached value by key. Expired entries count as misses.
	Get(ctx context.Context, key string) (interface{}, bool)

	// Set stores a value with the given TTL. ttl <= 0 uses the default.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)

	// Delete removes a key.
	Delete(ctx context.Context, key string)

	// Invalidate removes every key with the given prefix. "*" clears all.
	Invalidate(ctx context.Context, prefix string)

	// GetStats returns hit/miss counters and the live entry count.
	GetStats(ctx context.Context) Stats

	// Close stops the background janitor.
	Close()
}

type entry struct {
	value     interface{}
	expiresAt time.Time
}

type ttlCache struct {
	mu         sync.Mutex
	entries    map[string]entry
	defaultTTL time.Duration
	maxEntries int
	hits       int64
	misses     int64
	janitor    *time.Ticker
	stopCh     chan struct{}
}

// New creates a TTL cache. defaultTTL applies when Set is called with a
// non-positive TTL; maxEntries bounds memory (oldest-expiry eviction).
func New(defaultTTL time.Duration, maxEntries int) Cache {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	c := &ttlCache{
		entries:    make(map[string]entry),
		defaultTTL: defaultTTL,
		maxEntries: maxEntries,
		janitor:    time.NewTicker(time.Minute),
		stopCh:     make(chan struct{}),
	}
	go c.sweep()
	return c
}

func (c *ttlCache) Get(ctx context.Context, key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		if ok {
			delete(c.entries, key)
		}
		c.misses++
		return nil, false
	}
	c.hits++
	return e.value, true
}

func (c *ttlCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.entries[key] = entry{value: value, expiresAt: time.Now().Add(ttl)}
}

func (c *ttlCache) Delete(ctx context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *ttlCache) Invalidate(ctx context.Context, prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prefix == "*" {
		c.entries = make(map[string]entry)
		return
	}
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
}

func (c *ttlCache) GetStats(ctx context.Context) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, EntryCount: len(c.entries)}
}

func (c *ttlCache) Close() {
	close(c.stopCh)
	c.janitor.Stop()
}

// evictOldestLocked drops the entry closest to expiry. Caller holds the lock.
func (c *ttlCache) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.expiresAt.Before(oldest) {
			oldestKey = k
			oldest = e.expiresAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func (c *ttlCache) sweep() {
	for {
		select {
		case <-c.janitor.C:
			now := time.Now()
			c.mu.Lock()
			for k, e := range c.entries {
				if now.After(e.expiresAt) {
					delete(c.entries, k)
				}
			}
			c.mu.Unlock()
		case <-c.stopCh:
			return
		}
	}
}
