package proxy

import (
	"context"
	"sync"
	"time"
)

// ResolveCache stores resolved media URLs for a bounded lifetime.
type ResolveCache interface {
	Get(ctx context.Context, reference string) (string, bool)
	Set(ctx context.Context, reference, url string)
}

type cacheEntry struct {
	url       string
	expiresAt time.Time
}

// MemoryCache is an in-process ResolveCache. Expired entries are evicted
// lazily, on the lookup that finds them stale.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry

	now func() time.Time
}

var _ ResolveCache = (*MemoryCache)(nil)

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, reference string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[reference]
	if !ok {
		return "", false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, reference)
		return "", false
	}
	return entry.url, true
}

func (c *MemoryCache) Set(_ context.Context, reference, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[reference] = cacheEntry{url: url, expiresAt: c.now().Add(c.ttl)}
}
