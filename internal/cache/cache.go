package cache

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/ghg-dashboard-service/internal/models"
)

// Cache stores fetched series snapshots per region key. Get returns data if
// present and not expired; GetStale returns expired data still younger than
// maxStaleAge, for serving through upstream outages.
type Cache interface {
	Get(ctx context.Context, key string) (models.Snapshot, bool, error)
	GetStale(ctx context.Context, key string, maxStaleAge time.Duration) (models.Snapshot, bool, error)
	Set(ctx context.Context, key string, value models.Snapshot, ttl time.Duration) error
}

// InMemoryCache implements Cache with a mutex-guarded map. Expired entries
// are retained until they also age out of the stale window, so the stale
// fallback path can still see them.
type InMemoryCache struct {
	mu   sync.RWMutex
	data map[string]cacheEntry
}

type cacheEntry struct {
	value     models.Snapshot
	expiresAt time.Time
}

// NewInMemoryCache creates a new in-memory cache instance.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]cacheEntry),
	}
}

// Get retrieves the cached snapshot for the key if present and not expired.
// Returns (data, true, nil) on hit, (zero, false, nil) on miss or expiry.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.Snapshot, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.data[key]
	if !ok {
		return models.Snapshot{}, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		return models.Snapshot{}, false, nil
	}
	return entry.value, true, nil
}

// GetStale retrieves the cached snapshot even when expired, provided it was
// fetched within maxStaleAge.
func (c *InMemoryCache) GetStale(ctx context.Context, key string, maxStaleAge time.Duration) (models.Snapshot, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.data[key]
	if !ok {
		return models.Snapshot{}, false, nil
	}
	if time.Since(entry.value.FetchedAt) > maxStaleAge {
		return models.Snapshot{}, false, nil
	}
	return entry.value, true, nil
}

// Set stores the snapshot with the given TTL.
func (c *InMemoryCache) Set(ctx context.Context, key string, value models.Snapshot, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = cacheEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}
