package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/ghg-dashboard-service/internal/models"
)

const keyPrefix = "ghg:"

// memcachedEntry wraps a snapshot with its logical expiry. The memcached
// item itself lives until the stale window closes so GetStale can still
// find it after the fresh TTL elapses.
type memcachedEntry struct {
	Snapshot  models.Snapshot `json:"snapshot"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// MemcachedCache implements Cache using memcached.
type MemcachedCache struct {
	client   *memcache.Client
	staleTTL time.Duration
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated
// list (e.g. "localhost:11211" or "host1:11211,host2:11211"). staleTTL is
// how long items outlive their fresh TTL for stale fallback.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int, staleTTL time.Duration) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	if staleTTL <= 0 {
		staleTTL = time.Hour
	}
	return &MemcachedCache{client: client, staleTTL: staleTTL}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (c *MemcachedCache) key(k string) string {
	return keyPrefix + k
}

func (c *MemcachedCache) fetch(key string) (memcachedEntry, bool, error) {
	item, err := c.client.Get(c.key(key))
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return memcachedEntry{}, false, nil
		}
		return memcachedEntry{}, false, err
	}
	var entry memcachedEntry
	if err := json.Unmarshal(item.Value, &entry); err != nil {
		return memcachedEntry{}, false, err
	}
	return entry, true, nil
}

// Get implements Cache.Get. Returns false, nil on miss or logical expiry.
func (c *MemcachedCache) Get(ctx context.Context, key string) (models.Snapshot, bool, error) {
	if ctx.Err() != nil {
		return models.Snapshot{}, false, ctx.Err()
	}
	entry, ok, err := c.fetch(key)
	if err != nil || !ok {
		return models.Snapshot{}, false, err
	}
	if time.Now().After(entry.ExpiresAt) {
		return models.Snapshot{}, false, nil
	}
	return entry.Snapshot, true, nil
}

// GetStale implements Cache.GetStale.
func (c *MemcachedCache) GetStale(ctx context.Context, key string, maxStaleAge time.Duration) (models.Snapshot, bool, error) {
	if ctx.Err() != nil {
		return models.Snapshot{}, false, ctx.Err()
	}
	entry, ok, err := c.fetch(key)
	if err != nil || !ok {
		return models.Snapshot{}, false, err
	}
	if time.Since(entry.Snapshot.FetchedAt) > maxStaleAge {
		return models.Snapshot{}, false, nil
	}
	return entry.Snapshot, true, nil
}

// Set implements Cache.Set. The memcached item expiry is ttl plus the stale
// window, clamped to memcached's 30-day relative maximum.
func (c *MemcachedCache) Set(ctx context.Context, key string, value models.Snapshot, ttl time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	entry := memcachedEntry{
		Snapshot:  value,
		ExpiresAt: time.Now().Add(ttl),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	expSec := int32((ttl + c.staleTTL).Seconds())
	const maxRelativeExp = 30 * 24 * 60 * 60 // 30 days
	if expSec <= 0 || expSec > maxRelativeExp {
		expSec = 3600
	}
	return c.client.Set(&memcache.Item{
		Key:        c.key(key),
		Value:      raw,
		Expiration: expSec,
	})
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
