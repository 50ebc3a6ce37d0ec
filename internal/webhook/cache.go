package webhook

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// Field is one name/value pair in the enrichment block of an alert.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// EnrichmentCache remembers lookup results per source IP. The cache is best
// effort: concurrent first lookups for one IP may both hit the external
// service and overwrite each other, which is harmless because the data is
// idempotent. There is no eviction; the process is long-lived and
// low-traffic by design.
type EnrichmentCache interface {
	Get(ip string) ([]Field, bool)
	Set(ip string, fields []Field)
}

// MemoryCache is the default in-process cache.
type MemoryCache struct {
	mu    sync.RWMutex
	known map[string][]Field
}

// NewMemoryCache returns an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{known: make(map[string][]Field)}
}

// Get implements EnrichmentCache.
func (c *MemoryCache) Get(ip string) ([]Field, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fields, ok := c.known[ip]
	return fields, ok
}

// Set implements EnrichmentCache.
func (c *MemoryCache) Set(ip string, fields []Field) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.known[ip] = fields
}

const redisCacheTimeout = 2 * time.Second

// RedisCache shares enrichment data between honeypot instances. Errors are
// treated as cache misses.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to the given Redis address.
func NewRedisCache(addr string) *RedisCache {
	return &RedisCache{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// Get implements EnrichmentCache.
func (c *RedisCache) Get(ip string) ([]Field, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisCacheTimeout)
	defer cancel()
	raw, err := c.client.Get(ctx, cacheKey(ip)).Bytes()
	if err != nil {
		return nil, false
	}
	var fields []Field
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, false
	}
	return fields, true
}

// Set implements EnrichmentCache.
func (c *RedisCache) Set(ip string, fields []Field) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisCacheTimeout)
	defer cancel()
	c.client.Set(ctx, cacheKey(ip), raw, 0)
}

func cacheKey(ip string) string {
	return "obscura:ipinfo:" + ip
}
