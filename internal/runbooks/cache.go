package runbooks

import (
	"strings"
	"sync"
	"time"

	"github.com/adityaviki/sentinelops/internal/models"
)

// Cache is a small in-memory, TTL-expiring response cache for document-index
// queries: a plain process-local mutex-guarded map, with no network-backed
// cache dependency.
type Cache struct {
	mu  sync.RWMutex
	ttl time.Duration
	data map[string]cacheItem
}

type cacheItem struct {
	matches []models.RunbookMatch
	expiry  time.Time
}

// NewCache constructs a Cache with the given time-to-live per entry.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{ttl: ttl, data: make(map[string]cacheItem)}
}

// Get returns a cached result if present and unexpired.
func (c *Cache) Get(key string) ([]models.RunbookMatch, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.data[key]
	if !ok || time.Now().After(item.expiry) {
		return nil, false
	}
	return item.matches, true
}

// Set stores a result under key with the cache's configured TTL.
func (c *Cache) Set(key string, matches []models.RunbookMatch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = cacheItem{matches: matches, expiry: time.Now().Add(c.ttl)}
}

func cacheKey(services []string, metrics []models.Metric) string {
	parts := make([]string, 0, len(services)+len(metrics))
	parts = append(parts, services...)
	for _, m := range metrics {
		parts = append(parts, string(m))
	}
	return strings.Join(parts, "|")
}
