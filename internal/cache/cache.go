package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// Document is a preloaded ruling file waiting for a worker. A worker
// marks the entry consumed before removing it, so eviction cleanup
// knows the temp file changed hands.
type Document struct {
	DocID    string
	Path     string
	Err      error
	Consumed bool
}

// Cache buffers downloaded documents between the preload goroutine and
// the extraction workers. Entries dropped by eviction, expiry, Delete
// or Clear pass through the OnEvicted callback.
type Cache interface {
	Get(key string) (*Document, bool)
	Set(key string, value *Document) error
	Delete(key string)
	Clear()
	OnEvicted(fn func(key string, doc *Document))
	Stats() CacheStats
}

type CacheStats struct {
	Hits       int64     `json:"hits"`
	Misses     int64     `json:"misses"`
	Size       int       `json:"size"`
	LastAccess time.Time `json:"last_access"`
}

type DocumentCache struct {
	cache   *cache.Cache
	mu      sync.RWMutex
	stats   CacheStats
	maxSize int
}

func NewCache(maxSize int, ttl time.Duration) Cache {
	return &DocumentCache{
		cache:   cache.New(ttl, ttl*2),
		maxSize: maxSize,
		stats:   CacheStats{},
	}
}

func (c *DocumentCache) Get(key string) (*Document, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.LastAccess = time.Now()

	if data, found := c.cache.Get(key); found {
		c.stats.Hits++
		if doc, ok := data.(*Document); ok {
			return doc, true
		}
	}

	c.stats.Misses++
	return nil, false
}

func (c *DocumentCache) Set(key string, value *Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cache.ItemCount() >= c.maxSize {
		c.removeOldest()
	}

	c.cache.Set(key, value, cache.DefaultExpiration)
	return nil
}

func (c *DocumentCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Delete(key)
}

// Clear drops every entry one by one so the eviction callback sees
// each of them, then resets the counters.
func (c *DocumentCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.cache.Items() {
		c.cache.Delete(key)
	}
	c.stats = CacheStats{}
}

// OnEvicted registers a cleanup callback for dropped entries
func (c *DocumentCache) OnEvicted(fn func(key string, doc *Document)) {
	c.cache.OnEvicted(func(key string, value interface{}) {
		if doc, ok := value.(*Document); ok {
			fn(key, doc)
		}
	})
}

func (c *DocumentCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Size = c.cache.ItemCount()
	return c.stats
}

func (c *DocumentCache) removeOldest() {
	items := c.cache.Items()
	if len(items) == 0 {
		return
	}

	var oldestKey string
	var oldestTime time.Time

	for key, item := range items {
		if oldestTime.IsZero() || item.Expiration < oldestTime.Unix() {
			oldestKey = key
			oldestTime = time.Unix(item.Expiration, 0)
		}
	}

	if oldestKey != "" {
		c.cache.Delete(oldestKey)
	}
}

// GenerateCacheKey builds the preload key for one ruling document
func GenerateCacheKey(docID string) string {
	return fmt.Sprintf("document:%s", docID)
}
