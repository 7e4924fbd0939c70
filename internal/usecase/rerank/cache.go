package rerank

import (
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"rerank-pipeline/internal/domain"
)

// CacheEntryMeta is the model/provider snapshot stored alongside results.
type CacheEntryMeta struct {
	Model         string
	Provider      string
	DocumentCount int
}

// CacheEntry is a cached scoring pass. An entry is valid only while
// now - Timestamp < TTL.
type CacheEntry struct {
	QueryHash string
	Results   []domain.RerankResult
	Timestamp time.Time
	TTL       time.Duration
	Metadata  CacheEntryMeta
}

// CacheStats is the cache snapshot used for health reporting.
type CacheStats struct {
	Size               int
	MaxSize            int
	UtilizationPercent float64
}

// ResultCache is a bounded, TTL-based cache of re-ranking results shared by
// all in-flight requests. Expired entries are evicted on read; when the cache
// is at capacity an insert first evicts the oldest-inserted entry (insertion
// order, not access order). Safe for concurrent use; eviction plus insert is
// one atomic step under the lock.
type ResultCache struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	entries map[string]*CacheEntry
	order   []string

	now func() time.Time
}

// DefaultCacheSize is the default maximum number of cached entries.
const DefaultCacheSize = 1000

// NewResultCache creates a cache with the given capacity and default TTL.
func NewResultCache(maxSize int, ttl time.Duration) *ResultCache {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	return &ResultCache{
		maxSize: maxSize,
		ttl:     ttl,
		entries: make(map[string]*CacheEntry),
		now:     time.Now,
	}
}

// CacheKey builds the deterministic fingerprint of a scoring request. The
// encoding only has to be stable for identical inputs and effectively unique
// otherwise; document id order is significant.
func CacheKey(query string, documentIDs []string, model string, topK int) string {
	q := base64.StdEncoding.EncodeToString([]byte(query))
	ids := base64.StdEncoding.EncodeToString([]byte(strings.Join(documentIDs, ",")))
	return fmt.Sprintf("%s:%s:%s:%d", q, ids, model, topK)
}

// Get returns the entry for key, or nil if absent or expired. An expired
// entry is removed as a side effect.
func (c *ResultCache) Get(key string) *CacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil
	}
	if c.now().Sub(entry.Timestamp) > entry.TTL {
		c.remove(key)
		return nil
	}
	return entry
}

// Put inserts a scoring pass under key. At capacity, the oldest-inserted
// entry is evicted first. Overwriting an existing key keeps its original
// insertion position.
func (c *ResultCache) Put(key string, results []domain.RerankResult, meta CacheEntryMeta) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		if len(c.order) > 0 {
			c.remove(c.order[0])
		}
	}

	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = &CacheEntry{
		QueryHash: key,
		Results:   results,
		Timestamp: c.now(),
		TTL:       c.ttl,
		Metadata:  meta,
	}
}

// TTL returns the cache's default entry lifetime.
func (c *ResultCache) TTL() time.Duration {
	return c.ttl
}

// Stats returns the current size, capacity, and utilization percentage.
func (c *ResultCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return CacheStats{
		Size:               len(c.entries),
		MaxSize:            c.maxSize,
		UtilizationPercent: float64(len(c.entries)) / float64(c.maxSize) * 100,
	}
}

// remove deletes key from both the map and the insertion-order queue.
// Callers hold the lock.
func (c *ResultCache) remove(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
