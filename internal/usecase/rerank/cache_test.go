package rerank

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rerank-pipeline/internal/domain"
)

func cachedResults(id string) []domain.RerankResult {
	return []domain.RerankResult{{
		Document:       domain.Document{ID: id, Content: "cached"},
		RerankingScore: 0.9,
		RerankingRank:  1,
	}}
}

func TestResultCache_TTLExpiry(t *testing.T) {
	c := NewResultCache(10, 100*time.Millisecond)
	current := time.Now()
	c.now = func() time.Time { return current }

	c.Put("k1", cachedResults("doc-1"), CacheEntryMeta{Model: "rerank-english-v3.0"})
	require.NotNil(t, c.Get("k1"))

	current = current.Add(101 * time.Millisecond)

	assert.Nil(t, c.Get("k1"), "expired entry must read as a miss")
	assert.Equal(t, 0, c.Stats().Size, "expired entry must be removed on read")
}

func TestResultCache_CapacityEvictsOldestInserted(t *testing.T) {
	c := NewResultCache(3, time.Minute)

	for i := 1; i <= 3; i++ {
		c.Put(fmt.Sprintf("k%d", i), cachedResults(fmt.Sprintf("doc-%d", i)), CacheEntryMeta{})
	}
	// k2 was read most recently, but eviction is by insertion order.
	require.NotNil(t, c.Get("k2"))

	c.Put("k4", cachedResults("doc-4"), CacheEntryMeta{})

	assert.Equal(t, 3, c.Stats().Size, "size never exceeds capacity")
	assert.Nil(t, c.Get("k1"), "oldest-inserted entry is evicted")
	assert.NotNil(t, c.Get("k2"))
	assert.NotNil(t, c.Get("k3"))
	assert.NotNil(t, c.Get("k4"))
}

func TestResultCache_OverwriteKeepsInsertionPosition(t *testing.T) {
	c := NewResultCache(2, time.Minute)

	c.Put("k1", cachedResults("doc-1"), CacheEntryMeta{})
	c.Put("k2", cachedResults("doc-2"), CacheEntryMeta{})
	c.Put("k1", cachedResults("doc-1b"), CacheEntryMeta{})

	// k1 still holds the oldest slot, so the next insert at capacity drops it.
	c.Put("k3", cachedResults("doc-3"), CacheEntryMeta{})

	assert.Nil(t, c.Get("k1"))
	assert.NotNil(t, c.Get("k2"))
	assert.NotNil(t, c.Get("k3"))
}

func TestResultCache_Stats(t *testing.T) {
	c := NewResultCache(10, time.Minute)
	c.Put("k1", cachedResults("doc-1"), CacheEntryMeta{})

	stats := c.Stats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, 10, stats.MaxSize)
	assert.InDelta(t, 10.0, stats.UtilizationPercent, 0.001)
}

func TestCacheKey(t *testing.T) {
	k1 := CacheKey("what is ai", []string{"a", "b"}, "rerank-english-v3.0", 20)
	k2 := CacheKey("what is ai", []string{"a", "b"}, "rerank-english-v3.0", 20)
	assert.Equal(t, k1, k2, "identical inputs yield identical keys")

	assert.NotEqual(t, k1, CacheKey("what is ai", []string{"b", "a"}, "rerank-english-v3.0", 20),
		"document id order is significant")
	assert.NotEqual(t, k1, CacheKey("what is ai", []string{"a", "b"}, "rerank-english-v3.0", 10))
	assert.NotEqual(t, k1, CacheKey("what is ml", []string{"a", "b"}, "rerank-english-v3.0", 20))
}
