package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opennotes-ai/opennotes-sub006/internal/application/common/slogger"
	"github.com/opennotes-ai/opennotes-sub006/internal/domain/entity"
	"github.com/opennotes-ai/opennotes-sub006/internal/domain/valueobject"
	"github.com/opennotes-ai/opennotes-sub006/internal/port/outbound"

	"github.com/google/uuid"
)

// InMemoryQuotaSnapshotCache is a read cache over quota rows for status
// and reporting paths, with LRU eviction and per-entry TTL. Admission
// never reads it; CheckAndRecord always goes through the locked row, so a
// stale snapshot can mislead a dashboard but never over-admit.
type InMemoryQuotaSnapshotCache struct {
	ledger   outbound.QuotaLedger
	cache    map[string]*snapshotEntry
	lruOrder []string
	maxSize  int
	ttl      time.Duration
	mu       sync.RWMutex
	stats    *SnapshotCacheStatistics
	now      func() time.Time
}

// snapshotEntry is a cached quota row with access metadata.
type snapshotEntry struct {
	Quota       *entity.ResourceQuota
	CachedAt    time.Time
	AccessedAt  time.Time
	AccessCount int64
}

// SnapshotCacheStatistics tracks cache performance metrics.
type SnapshotCacheStatistics struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	TotalItems  int64
	HitRate     float64
	LastUpdated time.Time
}

// NewInMemoryQuotaSnapshotCache creates a cache that fills misses through
// the given ledger.
func NewInMemoryQuotaSnapshotCache(
	ledger outbound.QuotaLedger,
	maxSize int,
	ttl time.Duration,
) *InMemoryQuotaSnapshotCache {
	return &InMemoryQuotaSnapshotCache{
		ledger:   ledger,
		cache:    make(map[string]*snapshotEntry),
		lruOrder: make([]string, 0, maxSize),
		maxSize:  maxSize,
		ttl:      ttl,
		stats: &SnapshotCacheStatistics{
			LastUpdated: time.Now(),
		},
		now: time.Now,
	}
}

func snapshotKey(tenantID uuid.UUID, kind string) string {
	return fmt.Sprintf("%s:%s", tenantID, kind)
}

// Get returns the cached quota row, fetching through the ledger when the
// entry is missing or past its TTL. The ledger call happens outside the
// cache lock.
func (c *InMemoryQuotaSnapshotCache) Get(
	ctx context.Context,
	tenantID uuid.UUID,
	kind string,
) (*entity.ResourceQuota, error) {
	key := snapshotKey(tenantID, kind)

	if quota := c.lookup(ctx, key); quota != nil {
		return quota, nil
	}

	resourceKind, err := valueobject.NewResourceKind(kind)
	if err != nil {
		return nil, err
	}

	quota, err := c.ledger.GetQuota(ctx, tenantID, resourceKind)
	if err != nil {
		return nil, err
	}

	c.store(ctx, key, quota)
	return quota, nil
}

// lookup returns the cached row when present and fresh, nil otherwise.
// Expired entries are dropped on sight so a later store re-adds them
// cleanly.
func (c *InMemoryQuotaSnapshotCache) lookup(ctx context.Context, key string) *entity.ResourceQuota {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.cache[key]
	if exists && c.now().Sub(entry.CachedAt) >= c.ttl {
		c.removeLocked(key)
		exists = false
	}
	if !exists {
		c.stats.Misses++
		c.updateHitRate()

		slogger.Debug(ctx, "Quota snapshot cache miss", slogger.Fields{
			"key": key,
		})
		return nil
	}

	entry.AccessedAt = c.now()
	entry.AccessCount++
	c.stats.Hits++
	c.updateHitRate()
	c.moveToFront(key)

	slogger.Debug(ctx, "Quota snapshot cache hit", slogger.Fields{
		"key":          key,
		"access_count": entry.AccessCount,
		"revision":     entry.Quota.Revision(),
	})
	return entry.Quota
}

// store caches a freshly fetched row. A concurrent fetch may have cached
// a newer revision already; the higher revision wins.
func (c *InMemoryQuotaSnapshotCache) store(ctx context.Context, key string, quota *entity.ResourceQuota) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.cache[key]; ok {
		if existing.Quota.Revision() > quota.Revision() {
			return
		}
		existing.Quota = quota
		existing.CachedAt = c.now()
		existing.AccessedAt = c.now()
		c.moveToFront(key)
		return
	}

	if len(c.cache) >= c.maxSize {
		c.evictLRU(ctx)
	}

	nowTime := c.now()
	c.cache[key] = &snapshotEntry{
		Quota:      quota,
		CachedAt:   nowTime,
		AccessedAt: nowTime,
	}
	c.lruOrder = append([]string{key}, c.lruOrder...)
	c.stats.TotalItems++

	slogger.Debug(ctx, "Cached quota snapshot", slogger.Fields{
		"key":        key,
		"revision":   quota.Revision(),
		"cache_size": len(c.cache),
	})
}

// Invalidate drops one entry, for callers that observed a newer revision.
func (c *InMemoryQuotaSnapshotCache) Invalidate(tenantID uuid.UUID, kind string) {
	key := snapshotKey(tenantID, kind)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(key)
}

// Purge removes all entries from the cache.
func (c *InMemoryQuotaSnapshotCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	cleared := len(c.cache)
	c.cache = make(map[string]*snapshotEntry)
	c.lruOrder = make([]string, 0, c.maxSize)
	c.stats.TotalItems = 0

	slogger.InfoNoCtx("Quota snapshot cache purged", slogger.Fields{
		"entries_cleared": cleared,
	})
}

// GetStatistics returns current cache statistics.
func (c *InMemoryQuotaSnapshotCache) GetStatistics() *SnapshotCacheStatistics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := *c.stats
	stats.TotalItems = int64(len(c.cache))
	return &stats
}

func (c *InMemoryQuotaSnapshotCache) removeLocked(key string) {
	if _, exists := c.cache[key]; !exists {
		return
	}
	delete(c.cache, key)
	for i, k := range c.lruOrder {
		if k == key {
			c.lruOrder = append(c.lruOrder[:i], c.lruOrder[i+1:]...)
			break
		}
	}
}

// moveToFront moves a key to the front of the LRU order.
func (c *InMemoryQuotaSnapshotCache) moveToFront(key string) {
	for i, k := range c.lruOrder {
		if k == key {
			c.lruOrder = append(c.lruOrder[:i], c.lruOrder[i+1:]...)
			break
		}
	}
	c.lruOrder = append([]string{key}, c.lruOrder...)
}

// evictLRU removes the least recently used entry.
func (c *InMemoryQuotaSnapshotCache) evictLRU(ctx context.Context) {
	if len(c.lruOrder) == 0 {
		return
	}

	evictKey := c.lruOrder[len(c.lruOrder)-1]
	c.lruOrder = c.lruOrder[:len(c.lruOrder)-1]

	entry, exists := c.cache[evictKey]
	if exists {
		delete(c.cache, evictKey)
		c.stats.Evictions++

		slogger.Debug(ctx, "Evicted quota snapshot", slogger.Fields{
			"key":          evictKey,
			"access_count": entry.AccessCount,
			"age_seconds":  time.Since(entry.CachedAt).Seconds(),
		})
	}
}

// updateHitRate recalculates the cache hit rate.
func (c *InMemoryQuotaSnapshotCache) updateHitRate() {
	total := c.stats.Hits + c.stats.Misses
	if total > 0 {
		c.stats.HitRate = float64(c.stats.Hits) / float64(total)
	}
	c.stats.LastUpdated = time.Now()
}
