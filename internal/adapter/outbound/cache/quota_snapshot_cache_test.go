package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/opennotes-ai/opennotes-sub006/internal/domain/entity"
	domainerrors "github.com/opennotes-ai/opennotes-sub006/internal/domain/errors/domain"
	"github.com/opennotes-ai/opennotes-sub006/internal/domain/valueobject"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubQuotaLedger serves quota rows from a map and counts fetches so
// tests can tell cache hits from ledger round trips.
type stubQuotaLedger struct {
	mu      sync.Mutex
	quotas  map[string]*entity.ResourceQuota
	fetches int
}

func newStubQuotaLedger() *stubQuotaLedger {
	return &stubQuotaLedger{quotas: make(map[string]*entity.ResourceQuota)}
}

func (s *stubQuotaLedger) put(quota *entity.ResourceQuota) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotas[snapshotKey(quota.TenantID(), quota.ResourceKind().String())] = quota
}

func (s *stubQuotaLedger) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

func (s *stubQuotaLedger) GetQuota(
	_ context.Context,
	tenantID uuid.UUID,
	kind valueobject.ResourceKind,
) (*entity.ResourceQuota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++

	quota, ok := s.quotas[snapshotKey(tenantID, kind.String())]
	if !ok {
		return nil, domainerrors.ErrQuotaNotFound
	}
	return quota, nil
}

func (s *stubQuotaLedger) CheckAndRecord(
	_ context.Context,
	_ uuid.UUID,
	_ valueobject.ResourceKind,
	_ int64,
	_ string,
) (*entity.QuotaDecision, error) {
	panic("not used by the snapshot cache")
}

func (s *stubQuotaLedger) RecordFailure(
	_ context.Context,
	_ uuid.UUID,
	_ valueobject.ResourceKind,
	_ int64,
	_ string,
	_ string,
) error {
	panic("not used by the snapshot cache")
}

func (s *stubQuotaLedger) EnableResource(
	_ context.Context,
	_ uuid.UUID,
	_ valueobject.ResourceKind,
	_ entity.QuotaLimits,
) (*entity.ResourceQuota, error) {
	panic("not used by the snapshot cache")
}

func (s *stubQuotaLedger) DisableResource(_ context.Context, _ uuid.UUID, _ valueobject.ResourceKind) error {
	panic("not used by the snapshot cache")
}

func stubQuota(t *testing.T, tenantID uuid.UUID, kind valueobject.ResourceKind, revision int64) *entity.ResourceQuota {
	t.Helper()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	return entity.RestoreResourceQuota(
		tenantID, kind, true,
		entity.QuotaLimits{DailyRequests: 100},
		entity.QuotaUsage{},
		now, now, revision, now, now,
	)
}

func TestQuotaSnapshotCache_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("should fetch through the ledger on first read", func(t *testing.T) {
		ledger := newStubQuotaLedger()
		tenantID := uuid.New()
		ledger.put(stubQuota(t, tenantID, valueobject.ResourceKindLLMTokens, 3))
		cache := NewInMemoryQuotaSnapshotCache(ledger, 10, time.Minute)

		quota, err := cache.Get(ctx, tenantID, "llm_tokens")
		require.NoError(t, err)
		require.NotNil(t, quota)
		assert.Equal(t, int64(3), quota.Revision())
		assert.Equal(t, 1, ledger.fetchCount())
	})

	t.Run("should serve repeated reads from the cache", func(t *testing.T) {
		ledger := newStubQuotaLedger()
		tenantID := uuid.New()
		ledger.put(stubQuota(t, tenantID, valueobject.ResourceKindLLMTokens, 1))
		cache := NewInMemoryQuotaSnapshotCache(ledger, 10, time.Minute)

		_, err := cache.Get(ctx, tenantID, "llm_tokens")
		require.NoError(t, err)
		_, err = cache.Get(ctx, tenantID, "llm_tokens")
		require.NoError(t, err)

		assert.Equal(t, 1, ledger.fetchCount())

		stats := cache.GetStatistics()
		assert.Equal(t, int64(1), stats.Hits)
		assert.Equal(t, int64(1), stats.Misses)
	})

	t.Run("should reject unknown resource kinds", func(t *testing.T) {
		cache := NewInMemoryQuotaSnapshotCache(newStubQuotaLedger(), 10, time.Minute)

		_, err := cache.Get(ctx, uuid.New(), "gpu_hours")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid resource kind")
	})

	t.Run("should propagate ledger errors without caching them", func(t *testing.T) {
		ledger := newStubQuotaLedger()
		tenantID := uuid.New()
		cache := NewInMemoryQuotaSnapshotCache(ledger, 10, time.Minute)

		_, err := cache.Get(ctx, tenantID, "llm_tokens")
		require.ErrorIs(t, err, domainerrors.ErrQuotaNotFound)

		// Once the row exists the next read must succeed.
		ledger.put(stubQuota(t, tenantID, valueobject.ResourceKindLLMTokens, 1))
		quota, err := cache.Get(ctx, tenantID, "llm_tokens")
		require.NoError(t, err)
		assert.Equal(t, int64(1), quota.Revision())
	})
}

func TestQuotaSnapshotCache_TTL(t *testing.T) {
	ctx := context.Background()
	ledger := newStubQuotaLedger()
	tenantID := uuid.New()
	ledger.put(stubQuota(t, tenantID, valueobject.ResourceKindLLMTokens, 1))

	cache := NewInMemoryQuotaSnapshotCache(ledger, 10, time.Minute)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return base }

	_, err := cache.Get(ctx, tenantID, "llm_tokens")
	require.NoError(t, err)
	require.Equal(t, 1, ledger.fetchCount())

	// Still fresh just inside the TTL.
	cache.now = func() time.Time { return base.Add(59 * time.Second) }
	_, err = cache.Get(ctx, tenantID, "llm_tokens")
	require.NoError(t, err)
	assert.Equal(t, 1, ledger.fetchCount())

	// Expired entries refetch.
	cache.now = func() time.Time { return base.Add(61 * time.Second) }
	_, err = cache.Get(ctx, tenantID, "llm_tokens")
	require.NoError(t, err)
	assert.Equal(t, 2, ledger.fetchCount())
}

func TestQuotaSnapshotCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	ledger := newStubQuotaLedger()
	tenantID := uuid.New()
	ledger.put(stubQuota(t, tenantID, valueobject.ResourceKindLLMTokens, 1))
	cache := NewInMemoryQuotaSnapshotCache(ledger, 10, time.Minute)

	_, err := cache.Get(ctx, tenantID, "llm_tokens")
	require.NoError(t, err)

	// A writer observed revision 2; drop the stale entry.
	ledger.put(stubQuota(t, tenantID, valueobject.ResourceKindLLMTokens, 2))
	cache.Invalidate(tenantID, "llm_tokens")

	quota, err := cache.Get(ctx, tenantID, "llm_tokens")
	require.NoError(t, err)
	assert.Equal(t, int64(2), quota.Revision())
	assert.Equal(t, 2, ledger.fetchCount())
}

func TestQuotaSnapshotCache_Purge(t *testing.T) {
	ctx := context.Background()
	ledger := newStubQuotaLedger()
	first := uuid.New()
	second := uuid.New()
	ledger.put(stubQuota(t, first, valueobject.ResourceKindLLMTokens, 1))
	ledger.put(stubQuota(t, second, valueobject.ResourceKindContentScans, 1))
	cache := NewInMemoryQuotaSnapshotCache(ledger, 10, time.Minute)

	_, err := cache.Get(ctx, first, "llm_tokens")
	require.NoError(t, err)
	_, err = cache.Get(ctx, second, "content_scans")
	require.NoError(t, err)
	require.Equal(t, int64(2), cache.GetStatistics().TotalItems)

	cache.Purge()

	assert.Equal(t, int64(0), cache.GetStatistics().TotalItems)

	_, err = cache.Get(ctx, first, "llm_tokens")
	require.NoError(t, err)
	assert.Equal(t, 3, ledger.fetchCount())
}

func TestQuotaSnapshotCache_LRUEviction(t *testing.T) {
	ctx := context.Background()
	ledger := newStubQuotaLedger()
	tenants := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, tenantID := range tenants {
		ledger.put(stubQuota(t, tenantID, valueobject.ResourceKindLLMTokens, 1))
	}

	cache := NewInMemoryQuotaSnapshotCache(ledger, 2, time.Minute)

	for _, tenantID := range tenants {
		_, err := cache.Get(ctx, tenantID, "llm_tokens")
		require.NoError(t, err)
	}

	stats := cache.GetStatistics()
	assert.Equal(t, int64(1), stats.Evictions)
	assert.Equal(t, int64(2), stats.TotalItems)

	// The first tenant was least recently used and must refetch.
	require.Equal(t, 3, ledger.fetchCount())
	_, err := cache.Get(ctx, tenants[0], "llm_tokens")
	require.NoError(t, err)
	assert.Equal(t, 4, ledger.fetchCount())
}

// Two goroutines can fetch the same row concurrently; the higher revision
// must win regardless of store order.
func TestQuotaSnapshotCache_NewerRevisionWins(t *testing.T) {
	ctx := context.Background()
	ledger := newStubQuotaLedger()
	tenantID := uuid.New()
	cache := NewInMemoryQuotaSnapshotCache(ledger, 10, time.Minute)

	key := snapshotKey(tenantID, "llm_tokens")
	newer := stubQuota(t, tenantID, valueobject.ResourceKindLLMTokens, 5)
	older := stubQuota(t, tenantID, valueobject.ResourceKindLLMTokens, 4)

	cache.store(ctx, key, newer)
	cache.store(ctx, key, older)

	cached := cache.lookup(ctx, key)
	require.NotNil(t, cached)
	assert.Equal(t, int64(5), cached.Revision())
}
