package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/opennotes-ai/opennotes-sub006/internal/port/outbound"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisProgressCache_StartTracking(t *testing.T) {
	_, client := setupMiniredis(t)
	cache := NewRedisProgressCache(client, time.Hour)
	ctx := context.Background()
	jobID := uuid.New()

	t.Run("should initialize counters at zero", func(t *testing.T) {
		err := cache.StartTracking(ctx, jobID, "candidate-001")
		require.NoError(t, err)

		snapshot, err := cache.GetProgress(ctx, jobID)
		require.NoError(t, err)
		require.NotNil(t, snapshot)

		assert.Equal(t, jobID, snapshot.JobID)
		assert.Equal(t, "candidate-001", snapshot.CurrentItem)
		assert.Equal(t, int64(0), snapshot.ProcessedUnits)
		assert.Equal(t, int64(0), snapshot.FailedUnits)
		assert.False(t, snapshot.StartedAt.IsZero())
		assert.Equal(t, snapshot.StartedAt, snapshot.LastUpdateAt)
	})

	t.Run("should reset counters when tracking restarts", func(t *testing.T) {
		err := cache.UpdateProgress(ctx, jobID, outbound.ProgressUpdate{ProcessedDelta: 7})
		require.NoError(t, err)

		err = cache.StartTracking(ctx, jobID, "candidate-001")
		require.NoError(t, err)

		snapshot, err := cache.GetProgress(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), snapshot.ProcessedUnits)
	})
}

func TestRedisProgressCache_GetProgress(t *testing.T) {
	mr, client := setupMiniredis(t)
	cache := NewRedisProgressCache(client, time.Hour)
	ctx := context.Background()

	t.Run("should return nil without error for untracked job", func(t *testing.T) {
		snapshot, err := cache.GetProgress(ctx, uuid.New())
		require.NoError(t, err)
		assert.Nil(t, snapshot)
	})

	t.Run("should return nil after the entry expires", func(t *testing.T) {
		jobID := uuid.New()
		require.NoError(t, cache.StartTracking(ctx, jobID, "item"))

		mr.FastForward(time.Hour + time.Second)

		snapshot, err := cache.GetProgress(ctx, jobID)
		require.NoError(t, err)
		assert.Nil(t, snapshot)
	})

	t.Run("should report corrupt counters instead of guessing", func(t *testing.T) {
		jobID := uuid.New()
		require.NoError(t, cache.StartTracking(ctx, jobID, "item"))
		mr.HSet(progressKey(jobID), progressFieldProcessed, "not-a-number")

		_, err := cache.GetProgress(ctx, jobID)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "corrupt processed counter")
	})
}

func TestRedisProgressCache_UpdateProgress(t *testing.T) {
	mr, client := setupMiniredis(t)
	cache := NewRedisProgressCache(client, time.Hour)
	ctx := context.Background()

	t.Run("should accumulate deltas", func(t *testing.T) {
		jobID := uuid.New()
		require.NoError(t, cache.StartTracking(ctx, jobID, "item-0"))

		require.NoError(t, cache.UpdateProgress(ctx, jobID, outbound.ProgressUpdate{ProcessedDelta: 3}))
		require.NoError(t, cache.UpdateProgress(ctx, jobID, outbound.ProgressUpdate{ProcessedDelta: 2, FailedDelta: 1}))

		snapshot, err := cache.GetProgress(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, int64(5), snapshot.ProcessedUnits)
		assert.Equal(t, int64(1), snapshot.FailedUnits)
	})

	t.Run("should overwrite counters with absolute values", func(t *testing.T) {
		jobID := uuid.New()
		require.NoError(t, cache.StartTracking(ctx, jobID, "item-0"))
		require.NoError(t, cache.UpdateProgress(ctx, jobID, outbound.ProgressUpdate{ProcessedDelta: 9}))

		abs := int64(42)
		require.NoError(t, cache.UpdateProgress(ctx, jobID, outbound.ProgressUpdate{ProcessedAbs: &abs}))

		snapshot, err := cache.GetProgress(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, int64(42), snapshot.ProcessedUnits)
	})

	t.Run("should update the current item", func(t *testing.T) {
		jobID := uuid.New()
		require.NoError(t, cache.StartTracking(ctx, jobID, "item-0"))

		item := "item-17"
		require.NoError(t, cache.UpdateProgress(ctx, jobID, outbound.ProgressUpdate{CurrentItem: &item}))

		snapshot, err := cache.GetProgress(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, "item-17", snapshot.CurrentItem)
	})

	t.Run("should refresh the TTL", func(t *testing.T) {
		jobID := uuid.New()
		require.NoError(t, cache.StartTracking(ctx, jobID, "item-0"))

		mr.FastForward(45 * time.Minute)
		require.NoError(t, cache.UpdateProgress(ctx, jobID, outbound.ProgressUpdate{ProcessedDelta: 1}))
		mr.FastForward(45 * time.Minute)

		snapshot, err := cache.GetProgress(ctx, jobID)
		require.NoError(t, err)
		require.NotNil(t, snapshot, "entry should survive while updates keep arriving")
		assert.Equal(t, int64(1), snapshot.ProcessedUnits)
	})

	t.Run("should commute under concurrent writers", func(t *testing.T) {
		jobID := uuid.New()
		require.NoError(t, cache.StartTracking(ctx, jobID, "item-0"))

		const writers = 20
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- cache.UpdateProgress(ctx, jobID, outbound.ProgressUpdate{ProcessedDelta: 1})
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		snapshot, err := cache.GetProgress(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, int64(writers), snapshot.ProcessedUnits)
	})
}

func TestRedisProgressCache_Rate(t *testing.T) {
	_, client := setupMiniredis(t)
	cache := NewRedisProgressCache(client, time.Hour)
	ctx := context.Background()
	jobID := uuid.New()

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return start }
	require.NoError(t, cache.StartTracking(ctx, jobID, "item-0"))

	cache.now = func() time.Time { return start.Add(10 * time.Second) }
	require.NoError(t, cache.UpdateProgress(ctx, jobID, outbound.ProgressUpdate{ProcessedDelta: 50}))

	snapshot, err := cache.GetProgress(ctx, jobID)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, snapshot.Rate(), 0.001)
}

func TestRedisProgressCache_StopTracking(t *testing.T) {
	_, client := setupMiniredis(t)
	cache := NewRedisProgressCache(client, time.Hour)
	ctx := context.Background()
	jobID := uuid.New()

	require.NoError(t, cache.StartTracking(ctx, jobID, "item-0"))
	require.NoError(t, cache.StopTracking(ctx, jobID))

	snapshot, err := cache.GetProgress(ctx, jobID)
	require.NoError(t, err)
	assert.Nil(t, snapshot)
}
