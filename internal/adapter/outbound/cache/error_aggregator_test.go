package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/opennotes-ai/opennotes-sub006/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisErrorAggregator_RecordError(t *testing.T) {
	_, client := setupMiniredis(t)
	aggregator := NewRedisErrorAggregator(client, time.Hour)
	ctx := context.Background()

	t.Run("should count totals and kinds exactly", func(t *testing.T) {
		scopeID := uuid.New()
		occurredAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

		require.NoError(t, aggregator.RecordError(ctx, scopeID,
			entity.NewRecordedError(entity.ErrorKindQuotaDenied, "daily limit exceeded", "unit-1", occurredAt)))
		require.NoError(t, aggregator.RecordError(ctx, scopeID,
			entity.NewRecordedError(entity.ErrorKindQuotaDenied, "daily limit exceeded", "unit-2", occurredAt)))
		require.NoError(t, aggregator.RecordError(ctx, scopeID,
			entity.NewRecordedError(entity.ErrorKindHandlerFailed, "scorer unavailable", "unit-3", occurredAt)))

		summary, err := aggregator.Summary(ctx, scopeID)
		require.NoError(t, err)

		assert.Equal(t, int64(3), summary.Total)
		assert.Equal(t, int64(2), summary.CountsByKind[entity.ErrorKindQuotaDenied])
		assert.Equal(t, int64(1), summary.CountsByKind[entity.ErrorKindHandlerFailed])
		require.Len(t, summary.Samples, 3)
	})

	t.Run("should round-trip sample fields", func(t *testing.T) {
		scopeID := uuid.New()
		occurredAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

		require.NoError(t, aggregator.RecordError(ctx, scopeID,
			entity.NewRecordedError(entity.ErrorKindInvalidUnit, "candidate body empty", "unit-9", occurredAt)))

		summary, err := aggregator.Summary(ctx, scopeID)
		require.NoError(t, err)
		require.Len(t, summary.Samples, 1)

		sample := summary.Samples[0]
		assert.Equal(t, entity.ErrorKindInvalidUnit, sample.Kind)
		assert.Equal(t, "candidate body empty", sample.Message)
		assert.Equal(t, "unit-9", sample.UnitID)
		assert.True(t, sample.OccurredAt.Equal(occurredAt))
	})

	t.Run("should reject samples without a kind", func(t *testing.T) {
		err := aggregator.RecordError(ctx, uuid.New(), entity.RecordedError{Message: "no kind"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "error kind is required")
	})
}

// The sample list is capped but the counters never are: a scope with more
// failures than the cap still reports the exact total.
func TestRedisErrorAggregator_SampleCap(t *testing.T) {
	_, client := setupMiniredis(t)
	aggregator := NewRedisErrorAggregator(client, time.Hour)
	ctx := context.Background()
	scopeID := uuid.New()
	occurredAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	const recorded = 8
	for i := range recorded {
		err := aggregator.RecordError(ctx, scopeID, entity.NewRecordedError(
			entity.ErrorKindHandlerFailed,
			fmt.Sprintf("failure %d", i),
			fmt.Sprintf("unit-%d", i),
			occurredAt,
		))
		require.NoError(t, err)
	}

	summary, err := aggregator.Summary(ctx, scopeID)
	require.NoError(t, err)

	assert.Equal(t, int64(recorded), summary.Total)
	assert.Equal(t, int64(recorded), summary.CountsByKind[entity.ErrorKindHandlerFailed])
	require.Len(t, summary.Samples, entity.DefaultErrorSampleCap)

	// Newest first: the retained samples are the last five recorded.
	for i, sample := range summary.Samples {
		assert.Equal(t, fmt.Sprintf("failure %d", recorded-1-i), sample.Message)
	}
}

func TestRedisErrorAggregator_CustomSampleCap(t *testing.T) {
	_, client := setupMiniredis(t)
	aggregator := NewRedisErrorAggregatorWithSampleCap(client, time.Hour, 2)
	ctx := context.Background()
	scopeID := uuid.New()

	for i := range 4 {
		err := aggregator.RecordError(ctx, scopeID, entity.NewRecordedError(
			entity.ErrorKindStorageFailure, fmt.Sprintf("failure %d", i), "", time.Now()))
		require.NoError(t, err)
	}

	summary, err := aggregator.Summary(ctx, scopeID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), summary.Total)
	assert.Len(t, summary.Samples, 2)
}

func TestRedisErrorAggregator_Summary(t *testing.T) {
	mr, client := setupMiniredis(t)
	aggregator := NewRedisErrorAggregator(client, time.Hour)
	ctx := context.Background()

	t.Run("should report untouched scope as empty", func(t *testing.T) {
		summary, err := aggregator.Summary(ctx, uuid.New())
		require.NoError(t, err)

		assert.True(t, summary.IsEmpty())
		assert.Equal(t, int64(0), summary.Total)
		assert.Empty(t, summary.CountsByKind)
		assert.Empty(t, summary.Samples)
	})

	t.Run("should report expired scope as empty", func(t *testing.T) {
		scopeID := uuid.New()
		require.NoError(t, aggregator.RecordError(ctx, scopeID,
			entity.NewRecordedError(entity.ErrorKindHandlerFailed, "boom", "", time.Now())))

		mr.FastForward(time.Hour + time.Second)

		summary, err := aggregator.Summary(ctx, scopeID)
		require.NoError(t, err)
		assert.True(t, summary.IsEmpty())
	})
}

// HINCRBY commutes, so concurrent recorders must land on the exact total.
func TestRedisErrorAggregator_ConcurrentRecord(t *testing.T) {
	_, client := setupMiniredis(t)
	aggregator := NewRedisErrorAggregator(client, time.Hour)
	ctx := context.Background()
	scopeID := uuid.New()

	const recorders = 30
	var wg sync.WaitGroup
	errs := make(chan error, recorders)
	for i := range recorders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- aggregator.RecordError(ctx, scopeID, entity.NewRecordedError(
				entity.ErrorKindQuotaDenied, "denied", fmt.Sprintf("unit-%d", i), time.Now()))
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	summary, err := aggregator.Summary(ctx, scopeID)
	require.NoError(t, err)
	assert.Equal(t, int64(recorders), summary.Total)
	assert.Equal(t, int64(recorders), summary.CountsByKind[entity.ErrorKindQuotaDenied])
	assert.Len(t, summary.Samples, entity.DefaultErrorSampleCap)
}

func TestRedisErrorAggregator_Clear(t *testing.T) {
	_, client := setupMiniredis(t)
	aggregator := NewRedisErrorAggregator(client, time.Hour)
	ctx := context.Background()
	scopeID := uuid.New()

	require.NoError(t, aggregator.RecordError(ctx, scopeID,
		entity.NewRecordedError(entity.ErrorKindHandlerFailed, "boom", "", time.Now())))
	require.NoError(t, aggregator.Clear(ctx, scopeID))

	summary, err := aggregator.Summary(ctx, scopeID)
	require.NoError(t, err)
	assert.True(t, summary.IsEmpty())
}
