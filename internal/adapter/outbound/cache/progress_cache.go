package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/opennotes-ai/opennotes-sub006/internal/port/outbound"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Hash fields of a progress:{job_id} key.
const (
	progressFieldCurrentItem  = "current_item"
	progressFieldProcessed    = "processed_units"
	progressFieldFailed       = "failed_units"
	progressFieldStartedAt    = "started_at"
	progressFieldLastUpdateAt = "last_update_at"
)

// RedisProgressCache implements the ProgressCache port on a Redis hash per
// job. Increments use HINCRBY so concurrent workers updating the same job
// commute; absolutes are plain HSET overwrites for drift correction. The
// hash carries a TTL and is advisory: the durable job row holds terminal
// counts.
type RedisProgressCache struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisProgressCache creates a progress cache with the given key TTL.
func NewRedisProgressCache(client *redis.Client, ttl time.Duration) *RedisProgressCache {
	return &RedisProgressCache{
		client: client,
		ttl:    ttl,
		now:    time.Now,
	}
}

func progressKey(jobID uuid.UUID) string {
	return "progress:" + jobID.String()
}

// StartTracking initializes the hash with zero counters. Re-tracking an
// already tracked job resets it, which is what a resumed run wants.
func (c *RedisProgressCache) StartTracking(ctx context.Context, jobID uuid.UUID, initialItem string) error {
	now := c.now().UTC()
	key := progressKey(jobID)

	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key,
		progressFieldCurrentItem, initialItem,
		progressFieldProcessed, 0,
		progressFieldFailed, 0,
		progressFieldStartedAt, now.Format(time.RFC3339Nano),
		progressFieldLastUpdateAt, now.Format(time.RFC3339Nano),
	)
	pipe.Expire(ctx, key, c.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to start progress tracking: %w", err)
	}
	return nil
}

// GetProgress returns the live snapshot, or nil with no error when the job
// is not tracked or the entry expired.
func (c *RedisProgressCache) GetProgress(ctx context.Context, jobID uuid.UUID) (*outbound.ProgressSnapshot, error) {
	fields, err := c.client.HGetAll(ctx, progressKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read progress: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	snapshot := &outbound.ProgressSnapshot{
		JobID:       jobID,
		CurrentItem: fields[progressFieldCurrentItem],
	}

	if v, ok := fields[progressFieldProcessed]; ok {
		if snapshot.ProcessedUnits, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("corrupt processed counter %q: %w", v, err)
		}
	}
	if v, ok := fields[progressFieldFailed]; ok {
		if snapshot.FailedUnits, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("corrupt failed counter %q: %w", v, err)
		}
	}
	if v, ok := fields[progressFieldStartedAt]; ok {
		if snapshot.StartedAt, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return nil, fmt.Errorf("corrupt started_at %q: %w", v, err)
		}
	}
	if v, ok := fields[progressFieldLastUpdateAt]; ok {
		if snapshot.LastUpdateAt, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return nil, fmt.Errorf("corrupt last_update_at %q: %w", v, err)
		}
	}

	return snapshot, nil
}

// UpdateProgress applies deltas atomically and absolutes as overwrites,
// refreshing last_update_at and the TTL in the same pipeline.
func (c *RedisProgressCache) UpdateProgress(ctx context.Context, jobID uuid.UUID, update outbound.ProgressUpdate) error {
	key := progressKey(jobID)
	pipe := c.client.TxPipeline()

	if update.ProcessedDelta != 0 {
		pipe.HIncrBy(ctx, key, progressFieldProcessed, update.ProcessedDelta)
	}
	if update.FailedDelta != 0 {
		pipe.HIncrBy(ctx, key, progressFieldFailed, update.FailedDelta)
	}
	if update.ProcessedAbs != nil {
		pipe.HSet(ctx, key, progressFieldProcessed, *update.ProcessedAbs)
	}
	if update.FailedAbs != nil {
		pipe.HSet(ctx, key, progressFieldFailed, *update.FailedAbs)
	}
	if update.CurrentItem != nil {
		pipe.HSet(ctx, key, progressFieldCurrentItem, *update.CurrentItem)
	}

	pipe.HSet(ctx, key, progressFieldLastUpdateAt, c.now().UTC().Format(time.RFC3339Nano))
	pipe.Expire(ctx, key, c.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	return nil
}

// StopTracking drops the hash.
func (c *RedisProgressCache) StopTracking(ctx context.Context, jobID uuid.UUID) error {
	if err := c.client.Del(ctx, progressKey(jobID)).Err(); err != nil {
		return fmt.Errorf("failed to stop progress tracking: %w", err)
	}
	return nil
}
