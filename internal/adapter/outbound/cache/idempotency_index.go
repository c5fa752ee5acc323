package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisIdempotencyIndex implements the IdempotencyIndex port on one Redis
// bitmap per job, one bit per unit ordinal. SETBIT returns the previous
// bit in the same operation, so racing markers for the same unit resolve
// to exactly one first-processor. The bitmap expires on its own; losing it
// mid-job degrades processing to at-least-once.
type RedisIdempotencyIndex struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisIdempotencyIndex creates an idempotency index with the given
// bitmap TTL.
func NewRedisIdempotencyIndex(client *redis.Client, ttl time.Duration) *RedisIdempotencyIndex {
	return &RedisIdempotencyIndex{
		client: client,
		ttl:    ttl,
	}
}

func processedKey(jobID uuid.UUID) string {
	return "processed:" + jobID.String()
}

// MarkProcessed sets the unit's bit and returns its previous value. The
// TTL is attached when the key has none yet, so it anchors to the first
// mark instead of sliding forward on every mark.
func (i *RedisIdempotencyIndex) MarkProcessed(ctx context.Context, jobID uuid.UUID, index int64) (bool, error) {
	if index < 0 {
		return false, fmt.Errorf("unit index must not be negative, got %d", index)
	}

	key := processedKey(jobID)

	previous, err := i.client.SetBit(ctx, key, index, 1).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark unit processed: %w", err)
	}

	if err := i.client.ExpireNX(ctx, key, i.ttl).Err(); err != nil {
		return false, fmt.Errorf("failed to set bitmap expiry: %w", err)
	}

	return previous == 1, nil
}

// IsProcessed reads the unit's bit without setting it. Unset keys and
// out-of-range indices read as zero.
func (i *RedisIdempotencyIndex) IsProcessed(ctx context.Context, jobID uuid.UUID, index int64) (bool, error) {
	if index < 0 {
		return false, fmt.Errorf("unit index must not be negative, got %d", index)
	}

	bit, err := i.client.GetBit(ctx, processedKey(jobID), index).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read processed bit: %w", err)
	}

	return bit == 1, nil
}

// Clear drops the whole bitmap for the job.
func (i *RedisIdempotencyIndex) Clear(ctx context.Context, jobID uuid.UUID) error {
	if err := i.client.Del(ctx, processedKey(jobID)).Err(); err != nil {
		return fmt.Errorf("failed to clear processed bitmap: %w", err)
	}
	return nil
}
