package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/opennotes-ai/opennotes-sub006/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// errorTotalField holds the exact total inside the counts hash. Kinds are
// free-form strings; an underscore prefix keeps the field out of their
// namespace.
const errorTotalField = "_total"

// RedisErrorAggregator implements the ErrorAggregator port with a counts
// hash and a capped sample list per scope. Counters are exact and never
// capped; only the sample list is trimmed. One TxPipeline per record keeps
// total, per-kind count and sample consistent with each other.
type RedisErrorAggregator struct {
	client    *redis.Client
	ttl       time.Duration
	sampleCap int64
}

// NewRedisErrorAggregator creates an aggregator with the given key TTL and
// the default sample cap.
func NewRedisErrorAggregator(client *redis.Client, ttl time.Duration) *RedisErrorAggregator {
	return &RedisErrorAggregator{
		client:    client,
		ttl:       ttl,
		sampleCap: entity.DefaultErrorSampleCap,
	}
}

// NewRedisErrorAggregatorWithSampleCap overrides the sample cap.
func NewRedisErrorAggregatorWithSampleCap(client *redis.Client, ttl time.Duration, sampleCap int64) *RedisErrorAggregator {
	aggregator := NewRedisErrorAggregator(client, ttl)
	if sampleCap > 0 {
		aggregator.sampleCap = sampleCap
	}
	return aggregator
}

func errorCountsKey(scopeID uuid.UUID) string {
	return "errors:" + scopeID.String() + ":counts"
}

func errorSamplesKey(scopeID uuid.UUID) string {
	return "errors:" + scopeID.String() + ":samples"
}

// RecordError counts the failure and keeps it as a sample while the cap
// allows. All writes ride one pipeline so a scope never shows a sample
// its counters do not know about.
func (a *RedisErrorAggregator) RecordError(ctx context.Context, scopeID uuid.UUID, sample entity.RecordedError) error {
	if sample.Kind == "" {
		return fmt.Errorf("error kind is required")
	}

	payload, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("failed to marshal error sample: %w", err)
	}

	countsKey := errorCountsKey(scopeID)
	samplesKey := errorSamplesKey(scopeID)

	pipe := a.client.TxPipeline()
	pipe.HIncrBy(ctx, countsKey, errorTotalField, 1)
	pipe.HIncrBy(ctx, countsKey, sample.Kind, 1)
	pipe.LPush(ctx, samplesKey, payload)
	pipe.LTrim(ctx, samplesKey, 0, a.sampleCap-1)
	pipe.Expire(ctx, countsKey, a.ttl)
	pipe.Expire(ctx, samplesKey, a.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record error: %w", err)
	}
	return nil
}

// Summary returns the scope's exact totals and up to the cap of samples,
// newest first. An untouched scope reads as empty, not as an error.
func (a *RedisErrorAggregator) Summary(ctx context.Context, scopeID uuid.UUID) (*entity.ErrorSummary, error) {
	counts, err := a.client.HGetAll(ctx, errorCountsKey(scopeID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read error counts: %w", err)
	}

	summary := entity.EmptyErrorSummary()
	for field, raw := range counts {
		value, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil {
			return nil, fmt.Errorf("corrupt error counter %q=%q: %w", field, raw, parseErr)
		}
		if field == errorTotalField {
			summary.Total = value
			continue
		}
		summary.CountsByKind[field] = value
	}

	rawSamples, err := a.client.LRange(ctx, errorSamplesKey(scopeID), 0, a.sampleCap-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read error samples: %w", err)
	}

	for _, raw := range rawSamples {
		var sample entity.RecordedError
		if unmarshalErr := json.Unmarshal([]byte(raw), &sample); unmarshalErr != nil {
			return nil, fmt.Errorf("corrupt error sample: %w", unmarshalErr)
		}
		summary.Samples = append(summary.Samples, sample)
	}

	return summary, nil
}

// Clear drops both keys for the scope.
func (a *RedisErrorAggregator) Clear(ctx context.Context, scopeID uuid.UUID) error {
	if err := a.client.Del(ctx, errorCountsKey(scopeID), errorSamplesKey(scopeID)).Err(); err != nil {
		return fmt.Errorf("failed to clear error aggregation: %w", err)
	}
	return nil
}
