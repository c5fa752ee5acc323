package retry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func fastConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:    3,
		InitialDelay:  time.Millisecond,
		MaxDelay:      10 * time.Millisecond,
		BackoffFactor: 2.0,
		Jitter:        false,
	}
}

func TestRetryExecutor_SuccessOnFirstAttempt(t *testing.T) {
	executor := NewRetryExecutor(fastConfig())
	callCount := 0

	err := executor.Execute(context.Background(), func(_ context.Context) error {
		callCount++
		return nil
	})
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call, got: %d", callCount)
	}
}

func TestRetryExecutor_SuccessAfterRetries(t *testing.T) {
	executor := NewRetryExecutor(fastConfig())
	callCount := 0

	err := executor.Execute(context.Background(), func(_ context.Context) error {
		callCount++
		if callCount < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls, got: %d", callCount)
	}
}

func TestRetryExecutor_NonRetryableError(t *testing.T) {
	executor := NewRetryExecutor(fastConfig())
	callCount := 0
	permanent := errors.New("job_kind is not a known kind")

	err := executor.Execute(context.Background(), func(_ context.Context) error {
		callCount++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Errorf("Expected the permanent error, got: %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call for non-retryable error, got: %d", callCount)
	}
}

func TestRetryExecutor_ExhaustsRetries(t *testing.T) {
	executor := NewRetryExecutor(fastConfig())
	callCount := 0

	err := executor.Execute(context.Background(), func(_ context.Context) error {
		callCount++
		return errors.New("nats: timeout")
	})
	if err == nil {
		t.Fatal("Expected error after exhausting retries")
	}
	if callCount != 4 { // initial + 3 retries
		t.Errorf("Expected 4 calls, got: %d", callCount)
	}
	if !strings.HasPrefix(err.Error(), "operation failed after 3 retries") {
		t.Errorf("Expected exhaustion error prefix, got: %v", err)
	}
}

func TestRetryExecutor_ContextCancellation(t *testing.T) {
	config := fastConfig()
	config.InitialDelay = time.Second
	// Keep the cap above InitialDelay so the first backoff really lasts a
	// second; fastConfig's 10ms cap would collide with the 10ms cancel.
	config.MaxDelay = time.Second
	executor := NewRetryExecutor(config)

	ctx, cancel := context.WithCancel(context.Background())
	callCount := 0

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := executor.Execute(ctx, func(_ context.Context) error {
		callCount++
		return errors.New("connection reset")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got: %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call before cancellation, got: %d", callCount)
	}
}

func TestDefaultRetryableChecker(t *testing.T) {
	checker := &DefaultRetryableChecker{}

	retryable := []string{
		"connection refused",
		"deadlock detected",
		"nats: connection closed",
		"nats: timeout waiting for ack",
		"no responders available",
		"resource temporarily unavailable",
		"dial tcp: connection timed out",
	}
	for _, msg := range retryable {
		if !checker.IsRetryable(errors.New(msg)) {
			t.Errorf("Expected %q to be retryable", msg)
		}
	}

	permanent := []string{
		"invalid job kind: reindex",
		"message_id is required",
		"syntax error at or near",
	}
	for _, msg := range permanent {
		if checker.IsRetryable(errors.New(msg)) {
			t.Errorf("Expected %q to be permanent", msg)
		}
	}

	if checker.IsRetryable(nil) {
		t.Error("Expected nil error to not be retryable")
	}
}

func TestRetryExecutor_CustomChecker(t *testing.T) {
	executor := NewRetryExecutorWithChecker(fastConfig(), retryAllChecker{})
	callCount := 0

	_ = executor.Execute(context.Background(), func(_ context.Context) error {
		callCount++
		return errors.New("anything at all")
	})
	if callCount != 4 {
		t.Errorf("Expected custom checker to drive 4 calls, got: %d", callCount)
	}
}

type retryAllChecker struct{}

func (retryAllChecker) IsRetryable(err error) bool { return err != nil }

func TestWithRetry_DefaultConfig(t *testing.T) {
	callCount := 0
	err := WithRetry(context.Background(), func(_ context.Context) error {
		callCount++
		if callCount == 1 {
			return errors.New("timeout")
		}
		return nil
	})
	if err != nil {
		t.Errorf("Expected success after one retry, got: %v", err)
	}
	if callCount != 2 {
		t.Errorf("Expected 2 calls, got: %d", callCount)
	}
}
