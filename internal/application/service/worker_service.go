package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opennotes-ai/opennotes-sub006/internal/application/common/slogger"
	"github.com/opennotes-ai/opennotes-sub006/internal/port/inbound"

	"golang.org/x/sync/errgroup"
)

// WorkerServiceConfig holds configuration for the worker service.
type WorkerServiceConfig struct {
	Concurrency     int
	QueueGroup      string
	JobTimeout      time.Duration
	ShutdownTimeout time.Duration
}

// DefaultWorkerService supervises a set of queue consumers. All consumers
// bind the same durable, so the broker spreads dispatches across them; the
// service only fans out lifecycle calls and aggregates health.
type DefaultWorkerService struct {
	config       WorkerServiceConfig
	consumers    map[string]inbound.Consumer
	running      bool
	startTime    time.Time
	mu           sync.RWMutex
	healthStatus inbound.WorkerServiceHealthStatus
}

// NewDefaultWorkerService creates a worker service without any consumers.
// Consumers are registered with AddConsumer before Start.
func NewDefaultWorkerService(serviceConfig WorkerServiceConfig) *DefaultWorkerService {
	now := time.Now()
	return &DefaultWorkerService{
		config:    serviceConfig,
		consumers: make(map[string]inbound.Consumer),
		healthStatus: inbound.WorkerServiceHealthStatus{
			IsRunning:       false,
			TotalConsumers:  0,
			LastHealthCheck: now,
		},
	}
}

// AddConsumer registers a consumer. Replicas share a durable name, so the
// key carries a registration index to keep them distinct.
func (w *DefaultWorkerService) AddConsumer(consumer inbound.Consumer) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if consumer == nil {
		return errors.New("consumer cannot be nil")
	}
	if w.running {
		return errors.New("cannot add consumer while the service is running")
	}

	id := fmt.Sprintf("%s-%d", consumer.DurableName(), len(w.consumers))
	w.consumers[id] = consumer
	return nil
}

// RemoveConsumer removes a consumer from the worker service.
func (w *DefaultWorkerService) RemoveConsumer(consumerID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return errors.New("cannot remove consumer while the service is running")
	}
	if _, exists := w.consumers[consumerID]; !exists {
		return fmt.Errorf("consumer %s not found", consumerID)
	}

	delete(w.consumers, consumerID)
	return nil
}

// Start brings up every registered consumer. When any consumer fails to
// start, the ones already started are stopped again and the error is
// returned.
func (w *DefaultWorkerService) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("worker service already running")
	}
	if len(w.consumers) == 0 {
		w.mu.Unlock()
		return errors.New("worker service has no consumers")
	}
	started := make([]inbound.Consumer, 0, len(w.consumers))
	snapshot := make(map[string]inbound.Consumer, len(w.consumers))
	for id, consumer := range w.consumers {
		snapshot[id] = consumer
	}
	w.mu.Unlock()

	var startedMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for id, consumer := range snapshot {
		g.Go(func() error {
			if err := consumer.Start(gctx); err != nil {
				return fmt.Errorf("consumer %s: %w", id, err)
			}
			startedMu.Lock()
			started = append(started, consumer)
			startedMu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, consumer := range started {
			if stopErr := consumer.Stop(ctx); stopErr != nil {
				slogger.WarnNoCtx("Failed to stop consumer during rollback",
					slogger.Field("error", stopErr.Error()))
			}
		}
		return fmt.Errorf("failed to start worker service: %w", err)
	}

	w.mu.Lock()
	w.running = true
	w.startTime = time.Now()
	w.healthStatus.IsRunning = true
	w.healthStatus.LastError = ""
	w.mu.Unlock()

	slogger.Info(ctx, "Worker service started", slogger.Fields2(
		"consumers", len(snapshot),
		"queue_group", w.config.QueueGroup,
	))
	return nil
}

// Stop shuts down every consumer, bounded by the shutdown timeout when the
// caller's context carries no deadline of its own.
func (w *DefaultWorkerService) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.healthStatus.IsRunning = false
	snapshot := make([]inbound.Consumer, 0, len(w.consumers))
	for _, consumer := range w.consumers {
		snapshot = append(snapshot, consumer)
	}
	w.mu.Unlock()

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && w.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.ShutdownTimeout)
		defer cancel()
	}

	var g errgroup.Group
	for _, consumer := range snapshot {
		g.Go(func() error {
			return consumer.Stop(ctx)
		})
	}

	if err := g.Wait(); err != nil {
		w.mu.Lock()
		w.healthStatus.LastError = err.Error()
		w.mu.Unlock()
		return fmt.Errorf("worker service shutdown: %w", err)
	}

	slogger.InfoNoCtx("Worker service stopped", slogger.Field("consumers", len(snapshot)))
	return nil
}

// Health returns the current health status of the worker service.
func (w *DefaultWorkerService) Health() inbound.WorkerServiceHealthStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		w.healthStatus.ServiceUptime = time.Since(w.startTime)
	}
	w.healthStatus.LastHealthCheck = time.Now()
	w.healthStatus.TotalConsumers = len(w.consumers)

	details := make([]inbound.ConsumerHealthStatus, 0, len(w.consumers))
	healthyCount := 0
	for _, consumer := range w.consumers {
		health := consumer.Health()
		details = append(details, health)
		if health.IsRunning && health.IsConnected {
			healthyCount++
		}
	}
	w.healthStatus.HealthyConsumers = healthyCount
	w.healthStatus.ConsumerHealthDetails = details

	return w.healthStatus
}
