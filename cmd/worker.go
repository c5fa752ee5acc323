package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opennotes-ai/opennotes-sub006/internal/adapter/inbound/messaging"
	"github.com/opennotes-ai/opennotes-sub006/internal/adapter/outbound/cache"
	dispatch "github.com/opennotes-ai/opennotes-sub006/internal/adapter/outbound/messaging"
	"github.com/opennotes-ai/opennotes-sub006/internal/adapter/outbound/repository"
	"github.com/opennotes-ai/opennotes-sub006/internal/adapter/outbound/scoring"
	"github.com/opennotes-ai/opennotes-sub006/internal/application/common/slogger"
	"github.com/opennotes-ai/opennotes-sub006/internal/application/registry"
	"github.com/opennotes-ai/opennotes-sub006/internal/application/service"
	"github.com/opennotes-ai/opennotes-sub006/internal/application/worker"
	"github.com/opennotes-ai/opennotes-sub006/internal/config"
	"github.com/opennotes-ai/opennotes-sub006/internal/port/outbound"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// Consumer tuning. Long jobs are kept alive past AckWait by in-progress
// heartbeats, so AckWait only bounds how fast a dead worker's dispatch is
// redelivered.
const (
	consumerAckWait       = 30 * time.Second
	consumerMaxDeliver    = 5
	consumerMaxAckPending = 64
)

// newWorkerCmd creates and returns the worker command.
func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Start the batch worker service",
		Long: `Start the worker service that runs dispatched batch jobs.

The worker service:
- Consumes job dispatches from NATS JetStream in a shared queue group
- Claims candidate batches under row locks so workers never collide
- Tracks live progress, idempotency bitmaps, and error summaries in Redis
- Meters scoring runs against per-tenant quotas before each model call

Configuration is loaded from config files and environment variables.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorkerService(cmd.Context())
		},
	}
}

// runWorkerService builds the worker fleet and runs it until a shutdown
// signal arrives.
func runWorkerService(ctx context.Context) error {
	cfg := GetConfig()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	slogger.InfoNoCtx("Starting batch worker service", slogger.Fields{
		"concurrency": cfg.Worker.Concurrency,
		"queue_group": cfg.Worker.QueueGroup,
	})

	pool, err := setupDatabaseConnection(cfg)
	if err != nil {
		return fmt.Errorf("failed to create database connection pool: %w", err)
	}
	defer pool.Close()

	if poolMetrics := repository.NewDatabaseHealthChecker(pool).GetMetrics(ctx); poolMetrics != nil {
		slogger.InfoNoCtx("Database pool ready", slogger.Fields{
			"total_connections": poolMetrics.TotalConnections,
			"response_time":     poolMetrics.ResponseTime.String(),
		})
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer func() { _ = redisClient.Close() }()

	workerService, err := buildWorkerService(cfg, pool, redisClient)
	if err != nil {
		return fmt.Errorf("failed to build worker service: %w", err)
	}

	if err := workerService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker service: %w", err)
	}
	slogger.InfoNoCtx("Worker service started", nil)

	<-ctx.Done()
	slogger.InfoNoCtx("Received shutdown signal, draining consumers", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer cancel()
	if err := workerService.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("worker service shutdown: %w", err)
	}

	slogger.InfoNoCtx("Worker service shutdown complete", nil)
	return nil
}

// setupDatabaseConnection opens the pgx pool from configuration.
func setupDatabaseConnection(cfg *config.Config) (*pgxpool.Pool, error) {
	return repository.NewDatabaseConnection(repository.DatabaseConfig{
		Host:           cfg.Database.Host,
		Port:           cfg.Database.Port,
		Database:       cfg.Database.Name,
		Username:       cfg.Database.User,
		Password:       cfg.Database.Password,
		Schema:         cfg.Database.Schema,
		MaxConnections: cfg.Database.MaxConnections,
		MinConnections: cfg.Database.MaxIdleConnections,
		SSLMode:        cfg.Database.SSLMode,
	})
}

// buildWorkerService assembles the claim orchestrator and its consumer
// fleet. All consumers bind the same durable, so dispatches spread across
// replicas without duplication.
func buildWorkerService(
	cfg *config.Config, pool *pgxpool.Pool, redisClient *redis.Client,
) (*service.DefaultWorkerService, error) {
	jobs := repository.NewPostgreSQLBatchJobRepository(pool)
	candidates := repository.NewPostgreSQLCandidateRepository(pool)
	ledger := repository.NewPostgreSQLQuotaLedger(pool)
	transactor := repository.NewTransactionManager(pool)

	progress := cache.NewRedisProgressCache(redisClient, cfg.Redis.KeyTTL)
	idempotency := cache.NewRedisIdempotencyIndex(redisClient, cfg.Redis.KeyTTL)
	errorAggregator := cache.NewRedisErrorAggregator(redisClient, cfg.Redis.KeyTTL)

	handlers, err := buildHandlerRegistry(ledger)
	if err != nil {
		return nil, err
	}

	orchestrator := worker.NewBatchClaimOrchestrator(
		worker.OrchestratorConfig{
			PersistEvery:   int64(cfg.Worker.PersistEvery),
			IterationSlack: int64(cfg.Worker.IterationSlack),
		},
		jobs,
		candidates,
		transactor,
		handlers,
		progress,
		idempotency,
		errorAggregator,
		buildBatchMetrics(),
	)

	workerService := service.NewDefaultWorkerService(service.WorkerServiceConfig{
		Concurrency:     cfg.Worker.Concurrency,
		QueueGroup:      cfg.Worker.QueueGroup,
		JobTimeout:      cfg.Worker.JobTimeout,
		ShutdownTimeout: cfg.Worker.ShutdownTimeout,
	})

	consumerConfig := messaging.ConsumerConfig{
		StreamName:    dispatch.JobStreamName,
		Subject:       dispatch.JobStartSubject,
		QueueGroup:    cfg.Worker.QueueGroup,
		DurableName:   cfg.Worker.QueueGroup + "-durable",
		AckWait:       consumerAckWait,
		MaxDeliver:    consumerMaxDeliver,
		MaxAckPending: consumerMaxAckPending,
		JobTimeout:    cfg.Worker.JobTimeout,
	}
	for range cfg.Worker.Concurrency {
		consumer, err := messaging.NewNATSConsumer(consumerConfig, cfg.NATS, orchestrator)
		if err != nil {
			return nil, err
		}
		if err := workerService.AddConsumer(consumer); err != nil {
			return nil, err
		}
	}

	return workerService, nil
}

// buildHandlerRegistry registers one unit handler per job kind.
func buildHandlerRegistry(ledger outbound.QuotaLedger) (*registry.Registry, error) {
	handlers := registry.New()
	for _, handler := range []registry.UnitHandler{
		worker.NewApprovalHandler(),
		worker.NewScanHandler(scoring.NewKeywordScanner()),
		worker.NewScoringHandler(scoring.NewHeuristicScorer(), ledger),
	} {
		if err := handlers.Register(handler); err != nil {
			return nil, err
		}
	}
	return handlers, nil
}

// buildBatchMetrics sets up the OpenTelemetry instruments. Metrics are
// optional: a failure disables them rather than blocking the worker.
func buildBatchMetrics() *worker.BatchMetrics {
	workerID, err := os.Hostname()
	if err != nil || workerID == "" {
		workerID = uuid.New().String()
	}

	metrics, err := worker.NewBatchMetrics(workerID)
	if err != nil {
		slogger.WarnNoCtx("Batch metrics disabled", slogger.Fields{"error": err.Error()})
		return nil
	}
	return metrics
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	rootCmd.AddCommand(newWorkerCmd())
}
