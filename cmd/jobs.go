package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/opennotes-ai/opennotes-sub006/internal/adapter/outbound/cache"
	dispatch "github.com/opennotes-ai/opennotes-sub006/internal/adapter/outbound/messaging"
	"github.com/opennotes-ai/opennotes-sub006/internal/adapter/outbound/repository"
	"github.com/opennotes-ai/opennotes-sub006/internal/application/service"
	"github.com/opennotes-ai/opennotes-sub006/internal/domain/valueobject"
	"github.com/opennotes-ai/opennotes-sub006/internal/port/inbound"
	"github.com/opennotes-ai/opennotes-sub006/internal/port/outbound"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	startCommandTimeout = 30 * time.Second
	queryCommandTimeout = 10 * time.Second
)

// jobSpecFile is the YAML shape accepted by jobs start --spec. Explicit
// flags override values from the file.
type jobSpecFile struct {
	Kind      string `yaml:"kind"`
	TenantID  string `yaml:"tenant_id"`
	Limit     int64  `yaml:"limit"`
	BatchSize int64  `yaml:"batch_size"`
}

// newJobsCmd groups the batch job operations: start, status and list.
func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Start and inspect batch jobs over note candidates",
		Long: `Start and inspect batch jobs over note candidates.

A batch job walks the candidates matching its kind in stable order, claiming
them in batches. Supported kinds: ` + strings.Join(jobKindNames(), ", ") + `.`,
	}

	cmd.AddCommand(newJobsStartCmd())
	cmd.AddCommand(newJobsStatusCmd())
	cmd.AddCommand(newJobsListCmd())

	return cmd
}

// newJobsStartCmd implements: opennotes jobs start --kind scoring_run
// [--tenant uuid] [--limit n] [--batch-size n] [--spec job.yaml].
func newJobsStartCmd() *cobra.Command {
	var kindFlag string
	var tenantFlag string
	var limitFlag int64
	var batchSizeFlag int64
	var specPath string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a batch job and dispatch it to the workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			request, err := assembleStartRequest(
				cmd, specPath, kindFlag, tenantFlag, limitFlag, batchSizeFlag,
			)
			if err != nil {
				return err
			}
			return runJobsStart(cmd.Context(), request)
		},
	}

	cmd.Flags().StringVar(&kindFlag, "kind", "", "Job kind (required unless --spec provides one)")
	cmd.Flags().StringVar(&tenantFlag, "tenant", "", "Restrict the job to one tenant (UUID)")
	cmd.Flags().Int64Var(&limitFlag, "limit", 0, "Cap on units to process (0 = all matching)")
	cmd.Flags().Int64Var(&batchSizeFlag, "batch-size", 0, "Units claimed per iteration (0 = default)")
	cmd.Flags().StringVar(&specPath, "spec", "", "Optional YAML file with job parameters")

	return cmd
}

// assembleStartRequest merges the optional spec file with flags. Flags that
// were set explicitly win over file values.
func assembleStartRequest(
	cmd *cobra.Command,
	specPath, kindFlag, tenantFlag string,
	limitFlag, batchSizeFlag int64,
) (inbound.StartJobRequest, error) {
	var request inbound.StartJobRequest

	tenantValue := tenantFlag
	if specPath != "" {
		data, err := os.ReadFile(specPath)
		if err != nil {
			return request, fmt.Errorf("read job spec: %w", err)
		}
		var spec jobSpecFile
		if err := yaml.Unmarshal(data, &spec); err != nil {
			return request, fmt.Errorf("parse job spec: %w", err)
		}
		request.Kind = spec.Kind
		request.Limit = spec.Limit
		request.BatchSize = spec.BatchSize
		if spec.TenantID != "" {
			tenantValue = spec.TenantID
		}
	}

	if cmd.Flags().Changed("kind") {
		request.Kind = kindFlag
	}
	if cmd.Flags().Changed("tenant") {
		tenantValue = tenantFlag
	}
	if cmd.Flags().Changed("limit") {
		request.Limit = limitFlag
	}
	if cmd.Flags().Changed("batch-size") {
		request.BatchSize = batchSizeFlag
	}

	if strings.TrimSpace(request.Kind) == "" {
		return request, errors.New("--kind is required (or provide one via --spec)")
	}
	if tenantValue != "" {
		tenantID, err := uuid.Parse(tenantValue)
		if err != nil {
			return request, fmt.Errorf("invalid tenant id %q: %w", tenantValue, err)
		}
		request.TenantID = &tenantID
	}

	return request, nil
}

func runJobsStart(parent context.Context, request inbound.StartJobRequest) error {
	ctx, cancel := context.WithTimeout(parent, startCommandTimeout)
	defer cancel()

	jobService, cleanup, err := buildJobService(ctx, true)
	if err != nil {
		return err
	}
	defer cleanup()

	response, err := jobService.StartJob(ctx, request)
	if err != nil {
		return err
	}
	return printJSON(response)
}

// newJobsStatusCmd implements: opennotes jobs status <job-id>.
func newJobsStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job's durable state merged with live progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id %q: %w", args[0], err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), queryCommandTimeout)
			defer cancel()

			jobService, cleanup, err := buildJobService(ctx, false)
			if err != nil {
				return err
			}
			defer cleanup()

			response, err := jobService.GetJobStatus(ctx, jobID)
			if err != nil {
				return err
			}
			return printJSON(response)
		},
	}
}

// newJobsListCmd implements: opennotes jobs list [--kind] [--status]
// [--limit] [--offset].
func newJobsListCmd() *cobra.Command {
	var query inbound.JobListQuery

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List batch jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), queryCommandTimeout)
			defer cancel()

			jobService, cleanup, err := buildJobService(ctx, false)
			if err != nil {
				return err
			}
			defer cleanup()

			response, err := jobService.ListJobs(ctx, query)
			if err != nil {
				return err
			}
			return printJSON(response)
		},
	}

	cmd.Flags().StringVar(&query.Kind, "kind", "", "Filter by job kind")
	cmd.Flags().StringVar(&query.Status, "status", "", "Filter by job status")
	cmd.Flags().IntVar(&query.Limit, "limit", 20, "Maximum jobs to return")
	cmd.Flags().IntVar(&query.Offset, "offset", 0, "Offset into the result set")

	return cmd
}

// buildJobService wires a job service from configuration. Read-only
// commands skip the NATS dispatcher so status and list work while the
// queue is down.
func buildJobService(ctx context.Context, withDispatch bool) (inbound.JobService, func(), error) {
	cfg := GetConfig()

	pool, err := setupDatabaseConnection(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	cleanup := func() {
		_ = redisClient.Close()
		pool.Close()
	}

	var dispatcher outbound.JobDispatcher
	if withDispatch {
		natsDispatcher, err := dispatch.NewNATSJobDispatcher(cfg.NATS)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to create job dispatcher: %w", err)
		}
		if err := natsDispatcher.Connect(); err != nil {
			cleanup()
			return nil, nil, err
		}
		if err := natsDispatcher.EnsureStream(); err != nil {
			_ = natsDispatcher.Disconnect()
			cleanup()
			return nil, nil, err
		}

		dispatcher = natsDispatcher
		connCleanup := cleanup
		cleanup = func() {
			_ = natsDispatcher.Disconnect()
			connCleanup()
		}
	}

	jobService := service.NewDefaultJobService(
		repository.NewPostgreSQLBatchJobRepository(pool),
		repository.NewPostgreSQLCandidateRepository(pool),
		dispatcher,
		cache.NewRedisProgressCache(redisClient, cfg.Redis.KeyTTL),
		cache.NewRedisErrorAggregator(redisClient, cfg.Redis.KeyTTL),
	)
	return jobService, cleanup, nil
}

func jobKindNames() []string {
	kinds := valueobject.AllJobKinds()
	names := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		names = append(names, kind.String())
	}
	sort.Strings(names)
	return names
}

func printJSON(payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, _ = os.Stdout.Write(data)
	_, _ = os.Stdout.WriteString("\n")
	return nil
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	rootCmd.AddCommand(newJobsCmd())
}
