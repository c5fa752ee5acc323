package cmd

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/opennotes-ai/opennotes-sub006/internal/adapter/outbound/cache"
	"github.com/opennotes-ai/opennotes-sub006/internal/adapter/outbound/repository"
	"github.com/opennotes-ai/opennotes-sub006/internal/application/service"
	"github.com/opennotes-ai/opennotes-sub006/internal/domain/entity"
	"github.com/opennotes-ai/opennotes-sub006/internal/domain/valueobject"
	"github.com/opennotes-ai/opennotes-sub006/internal/port/inbound"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// newQuotaCmd groups quota administration: show, enable and disable.
func newQuotaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Inspect and administer tenant resource quotas",
		Long: `Inspect and administer per-tenant resource quotas.

Each quota row keys on (tenant, resource kind) and carries daily and monthly
ceilings for requests and units. Metered resource kinds: ` +
			strings.Join(resourceKindNames(), ", ") + `.`,
	}

	cmd.AddCommand(newQuotaShowCmd())
	cmd.AddCommand(newQuotaEnableCmd())
	cmd.AddCommand(newQuotaDisableCmd())

	return cmd
}

// newQuotaShowCmd implements: opennotes quota show --tenant uuid
// --resource llm_tokens [--usage n].
func newQuotaShowCmd() *cobra.Command {
	var tenantFlag string
	var resourceFlag string
	var usageLimit int

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a tenant's quota limits, usage and headroom",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, kind, err := quotaTarget(tenantFlag, resourceFlag)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), queryCommandTimeout)
			defer cancel()

			quotaService, cleanup, err := buildQuotaService()
			if err != nil {
				return err
			}
			defer cleanup()

			response, err := quotaService.GetQuotaStatus(ctx, tenantID, kind, usageLimit)
			if err != nil {
				return err
			}
			return printJSON(response)
		},
	}

	cmd.Flags().StringVar(&tenantFlag, "tenant", "", "Tenant owning the quota (UUID, required)")
	cmd.Flags().StringVar(&resourceFlag, "resource", "", "Metered resource kind (required)")
	cmd.Flags().IntVar(&usageLimit, "usage", 0, "Include this many recent usage records")

	return cmd
}

// newQuotaEnableCmd implements: opennotes quota enable --tenant uuid
// --resource llm_tokens [--daily-requests n] [--monthly-requests n]
// [--daily-units n] [--monthly-units n].
func newQuotaEnableCmd() *cobra.Command {
	var tenantFlag string
	var resourceFlag string
	var limits entity.QuotaLimits

	cmd := &cobra.Command{
		Use:   "enable",
		Short: "Enable a resource for a tenant and set its limits",
		Long: `Enable a resource for a tenant and set its limits.

Creates the quota row when missing and reconfigures it otherwise. A limit of
0 leaves that counter unenforced; accumulated usage is kept either way.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, kind, err := quotaTarget(tenantFlag, resourceFlag)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), queryCommandTimeout)
			defer cancel()

			quotaService, cleanup, err := buildQuotaService()
			if err != nil {
				return err
			}
			defer cleanup()

			response, err := quotaService.EnableResource(ctx, inbound.EnableResourceRequest{
				TenantID: tenantID,
				Kind:     kind,
				Limits:   limits,
			})
			if err != nil {
				return err
			}
			return printJSON(response)
		},
	}

	cmd.Flags().StringVar(&tenantFlag, "tenant", "", "Tenant owning the quota (UUID, required)")
	cmd.Flags().StringVar(&resourceFlag, "resource", "", "Metered resource kind (required)")
	cmd.Flags().Int64Var(&limits.DailyRequests, "daily-requests", 0, "Daily request ceiling (0 = unlimited)")
	cmd.Flags().Int64Var(&limits.MonthlyRequests, "monthly-requests", 0, "Monthly request ceiling (0 = unlimited)")
	cmd.Flags().Int64Var(&limits.DailyUnits, "daily-units", 0, "Daily unit ceiling (0 = unlimited)")
	cmd.Flags().Int64Var(&limits.MonthlyUnits, "monthly-units", 0, "Monthly unit ceiling (0 = unlimited)")

	return cmd
}

// newQuotaDisableCmd implements: opennotes quota disable --tenant uuid
// --resource llm_tokens.
func newQuotaDisableCmd() *cobra.Command {
	var tenantFlag string
	var resourceFlag string

	cmd := &cobra.Command{
		Use:   "disable",
		Short: "Disable a resource for a tenant",
		Long: `Disable a resource for a tenant.

Subsequent admissions are denied with reason resource_disabled until the
resource is re-enabled. Limits and accumulated usage are kept.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, kind, err := quotaTarget(tenantFlag, resourceFlag)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), queryCommandTimeout)
			defer cancel()

			quotaService, cleanup, err := buildQuotaService()
			if err != nil {
				return err
			}
			defer cleanup()

			if err := quotaService.DisableResource(ctx, tenantID, kind); err != nil {
				return err
			}
			response, err := quotaService.GetQuotaStatus(ctx, tenantID, kind, 0)
			if err != nil {
				return err
			}
			return printJSON(response)
		},
	}

	cmd.Flags().StringVar(&tenantFlag, "tenant", "", "Tenant owning the quota (UUID, required)")
	cmd.Flags().StringVar(&resourceFlag, "resource", "", "Metered resource kind (required)")

	return cmd
}

// quotaTarget validates the tenant and resource flags shared by the quota
// subcommands.
func quotaTarget(tenantFlag, resourceFlag string) (uuid.UUID, string, error) {
	if strings.TrimSpace(tenantFlag) == "" {
		return uuid.Nil, "", errors.New("--tenant is required")
	}
	tenantID, err := uuid.Parse(tenantFlag)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("invalid tenant id %q: %w", tenantFlag, err)
	}
	if strings.TrimSpace(resourceFlag) == "" {
		return uuid.Nil, "", errors.New("--resource is required")
	}
	return tenantID, resourceFlag, nil
}

// buildQuotaService wires the quota service from configuration. Quota
// administration only needs PostgreSQL; Redis and NATS stay out of it.
func buildQuotaService() (inbound.QuotaService, func(), error) {
	cfg := GetConfig()

	pool, err := setupDatabaseConnection(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}

	ledger := repository.NewPostgreSQLQuotaLedger(pool)
	quotaService := service.NewDefaultQuotaService(
		ledger,
		cache.NewInMemoryQuotaSnapshotCache(ledger, cfg.Quota.SnapshotCacheSize, cfg.Quota.SnapshotTTL),
		repository.NewPostgreSQLUsageRecordRepository(pool),
	)
	return quotaService, pool.Close, nil
}

func resourceKindNames() []string {
	kinds := valueobject.AllResourceKinds()
	names := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		names = append(names, kind.String())
	}
	sort.Strings(names)
	return names
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	rootCmd.AddCommand(newQuotaCmd())
}
