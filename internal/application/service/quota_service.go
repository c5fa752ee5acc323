package service

import (
	"context"
	"fmt"

	"github.com/opennotes-ai/opennotes-sub006/internal/application/common/slogger"
	"github.com/opennotes-ai/opennotes-sub006/internal/domain/entity"
	domainerrors "github.com/opennotes-ai/opennotes-sub006/internal/domain/errors/domain"
	"github.com/opennotes-ai/opennotes-sub006/internal/domain/valueobject"
	"github.com/opennotes-ai/opennotes-sub006/internal/port/inbound"
	"github.com/opennotes-ai/opennotes-sub006/internal/port/outbound"

	"github.com/google/uuid"
)

// DefaultQuotaService implements the quota inbound port. Reads go through
// the snapshot cache; admin writes go straight to the ledger and drop the
// stale snapshot so the next read refetches.
type DefaultQuotaService struct {
	ledger    outbound.QuotaLedger
	snapshots outbound.QuotaSnapshotCache
	usage     outbound.UsageRecordReader
}

var _ inbound.QuotaService = (*DefaultQuotaService)(nil)

// NewDefaultQuotaService creates a quota service over the given
// collaborators.
func NewDefaultQuotaService(
	ledger outbound.QuotaLedger,
	snapshots outbound.QuotaSnapshotCache,
	usage outbound.UsageRecordReader,
) *DefaultQuotaService {
	return &DefaultQuotaService{
		ledger:    ledger,
		snapshots: snapshots,
		usage:     usage,
	}
}

// GetQuotaStatus returns the quota row through the snapshot cache,
// optionally with the newest usage records appended.
func (s *DefaultQuotaService) GetQuotaStatus(
	ctx context.Context, tenantID uuid.UUID, kind string, usageLimit int,
) (*inbound.QuotaStatusResponse, error) {
	resourceKind, err := parseQuotaTarget(tenantID, kind)
	if err != nil {
		return nil, err
	}

	quota, err := s.snapshots.Get(ctx, tenantID, resourceKind.String())
	if err != nil {
		return nil, err
	}

	response := quotaStatusResponse(quota)
	if usageLimit <= 0 {
		return response, nil
	}

	records, err := s.usage.ListRecent(ctx, tenantID, resourceKind, usageLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage records: %w", err)
	}
	response.RecentUsage = make([]inbound.UsageEntry, 0, len(records))
	for _, record := range records {
		entry := inbound.UsageEntry{
			UnitsUsed:  record.UnitsUsed(),
			Label:      record.Label(),
			Success:    record.Success(),
			OccurredAt: record.OccurredAt(),
		}
		if msg := record.ErrorMessage(); msg != nil {
			entry.ErrorMessage = *msg
		}
		response.RecentUsage = append(response.RecentUsage, entry)
	}

	return response, nil
}

// EnableResource creates or reconfigures the quota row and enables it.
func (s *DefaultQuotaService) EnableResource(
	ctx context.Context, request inbound.EnableResourceRequest,
) (*inbound.QuotaStatusResponse, error) {
	resourceKind, err := parseQuotaTarget(request.TenantID, request.Kind)
	if err != nil {
		return nil, err
	}

	quota, err := s.ledger.EnableResource(ctx, request.TenantID, resourceKind, request.Limits)
	if err != nil {
		return nil, fmt.Errorf("failed to enable resource quota: %w", err)
	}
	s.snapshots.Invalidate(request.TenantID, resourceKind.String())

	slogger.Info(ctx, "Resource quota enabled", slogger.Fields3(
		"tenant_id", request.TenantID.String(),
		"resource_kind", resourceKind.String(),
		"revision", quota.Revision(),
	))

	return quotaStatusResponse(quota), nil
}

// DisableResource turns the resource off and drops its snapshot.
func (s *DefaultQuotaService) DisableResource(
	ctx context.Context, tenantID uuid.UUID, kind string,
) error {
	resourceKind, err := parseQuotaTarget(tenantID, kind)
	if err != nil {
		return err
	}

	if err := s.ledger.DisableResource(ctx, tenantID, resourceKind); err != nil {
		return fmt.Errorf("failed to disable resource quota: %w", err)
	}
	s.snapshots.Invalidate(tenantID, resourceKind.String())

	slogger.Info(ctx, "Resource quota disabled", slogger.Fields2(
		"tenant_id", tenantID.String(),
		"resource_kind", resourceKind.String(),
	))

	return nil
}

func parseQuotaTarget(tenantID uuid.UUID, kind string) (valueobject.ResourceKind, error) {
	if tenantID == uuid.Nil {
		return "", fmt.Errorf("%w: tenant id is required", domainerrors.ErrInvalidInput)
	}
	resourceKind, err := valueobject.NewResourceKind(kind)
	if err != nil {
		return "", fmt.Errorf("%w: %s", domainerrors.ErrInvalidInput, kind)
	}
	return resourceKind, nil
}

func quotaStatusResponse(quota *entity.ResourceQuota) *inbound.QuotaStatusResponse {
	return &inbound.QuotaStatusResponse{
		TenantID:           quota.TenantID(),
		ResourceKind:       quota.ResourceKind().String(),
		Enabled:            quota.Enabled(),
		Limits:             quota.Limits(),
		Used:               quota.Used(),
		Remaining:          quota.Remaining(),
		DailyPeriodStart:   quota.DailyPeriodStart(),
		MonthlyPeriodStart: quota.MonthlyPeriodStart(),
		Revision:           quota.Revision(),
	}
}
