package outbound

import (
	"context"

	"github.com/opennotes-ai/opennotes-sub006/internal/domain/entity"
	"github.com/opennotes-ai/opennotes-sub006/internal/domain/valueobject"

	"github.com/google/uuid"
)

// QuotaLedger defines the outbound port for durable quota accounting. A
// single CheckAndRecord call is one atomic admission: the check and the
// counter mutation happen under the same row lock, so concurrent callers
// can never over-admit. Limit refusals come back as decisions; the error
// return is reserved for infrastructure failures.
type QuotaLedger interface {
	// CheckAndRecord admits one request consuming units against the
	// tenant's quota for the resource kind. On allow the usage is durable
	// when the call returns. Label attributes the usage, typically a job ID.
	CheckAndRecord(
		ctx context.Context,
		tenantID uuid.UUID,
		kind valueobject.ResourceKind,
		units int64,
		label string,
	) (*entity.QuotaDecision, error)

	// RecordFailure appends a failed usage record without touching any
	// counter, for attempts that were admitted but failed downstream.
	RecordFailure(
		ctx context.Context,
		tenantID uuid.UUID,
		kind valueobject.ResourceKind,
		units int64,
		label string,
		errorMessage string,
	) error

	// EnableResource upserts the quota row with the given limits and
	// enables it.
	EnableResource(
		ctx context.Context,
		tenantID uuid.UUID,
		kind valueobject.ResourceKind,
		limits entity.QuotaLimits,
	) (*entity.ResourceQuota, error)

	// DisableResource turns the resource off; subsequent admissions are
	// denied with reason resource_disabled.
	DisableResource(ctx context.Context, tenantID uuid.UUID, kind valueobject.ResourceKind) error

	// GetQuota returns the current quota row.
	GetQuota(ctx context.Context, tenantID uuid.UUID, kind valueobject.ResourceKind) (*entity.ResourceQuota, error)
}

// UsageRecordReader exposes the append-only metering trail for reporting.
type UsageRecordReader interface {
	ListRecent(
		ctx context.Context,
		tenantID uuid.UUID,
		kind valueobject.ResourceKind,
		limit int,
	) ([]*entity.UsageRecord, error)
}
