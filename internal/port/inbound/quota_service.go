package inbound

import (
	"context"
	"time"

	"github.com/opennotes-ai/opennotes-sub006/internal/domain/entity"

	"github.com/google/uuid"
)

// QuotaStatusResponse is the reporting view of one quota row. It comes
// from the snapshot cache and may trail the durable row by up to the
// snapshot TTL; admission decisions never consult it.
type QuotaStatusResponse struct {
	TenantID           uuid.UUID             `json:"tenant_id"`
	ResourceKind       string                `json:"resource_kind"`
	Enabled            bool                  `json:"enabled"`
	Limits             entity.QuotaLimits    `json:"limits"`
	Used               entity.QuotaUsage     `json:"used"`
	Remaining          entity.QuotaRemaining `json:"remaining"`
	DailyPeriodStart   time.Time             `json:"daily_period_start"`
	MonthlyPeriodStart time.Time             `json:"monthly_period_start"`
	Revision           int64                 `json:"revision"`
	RecentUsage        []UsageEntry          `json:"recent_usage,omitempty"`
}

// UsageEntry is one row of the append-only metering trail.
type UsageEntry struct {
	UnitsUsed    int64     `json:"units_used"`
	Label        string    `json:"label,omitempty"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// EnableResourceRequest upserts a quota row with the given ceilings.
// Limits <= 0 leave that counter unenforced.
type EnableResourceRequest struct {
	TenantID uuid.UUID          `json:"tenant_id"`
	Kind     string             `json:"kind"`
	Limits   entity.QuotaLimits `json:"limits"`
}

// QuotaService defines the inbound port for quota reporting and
// administration.
type QuotaService interface {
	// GetQuotaStatus returns the quota row, read through the snapshot
	// cache. A usageLimit > 0 additionally fetches that many of the
	// newest usage records.
	GetQuotaStatus(ctx context.Context, tenantID uuid.UUID, kind string, usageLimit int) (*QuotaStatusResponse, error)

	// EnableResource creates or reconfigures the quota row and enables it.
	EnableResource(ctx context.Context, request EnableResourceRequest) (*QuotaStatusResponse, error)

	// DisableResource turns the resource off; admissions are denied until
	// it is re-enabled.
	DisableResource(ctx context.Context, tenantID uuid.UUID, kind string) error
}
