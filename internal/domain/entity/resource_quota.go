package entity

import (
	"time"

	"github.com/opennotes-ai/opennotes-sub006/internal/domain/errors/domain"
	"github.com/opennotes-ai/opennotes-sub006/internal/domain/valueobject"

	"github.com/google/uuid"
)

// UnlimitedQuota marks a limit as unenforced. Any limit <= 0 is treated
// as unlimited.
const UnlimitedQuota int64 = 0

// QuotaLimits holds the four configurable ceilings of a quota row.
// Requests count calls to the ledger; units count the metered amount a
// call consumes (tokens, scans). A value <= 0 disables enforcement for
// that counter.
type QuotaLimits struct {
	DailyRequests   int64 `json:"daily_requests"`
	MonthlyRequests int64 `json:"monthly_requests"`
	DailyUnits      int64 `json:"daily_units"`
	MonthlyUnits    int64 `json:"monthly_units"`
}

// QuotaUsage holds the four accumulated counters of a quota row.
type QuotaUsage struct {
	DailyRequests   int64 `json:"daily_requests"`
	MonthlyRequests int64 `json:"monthly_requests"`
	DailyUnits      int64 `json:"daily_units"`
	MonthlyUnits    int64 `json:"monthly_units"`
}

// QuotaRemaining reports headroom per counter. Unlimited counters report
// -1.
type QuotaRemaining struct {
	DailyRequests   int64 `json:"daily_requests"`
	MonthlyRequests int64 `json:"monthly_requests"`
	DailyUnits      int64 `json:"daily_units"`
	MonthlyUnits    int64 `json:"monthly_units"`
}

// QuotaDecision is the outcome of a quota check. Allowed means the usage
// was recorded; otherwise Reason and Dimension identify the first limit
// that refused the request. Limit refusals are decisions, never errors.
type QuotaDecision struct {
	Allowed   bool
	Reason    valueobject.DenialReason
	Dimension valueobject.QuotaDimension
	Revision  int64
	Remaining QuotaRemaining
}

// ResourceQuota tracks configured limits and accumulated usage for one
// (tenant, resource kind) pair. All period math is UTC calendar aligned.
// The entity holds no locks; callers serialize access, in production via
// a row lock held for the duration of the check.
type ResourceQuota struct {
	tenantID           uuid.UUID
	resourceKind       valueobject.ResourceKind
	enabled            bool
	limits             QuotaLimits
	used               QuotaUsage
	dailyPeriodStart   time.Time
	monthlyPeriodStart time.Time
	revision           int64
	createdAt          time.Time
	updatedAt          time.Time
}

// NewResourceQuota creates an enabled quota row with zero usage and
// periods anchored at now.
func NewResourceQuota(
	tenantID uuid.UUID,
	resourceKind valueobject.ResourceKind,
	limits QuotaLimits,
	now time.Time,
) (*ResourceQuota, error) {
	if tenantID == uuid.Nil {
		return nil, NewDomainError("tenant id is required", "INVALID_TENANT_ID")
	}
	if !resourceKind.IsValid() {
		return nil, NewDomainError("unknown resource kind: "+resourceKind.String(), "INVALID_RESOURCE_KIND")
	}

	now = now.UTC()
	return &ResourceQuota{
		tenantID:           tenantID,
		resourceKind:       resourceKind,
		enabled:            true,
		limits:             limits,
		dailyPeriodStart:   valueobject.QuotaPeriodDaily.StartOf(now),
		monthlyPeriodStart: valueobject.QuotaPeriodMonthly.StartOf(now),
		createdAt:          now,
		updatedAt:          now,
	}, nil
}

// RestoreResourceQuota creates a ResourceQuota entity from stored data.
func RestoreResourceQuota(
	tenantID uuid.UUID,
	resourceKind valueobject.ResourceKind,
	enabled bool,
	limits QuotaLimits,
	used QuotaUsage,
	dailyPeriodStart time.Time,
	monthlyPeriodStart time.Time,
	revision int64,
	createdAt time.Time,
	updatedAt time.Time,
) *ResourceQuota {
	return &ResourceQuota{
		tenantID:           tenantID,
		resourceKind:       resourceKind,
		enabled:            enabled,
		limits:             limits,
		used:               used,
		dailyPeriodStart:   dailyPeriodStart,
		monthlyPeriodStart: monthlyPeriodStart,
		revision:           revision,
		createdAt:          createdAt,
		updatedAt:          updatedAt,
	}
}

// TenantID returns the owning tenant.
func (q *ResourceQuota) TenantID() uuid.UUID {
	return q.tenantID
}

// ResourceKind returns the metered resource kind.
func (q *ResourceQuota) ResourceKind() valueobject.ResourceKind {
	return q.resourceKind
}

// Enabled reports whether the resource accepts usage at all.
func (q *ResourceQuota) Enabled() bool {
	return q.enabled
}

// Limits returns the configured ceilings.
func (q *ResourceQuota) Limits() QuotaLimits {
	return q.limits
}

// Used returns the accumulated counters for the current periods.
func (q *ResourceQuota) Used() QuotaUsage {
	return q.used
}

// DailyPeriodStart returns the start of the current daily window.
func (q *ResourceQuota) DailyPeriodStart() time.Time {
	return q.dailyPeriodStart
}

// MonthlyPeriodStart returns the start of the current monthly window.
func (q *ResourceQuota) MonthlyPeriodStart() time.Time {
	return q.monthlyPeriodStart
}

// Revision returns the change counter. It increments on every successful
// mutation and is an observability aid, not a concurrency mechanism.
func (q *ResourceQuota) Revision() int64 {
	return q.revision
}

// CreatedAt returns the creation timestamp.
func (q *ResourceQuota) CreatedAt() time.Time {
	return q.createdAt
}

// UpdatedAt returns the last update timestamp.
func (q *ResourceQuota) UpdatedAt() time.Time {
	return q.updatedAt
}

// Remaining computes the headroom per counter, -1 for unlimited.
func (q *ResourceQuota) Remaining() QuotaRemaining {
	return QuotaRemaining{
		DailyRequests:   remaining(q.limits.DailyRequests, q.used.DailyRequests),
		MonthlyRequests: remaining(q.limits.MonthlyRequests, q.used.MonthlyRequests),
		DailyUnits:      remaining(q.limits.DailyUnits, q.used.DailyUnits),
		MonthlyUnits:    remaining(q.limits.MonthlyUnits, q.used.MonthlyUnits),
	}
}

func remaining(limit, used int64) int64 {
	if limit <= UnlimitedQuota {
		return -1
	}
	r := limit - used
	if r < 0 {
		return 0
	}
	return r
}

// Rollover resets any counter whose period no longer contains now and
// advances the period start. It returns true when a reset happened.
// Rollover is idempotent for a given now.
func (q *ResourceQuota) Rollover(now time.Time) bool {
	now = now.UTC()
	rolled := false

	if !valueobject.QuotaPeriodDaily.Contains(q.dailyPeriodStart, now) {
		q.dailyPeriodStart = valueobject.QuotaPeriodDaily.StartOf(now)
		q.used.DailyRequests = 0
		q.used.DailyUnits = 0
		rolled = true
	}
	if !valueobject.QuotaPeriodMonthly.Contains(q.monthlyPeriodStart, now) {
		q.monthlyPeriodStart = valueobject.QuotaPeriodMonthly.StartOf(now)
		q.used.MonthlyRequests = 0
		q.used.MonthlyUnits = 0
		rolled = true
	}
	if rolled {
		q.updatedAt = now
	}
	return rolled
}

// Apply checks one request consuming units against the quota and, when
// allowed, records it. The check order is fixed: disabled, daily
// requests, monthly requests, daily units, monthly units; the first
// refusal wins and leaves the counters untouched. On allow all four
// counters advance and the revision increments exactly once.
func (q *ResourceQuota) Apply(now time.Time, units int64) (*QuotaDecision, error) {
	if units < 0 {
		return nil, NewDomainErrorWithCause("usage units must not be negative", "INVALID_UNITS", domain.ErrQuotaInvalidUnits)
	}

	now = now.UTC()
	q.Rollover(now)

	if !q.enabled {
		return q.deny(valueobject.DenialReasonResourceDisabled, valueobject.QuotaDimensionNone), nil
	}
	if exceeds(q.limits.DailyRequests, q.used.DailyRequests, 1) {
		return q.deny(valueobject.DenialReasonDailyLimitExceeded, valueobject.QuotaDimensionRequests), nil
	}
	if exceeds(q.limits.MonthlyRequests, q.used.MonthlyRequests, 1) {
		return q.deny(valueobject.DenialReasonMonthlyLimitExceeded, valueobject.QuotaDimensionRequests), nil
	}
	if exceeds(q.limits.DailyUnits, q.used.DailyUnits, units) {
		return q.deny(valueobject.DenialReasonDailyLimitExceeded, valueobject.QuotaDimensionUnits), nil
	}
	if exceeds(q.limits.MonthlyUnits, q.used.MonthlyUnits, units) {
		return q.deny(valueobject.DenialReasonMonthlyLimitExceeded, valueobject.QuotaDimensionUnits), nil
	}

	q.used.DailyRequests++
	q.used.MonthlyRequests++
	q.used.DailyUnits += units
	q.used.MonthlyUnits += units
	q.revision++
	q.updatedAt = now

	return &QuotaDecision{
		Allowed:   true,
		Revision:  q.revision,
		Remaining: q.Remaining(),
	}, nil
}

func exceeds(limit, used, delta int64) bool {
	return limit > UnlimitedQuota && used+delta > limit
}

func (q *ResourceQuota) deny(reason valueobject.DenialReason, dimension valueobject.QuotaDimension) *QuotaDecision {
	return &QuotaDecision{
		Allowed:   false,
		Reason:    reason,
		Dimension: dimension,
		Revision:  q.revision,
		Remaining: q.Remaining(),
	}
}

// SetLimits replaces the configured ceilings. Counters keep their values;
// a lowered limit takes effect on the next check.
func (q *ResourceQuota) SetLimits(limits QuotaLimits, now time.Time) {
	q.limits = limits
	q.revision++
	q.updatedAt = now.UTC()
}

// Enable turns the resource on.
func (q *ResourceQuota) Enable(now time.Time) {
	if q.enabled {
		return
	}
	q.enabled = true
	q.revision++
	q.updatedAt = now.UTC()
}

// Disable turns the resource off. Subsequent checks are denied with
// reason resource_disabled until re-enabled.
func (q *ResourceQuota) Disable(now time.Time) {
	if !q.enabled {
		return
	}
	q.enabled = false
	q.revision++
	q.updatedAt = now.UTC()
}
