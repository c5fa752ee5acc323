package entity

import (
	"time"

	"github.com/opennotes-ai/opennotes-sub006/internal/domain/valueobject"

	"github.com/google/uuid"
)

// UsageRecord is one append-only metering entry. Successful records are
// written in the same transaction as the counter mutation they account
// for; failed records are written standalone and never touch counters.
type UsageRecord struct {
	id           uuid.UUID
	tenantID     uuid.UUID
	resourceKind valueobject.ResourceKind
	unitsUsed    int64
	label        string
	success      bool
	errorMessage *string
	occurredAt   time.Time
}

// NewUsageRecord creates a successful usage record.
func NewUsageRecord(
	tenantID uuid.UUID,
	resourceKind valueobject.ResourceKind,
	unitsUsed int64,
	label string,
	occurredAt time.Time,
) *UsageRecord {
	return &UsageRecord{
		id:           uuid.New(),
		tenantID:     tenantID,
		resourceKind: resourceKind,
		unitsUsed:    unitsUsed,
		label:        label,
		success:      true,
		occurredAt:   occurredAt.UTC(),
	}
}

// NewFailedUsageRecord creates a usage record for an attempt that failed
// after admission, for example a scorer call that errored downstream.
func NewFailedUsageRecord(
	tenantID uuid.UUID,
	resourceKind valueobject.ResourceKind,
	unitsUsed int64,
	label string,
	errorMessage string,
	occurredAt time.Time,
) *UsageRecord {
	return &UsageRecord{
		id:           uuid.New(),
		tenantID:     tenantID,
		resourceKind: resourceKind,
		unitsUsed:    unitsUsed,
		label:        label,
		success:      false,
		errorMessage: &errorMessage,
		occurredAt:   occurredAt.UTC(),
	}
}

// RestoreUsageRecord creates a UsageRecord entity from stored data.
func RestoreUsageRecord(
	id uuid.UUID,
	tenantID uuid.UUID,
	resourceKind valueobject.ResourceKind,
	unitsUsed int64,
	label string,
	success bool,
	errorMessage *string,
	occurredAt time.Time,
) *UsageRecord {
	return &UsageRecord{
		id:           id,
		tenantID:     tenantID,
		resourceKind: resourceKind,
		unitsUsed:    unitsUsed,
		label:        label,
		success:      success,
		errorMessage: errorMessage,
		occurredAt:   occurredAt,
	}
}

// ID returns the record ID.
func (r *UsageRecord) ID() uuid.UUID {
	return r.id
}

// TenantID returns the owning tenant.
func (r *UsageRecord) TenantID() uuid.UUID {
	return r.tenantID
}

// ResourceKind returns the metered resource kind.
func (r *UsageRecord) ResourceKind() valueobject.ResourceKind {
	return r.resourceKind
}

// UnitsUsed returns the units the attempt consumed or would have consumed.
func (r *UsageRecord) UnitsUsed() int64 {
	return r.unitsUsed
}

// Label returns the caller-supplied attribution label, typically a job ID.
func (r *UsageRecord) Label() string {
	return r.label
}

// Success reports whether the usage counted against the quota.
func (r *UsageRecord) Success() bool {
	return r.success
}

// ErrorMessage returns the failure detail for unsuccessful records.
func (r *UsageRecord) ErrorMessage() *string {
	return r.errorMessage
}

// OccurredAt returns when the usage happened.
func (r *UsageRecord) OccurredAt() time.Time {
	return r.occurredAt
}
