package outbound

import (
	"context"
	"time"

	"github.com/opennotes-ai/opennotes-sub006/internal/domain/entity"

	"github.com/google/uuid"
)

// IdempotencyIndex tracks which unit ordinals of a job have already been
// processed. The mark is a single atomic test-and-set, so two workers
// racing on the same unit see exactly one false. The index is an
// optimization over shared ephemeral storage: if it vanishes, processing
// degrades to at-least-once and unit handlers must stay idempotent.
type IdempotencyIndex interface {
	// MarkProcessed sets the bit for the unit and returns its previous
	// value: false means this caller owns the first processing.
	MarkProcessed(ctx context.Context, jobID uuid.UUID, index int64) (alreadyProcessed bool, err error)

	// IsProcessed reads the bit without setting it.
	IsProcessed(ctx context.Context, jobID uuid.UUID, index int64) (bool, error)

	// Clear drops the whole bitmap for the job.
	Clear(ctx context.Context, jobID uuid.UUID) error
}

// ProgressSnapshot is the advisory live view of a running job.
type ProgressSnapshot struct {
	JobID          uuid.UUID
	CurrentItem    string
	ProcessedUnits int64
	FailedUnits    int64
	StartedAt      time.Time
	LastUpdateAt   time.Time
}

// Rate returns processed units per second since tracking started, zero
// when no time has elapsed.
func (s *ProgressSnapshot) Rate() float64 {
	if s == nil {
		return 0
	}
	elapsed := s.LastUpdateAt.Sub(s.StartedAt).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.ProcessedUnits) / elapsed
}

// ProgressUpdate mutates a tracked job's progress. Deltas add atomically
// and commute; absolute fields overwrite.
type ProgressUpdate struct {
	ProcessedDelta int64
	FailedDelta    int64
	CurrentItem    *string
	ProcessedAbs   *int64
	FailedAbs      *int64
}

// ProgressCache is the shared ephemeral view of running jobs. Entries
// expire on their own; the durable job row remains the source of truth
// for terminal accounting.
type ProgressCache interface {
	StartTracking(ctx context.Context, jobID uuid.UUID, initialItem string) error

	// GetProgress returns nil with no error when the job is not tracked
	// or the entry has expired.
	GetProgress(ctx context.Context, jobID uuid.UUID) (*ProgressSnapshot, error)

	UpdateProgress(ctx context.Context, jobID uuid.UUID, update ProgressUpdate) error

	StopTracking(ctx context.Context, jobID uuid.UUID) error
}

// ErrorAggregator collects per-scope failures: exact totals and per-kind
// counts with a small capped sample list. Scope is typically a job ID.
type ErrorAggregator interface {
	RecordError(ctx context.Context, scopeID uuid.UUID, sample entity.RecordedError) error
	Summary(ctx context.Context, scopeID uuid.UUID) (*entity.ErrorSummary, error)
	Clear(ctx context.Context, scopeID uuid.UUID) error
}

// QuotaSnapshotCache is an in-process read cache over quota rows for
// status and reporting paths. Admission never reads it: CheckAndRecord
// always goes through the locked row.
type QuotaSnapshotCache interface {
	// Get returns the cached row, fetching through the ledger on miss.
	Get(ctx context.Context, tenantID uuid.UUID, kind string) (*entity.ResourceQuota, error)

	// Invalidate drops one entry, for callers that observed a newer
	// revision.
	Invalidate(tenantID uuid.UUID, kind string)

	// Purge drops everything.
	Purge()
}
