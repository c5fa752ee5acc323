package outbound

import (
	"context"

	"github.com/opennotes-ai/opennotes-sub006/internal/domain/entity"
	"github.com/opennotes-ai/opennotes-sub006/internal/domain/valueobject"

	"github.com/google/uuid"
)

// BatchJobRepository defines the outbound port for batch job persistence.
type BatchJobRepository interface {
	Save(ctx context.Context, job *entity.BatchJob) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.BatchJob, error)
	FindAll(ctx context.Context, filters BatchJobFilters) ([]*entity.BatchJob, int, error)
	Update(ctx context.Context, job *entity.BatchJob) error
}

// BatchJobFilters narrows batch job listings.
type BatchJobFilters struct {
	Kind   *valueobject.JobKind
	Status *valueobject.JobStatus
	Limit  int
	Offset int
}

// ClaimRequest describes one claim iteration of the batch loop. The cursor
// is the last candidate ID of the previous batch; uuid.Nil starts from the
// beginning. Claimed rows are locked for the claiming transaction and
// skipped by concurrent claimers.
type ClaimRequest struct {
	JobID     uuid.UUID
	Kind      valueobject.JobKind
	TenantID  *uuid.UUID
	Cursor    uuid.UUID
	BatchSize int64
}

// CandidateRepository defines the outbound port for note candidate
// persistence and the batched claim used by the worker loop.
type CandidateRepository interface {
	Save(ctx context.Context, candidate *entity.NoteCandidate) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.NoteCandidate, error)

	// CountMatching reports how many candidates a job of this kind would
	// touch for the given tenant scope.
	CountMatching(ctx context.Context, kind valueobject.JobKind, tenantID *uuid.UUID) (int64, error)

	// ClaimBatch locks and returns the next batch of candidates matching
	// the job kind's predicate, ordered by ID, strictly after the cursor.
	// It must be called inside a transaction; the locks release with it.
	ClaimBatch(ctx context.Context, req ClaimRequest) ([]*entity.NoteCandidate, error)

	// Update persists handler outcomes on a claimed candidate.
	Update(ctx context.Context, candidate *entity.NoteCandidate) error
}
