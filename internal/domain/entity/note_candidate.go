package entity

import (
	"time"

	"github.com/opennotes-ai/opennotes-sub006/internal/domain/errors/domain"
	"github.com/opennotes-ai/opennotes-sub006/internal/domain/valueobject"

	"github.com/google/uuid"
)

// NoteCandidate is a drafted note awaiting review. Candidates are the work
// units batch jobs claim and process. batchIndex is a stable per-tenant
// ordinal assigned at insert; job idempotency tracking is keyed on it.
type NoteCandidate struct {
	id          uuid.UUID
	tenantID    uuid.UUID
	postRef     string
	body        string
	status      valueobject.CandidateStatus
	score       *float64
	scanVerdict *valueobject.ScanVerdict
	batchIndex  int64
	processedBy *uuid.UUID
	createdAt   time.Time
	updatedAt   time.Time
}

// NewNoteCandidate creates a candidate in pending review.
func NewNoteCandidate(tenantID uuid.UUID, postRef, body string, batchIndex int64) (*NoteCandidate, error) {
	if tenantID == uuid.Nil {
		return nil, NewDomainError("tenant id is required", "INVALID_TENANT_ID")
	}
	if postRef == "" {
		return nil, NewDomainError("post reference is required", "INVALID_POST_REF")
	}
	if batchIndex < 0 {
		return nil, NewDomainError("batch index must not be negative", "INVALID_BATCH_INDEX")
	}

	now := time.Now()
	return &NoteCandidate{
		id:         uuid.New(),
		tenantID:   tenantID,
		postRef:    postRef,
		body:       body,
		status:     valueobject.CandidateStatusPendingReview,
		batchIndex: batchIndex,
		createdAt:  now,
		updatedAt:  now,
	}, nil
}

// RestoreNoteCandidate creates a NoteCandidate entity from stored data.
func RestoreNoteCandidate(
	id uuid.UUID,
	tenantID uuid.UUID,
	postRef string,
	body string,
	status valueobject.CandidateStatus,
	score *float64,
	scanVerdict *valueobject.ScanVerdict,
	batchIndex int64,
	processedBy *uuid.UUID,
	createdAt time.Time,
	updatedAt time.Time,
) *NoteCandidate {
	return &NoteCandidate{
		id:          id,
		tenantID:    tenantID,
		postRef:     postRef,
		body:        body,
		status:      status,
		score:       score,
		scanVerdict: scanVerdict,
		batchIndex:  batchIndex,
		processedBy: processedBy,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
	}
}

// ID returns the candidate ID.
func (c *NoteCandidate) ID() uuid.UUID {
	return c.id
}

// TenantID returns the owning tenant.
func (c *NoteCandidate) TenantID() uuid.UUID {
	return c.tenantID
}

// PostRef returns the reference of the post the note is attached to.
func (c *NoteCandidate) PostRef() string {
	return c.postRef
}

// Body returns the note text.
func (c *NoteCandidate) Body() string {
	return c.body
}

// Status returns the review status.
func (c *NoteCandidate) Status() valueobject.CandidateStatus {
	return c.status
}

// Score returns the assigned score, nil when unscored.
func (c *NoteCandidate) Score() *float64 {
	return c.score
}

// ScanVerdict returns the content scan verdict, nil when unscanned.
func (c *NoteCandidate) ScanVerdict() *valueobject.ScanVerdict {
	return c.scanVerdict
}

// BatchIndex returns the stable ordinal used for idempotency tracking.
func (c *NoteCandidate) BatchIndex() int64 {
	return c.batchIndex
}

// ProcessedBy returns the last job that touched this candidate.
func (c *NoteCandidate) ProcessedBy() *uuid.UUID {
	return c.processedBy
}

// CreatedAt returns the creation timestamp.
func (c *NoteCandidate) CreatedAt() time.Time {
	return c.createdAt
}

// UpdatedAt returns the last update timestamp.
func (c *NoteCandidate) UpdatedAt() time.Time {
	return c.updatedAt
}

// Approve moves the candidate from pending review to approved. Approving
// an already approved candidate is a no-op so replayed work stays safe.
func (c *NoteCandidate) Approve(jobID uuid.UUID) error {
	if c.status == valueobject.CandidateStatusApproved {
		return nil
	}
	if !c.status.CanTransitionTo(valueobject.CandidateStatusApproved) {
		return NewDomainErrorWithCause(
			"cannot approve candidate in status "+c.status.String(),
			"INVALID_CANDIDATE_TRANSITION", domain.ErrCandidateTransition)
	}

	c.status = valueobject.CandidateStatusApproved
	c.processedBy = &jobID
	c.updatedAt = time.Now()
	return nil
}

// Quarantine pulls the candidate out of circulation.
func (c *NoteCandidate) Quarantine(jobID uuid.UUID) error {
	if c.status == valueobject.CandidateStatusQuarantined {
		return nil
	}
	if !c.status.CanTransitionTo(valueobject.CandidateStatusQuarantined) {
		return NewDomainErrorWithCause(
			"cannot quarantine candidate in status "+c.status.String(),
			"INVALID_CANDIDATE_TRANSITION", domain.ErrCandidateTransition)
	}

	c.status = valueobject.CandidateStatusQuarantined
	c.processedBy = &jobID
	c.updatedAt = time.Now()
	return nil
}

// SetScore records a scoring result. Scores are absolute overwrites, so
// reprocessing a unit converges to the same state.
func (c *NoteCandidate) SetScore(jobID uuid.UUID, score float64) error {
	if score < 0 || score > 1 {
		return NewDomainError("score must be within [0, 1]", "INVALID_SCORE")
	}

	c.score = &score
	c.processedBy = &jobID
	c.updatedAt = time.Now()
	return nil
}

// SetScanVerdict records a content scan outcome. A flagged verdict also
// quarantines a candidate still under review.
func (c *NoteCandidate) SetScanVerdict(jobID uuid.UUID, verdict valueobject.ScanVerdict) error {
	c.scanVerdict = &verdict
	c.processedBy = &jobID
	c.updatedAt = time.Now()

	if verdict == valueobject.ScanVerdictFlagged &&
		c.status.CanTransitionTo(valueobject.CandidateStatusQuarantined) {
		c.status = valueobject.CandidateStatusQuarantined
	}
	return nil
}

// Equal compares two NoteCandidate entities by identity.
func (c *NoteCandidate) Equal(other *NoteCandidate) bool {
	if other == nil {
		return false
	}
	return c.id == other.id
}
