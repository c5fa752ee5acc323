package entity

import (
	"time"

	"github.com/opennotes-ai/opennotes-sub006/internal/domain/errors/domain"
	"github.com/opennotes-ai/opennotes-sub006/internal/domain/valueobject"

	"github.com/google/uuid"
)

// Default processing parameters applied when a job is created without
// explicit values.
const (
	DefaultBatchSize = 100
	MaxBatchSize     = 1000
)

// JobParams captures the immutable inputs of a batch job. They are
// persisted alongside the job so an interrupted run can resume with the
// same scope.
type JobParams struct {
	TenantID  *uuid.UUID `json:"tenant_id,omitempty"`
	Limit     int64      `json:"limit"`
	BatchSize int64      `json:"batch_size"`
}

// Normalize applies defaults and clamps out-of-range values.
func (p JobParams) Normalize() JobParams {
	if p.BatchSize <= 0 {
		p.BatchSize = DefaultBatchSize
	}
	if p.BatchSize > MaxBatchSize {
		p.BatchSize = MaxBatchSize
	}
	if p.Limit < 0 {
		p.Limit = 0
	}
	return p
}

// JobResult is the final outcome snapshot persisted when a job reaches a
// terminal state.
type JobResult struct {
	CompletedUnits int64            `json:"completed_units"`
	FailedUnits    int64            `json:"failed_units"`
	SkippedUnits   int64            `json:"skipped_units"`
	Iterations     int64            `json:"iterations"`
	ErrorTotal     int64            `json:"error_total,omitempty"`
	ErrorCounts    map[string]int64 `json:"error_counts,omitempty"`
	ErrorSamples   []RecordedError  `json:"error_samples,omitempty"`
	ElapsedSeconds float64          `json:"elapsed_seconds"`
}

// BatchJob represents a long-running bulk operation over note candidates.
type BatchJob struct {
	id             uuid.UUID
	kind           valueobject.JobKind
	status         valueobject.JobStatus
	params         JobParams
	totalUnits     int64
	completedUnits int64
	failedUnits    int64
	result         *JobResult
	errorMessage   *string
	startedAt      *time.Time
	completedAt    *time.Time
	createdAt      time.Time
	updatedAt      time.Time
}

// NewBatchJob creates a new pending BatchJob entity.
func NewBatchJob(kind valueobject.JobKind, params JobParams, totalUnits int64) (*BatchJob, error) {
	if !kind.IsValid() {
		return nil, NewDomainErrorWithCause("unknown job kind: "+kind.String(), "UNKNOWN_JOB_KIND", domain.ErrUnknownJobKind)
	}
	if totalUnits < 0 {
		return nil, NewDomainError("total units must not be negative", "INVALID_TOTAL_UNITS")
	}

	now := time.Now()
	return &BatchJob{
		id:         uuid.New(),
		kind:       kind,
		status:     valueobject.JobStatusPending,
		params:     params.Normalize(),
		totalUnits: totalUnits,
		createdAt:  now,
		updatedAt:  now,
	}, nil
}

// RestoreBatchJob creates a BatchJob entity from stored data.
func RestoreBatchJob(
	id uuid.UUID,
	kind valueobject.JobKind,
	status valueobject.JobStatus,
	params JobParams,
	totalUnits int64,
	completedUnits int64,
	failedUnits int64,
	result *JobResult,
	errorMessage *string,
	startedAt *time.Time,
	completedAt *time.Time,
	createdAt time.Time,
	updatedAt time.Time,
) *BatchJob {
	return &BatchJob{
		id:             id,
		kind:           kind,
		status:         status,
		params:         params,
		totalUnits:     totalUnits,
		completedUnits: completedUnits,
		failedUnits:    failedUnits,
		result:         result,
		errorMessage:   errorMessage,
		startedAt:      startedAt,
		completedAt:    completedAt,
		createdAt:      createdAt,
		updatedAt:      updatedAt,
	}
}

// ID returns the job ID.
func (j *BatchJob) ID() uuid.UUID {
	return j.id
}

// Kind returns the job kind.
func (j *BatchJob) Kind() valueobject.JobKind {
	return j.kind
}

// Status returns the current job status.
func (j *BatchJob) Status() valueobject.JobStatus {
	return j.status
}

// Params returns the immutable job parameters.
func (j *BatchJob) Params() JobParams {
	return j.params
}

// TotalUnits returns the number of units the job was created to process.
func (j *BatchJob) TotalUnits() int64 {
	return j.totalUnits
}

// CompletedUnits returns the number of successfully processed units.
func (j *BatchJob) CompletedUnits() int64 {
	return j.completedUnits
}

// FailedUnits returns the number of units that failed processing.
func (j *BatchJob) FailedUnits() int64 {
	return j.failedUnits
}

// Result returns the terminal outcome snapshot, nil while running.
func (j *BatchJob) Result() *JobResult {
	return j.result
}

// ErrorMessage returns the failure message if the job failed.
func (j *BatchJob) ErrorMessage() *string {
	return j.errorMessage
}

// StartedAt returns the job start timestamp.
func (j *BatchJob) StartedAt() *time.Time {
	return j.startedAt
}

// CompletedAt returns the job completion timestamp.
func (j *BatchJob) CompletedAt() *time.Time {
	return j.completedAt
}

// CreatedAt returns the creation timestamp.
func (j *BatchJob) CreatedAt() time.Time {
	return j.createdAt
}

// UpdatedAt returns the last update timestamp.
func (j *BatchJob) UpdatedAt() time.Time {
	return j.updatedAt
}

// IsTerminal returns true if the job is in a terminal state.
func (j *BatchJob) IsTerminal() bool {
	return j.status.IsTerminal()
}

// Duration returns the job duration if completed.
func (j *BatchJob) Duration() *time.Duration {
	if j.startedAt == nil || j.completedAt == nil {
		return nil
	}
	duration := j.completedAt.Sub(*j.startedAt)
	return &duration
}

// Start marks the job as in progress.
func (j *BatchJob) Start() error {
	if !j.status.CanTransitionTo(valueobject.JobStatusInProgress) {
		return NewDomainErrorWithCause(
			"cannot start job in status "+j.status.String(), "INVALID_STATUS_TRANSITION", domain.ErrInvalidJobState)
	}

	now := time.Now()
	j.status = valueobject.JobStatusInProgress
	j.startedAt = &now
	j.updatedAt = now
	return nil
}

// RecordProgress overwrites the durable unit counters. Counters are
// absolute values, not deltas, so replays of the same persistence point
// are harmless.
func (j *BatchJob) RecordProgress(completedUnits, failedUnits int64) {
	j.completedUnits = completedUnits
	j.failedUnits = failedUnits
	j.updatedAt = time.Now()
}

// Complete marks the job as completed with its final result.
func (j *BatchJob) Complete(result JobResult) error {
	if !j.status.CanTransitionTo(valueobject.JobStatusCompleted) {
		return NewDomainErrorWithCause(
			"cannot complete job in status "+j.status.String(), "INVALID_STATUS_TRANSITION", domain.ErrInvalidJobState)
	}

	now := time.Now()
	j.status = valueobject.JobStatusCompleted
	j.completedAt = &now
	j.completedUnits = result.CompletedUnits
	j.failedUnits = result.FailedUnits
	j.result = &result
	j.errorMessage = nil
	j.updatedAt = now
	return nil
}

// Fail marks the job as failed with an error message and whatever result
// counters were accumulated before the failure.
func (j *BatchJob) Fail(result JobResult, errorMessage string) error {
	if !j.status.CanTransitionTo(valueobject.JobStatusFailed) {
		return NewDomainErrorWithCause(
			"cannot fail job in status "+j.status.String(), "INVALID_STATUS_TRANSITION", domain.ErrInvalidJobState)
	}

	now := time.Now()
	j.status = valueobject.JobStatusFailed
	j.completedAt = &now
	j.completedUnits = result.CompletedUnits
	j.failedUnits = result.FailedUnits
	j.result = &result
	j.errorMessage = &errorMessage
	j.updatedAt = now
	return nil
}

// Equal compares two BatchJob entities by identity.
func (j *BatchJob) Equal(other *BatchJob) bool {
	if other == nil {
		return false
	}
	return j.id == other.id
}
