// Package inbound defines the inbound ports (interfaces) for the application layer.
// These ports represent the entry points into the application's core business logic.
package inbound

import (
	"context"
	"time"

	"github.com/opennotes-ai/opennotes-sub006/internal/domain/entity"

	"github.com/google/uuid"
)

// StartJobRequest asks for a new batch job over note candidates.
type StartJobRequest struct {
	Kind      string     `json:"kind"`
	TenantID  *uuid.UUID `json:"tenant_id,omitempty"`
	Limit     int64      `json:"limit,omitempty"`
	BatchSize int64      `json:"batch_size,omitempty"`
}

// JobStartResponse reports the accepted job.
type JobStartResponse struct {
	JobID      uuid.UUID `json:"job_id"`
	Kind       string    `json:"kind"`
	Status     string    `json:"status"`
	TotalUnits int64     `json:"total_units"`
	CreatedAt  time.Time `json:"created_at"`
}

// JobProgress is the live, advisory progress view. It is absent when the
// ephemeral entry expired or the job never started processing.
type JobProgress struct {
	ProcessedUnits int64     `json:"processed_units"`
	FailedUnits    int64     `json:"failed_units"`
	CurrentItem    string    `json:"current_item,omitempty"`
	RatePerSecond  float64   `json:"rate_per_second"`
	StartedAt      time.Time `json:"started_at"`
	LastUpdateAt   time.Time `json:"last_update_at"`
}

// JobStatusResponse combines the durable job row with whatever live state
// still exists.
type JobStatusResponse struct {
	JobID          uuid.UUID            `json:"job_id"`
	Kind           string               `json:"kind"`
	Status         string               `json:"status"`
	TotalUnits     int64                `json:"total_units"`
	CompletedUnits int64                `json:"completed_units"`
	FailedUnits    int64                `json:"failed_units"`
	ErrorMessage   string               `json:"error_message,omitempty"`
	Progress       *JobProgress         `json:"progress,omitempty"`
	Errors         *entity.ErrorSummary `json:"errors,omitempty"`
	StartedAt      *time.Time           `json:"started_at,omitempty"`
	CompletedAt    *time.Time           `json:"completed_at,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

// JobListQuery filters job listings.
type JobListQuery struct {
	Kind   string `json:"kind,omitempty"`
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// JobListResponse is a page of jobs.
type JobListResponse struct {
	Jobs  []JobStatusResponse `json:"jobs"`
	Total int                 `json:"total"`
}

// JobService defines the inbound port for batch job operations.
type JobService interface {
	// StartJob validates the request, persists a pending job sized to the
	// matching candidates, and dispatches it to the work queue.
	StartJob(ctx context.Context, request StartJobRequest) (*JobStartResponse, error)

	// GetJobStatus returns the durable row merged with live progress and
	// error state when available.
	GetJobStatus(ctx context.Context, jobID uuid.UUID) (*JobStatusResponse, error)

	// ListJobs pages through jobs.
	ListJobs(ctx context.Context, query JobListQuery) (*JobListResponse, error)
}
