package service

import (
	"context"
	"fmt"

	"github.com/opennotes-ai/opennotes-sub006/internal/application/common/logging"
	"github.com/opennotes-ai/opennotes-sub006/internal/application/common/retry"
	"github.com/opennotes-ai/opennotes-sub006/internal/application/common/slogger"
	"github.com/opennotes-ai/opennotes-sub006/internal/domain/entity"
	domainerrors "github.com/opennotes-ai/opennotes-sub006/internal/domain/errors/domain"
	"github.com/opennotes-ai/opennotes-sub006/internal/domain/messaging"
	"github.com/opennotes-ai/opennotes-sub006/internal/domain/valueobject"
	"github.com/opennotes-ai/opennotes-sub006/internal/port/inbound"
	"github.com/opennotes-ai/opennotes-sub006/internal/port/outbound"

	"github.com/google/uuid"
)

// DefaultJobService implements the batch job inbound port. Starting a job
// persists the durable row first and dispatches second, so a job is never
// running without a row to account against.
type DefaultJobService struct {
	jobs       outbound.BatchJobRepository
	candidates outbound.CandidateRepository
	dispatcher outbound.JobDispatcher
	progress   outbound.ProgressCache
	errs       outbound.ErrorAggregator
	retrier    *retry.RetryExecutor
}

var _ inbound.JobService = (*DefaultJobService)(nil)

// NewDefaultJobService creates a job service over the given collaborators.
func NewDefaultJobService(
	jobs outbound.BatchJobRepository,
	candidates outbound.CandidateRepository,
	dispatcher outbound.JobDispatcher,
	progress outbound.ProgressCache,
	errorAggregator outbound.ErrorAggregator,
) *DefaultJobService {
	return &DefaultJobService{
		jobs:       jobs,
		candidates: candidates,
		dispatcher: dispatcher,
		progress:   progress,
		errs:       errorAggregator,
		retrier:    retry.NewRetryExecutor(retry.DefaultRetryConfig()),
	}
}

// StartJob validates the request, sizes the job against the matching
// candidates, persists it pending, and dispatches it to the work queue.
func (s *DefaultJobService) StartJob(
	ctx context.Context, request inbound.StartJobRequest,
) (*inbound.JobStartResponse, error) {
	kind, err := valueobject.NewJobKind(request.Kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domainerrors.ErrUnknownJobKind, request.Kind)
	}

	count, err := s.candidates.CountMatching(ctx, kind, request.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to count matching candidates: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("%s: %w", kind.String(), domainerrors.ErrNoMatchingUnits)
	}

	totalUnits := count
	if request.Limit > 0 && request.Limit < count {
		totalUnits = request.Limit
	}

	job, err := entity.NewBatchJob(kind, entity.JobParams{
		TenantID:  request.TenantID,
		Limit:     request.Limit,
		BatchSize: request.BatchSize,
	}, totalUnits)
	if err != nil {
		return nil, err
	}

	if err := s.jobs.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist batch job: %w", err)
	}

	msg := messaging.NewJobDispatchMessage(job.ID(), kind, logging.CorrelationIDFromContext(ctx))
	publishErr := s.retrier.Execute(ctx, func(ctx context.Context) error {
		return s.dispatcher.PublishJobStart(ctx, msg)
	})
	if publishErr != nil {
		// The row exists but no worker will ever pick it up; fail it so
		// status readers are not left with an eternal pending job.
		if failErr := job.Fail(entity.JobResult{}, "dispatch to work queue failed"); failErr == nil {
			if updateErr := s.jobs.Update(ctx, job); updateErr != nil {
				slogger.Error(ctx, "Failed to mark undispatched job as failed", slogger.Fields2(
					"job_id", job.ID().String(),
					"error", updateErr.Error(),
				))
			}
		}
		return nil, fmt.Errorf("failed to dispatch batch job: %w", publishErr)
	}

	slogger.Info(ctx, "Batch job dispatched", slogger.Fields3(
		"job_id", job.ID().String(),
		"kind", kind.String(),
		"total_units", totalUnits,
	))

	return &inbound.JobStartResponse{
		JobID:      job.ID(),
		Kind:       kind.String(),
		Status:     job.Status().String(),
		TotalUnits: totalUnits,
		CreatedAt:  job.CreatedAt(),
	}, nil
}

// GetJobStatus merges the durable job row with the live progress and error
// views. Live state is advisory: its absence never fails the read.
func (s *DefaultJobService) GetJobStatus(
	ctx context.Context, jobID uuid.UUID,
) (*inbound.JobStatusResponse, error) {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load batch job: %w", err)
	}
	if job == nil {
		return nil, fmt.Errorf("job %s: %w", jobID, domainerrors.ErrJobNotFound)
	}

	response := jobStatusResponse(job)

	if snapshot, progressErr := s.progress.GetProgress(ctx, jobID); progressErr != nil {
		slogger.Warn(ctx, "Failed to read live progress", slogger.Fields2(
			"job_id", jobID.String(),
			"error", progressErr.Error(),
		))
	} else if snapshot != nil {
		response.Progress = &inbound.JobProgress{
			ProcessedUnits: snapshot.ProcessedUnits,
			FailedUnits:    snapshot.FailedUnits,
			CurrentItem:    snapshot.CurrentItem,
			RatePerSecond:  snapshot.Rate(),
			StartedAt:      snapshot.StartedAt,
			LastUpdateAt:   snapshot.LastUpdateAt,
		}
	}

	if job.IsTerminal() {
		response.Errors = terminalErrorSummary(job.Result())
	} else if summary, sumErr := s.errs.Summary(ctx, jobID); sumErr != nil {
		slogger.Warn(ctx, "Failed to read live error summary", slogger.Fields2(
			"job_id", jobID.String(),
			"error", sumErr.Error(),
		))
	} else if !summary.IsEmpty() {
		response.Errors = summary
	}

	return response, nil
}

// ListJobs pages through the durable job rows. Listings skip the live
// views; callers wanting progress fetch a single status.
func (s *DefaultJobService) ListJobs(
	ctx context.Context, query inbound.JobListQuery,
) (*inbound.JobListResponse, error) {
	filters := outbound.BatchJobFilters{
		Limit:  query.Limit,
		Offset: query.Offset,
	}
	if query.Kind != "" {
		kind, err := valueobject.NewJobKind(query.Kind)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", domainerrors.ErrUnknownJobKind, query.Kind)
		}
		filters.Kind = &kind
	}
	if query.Status != "" {
		status, err := valueobject.NewJobStatus(query.Status)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", domainerrors.ErrInvalidInput, query.Status)
		}
		filters.Status = &status
	}

	jobs, total, err := s.jobs.FindAll(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list batch jobs: %w", err)
	}

	responses := make([]inbound.JobStatusResponse, 0, len(jobs))
	for _, job := range jobs {
		responses = append(responses, *jobStatusResponse(job))
	}
	return &inbound.JobListResponse{Jobs: responses, Total: total}, nil
}

func jobStatusResponse(job *entity.BatchJob) *inbound.JobStatusResponse {
	response := &inbound.JobStatusResponse{
		JobID:          job.ID(),
		Kind:           job.Kind().String(),
		Status:         job.Status().String(),
		TotalUnits:     job.TotalUnits(),
		CompletedUnits: job.CompletedUnits(),
		FailedUnits:    job.FailedUnits(),
		StartedAt:      job.StartedAt(),
		CompletedAt:    job.CompletedAt(),
		CreatedAt:      job.CreatedAt(),
	}
	if msg := job.ErrorMessage(); msg != nil {
		response.ErrorMessage = *msg
	}
	return response
}

// terminalErrorSummary rebuilds the error view from the result snapshot
// persisted at completion, after the live copy was torn down.
func terminalErrorSummary(result *entity.JobResult) *entity.ErrorSummary {
	if result == nil || result.ErrorTotal == 0 {
		return nil
	}
	return &entity.ErrorSummary{
		Total:        result.ErrorTotal,
		CountsByKind: result.ErrorCounts,
		Samples:      result.ErrorSamples,
	}
}
