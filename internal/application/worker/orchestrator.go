package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opennotes-ai/opennotes-sub006/internal/application/common/slogger"
	"github.com/opennotes-ai/opennotes-sub006/internal/application/registry"
	"github.com/opennotes-ai/opennotes-sub006/internal/domain/entity"
	domainerrors "github.com/opennotes-ai/opennotes-sub006/internal/domain/errors/domain"
	"github.com/opennotes-ai/opennotes-sub006/internal/domain/messaging"
	"github.com/opennotes-ai/opennotes-sub006/internal/domain/valueobject"
	"github.com/opennotes-ai/opennotes-sub006/internal/port/inbound"
	"github.com/opennotes-ai/opennotes-sub006/internal/port/outbound"

	"github.com/google/uuid"
)

// Defaults for the claim loop knobs.
const (
	// DefaultPersistEvery is how many settled units pass between durable
	// counter flushes.
	DefaultPersistEvery = 100

	// DefaultIterationSlack is how many claim iterations beyond
	// limit/batchSize the loop tolerates. The slack absorbs skipped units
	// and the final empty claim that proves exhaustion.
	DefaultIterationSlack = 2
)

// UnitFailure scopes a handler error to the one unit being processed: the
// loop records it and moves on. Handler errors that are not UnitFailures
// abort the whole run so the dispatch is redelivered.
type UnitFailure struct {
	Kind string
	Err  error
}

// NewUnitFailure wraps err as a per-unit failure of the given kind.
func NewUnitFailure(kind string, err error) *UnitFailure {
	return &UnitFailure{Kind: kind, Err: err}
}

func (f *UnitFailure) Error() string {
	return f.Err.Error()
}

func (f *UnitFailure) Unwrap() error {
	return f.Err
}

// OrchestratorConfig holds the claim loop configuration.
type OrchestratorConfig struct {
	PersistEvery   int64
	IterationSlack int64
}

func (c OrchestratorConfig) normalize() OrchestratorConfig {
	if c.PersistEvery <= 0 {
		c.PersistEvery = DefaultPersistEvery
	}
	if c.IterationSlack < 0 {
		c.IterationSlack = DefaultIterationSlack
	}
	return c
}

// BatchClaimOrchestrator drives one dispatched batch job to a terminal or
// resumable state. Each iteration claims a locked batch of candidates,
// runs the kind's unit handler over them inside the claim transaction, and
// settles idempotency marks, error records, and progress after commit.
type BatchClaimOrchestrator struct {
	config      OrchestratorConfig
	jobs        outbound.BatchJobRepository
	candidates  outbound.CandidateRepository
	transactor  outbound.Transactor
	handlers    *registry.Registry
	progress    outbound.ProgressCache
	idempotency outbound.IdempotencyIndex
	errs        outbound.ErrorAggregator
	metrics     *BatchMetrics
}

var _ inbound.JobRunner = (*BatchClaimOrchestrator)(nil)

// NewBatchClaimOrchestrator wires the claim loop. Metrics may be nil.
func NewBatchClaimOrchestrator(
	config OrchestratorConfig,
	jobs outbound.BatchJobRepository,
	candidates outbound.CandidateRepository,
	transactor outbound.Transactor,
	handlers *registry.Registry,
	progress outbound.ProgressCache,
	idempotency outbound.IdempotencyIndex,
	errorAggregator outbound.ErrorAggregator,
	metrics *BatchMetrics,
) *BatchClaimOrchestrator {
	return &BatchClaimOrchestrator{
		config:      config.normalize(),
		jobs:        jobs,
		candidates:  candidates,
		transactor:  transactor,
		handlers:    handlers,
		progress:    progress,
		idempotency: idempotency,
		errs:        errorAggregator,
		metrics:     metrics,
	}
}

// runState carries the counters of one Run invocation. Completed and
// failed start from the durable row so a resume keeps accumulating.
type runState struct {
	completed  int64
	failed     int64
	skipped    int64
	iterations int64
	sinceFlush int64
	cursor     uuid.UUID
}

// unitRef identifies one settled unit.
type unitRef struct {
	index  int64
	unitID string
}

// unitFailure is one recorded per-unit failure.
type unitFailure struct {
	index   int64
	unitID  string
	kind    string
	message string
}

// batchOutcome is what one committed claim iteration produced.
type batchOutcome struct {
	claimed   int
	successes []unitRef
	failures  []unitFailure
	skipped   int64
	lastItem  string
}

// Run executes the dispatched job. Unknown jobs, terminal jobs, and
// unknown kinds return domain errors the consumer settles for good;
// everything else is an infrastructure failure and the dispatch is
// redelivered.
func (o *BatchClaimOrchestrator) Run(ctx context.Context, msg messaging.JobDispatchMessage) error {
	runStart := time.Now()

	job, err := o.jobs.FindByID(ctx, msg.JobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", msg.JobID, err)
	}
	if job == nil {
		return fmt.Errorf("job %s: %w", msg.JobID, domainerrors.ErrJobNotFound)
	}
	if job.IsTerminal() {
		return fmt.Errorf("job %s in status %s: %w", job.ID(), job.Status().String(), domainerrors.ErrJobTerminal)
	}

	handler, err := o.handlers.Resolve(job.Kind())
	if err != nil {
		return fmt.Errorf("job %s: %w", job.ID(), err)
	}

	switch job.Status() {
	case valueobject.JobStatusPending:
		if err := job.Start(); err != nil {
			return fmt.Errorf("start job %s: %w", job.ID(), err)
		}
		if err := o.jobs.Update(ctx, job); err != nil {
			return fmt.Errorf("persist job start %s: %w", job.ID(), err)
		}
	case valueobject.JobStatusInProgress:
		// Redelivery after an interrupted run; processed units are
		// covered by the candidate predicates and the idempotency index.
		slogger.Warn(ctx, "Resuming in-progress batch job", slogger.Fields2(
			"job_id", job.ID().String(),
			"completed_units", job.CompletedUnits(),
		))
	default:
		return fmt.Errorf("job %s in status %s: %w", job.ID(), job.Status().String(), domainerrors.ErrInvalidJobState)
	}

	if err := o.progress.StartTracking(ctx, job.ID(), ""); err != nil {
		return fmt.Errorf("start progress tracking for job %s: %w", job.ID(), err)
	}

	run := &runState{
		completed: job.CompletedUnits(),
		failed:    job.FailedUnits(),
		cursor:    uuid.Nil,
	}
	if run.completed > 0 || run.failed > 0 {
		// Seed the live view with the durable counters so status readers
		// see cumulative numbers across resumes.
		seedProcessed, seedFailed := run.completed, run.failed
		if err := o.progress.UpdateProgress(ctx, job.ID(), outbound.ProgressUpdate{
			ProcessedAbs: &seedProcessed,
			FailedAbs:    &seedFailed,
		}); err != nil {
			slogger.Warn(ctx, "Failed to seed progress with durable counters",
				slogger.Field("error", err.Error()))
		}
	}

	if err := o.claimLoop(ctx, job, handler, run); err != nil {
		return err
	}

	return o.finalize(ctx, job, run, runStart)
}

// claimLoop runs claim iterations until the job's scope is satisfied, the
// candidates run out, the iteration budget is spent, or the context ends.
func (o *BatchClaimOrchestrator) claimLoop(
	ctx context.Context,
	job *entity.BatchJob,
	handler registry.UnitHandler,
	run *runState,
) error {
	params := job.Params()
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = entity.DefaultBatchSize
	}
	target := params.Limit
	if target <= 0 {
		target = job.TotalUnits()
	}
	maxIterations := target/batchSize + o.config.IterationSlack
	if maxIterations < 1 {
		maxIterations = 1
	}

	for {
		select {
		case <-ctx.Done():
			// The job stays in_progress; redelivery resumes it.
			o.flushCounters(context.WithoutCancel(ctx), job, run)
			return fmt.Errorf("batch run interrupted: %w", ctx.Err())
		default:
		}

		remaining := int64(0)
		if target > 0 {
			remaining = target - (run.completed + run.failed)
			if remaining <= 0 {
				return nil
			}
		}

		if run.iterations >= maxIterations {
			slogger.Warn(ctx, "Claim budget exhausted before candidates ran out", slogger.Fields3(
				"job_id", job.ID().String(),
				"iterations", run.iterations,
				"completed_units", run.completed,
			))
			return nil
		}

		claimSize := batchSize
		if remaining > 0 && remaining < claimSize {
			claimSize = remaining
		}

		claimStart := time.Now()
		outcome, err := o.claimAndProcess(ctx, job, handler, run.cursor, claimSize)
		if err != nil {
			o.flushCounters(context.WithoutCancel(ctx), job, run)
			return fmt.Errorf("claim iteration for job %s: %w", job.ID(), err)
		}
		run.iterations++
		o.metrics.RecordClaim(ctx, job.Kind().String(), time.Since(claimStart))

		if outcome.claimed == 0 {
			return nil
		}

		o.settleBatch(context.WithoutCancel(ctx), job, outcome, run)

		if run.sinceFlush >= o.config.PersistEvery {
			if err := o.flushCounters(ctx, job, run); err != nil {
				return fmt.Errorf("persist progress for job %s: %w", job.ID(), err)
			}
		}
	}
}

// claimAndProcess claims one locked batch and runs the handler over it,
// all inside a single transaction. Handler unit failures are collected and
// committed with the batch; storage errors roll the whole batch back. The
// returned outcome is only meaningful when err is nil.
func (o *BatchClaimOrchestrator) claimAndProcess(
	ctx context.Context,
	job *entity.BatchJob,
	handler registry.UnitHandler,
	cursor uuid.UUID,
	claimSize int64,
) (*batchOutcome, error) {
	outcome := &batchOutcome{}
	newCursor := cursor

	err := o.transactor.WithTransaction(ctx, func(txCtx context.Context) error {
		batch, err := o.candidates.ClaimBatch(txCtx, outbound.ClaimRequest{
			JobID:     job.ID(),
			Kind:      job.Kind(),
			TenantID:  job.Params().TenantID,
			Cursor:    cursor,
			BatchSize: claimSize,
		})
		if err != nil {
			return err
		}
		outcome.claimed = len(batch)

		for _, candidate := range batch {
			newCursor = candidate.ID()

			already, idxErr := o.idempotency.IsProcessed(txCtx, job.ID(), candidate.BatchIndex())
			if idxErr != nil {
				// Index loss degrades to at-least-once; handlers are
				// idempotent, so reprocessing is safe.
				slogger.Warn(txCtx, "Idempotency check failed, reprocessing unit", slogger.Fields2(
					"error", idxErr.Error(),
					"batch_index", candidate.BatchIndex(),
				))
				already = false
			}
			if already {
				outcome.skipped++
				continue
			}

			if procErr := handler.Process(txCtx, job, candidate); procErr != nil {
				var unitErr *UnitFailure
				if errors.As(procErr, &unitErr) {
					outcome.failures = append(outcome.failures, unitFailure{
						index:   candidate.BatchIndex(),
						unitID:  candidate.PostRef(),
						kind:    unitErr.Kind,
						message: unitErr.Error(),
					})
					continue
				}
				return procErr
			}

			if updErr := o.candidates.Update(txCtx, candidate); updErr != nil {
				return updErr
			}
			outcome.successes = append(outcome.successes, unitRef{
				index:  candidate.BatchIndex(),
				unitID: candidate.PostRef(),
			})
			outcome.lastItem = candidate.PostRef()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// The advanced cursor is not threaded back to the caller; claims rely
	// on status predicates, so the batch-local tracking stays unconsumed.
	_ = newCursor

	o.markProcessed(ctx, job.ID(), outcome.successes)
	return outcome, nil
}

// markProcessed sets idempotency bits for committed units. Marking happens
// strictly after the claim transaction commits, so a set bit always means
// the unit's effects are durable.
func (o *BatchClaimOrchestrator) markProcessed(ctx context.Context, jobID uuid.UUID, successes []unitRef) {
	for _, success := range successes {
		if _, err := o.idempotency.MarkProcessed(ctx, jobID, success.index); err != nil {
			slogger.Warn(ctx, "Failed to mark unit processed, replay may reprocess it", slogger.Fields2(
				"error", err.Error(),
				"batch_index", success.index,
			))
		}
	}
}

// settleBatch records failures, updates counters and the live progress
// view. It runs after the claim transaction committed, so bookkeeping
// finishes even when the run context was cancelled mid-batch.
func (o *BatchClaimOrchestrator) settleBatch(
	ctx context.Context,
	job *entity.BatchJob,
	outcome *batchOutcome,
	run *runState,
) {
	kind := job.Kind().String()

	for _, failure := range outcome.failures {
		sample := entity.NewRecordedError(failure.kind, failure.message, failure.unitID, time.Now())
		if err := o.errs.RecordError(ctx, job.ID(), sample); err != nil {
			slogger.Warn(ctx, "Failed to record unit failure", slogger.Fields2(
				"error", err.Error(),
				"unit_id", failure.unitID,
			))
		}
		if failure.kind == entity.ErrorKindQuotaDenied {
			o.metrics.RecordQuotaDenial(ctx, kind)
		}
		o.metrics.RecordUnitFailed(ctx, kind, failure.kind)
	}

	run.completed += int64(len(outcome.successes))
	run.failed += int64(len(outcome.failures))
	run.skipped += outcome.skipped
	run.sinceFlush += int64(len(outcome.successes) + len(outcome.failures))

	o.metrics.RecordUnitsProcessed(ctx, kind, int64(len(outcome.successes)))
	o.metrics.RecordUnitsSkipped(ctx, kind, outcome.skipped)

	update := outbound.ProgressUpdate{
		ProcessedDelta: int64(len(outcome.successes)),
		FailedDelta:    int64(len(outcome.failures)),
	}
	if outcome.lastItem != "" {
		update.CurrentItem = &outcome.lastItem
	}
	if err := o.progress.UpdateProgress(ctx, job.ID(), update); err != nil {
		slogger.Warn(ctx, "Failed to update live progress", slogger.Field("error", err.Error()))
	}
}

// flushCounters persists the durable unit counters. Failures are logged
// on best-effort paths; callers that need the flush check the error.
func (o *BatchClaimOrchestrator) flushCounters(ctx context.Context, job *entity.BatchJob, run *runState) error {
	job.RecordProgress(run.completed, run.failed)
	if err := o.jobs.Update(ctx, job); err != nil {
		slogger.Warn(ctx, "Failed to flush durable counters", slogger.Fields2(
			"error", err.Error(),
			"job_id", job.ID().String(),
		))
		return err
	}
	run.sinceFlush = 0
	return nil
}

// finalize snapshots the error summary into the job result, drives the job
// to its terminal state, and tears down the ephemeral run state.
func (o *BatchClaimOrchestrator) finalize(
	ctx context.Context,
	job *entity.BatchJob,
	run *runState,
	runStart time.Time,
) error {
	summary, err := o.errs.Summary(ctx, job.ID())
	if err != nil {
		slogger.Warn(ctx, "Failed to read error summary, finalizing without it",
			slogger.Field("error", err.Error()))
		summary = entity.EmptyErrorSummary()
	}

	elapsed := time.Since(runStart)
	if startedAt := job.StartedAt(); startedAt != nil {
		elapsed = time.Since(*startedAt)
	}

	result := entity.JobResult{
		CompletedUnits: run.completed,
		FailedUnits:    run.failed,
		SkippedUnits:   run.skipped,
		Iterations:     run.iterations,
		ErrorTotal:     summary.Total,
		ErrorCounts:    summary.CountsByKind,
		ErrorSamples:   summary.Samples,
		ElapsedSeconds: elapsed.Seconds(),
	}

	attempted := run.completed + run.failed
	outcome := "completed"
	if summary.FullyFailed(attempted) {
		outcome = "failed"
		if failErr := job.Fail(result, "all attempted units failed"); failErr != nil {
			return fmt.Errorf("fail job %s: %w", job.ID(), failErr)
		}
	} else if completeErr := job.Complete(result); completeErr != nil {
		return fmt.Errorf("complete job %s: %w", job.ID(), completeErr)
	}

	if err := o.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("persist terminal state for job %s: %w", job.ID(), err)
	}

	o.metrics.RecordJobFinished(ctx, job.Kind().String(), outcome, elapsed)
	o.teardown(ctx, job.ID())

	slogger.Info(ctx, "Batch job finished", slogger.Fields{
		"job_id":          job.ID().String(),
		"status":          job.Status().String(),
		"completed_units": run.completed,
		"failed_units":    run.failed,
		"skipped_units":   run.skipped,
		"iterations":      run.iterations,
	})
	return nil
}

// teardown drops the ephemeral run state. The error summary was already
// snapshotted into the job result, so losing the live copies is fine.
func (o *BatchClaimOrchestrator) teardown(ctx context.Context, jobID uuid.UUID) {
	if err := o.progress.StopTracking(ctx, jobID); err != nil {
		slogger.Warn(ctx, "Failed to stop progress tracking", slogger.Field("error", err.Error()))
	}
	if err := o.idempotency.Clear(ctx, jobID); err != nil {
		slogger.Warn(ctx, "Failed to clear idempotency index", slogger.Field("error", err.Error()))
	}
	if err := o.errs.Clear(ctx, jobID); err != nil {
		slogger.Warn(ctx, "Failed to clear error records", slogger.Field("error", err.Error()))
	}
}
