package worker

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names following OpenTelemetry semantic conventions.
const (
	BatchClaimDurationName   = "batch_claim_duration_seconds"
	BatchClaimsCounterName   = "batch_claims_total"
	UnitsProcessedName       = "batch_units_processed_total"
	UnitsFailedName          = "batch_units_failed_total"
	UnitsSkippedName         = "batch_units_skipped_total"
	QuotaDenialsName         = "batch_quota_denials_total"
	JobsFinishedName         = "batch_jobs_finished_total"
	JobDurationHistogramName = "batch_job_duration_seconds"
)

// Common attribute keys for consistent labeling.
const (
	AttrJobKind   = "job_kind"
	AttrErrorKind = "error_kind"
	AttrOutcome   = "outcome" // completed, failed
	AttrWorkerID  = "worker_id"
)

// BatchMetrics collects OpenTelemetry metrics for the batch claim loop.
type BatchMetrics struct {
	claimDuration  metric.Float64Histogram
	claimsTotal    metric.Int64Counter
	unitsProcessed metric.Int64Counter
	unitsFailed    metric.Int64Counter
	unitsSkipped   metric.Int64Counter
	quotaDenials   metric.Int64Counter
	jobsFinished   metric.Int64Counter
	jobDuration    metric.Float64Histogram

	workerID string
}

// NewBatchMetrics creates the batch metrics collector on the global meter
// provider.
func NewBatchMetrics(workerID string) (*BatchMetrics, error) {
	return NewBatchMetricsWithProvider(workerID, otel.GetMeterProvider())
}

// NewBatchMetricsWithProvider creates the batch metrics collector on a
// custom meter provider.
func NewBatchMetricsWithProvider(workerID string, provider metric.MeterProvider) (*BatchMetrics, error) {
	if workerID == "" {
		return nil, errors.New("worker ID cannot be empty")
	}

	meter := provider.Meter("opennotes/batch-worker", metric.WithInstrumentationVersion("1.0.0"))

	// Claims touch at most one batch of locked rows; the buckets cover
	// sub-millisecond cache hits through slow contended claims.
	claimLatencyBuckets := []float64{
		0.001,
		0.005,
		0.01,
		0.025,
		0.05,
		0.1,
		0.25,
		0.5,
		1.0,
		2.5,
		5.0,
	}

	// Whole-job runtimes range from seconds to the job timeout.
	jobLatencyBuckets := []float64{
		0.5,
		1.0,
		5.0,
		15.0,
		30.0,
		60.0,
		300.0,
		900.0,
		1800.0,
	}

	claimDuration, err := meter.Float64Histogram(
		BatchClaimDurationName,
		metric.WithDescription("Duration of one claim-and-process iteration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(claimLatencyBuckets...),
	)
	if err != nil {
		return nil, err
	}

	claimsTotal, err := meter.Int64Counter(
		BatchClaimsCounterName,
		metric.WithDescription("Total number of claim iterations"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	unitsProcessed, err := meter.Int64Counter(
		UnitsProcessedName,
		metric.WithDescription("Total number of units processed successfully"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	unitsFailed, err := meter.Int64Counter(
		UnitsFailedName,
		metric.WithDescription("Total number of units that failed processing"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	unitsSkipped, err := meter.Int64Counter(
		UnitsSkippedName,
		metric.WithDescription("Total number of units skipped as already processed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	quotaDenials, err := meter.Int64Counter(
		QuotaDenialsName,
		metric.WithDescription("Total number of units refused by quota admission"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	jobsFinished, err := meter.Int64Counter(
		JobsFinishedName,
		metric.WithDescription("Total number of batch jobs driven to a terminal state"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	jobDuration, err := meter.Float64Histogram(
		JobDurationHistogramName,
		metric.WithDescription("Duration of whole batch job runs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(jobLatencyBuckets...),
	)
	if err != nil {
		return nil, err
	}

	return &BatchMetrics{
		claimDuration:  claimDuration,
		claimsTotal:    claimsTotal,
		unitsProcessed: unitsProcessed,
		unitsFailed:    unitsFailed,
		unitsSkipped:   unitsSkipped,
		quotaDenials:   quotaDenials,
		jobsFinished:   jobsFinished,
		jobDuration:    jobDuration,
		workerID:       workerID,
	}, nil
}

// RecordClaim records one claim iteration and its duration.
func (m *BatchMetrics) RecordClaim(ctx context.Context, jobKind string, duration time.Duration) {
	if m == nil {
		return
	}
	attributes := []attribute.KeyValue{
		attribute.String(AttrJobKind, jobKind),
		attribute.String(AttrWorkerID, m.workerID),
	}
	m.claimDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attributes...))
	m.claimsTotal.Add(ctx, 1, metric.WithAttributes(attributes...))
}

// RecordUnitsProcessed adds successfully processed units.
func (m *BatchMetrics) RecordUnitsProcessed(ctx context.Context, jobKind string, count int64) {
	if m == nil || count == 0 {
		return
	}
	m.unitsProcessed.Add(ctx, count, metric.WithAttributes(
		attribute.String(AttrJobKind, jobKind),
		attribute.String(AttrWorkerID, m.workerID),
	))
}

// RecordUnitFailed adds one failed unit under its error kind.
func (m *BatchMetrics) RecordUnitFailed(ctx context.Context, jobKind, errorKind string) {
	if m == nil {
		return
	}
	m.unitsFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrJobKind, jobKind),
		attribute.String(AttrErrorKind, errorKind),
		attribute.String(AttrWorkerID, m.workerID),
	))
}

// RecordUnitsSkipped adds units skipped by the idempotency index.
func (m *BatchMetrics) RecordUnitsSkipped(ctx context.Context, jobKind string, count int64) {
	if m == nil || count == 0 {
		return
	}
	m.unitsSkipped.Add(ctx, count, metric.WithAttributes(
		attribute.String(AttrJobKind, jobKind),
		attribute.String(AttrWorkerID, m.workerID),
	))
}

// RecordQuotaDenial adds one quota refusal.
func (m *BatchMetrics) RecordQuotaDenial(ctx context.Context, jobKind string) {
	if m == nil {
		return
	}
	m.quotaDenials.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrJobKind, jobKind),
		attribute.String(AttrWorkerID, m.workerID),
	))
}

// RecordJobFinished records a terminal job outcome with its runtime.
func (m *BatchMetrics) RecordJobFinished(ctx context.Context, jobKind, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	attributes := []attribute.KeyValue{
		attribute.String(AttrJobKind, jobKind),
		attribute.String(AttrOutcome, outcome),
		attribute.String(AttrWorkerID, m.workerID),
	}
	m.jobDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attributes...))
	m.jobsFinished.Add(ctx, 1, metric.WithAttributes(attributes...))
}
