// Package worker contains the batch claim loop and the unit handlers it
// drives. The orchestrator owns claiming, idempotency, progress, and error
// accounting; handlers only know how to process one candidate. Handlers
// report per-unit problems as UnitFailure values; any other error is
// treated as infrastructure trouble and aborts the run for redelivery.
package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/opennotes-ai/opennotes-sub006/internal/application/common/slogger"
	"github.com/opennotes-ai/opennotes-sub006/internal/domain/entity"
	"github.com/opennotes-ai/opennotes-sub006/internal/domain/valueobject"
	"github.com/opennotes-ai/opennotes-sub006/internal/port/outbound"
)

// errQuotaDenied marks units refused by quota admission. The orchestrator
// records them under their own error kind so operators can tell throttling
// from genuine failures.
var errQuotaDenied = errors.New("quota denied")

// ApprovalHandler approves candidates still under review.
type ApprovalHandler struct{}

// NewApprovalHandler creates the approval handler.
func NewApprovalHandler() *ApprovalHandler {
	return &ApprovalHandler{}
}

// Kind returns the job kind this handler processes.
func (h *ApprovalHandler) Kind() valueobject.JobKind {
	return valueobject.JobKindCandidateApproval
}

// Process approves the candidate. Approval of an already approved
// candidate is a no-op inside the entity, so replays converge.
func (h *ApprovalHandler) Process(_ context.Context, job *entity.BatchJob, candidate *entity.NoteCandidate) error {
	if err := candidate.Approve(job.ID()); err != nil {
		return NewUnitFailure(entity.ErrorKindInvalidUnit, err)
	}
	return nil
}

// ScanHandler runs candidates through a content scanner and records the
// verdict. Flagged candidates are quarantined by the entity transition.
type ScanHandler struct {
	scanner outbound.ContentScanner
}

// NewScanHandler creates a scan handler over the given scanner backend.
func NewScanHandler(scanner outbound.ContentScanner) *ScanHandler {
	return &ScanHandler{scanner: scanner}
}

// Kind returns the job kind this handler processes.
func (h *ScanHandler) Kind() valueobject.JobKind {
	return valueobject.JobKindContentScan
}

// Process scans the candidate body and stores the verdict.
func (h *ScanHandler) Process(ctx context.Context, job *entity.BatchJob, candidate *entity.NoteCandidate) error {
	verdict, err := h.scanner.Scan(ctx, candidate.Body())
	if err != nil {
		return NewUnitFailure(entity.ErrorKindHandlerFailed, fmt.Errorf("content scan failed: %w", err))
	}
	if err := candidate.SetScanVerdict(job.ID(), verdict); err != nil {
		return NewUnitFailure(entity.ErrorKindInvalidUnit, err)
	}
	return nil
}

// ScoringHandler scores candidates through a model backend, metering token
// consumption against the tenant's quota. Admission happens before the
// model call; a denial fails the unit without stopping the run.
type ScoringHandler struct {
	scorer outbound.CandidateScorer
	ledger outbound.QuotaLedger
}

// NewScoringHandler creates a scoring handler over the scorer and ledger.
func NewScoringHandler(scorer outbound.CandidateScorer, ledger outbound.QuotaLedger) *ScoringHandler {
	return &ScoringHandler{scorer: scorer, ledger: ledger}
}

// Kind returns the job kind this handler processes.
func (h *ScoringHandler) Kind() valueobject.JobKind {
	return valueobject.JobKindScoringRun
}

// Process admits the estimated token cost, scores the candidate, and
// stores the score. A quota denial fails the unit without stopping the
// run; a ledger error is infrastructure trouble and aborts it. Scorer
// failures after admission are appended to the usage trail so the
// metering stays honest.
func (h *ScoringHandler) Process(ctx context.Context, job *entity.BatchJob, candidate *entity.NoteCandidate) error {
	estimate := h.scorer.EstimateUnits(candidate)
	label := job.ID().String()

	decision, err := h.ledger.CheckAndRecord(
		ctx, candidate.TenantID(), valueobject.ResourceKindLLMTokens, estimate, label)
	if err != nil {
		return fmt.Errorf("quota admission failed: %w", err)
	}
	if !decision.Allowed {
		return NewUnitFailure(entity.ErrorKindQuotaDenied,
			fmt.Errorf("%w: %s", errQuotaDenied, decision.Reason.String()))
	}

	result, err := h.scorer.Score(ctx, candidate)
	if err != nil {
		if recordErr := h.ledger.RecordFailure(
			ctx, candidate.TenantID(), valueobject.ResourceKindLLMTokens,
			estimate, label, err.Error()); recordErr != nil {
			slogger.Warn(ctx, "Failed to record scorer failure in usage trail", slogger.Fields2(
				"error", recordErr.Error(),
				"candidate_id", candidate.ID().String(),
			))
		}
		return NewUnitFailure(entity.ErrorKindHandlerFailed, fmt.Errorf("scoring failed: %w", err))
	}

	if result.TokensUsed != estimate {
		slogger.Debug(ctx, "Scorer token usage diverged from estimate", slogger.Fields3(
			"candidate_id", candidate.ID().String(),
			"estimated", estimate,
			"used", result.TokensUsed,
		))
	}

	if err := candidate.SetScore(job.ID(), result.Score); err != nil {
		return NewUnitFailure(entity.ErrorKindInvalidUnit, err)
	}
	return nil
}
