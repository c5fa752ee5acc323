package outbound

import (
	"context"

	"github.com/opennotes-ai/opennotes-sub006/internal/domain/entity"
	"github.com/opennotes-ai/opennotes-sub006/internal/domain/valueobject"
)

// ContentScanner judges a candidate body. Implementations range from the
// built-in keyword heuristic to external moderation services.
type ContentScanner interface {
	Scan(ctx context.Context, body string) (valueobject.ScanVerdict, error)
}

// ScoreResult is the outcome of scoring one candidate. TokensUsed reports
// what the upstream model actually consumed; callers surface it in logs
// and metrics when it differs from the admission estimate.
type ScoreResult struct {
	Score      float64
	TokensUsed int64
}

// CandidateScorer scores candidates through an opaque model backend. The
// scorer reports token consumption; admission control happens in the
// caller against the quota ledger.
type CandidateScorer interface {
	// EstimateUnits predicts the token cost of scoring the candidate,
	// used for quota admission before the model call.
	EstimateUnits(candidate *entity.NoteCandidate) int64

	Score(ctx context.Context, candidate *entity.NoteCandidate) (*ScoreResult, error)
}
