package scoring

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"strings"
	"unicode/utf8"

	"github.com/opennotes-ai/opennotes-sub006/internal/domain/entity"
	"github.com/opennotes-ai/opennotes-sub006/internal/port/outbound"
)

const (
	// tokensPerWord approximates natural-language tokenization; most
	// words map to a bit more than one token.
	tokensPerWord = 1.3

	// responseTokenOverhead is the fixed completion cost a scoring call
	// consumes beyond the prompt.
	responseTokenOverhead = 8
)

// HeuristicScorer scores candidates deterministically from a hash of the
// body. The value is a stand-in for a model judgment seeded by the content,
// so repeated runs over the same candidate agree.
type HeuristicScorer struct{}

// NewHeuristicScorer creates the built-in scorer.
func NewHeuristicScorer() *HeuristicScorer {
	return &HeuristicScorer{}
}

// EstimateUnits predicts the token cost of scoring the candidate. Words are
// roughly 1.3 tokens; bounds keep pathological bodies from skewing the
// admission check.
func (s *HeuristicScorer) EstimateUnits(candidate *entity.NoteCandidate) int64 {
	text := candidate.Body()
	if text == "" {
		return 0
	}

	words := len(strings.Fields(text))
	if words == 0 {
		runeCount := utf8.RuneCountInString(strings.TrimSpace(text))
		if runeCount == 0 {
			return 0
		}
		return int64(max(1, runeCount/4))
	}

	estimated := int(float64(words) * tokensPerWord)
	lower := max(1, words/2)
	upper := words * 3
	return int64(max(lower, min(estimated, upper)))
}

// Score produces a deterministic helpfulness score in [0, 1). Token usage
// is the admission estimate plus the fixed completion overhead.
func (s *HeuristicScorer) Score(ctx context.Context, candidate *entity.NoteCandidate) (*outbound.ScoreResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	return &outbound.ScoreResult{
		Score:      scoreFromBody(candidate.Body()),
		TokensUsed: s.EstimateUnits(candidate) + responseTokenOverhead,
	}, nil
}

// scoreFromBody maps the SHA256 of the body through one xorshift64* round
// into [0, 1).
func scoreFromBody(body string) float64 {
	sum := sha256.Sum256([]byte(body))

	seed := binary.LittleEndian.Uint64(sum[:8])
	if seed == 0 {
		seed = 0x9e3779b97f4a7c15
	}

	x := seed
	x ^= x >> 12
	x ^= x << 25
	x ^= x >> 27
	x *= 0x2545F4914F6CDD1D

	// Use the upper 53 bits to make a float in [0, 1).
	mantissa := (x >> 11) & ((1 << 53) - 1)
	return float64(mantissa) / float64(1<<53)
}
