package entity

import (
	"errors"
	"testing"
	"time"

	"github.com/opennotes-ai/opennotes-sub006/internal/domain/errors/domain"
	"github.com/opennotes-ai/opennotes-sub006/internal/domain/valueobject"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidateTime() time.Time {
	return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
}

func newTestCandidate(t *testing.T) *NoteCandidate {
	t.Helper()
	candidate, err := NewNoteCandidate(uuid.New(), "post-123", "context for this claim", 7)
	require.NoError(t, err)
	return candidate
}

func TestNewNoteCandidate(t *testing.T) {
	t.Run("should create candidate in pending review", func(t *testing.T) {
		candidate := newTestCandidate(t)

		assert.Equal(t, valueobject.CandidateStatusPendingReview, candidate.Status())
		assert.Nil(t, candidate.Score())
		assert.Nil(t, candidate.ScanVerdict())
		assert.Equal(t, int64(7), candidate.BatchIndex())
		assert.Nil(t, candidate.ProcessedBy())
	})

	t.Run("should reject missing post ref", func(t *testing.T) {
		_, err := NewNoteCandidate(uuid.New(), "", "body", 0)
		require.Error(t, err)
	})

	t.Run("should reject negative batch index", func(t *testing.T) {
		_, err := NewNoteCandidate(uuid.New(), "post-1", "body", -1)
		require.Error(t, err)
	})
}

func TestNoteCandidate_Approve(t *testing.T) {
	t.Run("should approve pending candidate and stamp the job", func(t *testing.T) {
		candidate := newTestCandidate(t)
		jobID := uuid.New()

		require.NoError(t, candidate.Approve(jobID))
		assert.Equal(t, valueobject.CandidateStatusApproved, candidate.Status())
		require.NotNil(t, candidate.ProcessedBy())
		assert.Equal(t, jobID, *candidate.ProcessedBy())
	})

	t.Run("re-approving should be a no-op", func(t *testing.T) {
		candidate := newTestCandidate(t)
		jobID := uuid.New()

		require.NoError(t, candidate.Approve(jobID))
		require.NoError(t, candidate.Approve(uuid.New()))
		assert.Equal(t, jobID, *candidate.ProcessedBy())
	})

	t.Run("should refuse approval from rejected", func(t *testing.T) {
		candidate := RestoreNoteCandidate(
			uuid.New(), uuid.New(), "post-9", "body",
			valueobject.CandidateStatusRejected,
			nil, nil, 0, nil,
			candidateTime(), candidateTime(),
		)

		err := candidate.Approve(uuid.New())
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrCandidateTransition))
	})
}

func TestNoteCandidate_SetScore(t *testing.T) {
	t.Run("should record score as absolute overwrite", func(t *testing.T) {
		candidate := newTestCandidate(t)

		require.NoError(t, candidate.SetScore(uuid.New(), 0.42))
		require.NoError(t, candidate.SetScore(uuid.New(), 0.42))
		require.NotNil(t, candidate.Score())
		assert.InDelta(t, 0.42, *candidate.Score(), 1e-9)
	})

	t.Run("should reject out of range scores", func(t *testing.T) {
		candidate := newTestCandidate(t)
		assert.Error(t, candidate.SetScore(uuid.New(), -0.1))
		assert.Error(t, candidate.SetScore(uuid.New(), 1.1))
	})
}

func TestNoteCandidate_SetScanVerdict(t *testing.T) {
	t.Run("clear verdict should leave status alone", func(t *testing.T) {
		candidate := newTestCandidate(t)

		require.NoError(t, candidate.SetScanVerdict(uuid.New(), valueobject.ScanVerdictClear))
		require.NotNil(t, candidate.ScanVerdict())
		assert.Equal(t, valueobject.ScanVerdictClear, *candidate.ScanVerdict())
		assert.Equal(t, valueobject.CandidateStatusPendingReview, candidate.Status())
	})

	t.Run("flagged verdict should quarantine pending candidates", func(t *testing.T) {
		candidate := newTestCandidate(t)

		require.NoError(t, candidate.SetScanVerdict(uuid.New(), valueobject.ScanVerdictFlagged))
		assert.Equal(t, valueobject.CandidateStatusQuarantined, candidate.Status())
	})

	t.Run("flagged verdict on rejected candidate keeps it rejected", func(t *testing.T) {
		candidate := RestoreNoteCandidate(
			uuid.New(), uuid.New(), "post-9", "body",
			valueobject.CandidateStatusRejected,
			nil, nil, 0, nil,
			candidateTime(), candidateTime(),
		)

		require.NoError(t, candidate.SetScanVerdict(uuid.New(), valueobject.ScanVerdictFlagged))
		assert.Equal(t, valueobject.CandidateStatusRejected, candidate.Status())
	})
}
