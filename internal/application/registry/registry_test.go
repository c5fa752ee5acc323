package registry

import (
	"context"
	"testing"

	"github.com/opennotes-ai/opennotes-sub006/internal/domain/entity"
	domainerrors "github.com/opennotes-ai/opennotes-sub006/internal/domain/errors/domain"
	"github.com/opennotes-ai/opennotes-sub006/internal/domain/valueobject"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopHandler struct {
	kind valueobject.JobKind
}

func (h *noopHandler) Kind() valueobject.JobKind {
	return h.kind
}

func (h *noopHandler) Process(_ context.Context, _ *entity.BatchJob, _ *entity.NoteCandidate) error {
	return nil
}

func TestRegistry(t *testing.T) {
	t.Run("should resolve a registered handler", func(t *testing.T) {
		r := New()
		handler := &noopHandler{kind: valueobject.JobKindCandidateApproval}
		require.NoError(t, r.Register(handler))

		resolved, err := r.Resolve(valueobject.JobKindCandidateApproval)

		require.NoError(t, err)
		assert.Same(t, handler, resolved)
	})

	t.Run("should reject a nil handler", func(t *testing.T) {
		r := New()

		err := r.Register(nil)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "handler cannot be nil")
	})

	t.Run("should reject a handler with an invalid kind", func(t *testing.T) {
		r := New()

		err := r.Register(&noopHandler{kind: valueobject.JobKind("defrag")})

		require.Error(t, err)
		assert.ErrorIs(t, err, domainerrors.ErrUnknownJobKind)
	})

	t.Run("should reject duplicate registrations", func(t *testing.T) {
		r := New()
		require.NoError(t, r.Register(&noopHandler{kind: valueobject.JobKindContentScan}))

		err := r.Register(&noopHandler{kind: valueobject.JobKindContentScan})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "already registered")
	})

	t.Run("should fail to resolve an unregistered kind", func(t *testing.T) {
		r := New()

		_, err := r.Resolve(valueobject.JobKindScoringRun)

		require.Error(t, err)
		assert.ErrorIs(t, err, domainerrors.ErrUnknownJobKind)
	})

	t.Run("should list registered kinds", func(t *testing.T) {
		r := New()
		require.NoError(t, r.Register(&noopHandler{kind: valueobject.JobKindCandidateApproval}))
		require.NoError(t, r.Register(&noopHandler{kind: valueobject.JobKindScoringRun}))

		kinds := r.Kinds()

		assert.ElementsMatch(t, []valueobject.JobKind{
			valueobject.JobKindCandidateApproval,
			valueobject.JobKindScoringRun,
		}, kinds)
	})
}
