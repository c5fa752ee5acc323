// Package registry maps job kinds to the unit handlers that process their
// candidates. The orchestrator resolves handlers here, so adding a job kind
// is a registration plus a handler, with no change to the claim loop.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/opennotes-ai/opennotes-sub006/internal/domain/entity"
	domainerrors "github.com/opennotes-ai/opennotes-sub006/internal/domain/errors/domain"
	"github.com/opennotes-ai/opennotes-sub006/internal/domain/valueobject"
)

// UnitHandler processes one claimed candidate for a job. Implementations
// must be idempotent: redeliveries and resumes can replay a unit whose
// previous attempt already took effect.
type UnitHandler interface {
	Kind() valueobject.JobKind
	Process(ctx context.Context, job *entity.BatchJob, candidate *entity.NoteCandidate) error
}

// Registry holds the handler for each job kind.
type Registry struct {
	mu       sync.RWMutex
	handlers map[valueobject.JobKind]UnitHandler
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		handlers: make(map[valueobject.JobKind]UnitHandler),
	}
}

// Register adds a handler. Registering a kind twice is a wiring bug and is
// rejected rather than silently replaced.
func (r *Registry) Register(handler UnitHandler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}
	kind := handler.Kind()
	if !kind.IsValid() {
		return fmt.Errorf("%w: %s", domainerrors.ErrUnknownJobKind, kind.String())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[kind]; exists {
		return fmt.Errorf("handler for kind %s already registered", kind.String())
	}
	r.handlers[kind] = handler
	return nil
}

// Resolve returns the handler for the kind.
func (r *Registry) Resolve(kind valueobject.JobKind) (UnitHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, exists := r.handlers[kind]
	if !exists {
		return nil, fmt.Errorf("%w: %s", domainerrors.ErrUnknownJobKind, kind.String())
	}
	return handler, nil
}

// Kinds returns the registered job kinds.
func (r *Registry) Kinds() []valueobject.JobKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]valueobject.JobKind, 0, len(r.handlers))
	for kind := range r.handlers {
		kinds = append(kinds, kind)
	}
	return kinds
}
