// Package messaging provides the domain types carried over the job queue.
// A dispatch message is intentionally thin: it names a durable job, and the
// worker loads everything else from storage, so redeliveries and duplicates
// degrade to a resume instead of divergent state.
package messaging

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/opennotes-ai/opennotes-sub006/internal/domain/valueobject"

	"github.com/google/uuid"
)

const (
	maxMessageIDLength = 255
	minValidYear       = 2000
)

// JobDispatchMessage asks a worker to run one batch job.
type JobDispatchMessage struct {
	MessageID     string              `json:"message_id"`
	JobID         uuid.UUID           `json:"job_id"`
	JobKind       valueobject.JobKind `json:"job_kind"`
	CorrelationID string              `json:"correlation_id,omitempty"`
	EnqueuedAt    time.Time           `json:"enqueued_at"`
	RetryAttempt  int                 `json:"retry_attempt"`
}

// NewJobDispatchMessage builds a dispatch for a persisted job.
func NewJobDispatchMessage(jobID uuid.UUID, kind valueobject.JobKind, correlationID string) JobDispatchMessage {
	return JobDispatchMessage{
		MessageID:     uuid.New().String(),
		JobID:         jobID,
		JobKind:       kind,
		CorrelationID: correlationID,
		EnqueuedAt:    time.Now().UTC(),
	}
}

// Validate checks the message for structural problems before it is acted on.
func (m JobDispatchMessage) Validate() error {
	if m.MessageID == "" {
		return errors.New("message_id is required")
	}
	if len(m.MessageID) > maxMessageIDLength {
		return errors.New("message_id too long")
	}
	if m.JobID == uuid.Nil {
		return errors.New("job_id cannot be nil")
	}
	if !m.JobKind.IsValid() {
		return errors.New("job_kind is not a known kind")
	}
	if m.RetryAttempt < 0 {
		return errors.New("retry_attempt cannot be negative")
	}
	if !m.EnqueuedAt.IsZero() && m.EnqueuedAt.Year() < minValidYear {
		return errors.New("enqueued_at is implausibly old")
	}
	return nil
}

// Marshal serializes the message for the wire.
func (m JobDispatchMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalJobDispatchMessage decodes and validates a wire payload.
func UnmarshalJobDispatchMessage(data []byte) (JobDispatchMessage, error) {
	var m JobDispatchMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return JobDispatchMessage{}, err
	}
	if err := m.Validate(); err != nil {
		return JobDispatchMessage{}, err
	}
	return m, nil
}
