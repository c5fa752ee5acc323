package entity

import (
	"time"
)

// DefaultErrorSampleCap is how many error samples a scope retains. Totals
// and per-kind counts are exact regardless of the cap.
const DefaultErrorSampleCap = 5

// Well-known error kinds recorded during batch processing. Kinds are free
// form; these cover the failures the built-in handlers produce.
const (
	ErrorKindQuotaDenied    = "quota_denied"
	ErrorKindHandlerFailed  = "handler_failed"
	ErrorKindInvalidUnit    = "invalid_unit"
	ErrorKindStorageFailure = "storage_failure"
)

// RecordedError is one failed unit occurrence, small enough to keep as a
// sample.
type RecordedError struct {
	Kind       string    `json:"kind"`
	Message    string    `json:"message"`
	UnitID     string    `json:"unit_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewRecordedError builds a sample entry, truncating oversized messages so
// samples stay cheap to store and ship.
func NewRecordedError(kind, message, unitID string, occurredAt time.Time) RecordedError {
	const maxMessageLen = 500
	if len(message) > maxMessageLen {
		message = message[:maxMessageLen]
	}
	return RecordedError{
		Kind:       kind,
		Message:    message,
		UnitID:     unitID,
		OccurredAt: occurredAt.UTC(),
	}
}

// ErrorSummary is the queryable view of a scope's failures: an exact
// total, exact per-kind counts, and up to the cap of recent samples.
type ErrorSummary struct {
	Total        int64            `json:"total"`
	CountsByKind map[string]int64 `json:"counts_by_kind"`
	Samples      []RecordedError  `json:"samples"`
}

// EmptyErrorSummary returns a summary with no recorded failures.
func EmptyErrorSummary() *ErrorSummary {
	return &ErrorSummary{CountsByKind: map[string]int64{}}
}

// IsEmpty returns true when nothing failed in the scope.
func (s *ErrorSummary) IsEmpty() bool {
	return s == nil || s.Total == 0
}

// FullyFailed reports whether every attempted unit failed. Callers use it
// to downgrade an otherwise completed job: partial failure is normal,
// total failure is not.
func (s *ErrorSummary) FullyFailed(attempted int64) bool {
	if s == nil || attempted <= 0 {
		return false
	}
	return s.Total >= attempted
}
