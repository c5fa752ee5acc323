package valueobject

import "fmt"

// CandidateStatus represents the review state of a note candidate.
type CandidateStatus string

// Candidate status constants.
const (
	CandidateStatusPendingReview CandidateStatus = "pending_review"
	CandidateStatusApproved      CandidateStatus = "approved"
	CandidateStatusRejected      CandidateStatus = "rejected"
	CandidateStatusQuarantined   CandidateStatus = "quarantined"
)

var validCandidateStatuses = map[CandidateStatus]bool{
	CandidateStatusPendingReview: true,
	CandidateStatusApproved:      true,
	CandidateStatusRejected:      true,
	CandidateStatusQuarantined:   true,
}

// NewCandidateStatus creates a new CandidateStatus with validation.
func NewCandidateStatus(status string) (CandidateStatus, error) {
	s := CandidateStatus(status)
	if !validCandidateStatuses[s] {
		return "", fmt.Errorf("invalid candidate status: %s", status)
	}
	return s, nil
}

// String returns the string representation of the status.
func (s CandidateStatus) String() string {
	return string(s)
}

// CanTransitionTo returns true if the status can transition to the target
// status. Approval and rejection only apply to candidates under review;
// quarantine can be entered from any non-rejected state.
func (s CandidateStatus) CanTransitionTo(target CandidateStatus) bool {
	transitions := map[CandidateStatus][]CandidateStatus{
		CandidateStatusPendingReview: {
			CandidateStatusApproved,
			CandidateStatusRejected,
			CandidateStatusQuarantined,
		},
		CandidateStatusApproved: {
			CandidateStatusQuarantined,
		},
		CandidateStatusRejected: {},
		CandidateStatusQuarantined: {
			CandidateStatusPendingReview,
		},
	}

	validTransitions, exists := transitions[s]
	if !exists {
		return false
	}

	for _, validTarget := range validTransitions {
		if target == validTarget {
			return true
		}
	}
	return false
}
