package valueobject

import "fmt"

// JobKind identifies the kind of work a batch job performs over note
// candidates. Each kind has its own unit handler and claim predicate.
type JobKind string

// Job kind constants.
const (
	JobKindCandidateApproval JobKind = "candidate_approval"
	JobKindContentScan       JobKind = "content_scan"
	JobKindScoringRun        JobKind = "scoring_run"
)

var validJobKinds = map[JobKind]bool{
	JobKindCandidateApproval: true,
	JobKindContentScan:       true,
	JobKindScoringRun:        true,
}

// NewJobKind creates a new JobKind with validation.
func NewJobKind(kind string) (JobKind, error) {
	k := JobKind(kind)
	if !validJobKinds[k] {
		return "", fmt.Errorf("invalid job kind: %s", kind)
	}
	return k, nil
}

// String returns the string representation of the kind.
func (k JobKind) String() string {
	return string(k)
}

// IsValid returns true if the kind is a known job kind.
func (k JobKind) IsValid() bool {
	return validJobKinds[k]
}

// MetersQuota returns true if units of this kind consume metered resources
// and must pass the quota ledger before processing.
func (k JobKind) MetersQuota() bool {
	return k == JobKindScoringRun
}

// AllJobKinds returns all valid job kinds.
func AllJobKinds() []JobKind {
	kinds := make([]JobKind, 0, len(validJobKinds))
	for kind := range validJobKinds {
		kinds = append(kinds, kind)
	}
	return kinds
}
