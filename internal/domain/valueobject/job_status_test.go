package valueobject

import (
	"testing"
)

func TestNewJobStatus_ValidStatuses(t *testing.T) {
	validStatuses := []struct {
		input    string
		expected JobStatus
	}{
		{"pending", JobStatusPending},
		{"in_progress", JobStatusInProgress},
		{"completed", JobStatusCompleted},
		{"failed", JobStatusFailed},
	}

	for _, tc := range validStatuses {
		t.Run(tc.input, func(t *testing.T) {
			status, err := NewJobStatus(tc.input)
			if err != nil {
				t.Fatalf("Expected no error for valid status %s, got: %v", tc.input, err)
			}

			if status != tc.expected {
				t.Errorf("Expected status %s, got %s", tc.expected, status)
			}
		})
	}
}

func TestNewJobStatus_InvalidStatuses(t *testing.T) {
	invalidStatuses := []string{
		"invalid",
		"PENDING",     // case sensitive
		"Completed",   // case sensitive
		"",            // empty string
		" pending",    // leading space
		"pending ",    // trailing space
		"running",     // not a valid job status
		"cancelled",   // not a valid job status
		"queued",      // not a valid job status
		"in-progress", // wrong separator
	}

	for _, status := range invalidStatuses {
		t.Run(status, func(t *testing.T) {
			_, err := NewJobStatus(status)
			if err == nil {
				t.Fatalf("Expected error for invalid status %s, got none", status)
			}

			expectedError := "invalid job status: " + status
			if err.Error() != expectedError {
				t.Errorf("Expected error '%s', got '%v'", expectedError, err)
			}
		})
	}
}

func TestJobStatus_String(t *testing.T) {
	testCases := []struct {
		status   JobStatus
		expected string
	}{
		{JobStatusPending, "pending"},
		{JobStatusInProgress, "in_progress"},
		{JobStatusCompleted, "completed"},
		{JobStatusFailed, "failed"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			result := tc.status.String()
			if result != tc.expected {
				t.Errorf("Expected string %s, got %s", tc.expected, result)
			}
		})
	}
}

func TestJobStatus_IsTerminal(t *testing.T) {
	testCases := []struct {
		status     JobStatus
		isTerminal bool
	}{
		{JobStatusPending, false},
		{JobStatusInProgress, false},
		{JobStatusCompleted, true},
		{JobStatusFailed, true},
	}

	for _, tc := range testCases {
		t.Run(tc.status.String(), func(t *testing.T) {
			result := tc.status.IsTerminal()
			if result != tc.isTerminal {
				t.Errorf("Expected IsTerminal() to be %v for status %s, got %v",
					tc.isTerminal, tc.status, result)
			}
		})
	}
}

func TestJobStatus_CanTransitionTo_ValidTransitions(t *testing.T) {
	validTransitions := []struct {
		from JobStatus
		to   JobStatus
	}{
		// From pending
		{JobStatusPending, JobStatusInProgress},
		{JobStatusPending, JobStatusFailed},

		// From in_progress
		{JobStatusInProgress, JobStatusCompleted},
		{JobStatusInProgress, JobStatusFailed},
	}

	for _, tc := range validTransitions {
		t.Run(tc.from.String()+"_to_"+tc.to.String(), func(t *testing.T) {
			canTransition := tc.from.CanTransitionTo(tc.to)
			if !canTransition {
				t.Errorf("Expected transition from %s to %s to be valid, but it was not",
					tc.from, tc.to)
			}
		})
	}
}

func TestJobStatus_CanTransitionTo_InvalidTransitions(t *testing.T) {
	invalidTransitions := []struct {
		from JobStatus
		to   JobStatus
	}{
		// Invalid from pending
		{JobStatusPending, JobStatusCompleted}, // must start first

		// Invalid from in_progress
		{JobStatusInProgress, JobStatusPending}, // cannot go back

		// Terminal states cannot transition to anything
		{JobStatusCompleted, JobStatusPending},
		{JobStatusCompleted, JobStatusInProgress},
		{JobStatusCompleted, JobStatusFailed},

		{JobStatusFailed, JobStatusPending},
		{JobStatusFailed, JobStatusInProgress},
		{JobStatusFailed, JobStatusCompleted},

		// Self-transitions should be invalid
		{JobStatusPending, JobStatusPending},
		{JobStatusInProgress, JobStatusInProgress},
		{JobStatusCompleted, JobStatusCompleted},
		{JobStatusFailed, JobStatusFailed},
	}

	for _, tc := range invalidTransitions {
		t.Run(tc.from.String()+"_to_"+tc.to.String(), func(t *testing.T) {
			canTransition := tc.from.CanTransitionTo(tc.to)
			if canTransition {
				t.Errorf("Expected transition from %s to %s to be invalid, but it was allowed",
					tc.from, tc.to)
			}
		})
	}
}

func TestJobStatus_CanTransitionTo_EdgeCases(t *testing.T) {
	t.Run("Invalid source status", func(t *testing.T) {
		invalidStatus := JobStatus("invalid")
		canTransition := invalidStatus.CanTransitionTo(JobStatusPending)
		if canTransition {
			t.Error("Expected invalid status to not allow transitions")
		}
	})

	t.Run("Invalid target status", func(t *testing.T) {
		invalidTarget := JobStatus("invalid")
		canTransition := JobStatusPending.CanTransitionTo(invalidTarget)
		if canTransition {
			t.Error("Expected transition to invalid status to be disallowed")
		}
	})

	t.Run("Empty status", func(t *testing.T) {
		emptyStatus := JobStatus("")
		canTransition := emptyStatus.CanTransitionTo(JobStatusPending)
		if canTransition {
			t.Error("Expected empty status to not allow transitions")
		}

		canTransition = JobStatusPending.CanTransitionTo(emptyStatus)
		if canTransition {
			t.Error("Expected transition to empty status to be disallowed")
		}
	})
}

func TestAllJobStatuses(t *testing.T) {
	allStatuses := AllJobStatuses()

	expectedCount := 4 // pending, in_progress, completed, failed
	if len(allStatuses) != expectedCount {
		t.Errorf("Expected %d statuses, got %d", expectedCount, len(allStatuses))
	}

	expectedStatuses := map[JobStatus]bool{
		JobStatusPending:    true,
		JobStatusInProgress: true,
		JobStatusCompleted:  true,
		JobStatusFailed:     true,
	}

	for _, status := range allStatuses {
		if !expectedStatuses[status] {
			t.Errorf("Unexpected status in AllJobStatuses: %s", status)
		}
		delete(expectedStatuses, status)
	}

	if len(expectedStatuses) > 0 {
		t.Errorf("Missing statuses in AllJobStatuses: %v", expectedStatuses)
	}
}

func TestJobStatus_TransitionChains(t *testing.T) {
	t.Run("Happy path flow", func(t *testing.T) {
		// pending -> in_progress -> completed
		status := JobStatusPending

		if !status.CanTransitionTo(JobStatusInProgress) {
			t.Error("Should be able to transition from pending to in_progress")
		}
		status = JobStatusInProgress

		if !status.CanTransitionTo(JobStatusCompleted) {
			t.Error("Should be able to transition from in_progress to completed")
		}

		// Completed is terminal - no further transitions
		status = JobStatusCompleted
		terminalTransitions := []JobStatus{
			JobStatusPending, JobStatusInProgress, JobStatusFailed,
		}

		for _, target := range terminalTransitions {
			if status.CanTransitionTo(target) {
				t.Errorf("Terminal status %s should not be able to transition to %s", status, target)
			}
		}
	})

	t.Run("Failure path", func(t *testing.T) {
		// pending -> in_progress -> failed
		status := JobStatusPending

		if !status.CanTransitionTo(JobStatusInProgress) {
			t.Error("Should be able to transition from pending to in_progress")
		}
		status = JobStatusInProgress

		if !status.CanTransitionTo(JobStatusFailed) {
			t.Error("Should be able to transition from in_progress to failed")
		}

		// Failed is terminal
		status = JobStatusFailed
		if status.CanTransitionTo(JobStatusPending) {
			t.Error("Failed status should not be able to transition back to pending")
		}
	})

	t.Run("No restart capability", func(t *testing.T) {
		terminalStates := []JobStatus{
			JobStatusCompleted,
			JobStatusFailed,
		}

		for _, terminal := range terminalStates {
			if terminal.CanTransitionTo(JobStatusPending) {
				t.Errorf("Terminal status %s should not be able to restart to pending", terminal)
			}
			if terminal.CanTransitionTo(JobStatusInProgress) {
				t.Errorf("Terminal status %s should not be able to transition to in_progress", terminal)
			}
		}
	})
}
