package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		expectedMsg string
	}{
		{
			name:        "ErrJobNotFound_has_correct_message",
			err:         ErrJobNotFound,
			expectedMsg: "batch job not found",
		},
		{
			name:        "ErrJobTerminal_has_correct_message",
			err:         ErrJobTerminal,
			expectedMsg: "batch job already in a terminal state",
		},
		{
			name:        "ErrUnknownJobKind_has_correct_message",
			err:         ErrUnknownJobKind,
			expectedMsg: "unknown job kind",
		},
		{
			name:        "ErrQuotaNotFound_has_correct_message",
			err:         ErrQuotaNotFound,
			expectedMsg: "resource quota not found",
		},
		{
			name:        "ErrQuotaInvalidUnits_has_correct_message",
			err:         ErrQuotaInvalidUnits,
			expectedMsg: "usage units must not be negative",
		},
		{
			name:        "ErrCandidateNotFound_has_correct_message",
			err:         ErrCandidateNotFound,
			expectedMsg: "note candidate not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, tt.err)
			assert.Equal(t, tt.expectedMsg, tt.err.Error())
		})
	}
}

func TestErrorMatchingBehavior(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		targetError  error
		shouldMatch  bool
		shouldUnwrap bool
	}{
		{
			name:         "direct_ErrQuotaNotFound_matches",
			err:          ErrQuotaNotFound,
			targetError:  ErrQuotaNotFound,
			shouldMatch:  true,
			shouldUnwrap: false,
		},
		{
			name:         "wrapped_ErrQuotaNotFound_matches",
			err:          fmt.Errorf("loading quota row: %w", ErrQuotaNotFound),
			targetError:  ErrQuotaNotFound,
			shouldMatch:  true,
			shouldUnwrap: true,
		},
		{
			name:         "wrapped_ErrJobTerminal_matches",
			err:          fmt.Errorf("completing job: %w", ErrJobTerminal),
			targetError:  ErrJobTerminal,
			shouldMatch:  true,
			shouldUnwrap: true,
		},
		{
			name:         "same_message_without_wrapping_does_not_match",
			err:          errors.New("resource quota not found"),
			targetError:  ErrQuotaNotFound,
			shouldMatch:  false,
			shouldUnwrap: false,
		},
		{
			name:         "different_domain_error_does_not_match",
			err:          ErrJobNotFound,
			targetError:  ErrQuotaNotFound,
			shouldMatch:  false,
			shouldUnwrap: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches := errors.Is(tt.err, tt.targetError)
			assert.Equal(t, tt.shouldMatch, matches)

			if tt.shouldUnwrap {
				unwrapped := errors.Unwrap(tt.err)
				assert.NotNil(t, unwrapped)
				assert.True(t, errors.Is(unwrapped, tt.targetError))
			}
		})
	}
}
