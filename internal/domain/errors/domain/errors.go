// Package domain provides domain-specific error definitions and utilities.
package domain

import "errors"

// Job-related errors.
var (
	ErrJobNotFound      = errors.New("batch job not found")
	ErrJobTerminal      = errors.New("batch job already in a terminal state")
	ErrInvalidJobState  = errors.New("batch job is not in a valid state for this operation")
	ErrUnknownJobKind   = errors.New("unknown job kind")
	ErrNoMatchingUnits  = errors.New("no candidates match the job filter")
	ErrJobAlreadyClaims = errors.New("batch job is already being processed")
)

// Quota-related errors.
var (
	ErrQuotaNotFound       = errors.New("resource quota not found")
	ErrQuotaInvalidUnits   = errors.New("usage units must not be negative")
	ErrCandidateNotFound   = errors.New("note candidate not found")
	ErrCandidateTransition = errors.New("invalid candidate status transition")
)

// General domain errors.
var (
	ErrInvalidInput = errors.New("invalid input")
)
