package entity

// DomainError represents a domain-specific error. It optionally wraps a
// sentinel so callers can classify it with errors.Is.
type DomainError struct {
	message string
	code    string
	cause   error
}

// NewDomainError creates a new domain error.
func NewDomainError(message, code string) *DomainError {
	return &DomainError{
		message: message,
		code:    code,
	}
}

// NewDomainErrorWithCause creates a new domain error wrapping a sentinel.
func NewDomainErrorWithCause(message, code string, cause error) *DomainError {
	return &DomainError{
		message: message,
		code:    code,
		cause:   cause,
	}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	return e.message
}

// Code returns the error code.
func (e *DomainError) Code() string {
	return e.code
}

// Message returns the error message.
func (e *DomainError) Message() string {
	return e.message
}

// Unwrap returns the wrapped sentinel, if any.
func (e *DomainError) Unwrap() error {
	return e.cause
}
