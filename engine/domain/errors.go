package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for pipeline failures.
var (
	ErrEmptySection       = errors.New("section text is empty")
	ErrInvalidSection     = errors.New("invalid section")
	ErrInvalidEntry       = errors.New("invalid terminology entry")
	ErrIndexUnavailable   = errors.New("vector index unavailable")
	ErrSectionTooLarge    = errors.New("section exceeds prompt budget")
	ErrMalformedResponse  = errors.New("malformed model response")
	ErrRetriesExhausted   = errors.New("retries exhausted")
	ErrServiceUnavailable = errors.New("service unavailable")
)

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// SectionError records why a single section failed and in which state.
type SectionError struct {
	Kind    SectionKind
	Ordinal int
	State   string
	Err     error
}

func (e *SectionError) Error() string {
	return fmt.Sprintf("section %s#%d failed in %s: %v", e.Kind, e.Ordinal, e.State, e.Err)
}

func (e *SectionError) Unwrap() error { return e.Err }
