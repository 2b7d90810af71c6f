package translate

import (
	"context"
	"errors"

	"github.com/WessleyAI/patentrag/engine/domain"
	"github.com/WessleyAI/patentrag/pkg/resilience"
)

// TransientError marks a failure that may succeed on retry.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string { return e.err.Error() }

func (e *TransientError) Unwrap() error { return e.err }

// NewTransientError wraps err as retryable.
func NewTransientError(err error) error {
	return &TransientError{err: err}
}

// FatalError marks a failure that must not be retried.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string { return e.err.Error() }

func (e *FatalError) Unwrap() error { return e.err }

// NewFatalError wraps err as non-retryable.
func NewFatalError(err error) error {
	return &FatalError{err: err}
}

// IsTransient reports whether err was explicitly marked transient.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// IsFatal reports whether err was explicitly marked fatal.
func IsFatal(err error) bool {
	var f *FatalError
	return errors.As(err, &f)
}

type temporary interface {
	Temporary() bool
}

// Retryable decides whether a failed completion attempt may be repeated with
// the same prompt. Explicit markers win over everything else. Cancellation and
// an open breaker are never retried. Errors that expose Temporary() (such as
// HTTP status errors) are trusted. Anything else, including transport failures,
// is retried.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case IsFatal(err):
		return false
	case IsTransient(err), errors.Is(err, domain.ErrMalformedResponse):
		return true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, resilience.ErrCircuitOpen):
		return false
	}
	var t temporary
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return true
}
