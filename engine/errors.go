package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueFull is returned by TrySubmit when the task queue is at
	// capacity. Blocking Submit never returns it.
	ErrQueueFull = errors.New("task queue is full")

	// ErrQueueClosed is the internal sentinel for a closed task queue.
	ErrQueueClosed = errors.New("task queue is closed")

	// ErrEngineShutdown is returned by Submit and TrySubmit once
	// shutdown has begun.
	ErrEngineShutdown = errors.New("engine is shut down")

	// ErrNotStarted is returned by operations that require Start.
	ErrNotStarted = errors.New("engine not started")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("engine already started")

	// ErrShutdownTimeout is returned when in-flight work did not drain
	// within the shutdown grace period.
	ErrShutdownTimeout = errors.New("shutdown grace period exceeded")

	// ErrCancelled is the error carried by a Result with OutcomeCancelled.
	ErrCancelled = errors.New("task cancelled")
)

// transientError marks an error as retryable regardless of its type.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return "transient: " + e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// permanentError marks an error as terminal: the task fails without
// further attempts.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return "permanent: " + e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Transient wraps err so the retry policy classifies it as retryable.
// Returns nil if err is nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// Permanent wraps err so the retry policy classifies it as terminal.
// Use it for malformed input, authorization failures, and other errors
// that a retry cannot fix. Returns nil if err is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Permanentf is shorthand for Permanent(fmt.Errorf(...)).
func Permanentf(format string, args ...any) error {
	return Permanent(fmt.Errorf(format, args...))
}

// IsTransient reports whether err was wrapped with Transient.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
