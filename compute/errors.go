package compute

import (
	"errors"
)

// Error tags an adapter error as transient or fatal. Transient errors
// (e.g. an unreachable resource manager, a timed-out call) are retried
// with bounded backoff and never affect node state. Fatal errors (e.g.
// a rejected job specification) surface to the node's terminal state
// immediately.
type Error struct {
	Err       error
	Transient bool
}

func (e *Error) Error() string {
	if e.Transient {
		return "transient: " + e.Err.Error()
	}
	return "fatal: " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// TransientError tags an error as transient.
func TransientError(err error) error {
	return &Error{Err: err, Transient: true}
}

// FatalError tags an error as fatal.
func FatalError(err error) error {
	return &Error{Err: err, Transient: false}
}

// IsTransient reports whether an adapter error should be retried.
// Untagged errors default to transient: a failure whose cause is
// unclear must not fail the node.
func IsTransient(err error) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Transient
	}
	return true
}
