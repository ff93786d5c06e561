// Package errkind classifies failures the way spec.md §7 requires:
// validation, dedup, transient, malformed, inconsistency, invariant.
// It wraps errors with fmt.Errorf/%w rather than an exception hierarchy.
package errkind

import (
	"errors"
	"fmt"
)

// Kind is the closed set of error classifications.
type Kind string

const (
	Validation    Kind = "validation"
	Dedup         Kind = "dedup"
	Transient     Kind = "transient"
	Malformed     Kind = "malformed"
	Inconsistency Kind = "inconsistency"
	Invariant     Kind = "invariant"
)

// Error attaches a Kind to an underlying cause.
type Error struct {
	Kind  Kind
	Stage string
	Err   error
}

func (e *Error) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Stage, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap creates a classified error.
func Wrap(kind Kind, stage string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// Is reports whether err was produced by Wrap with the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Retryable reports whether err should be retried with backoff.
func Retryable(err error) bool {
	return Is(err, Transient)
}
