package commands

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by every operation invoked outside an active
// Connect/Disconnect window.
var ErrNotConnected = errors.New("backend not connected")

// BackendError wraps a transport or store failure. Callers decide retry vs
// fail-open; this layer never swallows one except where a feature documents
// fail-open behavior (see auth.Blocklist).
type BackendError struct {
	Op  string
	Key string
	Err error
}

func (e *BackendError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("backend %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// TransactionConflictError reports a compare-and-swap loop that exhausted
// its retry budget without committing.
type TransactionConflictError struct {
	Key     string
	Field   string
	Retries int
}

func (e *TransactionConflictError) Error() string {
	return fmt.Sprintf("transaction conflict on %s/%s after %d retries", e.Key, e.Field, e.Retries)
}

// Wrap turns err into a *BackendError for op/key unless it is already one
// of this package's error kinds. A nil err stays nil.
func Wrap(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var be *BackendError
	var tc *TransactionConflictError
	if errors.Is(err, ErrNotConnected) || errors.As(err, &be) || errors.As(err, &tc) {
		return err
	}
	return &BackendError{Op: op, Key: key, Err: err}
}
