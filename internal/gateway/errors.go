package gateway

import (
	"errors"
	"fmt"
)

// Failure classes reported by the control plane. Callers classify with
// errors.Is; everything not wrapped in one of these is treated as fatal.
var (
	// ErrNotFound: a referenced API, resource or ancestor does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists: the object being created is already present.
	// Recovered locally by the configurator via the update fallback.
	ErrAlreadyExists = errors.New("already exists")
	// ErrConflict: a dependency-order violation or an ambiguous match.
	ErrConflict = errors.New("conflict")
	// ErrPermissionDenied: credentials problem, surfaced verbatim.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrTransient: network or throttling failure, safe to retry.
	ErrTransient = errors.New("transient failure")
)

// StepError names the reconciliation step a failure occurred in
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Retryable reports whether err is safe to retry
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
