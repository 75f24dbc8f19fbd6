package replay

import (
	"context"
	"errors"
	"fmt"
)

// PersistenceError wraps a failed store operation. Handlers surface it as "try again".
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Retryable is false only when the caller itself gave up.
func (e *PersistenceError) Retryable() bool {
	return !errors.Is(e.Err, context.Canceled)
}

func IsRetryable(err error) bool {
	var perr *PersistenceError
	return errors.As(err, &perr) && perr.Retryable()
}

func persistenceError(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}
