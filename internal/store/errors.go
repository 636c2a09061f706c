package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned by point reads when no record matches.
var ErrNotFound = errors.New("record not found")

// StoreError wraps any failure of the underlying database. The
// orchestrator distinguishes fatal from non-fatal store failures by
// which call returned it, not by inspecting the wrapped error.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// IsNotFound reports whether err is a missing-record condition rather
// than a database failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, sql.ErrNoRows)
}
