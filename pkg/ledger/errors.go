package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrTableNotFound is returned by Store.OpenTable for unknown tables.
	ErrTableNotFound = errors.New("ledger table not found")

	// ErrTableExists is returned by Store.CreateTable when the name is taken.
	ErrTableExists = errors.New("ledger table already exists")
)

// WriteError reports a failed append. The record was not written and is not
// kept anywhere; callers decide whether to surface, drop or retry it.
type WriteError struct {
	Table  string
	Record Record
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("append to ledger table %q failed: %v", e.Table, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// BootstrapError reports that the ledger table could not be located or created.
// It is fatal for startup.
type BootstrapError struct {
	Table string
	Op    string
	Err   error
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("ledger bootstrap (%s %q) failed: %v", e.Op, e.Table, e.Err)
}

func (e *BootstrapError) Unwrap() error {
	return e.Err
}
