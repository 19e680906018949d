package core

import (
	"errors"
	"fmt"
)

// Fatal errors returned by the importer before or instead of a result.
var (
	ErrFileNotFound   = errors.New("file not found")
	ErrFileUnreadable = errors.New("file unreadable")
	ErrEmptyFile      = errors.New("empty file")
	ErrUnknownTable   = errors.New("unknown table")
)

// ErrAmbiguousIdentity is a row error: the record's identity key matches more
// than one stored row, so no single row can be updated.
var ErrAmbiguousIdentity = errors.New("ambiguous identity")

// BatchError wraps a fatal error with the phase it occurred in.
// Any writes made by the batch have been rolled back.
type BatchError struct {
	Phase Phase
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("import failed during %s: %v", e.Phase, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// fatal marks an error raised inside the row loop that must abort the batch.
type fatal struct {
	err error
}

func (f fatal) Error() string { return f.err.Error() }
func (f fatal) Unwrap() error { return f.err }
