package core

import (
	"context"
	"fmt"
)

// Writer is the write side of the storage collaborator.
type Writer interface {
	Insert(ctx context.Context, table string, rec Record) error
	Update(ctx context.Context, table string, rec Record, match Match) error
}

// Upserter applies a resolved record to storage.
type Upserter struct {
	table string
}

// NewUpserter creates an upserter for a table.
func NewUpserter(table string) *Upserter {
	return &Upserter{table: table}
}

// Apply inserts the record when key is NotFound, otherwise updates only the
// record's present columns on the matching row. Storage errors are returned
// with OutcomeFailed; the caller decides whether the batch continues.
func (u *Upserter) Apply(ctx context.Context, w Writer, rec Record, key Key) (Outcome, error) {
	if len(rec) == 0 {
		return OutcomeSkipped, nil
	}

	if !key.Found() {
		if err := w.Insert(ctx, u.table, rec); err != nil {
			return OutcomeFailed, fmt.Errorf("insert: %w", err)
		}
		return OutcomeCreated, nil
	}

	if err := w.Update(ctx, u.table, rec, key.Match()); err != nil {
		return OutcomeFailed, fmt.Errorf("update %s=%v: %w", key.Column, key.Value, err)
	}
	return OutcomeUpdated, nil
}
