package core

import (
	"context"
	"fmt"
)

// Counter is the read side of the storage collaborator used for identity lookups.
type Counter interface {
	Count(ctx context.Context, table string, match Match) (int, error)
}

// Key identifies an existing stored row. The zero Key means NotFound.
type Key struct {
	Column string
	Value  any
}

// NotFound is returned when no stored row matches the record.
var NotFound = Key{}

// Found reports whether the key refers to an existing row.
func (k Key) Found() bool {
	return k.Column != ""
}

// Match converts the key to an update predicate.
func (k Key) Match() Match {
	return Match{Column: k.Column, Value: k.Value}
}

// Resolver finds the stored row a record refers to.
//
// Identity keys are consulted in priority order, and only the first key that is
// present in the record is looked up. A record with a VIN that matches nothing
// is new, even when its internal number is already stored. A key matching
// several stored rows is an error; the record is never applied to more than
// one row.
type Resolver struct {
	table string
	keys  []string
}

// NewResolver creates a resolver for the table's identity keys.
func NewResolver(table string, keys []string) *Resolver {
	return &Resolver{table: table, keys: keys}
}

// Resolve looks up the record's identity. It queries through q on every call,
// so rows written earlier in the same transaction are visible.
func (r *Resolver) Resolve(ctx context.Context, q Counter, rec Record) (Key, error) {
	for _, col := range r.keys {
		v, ok := rec[col]
		if !ok || isBlank(v) {
			continue
		}

		n, err := q.Count(ctx, r.table, Match{Column: col, Value: v})
		if err != nil {
			return NotFound, fmt.Errorf("lookup %s: %w", col, err)
		}
		switch {
		case n == 1:
			return Key{Column: col, Value: v}, nil
		case n > 1:
			return NotFound, fmt.Errorf("%w: %d stored rows have %s=%v", ErrAmbiguousIdentity, n, col, v)
		}
		return NotFound, nil
	}
	return NotFound, nil
}

func isBlank(v any) bool {
	s, ok := v.(string)
	return ok && s == ""
}
