package core

import (
	"fmt"
	"log/slog"
)

// NormalizeOptions controls the malformed-input policy of the normalizer.
type NormalizeOptions struct {
	DateMode    DateMode
	IntegerMode IntegerMode

	// PassUnknown keeps header columns the schema does not know as text.
	// When false they are dropped.
	PassUnknown bool
}

// FieldError reports a cell that could not be converted to its column type.
type FieldError struct {
	Column string
	Value  string
	Err    error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("column %s: %v", e.Column, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// column is a header position resolved against the schema.
type column struct {
	name string
	pos  int
	spec FieldSpec
}

// Normalizer converts raw rows into typed records for one header.
// It is safe for concurrent use once built.
type Normalizer struct {
	columns []column
	unknown []string
	opts    NormalizeOptions
	log     *slog.Logger
}

// NewNormalizer resolves every header cell against the schema once, so that
// per-row work is a straight walk over the known positions.
func NewNormalizer(schema *Schema, header []string, opts NormalizeOptions) *Normalizer {
	if opts.DateMode == "" {
		opts.DateMode = DateStrict
	}
	if opts.IntegerMode == "" {
		opts.IntegerMode = IntegerLenient
	}

	n := &Normalizer{opts: opts, log: slog.Default()}
	seen := make(map[string]bool, len(header))

	for pos, h := range header {
		name := CleanHeader(h)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		spec, ok := schema.Lookup(name)
		if !ok {
			n.unknown = append(n.unknown, name)
			if !opts.PassUnknown {
				continue
			}
			spec = FieldSpec{Name: name, Type: FieldText}
		}
		n.columns = append(n.columns, column{name: spec.Name, pos: pos, spec: spec})
	}

	return n
}

// WithLogger sets the logger used for lenient-coercion diagnostics.
func (n *Normalizer) WithLogger(l *slog.Logger) *Normalizer {
	n.log = l
	return n
}

// Unknown returns header columns that are not part of the schema.
func (n *Normalizer) Unknown() []string {
	return n.unknown
}

// Normalize converts one raw row. Header cells without a data cell and empty
// cells are absent from the record. The first conversion failure is returned
// as a *FieldError and the row must be treated as failed.
func (n *Normalizer) Normalize(row []string) (Record, error) {
	rec := make(Record, len(n.columns))

	for _, c := range n.columns {
		if c.pos >= len(row) {
			continue
		}
		raw := CleanCell(row[c.pos])
		if raw == "" {
			continue
		}

		v, ok, err := n.value(c.spec, raw)
		if err != nil {
			return nil, &FieldError{Column: c.name, Value: raw, Err: err}
		}
		if ok {
			rec[c.name] = v
		}
	}

	return rec, nil
}

// value converts a non-empty cell. ok is false when the value is elided.
func (n *Normalizer) value(spec FieldSpec, raw string) (any, bool, error) {
	switch spec.Type {
	case FieldInteger:
		v, exact, err := ParseInteger(raw, n.opts.IntegerMode)
		if err != nil {
			return nil, false, err
		}
		if !exact {
			n.log.Debug("integer coerced", "column", spec.Name, "value", raw, "result", v)
		}
		return v, true, nil

	case FieldDecimal:
		v, err := ParseDecimal(raw)
		if err != nil {
			return nil, false, err
		}
		return v, true, nil

	case FieldDate:
		iso, ok, err := ParseDate(raw, n.opts.DateMode)
		if err != nil || !ok {
			return nil, false, err
		}
		return iso, true, nil

	case FieldBool:
		return ParseBool(raw), true, nil

	default:
		s := CleanText(raw)
		if s == "" {
			return nil, false, nil
		}
		return s, true, nil
	}
}
