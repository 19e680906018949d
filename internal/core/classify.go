package core

import "strings"

// Schema is the immutable column classification for one table.
// Lookups are case-insensitive; names not in the table classify as text.
type Schema struct {
	specs map[string]FieldSpec
}

// NewSchema builds a schema from field specs. Later duplicates win.
func NewSchema(specs []FieldSpec) *Schema {
	s := &Schema{
		specs: make(map[string]FieldSpec, len(specs)),
	}
	for _, spec := range specs {
		s.specs[strings.ToLower(spec.Name)] = spec
	}
	return s
}

// Classify returns the semantic type of a column.
func (s *Schema) Classify(column string) FieldType {
	if spec, ok := s.Lookup(column); ok {
		return spec.Type
	}
	return FieldText
}

// Lookup returns the spec for a column.
func (s *Schema) Lookup(column string) (FieldSpec, bool) {
	spec, ok := s.specs[strings.ToLower(strings.TrimSpace(column))]
	return spec, ok
}
