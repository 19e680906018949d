// Package tables registers all table definitions with the core registry.
// Import this package to ensure all tables are registered.
package tables

import "github.com/JonMunkholm/carimport/internal/core"

// Column helpers keep the definitions readable as one line per column.

func text(name string, size int) core.FieldSpec {
	return core.FieldSpec{Name: name, Type: core.FieldText, Size: size}
}

func integer(name string) core.FieldSpec {
	return core.FieldSpec{Name: name, Type: core.FieldInteger}
}

func decimal(name string) core.FieldSpec {
	return core.FieldSpec{Name: name, Type: core.FieldDecimal}
}

func date(name string) core.FieldSpec {
	return core.FieldSpec{Name: name, Type: core.FieldDate}
}

func flag(name string) core.FieldSpec {
	return core.FieldSpec{Name: name, Type: core.FieldBool}
}

func required(spec core.FieldSpec) core.FieldSpec {
	spec.Required = true
	return spec
}

func flags(names ...string) []core.FieldSpec {
	out := make([]core.FieldSpec, len(names))
	for i, n := range names {
		out[i] = flag(n)
	}
	return out
}
