package core

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
)

// tables is the process-wide table registry, filled by init functions in
// the tables package before any import runs.
var tables = struct {
	sync.RWMutex
	defs map[string]TableDefinition
}{defs: make(map[string]TableDefinition)}

// Register adds a table definition. It panics on a duplicate key or an
// invalid definition; registration happens at init time.
func Register(def TableDefinition) {
	if err := def.validate(); err != nil {
		panic(err)
	}

	tables.Lock()
	defer tables.Unlock()

	if _, exists := tables.defs[def.Info.Key]; exists {
		panic(fmt.Sprintf("table already registered: %s", def.Info.Key))
	}
	tables.defs[def.Info.Key] = def
}

// validate checks that column names are unique and every identity key is
// a column of the table.
func (t TableDefinition) validate() error {
	if t.Info.Key == "" {
		return fmt.Errorf("table definition without key")
	}

	cols := make(map[string]bool, len(t.FieldSpecs))
	for _, spec := range t.FieldSpecs {
		if cols[spec.Name] {
			return fmt.Errorf("table %s: duplicate column %s", t.Info.Key, spec.Name)
		}
		cols[spec.Name] = true
	}
	for _, key := range t.Info.IdentityKeys {
		if !cols[key] {
			return fmt.Errorf("table %s: identity key %s is not a column", t.Info.Key, key)
		}
	}
	return nil
}

// Get looks up a table definition by key.
func Get(key string) (TableDefinition, bool) {
	tables.RLock()
	defer tables.RUnlock()

	def, ok := tables.defs[key]
	return def, ok
}

// All returns the registered definitions ordered by group, then key.
func All() []TableDefinition {
	tables.RLock()
	defs := make([]TableDefinition, 0, len(tables.defs))
	for _, def := range tables.defs {
		defs = append(defs, def)
	}
	tables.RUnlock()

	slices.SortFunc(defs, func(a, b TableDefinition) int {
		return cmp.Or(
			cmp.Compare(a.Info.Group, b.Info.Group),
			cmp.Compare(a.Info.Key, b.Info.Key),
		)
	})
	return defs
}

// Keys returns the registered table keys in sorted order.
func Keys() []string {
	tables.RLock()
	keys := make([]string, 0, len(tables.defs))
	for k := range tables.defs {
		keys = append(keys, k)
	}
	tables.RUnlock()

	slices.Sort(keys)
	return keys
}

// TableCount returns the number of registered tables.
func TableCount() int {
	tables.RLock()
	defer tables.RUnlock()
	return len(tables.defs)
}
