package store

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/carimport/internal/core"
)

// runsTable stores one summary row per import batch.
const runsTable = "import_runs"

// columnType maps a field to its SQL column type.
func (d dialect) columnType(spec core.FieldSpec) string {
	switch spec.Type {
	case core.FieldInteger:
		return d.integer
	case core.FieldDecimal:
		return "NUMERIC(12,2)"
	case core.FieldDate:
		return "DATE"
	case core.FieldBool:
		return "CHAR(1)"
	default:
		if spec.Size > 0 {
			return fmt.Sprintf("VARCHAR(%d)", spec.Size)
		}
		return "TEXT"
	}
}

// tableDDL returns the statements creating a registered table and its
// identity indexes. Every identity key gets a partial unique index that only
// applies when the key is set and all higher-priority keys are empty, which
// matches how the resolver picks the key.
func (d dialect) tableDDL(def core.TableDefinition) []string {
	table := def.Info.Key

	cols := []string{d.idColumn}
	for _, spec := range def.FieldSpecs {
		cols = append(cols, quote(spec.Name)+" "+d.columnType(spec))
	}
	cols = append(cols,
		"created_at "+d.timestamp+" NOT NULL DEFAULT "+d.now,
		"updated_at "+d.timestamp+" NOT NULL DEFAULT "+d.now,
	)

	stmts := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", quote(table), strings.Join(cols, ",\n\t")),
	}

	for i, key := range def.Info.IdentityKeys {
		conds := []string{fmt.Sprintf("%s IS NOT NULL AND %s <> ''", quote(key), quote(key))}
		for _, prev := range def.Info.IdentityKeys[:i] {
			conds = append(conds, fmt.Sprintf("(%s IS NULL OR %s = '')", quote(prev), quote(prev)))
		}
		stmts = append(stmts, fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s) WHERE %s",
			quote(table+"_"+key+"_uniq"), quote(table), quote(key), strings.Join(conds, " AND ")))
	}

	// Lookups on later keys also run against rows that have earlier keys set.
	if len(def.Info.IdentityKeys) > 1 {
		for _, key := range def.Info.IdentityKeys[1:] {
			stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
				quote(table+"_"+key+"_idx"), quote(table), quote(key)))
		}
	}

	return stmts
}

func (d dialect) runsDDL() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id          TEXT PRIMARY KEY,
	table_key   TEXT NOT NULL,
	file_name   TEXT NOT NULL,
	checksum    TEXT NOT NULL DEFAULT '',
	created     INTEGER NOT NULL DEFAULT 0,
	updated     INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	started_at  %s NOT NULL,
	finished_at %s NOT NULL
)`, runsTable, d.timestamp, d.timestamp),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_import_runs_started_at ON %s (started_at)", runsTable),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_import_runs_checksum ON %s (table_key, checksum)", runsTable),
	}
}

// migrationSQL returns all statements for the registered tables and the run log.
func (d dialect) migrationSQL() []string {
	var stmts []string
	for _, def := range core.All() {
		stmts = append(stmts, d.tableDDL(def)...)
	}
	return append(stmts, d.runsDDL()...)
}
