package store

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/carimport/internal/core"
)

// dialect holds the SQL differences between the supported databases.
type dialect struct {
	name        string
	placeholder func(n int) string
	idColumn    string
	timestamp   string
	now         string
	integer     string
}

var postgresDialect = dialect{
	name:        "postgres",
	placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	idColumn:    "id BIGSERIAL PRIMARY KEY",
	timestamp:   "TIMESTAMPTZ",
	now:         "now()",
	integer:     "BIGINT",
}

var sqliteDialect = dialect{
	name:        "sqlite",
	placeholder: func(int) string { return "?" },
	idColumn:    "id INTEGER PRIMARY KEY AUTOINCREMENT",
	timestamp:   "DATETIME",
	now:         "CURRENT_TIMESTAMP",
	integer:     "INTEGER",
}

// quote returns a safely quoted identifier. Double quotes work for both dialects.
func quote(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// sortedColumns returns the record's keys in a stable order.
func sortedColumns(rec core.Record) []string {
	cols := make([]string, 0, len(rec))
	for k := range rec {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func (d dialect) insertSQL(table string, rec core.Record) (string, []any) {
	cols := sortedColumns(rec)
	quoted := make([]string, len(cols))
	params := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		quoted[i] = quote(c)
		params[i] = d.placeholder(i + 1)
		args[i] = rec[c]
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(table), strings.Join(quoted, ", "), strings.Join(params, ", "))
	return query, args
}

// updateSQL sets only the record's columns and bumps updated_at.
func (d dialect) updateSQL(table string, rec core.Record, match core.Match) (string, []any) {
	cols := sortedColumns(rec)
	sets := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		sets = append(sets, quote(c)+" = "+d.placeholder(i+1))
		args = append(args, rec[c])
	}
	sets = append(sets, "updated_at = "+d.now)
	args = append(args, match.Value)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		quote(table), strings.Join(sets, ", "), quote(match.Column), d.placeholder(len(cols)+1))
	return query, args
}

func (d dialect) countSQL(table string, match core.Match) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = %s",
		quote(table), quote(match.Column), d.placeholder(1))
}

func savepointSQL(name string) string { return "SAVEPOINT " + quote(name) }
func rollbackToSQL(name string) string {
	return "ROLLBACK TO SAVEPOINT " + quote(name)
}
func releaseSQL(name string) string { return "RELEASE SAVEPOINT " + quote(name) }
