package store

import (
	"strings"

	"github.com/JonMunkholm/carimport/internal/core"
)

type scannable interface {
	Scan(dest ...any) error
}

// scanRun reads a row selected with runColumns.
func scanRun(row scannable) (core.ImportRun, error) {
	var run core.ImportRun
	err := row.Scan(
		&run.ID, &run.TableKey, &run.FileName, &run.Checksum,
		&run.Created, &run.Updated, &run.Failed, &run.Skipped,
		&run.Status, &run.Error, &run.StartedAt, &run.FinishedAt,
	)
	return run, err
}

// firstLine shortens a statement for error messages.
func firstLine(stmt string) string {
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return strings.TrimSpace(stmt[:i])
	}
	return stmt
}
