package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/JonMunkholm/carimport/internal/core"
)

// SQLiteStore implements Store using modernc.org/sqlite.
//
// SQLite allows one writer at a time, so the store keeps a single connection.
// The run log is only written after the batch transaction has ended.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: migrate: begin")
	}
	for _, stmt := range sqliteDialect.migrationSQL() {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return eris.Wrapf(err, "sqlite: migrate: %s", firstLine(stmt))
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: migrate: commit")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Begin(ctx context.Context) (core.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin")
	}
	return &sqliteTx{tx: tx}, nil
}

// sqliteTx adapts *sql.Tx to core.Tx.
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Insert(ctx context.Context, table string, rec core.Record) error {
	query, args := sqliteDialect.insertSQL(table, rec)
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return eris.Wrapf(err, "sqlite: insert %s", table)
	}
	return nil
}

func (t *sqliteTx) Update(ctx context.Context, table string, rec core.Record, match core.Match) error {
	query, args := sqliteDialect.updateSQL(table, rec, match)
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update %s", table)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n != 1 {
		return eris.Errorf("sqlite: update %s: %d rows matched %s=%v, want 1", table, n, match.Column, match.Value)
	}
	return nil
}

func (t *sqliteTx) Count(ctx context.Context, table string, match core.Match) (int, error) {
	var n int
	if err := t.tx.QueryRowContext(ctx, sqliteDialect.countSQL(table, match), match.Value).Scan(&n); err != nil {
		return 0, eris.Wrapf(err, "sqlite: count %s", table)
	}
	return n, nil
}

func (t *sqliteTx) Savepoint(ctx context.Context, name string) error {
	_, err := t.tx.ExecContext(ctx, savepointSQL(name))
	return eris.Wrapf(err, "sqlite: savepoint %s", name)
}

func (t *sqliteTx) RollbackTo(ctx context.Context, name string) error {
	_, err := t.tx.ExecContext(ctx, rollbackToSQL(name))
	return eris.Wrapf(err, "sqlite: rollback to %s", name)
}

func (t *sqliteTx) Release(ctx context.Context, name string) error {
	_, err := t.tx.ExecContext(ctx, releaseSQL(name))
	return eris.Wrapf(err, "sqlite: release %s", name)
}

func (t *sqliteTx) Commit(ctx context.Context) error {
	return eris.Wrap(t.tx.Commit(), "sqlite: commit")
}

func (t *sqliteTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return eris.Wrap(err, "sqlite: rollback")
}

// ----------------------------------------------------------------------------
// Run log
// ----------------------------------------------------------------------------

func (s *SQLiteStore) RecordRun(ctx context.Context, run core.ImportRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO import_runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.TableKey, run.FileName, run.Checksum,
		run.Created, run.Updated, run.Failed, run.Skipped,
		run.Status, run.Error, run.StartedAt.UTC(), run.FinishedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: record run %s", run.ID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]core.ImportRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM import_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []core.ImportRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs")
}

func (s *SQLiteStore) FindRunByChecksum(ctx context.Context, table, checksum string) (core.ImportRun, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM import_runs
		WHERE table_key = ? AND checksum = ? AND status = ?
		ORDER BY started_at DESC LIMIT 1`,
		table, checksum, core.RunCommitted)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ImportRun{}, false, nil
	}
	if err != nil {
		return core.ImportRun{}, false, eris.Wrap(err, "sqlite: find run by checksum")
	}
	return run, true, nil
}
