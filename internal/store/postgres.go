package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/JonMunkholm/carimport/internal/core"
)

// Pool is the subset of *pgxpool.Pool used by PostgresStore.
// pgxmock.PgxPoolIface satisfies it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// migrationLockID serializes concurrent Migrate calls (e.g. overlapping deploys).
const migrationLockID = 0x63617273

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = min(minConns, maxConns)
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: migrate: begin")
	}

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockID); err != nil {
		_ = tx.Rollback(ctx)
		return eris.Wrap(err, "postgres: migrate: acquire lock")
	}
	for _, stmt := range postgresDialect.migrationSQL() {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			_ = tx.Rollback(ctx)
			return eris.Wrapf(err, "postgres: migrate: %s", firstLine(stmt))
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: migrate: commit")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Begin opens the transaction for one import batch.
func (s *PostgresStore) Begin(ctx context.Context) (core.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin")
	}
	return &postgresTx{tx: tx}, nil
}

// postgresTx adapts pgx.Tx to core.Tx.
type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) Insert(ctx context.Context, table string, rec core.Record) error {
	query, args := postgresDialect.insertSQL(table, rec)
	if _, err := t.tx.Exec(ctx, query, args...); err != nil {
		return eris.Wrapf(err, "postgres: insert %s", table)
	}
	return nil
}

func (t *postgresTx) Update(ctx context.Context, table string, rec core.Record, match core.Match) error {
	query, args := postgresDialect.updateSQL(table, rec, match)
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update %s", table)
	}
	if n := tag.RowsAffected(); n != 1 {
		return eris.Errorf("postgres: update %s: %d rows matched %s=%v, want 1", table, n, match.Column, match.Value)
	}
	return nil
}

func (t *postgresTx) Count(ctx context.Context, table string, match core.Match) (int, error) {
	var n int
	if err := t.tx.QueryRow(ctx, postgresDialect.countSQL(table, match), match.Value).Scan(&n); err != nil {
		return 0, eris.Wrapf(err, "postgres: count %s", table)
	}
	return n, nil
}

func (t *postgresTx) Savepoint(ctx context.Context, name string) error {
	_, err := t.tx.Exec(ctx, savepointSQL(name))
	return eris.Wrapf(err, "postgres: savepoint %s", name)
}

func (t *postgresTx) RollbackTo(ctx context.Context, name string) error {
	_, err := t.tx.Exec(ctx, rollbackToSQL(name))
	return eris.Wrapf(err, "postgres: rollback to %s", name)
}

func (t *postgresTx) Release(ctx context.Context, name string) error {
	_, err := t.tx.Exec(ctx, releaseSQL(name))
	return eris.Wrapf(err, "postgres: release %s", name)
}

func (t *postgresTx) Commit(ctx context.Context) error {
	return eris.Wrap(t.tx.Commit(ctx), "postgres: commit")
}

func (t *postgresTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return eris.Wrap(err, "postgres: rollback")
}

// ----------------------------------------------------------------------------
// Run log
// ----------------------------------------------------------------------------

const runColumns = `id, table_key, file_name, checksum, created, updated, failed, skipped, status, error, started_at, finished_at`

func (s *PostgresStore) RecordRun(ctx context.Context, run core.ImportRun) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO import_runs (`+runColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		run.ID, run.TableKey, run.FileName, run.Checksum,
		run.Created, run.Updated, run.Failed, run.Skipped,
		run.Status, run.Error, run.StartedAt.UTC(), run.FinishedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: record run %s", run.ID)
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]core.ImportRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+runColumns+` FROM import_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []core.ImportRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs")
}

func (s *PostgresStore) FindRunByChecksum(ctx context.Context, table, checksum string) (core.ImportRun, bool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM import_runs
		WHERE table_key = $1 AND checksum = $2 AND status = $3
		ORDER BY started_at DESC LIMIT 1`,
		table, checksum, core.RunCommitted)

	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ImportRun{}, false, nil
	}
	if err != nil {
		return core.ImportRun{}, false, eris.Wrap(err, "postgres: find run by checksum")
	}
	return run, true, nil
}
