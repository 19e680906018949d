package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/carimport/internal/core"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

func exact(sql string) string {
	return "^" + regexp.QuoteMeta(sql) + "$"
}

func TestPostgresStore_BatchWrites(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(exact(`SAVEPOINT "sp_2"`)).WillReturnResult(pgxmock.NewResult("SAVEPOINT", 0))
	mock.ExpectQuery(exact(`SELECT COUNT(*) FROM "cars" WHERE "vin" = $1`)).
		WithArgs("WVW1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(exact(`INSERT INTO "cars" ("marke", "vin") VALUES ($1, $2)`)).
		WithArgs("VW", "WVW1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(exact(`RELEASE SAVEPOINT "sp_2"`)).WillReturnResult(pgxmock.NewResult("RELEASE", 0))
	mock.ExpectExec(exact(`SAVEPOINT "sp_3"`)).WillReturnResult(pgxmock.NewResult("SAVEPOINT", 0))
	mock.ExpectExec(exact(`UPDATE "cars" SET "preis" = $1, updated_at = now() WHERE "vin" = $2`)).
		WithArgs(9990.0, "WVW1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(exact(`ROLLBACK TO SAVEPOINT "sp_3"`)).WillReturnResult(pgxmock.NewResult("ROLLBACK", 0))
	mock.ExpectCommit()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, tx.Savepoint(ctx, "sp_2"))
	n, err := tx.Count(ctx, "cars", core.Match{Column: "vin", Value: "WVW1"})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	require.NoError(t, tx.Insert(ctx, "cars", core.Record{"vin": "WVW1", "marke": "VW"}))
	require.NoError(t, tx.Release(ctx, "sp_2"))

	require.NoError(t, tx.Savepoint(ctx, "sp_3"))
	require.NoError(t, tx.Update(ctx, "cars", core.Record{"preis": 9990.0}, core.Match{Column: "vin", Value: "WVW1"}))
	require.NoError(t, tx.RollbackTo(ctx, "sp_3"))

	require.NoError(t, tx.Commit(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateNoRowMatched(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "cars"`).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	err = tx.Update(ctx, "cars", core.Record{"marke": "VW"}, core.Match{Column: "interne_nummer", Value: "A-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0 rows matched interne_nummer=A-1, want 1")

	require.NoError(t, tx.Rollback(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertErrorIsWrapped(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "cars"`).
		WillReturnError(errors.New(`ERROR: duplicate key value violates unique constraint "cars_vin_uniq" (SQLSTATE 23505)`))

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	err = tx.Insert(ctx, "cars", core.Record{"vin": "WVW1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: insert cars")
	assert.Equal(t, "DB001", core.MapError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_BeginError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin().WillReturnError(errors.New("dial tcp: connection refused"))

	tx, err := s.Begin(context.Background())
	assert.Nil(t, tx)
	require.Error(t, err)
	assert.Equal(t, "DB004", core.MapError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
		WithArgs(migrationLockID).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	for _, stmt := range postgresDialect.migrationSQL() {
		mock.ExpectExec(exact(stmt)).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}
	mock.ExpectCommit()

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MigrateFailureRollsBack(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
		WithArgs(migrationLockID).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(`CREATE TABLE`).WillReturnError(errors.New("permission denied for schema public"))
	mock.ExpectRollback()

	err := s.Migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	run := core.ImportRun{
		ID: "r1", TableKey: "cars", FileName: "a.csv", Checksum: "abc",
		Created: 2, Updated: 1, Status: core.RunCommitted,
		StartedAt: start, FinishedAt: start.Add(time.Second),
	}

	mock.ExpectExec(`INSERT INTO import_runs`).
		WithArgs("r1", "cars", "a.csv", "abc", 2, 1, 0, 0, core.RunCommitted, "", start, start.Add(time.Second)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.RecordRun(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func runRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "table_key", "file_name", "checksum", "created", "updated", "failed", "skipped",
		"status", "error", "started_at", "finished_at",
	})
}

func TestPostgresStore_ListRuns(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(`SELECT .* FROM import_runs ORDER BY started_at DESC LIMIT \$1`).
		WithArgs(5).
		WillReturnRows(runRows().
			AddRow("r2", "cars", "b.csv", "def", 0, 0, 0, 0, core.RunFailed, "boom", start.Add(time.Hour), start.Add(time.Hour)).
			AddRow("r1", "cars", "a.csv", "abc", 2, 1, 0, 0, core.RunCommitted, "", start, start))

	runs, err := s.ListRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r2", runs[0].ID)
	assert.Equal(t, "boom", runs[0].Error)
	assert.Equal(t, 2, runs[1].Created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindRunByChecksum(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(`FROM import_runs`).
		WithArgs("cars", "abc", core.RunCommitted).
		WillReturnRows(runRows().
			AddRow("r1", "cars", "a.csv", "abc", 2, 1, 0, 0, core.RunCommitted, "", start, start))

	run, found, err := s.FindRunByChecksum(context.Background(), "cars", "abc")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "r1", run.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindRunByChecksum_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM import_runs`).
		WithArgs("cars", "nope", core.RunCommitted).
		WillReturnError(pgx.ErrNoRows)

	_, found, err := s.FindRunByChecksum(context.Background(), "cars", "nope")
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}
