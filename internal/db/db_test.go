package db

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMigrations = fstest.MapFS{
	"migrations/002_second.sql": {Data: []byte("CREATE TABLE b (id int)")},
	"migrations/001_first.sql":  {Data: []byte("CREATE TABLE a (id int)")},
	"migrations/README.md":      {Data: []byte("ignored")},
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return mock
}

func TestMigrate_FreshDB(t *testing.T) {
	mock := newMock(t)

	mock.ExpectExec("SELECT pg_advisory_lock").WithArgs(migrationLockKey).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT filename FROM schema_migrations").WillReturnRows(pgxmock.NewRows([]string{"filename"}))
	mock.ExpectExec("CREATE TABLE a").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO schema_migrations").WithArgs("001_first.sql").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("CREATE TABLE b").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO schema_migrations").WithArgs("002_second.sql").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("SELECT pg_advisory_unlock").WithArgs(migrationLockKey).WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, Migrate(context.Background(), mock, testMigrations, "migrations"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_SkipsApplied(t *testing.T) {
	mock := newMock(t)

	mock.ExpectExec("SELECT pg_advisory_lock").WithArgs(migrationLockKey).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT filename FROM schema_migrations").
		WillReturnRows(pgxmock.NewRows([]string{"filename"}).AddRow("001_first.sql"))
	mock.ExpectExec("CREATE TABLE b").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO schema_migrations").WithArgs("002_second.sql").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("SELECT pg_advisory_unlock").WithArgs(migrationLockKey).WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, Migrate(context.Background(), mock, testMigrations, "migrations"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_ApplyFailureReleasesLock(t *testing.T) {
	mock := newMock(t)

	mock.ExpectExec("SELECT pg_advisory_lock").WithArgs(migrationLockKey).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT filename FROM schema_migrations").WillReturnRows(pgxmock.NewRows([]string{"filename"}))
	mock.ExpectExec("CREATE TABLE a").WillReturnError(eris.New("syntax error"))
	mock.ExpectExec("SELECT pg_advisory_unlock").WithArgs(migrationLockKey).WillReturnResult(pgxmock.NewResult("SELECT", 1))

	err := Migrate(context.Background(), mock, testMigrations, "migrations")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db: apply migration 001_first.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx(t *testing.T) {
	t.Run("commit", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE x").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		err := WithTx(context.Background(), mock, func(tx pgx.Tx) error {
			_, err := tx.Exec(context.Background(), "UPDATE x SET y = 1")
			return err
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rollback on error", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		err := WithTx(context.Background(), mock, func(pgx.Tx) error {
			return eris.New("boom")
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin error", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectBegin().WillReturnError(eris.New("no conn"))

		err := WithTx(context.Background(), mock, func(pgx.Tx) error { return nil })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db: begin tx")
	})
}
