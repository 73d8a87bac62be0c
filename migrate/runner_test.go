package migrate_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/spectro-orm/spectro/conn"
	"github.com/spectro-orm/spectro/migrate"
)

func newTestRunner(t *testing.T, dir string) (*migrate.Runner, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	mock.MatchExpectationsInOrder(false)
	c := conn.Wrap(db, conn.Config{PoolSize: 4})
	return migrate.New(c, dir), mock
}

func TestEnsureSchemaCreatesTheStatusTable(t *testing.T) {
	runner, mock := newTestRunner(t, t.TempDir())
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, runner.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestApplyThenStatusMatchesTwoMigrations exercises spec.md's example
// scenario E6: two discovered files produce two completed rows applied in
// ascending version order.
func TestApplyThenStatusMatchesTwoMigrations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "1700000000_create_users.sql",
		"-- migrate:up\nCREATE TABLE users (id uuid PRIMARY KEY);\n-- migrate:down\nDROP TABLE users;\n")
	writeFile(t, dir, "1700000001_add_email_index.sql",
		"-- migrate:up\nCREATE INDEX users_email_idx ON users (email);\n-- migrate:down\nDROP INDEX users_email_idx;\n")

	runner, mock := newTestRunner(t, dir)
	ctx := context.Background()

	mock.ExpectQuery("SELECT version, name, status, applied_at FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version", "name", "status", "applied_at"}))

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE users").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO schema_migrations").
		WithArgs("1700000000", "create_users", "completed").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE INDEX users_email_idx").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO schema_migrations").
		WithArgs("1700000001", "add_email_index", "completed").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	applied, err := runner.Apply(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 2)
	require.Equal(t, "1700000000", applied[0].Version)
	require.Equal(t, "1700000001", applied[1].Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestApplyMarksFailedAndStopsOnError exercises spec.md's invariant "a
// failed row blocks further applies until a human resolves it": the first
// file's up statement errors, its row is marked failed, and the second
// file is never attempted.
func TestApplyMarksFailedAndStopsOnError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "1700000000_create_users.sql",
		"-- migrate:up\nCREATE TABLE users (id uuid PRIMARY KEY);\n-- migrate:down\nDROP TABLE users;\n")
	writeFile(t, dir, "1700000001_add_email_index.sql",
		"-- migrate:up\nCREATE INDEX users_email_idx ON users (email);\n-- migrate:down\nDROP INDEX users_email_idx;\n")

	runner, mock := newTestRunner(t, dir)
	ctx := context.Background()

	mock.ExpectQuery("SELECT version, name, status, applied_at FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version", "name", "status", "applied_at"}))

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE users").WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()
	mock.ExpectExec("INSERT INTO schema_migrations").
		WithArgs("1700000000", "create_users", "failed").
		WillReturnResult(sqlmock.NewResult(1, 1))

	applied, err := runner.Apply(ctx)
	require.Error(t, err)
	require.Empty(t, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestApplySkipsAlreadyCompletedMigrations confirms a second Apply call
// over the same directory re-runs nothing already marked completed.
func TestApplySkipsAlreadyCompletedMigrations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "1700000000_create_users.sql",
		"-- migrate:up\nCREATE TABLE users (id uuid PRIMARY KEY);\n-- migrate:down\nDROP TABLE users;\n")

	runner, mock := newTestRunner(t, dir)
	ctx := context.Background()

	mock.ExpectQuery("SELECT version, name, status, applied_at FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version", "name", "status", "applied_at"}).
			AddRow("1700000000", "create_users", "completed", nil))

	applied, err := runner.Apply(ctx)
	require.NoError(t, err)
	require.Empty(t, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestApplyRejectsWhenAPriorMigrationIsFailed confirms the blocking
// invariant holds even when the failed migration is not the next one
// Apply would otherwise attempt.
func TestApplyRejectsWhenAPriorMigrationIsFailed(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "1700000000_create_users.sql",
		"-- migrate:up\nCREATE TABLE users (id uuid PRIMARY KEY);\n-- migrate:down\nDROP TABLE users;\n")

	runner, mock := newTestRunner(t, dir)
	ctx := context.Background()

	mock.ExpectQuery("SELECT version, name, status, applied_at FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version", "name", "status", "applied_at"}).
			AddRow("1700000000", "create_users", "failed", nil))

	_, err := runner.Apply(ctx)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestRollbackUndoesMostRecentCompletedMigration completes spec.md's E6
// scenario: run_rollback() removes the last row and drops the index.
func TestRollbackUndoesMostRecentCompletedMigration(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "1700000000_create_users.sql",
		"-- migrate:up\nCREATE TABLE users (id uuid PRIMARY KEY);\n-- migrate:down\nDROP TABLE users;\n")
	writeFile(t, dir, "1700000001_add_email_index.sql",
		"-- migrate:up\nCREATE INDEX users_email_idx ON users (email);\n-- migrate:down\nDROP INDEX users_email_idx;\n")

	runner, mock := newTestRunner(t, dir)
	ctx := context.Background()

	mock.ExpectQuery("SELECT version, name, status, applied_at FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version", "name", "status", "applied_at"}).
			AddRow("1700000000", "create_users", "completed", nil).
			AddRow("1700000001", "add_email_index", "completed", nil))

	mock.ExpectBegin()
	mock.ExpectExec("DROP INDEX users_email_idx").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM schema_migrations").
		WithArgs("1700000001").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	rolledBack, err := runner.Rollback(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rolledBack, 1)
	require.Equal(t, "1700000001", rolledBack[0].Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestRollbackFailsWhenFileIsMissingFromDisk exercises spec.md's invariant
// "a migration file's presence on disk is required to roll it back".
func TestRollbackFailsWhenFileIsMissingFromDisk(t *testing.T) {
	runner, mock := newTestRunner(t, t.TempDir())
	ctx := context.Background()

	mock.ExpectQuery("SELECT version, name, status, applied_at FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version", "name", "status", "applied_at"}).
			AddRow("1700000000", "create_users", "completed", nil))

	_, err := runner.Rollback(ctx, 1)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
