package conn_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/spectro-orm/spectro/conn"
)

func TestWrapQueryContextDecodesRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	c := conn.Wrap(db, conn.Config{PoolSize: 2})

	mock.ExpectQuery("SELECT id, name FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(1, "Alice").
			AddRow(2, "Bob"))

	rows, err := c.QueryContext(context.Background(), "SELECT id, name FROM users", nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "Alice", rows[0]["name"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWrapExecContextReturnsRowsAffected(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	c := conn.Wrap(db, conn.Config{})

	mock.ExpectExec("UPDATE users SET name = \\$1 WHERE id = \\$2").
		WithArgs("Alice", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := c.ExecContext(context.Background(), "UPDATE users SET name = $1 WHERE id = $2", []any{"Alice", 1})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireFailsImmediatelyOnAlreadyDoneContext(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	c := conn.Wrap(db, conn.Config{PoolSize: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.QueryContext(ctx, "SELECT 1", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "connection_timeout")
}

func TestAcquireReturnsPoolExhaustedWhenNoSlotFrees(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.MatchExpectationsInOrder(false)

	c := conn.Wrap(db, conn.Config{PoolSize: 1, AcquireTimeout: 20 * time.Millisecond})

	started := make(chan struct{})
	finish := make(chan struct{})
	mock.ExpectQuery("SELECT 1").
		WillReturnRows(sqlmock.NewRows([]string{"x"}).AddRow(1)).
		WillDelayFor(50 * time.Millisecond)

	go func() {
		close(started)
		_, _ = c.QueryContext(context.Background(), "SELECT 1", nil)
		close(finish)
	}()
	<-started
	time.Sleep(5 * time.Millisecond) // let the goroutine acquire the single pool slot first

	_, err = c.QueryContext(context.Background(), "SELECT 2", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "connection_pool_exhausted")
	<-finish
}

func TestStatsAccumulatesQueriesAndErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	c := conn.Wrap(db, conn.Config{})

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"x"}).AddRow(1))
	mock.ExpectQuery("SELECT 2").WillReturnError(assertErr{})

	_, _ = c.QueryContext(context.Background(), "SELECT 1", nil)
	_, _ = c.QueryContext(context.Background(), "SELECT 2", nil)

	snap := c.Stats()
	require.EqualValues(t, 2, snap.TotalQueries)
	require.EqualValues(t, 1, snap.TotalErrors)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
