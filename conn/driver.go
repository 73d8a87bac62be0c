package conn

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	spectro "github.com/spectro-orm/spectro"
	"github.com/spectro-orm/spectro/rowmap"
)

// execQuerier is the common subset of *sql.DB and *sql.Tx this package
// drives directly; adapted from the teacher's dialect/sql/driver.go
// ExecQuerier interface, trimmed to the two methods Spectro actually calls
// (Postgres binds positionally, so no Prepare-based codegen path is kept).
type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// QueryContext runs sqlText and returns every row decoded into a
// rowmap.Row, implementing package preload's Queryer and package
// repository's query-execution needs alike. It acquires a pool slot for
// the duration of the round trip and records the outcome in Stats.
func (c *Conn) QueryContext(ctx context.Context, sqlText string, args []any) ([]rowmap.Row, error) {
	release, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return runQuery(ctx, c.db, c.stats, c.logger, sqlText, args)
}

// ExecContext runs sqlText for effect and returns the number of rows
// affected.
func (c *Conn) ExecContext(ctx context.Context, sqlText string, args []any) (int64, error) {
	release, err := c.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()
	return runExec(ctx, c.db, c.stats, c.logger, sqlText, args)
}

func runQuery(ctx context.Context, eq execQuerier, stats *Stats, logger *slog.Logger, sqlText string, args []any) ([]rowmap.Row, error) {
	start := time.Now()
	rows, err := eq.QueryContext(ctx, sqlText, args...)
	if err != nil {
		classified := classifyError(err)
		stats.record(time.Since(start), classified)
		logQuery(logger, ctx, sqlText, time.Since(start), classified)
		return nil, classified
	}
	defer rows.Close()

	out, err := scanRows(rows)
	stats.record(time.Since(start), err)
	logQuery(logger, ctx, sqlText, time.Since(start), err)
	if err != nil {
		return nil, spectro.WrapError(spectro.KindResultDecodingFailed, "scanning query result", err)
	}
	return out, nil
}

func runExec(ctx context.Context, eq execQuerier, stats *Stats, logger *slog.Logger, sqlText string, args []any) (int64, error) {
	start := time.Now()
	res, err := eq.ExecContext(ctx, sqlText, args...)
	if err != nil {
		classified := classifyError(err)
		stats.record(time.Since(start), classified)
		logQuery(logger, ctx, sqlText, time.Since(start), classified)
		return 0, classified
	}
	stats.record(time.Since(start), nil)
	logQuery(logger, ctx, sqlText, time.Since(start), nil)
	n, err := res.RowsAffected()
	if err != nil {
		return 0, spectro.WrapError(spectro.KindResultDecodingFailed, "reading rows affected", err)
	}
	return n, nil
}

func logQuery(logger *slog.Logger, ctx context.Context, sqlText string, dur time.Duration, err error) {
	if logger == nil {
		return
	}
	if err != nil {
		logger.ErrorContext(ctx, "spectro: query failed", "sql", sqlText, "duration", dur, "error", err)
		return
	}
	logger.DebugContext(ctx, "spectro: query executed", "sql", sqlText, "duration", dur)
}

// scanRows decodes every row of rs into a rowmap.Row keyed by column name.
func scanRows(rs *sql.Rows) ([]rowmap.Row, error) {
	cols, err := rs.Columns()
	if err != nil {
		return nil, err
	}

	var out []rowmap.Row
	for rs.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(rowmap.Row, len(cols))
		for i, name := range cols {
			row[name] = raw[i]
		}
		out = append(out, row)
	}
	return out, rs.Err()
}

// Tx is a single pinned transactional connection (spec.md §4.8, §5: "a
// transaction holds exactly one underlying connection for its lifetime").
// It pins one pool slot, acquired by Begin and released only by Commit or
// Rollback, so nested Begin calls cannot silently share or exceed the
// pool's bound.
type Tx struct {
	tx      *sql.Tx
	stats   *Stats
	logger  *slog.Logger
	release func()
}

// Begin starts a new transaction, acquiring and pinning one pool slot for
// its entire lifetime.
func (c *Conn) Begin(ctx context.Context) (*Tx, error) {
	release, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	sqlTx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		release()
		return nil, spectro.WrapError(spectro.KindTransactionFailed, "beginning transaction", err)
	}
	var once sync.Once
	releaseOnce := func() { once.Do(release) }
	return &Tx{tx: sqlTx, stats: c.stats, logger: c.logger, release: releaseOnce}, nil
}

// QueryContext runs sqlText inside the transaction.
func (t *Tx) QueryContext(ctx context.Context, sqlText string, args []any) ([]rowmap.Row, error) {
	return runQuery(ctx, t.tx, t.stats, t.logger, sqlText, args)
}

// ExecContext runs sqlText inside the transaction for effect.
func (t *Tx) ExecContext(ctx context.Context, sqlText string, args []any) (int64, error) {
	return runExec(ctx, t.tx, t.stats, t.logger, sqlText, args)
}

// Commit commits the transaction and releases its pinned pool slot.
func (t *Tx) Commit() error {
	defer t.release()
	if err := t.tx.Commit(); err != nil {
		return spectro.WrapError(spectro.KindTransactionFailed, "committing transaction", err)
	}
	return nil
}

// Rollback rolls the transaction back and releases its pinned pool slot.
// It is safe to call after a failed Commit or from a deferred recover, so
// callers can always `defer tx.Rollback()` immediately after Begin
// (spec.md §5 "rollback must be safe to call unconditionally").
func (t *Tx) Rollback() error {
	defer t.release()
	if err := t.tx.Rollback(); err != nil {
		return &spectro.RollbackError{Err: err}
	}
	return nil
}
