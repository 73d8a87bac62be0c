// Package repository is Spectro's CRUD/upsert/transaction façade (spec.md
// §4.8): it wires package query's immutable plans, package sqlgen's pure
// SQL lowering, package conn's pooled Postgres client, package rowmap's row
// decoding and package preload's batched relationship loading into a single
// entry point callers construct once per pool.
package repository

import (
	"context"
	"log/slog"

	spectro "github.com/spectro-orm/spectro"
	"github.com/spectro-orm/spectro/conn"
	"github.com/spectro-orm/spectro/rowmap"
)

// executor is the subset of conn.Conn and conn.Tx a Repository drives
// statements through; it lets a transaction-scoped Repository reuse every
// CRUD/query method unchanged, simply by swapping in a *conn.Tx.
type executor interface {
	QueryContext(ctx context.Context, sqlText string, args []any) ([]rowmap.Row, error)
	ExecContext(ctx context.Context, sqlText string, args []any) (int64, error)
}

// config holds Repository construction options, following the teacher's
// config/Option shape in compiler/gen/sql/client.go.
type config struct {
	logger *slog.Logger
}

// Option configures a Repository at construction time.
type Option func(*config)

// WithLogger attaches a structured logger; a nil or unset logger disables
// repository-level logging (query execution is still logged by package
// conn independently, if conn.Config.Logger was set).
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// Repository is Spectro's CRUD/query/transaction entry point. The zero
// value is not usable; construct one with New.
type Repository struct {
	pool   *conn.Conn // nil when this Repository is scoped to a transaction
	exec   executor   // conn.Conn for a top-level Repository, conn.Tx inside a transaction
	logger *slog.Logger
}

// New builds a Repository over pool.
func New(pool *conn.Conn, opts ...Option) *Repository {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Repository{pool: pool, exec: pool, logger: cfg.logger}
}

// Transaction checks out a single connection from the pool, begins a
// transaction, and invokes fn with a Repository scoped to that one
// connection (spec.md §4.8, §5: "a transaction pins a single connection for
// its lifetime"). fn's error rolls the transaction back; a panic inside fn
// rolls back and re-panics, never leaving the connection pinned forever.
// Nested transactions are rejected with TransactionAlreadyStarted, matching
// the teacher's ErrTxStarted guard, since r.pool is nil once already
// inside a transaction-scoped Repository.
func (r *Repository) Transaction(ctx context.Context, fn func(*Repository) error) error {
	if r.pool == nil {
		return spectro.NewError(spectro.KindTransactionAlreadyStarted,
			"cannot start a transaction within a transaction")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	scoped := &Repository{pool: nil, exec: tx, logger: r.logger}

	committed := false
	defer func() {
		if committed {
			return
		}
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(scoped); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return spectro.WrapError(spectro.KindTransactionFailed, "transaction failed and rollback also failed", rbErr)
		}
		return spectro.WrapError(spectro.KindTransactionFailed, "transaction rolled back", err)
	}

	if err := tx.Commit(); err != nil {
		return spectro.WrapError(spectro.KindTransactionFailed, "committing transaction", err)
	}
	committed = true
	return nil
}
