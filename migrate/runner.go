package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	spectro "github.com/spectro-orm/spectro"
	"github.com/spectro-orm/spectro/conn"
)

// Status is one of the three states a schema_migrations row can hold
// (spec.md §4.9 "state").
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Record is one outer-joined (discovered file, schema_migrations row) pair
// returned by Status, Apply, and Rollback (spec.md §4.9 "status").
type Record struct {
	Version   string
	Name      string
	Status    Status
	AppliedAt *time.Time
}

type config struct {
	logger *slog.Logger
}

// Option configures a Runner.
type Option func(*config)

// WithLogger attaches a structured logger; nil (the default) disables
// logging.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// Runner applies and rolls back the migration files discovered in Dir
// against a single connection pool (spec.md §4.9).
type Runner struct {
	pool   *conn.Conn
	dir    string
	logger *slog.Logger
}

// New constructs a Runner over the migration files in dir.
func New(pool *conn.Conn, dir string, opts ...Option) *Runner {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Runner{pool: pool, dir: dir, logger: cfg.logger}
}

const createTableSQL = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version text PRIMARY KEY,
	name text NOT NULL,
	status text NOT NULL,
	applied_at timestamptz NULL
)`

// EnsureSchema creates the schema_migrations table if it does not already
// exist. Callers run this once before Apply, Rollback, or Status.
func (r *Runner) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.ExecContext(ctx, createTableSQL, nil); err != nil {
		return spectro.WrapError(spectro.KindMigrationFailed, "ensuring schema_migrations table exists", err)
	}
	return nil
}

func (r *Runner) log(msg string, args ...any) {
	if r.logger == nil {
		return
	}
	r.logger.Info(msg, args...)
}

const selectStatusSQL = `SELECT version, name, status, applied_at FROM schema_migrations`

func (r *Runner) statusRows(ctx context.Context) (map[string]Record, error) {
	rows, err := r.pool.QueryContext(ctx, selectStatusSQL, nil)
	if err != nil {
		return nil, spectro.WrapError(spectro.KindMigrationFailed, "reading schema_migrations", err)
	}
	out := make(map[string]Record, len(rows))
	for _, row := range rows {
		rec := Record{
			Version: fmt.Sprint(row["version"]),
			Name:    fmt.Sprint(row["name"]),
			Status:  Status(fmt.Sprint(row["status"])),
		}
		if ts, ok := row["applied_at"].(time.Time); ok {
			rec.AppliedAt = &ts
		}
		out[rec.Version] = rec
	}
	return out, nil
}

// Status returns every discovered migration file outer-joined against its
// schema_migrations row, ordered ascending by version (spec.md §4.9
// "status"). A file with no row is reported Pending.
func (r *Runner) Status(ctx context.Context) ([]Record, error) {
	files, err := Discover(r.dir)
	if err != nil {
		return nil, err
	}
	rows, err := r.statusRows(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(files))
	for _, f := range files {
		if rec, ok := rows[f.Version]; ok {
			out = append(out, rec)
			continue
		}
		out = append(out, Record{Version: f.Version, Name: f.Name, Status: StatusPending})
	}
	return out, nil
}

const upsertStatusSQL = `INSERT INTO schema_migrations (version, name, status, applied_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (version) DO UPDATE SET name = EXCLUDED.name, status = EXCLUDED.status, applied_at = EXCLUDED.applied_at`

// Apply runs every migration file with no completed row, ascending by
// version, each inside its own transaction (spec.md §4.9 "apply"). A
// statement failure marks that file's row Failed, rolls back its own
// schema changes, and stops — later files stay unapplied, and the failed
// row blocks further Apply calls until a human resolves it (spec.md's
// invariant "a failed row blocks further applies").
func (r *Runner) Apply(ctx context.Context) ([]Record, error) {
	files, err := Discover(r.dir)
	if err != nil {
		return nil, err
	}
	rows, err := r.statusRows(ctx)
	if err != nil {
		return nil, err
	}

	var applied []Record
	for _, f := range files {
		if existing, ok := rows[f.Version]; ok {
			switch existing.Status {
			case StatusFailed:
				return applied, spectro.NewError(spectro.KindMigrationFailed,
					fmt.Sprintf("migration %s is marked failed; resolve it before applying further migrations", f.Version))
			case StatusCompleted:
				continue
			}
		}

		rec, err := r.applyOne(ctx, f)
		if err != nil {
			return applied, err
		}
		applied = append(applied, rec)
	}
	return applied, nil
}

func (r *Runner) applyOne(ctx context.Context, f File) (Record, error) {
	r.log("applying migration", "version", f.Version, "name", f.Name)
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Record{}, err
	}

	for _, stmt := range f.UpStmts {
		if _, err := tx.ExecContext(ctx, stmt, nil); err != nil {
			_ = tx.Rollback()
			r.markFailed(ctx, f)
			return Record{}, spectro.WrapError(spectro.KindMigrationFailed,
				fmt.Sprintf("applying %s", f.Version), err)
		}
	}
	if _, err := tx.ExecContext(ctx, upsertStatusSQL, []any{f.Version, f.Name, string(StatusCompleted)}); err != nil {
		_ = tx.Rollback()
		return Record{}, spectro.WrapError(spectro.KindMigrationFailed,
			fmt.Sprintf("recording completion of %s", f.Version), err)
	}
	if err := tx.Commit(); err != nil {
		return Record{}, err
	}
	return Record{Version: f.Version, Name: f.Name, Status: StatusCompleted}, nil
}

// markFailed records a failed row using a fresh connection, since the
// transaction that attempted the migration has already been rolled back
// and cannot carry the failure record itself.
func (r *Runner) markFailed(ctx context.Context, f File) {
	_, _ = r.pool.ExecContext(ctx, upsertStatusSQL, []any{f.Version, f.Name, string(StatusFailed)})
}

// Rollback undoes the step most recently completed migrations, most
// recent first, executing each one's down-statements and deleting its
// status row (spec.md §4.9 "rollback"). A migration missing from disk
// cannot be rolled back (spec.md's invariant "a migration file's presence
// on disk is required to roll it back").
func (r *Runner) Rollback(ctx context.Context, step int) ([]Record, error) {
	if step <= 0 {
		step = 1
	}
	files, err := Discover(r.dir)
	if err != nil {
		return nil, err
	}
	byVersion := make(map[string]File, len(files))
	for _, f := range files {
		byVersion[f.Version] = f
	}

	rows, err := r.statusRows(ctx)
	if err != nil {
		return nil, err
	}
	completed := make([]Record, 0, len(rows))
	for _, rec := range rows {
		if rec.Status == StatusCompleted {
			completed = append(completed, rec)
		}
	}
	sort.Slice(completed, func(i, j int) bool {
		a, b := completed[i].Version, completed[j].Version
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		return a > b
	})
	if len(completed) > step {
		completed = completed[:step]
	}

	var rolledBack []Record
	for _, rec := range completed {
		f, ok := byVersion[rec.Version]
		if !ok {
			return rolledBack, spectro.NewError(spectro.KindMigrationNotFound,
				fmt.Sprintf("migration %s has a completed row but its file is missing from %s", rec.Version, r.dir))
		}
		if err := r.rollbackOne(ctx, f); err != nil {
			return rolledBack, err
		}
		rolledBack = append(rolledBack, rec)
	}
	return rolledBack, nil
}

func (r *Runner) rollbackOne(ctx context.Context, f File) error {
	r.log("rolling back migration", "version", f.Version, "name", f.Name)
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}

	for i := len(f.DownStmts) - 1; i >= 0; i-- {
		if _, err := tx.ExecContext(ctx, f.DownStmts[i], nil); err != nil {
			_ = tx.Rollback()
			return spectro.WrapError(spectro.KindMigrationFailed,
				fmt.Sprintf("rolling back %s", f.Version), err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = $1`, []any{f.Version}); err != nil {
		_ = tx.Rollback()
		return spectro.WrapError(spectro.KindMigrationFailed,
			fmt.Sprintf("removing status row for %s", f.Version), err)
	}
	return tx.Commit()
}
