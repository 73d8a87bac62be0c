package repository

import (
	"context"

	spectro "github.com/spectro-orm/spectro"
	"github.com/spectro-orm/spectro/preload"
	"github.com/spectro-orm/spectro/query"
	"github.com/spectro-orm/spectro/schema"
	"github.com/spectro-orm/spectro/sqlgen"
)

// Query is the execution seam between package query's immutable,
// I/O-free Plan[T] algebra and this package's I/O (spec.md §4.6: "Terminal
// operations... are methods on repository.Query[T], which embeds a
// *query.Plan[T] and a repository handle"). Every modifier below returns a
// new Query[T], mirroring Plan[T]'s own copy-on-write semantics.
type Query[T any] struct {
	repo *Repository
	d    *schema.Descriptor
	plan *query.Plan[T]
}

// NewQuery starts a query over schemaName, selecting every column with no
// filters, ordering, or preloads.
func NewQuery[T any](r *Repository, schemaName string) *Query[T] {
	return &Query[T]{repo: r, d: schema.MustLookup(schemaName), plan: query.New[T](schemaName)}
}

func (q *Query[T]) with(p *query.Plan[T]) *Query[T] {
	return &Query[T]{repo: q.repo, d: q.d, plan: p}
}

// Where narrows the query by cond, ANDed with any existing condition.
func (q *Query[T]) Where(cond query.Condition) *Query[T] { return q.with(q.plan.Where(cond)) }

// Select restricts the projected columns.
func (q *Query[T]) Select(fields ...string) *Query[T] { return q.with(q.plan.Select(fields...)) }

// OrderBy appends a sort term.
func (q *Query[T]) OrderBy(field string, dir query.Direction) *Query[T] {
	return q.with(q.plan.OrderBy(field, dir))
}

// Limit sets the result limit.
func (q *Query[T]) Limit(n int) *Query[T] { return q.with(q.plan.Limit(n)) }

// Offset sets the result offset.
func (q *Query[T]) Offset(n int) *Query[T] { return q.with(q.plan.Offset(n)) }

// Join adds an explicit join against another schema.
func (q *Query[T]) Join(kind query.JoinKind, relatedSchemaName, leftField, rightField string) *Query[T] {
	return q.with(q.plan.Join(kind, relatedSchemaName, leftField, rightField))
}

// Preload adds a relationship (and optionally its nested relationships) to
// batch-load alongside All/First/FirstOrFail.
func (q *Query[T]) Preload(spec query.PreloadSpec) *Query[T] { return q.with(q.plan.Preload(spec)) }

// ForUpdate marks the query SELECT ... FOR UPDATE.
func (q *Query[T]) ForUpdate() *Query[T] { return q.with(q.plan.ForUpdate()) }

// All executes the SELECT, row-maps every result, then runs preloads
// (spec.md §4.6 "all").
func (q *Query[T]) All(ctx context.Context) ([]*T, error) {
	sqlText, args, err := sqlgen.Select(q.plan, q.d)
	if err != nil {
		return nil, spectro.WrapError(spectro.KindInvalidQuery, "building select statement", err)
	}
	rows, err := q.repo.exec.QueryContext(ctx, sqlText, args)
	if err != nil {
		return nil, err
	}
	entities, err := mapRows[T](ctx, q.repo, q.d, rows)
	if err != nil {
		return nil, err
	}
	if len(q.plan.Preloads) > 0 {
		anyEntities := make([]any, len(entities))
		for i, e := range entities {
			anyEntities[i] = e
		}
		if err := preload.LoadAll(ctx, q.repo.exec, anyEntities, q.d, q.plan.Preloads); err != nil {
			return nil, err
		}
	}
	return entities, nil
}

// First executes the SELECT with a forced LIMIT 1, returning (nil, nil)
// when there is no matching row (spec.md §4.6 "first").
func (q *Query[T]) First(ctx context.Context) (*T, error) {
	limited := q.Limit(1)
	results, err := limited.All(ctx)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

// FirstOrFail is First but fails with ErrNotFound on an empty result
// (spec.md §4.6 "first_or_fail").
func (q *Query[T]) FirstOrFail(ctx context.Context) (*T, error) {
	entity, err := q.First(ctx)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, spectro.NewNotFoundError(q.d.Name)
	}
	return entity, nil
}

// Count replaces the projection with COUNT(*) and strips ORDER BY/LIMIT/
// OFFSET while preserving WHERE (spec.md §4.6 "count").
func (q *Query[T]) Count(ctx context.Context) (int64, error) {
	sqlText, args, err := sqlgen.Aggregate(q.plan, q.d, sqlgen.Count, "")
	if err != nil {
		return 0, spectro.WrapError(spectro.KindInvalidQuery, "building count statement", err)
	}
	rows, err := q.repo.exec.QueryContext(ctx, sqlText, args)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return toInt64(rows[0]["count"])
}

// aggregate runs fn(field) and reports (value, false) when the table (or
// the filtered subset) is empty, exactly as spec.md §4.6's sum/avg/min/max
// "empty table => None".
func (q *Query[T]) aggregate(ctx context.Context, fn sqlgen.AggregateFunc, field string) (float64, bool, error) {
	sqlText, args, err := sqlgen.Aggregate(q.plan, q.d, fn, field)
	if err != nil {
		return 0, false, spectro.WrapError(spectro.KindInvalidQuery, "building aggregate statement", err)
	}
	rows, err := q.repo.exec.QueryContext(ctx, sqlText, args)
	if err != nil {
		return 0, false, err
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	for _, v := range rows[0] {
		if v == nil {
			return 0, false, nil
		}
		f, err := toFloat64(v)
		if err != nil {
			return 0, false, err
		}
		return f, true, nil
	}
	return 0, false, nil
}

// Sum returns the DOUBLE PRECISION-cast sum of field, or (0, false) on an
// empty result set.
func (q *Query[T]) Sum(ctx context.Context, field string) (float64, bool, error) {
	return q.aggregate(ctx, sqlgen.Sum, field)
}

// Avg returns the DOUBLE PRECISION-cast average of field, or (0, false) on
// an empty result set.
func (q *Query[T]) Avg(ctx context.Context, field string) (float64, bool, error) {
	return q.aggregate(ctx, sqlgen.Avg, field)
}

// Min returns the minimum value of field, or (0, false) on an empty result
// set.
func (q *Query[T]) Min(ctx context.Context, field string) (float64, bool, error) {
	return q.aggregate(ctx, sqlgen.Min, field)
}

// Max returns the maximum value of field, or (0, false) on an empty result
// set.
func (q *Query[T]) Max(ctx context.Context, field string) (float64, bool, error) {
	return q.aggregate(ctx, sqlgen.Max, field)
}
