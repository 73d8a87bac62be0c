package repository

import (
	"context"

	spectro "github.com/spectro-orm/spectro"
	"github.com/spectro-orm/spectro/rowmap"
	"github.com/spectro-orm/spectro/schema"
	"github.com/spectro-orm/spectro/sqlgen"
)

// Get fetches a single row by primary key (spec.md §4.8 "get(Schema, pk) →
// Option<Entity>"). A missing row returns (nil, nil), the same Option-on-
// miss contract as First; FirstOrFail is the operation that fails on an
// empty result.
func Get[T any](ctx context.Context, r *Repository, schemaName string, pkValue any) (*T, error) {
	d := schema.MustLookup(schemaName)
	arg, err := d.PrimaryKey.Type.ToPostgresValue(pkValue)
	if err != nil {
		return nil, err
	}
	sqlText := `SELECT * FROM ` + d.QuotedTableName() + ` WHERE ` + quoteIdent(d.PrimaryKey.ColumnName()) + ` = $1 LIMIT 1`

	rows, err := r.exec.QueryContext(ctx, sqlText, []any{arg})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rowmap.Map[T](rows[0], d, r.conventionalLoader(ctx, d))
}

// Insert generates a single-row INSERT ... RETURNING * (spec.md §4.8
// "insert"). includePK is false when the primary key is server-generated
// (e.g. a DEFAULT gen_random_uuid() column); true when the caller supplies
// it explicitly.
func Insert[T any](ctx context.Context, r *Repository, schemaName string, entity *T, includePK bool) (*T, error) {
	d := schema.MustLookup(schemaName)
	values, err := entityValues(entity, d, includePK)
	if err != nil {
		return nil, err
	}
	sqlText, args, err := sqlgen.Insert(d, values)
	if err != nil {
		return nil, spectro.WrapError(spectro.KindInvalidData, "building insert statement", err)
	}
	rows, err := r.exec.QueryContext(ctx, sqlText, args)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, spectro.NewError(spectro.KindInternalError, "insert returned no row")
	}
	return rowmap.Map[T](rows[0], d, r.conventionalLoader(ctx, d))
}

// InsertAll generates one batched multi-row INSERT (spec.md §4.8
// "insert_all"). An empty slice returns an empty slice with no SQL issued.
func InsertAll[T any](ctx context.Context, r *Repository, schemaName string, entities []*T, includePK bool) ([]*T, error) {
	if len(entities) == 0 {
		return nil, nil
	}
	d := schema.MustLookup(schemaName)
	rowsIn := make([]map[string]any, len(entities))
	for i, e := range entities {
		values, err := entityValues(e, d, includePK)
		if err != nil {
			return nil, err
		}
		rowsIn[i] = values
	}
	sqlText, args, err := sqlgen.BulkInsert(d, rowsIn)
	if err != nil {
		return nil, spectro.WrapError(spectro.KindInvalidData, "building bulk insert statement", err)
	}
	rows, err := r.exec.QueryContext(ctx, sqlText, args)
	if err != nil {
		return nil, err
	}
	return mapRows[T](ctx, r, d, rows)
}

// Upsert generates an INSERT ... ON CONFLICT statement (spec.md §4.8
// "upsert"). updateColumns empty means DO NOTHING, which returns no rows
// for entities whose conflict target already existed (spec.md E5).
func Upsert[T any](ctx context.Context, r *Repository, schemaName string, entities []*T, target sqlgen.ConflictTarget, updateColumns []string) ([]*T, error) {
	if len(entities) == 0 {
		return nil, nil
	}
	d := schema.MustLookup(schemaName)
	var out []*T
	for _, e := range entities {
		values, err := entityValues(e, d, true)
		if err != nil {
			return nil, err
		}
		sqlText, args, err := sqlgen.Upsert(d, values, target, updateColumns)
		if err != nil {
			return nil, spectro.WrapError(spectro.KindInvalidData, "building upsert statement", err)
		}
		rows, err := r.exec.QueryContext(ctx, sqlText, args)
		if err != nil {
			return nil, err
		}
		mapped, err := mapRows[T](ctx, r, d, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, mapped...)
	}
	return out, nil
}

// Update generates an UPDATE ... WHERE pk = $n RETURNING * statement
// (spec.md §4.8 "update"). A zero-row result (the pk does not exist) fails
// with ErrNotFound.
func Update[T any](ctx context.Context, r *Repository, schemaName string, pkValue any, changes map[string]any) (*T, error) {
	d := schema.MustLookup(schemaName)
	pgPK, err := d.PrimaryKey.Type.ToPostgresValue(pkValue)
	if err != nil {
		return nil, err
	}
	sqlText, args, err := sqlgen.Update(d, pgPK, changes)
	if err != nil {
		return nil, spectro.WrapError(spectro.KindInvalidData, "building update statement", err)
	}
	rows, err := r.exec.QueryContext(ctx, sqlText, args)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, spectro.NewNotFoundErrorWithID(schemaName, pkValue)
	}
	return rowmap.Map[T](rows[0], d, r.conventionalLoader(ctx, d))
}

// Delete removes a single row by primary key (spec.md §4.8 "delete").
func Delete(ctx context.Context, r *Repository, schemaName string, pkValue any) error {
	d := schema.MustLookup(schemaName)
	pgPK, err := d.PrimaryKey.Type.ToPostgresValue(pkValue)
	if err != nil {
		return err
	}
	sqlText, args, err := sqlgen.Delete(d, pgPK)
	if err != nil {
		return err
	}
	n, err := r.exec.ExecContext(ctx, sqlText, args)
	if err != nil {
		return err
	}
	if n == 0 {
		return spectro.NewNotFoundErrorWithID(schemaName, pkValue)
	}
	return nil
}

func mapRows[T any](ctx context.Context, r *Repository, d *schema.Descriptor, rows []rowmap.Row) ([]*T, error) {
	out := make([]*T, 0, len(rows))
	for _, row := range rows {
		entity, err := rowmap.Map[T](row, d, r.conventionalLoader(ctx, d))
		if err != nil {
			return nil, err
		}
		out = append(out, entity)
	}
	return out, nil
}
