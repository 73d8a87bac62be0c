// Package sqlgen lowers a query.Plan (or a direct mutation request) to
// parameterised Postgres SQL text (spec.md §4.5). It is pure: given the
// same plan and schema it always produces the same (sql, params) pair, and
// it performs no I/O. Every generated statement uses sequential $1..$n
// placeholders and double-quoted identifiers.
package sqlgen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spectro-orm/spectro/query"
	"github.com/spectro-orm/spectro/schema"
)

// AggregateFunc is a supported aggregate function (spec.md §4.6).
type AggregateFunc string

// Supported aggregate functions. Sum, Avg, Min and Max are cast to DOUBLE PRECISION
// so callers get a predictable Go float64 regardless of the summed
// column's underlying numeric type (spec.md §4.5 "aggregate results are
// cast to DOUBLE PRECISION").
const (
	Count AggregateFunc = "COUNT"
	Sum   AggregateFunc = "SUM"
	Avg   AggregateFunc = "AVG"
	Min   AggregateFunc = "MIN"
	Max   AggregateFunc = "MAX"
)

// ConflictTarget names the ON CONFLICT target of an upsert, in either of
// the two forms Postgres accepts (spec.md §4.8): an explicit column list,
// or a named constraint.
type ConflictTarget struct {
	Columns        []string
	ConstraintName string
}

func quoteIdent(name string) string { return `"` + name + `"` }

// builder accumulates SQL text and positionally-numbered arguments.
type builder struct {
	sql  strings.Builder
	args []any
}

func (b *builder) placeholder(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

// Select lowers p to a SELECT statement against d's table.
func Select[T any](p *query.Plan[T], d *schema.Descriptor) (string, []any, error) {
	b := &builder{}
	b.sql.WriteString("SELECT ")
	cols, err := selectColumns(p, d)
	if err != nil {
		return "", nil, err
	}
	b.sql.WriteString(cols)
	b.sql.WriteString(" FROM ")
	b.sql.WriteString(d.QuotedTableName())

	for _, j := range p.Joins {
		related := schema.MustLookup(j.RelatedSchemaName)
		leftCol, err := columnName(d, j.LeftField)
		if err != nil {
			return "", nil, err
		}
		rightCol, err := columnName(related, j.RightField)
		if err != nil {
			return "", nil, err
		}
		kw := "JOIN"
		if j.Kind == query.LeftJoin {
			kw = "LEFT JOIN"
		}
		fmt.Fprintf(&b.sql, " %s %s ON %s.%s = %s.%s", kw, related.QuotedTableName(),
			d.QuotedTableName(), quoteIdent(leftCol), related.QuotedTableName(), quoteIdent(rightCol))
	}

	if p.Cond != nil {
		frag, err := lowerCondition(p.Cond, d, b)
		if err != nil {
			return "", nil, err
		}
		b.sql.WriteString(" WHERE ")
		b.sql.WriteString(frag)
	}

	if len(p.Order) > 0 {
		terms := make([]string, 0, len(p.Order))
		for _, o := range p.Order {
			col, err := columnName(d, o.Field)
			if err != nil {
				return "", nil, err
			}
			dir := "ASC"
			if o.Direction == query.Desc {
				dir = "DESC"
			}
			terms = append(terms, fmt.Sprintf("%s %s", quoteIdent(col), dir))
		}
		b.sql.WriteString(" ORDER BY ")
		b.sql.WriteString(strings.Join(terms, ", "))
	}

	if p.LimitN != nil {
		fmt.Fprintf(&b.sql, " LIMIT %s", b.placeholder(*p.LimitN))
	}
	if p.OffsetN != nil {
		fmt.Fprintf(&b.sql, " OFFSET %s", b.placeholder(*p.OffsetN))
	}
	if p.Locked {
		b.sql.WriteString(" FOR UPDATE")
	}

	return b.sql.String(), b.args, nil
}

func selectColumns[T any](p *query.Plan[T], d *schema.Descriptor) (string, error) {
	if len(p.Cols) == 0 {
		return "*", nil
	}
	quoted := make([]string, 0, len(p.Cols))
	for _, f := range p.Cols {
		col, err := columnName(d, f)
		if err != nil {
			return "", err
		}
		quoted = append(quoted, quoteIdent(col))
	}
	return strings.Join(quoted, ", "), nil
}

func columnName(d *schema.Descriptor, field string) (string, error) {
	if field == d.PrimaryKey.FieldName {
		return d.PrimaryKey.ColumnName(), nil
	}
	c, ok := d.Column(field)
	if !ok {
		return "", &UnknownFieldError{Schema: d.Name, Field: field}
	}
	return c.ColumnName, nil
}

// lowerCondition renders c as a SQL boolean expression, appending any leaf
// values to b.args in left-to-right traversal order so placeholder numbers
// stay sequential across the whole statement (spec.md §8 property 2).
func lowerCondition(c query.Condition, d *schema.Descriptor, b *builder) (string, error) {
	switch n := c.(type) {
	case query.Leaf:
		return lowerLeaf(n, d, b)
	case *query.AndNode:
		left, err := lowerCondition(n.Left, d, b)
		if err != nil {
			return "", err
		}
		right, err := lowerCondition(n.Right, d, b)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s AND %s)", left, right), nil
	case *query.OrNode:
		left, err := lowerCondition(n.Left, d, b)
		if err != nil {
			return "", err
		}
		right, err := lowerCondition(n.Right, d, b)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s OR %s)", left, right), nil
	case *query.NotNode:
		inner, err := lowerCondition(n.Inner, d, b)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("NOT (%s)", inner), nil
	default:
		return "", fmt.Errorf("sqlgen: unrecognised condition node %T", c)
	}
}

func lowerLeaf(l query.Leaf, d *schema.Descriptor, b *builder) (string, error) {
	col, err := columnName(d, l.Field)
	if err != nil {
		return "", err
	}
	qcol := quoteIdent(col)

	switch l.Op {
	case query.OpEQ:
		return fmt.Sprintf("%s = %s", qcol, b.placeholder(l.Value)), nil
	case query.OpNEQ:
		return fmt.Sprintf("%s != %s", qcol, b.placeholder(l.Value)), nil
	case query.OpLT:
		return fmt.Sprintf("%s < %s", qcol, b.placeholder(l.Value)), nil
	case query.OpLTE:
		return fmt.Sprintf("%s <= %s", qcol, b.placeholder(l.Value)), nil
	case query.OpGT:
		return fmt.Sprintf("%s > %s", qcol, b.placeholder(l.Value)), nil
	case query.OpGTE:
		return fmt.Sprintf("%s >= %s", qcol, b.placeholder(l.Value)), nil
	case query.OpIsNull:
		return fmt.Sprintf("%s IS NULL", qcol), nil
	case query.OpNotNull:
		return fmt.Sprintf("%s IS NOT NULL", qcol), nil
	case query.OpLike:
		return fmt.Sprintf("%s LIKE %s", qcol, b.placeholder(l.Value)), nil
	case query.OpILike:
		return fmt.Sprintf("%s ILIKE %s", qcol, b.placeholder(l.Value)), nil
	case query.OpIn:
		if len(l.Values) == 0 {
			return "FALSE", nil
		}
		return fmt.Sprintf("%s IN (%s)", qcol, placeholderList(b, l.Values)), nil
	case query.OpNotIn:
		if len(l.Values) == 0 {
			return "TRUE", nil
		}
		return fmt.Sprintf("%s NOT IN (%s)", qcol, placeholderList(b, l.Values)), nil
	case query.OpBetween:
		if len(l.Values) != 2 {
			return "", fmt.Errorf("sqlgen: BETWEEN on %q requires exactly 2 values, got %d", l.Field, len(l.Values))
		}
		lo, hi := b.placeholder(l.Values[0]), b.placeholder(l.Values[1])
		return fmt.Sprintf("%s BETWEEN %s AND %s", qcol, lo, hi), nil
	default:
		return "", fmt.Errorf("sqlgen: unsupported operator %q", l.Op)
	}
}

func placeholderList(b *builder, values []any) string {
	ph := make([]string, len(values))
	for i, v := range values {
		ph[i] = b.placeholder(v)
	}
	return strings.Join(ph, ", ")
}

// Aggregate lowers p to a single-column aggregate query, ignoring p's
// Select/Order/Limit/Offset/Preloads (an aggregate has one result row).
func Aggregate[T any](p *query.Plan[T], d *schema.Descriptor, fn AggregateFunc, field string) (string, []any, error) {
	b := &builder{}
	var expr string
	if fn == Count && field == "" {
		expr = "COUNT(*)"
	} else {
		col, err := columnName(d, field)
		if err != nil {
			return "", nil, err
		}
		switch fn {
		case Sum, Avg, Min, Max:
			expr = fmt.Sprintf("CAST(%s(%s) AS DOUBLE PRECISION)", fn, quoteIdent(col))
		default:
			expr = fmt.Sprintf("%s(%s)", fn, quoteIdent(col))
		}
	}

	fmt.Fprintf(&b.sql, "SELECT %s FROM %s", expr, d.QuotedTableName())
	if p.Cond != nil {
		frag, err := lowerCondition(p.Cond, d, b)
		if err != nil {
			return "", nil, err
		}
		b.sql.WriteString(" WHERE ")
		b.sql.WriteString(frag)
	}
	return b.sql.String(), b.args, nil
}

// orderedPresentColumns returns d's columns (PK first when includePK),
// restricted to those present as keys of values, in the schema's declared
// order — giving a deterministic column/placeholder ordering regardless of
// Go map iteration order.
func orderedPresentColumns(d *schema.Descriptor, values map[string]any, includePK bool) []schema.Column {
	all := schema.ColumnsForInsert(d, includePK)
	out := make([]schema.Column, 0, len(all))
	for _, c := range all {
		if _, ok := values[c.FieldName]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Insert lowers a single-row INSERT, returning all columns via RETURNING *
// so the caller observes server-generated defaults (e.g. a UUID primary
// key or a DEFAULT NOW() timestamp).
func Insert(d *schema.Descriptor, values map[string]any) (string, []any, error) {
	_, hasPK := values[d.PrimaryKey.FieldName]
	cols := orderedPresentColumns(d, values, hasPK)
	if len(cols) == 0 {
		return "", nil, fmt.Errorf("sqlgen: insert into %q has no column values", d.Name)
	}

	b := &builder{}
	names := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	for i, c := range cols {
		names[i] = quoteIdent(c.ColumnName)
		placeholders[i] = b.placeholder(values[c.FieldName])
	}

	fmt.Fprintf(&b.sql, "INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		d.QuotedTableName(), strings.Join(names, ", "), strings.Join(placeholders, ", "))
	return b.sql.String(), b.args, nil
}

// BulkInsert lowers a multi-row INSERT with one VALUES tuple per row,
// coalesced into a single statement (spec.md §4.8 "bulk insert coalescing").
// Every row must supply exactly the same set of fields; rows is rejected
// if empty.
func BulkInsert(d *schema.Descriptor, rows []map[string]any) (string, []any, error) {
	if len(rows) == 0 {
		return "", nil, fmt.Errorf("sqlgen: bulk insert into %q requires at least one row", d.Name)
	}
	_, hasPK := rows[0][d.PrimaryKey.FieldName]
	cols := orderedPresentColumns(d, rows[0], hasPK)
	if len(cols) == 0 {
		return "", nil, fmt.Errorf("sqlgen: bulk insert into %q has no column values", d.Name)
	}

	b := &builder{}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = quoteIdent(c.ColumnName)
	}

	tuples := make([]string, len(rows))
	for i, row := range rows {
		if len(row) != len(cols) {
			return "", nil, fmt.Errorf("sqlgen: bulk insert row %d has a different field set than row 0", i)
		}
		placeholders := make([]string, len(cols))
		for j, c := range cols {
			v, ok := row[c.FieldName]
			if !ok {
				return "", nil, fmt.Errorf("sqlgen: bulk insert row %d is missing field %q", i, c.FieldName)
			}
			placeholders[j] = b.placeholder(v)
		}
		tuples[i] = "(" + strings.Join(placeholders, ", ") + ")"
	}

	fmt.Fprintf(&b.sql, "INSERT INTO %s (%s) VALUES %s RETURNING *",
		d.QuotedTableName(), strings.Join(names, ", "), strings.Join(tuples, ", "))
	return b.sql.String(), b.args, nil
}

// Upsert lowers an INSERT ... ON CONFLICT statement. When updateColumns is
// empty the conflict clause is DO NOTHING; otherwise it is
// DO UPDATE SET col = EXCLUDED.col for each named column.
func Upsert(d *schema.Descriptor, values map[string]any, target ConflictTarget, updateColumns []string) (string, []any, error) {
	insertCols := orderedPresentColumns(d, values, true)
	if len(insertCols) == 0 {
		return "", nil, fmt.Errorf("sqlgen: upsert into %q has no column values", d.Name)
	}

	b := &builder{}
	names := make([]string, len(insertCols))
	placeholders := make([]string, len(insertCols))
	for i, c := range insertCols {
		names[i] = quoteIdent(c.ColumnName)
		placeholders[i] = b.placeholder(values[c.FieldName])
	}

	fmt.Fprintf(&b.sql, "INSERT INTO %s (%s) VALUES (%s) ON CONFLICT",
		d.QuotedTableName(), strings.Join(names, ", "), strings.Join(placeholders, ", "))

	switch {
	case target.ConstraintName != "":
		fmt.Fprintf(&b.sql, " ON CONSTRAINT %s", quoteIdent(target.ConstraintName))
	case len(target.Columns) > 0:
		cols := make([]string, len(target.Columns))
		for i, c := range target.Columns {
			col, err := columnName(d, c)
			if err != nil {
				return "", nil, err
			}
			cols[i] = quoteIdent(col)
		}
		fmt.Fprintf(&b.sql, " (%s)", strings.Join(cols, ", "))
	default:
		return "", nil, fmt.Errorf("sqlgen: upsert into %q requires a conflict target", d.Name)
	}

	if len(updateColumns) == 0 {
		b.sql.WriteString(" DO NOTHING")
		b.sql.WriteString(" RETURNING *")
		return b.sql.String(), b.args, nil
	}

	sorted := append([]string{}, updateColumns...)
	sort.Strings(sorted)
	sets := make([]string, len(sorted))
	for i, f := range sorted {
		col, err := columnName(d, f)
		if err != nil {
			return "", nil, err
		}
		sets[i] = fmt.Sprintf("%s = EXCLUDED.%s", quoteIdent(col), quoteIdent(col))
	}
	fmt.Fprintf(&b.sql, " DO UPDATE SET %s RETURNING *", strings.Join(sets, ", "))
	return b.sql.String(), b.args, nil
}

// Update lowers an UPDATE ... WHERE <pk> = $n RETURNING * statement.
func Update(d *schema.Descriptor, pkValue any, values map[string]any) (string, []any, error) {
	cols := orderedPresentColumns(d, values, false)
	if len(cols) == 0 {
		return "", nil, fmt.Errorf("sqlgen: update of %q has no column values", d.Name)
	}

	b := &builder{}
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = %s", quoteIdent(c.ColumnName), b.placeholder(values[c.FieldName]))
	}

	fmt.Fprintf(&b.sql, "UPDATE %s SET %s WHERE %s = %s RETURNING *",
		d.QuotedTableName(), strings.Join(sets, ", "), quoteIdent(d.PrimaryKey.ColumnName()), b.placeholder(pkValue))
	return b.sql.String(), b.args, nil
}

// Delete lowers a DELETE ... WHERE <pk> = $1 statement.
func Delete(d *schema.Descriptor, pkValue any) (string, []any, error) {
	b := &builder{}
	fmt.Fprintf(&b.sql, "DELETE FROM %s WHERE %s = %s",
		d.QuotedTableName(), quoteIdent(d.PrimaryKey.ColumnName()), b.placeholder(pkValue))
	return b.sql.String(), b.args, nil
}

// UnknownFieldError reports a condition, order, or projection referencing
// a field absent from the schema's descriptor (spec.md §7 InvalidField).
type UnknownFieldError struct {
	Schema string
	Field  string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("sqlgen: schema %q has no field %q", e.Schema, e.Field)
}
