package query

// Direction is a sort direction for an OrderBy term.
type Direction string

// Supported sort directions.
const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// OrderTerm is one ORDER BY term, keyed by entity field name.
type OrderTerm struct {
	Field     string
	Direction Direction
}

// JoinKind is the kind of SQL join a Join introduces.
type JoinKind string

// Supported join kinds.
const (
	InnerJoin JoinKind = "inner"
	LeftJoin  JoinKind = "left"
)

// Join is an explicit join against another registered schema, used by
// aggregate and multi-entity queries (spec.md §4.6).
type Join struct {
	Kind              JoinKind
	RelatedSchemaName string
	LeftField         string
	RightField        string
}

// PreloadSpec names a relationship to batch-load alongside the primary
// query (spec.md §4.7). Nested specs preload across a relationship chain,
// e.g. Preload("Posts", Preload("Comments")).
type PreloadSpec struct {
	RelationName string
	Nested       []PreloadSpec
}

// Plan is an immutable, value-typed representation of a SELECT against a
// single root schema (spec.md §3 "query plan: an immutable value", §4.6).
// Every modifier method below returns a new Plan; the receiver is never
// mutated, so a Plan built once can be shared and extended along
// independent branches without the branches observing each other's
// extensions (spec.md §8 property 1).
//
// T is a phantom type parameter carrying the root entity's Go type through
// the call chain so Repository.Query can return []T without a cast; Plan
// itself inspects none of T's fields; it plans entirely in terms of schema
// names and condition field names.
type Plan[T any] struct {
	SchemaName string
	Cols       []string // nil means "all columns"
	Cond       Condition
	Joins      []Join
	Order      []OrderTerm
	LimitN     *int
	OffsetN    *int
	Preloads   []PreloadSpec
	Locked     bool // SELECT ... FOR UPDATE
}

// New starts a plan over the given registered schema name, selecting all
// columns with no filters, ordering, or preloads.
func New[T any](schemaName string) *Plan[T] {
	return &Plan[T]{SchemaName: schemaName}
}

// clone returns a shallow copy of p; slice fields are left aliased to the
// original since every mutator below replaces rather than appends in
// place, preserving structural sharing between the old and new plan.
func (p *Plan[T]) clone() *Plan[T] {
	cp := *p
	return &cp
}

// Where conjoins c with any existing filter. The receiver is unchanged.
func (p *Plan[T]) Where(c Condition) *Plan[T] {
	cp := p.clone()
	if cp.Cond == nil {
		cp.Cond = c
	} else {
		cp.Cond = And(cp.Cond, c)
	}
	return cp
}

// Select restricts the result set to the given entity fields. Calling
// Select again replaces, rather than narrows, the previous selection.
func (p *Plan[T]) Select(fields ...string) *Plan[T] {
	cp := p.clone()
	cp.Cols = fields
	return cp
}

// OrderBy appends an ORDER BY term, preserving the order terms already
// present.
func (p *Plan[T]) OrderBy(field string, dir Direction) *Plan[T] {
	cp := p.clone()
	cp.Order = append(append([]OrderTerm{}, p.Order...), OrderTerm{Field: field, Direction: dir})
	return cp
}

// Limit sets a row cap, replacing any previous one.
func (p *Plan[T]) Limit(n int) *Plan[T] {
	cp := p.clone()
	cp.LimitN = &n
	return cp
}

// Offset sets a row offset, replacing any previous one.
func (p *Plan[T]) Offset(n int) *Plan[T] {
	cp := p.clone()
	cp.OffsetN = &n
	return cp
}

// Join adds an explicit join to another schema.
func (p *Plan[T]) Join(kind JoinKind, relatedSchemaName, leftField, rightField string) *Plan[T] {
	cp := p.clone()
	cp.Joins = append(append([]Join{}, p.Joins...), Join{
		Kind:              kind,
		RelatedSchemaName: relatedSchemaName,
		LeftField:         leftField,
		RightField:        rightField,
	})
	return cp
}

// Preload requests that relationName (and any nested specs within it) be
// batch-loaded by package preload once the root rows are fetched.
func (p *Plan[T]) Preload(spec PreloadSpec) *Plan[T] {
	cp := p.clone()
	cp.Preloads = append(append([]PreloadSpec{}, p.Preloads...), spec)
	return cp
}

// ForUpdate marks the plan to generate SELECT ... FOR UPDATE, for use
// inside a transaction (spec.md §4.8).
func (p *Plan[T]) ForUpdate() *Plan[T] {
	cp := p.clone()
	cp.Locked = true
	return cp
}
