// Package query implements Spectro's query algebra (spec.md §3, §4.6): an
// immutable value representing a SELECT plan, with a condition tree that
// composes And/Or/Not/Leaf nodes. The algebra stores original entity field
// names, never column names — snake_case translation happens only when
// package sqlgen lowers a Plan to SQL text (spec.md §4.5).
package query

// Op is a condition operator (spec.md §4.5).
type Op string

// Supported leaf operators.
const (
	OpEQ      Op = "="
	OpNEQ     Op = "!="
	OpLT      Op = "<"
	OpLTE     Op = "<="
	OpGT      Op = ">"
	OpGTE     Op = ">="
	OpIsNull  Op = "is_null"
	OpNotNull Op = "not_null"
	OpLike    Op = "like"
	OpILike   Op = "ilike"
	OpIn      Op = "in"
	OpNotIn   Op = "not_in"
	OpBetween Op = "between"
)

// Condition is a node in the immutable predicate tree spec.md §3 describes
// as "conditions: tree of And | Or | Not | Leaf(sql_fragment, params)".
// The concrete variants below are Leaf, *AndNode, *OrNode and *NotNode;
// Condition is a closed sum type (sealed via the unexported condition
// method) so package sqlgen's lowering switch is exhaustive.
type Condition interface {
	condition()
}

// Leaf is an atomic predicate against a single field, named by its Go
// struct field name (not its column name — see package doc).
type Leaf struct {
	Field  string
	Op     Op
	Value  any   // used by EQ/NEQ/LT/LTE/GT/GTE/LIKE/ILIKE
	Values []any // used by IN/NOT IN (arbitrary length) and BETWEEN (exactly 2)
}

func (Leaf) condition() {}

// AndNode is the conjunction of two conditions.
type AndNode struct{ Left, Right Condition }

func (*AndNode) condition() {}

// OrNode is the disjunction of two conditions.
type OrNode struct{ Left, Right Condition }

func (*OrNode) condition() {}

// NotNode negates a condition.
type NotNode struct{ Inner Condition }

func (*NotNode) condition() {}

// Eq builds a field = value predicate.
func Eq(field string, value any) Condition { return Leaf{Field: field, Op: OpEQ, Value: value} }

// Neq builds a field != value predicate.
func Neq(field string, value any) Condition { return Leaf{Field: field, Op: OpNEQ, Value: value} }

// Lt builds a field < value predicate.
func Lt(field string, value any) Condition { return Leaf{Field: field, Op: OpLT, Value: value} }

// Lte builds a field <= value predicate.
func Lte(field string, value any) Condition { return Leaf{Field: field, Op: OpLTE, Value: value} }

// Gt builds a field > value predicate.
func Gt(field string, value any) Condition { return Leaf{Field: field, Op: OpGT, Value: value} }

// Gte builds a field >= value predicate.
func Gte(field string, value any) Condition { return Leaf{Field: field, Op: OpGTE, Value: value} }

// IsNull builds a field IS NULL predicate.
func IsNull(field string) Condition { return Leaf{Field: field, Op: OpIsNull} }

// NotNull builds a field IS NOT NULL predicate.
func NotNull(field string) Condition { return Leaf{Field: field, Op: OpNotNull} }

// Like builds a field LIKE pattern predicate.
func Like(field, pattern string) Condition { return Leaf{Field: field, Op: OpLike, Value: pattern} }

// ILike builds a field ILIKE pattern predicate.
func ILike(field, pattern string) Condition { return Leaf{Field: field, Op: OpILike, Value: pattern} }

// In builds a field IN (...) predicate, inline-expanded into one
// placeholder per value by the generator (spec.md §4.5).
func In(field string, values ...any) Condition { return Leaf{Field: field, Op: OpIn, Values: values} }

// NotIn builds a field NOT IN (...) predicate.
func NotIn(field string, values ...any) Condition {
	return Leaf{Field: field, Op: OpNotIn, Values: values}
}

// Between builds a field BETWEEN lo AND hi predicate.
func Between(field string, lo, hi any) Condition {
	return Leaf{Field: field, Op: OpBetween, Values: []any{lo, hi}}
}

// And conjoins two or more conditions, parenthesising each non-atomic
// operand at generation time (spec.md §4.6 "explicit parenthesisation
// around every non-atomic fragment").
func And(conds ...Condition) Condition {
	return foldBinary(conds, func(l, r Condition) Condition { return &AndNode{Left: l, Right: r} })
}

// Or disjoins two or more conditions.
func Or(conds ...Condition) Condition {
	return foldBinary(conds, func(l, r Condition) Condition { return &OrNode{Left: l, Right: r} })
}

// Not negates a condition.
func Not(c Condition) Condition { return &NotNode{Inner: c} }

func foldBinary(conds []Condition, combine func(l, r Condition) Condition) Condition {
	switch len(conds) {
	case 0:
		return nil
	case 1:
		return conds[0]
	}
	out := conds[0]
	for _, c := range conds[1:] {
		out = combine(out, c)
	}
	return out
}
