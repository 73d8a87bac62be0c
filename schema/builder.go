package schema

import (
	"fmt"

	"github.com/spectro-orm/spectro/pk"
)

// Builder constructs a Descriptor declaratively. It is spec.md §9's "small
// attribute-or-builder mechanism" realised at runtime, in place of the
// teacher's compile-time field/edge code generation: callers build each
// entity's descriptor with schema.New(...).Column(...).Relationship(...).Build()
// and pass it to Register, which stores it by schema name.
type Builder struct {
	name       string
	tableName  string
	primaryKey PrimaryKey
	columns    []Column
	relations  []Relationship
}

// New starts a Builder for the schema named name (the Go entity type name,
// e.g. "User"), stored in tableName, with the given primary-key field.
func New(name, tableName, pkField string, pkType pk.Type) *Builder {
	return &Builder{
		name:       name,
		tableName:  tableName,
		primaryKey: PrimaryKey{FieldName: pkField, Type: pkType},
	}
}

// ColumnOption configures a column added via Builder.Column.
type ColumnOption func(*Column)

// ColumnName overrides the default snake_case column name.
func ColumnName(name string) ColumnOption {
	return func(c *Column) { c.ColumnName = name }
}

// Nullable marks the column as accepting NULL.
func Nullable() ColumnOption {
	return func(c *Column) { c.Nullable = true }
}

// HasDefault marks the column as having a server-side default. The flag is
// recorded in the descriptor and its fingerprint; Repository.Insert does
// not consult it and always sends the field's current value for the
// column, so the server default is not applied to rows it inserts.
func HasDefault() ColumnOption {
	return func(c *Column) { c.HasDefault = true }
}

// Column adds a scalar column to the schema being built. column_name
// defaults to snake_case(fieldName) unless ColumnName is passed
// (spec.md §3).
func (b *Builder) Column(fieldName, valueType string, opts ...ColumnOption) *Builder {
	c := Column{
		FieldName:  fieldName,
		ColumnName: ToSnakeCase(fieldName),
		ValueType:  valueType,
	}
	for _, opt := range opts {
		opt(&c)
	}
	b.columns = append(b.columns, c)
	return b
}

// RelationshipOption configures a relationship added via Builder.Relationship.
type RelationshipOption func(*Relationship)

// ForeignKey overrides the conventional foreign-key column name
// (spec.md §4.7 step 2: "explicit override > convention").
func ForeignKey(column string) RelationshipOption {
	return func(r *Relationship) { r.ForeignKeyOverride = column }
}

// JunctionTable names the join table for a ManyToMany relationship.
func JunctionTable(table string) RelationshipOption {
	return func(r *Relationship) { r.JunctionTable = table }
}

// Relationship adds a relationship edge to the schema being built. The
// related schema is referenced by name, not by Go type, so cyclic graphs
// resolve lazily through the registry (spec.md §9).
func (b *Builder) Relationship(name string, kind Kind, relatedSchemaName string, opts ...RelationshipOption) *Builder {
	r := Relationship{
		Name:              name,
		Kind:              kind,
		RelatedSchemaName: relatedSchemaName,
	}
	for _, opt := range opts {
		opt(&r)
	}
	b.relations = append(b.relations, r)
	return b
}

// Build finalises the Descriptor, validating the invariants of spec.md §3:
// field names unique within the schema, relationship names disjoint from
// column names, exactly one PK field (guaranteed by construction via New).
func (b *Builder) Build() (*Descriptor, error) {
	seen := make(map[string]struct{}, len(b.columns)+len(b.relations)+1)
	seen[b.primaryKey.FieldName] = struct{}{}

	byColumnField := make(map[string]*Column, len(b.columns))
	for i := range b.columns {
		c := &b.columns[i]
		if _, dup := seen[c.FieldName]; dup {
			return nil, fmt.Errorf("schema %s: duplicate field name %q", b.name, c.FieldName)
		}
		seen[c.FieldName] = struct{}{}
		byColumnField[c.FieldName] = c
	}

	byRelName := make(map[string]*Relationship, len(b.relations))
	for i := range b.relations {
		r := &b.relations[i]
		if _, dup := seen[r.Name]; dup {
			return nil, fmt.Errorf("schema %s: relationship name %q collides with a column or the primary key", b.name, r.Name)
		}
		if r.Kind == ManyToMany && r.JunctionTable == "" {
			return nil, fmt.Errorf("schema %s: many_to_many relationship %q requires a junction table", b.name, r.Name)
		}
		seen[r.Name] = struct{}{}
		byRelName[r.Name] = r
	}

	d := &Descriptor{
		Name:          b.name,
		TableName:     b.tableName,
		PrimaryKey:    b.primaryKey,
		Columns:       b.columns,
		Relationships: b.relations,
		byColumnField: byColumnField,
		byRelName:     byRelName,
	}
	d.fingerprint = fingerprintOf(d.TableName, d.PrimaryKey, d.Columns, d.Relationships)
	return d, nil
}
