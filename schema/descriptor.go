// Package schema implements Spectro's schema model (spec.md §3, §4.2): the
// per-entity descriptor (table name, primary key, columns, relationships)
// and the process-wide registry that caches descriptors by schema name.
package schema

import (
	"fmt"

	"github.com/spectro-orm/spectro/pk"
)

// Kind enumerates the relationship kinds spec.md §3 defines.
type Kind string

// Relationship kinds.
const (
	HasMany   Kind = "has_many"
	HasOne    Kind = "has_one"
	BelongsTo Kind = "belongs_to"
	ManyToMany Kind = "many_to_many"
)

// PrimaryKey describes the schema's single primary-key field
// (spec.md §3: "exactly one PK field").
type PrimaryKey struct {
	FieldName string
	Type      pk.Type
}

// ColumnName is the conventional Postgres column name for the primary key,
// i.e. ToSnakeCase(FieldName).
func (p PrimaryKey) ColumnName() string { return ToSnakeCase(p.FieldName) }

// Column describes one scalar field of a schema (spec.md §3: ColumnInfo).
type Column struct {
	FieldName  string
	ColumnName string
	ValueType  string // e.g. "string", "int64", "bool", "time.Time", "float64"
	Nullable   bool
	HasDefault bool
}

// Relationship describes one edge of a schema's relationship graph
// (spec.md §3: RelationshipInfo). Schemas are linked by name
// (RelatedSchemaName), never by typed reference, so that cyclic graphs
// (e.g. User -> []Post -> User) need no recursive type definitions
// (spec.md §9).
type Relationship struct {
	Name              string
	Kind              Kind
	RelatedSchemaName string
	// ForeignKeyOverride, if non-empty, replaces the conventional FK
	// column name computed by spec.md §4.7 step 2.
	ForeignKeyOverride string
	// JunctionTable is required when Kind == ManyToMany; it names the
	// join table holding (parent_fk, related_fk) pairs.
	JunctionTable string
}

// Descriptor is the immutable, process-wide-shared runtime metadata for one
// entity type (spec.md §3 "Schema descriptor"). Once built and registered
// it is read-only; every query/entity of that type shares the same
// *Descriptor value.
type Descriptor struct {
	Name          string
	TableName     string
	PrimaryKey    PrimaryKey
	Columns       []Column
	Relationships []Relationship

	byColumnField map[string]*Column
	byRelName     map[string]*Relationship
	fingerprint   string
}

// Column looks up a column by its Go field name.
func (d *Descriptor) Column(fieldName string) (Column, bool) {
	c, ok := d.byColumnField[fieldName]
	if !ok {
		return Column{}, false
	}
	return *c, true
}

// RelationshipByName looks up a relationship by name.
func (d *Descriptor) RelationshipByName(name string) (Relationship, bool) {
	r, ok := d.byRelName[name]
	if !ok {
		return Relationship{}, false
	}
	return *r, true
}

// Fingerprint returns a stable hash of the descriptor's shape, used by the
// registry to detect a divergent re-registration under the same name
// (spec.md §4.2).
func (d *Descriptor) Fingerprint() string { return d.fingerprint }

// QuotedTableName returns the table name as a double-quoted SQL identifier
// (spec.md §4.5: "all table and column identifiers are double-quoted").
func (d *Descriptor) QuotedTableName() string { return quoteIdent(d.TableName) }

func quoteIdent(name string) string {
	return `"` + name + `"`
}

// fingerprintOf builds a deterministic string fingerprint from the parts of
// a Descriptor that matter for compatibility: table name, PK, ordered
// columns and relationships.
func fingerprintOf(tableName string, pkInfo PrimaryKey, cols []Column, rels []Relationship) string {
	s := fmt.Sprintf("table=%s;pk=%s:%s;", tableName, pkInfo.FieldName, pkInfo.Type.FieldType())
	for _, c := range cols {
		s += fmt.Sprintf("col=%s:%s:%s:%v:%v;", c.FieldName, c.ColumnName, c.ValueType, c.Nullable, c.HasDefault)
	}
	for _, r := range rels {
		s += fmt.Sprintf("rel=%s:%s:%s:%s:%s;", r.Name, r.Kind, r.RelatedSchemaName, r.ForeignKeyOverride, r.JunctionTable)
	}
	return s
}
