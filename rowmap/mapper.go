// Package rowmap maps a decoded Postgres row onto an entity struct
// (spec.md §4.3): scalar columns are coerced to their declared field type,
// nullable columns handle a NULL sentinel, and every relationship field is
// left NotLoaded with a conventional loader closure attached so it can be
// fetched on first access (spec.md §4.4) or satisfied in bulk by the
// preload engine (spec.md §4.7).
package rowmap

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spectro-orm/spectro/relation"
	"github.com/spectro-orm/spectro/schema"
)

// Row is a single decoded database row, keyed by column name (not field
// name) exactly as returned by the Postgres driver.
type Row map[string]any

// LoaderFactory builds the on-demand loader for one relationship of a
// mapped entity, given the relationship's own descriptor and the parent
// row's primary-key value. Map never calls the returned loader itself; it
// only attaches it, so Map stays pure with respect to I/O — the loader is
// the single place I/O happens, and only when something calls Load().
type LoaderFactory func(rel schema.Relationship, parentPK any) func() (any, error)

// FieldMismatchError reports a descriptor column or relationship with no
// corresponding exported struct field (spec.md §7 InvalidSchema).
type FieldMismatchError struct {
	Schema string
	Field  string
	Reason string
}

func (e *FieldMismatchError) Error() string {
	return fmt.Sprintf("rowmap: schema %q field %q: %s", e.Schema, e.Field, e.Reason)
}

// Map decodes row into a new *T according to d, setting every declared
// scalar column and attaching makeLoader's closures to every relationship
// field. makeLoader may be nil, in which case relationship fields are left
// with no loader attached (Load() on them fails with relation.NotLoadedError
// until something calls WithLoadedAny, e.g. the preload engine).
func Map[T any](row Row, d *schema.Descriptor, makeLoader LoaderFactory) (*T, error) {
	out := new(T)
	if err := MapInto(out, row, d, makeLoader); err != nil {
		return nil, err
	}
	return out, nil
}

// MapInto is Map's reflect-driven core: it fills the struct pointed to by
// dst (a *T for some entity type T) instead of allocating one. The preload
// engine uses this directly, via reflect.New on a schema's registered Go
// type, to map children whose concrete type is not known at compile time
// (spec.md §4.7).
func MapInto(dst any, row Row, d *schema.Descriptor, makeLoader LoaderFactory) error {
	structVal := reflect.ValueOf(dst)
	if structVal.Kind() != reflect.Ptr || structVal.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("rowmap: %T is not a pointer to struct", dst)
	}
	structVal = structVal.Elem()

	pkRaw, ok := row[d.PrimaryKey.ColumnName()]
	if !ok {
		return &FieldMismatchError{Schema: d.Name, Field: d.PrimaryKey.FieldName, Reason: "row is missing the primary-key column"}
	}
	pkValue, err := d.PrimaryKey.Type.FromPostgresValue(pkRaw)
	if err != nil {
		return err
	}
	if err := setField(structVal, d.Name, d.PrimaryKey.FieldName, pkValue, false); err != nil {
		return err
	}

	for _, c := range d.Columns {
		raw, present := row[c.ColumnName]
		if !present {
			return &FieldMismatchError{Schema: d.Name, Field: c.FieldName, Reason: "row is missing this column"}
		}
		coerced, err := coerce(raw, c, structVal, d.Name)
		if err != nil {
			return err
		}
		if err := setField(structVal, d.Name, c.FieldName, coerced, c.Nullable); err != nil {
			return err
		}
	}

	for _, rel := range d.Relationships {
		fv := structVal.FieldByName(rel.Name)
		if !fv.IsValid() {
			return &FieldMismatchError{Schema: d.Name, Field: rel.Name, Reason: "no corresponding relationship field"}
		}
		lazy, ok := fv.Addr().Interface().(relation.AnyLazy)
		if !ok {
			return &FieldMismatchError{Schema: d.Name, Field: rel.Name, Reason: "field does not implement relation.AnyLazy (expected a relation.Lazy[T])"}
		}
		if makeLoader != nil {
			lazy.AttachLoaderAny(makeLoader(rel, pkValue))
		}
	}

	return nil
}

// setField assigns value to the struct field named fieldName, wrapping in
// a pointer whenever the field's declared type is a pointer; nullable is
// not consulted.
func setField(structVal reflect.Value, schemaName, fieldName string, value any, nullable bool) error {
	fv := structVal.FieldByName(fieldName)
	if !fv.IsValid() {
		return &FieldMismatchError{Schema: schemaName, Field: fieldName, Reason: "no corresponding struct field"}
	}
	if !fv.CanSet() {
		return &FieldMismatchError{Schema: schemaName, Field: fieldName, Reason: "struct field is not settable (unexported?)"}
	}

	if value == nil {
		fv.Set(reflect.Zero(fv.Type()))
		return nil
	}

	rv := reflect.ValueOf(value)
	if fv.Kind() == reflect.Ptr {
		ptr := reflect.New(fv.Type().Elem())
		if err := assign(ptr.Elem(), rv, schemaName, fieldName); err != nil {
			return err
		}
		fv.Set(ptr)
		return nil
	}
	return assign(fv, rv, schemaName, fieldName)
}

func assign(dst reflect.Value, src reflect.Value, schemaName, fieldName string) error {
	if src.Type().AssignableTo(dst.Type()) {
		dst.Set(src)
		return nil
	}
	if src.Type().ConvertibleTo(dst.Type()) {
		dst.Set(src.Convert(dst.Type()))
		return nil
	}
	return &FieldMismatchError{
		Schema: schemaName,
		Field:  fieldName,
		Reason: fmt.Sprintf("cannot assign decoded value of type %s to field of type %s", src.Type(), dst.Type()),
	}
}

// coerce converts a raw driver value into the Go representation implied by
// c.ValueType, handling the handful of driver-level type mismatches
// (lib/pq returning []byte for text, int64 for all integer widths, etc.).
func coerce(raw any, c schema.Column, structVal reflect.Value, schemaName string) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch c.ValueType {
	case "string":
		if b, ok := raw.([]byte); ok {
			return string(b), nil
		}
		return raw, nil
	case "time.Time":
		if t, ok := raw.(time.Time); ok {
			return t, nil
		}
		return nil, &FieldMismatchError{Schema: schemaName, Field: c.FieldName, Reason: fmt.Sprintf("expected time.Time, got %T", raw)}
	default:
		return raw, nil
	}
}
