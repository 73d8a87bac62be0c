package repository

import (
	"fmt"
	"reflect"

	"github.com/spectro-orm/spectro/schema"
)

// entityValues reads entity (a *T) into a field-name-keyed map suitable
// for sqlgen's Insert/BulkInsert/Upsert/Update, in the representation the
// Postgres client capability binds (spec.md §4.1: PK conversion goes
// through pk.Type.ToPostgresValue; scalar columns bind as their declared
// Go value, nil for a nullable pointer field left unset).
func entityValues(entity any, d *schema.Descriptor, includePK bool) (map[string]any, error) {
	sv := reflect.ValueOf(entity)
	if sv.Kind() != reflect.Ptr || sv.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("repository: %T is not a pointer to struct", entity)
	}
	sv = sv.Elem()

	out := make(map[string]any, len(d.Columns)+1)

	if includePK {
		fv := sv.FieldByName(d.PrimaryKey.FieldName)
		if !fv.IsValid() {
			return nil, fmt.Errorf("repository: schema %q has no field %q", d.Name, d.PrimaryKey.FieldName)
		}
		pgVal, err := d.PrimaryKey.Type.ToPostgresValue(fv.Interface())
		if err != nil {
			return nil, err
		}
		out[d.PrimaryKey.FieldName] = pgVal
	}

	for _, c := range d.Columns {
		fv := sv.FieldByName(c.FieldName)
		if !fv.IsValid() {
			return nil, fmt.Errorf("repository: schema %q has no field %q", d.Name, c.FieldName)
		}
		if fv.Kind() == reflect.Ptr {
			if fv.IsNil() {
				out[c.FieldName] = nil
				continue
			}
			out[c.FieldName] = fv.Elem().Interface()
			continue
		}
		out[c.FieldName] = fv.Interface()
	}

	return out, nil
}

// entityPK reads entity's primary-key field and converts it to its
// Postgres-bound representation.
func entityPK(entity any, d *schema.Descriptor) (any, error) {
	sv := reflect.ValueOf(entity)
	if sv.Kind() != reflect.Ptr || sv.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("repository: %T is not a pointer to struct", entity)
	}
	fv := sv.Elem().FieldByName(d.PrimaryKey.FieldName)
	if !fv.IsValid() {
		return nil, fmt.Errorf("repository: schema %q has no field %q", d.Name, d.PrimaryKey.FieldName)
	}
	return d.PrimaryKey.Type.ToPostgresValue(fv.Interface())
}
