// Package pk implements Spectro's primary-key abstraction (spec.md §4.1):
// a capability interface that lets the schema registry, row mapper and
// preload engine work with UUID, integer and text primary keys without
// erasing them to one concrete Go type.
package pk

import (
	"fmt"

	"github.com/google/uuid"
)

// FieldType names the declared Go/Postgres type of a primary key, used by
// the schema descriptor (spec.md §3) to report pk_type.
type FieldType string

// Built-in primary-key field types.
const (
	TypeUUID FieldType = "uuid"
	TypeInt  FieldType = "int"
	TypeText FieldType = "text"
)

// Type is the capability every primary-key kind must implement
// (spec.md §4.1): conversion to and from a Postgres-bound value, a zero
// default, and the declared field type.
type Type interface {
	// ToPostgresValue converts a Go-level key value into the value the
	// Postgres client capability (package conn) should bind as a query
	// parameter.
	ToPostgresValue(v any) (any, error)
	// FromPostgresValue decodes a value read back from a Postgres row
	// into the Go-level key representation. Returns an *InvalidDataError
	// when the value cannot be decoded as this type.
	FromPostgresValue(v any) (any, error)
	// DefaultValue returns the zero/default key value for this type
	// (random UUID, 0, or "").
	DefaultValue() any
	// FieldType reports the declared kind.
	FieldType() FieldType
}

// InvalidDataError is returned by FromPostgresValue when the value cannot
// be decoded as the declared primary-key type.
type InvalidDataError struct {
	Type  FieldType
	Value any
}

func (e *InvalidDataError) Error() string {
	return fmt.Sprintf("pk: cannot decode %v (%T) as %s primary key", e.Value, e.Value, e.Type)
}

// Wrapper exposes a primary-key value as a hashable, type-erased quantity
// plus its Postgres representation, so code that does not know the
// concrete key type (the row mapper, the preload engine's grouping maps)
// can still key a map by primary key and bind it as a query parameter
// (spec.md §4.1, §9 "Generic primary keys via capability").
type Wrapper interface {
	// Key returns a comparable value suitable for use as a Go map key.
	Key() any
	// Postgres returns the value as it should be bound in a query.
	Postgres() any
}

// ForeignWrapper is the same capability as Wrapper but documents that the
// value originates from a foreign-key column rather than a primary-key
// column. The two are structurally identical; the distinct name exists so
// call sites read clearly (spec.md §4.1).
type ForeignWrapper = Wrapper

// Value wraps any key produced by a Type, implementing Wrapper.
type Value struct {
	key      any
	postgres any
}

// NewValue builds a Wrapper from a decoded key value and its Postgres
// representation.
func NewValue(key, postgres any) Value {
	return Value{key: key, postgres: postgres}
}

// Key implements Wrapper.
func (v Value) Key() any { return v.key }

// Postgres implements Wrapper.
func (v Value) Postgres() any { return v.postgres }

// UUID is the 128-bit UUID primary-key type. Its default value is a
// randomly generated v4 UUID.
var UUID Type = uuidType{}

type uuidType struct{}

func (uuidType) ToPostgresValue(v any) (any, error) {
	switch id := v.(type) {
	case uuid.UUID:
		return id.String(), nil
	case string:
		if _, err := uuid.Parse(id); err != nil {
			return nil, &InvalidDataError{Type: TypeUUID, Value: v}
		}
		return id, nil
	default:
		return nil, &InvalidDataError{Type: TypeUUID, Value: v}
	}
}

func (uuidType) FromPostgresValue(v any) (any, error) {
	switch id := v.(type) {
	case uuid.UUID:
		return id, nil
	case [16]byte:
		return uuid.UUID(id), nil
	case string:
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, &InvalidDataError{Type: TypeUUID, Value: v}
		}
		return parsed, nil
	case []byte:
		parsed, err := uuid.ParseBytes(id)
		if err != nil {
			return nil, &InvalidDataError{Type: TypeUUID, Value: v}
		}
		return parsed, nil
	default:
		return nil, &InvalidDataError{Type: TypeUUID, Value: v}
	}
}

func (uuidType) DefaultValue() any { return uuid.New() }

func (uuidType) FieldType() FieldType { return TypeUUID }

// Int is the 64-bit signed integer primary-key type. Its default value is 0.
var Int Type = intType{}

type intType struct{}

func (intType) ToPostgresValue(v any) (any, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	default:
		return nil, &InvalidDataError{Type: TypeInt, Value: v}
	}
}

func (intType) FromPostgresValue(v any) (any, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	default:
		return nil, &InvalidDataError{Type: TypeInt, Value: v}
	}
}

func (intType) DefaultValue() any { return int64(0) }

func (intType) FieldType() FieldType { return TypeInt }

// Text is the UTF-8 text primary-key type. Its default value is "".
var Text Type = textType{}

type textType struct{}

func (textType) ToPostgresValue(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, &InvalidDataError{Type: TypeText, Value: v}
	}
	return s, nil
}

func (textType) FromPostgresValue(v any) (any, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	default:
		return nil, &InvalidDataError{Type: TypeText, Value: v}
	}
}

func (textType) DefaultValue() any { return "" }

func (textType) FieldType() FieldType { return TypeText }
