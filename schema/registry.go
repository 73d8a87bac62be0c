package schema

import (
	"fmt"
	"sync"
)

// registry is the process-wide, concurrency-safe schema_name -> Descriptor
// map (spec.md §4.2, §5 "the schema registry is the only mutable
// process-wide state"). Registration is a one-shot exclusive write; lookups
// are RWMutex read-locked so concurrent queries never block each other.
type registry struct {
	mu   sync.RWMutex
	byName map[string]*Descriptor
}

var global = &registry{byName: make(map[string]*Descriptor)}

// Register adds d to the process-wide registry under d.Name. Registration
// is idempotent: registering an identical descriptor (same fingerprint) a
// second time is a no-op. Registering a different descriptor under a name
// already present returns an InvalidSchema-class error
// (spec.md §4.2: "duplicate with different fingerprint => InvalidSchema").
func Register(d *Descriptor) error {
	global.mu.Lock()
	defer global.mu.Unlock()
	existing, ok := global.byName[d.Name]
	if !ok {
		global.byName[d.Name] = d
		return nil
	}
	if existing.Fingerprint() != d.Fingerprint() {
		return &InvalidSchemaError{Name: d.Name, Reason: "re-registration with a different shape"}
	}
	return nil
}

// Lookup returns the descriptor registered under name. It is total in the
// sense that it never panics; ok is false when name has not been
// registered yet.
func Lookup(name string) (*Descriptor, bool) {
	global.mu.RLock()
	defer global.mu.RUnlock()
	d, ok := global.byName[name]
	return d, ok
}

// MustLookup is like Lookup but panics if name is not registered. It is
// intended for internal call sites (row mapper, preload engine) that only
// ever see schema names that were just resolved from a live Descriptor's
// own relationship list, so an unregistered name indicates a programming
// error, not a runtime condition to recover from.
func MustLookup(name string) *Descriptor {
	d, ok := Lookup(name)
	if !ok {
		panic(fmt.Sprintf("schema: %q is not registered", name))
	}
	return d
}

// ColumnsForInsert returns the ordered column list to use for an INSERT
// statement (spec.md §4.2). When includePK is false the primary-key column
// is omitted, matching Repository.Insert's default of letting Postgres
// generate it (spec.md §4.8).
func ColumnsForInsert(d *Descriptor, includePK bool) []Column {
	cols := make([]Column, 0, len(d.Columns)+1)
	if includePK {
		cols = append(cols, Column{
			FieldName:  d.PrimaryKey.FieldName,
			ColumnName: d.PrimaryKey.ColumnName(),
			ValueType:  string(d.PrimaryKey.Type.FieldType()),
		})
	}
	cols = append(cols, d.Columns...)
	return cols
}

// reset clears the registry. Test-only: used by registry_test.go (an
// internal test, same package) so table-driven schema tests don't leak
// state across subtests.
func reset() {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.byName = make(map[string]*Descriptor)
}

// InvalidSchemaError reports a schema registration conflict
// (spec.md §4.2, §7 InvalidSchema).
type InvalidSchemaError struct {
	Name   string
	Reason string
}

func (e *InvalidSchemaError) Error() string {
	return fmt.Sprintf("schema: invalid schema %q: %s", e.Name, e.Reason)
}
