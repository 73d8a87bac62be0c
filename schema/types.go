package schema

import (
	"fmt"
	"reflect"
	"sync"
)

// typeRegistry maps a registered schema name to the Go struct type backing
// it. Packages that only know a related schema by name — the preload
// engine resolving a relationship's target, the repository materialising
// query results generically — use this to reflect.New a concrete value
// without a type parameter in scope (spec.md §4.7).
var typeRegistry = struct {
	mu     sync.RWMutex
	byName map[string]reflect.Type
}{byName: make(map[string]reflect.Type)}

// RegisterEntityType associates schema name with the Go type T, so that
// EntityGoType(name) can later reflect.New a *T dynamically. Call this
// once per entity, typically from an init function alongside the
// corresponding Register(descriptor) call.
func RegisterEntityType[T any](name string) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	typeRegistry.mu.Lock()
	defer typeRegistry.mu.Unlock()
	typeRegistry.byName[name] = t
}

// EntityGoType returns the Go struct type registered for name.
func EntityGoType(name string) (reflect.Type, bool) {
	typeRegistry.mu.RLock()
	defer typeRegistry.mu.RUnlock()
	t, ok := typeRegistry.byName[name]
	return t, ok
}

// MustEntityGoType is like EntityGoType but panics if name was never
// registered — used at call sites where the name was just resolved from a
// live Descriptor's own relationship list.
func MustEntityGoType(name string) reflect.Type {
	t, ok := EntityGoType(name)
	if !ok {
		panic(fmt.Sprintf("schema: no Go type registered for %q", name))
	}
	return t
}

// resetTypes is test-only, mirroring reset() in registry.go.
func resetTypes() {
	typeRegistry.mu.Lock()
	defer typeRegistry.mu.Unlock()
	typeRegistry.byName = make(map[string]reflect.Type)
}
