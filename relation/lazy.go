// Package relation implements the lazy relationship handle attached to
// every relationship field on a loaded entity (spec.md §4.4): a small
// state machine that starts NotLoaded, transitions through Loading while
// a loader runs, and settles into Loaded(value) or Failed(err).
package relation

import (
	"fmt"
	"sync"

	spectro "github.com/spectro-orm/spectro"
)

// State is a Lazy relationship's current phase.
type State int

// Relationship states (spec.md §4.4).
const (
	NotLoaded State = iota
	Loading
	Loaded
	Failed
)

func (s State) String() string {
	switch s {
	case NotLoaded:
		return "not_loaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// NotLoadedError is returned by Load when no loader has been attached and
// the relationship was never preloaded. It wraps a *spectro.Error tagged
// KindNotImplemented (spec.md §7: "Load() on an unattached relation fails
// with a NotImplemented-class error"), so spectro.HasKind(err,
// spectro.KindNotImplemented) reports true for it.
type NotLoadedError struct {
	Relation string
	cause    error
}

func (e *NotLoadedError) Error() string {
	return fmt.Sprintf("relation: %q has not been loaded and no loader is attached", e.Relation)
}

func (e *NotLoadedError) Unwrap() error { return e.cause }

// Loader fetches the related value on demand. Loaders are attached by the
// row mapper (package rowmap) following the conventional foreign-key
// lookup spec.md §4.3 describes.
type Loader[T any] func() (T, error)

// Lazy is a relationship handle on a loaded entity. The zero value is
// NotLoaded with no loader attached — deliberately usable without
// construction so entity structs can embed Lazy[T] directly.
type Lazy[T any] struct {
	mu     sync.Mutex
	state  State
	value  T
	err    error
	loader Loader[T]
	name   string
}

// New returns a Lazy relationship named name (used in NotLoadedError
// messages), in the NotLoaded state with no loader attached.
func New[T any](name string) *Lazy[T] {
	return &Lazy[T]{name: name, state: NotLoaded}
}

// AttachLoader assigns the on-demand loader for this relationship. If the
// handle is already Loaded (typically with a default set before any loader
// existed), attaching a new loader resets the state back to NotLoaded so
// the next Load call re-fetches instead of returning the stale value. The
// handle does not tell a default apart from a preloaded value: any Loaded
// value is discarded (spec.md §4.4 "attach_loader on an already-Loaded(default)
// handle resets to NotLoaded").
func (l *Lazy[T]) AttachLoader(loader Loader[T]) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loader = loader
	if l.state == Loaded {
		var zero T
		l.value = zero
		l.state = NotLoaded
	}
}

// WithLoaded injects a value produced out-of-band, typically by the
// preload engine batch-fetching this relationship (spec.md §4.7). It moves
// the handle directly to Loaded, bypassing the loader.
func (l *Lazy[T]) WithLoaded(value T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.value = value
	l.err = nil
	l.state = Loaded
}

// Load returns the relationship's value, fetching it via the attached
// loader on first call and memoizing the result (or error) for every
// subsequent call (spec.md §4.4 "Load is memoized: exactly one fetch per
// handle"). Calling Load on an already-Loaded or already-Failed handle
// returns the memoized outcome without invoking the loader again.
func (l *Lazy[T]) Load() (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case Loaded:
		return l.value, nil
	case Failed:
		var zero T
		return zero, l.err
	}

	if l.loader == nil {
		var zero T
		err := &NotLoadedError{
			Relation: l.name,
			cause: spectro.NewError(spectro.KindNotImplemented,
				fmt.Sprintf("relation %q has no loader attached and was not preloaded", l.name)),
		}
		l.state = Failed
		l.err = err
		return zero, err
	}

	l.state = Loading
	v, err := l.loader()
	if err != nil {
		l.state = Failed
		l.err = err
		var zero T
		return zero, err
	}
	l.state = Loaded
	l.value = v
	return v, nil
}

// State reports the handle's current phase without triggering a load.
func (l *Lazy[T]) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// AnyLazy is the type-erased view of a *Lazy[T], implemented by every
// instantiation. Packages that only know a relationship field's reflect.Value
// (the row mapper, the preload engine) use this interface to attach loaders
// and inject preloaded values without needing T at compile time.
type AnyLazy interface {
	AttachLoaderAny(loader func() (any, error))
	WithLoadedAny(value any)
	StateAny() State
}

// AttachLoaderAny implements AnyLazy by wrapping loader to produce a T,
// failing with a type-assertion error if loader's result is not a T.
func (l *Lazy[T]) AttachLoaderAny(loader func() (any, error)) {
	l.AttachLoader(func() (T, error) {
		v, err := loader()
		if err != nil {
			var zero T
			return zero, err
		}
		t, ok := v.(T)
		if !ok {
			var zero T
			return zero, fmt.Errorf("relation: loader for %q produced %T, want %T", l.name, v, zero)
		}
		return t, nil
	})
}

// WithLoadedAny implements AnyLazy. It is a no-op if value is not a T.
func (l *Lazy[T]) WithLoadedAny(value any) {
	if v, ok := value.(T); ok {
		l.WithLoaded(v)
	}
}

// StateAny implements AnyLazy.
func (l *Lazy[T]) StateAny() State { return l.State() }

// MustGet returns the memoized value without loading; it panics if the
// handle is not already Loaded. Intended for code paths that have just
// preloaded the relationship and know it is populated.
func (l *Lazy[T]) MustGet() T {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Loaded {
		panic(fmt.Sprintf("relation: MustGet called on %q in state %s", l.name, l.state))
	}
	return l.value
}
