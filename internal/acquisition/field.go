package acquisition

import (
	"fmt"
	"reflect"
	"sync"
)

// Field is one named device parameter. It holds the device code of the last
// accepted value and whether that code still has to reach the board.
type Field[T comparable] struct {
	name   string
	domain Domain[T]

	mu    sync.RWMutex
	value T
	code  uint32
	set   bool
	stale bool
}

func newField[T comparable](name string, domain Domain[T]) *Field[T] {
	return &Field[T]{name: name, domain: domain}
}

// Name returns the field name used in configuration and errors
func (f *Field[T]) Name() string {
	return f.name
}

// Domain returns the values the field accepts
func (f *Field[T]) Domain() Domain[T] {
	return f.domain
}

// Set validates v and stores its code as pending. A rejected value leaves the
// field unchanged.
func (f *Field[T]) Set(v T) error {
	code, err := f.domain.Code(v)
	if err != nil {
		return &ConfigurationError{Field: f.name, Value: v, Reason: err.Error()}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.value = v
	f.code = code
	f.set = true
	f.stale = true
	return nil
}

// Get returns the current value and whether one was ever set
func (f *Field[T]) Get() (T, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.value, f.set
}

// Code returns the device code of the current value
func (f *Field[T]) Code() (uint32, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.set {
		return 0, &UnsetFieldError{Field: f.name}
	}
	return f.code, nil
}

// Stale reports whether the current code has not been applied to the board
func (f *Field[T]) Stale() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.stale
}

// IsSet reports whether a value was ever accepted
func (f *Field[T]) IsSet() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.set
}

func (f *Field[T]) commit() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.set {
		f.stale = false
	}
}

// field is the untyped view the registry uses for lookups by name
type field interface {
	Name() string
	Code() (uint32, error)
	Stale() bool
	IsSet() bool
	commit()
	setAny(v any) error
	valueAny() (any, bool)
	describe() string
	samples() []any
	codeOf(v any) (uint32, error)
}

func (f *Field[T]) setAny(v any) error {
	tv, err := convertTo[T](v)
	if err != nil {
		return &ConfigurationError{Field: f.name, Value: v, Reason: err.Error()}
	}
	return f.Set(tv)
}

func (f *Field[T]) valueAny() (any, bool) {
	return f.Get()
}

func (f *Field[T]) describe() string {
	return f.domain.Describe()
}

func (f *Field[T]) samples() []any {
	s := f.domain.Samples()
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

func (f *Field[T]) codeOf(v any) (uint32, error) {
	tv, err := convertTo[T](v)
	if err != nil {
		return 0, err
	}
	return f.domain.Code(tv)
}

// convertTo converts v to T when the conversion loses nothing. Numbers
// convert between numeric kinds, strings between string kinds and bools
// only to bools.
func convertTo[T any](v any) (T, error) {
	var zero T
	if tv, ok := v.(T); ok {
		return tv, nil
	}
	if v == nil {
		return zero, fmt.Errorf("value is nil")
	}

	target := reflect.TypeFor[T]()
	rv := reflect.ValueOf(v)
	if kindClass(rv.Kind()) == "" || kindClass(rv.Kind()) != kindClass(target.Kind()) {
		return zero, fmt.Errorf("cannot use %T as %s", v, target)
	}

	converted := rv.Convert(target)
	if kindClass(rv.Kind()) == "number" {
		back := converted.Convert(rv.Type())
		if back.Interface() != rv.Interface() {
			return zero, fmt.Errorf("%v does not fit %s", v, target)
		}
	}
	return converted.Interface().(T), nil //nolint:forcetypeassert // Convert yields T
}

func kindClass(k reflect.Kind) string {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "number"
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "bool"
	default:
		return ""
	}
}
