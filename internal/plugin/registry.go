package plugin

import (
	"reflect"
	"sync"
)

// ObjectRegistry is a flat table of live shared objects used for
// inter-plugin service discovery. Each object is optionally addressable by a
// name; capability-typed lookup scans for the first object satisfying a
// requested interface.
//
// Misusing the registry - adding a nil or already-registered object,
// removing an object never added - is a programmer-contract violation by the
// embedding code, not a data error, and panics rather than returning an
// error. Absence on lookup is not an error.
type ObjectRegistry struct {
	mu      sync.RWMutex
	entries []registryEntry
}

type registryEntry struct {
	name   string
	object any
}

// NewObjectRegistry creates an empty object registry.
func NewObjectRegistry() *ObjectRegistry {
	return &ObjectRegistry{}
}

// AddObject registers a live object under an optional name. It panics if
// obj is nil or is already registered.
func (r *ObjectRegistry) AddObject(obj any, name string) {
	if obj == nil {
		panic("plugin: AddObject called with nil object")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if sameObject(e.object, obj) {
			panic("plugin: AddObject called with already-registered object")
		}
	}
	r.entries = append(r.entries, registryEntry{name: name, object: obj})
}

// RemoveObject removes a registered object. It panics if obj is not
// currently registered.
func (r *ObjectRegistry) RemoveObject(obj any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.entries {
		if sameObject(e.object, obj) {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return
		}
	}
	panic("plugin: RemoveObject called with unregistered object")
}

// GetObject returns the first object registered under name. Absence is not
// an error; ok is false when no object carries the name.
func (r *ObjectRegistry) GetObject(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.name == name {
			return e.object, true
		}
	}
	return nil, false
}

// Objects returns all registered objects in registration order.
func (r *ObjectRegistry) Objects() []any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]any, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.object
	}
	return out
}

// Len returns the number of registered objects.
func (r *ObjectRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// reset drops every entry. Used by the host when tearing down, after module
// sessions holding the objects have been released.
func (r *ObjectRegistry) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}

// sameObject reports whether a and b are the same live object. Reference
// kinds compare by identity; uncomparable value types never match, so the
// duplicate scan cannot panic on them.
func sameObject(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ra.Type() != rb.Type() {
		return false
	}
	switch ra.Kind() {
	case reflect.Pointer, reflect.Chan, reflect.Map, reflect.Func, reflect.Slice, reflect.UnsafePointer:
		return ra.Pointer() == rb.Pointer()
	default:
		if !ra.Type().Comparable() {
			return false
		}
		return a == b
	}
}

// FindObject returns the first registered object satisfying the requested
// capability T, supporting service-locator style discovery without a name.
func FindObject[T any](r *ObjectRegistry) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if obj, ok := e.object.(T); ok {
			return obj, true
		}
	}
	var zero T
	return zero, false
}
