// Package identity tracks object identity during one read or write pass.
//
// On write, every distinct object handle (a non-nil Go pointer) gets exactly one
// id, allocated monotonically from the first id of the pass. On read, every
// materialized instance is registered under its stored id so later references
// resolve to the same instance.
package identity

import (
	"reflect"

	"github.com/leapstack-labs/objsql/pkg/core"
	"github.com/leapstack-labs/objsql/pkg/schema"
)

type entry struct {
	instance any
	class    schema.Class
}

// Registry is the object identity table of one pass.
type Registry struct {
	first int64
	next  int64
	ids   map[any]int64
	objs  map[int64]entry
}

// New creates a registry allocating ids from first (values below 1 become 1).
func New(first int64) *Registry {
	if first < 1 {
		first = 1
	}
	return &Registry{
		first: first,
		next:  first,
		ids:   make(map[any]int64),
		objs:  make(map[int64]entry),
	}
}

// IsNil reports whether obj is a nil interface or a typed nil pointer.
func IsNil(obj any) bool {
	if obj == nil {
		return true
	}
	rv := reflect.ValueOf(obj)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// checkHandle rejects anything but non-nil pointers.
func checkHandle(obj any) error {
	if obj == nil {
		return core.Errorf(core.InvalidMemberSpec, "identity", "nil handle")
	}
	rv := reflect.ValueOf(obj)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return core.Errorf(core.InvalidMemberSpec, "identity", "object handle must be a non-nil pointer, got %T", obj)
	}
	return nil
}

// Lookup returns the id already assigned to obj.
func (r *Registry) Lookup(obj any) (int64, bool) {
	if checkHandle(obj) != nil {
		return 0, false
	}
	id, ok := r.ids[obj]
	return id, ok
}

// Assign returns the id of obj, allocating the next one if obj is new.
// The boolean is true when the id was allocated by this call.
func (r *Registry) Assign(obj any) (int64, bool, error) {
	if err := checkHandle(obj); err != nil {
		return 0, false, err
	}
	if id, ok := r.ids[obj]; ok {
		return id, false, nil
	}
	id := r.next
	r.next++
	r.ids[obj] = id
	return id, true, nil
}

// Register binds a stored id to a materialized instance.
func (r *Registry) Register(id int64, instance any, cl schema.Class) {
	r.objs[id] = entry{instance: instance, class: cl}
	if checkHandle(instance) == nil {
		r.ids[instance] = id
	}
}

// Instance returns the instance registered under id.
func (r *Registry) Instance(id int64) (any, schema.Class, bool) {
	e, ok := r.objs[id]
	return e.instance, e.class, ok
}

// First returns the first id of the pass.
func (r *Registry) First() int64 {
	return r.first
}

// Last returns the last id allocated, or First()-1 if none was.
func (r *Registry) Last() int64 {
	return r.next - 1
}

// Len returns the number of known objects.
func (r *Registry) Len() int {
	if len(r.objs) > len(r.ids) {
		return len(r.objs)
	}
	return len(r.ids)
}
