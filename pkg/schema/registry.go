package schema

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/leapstack-labs/objsql/pkg/core"
)

// Typed is implemented by classes bound to a Go type.
// The registry uses it to find the dynamic class of an object.
type Typed interface {
	GoType() reflect.Type
}

// Registry maps class names and Go types to classes.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Class
	byType map[reflect.Type]Class
}

// NewRegistry creates a registry holding classes.
// It panics if two classes share a name.
func NewRegistry(classes ...Class) *Registry {
	r := &Registry{
		byName: make(map[string]Class),
		byType: make(map[reflect.Type]Class),
	}
	for _, cl := range classes {
		if err := r.Register(cl); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a class to the registry.
func (r *Registry) Register(cl Class) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[cl.Name()]; ok {
		return fmt.Errorf("class %q already registered", cl.Name())
	}
	r.byName[cl.Name()] = cl
	if typed, ok := cl.(Typed); ok {
		r.byType[typed.GoType()] = cl
	}
	return nil
}

// Lookup retrieves a class by name.
func (r *Registry) Lookup(name string) (Class, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	cl, ok := r.byName[name]
	return cl, ok
}

// ClassOf returns the class bound to the dynamic type of obj.
func (r *Registry) ClassOf(obj any) (Class, bool) {
	if r == nil || obj == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	cl, ok := r.byType[reflect.TypeOf(obj)]
	return cl, ok
}

// Names returns all registered class names (sorted).
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnknownClassError is returned when a stored class name is not registered.
type UnknownClassError struct {
	Name      string
	Available []string
}

func (e *UnknownClassError) Error() string {
	return fmt.Sprintf("unknown class %q\nRegistered classes: %v", e.Name, e.Available)
}

// Is matches core.ErrSchemaMismatch.
func (e *UnknownClassError) Is(target error) bool {
	return target == core.ErrSchemaMismatch
}

// MustLookup retrieves a class by name or returns an UnknownClassError.
func (r *Registry) MustLookup(name string) (Class, error) {
	if cl, ok := r.Lookup(name); ok {
		return cl, nil
	}
	var available []string
	if r != nil {
		available = r.Names()
	}
	return nil, &UnknownClassError{Name: name, Available: available}
}

// ResolveMember turns a custom member declaration into a Member.
//
// Accepted type names are the primitive tags (int32, float64, ...), "string",
// "raw" or "raw:data" for opaque data, "base:<Class>" for a base class,
// "<Class>*" for a pointer and a bare registered class name for an embedded object.
func (r *Registry) ResolveMember(name, typeName string, dims []int) (*Member, error) {
	typeName = strings.TrimSpace(typeName)
	m := &Member{Name: name, Dims: dims}

	switch {
	case name == "":
		return nil, core.Errorf(core.InvalidMemberSpec, "ClassMember", "member without name")
	case typeName == "raw" || typeName == "raw:data":
		m.Kind = KindRaw
		return m, nil
	case typeName == "string":
		m.Kind = KindString
		m.Type = core.TypeString
		return m, nil
	}

	if dt, ok := core.ParseDataType(typeName); ok {
		m.Kind = KindBasic
		m.Type = dt
		return m, nil
	}

	kind := KindObject
	className := typeName
	switch {
	case strings.HasPrefix(typeName, "base:"):
		kind = KindBase
		className = strings.TrimPrefix(typeName, "base:")
	case strings.HasSuffix(typeName, "*"):
		kind = KindPointer
		className = strings.TrimSpace(strings.TrimSuffix(typeName, "*"))
	}
	if _, ok := r.Lookup(className); !ok {
		return nil, core.Errorf(core.InvalidMemberSpec, "ClassMember", "member %q has unresolvable type %q", name, typeName)
	}
	m.Kind = kind
	m.ClassName = className
	return m, nil
}
