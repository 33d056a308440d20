package schema

import (
	"fmt"
	"reflect"

	"github.com/leapstack-labs/objsql/pkg/core"
)

// StructClass describes a Go struct type T through per-version member lists.
type StructClass[T any] struct {
	name    string
	version int
	infos   map[int]*StreamerInfo
}

// NewClass creates a class whose current version has the given members.
// It panics on invalid member lists, like regexp.MustCompile.
func NewClass[T any](name string, version int, members ...*Member) *StructClass[T] {
	c := &StructClass[T]{name: name, version: version, infos: make(map[int]*StreamerInfo)}
	return c.WithVersion(version, members...)
}

// WithVersion adds the member layout of another readable version.
func (c *StructClass[T]) WithVersion(version int, members ...*Member) *StructClass[T] {
	info, err := NewStreamerInfo(c.name, version, members...)
	if err != nil {
		panic(err)
	}
	c.infos[version] = info
	return c
}

// Name implements Class.
func (c *StructClass[T]) Name() string { return c.name }

// Version implements Class.
func (c *StructClass[T]) Version() int { return c.version }

// New implements Class.
func (c *StructClass[T]) New() any { return new(T) }

// Info implements Class.
func (c *StructClass[T]) Info(version int) *StreamerInfo { return c.infos[version] }

// GoType implements Typed.
func (c *StructClass[T]) GoType() reflect.Type { return reflect.TypeFor[*T]() }

// Describe implements Class.
func (c *StructClass[T]) Describe(b Buffer, obj any) {
	if _, ok := obj.(*T); !ok {
		b.Fail(core.Errorf(core.InvalidMemberSpec, "Describe", "class %s cannot describe %T", c.name, obj))
		return
	}
	StreamMembers(b, c, obj)
}

// StreamMembers is the member-list driven describe: version handshake,
// then one SetElementNumber and Stream call per member.
func StreamMembers(b Buffer, cl Class, obj any) {
	var version int
	if b.IsReading() {
		version = b.ReadVersion(cl)
	} else {
		version = cl.Version()
		b.WriteVersion(cl)
	}
	if b.Failed() {
		return
	}

	info := cl.Info(version)
	if info == nil {
		b.Fail(core.Errorf(core.SchemaMismatch, "Describe", "class %s has no layout for version %d", cl.Name(), version))
		return
	}

	b.IncrementLevel(info)
	for i := 0; i < len(info.Members); i++ {
		m := info.Members[i]
		comp := CompPlain
		if m.Chain > 1 {
			comp = CompChain
		}
		b.SetElementNumber(m, comp)
		if m.Stream != nil {
			m.Stream(b, obj)
		}
		if m.Chain > 1 {
			i += m.Chain - 1
		}
	}
	b.DecrementLevel(info)
}

// CustomClass is a class streamed by hand through ClassBegin, ClassMember and ClassEnd.
// All of its data is stored in the raw table.
type CustomClass[T any] struct {
	name    string
	version int
	stream  func(b Buffer, obj *T, version int)
}

// NewCustomClass creates a custom-streamed class.
func NewCustomClass[T any](name string, version int, stream func(b Buffer, obj *T, version int)) *CustomClass[T] {
	return &CustomClass[T]{name: name, version: version, stream: stream}
}

// Name implements Class.
func (c *CustomClass[T]) Name() string { return c.name }

// Version implements Class.
func (c *CustomClass[T]) Version() int { return c.version }

// New implements Class.
func (c *CustomClass[T]) New() any { return new(T) }

// Info implements Class. Custom classes have no member layout.
func (c *CustomClass[T]) Info(int) *StreamerInfo { return nil }

// GoType implements Typed.
func (c *CustomClass[T]) GoType() reflect.Type { return reflect.TypeFor[*T]() }

// Describe implements Class.
func (c *CustomClass[T]) Describe(b Buffer, obj any) {
	o, ok := obj.(*T)
	if !ok {
		b.Fail(core.Errorf(core.InvalidMemberSpec, "Describe", "class %s cannot describe %T", c.name, obj))
		return
	}
	version := c.version
	if b.IsReading() {
		version = b.ReadVersion(c)
	} else {
		b.WriteVersion(c)
	}
	if b.Failed() {
		return
	}
	b.ClassBegin(c, version)
	c.stream(b, o, version)
	b.ClassEnd(c)
}

func (c *CustomClass[T]) String() string {
	return fmt.Sprintf("%s (custom, version %d)", c.name, c.version)
}

// ClassRef is a class resolved on first use. Members of a class that refer to
// the class itself, or to a class declared later, use it to break the
// initialization cycle.
type ClassRef struct {
	name string
	get  func() Class
}

// Ref returns a reference to the class returned by get.
func Ref(name string, get func() Class) *ClassRef {
	return &ClassRef{name: name, get: get}
}

// Name implements Class without resolving the reference.
func (r *ClassRef) Name() string { return r.name }

// Version implements Class.
func (r *ClassRef) Version() int { return r.get().Version() }

// New implements Class.
func (r *ClassRef) New() any { return r.get().New() }

// Info implements Class.
func (r *ClassRef) Info(version int) *StreamerInfo { return r.get().Info(version) }

// Describe implements Class.
func (r *ClassRef) Describe(b Buffer, obj any) { r.get().Describe(b, obj) }

// Resolve returns the referenced class.
func (r *ClassRef) Resolve() Class { return r.get() }
