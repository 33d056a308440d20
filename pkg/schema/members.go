package schema

import "github.com/leapstack-labs/objsql/pkg/core"

// Basic declares a scalar member of T.
func Basic[T any, V core.Scalar](name string, field func(*T) *V) *Member {
	return &Member{
		Name: name,
		Kind: KindBasic,
		Type: core.DataTypeOf[V](),
		Stream: func(b Buffer, obj any) {
			b.Basic(field(obj.(*T)))
		},
	}
}

// Fixed declares a fixed-size array member of T. field returns a slice over the array.
func Fixed[T any, V core.Scalar](name string, field func(*T) []V, dims ...int) *Member {
	return &Member{
		Name: name,
		Kind: KindBasic,
		Type: core.DataTypeOf[V](),
		Dims: dims,
		Stream: func(b Buffer, obj any) {
			b.FastArray(field(obj.(*T)))
		},
	}
}

// String declares a string member of T.
func String[T any](name string, field func(*T) *string) *Member {
	return &Member{
		Name: name,
		Kind: KindString,
		Type: core.TypeString,
		Stream: func(b Buffer, obj any) {
			b.CharStar(field(obj.(*T)))
		},
	}
}

// Slice declares a variable-length slice member of T.
func Slice[T any, V core.Scalar](name string, field func(*T) *[]V) *Member {
	return &Member{
		Name: name,
		Kind: KindArray,
		Type: core.DataTypeOf[V](),
		Stream: func(b Buffer, obj any) {
			b.Array(field(obj.(*T)))
		},
	}
}

// Base declares base as a base class of T. field returns the embedded base value.
func Base[T any, B any](base Class, field func(*T) *B) *Member {
	return &Member{
		Name:      base.Name(),
		Kind:      KindBase,
		ClassName: base.Name(),
		Stream: func(b Buffer, obj any) {
			base.Describe(b, field(obj.(*T)))
		},
	}
}

// Object declares an embedded object member of T.
func Object[T any, E any](name string, cl Class, field func(*T) *E) *Member {
	return &Member{
		Name:      name,
		Kind:      KindObject,
		ClassName: cl.Name(),
		Stream: func(b Buffer, obj any) {
			b.StreamObject(field(obj.(*T)), cl)
		},
	}
}

// Pointer declares a reference member of T. P is a pointer or interface type;
// cl is the declared class, the stored class may be any registered subclass.
func Pointer[T any, P any](name string, cl Class, field func(*T) *P) *Member {
	return &Member{
		Name:      name,
		Kind:      KindPointer,
		ClassName: cl.Name(),
		Stream: func(b Buffer, obj any) {
			StreamPointer(b, field(obj.(*T)), cl)
		},
	}
}

// StreamPointer moves one reference between *p and the buffer.
func StreamPointer[P any](b Buffer, p *P, cl Class) {
	if !b.IsReading() {
		b.WriteObject(any(*p), cl)
		return
	}
	inst, _ := b.ReadObject(nil, cl)
	if b.Failed() {
		return
	}
	if inst == nil {
		var zero P
		*p = zero
		return
	}
	v, ok := inst.(P)
	if !ok {
		b.Fail(core.Errorf(core.SchemaMismatch, "ReadObject", "stored object %T does not fit a %s reference", inst, cl.Name()))
		return
	}
	*p = v
}

// Custom declares a member written by a hand-written callback into the raw table.
func Custom[T any](name string, stream func(b Buffer, obj *T)) *Member {
	return &Member{
		Name: name,
		Kind: KindRaw,
		Stream: func(b Buffer, obj any) {
			stream(b, obj.(*T))
		},
	}
}

// Chain declares consecutive scalar members of T streamed as one member-wise run.
// fields returns pointers to the members in declaration order.
func Chain[T any, V core.Scalar](fields func(*T) []*V, names ...string) []*Member {
	members := make([]*Member, len(names))
	dt := core.DataTypeOf[V]()
	for i, name := range names {
		members[i] = &Member{Name: name, Kind: KindBasic, Type: dt}
	}
	if len(members) == 0 {
		return members
	}
	members[0].Chain = len(names)
	members[0].Stream = func(b Buffer, obj any) {
		ptrs := fields(obj.(*T))
		values := make([]V, len(ptrs))
		if !b.IsReading() {
			for i, p := range ptrs {
				values[i] = *p
			}
			b.FastArray(values)
			return
		}
		b.FastArray(values)
		if b.Failed() {
			return
		}
		for i, p := range ptrs {
			*p = values[i]
		}
	}
	return members
}
