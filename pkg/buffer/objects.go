package buffer

import (
	"reflect"
	"strconv"

	"github.com/leapstack-labs/objsql/pkg/core"
	"github.com/leapstack-labs/objsql/pkg/identity"
	"github.com/leapstack-labs/objsql/pkg/schema"
	"github.com/leapstack-labs/objsql/pkg/structure"
)

// WriteObject implements schema.Buffer.
//
// A nil obj is written as reference 0 and an object already seen in the pass
// as a reference to its id. Anything else gets the next id and is described
// by its dynamic class, falling back to the declared one.
func (b *Buffer) WriteObject(obj any, cl schema.Class) int64 {
	if b.reading {
		b.fail(core.InvalidMemberSpec, "WriteObject", "called during a read pass")
		return core.NullObjectID
	}
	if b.Failed() {
		return core.NullObjectID
	}
	if identity.IsNil(obj) {
		b.attach(structure.NewReference(core.NullObjectID))
		return core.NullObjectID
	}
	if id, ok := b.ids.Lookup(obj); ok {
		b.attach(structure.NewReference(id))
		return id
	}

	actual := cl
	if dyn, ok := b.registry.ClassOf(obj); ok {
		actual = dyn
	}
	if actual == nil {
		b.fail(core.InvalidMemberSpec, "WriteObject", "no class known for %T", obj)
		return core.NullObjectID
	}
	return b.writeStored(obj, actual)
}

func (b *Buffer) writeStored(obj any, cl schema.Class) int64 {
	id, _, err := b.ids.Assign(obj)
	if err != nil {
		b.Fail(err)
		return core.NullObjectID
	}
	node := structure.NewObject(id, cl.Name(), cl.Version())
	if !b.attach(node) {
		return id
	}
	pop := b.stack.Push(&structure.Frame{Node: node})
	defer pop()

	cl.Describe(b, obj)
	return id
}

// ReadObject implements schema.Buffer.
func (b *Buffer) ReadObject(obj any, expected schema.Class) (any, schema.Class) {
	if !b.reading {
		b.fail(core.InvalidMemberSpec, "ReadObject", "called during a write pass")
		return nil, nil
	}
	if b.Failed() {
		return nil, nil
	}

	id, ok := b.readReference("ReadObject")
	if !ok {
		return nil, nil
	}
	switch id {
	case core.NullObjectID:
		b.attach(structure.NewReference(core.NullObjectID))
		return nil, nil
	case core.InlineObjectID:
		cl := b.readInlineClass("ReadObject", expected)
		if cl == nil {
			return nil, nil
		}
		inst := obj
		if identity.IsNil(inst) {
			inst = cl.New()
		}
		b.describeInline(inst, cl, noVersion)
		return inst, cl
	}

	if inst, cl, known := b.ids.Instance(id); known {
		b.attach(structure.NewReference(id))
		return inst, cl
	}
	return b.readStored(id, obj, expected)
}

// StreamObject implements schema.Buffer.
//
// Inside raw data the object is stored inline behind reference -1. Otherwise it
// is a stored object of its own whose id the member column holds.
func (b *Buffer) StreamObject(obj any, cl schema.Class) {
	if b.Failed() {
		return
	}
	if identity.IsNil(obj) || cl == nil {
		b.fail(core.InvalidMemberSpec, "StreamObject", "embedded object needs a non-nil target and class, got %T", obj)
		return
	}

	if b.stack.InBlob() {
		if !b.reading {
			b.describeInline(obj, cl, cl.Version())
			return
		}
		id, ok := b.readReference("StreamObject")
		if !ok {
			return
		}
		if id != core.InlineObjectID {
			b.fail(core.SchemaMismatch, "StreamObject", "embedded %s stored as reference %d inside raw data", cl.Name(), id)
			return
		}
		stored := b.readInlineClass("StreamObject", cl)
		if stored == nil {
			return
		}
		if stored.Name() != cl.Name() {
			b.fail(core.SchemaMismatch, "StreamObject", "embedded %s stored as %s", cl.Name(), stored.Name())
			return
		}
		b.describeInline(obj, cl, noVersion)
		return
	}

	if !b.reading {
		if id, ok := b.ids.Lookup(obj); ok {
			b.attach(structure.NewReference(id))
			return
		}
		b.writeStored(obj, cl)
		return
	}

	id, ok := b.readReference("StreamObject")
	if !ok {
		return
	}
	if id <= core.NullObjectID {
		b.fail(core.SchemaMismatch, "StreamObject", "embedded %s stored as reference %d", cl.Name(), id)
		return
	}
	if inst, _, known := b.ids.Instance(id); known {
		b.attach(structure.NewReference(id))
		b.copyInto(obj, inst)
		return
	}
	b.readStored(id, obj, cl)
}

// describeInline streams obj as an inline object. The stored version comes
// from the raw data on read.
func (b *Buffer) describeInline(obj any, cl schema.Class, version int) {
	node := structure.NewObject(core.InlineObjectID, cl.Name(), version)
	if !b.attach(node) {
		return
	}
	pop := b.stack.Push(&structure.Frame{Node: node})
	defer pop()

	cl.Describe(b, obj)
}

// readStored materializes stored object id, registering it before its members
// are read so that references back to it resolve to the same instance.
func (b *Buffer) readStored(id int64, obj any, expected schema.Class) (any, schema.Class) {
	info, ok := b.objectInfo(id)
	if !ok {
		return nil, nil
	}
	cl := b.lookupClass("ReadObject", info.ClassName, expected)
	if cl == nil {
		return nil, nil
	}
	inst := obj
	if identity.IsNil(inst) {
		inst = cl.New()
	}
	b.ids.Register(id, inst, cl)

	node := structure.NewObject(id, cl.Name(), info.Version)
	if !b.attach(node) {
		return nil, nil
	}
	pop := b.stack.Push(&structure.Frame{Node: node})
	defer pop()

	b.version = info.Version
	cl.Describe(b, inst)
	return inst, cl
}

// objectInfo finds the info of id, trying its position in the key first.
func (b *Buffer) objectInfo(id int64) (core.ObjectInfo, bool) {
	if i := id - b.first; i >= 0 && i < int64(len(b.infos)) && b.infos[i].ObjID == id {
		return b.infos[i], true
	}
	for _, o := range b.infos {
		if o.ObjID == id {
			return o, true
		}
	}
	b.fail(core.MissingRow, "ReadObject", "object %d is not stored in this key", id)
	return core.ObjectInfo{}, false
}

func (b *Buffer) lookupClass(op, name string, expected schema.Class) schema.Class {
	if cl, ok := b.registry.Lookup(name); ok {
		return cl
	}
	if expected != nil && expected.Name() == name {
		return expected
	}
	_, err := b.registry.MustLookup(name)
	b.logger.Debug("class lookup failed", "op", op, "class", name)
	b.Fail(err)
	return nil
}

// readReference consumes one object reference.
func (b *Buffer) readReference(op string) (int64, bool) {
	item, ok := b.take(op)
	if !ok {
		return 0, false
	}
	if !b.ignoreVerification && item.Tag != core.TagObjectPtr && item.Tag != core.TagObjectRef {
		b.fail(core.DataTypeMismatch, op, "stored %s %q where an object reference was expected", item.Tag, item.Value)
		return 0, false
	}
	if item.Value == "" {
		return core.NullObjectID, true
	}
	id, err := strconv.ParseInt(item.Value, 10, 64)
	if err != nil {
		b.fail(core.DataTypeMismatch, op, "invalid object reference %q", item.Value)
		return 0, false
	}
	return id, true
}

// readInlineClass consumes the class entry that follows an inline reference.
func (b *Buffer) readInlineClass(op string, expected schema.Class) schema.Class {
	item, ok := b.take(op)
	if !ok {
		return nil
	}
	if item.Tag != core.TagClass {
		b.fail(core.SchemaMismatch, op, "inline object without class entry, found %s %q", item.Tag, item.Value)
		return nil
	}
	return b.lookupClass(op, item.Value, expected)
}

// copyInto copies the value behind src into the value behind dst.
func (b *Buffer) copyInto(dst, src any) {
	dv := reflect.ValueOf(dst).Elem()
	sv := reflect.ValueOf(src)
	if sv.Kind() != reflect.Pointer || sv.IsNil() || !sv.Elem().Type().AssignableTo(dv.Type()) {
		b.fail(core.SchemaMismatch, "StreamObject", "cannot copy %T into %T", src, dst)
		return
	}
	dv.Set(sv.Elem())
}
