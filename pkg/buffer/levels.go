package buffer

import (
	"strconv"

	"github.com/leapstack-labs/objsql/pkg/core"
	"github.com/leapstack-labs/objsql/pkg/pool"
	"github.com/leapstack-labs/objsql/pkg/schema"
	"github.com/leapstack-labs/objsql/pkg/structure"
)

// WriteVersion implements schema.Buffer.
func (b *Buffer) WriteVersion(cl schema.Class) {
	if b.reading || b.Failed() {
		return
	}
	top := b.stack.Top()
	if top == nil {
		b.fail(core.StructuralUnderflow, "WriteVersion", "version of %s outside of any object", cl.Name())
		return
	}
	top.Node.Add(structure.NewVersion(cl.Version()))
}

// ReadVersion implements schema.Buffer.
//
// The version comes from the object info of a stored object or from the
// column of a base class. Inside raw data it is an explicit version entry.
func (b *Buffer) ReadVersion(cl schema.Class) int {
	if !b.reading {
		return cl.Version()
	}
	if b.Failed() {
		return 0
	}
	if b.version != noVersion {
		v := b.version
		b.version = noVersion
		return v
	}
	if d := b.stack.Data(); d != nil && b.stack.InBlob() {
		if item, ok := d.Current(); ok && item.Tag == core.TagVersion {
			d.Shift()
			v, err := strconv.Atoi(item.Value)
			if err != nil {
				b.fail(core.DataTypeMismatch, "ReadVersion", "invalid version %q of class %s", item.Value, cl.Name())
				return 0
			}
			return v
		}
	}
	b.fail(core.SchemaMismatch, "ReadVersion", "no stored version for class %s", cl.Name())
	return 0
}

// IncrementLevel implements schema.Buffer.
func (b *Buffer) IncrementLevel(info *schema.StreamerInfo) {
	if info == nil {
		b.fail(core.InvalidMemberSpec, "IncrementLevel", "nil streamer info")
		return
	}
	b.openClass(structure.NewClassVersion(info), info.Descriptor())
}

// DecrementLevel implements schema.Buffer.
func (b *Buffer) DecrementLevel(info *schema.StreamerInfo) {
	if info == nil {
		b.fail(core.InvalidMemberSpec, "DecrementLevel", "nil streamer info")
		return
	}
	b.closeClass("DecrementLevel", structure.KindClassVersion, info.ClassName)
}

// ClassBegin implements schema.Buffer.
func (b *Buffer) ClassBegin(cl schema.Class, version int) {
	b.openClass(structure.NewCustomClass(cl.Name(), version), core.NewTableDescriptor(cl.Name(), version, nil))
}

// ClassEnd implements schema.Buffer.
func (b *Buffer) ClassEnd(cl schema.Class) {
	b.closeClass("ClassEnd", structure.KindCustomClass, cl.Name())
}

// openClass pushes a class frame. On read the frame carries the cursor of the
// class data: a view of the enclosing raw data when inside it, the class row
// and raw values of the current object otherwise.
func (b *Buffer) openClass(node *structure.Node, expected *core.TableDescriptor) {
	b.version = noVersion
	frame := &structure.Frame{Node: node}
	if b.reading && !b.Failed() {
		frame.Data = b.classData(expected)
	}
	b.attach(node)
	b.stack.Push(frame)
}

func (b *Buffer) classData(expected *core.TableDescriptor) *pool.ObjectData {
	if b.stack.InBlob() {
		d := b.stack.Data()
		if d == nil {
			b.fail(core.MissingRow, "IncrementLevel", "no raw data for inline class %s", expected.ClassName)
			return nil
		}
		return d.InlineView()
	}

	obj := b.stack.Object()
	if obj == nil {
		b.fail(core.StructuralUnderflow, "IncrementLevel", "class %s outside of any object", expected.ClassName)
		return nil
	}
	desc, err := b.pool.Descriptor(b.ctx, expected.ClassName, expected.Version)
	if err != nil {
		b.Fail(err)
		return nil
	}
	if !desc.SameLayout(expected) {
		b.fail(core.SchemaMismatch, "IncrementLevel", "stored layout of %s version %d differs from the class description", expected.ClassName, expected.Version)
		return nil
	}
	d, err := b.pool.ObjectData(b.ctx, obj.Node.ObjID, desc)
	if err != nil {
		b.Fail(err)
		return nil
	}
	return d
}

func (b *Buffer) closeClass(op string, kind structure.Kind, className string) {
	ok := b.stack.PopTo(func(f *structure.Frame) bool {
		return f.Node.Kind == kind && f.Node.ClassName == className
	})
	if !ok {
		b.fail(core.StructuralUnderflow, op, "no open level for class %s", className)
	}
}

// SetElementNumber implements schema.Buffer.
func (b *Buffer) SetElementNumber(m *schema.Member, comp schema.CompType) {
	if m == nil {
		b.fail(core.InvalidMemberSpec, "SetElementNumber", "nil member")
		return
	}
	if !b.enterMember("SetElementNumber", structure.KindClassVersion, structure.NewElement(m)) {
		return
	}
	b.stack.Top().ExpectedChain = comp == schema.CompChain && m.Chain > 1
	if b.reading {
		b.locate(m)
	}
}

// ClassMember implements schema.Buffer.
func (b *Buffer) ClassMember(name, typeName string, dims ...int) {
	if b.Failed() {
		return
	}
	m, err := b.registry.ResolveMember(name, typeName, dims)
	if err != nil {
		b.Fail(err)
		return
	}
	b.enterMember("ClassMember", structure.KindCustomClass, structure.NewCustomElement(m))
}

// enterMember closes the previous member of the innermost class frame and
// opens node in its place.
func (b *Buffer) enterMember(op string, owner structure.Kind, node *structure.Node) bool {
	for i := b.stack.Depth() - 1; i >= 0; i-- {
		f := b.stack.At(i)
		k := f.Node.Kind
		if k == structure.KindObject {
			break
		}
		if k != structure.KindClassVersion && k != structure.KindCustomClass {
			continue
		}
		if k != owner {
			break
		}
		b.stack.Truncate(i + 1)
		f.Node.Add(node)
		b.stack.Push(&structure.Frame{Node: node})
		return true
	}
	b.fail(core.StructuralUnderflow, op, "member %s outside of a %s", node.Member.Name, owner)
	return false
}

// locate points the class cursor at m's column. The column of a base class
// holds the base version, which is taken right away for ReadVersion.
func (b *Buffer) locate(m *schema.Member) {
	if b.Failed() {
		return
	}
	d := b.stack.Data()
	if d == nil || !d.Locate(m.Name) {
		return
	}
	if m.Kind != schema.KindBase {
		return
	}
	item, _ := d.Current()
	d.Shift()
	v, err := strconv.Atoi(item.Value)
	if err != nil {
		b.fail(core.DataTypeMismatch, "SetElementNumber", "invalid version %q in base column %s", item.Value, m.Name)
		return
	}
	b.version = v
}
