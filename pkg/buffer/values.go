package buffer

import (
	"fmt"
	"reflect"
	"strconv"
	"unicode/utf8"

	"github.com/leapstack-labs/objsql/pkg/codec"
	"github.com/leapstack-labs/objsql/pkg/core"
	"github.com/leapstack-labs/objsql/pkg/pool"
	"github.com/leapstack-labs/objsql/pkg/schema"
	"github.com/leapstack-labs/objsql/pkg/structure"
)

// Basic implements schema.Buffer.
func (b *Buffer) Basic(ptr any) {
	if b.Failed() {
		return
	}
	rv := reflect.ValueOf(ptr)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		b.fail(core.InvalidMemberSpec, "Basic", "value must be a non-nil pointer, got %T", ptr)
		return
	}
	if b.reading {
		b.readValue("Basic", rv.Elem())
		return
	}
	b.writeValue("Basic", rv.Elem())
}

// CharStar implements schema.Buffer.
func (b *Buffer) CharStar(s *string) {
	if b.Failed() {
		return
	}
	if s == nil {
		b.fail(core.InvalidMemberSpec, "CharStar", "nil string pointer")
		return
	}
	if b.reading {
		b.readValue("CharStar", reflect.ValueOf(s).Elem())
		return
	}
	b.addNode("CharStar", structure.NewValue(core.TypeString.Tag(), *s))
}

// Array implements schema.Buffer. The slice length is stored ahead of the values.
func (b *Buffer) Array(slicePtr any) {
	if b.Failed() {
		return
	}
	rv := reflect.ValueOf(slicePtr)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Slice || !isValueType(rv.Elem().Type().Elem()) {
		b.fail(core.InvalidMemberSpec, "Array", "value must point to a slice of scalars, got %T", slicePtr)
		return
	}
	s := rv.Elem()

	if !b.reading {
		arr := structure.NewArray(s.Len())
		if b.addNode("Array", arr) {
			b.writeRuns(arr, s)
		}
		return
	}

	item, ok := b.take("Array")
	if !ok {
		return
	}
	if !b.ignoreVerification && item.Tag != core.TagArray {
		b.fail(core.DataTypeMismatch, "Array", "stored %s %q where an array size was expected", item.Tag, item.Value)
		return
	}
	n, err := strconv.Atoi(item.Value)
	if err != nil || n < 0 {
		b.fail(core.MalformedArrayRun, "Array", "invalid array size %q", item.Value)
		return
	}
	arr := structure.NewArray(n)
	if !b.addNode("Array", arr) {
		return
	}
	if n == 0 {
		s.SetZero()
		return
	}
	out := reflect.MakeSlice(s.Type(), n, n)
	b.readRuns("Array", arr, out)
	if !b.Failed() {
		s.Set(out)
	}
}

// FastArray implements schema.Buffer. The slice length is known to the caller
// and not stored.
func (b *Buffer) FastArray(slice any) {
	if b.Failed() {
		return
	}
	rv := reflect.ValueOf(slice)
	if rv.Kind() != reflect.Slice || !isValueType(rv.Type().Elem()) {
		b.fail(core.InvalidMemberSpec, "FastArray", "value must be a slice of scalars, got %T", slice)
		return
	}
	if top := b.stack.Top(); top != nil && top.ExpectedChain {
		top.ExpectedChain = false
		b.chain(top, rv)
		return
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 && b.byteString(rv) {
		return
	}
	b.fastArray(rv)
}

func (b *Buffer) fastArray(rv reflect.Value) {
	arr := structure.NewArray(-1)
	if !b.addNode("FastArray", arr) {
		return
	}
	if b.reading {
		b.readRuns("FastArray", arr, rv)
		return
	}
	b.writeRuns(arr, rv)
}

// byteString streams a byte slice holding text without zero bytes as one
// string value. It reports whether it did.
func (b *Buffer) byteString(rv reflect.Value) bool {
	n := rv.Len()
	if n == 0 {
		return false
	}
	if !b.reading {
		buf := make([]byte, n)
		for i := range n {
			c := rv.Index(i).Uint()
			if c == 0 {
				return false
			}
			buf[i] = byte(c)
		}
		if !utf8.Valid(buf) {
			return false
		}
		return b.addNode("FastArray", structure.NewValue(core.TypeString.Tag(), string(buf)))
	}

	d := b.stack.Data()
	if d == nil {
		return false
	}
	item, ok := d.Current()
	if !ok || item.Tag != core.TypeString.Tag() {
		return false
	}
	d.Shift()
	b.addNode("FastArray", structure.NewValue(item.Tag, item.Value))
	text := b.resolveText("FastArray", d, item.Value)
	if b.Failed() {
		return true
	}
	if len(text) != n {
		b.fail(core.MalformedArrayRun, "FastArray", "stored text of %d bytes for an array of %d", len(text), n)
		return true
	}
	for i := range n {
		rv.Index(i).SetUint(uint64(text[i]))
	}
	return true
}

// chain splits one fast array over the members of a chain: each member takes
// as many values as its declared length, starting with the member of top.
func (b *Buffer) chain(top *structure.Frame, rv reflect.Value) {
	first := top.Node.Member
	cls := top.Node.Parent()
	if cls == nil || cls.Info == nil {
		b.fail(core.InvalidMemberSpec, "FastArray", "chain of %s outside of a class", first.Name)
		return
	}
	info := cls.Info
	idx := info.MemberIndex(first)
	if idx < 0 || idx+first.Chain > len(info.Members) {
		b.fail(core.InvalidMemberSpec, "FastArray", "chain of %d members from %s exceeds class %s", first.Chain, first.Name, info.ClassName)
		return
	}

	off := 0
	for k := range first.Chain {
		m := info.Members[idx+k]
		if k > 0 {
			b.SetElementNumber(m, schema.CompPlain)
		}
		if b.Failed() {
			return
		}
		n := m.Length()
		if off+n > rv.Len() {
			b.fail(core.InvalidMemberSpec, "FastArray", "chain values end before member %s", m.Name)
			return
		}
		sub := rv.Slice(off, off+n)
		switch {
		case m.IsColumn() && b.reading:
			b.readValue("FastArray", sub.Index(0))
		case m.IsColumn():
			b.writeValue("FastArray", sub.Index(0))
		default:
			b.fastArray(sub)
		}
		off += n
	}
	if off != rv.Len() {
		b.fail(core.InvalidMemberSpec, "FastArray", "chain from %s holds %d values, members take %d", first.Name, rv.Len(), off)
	}
}

// writeRuns adds the values of rv to arr, merging equal neighbours into runs
// when compression is on.
func (b *Buffer) writeRuns(arr *structure.Node, rv reflect.Value) {
	n := rv.Len()
	texts := make([]string, n)
	var tag string
	for i := range n {
		text, dt, err := b.codec.Encode(rv.Index(i).Interface())
		if err != nil {
			b.fail(core.InvalidMemberSpec, "Array", "%v", err)
			return
		}
		texts[i] = text
		tag = dt.Tag()
	}
	for i := 0; i < n; {
		j := i + 1
		if b.compression > 0 {
			for j < n && texts[j] == texts[i] {
				j++
			}
		}
		arr.Add(structure.NewRun(tag, texts[i], i, j-i))
		i = j
	}
}

// readRuns fills rv from consecutive runs. Every run must start where the
// previous one ended and stay within rv.
func (b *Buffer) readRuns(op string, arr *structure.Node, rv reflect.Value) {
	n := rv.Len()
	for idx := 0; idx < n; {
		item, ok := b.take(op)
		if !ok {
			return
		}
		first, last, ok := structure.ParseRunTag(item.Field)
		if !ok || first != idx || last < first || last >= n {
			b.fail(core.MalformedArrayRun, op, "run %q at index %d of an array of %d", item.Field, idx, n)
			return
		}
		elem := rv.Index(idx)
		b.decodeItem(op, item, elem)
		if b.Failed() {
			return
		}
		for k := idx + 1; k <= last; k++ {
			rv.Index(k).Set(elem)
		}
		arr.Add(structure.NewRun(item.Tag, item.Value, first, last-first+1))
		idx = last + 1
	}
}

func (b *Buffer) writeValue(op string, v reflect.Value) {
	text, dt, err := b.codec.Encode(v.Interface())
	if err != nil {
		b.fail(core.InvalidMemberSpec, op, "%v", err)
		return
	}
	b.addNode(op, structure.NewValue(dt.Tag(), text))
}

func (b *Buffer) readValue(op string, v reflect.Value) {
	item, ok := b.take(op)
	if !ok {
		return
	}
	b.addNode(op, structure.NewValue(item.Tag, item.Value))
	b.decodeItem(op, item, v)
}

// decodeItem checks the type tag of item and parses it into v.
func (b *Buffer) decodeItem(op string, item pool.Item, v reflect.Value) {
	expected := codec.TypeOf(v.Interface())
	if !b.ignoreVerification {
		if err := codec.VerifyDataType(item.Tag, expected.Tag()); err != nil {
			b.Fail(fmt.Errorf("%s of %q: %w", op, item.Field, err))
			return
		}
	}
	text := item.Value
	if expected == core.TypeString {
		text = b.resolveText(op, b.stack.Data(), text)
		if b.Failed() {
			return
		}
	}
	if err := b.codec.Decode(text, v.Addr().Interface()); err != nil {
		b.fail(core.DataTypeMismatch, op, "%v", err)
	}
}

// resolveText replaces a long string placeholder by the stored string.
func (b *Buffer) resolveText(op string, d *pool.ObjectData, text string) string {
	if d == nil {
		return text
	}
	slot, ok := codec.ParseLongStringCode(d.ObjID, text)
	if !ok {
		return text
	}
	s, err := b.storage.ResolveLongString(b.ctx, d.ObjID, slot)
	if err != nil {
		b.Fail(fmt.Errorf("%s: failed to resolve long string %d of object %d: %w", op, slot, d.ObjID, err))
		return ""
	}
	return s
}

// take consumes the next stored value of the current class data.
func (b *Buffer) take(op string) (pool.Item, bool) {
	d := b.stack.Data()
	if d == nil {
		b.fail(core.MissingRow, op, "no stored data to read from")
		return pool.Item{}, false
	}
	item, ok := d.Current()
	if !ok {
		b.fail(core.MissingRow, op, "object %d has no more stored values", d.ObjID)
		return pool.Item{}, false
	}
	d.Shift()
	return item, true
}

func (b *Buffer) addNode(op string, n *structure.Node) bool {
	top := b.stack.Top()
	if top == nil {
		b.fail(core.StructuralUnderflow, op, "%s outside of any member", n.Kind)
		return false
	}
	top.Node.Add(n)
	return true
}

func isValueType(t reflect.Type) bool {
	return codec.TypeOf(reflect.Zero(t).Interface()) != core.TypeUnknown
}
