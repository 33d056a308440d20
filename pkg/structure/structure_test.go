package structure

import (
	"bytes"
	"strings"
	"testing"

	"github.com/leapstack-labs/objsql/pkg/core"
	"github.com/leapstack-labs/objsql/pkg/pool"
	"github.com/leapstack-labs/objsql/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type point struct {
	X    float64
	Tags []int32
	Next *point
	Note string
}

var pointClass *schema.StructClass[point]

func init() {
	self := schema.Ref("point", func() schema.Class { return pointClass })
	pointClass = schema.NewClass[point]("point", 1,
		schema.Basic("x", func(p *point) *float64 { return &p.X }),
		schema.Slice("tags", func(p *point) *[]int32 { return &p.Tags }),
		schema.Pointer("next", self, func(p *point) **point { return &p.Next }),
		schema.String("note", func(p *point) *string { return &p.Note }),
	)
}

func pointMembers() (x, tags, next, note *schema.Member) {
	info := pointClass.Info(1)
	return info.Member("x"), info.Member("tags"), info.Member("next"), info.Member("note")
}

// pointTree builds object 1 pointing at object 2, which points back at 1.
func pointTree() *Node {
	x, tags, next, note := pointMembers()
	info := pointClass.Info(1)

	root := NewObject(1, "point", 1)
	root.Add(NewVersion(1))
	cls := root.Add(NewClassVersion(info))
	cls.Add(NewElement(x)).Add(NewValue("float64", "1.5"))
	arr := cls.Add(NewElement(tags)).Add(NewArray(3))
	arr.Add(NewRun("int32", "7", 0, 2))
	arr.Add(NewRun("int32", "8", 2, 1))

	child := cls.Add(NewElement(next)).Add(NewObject(2, "point", 1))
	cls.Add(NewElement(note)).Add(NewValue("string", strings.Repeat("n", 12)))

	child.Add(NewVersion(1))
	ccls := child.Add(NewClassVersion(info))
	ccls.Add(NewElement(x)).Add(NewValue("float64", "2.5"))
	ccls.Add(NewElement(tags)).Add(NewArray(0))
	ccls.Add(NewElement(next)).Add(NewReference(1))
	ccls.Add(NewElement(note)).Add(NewValue("string", "short"))
	return root
}

func TestFlatten_ColumnsAndRaw(t *testing.T) {
	batch, err := Flatten(pointTree(), FlattenOptions{LongStringThreshold: 10})
	require.NoError(t, err)

	assert.Equal(t, []core.ObjectInfo{
		{ObjID: 1, ClassName: "point", Version: 1},
		{ObjID: 2, ClassName: "point", Version: 1},
	}, batch.Objects)
	assert.Equal(t, int64(2), batch.LastObjID())

	require.Len(t, batch.Classes, 1)
	rec := batch.Classes[0]
	assert.Equal(t, "point_ver1", rec.Desc.ClassTable)
	assert.Equal(t, []core.ClassRow{
		{ObjID: 2, Values: core.Row{"2.5", "1", "short"}},
		{ObjID: 1, Values: core.Row{"1.5", "2", "#~#1#~#0#~#"}},
	}, rec.Rows, "nested objects are flattened before their owner's row")

	assert.Equal(t, []core.RawRow{
		{ObjID: 1, RawID: 0, BlobValue: core.BlobValue{Field: "tags", Tag: "Array", Value: "3"}},
		{ObjID: 1, RawID: 1, BlobValue: core.BlobValue{Field: "[0..1]", Tag: "int32", Value: "7"}},
		{ObjID: 1, RawID: 2, BlobValue: core.BlobValue{Field: "[2]", Tag: "int32", Value: "8"}},
		{ObjID: 2, RawID: 0, BlobValue: core.BlobValue{Field: "tags", Tag: "Array", Value: "0"}},
	}, rec.Raw)

	assert.Equal(t, []core.LongString{{ObjID: 1, Slot: 0, Value: strings.Repeat("n", 12)}}, batch.Strings)
}

func TestFlatten_PlaceholderShapedStrings(t *testing.T) {
	tree := func(note string) *Node {
		x, tags, next, noteMember := pointMembers()
		root := NewObject(3, "point", 1)
		root.Add(NewVersion(1))
		cls := root.Add(NewClassVersion(pointClass.Info(1)))
		cls.Add(NewElement(x)).Add(NewValue("float64", "1"))
		cls.Add(NewElement(tags)).Add(NewArray(0))
		cls.Add(NewElement(next)).Add(NewReference(core.NullObjectID))
		cls.Add(NewElement(noteMember)).Add(NewValue("string", note))
		return root
	}

	tests := []struct {
		name      string
		note      string
		threshold int
		inline    bool
	}{
		{name: "code of the same object", note: "#~#3#~#0#~#", threshold: 0},
		{name: "code of another object", note: "#~#9#~#2#~#", threshold: 100},
		{name: "marker without code", note: "#~#3#~#", threshold: 0, inline: true},
		{name: "plain short string", note: "short", threshold: 100, inline: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch, err := Flatten(tree(tt.note), FlattenOptions{LongStringThreshold: tt.threshold})
			require.NoError(t, err)
			require.Len(t, batch.Classes, 1)
			require.Len(t, batch.Classes[0].Rows, 1)
			stored := batch.Classes[0].Rows[0].Values[2]

			if tt.inline {
				assert.Equal(t, tt.note, stored)
				assert.Empty(t, batch.Strings)
				return
			}
			assert.Equal(t, "#~#3#~#0#~#", stored)
			assert.Equal(t, []core.LongString{{ObjID: 3, Slot: 0, Value: tt.note}}, batch.Strings)
		})
	}
}

func TestFlatten_InlineObject(t *testing.T) {
	_, tags, _, _ := pointMembers()
	info := pointClass.Info(1)

	root := NewObject(5, "holder", 2)
	cc := root.Add(NewCustomClass("holder", 2))
	el := cc.Add(NewCustomElement(&schema.Member{Name: "p", Kind: schema.KindObject, ClassName: "point"}))
	inline := el.Add(NewObject(core.InlineObjectID, "point", 1))
	inline.Add(NewVersion(1))
	icls := inline.Add(NewClassVersion(info))
	icls.Add(NewElement(info.Member("x"))).Add(NewValue("float64", "3"))
	icls.Add(NewElement(tags)).Add(NewArray(-1)).Add(NewRun("int32", "1", 0, 1))

	batch, err := Flatten(root, FlattenOptions{})
	require.NoError(t, err)

	require.Len(t, batch.Classes, 1, "the inline point has no record of its own")
	rec := batch.Classes[0]
	assert.Equal(t, "holder_raw2", rec.Desc.RawTable)
	assert.False(t, rec.Desc.HasClassTable())
	assert.Empty(t, rec.Rows)

	var got []core.BlobValue
	for _, r := range rec.Raw {
		assert.Equal(t, int64(5), r.ObjID)
		got = append(got, r.BlobValue)
	}
	assert.Equal(t, []core.BlobValue{
		{Field: "p", Tag: "ObjectRef", Value: "-1"},
		{Field: "Class", Tag: "Class", Value: "point"},
		{Field: "Version", Tag: "Version", Value: "1"},
		{Field: "x", Tag: "float64", Value: "3"},
		{Field: "[0]", Tag: "int32", Value: "1"},
	}, got)
}

func TestFlatten_Errors(t *testing.T) {
	x, _, _, _ := pointMembers()
	info := pointClass.Info(1)

	t.Run("inline root", func(t *testing.T) {
		_, err := Flatten(NewObject(-1, "point", 1), FlattenOptions{})
		assert.ErrorIs(t, err, core.ErrInvalidMemberSpec)
	})

	t.Run("two values in one column", func(t *testing.T) {
		root := NewObject(1, "point", 1)
		el := root.Add(NewClassVersion(info)).Add(NewElement(x))
		el.Add(NewValue("float64", "1"))
		el.Add(NewValue("float64", "2"))
		_, err := Flatten(root, FlattenOptions{})
		assert.ErrorIs(t, err, core.ErrInvalidMemberSpec)
	})

	t.Run("object stored twice", func(t *testing.T) {
		root := NewObject(1, "point", 1)
		cls := root.Add(NewClassVersion(info))
		cls.Add(NewElement(info.Member("next"))).Add(NewObject(1, "point", 1))
		_, err := Flatten(root, FlattenOptions{})
		assert.ErrorIs(t, err, core.ErrInvalidMemberSpec)
	})
}

func TestRunTag(t *testing.T) {
	assert.Equal(t, "[4]", RunTag(4, 1))
	assert.Equal(t, "[0..2]", RunTag(0, 3))

	tests := []struct {
		field       string
		first, last int
		ok          bool
	}{
		{"[3]", 3, 3, true},
		{"[0..2]", 0, 2, true},
		{"[2..1]", 2, 1, true},
		{"x", 0, 0, false},
		{"[a..2]", 0, 0, false},
		{"[1..]", 0, 0, false},
	}
	for _, tt := range tests {
		first, last, ok := ParseRunTag(tt.field)
		assert.Equal(t, tt.ok, ok, tt.field)
		if ok {
			assert.Equal(t, tt.first, first, tt.field)
			assert.Equal(t, tt.last, last, tt.field)
		}
	}
}

func TestNode_Navigation(t *testing.T) {
	root := pointTree()

	objects := root.Find(KindObject)
	require.Len(t, objects, 2)
	assert.Nil(t, root.Parent())

	values := objects[1].Find(KindValue)
	require.NotEmpty(t, values)
	assert.Equal(t, int64(2), values[0].ObjectID())

	arrays := root.Find(KindArray)
	require.Len(t, arrays, 2)
	assert.Equal(t, []Run{{Value: "7", Start: 0, Length: 2}, {Value: "8", Start: 2, Length: 1}}, arrays[0].Runs())
	assert.Equal(t, "object 1 point", root.String())
}

func TestStack_PushGuards(t *testing.T) {
	var s Stack
	info := pointClass.Info(1)
	x, _, _, _ := pointMembers()

	popObj := s.Push(&Frame{Node: NewObject(3, "point", 1), Data: pool.NewObjectData(3, nil, nil, nil)})
	s.Push(&Frame{Node: NewClassVersion(info)})
	s.Push(&Frame{Node: NewElement(x)})
	assert.Equal(t, 3, s.Depth())
	assert.Equal(t, KindElement, s.Top().Node.Kind)
	assert.Equal(t, int64(3), s.Object().Node.ObjID)
	assert.NotNil(t, s.Data())

	require.True(t, s.PopTo(func(f *Frame) bool { return f.Node.Kind == KindClassVersion }))
	assert.Equal(t, 1, s.Depth())
	assert.False(t, s.PopTo(func(f *Frame) bool { return f.Node.Kind == KindArray }))
	assert.Equal(t, 1, s.Depth())

	popObj()
	popObj()
	assert.Equal(t, 0, s.Depth())
	assert.Nil(t, s.Top())
	assert.Nil(t, s.Object())
}

func TestStack_InBlob(t *testing.T) {
	info := pointClass.Info(1)
	x, tags, _, _ := pointMembers()

	var s Stack
	s.Push(&Frame{Node: NewObject(1, "point", 1)})
	s.Push(&Frame{Node: NewClassVersion(info)})
	pop := s.Push(&Frame{Node: NewElement(x)})
	assert.False(t, s.InBlob(), "column member of a stored object")
	pop()

	pop = s.Push(&Frame{Node: NewElement(tags)})
	assert.True(t, s.InBlob(), "arrays live in the raw table")
	pop()

	s.Push(&Frame{Node: NewObject(core.InlineObjectID, "point", 1)})
	s.Push(&Frame{Node: NewClassVersion(info)})
	s.Push(&Frame{Node: NewElement(x)})
	assert.True(t, s.InBlob(), "members of inline objects")
}

func TestDump(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Dump(&buf, pointTree()))

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "object", doc["kind"])
	assert.Equal(t, 1, doc["id"])
	assert.Contains(t, buf.String(), "[0..1]")
	assert.Contains(t, buf.String(), "member: tags")
}
