package structure

import (
	"strconv"

	"github.com/leapstack-labs/objsql/pkg/codec"
	"github.com/leapstack-labs/objsql/pkg/core"
)

// FlattenOptions tunes Flatten.
type FlattenOptions struct {
	// LongStringThreshold moves strings longer than this many bytes out of line (0 disables).
	LongStringThreshold int
}

type rawKey struct {
	desc  string
	objID int64
}

type flattener struct {
	opts    FlattenOptions
	batch   *core.Batch
	records map[string]*core.ClassRecords
	rawIDs  map[rawKey]int
	slots   map[int64]int
	seen    map[int64]bool
}

// Flatten converts the tree of a write pass into table records.
//
// Every stored object contributes one object info. Each class node of an object
// contributes one class table row (members stored in columns) and raw entries for
// everything else, in tree order. Base classes get their own row under the same
// object id; their version is the value of the base column. Inline objects and
// anything below a raw member are flattened into the owner's raw entries.
func Flatten(root *Node, opts FlattenOptions) (*core.Batch, error) {
	if root == nil || root.Kind != KindObject || root.IsInline() {
		return nil, core.Errorf(core.InvalidMemberSpec, "Flatten", "root must be a stored object")
	}
	f := &flattener{
		opts:    opts,
		batch:   &core.Batch{},
		records: make(map[string]*core.ClassRecords),
		rawIDs:  make(map[rawKey]int),
		slots:   make(map[int64]int),
		seen:    make(map[int64]bool),
	}
	if err := f.object(root); err != nil {
		return nil, err
	}
	return f.batch, nil
}

func (f *flattener) object(n *Node) error {
	if f.seen[n.ObjID] {
		return core.Errorf(core.InvalidMemberSpec, "Flatten", "object %d stored twice", n.ObjID)
	}
	f.seen[n.ObjID] = true
	f.batch.Objects = append(f.batch.Objects, core.ObjectInfo{ObjID: n.ObjID, ClassName: n.ClassName, Version: n.Version})

	for _, c := range n.children {
		switch c.Kind {
		case KindVersion:
			// recorded in the object info
		case KindClassVersion, KindCustomClass:
			if err := f.class(c, n.ObjID); err != nil {
				return err
			}
		default:
			return core.Errorf(core.InvalidMemberSpec, "Flatten", "object %d: %s outside of a class", n.ObjID, c.Kind)
		}
	}
	return nil
}

func (f *flattener) descriptor(n *Node) *core.TableDescriptor {
	if n.Kind == KindClassVersion && n.Info != nil {
		return n.Info.Descriptor()
	}
	return core.NewTableDescriptor(n.ClassName, n.Version, nil)
}

func (f *flattener) record(desc *core.TableDescriptor) (*core.ClassRecords, error) {
	if rec, ok := f.records[desc.Key()]; ok {
		if !rec.Desc.SameLayout(desc) {
			return nil, core.Errorf(core.SchemaMismatch, "Flatten", "class %s version %d described with two layouts", desc.ClassName, desc.Version)
		}
		return rec, nil
	}
	rec := &core.ClassRecords{Desc: desc}
	f.records[desc.Key()] = rec
	f.batch.Classes = append(f.batch.Classes, rec)
	return rec, nil
}

func (f *flattener) class(n *Node, objID int64) error {
	rec, err := f.record(f.descriptor(n))
	if err != nil {
		return err
	}
	desc := rec.Desc

	var row core.Row
	if desc.HasClassTable() {
		row = make(core.Row, len(desc.Columns))
	}
	for _, c := range n.children {
		if c.Kind == KindElement && row != nil {
			if col := desc.ColumnIndex(c.Member.Name); col >= 0 {
				v, err := f.column(c, objID)
				if err != nil {
					return err
				}
				row[col] = v
				continue
			}
		}
		if err := f.emit(c, objID, "", rec); err != nil {
			return err
		}
	}
	if row != nil {
		rec.Rows = append(rec.Rows, core.ClassRow{ObjID: objID, Values: row})
	}
	return nil
}

// column returns the single value a column member wrote.
func (f *flattener) column(el *Node, objID int64) (string, error) {
	var out string
	count := 0
	for _, c := range el.children {
		switch c.Kind {
		case KindVersion:
			continue
		case KindValue:
			out = f.text(c, objID)
		case KindObjectReference:
			out = strconv.FormatInt(c.ObjID, 10)
		case KindObject:
			if c.IsInline() {
				return "", core.Errorf(core.InvalidMemberSpec, "Flatten", "member %s: inline object in a column", el.Member.Name)
			}
			if err := f.object(c); err != nil {
				return "", err
			}
			out = strconv.FormatInt(c.ObjID, 10)
		case KindClassVersion, KindCustomClass:
			if err := f.class(c, objID); err != nil {
				return "", err
			}
			out = strconv.Itoa(c.Version)
		default:
			return "", core.Errorf(core.InvalidMemberSpec, "Flatten", "member %s: %s cannot be stored in a column", el.Member.Name, c.Kind)
		}
		count++
	}
	if count > 1 {
		return "", core.Errorf(core.InvalidMemberSpec, "Flatten", "member %s wrote %d values into one column", el.Member.Name, count)
	}
	return out, nil
}

func (f *flattener) emit(n *Node, objID int64, field string, rec *core.ClassRecords) error {
	switch n.Kind {
	case KindValue:
		name := field
		if n.RunLength > 0 {
			name = RunTag(n.RunStart, n.RunLength)
		}
		f.raw(rec, objID, name, n.Tag, f.text(n, objID))
	case KindArray:
		if n.Size >= 0 {
			f.raw(rec, objID, field, core.TagArray, strconv.Itoa(n.Size))
		}
		return f.emitChildren(n, objID, field, rec)
	case KindVersion:
		f.raw(rec, objID, core.TagVersion, core.TagVersion, strconv.Itoa(n.Version))
	case KindObjectReference:
		f.raw(rec, objID, field, core.TagObjectRef, strconv.FormatInt(n.ObjID, 10))
	case KindObject:
		if n.IsInline() {
			f.raw(rec, objID, field, core.TagObjectRef, strconv.FormatInt(core.InlineObjectID, 10))
			f.raw(rec, objID, core.TagClass, core.TagClass, n.ClassName)
			return f.emitChildren(n, objID, field, rec)
		}
		if err := f.object(n); err != nil {
			return err
		}
		f.raw(rec, objID, field, core.TagObjectPtr, strconv.FormatInt(n.ObjID, 10))
	case KindElement, KindCustomElement:
		return f.emitChildren(n, objID, n.Member.Name, rec)
	case KindClassVersion, KindCustomClass:
		return f.emitChildren(n, objID, field, rec)
	}
	return nil
}

func (f *flattener) emitChildren(n *Node, objID int64, field string, rec *core.ClassRecords) error {
	for _, c := range n.children {
		if err := f.emit(c, objID, field, rec); err != nil {
			return err
		}
	}
	return nil
}

func (f *flattener) raw(rec *core.ClassRecords, objID int64, field, tag, value string) {
	key := rawKey{desc: rec.Desc.Key(), objID: objID}
	id := f.rawIDs[key]
	f.rawIDs[key] = id + 1
	rec.Raw = append(rec.Raw, core.RawRow{
		ObjID:     objID,
		RawID:     id,
		BlobValue: core.BlobValue{Field: field, Tag: tag, Value: value},
	})
}

// text returns the persisted text of a value, moving long strings out of line.
// Strings that look like placeholders always go out of line.
func (f *flattener) text(n *Node, objID int64) string {
	if n.Tag != core.TypeString.Tag() {
		return n.Value
	}
	long := f.opts.LongStringThreshold > 0 && len(n.Value) > f.opts.LongStringThreshold
	if !long && !codec.IsLongStringCode(n.Value) {
		return n.Value
	}
	slot := f.slots[objID]
	f.slots[objID] = slot + 1
	f.batch.Strings = append(f.batch.Strings, core.LongString{ObjID: objID, Slot: slot, Value: n.Value})
	return codec.LongStringCode(objID, slot)
}
