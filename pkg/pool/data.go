package pool

import "github.com/leapstack-labs/objsql/pkg/core"

// Item is one stored value with its type tag.
type Item struct {
	Field string
	Tag   string
	Value string
}

type blobCursor struct {
	values []core.BlobValue
	pos    int
}

// ObjectData is the read cursor over one object's class row and raw values.
//
// Locate points the cursor at a member's column; values of members without a
// column are consumed from the raw stream in order.
type ObjectData struct {
	ObjID int64
	Desc  *core.TableDescriptor

	row    core.Row
	blob   *blobCursor
	col    int
	inline bool
}

// NewObjectData creates a cursor.
func NewObjectData(objID int64, desc *core.TableDescriptor, row core.Row, blobs []core.BlobValue) *ObjectData {
	return &ObjectData{
		ObjID: objID,
		Desc:  desc,
		row:   row,
		blob:  &blobCursor{values: blobs},
		col:   -1,
	}
}

// InlineView returns a cursor sharing this cursor's raw stream, without columns.
// Inline objects and anything nested in raw data read through such a view.
func (d *ObjectData) InlineView() *ObjectData {
	return &ObjectData{ObjID: d.ObjID, Desc: d.Desc, blob: d.blob, col: -1, inline: true}
}

// IsInline reports whether d is an inline view.
func (d *ObjectData) IsInline() bool {
	return d.inline
}

// Locate points the cursor at member's column and reports whether there is one.
func (d *ObjectData) Locate(member string) bool {
	d.col = -1
	if d.inline || d.row == nil || d.Desc == nil {
		return false
	}
	d.col = d.Desc.ColumnIndex(member)
	return d.col >= 0
}

// IsBlobData reports whether the next value comes from the raw stream.
func (d *ObjectData) IsBlobData() bool {
	return d.col < 0
}

// Current returns the next value without consuming it.
func (d *ObjectData) Current() (Item, bool) {
	if d.col >= 0 {
		c := d.Desc.Columns[d.col]
		return Item{Field: c.Member, Tag: c.Tag, Value: d.row[d.col]}, true
	}
	if d.blob.pos < len(d.blob.values) {
		v := d.blob.values[d.blob.pos]
		return Item{Field: v.Field, Tag: v.Tag, Value: v.Value}, true
	}
	return Item{}, false
}

// Shift consumes the current value.
func (d *ObjectData) Shift() {
	if d.col >= 0 {
		d.col = -1
		return
	}
	if d.blob.pos < len(d.blob.values) {
		d.blob.pos++
	}
}

// Remaining returns the number of unread raw values.
func (d *ObjectData) Remaining() int {
	return len(d.blob.values) - d.blob.pos
}
