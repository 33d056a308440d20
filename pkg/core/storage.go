package core

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// ColumnKind describes what a class table column holds.
type ColumnKind int

// Column kinds.
const (
	// ColumnValue holds a primitive or string value.
	ColumnValue ColumnKind = iota
	// ColumnVersion holds the version of a base class stored in its own table.
	ColumnVersion
	// ColumnObject holds the id of an embedded object.
	ColumnObject
	// ColumnPointer holds the id of a referenced object (0 for null).
	ColumnPointer
)

func (k ColumnKind) String() string {
	switch k {
	case ColumnVersion:
		return "version"
	case ColumnObject:
		return "object"
	case ColumnPointer:
		return "pointer"
	}
	return "value"
}

// ParseColumnKind is the inverse of ColumnKind.String.
func ParseColumnKind(s string) ColumnKind {
	switch s {
	case "version":
		return ColumnVersion
	case "object":
		return ColumnObject
	case "pointer":
		return ColumnPointer
	}
	return ColumnValue
}

// ClassColumn is one column of a class table.
type ClassColumn struct {
	Name   string
	Member string
	Tag    string
	Kind   ColumnKind
}

// TableDescriptor describes how one (class, version) pair is stored.
type TableDescriptor struct {
	ClassName  string
	Version    int
	ClassTable string
	RawTable   string
	Columns    []ClassColumn
}

// NewTableDescriptor builds a descriptor with the conventional table names.
func NewTableDescriptor(className string, version int, columns []ClassColumn) *TableDescriptor {
	d := &TableDescriptor{ClassName: className, Version: version, Columns: columns}
	d.SetTableBase(TableBaseName(className))
	return d
}

// SetTableBase names the class and raw tables after base.
func (d *TableDescriptor) SetTableBase(base string) {
	d.ClassTable = fmt.Sprintf("%s_ver%d", base, d.Version)
	d.RawTable = fmt.Sprintf("%s_raw%d", base, d.Version)
}

// Key identifies the descriptor within a pass.
func (d *TableDescriptor) Key() string {
	return DescriptorKey(d.ClassName, d.Version)
}

// DescriptorKey builds the key of a (class, version) pair.
func DescriptorKey(className string, version int) string {
	return fmt.Sprintf("%s;%d", className, version)
}

// HasClassTable reports whether the class stores any member in columns.
func (d *TableDescriptor) HasClassTable() bool {
	return len(d.Columns) > 0
}

// ColumnIndex returns the column position of member, or -1.
func (d *TableDescriptor) ColumnIndex(member string) int {
	for i, c := range d.Columns {
		if c.Member == member {
			return i
		}
	}
	return -1
}

// SameLayout reports whether two descriptors map the same members to the same
// columns. Table names are left out: a storage may rename the tables of a
// class whose conventional names are taken.
func (d *TableDescriptor) SameLayout(o *TableDescriptor) bool {
	if d == o {
		return true
	}
	if d == nil || o == nil || d.Key() != o.Key() {
		return false
	}
	if len(d.Columns) != len(o.Columns) {
		return false
	}
	for i := range d.Columns {
		if d.Columns[i] != o.Columns[i] {
			return false
		}
	}
	return true
}

// TableBaseName turns a class name into a safe SQL identifier fragment.
func TableBaseName(className string) string {
	var b strings.Builder
	for _, r := range className {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Row holds the column values of one object in a class table.
type Row []string

// ResultSet is the content of a class table over an id range, ordered by object id.
type ResultSet struct {
	Desc *TableDescriptor
	IDs  []int64
	Rows []Row
}

// BlobValue is one entry of an object's raw value stream.
type BlobValue struct {
	Field string
	Tag   string
	Value string
}

// ObjectInfo records the class and version an object was written with.
type ObjectInfo struct {
	ObjID     int64
	ClassName string
	Version   int
}

// Key is a named top-level object stored in a file.
type Key struct {
	ID         int64
	UUID       string
	Name       string
	ClassName  string
	FirstObjID int64
	LastObjID  int64
	CreatedAt  time.Time
}

// ClassRow is one class table row produced by a write pass.
type ClassRow struct {
	ObjID  int64
	Values Row
}

// RawRow is one raw table entry produced by a write pass.
type RawRow struct {
	ObjID int64
	RawID int
	BlobValue
}

// LongString is a string value moved out of line.
type LongString struct {
	ObjID int64
	Slot  int
	Value string
}

// ClassRecords collects everything a pass writes for one (class, version).
type ClassRecords struct {
	Desc *TableDescriptor
	Rows []ClassRow
	Raw  []RawRow
}

// Batch is the flattened output of one write pass.
type Batch struct {
	Objects []ObjectInfo
	Classes []*ClassRecords
	Strings []LongString
}

// LastObjID returns the highest object id in the batch.
func (b *Batch) LastObjID() int64 {
	var last int64
	for _, o := range b.Objects {
		if o.ObjID > last {
			last = o.ObjID
		}
	}
	return last
}

// Storage is the tabular storage collaborator used by read passes.
type Storage interface {
	// FindTableDescriptor returns the descriptor of a (class, version) pair, or nil if none is stored.
	FindTableDescriptor(ctx context.Context, className string, version int) (*TableDescriptor, error)

	// BulkFetch returns the class table rows for all object ids in [lo, hi].
	BulkFetch(ctx context.Context, desc *TableDescriptor, lo, hi int64) (*ResultSet, error)

	// BlobObjects returns the ids in [lo, hi] that have raw values for desc, ascending.
	BlobObjects(ctx context.Context, desc *TableDescriptor, lo, hi int64) ([]int64, error)

	// FetchBlob returns the raw values of one object for the given descriptor.
	FetchBlob(ctx context.Context, objID int64, desc *TableDescriptor) ([]BlobValue, error)

	// ObjectsInfo returns the object infos of a key ordered by object id.
	ObjectsInfo(ctx context.Context, keyID int64) ([]ObjectInfo, error)

	// ResolveLongString returns a string stored out of line.
	ResolveLongString(ctx context.Context, objID int64, slot int) (string, error)
}
