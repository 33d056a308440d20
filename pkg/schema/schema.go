// Package schema describes classes to the traversal engine.
//
// A Class knows its name, its current version and, for every version it can
// read, the ordered list of members (its StreamerInfo). Classes describe
// instances by calling back into a Buffer, member by member; the same describe
// callback serves reading and writing.
package schema

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/objsql/pkg/core"
)

// Class is the reflective description of one persistent type.
type Class interface {
	// Name is the persisted class name.
	Name() string

	// Version is the version written by new passes.
	Version() int

	// New allocates an empty instance (always a pointer).
	New() any

	// Info returns the member layout of a version, or nil for custom-streamed classes.
	Info(version int) *StreamerInfo

	// Describe streams obj through b, reading or writing depending on b.
	Describe(b Buffer, obj any)
}

// MemberKind classifies a member of a StreamerInfo.
type MemberKind int

// Member kinds.
const (
	// KindBasic is a primitive scalar, or a fixed array of them when Dims is set.
	KindBasic MemberKind = iota + 1
	// KindString is a string.
	KindString
	// KindArray is a variable-length slice of primitives.
	KindArray
	// KindBase is a base class stored in its own table.
	KindBase
	// KindObject is an embedded (non-pointer) object.
	KindObject
	// KindPointer is a reference to another object, possibly nil or shared.
	KindPointer
	// KindRaw is member data written through a custom callback.
	KindRaw
)

func (k MemberKind) String() string {
	switch k {
	case KindBasic:
		return "basic"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindBase:
		return "base"
	case KindObject:
		return "object"
	case KindPointer:
		return "pointer"
	case KindRaw:
		return "raw"
	}
	return "unknown"
}

// Member is one entry of a StreamerInfo.
type Member struct {
	Name      string
	Kind      MemberKind
	Type      core.DataType
	ClassName string
	Dims      []int

	// Chain is the number of consecutive basic members Stream covers
	// as one member-wise run (0 or 1 means none).
	Chain int

	// Stream moves the member between obj and the buffer.
	Stream func(b Buffer, obj any)
}

// Length is the number of primitive values of a fixed member.
func (m *Member) Length() int {
	n := 1
	for _, d := range m.Dims {
		n *= d
	}
	return n
}

// IsColumn reports whether the member is stored in a class table column.
func (m *Member) IsColumn() bool {
	switch m.Kind {
	case KindBasic:
		return len(m.Dims) == 0
	case KindString, KindBase, KindObject, KindPointer:
		return true
	}
	return false
}

// Column returns the class table column of a column member.
func (m *Member) Column() core.ClassColumn {
	col := core.ClassColumn{Name: ColumnName(m.Name), Member: m.Name}
	switch m.Kind {
	case KindBasic:
		col.Tag = m.Type.Tag()
	case KindString:
		col.Tag = core.TypeString.Tag()
	case KindBase:
		col.Tag = core.TagVersion
		col.Kind = core.ColumnVersion
	case KindObject:
		col.Tag = core.TagObjectPtr
		col.Kind = core.ColumnObject
	case KindPointer:
		col.Tag = core.TagObjectPtr
		col.Kind = core.ColumnPointer
	}
	return col
}

// ColumnName maps a member name to a column name that cannot clash with obj_id.
func ColumnName(member string) string {
	name := core.TableBaseName(member)
	if strings.EqualFold(name, "obj_id") {
		return name + "_"
	}
	return name
}

// StreamerInfo is the ordered member layout of one class version.
type StreamerInfo struct {
	ClassName string
	Version   int
	Members   []*Member
}

// NewStreamerInfo builds a StreamerInfo and checks member names are unique.
func NewStreamerInfo(className string, version int, members ...*Member) (*StreamerInfo, error) {
	seen := make(map[string]bool, len(members))
	columns := make(map[string]string, len(members))
	for _, m := range members {
		if m.Name == "" {
			return nil, fmt.Errorf("class %s version %d: member without name", className, version)
		}
		if seen[m.Name] {
			return nil, fmt.Errorf("class %s version %d: duplicate member %q", className, version, m.Name)
		}
		seen[m.Name] = true
		if !m.IsColumn() {
			continue
		}
		// SQL identifiers compare case-insensitively in most databases.
		col := strings.ToLower(ColumnName(m.Name))
		if other, ok := columns[col]; ok {
			return nil, fmt.Errorf("class %s version %d: members %q and %q map to the same column %s",
				className, version, other, m.Name, ColumnName(m.Name))
		}
		columns[col] = m.Name
	}
	return &StreamerInfo{ClassName: className, Version: version, Members: members}, nil
}

// MemberIndex returns the position of m, or -1.
func (si *StreamerInfo) MemberIndex(m *Member) int {
	for i, x := range si.Members {
		if x == m {
			return i
		}
	}
	return -1
}

// Member returns the member called name, or nil.
func (si *StreamerInfo) Member(name string) *Member {
	for _, m := range si.Members {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// Columns returns the class table layout of the version.
func (si *StreamerInfo) Columns() []core.ClassColumn {
	var cols []core.ClassColumn
	for _, m := range si.Members {
		if m.IsColumn() {
			cols = append(cols, m.Column())
		}
	}
	return cols
}

// Descriptor returns the table descriptor of the version.
func (si *StreamerInfo) Descriptor() *core.TableDescriptor {
	return core.NewTableDescriptor(si.ClassName, si.Version, si.Columns())
}
