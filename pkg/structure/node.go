// Package structure holds the intermediate tree built by a write pass and
// replayed by a read pass, and flattens it into per-table records.
package structure

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/leapstack-labs/objsql/pkg/core"
	"github.com/leapstack-labs/objsql/pkg/schema"
)

// Kind classifies a structure node.
type Kind int

// Node kinds.
const (
	KindObject Kind = iota + 1
	KindObjectReference
	KindClassVersion
	KindCustomClass
	KindElement
	KindCustomElement
	KindArray
	KindValue
	KindVersion
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindObjectReference:
		return "reference"
	case KindClassVersion:
		return "class"
	case KindCustomClass:
		return "custom-class"
	case KindElement:
		return "element"
	case KindCustomElement:
		return "custom-element"
	case KindArray:
		return "array"
	case KindValue:
		return "value"
	case KindVersion:
		return "version"
	}
	return "unknown"
}

// Node is one node of the structure tree. A parent owns its children.
type Node struct {
	Kind      Kind
	ObjID     int64
	ClassName string
	Version   int
	Info      *schema.StreamerInfo
	Member    *schema.Member

	// Size is the persisted length of an array, -1 when the caller supplies it.
	Size int

	Tag       string
	Value     string
	RunStart  int
	RunLength int

	parent   *Node
	children []*Node
}

// NewObject creates the node of a stored object (id -1 for an inline object).
func NewObject(id int64, className string, version int) *Node {
	return &Node{Kind: KindObject, ObjID: id, ClassName: className, Version: version}
}

// NewReference creates the node of a reference to an already stored object, or null.
func NewReference(id int64) *Node {
	return &Node{Kind: KindObjectReference, ObjID: id}
}

// NewClassVersion creates the node of a class described by its streamer info.
func NewClassVersion(info *schema.StreamerInfo) *Node {
	return &Node{Kind: KindClassVersion, ClassName: info.ClassName, Version: info.Version, Info: info}
}

// NewCustomClass creates the node of a custom-streamed class.
func NewCustomClass(className string, version int) *Node {
	return &Node{Kind: KindCustomClass, ClassName: className, Version: version}
}

// NewElement creates the node of a member.
func NewElement(m *schema.Member) *Node {
	return &Node{Kind: KindElement, Member: m}
}

// NewCustomElement creates the node of a member declared by a custom streamer.
func NewCustomElement(m *schema.Member) *Node {
	return &Node{Kind: KindCustomElement, Member: m}
}

// NewArray creates an array node.
func NewArray(size int) *Node {
	return &Node{Kind: KindArray, Size: size}
}

// NewValue creates a single value.
func NewValue(tag, value string) *Node {
	return &Node{Kind: KindValue, Tag: tag, Value: value}
}

// NewRun creates a run of length equal array values starting at index start.
func NewRun(tag, value string, start, length int) *Node {
	return &Node{Kind: KindValue, Tag: tag, Value: value, RunStart: start, RunLength: length}
}

// NewVersion creates a version node.
func NewVersion(version int) *Node {
	return &Node{Kind: KindVersion, Version: version}
}

// Add appends child and returns it.
func (n *Node) Add(child *Node) *Node {
	child.parent = n
	n.children = append(n.children, child)
	return child
}

// Parent returns the parent node, nil for the root.
func (n *Node) Parent() *Node {
	return n.parent
}

// Children returns the child nodes.
func (n *Node) Children() []*Node {
	return n.children
}

// IsInline reports whether n is an object stored inline in its owner's raw data.
func (n *Node) IsInline() bool {
	return n.Kind == KindObject && n.ObjID == core.InlineObjectID
}

// ObjectID returns the id of the nearest stored object at or above n.
func (n *Node) ObjectID() int64 {
	for cur := n; cur != nil; cur = cur.parent {
		if cur.Kind == KindObject && !cur.IsInline() {
			return cur.ObjID
		}
	}
	return core.NullObjectID
}

// Walk visits n and its descendants depth first until fn returns false.
func (n *Node) Walk(fn func(*Node) bool) bool {
	if !fn(n) {
		return false
	}
	for _, c := range n.children {
		if !c.Walk(fn) {
			return false
		}
	}
	return true
}

// Find returns all descendants of the given kind, in tree order.
func (n *Node) Find(kind Kind) []*Node {
	var out []*Node
	n.Walk(func(x *Node) bool {
		if x.Kind == kind {
			out = append(out, x)
		}
		return true
	})
	return out
}

// Run is one run-length encoded slice of equal array values.
type Run struct {
	Value  string
	Start  int
	Length int
}

// Runs returns the runs of an array node.
func (n *Node) Runs() []Run {
	var runs []Run
	for _, c := range n.children {
		if c.Kind == KindValue && c.RunLength > 0 {
			runs = append(runs, Run{Value: c.Value, Start: c.RunStart, Length: c.RunLength})
		}
	}
	return runs
}

func (n *Node) String() string {
	switch n.Kind {
	case KindObject, KindObjectReference:
		return fmt.Sprintf("%s %d %s", n.Kind, n.ObjID, n.ClassName)
	case KindClassVersion, KindCustomClass:
		return fmt.Sprintf("%s %s v%d", n.Kind, n.ClassName, n.Version)
	case KindElement, KindCustomElement:
		return fmt.Sprintf("%s %s", n.Kind, n.Member.Name)
	case KindValue:
		return fmt.Sprintf("%s %s=%q", n.Kind, n.Tag, n.Value)
	}
	return n.Kind.String()
}

// RunTag formats the raw field of an array run.
func RunTag(start, length int) string {
	if length <= 1 {
		return fmt.Sprintf("[%d]", start)
	}
	return fmt.Sprintf("[%d..%d]", start, start+length-1)
}

// ParseRunTag parses "[first]" or "[first..last]".
func ParseRunTag(field string) (first, last int, ok bool) {
	if !strings.HasPrefix(field, "[") || !strings.HasSuffix(field, "]") {
		return 0, 0, false
	}
	body := field[1 : len(field)-1]
	lo, hi, isRange := strings.Cut(body, "..")
	first, err := strconv.Atoi(lo)
	if err != nil {
		return 0, 0, false
	}
	if !isRange {
		return first, first, true
	}
	last, err = strconv.Atoi(hi)
	if err != nil {
		return 0, 0, false
	}
	return first, last, true
}
