package structure

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

type nodeDoc struct {
	Kind     string     `yaml:"kind" json:"kind"`
	ID       *int64     `yaml:"id,omitempty" json:"id,omitempty"`
	Class    string     `yaml:"class,omitempty" json:"class,omitempty"`
	Version  *int       `yaml:"version,omitempty" json:"version,omitempty"`
	Member   string     `yaml:"member,omitempty" json:"member,omitempty"`
	Size     *int       `yaml:"size,omitempty" json:"size,omitempty"`
	Tag      string     `yaml:"tag,omitempty" json:"tag,omitempty"`
	Value    *string    `yaml:"value,omitempty" json:"value,omitempty"`
	Run      string     `yaml:"run,omitempty" json:"run,omitempty"`
	Children []*nodeDoc `yaml:"children,omitempty" json:"children,omitempty"`
}

func (n *Node) doc() *nodeDoc {
	d := &nodeDoc{Kind: n.Kind.String()}
	switch n.Kind {
	case KindObject, KindObjectReference:
		id := n.ObjID
		d.ID = &id
		d.Class = n.ClassName
		if n.Kind == KindObject {
			v := n.Version
			d.Version = &v
		}
	case KindClassVersion, KindCustomClass, KindVersion:
		v := n.Version
		d.Version = &v
		d.Class = n.ClassName
	case KindElement, KindCustomElement:
		d.Member = n.Member.Name
	case KindArray:
		if n.Size >= 0 {
			size := n.Size
			d.Size = &size
		}
	case KindValue:
		v := n.Value
		d.Value = &v
		d.Tag = n.Tag
		if n.RunLength > 0 {
			d.Run = RunTag(n.RunStart, n.RunLength)
		}
	}
	for _, c := range n.children {
		d.Children = append(d.Children, c.doc())
	}
	return d
}

// MarshalYAML implements yaml.Marshaler.
func (n *Node) MarshalYAML() (any, error) {
	return n.doc(), nil
}

// MarshalJSON implements json.Marshaler with the layout of MarshalYAML.
func (n *Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.doc())
}

// Dump writes the tree below n as YAML.
func Dump(w io.Writer, n *Node) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(n); err != nil {
		return fmt.Errorf("failed to encode structure: %w", err)
	}
	return enc.Close()
}
