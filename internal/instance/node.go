package instance

import "github.com/jacoelho/xmlmodel/internal/qname"

// NodeKind identifies an extension node.
type NodeKind uint8

const (
	NodeElement NodeKind = iota
	NodeText
)

// Node is an opaque element or text captured verbatim from a document.
type Node struct {
	Name     qname.QName
	Prefix   string
	Text     string
	Attrs    []ExtensionAttr
	Children []*Node
	Kind     NodeKind
}

// Snapshot returns a plain map view of the node.
func (n *Node) Snapshot() any {
	if n.Kind == NodeText {
		return n.Text
	}
	out := map[string]any{"$name": n.Name.String()}
	if len(n.Attrs) > 0 {
		attrs := make(map[string]any, len(n.Attrs))
		for _, a := range n.Attrs {
			attrs[a.Name.String()] = a.Value
		}
		out["$attrs"] = attrs
	}
	if len(n.Children) > 0 {
		children := make([]any, len(n.Children))
		for i, c := range n.Children {
			children[i] = c.Snapshot()
		}
		out["$children"] = children
	}
	return out
}
