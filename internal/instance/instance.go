// Package instance holds the typed object graph built by the reader and
// consumed by the writer.
package instance

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/jacoelho/xmlmodel/internal/coerce"
	"github.com/jacoelho/xmlmodel/internal/qname"
	"github.com/jacoelho/xmlmodel/internal/registry"
)

// Element is a typed instance. Single values are stored as string, int64,
// decimal.Decimal, bool or *Element; many-valued properties hold []any.
// A property that failed coercion during a read keeps its raw string.
type Element struct {
	typ      *registry.Type
	parent   *Element
	values   map[*registry.Property]any
	extAttrs []ExtensionAttr
	extElems []*Node
}

// ExtensionAttr is an attribute not described by the meta-model. Prefix is
// the prefix used in the source document.
type ExtensionAttr struct {
	Name   qname.QName
	Prefix string
	Value  string
}

// New returns an empty element of type t.
func New(t *registry.Type) *Element {
	return &Element{typ: t, values: make(map[*registry.Property]any)}
}

// Type returns the element's type descriptor.
func (e *Element) Type() *registry.Type {
	return e.typ
}

// TypeName returns the prefixed type name, e.g. "props:Root".
func (e *Element) TypeName() string {
	return e.typ.PrefixedName()
}

// Parent returns the containing element, or nil for a root or detached element.
func (e *Element) Parent() *Element {
	return e.parent
}

// ID returns the value of the identity property, or "".
func (e *Element) ID() string {
	p := e.typ.IDProperty()
	if p == nil {
		return ""
	}
	s, _ := e.values[p].(string)
	return s
}

// Get returns the value of a property by display name ("single", "props:single"),
// or nil when the property is unknown or unset. Many-valued properties return a copy.
func (e *Element) Get(name string) any {
	p := e.typ.ResolveProperty(name)
	if p == nil {
		return nil
	}
	v, ok := e.values[p]
	if !ok {
		return nil
	}
	if list, ok := v.([]any); ok {
		return slices.Clone(list)
	}
	return v
}

// Has reports whether a property is set.
func (e *Element) Has(name string) bool {
	p := e.typ.ResolveProperty(name)
	if p == nil {
		return false
	}
	_, ok := e.values[p]
	return ok
}

// Values returns the values of a property as a list: a copy for many-valued
// properties, a single-element list for set single-valued ones, nil otherwise.
func (e *Element) Values(name string) []any {
	switch v := e.Get(name).(type) {
	case nil:
		return nil
	case []any:
		return v
	default:
		return []any{v}
	}
}

// Set assigns a property by display name. Many-valued properties take a
// []any. A nil value unsets the property.
func (e *Element) Set(name string, v any) error {
	p, err := e.property(name)
	if err != nil {
		return err
	}
	if v == nil {
		e.Unset(name)
		return nil
	}
	if !p.IsMany {
		nv, err := e.normalize(p, v)
		if err != nil {
			return err
		}
		e.SetValue(p, nv)
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return fmt.Errorf("property %s is many-valued: want []any, got %T", p, v)
	}
	out := make([]any, 0, len(list))
	for _, item := range list {
		nv, err := e.normalize(p, item)
		if err != nil {
			return err
		}
		out = append(out, nv)
	}
	e.SetValue(p, out)
	return nil
}

// Add appends one value to a many-valued property.
func (e *Element) Add(name string, v any) error {
	p, err := e.property(name)
	if err != nil {
		return err
	}
	if !p.IsMany {
		return fmt.Errorf("property %s is not many-valued", p)
	}
	nv, err := e.normalize(p, v)
	if err != nil {
		return err
	}
	e.AppendValue(p, nv)
	return nil
}

// Unset removes a property value.
func (e *Element) Unset(name string) {
	if p := e.typ.ResolveProperty(name); p != nil {
		delete(e.values, p)
	}
}

// PropertyNames returns the display names of the set properties in merged order.
func (e *Element) PropertyNames() []string {
	var out []string
	for _, p := range e.typ.Properties() {
		if _, ok := e.values[p]; ok {
			out = append(out, e.DisplayName(p))
		}
	}
	return out
}

// DisplayName returns the bare name of p when it lives in the element type's
// namespace and the prefixed name otherwise.
func (e *Element) DisplayName(p *registry.Property) string {
	if p.Name.Namespace == e.typ.Name.Namespace {
		return p.Name.Local
	}
	return p.PrefixedName()
}

// Value returns the stored value of p.
func (e *Element) Value(p *registry.Property) (any, bool) {
	v, ok := e.values[p]
	return v, ok
}

// SetValue stores v for p without conversion. Contained elements are
// re-parented to e.
func (e *Element) SetValue(p *registry.Property, v any) {
	if p.IsContainment() {
		e.adopt(v)
	}
	e.values[p] = v
}

// AppendValue appends v to the sequence stored for p.
func (e *Element) AppendValue(p *registry.Property, v any) {
	if p.IsContainment() {
		e.adopt(v)
	}
	list, _ := e.values[p].([]any)
	e.values[p] = append(list, v)
}

// ExtensionAttrs returns the captured extension attributes in document order.
func (e *Element) ExtensionAttrs() []ExtensionAttr {
	return e.extAttrs
}

// AddExtensionAttr records an attribute outside the meta-model.
func (e *Element) AddExtensionAttr(a ExtensionAttr) {
	e.extAttrs = append(e.extAttrs, a)
}

// ExtensionElements returns the captured extension elements in document order.
func (e *Element) ExtensionElements() []*Node {
	return e.extElems
}

// AddExtensionElement records an element subtree outside the meta-model.
func (e *Element) AddExtensionElement(n *Node) {
	e.extElems = append(e.extElems, n)
}

func (e *Element) property(name string) (*registry.Property, error) {
	p := e.typ.ResolveProperty(name)
	if p == nil {
		return nil, fmt.Errorf("type %s has no property %q", e.typ, name)
	}
	return p, nil
}

func (e *Element) normalize(p *registry.Property, v any) (any, error) {
	if p.Kind != coerce.KindComplex {
		nv, err := p.Normalize(v)
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", p, err)
		}
		return nv, nil
	}
	el, ok := v.(*Element)
	if !ok || el == nil {
		return nil, fmt.Errorf("property %s: want *Element, got %T", p, v)
	}
	if !el.typ.IsA(p.Type) {
		return nil, fmt.Errorf("property %s: %s is not a %s", p, el.typ, p.Type)
	}
	return el, nil
}

func (e *Element) adopt(v any) {
	switch x := v.(type) {
	case *Element:
		x.parent = e
	case []any:
		for _, item := range x {
			if child, ok := item.(*Element); ok {
				child.parent = e
			}
		}
	}
}

// Snapshot returns a plain map view of the element: "$type", property
// display names, nested snapshots for contained elements and {"$ref": id}
// for references. Reals are rendered as their decimal literal.
func (e *Element) Snapshot() map[string]any {
	out := map[string]any{"$type": e.TypeName()}
	for _, p := range e.typ.Properties() {
		v, ok := e.values[p]
		if !ok {
			continue
		}
		if list, ok := v.([]any); ok {
			items := make([]any, len(list))
			for i, item := range list {
				items[i] = snapshotValue(p, item)
			}
			out[e.DisplayName(p)] = items
			continue
		}
		out[e.DisplayName(p)] = snapshotValue(p, v)
	}
	if len(e.extAttrs) > 0 {
		attrs := make(map[string]any, len(e.extAttrs))
		for _, a := range e.extAttrs {
			attrs[a.Name.String()] = a.Value
		}
		out["$attrs"] = attrs
	}
	if len(e.extElems) > 0 {
		nodes := make([]any, len(e.extElems))
		for i, n := range e.extElems {
			nodes[i] = n.Snapshot()
		}
		out["$extensions"] = nodes
	}
	return out
}

func snapshotValue(p *registry.Property, v any) any {
	switch x := v.(type) {
	case *Element:
		if p.IsReference {
			return map[string]any{"$ref": x.ID()}
		}
		return x.Snapshot()
	case decimal.Decimal:
		return x.String()
	default:
		return v
	}
}
