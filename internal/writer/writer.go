// Package writer serializes typed instance graphs to namespaced XML.
//
// Writing happens in two passes. The first builds an output tree in the
// canonical order (identity attribute first, then merged property order,
// then extension content) and records, bottom-up, which namespaces every
// subtree needs. The second emits the tree, declaring each namespace on the
// outermost element that needs it and is not already covered by an
// enclosing declaration.
package writer

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	xmlerrors "github.com/jacoelho/xmlmodel/errors"
	"github.com/jacoelho/xmlmodel/internal/coerce"
	"github.com/jacoelho/xmlmodel/internal/instance"
	"github.com/jacoelho/xmlmodel/internal/namespace"
	"github.com/jacoelho/xmlmodel/internal/qname"
	"github.com/jacoelho/xmlmodel/internal/registry"
)

// Declaration is the XML declaration written when requested.
const Declaration = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"

// Options configures one write.
type Options struct {
	XMLDeclaration bool
}

// part is one space-separated piece of an attribute value or element text.
// Type references are rendered with the prefix in scope at emit time.
type part struct {
	typ  *registry.Type
	text string
}

type attr struct {
	name  qname.QName
	parts []part
	bare  bool
}

type elem struct {
	name     qname.QName
	attrs    []attr
	text     []part
	children []*elem
	uses     []string
	isText   bool
}

// Write serializes el and its contained elements to w.
func Write(w io.Writer, reg *registry.Registry, el *instance.Element, opts Options) error {
	if reg == nil {
		return xmlerrors.NewFatal(xmlerrors.ErrModelNotLoaded, "no model")
	}
	if el == nil {
		return xmlerrors.NewFatal(xmlerrors.ErrInvalidValue, "nil element")
	}
	b := &builder{
		reg:    reg,
		prefs:  make(map[string]string),
		active: make(map[*instance.Element]struct{}),
	}
	t := el.Type()
	root, err := b.element(el, qname.New(t.Name.Namespace, t.TagName()), nil)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	if opts.XMLDeclaration {
		bw.WriteString(Declaration)
	}
	em := &emitter{w: bw, b: b}
	em.emit(root, namespace.Root())
	return bw.Flush()
}

type builder struct {
	reg    *registry.Registry
	prefs  map[string]string
	active map[*instance.Element]struct{}
}

var xsiType = qname.New(namespace.XSINamespace, "type")

// element builds the output element for el tagged name. declared is the
// declared type of the holding property; a differing instance type is
// written as xsi:type.
func (b *builder) element(el *instance.Element, name qname.QName, declared *registry.Type) (*elem, error) {
	if _, ok := b.active[el]; ok {
		return nil, invalid(el, "element contains itself")
	}
	b.active[el] = struct{}{}
	defer delete(b.active, el)

	t := el.Type()
	out := &elem{name: name}
	if declared != nil && t != declared {
		out.attrs = append(out.attrs, attr{name: xsiType, parts: []part{{typ: t}}})
	}

	props := t.Properties()
	id := t.IDProperty()
	if id != nil && id.IsAttr {
		if err := b.attribute(out, el, id); err != nil {
			return nil, err
		}
	}
	for _, p := range props {
		if !p.IsAttr || p == id {
			continue
		}
		if err := b.attribute(out, el, p); err != nil {
			return nil, err
		}
	}
	for _, a := range el.ExtensionAttrs() {
		b.prefer(a.Name.Namespace, a.Prefix)
		out.attrs = append(out.attrs, attr{
			name:  a.Name,
			parts: []part{{text: a.Value}},
			bare:  a.Name.Namespace == "" || a.Name.Namespace == t.Name.Namespace,
		})
	}

	if body := t.BodyProperty(); body != nil {
		if v, ok := el.Value(body); ok {
			p, err := b.simplePart(el, body, v)
			if err != nil {
				return nil, err
			}
			out.text = []part{p}
		}
	}

	for _, p := range props {
		if p.IsAttr || p.IsBody {
			continue
		}
		v, ok := el.Value(p)
		if !ok {
			continue
		}
		for _, item := range values(v) {
			child, err := b.child(el, p, item)
			if err != nil {
				return nil, err
			}
			out.children = append(out.children, child)
		}
	}
	for _, n := range el.ExtensionElements() {
		out.children = append(out.children, b.node(n))
	}
	out.uses = collectUses(out)
	return out, nil
}

func (b *builder) attribute(out *elem, el *instance.Element, p *registry.Property) error {
	v, ok := el.Value(p)
	if !ok {
		return nil
	}
	if !p.IsMany && p.HasDefault && coerce.Equal(v, p.Default) {
		return nil
	}
	items := values(v)
	if len(items) == 0 {
		return nil
	}
	parts := make([]part, 0, len(items))
	for _, item := range items {
		var pt part
		var err error
		if p.IsReference {
			pt.text, err = refID(el, p, item)
		} else {
			pt, err = b.simplePart(el, p, item)
		}
		if err != nil {
			return err
		}
		parts = append(parts, pt)
	}
	out.attrs = append(out.attrs, attr{
		name:  p.Name,
		parts: parts,
		bare:  p.Name.Namespace == el.Type().Name.Namespace,
	})
	return nil
}

func (b *builder) child(holder *instance.Element, p *registry.Property, v any) (*elem, error) {
	switch {
	case p.IsReference:
		id, err := refID(holder, p, v)
		if err != nil {
			return nil, err
		}
		return b.leaf(p.Name, []part{{text: id}}), nil
	case p.Kind == coerce.KindComplex:
		child, ok := v.(*instance.Element)
		if !ok || child == nil {
			return nil, invalid(holder, fmt.Sprintf("property %s: want element, got %T", p, v))
		}
		return b.element(child, p.Name, p.Type)
	default:
		pt, err := b.simplePart(holder, p, v)
		if err != nil {
			return nil, err
		}
		return b.leaf(p.Name, []part{pt}), nil
	}
}

func (b *builder) leaf(name qname.QName, text []part) *elem {
	e := &elem{name: name, text: text}
	e.uses = collectUses(e)
	return e
}

// simplePart formats a simple or type-reference value.
func (b *builder) simplePart(el *instance.Element, p *registry.Property, v any) (part, error) {
	if p.Kind == coerce.KindTypeRef {
		s, ok := v.(string)
		if !ok {
			return part{}, invalid(el, fmt.Sprintf("property %s: want type name, got %T", p, v))
		}
		if t, err := b.reg.ResolveType(s); err == nil {
			return part{typ: t}, nil
		}
		return part{text: s}, nil
	}
	s, err := coerce.Format(v)
	if err != nil {
		return part{}, invalid(el, fmt.Sprintf("property %s: %v", p, err))
	}
	return part{text: s}, nil
}

func (b *builder) node(n *instance.Node) *elem {
	if n.Kind == instance.NodeText {
		return &elem{isText: true, text: []part{{text: n.Text}}}
	}
	b.prefer(n.Name.Namespace, n.Prefix)
	out := &elem{name: n.Name}
	for _, a := range n.Attrs {
		b.prefer(a.Name.Namespace, a.Prefix)
		out.attrs = append(out.attrs, attr{
			name:  a.Name,
			parts: []part{{text: a.Value}},
			bare:  a.Name.Namespace == "",
		})
	}
	for _, c := range n.Children {
		out.children = append(out.children, b.node(c))
	}
	out.uses = collectUses(out)
	return out
}

// prefer records the first document prefix seen for a namespace.
func (b *builder) prefer(uri, prefix string) {
	if uri == "" || prefix == "" {
		return
	}
	if _, ok := b.prefs[uri]; !ok {
		b.prefs[uri] = prefix
	}
}

func refID(holder *instance.Element, p *registry.Property, v any) (string, error) {
	target, ok := v.(*instance.Element)
	if !ok || target == nil {
		return "", invalid(holder, fmt.Sprintf("property %s: want referenced element, got %T", p, v))
	}
	id := target.ID()
	if id == "" {
		return "", invalid(holder, fmt.Sprintf("property %s: referenced %s has no id", p, target.TypeName()))
	}
	return id, nil
}

func values(v any) []any {
	if list, ok := v.([]any); ok {
		return list
	}
	return []any{v}
}

// collectUses returns the namespaces e and its subtree need, e's own
// namespace first and the rest in pre-order of first use.
func collectUses(e *elem) []string {
	var uses []string
	seen := make(map[string]struct{})
	add := func(uri string) {
		if uri == "" || uri == namespace.XMLNamespace {
			return
		}
		if _, ok := seen[uri]; ok {
			return
		}
		seen[uri] = struct{}{}
		uses = append(uses, uri)
	}
	addParts := func(parts []part) {
		for _, p := range parts {
			if p.typ != nil {
				add(p.typ.Name.Namespace)
			}
		}
	}

	add(e.name.Namespace)
	for _, a := range e.attrs {
		if !a.bare {
			add(a.name.Namespace)
		}
		addParts(a.parts)
	}
	addParts(e.text)
	for _, c := range e.children {
		for _, uri := range c.uses {
			add(uri)
		}
	}
	return uses
}

func invalid(el *instance.Element, msg string) error {
	f := xmlerrors.NewFatal(xmlerrors.ErrInvalidValue, msg)
	f.Element = el.TypeName()
	return f
}

type emitter struct {
	w    *bufio.Writer
	b    *builder
	next int
}

func (em *emitter) emit(e *elem, scope *namespace.Scope) {
	if e.isText {
		em.w.WriteString(escapeText(render(e.text, scope)))
		return
	}

	var decls []namespace.Decl
	cur := scope
	for _, uri := range e.uses {
		if _, ok := cur.PrefixFor(uri); ok {
			continue
		}
		decls = append(decls, namespace.Decl{Prefix: em.choosePrefix(uri, cur), URI: uri})
		cur = scope.Enter(decls)
	}

	tag := qualify(e.name, cur)
	em.w.WriteByte('<')
	em.w.WriteString(tag)
	for _, d := range decls {
		em.w.WriteString(" xmlns:")
		em.w.WriteString(d.Prefix)
		em.w.WriteString(`="`)
		em.w.WriteString(escapeAttr(d.URI))
		em.w.WriteByte('"')
	}
	for _, a := range e.attrs {
		em.w.WriteByte(' ')
		if a.bare {
			em.w.WriteString(a.name.Local)
		} else {
			em.w.WriteString(qualify(a.name, cur))
		}
		em.w.WriteString(`="`)
		em.w.WriteString(escapeAttr(render(a.parts, cur)))
		em.w.WriteByte('"')
	}

	text := render(e.text, cur)
	if text == "" && len(e.children) == 0 {
		em.w.WriteString(" />")
		return
	}
	em.w.WriteByte('>')
	em.w.WriteString(escapeText(text))
	for _, c := range e.children {
		em.emit(c, cur)
	}
	em.w.WriteString("</")
	em.w.WriteString(tag)
	em.w.WriteByte('>')
}

// choosePrefix picks the preferred prefix for uri, or a fresh nsN prefix
// when the preferred one is unusable or already bound in scope.
func (em *emitter) choosePrefix(uri string, scope *namespace.Scope) string {
	var prefix string
	switch pkg, ok := em.b.reg.PackageByURI(uri); {
	case ok:
		prefix = pkg.Prefix
	case uri == namespace.XSINamespace:
		prefix = "xsi"
	default:
		prefix = em.b.prefs[uri]
	}
	if prefix != "" && !strings.EqualFold(prefix, "xml") && !strings.EqualFold(prefix, "xmlns") && !scope.Bound(prefix) {
		return prefix
	}
	for {
		prefix = fmt.Sprintf("ns%d", em.next)
		em.next++
		if !scope.Bound(prefix) {
			return prefix
		}
	}
}

func qualify(name qname.QName, scope *namespace.Scope) string {
	if name.Namespace == "" {
		return name.Local
	}
	prefix, _ := scope.PrefixFor(name.Namespace)
	return qname.Join(prefix, name.Local)
}

func render(parts []part, scope *namespace.Scope) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return renderPart(parts[0], scope)
	}
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = renderPart(p, scope)
	}
	return strings.Join(out, " ")
}

func renderPart(p part, scope *namespace.Scope) string {
	if p.typ == nil {
		return p.text
	}
	return qualify(qname.New(p.typ.Name.Namespace, p.typ.Name.Local), scope)
}

var (
	attrEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
		"\n", "&#10;",
		"\r", "&#13;",
		"\t", "&#9;",
	)
	textEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\r", "&#13;",
	)
)

func escapeAttr(s string) string {
	return attrEscaper.Replace(s)
}

func escapeText(s string) string {
	return textEscaper.Replace(s)
}
