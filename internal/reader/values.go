package reader

import (
	"fmt"
	"strings"

	xmlerrors "github.com/jacoelho/xmlmodel/errors"
	"github.com/jacoelho/xmlmodel/internal/coerce"
	"github.com/jacoelho/xmlmodel/internal/instance"
	"github.com/jacoelho/xmlmodel/internal/namespace"
	"github.com/jacoelho/xmlmodel/internal/qname"
	"github.com/jacoelho/xmlmodel/internal/registry"
	"github.com/jacoelho/xmlmodel/internal/xmltoken"
)

// attributes assigns the attributes of an element frame. Unprefixed
// attributes belong to the namespace of the element's type.
func (rd *reader) attributes(f *frame, ev xmltoken.Event) error {
	t := f.el.Type()
	for _, a := range ev.Attrs {
		name, err := f.scope.ResolveAttr(a.Name.Prefix, a.Name.Local, t.Name.Namespace)
		if err != nil {
			return fatalAt(ev, xmlerrors.WrapFatal(xmlerrors.ErrXMLParse, err))
		}
		if name == xsiType {
			continue
		}
		p := t.Property(name)
		if p == nil || p.IsContainment() {
			f.el.AddExtensionAttr(instance.ExtensionAttr{Name: name, Prefix: a.Name.Prefix, Value: a.Value})
			if p != nil || rd.reg.KnownNamespace(name.Namespace) {
				rd.warn(ev, xmlerrors.Warning{
					Code:      string(xmlerrors.WarnUnknownAttribute),
					Message:   fmt.Sprintf("unknown attribute %s in type %s", a.Name, t),
					Element:   f.name,
					Attribute: a.Name.String(),
					Value:     a.Value,
				})
			}
			continue
		}
		rd.assignAttr(f, ev, a, p)
	}
	return nil
}

var xsiType = qname.New(namespace.XSINamespace, "type")

func (rd *reader) assignAttr(f *frame, ev xmltoken.Event, a xmltoken.Attr, p *registry.Property) {
	attr := a.Name.String()
	switch {
	case p.IsReference && p.IsMany:
		for _, id := range strings.Fields(a.Value) {
			rd.queueRef(f, f, attr, p, id)
		}
	case p.IsReference:
		rd.queueRef(f, f, attr, p, strings.TrimSpace(a.Value))
	case p.IsMany:
		for _, item := range strings.Fields(a.Value) {
			f.el.AppendValue(p, rd.value(f, attr, p, item))
		}
	default:
		v := rd.value(f, attr, p, a.Value)
		rd.assign(f, ev, f.name, p, v)
		if id, ok := v.(string); ok && p.IsID {
			rd.registerID(ev, f.name, id, f.el)
		}
	}
}

// valueAttributes handles attributes on a property element. They have no
// instance to live on, so only known-namespace attributes are reported.
func (rd *reader) valueAttributes(f *frame, ev xmltoken.Event) {
	for _, a := range ev.Attrs {
		name, err := f.scope.ResolveAttr(a.Name.Prefix, a.Name.Local, f.prop.Name.Namespace)
		if err != nil || name.Namespace == namespace.XSINamespace {
			continue
		}
		if rd.reg.KnownNamespace(name.Namespace) {
			rd.warn(ev, xmlerrors.Warning{
				Code:      string(xmlerrors.WarnUnknownAttribute),
				Message:   fmt.Sprintf("attribute %s ignored on property element", a.Name),
				Element:   f.name,
				Attribute: a.Name.String(),
				Value:     a.Value,
			})
		}
	}
}

// assignText assigns the text collected by src to property p of holder.
func (rd *reader) assignText(holder, src *frame, p *registry.Property, text string) {
	ev := src.event()
	switch {
	case p.IsReference:
		rd.queueRef(holder, src, "", p, strings.TrimSpace(text))
	default:
		v := rd.value(src, "", p, text)
		rd.assign(holder, ev, src.name, p, v)
		if id, ok := v.(string); ok && p.IsID {
			rd.registerID(ev, src.name, id, holder.el)
		}
	}
}

// value converts one lexical value for p. Values that cannot be converted
// are kept as their raw string with a warning.
func (rd *reader) value(src *frame, attr string, p *registry.Property, lexical string) any {
	if p.Kind == coerce.KindTypeRef {
		return rd.typeRef(src, attr, lexical)
	}
	v, err := coerce.Parse(p.Kind, lexical)
	if err != nil {
		rd.warn(src.event(), xmlerrors.Warning{
			Code:      string(xmlerrors.WarnCoercion),
			Message:   fmt.Sprintf("property %s: %v", p, err),
			Element:   src.name,
			Attribute: attr,
			Value:     lexical,
		})
		return lexical
	}
	return v
}

// typeRef maps a document-prefixed type name to its meta-model form.
func (rd *reader) typeRef(src *frame, attr, lexical string) any {
	s := strings.TrimSpace(lexical)
	if t, ok := rd.lookupType(src, s); ok {
		return t.PrefixedName()
	}
	rd.warn(src.event(), xmlerrors.Warning{
		Code:      string(xmlerrors.WarnUnresolvedTypeRef),
		Message:   fmt.Sprintf("type reference %q does not name a known type", s),
		Element:   src.name,
		Attribute: attr,
		Value:     s,
	})
	return s
}

func (rd *reader) lookupType(f *frame, name string) (*registry.Type, bool) {
	prefix, local, _, err := qname.Parse(name)
	if err != nil {
		return nil, false
	}
	q, err := f.scope.Resolve(prefix, local)
	if err != nil {
		return nil, false
	}
	return rd.reg.TypeByTag(q)
}

// instanceType applies an xsi:type override to the declared type.
func (rd *reader) instanceType(f *frame, ev xmltoken.Event, declared *registry.Type) *registry.Type {
	for _, a := range ev.Attrs {
		if a.Name.Local != "type" || a.Name.Prefix == "" {
			continue
		}
		if uri, ok := f.scope.Lookup(a.Name.Prefix); !ok || uri != namespace.XSINamespace {
			continue
		}
		t, ok := rd.lookupType(f, a.Value)
		if ok && t.IsA(declared) {
			return t
		}
		rd.warn(ev, xmlerrors.Warning{
			Code:      string(xmlerrors.WarnInvalidXsiType),
			Message:   fmt.Sprintf("xsi:type %q is not a known subtype of %s", a.Value, declared),
			Element:   f.name,
			Attribute: a.Name.String(),
			Value:     a.Value,
		})
		return declared
	}
	return declared
}

// queueRef records a reference for resolution at the end of the document.
func (rd *reader) queueRef(holder, src *frame, attr string, p *registry.Property, id string) {
	if id == "" {
		return
	}
	index := -1
	if p.IsMany {
		if holder.refs == nil {
			holder.refs = make(map[*registry.Property]int)
		}
		index = holder.refs[p]
		holder.refs[p]++
	} else {
		rd.markSeen(holder, src.event(), src.name, p)
	}
	rd.pending = append(rd.pending, pendingRef{
		ref:    Reference{Element: holder.el, Property: p, ID: id, Index: index},
		name:   src.name,
		attr:   attr,
		line:   src.line,
		column: src.column,
	})
}

// resolveReferences resolves queued references in order and returns the
// ones whose id never appeared.
func (rd *reader) resolveReferences() []Reference {
	var unresolved []Reference
	for _, pr := range rd.pending {
		ref := pr.ref
		ev := xmltoken.Event{Line: pr.line, Column: pr.column}
		target, ok := rd.ids[ref.ID]
		if !ok {
			rd.warn(ev, xmlerrors.Warning{
				Code:      string(xmlerrors.WarnUnresolvedReference),
				Message:   fmt.Sprintf("unresolved reference %q for property %s", ref.ID, ref.Property),
				Element:   pr.name,
				Attribute: pr.attr,
				Value:     ref.ID,
			})
			unresolved = append(unresolved, ref)
			continue
		}
		if !target.Type().IsA(ref.Property.Type) {
			rd.warn(ev, xmlerrors.Warning{
				Code: string(xmlerrors.WarnReferenceType),
				Message: fmt.Sprintf("reference %q for property %s is a %s, expected %s",
					ref.ID, ref.Property, target.Type(), ref.Property.Type),
				Element:   pr.name,
				Attribute: pr.attr,
				Value:     ref.ID,
			})
			continue
		}
		if ref.Property.IsMany {
			ref.Element.AppendValue(ref.Property, target)
		} else {
			ref.Element.SetValue(ref.Property, target)
		}
	}
	return unresolved
}
