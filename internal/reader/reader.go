// Package reader builds typed instance graphs from XML documents.
//
// The reader is driven by tokenizer events and keeps an explicit stack of
// open-element frames. References are queued while parsing and resolved
// against the per-read id table once the document ends, so forward
// references need no special handling.
package reader

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-logr/logr"

	xmlerrors "github.com/jacoelho/xmlmodel/errors"
	"github.com/jacoelho/xmlmodel/internal/instance"
	"github.com/jacoelho/xmlmodel/internal/namespace"
	"github.com/jacoelho/xmlmodel/internal/qname"
	"github.com/jacoelho/xmlmodel/internal/registry"
	"github.com/jacoelho/xmlmodel/internal/xmltoken"
)

const (
	defaultMaxDepth = 256
	defaultMaxAttrs = 256
)

// Options configures one read. Zero limits select the defaults.
type Options struct {
	Log      logr.Logger
	MaxDepth int
	MaxAttrs int
}

// Reference is a reference left unresolved by a read. Index is the position
// within a many-valued property, or -1.
type Reference struct {
	Element  *instance.Element
	Property *registry.Property
	ID       string
	Index    int
}

// Result is the outcome of a successful read.
type Result struct {
	Root         *instance.Element
	ElementsByID map[string]*instance.Element
	Warnings     xmlerrors.WarningList
	References   []Reference
}

type frameKind uint8

const (
	// frameElement holds an instance under construction.
	frameElement frameKind = iota
	// frameValue collects the text of a simple or reference property element.
	frameValue
	// frameExtension captures a subtree outside the meta-model.
	frameExtension
)

type frame struct {
	scope  *namespace.Scope
	parent *frame
	el     *instance.Element
	prop   *registry.Property
	node   *instance.Node
	seen   map[*registry.Property]struct{}
	refs   map[*registry.Property]int
	name   string
	text   strings.Builder
	line   int
	column int
	kind   frameKind
}

func (f *frame) event() xmltoken.Event {
	return xmltoken.Event{Line: f.line, Column: f.column}
}

type pendingRef struct {
	ref    Reference
	name   string
	attr   string
	line   int
	column int
}

type reader struct {
	reg      *registry.Registry
	rootType *registry.Type
	log      logr.Logger
	root     *instance.Element
	ids      map[string]*instance.Element
	stack    []*frame
	pending  []pendingRef
	warnings xmlerrors.WarningList
	maxDepth int
	maxAttrs int
}

// Read parses one document from r and builds an instance of rootType or one
// of its subtypes. Warnings are collected in the result; malformed XML, a
// root mismatch and unconstructable content are returned as *errors.Fatal.
func Read(ctx context.Context, reg *registry.Registry, r io.Reader, rootType *registry.Type, opts Options) (*Result, error) {
	if reg == nil || rootType == nil {
		return nil, xmlerrors.NewFatal(xmlerrors.ErrModelNotLoaded, "no model or root type")
	}
	log := opts.Log
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	rd := &reader{
		reg:      reg,
		rootType: rootType,
		log:      log.WithName("reader"),
		ids:      make(map[string]*instance.Element),
		maxDepth: cmp.Or(opts.MaxDepth, defaultMaxDepth),
		maxAttrs: cmp.Or(opts.MaxAttrs, defaultMaxAttrs),
	}
	if err := rd.run(ctx, xmltoken.New(r)); err != nil {
		return nil, err
	}
	unresolved := rd.resolveReferences()
	res := &Result{
		Root:         rd.root,
		ElementsByID: rd.ids,
		Warnings:     rd.warnings,
		References:   unresolved,
	}
	rd.log.V(1).Info("read complete",
		"root", rd.root.TypeName(),
		"ids", len(rd.ids),
		"warnings", len(rd.warnings),
		"unresolved", len(res.References))
	return res, nil
}

func (rd *reader) run(ctx context.Context, tok *xmltoken.Tokenizer) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev, err := tok.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return parseError(err)
		}
		switch ev.Kind {
		case xmltoken.KindStart:
			err = rd.start(ev)
		case xmltoken.KindText:
			rd.text(ev)
		case xmltoken.KindEnd:
			err = rd.end()
		}
		if err != nil {
			return err
		}
	}
	if rd.root == nil {
		return xmlerrors.NewFatal(xmlerrors.ErrNoRoot, "document has no root element")
	}
	return nil
}

func (rd *reader) start(ev xmltoken.Event) error {
	if len(rd.stack) >= rd.maxDepth {
		return fatalAt(ev, xmlerrors.NewFatalf(xmlerrors.ErrLimitExceeded, "element depth exceeds %d", rd.maxDepth))
	}
	if len(ev.Attrs) > rd.maxAttrs {
		return fatalAt(ev, xmlerrors.NewFatalf(xmlerrors.ErrLimitExceeded, "element has %d attributes, limit is %d", len(ev.Attrs), rd.maxAttrs))
	}

	var parent *frame
	scope := namespace.Root()
	if n := len(rd.stack); n > 0 {
		parent = rd.stack[n-1]
		scope = parent.scope
	}
	scope = scope.Enter(ev.Decls)
	name, err := scope.Resolve(ev.Name.Prefix, ev.Name.Local)
	if err != nil {
		return fatalAt(ev, xmlerrors.WrapFatal(xmlerrors.ErrXMLParse, err))
	}
	f := &frame{
		scope:  scope,
		parent: parent,
		name:   ev.Name.String(),
		line:   ev.Line,
		column: ev.Column,
	}

	switch {
	case parent == nil:
		if err := rd.startRoot(f, ev, name); err != nil {
			return err
		}
	case parent.kind == frameExtension:
		if err := rd.startExtension(f, ev, name); err != nil {
			return err
		}
		parent.node.Children = append(parent.node.Children, f.node)
	case parent.kind == frameValue:
		return fatalAt(ev, xmlerrors.NewFatalf(xmlerrors.ErrUnconstructable,
			"element <%s> not allowed inside %s property %s", f.name, parent.prop.Kind, parent.prop))
	default:
		if err := rd.startChild(parent, f, ev, name); err != nil {
			return err
		}
	}
	rd.stack = append(rd.stack, f)
	return nil
}

func (rd *reader) startRoot(f *frame, ev xmltoken.Event, name qname.QName) error {
	t, ok := rd.reg.TypeByTag(name)
	if !ok {
		return fatalAt(ev, xmlerrors.NewFatalf(xmlerrors.ErrRootMismatch,
			"root element %s does not name a type, expected %s", name, rd.rootType))
	}
	t = rd.instanceType(f, ev, t)
	if !t.IsA(rd.rootType) {
		return fatalAt(ev, xmlerrors.NewFatalf(xmlerrors.ErrRootMismatch,
			"root element is %s, expected %s", t, rd.rootType))
	}
	rd.root = rd.openElement(f, t)
	return rd.attributes(f, ev)
}

func (rd *reader) startChild(parent, f *frame, ev xmltoken.Event, name qname.QName) error {
	owner := parent.el.Type()
	if p := owner.Property(name); p != nil {
		f.prop = p
		if p.IsContainment() {
			rd.openElement(f, rd.instanceType(f, ev, p.Type))
			return rd.attributes(f, ev)
		}
		f.kind = frameValue
		f.el = parent.el
		rd.valueAttributes(f, ev)
		return nil
	}

	if t, ok := rd.reg.TypeByTag(name); ok {
		if p := containerFor(owner, t); p != nil {
			f.prop = p
			rd.openElement(f, rd.instanceType(f, ev, t))
			return rd.attributes(f, ev)
		}
	}

	if rd.reg.KnownNamespace(name.Namespace) {
		rd.warn(ev, xmlerrors.Warning{
			Code:    string(xmlerrors.WarnUnknownElement),
			Message: fmt.Sprintf("unknown element %s in type %s", f.name, owner),
			Element: f.name,
		})
	}
	if err := rd.startExtension(f, ev, name); err != nil {
		return err
	}
	parent.el.AddExtensionElement(f.node)
	return nil
}

// containerFor returns the first containment property of owner that can
// hold an element of type t.
func containerFor(owner, t *registry.Type) *registry.Property {
	for _, p := range owner.Properties() {
		if p.IsContainment() && !p.IsAttr && t.IsA(p.Type) {
			return p
		}
	}
	return nil
}

func (rd *reader) openElement(f *frame, t *registry.Type) *instance.Element {
	f.kind = frameElement
	f.el = instance.New(t)
	return f.el
}

func (rd *reader) startExtension(f *frame, ev xmltoken.Event, name qname.QName) error {
	f.kind = frameExtension
	f.node = &instance.Node{Kind: instance.NodeElement, Name: name, Prefix: ev.Name.Prefix}
	for _, a := range ev.Attrs {
		q, err := f.scope.ResolveAttr(a.Name.Prefix, a.Name.Local, "")
		if err != nil {
			return fatalAt(ev, xmlerrors.WrapFatal(xmlerrors.ErrXMLParse, err))
		}
		f.node.Attrs = append(f.node.Attrs, instance.ExtensionAttr{Name: q, Prefix: a.Name.Prefix, Value: a.Value})
	}
	return nil
}

func (rd *reader) text(ev xmltoken.Event) {
	f := rd.stack[len(rd.stack)-1]
	switch f.kind {
	case frameValue:
		f.text.WriteString(ev.Text)
	case frameElement:
		if f.el.Type().BodyProperty() != nil {
			f.text.WriteString(ev.Text)
		}
	case frameExtension:
		if strings.TrimSpace(ev.Text) != "" {
			f.node.Children = append(f.node.Children, &instance.Node{Kind: instance.NodeText, Text: ev.Text})
		}
	}
}

func (rd *reader) end() error {
	f := rd.stack[len(rd.stack)-1]
	rd.stack = rd.stack[:len(rd.stack)-1]

	switch f.kind {
	case frameElement:
		if body := f.el.Type().BodyProperty(); body != nil {
			if text := f.text.String(); strings.TrimSpace(text) != "" {
				rd.assignText(f, f, body, text)
			}
		}
		if f.parent != nil {
			rd.assign(f.parent, f.event(), f.name, f.prop, f.el)
		}
	case frameValue:
		rd.assignText(f.parent, f, f.prop, f.text.String())
	}
	return nil
}

// assign stores a value into the element of frame holder, appending for
// many-valued properties and warning when a single value is overwritten.
func (rd *reader) assign(holder *frame, ev xmltoken.Event, elName string, p *registry.Property, v any) {
	if p.IsMany {
		holder.el.AppendValue(p, v)
		return
	}
	rd.markSeen(holder, ev, elName, p)
	holder.el.SetValue(p, v)
}

// markSeen records a single-valued assignment and warns on repeats.
func (rd *reader) markSeen(holder *frame, ev xmltoken.Event, elName string, p *registry.Property) {
	if holder.seen == nil {
		holder.seen = make(map[*registry.Property]struct{})
	}
	if _, dup := holder.seen[p]; dup {
		rd.warn(ev, xmlerrors.Warning{
			Code:    string(xmlerrors.WarnDuplicateProperty),
			Message: fmt.Sprintf("property %s assigned more than once", p),
			Element: elName,
		})
	}
	holder.seen[p] = struct{}{}
}

func (rd *reader) registerID(ev xmltoken.Event, elName, id string, el *instance.Element) {
	if id == "" {
		return
	}
	if _, dup := rd.ids[id]; dup {
		rd.warn(ev, xmlerrors.Warning{
			Code:    string(xmlerrors.WarnDuplicateID),
			Message: fmt.Sprintf("duplicate id %q", id),
			Element: elName,
			Value:   id,
		})
		return
	}
	rd.ids[id] = el
}

func (rd *reader) warn(ev xmltoken.Event, w xmlerrors.Warning) {
	w.Line = ev.Line
	w.Column = ev.Column
	rd.warnings = append(rd.warnings, w)
}

func parseError(err error) error {
	fatal := xmlerrors.WrapFatal(xmlerrors.ErrXMLParse, err)
	var syn *xmltoken.SyntaxError
	if errors.As(err, &syn) {
		fatal.Message = syn.Err.Error()
		fatal.Line = syn.Line
		fatal.Column = syn.Column
		fatal.Element = strings.TrimPrefix(syn.Path, "/")
	}
	return fatal
}

func fatalAt(ev xmltoken.Event, f *xmlerrors.Fatal) error {
	f.Element = ev.Name.String()
	f.Line = ev.Line
	f.Column = ev.Column
	return f
}
