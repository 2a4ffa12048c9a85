// Package xmltoken turns an XML byte stream into open/text/close events with
// namespace declarations split from ordinary attributes. Names are reported
// raw (prefix and local part); resolution is left to the caller's scopes.
//
// Well-formedness checks the underlying decoder leaves to its caller are done
// here: matching end tags, a single root element, no text outside the root,
// and no unterminated elements at end of input.
package xmltoken

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jacoelho/xmlmodel/internal/namespace"
	"github.com/jacoelho/xmlmodel/internal/qname"
)

// Kind identifies an event.
type Kind uint8

const (
	KindStart Kind = iota + 1
	KindEnd
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindEnd:
		return "end"
	case KindText:
		return "text"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Name is a raw element or attribute name.
type Name struct {
	Prefix string
	Local  string
}

func (n Name) String() string {
	return qname.Join(n.Prefix, n.Local)
}

// Attr is an attribute that is not a namespace declaration.
type Attr struct {
	Name  Name
	Value string
}

// Event is one tokenizer event. Attrs and Decls are set on start events,
// Text on text events.
type Event struct {
	Name   Name
	Text   string
	Attrs  []Attr
	Decls  []namespace.Decl
	Line   int
	Column int
	Kind   Kind
}

// SyntaxError reports malformed input with its location.
type SyntaxError struct {
	Err    error
	Path   string
	Line   int
	Column int
}

// Error formats the syntax error with location and cause.
func (e *SyntaxError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Line > 0 && e.Column > 0 {
		return fmt.Sprintf("xml syntax error at line %d, column %d: %v", e.Line, e.Column, e.Err)
	}
	if e.Line > 0 {
		return fmt.Sprintf("xml syntax error at line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("xml syntax error: %v", e.Err)
}

// Unwrap exposes the underlying error.
func (e *SyntaxError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Tokenizer reads events from one document.
type Tokenizer struct {
	dec     *xml.Decoder
	stack   []Name
	sawRoot bool
}

// New returns a Tokenizer reading from r.
func New(r io.Reader) *Tokenizer {
	return &Tokenizer{dec: xml.NewDecoder(r)}
}

// Depth returns the number of open elements.
func (t *Tokenizer) Depth() int {
	return len(t.stack)
}

// Path returns the open element names joined by '/'.
func (t *Tokenizer) Path() string {
	if len(t.stack) == 0 {
		return ""
	}
	parts := make([]string, len(t.stack))
	for i, n := range t.stack {
		parts[i] = n.String()
	}
	return "/" + strings.Join(parts, "/")
}

// Next returns the next event. It returns io.EOF once the input ends after a
// complete document, or after an input holding no element at all.
func (t *Tokenizer) Next() (Event, error) {
	for {
		line, column := t.dec.InputPos()
		tok, err := t.dec.RawToken()
		if errors.Is(err, io.EOF) {
			if len(t.stack) > 0 {
				return Event{}, t.errorAt(line, column, io.ErrUnexpectedEOF)
			}
			return Event{}, io.EOF
		}
		if err != nil {
			return Event{}, t.wrapDecoderError(err)
		}

		switch tok := tok.(type) {
		case xml.StartElement:
			return t.start(tok, line, column)
		case xml.EndElement:
			return t.end(tok, line, column)
		case xml.CharData:
			if len(t.stack) == 0 {
				if strings.TrimSpace(string(tok)) != "" {
					return Event{}, t.errorAt(line, column, errors.New("text outside root element"))
				}
				continue
			}
			return Event{Kind: KindText, Text: string(tok), Line: line, Column: column}, nil
		default:
			// comments, processing instructions and directives
			continue
		}
	}
}

func (t *Tokenizer) start(tok xml.StartElement, line, column int) (Event, error) {
	if len(t.stack) == 0 && t.sawRoot {
		return Event{}, t.errorAt(line, column, errors.New("multiple root elements"))
	}
	name := Name{Prefix: tok.Name.Space, Local: tok.Name.Local}
	if err := checkName(name); err != nil {
		return Event{}, t.errorAt(line, column, err)
	}
	ev := Event{Kind: KindStart, Name: name, Line: line, Column: column}
	seen := make(map[Name]struct{}, len(tok.Attr))
	for _, a := range tok.Attr {
		an := Name{Prefix: a.Name.Space, Local: a.Name.Local}
		if _, dup := seen[an]; dup {
			return Event{}, t.errorAt(line, column, fmt.Errorf("duplicate attribute %s", an))
		}
		seen[an] = struct{}{}
		if err := checkName(an); err != nil {
			return Event{}, t.errorAt(line, column, err)
		}
		switch {
		case an.Prefix == "" && an.Local == "xmlns":
			ev.Decls = append(ev.Decls, namespace.Decl{URI: a.Value})
		case an.Prefix == "xmlns":
			if a.Value == "" {
				return Event{}, t.errorAt(line, column, fmt.Errorf("empty namespace for prefix %q", an.Local))
			}
			ev.Decls = append(ev.Decls, namespace.Decl{Prefix: an.Local, URI: a.Value})
		default:
			ev.Attrs = append(ev.Attrs, Attr{Name: an, Value: a.Value})
		}
	}
	t.sawRoot = true
	t.stack = append(t.stack, name)
	return ev, nil
}

func (t *Tokenizer) end(tok xml.EndElement, line, column int) (Event, error) {
	name := Name{Prefix: tok.Name.Space, Local: tok.Name.Local}
	if len(t.stack) == 0 {
		return Event{}, t.errorAt(line, column, fmt.Errorf("unexpected end element </%s>", name))
	}
	open := t.stack[len(t.stack)-1]
	if open != name {
		return Event{}, t.errorAt(line, column, fmt.Errorf("element <%s> closed by </%s>", open, name))
	}
	t.stack = t.stack[:len(t.stack)-1]
	return Event{Kind: KindEnd, Name: name, Line: line, Column: column}, nil
}

func checkName(n Name) error {
	if n.Local == "" || strings.ContainsRune(n.Local, ':') {
		return fmt.Errorf("invalid name %q", n.String())
	}
	return nil
}

func (t *Tokenizer) errorAt(line, column int, err error) error {
	return &SyntaxError{Line: line, Column: column, Path: t.Path(), Err: err}
}

func (t *Tokenizer) wrapDecoderError(err error) error {
	line, column := t.dec.InputPos()
	var syn *xml.SyntaxError
	if errors.As(err, &syn) {
		if syn.Line != line {
			column = 0
		}
		return &SyntaxError{Line: syn.Line, Column: column, Path: t.Path(), Err: errors.New(syn.Msg)}
	}
	return &SyntaxError{Line: line, Column: column, Path: t.Path(), Err: err}
}
