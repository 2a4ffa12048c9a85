// Package namespace implements lexically nested prefix scopes.
package namespace

import (
	"errors"
	"fmt"

	"github.com/jacoelho/xmlmodel/internal/qname"
)

// Common XML namespaces.
const (
	XMLNamespace   = "http://www.w3.org/XML/1998/namespace"
	XMLNSNamespace = "http://www.w3.org/2000/xmlns/"
	XSINamespace   = "http://www.w3.org/2001/XMLSchema-instance"
)

// ErrUnboundPrefix reports usage of an undeclared namespace prefix.
var ErrUnboundPrefix = errors.New("unbound namespace prefix")

// Decl is one namespace declaration. An empty Prefix declares the default
// namespace.
type Decl struct {
	Prefix string
	URI    string
}

// Scope holds the declarations of one element. Lookups walk outwards through
// the enclosing scopes; a scope never sees declarations of its siblings.
type Scope struct {
	parent     *Scope
	prefixes   map[string]string
	defaultNS  string
	decls      []Decl
	defaultSet bool
}

// Root returns an empty outermost scope. Only the xml prefix is bound.
func Root() *Scope {
	return &Scope{}
}

// Enter returns a child scope holding decls. Declarations of the reserved
// xml and xmlns prefixes are ignored.
func (s *Scope) Enter(decls []Decl) *Scope {
	child := &Scope{parent: s}
	for _, d := range decls {
		switch d.Prefix {
		case "":
			child.defaultNS = d.URI
			child.defaultSet = true
		case "xml", "xmlns":
			continue
		default:
			if child.prefixes == nil {
				child.prefixes = make(map[string]string, len(decls))
			}
			child.prefixes[d.Prefix] = d.URI
		}
		child.decls = append(child.decls, d)
	}
	return child
}

// Parent returns the enclosing scope, or nil for the root.
func (s *Scope) Parent() *Scope {
	return s.parent
}

// Decls returns the declarations made by this scope, in document order.
func (s *Scope) Decls() []Decl {
	return s.decls
}

// Lookup returns the URI bound to prefix. The empty prefix maps to the
// default namespace, or to no namespace when none is declared.
func (s *Scope) Lookup(prefix string) (string, bool) {
	if prefix == "xml" {
		return XMLNamespace, true
	}
	for cur := s; cur != nil; cur = cur.parent {
		if prefix == "" {
			if cur.defaultSet {
				return cur.defaultNS, true
			}
			continue
		}
		if uri, ok := cur.prefixes[prefix]; ok {
			return uri, true
		}
	}
	if prefix == "" {
		return "", true
	}
	return "", false
}

// Bound reports whether a non-empty prefix is declared in scope.
func (s *Scope) Bound(prefix string) bool {
	if prefix == "" {
		return false
	}
	_, ok := s.Lookup(prefix)
	return ok
}

// Resolve resolves an element name. Unprefixed names take the default namespace.
func (s *Scope) Resolve(prefix, local string) (qname.QName, error) {
	uri, ok := s.Lookup(prefix)
	if !ok {
		return qname.QName{}, fmt.Errorf("%w %q in %s", ErrUnboundPrefix, prefix, qname.Join(prefix, local))
	}
	return qname.New(uri, local), nil
}

// ResolveAttr resolves an attribute name. Unprefixed attributes are placed
// in fallback, usually the namespace of the element's type.
func (s *Scope) ResolveAttr(prefix, local, fallback string) (qname.QName, error) {
	if prefix == "" {
		return qname.New(fallback, local), nil
	}
	return s.Resolve(prefix, local)
}

// PrefixFor returns a non-empty prefix bound to uri that is not shadowed by
// an inner declaration.
func (s *Scope) PrefixFor(uri string) (string, bool) {
	if uri == XMLNamespace {
		return "xml", true
	}
	for cur := s; cur != nil; cur = cur.parent {
		for _, d := range cur.decls {
			if d.Prefix == "" || d.URI != uri {
				continue
			}
			if bound, _ := s.Lookup(d.Prefix); bound == uri {
				return d.Prefix, true
			}
		}
	}
	return "", false
}
