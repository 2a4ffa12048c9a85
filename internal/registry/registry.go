// Package registry resolves meta-model packages into type descriptors.
//
// A Registry is built once from a set of packages and never mutated
// afterwards; every lookup is safe for concurrent use. Each type exposes a
// merged property list: properties of the supertypes in declaration order
// (depth-first, left-to-right, first occurrence wins), followed by the type's
// own properties, which replace inherited properties with the same qualified
// name. Readers and writers use that list verbatim for ordering.
package registry

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"go.uber.org/multierr"

	"github.com/jacoelho/xmlmodel/internal/graphcycle"
	"github.com/jacoelho/xmlmodel/internal/qname"
	"github.com/jacoelho/xmlmodel/pkg/metamodel"
)

// Registry holds the resolved types of a meta-model.
type Registry struct {
	byURI    map[string]*Package
	byPrefix map[string]*Package
	types    map[qname.QName]*Type
	aliases  map[qname.QName]*Type
	packages []*Package
}

// Package is a resolved meta-model package.
type Package struct {
	Name          string
	Prefix        string
	URI           string
	LowerCaseTags bool
	types         []*Type
}

// Types returns the package types in declaration order.
func (p *Package) Types() []*Type {
	return p.types
}

// New resolves pkgs into a Registry. All declaration problems are collected
// and returned together.
func New(pkgs []metamodel.Package) (*Registry, error) {
	b := &builder{
		reg: &Registry{
			byURI:    make(map[string]*Package, len(pkgs)),
			byPrefix: make(map[string]*Package, len(pkgs)),
			types:    make(map[qname.QName]*Type),
			aliases:  make(map[qname.QName]*Type),
		},
		decls: make(map[*Type]metamodel.Type),
	}
	for _, mp := range pkgs {
		b.addPackage(mp)
	}
	b.resolveSuperTypes()
	if !b.checkCycles() {
		return nil, b.err
	}
	b.resolveProperties()
	if b.err != nil {
		return nil, b.err
	}
	b.checkMerged()
	if b.err != nil {
		return nil, b.err
	}
	return b.reg, nil
}

// Packages returns the packages in construction order.
func (r *Registry) Packages() []*Package {
	return r.packages
}

// PackageByURI returns the package declared for a namespace URI.
func (r *Registry) PackageByURI(uri string) (*Package, bool) {
	p, ok := r.byURI[uri]
	return p, ok
}

// PackageByPrefix returns the package with the given meta-model prefix.
func (r *Registry) PackageByPrefix(prefix string) (*Package, bool) {
	p, ok := r.byPrefix[prefix]
	return p, ok
}

// KnownNamespace reports whether uri belongs to a meta-model package.
func (r *Registry) KnownNamespace(uri string) bool {
	_, ok := r.byURI[uri]
	return ok
}

// Type returns the type with the given qualified name.
func (r *Registry) Type(name qname.QName) (*Type, bool) {
	t, ok := r.types[name]
	return t, ok
}

// TypeByTag resolves an element name to a type, accepting the tag alias
// spelling of packages that declare one.
func (r *Registry) TypeByTag(name qname.QName) (*Type, bool) {
	if t, ok := r.types[name]; ok {
		return t, true
	}
	t, ok := r.aliases[name]
	return t, ok
}

// ResolveType resolves a meta-model prefixed type name such as "props:Root".
func (r *Registry) ResolveType(name string) (*Type, error) {
	prefix, local, hasPrefix, err := qname.Parse(name)
	if err != nil {
		return nil, err
	}
	if !hasPrefix {
		return nil, fmt.Errorf("type name %q has no package prefix", name)
	}
	pkg, ok := r.byPrefix[prefix]
	if !ok {
		return nil, fmt.Errorf("unknown package prefix %q in type %q", prefix, name)
	}
	t, ok := r.types[qname.New(pkg.URI, local)]
	if !ok {
		return nil, fmt.Errorf("unknown type %q", name)
	}
	return t, nil
}

type builder struct {
	err   error
	reg   *Registry
	decls map[*Type]metamodel.Type
}

func (b *builder) fail(format string, args ...any) {
	b.err = multierr.Append(b.err, fmt.Errorf(format, args...))
}

func (b *builder) addPackage(mp metamodel.Package) {
	r := b.reg
	switch {
	case mp.Prefix == "":
		b.fail("package %q: missing prefix", mp.Name)
		return
	case mp.URI == "":
		b.fail("package %q: missing uri", mp.Name)
		return
	case mp.Prefix == "xml" || mp.Prefix == "xmlns":
		b.fail("package %q: reserved prefix %q", mp.Name, mp.Prefix)
		return
	case mp.TagAlias != "" && mp.TagAlias != metamodel.TagAliasLowerCase:
		b.fail("package %q: unsupported tag alias %q", mp.Name, mp.TagAlias)
		return
	}
	if prev, ok := r.byPrefix[mp.Prefix]; ok {
		b.fail("package %q: prefix %q already used by package %q", mp.Name, mp.Prefix, prev.Name)
		return
	}
	if prev, ok := r.byURI[mp.URI]; ok {
		b.fail("package %q: uri %q already used by package %q", mp.Name, mp.URI, prev.Name)
		return
	}

	pkg := &Package{
		Name:          mp.Name,
		Prefix:        mp.Prefix,
		URI:           mp.URI,
		LowerCaseTags: mp.TagAlias == metamodel.TagAliasLowerCase,
		types:         make([]*Type, 0, len(mp.Types)),
	}
	r.packages = append(r.packages, pkg)
	r.byPrefix[pkg.Prefix] = pkg
	r.byURI[pkg.URI] = pkg

	for _, mt := range mp.Types {
		_, local, hasPrefix, err := qname.Parse(mt.Name)
		if err != nil || hasPrefix {
			b.fail("package %q: invalid type name %q", mp.Name, mt.Name)
			continue
		}
		name := qname.New(pkg.URI, local)
		if _, ok := r.types[name]; ok {
			b.fail("package %q: duplicate type %q", mp.Name, local)
			continue
		}
		t := &Type{
			Name:       name,
			Package:    pkg,
			IsAbstract: mt.IsAbstract,
			reg:        r,
		}
		r.types[name] = t
		pkg.types = append(pkg.types, t)
		b.decls[t] = mt
		if alias := qname.New(pkg.URI, lowerFirst(local)); pkg.LowerCaseTags && alias != name {
			r.aliases[alias] = t
		}
	}
}

func (b *builder) eachType(fn func(t *Type, decl metamodel.Type)) {
	for _, pkg := range b.reg.packages {
		for _, t := range pkg.types {
			fn(t, b.decls[t])
		}
	}
}

func (b *builder) resolveSuperTypes() {
	b.eachType(func(t *Type, decl metamodel.Type) {
		seen := make(map[*Type]struct{}, len(decl.SuperClass))
		for _, name := range decl.SuperClass {
			super, err := b.lookupType(t.Package, name)
			if err != nil {
				b.fail("type %s: supertype: %w", t, err)
				continue
			}
			if _, ok := seen[super]; ok {
				b.fail("type %s: supertype %s listed twice", t, super)
				continue
			}
			seen[super] = struct{}{}
			t.supers = append(t.supers, super)
		}
	})
}

func (b *builder) checkCycles() bool {
	var starts []*Type
	b.eachType(func(t *Type, _ metamodel.Type) {
		starts = append(starts, t)
	})
	err := graphcycle.Detect(graphcycle.Config[*Type]{
		Starts: starts,
		Next: func(t *Type) ([]*Type, error) {
			return t.supers, nil
		},
	})
	if err != nil {
		b.err = multierr.Append(b.err, fmt.Errorf("supertype graph: %w", err))
		return false
	}
	return true
}

func (b *builder) resolveProperties() {
	b.eachType(func(t *Type, decl metamodel.Type) {
		seen := make(map[qname.QName]struct{}, len(decl.Properties))
		for _, mp := range decl.Properties {
			p, err := b.resolveProperty(t, mp)
			if err != nil {
				b.fail("type %s: property %q: %w", t, mp.Name, err)
				continue
			}
			if _, ok := seen[p.Name]; ok {
				b.fail("type %s: duplicate property %s", t, p)
				continue
			}
			seen[p.Name] = struct{}{}
			t.own = append(t.own, p)
		}
	})
}

func (b *builder) checkMerged() {
	b.eachType(func(t *Type, _ metamodel.Type) {
		var ids, bodies []*Property
		for _, p := range t.Properties() {
			if p.IsID {
				ids = append(ids, p)
			}
			if p.IsBody {
				bodies = append(bodies, p)
			}
		}
		if len(ids) > 1 {
			b.fail("type %s: more than one id property (%s, %s)", t, ids[0], ids[1])
		}
		if len(bodies) > 1 {
			b.fail("type %s: more than one body property (%s, %s)", t, bodies[0], bodies[1])
		}
	})
}

func (b *builder) lookupType(from *Package, name string) (*Type, error) {
	prefix, local, hasPrefix, err := qname.Parse(name)
	if err != nil {
		return nil, err
	}
	pkg := from
	if hasPrefix {
		p, ok := b.reg.byPrefix[prefix]
		if !ok {
			return nil, fmt.Errorf("unknown package prefix %q in %q", prefix, name)
		}
		pkg = p
	}
	t, ok := b.reg.types[qname.New(pkg.URI, local)]
	if !ok {
		return nil, fmt.Errorf("unknown type %q", name)
	}
	return t, nil
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || !unicode.IsUpper(r) {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}
