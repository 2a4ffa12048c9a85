package registry

import (
	"slices"
	"sync"

	"github.com/jacoelho/xmlmodel/internal/qname"
)

// Type is a resolved type descriptor.
type Type struct {
	Name       qname.QName
	Package    *Package
	reg        *Registry
	byName     map[qname.QName]*Property
	id         *Property
	body       *Property
	supers     []*Type
	own        []*Property
	merged     []*Property
	once       sync.Once
	IsAbstract bool
}

// PrefixedName returns the name using the meta-model prefix, e.g. "props:Root".
func (t *Type) PrefixedName() string {
	return qname.Join(t.Package.Prefix, t.Name.Local)
}

func (t *Type) String() string {
	return t.PrefixedName()
}

// TagName returns the local element name used when the type is serialized
// by name, applying the package tag alias.
func (t *Type) TagName() string {
	if t.Package.LowerCaseTags {
		return lowerFirst(t.Name.Local)
	}
	return t.Name.Local
}

// SuperTypes returns the direct supertypes in declaration order.
func (t *Type) SuperTypes() []*Type {
	return t.supers
}

// OwnProperties returns the properties declared directly on t.
func (t *Type) OwnProperties() []*Property {
	return t.own
}

// Properties returns the merged property list. It is computed on first use.
func (t *Type) Properties() []*Property {
	t.once.Do(t.merge)
	return t.merged
}

func (t *Type) merge() {
	var merged []*Property
	seen := make(map[qname.QName]struct{})
	for _, super := range t.supers {
		for _, p := range super.Properties() {
			if _, ok := seen[p.Name]; ok {
				continue
			}
			seen[p.Name] = struct{}{}
			merged = append(merged, p)
		}
	}
	for _, p := range t.own {
		if _, ok := seen[p.Name]; ok {
			merged = slices.DeleteFunc(merged, func(q *Property) bool {
				return q.Name == p.Name
			})
		}
		seen[p.Name] = struct{}{}
		merged = append(merged, p)
	}

	byName := make(map[qname.QName]*Property, len(merged))
	for _, p := range merged {
		byName[p.Name] = p
		if p.IsID && t.id == nil {
			t.id = p
		}
		if p.IsBody && t.body == nil {
			t.body = p
		}
	}
	t.merged = merged
	t.byName = byName
}

// Property returns the merged property with the given qualified name.
func (t *Type) Property(name qname.QName) *Property {
	t.once.Do(t.merge)
	return t.byName[name]
}

// ResolveProperty resolves a property by display name. A "prefix:local" name
// uses the meta-model prefix. A bare name prefers the property in the type's
// own namespace, then the last merged property with that local name.
func (t *Type) ResolveProperty(name string) *Property {
	prefix, local, hasPrefix := qname.Split(name)
	if hasPrefix {
		pkg, ok := t.reg.PackageByPrefix(prefix)
		if !ok {
			return nil
		}
		return t.Property(qname.New(pkg.URI, local))
	}
	if p := t.Property(qname.New(t.Name.Namespace, local)); p != nil {
		return p
	}
	var found *Property
	for _, p := range t.Properties() {
		if p.Name.Local == local {
			found = p
		}
	}
	return found
}

// IDProperty returns the identity property, or nil.
func (t *Type) IDProperty() *Property {
	t.once.Do(t.merge)
	return t.id
}

// BodyProperty returns the property holding element text, or nil.
func (t *Type) BodyProperty() *Property {
	t.once.Do(t.merge)
	return t.body
}

// IsA reports whether t is other or one of its subtypes.
func (t *Type) IsA(other *Type) bool {
	if t == nil || other == nil {
		return false
	}
	if t == other {
		return true
	}
	for _, super := range t.supers {
		if super.IsA(other) {
			return true
		}
	}
	return false
}
