package registry

import (
	"fmt"

	"github.com/jacoelho/xmlmodel/internal/coerce"
	"github.com/jacoelho/xmlmodel/internal/qname"
	"github.com/jacoelho/xmlmodel/pkg/metamodel"
)

// Property is a resolved property descriptor. Type is set for complex
// properties only.
type Property struct {
	Default     any
	Owner       *Type
	Package     *Package
	Type        *Type
	Name        qname.QName
	Kind        coerce.Kind
	HasDefault  bool
	IsAttr      bool
	IsMany      bool
	IsReference bool
	IsBody      bool
	IsID        bool
}

// PrefixedName returns the property name with its meta-model prefix.
func (p *Property) PrefixedName() string {
	return qname.Join(p.Package.Prefix, p.Name.Local)
}

func (p *Property) String() string {
	return p.PrefixedName()
}

// IsContainment reports whether values are nested elements owned by the holder.
func (p *Property) IsContainment() bool {
	return p.Kind == coerce.KindComplex && !p.IsReference
}

// Normalize converts v into the canonical Go representation for a single
// value of p. Complex values are not handled here.
func (p *Property) Normalize(v any) (any, error) {
	return coerce.Normalize(p.Kind, v)
}

func (b *builder) resolveProperty(owner *Type, mp metamodel.Property) (*Property, error) {
	prefix, local, hasPrefix, err := qname.Parse(mp.Name)
	if err != nil {
		return nil, err
	}
	pkg := owner.Package
	if hasPrefix {
		p, ok := b.reg.byPrefix[prefix]
		if !ok {
			return nil, fmt.Errorf("unknown package prefix %q", prefix)
		}
		pkg = p
	}
	p := &Property{
		Name:        qname.New(pkg.URI, local),
		Owner:       owner,
		Package:     pkg,
		IsAttr:      mp.IsAttr,
		IsMany:      mp.IsMany,
		IsReference: mp.IsReference,
		IsBody:      mp.IsBody,
		IsID:        mp.IsID,
	}

	switch mp.Type {
	case "":
		return nil, fmt.Errorf("missing type")
	case metamodel.TypeString:
		p.Kind = coerce.KindString
	case metamodel.TypeInteger:
		p.Kind = coerce.KindInteger
	case metamodel.TypeReal:
		p.Kind = coerce.KindReal
	case metamodel.TypeBoolean:
		p.Kind = coerce.KindBoolean
	case metamodel.TypeQName:
		p.Kind = coerce.KindTypeRef
	default:
		target, err := b.lookupType(owner.Package, mp.Type)
		if err != nil {
			return nil, err
		}
		p.Kind = coerce.KindComplex
		p.Type = target
	}

	switch {
	case p.IsReference && p.Kind != coerce.KindComplex:
		return nil, fmt.Errorf("reference to %s value", p.Kind)
	case p.IsBody && (p.IsAttr || p.IsMany):
		return nil, fmt.Errorf("body property cannot be an attribute or many-valued")
	case p.IsBody && !p.Kind.IsSimple():
		return nil, fmt.Errorf("body property cannot hold %s values", p.Kind)
	case p.IsID && (p.Kind != coerce.KindString || p.IsMany):
		return nil, fmt.Errorf("id property must be a single string")
	}

	if mp.HasDefault {
		if p.IsMany || !(p.Kind.IsSimple() || p.Kind == coerce.KindTypeRef) {
			return nil, fmt.Errorf("default not allowed for %s property", p.Kind)
		}
		v := any(mp.Default)
		if p.Kind != coerce.KindTypeRef {
			if v, err = coerce.Parse(p.Kind, mp.Default); err != nil {
				return nil, fmt.Errorf("default: %w", err)
			}
		}
		p.Default = v
		p.HasDefault = true
	}
	return p, nil
}
