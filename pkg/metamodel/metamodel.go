// Package metamodel declares the meta-model input consumed by the type registry:
// packages of types, each with supertypes and property declarations.
//
// Declarations can be built in Go or loaded from JSON or YAML package
// descriptors. Type and property type names are either local ("Root"),
// resolved against the declaring package, or prefixed ("props:Root").
package metamodel

// Built-in property type names. Any other type name refers to a declared type.
const (
	TypeString  = "String"
	TypeInteger = "Integer"
	TypeReal    = "Real"
	TypeBoolean = "Boolean"
	// TypeQName holds a qualified type name, serialized with a document prefix.
	TypeQName = "QName"
)

// TagAliasLowerCase serializes type tags with a lower-cased first letter.
const TagAliasLowerCase = "lowerCase"

// Package groups the types declared for one XML namespace.
type Package struct {
	Name     string
	Prefix   string
	URI      string
	TagAlias string
	Types    []Type
}

// Type declares a type with ordered supertypes and its own properties.
type Type struct {
	Name       string
	SuperClass []string
	IsAbstract bool
	Properties []Property
}

// Property declares one property of a type.
type Property struct {
	Name        string
	Type        string
	Default     string
	HasDefault  bool
	IsAttr      bool
	IsMany      bool
	IsReference bool
	IsBody      bool
	IsID        bool
}

// WithDefault returns a copy of p carrying the lexical default value.
func (p Property) WithDefault(value string) Property {
	p.Default = value
	p.HasDefault = true
	return p
}

// IsBuiltin reports whether name is one of the built-in property type names.
func IsBuiltin(name string) bool {
	switch name {
	case TypeString, TypeInteger, TypeReal, TypeBoolean, TypeQName:
		return true
	default:
		return false
	}
}
