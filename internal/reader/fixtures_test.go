package reader

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jacoelho/xmlmodel/internal/registry"
	"github.com/jacoelho/xmlmodel/pkg/metamodel"
)

const (
	propsNS = "http://properties"
	miNS    = "http://multipleinheritance"
	dgNS    = "urn:dg"
)

func inheritanceRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New([]metamodel.Package{
		{Prefix: "props", URI: propsNS, Types: []metamodel.Type{
			{Name: "Root", Properties: []metamodel.Property{
				{Name: "id", Type: metamodel.TypeString, IsAttr: true, IsID: true},
				{Name: "single", Type: metamodel.TypeInteger, IsAttr: true},
				{Name: "nonAttrSingle", Type: metamodel.TypeInteger},
				{Name: "many", Type: metamodel.TypeInteger, IsMany: true},
				{Name: "root", Type: "Root"},
			}},
		}},
		{Prefix: "mi", URI: miNS, Types: []metamodel.Type{
			{Name: "MultipleInherited", SuperClass: []string{"props:Root"}, Properties: []metamodel.Property{
				{Name: "single", Type: metamodel.TypeString, IsAttr: true},
				{Name: "nonAttrSingle", Type: metamodel.TypeString},
				{Name: "many", Type: metamodel.TypeString, IsMany: true},
				{Name: "root", Type: "MultipleInherited"},
			}},
		}},
	})
	require.NoError(t, err)
	return reg
}

func diagramRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New([]metamodel.Package{{
		Prefix:   "dg",
		URI:      dgNS,
		TagAlias: metamodel.TagAliasLowerCase,
		Types: []metamodel.Type{
			{Name: "Definitions", Properties: []metamodel.Property{
				{Name: "id", Type: metamodel.TypeString, IsAttr: true, IsID: true},
				{Name: "name", Type: metamodel.TypeString, IsAttr: true},
				{Name: "elements", Type: "Node", IsMany: true},
			}},
			{Name: "Node", Properties: []metamodel.Property{
				{Name: "id", Type: metamodel.TypeString, IsAttr: true, IsID: true},
				{Name: "name", Type: metamodel.TypeString, IsAttr: true},
				{Name: "weight", Type: metamodel.TypeReal, IsAttr: true},
				{Name: "enabled", Type: metamodel.TypeBoolean, IsAttr: true},
				{Name: "kind", Type: metamodel.TypeQName, IsAttr: true},
				{Name: "tags", Type: metamodel.TypeString, IsAttr: true, IsMany: true},
				{Name: "next", Type: "Node", IsAttr: true, IsReference: true},
				{Name: "targets", Type: "Node", IsAttr: true, IsReference: true, IsMany: true},
				{Name: "incoming", Type: "Node", IsReference: true, IsMany: true},
				{Name: "count", Type: metamodel.TypeInteger},
				{Name: "documentation", Type: "Documentation", IsMany: true},
			}},
			{Name: "Task", SuperClass: []string{"Node"}, Properties: []metamodel.Property{
				{Name: "priority", Type: metamodel.TypeInteger, IsAttr: true},
			}},
			{Name: "Documentation", Properties: []metamodel.Property{
				{Name: "format", Type: metamodel.TypeString, IsAttr: true},
				{Name: "text", Type: metamodel.TypeString, IsBody: true},
			}},
		},
	}})
	require.NoError(t, err)
	return reg
}

func readDoc(t *testing.T, reg *registry.Registry, root, doc string) (*Result, error) {
	t.Helper()
	typ, err := reg.ResolveType(root)
	require.NoError(t, err)
	return Read(context.Background(), reg, strings.NewReader(doc), typ, Options{})
}

func mustRead(t *testing.T, reg *registry.Registry, root, doc string) *Result {
	t.Helper()
	res, err := readDoc(t, reg, root, doc)
	require.NoError(t, err)
	return res
}
