package reader

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/go-logr/logr/funcr"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xmlerrors "github.com/jacoelho/xmlmodel/errors"
	"github.com/jacoelho/xmlmodel/internal/instance"
	"github.com/jacoelho/xmlmodel/internal/qname"
)

func TestReadMultipleInheritedAttributes(t *testing.T) {
	reg := inheritanceRegistry(t)
	res := mustRead(t, reg, "mi:MultipleInherited",
		`<mi:MultipleInherited xmlns:mi="http://multipleinheritance" xmlns:props="http://properties" `+
			`props:single="42" single="mi-single" />`)

	assert.Empty(t, res.Warnings)
	assert.Empty(t, res.References)
	assert.Empty(t, res.ElementsByID)
	assert.Equal(t, "mi:MultipleInherited", res.Root.TypeName())
	assert.Equal(t, int64(42), res.Root.Get("props:single"))
	assert.Equal(t, "mi-single", res.Root.Get("single"))
}

func TestReadContainedAndCollections(t *testing.T) {
	reg := inheritanceRegistry(t)
	res := mustRead(t, reg, "props:Root", `<props:Root xmlns:props="http://properties" xmlns:mi="http://multipleinheritance" props:id="R">
  <props:nonAttrSingle> 42 </props:nonAttrSingle>
  <props:many>23</props:many>
  <props:many>24</props:many>
  <props:root xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xsi:type="mi:MultipleInherited" props:id="C">
    <mi:nonAttrSingle> keep </mi:nonAttrSingle>
    <mi:many>mi-many</mi:many>
  </props:root>
</props:Root>`)

	require.Empty(t, res.Warnings)
	root := res.Root
	assert.Equal(t, int64(42), root.Get("nonAttrSingle"))
	assert.Equal(t, []any{int64(23), int64(24)}, root.Get("many"))

	child, ok := root.Get("root").(*instance.Element)
	require.True(t, ok)
	assert.Equal(t, "mi:MultipleInherited", child.TypeName())
	assert.Same(t, root, child.Parent())
	assert.Equal(t, " keep ", child.Get("nonAttrSingle"))
	assert.Equal(t, []any{"mi-many"}, child.Get("many"))
	assert.Equal(t, []string{"C", "R"}, sortedKeys(res.ElementsByID))
}

func TestReadReferences(t *testing.T) {
	reg := diagramRegistry(t)
	res := mustRead(t, reg, "dg:Definitions", `<dg:definitions xmlns:dg="urn:dg" id="defs">
  <dg:task id="A" next="B" targets="B missing C" priority="2">
    <dg:incoming>C</dg:incoming>
    <dg:incoming>nowhere</dg:incoming>
  </dg:task>
  <dg:node id="B"/>
  <dg:node id="C" next="ghost"/>
</dg:definitions>`)

	assert.Equal(t, []string{"A", "B", "C", "defs"}, sortedKeys(res.ElementsByID))
	a, b, c := res.ElementsByID["A"], res.ElementsByID["B"], res.ElementsByID["C"]
	assert.Equal(t, "dg:Task", a.TypeName())
	assert.Equal(t, int64(2), a.Get("priority"))
	assert.Same(t, b, a.Get("next"))
	assert.Equal(t, []any{b, c}, a.Get("targets"))
	assert.Equal(t, []any{c}, a.Get("incoming"))
	assert.False(t, c.Has("next"))
	assert.Same(t, res.Root, a.Parent())
	assert.Nil(t, b.Parent().Parent())

	require.Equal(t, []string{
		string(xmlerrors.WarnUnresolvedReference),
		string(xmlerrors.WarnUnresolvedReference),
		string(xmlerrors.WarnUnresolvedReference),
	}, res.Warnings.Codes())
	assert.Equal(t, "targets", res.Warnings[0].Attribute)
	assert.Equal(t, "missing", res.Warnings[0].Value)
	assert.Equal(t, 2, res.Warnings[0].Line)
	assert.Equal(t, "nowhere", res.Warnings[1].Value)
	assert.Equal(t, "dg:incoming", res.Warnings[1].Element)

	require.Len(t, res.References, 3)
	assert.Equal(t, "missing", res.References[0].ID)
	assert.Equal(t, 1, res.References[0].Index)
	assert.Same(t, a, res.References[0].Element)
	assert.Equal(t, "nowhere", res.References[1].ID)
	assert.Equal(t, 1, res.References[1].Index)
	assert.Equal(t, "ghost", res.References[2].ID)
	assert.Equal(t, -1, res.References[2].Index)
	assert.Same(t, c, res.References[2].Element)
}

func TestReadDuplicateIDs(t *testing.T) {
	reg := diagramRegistry(t)
	res := mustRead(t, reg, "dg:Definitions", `<dg:definitions xmlns:dg="urn:dg">
  <dg:node id="X" name="first"/>
  <dg:node id="X" name="second"/>
</dg:definitions>`)

	require.Len(t, res.ElementsByID, 1)
	assert.Equal(t, "first", res.ElementsByID["X"].Get("name"))
	assert.Equal(t, []string{string(xmlerrors.WarnDuplicateID)}, res.Warnings.Codes())
	assert.Equal(t, 3, res.Warnings[0].Line)
	assert.Len(t, res.Root.Get("elements"), 2)
}

func TestReadCoercion(t *testing.T) {
	reg := diagramRegistry(t)
	res := mustRead(t, reg, "dg:Definitions", `<dg:definitions xmlns:dg="urn:dg">
  <dg:task id="T" priority="high" weight="1.25" enabled="maybe" tags=" a  b ">
    <dg:count>
      42
    </dg:count>
  </dg:task>
  <dg:node id="N" enabled="1" weight="x"/>
</dg:definitions>`)

	task := res.ElementsByID["T"]
	assert.Equal(t, "high", task.Get("priority"))
	assert.True(t, decimal.RequireFromString("1.25").Equal(task.Get("weight").(decimal.Decimal)))
	assert.Equal(t, "maybe", task.Get("enabled"))
	assert.Equal(t, []any{"a", "b"}, task.Get("tags"))
	assert.Equal(t, int64(42), task.Get("count"))

	node := res.ElementsByID["N"]
	assert.Equal(t, true, node.Get("enabled"))
	assert.Equal(t, "x", node.Get("weight"))

	require.Equal(t, 3, res.Warnings.Count(xmlerrors.WarnCoercion))
	assert.Equal(t, "priority", res.Warnings[0].Attribute)
	assert.Equal(t, "high", res.Warnings[0].Value)
}

func TestReadExtensions(t *testing.T) {
	reg := diagramRegistry(t)
	res := mustRead(t, reg, "dg:Definitions", `<dg:definitions xmlns:dg="urn:dg" xmlns:f="urn:foreign" f:color="red" bogus="1" xml:lang="en">
  <f:meta a="1"><f:inner f:b="2">text</f:inner>  </f:meta>
  <dg:unknown/>
</dg:definitions>`)

	assert.Equal(t, []string{
		string(xmlerrors.WarnUnknownAttribute),
		string(xmlerrors.WarnUnknownElement),
	}, res.Warnings.Codes())
	assert.Equal(t, "bogus", res.Warnings[0].Attribute)

	root := res.Root
	assert.Equal(t, []instance.ExtensionAttr{
		{Name: qname.New("urn:foreign", "color"), Prefix: "f", Value: "red"},
		{Name: qname.New(dgNS, "bogus"), Value: "1"},
		{Name: qname.New("http://www.w3.org/XML/1998/namespace", "lang"), Prefix: "xml", Value: "en"},
	}, root.ExtensionAttrs())

	nodes := root.ExtensionElements()
	require.Len(t, nodes, 2)
	meta := nodes[0]
	assert.Equal(t, qname.New("urn:foreign", "meta"), meta.Name)
	assert.Equal(t, "f", meta.Prefix)
	assert.Equal(t, []instance.ExtensionAttr{{Name: qname.New("", "a"), Value: "1"}}, meta.Attrs)
	require.Len(t, meta.Children, 1)
	inner := meta.Children[0]
	assert.Equal(t, []instance.ExtensionAttr{{Name: qname.New("urn:foreign", "b"), Prefix: "f", Value: "2"}}, inner.Attrs)
	require.Len(t, inner.Children, 1)
	assert.Equal(t, instance.NodeText, inner.Children[0].Kind)
	assert.Equal(t, "text", inner.Children[0].Text)
	assert.Equal(t, qname.New(dgNS, "unknown"), nodes[1].Name)
}

func TestReadXsiTypeAndBody(t *testing.T) {
	reg := diagramRegistry(t)
	res := mustRead(t, reg, "dg:Definitions", `<dg:definitions xmlns:dg="urn:dg" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
  <dg:elements xsi:type="dg:Task" id="T" priority="3">
    <dg:documentation format="md">  Hello &amp; bye </dg:documentation>
  </dg:elements>
  <dg:elements xsi:type="dg:Documentation" id="N"/>
</dg:definitions>`)

	assert.Equal(t, []string{string(xmlerrors.WarnInvalidXsiType)}, res.Warnings.Codes())
	task := res.ElementsByID["T"]
	assert.Equal(t, "dg:Task", task.TypeName())
	assert.Equal(t, int64(3), task.Get("priority"))
	assert.Equal(t, "dg:Node", res.ElementsByID["N"].TypeName())

	docs := task.Get("documentation").([]any)
	require.Len(t, docs, 1)
	doc := docs[0].(*instance.Element)
	assert.Equal(t, "  Hello & bye ", doc.Get("text"))
	assert.Equal(t, "md", doc.Get("format"))
}

func TestReadTypeReferencesAndDefaultNamespace(t *testing.T) {
	reg := diagramRegistry(t)
	res := mustRead(t, reg, "dg:Definitions", `<definitions xmlns="urn:dg" xmlns:x="urn:dg">
  <node id="K" kind="x:Task"/>
  <x:Node id="U" kind="x:Nope"/>
</definitions>`)

	assert.Equal(t, "dg:Task", res.ElementsByID["K"].Get("kind"))
	assert.Equal(t, "x:Nope", res.ElementsByID["U"].Get("kind"))
	assert.Equal(t, []string{string(xmlerrors.WarnUnresolvedTypeRef)}, res.Warnings.Codes())
}

func TestReadDuplicateSingleProperty(t *testing.T) {
	reg := diagramRegistry(t)
	res := mustRead(t, reg, "dg:Node", `<dg:node xmlns:dg="urn:dg" xmlns:d2="urn:dg" id="N" dg:name="a" d2:name="b">
  <dg:count>1</dg:count>
  <dg:count>2</dg:count>
</dg:node>`)

	assert.Equal(t, int64(2), res.Root.Get("count"))
	assert.Equal(t, "b", res.Root.Get("name"))
	assert.Equal(t, 2, res.Warnings.Count(xmlerrors.WarnDuplicateProperty))
}

func TestReadReferenceTypeMismatch(t *testing.T) {
	reg := diagramRegistry(t)
	res := mustRead(t, reg, "dg:Definitions", `<dg:definitions xmlns:dg="urn:dg" id="defs">
  <dg:node id="N" next="defs"/>
</dg:definitions>`)

	assert.False(t, res.ElementsByID["N"].Has("next"))
	assert.Equal(t, []string{string(xmlerrors.WarnReferenceType)}, res.Warnings.Codes())
	assert.Empty(t, res.References)
}

func TestReadFatal(t *testing.T) {
	tests := []struct {
		name string
		root string
		doc  string
		code xmlerrors.ErrorCode
	}{
		{name: "root mismatch", root: "dg:Definitions", doc: `<dg:node xmlns:dg="urn:dg"/>`, code: xmlerrors.ErrRootMismatch},
		{name: "unknown root", root: "dg:Definitions", doc: `<other/>`, code: xmlerrors.ErrRootMismatch},
		{name: "no root", root: "dg:Definitions", doc: `<?xml version="1.0"?>`, code: xmlerrors.ErrNoRoot},
		{name: "malformed", root: "dg:Definitions", doc: `<dg:definitions xmlns:dg="urn:dg"><dg:node></dg:definitions>`, code: xmlerrors.ErrXMLParse},
		{name: "unbound prefix", root: "dg:Definitions", doc: `<zz:definitions/>`, code: xmlerrors.ErrXMLParse},
		{
			name: "element inside simple property",
			root: "dg:Node",
			doc:  `<dg:node xmlns:dg="urn:dg"><dg:count><dg:node/></dg:count></dg:node>`,
			code: xmlerrors.ErrUnconstructable,
		},
		{
			name: "element inside body element",
			root: "dg:Node",
			doc:  `<dg:node xmlns:dg="urn:dg"><dg:documentation><dg:text><b/></dg:text></dg:documentation></dg:node>`,
			code: xmlerrors.ErrUnconstructable,
		},
	}
	reg := diagramRegistry(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := readDoc(t, reg, tt.root, tt.doc)
			require.Error(t, err)
			assert.Nil(t, res)
			fatal, ok := xmlerrors.AsFatal(err)
			require.True(t, ok, "error %v", err)
			assert.Equal(t, string(tt.code), fatal.Code)
		})
	}
}

func TestReadSubtypeRoot(t *testing.T) {
	reg := diagramRegistry(t)
	res := mustRead(t, reg, "dg:Node", `<dg:task xmlns:dg="urn:dg" id="T"/>`)
	assert.Equal(t, "dg:Task", res.Root.TypeName())
}

func TestReadLimits(t *testing.T) {
	reg := diagramRegistry(t)
	typ, err := reg.ResolveType("dg:Definitions")
	require.NoError(t, err)

	doc := `<dg:definitions xmlns:dg="urn:dg"><dg:node id="a"><dg:count>1</dg:count></dg:node></dg:definitions>`
	_, err = Read(context.Background(), reg, strings.NewReader(doc), typ, Options{MaxDepth: 2})
	assert.True(t, xmlerrors.IsCode(err, xmlerrors.ErrLimitExceeded), "%v", err)

	_, err = Read(context.Background(), reg, strings.NewReader(doc), typ, Options{MaxDepth: 3})
	assert.NoError(t, err)

	_, err = Read(context.Background(), reg, strings.NewReader(`<dg:definitions xmlns:dg="urn:dg" id="a" name="b"/>`), typ, Options{MaxAttrs: 1})
	assert.True(t, xmlerrors.IsCode(err, xmlerrors.ErrLimitExceeded), "%v", err)
}

func TestReadCanceled(t *testing.T) {
	reg := diagramRegistry(t)
	typ, err := reg.ResolveType("dg:Definitions")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Read(ctx, reg, strings.NewReader(`<dg:definitions xmlns:dg="urn:dg"/>`), typ, Options{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
}

func TestReadLogsSummary(t *testing.T) {
	reg := diagramRegistry(t)
	typ, err := reg.ResolveType("dg:Definitions")
	require.NoError(t, err)

	var lines []string
	log := funcr.New(func(prefix, args string) {
		lines = append(lines, prefix+" "+args)
	}, funcr.Options{Verbosity: 1})

	_, err = Read(context.Background(), reg, strings.NewReader(`<dg:definitions xmlns:dg="urn:dg" id="d"/>`), typ, Options{Log: log})
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "reader")
	assert.Contains(t, lines[0], `"msg"="read complete"`)
	assert.Contains(t, lines[0], `"ids"=1`)
}

func sortedKeys(m map[string]*instance.Element) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
