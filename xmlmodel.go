// Package xmlmodel maps namespaced XML documents to typed object graphs and
// back, driven by meta-model packages that declare types, properties and
// their XML serialization.
//
// A Model is built once from its packages and is safe for concurrent use:
// every Read and Write call keeps its own state.
package xmlmodel

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-logr/logr"

	xmlerrors "github.com/jacoelho/xmlmodel/errors"
	"github.com/jacoelho/xmlmodel/internal/instance"
	"github.com/jacoelho/xmlmodel/internal/reader"
	"github.com/jacoelho/xmlmodel/internal/registry"
	"github.com/jacoelho/xmlmodel/internal/writer"
	"github.com/jacoelho/xmlmodel/pkg/metamodel"
)

type (
	// Element is one typed instance in an object graph.
	Element = instance.Element
	// ExtensionAttr is an attribute outside every known namespace, kept verbatim.
	ExtensionAttr = instance.ExtensionAttr
	// Node is an element subtree outside every known namespace, kept verbatim.
	Node = instance.Node
	// Type is a resolved meta-model type.
	Type = registry.Type
	// Property is a resolved meta-model property.
	Property = registry.Property
	// Reference is a reference that no element in the document satisfied.
	Reference = reader.Reference
	// ReadResult is the outcome of a successful Read.
	ReadResult = reader.Result
)

// Model is a compiled set of meta-model packages.
type Model struct {
	reg *registry.Registry
	log logr.Logger
}

// New compiles meta-model packages into a Model. Every problem found in the
// packages is reported in the returned error.
func New(pkgs []metamodel.Package, opts ...Option) (*Model, error) {
	cfg := applyOptions(opts)
	reg, err := registry.New(pkgs)
	if err != nil {
		return nil, fmt.Errorf("compile model: %w", err)
	}
	m := &Model{reg: reg, log: cfg.log.WithName("xmlmodel")}
	m.log.V(1).Info("model compiled", "packages", len(pkgs))
	return m, nil
}

// Load reads meta-model packages from fsys and compiles them.
func Load(fsys fs.FS, names []string, opts ...Option) (*Model, error) {
	if fsys == nil {
		return nil, fmt.Errorf("load model: nil fs")
	}
	pkgs, err := metamodel.LoadAll(fsys, names...)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", strings.Join(names, ", "), err)
	}
	return New(pkgs, opts...)
}

// LoadFiles reads meta-model packages from file paths and compiles them.
func LoadFiles(paths []string, opts ...Option) (*Model, error) {
	pkgs := make([]metamodel.Package, 0, len(paths))
	for _, path := range paths {
		pkg, err := metamodel.Load(os.DirFS(filepath.Dir(path)), filepath.Base(path))
		if err != nil {
			return nil, fmt.Errorf("load model %s: %w", path, err)
		}
		pkgs = append(pkgs, pkg)
	}
	return New(pkgs, opts...)
}

// Type resolves a prefixed type name such as "props:Root".
func (m *Model) Type(name string) (*Type, error) {
	if m == nil || m.reg == nil {
		return nil, xmlerrors.NewFatal(xmlerrors.ErrModelNotLoaded, "model not loaded")
	}
	t, err := m.reg.ResolveType(name)
	if err != nil {
		return nil, xmlerrors.WrapFatal(xmlerrors.ErrUnknownType, err)
	}
	return t, nil
}

// Create builds an element of the named type and assigns props by display
// name. Properties are assigned in sorted key order.
func (m *Model) Create(typeName string, props map[string]any) (*Element, error) {
	t, err := m.Type(typeName)
	if err != nil {
		return nil, err
	}
	el := instance.New(t)
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if err := el.Set(k, props[k]); err != nil {
			return nil, xmlerrors.WrapFatal(xmlerrors.ErrInvalidValue, fmt.Errorf("create %s: %w", typeName, err))
		}
	}
	return el, nil
}

// Read parses one document and builds an instance of rootType or one of its
// subtypes. Non-fatal problems are returned as warnings in the result; fatal
// ones are returned as *errors.Fatal with no partial result.
func (m *Model) Read(ctx context.Context, r io.Reader, rootType string, opts ReadOptions) (*ReadResult, error) {
	if m == nil || m.reg == nil {
		return nil, xmlerrors.NewFatal(xmlerrors.ErrModelNotLoaded, "model not loaded")
	}
	if r == nil {
		return nil, xmlerrors.NewFatal(xmlerrors.ErrXMLParse, "nil reader")
	}
	resolved, err := opts.withDefaults()
	if err != nil {
		return nil, fmt.Errorf("read options: %w", err)
	}
	t, err := m.Type(rootType)
	if err != nil {
		return nil, err
	}
	return reader.Read(ctx, m.reg, r, t, resolved.limits.options(m.log))
}

// ReadString reads a document held in a string.
func (m *Model) ReadString(ctx context.Context, doc, rootType string, opts ReadOptions) (*ReadResult, error) {
	return m.Read(ctx, strings.NewReader(doc), rootType, opts)
}

// ReadFile reads a document from a file path.
func (m *Model) ReadFile(ctx context.Context, path, rootType string, opts ReadOptions) (res *ReadResult, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open xml file %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close xml file %s: %w", path, closeErr)
		}
	}()

	return m.Read(ctx, f, rootType, opts)
}

// Write serializes el and returns the document.
func (m *Model) Write(el *Element, opts WriteOptions) (string, error) {
	var buf bytes.Buffer
	if err := m.WriteTo(&buf, el, opts); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// WriteTo serializes el to w.
func (m *Model) WriteTo(w io.Writer, el *Element, opts WriteOptions) error {
	if m == nil || m.reg == nil {
		return xmlerrors.NewFatal(xmlerrors.ErrModelNotLoaded, "model not loaded")
	}
	resolved, err := opts.withDefaults()
	if err != nil {
		return fmt.Errorf("write options: %w", err)
	}
	if err := writer.Write(w, m.reg, el, resolved.writer); err != nil {
		return err
	}
	m.log.V(1).Info("write complete", "root", el.TypeName())
	return nil
}
