package metamodel

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/buger/jsonparser"
	"gopkg.in/yaml.v3"
)

// Load reads and parses a package descriptor from fsys.
// The format is chosen by extension: .json, .yaml or .yml.
func Load(fsys fs.FS, name string) (Package, error) {
	if fsys == nil {
		return Package{}, fmt.Errorf("load package %s: nil fs", name)
	}
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return Package{}, fmt.Errorf("load package %s: %w", name, err)
	}
	var pkg Package
	switch strings.ToLower(path.Ext(name)) {
	case ".json":
		pkg, err = ParseJSON(data)
	case ".yaml", ".yml":
		pkg, err = ParseYAML(data)
	default:
		return Package{}, fmt.Errorf("load package %s: unsupported descriptor format", name)
	}
	if err != nil {
		return Package{}, fmt.Errorf("load package %s: %w", name, err)
	}
	return pkg, nil
}

// LoadAll loads every named package descriptor from fsys, in order.
func LoadAll(fsys fs.FS, names ...string) ([]Package, error) {
	pkgs := make([]Package, 0, len(names))
	for _, name := range names {
		pkg, err := Load(fsys, name)
		if err != nil {
			return nil, err
		}
		pkgs = append(pkgs, pkg)
	}
	return pkgs, nil
}

// ParseJSON parses a JSON package descriptor.
func ParseJSON(data []byte) (Package, error) {
	var pkg Package
	var err error
	if pkg.Name, err = optionalString(data, "name"); err != nil {
		return Package{}, err
	}
	if pkg.Prefix, err = optionalString(data, "prefix"); err != nil {
		return Package{}, err
	}
	if pkg.URI, err = optionalString(data, "uri"); err != nil {
		return Package{}, err
	}
	if pkg.TagAlias, err = optionalString(data, "xml", "tagAlias"); err != nil {
		return Package{}, err
	}

	var typeErr error
	_, err = jsonparser.ArrayEach(data, func(value []byte, dataType jsonparser.ValueType, _ int, _ error) {
		if typeErr != nil {
			return
		}
		if dataType != jsonparser.Object {
			typeErr = fmt.Errorf("types: expected object, got %s", dataType)
			return
		}
		t, err := parseJSONType(value)
		if err != nil {
			typeErr = err
			return
		}
		pkg.Types = append(pkg.Types, t)
	}, "types")
	if err != nil && !errors.Is(err, jsonparser.KeyPathNotFoundError) {
		return Package{}, fmt.Errorf("parse types: %w", err)
	}
	if typeErr != nil {
		return Package{}, typeErr
	}
	return pkg, validateHeader(pkg)
}

func parseJSONType(data []byte) (Type, error) {
	var t Type
	var err error
	if t.Name, err = optionalString(data, "name"); err != nil {
		return Type{}, err
	}
	if t.IsAbstract, err = optionalBool(data, "isAbstract"); err != nil {
		return Type{}, fmt.Errorf("type %s: %w", t.Name, err)
	}
	if t.SuperClass, err = stringArray(data, "superClass"); err != nil {
		return Type{}, fmt.Errorf("type %s: %w", t.Name, err)
	}

	var propErr error
	_, err = jsonparser.ArrayEach(data, func(value []byte, dataType jsonparser.ValueType, _ int, _ error) {
		if propErr != nil {
			return
		}
		if dataType != jsonparser.Object {
			propErr = fmt.Errorf("type %s: properties: expected object, got %s", t.Name, dataType)
			return
		}
		p, err := parseJSONProperty(value)
		if err != nil {
			propErr = fmt.Errorf("type %s: %w", t.Name, err)
			return
		}
		t.Properties = append(t.Properties, p)
	}, "properties")
	if err != nil && !errors.Is(err, jsonparser.KeyPathNotFoundError) {
		return Type{}, fmt.Errorf("type %s: parse properties: %w", t.Name, err)
	}
	if propErr != nil {
		return Type{}, propErr
	}
	return t, nil
}

func parseJSONProperty(data []byte) (Property, error) {
	var p Property
	var err error
	if p.Name, err = optionalString(data, "name"); err != nil {
		return Property{}, err
	}
	if p.Type, err = optionalString(data, "type"); err != nil {
		return Property{}, fmt.Errorf("property %s: %w", p.Name, err)
	}
	flags := []struct {
		key string
		dst *bool
	}{
		{"isAttr", &p.IsAttr},
		{"isMany", &p.IsMany},
		{"isReference", &p.IsReference},
		{"isBody", &p.IsBody},
		{"isId", &p.IsID},
	}
	for _, f := range flags {
		if *f.dst, err = optionalBool(data, f.key); err != nil {
			return Property{}, fmt.Errorf("property %s: %w", p.Name, err)
		}
	}

	value, dataType, _, err := jsonparser.Get(data, "default")
	switch {
	case errors.Is(err, jsonparser.KeyPathNotFoundError):
	case err != nil:
		return Property{}, fmt.Errorf("property %s: default: %w", p.Name, err)
	case dataType == jsonparser.String:
		s, err := jsonparser.ParseString(value)
		if err != nil {
			return Property{}, fmt.Errorf("property %s: default: %w", p.Name, err)
		}
		p = p.WithDefault(s)
	case dataType == jsonparser.Number, dataType == jsonparser.Boolean:
		p = p.WithDefault(string(value))
	case dataType == jsonparser.Null:
	default:
		return Property{}, fmt.Errorf("property %s: default: unsupported %s value", p.Name, dataType)
	}
	return p, nil
}

func optionalString(data []byte, keys ...string) (string, error) {
	s, err := jsonparser.GetString(data, keys...)
	if errors.Is(err, jsonparser.KeyPathNotFoundError) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", strings.Join(keys, "."), err)
	}
	return s, nil
}

func optionalBool(data []byte, key string) (bool, error) {
	b, err := jsonparser.GetBoolean(data, key)
	if errors.Is(err, jsonparser.KeyPathNotFoundError) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func stringArray(data []byte, key string) ([]string, error) {
	var out []string
	var itemErr error
	_, err := jsonparser.ArrayEach(data, func(value []byte, dataType jsonparser.ValueType, _ int, _ error) {
		if itemErr != nil {
			return
		}
		if dataType != jsonparser.String {
			itemErr = fmt.Errorf("%s: expected string, got %s", key, dataType)
			return
		}
		s, err := jsonparser.ParseString(value)
		if err != nil {
			itemErr = fmt.Errorf("%s: %w", key, err)
			return
		}
		out = append(out, s)
	}, key)
	if err != nil && !errors.Is(err, jsonparser.KeyPathNotFoundError) {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return out, itemErr
}

type yamlPackage struct {
	Name   string     `yaml:"name"`
	Prefix string     `yaml:"prefix"`
	URI    string     `yaml:"uri"`
	XML    yamlXML    `yaml:"xml"`
	Types  []yamlType `yaml:"types"`
}

type yamlXML struct {
	TagAlias string `yaml:"tagAlias"`
}

type yamlType struct {
	Name       string         `yaml:"name"`
	SuperClass []string       `yaml:"superClass"`
	IsAbstract bool           `yaml:"isAbstract"`
	Properties []yamlProperty `yaml:"properties"`
}

type yamlProperty struct {
	Default     *yaml.Node `yaml:"default"`
	Name        string     `yaml:"name"`
	Type        string     `yaml:"type"`
	IsAttr      bool       `yaml:"isAttr"`
	IsMany      bool       `yaml:"isMany"`
	IsReference bool       `yaml:"isReference"`
	IsBody      bool       `yaml:"isBody"`
	IsID        bool       `yaml:"isId"`
}

// ParseYAML parses a YAML package descriptor. It uses the same keys as the
// JSON form.
func ParseYAML(data []byte) (Package, error) {
	var raw yamlPackage
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Package{}, fmt.Errorf("parse package YAML: %w", err)
	}
	pkg := Package{
		Name:     raw.Name,
		Prefix:   raw.Prefix,
		URI:      raw.URI,
		TagAlias: raw.XML.TagAlias,
		Types:    make([]Type, 0, len(raw.Types)),
	}
	for _, rt := range raw.Types {
		t := Type{
			Name:       rt.Name,
			SuperClass: rt.SuperClass,
			IsAbstract: rt.IsAbstract,
			Properties: make([]Property, 0, len(rt.Properties)),
		}
		for _, rp := range rt.Properties {
			p := Property{
				Name:        rp.Name,
				Type:        rp.Type,
				IsAttr:      rp.IsAttr,
				IsMany:      rp.IsMany,
				IsReference: rp.IsReference,
				IsBody:      rp.IsBody,
				IsID:        rp.IsID,
			}
			if rp.Default != nil && rp.Default.Tag != "!!null" {
				if rp.Default.Kind != yaml.ScalarNode {
					return Package{}, fmt.Errorf("type %s: property %s: default must be a scalar", rt.Name, rp.Name)
				}
				p = p.WithDefault(rp.Default.Value)
			}
			t.Properties = append(t.Properties, p)
		}
		pkg.Types = append(pkg.Types, t)
	}
	return pkg, validateHeader(pkg)
}

func validateHeader(pkg Package) error {
	if pkg.Prefix == "" {
		return fmt.Errorf("package %q: missing prefix", pkg.Name)
	}
	if pkg.URI == "" {
		return fmt.Errorf("package %q: missing uri", pkg.Name)
	}
	if pkg.TagAlias != "" && pkg.TagAlias != TagAliasLowerCase {
		return fmt.Errorf("package %q: unsupported tag alias %q", pkg.Name, pkg.TagAlias)
	}
	return nil
}
