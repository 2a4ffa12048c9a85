package xmlmodel

import "github.com/jacoelho/xmlmodel/internal/writer"

// NewReadOptions returns a default, valid read options value.
func NewReadOptions() ReadOptions {
	return ReadOptions{}
}

// NewWriteOptions returns a default, valid write options value.
func NewWriteOptions() WriteOptions {
	return WriteOptions{}
}

// Validate validates read options values.
func (o ReadOptions) Validate() error {
	_, err := o.withDefaults()
	return err
}

// Validate validates write options values.
func (o WriteOptions) Validate() error {
	_, err := o.withDefaults()
	return err
}

// WithMaxDepth sets the maximum element nesting depth (0 uses default).
func (o ReadOptions) WithMaxDepth(value int) ReadOptions {
	o.maxDepth = intOption{value: value, set: true}
	return o
}

// WithMaxAttrs sets the maximum number of attributes per element (0 uses default).
func (o ReadOptions) WithMaxAttrs(value int) ReadOptions {
	o.maxAttrs = intOption{value: value, set: true}
	return o
}

// WithXMLDeclaration controls whether an XML declaration precedes the root element.
func (o WriteOptions) WithXMLDeclaration(value bool) WriteOptions {
	o.xmlDeclaration = value
	return o
}

func (o ReadOptions) withDefaults() (resolvedReadOptions, error) {
	limits, err := resolveXMLReadLimits(o.maxDepth.resolved(), o.maxAttrs.resolved())
	if err != nil {
		return resolvedReadOptions{}, err
	}
	return resolvedReadOptions{limits: limits}, nil
}

func (o WriteOptions) withDefaults() (resolvedWriteOptions, error) {
	return resolvedWriteOptions{
		writer: writer.Options{XMLDeclaration: o.xmlDeclaration},
	}, nil
}
