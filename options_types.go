package xmlmodel

import "github.com/jacoelho/xmlmodel/internal/writer"

type intOption struct {
	value int
	set   bool
}

func (o intOption) resolved() int {
	if !o.set {
		return 0
	}
	return o.value
}

// ReadOptions configures document reads.
type ReadOptions struct {
	maxDepth intOption
	maxAttrs intOption
}

// WriteOptions configures document writes.
type WriteOptions struct {
	xmlDeclaration bool
}

type resolvedReadOptions struct {
	limits xmlReadLimits
}

type resolvedWriteOptions struct {
	writer writer.Options
}
