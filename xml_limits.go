package xmlmodel

import (
	"cmp"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/jacoelho/xmlmodel/internal/reader"
)

const (
	defaultXMLMaxDepth = 256
	defaultXMLMaxAttrs = 256
)

type xmlReadLimits struct {
	maxDepth int
	maxAttrs int
}

func resolveXMLReadLimits(maxDepth, maxAttrs int) (xmlReadLimits, error) {
	if maxDepth < 0 {
		return xmlReadLimits{}, fmt.Errorf("xml max depth must be >= 0")
	}
	if maxAttrs < 0 {
		return xmlReadLimits{}, fmt.Errorf("xml max attrs must be >= 0")
	}
	return xmlReadLimits{
		maxDepth: defaultXMLLimit(maxDepth, defaultXMLMaxDepth),
		maxAttrs: defaultXMLLimit(maxAttrs, defaultXMLMaxAttrs),
	}, nil
}

func (l xmlReadLimits) options(log logr.Logger) reader.Options {
	return reader.Options{
		Log:      log,
		MaxDepth: defaultXMLLimit(l.maxDepth, defaultXMLMaxDepth),
		MaxAttrs: defaultXMLLimit(l.maxAttrs, defaultXMLMaxAttrs),
	}
}

func defaultXMLLimit(value, fallback int) int {
	return cmp.Or(value, fallback)
}
