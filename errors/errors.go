// Package errors defines the diagnostics produced while mapping XML documents:
// non-fatal warnings collected during a read, and fatal errors that reject it.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode identifies a diagnostic kind.
type ErrorCode string

// Fatal codes. A call that fails with one of these returns no partial result.
const (
	// ErrXMLParse indicates the document could not be tokenized.
	ErrXMLParse ErrorCode = "xml-parse-error"
	// ErrNoRoot indicates the document has no root element.
	ErrNoRoot ErrorCode = "xml-no-root"
	// ErrRootMismatch indicates the root element does not match the expected type.
	ErrRootMismatch ErrorCode = "root-type-mismatch"
	// ErrUnconstructable indicates content that leaves an instance unconstructable,
	// such as a child element inside a simple-valued property.
	ErrUnconstructable ErrorCode = "unconstructable-element"
	// ErrLimitExceeded indicates a configured read limit was exceeded.
	ErrLimitExceeded ErrorCode = "limit-exceeded"
	// ErrModelNotLoaded indicates a read or write was attempted without a model.
	ErrModelNotLoaded ErrorCode = "model-not-loaded"
	// ErrUnknownType indicates a type name that the model does not declare.
	ErrUnknownType ErrorCode = "unknown-type"
	// ErrInvalidValue indicates a value that cannot be serialized for its property.
	ErrInvalidValue ErrorCode = "invalid-value"
)

// Warning codes. Reads that raise them still complete.
const (
	// WarnUnknownAttribute indicates an attribute in a known namespace with no matching property.
	WarnUnknownAttribute ErrorCode = "unknown-attribute"
	// WarnUnknownElement indicates an element in a known namespace with no matching property.
	WarnUnknownElement ErrorCode = "unknown-element"
	// WarnCoercion indicates a lexical value could not be converted; the raw string is kept.
	WarnCoercion ErrorCode = "coercion-failed"
	// WarnDuplicateID indicates an id already registered in this document.
	WarnDuplicateID ErrorCode = "duplicate-id"
	// WarnUnresolvedReference indicates a reference to an id that never appeared.
	WarnUnresolvedReference ErrorCode = "unresolved-reference"
	// WarnReferenceType indicates a reference resolved to an element of an incompatible type.
	WarnReferenceType ErrorCode = "reference-type-mismatch"
	// WarnDuplicateProperty indicates a single-valued property assigned twice; last write wins.
	WarnDuplicateProperty ErrorCode = "duplicate-property"
	// WarnInvalidXsiType indicates an xsi:type that is unknown or not assignable.
	WarnInvalidXsiType ErrorCode = "invalid-xsi-type"
	// WarnUnresolvedTypeRef indicates a type reference value naming no known type.
	WarnUnresolvedTypeRef ErrorCode = "unresolved-type-reference"
)

// Warning is a non-fatal diagnostic with the offending element/attribute context.
type Warning struct {
	Code      string
	Message   string
	Element   string
	Attribute string
	Value     string
	Line      int
	Column    int
}

// NewWarning builds a Warning with a code and message.
func NewWarning(code ErrorCode, msg string) Warning {
	return Warning{Code: string(code), Message: msg}
}

// NewWarningf formats a message and builds a Warning.
func NewWarningf(code ErrorCode, format string, args ...any) Warning {
	return NewWarning(code, fmt.Sprintf(format, args...))
}

// String formats the warning for display, including code, message, and context.
func (w Warning) String() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s", w.Code, w.Message))
	if w.Element != "" {
		b.WriteString(fmt.Sprintf(" at <%s>", w.Element))
	}
	if w.Attribute != "" {
		b.WriteString(fmt.Sprintf(" (attribute: %s)", w.Attribute))
	}
	if w.Line > 0 && w.Column > 0 {
		b.WriteString(fmt.Sprintf(" (line %d, column %d)", w.Line, w.Column))
	}
	return b.String()
}

// WarningList holds warnings in the order they were raised.
type WarningList []Warning

// Codes returns the code of every warning, in order.
func (l WarningList) Codes() []string {
	if len(l) == 0 {
		return nil
	}
	out := make([]string, len(l))
	for i, w := range l {
		out[i] = w.Code
	}
	return out
}

// Count returns the number of warnings with the given code.
func (l WarningList) Count(code ErrorCode) int {
	n := 0
	for _, w := range l {
		if w.Code == string(code) {
			n++
		}
	}
	return n
}

// Err returns the list as an error, or nil when it is empty.
// Callers that treat warnings as failures use it to surface them.
func (l WarningList) Err() error {
	if len(l) == 0 {
		return nil
	}
	return warningsError(l)
}

type warningsError WarningList

func (e warningsError) Error() string {
	switch len(e) {
	case 1:
		return e[0].String()
	default:
		return fmt.Sprintf("%s (and %d more)", e[0].String(), len(e)-1)
	}
}

// Fatal describes an error that rejects a whole read or write call.
//
//nolint:errname // public API name uses the taxonomy term.
type Fatal struct {
	Err     error
	Code    string
	Message string
	Element string
	Line    int
	Column  int
}

// NewFatal builds a Fatal error with a code and message.
func NewFatal(code ErrorCode, msg string) *Fatal {
	return &Fatal{Code: string(code), Message: msg}
}

// NewFatalf formats a message and builds a Fatal error.
func NewFatalf(code ErrorCode, format string, args ...any) *Fatal {
	return NewFatal(code, fmt.Sprintf(format, args...))
}

// WrapFatal builds a Fatal error carrying err as its cause.
func WrapFatal(code ErrorCode, err error) *Fatal {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &Fatal{Code: string(code), Message: msg, Err: err}
}

// Error formats the error for display, including code, message, and context.
func (f *Fatal) Error() string {
	if f == nil {
		return "fatal <nil>"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s", f.Code, f.Message))
	if f.Element != "" {
		b.WriteString(fmt.Sprintf(" at <%s>", f.Element))
	}
	if f.Line > 0 && f.Column > 0 {
		b.WriteString(fmt.Sprintf(" (line %d, column %d)", f.Line, f.Column))
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (f *Fatal) Unwrap() error {
	if f == nil {
		return nil
	}
	return f.Err
}

// AsFatal extracts a Fatal error from err.
func AsFatal(err error) (*Fatal, bool) {
	if err == nil {
		return nil, false
	}
	var fatal *Fatal
	if errors.As(err, &fatal) && fatal != nil {
		return fatal, true
	}
	return nil, false
}

// IsCode reports whether err is a Fatal error with the given code.
func IsCode(err error, code ErrorCode) bool {
	fatal, ok := AsFatal(err)
	return ok && fatal.Code == string(code)
}
