// Package qname holds namespace-qualified names shared by the registry,
// the namespace resolver, the reader and the writer.
package qname

import (
	"cmp"
	"fmt"
	"strings"
)

// QName represents a qualified name with namespace URI and local part.
type QName struct {
	Namespace string
	Local     string
}

// New returns the QName for namespace and local.
func New(namespace, local string) QName {
	return QName{Namespace: namespace, Local: local}
}

// String returns the QName in {namespace}local format, or just local if no namespace.
func (q QName) String() string {
	if q.Namespace == "" {
		return q.Local
	}
	return "{" + q.Namespace + "}" + q.Local
}

// IsZero returns true if the QName is the zero value.
func (q QName) IsZero() bool {
	return q.Namespace == "" && q.Local == ""
}

// Compare orders QNames by namespace, then local name.
func Compare(a, b QName) int {
	if c := cmp.Compare(a.Namespace, b.Namespace); c != 0 {
		return c
	}
	return cmp.Compare(a.Local, b.Local)
}

// Split splits a prefixed name into prefix/local without validation.
func Split(name string) (prefix, local string, hasPrefix bool) {
	prefix, local, hasPrefix = strings.Cut(name, ":")
	if !hasPrefix {
		return "", name, false
	}
	return prefix, local, true
}

// Join builds a prefixed name; an empty prefix yields the bare local name.
func Join(prefix, local string) string {
	if prefix == "" {
		return local
	}
	return prefix + ":" + local
}

// Parse trims and validates a prefixed name, returning prefix/local parts.
func Parse(name string) (prefix, local string, hasPrefix bool, err error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", "", false, fmt.Errorf("empty qname")
	}
	prefix, local, hasPrefix = Split(trimmed)
	if local == "" || strings.ContainsRune(local, ':') || (hasPrefix && prefix == "") {
		return "", "", false, fmt.Errorf("invalid QName '%s'", trimmed)
	}
	if strings.ContainsAny(trimmed, " \t\r\n") {
		return "", "", false, fmt.Errorf("invalid QName '%s'", trimmed)
	}
	return prefix, local, hasPrefix, nil
}
