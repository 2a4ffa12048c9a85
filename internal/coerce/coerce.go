// Package coerce converts between lexical XML values and the Go values held by
// typed elements: int64 for integers, decimal.Decimal for reals, bool for
// booleans and string for strings and type references.
package coerce

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind is the value kind of a property.
type Kind uint8

const (
	KindString Kind = iota
	KindInteger
	KindReal
	KindBoolean
	// KindTypeRef holds a qualified type name.
	KindTypeRef
	// KindComplex holds another element, contained or referenced.
	KindComplex
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindReal:
		return "real"
	case KindBoolean:
		return "boolean"
	case KindTypeRef:
		return "type-reference"
	case KindComplex:
		return "complex-reference"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// IsSimple reports whether values of the kind are carried as text.
func (k Kind) IsSimple() bool {
	return k == KindString || k == KindInteger || k == KindReal || k == KindBoolean
}

// Parse converts a lexical value for a simple kind. Surrounding XML whitespace
// is ignored for every kind except strings.
func Parse(kind Kind, lexical string) (any, error) {
	switch kind {
	case KindString:
		return lexical, nil
	case KindInteger:
		return ParseInteger(lexical)
	case KindReal:
		return ParseReal(lexical)
	case KindBoolean:
		return ParseBoolean(lexical)
	default:
		return nil, fmt.Errorf("cannot parse %s value from text", kind)
	}
}

// ParseInteger parses an integer literal.
func ParseInteger(lexical string) (int64, error) {
	s := trimXMLSpace(lexical)
	s = strings.TrimPrefix(s, "+")
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", lexical)
	}
	return n, nil
}

// ParseReal parses a decimal or exponent literal exactly.
func ParseReal(lexical string) (decimal.Decimal, error) {
	s := trimXMLSpace(lexical)
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("invalid real %q", lexical)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid real %q", lexical)
	}
	return d, nil
}

// ParseBoolean accepts the canonical literals true/false and 1/0.
func ParseBoolean(lexical string) (bool, error) {
	switch trimXMLSpace(lexical) {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", lexical)
	}
}

// Normalize converts a Go value into the canonical representation for kind.
// Strings are accepted for every simple kind and kept verbatim, which is how
// values that failed coercion during a read are preserved.
func Normalize(kind Kind, v any) (any, error) {
	if s, ok := v.(string); ok && (kind.IsSimple() || kind == KindTypeRef) {
		return s, nil
	}
	switch kind {
	case KindInteger:
		if n, ok := toInt64(v); ok {
			return n, nil
		}
	case KindReal:
		switch x := v.(type) {
		case decimal.Decimal:
			return x, nil
		case float64:
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return nil, fmt.Errorf("real value %v is not finite", x)
			}
			return decimal.NewFromFloat(x), nil
		case float32:
			return decimal.NewFromFloat32(x), nil
		}
		if n, ok := toInt64(v); ok {
			return decimal.NewFromInt(n), nil
		}
	case KindBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("cannot use %T as %s value", v, kind)
}

// Format returns the canonical lexical form of a normalized simple value.
func Format(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case decimal.Decimal:
		return x.String(), nil
	case bool:
		return strconv.FormatBool(x), nil
	}
	if n, ok := toInt64(v); ok {
		return strconv.FormatInt(n, 10), nil
	}
	return "", fmt.Errorf("cannot format %T value", v)
}

// Equal compares two normalized simple values.
func Equal(a, b any) bool {
	switch x := a.(type) {
	case decimal.Decimal:
		y, ok := b.(decimal.Decimal)
		return ok && x.Equal(y)
	case string, int64, bool:
		return a == b
	default:
		return false
	}
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint:
		if uint64(x) > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	case uint64:
		if x > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	default:
		return 0, false
	}
}

func trimXMLSpace(s string) string {
	return strings.Trim(s, " \t\r\n")
}
