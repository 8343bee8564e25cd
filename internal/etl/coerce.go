package etl

import (
	"fmt"
	"strconv"
	"strings"
)

// ── Coercion Rules ─────────────────────────────────────────
// A closed set of named primitives. Descriptors refer to rules by name and
// the name is resolved through the fixed table below, never evaluated.

// Coercion names a type-coercion rule applied to one raw field value.
type Coercion string

const (
	CoerceInt    Coercion = "int"
	CoerceFloat  Coercion = "float"
	CoerceString Coercion = "str"
)

type coerceFunc func(raw string) (any, error)

var coercions = map[Coercion]coerceFunc{
	CoerceInt: func(raw string) (any, error) {
		return strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	},
	CoerceFloat: func(raw string) (any, error) {
		return strconv.ParseFloat(strings.TrimSpace(raw), 64)
	},
	CoerceString: func(raw string) (any, error) {
		return raw, nil
	},
}

// ParseCoercion resolves a rule name from a descriptor.
func ParseCoercion(name string) (Coercion, error) {
	c := Coercion(strings.TrimSpace(name))
	if _, ok := coercions[c]; !ok {
		return "", fmt.Errorf("unknown coercion rule %q (want int, float or str)", name)
	}
	return c, nil
}

// Apply converts raw into the rule's primitive type.
func (c Coercion) Apply(raw string) (any, error) {
	fn, ok := coercions[c]
	if !ok {
		return nil, fmt.Errorf("unknown coercion rule %q", string(c))
	}
	return fn(raw)
}

// FieldType maps the rule to the schema field type it produces.
func (c Coercion) FieldType() string {
	switch c {
	case CoerceInt:
		return TypeInt
	case CoerceFloat:
		return TypeFloat
	default:
		return TypeString
	}
}
