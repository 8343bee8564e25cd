package etl

import (
	"errors"
	"fmt"
)

// ErrUnknownSource is returned when no line source handles a location.
var ErrUnknownSource = errors.New("unknown source")

// RowShapeError reports a line whose value count differs from the schema.
type RowShapeError struct {
	Line string
	Want int
	Got  int
}

func (e *RowShapeError) Error() string {
	return fmt.Sprintf("row shape: want %d values, got %d in %q", e.Want, e.Got, e.Line)
}

// CoercionError reports a raw value that cannot be converted to the
// field's declared primitive.
type CoercionError struct {
	Field string
	Index int
	Value string
	Rule  Coercion
	Err   error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("coerce field %q (index %d) value %q as %s: %v", e.Field, e.Index, e.Value, e.Rule, e.Err)
}

func (e *CoercionError) Unwrap() error { return e.Err }

// MissingFieldError reports a record without a field required for
// date-key derivation.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing field %q", e.Field)
}

// InvalidDateError reports a composite YYYYMMDD value that is not a
// calendar date.
type InvalidDateError struct {
	Value string
	Err   error
}

func (e *InvalidDateError) Error() string {
	return fmt.Sprintf("invalid date %q: %v", e.Value, e.Err)
}

func (e *InvalidDateError) Unwrap() error { return e.Err }

// FieldCollisionError reports a field name that would overwrite another
// output column.
type FieldCollisionError struct {
	Field  string
	Reason string
}

func (e *FieldCollisionError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}
