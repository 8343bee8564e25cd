package etl

import "strings"

// ── Line Filter ────────────────────────────────────────────
// Drops comment lines and the literal header line. Stateless per line,
// so any split of the input can be filtered independently.

// LineFilter decides which raw lines reach the structurer.
type LineFilter struct {
	IgnoreSymbol string
	HeaderLine   string
}

// NewLineFilter builds the filter for a descriptor.
func NewLineFilter(d *SchemaDescriptor) LineFilter {
	return LineFilter{IgnoreSymbol: d.IgnoreSymbol, HeaderLine: d.HeaderLine()}
}

// Keep reports whether line passes the filter.
func (f LineFilter) Keep(line string) bool {
	if f.IgnoreSymbol != "" && strings.HasPrefix(line, f.IgnoreSymbol) {
		return false
	}
	return strings.ReplaceAll(line, " ", "_") != f.HeaderLine
}

// ── Row Structurer ─────────────────────────────────────────
// Positional parsing: value i is coerced with the rule of field i.

const fieldDelimiter = ","

// RowStructurer turns filtered lines into typed records.
type RowStructurer struct {
	fields []FieldRule
}

// NewRowStructurer builds a structurer for a descriptor.
func NewRowStructurer(d *SchemaDescriptor) *RowStructurer {
	return &RowStructurer{fields: d.Fields}
}

// Structure splits line and coerces every value. A value count that does
// not match the schema is a RowShapeError; an unconvertible value is a
// CoercionError.
func (s *RowStructurer) Structure(line string) (Record, error) {
	values := strings.Split(line, fieldDelimiter)
	if len(values) != len(s.fields) {
		return Record{}, &RowShapeError{Line: line, Want: len(s.fields), Got: len(values)}
	}

	// One extra slot for the derived date key.
	data := make(map[string]any, len(s.fields)+1)
	for i, f := range s.fields {
		v, err := f.Rule.Apply(values[i])
		if err != nil {
			return Record{}, &CoercionError{Field: f.Name, Index: i, Value: values[i], Rule: f.Rule, Err: err}
		}
		data[f.Name] = v
	}
	return Record{Data: data}, nil
}

// ProcessPartition runs filter → structure → date key → renames over one
// self-contained chunk of raw lines. The first error aborts the chunk and
// no records are returned for it.
func ProcessPartition(d *SchemaDescriptor, lines []string) ([]Record, error) {
	if err := d.CheckFields(); err != nil {
		return nil, err
	}
	filter := NewLineFilter(d)
	structurer := NewRowStructurer(d)
	transformers := DefaultTransformers()

	records := make([]Record, 0, len(lines))
	for _, line := range lines {
		if !filter.Keep(line) {
			continue
		}
		rec, err := structurer.Structure(line)
		if err != nil {
			return nil, err
		}
		rec, err = ApplyTransformers(rec, transformers)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
