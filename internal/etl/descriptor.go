package etl

import (
	"fmt"
	"sort"
	"strings"
)

// FieldRule pairs a field name with its coercion rule.
type FieldRule struct {
	Name string
	Rule Coercion
}

// SchemaDescriptor is the declarative per-source configuration: where the
// raw data lives, the ordered fields and how to coerce them, and which
// lines to ignore. Field order equals column order in the input.
// A descriptor is read-only once loaded.
type SchemaDescriptor struct {
	Name         string
	Location     string
	Fields       []FieldRule
	IgnoreSymbol string
	Table        string
}

// HeaderLine is the header text expected in the raw file, compared after
// replacing spaces with underscores.
func (d *SchemaDescriptor) HeaderLine() string {
	names := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		names[i] = f.Name
	}
	return strings.Join(names, ",")
}

// SourceSchema is the schema of structured records before date-key
// derivation and renames.
func (d *SchemaDescriptor) SourceSchema() *Schema {
	fields := make([]Field, len(d.Fields))
	for i, f := range d.Fields {
		fields[i] = Field{Name: f.Name, Type: f.Rule.FieldType()}
	}
	return &Schema{Fields: fields}
}

// TableName returns the relational table the source is loaded into.
func (d *SchemaDescriptor) TableName() string {
	if d.Table != "" {
		return d.Table
	}
	return d.Name
}

// CheckFields rejects field names that collide with the derived date key
// or with the rename target of another field.
func (d *SchemaDescriptor) CheckFields() error {
	names := make(map[string]bool, len(d.Fields))
	for _, f := range d.Fields {
		names[f.Name] = true
	}
	if names[DateKeyField] {
		return &FieldCollisionError{Field: DateKeyField, Reason: "reserved for the derived date key"}
	}

	sources := make([]string, 0, len(CanonicalRenames))
	for from := range CanonicalRenames {
		sources = append(sources, from)
	}
	sort.Strings(sources)
	for _, from := range sources {
		to := CanonicalRenames[from]
		if names[from] && names[to] {
			return &FieldCollisionError{Field: to, Reason: fmt.Sprintf("also the rename target of %q", from)}
		}
	}
	return nil
}
