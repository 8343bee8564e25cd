package etl

import (
	"fmt"
	"strings"
	"time"
)

// ── Transformer ────────────────────────────────────────────
// Transformers modify structured records before they reach the sink.
// They are composable: each takes a record and returns the modified
// record, or an error that aborts the run.

// Transformer processes a single record.
type Transformer interface {
	Transform(Record) (Record, error)
}

// TransformerFunc adapts a plain function to the Transformer interface.
type TransformerFunc func(Record) (Record, error)

func (f TransformerFunc) Transform(r Record) (Record, error) { return f(r) }

// ── Date Key ───────────────────────────────────────────────

// DateKeyField holds the composite calendar date derived from
// year/month/day. It is indexed on in the relational store.
const DateKeyField = "yyyymmdd"

const dateKeyLayout = "20060102"

// DeriveDateKey adds DateKeyField to r. year is required; month and day
// default to "01" and are zero-padded to two digits.
func DeriveDateKey(r Record) (Record, error) {
	year, ok := r.Data["year"]
	if !ok {
		return r, &MissingFieldError{Field: "year"}
	}
	month, day := "01", "01"
	if v, ok := r.Data["month"]; ok {
		month = fmt.Sprint(v)
	}
	if v, ok := r.Data["day"]; ok {
		day = fmt.Sprint(v)
	}

	key := fmt.Sprint(year) + zeroPad(month, 2) + zeroPad(day, 2)
	t, err := time.ParseInLocation(dateKeyLayout, key, time.UTC)
	if err != nil {
		return r, &InvalidDateError{Value: key, Err: err}
	}
	r.Data[DateKeyField] = t
	return r, nil
}

func zeroPad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

// ── Renames ────────────────────────────────────────────────

// CanonicalRenames maps source column names that are awkward as SQL
// identifiers to their canonical names.
var CanonicalRenames = map[string]string{
	"1_year_ago":   "one_year_ago",
	"10_years_ago": "ten_years_ago",
	"decimal":      "date_decimal",
}

// RenameTransform renames fields in a record.
type RenameTransform struct {
	Mapping map[string]string // oldName → newName
}

func (t *RenameTransform) Transform(r Record) (Record, error) {
	for old, to := range t.Mapping {
		v, ok := r.Data[old]
		if !ok {
			continue
		}
		if _, taken := r.Data[to]; taken {
			return r, &FieldCollisionError{Field: to, Reason: fmt.Sprintf("rename target of %q already set", old)}
		}
		r.Data[to] = v
		delete(r.Data, old)
	}
	return r, nil
}

// ── Helpers ────────────────────────────────────────────────

// DefaultTransformers is the fixed chain applied after structuring.
func DefaultTransformers() []Transformer {
	return []Transformer{
		TransformerFunc(DeriveDateKey),
		&RenameTransform{Mapping: CanonicalRenames},
	}
}

// ApplyTransformers runs a chain of transformers on a record.
func ApplyTransformers(r Record, ts []Transformer) (Record, error) {
	for _, t := range ts {
		var err error
		r, err = t.Transform(r)
		if err != nil {
			return r, err
		}
	}
	return r, nil
}

// OutputSchema is the schema of records leaving the transformer chain:
// source fields in descriptor order with renames applied, then the
// date key.
func OutputSchema(d *SchemaDescriptor) *Schema {
	src := d.SourceSchema()
	fields := make([]Field, 0, len(src.Fields)+1)
	for _, f := range src.Fields {
		if renamed, ok := CanonicalRenames[f.Name]; ok {
			f.Name = renamed
		}
		fields = append(fields, f)
	}
	fields = append(fields, Field{Name: DateKeyField, Type: TypeDate})
	return &Schema{Fields: fields}
}
