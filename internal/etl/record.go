package etl

// ── Record ─────────────────────────────────────────────────
// Common intermediate data format.
// Line sources feed the structurer, the structurer emits Records,
// sinks and table writers consume Records.

// Field types carried through the pipeline.
const (
	TypeInt    = "int"
	TypeFloat  = "float"
	TypeString = "str"
	TypeDate   = "date"
)

// Field describes a single column in a dataset.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"` // "int" | "float" | "str" | "date"
}

// Schema describes the shape of records for one source.
type Schema struct {
	Fields []Field `json:"fields"`
}

// FieldNames returns an ordered list of field names.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Record is a single row of data flowing through the pipeline.
type Record struct {
	Data map[string]any `json:"data"`
}
