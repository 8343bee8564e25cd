package app

// SourceView is the listing view of one schema descriptor.
type SourceView struct {
	Name      string   `json:"name"`
	Location  string   `json:"location"`
	Table     string   `json:"table"`
	Columns   []string `json:"columns"`
	Scheduled bool     `json:"scheduled"`
}
