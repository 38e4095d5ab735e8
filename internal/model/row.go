package model

// Required sheet columns besides the record fields.
const (
	ColumnNotes    = "Notes"
	ColumnSource   = "Source"
	ColumnVerifier = "Verifier"
	ColumnError    = "Error"
)

// VerifierLLM marks a row fully filled by the pipeline.
const VerifierLLM = "LLM"

// RequiredColumns must all be present in the sheet header.
var RequiredColumns = []string{ColumnNotes, ColumnSource, ColumnVerifier, ColumnError}

// Row is one spreadsheet row keyed by header name. ID is the 1-based data
// row index (header excluded).
type Row struct {
	ID    int               `json:"id"`
	Cells map[string]string `json:"cells"`
}

// Cell returns the value for column, or "".
func (r Row) Cell(column string) string {
	if r.Cells == nil {
		return ""
	}
	return r.Cells[column]
}
