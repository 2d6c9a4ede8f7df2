package table

import "strings"

// Canonical field names expected by the prediction model.
const (
	FieldCategoria = "Categoria"
	FieldAuthor    = "Author"
	FieldPublisher = "Publisher"
)

// ProbabilityColumn is appended to exported prediction tables.
const ProbabilityColumn = "Probability"

// CanonicalFields returns the model fields in their fixed order.
func CanonicalFields() []string {
	return []string{FieldCategoria, FieldAuthor, FieldPublisher}
}

// IsCanonical reports whether name is exactly one of the canonical fields.
func IsCanonical(name string) bool {
	switch name {
	case FieldCategoria, FieldAuthor, FieldPublisher:
		return true
	}
	return false
}

// Record is one book as seen by the model.
type Record struct {
	Categoria string `json:"Categoria"`
	Author    string `json:"Author"`
	Publisher string `json:"Publisher"`
}

// Field returns the value stored under a canonical field name.
func (r Record) Field(name string) string {
	switch name {
	case FieldCategoria:
		return r.Categoria
	case FieldAuthor:
		return r.Author
	case FieldPublisher:
		return r.Publisher
	}
	return ""
}

// Table represents a loaded input table with its headers and rows.
// Every row has exactly len(Headers) cells.
type Table struct {
	Headers  []string
	Rows     [][]string
	FileName string
}

// New builds a table, padding or truncating rows to the header width.
func New(headers []string, rows [][]string) *Table {
	t := &Table{
		Headers: append([]string(nil), headers...),
		Rows:    make([][]string, 0, len(rows)),
	}
	for _, row := range rows {
		t.Rows = append(t.Rows, fitRow(row, len(headers)))
	}
	return t
}

// FromRecords builds a table holding exactly the three canonical columns.
func FromRecords(records []Record) *Table {
	rows := make([][]string, len(records))
	for i, rec := range records {
		rows[i] = []string{rec.Categoria, rec.Author, rec.Publisher}
	}
	return New(CanonicalFields(), rows)
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Clone returns a deep copy so callers can rename or mutate safely.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	out := New(t.Headers, t.Rows)
	out.FileName = t.FileName
	return out
}

// ColumnIndex returns the index of the last header equal to name, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i := len(t.Headers) - 1; i >= 0; i-- {
		if t.Headers[i] == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether a header equal to name exists.
func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// PresentFields lists the canonical fields present among the headers.
func (t *Table) PresentFields() []string {
	var out []string
	for _, f := range CanonicalFields() {
		if t.HasColumn(f) {
			out = append(out, f)
		}
	}
	return out
}

// Value returns the cell of the given row under column name, or "".
func (t *Table) Value(row int, name string) string {
	if row < 0 || row >= len(t.Rows) {
		return ""
	}
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return ""
	}
	return t.Rows[row][idx]
}

// Records extracts the typed model input. Absent canonical columns
// produce empty values.
func (t *Table) Records() []Record {
	if t == nil {
		return nil
	}
	cat := t.ColumnIndex(FieldCategoria)
	auth := t.ColumnIndex(FieldAuthor)
	pub := t.ColumnIndex(FieldPublisher)
	out := make([]Record, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = Record{
			Categoria: cell(row, cat),
			Author:    cell(row, auth),
			Publisher: cell(row, pub),
		}
	}
	return out
}

// Head returns a copy limited to the first n rows.
func (t *Table) Head(n int) *Table {
	if n < 0 || n > len(t.Rows) {
		n = len(t.Rows)
	}
	out := New(t.Headers, t.Rows[:n])
	out.FileName = t.FileName
	return out
}

// Maps converts rows into header-keyed maps for JSON previews.
func (t *Table) Maps() []map[string]string {
	data := make([]map[string]string, len(t.Rows))
	for i, row := range t.Rows {
		m := make(map[string]string, len(t.Headers))
		for j, h := range t.Headers {
			m[h] = row[j]
		}
		data[i] = m
	}
	return data
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func fitRow(row []string, width int) []string {
	out := make([]string, width)
	copy(out, row)
	return out
}

func isBlankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
