package table

import (
	"errors"
	"fmt"
	"strings"
)

// MaxManualRows bounds the manual entry form.
const MaxManualRows = 50

var (
	// ErrIncompleteRows is returned when a manual row has a blank field.
	ErrIncompleteRows = errors.New("all rows must be filled in completely")
	// ErrRowCount is returned when the manual row count is out of range.
	ErrRowCount = fmt.Errorf("between 1 and %d rows can be entered", MaxManualRows)
)

// FromManualEntries validates form rows and builds a canonical table.
// No table is produced unless every field of every row is filled in.
func FromManualEntries(entries []Record) (*Table, error) {
	if len(entries) == 0 || len(entries) > MaxManualRows {
		return nil, ErrRowCount
	}
	cleaned := make([]Record, len(entries))
	for i, e := range entries {
		rec := Record{
			Categoria: strings.TrimSpace(e.Categoria),
			Author:    strings.TrimSpace(e.Author),
			Publisher: strings.TrimSpace(e.Publisher),
		}
		if rec.Categoria == "" || rec.Author == "" || rec.Publisher == "" {
			return nil, fmt.Errorf("%w: row %d", ErrIncompleteRows, i+1)
		}
		cleaned[i] = rec
	}
	return FromRecords(cleaned), nil
}
