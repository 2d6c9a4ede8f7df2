// Package prediction holds scored tables and their CSV export.
package prediction

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/aquilu/jacobo/internal/table"
)

// Decimals is the precision of displayed and exported probabilities.
const Decimals = 5

// Result is an immutable scored table.
type Result struct {
	Table *table.Table
	// Scores are the raw model outputs.
	Scores []float64
	// Probabilities are Scores rounded to Decimals.
	Probabilities []float64
	Model         string
	CreatedAt     time.Time

	source *table.Table
}

// New pairs a table with its scores.
func New(t *table.Table, scores []float64, model string, now time.Time) (*Result, error) {
	if t == nil {
		return nil, errors.New("prediction: nil table")
	}
	if len(scores) != t.Len() {
		return nil, fmt.Errorf("prediction: %d scores for %d rows", len(scores), t.Len())
	}
	probs := make([]float64, len(scores))
	for i, s := range scores {
		probs[i] = Round(s)
	}
	return &Result{
		Table:         t.Clone(),
		Scores:        append([]float64(nil), scores...),
		Probabilities: probs,
		Model:         model,
		CreatedAt:     now,
		source:        t,
	}, nil
}

// Source returns the table passed to New, before cloning.
func (r *Result) Source() *table.Table {
	return r.source
}

// Round rounds p to Decimals places, halves away from zero.
func Round(p float64) float64 {
	const scale = 1e5
	return math.Round(p*scale) / scale
}

// FormatProbability renders a rounded probability without trailing zeros.
func FormatProbability(p float64) string {
	return strconv.FormatFloat(Round(p), 'f', -1, 64)
}

// Len returns the number of scored rows.
func (r *Result) Len() int {
	return len(r.Probabilities)
}

// Headers returns the export headers: input headers then Probability.
func (r *Result) Headers() []string {
	return append(append([]string(nil), r.Table.Headers...), table.ProbabilityColumn)
}

// Rows returns the export rows.
func (r *Result) Rows() [][]string {
	rows := make([][]string, len(r.Table.Rows))
	for i, row := range r.Table.Rows {
		out := make([]string, 0, len(row)+1)
		out = append(out, row...)
		rows[i] = append(out, FormatProbability(r.Probabilities[i]))
	}
	return rows
}

// WriteCSV writes the export.
func (r *Result) WriteCSV(w io.Writer) error {
	return table.WriteCSV(w, r.Headers(), r.Rows())
}

// CSV returns the export as bytes.
func (r *Result) CSV() ([]byte, error) {
	var buf bytes.Buffer
	if err := r.WriteCSV(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileName is the suggested download name: predicciones_<model slug>.csv.
func (r *Result) FileName() string {
	return FileName(r.Model)
}

// FileName derives the export file name for a model name.
func FileName(model string) string {
	slug := Slug(model)
	if slug == "" {
		slug = "modelo"
	}
	return "predicciones_" + slug + ".csv"
}

// Slug lower-cases s and joins its words with underscores. Characters that
// are unsafe in a file name are dropped.
func Slug(s string) string {
	var b strings.Builder
	for _, word := range strings.Fields(strings.ToLower(s)) {
		var w strings.Builder
		for _, r := range word {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.' {
				w.WriteRune(r)
			}
		}
		if w.Len() == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('_')
		}
		b.WriteString(w.String())
	}
	return b.String()
}

// ParseCSV reads an export back. The last column must be Probability.
func ParseCSV(r io.Reader) (*table.Table, []float64, error) {
	t, err := table.ParseCSV(r)
	if err != nil {
		return nil, nil, err
	}
	last := len(t.Headers) - 1
	if last < 0 || t.Headers[last] != table.ProbabilityColumn {
		return nil, nil, fmt.Errorf("prediction: missing %s column", table.ProbabilityColumn)
	}
	probs := make([]float64, len(t.Rows))
	rows := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		p, err := strconv.ParseFloat(strings.TrimSpace(row[last]), 64)
		if err != nil {
			return nil, nil, fmt.Errorf("prediction: row %d: %w", i+1, err)
		}
		probs[i] = p
		rows[i] = row[:last]
	}
	out := table.New(t.Headers[:last], rows)
	return out, probs, nil
}
