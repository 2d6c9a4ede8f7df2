package analysis

import (
	"math"
	"sort"
	"strings"

	"github.com/aquilu/jacobo/internal/table"
)

// ColumnProfile holds completeness metrics for one input column
type ColumnProfile struct {
	Column        string  `json:"column"`
	TotalRows     int     `json:"total_rows"`
	BlankRows     int     `json:"blank_rows"`
	BlankRate     float64 `json:"blank_rate"`
	DistinctCount int     `json:"distinct_count"`
	Entropy       float64 `json:"entropy"`
	TopValue      string  `json:"top_value,omitempty"`
	TopCount      int     `json:"top_count,omitempty"`
}

func isBlank(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "null", "none", "nan", "n/a":
		return true
	}
	return false
}

// ProfileColumn computes completeness metrics for the named column.
// A column missing from the table counts every row as blank.
func ProfileColumn(t *table.Table, column string) ColumnProfile {
	p := ColumnProfile{Column: column}
	if t == nil {
		return p
	}
	p.TotalRows = t.Len()

	counts := make(map[string]int)
	nonBlank := 0
	for i := range t.Rows {
		v := strings.TrimSpace(t.Value(i, column))
		if isBlank(v) {
			continue
		}
		nonBlank++
		counts[v]++
	}

	p.BlankRows = p.TotalRows - nonBlank
	if p.TotalRows > 0 {
		p.BlankRate = float64(p.BlankRows) / float64(p.TotalRows)
	}
	p.DistinctCount = len(counts)
	p.Entropy = entropy(counts, nonBlank)

	// ties resolve alphabetically so the profile is stable
	values := make([]string, 0, len(counts))
	for v := range counts {
		values = append(values, v)
	}
	sort.Strings(values)
	for _, v := range values {
		if counts[v] > p.TopCount {
			p.TopValue, p.TopCount = v, counts[v]
		}
	}
	return p
}

// ProfileFields profiles every model field present in the table
func ProfileFields(t *table.Table) []ColumnProfile {
	if t == nil {
		return nil
	}
	fields := t.PresentFields()
	profiles := make([]ColumnProfile, len(fields))
	for i, f := range fields {
		profiles[i] = ProfileColumn(t, f)
	}
	return profiles
}

// entropy is the Shannon entropy in bits
func entropy(counts map[string]int, total int) float64 {
	if total == 0 {
		return 0
	}
	h := 0.0
	for _, c := range counts {
		if c > 0 {
			p := float64(c) / float64(total)
			h -= p * math.Log2(p)
		}
	}
	return h
}
