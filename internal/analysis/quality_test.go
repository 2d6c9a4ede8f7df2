package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquilu/jacobo/internal/table"
)

func TestProfileColumn(t *testing.T) {
	tbl := table.New([]string{"Categoria", "Author"}, [][]string{
		{"Novela", "Allende"},
		{"Novela", ""},
		{"Ensayo", "NULL"},
		{" ", "Paz"},
	})

	p := ProfileColumn(tbl, "Categoria")
	assert.Equal(t, 4, p.TotalRows)
	assert.Equal(t, 1, p.BlankRows)
	assert.InDelta(t, 0.25, p.BlankRate, 1e-9)
	assert.Equal(t, 2, p.DistinctCount)
	assert.Equal(t, "Novela", p.TopValue)
	assert.Equal(t, 2, p.TopCount)
	assert.InDelta(t, 0.9183, p.Entropy, 1e-4)

	a := ProfileColumn(tbl, "Author")
	assert.Equal(t, 2, a.BlankRows)
	assert.Equal(t, 2, a.DistinctCount)
	// tie on count resolves alphabetically
	assert.Equal(t, "Allende", a.TopValue)
}

func TestProfileMissingColumn(t *testing.T) {
	tbl := table.New([]string{"Author"}, [][]string{{"Paz"}, {"Rulfo"}})

	p := ProfileColumn(tbl, "Publisher")
	assert.Equal(t, 2, p.BlankRows)
	assert.Equal(t, 1.0, p.BlankRate)
	assert.Zero(t, p.DistinctCount)
	assert.Zero(t, p.Entropy)
	assert.Empty(t, p.TopValue)
}

func TestProfileFields(t *testing.T) {
	tbl := table.New([]string{"Title", "Publisher", "Author"}, [][]string{{"Rayuela", "Sudamericana", "Cortázar"}})

	profiles := ProfileFields(tbl)
	require.Len(t, profiles, 2)
	assert.Equal(t, "Author", profiles[0].Column)
	assert.Equal(t, "Publisher", profiles[1].Column)
	assert.Nil(t, ProfileFields(nil))
}
