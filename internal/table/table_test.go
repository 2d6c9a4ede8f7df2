package table

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordsWithMissingColumns(t *testing.T) {
	tbl := New([]string{"ISBN", "Author", "Categoria"}, [][]string{
		{"978-1", "Borges", "Cuento"},
		{"978-2", "Cortázar"},
	})

	assert.Equal(t, []string{"Categoria", "Author"}, tbl.PresentFields())
	assert.Equal(t, []Record{
		{Categoria: "Cuento", Author: "Borges"},
		{Author: "Cortázar"},
	}, tbl.Records())
}

func TestCloneIsDeep(t *testing.T) {
	tbl := New([]string{"Author"}, [][]string{{"Borges"}})
	tbl.FileName = "a.csv"
	cp := tbl.Clone()
	cp.Headers[0] = "Autor"
	cp.Rows[0][0] = "Sabato"

	assert.Equal(t, "Author", tbl.Headers[0])
	assert.Equal(t, "Borges", tbl.Rows[0][0])
	assert.Equal(t, "a.csv", cp.FileName)
}

func TestHeadAndMaps(t *testing.T) {
	tbl := FromRecords([]Record{
		{Categoria: "A", Author: "B", Publisher: "C"},
		{Categoria: "D", Author: "E", Publisher: "F"},
	})
	head := tbl.Head(1)
	require.Equal(t, 1, head.Len())
	assert.Equal(t, []map[string]string{{"Categoria": "A", "Author": "B", "Publisher": "C"}}, head.Maps())
	assert.Equal(t, 2, tbl.Head(10).Len())
}

func TestFromManualEntries(t *testing.T) {
	tbl, err := FromManualEntries([]Record{{Categoria: " Ficción ", Author: "García Márquez", Publisher: "Planeta"}})
	require.NoError(t, err)
	assert.Equal(t, CanonicalFields(), tbl.Headers)
	assert.Equal(t, [][]string{{"Ficción", "García Márquez", "Planeta"}}, tbl.Rows)
}

func TestFromManualEntriesRejectsIncompleteRows(t *testing.T) {
	_, err := FromManualEntries([]Record{
		{Categoria: "Ficción", Author: "A", Publisher: "B"},
		{Categoria: "Ficción", Author: "   ", Publisher: "B"},
	})
	assert.ErrorIs(t, err, ErrIncompleteRows)
	assert.Contains(t, err.Error(), "row 2")
}

func TestFromManualEntriesRowBounds(t *testing.T) {
	_, err := FromManualEntries(nil)
	assert.ErrorIs(t, err, ErrRowCount)

	many := make([]Record, MaxManualRows+1)
	for i := range many {
		many[i] = Record{Categoria: "a", Author: "b", Publisher: "c"}
	}
	_, err = FromManualEntries(many)
	assert.ErrorIs(t, err, ErrRowCount)

	_, err = FromManualEntries(many[:MaxManualRows])
	assert.NoError(t, err)
}

func TestWriteCSV(t *testing.T) {
	tbl := New([]string{"Author", "Notes"}, [][]string{{"Doe, Jane", `say "hi"`}})
	var buf bytes.Buffer
	require.NoError(t, tbl.WriteCSV(&buf))
	assert.Equal(t, "Author,Notes\n\"Doe, Jane\",\"say \"\"hi\"\"\"\n", buf.String())

	back, err := ParseCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, tbl.Rows, back.Rows)
}
