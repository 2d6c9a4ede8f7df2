package prediction

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquilu/jacobo/internal/table"
)

func sampleTable() *table.Table {
	return table.New(
		[]string{"Categoria", "Author", "Publisher", "ISBN"},
		[][]string{
			{"Novela", "Allende, Isabel", "Sudamericana", "978-1"},
			{"Ensayo", "Paz", "FCE", ""},
			{"Poesía", "Neruda", "Losada", "978-3"},
		},
	)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 0.12346, Round(0.123456))
	assert.Equal(t, 0.5, Round(0.5))
	assert.Equal(t, 1.0, Round(0.999996))
	assert.Equal(t, 0.0, Round(0.000004))
	assert.Equal(t, "0.12346", FormatProbability(0.123456))
	assert.Equal(t, "0.8", FormatProbability(0.8))
	assert.Equal(t, "1", FormatProbability(1))
}

func TestNewResult(t *testing.T) {
	tbl := sampleTable()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	res, err := New(tbl, []float64{0.823456789, 0.45, 0.1234549}, "Modelo Regresión Logística", now)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Len())
	assert.Equal(t, []float64{0.82346, 0.45, 0.12345}, res.Probabilities)
	assert.Equal(t, 0.823456789, res.Scores[0])
	assert.Equal(t, now, res.CreatedAt)

	tbl.Rows[0][0] = "changed"
	assert.Equal(t, "Novela", res.Table.Rows[0][0])

	_, err = New(tbl, []float64{0.1}, "m", now)
	assert.Error(t, err)
	_, err = New(nil, nil, "m", now)
	assert.Error(t, err)
}

func TestExportRoundTrip(t *testing.T) {
	res, err := New(sampleTable(), []float64{0.823456789, 0.45, 0.1234549}, "m", time.Now())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, res.WriteCSV(&buf))
	assert.True(t, strings.HasPrefix(buf.String(), "Categoria,Author,Publisher,ISBN,Probability\n"))
	assert.Contains(t, buf.String(), `"Allende, Isabel"`)

	back, probs, err := ParseCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, res.Table.Headers, back.Headers)
	assert.Equal(t, res.Table.Records(), back.Records())
	assert.Equal(t, res.Probabilities, probs)
}

func TestParseCSVRequiresProbability(t *testing.T) {
	_, _, err := ParseCSV(strings.NewReader("Author,Publisher\nA,B\n"))
	assert.Error(t, err)

	_, _, err = ParseCSV(strings.NewReader("Author,Probability\nA,high\n"))
	assert.Error(t, err)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "predicciones_modelo_regresión_logística.csv", FileName("Modelo Regresión Logística"))
	assert.Equal(t, "predicciones_a_b.csv", FileName("  A / B "))
	assert.Equal(t, "predicciones_modelo.csv", FileName(""))

	res := &Result{Model: "BLAA v2"}
	assert.Equal(t, "predicciones_blaa_v2.csv", res.FileName())
}
