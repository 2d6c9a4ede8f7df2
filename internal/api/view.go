package api

import (
	"embed"
	"fmt"
	"html/template"
	"math"
	"strings"

	"github.com/aquilu/jacobo/internal/analysis"
	"github.com/aquilu/jacobo/internal/models"
	"github.com/aquilu/jacobo/internal/prediction"
	"github.com/aquilu/jacobo/internal/reconcile"
	"github.com/aquilu/jacobo/internal/state"
	"github.com/aquilu/jacobo/internal/table"
)

//go:embed templates/*.html
var templateFS embed.FS

func parseTemplates() (*template.Template, error) {
	return template.New("").Funcs(template.FuncMap{
		"prob": func(p float64) string { return fmt.Sprintf("%.5f", p) },
		"inc":  func(i int) int { return i + 1 },
		"join": strings.Join,
	}).ParseFS(templateFS, "templates/*.html")
}

type pageData struct {
	Model           models.ModelStatus
	RequiredColumns []string
	Extensions      string
	Notices         []state.Notice

	ManualRows    []int
	MaxManualRows int

	SourceEnabled bool
	SourceTables  []string
	SourceError   string

	Input  *inputView
	Result *resultView
}

type inputView struct {
	Filename string
	Headers  []string
	Rows     [][]string
	Shown    int
	Total    int
	Renames  []reconcile.Rename
	Quality  []analysis.ColumnProfile
}

type resultView struct {
	Model    string
	Headers  []string
	Rows     []resultRow
	Summary  analysis.Summary
	Chart    chartView
	Filename string
}

type resultRow struct {
	Cells       []string
	Probability string
	Band        analysis.Band
	Color       string
}

type chartView struct {
	Width, Height int
	Baseline      int
	Bars          []barView
	MaxCount      int
}

type barView struct {
	X, Y, W, H int
	Count      int
	Label      string
}

func newInputView(t *table.Table, rec *reconcile.Result, rows int) *inputView {
	head := t.Head(rows)
	v := &inputView{
		Filename: t.FileName,
		Headers:  t.Headers,
		Rows:     head.Rows,
		Shown:    head.Len(),
		Total:    t.Len(),
		Quality:  analysis.ProfileFields(t),
	}
	if rec != nil {
		v.Renames = rec.Renames
	}
	return v
}

func newResultView(res *prediction.Result, report analysis.Report) *resultView {
	rows := make([]resultRow, len(res.Table.Rows))
	for i, cells := range res.Table.Rows {
		rows[i] = resultRow{
			Cells:       cells,
			Probability: fmt.Sprintf("%.5f", res.Probabilities[i]),
			Band:        analysis.Classify(res.Scores[i]),
			Color:       gradientColor(res.Scores[i]),
		}
	}
	return &resultView{
		Model:    res.Model,
		Headers:  res.Table.Headers,
		Rows:     rows,
		Summary:  report.Summary,
		Chart:    newChartView(report.Histogram, 600, 240),
		Filename: res.FileName(),
	}
}

// newChartView lays out histogram bars in a width x height SVG viewport.
func newChartView(bins []analysis.Bin, width, height int) chartView {
	const margin = 20
	cv := chartView{
		Width:    width,
		Height:   height,
		Baseline: height - margin,
		MaxCount: analysis.MaxCount(bins),
	}
	if len(bins) == 0 {
		return cv
	}
	plotH := height - 2*margin
	slot := (width - 2*margin) / len(bins)
	for i, b := range bins {
		h := 0
		if cv.MaxCount > 0 {
			h = int(math.Round(float64(b.Count) / float64(cv.MaxCount) * float64(plotH)))
		}
		cv.Bars = append(cv.Bars, barView{
			X:     margin + i*slot + 1,
			Y:     cv.Baseline - h,
			W:     max(slot-2, 1),
			H:     h,
			Count: b.Count,
			Label: b.Label(),
		})
	}
	return cv
}

// gradientColor maps p onto a red, yellow, green scale.
func gradientColor(p float64) string {
	type rgb struct{ r, g, b float64 }
	red := rgb{215, 48, 39}
	yellow := rgb{255, 255, 191}
	green := rgb{26, 152, 80}

	p = math.Max(0, math.Min(1, p))
	from, to, t := red, yellow, p*2
	if p > 0.5 {
		from, to, t = yellow, green, (p-0.5)*2
	}
	mix := func(a, b float64) int { return int(math.Round(a + (b-a)*t)) }
	return fmt.Sprintf("#%02x%02x%02x", mix(from.r, to.r), mix(from.g, to.g), mix(from.b, to.b))
}
