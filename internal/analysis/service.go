// Package analysis computes the metrics shown next to a prediction.
package analysis

import (
	"fmt"
	"math"
	"sort"
)

// Band thresholds. Medium includes both bounds.
const (
	LowUpper   = 0.3
	HighLower  = 0.7
	DefaultBin = 20
)

// Band classifies a probability.
type Band string

const (
	BandLow    Band = "low"
	BandMedium Band = "medium"
	BandHigh   Band = "high"
)

// Classify returns the band of p.
func Classify(p float64) Band {
	switch {
	case p > HighLower:
		return BandHigh
	case p < LowUpper:
		return BandLow
	}
	return BandMedium
}

// Summary holds the aggregate metrics of one prediction run.
type Summary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Max    float64 `json:"max"`
	Min    float64 `json:"min"`
	High   int     `json:"high"`
	Medium int     `json:"medium"`
	Low    int     `json:"low"`
}

// Bin is one histogram bar over [Lower, Upper).
type Bin struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

// Report bundles the summary and histogram.
type Report struct {
	Summary   Summary `json:"summary"`
	Histogram []Bin   `json:"histogram"`
}

type Service struct {
	bins int
}

func NewService(bins int) *Service {
	if bins <= 0 {
		bins = DefaultBin
	}
	return &Service{bins: bins}
}

// Analyze computes the report for raw model outputs.
func (s *Service) Analyze(probs []float64) Report {
	return Report{
		Summary:   Summarize(probs),
		Histogram: BuildHistogram(probs, s.bins),
	}
}

// Summarize computes count, mean, median, max, min and band counts.
// An empty input yields a zero Summary.
func Summarize(probs []float64) Summary {
	sum := Summary{Count: len(probs)}
	if len(probs) == 0 {
		return sum
	}

	values := append([]float64(nil), probs...)
	sort.Float64s(values)
	sum.Min = values[0]
	sum.Max = values[len(values)-1]

	total := 0.0
	for _, v := range values {
		total += v
		switch Classify(v) {
		case BandHigh:
			sum.High++
		case BandMedium:
			sum.Medium++
		default:
			sum.Low++
		}
	}
	sum.Mean = total / float64(len(values))

	if len(values)%2 == 0 {
		sum.Median = (values[len(values)/2-1] + values[len(values)/2]) / 2
	} else {
		sum.Median = values[len(values)/2]
	}
	return sum
}

// BuildHistogram counts probs into n equal-width bins over [0,1]. The last
// bin is closed so 1.0 is counted. Values outside [0,1] are clamped.
func BuildHistogram(probs []float64, n int) []Bin {
	if n <= 0 {
		n = DefaultBin
	}
	bins := make([]Bin, n)
	width := 1.0 / float64(n)
	for i := range bins {
		bins[i].Lower = float64(i) * width
		bins[i].Upper = float64(i+1) * width
	}
	bins[n-1].Upper = 1

	for _, p := range probs {
		if math.IsNaN(p) {
			continue
		}
		idx := int(math.Floor(p * float64(n)))
		idx = max(0, min(idx, n-1))
		bins[idx].Count++
	}
	return bins
}

// MaxCount returns the tallest bar, for scaling a chart.
func MaxCount(bins []Bin) int {
	m := 0
	for _, b := range bins {
		m = max(m, b.Count)
	}
	return m
}

// Label renders a bin range such as "0.30-0.35".
func (b Bin) Label() string {
	return fmt.Sprintf("%.2f-%.2f", b.Lower, b.Upper)
}
