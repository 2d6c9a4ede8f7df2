package model

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/aquilu/jacobo/internal/table"
)

// DefaultName is shown when an artifact carries no name.
const DefaultName = "Modelo Regresión Logística"

// LogisticArtifact is the JSON export of a one-hot encoded logistic
// regression: one weight per (field, category value) pair.
type LogisticArtifact struct {
	Name         string                        `json:"name"`
	Intercept    float64                       `json:"intercept"`
	Coefficients map[string]map[string]float64 `json:"coefficients"`
}

// Logistic evaluates a LogisticArtifact in process.
type Logistic struct {
	name         string
	intercept    float64
	coefficients map[string]map[string]float64
}

// LoadLogistic reads an artifact from path. A non-empty name overrides the
// artifact's own.
func LoadLogistic(path, name string) (*Logistic, error) {
	if path == "" {
		return nil, fmt.Errorf("model path is not configured")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model: %w", err)
	}
	defer f.Close()

	m, err := DecodeLogistic(f)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", path, err)
	}
	if name != "" {
		m.name = name
	}
	return m, nil
}

// DecodeLogistic parses an artifact.
func DecodeLogistic(r io.Reader) (*Logistic, error) {
	var art LogisticArtifact
	dec := json.NewDecoder(r)
	if err := dec.Decode(&art); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	return NewLogistic(art)
}

// NewLogistic validates art and builds the predictor.
func NewLogistic(art LogisticArtifact) (*Logistic, error) {
	if math.IsNaN(art.Intercept) || math.IsInf(art.Intercept, 0) {
		return nil, fmt.Errorf("invalid intercept %v", art.Intercept)
	}
	coef := make(map[string]map[string]float64, len(art.Coefficients))
	for field, weights := range art.Coefficients {
		if !table.IsCanonical(field) {
			return nil, fmt.Errorf("coefficients for unknown field %q", field)
		}
		m := make(map[string]float64, len(weights))
		for value, w := range weights {
			if math.IsNaN(w) || math.IsInf(w, 0) {
				return nil, fmt.Errorf("invalid weight for %s=%q", field, value)
			}
			m[strings.TrimSpace(value)] = w
		}
		coef[field] = m
	}
	name := strings.TrimSpace(art.Name)
	if name == "" {
		name = DefaultName
	}
	return &Logistic{name: name, intercept: art.Intercept, coefficients: coef}, nil
}

func (m *Logistic) Name() string { return m.name }

func (m *Logistic) Close() error { return nil }

// Predict returns sigmoid(intercept + sum of matching weights) per record.
// Values absent from the artifact contribute nothing.
func (m *Logistic) Predict(ctx context.Context, records []table.Record) ([]float64, error) {
	out := make([]float64, len(records))
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		z := m.intercept
		for _, field := range table.CanonicalFields() {
			z += m.coefficients[field][strings.TrimSpace(rec.Field(field))]
		}
		out[i] = sigmoid(z)
	}
	return out, nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
