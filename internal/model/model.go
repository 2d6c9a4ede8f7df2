// Package model loads the demand classifier and scores book records.
package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/aquilu/jacobo/internal/table"
)

// Backend kinds accepted in Config.Kind.
const (
	KindLogistic = "logistic"
	KindONNX     = "onnx"
	KindRemote   = "remote"
)

var (
	// ErrModelUnavailable is returned when no model could be loaded.
	ErrModelUnavailable = errors.New("prediction model is not available")
	// ErrPrediction marks a failed or invalid model evaluation.
	ErrPrediction = errors.New("prediction failed")
)

// Predictor scores book records. Implementations return exactly one
// probability in [0,1] per record, in input order.
type Predictor interface {
	Predict(ctx context.Context, records []table.Record) ([]float64, error)
	Name() string
	Close() error
}

// Config selects and parameterizes a backend.
type Config struct {
	Kind string `mapstructure:"kind"`
	// Path is the artifact: logistic JSON or .onnx file.
	Path string `mapstructure:"path"`
	// Name overrides the display name stored in the artifact.
	Name string `mapstructure:"name"`

	// ONNX only.
	OrtLibrary string `mapstructure:"ort_library"`
	Vocabulary string `mapstructure:"vocabulary"`
	InputName  string `mapstructure:"input_name"`
	OutputName string `mapstructure:"output_name"`

	// Remote only.
	RemoteURL string        `mapstructure:"remote_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// Open loads the backend described by cfg.
func Open(cfg Config) (Predictor, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", KindLogistic:
		return LoadLogistic(cfg.Path, cfg.Name)
	case KindONNX:
		return OpenONNX(cfg)
	case KindRemote:
		return NewRemote(cfg.RemoteURL, cfg.Name, cfg.Timeout)
	}
	return nil, fmt.Errorf("unknown model kind %q", cfg.Kind)
}

// Validate checks a backend output against the number of records.
func Validate(probs []float64, n int) error {
	if len(probs) != n {
		return fmt.Errorf("%w: model returned %d probabilities for %d rows", ErrPrediction, len(probs), n)
	}
	for i, p := range probs {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return fmt.Errorf("%w: row %d: probability %v outside [0,1]", ErrPrediction, i+1, p)
		}
	}
	return nil
}

// Score runs p and validates the output. Backend errors are wrapped with
// ErrPrediction.
func Score(ctx context.Context, p Predictor, records []table.Record) ([]float64, error) {
	if p == nil {
		return nil, ErrModelUnavailable
	}
	if len(records) == 0 {
		return []float64{}, nil
	}
	probs, err := p.Predict(ctx, records)
	if err != nil {
		if errors.Is(err, ErrPrediction) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrPrediction, err)
	}
	if err := Validate(probs, len(records)); err != nil {
		return nil, err
	}
	return probs, nil
}
