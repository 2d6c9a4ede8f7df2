package model

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/aquilu/jacobo/internal/table"
)

const (
	defaultONNXInput  = "input"
	defaultONNXOutput = "probabilities"
)

// Vocabulary lists, per canonical field, the category values known to the
// one-hot encoder in column order. Fields are laid out in canonical order.
type Vocabulary map[string][]string

// LoadVocabulary reads a vocabulary JSON file.
func LoadVocabulary(path string) (Vocabulary, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	var v Vocabulary
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("decode vocabulary: %w", err)
	}
	for field := range v {
		if !table.IsCanonical(field) {
			return nil, fmt.Errorf("vocabulary for unknown field %q", field)
		}
	}
	return v, nil
}

// encoder turns records into dense one-hot rows.
type encoder struct {
	width   int
	offsets map[string]map[string]int
}

func newEncoder(v Vocabulary) *encoder {
	e := &encoder{offsets: make(map[string]map[string]int, len(v))}
	for _, field := range table.CanonicalFields() {
		idx := make(map[string]int, len(v[field]))
		for _, value := range v[field] {
			value = strings.TrimSpace(value)
			if _, dup := idx[value]; dup {
				continue
			}
			idx[value] = e.width
			e.width++
		}
		e.offsets[field] = idx
	}
	return e
}

// encode returns a row-major [len(records), width] matrix. Unknown values
// leave their field all zeros.
func (e *encoder) encode(records []table.Record) []float32 {
	out := make([]float32, len(records)*e.width)
	for i, rec := range records {
		row := out[i*e.width : (i+1)*e.width]
		for _, field := range table.CanonicalFields() {
			if col, ok := e.offsets[field][strings.TrimSpace(rec.Field(field))]; ok {
				row[col] = 1
			}
		}
	}
	return out
}

var (
	ortMu    sync.Mutex
	ortUsers int
)

func acquireRuntime(library string) error {
	ortMu.Lock()
	defer ortMu.Unlock()
	if ortUsers == 0 {
		if library != "" {
			ort.SetSharedLibraryPath(library)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}
	ortUsers++
	return nil
}

func releaseRuntime() error {
	ortMu.Lock()
	defer ortMu.Unlock()
	ortUsers--
	if ortUsers > 0 {
		return nil
	}
	ortUsers = 0
	return ort.DestroyEnvironment()
}

// ONNX runs an exported classifier through ONNX Runtime.
type ONNX struct {
	name    string
	enc     *encoder
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
}

// OpenONNX initializes the runtime and loads cfg.Path.
func OpenONNX(cfg Config) (*ONNX, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("model path is not configured")
	}
	if cfg.Vocabulary == "" {
		return nil, fmt.Errorf("onnx model requires a vocabulary file")
	}
	vocab, err := LoadVocabulary(cfg.Vocabulary)
	if err != nil {
		return nil, err
	}
	enc := newEncoder(vocab)
	if enc.width == 0 {
		return nil, fmt.Errorf("vocabulary %s is empty", cfg.Vocabulary)
	}

	if err := acquireRuntime(cfg.OrtLibrary); err != nil {
		return nil, err
	}
	in, out := cfg.InputName, cfg.OutputName
	if in == "" {
		in = defaultONNXInput
	}
	if out == "" {
		out = defaultONNXOutput
	}
	session, err := ort.NewDynamicAdvancedSession(cfg.Path, []string{in}, []string{out}, nil)
	if err != nil {
		_ = releaseRuntime()
		return nil, fmt.Errorf("load onnx model %s: %w", cfg.Path, err)
	}

	name := cfg.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(cfg.Path), filepath.Ext(cfg.Path))
	}
	return &ONNX{name: name, enc: enc, session: session}, nil
}

func (m *ONNX) Name() string { return m.name }

// Predict evaluates all records in one batch.
func (m *ONNX) Predict(ctx context.Context, records []table.Record) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := len(records)
	input, err := ort.NewTensor(ort.NewShape(int64(n), int64(m.enc.width)), m.enc.encode(records))
	if err != nil {
		return nil, fmt.Errorf("build input tensor: %w", err)
	}
	defer input.Destroy()

	outputs := []ort.Value{nil}
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return nil, ErrModelUnavailable
	}
	err = m.session.Run([]ort.Value{input}, outputs)
	m.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("run onnx session: %w", err)
	}
	defer outputs[0].Destroy()

	tensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected onnx output type %T", outputs[0])
	}
	return positiveColumn(tensor.GetData(), []int64(tensor.GetShape()), n)
}

// positiveColumn extracts P(class 1) from a [N,2] or [N]/[N,1] output.
func positiveColumn(data []float32, shape []int64, n int) ([]float64, error) {
	cols := 1
	switch {
	case len(shape) == 2 && shape[1] == 2:
		cols = 2
	case len(shape) == 1, len(shape) == 2 && shape[1] == 1:
	default:
		return nil, fmt.Errorf("unsupported onnx output shape %v", shape)
	}
	if len(data) != n*cols {
		return nil, fmt.Errorf("onnx output has %d values for %d rows", len(data), n)
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(data[i*cols+cols-1])
	}
	return out, nil
}

// Close destroys the session and, for the last user, the runtime.
func (m *ONNX) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	err := m.session.Destroy()
	m.session = nil
	if rerr := releaseRuntime(); err == nil {
		err = rerr
	}
	return err
}
