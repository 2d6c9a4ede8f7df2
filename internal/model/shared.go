package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/aquilu/jacobo/internal/table"
)

// Shared is the process-wide model handle. It is loaded once and keeps the
// load error around so every page can report it.
type Shared struct {
	mu   sync.RWMutex
	p    Predictor
	err  error
	once sync.Once
}

// Load opens the configured backend. Subsequent calls are no-ops.
func (s *Shared) Load(cfg Config) error {
	s.once.Do(func() {
		p, err := Open(cfg)
		s.mu.Lock()
		defer s.mu.Unlock()
		if err != nil {
			s.err = fmt.Errorf("%w: %v", ErrModelUnavailable, err)
			return
		}
		s.p = p
	})
	return s.Err()
}

// NewShared wraps an already opened predictor.
func NewShared(p Predictor) *Shared {
	s := &Shared{p: p}
	if p == nil {
		s.err = ErrModelUnavailable
	}
	s.once.Do(func() {})
	return s
}

// Err returns the load error, if any.
func (s *Shared) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.p == nil && s.err == nil {
		return ErrModelUnavailable
	}
	return s.err
}

// Ready reports whether predictions can be served.
func (s *Shared) Ready() bool {
	return s.Err() == nil
}

// Name returns the loaded model name or "".
func (s *Shared) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.p == nil {
		return ""
	}
	return s.p.Name()
}

// Predict scores records with the loaded model.
func (s *Shared) Predict(ctx context.Context, records []table.Record) ([]float64, error) {
	s.mu.RLock()
	p, err := s.p, s.err
	s.mu.RUnlock()
	if p == nil {
		if err == nil {
			err = ErrModelUnavailable
		}
		return nil, err
	}
	return Score(ctx, p, records)
}

// Close releases the underlying predictor.
func (s *Shared) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.p == nil {
		return nil
	}
	err := s.p.Close()
	s.p = nil
	s.err = ErrModelUnavailable
	return err
}
