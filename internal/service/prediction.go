package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aquilu/jacobo/internal/analysis"
	"github.com/aquilu/jacobo/internal/datasource"
	"github.com/aquilu/jacobo/internal/model"
	"github.com/aquilu/jacobo/internal/prediction"
	"github.com/aquilu/jacobo/internal/reconcile"
	"github.com/aquilu/jacobo/internal/state"
	"github.com/aquilu/jacobo/internal/table"
)

var (
	// ErrInvalidFile wraps any failure to read an uploaded table.
	ErrInvalidFile = errors.New("the file could not be read")
	// ErrNoRows is returned for a table with headers but no data.
	ErrNoRows = errors.New("the table contains no data rows")
	// ErrNoInput is returned when predicting without a loaded table.
	ErrNoInput = errors.New("load a file or enter rows before predicting")
	// ErrInputChanged is returned when the session input was replaced
	// while its prediction was running.
	ErrInputChanged = errors.New("the input changed during prediction, predict again")
)

// Scorer is the model handle seen by the service.
type Scorer interface {
	Predict(ctx context.Context, records []table.Record) ([]float64, error)
	Name() string
	Err() error
}

// PredictionService runs the upload, reconcile and predict workflow against
// a session.
type PredictionService struct {
	reconciler *reconcile.Reconciler
	model      Scorer
	source     datasource.DataSource
	analyzer   *analysis.Service
	log        logrus.FieldLogger
	now        func() time.Time
}

// NewPredictionService wires the workflow. source may be nil.
func NewPredictionService(rec *reconcile.Reconciler, m Scorer, source datasource.DataSource, analyzer *analysis.Service, log logrus.FieldLogger) *PredictionService {
	if analyzer == nil {
		analyzer = analysis.NewService(analysis.DefaultBin)
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &PredictionService{
		reconciler: rec,
		model:      m,
		source:     source,
		analyzer:   analyzer,
		log:        log,
		now:        time.Now,
	}
}

// Reconciler returns the configured reconciler.
func (s *PredictionService) Reconciler() *reconcile.Reconciler {
	return s.reconciler
}

// ModelName returns the loaded model name, or "".
func (s *PredictionService) ModelName() string {
	return s.model.Name()
}

// ModelErr returns the model load error, if any.
func (s *PredictionService) ModelErr() error {
	return s.model.Err()
}

// LoadUpload parses an uploaded file and makes it the session input.
// Parse failures and tables without canonical columns clear the input.
func (s *PredictionService) LoadUpload(sess *state.Session, name string, r io.Reader) (*reconcile.Result, error) {
	t, err := table.Parse(name, r)
	if err != nil {
		sess.ClearInput()
		s.log.WithError(err).WithField("file", name).Warn("upload rejected")
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	return s.accept(sess, t)
}

// LoadManual validates form rows and makes them the session input. On
// validation failure the session is left untouched.
func (s *PredictionService) LoadManual(sess *state.Session, entries []table.Record) (*reconcile.Result, error) {
	t, err := table.FromManualEntries(entries)
	if err != nil {
		return nil, err
	}
	t.FileName = "manual"
	return s.accept(sess, t)
}

// SourceEnabled reports whether a database source is wired.
func (s *PredictionService) SourceEnabled() bool {
	return s.source != nil
}

// ListSourceTables lists importable tables.
func (s *PredictionService) ListSourceTables(ctx context.Context) ([]string, error) {
	if s.source == nil {
		return nil, datasource.ErrNotConfigured
	}
	return s.source.ListTables(ctx)
}

// LoadFromSource imports a database table as the session input.
func (s *PredictionService) LoadFromSource(ctx context.Context, sess *state.Session, name string, limit int) (*reconcile.Result, error) {
	if s.source == nil {
		return nil, datasource.ErrNotConfigured
	}
	t, err := s.source.LoadTable(ctx, name, limit)
	if err != nil {
		if !errors.Is(err, datasource.ErrUnknownTable) {
			s.log.WithError(err).WithField("table", name).Error("source import failed")
		}
		return nil, err
	}
	return s.accept(sess, t)
}

func (s *PredictionService) accept(sess *state.Session, t *table.Table) (*reconcile.Result, error) {
	res := s.reconciler.Reconcile(t)
	if err := res.Err(); err != nil {
		sess.ClearInput()
		s.log.WithField("headers", t.Headers).Info("no model columns found")
		return &res, err
	}
	if res.Table.Len() == 0 {
		sess.ClearInput()
		return &res, ErrNoRows
	}
	sess.SetInput(res.Table, &res)
	s.log.WithFields(logrus.Fields{
		"file":    t.FileName,
		"rows":    res.Table.Len(),
		"matched": res.Matched,
	}).Info("input table loaded")
	return &res, nil
}

// Predict scores the session input and stores the result. Nothing is stored
// when scoring fails.
func (s *PredictionService) Predict(ctx context.Context, sess *state.Session) (*prediction.Result, error) {
	input := sess.Input()
	if input == nil {
		return nil, ErrNoInput
	}
	if err := s.model.Err(); err != nil {
		return nil, err
	}

	start := s.now()
	scores, err := s.model.Predict(ctx, input.Records())
	if err != nil {
		s.log.WithError(err).WithField("rows", input.Len()).Error("prediction failed")
		if errors.Is(err, model.ErrModelUnavailable) || errors.Is(err, model.ErrPrediction) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", model.ErrPrediction, err)
	}
	if err := model.Validate(scores, input.Len()); err != nil {
		return nil, err
	}
	res, err := prediction.New(input, scores, s.model.Name(), s.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrPrediction, err)
	}
	if !sess.SetResult(res) {
		s.log.WithField("rows", res.Len()).Warn("input replaced during prediction, result dropped")
		return nil, ErrInputChanged
	}
	s.log.WithFields(logrus.Fields{
		"rows":     res.Len(),
		"model":    res.Model,
		"duration": s.now().Sub(start).String(),
	}).Info("prediction completed")
	return res, nil
}

// Analyze computes the metrics of a result over its raw scores.
func (s *PredictionService) Analyze(res *prediction.Result) analysis.Report {
	return s.analyzer.Analyze(res.Scores)
}
