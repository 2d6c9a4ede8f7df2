package models

import (
	"time"

	"github.com/aquilu/jacobo/internal/analysis"
	"github.com/aquilu/jacobo/internal/reconcile"
	"github.com/aquilu/jacobo/internal/table"
)

// ErrorResponse is the body of every failed API call
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// ModelStatus describes the shared model handle
type ModelStatus struct {
	Loaded bool   `json:"loaded"`
	Name   string `json:"name,omitempty"`
	Error  string `json:"error,omitempty"`
}

// InputStatus summarizes the session's current table
type InputStatus struct {
	Loaded   bool     `json:"loaded"`
	Rows     int      `json:"rows"`
	Columns  int      `json:"columns"`
	Filename string   `json:"filename,omitempty"`
	Present  []string `json:"present,omitempty"`
}

// StatusResponse is returned by /api/status
type StatusResponse struct {
	SessionID       string       `json:"session_id"`
	Model           ModelStatus  `json:"model"`
	RequiredColumns []string     `json:"required_columns"`
	Input           InputStatus  `json:"input"`
	HasResult       bool         `json:"has_result"`
	Source          SourceStatus `json:"source"`
}

// SourceStatus tells whether DB import is available
type SourceStatus struct {
	Enabled bool   `json:"enabled"`
	Driver  string `json:"driver,omitempty"`
}

// UploadResponse is returned after an accepted upload, manual entry or import
type UploadResponse struct {
	Message     string             `json:"message"`
	Rows        int                `json:"rows"`
	Columns     int                `json:"columns"`
	ColumnNames []string           `json:"column_names"`
	Matched     []string           `json:"matched"`
	Present     []string           `json:"present"`
	Renames     []reconcile.Rename `json:"renames"`
}

// RejectedUploadResponse is returned when no model column was found
type RejectedUploadResponse struct {
	ErrorResponse
	ColumnNames     []string `json:"column_names"`
	RequiredColumns []string `json:"required_columns"`
}

// ManualRequest is the body of POST /api/manual
type ManualRequest struct {
	Rows []table.Record `json:"rows"`
}

// PreviewResponse is returned by /api/preview
type PreviewResponse struct {
	Filename string                   `json:"filename,omitempty"`
	Columns  []string                 `json:"columns"`
	Rows     []map[string]string      `json:"rows"`
	Total    int                      `json:"total"`
	Quality  []analysis.ColumnProfile `json:"quality"`
}

// PredictedRow is one scored input row
type PredictedRow struct {
	Values      map[string]string `json:"values"`
	Probability float64           `json:"probability"`
	Band        analysis.Band     `json:"band"`
}

// PredictResponse is returned by /api/predict
type PredictResponse struct {
	Model     string           `json:"model"`
	CreatedAt time.Time        `json:"created_at"`
	Columns   []string         `json:"columns"`
	Rows      []PredictedRow   `json:"rows"`
	Summary   analysis.Summary `json:"summary"`
	Histogram []analysis.Bin   `json:"histogram"`
	Download  string           `json:"download"`
	Filename  string           `json:"filename"`
}

// ReconcileConfigResponse exposes the reconciler settings
type ReconcileConfigResponse struct {
	Targets   []string          `json:"targets"`
	Threshold float64           `json:"threshold"`
	Synonyms  map[string]string `json:"synonyms"`
}

// TablesResponse lists importable database tables
type TablesResponse struct {
	Tables []string `json:"tables"`
}

// ImportRequest is the body of POST /api/source/import
type ImportRequest struct {
	Table string `json:"table"`
	Limit int    `json:"limit,omitempty"`
}
