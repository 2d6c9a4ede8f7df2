package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aquilu/jacobo/internal/analysis"
	"github.com/aquilu/jacobo/internal/models"
	"github.com/aquilu/jacobo/internal/prediction"
	"github.com/aquilu/jacobo/internal/reconcile"
	"github.com/aquilu/jacobo/internal/service"
	"github.com/aquilu/jacobo/internal/state"
	"github.com/aquilu/jacobo/internal/table"
)

func sendAPIError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.ErrorResponse{Error: msg, Code: status})
}

func sendWorkflowError(w http.ResponseWriter, err error) {
	sendAPIError(w, statusFor(err), err.Error())
}

func (h *Handler) modelStatus() models.ModelStatus {
	st := models.ModelStatus{Name: h.Predictions.ModelName()}
	if err := h.Predictions.ModelErr(); err != nil {
		st.Error = err.Error()
	} else {
		st.Loaded = true
	}
	return st
}

// GetStatus describes the model and the caller's session
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	resp := models.StatusResponse{
		SessionID:       sess.ID,
		Model:           h.modelStatus(),
		RequiredColumns: table.CanonicalFields(),
		HasResult:       sess.Result() != nil,
		Source: models.SourceStatus{
			Enabled: h.Predictions.SourceEnabled(),
		},
	}
	if resp.Source.Enabled {
		resp.Source.Driver = h.sourceDriver
	}
	if in := sess.Input(); in != nil {
		resp.Input = models.InputStatus{
			Loaded:   true,
			Rows:     in.Len(),
			Columns:  len(in.Headers),
			Filename: in.FileName,
			Present:  in.PresentFields(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// readUpload extracts the multipart "file" field and loads it into the session.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (*reconcile.Result, error) {
	sess := sessionFrom(r)
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		sess.ClearInput()
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", errBadUpload, err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		sess.ClearInput()
		return nil, errNoFile
	}
	defer file.Close()

	return h.Predictions.LoadUpload(sess, header.Filename, file)
}

func uploadResponse(rec *reconcile.Result, msg string) models.UploadResponse {
	return models.UploadResponse{
		Message:     msg,
		Rows:        rec.Table.Len(),
		Columns:     len(rec.Table.Headers),
		ColumnNames: rec.Table.Headers,
		Matched:     nonNil(rec.Matched),
		Present:     nonNil(rec.Present),
		Renames:     rec.Renames,
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// sendLoadResult writes the outcome of an upload, manual entry or import.
func sendLoadResult(w http.ResponseWriter, rec *reconcile.Result, err error, msg string) {
	if errors.Is(err, reconcile.ErrNoCanonicalColumns) && rec != nil {
		writeJSON(w, http.StatusUnprocessableEntity, models.RejectedUploadResponse{
			ErrorResponse: models.ErrorResponse{
				Error: err.Error(),
				Code:  http.StatusUnprocessableEntity,
			},
			ColumnNames:     rec.Table.Headers,
			RequiredColumns: table.CanonicalFields(),
		})
		return
	}
	if err != nil {
		sendWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse(rec, msg))
}

// Upload accepts a multipart file and makes it the session input
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	rec, err := h.readUpload(w, r)
	sendLoadResult(w, rec, err, "File loaded successfully")
}

// Manual accepts up to 50 typed rows
func (h *Handler) Manual(w http.ResponseWriter, r *http.Request) {
	var req models.ManualRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendAPIError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	rec, err := h.Predictions.LoadManual(sessionFrom(r), req.Rows)
	sendLoadResult(w, rec, err, "Rows loaded successfully")
}

// GetPreview returns the first rows of the current input
func (h *Handler) GetPreview(w http.ResponseWriter, r *http.Request) {
	in := sessionFrom(r).Input()
	if in == nil {
		sendWorkflowError(w, service.ErrNoInput)
		return
	}
	head := in.Head(intParam(r, "rows", h.previewRows))
	writeJSON(w, http.StatusOK, models.PreviewResponse{
		Filename: in.FileName,
		Columns:  in.Headers,
		Rows:     head.Maps(),
		Total:    in.Len(),
		Quality:  nonNil(analysis.ProfileFields(in)),
	})
}

// Predict scores the current input
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	res, err := h.Predictions.Predict(r.Context(), sessionFrom(r))
	if err != nil {
		sendWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.predictResponse(res))
}

func (h *Handler) predictResponse(res *prediction.Result) models.PredictResponse {
	report := h.Predictions.Analyze(res)
	maps := res.Table.Maps()
	rows := make([]models.PredictedRow, len(maps))
	for i, m := range maps {
		rows[i] = models.PredictedRow{
			Values:      m,
			Probability: res.Probabilities[i],
			Band:        analysis.Classify(res.Scores[i]),
		}
	}
	return models.PredictResponse{
		Model:     res.Model,
		CreatedAt: res.CreatedAt,
		Columns:   res.Headers(),
		Rows:      rows,
		Summary:   report.Summary,
		Histogram: report.Histogram,
		Download:  "/api/results.csv",
		Filename:  res.FileName(),
	}
}

// Download streams the last prediction as CSV
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	res := sess.Result()
	if res == nil {
		if r.URL.Path == "/download" {
			sess.Flash(state.LevelWarning, "Primero realiza una predicción para descargar los resultados.")
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		sendWorkflowError(w, errNoResult)
		return
	}
	data, err := res.CSV()
	if err != nil {
		h.log.WithError(err).Error("csv export failed")
		sendAPIError(w, http.StatusInternalServerError, "Failed to export results")
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.FileName()))
	w.Write(data)
}

// GetReconcileConfig exposes the reconciler's targets, threshold and synonyms
func (h *Handler) GetReconcileConfig(w http.ResponseWriter, r *http.Request) {
	rc := h.Predictions.Reconciler()
	writeJSON(w, http.StatusOK, models.ReconcileConfigResponse{
		Targets:   rc.Targets(),
		Threshold: rc.Threshold(),
		Synonyms:  rc.Synonyms(),
	})
}

// ListTables returns tables of the configured database source
func (h *Handler) ListTables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.Predictions.ListSourceTables(r.Context())
	if err != nil {
		sendWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.TablesResponse{Tables: nonNil(tables)})
}

// ImportTable loads a database table as the session input
func (h *Handler) ImportTable(w http.ResponseWriter, r *http.Request) {
	var req models.ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Table == "" {
		sendAPIError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	rec, err := h.Predictions.LoadFromSource(r.Context(), sessionFrom(r), req.Table, req.Limit)
	sendLoadResult(w, rec, err, "Table imported successfully")
}
