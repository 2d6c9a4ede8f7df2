package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/aquilu/jacobo/internal/model"
	"github.com/aquilu/jacobo/internal/reconcile"
	"github.com/aquilu/jacobo/internal/service"
	"github.com/aquilu/jacobo/internal/state"
	"github.com/aquilu/jacobo/internal/table"
)

// Index renders the single application page
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	n := intParam(r, "rows", 1)
	n = max(1, min(n, table.MaxManualRows))
	manual := make([]int, n)
	for i := range manual {
		manual[i] = i
	}

	data := pageData{
		Model:           h.modelStatus(),
		RequiredColumns: table.CanonicalFields(),
		Extensions:      strings.Join(table.SupportedExtensions, ","),
		Notices:         sess.TakeNotices(),
		ManualRows:      manual,
		MaxManualRows:   table.MaxManualRows,
		SourceEnabled:   h.Predictions.SourceEnabled(),
	}
	if data.SourceEnabled {
		tables, err := h.Predictions.ListSourceTables(r.Context())
		if err != nil {
			h.log.WithError(err).Warn("listing source tables failed")
			data.SourceError = "No se pudo consultar la base de datos."
		}
		data.SourceTables = tables
	}
	if in := sess.Input(); in != nil {
		data.Input = newInputView(in, sess.Reconciliation(), h.previewRows)
	}
	if res := sess.Result(); res != nil {
		data.Result = newResultView(res, h.Predictions.Analyze(res))
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.pages.ExecuteTemplate(w, "page.html", data); err != nil {
		h.log.WithError(err).Error("render page")
	}
}

// flashLoad turns the outcome of a load into a notice.
func flashLoad(sess *state.Session, rec *reconcile.Result, err error, success string) {
	switch {
	case err == nil:
		if len(rec.Matched) > 0 {
			sess.Flash(state.LevelSuccess, "Se renombraron automáticamente estas columnas: "+strings.Join(rec.Matched, ", "))
		}
		sess.Flash(state.LevelSuccess, success)
	case errors.Is(err, reconcile.ErrNoCanonicalColumns):
		sess.Flash(state.LevelError, "El archivo no contiene ninguna de las columnas requeridas para el modelo.")
	case errors.Is(err, table.ErrIncompleteRows):
		sess.Flash(state.LevelWarning, "Asegúrate de llenar todas las filas completamente.")
	case errors.Is(err, service.ErrNoRows):
		sess.Flash(state.LevelError, "El archivo no contiene filas de datos.")
	default:
		sess.Flash(state.LevelError, "Error al procesar el archivo: "+err.Error())
	}
}

// UploadPage handles the upload form
func (h *Handler) UploadPage(w http.ResponseWriter, r *http.Request) {
	rec, err := h.readUpload(w, r)
	flashLoad(sessionFrom(r), rec, err, "Archivo cargado correctamente")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// ManualPage handles the manual entry form: fields categoria_N, author_N and
// publisher_N for N in [0, rows).
func (h *Handler) ManualPage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if err := r.ParseForm(); err != nil {
		sess.Flash(state.LevelError, "Formulario inválido.")
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	n, err := strconv.Atoi(r.PostForm.Get("rows"))
	if err != nil || n < 1 || n > table.MaxManualRows {
		sess.Flash(state.LevelError, fmt.Sprintf("Se pueden ingresar entre 1 y %d filas.", table.MaxManualRows))
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	entries := make([]table.Record, n)
	for i := range entries {
		entries[i] = table.Record{
			Categoria: r.PostForm.Get(fmt.Sprintf("categoria_%d", i)),
			Author:    r.PostForm.Get(fmt.Sprintf("author_%d", i)),
			Publisher: r.PostForm.Get(fmt.Sprintf("publisher_%d", i)),
		}
	}
	rec, err := h.Predictions.LoadManual(sess, entries)
	flashLoad(sess, rec, err, "DataFrame creado correctamente")
	http.Redirect(w, r, fmt.Sprintf("/?rows=%d", n), http.StatusSeeOther)
}

// ImportPage handles the database import form
func (h *Handler) ImportPage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	name := r.FormValue("table")
	rec, err := h.Predictions.LoadFromSource(r.Context(), sess, name, 0)
	flashLoad(sess, rec, err, fmt.Sprintf("Tabla %s importada correctamente", name))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// PredictPage runs the model and shows the results section
func (h *Handler) PredictPage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	_, err := h.Predictions.Predict(r.Context(), sess)
	switch {
	case err == nil:
		http.Redirect(w, r, "/#results", http.StatusSeeOther)
		return
	case errors.Is(err, service.ErrNoInput):
		sess.Flash(state.LevelInfo, "Por favor, carga tus datos usando una de las opciones de arriba para comenzar con las predicciones.")
	case errors.Is(err, model.ErrModelUnavailable):
		sess.Flash(state.LevelError, "El modelo no está disponible: "+err.Error())
	default:
		sess.Flash(state.LevelError, "Error al procesar los datos: "+err.Error())
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
