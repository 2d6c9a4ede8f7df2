package api

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/aquilu/jacobo/internal/datasource"
	"github.com/aquilu/jacobo/internal/model"
	"github.com/aquilu/jacobo/internal/reconcile"
	"github.com/aquilu/jacobo/internal/service"
	"github.com/aquilu/jacobo/internal/state"
	"github.com/aquilu/jacobo/internal/table"
)

const (
	SessionCookie = "blaa_session"
	SessionHeader = "X-Session-ID"

	DefaultMaxUpload   = 32 << 20 // 32MB
	DefaultPreviewRows = 10
)

var (
	errNoResult  = errors.New("run a prediction before downloading results")
	errBadUpload = errors.New("could not read the upload")
	errNoFile    = errors.New("no file uploaded")
)

type Options struct {
	MaxUpload    int64
	PreviewRows  int
	SourceDriver string
	Logger       logrus.FieldLogger
}

type Handler struct {
	Predictions *service.PredictionService
	Sessions    *state.Store

	maxUpload    int64
	previewRows  int
	sourceDriver string
	log          logrus.FieldLogger
	pages        *template.Template
}

func NewHandler(predictions *service.PredictionService, sessions *state.Store, opts Options) (*Handler, error) {
	pages, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	h := &Handler{
		Predictions:  predictions,
		Sessions:     sessions,
		maxUpload:    opts.MaxUpload,
		previewRows:  opts.PreviewRows,
		sourceDriver: opts.SourceDriver,
		log:          opts.Logger,
		pages:        pages,
	}
	if h.maxUpload <= 0 {
		h.maxUpload = DefaultMaxUpload
	}
	if h.previewRows <= 0 {
		h.previewRows = DefaultPreviewRows
	}
	if h.log == nil {
		h.log = logrus.StandardLogger()
	}
	return h, nil
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HealthCheck)

	r.Group(func(r chi.Router) {
		r.Use(h.withSession)

		// Pages
		r.Get("/", h.Index)
		r.Post("/upload", h.UploadPage)
		r.Post("/manual", h.ManualPage)
		r.Post("/import", h.ImportPage)
		r.Post("/predict", h.PredictPage)
		r.Get("/download", h.Download)

		// JSON API
		r.Route("/api", func(r chi.Router) {
			r.Get("/status", h.GetStatus)
			r.Post("/upload", h.Upload)
			r.Post("/manual", h.Manual)
			r.Get("/preview", h.GetPreview)
			r.Post("/predict", h.Predict)
			r.Get("/results.csv", h.Download)
			r.Get("/reconcile/config", h.GetReconcileConfig)
			r.Get("/source/tables", h.ListTables)
			r.Post("/source/import", h.ImportTable)
		})
	})
}

// ============================================================================
// Sessions
// ============================================================================

// withSession resolves the caller's session from the X-Session-ID header or
// the session cookie, creating one when needed.
func (h *Handler) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(SessionHeader)
		if id == "" {
			if c, err := r.Cookie(SessionCookie); err == nil {
				id = c.Value
			}
		}
		sess, created := h.Sessions.GetOrCreate(id)
		if created {
			h.log.WithField("session", sess.ID).Debug("session created")
		}
		if id != sess.ID {
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookie,
				Value:    sess.ID,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
				MaxAge:   int(h.Sessions.TTL() / time.Second),
			})
		}
		w.Header().Set(SessionHeader, sess.ID)
		next.ServeHTTP(w, r.WithContext(state.WithSession(r.Context(), sess)))
	})
}

func sessionFrom(r *http.Request) *state.Session {
	sess, ok := state.FromContext(r.Context())
	if !ok {
		panic("api: handler mounted without session middleware")
	}
	return sess
}

// ============================================================================
// Helpers
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps workflow errors onto HTTP status codes.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, reconcile.ErrNoCanonicalColumns):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrInvalidFile),
		errors.Is(err, service.ErrNoRows),
		errors.Is(err, errBadUpload),
		errors.Is(err, errNoFile),
		errors.Is(err, table.ErrIncompleteRows),
		errors.Is(err, table.ErrRowCount):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNoInput),
		errors.Is(err, service.ErrInputChanged),
		errors.Is(err, errNoResult):
		return http.StatusConflict
	case errors.Is(err, model.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, datasource.ErrNotConfigured), errors.Is(err, datasource.ErrUnknownTable):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func intParam(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return def
	}
	return v
}

// ============================================================================
// Health
// ============================================================================

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("OK"))
}
