package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquilu/jacobo/internal/datasource"
	"github.com/aquilu/jacobo/internal/model"
	"github.com/aquilu/jacobo/internal/models"
	"github.com/aquilu/jacobo/internal/prediction"
	"github.com/aquilu/jacobo/internal/reconcile"
	"github.com/aquilu/jacobo/internal/service"
	"github.com/aquilu/jacobo/internal/state"
	"github.com/aquilu/jacobo/internal/table"
)

const booksCSV = "Area Tematica,AUTOR,Publisher\nNovela,Isabel Allende,Planeta\nEnsayo,Octavio Paz,FCE\nPoesía,Pablo Neruda,Losada\n"

func testModel(t *testing.T) *model.Shared {
	t.Helper()
	m, err := model.NewLogistic(model.LogisticArtifact{
		Name:      "Modelo Regresión Logística",
		Intercept: -1,
		Coefficients: map[string]map[string]float64{
			"Categoria": {"Novela": 3},
			"Publisher": {"FCE": 0.5},
		},
	})
	require.NoError(t, err)
	return model.NewShared(m)
}

type testServer struct {
	*httptest.Server
	client *http.Client
}

func newTestServer(t *testing.T, m service.Scorer, src datasource.DataSource) *testServer {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	svc := service.NewPredictionService(reconcile.New(reconcile.Options{}), m, src, nil, logger)
	h, err := NewHandler(svc, state.NewStore(0), Options{Logger: logger, SourceDriver: "sqlite"})
	require.NoError(t, err)

	r := chi.NewRouter()
	h.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	// Each test server keeps a single session through the header.
	return &testServer{Server: srv, client: srv.Client()}
}

func (s *testServer) do(t *testing.T, req *http.Request, session string) *http.Response {
	t.Helper()
	if session != "" {
		req.Header.Set(SessionHeader, session)
	}
	resp, err := s.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *testServer) upload(t *testing.T, session, name, body string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, s.URL+"/api/upload", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.do(t, req, session)
}

func (s *testServer) get(t *testing.T, session, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.URL+path, nil)
	require.NoError(t, err)
	return s.do(t, req, session)
}

func (s *testServer) postJSON(t *testing.T, session, path string, v interface{}) *http.Response {
	t.Helper()
	var body io.Reader = http.NoBody
	if v != nil {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequest(http.MethodPost, s.URL+path, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	return s.do(t, req, session)
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func newSession(t *testing.T, s *testServer) string {
	t.Helper()
	resp := s.get(t, "", "/api/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	id := resp.Header.Get(SessionHeader)
	require.NotEmpty(t, id)
	return id
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, testModel(t), nil)
	resp := s.get(t, "", "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get(SessionHeader))
}

func TestStatusCreatesSession(t *testing.T) {
	s := newTestServer(t, testModel(t), nil)
	resp := s.get(t, "", "/api/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status models.StatusResponse
	decode(t, resp, &status)
	assert.NotEmpty(t, status.SessionID)
	assert.True(t, status.Model.Loaded)
	assert.Equal(t, "Modelo Regresión Logística", status.Model.Name)
	assert.Equal(t, []string{"Categoria", "Author", "Publisher"}, status.RequiredColumns)
	assert.False(t, status.Input.Loaded)

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.Equal(t, status.SessionID, cookie.Value)
}

func TestUploadPredictDownload(t *testing.T) {
	s := newTestServer(t, testModel(t), nil)
	sid := newSession(t, s)

	resp := s.upload(t, sid, "libros.csv", booksCSV)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var up models.UploadResponse
	decode(t, resp, &up)
	assert.Equal(t, 3, up.Rows)
	assert.Equal(t, []string{"Categoria", "Author", "Publisher"}, up.ColumnNames)
	assert.Equal(t, []string{"Categoria", "Author"}, up.Matched)

	resp = s.get(t, sid, "/api/preview?rows=2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var preview models.PreviewResponse
	decode(t, resp, &preview)
	assert.Equal(t, 3, preview.Total)
	require.Len(t, preview.Rows, 2)
	assert.Equal(t, "Isabel Allende", preview.Rows[0]["Author"])
	require.Len(t, preview.Quality, 3)
	assert.Equal(t, "Categoria", preview.Quality[0].Column)
	assert.Equal(t, 3, preview.Quality[0].TotalRows)

	resp = s.postJSON(t, sid, "/api/predict", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pred models.PredictResponse
	decode(t, resp, &pred)
	require.Len(t, pred.Rows, 3)
	assert.Equal(t, prediction.Round(0.8807970779778823), pred.Rows[0].Probability)
	assert.Equal(t, prediction.Round(0.3775406687981454), pred.Rows[1].Probability)
	assert.Equal(t, prediction.Round(0.2689414213699951), pred.Rows[2].Probability)
	assert.Equal(t, 1, pred.Summary.High)
	assert.Equal(t, 1, pred.Summary.Medium)
	assert.Equal(t, 1, pred.Summary.Low)
	assert.Len(t, pred.Histogram, 20)
	assert.Equal(t, "predicciones_modelo_regresión_logística.csv", pred.Filename)

	resp = s.get(t, sid, "/api/results.csv")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "predicciones_")
	back, probs, err := prediction.ParseCSV(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, []string{"Categoria", "Author", "Publisher"}, back.Headers)
	assert.Equal(t, []float64{0.8808, 0.37754, 0.26894}, probs)
}

func TestUploadErrors(t *testing.T) {
	s := newTestServer(t, testModel(t), nil)
	sid := newSession(t, s)

	resp := s.upload(t, sid, "libros.csv", booksCSV)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.upload(t, sid, "otros.csv", "ISBN,Title\n1,Rayuela\n")
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var rejected models.RejectedUploadResponse
	decode(t, resp, &rejected)
	assert.Equal(t, []string{"ISBN", "Title"}, rejected.ColumnNames)
	assert.Equal(t, reconcile.ErrNoCanonicalColumns.Error(), rejected.Error)

	resp = s.get(t, sid, "/api/preview")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = s.upload(t, sid, "libros.pdf", "%PDF-1.4")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, s.URL+"/api/upload", strings.NewReader("x"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "text/plain")
	resp = s.do(t, req, sid)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestManualEntry(t *testing.T) {
	s := newTestServer(t, testModel(t), nil)
	sid := newSession(t, s)

	resp := s.postJSON(t, sid, "/api/manual", models.ManualRequest{Rows: []table.Record{
		{Categoria: "Novela", Author: "Allende", Publisher: ""},
	}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	rows := make([]table.Record, table.MaxManualRows+1)
	resp = s.postJSON(t, sid, "/api/manual", models.ManualRequest{Rows: rows})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.postJSON(t, sid, "/api/manual", models.ManualRequest{Rows: []table.Record{
		{Categoria: "Novela", Author: "Allende", Publisher: "Planeta"},
	}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var up models.UploadResponse
	decode(t, resp, &up)
	assert.Equal(t, 1, up.Rows)
	assert.Empty(t, up.Matched)
}

func TestPredictErrors(t *testing.T) {
	s := newTestServer(t, testModel(t), nil)
	sid := newSession(t, s)

	resp := s.postJSON(t, sid, "/api/predict", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = s.get(t, sid, "/api/results.csv")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	unavailable := newTestServer(t, model.NewShared(nil), nil)
	sid = newSession(t, unavailable)
	resp = unavailable.upload(t, sid, "libros.csv", booksCSV)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = unavailable.postJSON(t, sid, "/api/predict", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestSessionsAreIsolated(t *testing.T) {
	s := newTestServer(t, testModel(t), nil)
	a, b := newSession(t, s), newSession(t, s)
	require.NotEqual(t, a, b)

	resp := s.upload(t, a, "libros.csv", booksCSV)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.get(t, b, "/api/preview")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp = s.get(t, a, "/api/preview")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReconcileConfig(t *testing.T) {
	s := newTestServer(t, testModel(t), nil)
	resp := s.get(t, "", "/api/reconcile/config")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cfg models.ReconcileConfigResponse
	decode(t, resp, &cfg)
	assert.Equal(t, 0.8, cfg.Threshold)
	assert.Equal(t, "Publisher", cfg.Synonyms["editorial"])
}

func TestSourceRoutes(t *testing.T) {
	s := newTestServer(t, testModel(t), nil)
	resp := s.get(t, "", "/api/source/tables")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	src, err := datasource.Open(context.Background(), datasource.Config{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })
	_, err = src.DB().Exec(`CREATE TABLE catalogo (categoria TEXT, autor TEXT, editorial TEXT);
		INSERT INTO catalogo VALUES ('Novela', 'Allende', 'Planeta');`)
	require.NoError(t, err)

	s = newTestServer(t, testModel(t), src)
	sid := newSession(t, s)
	resp = s.get(t, sid, "/api/source/tables")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tables models.TablesResponse
	decode(t, resp, &tables)
	assert.Equal(t, []string{"catalogo"}, tables.Tables)

	resp = s.postJSON(t, sid, "/api/source/import", models.ImportRequest{Table: "missing"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = s.postJSON(t, sid, "/api/source/import", models.ImportRequest{Table: "catalogo"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var up models.UploadResponse
	decode(t, resp, &up)
	assert.Equal(t, []string{"Categoria", "Author", "Publisher"}, up.ColumnNames)
}

func TestPagesFlow(t *testing.T) {
	s := newTestServer(t, testModel(t), nil)
	s.client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	sid := newSession(t, s)

	resp := s.get(t, sid, "/?rows=2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `name="publisher_1"`)
	assert.NotContains(t, string(body), `name="publisher_2"`)
	assert.Contains(t, string(body), "Modelo Regresión Logística")

	form := url.Values{
		"rows":        {"2"},
		"categoria_0": {"Novela"}, "author_0": {"Allende"}, "publisher_0": {"Planeta"},
		"categoria_1": {"Ensayo"}, "author_1": {"Paz"}, "publisher_1": {""},
	}
	req, err := http.NewRequest(http.MethodPost, s.URL+"/manual", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp = s.do(t, req, sid)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp = s.get(t, sid, "/")
	body, _ = io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "Asegúrate de llenar todas las filas completamente.")
	assert.NotContains(t, string(body), `id="preview"`)

	form.Set("publisher_1", "FCE")
	req, err = http.NewRequest(http.MethodPost, s.URL+"/manual", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp = s.do(t, req, sid)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	req, err = http.NewRequest(http.MethodPost, s.URL+"/predict", nil)
	require.NoError(t, err)
	resp = s.do(t, req, sid)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/#results", resp.Header.Get("Location"))

	resp = s.get(t, sid, "/")
	body, _ = io.ReadAll(resp.Body)
	page := string(body)
	assert.Contains(t, page, `id="results"`)
	assert.Contains(t, page, "0.88080")
	assert.Contains(t, page, "<rect")
	assert.Contains(t, page, "Total Registros")

	resp = s.get(t, sid, "/download")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv; charset=utf-8", resp.Header.Get("Content-Type"))
}

func TestPageShowsModelBanner(t *testing.T) {
	s := newTestServer(t, model.NewShared(nil), nil)
	resp := s.get(t, "", "/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "El modelo no pudo cargarse.")
}

func TestDownloadPageWithoutResultRedirects(t *testing.T) {
	s := newTestServer(t, testModel(t), nil)
	s.client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	resp := s.get(t, "", "/download")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestGradientColor(t *testing.T) {
	assert.Equal(t, "#d73027", gradientColor(0))
	assert.Equal(t, "#ffffbf", gradientColor(0.5))
	assert.Equal(t, "#1a9850", gradientColor(1))
	assert.Equal(t, "#1a9850", gradientColor(1.5))
}
