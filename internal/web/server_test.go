package web

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/leadintake/internal/config"
	"github.com/JonMunkholm/leadintake/internal/core"
	"github.com/JonMunkholm/leadintake/internal/metrics"
	"github.com/JonMunkholm/leadintake/internal/partner"
	"github.com/JonMunkholm/leadintake/internal/schema"
	"github.com/JonMunkholm/leadintake/internal/store"
)

const testAPIKey = "test-key"

type testEnv struct {
	server  *Server
	store   *store.MemoryStore
	tempDir string
}

// newTestEnv builds a server over a memory store. partnerURL may be empty.
func newTestEnv(t *testing.T, partnerURL string) *testEnv {
	t.Helper()
	tempDir := t.TempDir()
	cfg := &config.Config{
		Security: config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{testAPIKey}},
		Upload:   config.UploadConfig{MaxFileSize: 1 << 20, MaxConcurrent: 2, MaxWaitTime: time.Second, Timeout: time.Minute},
		Export:   config.ExportConfig{TempDir: tempDir},
		Partner: config.PartnerConfig{
			UnicoreURL:   partnerURL,
			UnicoreKey:   "unicore-key",
			LeadcraftURL: partnerURL,
			LeadcraftKey: "leadcraft-key",
			Timeout:      5 * time.Second,
		},
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s := store.NewMemoryStore()

	var p core.Partner
	if partnerURL != "" {
		p = partner.NewClient(cfg.Partner, m)
	}
	svc := core.NewService(s, p, cfg, core.WithMetrics(m))
	srv := NewServer(cfg, svc, reg)
	t.Cleanup(func() {
		for _, l := range srv.limiters {
			l.stop()
		}
	})
	return &testEnv{server: srv, store: s, tempDir: tempDir}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	if req.Header.Get("X-API-Key") == "" {
		req.Header.Set("X-API-Key", testAPIKey)
	}
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func fileRequest(t *testing.T, target, fileName string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// leadsCSV renders leads the way a CSV export does.
func leadsCSV(t *testing.T, leads ...*schema.Lead) []byte {
	t.Helper()
	s := store.NewMemoryStore()
	_, err := s.CreateMany(t.Context(), leads)
	require.NoError(t, err)

	file, err := core.NewPipeline(s, core.WithTempDir(t.TempDir())).Export(t.Context(), store.Filter{}, core.ExtCSV)
	require.NoError(t, err)
	data, err := os.ReadFile(file.Path)
	require.NoError(t, err)
	return data
}

func leadsWithPhones(phones ...int64) []*schema.Lead {
	leads := make([]*schema.Lead, len(phones))
	for i, p := range phones {
		l := schema.ExampleLead()
		l.User.Phone = p
		leads[i] = l
	}
	return leads
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func assertTempDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "export files are removed after download")
}

// =============================================================================
// Health, metrics, auth
// =============================================================================

func TestHealthAndMetricsAreOpen(t *testing.T) {
	env := newTestEnv(t, "")

	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "leadintake_rows_ingested_total")
}

func TestAPIKeyRequired(t *testing.T) {
	env := newTestEnv(t, "")

	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/leads", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/leads", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec = env.do(t, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

// =============================================================================
// Single leads
// =============================================================================

func TestLeadCRUD(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, jsonRequest(t, http.MethodPost, "/api/leads/incoming", schema.ExampleLead()))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created schema.StoredLead
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, int64(1), created.ID)

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/leads/1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	changed := schema.ExampleLead()
	changed.Stream = "changed"
	rec = env.do(t, jsonRequest(t, http.MethodPut, "/api/leads/1", changed))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"stream":"changed"`)

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/leads", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var page core.ListResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Count)

	rec = env.do(t, httptest.NewRequest(http.MethodDelete, "/api/leads/1", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/leads/1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "DB008", decodeError(t, rec).Code)
}

func TestCreateLead_Invalid(t *testing.T) {
	env := newTestEnv(t, "")
	lead := schema.ExampleLead()
	lead.User.Phone = 7999000000

	rec := env.do(t, jsonRequest(t, http.MethodPost, "/api/leads/incoming", lead))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "VAL007", resp.Code)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "user.phone", resp.Errors[0].Path)
	assert.Equal(t, 0, env.store.Len())
}

func TestBadRequests(t *testing.T) {
	env := newTestEnv(t, "")

	tests := []struct {
		name   string
		req    *http.Request
		status int
		code   string
	}{
		{"non-numeric id", httptest.NewRequest(http.MethodGet, "/api/leads/abc", nil), http.StatusBadRequest, "REQ001"},
		{"body not an object", httptest.NewRequest(http.MethodPost, "/api/leads/incoming", strings.NewReader(`[1]`)), http.StatusBadRequest, "REQ001"},
		{"negative take", httptest.NewRequest(http.MethodGet, "/api/leads?take=-1", nil), http.StatusBadRequest, "VAL008"},
		{"where not json", httptest.NewRequest(http.MethodGet, "/api/leads?where=stream", nil), http.StatusBadRequest, "VAL008"},
		{"unknown order column", httptest.NewRequest(http.MethodGet, "/api/leads?order="+url.QueryEscape(`{"phone":"asc"}`), nil), http.StatusBadRequest, "VAL008"},
		{"empty list", httptest.NewRequest(http.MethodGet, "/api/leads", nil), http.StatusNotFound, "DB008"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.req)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
}

// =============================================================================
// Files
// =============================================================================

func TestIngestFile(t *testing.T) {
	env := newTestEnv(t, "")
	data := leadsCSV(t, leadsWithPhones(79990000001, 79990000002, 79990000003)...)

	rec := env.do(t, fileRequest(t, "/api/leads/incoming/file?meta__is_test=false", "leads.csv", data))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var result core.IngestResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 3, result.Created)
	assert.Equal(t, core.PhaseDone, result.Phase)

	stored, err := env.store.FindMany(t.Context(), store.Filter{})
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.False(t, stored[0].Meta.IsTest)
}

func TestIngestFile_BadRowRejectsBatch(t *testing.T) {
	env := newTestEnv(t, "")
	data := leadsCSV(t, leadsWithPhones(79990000001, 79990000002, 7999000000, 79990000004, 79990000005)...)

	rec := env.do(t, fileRequest(t, "/api/leads/incoming/file", "leads.csv", data))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "VAL007", resp.Code)
	require.Len(t, resp.Failures, 1)
	assert.Equal(t, 3, resp.Failures[0].Row)
	assert.Equal(t, 0, env.store.Len())
}

func TestIngestFile_Rejections(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, fileRequest(t, "/api/leads/incoming/file", "leads.txt", []byte("anything")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "FILE006", decodeError(t, rec).Code)

	rec = env.do(t, fileRequest(t, "/api/leads/incoming/file", "leads.csv", []byte("stream,user.phone\n")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "FILE005", decodeError(t, rec).Code)

	rec = env.do(t, jsonRequest(t, http.MethodPost, "/api/leads/incoming/file", map[string]string{}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "FILE004", decodeError(t, rec).Code)

	rec = env.do(t, fileRequest(t, "/api/leads/incoming/file", "leads.csv", bytes.Repeat([]byte("a"), 2<<20)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "FILE001", decodeError(t, rec).Code)
}

func TestTemplateDownload(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/leads/incoming/file/template?ext=csv", nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="accept_lead_template_`)
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "type,api_token,product,stream,applied_at,"))
	assertTempDirEmpty(t, env.tempDir)

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/leads/incoming/file/template?ext=pdf", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportRoundTrip(t *testing.T) {
	env := newTestEnv(t, "")
	_, err := env.store.CreateMany(t.Context(), leadsWithPhones(79990000001, 79990000002))
	require.NoError(t, err)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/leads?export=xlsx", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, core.ExtXLSX.ContentType(), rec.Header().Get("Content-Type"))
	assertTempDirEmpty(t, env.tempDir)

	other := newTestEnv(t, "")
	rec = other.do(t, fileRequest(t, "/api/leads/incoming/file", "export.xlsx", rec.Body.Bytes()))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 2, other.store.Len())
}

// =============================================================================
// Partners
// =============================================================================

func TestForwardLead(t *testing.T) {
	var gotToken string
	partnerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotToken, _ = body["api_token"].(string)
		_, _ = io.WriteString(w, `{"id":5,"status":"accepted","details":{"campaign1":{"status":"ok"}}}`)
	}))
	t.Cleanup(partnerSrv.Close)
	env := newTestEnv(t, partnerSrv.URL)

	rec := env.do(t, jsonRequest(t, http.MethodPost, "/api/leads/forward?meta__is_test=false", schema.ExampleLead()))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "leadcraft-key", gotToken)
	var result core.ForwardResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "accepted", result.Partner.Status)
	assert.False(t, result.Lead.Meta.IsTest)
	assert.Equal(t, 1, env.store.Len())
}

func TestForwardLead_RelaysPartnerError(t *testing.T) {
	partnerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"error":"duplicate lead"}`)
	}))
	t.Cleanup(partnerSrv.Close)
	env := newTestEnv(t, partnerSrv.URL)

	rec := env.do(t, jsonRequest(t, http.MethodPost, "/api/leads/forward", schema.ExampleLead()))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"duplicate lead"}`, rec.Body.String())
	assert.Equal(t, 0, env.store.Len())
}

func TestSendLead(t *testing.T) {
	partnerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"error":"duplicate","status":"error"}`)
	}))
	t.Cleanup(partnerSrv.Close)
	env := newTestEnv(t, partnerSrv.URL)

	body := map[string]any{"phone": 79990000000, "campaign": "c1", "token": "x"}
	rec := env.do(t, jsonRequest(t, http.MethodPost, "/api/leads/outgoing", body))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t, `{"error":"duplicate","status":"error"}`, rec.Body.String())

	body["phone"] = 89990000000
	rec = env.do(t, jsonRequest(t, http.MethodPost, "/api/leads/outgoing", body))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "VAL009", resp.Code)
	require.Len(t, resp.Fields, 1)
	assert.Equal(t, "phone", resp.Fields[0].Field)
}

func TestPartnerNotConfigured(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, jsonRequest(t, http.MethodPost, "/api/leads/forward", schema.ExampleLead()))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "UPS002", decodeError(t, rec).Code)
}
