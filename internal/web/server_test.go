package web

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/carimport/internal/config"
	"github.com/JonMunkholm/carimport/internal/core"
	"github.com/JonMunkholm/carimport/internal/core/tables"
	"github.com/JonMunkholm/carimport/internal/store"
)

const carsCSV = "kundennummer;interne_nummer;car_type;marke;modell;vin;preis\n" +
	"K1;A-1;PKW;VW;Golf;WVWZZZ1KZAW000001;12.500,00\n" +
	"K1;A-2;PKW;BMW;320d;;19.990,00\n" +
	"K1;A-3;PKW;Audi;A4;;abc\n"

func testConfig() *config.Config {
	return &config.Config{
		Import: config.ImportConfig{
			Table:          tables.CarsKey,
			Delimiter:      ";",
			Encoding:       "utf-8",
			DateMode:       "strict",
			IntegerMode:    "lenient",
			RequireColumns: true,
			Username:       "web",
			MaxFileSize:    1 << 20,
			MaxConcurrent:  2,
			MaxWaitTime:    time.Second,
			Timeout:        time.Minute,
		},
		Security: config.SecurityConfig{EnableCSP: true},
	}
}

// newTestServer returns a server backed by a migrated SQLite store.
func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, store.Store) {
	t.Helper()
	return newTestServerAt(t, filepath.Join(t.TempDir(), "web.db"), mutate)
}

func newTestServerAt(t *testing.T, dbPath string, mutate func(*config.Config)) (*Server, store.Store) {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}

	st, err := store.NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	limiter := core.NewImportLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime)
	s := NewServer(st, limiter, cfg)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s, st
}

// multipartBody builds a form with a "file" part and extra fields.
func multipartBody(t *testing.T, name, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if name != "" {
		fw, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status  string             `json:"status"`
		Imports core.LimiterStatus `json:"imports"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 2, body.Imports.MaxConcurrent)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestImportAPI(t *testing.T) {
	s, st := newTestServer(t, nil)

	body, ct := multipartBody(t, "bestand.csv", carsCSV, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/import/cars", body)
	req.Header.Set("Content-Type", ct)

	rec := serve(s, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ImportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "cars", resp.Table)
	assert.Equal(t, "bestand.csv", resp.FileName)
	assert.Equal(t, 3, resp.TotalRows)
	assert.Equal(t, 2, resp.Created)
	require.Len(t, resp.Errors, 1)
	assert.Contains(t, resp.Errors[0], "row 4")
	assert.NotEmpty(t, resp.Checksum)

	runs, err := st.ListRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, core.RunCommitted, runs[0].Status)
	assert.Equal(t, 1, runs[0].Failed)
}

func TestImportAPI_DelimiterOverride(t *testing.T) {
	s, _ := newTestServer(t, nil)

	data := strings.ReplaceAll(carsCSV, ";", ",")
	data = strings.ReplaceAll(data, "12.500,00", `"12.500,00"`)
	data = strings.ReplaceAll(data, "19.990,00", `"19.990,00"`)

	body, ct := multipartBody(t, "comma.csv", data, map[string]string{"delimiter": "comma"})
	req := httptest.NewRequest(http.MethodPost, "/api/import/cars", body)
	req.Header.Set("Content-Type", ct)

	rec := serve(s, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ImportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Created)
}

func TestImportAPI_Errors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		file       string
		content    string
		fields     map[string]string
		wantStatus int
		wantCode   string
	}{
		{"unknown table", "/api/import/boats", "a.csv", carsCSV, nil, http.StatusNotFound, "TBL001"},
		{"no file", "/api/import/cars", "", "", nil, http.StatusBadRequest, "FILE004"},
		{"missing columns", "/api/import/cars", "a.csv", "marke;modell\nVW;Golf\n", nil, http.StatusUnprocessableEntity, "VAL004"},
		{"empty file", "/api/import/cars", "a.csv", "", nil, http.StatusUnprocessableEntity, "FILE005"},
		{"bad delimiter", "/api/import/cars", "a.csv", carsCSV, map[string]string{"delimiter": "#"}, http.StatusBadRequest, "VAL005"},
		{"bad encoding", "/api/import/cars", "a.csv", carsCSV, map[string]string{"encoding": "ebcdic"}, http.StatusBadRequest, "VAL005"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, nil)

			body, ct := multipartBody(t, tt.file, tt.content, tt.fields)
			req := httptest.NewRequest(http.MethodPost, tt.path, body)
			req.Header.Set("Content-Type", ct)

			rec := serve(s, req)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestImportAPI_FileTooLarge(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) { c.Import.MaxFileSize = 16 })

	body, ct := multipartBody(t, "big.csv", carsCSV, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/import/cars", body)
	req.Header.Set("Content-Type", ct)

	rec := serve(s, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestImportAPI_RequiresAPIKey(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "auth.db")
	s, _ := newTestServerAt(t, dbPath, func(c *config.Config) {
		c.Security.RequireAPIKey = true
		c.Security.APIKeys = []string{"haendler7:s3cret"}
	})

	body, ct := multipartBody(t, "a.csv", carsCSV, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/import/cars", body)
	req.Header.Set("Content-Type", ct)
	assert.Equal(t, http.StatusUnauthorized, serve(s, req).Code)

	body, ct = multipartBody(t, "a.csv", carsCSV, nil)
	req = httptest.NewRequest(http.MethodPost, "/api/import/cars", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("X-API-Key", "s3cret")
	rec := serve(s, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM cars WHERE username = ?`, "haendler7").Scan(&n))
	assert.Equal(t, 2, n)
}

func TestImportForm_RequiresAPIKey(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "form-auth.db")
	s, _ := newTestServerAt(t, dbPath, func(c *config.Config) {
		c.Security.RequireAPIKey = true
		c.Security.APIKeys = []string{"haendler7:s3cret"}
	})

	assert.Equal(t, http.StatusUnauthorized, serve(s, httptest.NewRequest(http.MethodGet, "/", nil)).Code)

	body, ct := multipartBody(t, "a.csv", carsCSV, nil)
	req := httptest.NewRequest(http.MethodPost, "/import", body)
	req.Header.Set("Content-Type", ct)
	rec := serve(s, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM cars`).Scan(&n))
	assert.Zero(t, n)

	body, ct = multipartBody(t, "a.csv", carsCSV, nil)
	req = httptest.NewRequest(http.MethodPost, "/import", body)
	req.Header.Set("Content-Type", ct)
	req.SetBasicAuth("", "s3cret")
	rec = serve(s, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM cars WHERE username = ?`, "haendler7").Scan(&n))
	assert.Equal(t, 2, n)
}

func TestImportForm_RendersSummary(t *testing.T) {
	s, _ := newTestServer(t, nil)

	body, ct := multipartBody(t, "bestand.csv", carsCSV, map[string]string{"table": "cars"})
	req := httptest.NewRequest(http.MethodPost, "/import", body)
	req.Header.Set("Content-Type", ct)

	rec := serve(s, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	html := rec.Body.String()
	assert.Contains(t, html, "Import complete")
	assert.Contains(t, html, "<b>2</b>created")
	assert.Contains(t, html, "Row errors")
}

func TestImportForm_ErrorPage(t *testing.T) {
	s, _ := newTestServer(t, nil)

	body, ct := multipartBody(t, "a.csv", "marke;modell\n<b>x</b>;y\n", nil)
	req := httptest.NewRequest(http.MethodPost, "/import", body)
	req.Header.Set("Content-Type", ct)

	rec := serve(s, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Code: VAL004")
}

func TestIndexPage(t *testing.T) {
	s, st := newTestServer(t, nil)
	require.NoError(t, st.RecordRun(context.Background(), core.ImportRun{
		ID: "r1", TableKey: "cars", FileName: "<alt>.csv", Status: core.RunCommitted,
		StartedAt: time.Now(), FinishedAt: time.Now(),
	}))

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	html := rec.Body.String()
	assert.Contains(t, html, `<option value="cars" selected>`)
	assert.Contains(t, html, `&lt;alt&gt;.csv`)
	assert.NotContains(t, html, `<alt>.csv`)
}

func TestSchemaAndTables(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/schema/autos", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var schema SchemaResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &schema))
	assert.Equal(t, "autos", schema.Key)
	assert.Equal(t, []string{"vin"}, schema.IdentityKeys)
	types := map[string]string{}
	for _, f := range schema.Fields {
		types[f.Name] = f.Type
	}
	assert.Equal(t, "decimal", types["price"])
	assert.Equal(t, "boolean", types["sold"])

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/schema/boats", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/tables", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []TableResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "autos", list[0].Key)
	assert.Equal(t, "cars", list[1].Key)
}

func TestListImports(t *testing.T) {
	s, st := newTestServer(t, nil)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/imports", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, st.RecordRun(context.Background(), core.ImportRun{
			ID: id, TableKey: "cars", Status: core.RunCommitted,
			StartedAt: start.Add(time.Duration(i) * time.Hour), FinishedAt: start,
		}))
	}

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/imports?limit=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []core.ImportRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 2)
	assert.Equal(t, "r3", runs[0].ID)
}

func TestRateLimit(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) {
		c.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2, ImportLimit: 1}
	})

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
	}
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestImportLimiterBusy(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) {
		c.Import.MaxConcurrent = 1
		c.Import.MaxWaitTime = 10 * time.Millisecond
	})
	require.True(t, s.limiter.TryAcquire())
	defer s.limiter.Release()

	body, ct := multipartBody(t, "a.csv", carsCSV, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/import/cars", body)
	req.Header.Set("Content-Type", ct)

	rec := serve(s, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))
}

func TestImportLimiterWaitsForSlot(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) {
		c.Import.MaxConcurrent = 1
		c.Import.MaxWaitTime = 5 * time.Second
	})
	require.True(t, s.limiter.TryAcquire())
	time.AfterFunc(50*time.Millisecond, s.limiter.Release)

	body, ct := multipartBody(t, "a.csv", carsCSV, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/import/cars", body)
	req.Header.Set("Content-Type", ct)

	rec := serve(s, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 0, s.limiter.Active())
}

func TestCORS(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) {
		c.Security.AllowedOrigins = []string{"https://dealer.example"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/imports", nil)
	req.Header.Set("Origin", "https://dealer.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	rec := serve(s, req)
	assert.Equal(t, "https://dealer.example", rec.Header().Get("Access-Control-Allow-Origin"))
}
