package web

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/datashed/csvintake/internal/audit"
	"github.com/datashed/csvintake/internal/config"
	"github.com/datashed/csvintake/internal/intake"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			ShutdownTimeout: time.Second,
			RequestTimeout:  time.Minute,
		},
		Intake: config.IntakeConfig{
			MaxFileSize:   1 << 20,
			MaxMemory:     1 << 20,
			Charset:       "utf-8",
			MaxConcurrent: 2,
			MaxWaitTime:   time.Second,
		},
		Logging: config.LoggingConfig{Level: "error", Format: "text"},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	parser, err := intake.NewParser(intake.Config{
		Charset:   cfg.Intake.Charset,
		MaxMemory: cfg.Intake.MaxMemory,
	})
	if err != nil {
		t.Fatalf("NewParser() error = %v", err)
	}
	limiter := intake.NewLimiter(cfg.Intake.MaxConcurrent, cfg.Intake.MaxWaitTime)
	return NewServer(cfg, parser, audit.NopRecorder{}, limiter)
}

// postCSV sends a multipart request to /api/parse through the full
// router and returns the recorder.
func postCSV(t *testing.T, s *Server, files map[string]string, fields map[string]string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for field, content := range files {
		part, err := w.CreateFormFile(field, field+".csv")
		if err != nil {
			t.Fatalf("CreateFormFile(%q) error = %v", field, err)
		}
		if _, err := part.Write([]byte(content)); err != nil {
			t.Fatalf("writing part %q: %v", field, err)
		}
	}
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			t.Fatalf("WriteField(%q) error = %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}

	r := httptest.NewRequest(http.MethodPost, "/api/parse", &body)
	r.Header.Set("Content-Type", w.FormDataContentType())
	for k, v := range header {
		r.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, r)
	return rec
}

func TestHandleParse_Lists(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := postCSV(t, s, map[string]string{
		"customers": "h1,h2\na,false\nb,c",
	}, nil, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	want := map[string]any{
		"customers": []any{
			[]any{"a", false},
			[]any{"b", "c"},
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("response = %v, want %v", got, want)
	}
}

func TestHandleParse_WithKeysAndColumns(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := postCSV(t, s, map[string]string{
		"upload": "h1,h2,h3\na,b,false",
	}, map[string]string{
		"with_keys": "true",
		"columns":   "h1, h3",
	}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	want := map[string]any{
		"upload": []any{
			map[string]any{"h1": "a", "h3": false},
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("response = %v, want %v", got, want)
	}
}

func TestHandleParse_MalformedFileFailsWhole(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := postCSV(t, s, map[string]string{
		"good": "h1,h2\na,b",
		"bad":  "h1,h2,h3\na,b",
	}, nil, nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	if resp.Code != "MP001" {
		t.Errorf("Code = %q, want %q", resp.Code, "MP001")
	}
	// No partial results: the valid file must not leak into an error
	// response.
	if bytes.Contains(rec.Body.Bytes(), []byte(`"good":`)) {
		t.Error("error response contains partial results")
	}
}

func TestHandleParse_UnknownColumn(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := postCSV(t, s, map[string]string{
		"upload": "h1,h2\na,b",
	}, map[string]string{
		"columns": "nope",
	}, nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	if resp.Code != "CSV002" {
		t.Errorf("Code = %q, want %q", resp.Code, "CSV002")
	}
}

func TestHandleParse_RequiresAPIKey(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RequireAPIKey = true
	cfg.Security.APIKeys = []string{"sekret"}
	s := newTestServer(t, cfg)

	rec := postCSV(t, s, map[string]string{"upload": "h1\na"}, nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without key = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	rec = postCSV(t, s, map[string]string{"upload": "h1\na"}, nil, map[string]string{
		"X-API-Key": "sekret",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status with key = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
}

func TestHandleEvents_EmptyWithoutStore(t *testing.T) {
	s := newTestServer(t, testConfig())

	r := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	events, ok := got["events"].([]any)
	if !ok || len(events) != 0 {
		t.Errorf("events = %v, want empty list", got["events"])
	}
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t, testConfig())

	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
}

func TestMapError_Unknown(t *testing.T) {
	msg := MapError(errAny{})
	if msg.Code != "GEN001" {
		t.Errorf("Code = %q, want GEN001", msg.Code)
	}
}

type errAny struct{}

func (errAny) Error() string { return "boom" }
