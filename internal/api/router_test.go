package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/eugenenazirov/confref/internal/resolver"
	"github.com/eugenenazirov/confref/internal/storage"
)

func newTestRouter(t *testing.T, opts ...RouterOption) http.Handler {
	t.Helper()

	res, err := resolver.New()
	if err != nil {
		t.Fatalf("failed to create resolver: %v", err)
	}
	return NewRouter(NewHandler(res, storage.NewMemoryStorage()), zaptest.NewLogger(t), opts...)
}

func TestRouterRoutes(t *testing.T) {
	router := newTestRouter(t, WithLogging(false), WithRateLimit(0, 0))

	tests := []struct {
		method string
		target string
		want   int
	}{
		{http.MethodGet, "/api/health", http.StatusOK},
		{http.MethodGet, "/api/documents", http.StatusOK},
		{http.MethodGet, "/api/documents/absent", http.StatusNotFound},
		{http.MethodDelete, "/api/documents/absent", http.StatusNotFound},
		{http.MethodPost, "/api/documents", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/resolve", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/unknown", http.StatusNotFound},
		{http.MethodGet, "/api/metrics", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.target, nil))
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestAccessLogFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	handler := loggingMiddleware(zap.New(core), http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("stored"))
	}))

	req := httptest.NewRequest(http.MethodPut, "/api/documents/app", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	req = req.WithContext(contextWithRequestID(req.Context(), "req-7"))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one access log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	want := map[string]any{
		"method":     http.MethodPut,
		"path":       "/api/documents/app",
		"status":     int64(http.StatusCreated),
		"bytes":      int64(len("stored")),
		"client":     "10.1.2.3",
		"request_id": "req-7",
	}
	for key, value := range want {
		if fields[key] != value {
			t.Fatalf("expected %s=%v, got %v", key, value, fields[key])
		}
	}
}

func TestAccessLogDisabled(t *testing.T) {
	res, err := resolver.New()
	if err != nil {
		t.Fatalf("failed to create resolver: %v", err)
	}
	core, logs := observer.New(zap.InfoLevel)
	router := NewRouter(NewHandler(res, storage.NewMemoryStorage()), zap.New(core), WithLogging(false))

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if n := logs.Len(); n != 0 {
		t.Fatalf("expected no log entries with logging disabled, got %d", n)
	}
}

func TestRecoveryLogsAndReturnsJSON(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	handler := recoveryMiddleware(zap.New(core), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(fmt.Sprintf("walk failed at %s", "db.host"))
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/resolve", nil)
	req = req.WithContext(contextWithRequestID(req.Context(), "req-9"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 after panic, got %d", rec.Code)
	}
	var body errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON error body: %v", err)
	}
	if body.Error != "Internal error" {
		t.Fatalf("unexpected error body: %+v", body)
	}

	entries := logs.FilterMessage("panic recovered").All()
	if len(entries) != 1 {
		t.Fatalf("expected one panic log entry, got %d", len(entries))
	}
	if id := entries[0].ContextMap()["request_id"]; id != "req-9" {
		t.Fatalf("expected request id on panic log, got %v", id)
	}
}

func TestResponseRecorderCountsBytes(t *testing.T) {
	underlying := httptest.NewRecorder()
	rec := &responseRecorder{ResponseWriter: underlying, status: http.StatusOK}

	for _, chunk := range []string{`{"config":`, `{}}`} {
		if _, err := rec.Write([]byte(chunk)); err != nil {
			t.Fatalf("Write returned error: %v", err)
		}
	}
	if rec.bytes != int64(len(`{"config":{}}`)) {
		t.Fatalf("expected all chunks to be counted, got %d", rec.bytes)
	}
	if rec.status != http.StatusOK || underlying.Code != http.StatusOK {
		t.Fatalf("expected implicit 200, got %d/%d", rec.status, underlying.Code)
	}

	rec.WriteHeader(http.StatusUnprocessableEntity)
	if rec.status != http.StatusUnprocessableEntity {
		t.Fatalf("expected explicit status to be recorded, got %d", rec.status)
	}
}

func TestRateLimitedResponseCarriesRequestID(t *testing.T) {
	router := newTestRouter(t, WithLogging(false), WithRateLimiter(&staticLimiter{allow: false}))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "limited-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected rate limiter to block request, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-Request-ID"); got != "limited-1" {
		t.Fatalf("expected request id on limited response, got %q", got)
	}
}

func TestWithRateLimitZeroOverridesLimiter(t *testing.T) {
	router := newTestRouter(t, WithLogging(false), WithRateLimiter(&staticLimiter{allow: false}), WithRateLimit(0, 0))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected limiter to be disabled, got %d", rec.Code)
	}
}

func TestWithRateLimitAppliesPerClient(t *testing.T) {
	router := newTestRouter(t, WithLogging(false), WithRateLimit(1, 1))

	send := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send("192.0.2.1:1000"); code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", code)
	}
	if code := send("192.0.2.1:1001"); code != http.StatusTooManyRequests {
		t.Fatalf("expected second request from the same host to be limited, got %d", code)
	}
	if code := send("192.0.2.2:1000"); code != http.StatusOK {
		t.Fatalf("expected another host to have its own bucket, got %d", code)
	}
}
