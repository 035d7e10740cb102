package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/eugenenazirov/confref/internal/resolver"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 from scrape, got %d", rec.Code)
	}
	return rec.Body.String()
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "success", err: nil, want: OutcomeOK},
		{name: "missing", err: &resolver.ReferenceNotFoundError{Token: "{{a}}", Reference: "a", Key: "b"}, want: OutcomeReferenceNotFound},
		{name: "wrapped missing", err: fmt.Errorf("resolve: %w", resolver.ErrReferenceNotFound), want: OutcomeReferenceNotFound},
		{name: "circular", err: &resolver.CircularReferenceError{Chain: []string{"a", "a"}}, want: OutcomeCircularReference},
		{name: "other", err: errors.New("boom"), want: OutcomeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Outcome(tt.err); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestObserveResolution(t *testing.T) {
	m := New()
	m.ObserveResolution(nil, 3)
	m.ObserveResolution(nil, 2)
	m.ObserveResolution(resolver.ErrCircularReference, 7)

	body := scrape(t, m)
	for _, want := range []string{
		`confref_resolutions_total{outcome="ok"} 2`,
		`confref_resolutions_total{outcome="circular_reference"} 1`,
		`confref_rewritten_keys_total 5`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected scrape to contain %q, got:\n%s", want, body)
		}
	}
}

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	m := New()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/documents/{name}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	handler := m.Middleware(mux)

	for _, path := range []string{"/api/documents/a", "/api/documents/b", "/nowhere"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	body := scrape(t, m)
	for _, want := range []string{
		`confref_http_requests_total{method="GET",route="GET /api/documents/{name}",status="404"} 2`,
		`confref_http_requests_total{method="GET",route="unmatched",status="404"} 1`,
		`confref_http_request_duration_seconds_count{method="GET",route="GET /api/documents/{name}"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected scrape to contain %q, got:\n%s", want, body)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveResolution(nil, 1)

	called := false
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })
	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Fatalf("expected nil metrics middleware to pass through")
	}
	if m.Registry() != nil {
		t.Fatalf("expected nil registry")
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 from nil metrics handler, got %d", rec.Code)
	}
}
