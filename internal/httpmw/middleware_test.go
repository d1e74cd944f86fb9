package httpmw

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestIDGeneratesWhenAbsent(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	RequestID(next).ServeHTTP(rec, req)

	if seen == "" {
		t.Error("expected a generated request id in context")
	}
	if rec.Header().Get("X-Request-Id") != seen {
		t.Errorf("got header %q, want %q", rec.Header().Get("X-Request-Id"), seen)
	}
}

func TestRequestIDPreservesIncomingHeader(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "caller-supplied")
	RequestID(next).ServeHTTP(rec, req)

	if seen != "caller-supplied" {
		t.Errorf("got %q, want %q", seen, "caller-supplied")
	}
	if rec.Header().Get("X-Request-Id") != "caller-supplied" {
		t.Errorf("got header %q", rec.Header().Get("X-Request-Id"))
	}
}

func TestRequestIDFromContextEmptyWhenUnset(t *testing.T) {
	if got := RequestIDFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context()); got != "" {
		t.Errorf("got %q, want empty string", got)
	}
}

func TestSecurityHeadersSetsExpectedValues(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	rec := httptest.NewRecorder()
	SecurityHeaders(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Header().Get("Server") != "fleethub" {
		t.Errorf("got Server=%q", rec.Header().Get("Server"))
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Errorf("got X-Content-Type-Options=%q", rec.Header().Get("X-Content-Type-Options"))
	}
}
