package authmw

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeVerifier struct {
	valid map[string]bool
}

func (f fakeVerifier) Verify(raw string) bool { return f.valid[raw] }

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareRejectsMissingBearer(t *testing.T) {
	auth := New("secret", nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	auth.Middleware(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("got %d, want 401", rec.Code)
	}
}

func TestMiddlewareAcceptsAdminToken(t *testing.T) {
	auth := New("secret", nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()

	auth.Middleware(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("got %d, want 200", rec.Code)
	}
}

func TestMiddlewareFallsBackToKeyVerifier(t *testing.T) {
	auth := New("secret", fakeVerifier{valid: map[string]bool{"api-key-1": true}})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer api-key-1")
	rec := httptest.NewRecorder()

	auth.Middleware(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("got %d, want 200", rec.Code)
	}
}

func TestMiddlewareRejectsUnknownToken(t *testing.T) {
	auth := New("secret", fakeVerifier{valid: map[string]bool{"api-key-1": true}})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()

	auth.Middleware(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("got %d, want 401", rec.Code)
	}
}

func TestMiddlewareRejectsMalformedHeader(t *testing.T) {
	auth := New("secret", nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic secret")
	rec := httptest.NewRecorder()

	auth.Middleware(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("got %d, want 401", rec.Code)
	}
}

func TestMiddlewareDisabledAdminTokenStillAllowsKeys(t *testing.T) {
	auth := New("", fakeVerifier{valid: map[string]bool{"k": true}})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer k")
	rec := httptest.NewRecorder()

	auth.Middleware(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("got %d, want 200", rec.Code)
	}
}
