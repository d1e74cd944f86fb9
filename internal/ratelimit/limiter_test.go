package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCheckAllowsUnderLimit(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	l := NewWithClock(time.Minute, 3, clock)
	defer l.Stop()

	for i := 0; i < 3; i++ {
		d := l.Check("a")
		if !d.Allowed {
			t.Fatalf("request %d should be allowed, got %+v", i, d)
		}
	}
}

func TestCheckRejectsOverLimit(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	l := NewWithClock(time.Minute, 2, clock)
	defer l.Stop()

	l.Check("a")
	l.Check("a")
	d := l.Check("a")

	if d.Allowed {
		t.Fatal("expected the third request to be rejected")
	}
	if d.RetryAfter <= 0 {
		t.Errorf("expected a positive RetryAfter, got %d", d.RetryAfter)
	}
}

func TestCheckWindowSlides(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	l := NewWithClock(time.Minute, 1, clock)
	defer l.Stop()

	l.Check("a")
	if l.Check("a").Allowed {
		t.Fatal("second request within the window should be rejected")
	}

	now = now.Add(time.Minute + time.Second)
	if !l.Check("a").Allowed {
		t.Error("request after the window elapsed should be allowed again")
	}
}

func TestCheckKeysAreIndependent(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	l := NewWithClock(time.Minute, 1, clock)
	defer l.Stop()

	l.Check("a")
	if !l.Check("b").Allowed {
		t.Error("a different key should have its own bucket")
	}
}

func TestKeyForBearerVsAnonymous(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := KeyFor(req); got != anonymousKey {
		t.Errorf("got %q, want anonymous key", got)
	}

	req.Header.Set("Authorization", "Bearer tok123")
	if got := KeyFor(req); got != "bearer:tok123" {
		t.Errorf("got %q, want bearer:tok123", got)
	}
}

func TestMiddlewareSets429AndHeaders(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	l := NewWithClock(time.Minute, 1, clock)
	defer l.Stop()

	handler := Middleware(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: got %d", rec.Code)
	}

	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: got %d, want 429", rec2.Code)
	}
	if rec2.Header().Get("Retry-After") == "" {
		t.Error("expected a Retry-After header on 429")
	}
}
