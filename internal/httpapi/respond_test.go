package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fleethub/controlplane/internal/apierr"
)

func TestJSONWritesStatusAndBody(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusCreated, map[string]string{"id": "abc"})

	if rec.Code != http.StatusCreated {
		t.Errorf("got status %d, want %d", rec.Code, http.StatusCreated)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("got Content-Type %q", ct)
	}
	if !strings.Contains(rec.Body.String(), `"id":"abc"`) {
		t.Errorf("got body %q", rec.Body.String())
	}
}

func TestErrorMapsKindsToStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{apierr.Validationf("bad input"), http.StatusBadRequest},
		{apierr.NotFoundf("missing"), http.StatusNotFound},
		{apierr.Conflictf("already exists"), http.StatusConflict},
		{errPlain("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		Error(rec, c.err)
		if rec.Code != c.status {
			t.Errorf("Error(%v) status = %d, want %d", c.err, rec.Code, c.status)
		}
	}
}

type errPlain string

func (e errPlain) Error() string { return string(e) }

func TestDecodeJSONRejectsNilBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Body = nil
	var out map[string]string
	if err := DecodeJSON(req, &out); !apierr.IsValidation(err) {
		t.Errorf("expected a validation error, got %v", err)
	}
}

func TestDecodeJSONRejectsMalformedBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{not json"))
	var out map[string]string
	if err := DecodeJSON(req, &out); !apierr.IsValidation(err) {
		t.Errorf("expected a validation error, got %v", err)
	}
}

func TestDecodeJSONPopulatesTarget(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"deploy"}`))
	var out struct {
		Name string `json:"name"`
	}
	if err := DecodeJSON(req, &out); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if out.Name != "deploy" {
		t.Errorf("got %+v", out)
	}
}
