package apierr

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidationfKindAndMessage(t *testing.T) {
	err := Validationf("%s is required", "title")
	if err.Kind != KindValidation {
		t.Errorf("got kind %v, want %v", err.Kind, KindValidation)
	}
	if err.Error() != "title is required" {
		t.Errorf("got message %q", err.Error())
	}
}

func TestIsHelpers(t *testing.T) {
	if !IsNotFound(NotFoundf("task %s", "t1")) {
		t.Error("IsNotFound should be true for a NotFoundf error")
	}
	if !IsConflict(Conflictf("already exists")) {
		t.Error("IsConflict should be true for a Conflictf error")
	}
	if !IsValidation(Validationf("bad input")) {
		t.Error("IsValidation should be true for a Validationf error")
	}
	if IsNotFound(Conflictf("x")) {
		t.Error("IsNotFound should be false for a conflict error")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	wrapped := Wrap(KindConflict, "write failed", cause)

	if !errors.Is(wrapped, cause) {
		t.Error("errors.Is should see through Unwrap to the cause")
	}
	if wrapped.Error() != "write failed: disk full" {
		t.Errorf("got %q", wrapped.Error())
	}
}

func TestAsFindsErrorThroughFmtWrap(t *testing.T) {
	base := NotFoundf("vm %s", "v1")
	outer := fmt.Errorf("registry lookup: %w", base)

	found, ok := As(outer)
	if !ok {
		t.Fatal("expected As to find the wrapped *Error")
	}
	if found.Kind != KindNotFound {
		t.Errorf("got kind %v", found.Kind)
	}
}

func TestAsNilError(t *testing.T) {
	if _, ok := As(nil); ok {
		t.Error("As(nil) should report not-found")
	}
}
