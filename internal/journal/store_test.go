package journal

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/fleethub/controlplane/internal/apierr"
)

func TestAppendValidatesText(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "journal.jsonl"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if _, err := s.Append("  ", "agent-1", "", nil); !apierr.IsValidation(err) {
		t.Errorf("expected a validation error for blank text, got %v", err)
	}
}

func TestAppendAndAll(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "journal.jsonl"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if _, err := s.Append("started deploying", "agent-1", "focused", []string{"deploy"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	entries := s.All()
	if len(entries) != 1 || entries[0].Text != "started deploying" {
		t.Errorf("got %+v", entries)
	}
}

func TestRawRendersReadableLines(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "journal.jsonl"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	s.Append("first entry", "agent-1", "", nil)
	s.Append("second entry", "agent-2", "", nil)

	raw := s.Raw()
	if !strings.Contains(raw, "[agent-1] first entry") {
		t.Errorf("got %q", raw)
	}
	if !strings.Contains(raw, "[agent-2] second entry") {
		t.Errorf("got %q", raw)
	}
}
