package logs

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/fleethub/controlplane/internal/apierr"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "logs.jsonl"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestAppendValidatesText(t *testing.T) {
	s := openTestStore(t)
	defer s.Close()

	if _, err := s.Append("", "agent-1", nil); !apierr.IsValidation(err) {
		t.Errorf("expected a validation error for empty text, got %v", err)
	}
}

func TestAllFiltersByAgent(t *testing.T) {
	s := openTestStore(t)
	defer s.Close()

	s.Append("agent-1 line", "agent-1", nil)
	s.Append("agent-2 line", "agent-2", nil)

	all := s.All("")
	if len(all) != 2 {
		t.Fatalf("got %d entries, want 2", len(all))
	}

	filtered := s.All("agent-1")
	if len(filtered) != 1 || filtered[0].Agent != "agent-1" {
		t.Errorf("got %+v", filtered)
	}
}

func TestRawFiltersByAgentToo(t *testing.T) {
	s := openTestStore(t)
	defer s.Close()

	s.Append("agent-1 line", "agent-1", nil)
	s.Append("agent-2 line", "agent-2", nil)

	raw := s.Raw("agent-2")
	if len(raw) == 0 {
		t.Fatal("expected non-empty raw output")
	}
	if strings.Contains(raw, "agent-1 line") {
		t.Errorf("raw output for agent-2 should not include agent-1's line, got %q", raw)
	}
}
