package usage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/fleethub/controlplane/internal/apierr"
	"github.com/fleethub/controlplane/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "usage.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordSessionValidates(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.RecordSession(model.SessionRecord{Agent: "lieutenant"}); !apierr.IsValidation(err) {
		t.Errorf("expected a validation error for missing sessionId, got %v", err)
	}
}

func TestRecordSessionAndList(t *testing.T) {
	s := openTestStore(t)
	rec, err := s.RecordSession(model.SessionRecord{
		SessionID: "sess-1", Agent: "lieutenant", Model: "claude",
		Tokens: model.TokenUsage{Total: 100}, Cost: model.CostUsage{Total: 0.5},
		StartedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("RecordSession: %v", err)
	}
	if rec.ID == "" {
		t.Error("expected an allocated id")
	}

	all, err := s.ListSessions(SessionFilters{})
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(all) != 1 || all[0].SessionID != "sess-1" {
		t.Errorf("got %+v", all)
	}
}

func TestUpsertSessionInsertsThenUpdatesInPlace(t *testing.T) {
	s := openTestStore(t)
	first, err := s.UpsertSession("sess-1", model.SessionRecord{
		Agent: "lieutenant", Tokens: model.TokenUsage{Total: 10},
	})
	if err != nil {
		t.Fatalf("UpsertSession: %v", err)
	}

	second, err := s.UpsertSession("sess-1", model.SessionRecord{
		Agent: "lieutenant", Tokens: model.TokenUsage{Total: 50},
	})
	if err != nil {
		t.Fatalf("UpsertSession: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected the same row to be reused, got ids %q and %q", first.ID, second.ID)
	}
	if second.StartedAt.IsZero() || !second.StartedAt.Equal(first.StartedAt) {
		t.Errorf("expected startedAt to be preserved across upserts")
	}

	all, err := s.ListSessions(SessionFilters{})
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(all) != 1 || all[0].Tokens.Total != 50 {
		t.Errorf("got %+v", all)
	}
}

func TestUpsertSessionValidates(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.UpsertSession("", model.SessionRecord{}); !apierr.IsValidation(err) {
		t.Errorf("expected a validation error for empty sessionId, got %v", err)
	}
}

func TestListSessionsFiltersByAgent(t *testing.T) {
	s := openTestStore(t)
	s.RecordSession(model.SessionRecord{SessionID: "s1", Agent: "lieutenant", StartedAt: time.Now().UTC()})
	s.RecordSession(model.SessionRecord{SessionID: "s2", Agent: "worker", StartedAt: time.Now().UTC()})

	filtered, err := s.ListSessions(SessionFilters{Agent: "worker"})
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(filtered) != 1 || filtered[0].SessionID != "s2" {
		t.Errorf("got %+v", filtered)
	}
}

func TestRecordVMValidates(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.RecordVM(model.VMAccountingRecord{Role: model.RoleWorker}); !apierr.IsValidation(err) {
		t.Errorf("expected a validation error for missing vmId, got %v", err)
	}
}

func TestRecordVMCreateThenDestroyUpdatesInPlace(t *testing.T) {
	s := openTestStore(t)
	created, err := s.RecordVM(model.VMAccountingRecord{VMID: "vm-1", Role: model.RoleWorker, Agent: "lieutenant"})
	if err != nil {
		t.Fatalf("RecordVM: %v", err)
	}

	now := time.Now().UTC()
	destroyed, err := s.RecordVM(model.VMAccountingRecord{VMID: "vm-1", DestroyedAt: &now})
	if err != nil {
		t.Fatalf("RecordVM: %v", err)
	}
	if destroyed.ID != created.ID {
		t.Errorf("expected the destroy to update the existing row, got new id %q vs %q", destroyed.ID, created.ID)
	}
	if destroyed.DestroyedAt == nil {
		t.Error("expected destroyedAt to be set")
	}
}

func TestListVMsDedupesByVMIDKeepingNewest(t *testing.T) {
	s := openTestStore(t)
	s.RecordVM(model.VMAccountingRecord{VMID: "vm-1", Role: model.RoleWorker, Agent: "a"})
	now := time.Now().UTC()
	s.RecordVM(model.VMAccountingRecord{VMID: "vm-1", DestroyedAt: &now})

	vms, err := s.ListVMs(VMFilters{})
	if err != nil {
		t.Fatalf("ListVMs: %v", err)
	}
	if len(vms) != 1 || vms[0].DestroyedAt == nil {
		t.Errorf("got %+v", vms)
	}
}

func TestSummaryAggregatesByAgent(t *testing.T) {
	s := openTestStore(t)
	s.RecordSession(model.SessionRecord{
		SessionID: "s1", Agent: "lieutenant", Tokens: model.TokenUsage{Total: 100},
		Cost: model.CostUsage{Total: 1.005}, StartedAt: time.Now().UTC(),
	})
	s.RecordSession(model.SessionRecord{
		SessionID: "s2", Agent: "worker", Tokens: model.TokenUsage{Total: 50},
		Cost: model.CostUsage{Total: 0.5}, StartedAt: time.Now().UTC(),
	})
	s.RecordVM(model.VMAccountingRecord{VMID: "vm-1", Role: model.RoleWorker, Agent: "worker"})

	summary, err := s.Summary("")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.Tokens != 150 || summary.Sessions != 2 {
		t.Errorf("got %+v", summary)
	}
	if summary.VMs != 1 {
		t.Errorf("got vms=%d, want 1", summary.VMs)
	}
	if _, ok := summary.ByAgent["lieutenant"]; !ok {
		t.Errorf("expected a lieutenant entry, got %+v", summary.ByAgent)
	}
}

func TestSummaryRangeExcludesOldSessions(t *testing.T) {
	s := openTestStore(t)
	old := time.Now().UTC().Add(-48 * time.Hour)
	s.RecordSession(model.SessionRecord{SessionID: "old", Agent: "a", StartedAt: old})
	s.RecordSession(model.SessionRecord{SessionID: "recent", Agent: "a", StartedAt: time.Now().UTC()})

	summary, err := s.Summary("1h")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.Sessions != 1 {
		t.Errorf("got sessions=%d, want 1", summary.Sessions)
	}
}
