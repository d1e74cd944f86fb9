package skills

import (
	"testing"

	"github.com/fleethub/controlplane/internal/model"
)

func planFor(plan []model.SyncItem, name string) (model.SyncItem, bool) {
	for _, p := range plan {
		if p.Name == name {
			return p, true
		}
	}
	return model.SyncItem{}, false
}

func TestSyncInstallsMissingEnabledSkill(t *testing.T) {
	s := openTestStore(t)
	s.PublishSkill(PublishInput{Name: "deploy", PublishedBy: "alice"})

	plan := s.Sync("agent-1", "vm-1", model.AgentManifest{})
	item, ok := planFor(plan, "deploy")
	if !ok || item.Action != model.ActionInstall {
		t.Errorf("got plan %+v", plan)
	}
}

func TestSyncUpdatesStaleVersion(t *testing.T) {
	s := openTestStore(t)
	s.PublishSkill(PublishInput{Name: "deploy", PublishedBy: "alice"})
	s.PublishSkill(PublishInput{Name: "deploy", PublishedBy: "alice"}) // bump to version 2

	plan := s.Sync("agent-1", "vm-1", model.AgentManifest{
		Skills: []model.SkillRef{{Name: "deploy", Version: 1}},
	})
	item, ok := planFor(plan, "deploy")
	if !ok || item.Action != model.ActionUpdate || item.Version != 2 {
		t.Errorf("got plan %+v", plan)
	}
}

func TestSyncSkipsUpToDateSkill(t *testing.T) {
	s := openTestStore(t)
	published, err := s.PublishSkill(PublishInput{Name: "deploy", PublishedBy: "alice"})
	if err != nil {
		t.Fatalf("PublishSkill: %v", err)
	}

	plan := s.Sync("agent-1", "vm-1", model.AgentManifest{
		Skills: []model.SkillRef{{Name: "deploy", Version: published.Version}},
	})
	if _, ok := planFor(plan, "deploy"); ok {
		t.Errorf("expected no plan entry for an up-to-date skill, got %+v", plan)
	}
}

func TestSyncRemovesDisabledSkill(t *testing.T) {
	s := openTestStore(t)
	s.PublishSkill(PublishInput{Name: "deploy", PublishedBy: "alice"})
	s.SetSkillEnabled("deploy", false)

	plan := s.Sync("agent-1", "vm-1", model.AgentManifest{
		Skills: []model.SkillRef{{Name: "deploy", Version: 1}},
	})
	item, ok := planFor(plan, "deploy")
	if !ok || item.Action != model.ActionRemove {
		t.Errorf("got plan %+v", plan)
	}
}

func TestSyncRemovesItemUnknownToHub(t *testing.T) {
	s := openTestStore(t)

	plan := s.Sync("agent-1", "vm-1", model.AgentManifest{
		Skills: []model.SkillRef{{Name: "ghost", Version: 1}},
	})
	item, ok := planFor(plan, "ghost")
	if !ok || item.Action != model.ActionRemove {
		t.Errorf("got plan %+v", plan)
	}
}

func TestSyncRecordsManifest(t *testing.T) {
	s := openTestStore(t)
	s.Sync("agent-1", "vm-9", model.AgentManifest{
		Skills: []model.SkillRef{{Name: "deploy", Version: 1}},
	})

	got, err := s.GetManifest("agent-1")
	if err != nil {
		t.Fatalf("GetManifest: %v", err)
	}
	if got.VMID != "vm-9" || len(got.Skills) != 1 {
		t.Errorf("got %+v", got)
	}
}
