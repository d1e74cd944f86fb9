package skills

import "github.com/fleethub/controlplane/internal/model"

// Sync diffs an agent's reported inventory against the hub's enabled
// skills/extensions and returns an ordered install/update/remove plan
// (§4.N), then records the submitted manifest under agentID with a fresh
// lastSync.
func (s *Store) Sync(agentID string, vmID string, reported model.AgentManifest) []model.SyncItem {
	var plan []model.SyncItem
	plan = append(plan, diffOne("skill", s.ListSkills(), reported.Skills)...)
	plan = append(plan, diffOne("extension", s.ListExtensions(), reported.Extensions)...)

	reported.AgentID = agentID
	reported.VMID = vmID
	s.UpsertManifest(reported)

	return plan
}

// diffOne computes the install/update/remove plan for one item family
// (skills or extensions) in isolation.
func diffOne(typ string, hub []model.Skill, agentItems []model.SkillRef) []model.SyncItem {
	agentByName := make(map[string]int, len(agentItems))
	for _, a := range agentItems {
		agentByName[a.Name] = a.Version
	}
	hubByName := make(map[string]model.Skill, len(hub))

	var plan []model.SyncItem
	for _, h := range hub {
		hubByName[h.Name] = h
		if !h.Enabled {
			continue
		}
		agentVersion, has := agentByName[h.Name]
		switch {
		case !has:
			plan = append(plan, model.SyncItem{Type: typ, Name: h.Name, Version: h.Version, Action: model.ActionInstall})
		case agentVersion < h.Version:
			plan = append(plan, model.SyncItem{Type: typ, Name: h.Name, Version: h.Version, Action: model.ActionUpdate})
		}
	}

	for _, a := range agentItems {
		h, onHub := hubByName[a.Name]
		if !onHub || !h.Enabled {
			plan = append(plan, model.SyncItem{Type: typ, Name: a.Name, Version: a.Version, Action: model.ActionRemove})
		}
	}
	return plan
}
