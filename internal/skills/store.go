// Package skills implements the Skill Hub of §3/§4.J/§4.N: durable maps of
// published skills, extensions, and agent manifests, plus the change-event
// bus agents tail to learn what just got published. Skills and extensions
// share model.Skill's shape; only which MapStore holds them distinguishes
// the two, per spec.md §3.
package skills

import (
	"sort"
	"strings"
	"time"

	"github.com/fleethub/controlplane/internal/apierr"
	"github.com/fleethub/controlplane/internal/dstore"
	"github.com/fleethub/controlplane/internal/eventbus"
	"github.com/fleethub/controlplane/internal/idgen"
	"github.com/fleethub/controlplane/internal/model"
)

// kind distinguishes the two MapStores a published item can live in when
// recording a change event; it has no bearing on storage layout otherwise.
type kind string

const (
	kindSkill     kind = "skill"
	kindExtension kind = "extension"
)

// Store owns the skill, extension, and agent-manifest maps, plus the bus
// that carries their change events.
type Store struct {
	skills     *dstore.MapStore[string, model.Skill]
	extensions *dstore.MapStore[string, model.Skill]
	manifests  *dstore.MapStore[string, model.AgentManifest]
	changes    *eventbus.Bus
}

// Paths bundles the three document paths Open needs.
type Paths struct {
	Skills     string
	Extensions string
	Manifests  string
}

// Open opens the three durable maps backing the hub. changes is the bus
// publish/subscribe change events are fanned out on (§4.E).
func Open(p Paths, changes *eventbus.Bus) (*Store, error) {
	skillsMap, err := dstore.NewMapStore[string, model.Skill](p.Skills, applyDefaults)
	if err != nil {
		return nil, err
	}
	extMap, err := dstore.NewMapStore[string, model.Skill](p.Extensions, applyDefaults)
	if err != nil {
		return nil, err
	}
	manifests, err := dstore.NewMapStore[string, model.AgentManifest](p.Manifests, applyManifestDefaults)
	if err != nil {
		return nil, err
	}
	return &Store{skills: skillsMap, extensions: extMap, manifests: manifests, changes: changes}, nil
}

func applyDefaults(s model.Skill) model.Skill {
	if s.Tags == nil {
		s.Tags = []string{}
	}
	return s
}

func applyManifestDefaults(m model.AgentManifest) model.AgentManifest {
	if m.Skills == nil {
		m.Skills = []model.SkillRef{}
	}
	if m.Extensions == nil {
		m.Extensions = []model.SkillRef{}
	}
	return m
}

// Flush forces a synchronous write of every map, for graceful shutdown.
func (s *Store) Flush() error {
	if err := s.skills.Flush(); err != nil {
		return err
	}
	if err := s.extensions.Flush(); err != nil {
		return err
	}
	return s.manifests.Flush()
}

func (s *Store) mapFor(k kind) *dstore.MapStore[string, model.Skill] {
	if k == kindExtension {
		return s.extensions
	}
	return s.skills
}

// PublishInput is the payload for Publish.
type PublishInput struct {
	Name        string
	Description string
	Content     string
	PublishedBy string
	Tags        []string
}

func (s *Store) publish(k kind, in PublishInput) (model.Skill, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return model.Skill{}, apierr.Validationf("name is required")
	}
	if strings.TrimSpace(in.PublishedBy) == "" {
		return model.Skill{}, apierr.Validationf("publishedBy is required")
	}

	mp := s.mapFor(k)
	now := time.Now().UTC()
	var result model.Skill
	var action string
	mp.Mutate(func(m map[string]model.Skill) {
		existing, ok := m[name]
		if ok {
			existing.Version++
			existing.Description = in.Description
			existing.Content = in.Content
			existing.PublishedBy = in.PublishedBy
			existing.UpdatedAt = now
			if in.Tags != nil {
				existing.Tags = in.Tags
			}
			m[name] = existing
			result = existing
			action = "update"
			return
		}
		fresh := applyDefaults(model.Skill{
			ID: idgen.New(), Name: name, Version: 1, Description: in.Description,
			Content: in.Content, PublishedBy: in.PublishedBy, PublishedAt: now,
			UpdatedAt: now, Tags: in.Tags, Enabled: true,
		})
		m[name] = fresh
		result = fresh
		action = "publish"
	})
	s.emitChange(k, result.Name, result.Version, action)
	return result, nil
}

// PublishSkill publishes or republishes (bumping version) a skill.
func (s *Store) PublishSkill(in PublishInput) (model.Skill, error) { return s.publish(kindSkill, in) }

// PublishExtension publishes or republishes an extension.
func (s *Store) PublishExtension(in PublishInput) (model.Skill, error) {
	return s.publish(kindExtension, in)
}

func (s *Store) get(k kind, name string) (model.Skill, error) {
	v, ok := s.mapFor(k).Get(name)
	if !ok {
		return model.Skill{}, apierr.NotFoundf("%s %q not found", k, name)
	}
	return v, nil
}

// GetSkill returns a skill by name.
func (s *Store) GetSkill(name string) (model.Skill, error) { return s.get(kindSkill, name) }

// GetExtension returns an extension by name.
func (s *Store) GetExtension(name string) (model.Skill, error) { return s.get(kindExtension, name) }

func (s *Store) list(k kind, enabledOnly bool) []model.Skill {
	var out []model.Skill
	s.mapFor(k).View(func(m map[string]model.Skill) {
		for _, v := range m {
			if enabledOnly && !v.Enabled {
				continue
			}
			out = append(out, v)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListSkills returns every skill, A-Z by name.
func (s *Store) ListSkills() []model.Skill { return s.list(kindSkill, false) }

// ListExtensions returns every extension, A-Z by name.
func (s *Store) ListExtensions() []model.Skill { return s.list(kindExtension, false) }

func (s *Store) setEnabled(k kind, name string, enabled bool) (model.Skill, error) {
	mp := s.mapFor(k)
	var result model.Skill
	var mutateErr error
	mp.Mutate(func(m map[string]model.Skill) {
		v, ok := m[name]
		if !ok {
			mutateErr = apierr.NotFoundf("%s %q not found", k, name)
			return
		}
		v.Enabled = enabled
		v.UpdatedAt = time.Now().UTC()
		m[name] = v
		result = v
	})
	if mutateErr != nil {
		return model.Skill{}, mutateErr
	}
	action := "disable"
	if enabled {
		action = "enable"
	}
	s.emitChange(k, result.Name, result.Version, action)
	return result, nil
}

// SetSkillEnabled enables or disables a skill.
func (s *Store) SetSkillEnabled(name string, enabled bool) (model.Skill, error) {
	return s.setEnabled(kindSkill, name, enabled)
}

// SetExtensionEnabled enables or disables an extension.
func (s *Store) SetExtensionEnabled(name string, enabled bool) (model.Skill, error) {
	return s.setEnabled(kindExtension, name, enabled)
}

func (s *Store) remove(k kind, name string) error {
	mp := s.mapFor(k)
	var removed *model.Skill
	mp.Mutate(func(m map[string]model.Skill) {
		if v, ok := m[name]; ok {
			removed = &v
			delete(m, name)
		}
	})
	if removed == nil {
		return apierr.NotFoundf("%s %q not found", k, name)
	}
	s.emitChange(k, removed.Name, removed.Version, "remove")
	return nil
}

// RemoveSkill deletes a skill entirely.
func (s *Store) RemoveSkill(name string) error { return s.remove(kindSkill, name) }

// RemoveExtension deletes an extension entirely.
func (s *Store) RemoveExtension(name string) error { return s.remove(kindExtension, name) }

func (s *Store) emitChange(k kind, name string, version int, action string) {
	if s.changes == nil {
		return
	}
	s.changes.Publish(eventbus.Event{
		ID: idgen.New(), Type: action, Summary: name, Timestamp: time.Now().UTC(),
		Metadata: map[string]any{"kind": string(k), "name": name, "version": version, "action": action},
	})
}

// UpsertManifest records an agent's reported inventory, stamping lastSync.
func (s *Store) UpsertManifest(m model.AgentManifest) model.AgentManifest {
	m.LastSync = time.Now().UTC()
	m = applyManifestDefaults(m)
	s.manifests.Mutate(func(mm map[string]model.AgentManifest) { mm[m.AgentID] = m })
	return m
}

// GetManifest returns an agent's last-reported inventory.
func (s *Store) GetManifest(agentID string) (model.AgentManifest, error) {
	m, ok := s.manifests.Get(agentID)
	if !ok {
		return model.AgentManifest{}, apierr.NotFoundf("agent manifest %q not found", agentID)
	}
	return m, nil
}

// ListManifests returns every agent manifest, newest-lastSync-first.
func (s *Store) ListManifests() []model.AgentManifest {
	var out []model.AgentManifest
	s.manifests.View(func(m map[string]model.AgentManifest) {
		for _, v := range m {
			out = append(out, v)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].LastSync.After(out[j].LastSync) })
	return out
}
