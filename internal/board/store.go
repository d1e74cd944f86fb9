// Package board implements the Task store of §3/§4.J: a durable map store
// with workflow operations (submit-for-review, approve, reject) that
// atomically combine a status transition with a note append, so no
// concurrent reader ever observes a partial state.
package board

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fleethub/controlplane/internal/apierr"
	"github.com/fleethub/controlplane/internal/dstore"
	"github.com/fleethub/controlplane/internal/eventbus"
	"github.com/fleethub/controlplane/internal/idgen"
	"github.com/fleethub/controlplane/internal/model"
)

// MaxReviewCycles bounds how many times a task can be bounced back from
// review before it escalates instead of looping forever (adapted from the
// teacher's server.MaxReviewCycles; see SPEC_FULL.md §5).
const MaxReviewCycles = 3

// Store is the Task feature store.
type Store struct {
	mp  *dstore.MapStore[string, model.Task]
	bus *eventbus.Bus // optional: activity is also published to the feed
}

// New opens the board's durable map at path.
func New(path string, bus *eventbus.Bus) (*Store, error) {
	mp, err := dstore.NewMapStore[string, model.Task](path, applyDefaults)
	if err != nil {
		return nil, err
	}
	return &Store{mp: mp, bus: bus}, nil
}

func applyDefaults(t model.Task) model.Task {
	if t.Tags == nil {
		t.Tags = []string{}
	}
	if t.Dependencies == nil {
		t.Dependencies = []string{}
	}
	if t.Notes == nil {
		t.Notes = []model.Note{}
	}
	if t.Artifacts == nil {
		t.Artifacts = []model.Artifact{}
	}
	if t.Status == "" {
		t.Status = model.TaskOpen
	}
	return t
}

// Flush forces a synchronous write, for graceful shutdown.
func (s *Store) Flush() error { return s.mp.Flush() }

// CreateInput is the payload for Create.
type CreateInput struct {
	Title        string
	Description  string
	Assignee     string
	Tags         []string
	Dependencies []string
	CreatedBy    string
}

// Create validates and inserts a new task.
func (s *Store) Create(in CreateInput) (model.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return model.Task{}, apierr.Validationf("title is required")
	}
	if strings.TrimSpace(in.CreatedBy) == "" {
		return model.Task{}, apierr.Validationf("createdBy is required")
	}

	now := time.Now().UTC()
	task := applyDefaults(model.Task{
		ID:           idgen.New(),
		Title:        title,
		Description:  in.Description,
		Status:       model.TaskOpen,
		Assignee:     in.Assignee,
		Tags:         in.Tags,
		Dependencies: in.Dependencies,
		CreatedBy:    in.CreatedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	})

	s.mp.Mutate(func(m map[string]model.Task) { m[task.ID] = task })
	s.publish("task_created", task)
	return task, nil
}

// Get returns a task by id.
func (s *Store) Get(id string) (model.Task, error) {
	t, ok := s.mp.Get(id)
	if !ok {
		return model.Task{}, apierr.NotFoundf("task %s not found", id)
	}
	return t, nil
}

// ListFilters narrows List.
type ListFilters struct {
	Status   model.TaskStatus
	Assignee string
	Tag      string
}

// List returns tasks matching filters. Newest-first by updatedAt, except
// when a status filter is given, where oldest-open-first (createdAt
// ascending) presents a FIFO queue — this is what /board/review relies on.
func (s *Store) List(f ListFilters) []model.Task {
	var out []model.Task
	s.mp.View(func(m map[string]model.Task) {
		for _, t := range m {
			if f.Status != "" && t.Status != f.Status {
				continue
			}
			if f.Assignee != "" && t.Assignee != f.Assignee {
				continue
			}
			if f.Tag != "" && !containsStr(t.Tags, f.Tag) {
				continue
			}
			out = append(out, t)
		}
	})
	if f.Status != "" {
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	}
	return out
}

func containsStr(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// mutateTask runs f against the task if present, bumping UpdatedAt, and
// returns the post-mutation value.
func (s *Store) mutateTask(id string, f func(*model.Task) error) (model.Task, error) {
	var result model.Task
	var mutateErr error
	s.mp.Mutate(func(m map[string]model.Task) {
		t, ok := m[id]
		if !ok {
			mutateErr = apierr.NotFoundf("task %s not found", id)
			return
		}
		if err := f(&t); err != nil {
			mutateErr = err
			return
		}
		t.UpdatedAt = time.Now().UTC()
		m[id] = t
		result = t
	})
	if mutateErr != nil {
		return model.Task{}, mutateErr
	}
	return result, nil
}

// AddNote appends a note to a task.
func (s *Store) AddNote(id, author, content string, typ model.NoteType) (model.Task, error) {
	if strings.TrimSpace(content) == "" {
		return model.Task{}, apierr.Validationf("content is required")
	}
	t, err := s.mutateTask(id, func(t *model.Task) error {
		t.Notes = append(t.Notes, model.Note{
			ID: idgen.New(), Author: author, Content: content, Type: typ, CreatedAt: time.Now().UTC(),
		})
		return nil
	})
	if err == nil {
		s.publish("task_note", t)
	}
	return t, err
}

// AddArtifacts appends one or more artifacts to a task.
func (s *Store) AddArtifacts(id string, artifacts []model.Artifact, addedBy string) (model.Task, error) {
	now := time.Now().UTC()
	t, err := s.mutateTask(id, func(t *model.Task) error {
		for _, a := range artifacts {
			if a.AddedAt.IsZero() {
				a.AddedAt = now
			}
			if a.AddedBy == "" {
				a.AddedBy = addedBy
			}
			t.Artifacts = append(t.Artifacts, a)
		}
		return nil
	})
	if err == nil {
		s.publish("task_artifact", t)
	}
	return t, err
}

// Bump increases a task's score. Score is monotonic non-decreasing: a
// negative delta is clamped to zero effect.
func (s *Store) Bump(id string, delta int) (model.Task, error) {
	if delta < 0 {
		delta = 0
	}
	t, err := s.mutateTask(id, func(t *model.Task) error {
		t.Score += delta
		return nil
	})
	if err == nil {
		s.publish("task_bump", t)
	}
	return t, err
}

// SubmitForReview atomically transitions a task into in_review, appending
// the review summary as a note and any supplied artifacts.
func (s *Store) SubmitForReview(id, summary, reviewedBy string, artifacts []model.Artifact) (model.Task, error) {
	if strings.TrimSpace(summary) == "" {
		return model.Task{}, apierr.Validationf("summary is required")
	}
	now := time.Now().UTC()
	t, err := s.mutateTask(id, func(t *model.Task) error {
		t.Status = model.TaskInReview
		t.Notes = append(t.Notes, model.Note{
			ID: idgen.New(), Author: reviewedBy, Content: summary, Type: model.NoteUpdate, CreatedAt: now,
		})
		for _, a := range artifacts {
			if a.AddedAt.IsZero() {
				a.AddedAt = now
			}
			if a.AddedBy == "" {
				a.AddedBy = reviewedBy
			}
			t.Artifacts = append(t.Artifacts, a)
		}
		return nil
	})
	if err == nil {
		s.publish("task_submitted_for_review", t)
	}
	return t, err
}

// Approve atomically transitions a task to done with an approval note.
func (s *Store) Approve(id, approvedBy string) (model.Task, error) {
	t, err := s.mutateTask(id, func(t *model.Task) error {
		if t.Status != model.TaskInReview {
			return apierr.Validationf("task %s is not in review", id)
		}
		t.Status = model.TaskDone
		t.ReviewCycles = 0
		t.Notes = append(t.Notes, model.Note{
			ID: idgen.New(), Author: approvedBy, Content: "Approved by " + approvedBy,
			Type: model.NoteUpdate, CreatedAt: time.Now().UTC(),
		})
		return nil
	})
	if err == nil {
		s.publish("task_approved", t)
	}
	return t, err
}

// Reject atomically returns a task to open with a rejection note. After
// MaxReviewCycles consecutive rejections the task is tagged "escalated"
// instead of being sent back for more rework (SPEC_FULL.md §5).
func (s *Store) Reject(id, rejectedBy, reason string) (model.Task, error) {
	t, err := s.mutateTask(id, func(t *model.Task) error {
		if t.Status != model.TaskInReview {
			return apierr.Validationf("task %s is not in review", id)
		}
		t.ReviewCycles++
		note := model.Note{
			ID: idgen.New(), Author: rejectedBy, Type: model.NoteUpdate, CreatedAt: time.Now().UTC(),
		}
		if t.ReviewCycles > MaxReviewCycles {
			t.Status = model.TaskBlocked
			if !containsStr(t.Tags, "escalated") {
				t.Tags = append(t.Tags, "escalated")
			}
			note.Content = "Escalated after " + strconv.Itoa(t.ReviewCycles) + " review cycles: " + reason
		} else {
			t.Status = model.TaskOpen
			note.Content = "Rejected by " + rejectedBy + ": " + reason
		}
		t.Notes = append(t.Notes, note)
		return nil
	})
	if err == nil {
		s.publish("task_rejected", t)
	}
	return t, err
}

func (s *Store) publish(kind string, t model.Task) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.NewEvent(kind, t.Assignee, t.Title, string(t.Status), map[string]any{
		"taskId": t.ID, "status": string(t.Status),
	}))
}
