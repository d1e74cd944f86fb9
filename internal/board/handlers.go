package board

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fleethub/controlplane/internal/httpapi"
	"github.com/fleethub/controlplane/internal/model"
)

// Handler exposes the Task store over HTTP, matching the endpoint family
// documented in spec.md §6.
type Handler struct {
	store *Store
}

// NewHandler wraps store for HTTP.
func NewHandler(store *Store) *Handler { return &Handler{store: store} }

// Router builds the mux sub-router for this bundle's path prefix.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/tasks", h.list).Methods(http.MethodGet)
	r.HandleFunc("/tasks", h.create).Methods(http.MethodPost)
	r.HandleFunc("/tasks/{id}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/tasks/{id}/notes", h.addNote).Methods(http.MethodPost)
	r.HandleFunc("/tasks/{id}/artifacts", h.addArtifacts).Methods(http.MethodPost)
	r.HandleFunc("/tasks/{id}/bump", h.bump).Methods(http.MethodPost)
	r.HandleFunc("/tasks/{id}/review", h.review).Methods(http.MethodPost)
	r.HandleFunc("/tasks/{id}/approve", h.approve).Methods(http.MethodPost)
	r.HandleFunc("/tasks/{id}/reject", h.reject).Methods(http.MethodPost)
	r.HandleFunc("/review", h.reviewQueue).Methods(http.MethodGet)
	return r
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tasks := h.store.List(ListFilters{
		Status:   model.TaskStatus(q.Get("status")),
		Assignee: q.Get("assignee"),
		Tag:      q.Get("tag"),
	})
	httpapi.JSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (h *Handler) reviewQueue(w http.ResponseWriter, r *http.Request) {
	tasks := h.store.List(ListFilters{Status: model.TaskInReview})
	httpapi.JSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Title        string   `json:"title"`
		Description  string   `json:"description"`
		Assignee     string   `json:"assignee"`
		Tags         []string `json:"tags"`
		Dependencies []string `json:"dependencies"`
		CreatedBy    string   `json:"createdBy"`
	}
	if err := httpapi.DecodeJSON(r, &in); err != nil {
		httpapi.Error(w, err)
		return
	}
	task, err := h.store.Create(CreateInput{
		Title: in.Title, Description: in.Description, Assignee: in.Assignee,
		Tags: in.Tags, Dependencies: in.Dependencies, CreatedBy: in.CreatedBy,
	})
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusCreated, task)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	task, err := h.store.Get(id)
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, task)
}

func (h *Handler) addNote(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var in struct {
		Author  string         `json:"author"`
		Content string         `json:"content"`
		Type    model.NoteType `json:"type"`
	}
	if err := httpapi.DecodeJSON(r, &in); err != nil {
		httpapi.Error(w, err)
		return
	}
	if in.Type == "" {
		in.Type = model.NoteUpdate
	}
	task, err := h.store.AddNote(id, in.Author, in.Content, in.Type)
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, task)
}

func (h *Handler) addArtifacts(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var in struct {
		Artifacts []model.Artifact `json:"artifacts"`
		AddedBy   string           `json:"addedBy"`
	}
	if err := httpapi.DecodeJSON(r, &in); err != nil {
		httpapi.Error(w, err)
		return
	}
	task, err := h.store.AddArtifacts(id, in.Artifacts, in.AddedBy)
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, task)
}

func (h *Handler) bump(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var in struct {
		Delta int `json:"delta"`
	}
	if err := httpapi.DecodeJSON(r, &in); err != nil {
		httpapi.Error(w, err)
		return
	}
	task, err := h.store.Bump(id, in.Delta)
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, task)
}

func (h *Handler) review(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var in struct {
		Summary    string           `json:"summary"`
		ReviewedBy string           `json:"reviewedBy"`
		Artifacts  []model.Artifact `json:"artifacts"`
	}
	if err := httpapi.DecodeJSON(r, &in); err != nil {
		httpapi.Error(w, err)
		return
	}
	task, err := h.store.SubmitForReview(id, in.Summary, in.ReviewedBy, in.Artifacts)
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, task)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var in struct {
		ApprovedBy string `json:"approvedBy"`
	}
	if err := httpapi.DecodeJSON(r, &in); err != nil {
		httpapi.Error(w, err)
		return
	}
	task, err := h.store.Approve(id, in.ApprovedBy)
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, task)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var in struct {
		RejectedBy string `json:"rejectedBy"`
		Reason     string `json:"reason"`
	}
	if err := httpapi.DecodeJSON(r, &in); err != nil {
		httpapi.Error(w, err)
		return
	}
	task, err := h.store.Reject(id, in.RejectedBy, in.Reason)
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, task)
}
