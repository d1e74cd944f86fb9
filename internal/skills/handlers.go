package skills

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fleethub/controlplane/internal/apierr"
	"github.com/fleethub/controlplane/internal/eventbus"
	"github.com/fleethub/controlplane/internal/httpapi"
	"github.com/fleethub/controlplane/internal/model"
	"github.com/fleethub/controlplane/internal/sse"
)

// Handler exposes the Skill Hub over HTTP.
type Handler struct {
	store   *Store
	changes *eventbus.Bus
}

// NewHandler wraps store and its change bus for HTTP.
func NewHandler(store *Store, changes *eventbus.Bus) *Handler {
	return &Handler{store: store, changes: changes}
}

// Router builds the mux sub-router for this bundle's path prefix.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/items", h.listSkills).Methods(http.MethodGet)
	r.HandleFunc("/items", h.publishSkill).Methods(http.MethodPost)
	r.HandleFunc("/items/{name}", h.getSkill).Methods(http.MethodGet)
	r.HandleFunc("/items/{name}", h.removeSkill).Methods(http.MethodDelete)
	r.HandleFunc("/items/{name}/enable", h.enableSkill).Methods(http.MethodPost)
	r.HandleFunc("/items/{name}/disable", h.disableSkill).Methods(http.MethodPost)

	r.HandleFunc("/extensions", h.listExtensions).Methods(http.MethodGet)
	r.HandleFunc("/extensions", h.publishExtension).Methods(http.MethodPost)
	r.HandleFunc("/extensions/{name}", h.getExtension).Methods(http.MethodGet)
	r.HandleFunc("/extensions/{name}", h.removeExtension).Methods(http.MethodDelete)
	r.HandleFunc("/extensions/{name}/enable", h.enableExtension).Methods(http.MethodPost)
	r.HandleFunc("/extensions/{name}/disable", h.disableExtension).Methods(http.MethodPost)

	r.HandleFunc("/sync", h.sync).Methods(http.MethodPost)
	r.HandleFunc("/manifest", h.manifest).Methods(http.MethodGet)
	r.HandleFunc("/agents", h.agents).Methods(http.MethodGet)
	r.HandleFunc("/stream", h.stream).Methods(http.MethodGet)
	return r
}

func decodePublish(r *http.Request) (PublishInput, error) {
	var in struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Content     string   `json:"content"`
		PublishedBy string   `json:"publishedBy"`
		Tags        []string `json:"tags"`
	}
	if err := httpapi.DecodeJSON(r, &in); err != nil {
		return PublishInput{}, err
	}
	return PublishInput{
		Name: in.Name, Description: in.Description, Content: in.Content,
		PublishedBy: in.PublishedBy, Tags: in.Tags,
	}, nil
}

func (h *Handler) listSkills(w http.ResponseWriter, r *http.Request) {
	httpapi.JSON(w, http.StatusOK, map[string]any{"skills": h.store.ListSkills()})
}

func (h *Handler) publishSkill(w http.ResponseWriter, r *http.Request) {
	in, err := decodePublish(r)
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	s, err := h.store.PublishSkill(in)
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusCreated, s)
}

func (h *Handler) getSkill(w http.ResponseWriter, r *http.Request) {
	s, err := h.store.GetSkill(mux.Vars(r)["name"])
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, s)
}

func (h *Handler) removeSkill(w http.ResponseWriter, r *http.Request) {
	if err := h.store.RemoveSkill(mux.Vars(r)["name"]); err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *Handler) enableSkill(w http.ResponseWriter, r *http.Request) {
	s, err := h.store.SetSkillEnabled(mux.Vars(r)["name"], true)
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, s)
}

func (h *Handler) disableSkill(w http.ResponseWriter, r *http.Request) {
	s, err := h.store.SetSkillEnabled(mux.Vars(r)["name"], false)
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, s)
}

func (h *Handler) listExtensions(w http.ResponseWriter, r *http.Request) {
	httpapi.JSON(w, http.StatusOK, map[string]any{"extensions": h.store.ListExtensions()})
}

func (h *Handler) publishExtension(w http.ResponseWriter, r *http.Request) {
	in, err := decodePublish(r)
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	e, err := h.store.PublishExtension(in)
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusCreated, e)
}

func (h *Handler) getExtension(w http.ResponseWriter, r *http.Request) {
	e, err := h.store.GetExtension(mux.Vars(r)["name"])
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, e)
}

func (h *Handler) removeExtension(w http.ResponseWriter, r *http.Request) {
	if err := h.store.RemoveExtension(mux.Vars(r)["name"]); err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *Handler) enableExtension(w http.ResponseWriter, r *http.Request) {
	e, err := h.store.SetExtensionEnabled(mux.Vars(r)["name"], true)
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, e)
}

func (h *Handler) disableExtension(w http.ResponseWriter, r *http.Request) {
	e, err := h.store.SetExtensionEnabled(mux.Vars(r)["name"], false)
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, e)
}

func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	var in struct {
		AgentID    string            `json:"agentId"`
		VMID       string            `json:"vmId"`
		Skills     []model.SkillRef  `json:"skills"`
		Extensions []model.SkillRef  `json:"extensions"`
	}
	if err := httpapi.DecodeJSON(r, &in); err != nil {
		httpapi.Error(w, err)
		return
	}
	if in.AgentID == "" {
		httpapi.Error(w, apierr.Validationf("agentId is required"))
		return
	}
	plan := h.store.Sync(in.AgentID, in.VMID, model.AgentManifest{Skills: in.Skills, Extensions: in.Extensions})
	httpapi.JSON(w, http.StatusOK, map[string]any{"plan": plan})
}

func (h *Handler) manifest(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agentId")
	if agentID == "" {
		httpapi.JSON(w, http.StatusOK, map[string]any{"manifests": h.store.ListManifests()})
		return
	}
	m, err := h.store.GetManifest(agentID)
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, m)
}

func (h *Handler) agents(w http.ResponseWriter, r *http.Request) {
	httpapi.JSON(w, http.StatusOK, map[string]any{"agents": h.store.ListManifests()})
}

func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	sse.Serve(w, r, h.changes, nil)
}
