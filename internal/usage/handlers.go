package usage

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/fleethub/controlplane/internal/httpapi"
	"github.com/fleethub/controlplane/internal/model"
)

// Handler exposes Store over HTTP.
type Handler struct {
	store *Store
}

// NewHandler wraps store for HTTP.
func NewHandler(store *Store) *Handler { return &Handler{store: store} }

// Router builds the mux sub-router for this bundle's path prefix.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/sessions", h.listSessions).Methods(http.MethodGet)
	r.HandleFunc("/sessions", h.recordSession).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}", h.upsertSession).Methods(http.MethodPatch)
	r.HandleFunc("/vms", h.listVMs).Methods(http.MethodGet)
	r.HandleFunc("/vms", h.recordVM).Methods(http.MethodPost)
	r.HandleFunc("/", h.summary).Methods(http.MethodGet)
	r.HandleFunc("", h.summary).Methods(http.MethodGet)
	return r
}

type sessionPayload struct {
	SessionID   string         `json:"sessionId"`
	Agent       string         `json:"agent"`
	ParentAgent string         `json:"parentAgent"`
	Model       string         `json:"model"`
	Tokens      model.TokenUsage `json:"tokens"`
	Cost        model.CostUsage  `json:"cost"`
	Turns       int            `json:"turns"`
	ToolCalls   map[string]int `json:"toolCalls"`
	StartedAt   time.Time      `json:"startedAt"`
	EndedAt     *time.Time     `json:"endedAt"`
}

func (p sessionPayload) toRecord() model.SessionRecord {
	return model.SessionRecord{
		SessionID: p.SessionID, Agent: p.Agent, ParentAgent: p.ParentAgent, Model: p.Model,
		Tokens: p.Tokens, Cost: p.Cost, Turns: p.Turns, ToolCalls: p.ToolCalls,
		StartedAt: p.StartedAt, EndedAt: p.EndedAt,
	}
}

func (h *Handler) recordSession(w http.ResponseWriter, r *http.Request) {
	var in sessionPayload
	if err := httpapi.DecodeJSON(r, &in); err != nil {
		httpapi.Error(w, err)
		return
	}
	rec, err := h.store.RecordSession(in.toRecord())
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) upsertSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	var in sessionPayload
	if err := httpapi.DecodeJSON(r, &in); err != nil {
		httpapi.Error(w, err)
		return
	}
	rec, err := h.store.UpsertSession(sessionID, in.toRecord())
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, rec)
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessions, err := h.store.ListSessions(SessionFilters{Agent: q.Get("agent"), Range: q.Get("range")})
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *Handler) recordVM(w http.ResponseWriter, r *http.Request) {
	var in struct {
		VMID        string        `json:"vmId"`
		Role        model.VMRole  `json:"role"`
		Agent       string        `json:"agent"`
		CommitID    string        `json:"commitId"`
		CreatedAt   time.Time     `json:"createdAt"`
		DestroyedAt *time.Time    `json:"destroyedAt"`
	}
	if err := httpapi.DecodeJSON(r, &in); err != nil {
		httpapi.Error(w, err)
		return
	}
	rec, err := h.store.RecordVM(model.VMAccountingRecord{
		VMID: in.VMID, Role: in.Role, Agent: in.Agent, CommitID: in.CommitID,
		CreatedAt: in.CreatedAt, DestroyedAt: in.DestroyedAt,
	})
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) listVMs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	vms, err := h.store.ListVMs(VMFilters{Role: model.VMRole(q.Get("role")), Agent: q.Get("agent"), Range: q.Get("range")})
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, map[string]any{"vms": vms})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	rng := r.URL.Query().Get("range")
	summary, err := h.store.Summary(rng)
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, summary)
}
