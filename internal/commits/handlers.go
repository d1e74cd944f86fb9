package commits

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fleethub/controlplane/internal/httpapi"
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
	r.HandleFunc("/", h.list).Methods(http.MethodGet)
	r.HandleFunc("", h.list).Methods(http.MethodGet)
	r.HandleFunc("/", h.record).Methods(http.MethodPost)
	r.HandleFunc("", h.record).Methods(http.MethodPost)
	r.HandleFunc("/{id}", h.get).Methods(http.MethodGet)
	return r
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	httpapi.JSON(w, http.StatusOK, map[string]any{"commits": h.store.All(r.URL.Query().Get("vmId"))})
}

func (h *Handler) record(w http.ResponseWriter, r *http.Request) {
	var in struct {
		CommitID string            `json:"commitId"`
		VMID     string            `json:"vmId"`
		Label    string            `json:"label"`
		Agent    string            `json:"agent"`
		Tags     []string          `json:"tags"`
		Metadata map[string]string `json:"metadata"`
	}
	if err := httpapi.DecodeJSON(r, &in); err != nil {
		httpapi.Error(w, err)
		return
	}
	entry, err := h.store.Record(RecordInput{
		CommitID: in.CommitID, VMID: in.VMID, Label: in.Label, Agent: in.Agent, Tags: in.Tags, Metadata: in.Metadata,
	})
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	entry, err := h.store.Get(mux.Vars(r)["id"])
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, entry)
}
