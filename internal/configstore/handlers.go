package configstore

import (
	"net/http"

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
	r.HandleFunc("/", h.list).Methods(http.MethodGet)
	r.HandleFunc("", h.list).Methods(http.MethodGet)
	r.HandleFunc("/env", h.env).Methods(http.MethodGet)
	r.HandleFunc("/{key}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/{key}", h.set).Methods(http.MethodPut)
	r.HandleFunc("/{key}", h.delete).Methods(http.MethodDelete)
	r.HandleFunc("/{key}/reveal", h.reveal).Methods(http.MethodGet)
	return r
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.List()
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	e, err := h.store.Get(mux.Vars(r)["key"])
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, e)
}

func (h *Handler) reveal(w http.ResponseWriter, r *http.Request) {
	e, err := h.store.Reveal(mux.Vars(r)["key"])
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, e)
}

func (h *Handler) set(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	var in struct {
		Value string                `json:"value"`
		Type  model.ConfigEntryType `json:"type"`
	}
	if err := httpapi.DecodeJSON(r, &in); err != nil {
		httpapi.Error(w, err)
		return
	}
	e, err := h.store.Set(key, in.Value, in.Type)
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, e)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(mux.Vars(r)["key"]); err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) env(w http.ResponseWriter, r *http.Request) {
	env, err := h.store.Env()
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, map[string]any{"env": env})
}
