package apikeys

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
	r.HandleFunc("/keys", h.list).Methods(http.MethodGet)
	r.HandleFunc("/keys", h.create).Methods(http.MethodPost)
	r.HandleFunc("/keys/{id}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/keys/{id}", h.revoke).Methods(http.MethodDelete)
	return r
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	keys, err := h.store.List()
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, map[string]any{"keys": keys})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name   string   `json:"name"`
		Scopes []string `json:"scopes"`
	}
	if err := httpapi.DecodeJSON(r, &in); err != nil {
		httpapi.Error(w, err)
		return
	}
	created, err := h.store.Create(in.Name, in.Scopes)
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusCreated, created)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	k, err := h.store.Get(mux.Vars(r)["id"])
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, k)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	revoked, err := h.store.Revoke(mux.Vars(r)["id"])
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, map[string]bool{"revoked": revoked})
}
