package logs

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
	r.HandleFunc("/", h.append).Methods(http.MethodPost)
	r.HandleFunc("", h.append).Methods(http.MethodPost)
	r.HandleFunc("/raw", h.raw).Methods(http.MethodGet)
	return r
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	httpapi.JSON(w, http.StatusOK, map[string]any{"entries": h.store.All(r.URL.Query().Get("agent"))})
}

func (h *Handler) append(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Text  string   `json:"text"`
		Agent string   `json:"agent"`
		Tags  []string `json:"tags"`
	}
	if err := httpapi.DecodeJSON(r, &in); err != nil {
		httpapi.Error(w, err)
		return
	}
	entry, err := h.store.Append(in.Text, in.Agent, in.Tags)
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) raw(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(h.store.Raw(r.URL.Query().Get("agent"))))
}
