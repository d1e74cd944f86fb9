package feed

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fleethub/controlplane/internal/eventbus"
	"github.com/fleethub/controlplane/internal/httpapi"
	"github.com/fleethub/controlplane/internal/sse"
)

// Handler exposes the Feed store and its bus over HTTP, including the SSE
// stream wrapper of §4.K.
type Handler struct {
	store *Store
	bus   *eventbus.Bus
}

// NewHandler wraps store and bus for HTTP.
func NewHandler(store *Store, bus *eventbus.Bus) *Handler {
	return &Handler{store: store, bus: bus}
}

// Router builds the mux sub-router for this bundle's path prefix.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/events", h.list).Methods(http.MethodGet)
	r.HandleFunc("/events", h.publish).Methods(http.MethodPost)
	r.HandleFunc("/events/{id}", h.delete).Methods(http.MethodDelete)
	r.HandleFunc("/stream", h.stream).Methods(http.MethodGet)
	r.HandleFunc("/stats", h.stats).Methods(http.MethodGet)
	return r
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries := h.store.All(ListFilters{
		Agent: q.Get("agent"),
		Type:  q.Get("type"),
		Since: q.Get("since"),
	})
	httpapi.JSON(w, http.StatusOK, map[string]any{"events": entries})
}

func (h *Handler) publish(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Agent    string         `json:"agent"`
		Type     string         `json:"type"`
		Summary  string         `json:"summary"`
		Detail   string         `json:"detail"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := httpapi.DecodeJSON(r, &in); err != nil {
		httpapi.Error(w, err)
		return
	}
	entry, err := h.store.Publish(PublishInput{
		Agent: in.Agent, Type: in.Type, Summary: in.Summary, Detail: in.Detail, Metadata: in.Metadata,
	})
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	ok, err := h.store.Delete(mux.Vars(r)["id"])
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	if !ok {
		httpapi.JSON(w, http.StatusNotFound, map[string]string{"error": "event not found"})
		return
	}
	httpapi.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	agent := q.Get("agent")
	typ := q.Get("type")
	var filter eventbus.Filter
	if agent != "" || typ != "" {
		filter = func(e eventbus.Event) bool {
			if agent != "" && e.Agent != agent {
				return false
			}
			if typ != "" && e.Type != typ {
				return false
			}
			return true
		}
	}
	sse.Serve(w, r, h.bus, filter)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	httpapi.JSON(w, http.StatusOK, h.store.Stats())
}
