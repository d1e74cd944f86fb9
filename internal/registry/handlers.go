package registry

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
	r.HandleFunc("/vms", h.list).Methods(http.MethodGet)
	r.HandleFunc("/vms", h.register).Methods(http.MethodPost)
	r.HandleFunc("/vms/{id}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/vms/{id}", h.deregister).Methods(http.MethodDelete)
	r.HandleFunc("/vms/{id}/heartbeat", h.heartbeat).Methods(http.MethodPost)
	r.HandleFunc("/discover/{role}", h.discover).Methods(http.MethodGet)
	return r
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	f := ListFilters{
		Role:   model.VMRole(r.URL.Query().Get("role")),
		Status: model.VMStatus(r.URL.Query().Get("status")),
	}
	httpapi.JSON(w, http.StatusOK, map[string]any{"vms": h.store.List(f)})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name         string            `json:"name"`
		Role         model.VMRole      `json:"role"`
		Address      string            `json:"address"`
		Services     []string          `json:"services"`
		Metadata     map[string]string `json:"metadata"`
		RegisteredBy string            `json:"registeredBy"`
	}
	if err := httpapi.DecodeJSON(r, &in); err != nil {
		httpapi.Error(w, err)
		return
	}
	vm, err := h.store.Register(RegisterInput{
		Name: in.Name, Role: in.Role, Address: in.Address,
		Services: in.Services, Metadata: in.Metadata, RegisteredBy: in.RegisteredBy,
	})
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusCreated, vm)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	vm, err := h.store.Get(mux.Vars(r)["id"])
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, vm)
}

func (h *Handler) deregister(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Deregister(mux.Vars(r)["id"]); err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, map[string]string{"status": "deregistered"})
}

func (h *Handler) heartbeat(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var in struct {
		Status model.VMStatus `json:"status"`
	}
	if r.ContentLength > 0 {
		if err := httpapi.DecodeJSON(r, &in); err != nil {
			httpapi.Error(w, err)
			return
		}
	}
	vm, err := h.store.Heartbeat(id, in.Status)
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, vm)
}

func (h *Handler) discover(w http.ResponseWriter, r *http.Request) {
	role := model.VMRole(mux.Vars(r)["role"])
	httpapi.JSON(w, http.StatusOK, map[string]any{"vms": h.store.Discover(role)})
}
