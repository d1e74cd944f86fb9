package reports

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/fleethub/controlplane/internal/httpapi"
	"github.com/fleethub/controlplane/internal/model"
)

// Handler exposes Store over HTTP. Authoring/listing endpoints require a
// bearer token; the share-link access endpoints are mounted separately (see
// PublicRouter) since spec.md §6 makes them the one authenticated family's
// public exception.
type Handler struct {
	store *Store
}

// NewHandler wraps store for HTTP.
func NewHandler(store *Store) *Handler { return &Handler{store: store} }

// Router builds the authenticated sub-router (create/read/share-management).
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", h.list).Methods(http.MethodGet)
	r.HandleFunc("", h.list).Methods(http.MethodGet)
	r.HandleFunc("/", h.create).Methods(http.MethodPost)
	r.HandleFunc("", h.create).Methods(http.MethodPost)
	r.HandleFunc("/{id}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/{id}", h.update).Methods(http.MethodPut)
	r.HandleFunc("/{id}/share", h.share).Methods(http.MethodPost)
	r.HandleFunc("/{id}/shares", h.listShares).Methods(http.MethodGet)
	r.HandleFunc("/share/{linkId}/revoke", h.revokeShare).Methods(http.MethodPost)
	return r
}

// PublicRouter builds the unauthenticated sub-router serving a shared report
// and recording the visit.
func (h *Handler) PublicRouter() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/{linkId}", h.viewShare).Methods(http.MethodGet)
	r.HandleFunc("/{linkId}/access", h.listAccess).Methods(http.MethodGet)
	return r
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	httpapi.JSON(w, http.StatusOK, map[string]any{"reports": h.store.List()})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Title   string   `json:"title"`
		Author  string   `json:"author"`
		Content string   `json:"content"`
		Tags    []string `json:"tags"`
	}
	if err := httpapi.DecodeJSON(r, &in); err != nil {
		httpapi.Error(w, err)
		return
	}
	rep, err := h.store.Create(CreateInput{Title: in.Title, Author: in.Author, Content: in.Content, Tags: in.Tags})
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusCreated, rep)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	rep, err := h.store.Get(mux.Vars(r)["id"])
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, rep)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Title   string   `json:"title"`
		Content string   `json:"content"`
		Tags    []string `json:"tags"`
	}
	if err := httpapi.DecodeJSON(r, &in); err != nil {
		httpapi.Error(w, err)
		return
	}
	rep, err := h.store.Update(mux.Vars(r)["id"], in.Title, in.Content, in.Tags)
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, rep)
}

func (h *Handler) share(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var in struct {
		CreatedBy string     `json:"createdBy"`
		Label     string     `json:"label"`
		ExpiresAt *time.Time `json:"expiresAt"`
	}
	if err := httpapi.DecodeJSON(r, &in); err != nil {
		httpapi.Error(w, err)
		return
	}
	link, err := h.store.Share(CreateShareInput{ReportID: id, CreatedBy: in.CreatedBy, Label: in.Label, ExpiresAt: in.ExpiresAt})
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusCreated, link)
}

func (h *Handler) listShares(w http.ResponseWriter, r *http.Request) {
	links, err := h.store.ListShares(mux.Vars(r)["id"])
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, map[string]any{"shares": links})
}

func (h *Handler) revokeShare(w http.ResponseWriter, r *http.Request) {
	linkID := mux.Vars(r)["linkId"]
	if err := h.store.RevokeShare(linkID); err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (h *Handler) viewShare(w http.ResponseWriter, r *http.Request) {
	linkID := mux.Vars(r)["linkId"]
	link, err := h.store.GetShare(linkID)
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	if !link.Valid(time.Now().UTC()) {
		httpapi.JSON(w, http.StatusGone, map[string]string{"error": "share link is no longer valid"})
		return
	}
	rep, err := h.store.Get(link.ReportID)
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	_ = h.store.RecordAccess(model.AccessEntry{
		LinkID: linkID, IP: clientIP(r), UserAgent: r.UserAgent(), Referrer: r.Referer(), Timestamp: time.Now().UTC(),
	})
	httpapi.JSON(w, http.StatusOK, rep)
}

func (h *Handler) listAccess(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.ListAccess(mux.Vars(r)["linkId"])
	if err != nil {
		httpapi.Error(w, err)
		return
	}
	httpapi.JSON(w, http.StatusOK, map[string]any{"access": entries})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
