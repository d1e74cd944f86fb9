// Package twilio implements the external-ingress adapter of §4.M: an
// inbound SMS webhook that validates Twilio's request signature, checks an
// optional sender allowlist, and dispatches the message body into the
// Journal, Board, or Log store depending on its prefix.
package twilio

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"

	"github.com/fleethub/controlplane/internal/board"
	"github.com/fleethub/controlplane/internal/model"
)

// JournalStore is the subset of internal/journal.Store the adapter needs.
type JournalStore interface {
	Append(text, author, mood string, tags []string) (model.JournalEntry, error)
}

// BoardStore is the subset of internal/board.Store the adapter needs.
type BoardStore interface {
	Create(in board.CreateInput) (model.Task, error)
}

// LogStore is the subset of internal/logs.Store the adapter needs.
type LogStore interface {
	Append(text, agent string, tags []string) (model.LogEntry, error)
}

// Config configures one webhook endpoint.
type Config struct {
	AuthToken       string   // TWILIO_AUTH_TOKEN; empty disables the endpoint (503)
	WebhookURL      string   // TWILIO_WEBHOOK_URL, used in signature validation
	AllowedNumbers  []string // TWILIO_ALLOWED_NUMBERS, CSV; empty means no allowlist
}

// Handler is the SMS ingress endpoint.
type Handler struct {
	cfg     Config
	journal JournalStore
	board   BoardStore
	logs    LogStore
}

// NewHandler wires the three dispatch targets behind one webhook.
func NewHandler(cfg Config, journal JournalStore, board BoardStore, logs LogStore) *Handler {
	return &Handler{cfg: cfg, journal: journal, board: board, logs: logs}
}

// ServeHTTP implements the pipeline of §4.M.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.cfg.AuthToken == "" {
		writeTwiML(w, http.StatusServiceUnavailable, "SMS ingress is not configured")
		return
	}

	if err := r.ParseForm(); err != nil {
		writeTwiML(w, http.StatusBadRequest, "could not parse request")
		return
	}
	params := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		params[k] = r.PostForm.Get(k)
	}

	sig := r.Header.Get("X-Twilio-Signature")
	if !validSignature(h.cfg.WebhookURL, h.cfg.AuthToken, params, sig) {
		writeTwiML(w, http.StatusForbidden, "invalid signature")
		return
	}

	from := params["From"]
	if len(h.cfg.AllowedNumbers) > 0 && !contains(h.cfg.AllowedNumbers, from) {
		writeTwiML(w, http.StatusForbidden, "sender not allowed")
		return
	}

	resource, id, err := h.dispatch(from, params["Body"])
	if err != nil {
		writeTwiML(w, http.StatusBadRequest, err.Error())
		return
	}
	writeTwiML(w, http.StatusOK, fmt.Sprintf("%s created (%s)", resource, id))
}

// validSignature recomputes Twilio's HMAC-SHA1 signature over the webhook
// URL concatenated with the sorted key+value pairs of every form param, and
// compares it to the header value in constant time.
func validSignature(webhookURL, authToken string, params map[string]string, signature string) bool {
	if signature == "" {
		return false
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(webhookURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params[k])
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// dispatch parses the message's (j|journal|t|task|l|log): prefix and routes
// the remaining payload to the matching store, with author/creator set to
// from and tags set to ["sms"].
func (h *Handler) dispatch(from, body string) (resource, id string, err error) {
	resourceKind, payload := splitPrefix(body)
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return "", "", fmt.Errorf("empty message body")
	}

	switch resourceKind {
	case "task":
		task, err := h.board.Create(board.CreateInput{Title: payload, CreatedBy: from, Tags: []string{"sms"}})
		if err != nil {
			return "", "", err
		}
		return "Task", task.ID, nil
	case "log":
		entry, err := h.logs.Append(payload, from, []string{"sms"})
		if err != nil {
			return "", "", err
		}
		return "Log entry", entry.ID, nil
	default:
		entry, err := h.journal.Append(payload, from, "", []string{"sms"})
		if err != nil {
			return "", "", err
		}
		return "Journal entry", entry.ID, nil
	}
}

// splitPrefix case-insensitively matches the "(j|journal|t|task|l|log):"
// prefix and returns the normalized resource kind plus the remaining
// payload. No recognized prefix defaults to "journal" with the whole body
// as payload.
func splitPrefix(body string) (kind, rest string) {
	idx := strings.Index(body, ":")
	if idx < 0 {
		return "journal", body
	}
	prefix := strings.ToLower(strings.TrimSpace(body[:idx]))
	switch prefix {
	case "j", "journal":
		return "journal", body[idx+1:]
	case "t", "task":
		return "task", body[idx+1:]
	case "l", "log":
		return "log", body[idx+1:]
	default:
		return "journal", body
	}
}

func writeTwiML(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(status)
	escaped := xmlEscape(message)
	_, werr := fmt.Fprintf(w, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<Response><Message>%s</Message></Response>", escaped)
	if werr != nil {
		log.Printf("[TWILIO] failed to write response: %v", werr)
	}
}

func xmlEscape(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return r.Replace(s)
}
