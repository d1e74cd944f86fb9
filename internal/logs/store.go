// Package logs implements the agent activity log of §4.J: a higher-volume
// sibling of the journal, keyed by agent rather than free-form mood.
package logs

import (
	"strings"
	"time"

	"github.com/fleethub/controlplane/internal/apierr"
	"github.com/fleethub/controlplane/internal/dstore"
	"github.com/fleethub/controlplane/internal/eventbus"
	"github.com/fleethub/controlplane/internal/idgen"
	"github.com/fleethub/controlplane/internal/model"
)

const maxInMemory = 20000

// Store is the log feature store.
type Store struct {
	log *dstore.LogStore[model.LogEntry]
	bus *eventbus.Bus
}

// Open opens the log store at path.
func Open(path string, bus *eventbus.Bus) (*Store, error) {
	l, err := dstore.NewLogStore[model.LogEntry](path, maxInMemory)
	if err != nil {
		return nil, err
	}
	return &Store{log: l, bus: bus}, nil
}

// Close releases the underlying file handle.
func (s *Store) Close() error { return s.log.Close() }

// Append records a new log line.
func (s *Store) Append(text, agent string, tags []string) (model.LogEntry, error) {
	if strings.TrimSpace(text) == "" {
		return model.LogEntry{}, apierr.Validationf("text is required")
	}
	entry := model.LogEntry{ID: idgen.New(), Timestamp: time.Now().UTC(), Text: text, Agent: agent, Tags: tags}
	if err := s.log.Append(entry); err != nil {
		return model.LogEntry{}, err
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.NewEvent("log_entry", agent, text, "", map[string]any{"entryId": entry.ID}))
	}
	return entry, nil
}

// All returns every entry matching agent (or all, if agent is empty),
// oldest first.
func (s *Store) All(agent string) []model.LogEntry {
	entries := s.log.All()
	if agent == "" {
		return entries
	}
	out := make([]model.LogEntry, 0, len(entries))
	for _, e := range entries {
		if e.Agent == agent {
			out = append(out, e)
		}
	}
	return out
}

// Raw renders entries as plain text lines.
func (s *Store) Raw(agent string) string {
	var b strings.Builder
	for _, e := range s.All(agent) {
		b.WriteString(e.Timestamp.Format(time.RFC3339))
		b.WriteString(" ")
		if e.Agent != "" {
			b.WriteString("[" + e.Agent + "] ")
		}
		b.WriteString(e.Text)
		b.WriteString("\n")
	}
	return b.String()
}
