// Package journal implements the free-text journal feed of §4.J: an
// append-only log of an agent's running commentary, with a raw text/plain
// rendering for quick tailing.
package journal

import (
	"strings"
	"time"

	"github.com/fleethub/controlplane/internal/apierr"
	"github.com/fleethub/controlplane/internal/dstore"
	"github.com/fleethub/controlplane/internal/eventbus"
	"github.com/fleethub/controlplane/internal/idgen"
	"github.com/fleethub/controlplane/internal/model"
)

// maxInMemory bounds how much journal history stays resident; older entries
// are still on disk but dropped from the in-memory slice on load.
const maxInMemory = 5000

// Store is the journal feature store.
type Store struct {
	log *dstore.LogStore[model.JournalEntry]
	bus *eventbus.Bus
}

// Open opens the journal log at path.
func Open(path string, bus *eventbus.Bus) (*Store, error) {
	log, err := dstore.NewLogStore[model.JournalEntry](path, maxInMemory)
	if err != nil {
		return nil, err
	}
	return &Store{log: log, bus: bus}, nil
}

// Close releases the underlying file handle.
func (s *Store) Close() error { return s.log.Close() }

// Append records a new journal entry.
func (s *Store) Append(text, author, mood string, tags []string) (model.JournalEntry, error) {
	if strings.TrimSpace(text) == "" {
		return model.JournalEntry{}, apierr.Validationf("text is required")
	}
	entry := model.JournalEntry{
		ID: idgen.New(), Timestamp: time.Now().UTC(), Text: text, Author: author, Mood: mood, Tags: tags,
	}
	if err := s.log.Append(entry); err != nil {
		return model.JournalEntry{}, err
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.NewEvent("journal_entry", author, text, mood, map[string]any{"entryId": entry.ID}))
	}
	return entry, nil
}

// All returns every entry, oldest first.
func (s *Store) All() []model.JournalEntry { return s.log.All() }

// Raw renders every entry as plain text lines, newest last, for tailing.
func (s *Store) Raw() string {
	entries := s.All()
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.Timestamp.Format(time.RFC3339))
		b.WriteString(" ")
		if e.Author != "" {
			b.WriteString("[" + e.Author + "] ")
		}
		b.WriteString(e.Text)
		b.WriteString("\n")
	}
	return b.String()
}
