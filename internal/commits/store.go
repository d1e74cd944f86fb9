// Package commits implements the VM snapshot ledger of §4.J: a record of
// every named commit taken of a VM, so the fleet can answer "what snapshot
// was this agent running on".
package commits

import (
	"strings"
	"time"

	"github.com/fleethub/controlplane/internal/apierr"
	"github.com/fleethub/controlplane/internal/dstore"
	"github.com/fleethub/controlplane/internal/eventbus"
	"github.com/fleethub/controlplane/internal/idgen"
	"github.com/fleethub/controlplane/internal/model"
)

const maxInMemory = 10000

// Store is the commit ledger.
type Store struct {
	log *dstore.LogStore[model.CommitEntry]
	bus *eventbus.Bus
}

// Open opens the commit ledger at path.
func Open(path string, bus *eventbus.Bus) (*Store, error) {
	l, err := dstore.NewLogStore[model.CommitEntry](path, maxInMemory)
	if err != nil {
		return nil, err
	}
	return &Store{log: l, bus: bus}, nil
}

// Close releases the underlying file handle.
func (s *Store) Close() error { return s.log.Close() }

// RecordInput is the payload for Record.
type RecordInput struct {
	CommitID string
	VMID     string
	Label    string
	Agent    string
	Tags     []string
	Metadata map[string]string
}

// Record appends a commit entry.
func (s *Store) Record(in RecordInput) (model.CommitEntry, error) {
	if strings.TrimSpace(in.CommitID) == "" {
		return model.CommitEntry{}, apierr.Validationf("commitId is required")
	}
	if strings.TrimSpace(in.VMID) == "" {
		return model.CommitEntry{}, apierr.Validationf("vmId is required")
	}
	for _, e := range s.log.All() {
		if e.CommitID == in.CommitID {
			return model.CommitEntry{}, apierr.Conflictf("commit %s already recorded", in.CommitID)
		}
	}
	entry := model.CommitEntry{
		ID: idgen.New(), CommitID: in.CommitID, VMID: in.VMID, Timestamp: time.Now().UTC(),
		Label: in.Label, Agent: in.Agent, Tags: in.Tags, Metadata: in.Metadata,
	}
	if err := s.log.Append(entry); err != nil {
		return model.CommitEntry{}, err
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.NewEvent("commit_recorded", in.Agent, in.CommitID, in.Label, map[string]any{
			"vmId": in.VMID, "commitId": in.CommitID,
		}))
	}
	return entry, nil
}

// All returns every commit entry, oldest first, optionally filtered by VM.
func (s *Store) All(vmID string) []model.CommitEntry {
	entries := s.log.All()
	if vmID == "" {
		return entries
	}
	out := make([]model.CommitEntry, 0, len(entries))
	for _, e := range entries {
		if e.VMID == vmID {
			out = append(out, e)
		}
	}
	return out
}

// Get returns a commit entry by id.
func (s *Store) Get(id string) (model.CommitEntry, error) {
	for _, e := range s.log.All() {
		if e.ID == id {
			return e, nil
		}
	}
	return model.CommitEntry{}, apierr.NotFoundf("commit %s not found", id)
}
