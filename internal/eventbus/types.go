// Package eventbus implements the fan-out, late-join-replay event bus of
// §4.E: a bounded ring buffer backing every subscriber, with the
// replay-then-live switchover happening atomically under one lock per §5.
package eventbus

import (
	"time"

	"github.com/fleethub/controlplane/internal/idgen"
)

// Event is the bus's wire shape. Feed events and skill change-events are
// both instances of this with Type/Payload carrying the feature-specific
// fields, so one bus implementation serves both §4.E consumers.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Agent     string         `json:"agent,omitempty"`
	Summary   string         `json:"summary,omitempty"`
	Detail    string         `json:"detail,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEvent stamps id/timestamp if absent, matching the teacher's
// events.NewEvent convenience constructor.
func NewEvent(typ, agent, summary, detail string, metadata map[string]any) Event {
	return Event{
		ID:        idgen.New(),
		Type:      typ,
		Agent:     agent,
		Summary:   summary,
		Detail:    detail,
		Metadata:  metadata,
		Timestamp: time.Now(),
	}
}

// Filter is a predicate over event fields, e.g. "agent == x". A nil filter
// accepts everything.
type Filter func(Event) bool
