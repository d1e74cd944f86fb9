package natsmirror

import (
	"encoding/json"
	"testing"
	"time"

	nc "github.com/nats-io/nats.go"

	"github.com/fleethub/controlplane/internal/eventbus"
)

func TestPublishDeliversEventJSONToSubject(t *testing.T) {
	srv, err := StartEmbedded()
	if err != nil {
		t.Fatalf("StartEmbedded: %v", err)
	}
	defer srv.Shutdown()

	m, err := Connect(srv.URL())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer m.Close()

	sub, err := nc.Connect(srv.URL())
	if err != nil {
		t.Fatalf("Connect subscriber: %v", err)
	}
	defer sub.Close()

	msgs := make(chan *nc.Msg, 1)
	if _, err := sub.Subscribe("fleet.events.feed", func(msg *nc.Msg) { msgs <- msg }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	sub.Flush()

	event := eventbus.Event{ID: "evt-1", Type: "task_created", Summary: "did a thing", Timestamp: time.Now().UTC()}
	if err := m.Publish("feed", event); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-msgs:
		var got eventbus.Event
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.ID != "evt-1" || got.Summary != "did a thing" {
			t.Errorf("got %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for mirrored event")
	}
}
