package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fleethub/controlplane/internal/eventbus"
)

func TestServeStreamsPublishedEvents(t *testing.T) {
	bus := eventbus.New("test", 10)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		Serve(rec, req, bus, nil)
		close(done)
	}()

	// Give Serve time to subscribe before publishing.
	time.Sleep(20 * time.Millisecond)
	bus.Publish(eventbus.NewEvent("task_created", "agent-1", "hello", "", nil))
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after context cancellation")
	}

	body := rec.Body.String()
	if !strings.Contains(body, "hello") {
		t.Errorf("expected streamed body to contain the published event, got %q", body)
	}
	if !strings.HasPrefix(strings.TrimLeft(body, "\n"), "id: ") {
		t.Errorf("expected an SSE id: line, got %q", body)
	}
}

func TestServeRejectsNonFlusherWriter(t *testing.T) {
	bus := eventbus.New("test", 10)
	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	w := &nonFlusherWriter{header: make(http.Header)}

	Serve(w, req, bus, nil)

	if w.status != http.StatusInternalServerError {
		t.Errorf("got status %d, want 500 when the writer can't stream", w.status)
	}
}

// nonFlusherWriter implements http.ResponseWriter but deliberately not
// http.Flusher, so Serve must fall back to its unsupported-streaming path.
type nonFlusherWriter struct {
	header http.Header
	status int
	buf    []byte
}

func (w *nonFlusherWriter) Header() http.Header { return w.header }
func (w *nonFlusherWriter) Write(b []byte) (int, error) {
	w.buf = append(w.buf, b...)
	return len(b), nil
}
func (w *nonFlusherWriter) WriteHeader(status int) { w.status = status }

func TestOutboxDropsOldestWhenFull(t *testing.T) {
	o := newOutbox(2)
	o.push(eventbus.Event{ID: "1"})
	o.push(eventbus.Event{ID: "2"})
	o.push(eventbus.Event{ID: "3"})

	first, ok := o.pop()
	if !ok || first.ID != "2" {
		t.Errorf("expected oldest (id 1) to have been dropped, got %+v", first)
	}
	if o.dropped != 1 {
		t.Errorf("got dropped=%d, want 1", o.dropped)
	}
}
