// Package sse turns an eventbus subscription into a long-lived
// text/event-stream HTTP response (§4.K): ring-replay then live-tail, with a
// bounded per-connection outbound buffer that drops the oldest event on
// overflow rather than blocking the publisher.
package sse

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/fleethub/controlplane/internal/eventbus"
)

const (
	keepaliveInterval = 20 * time.Second
	outboxCapacity     = 64
)

// Source is the minimal bus surface the wrapper needs.
type Source interface {
	Subscribe(filter eventbus.Filter, sinceID string) (<-chan eventbus.Event, func())
}

// Serve writes one SSE stream for r's lifetime, subscribing to bus with the
// given filter and an optional ?since= replay point. It returns once the
// client disconnects.
func Serve(w http.ResponseWriter, r *http.Request, bus Source, filter eventbus.Filter) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sinceID := r.URL.Query().Get("since")
	upstream, cancel := bus.Subscribe(filter, sinceID)
	defer cancel()

	outbox := newOutbox(outboxCapacity)
	done := make(chan struct{})
	go pump(upstream, outbox, done)

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			// Upstream closed (bus shutting down); drain whatever remains
			// then stop.
			for {
				e, ok := outbox.pop()
				if !ok {
					return
				}
				if !writeEvent(w, flusher, e) {
					return
				}
			}
		case <-outbox.signal:
			for {
				e, ok := outbox.pop()
				if !ok {
					break
				}
				if !writeEvent(w, flusher, e) {
					return
				}
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ":keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func pump(upstream <-chan eventbus.Event, out *outbox, done chan struct{}) {
	defer close(done)
	for e := range upstream {
		out.push(e)
	}
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, e eventbus.Event) bool {
	payload, err := json.Marshal(e)
	if err != nil {
		log.Printf("[SSE] failed to marshal event %s: %v", e.ID, err)
		return true
	}
	if _, err := fmt.Fprintf(w, "id: %s\ndata: %s\n\n", e.ID, payload); err != nil {
		return false
	}
	flusher.Flush()
	return true
}

// outbox is the bounded, drop-oldest per-connection buffer required by
// §4.K's slow-consumer policy. The ring buffer + replay already make
// lossless delivery unnecessary, so a slow reader simply loses history
// rather than stalling the publisher.
type outbox struct {
	signal  chan struct{}
	mu      chanMu
	buf     []eventbus.Event
	cap     int
	dropped uint64
}

// chanMu is a 1-slot mutex implemented with a channel so push/pop never
// contend with the select loop's channel operations.
type chanMu chan struct{}

func (m chanMu) lock()   { m <- struct{}{} }
func (m chanMu) unlock() { <-m }

func newOutbox(capacity int) *outbox {
	return &outbox{
		signal: make(chan struct{}, 1),
		mu:     make(chanMu, 1),
		cap:    capacity,
	}
}

func (o *outbox) push(e eventbus.Event) {
	o.mu.lock()
	if len(o.buf) >= o.cap {
		o.buf = o.buf[1:]
		o.dropped++
	}
	o.buf = append(o.buf, e)
	o.mu.unlock()

	select {
	case o.signal <- struct{}{}:
	default:
	}
}

func (o *outbox) pop() (eventbus.Event, bool) {
	o.mu.lock()
	defer o.mu.unlock()
	if len(o.buf) == 0 {
		return eventbus.Event{}, false
	}
	e := o.buf[0]
	o.buf = o.buf[1:]
	return e, true
}
