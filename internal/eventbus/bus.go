package eventbus

import (
	"log"
	"sync"
	"sync/atomic"
)

// Mirror is an optional external sink a bus publishes to in addition to its
// own subscribers (e.g. a NATS relay). Errors are logged, never fatal.
type Mirror interface {
	Publish(busName string, e Event) error
}

type subscriber struct {
	id     string
	ch     chan Event
	filter Filter
}

// Bus is a fan-out publisher backed by a bounded ring for late-join replay.
// A single mutex guards both the ring and the subscriber set so that the
// replay-then-live switchover in Subscribe is atomic with respect to
// Publish: no event is ever delivered twice, and none is lost across the
// transition (§5).
type Bus struct {
	name    string
	mu      sync.Mutex
	ring    *ring
	subs    map[string]*subscriber
	nextID  uint64
	dropped uint64

	mirror Mirror
}

// New creates a bus with the given late-join ring capacity (0 -> default
// 1000, see §8) and optional name used to namespace an external mirror.
func New(name string, ringCapacity int) *Bus {
	return &Bus{
		name: name,
		ring: newRing(ringCapacity),
		subs: make(map[string]*subscriber),
	}
}

// SetMirror installs (or clears, with nil) an external relay for every
// published event.
func (b *Bus) SetMirror(m Mirror) {
	b.mu.Lock()
	b.mirror = m
	b.mu.Unlock()
}

// Publish appends e to the ring and synchronously fans it out to every
// matching subscriber. Subscriber delivery errors (a full channel) are
// swallowed; publish order is preserved per-subscriber.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	b.ring.push(e)
	recipients := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		if s.filter == nil || s.filter(e) {
			recipients = append(recipients, s)
		}
	}
	mirror := b.mirror
	name := b.name
	b.mu.Unlock()

	for _, s := range recipients {
		b.deliver(s, e)
	}

	if mirror != nil {
		if err := mirror.Publish(name, e); err != nil {
			log.Printf("[EVENTBUS] mirror publish failed for bus %s: %v", name, err)
		}
	}
}

func (b *Bus) deliver(s *subscriber, e Event) {
	select {
	case s.ch <- e:
	default:
		atomic.AddUint64(&b.dropped, 1)
		log.Printf("[EVENTBUS] dropped event %s for subscriber %s on bus %s (channel full)", e.ID, s.id, b.name)
	}
}

// Subscribe registers a new subscriber. If sinceID is non-empty, the
// returned channel is pre-loaded, in order, with every ring entry pushed after
// the one whose ID is sinceID (or, if sinceID is no longer in the ring, with
// every entry it still holds) before any live event can arrive. cancel is idempotent
// and removes the subscriber before returning.
func (b *Bus) Subscribe(filter Filter, sinceID string) (<-chan Event, func()) {
	b.mu.Lock()
	b.nextID++
	id := subID(b.nextID)

	replay := b.ring.since(sinceID)
	// Buffer large enough to hold a full replay without blocking while we
	// still hold the lock (and therefore block out concurrent publishes).
	bufSize := b.ring.cap + 32
	sub := &subscriber{id: id, ch: make(chan Event, bufSize), filter: filter}
	for _, e := range replay {
		if sub.filter == nil || sub.filter(e) {
			sub.ch <- e // never blocks: bufSize > len(replay) by construction
		}
	}
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if s, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(s.ch)
			}
			b.mu.Unlock()
		})
	}

	return sub.ch, cancel
}

// DroppedEventCount returns the number of events dropped due to a full
// subscriber channel, surfaced by /feed/stats.
func (b *Bus) DroppedEventCount() uint64 {
	return atomic.LoadUint64(&b.dropped)
}

func subID(n uint64) string {
	const hex = "0123456789abcdef"
	if n == 0 {
		return "0"
	}
	var buf [16]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = hex[n%16]
		n /= 16
	}
	return string(buf[i:])
}
