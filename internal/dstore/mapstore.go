// Package dstore provides the two generic durable-storage primitives every
// feature store is an instance of: MapStore (whole-document JSON, keyed by
// primary key, debounced flush) and LogStore (append-only JSONL).
package dstore

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"github.com/fleethub/controlplane/internal/fsx"
)

// debounceInterval is the small window mutate() batches writes over before a
// flush fires, matching §4.C's "small debounce interval (~100 ms)".
const debounceInterval = 100 * time.Millisecond

// MapStore is a generic in-memory index fronting a file-backed JSON
// document, keyed by primary key K. It is safe for concurrent use; every
// mutation serializes through a single mutex, matching the §5 per-store
// locking model ("whole-store" granularity, correct because every feature
// store fits in memory).
type MapStore[K comparable, V any] struct {
	path string

	mu   sync.RWMutex
	data map[K]V

	flushMu   sync.Mutex
	timer     *time.Timer
	pending   bool
	onDefault func(V) V // applies schema defaults to a loaded value
}

// NewMapStore opens (recovering if necessary) the document at path. onDefault,
// if non-nil, is applied to every value loaded from disk so older documents
// missing newer fields get schema defaults (e.g. artifacts = []).
func NewMapStore[K comparable, V any](path string, onDefault func(V) V) (*MapStore[K, V], error) {
	s := &MapStore[K, V]{path: path, data: make(map[K]V), onDefault: onDefault}
	if _, err := fsx.Recover(path, nil); err != nil {
		return nil, err
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MapStore[K, V]) load() error {
	raw, err := readIfExists(s.path)
	if err != nil {
		return err
	}
	if raw == nil {
		return nil
	}
	var doc map[K]V
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if s.onDefault != nil {
		for k, v := range doc {
			doc[k] = s.onDefault(v)
		}
	}
	s.mu.Lock()
	s.data = doc
	s.mu.Unlock()
	return nil
}

// View runs f against a read-locked snapshot of the index. f must not retain
// references past the call that it mutates outside the lock.
func (s *MapStore[K, V]) View(f func(map[K]V)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f(s.data)
}

// Get returns the value for key and whether it was present.
func (s *MapStore[K, V]) Get(key K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// All returns a shallow copy of the current index, safe to range over
// without holding the store's lock.
func (s *MapStore[K, V]) All() map[K]V {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[K]V, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

// Mutate applies f to the index under the write lock, then schedules a
// debounced flush. f edits the map in place (insert, delete, or transform
// entries); it returns nothing.
func (s *MapStore[K, V]) Mutate(f func(map[K]V)) {
	s.mu.Lock()
	f(s.data)
	s.mu.Unlock()
	s.scheduleFlush()
}

func (s *MapStore[K, V]) scheduleFlush() {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	if s.pending {
		return
	}
	s.pending = true
	s.timer = time.AfterFunc(debounceInterval, func() {
		s.flushMu.Lock()
		s.pending = false
		s.flushMu.Unlock()
		if err := s.writeSnapshot(); err != nil {
			log.Printf("[DSTORE] flush failed for %s: %v", s.path, err)
		}
	})
}

// Flush cancels any pending debounce timer and writes synchronously. Used
// for graceful shutdown and test teardown.
func (s *MapStore[K, V]) Flush() error {
	s.flushMu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.pending = false
	s.flushMu.Unlock()
	return s.writeSnapshot()
}

func (s *MapStore[K, V]) writeSnapshot() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.data, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	return fsx.AtomicWrite(s.path, data)
}

func readIfExists(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}
