package dstore

import (
	"path/filepath"
	"testing"
)

type widget struct {
	ID    string
	Count int
}

func TestMapStoreMutateAndFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widgets.json")
	s, err := NewMapStore[string, widget](path, nil)
	if err != nil {
		t.Fatalf("NewMapStore: %v", err)
	}

	s.Mutate(func(m map[string]widget) {
		m["a"] = widget{ID: "a", Count: 1}
	})

	v, ok := s.Get("a")
	if !ok || v.Count != 1 {
		t.Fatalf("got %+v, %v", v, ok)
	}

	if err := s.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	reopened, err := NewMapStore[string, widget](path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	v, ok = reopened.Get("a")
	if !ok || v.Count != 1 {
		t.Errorf("reopened store lost the flushed write: %+v, %v", v, ok)
	}
}

func TestMapStoreAllIsACopy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widgets.json")
	s, err := NewMapStore[string, widget](path, nil)
	if err != nil {
		t.Fatalf("NewMapStore: %v", err)
	}
	s.Mutate(func(m map[string]widget) { m["a"] = widget{ID: "a", Count: 1} })

	snapshot := s.All()
	snapshot["a"] = widget{ID: "a", Count: 999}

	v, _ := s.Get("a")
	if v.Count != 1 {
		t.Errorf("mutating All()'s result should not affect the store, got count %d", v.Count)
	}
}

func TestMapStoreOnDefaultAppliedOnLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widgets.json")
	s, err := NewMapStore[string, widget](path, nil)
	if err != nil {
		t.Fatalf("NewMapStore: %v", err)
	}
	s.Mutate(func(m map[string]widget) { m["a"] = widget{ID: "a", Count: 0} })
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	applied := false
	reopened, err := NewMapStore[string, widget](path, func(w widget) widget {
		applied = true
		if w.Count == 0 {
			w.Count = 42
		}
		return w
	})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !applied {
		t.Fatal("expected onDefault to run during load")
	}
	v, _ := reopened.Get("a")
	if v.Count != 42 {
		t.Errorf("got count %d, want 42 from onDefault", v.Count)
	}
}

func TestMapStoreGetMissingKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widgets.json")
	s, err := NewMapStore[string, widget](path, nil)
	if err != nil {
		t.Fatalf("NewMapStore: %v", err)
	}
	if _, ok := s.Get("nope"); ok {
		t.Error("expected Get on an empty store to report not found")
	}
}
