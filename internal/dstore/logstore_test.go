package dstore

import (
	"os"
	"path/filepath"
	"testing"
)

type entry struct {
	Key  string
	Text string
}

func (e entry) RecordKey() string { return e.Key }

func TestLogStoreAppendAndAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	s, err := NewLogStore[entry](path, 0)
	if err != nil {
		t.Fatalf("NewLogStore: %v", err)
	}
	defer s.Close()

	if err := s.Append(entry{Key: "1", Text: "first"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(entry{Key: "2", Text: "second"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	all := s.All()
	if len(all) != 2 || all[0].Text != "first" || all[1].Text != "second" {
		t.Errorf("got %+v", all)
	}
}

func TestLogStoreReloadsFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	s, err := NewLogStore[entry](path, 0)
	if err != nil {
		t.Fatalf("NewLogStore: %v", err)
	}
	if err := s.Append(entry{Key: "1", Text: "persisted"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewLogStore[entry](path, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	all := reopened.All()
	if len(all) != 1 || all[0].Text != "persisted" {
		t.Errorf("got %+v", all)
	}
}

func TestLogStoreSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	data := "{\"Key\":\"1\",\"Text\":\"good\"}\nnot json at all\n{\"Key\":\"2\",\"Text\":\"also good\"}\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := NewLogStore[entry](path, 0)
	if err != nil {
		t.Fatalf("NewLogStore: %v", err)
	}
	defer s.Close()

	all := s.All()
	if len(all) != 2 {
		t.Fatalf("expected the malformed line to be skipped, got %d records: %+v", len(all), all)
	}
}

func TestLogStoreMaxInMemoryCapsButKeepsDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	s, err := NewLogStore[entry](path, 2)
	if err != nil {
		t.Fatalf("NewLogStore: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := s.Append(entry{Key: string(rune('a' + i)), Text: "x"}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if got := len(s.All()); got != 2 {
		t.Errorf("expected in-memory slice capped at 2, got %d", got)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	if lines != 5 {
		t.Errorf("expected disk to retain all 5 appends, counted %d lines", lines)
	}
}

func TestLogStoreDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	s, err := NewLogStore[entry](path, 0)
	if err != nil {
		t.Fatalf("NewLogStore: %v", err)
	}
	defer s.Close()

	if err := s.Append(entry{Key: "1", Text: "keep"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(entry{Key: "2", Text: "remove"}); err != nil {
		t.Fatal(err)
	}

	removed, err := s.Delete("2")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !removed {
		t.Error("expected Delete to report removal")
	}

	all := s.All()
	if len(all) != 1 || all[0].Key != "1" {
		t.Errorf("got %+v", all)
	}

	removed, err = s.Delete("missing")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if removed {
		t.Error("expected Delete of a missing key to report false")
	}
}
