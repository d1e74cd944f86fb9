package configstore

import (
	"path/filepath"
	"testing"

	"github.com/fleethub/controlplane/internal/apierr"
	"github.com/fleethub/controlplane/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "config.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSetValidatesKey(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Set("", "v", model.ConfigKindConfig); !apierr.IsValidation(err) {
		t.Errorf("expected a validation error for empty key, got %v", err)
	}
}

func TestSetDefaultsTypeToConfig(t *testing.T) {
	s := openTestStore(t)
	e, err := s.Set("region", "us-east", "")
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if e.Type != model.ConfigKindConfig {
		t.Errorf("got type %q, want %q", e.Type, model.ConfigKindConfig)
	}
}

func TestSetIsUpsert(t *testing.T) {
	s := openTestStore(t)
	s.Set("region", "us-east", model.ConfigKindConfig)
	e, err := s.Set("region", "eu-west", model.ConfigKindConfig)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if e.Value != "eu-west" {
		t.Errorf("got %+v", e)
	}
	all, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("got %d entries, want 1", len(all))
	}
}

func TestGetMasksSecrets(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Set("api_key", "sekret-value", model.ConfigKindSecret); err != nil {
		t.Fatalf("Set: %v", err)
	}

	e, err := s.Get("api_key")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if e.Value == "sekret-value" {
		t.Error("expected a masked value from Get on a secret entry")
	}

	revealed, err := s.Reveal("api_key")
	if err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	if revealed.Value != "sekret-value" {
		t.Errorf("got %q", revealed.Value)
	}
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Get("missing"); !apierr.IsNotFound(err) {
		t.Errorf("expected not-found, got %v", err)
	}
}

func TestListMasksSecretsOnly(t *testing.T) {
	s := openTestStore(t)
	s.Set("plain", "hello", model.ConfigKindConfig)
	s.Set("secret", "hunter2", model.ConfigKindSecret)

	all, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	byKey := make(map[string]model.ConfigEntry)
	for _, e := range all {
		byKey[e.Key] = e
	}
	if byKey["plain"].Value != "hello" {
		t.Errorf("plain entry should be unmasked, got %+v", byKey["plain"])
	}
	if byKey["secret"].Value == "hunter2" {
		t.Error("secret entry should be masked in List")
	}
}

func TestEnvReturnsUnmaskedValues(t *testing.T) {
	s := openTestStore(t)
	s.Set("secret", "hunter2", model.ConfigKindSecret)

	env, err := s.Env()
	if err != nil {
		t.Fatalf("Env: %v", err)
	}
	if env["secret"] != "hunter2" {
		t.Errorf("got %+v", env)
	}
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	s.Set("region", "us-east", model.ConfigKindConfig)

	if err := s.Delete("region"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete("region"); !apierr.IsNotFound(err) {
		t.Errorf("expected not-found on second delete, got %v", err)
	}
}
