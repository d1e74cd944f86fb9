package apikeys

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/fleethub/controlplane/internal/apierr"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "apikeys.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateValidatesName(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Create("", nil); !apierr.IsValidation(err) {
		t.Errorf("expected a validation error for empty name, got %v", err)
	}
}

func TestCreateReturnsRawKeyOnce(t *testing.T) {
	s := openTestStore(t)
	created, err := s.Create("ci-runner", []string{"read"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.HasPrefix(created.RawKey, rawKeyPrefix) {
		t.Errorf("got raw key %q, want prefix %q", created.RawKey, rawKeyPrefix)
	}
	if created.KeyPrefix != created.RawKey[:7] {
		t.Errorf("got keyPrefix %q, want %q", created.KeyPrefix, created.RawKey[:7])
	}

	got, err := s.Get(created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "ci-runner" {
		t.Errorf("got %+v", got)
	}
}

func TestVerifyAcceptsOnlyLiveRawKeys(t *testing.T) {
	s := openTestStore(t)
	created, err := s.Create("ci-runner", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if !s.Verify(created.RawKey) {
		t.Error("expected the freshly created raw key to verify")
	}
	if s.Verify("vk_bogus") {
		t.Error("expected an unknown raw key to fail verification")
	}

	if _, err := s.Revoke(created.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if s.Verify(created.RawKey) {
		t.Error("expected a revoked key to fail verification")
	}
}

func TestVerifyKeyReturnsPublicFields(t *testing.T) {
	s := openTestStore(t)
	created, err := s.Create("ci-runner", []string{"read", "write"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	k, ok := s.VerifyKey(created.RawKey)
	if !ok {
		t.Fatal("expected verification to succeed")
	}
	if k.ID != created.ID || len(k.Scopes) != 2 {
		t.Errorf("got %+v", k)
	}
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Get("missing"); !apierr.IsNotFound(err) {
		t.Errorf("expected not-found, got %v", err)
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	created, err := s.Create("ci-runner", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	revoked, err := s.Revoke(created.ID)
	if err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if !revoked {
		t.Error("expected the first revoke to report true")
	}

	revokedAgain, err := s.Revoke(created.ID)
	if err != nil {
		t.Fatalf("Revoke second time: %v", err)
	}
	if revokedAgain {
		t.Error("expected the second revoke to report false")
	}
}

func TestRevokeMissing(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Revoke("missing"); !apierr.IsNotFound(err) {
		t.Errorf("expected not-found, got %v", err)
	}
}

func TestListOrdersNewestFirst(t *testing.T) {
	s := openTestStore(t)
	first, err := s.Create("first", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	second, err := s.Create("second", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	keys, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("got %d keys, want 2", len(keys))
	}
	if keys[0].ID != second.ID || keys[1].ID != first.ID {
		t.Errorf("got %+v", keys)
	}
}
