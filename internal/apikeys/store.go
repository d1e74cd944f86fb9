// Package apikeys implements the API-key store of §4.F: bearer credentials
// that hash on insert, verify by hash lookup, and are revocable. Backed by
// modernc.org/sqlite (pure Go, no cgo), matching the embedded-SQL engine the
// teacher's internal/memory and internal/tasks packages reach for.
package apikeys

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fleethub/controlplane/internal/apierr"
	"github.com/fleethub/controlplane/internal/idgen"
)

//go:embed schema.sql
var schemaSQL string

const rawKeyPrefix = "vk_"

// Key is the public, non-secret representation of an API key.
type Key struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	KeyPrefix string    `json:"keyPrefix"`
	CreatedAt time.Time `json:"createdAt"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
	Scopes    []string  `json:"scopes"`
}

// Created is returned exactly once, at creation time, and is the only place
// the raw key ever appears.
type Created struct {
	Key
	RawKey string `json:"rawKey"`
}

// Store is the SQLite-backed API key store.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and opens the database at path, running its
// schema migration.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: single writer, serialize access

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apikeys: migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Create generates a fresh raw key ("vk_" + 64 hex chars from 32 random
// bytes), persists only its SHA-256 hash, and returns the raw key exactly
// once.
func (s *Store) Create(name string, scopes []string) (*Created, error) {
	if name == "" {
		return nil, apierr.Validationf("name is required")
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("apikeys: generate key material: %w", err)
	}
	rawKey := rawKeyPrefix + hex.EncodeToString(raw)
	hash := sha256.Sum256([]byte(rawKey))
	hashHex := hex.EncodeToString(hash[:])

	id := idgen.New()
	createdAt := time.Now().UTC()
	scopesJSON, _ := json.Marshal(scopes)

	_, err := s.db.Exec(
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, created_at, scopes) VALUES (?, ?, ?, ?, ?, ?)`,
		id, name, hashHex, rawKey[:7], createdAt, string(scopesJSON),
	)
	if err != nil {
		return nil, fmt.Errorf("apikeys: insert: %w", err)
	}

	return &Created{
		Key: Key{
			ID: id, Name: name, KeyPrefix: rawKey[:7],
			CreatedAt: createdAt, Scopes: scopes,
		},
		RawKey: rawKey,
	}, nil
}

// Verify reports whether raw hashes to a row with no revocation timestamp.
// This only backs the boolean authenticator path; VerifyKey below returns
// the matched key's public fields when a caller needs them.
func (s *Store) Verify(raw string) bool {
	_, ok := s.VerifyKey(raw)
	return ok
}

// VerifyKey hashes raw and looks it up by hash index. Lookup-by-hash makes a
// constant-time string compare unnecessary at this layer (per §4.F); callers
// comparing bearer strings directly elsewhere (authmw) still do.
func (s *Store) VerifyKey(raw string) (Key, bool) {
	hash := sha256.Sum256([]byte(raw))
	hashHex := hex.EncodeToString(hash[:])

	row := s.db.QueryRow(
		`SELECT id, name, key_prefix, created_at, revoked_at, scopes FROM api_keys WHERE key_hash = ? AND revoked_at IS NULL`,
		hashHex,
	)
	k, err := scanKey(row)
	if err != nil {
		return Key{}, false
	}
	return k, true
}

// List returns every key's public fields, newest first. The raw key is
// never stored, so it never appears here.
func (s *Store) List() ([]Key, error) {
	rows, err := s.db.Query(`SELECT id, name, key_prefix, created_at, revoked_at, scopes FROM api_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []Key
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Get returns one key's public fields by id.
func (s *Store) Get(id string) (Key, error) {
	row := s.db.QueryRow(`SELECT id, name, key_prefix, created_at, revoked_at, scopes FROM api_keys WHERE id = ?`, id)
	k, err := scanKey(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return Key{}, apierr.NotFoundf("api key %s not found", id)
		}
		return Key{}, err
	}
	return k, nil
}

// Revoke sets revoked_at = now, only when it is currently null. Returns
// whether a row was affected (a second revoke on the same key is a no-op,
// not a new timestamp).
func (s *Store) Revoke(id string) (bool, error) {
	res, err := s.db.Exec(`UPDATE api_keys SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`, time.Now().UTC(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		if _, err := s.Get(id); err != nil {
			return false, err
		}
	}
	return n > 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanKey(row scanner) (Key, error) {
	var k Key
	var revokedAt sql.NullTime
	var scopesJSON string
	if err := row.Scan(&k.ID, &k.Name, &k.KeyPrefix, &k.CreatedAt, &revokedAt, &scopesJSON); err != nil {
		return Key{}, err
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		k.RevokedAt = &t
	}
	if scopesJSON != "" {
		_ = json.Unmarshal([]byte(scopesJSON), &k.Scopes)
	}
	return k, nil
}
