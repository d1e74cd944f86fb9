// Package configstore implements the config/secret store of §3/§6: a small
// SQL-backed key-value table (data/config.db) whose secret-typed entries
// mask on ordinary read and unmask only through Reveal or Env.
package configstore

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fleethub/controlplane/internal/apierr"
	"github.com/fleethub/controlplane/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Store is the SQLite-backed config store.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and opens the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("configstore: migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Set upserts a config entry.
func (s *Store) Set(key, value string, typ model.ConfigEntryType) (model.ConfigEntry, error) {
	if strings.TrimSpace(key) == "" {
		return model.ConfigEntry{}, apierr.Validationf("key is required")
	}
	if typ == "" {
		typ = model.ConfigKindConfig
	}
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO config_entries (key, value, type, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, type = excluded.type, updated_at = excluded.updated_at`,
		key, value, string(typ), now,
	)
	if err != nil {
		return model.ConfigEntry{}, fmt.Errorf("configstore: upsert %q: %w", key, err)
	}
	return model.ConfigEntry{Key: key, Value: value, Type: typ, UpdatedAt: now}, nil
}

// Get returns a config entry, masked if it is a secret.
func (s *Store) Get(key string) (model.ConfigEntry, error) {
	e, err := s.getRaw(key)
	if err != nil {
		return model.ConfigEntry{}, err
	}
	return e.Masked(), nil
}

// Reveal returns a config entry with its real, unmasked value.
func (s *Store) Reveal(key string) (model.ConfigEntry, error) {
	return s.getRaw(key)
}

func (s *Store) getRaw(key string) (model.ConfigEntry, error) {
	row := s.db.QueryRow(`SELECT key, value, type, updated_at FROM config_entries WHERE key = ?`, key)
	e, err := scanEntry(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.ConfigEntry{}, apierr.NotFoundf("config key %q not found", key)
		}
		return model.ConfigEntry{}, err
	}
	return e, nil
}

// List returns every entry, masked, ordered by key.
func (s *Store) List() ([]model.ConfigEntry, error) {
	rows, err := s.db.Query(`SELECT key, value, type, updated_at FROM config_entries ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ConfigEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e.Masked())
	}
	return out, rows.Err()
}

// Env returns every entry unmasked, as a KEY=VALUE map suitable for
// populating an agent's process environment. This is the one bulk path that
// exposes secret values outside of an individual Reveal call.
func (s *Store) Env() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM config_entries`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// Delete removes a config entry.
func (s *Store) Delete(key string) error {
	res, err := s.db.Exec(`DELETE FROM config_entries WHERE key = ?`, key)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apierr.NotFoundf("config key %q not found", key)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (model.ConfigEntry, error) {
	var e model.ConfigEntry
	var typ string
	if err := row.Scan(&e.Key, &e.Value, &typ, &e.UpdatedAt); err != nil {
		return model.ConfigEntry{}, err
	}
	e.Type = model.ConfigEntryType(typ)
	return e, nil
}
