// Package reports implements the Report store and its ShareLink/AccessEntry
// side tables (§4.J, §6). Reports themselves are a durable map (content is
// edited in place); share links and their access log are SQL-backed in
// data/share.db, matching the persisted-state layout in spec.md §6.
package reports

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
	"github.com/fleethub/controlplane/internal/dstore"
	"github.com/fleethub/controlplane/internal/idgen"
	"github.com/fleethub/controlplane/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Store holds reports and their share links.
type Store struct {
	mp *dstore.MapStore[string, model.Report]
	db *sql.DB
}

// Open opens the report map at reportsPath and the share-link database at
// sharesPath.
func Open(reportsPath, sharesPath string) (*Store, error) {
	mp, err := dstore.NewMapStore[string, model.Report](reportsPath, applyDefaults)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(sharesPath), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", sharesPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("reports: migrate schema: %w", err)
	}
	return &Store{mp: mp, db: db}, nil
}

func applyDefaults(r model.Report) model.Report {
	if r.Tags == nil {
		r.Tags = []string{}
	}
	return r
}

// Close releases the share-link database handle.
func (s *Store) Close() error { return s.db.Close() }

// Flush forces a synchronous write of the report map.
func (s *Store) Flush() error { return s.mp.Flush() }

// CreateInput is the payload for Create.
type CreateInput struct {
	Title   string
	Author  string
	Content string
	Tags    []string
}

// Create inserts a new report.
func (s *Store) Create(in CreateInput) (model.Report, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return model.Report{}, apierr.Validationf("title is required")
	}
	if strings.TrimSpace(in.Author) == "" {
		return model.Report{}, apierr.Validationf("author is required")
	}
	now := time.Now().UTC()
	r := applyDefaults(model.Report{
		ID: idgen.New(), Title: title, Author: in.Author, Content: in.Content,
		Tags: in.Tags, CreatedAt: now, UpdatedAt: now,
	})
	s.mp.Mutate(func(m map[string]model.Report) { m[r.ID] = r })
	return r, nil
}

// Get returns a report by id.
func (s *Store) Get(id string) (model.Report, error) {
	r, ok := s.mp.Get(id)
	if !ok {
		return model.Report{}, apierr.NotFoundf("report %s not found", id)
	}
	return r, nil
}

// List returns all reports, newest-updated first.
func (s *Store) List() []model.Report {
	var out []model.Report
	s.mp.View(func(m map[string]model.Report) {
		for _, r := range m {
			out = append(out, r)
		}
	})
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].UpdatedAt.After(out[i].UpdatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

// Update replaces a report's editable fields.
func (s *Store) Update(id, title, content string, tags []string) (model.Report, error) {
	var result model.Report
	var mutateErr error
	s.mp.Mutate(func(m map[string]model.Report) {
		r, ok := m[id]
		if !ok {
			mutateErr = apierr.NotFoundf("report %s not found", id)
			return
		}
		if strings.TrimSpace(title) != "" {
			r.Title = title
		}
		r.Content = content
		if tags != nil {
			r.Tags = tags
		}
		r.UpdatedAt = time.Now().UTC()
		m[id] = r
		result = r
	})
	if mutateErr != nil {
		return model.Report{}, mutateErr
	}
	return result, nil
}

// CreateShareInput is the payload for Share.
type CreateShareInput struct {
	ReportID  string
	CreatedBy string
	Label     string
	ExpiresAt *time.Time
}

// Share mints a public share link for a report.
func (s *Store) Share(in CreateShareInput) (model.ShareLink, error) {
	if _, err := s.Get(in.ReportID); err != nil {
		return model.ShareLink{}, err
	}
	link := model.ShareLink{
		LinkID: idgen.New(), ReportID: in.ReportID, CreatedBy: in.CreatedBy,
		CreatedAt: time.Now().UTC(), ExpiresAt: in.ExpiresAt, Label: in.Label,
	}
	_, err := s.db.Exec(
		`INSERT INTO share_links (link_id, report_id, created_by, created_at, expires_at, revoked, label) VALUES (?, ?, ?, ?, ?, 0, ?)`,
		link.LinkID, link.ReportID, link.CreatedBy, link.CreatedAt, link.ExpiresAt, link.Label,
	)
	if err != nil {
		return model.ShareLink{}, fmt.Errorf("reports: insert share link: %w", err)
	}
	return link, nil
}

// ListShares returns every share link minted for a report.
func (s *Store) ListShares(reportID string) ([]model.ShareLink, error) {
	rows, err := s.db.Query(
		`SELECT link_id, report_id, created_by, created_at, expires_at, revoked, label FROM share_links WHERE report_id = ? ORDER BY created_at DESC`,
		reportID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []model.ShareLink
	for rows.Next() {
		l, err := scanShareLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// GetShare returns a share link by id, regardless of validity.
func (s *Store) GetShare(linkID string) (model.ShareLink, error) {
	row := s.db.QueryRow(
		`SELECT link_id, report_id, created_by, created_at, expires_at, revoked, label FROM share_links WHERE link_id = ?`,
		linkID,
	)
	l, err := scanShareLink(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.ShareLink{}, apierr.NotFoundf("share link %s not found", linkID)
		}
		return model.ShareLink{}, err
	}
	return l, nil
}

// RevokeShare marks a share link revoked.
func (s *Store) RevokeShare(linkID string) error {
	res, err := s.db.Exec(`UPDATE share_links SET revoked = 1 WHERE link_id = ?`, linkID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apierr.NotFoundf("share link %s not found", linkID)
	}
	return nil
}

// RecordAccess appends an access-log row for a visit to a valid share link.
func (s *Store) RecordAccess(entry model.AccessEntry) error {
	_, err := s.db.Exec(
		`INSERT INTO access_log (link_id, ip, user_agent, referrer, timestamp) VALUES (?, ?, ?, ?, ?)`,
		entry.LinkID, entry.IP, entry.UserAgent, entry.Referrer, entry.Timestamp,
	)
	return err
}

// ListAccess returns the access log for a share link, newest first.
func (s *Store) ListAccess(linkID string) ([]model.AccessEntry, error) {
	rows, err := s.db.Query(
		`SELECT link_id, ip, user_agent, referrer, timestamp FROM access_log WHERE link_id = ? ORDER BY timestamp DESC`,
		linkID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AccessEntry
	for rows.Next() {
		var e model.AccessEntry
		var ip, ua, ref sql.NullString
		if err := rows.Scan(&e.LinkID, &ip, &ua, &ref, &e.Timestamp); err != nil {
			return nil, err
		}
		e.IP, e.UserAgent, e.Referrer = ip.String, ua.String, ref.String
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanShareLink(row scanner) (model.ShareLink, error) {
	var l model.ShareLink
	var expiresAt sql.NullTime
	var revoked int
	var label sql.NullString
	if err := row.Scan(&l.LinkID, &l.ReportID, &l.CreatedBy, &l.CreatedAt, &expiresAt, &revoked, &label); err != nil {
		return model.ShareLink{}, err
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		l.ExpiresAt = &t
	}
	l.Revoked = revoked != 0
	l.Label = label.String
	return l, nil
}
