// Package usage implements the analytics store of §4.L: session and VM
// accounting with upsert-by-business-key semantics, backed by
// modernc.org/sqlite (the "embedded analytic SQL engine" spec.md §3/§6
// names, consolidated onto the same pure-Go driver as every other
// embedded-SQL artifact — see DESIGN.md).
package usage

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fleethub/controlplane/internal/apierr"
	"github.com/fleethub/controlplane/internal/idgen"
	"github.com/fleethub/controlplane/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Store is the SQLite-backed usage/accounting store.
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
		return nil, fmt.Errorf("usage: migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// RecordSession inserts a new session row, allocating an id.
func (s *Store) RecordSession(in model.SessionRecord) (model.SessionRecord, error) {
	if in.SessionID == "" {
		return model.SessionRecord{}, apierr.Validationf("sessionId is required")
	}
	in.ID = idgen.New()
	in.RecordedAt = time.Now().UTC()
	if err := s.insertSession(in); err != nil {
		return model.SessionRecord{}, err
	}
	return in, nil
}

// UpsertSession updates the row identified by sessionId if one exists
// (preserving its id and startedAt), else inserts a fresh row. This is the
// path an in-flight session's periodic flush uses.
func (s *Store) UpsertSession(sessionID string, in model.SessionRecord) (model.SessionRecord, error) {
	if sessionID == "" {
		return model.SessionRecord{}, apierr.Validationf("sessionId is required")
	}
	in.SessionID = sessionID
	in.RecordedAt = time.Now().UTC()

	existing, err := s.getSessionBySessionID(sessionID)
	if err != nil && !apierr.IsNotFound(err) {
		return model.SessionRecord{}, err
	}
	if err == nil {
		in.ID = existing.ID
		in.StartedAt = existing.StartedAt
		if in.StartedAt.IsZero() {
			in.StartedAt = time.Now().UTC()
		}
		if err := s.updateSession(in); err != nil {
			return model.SessionRecord{}, err
		}
		return in, nil
	}

	in.ID = idgen.New()
	if in.StartedAt.IsZero() {
		in.StartedAt = time.Now().UTC()
	}
	if err := s.insertSession(in); err != nil {
		return model.SessionRecord{}, err
	}
	return in, nil
}

func (s *Store) insertSession(in model.SessionRecord) error {
	toolCalls, _ := json.Marshal(in.ToolCalls)
	_, err := s.db.Exec(
		`INSERT INTO sessions (
			id, session_id, agent, parent_agent, model,
			tokens_input, tokens_output, tokens_cache_read, tokens_cache_write, tokens_total,
			cost_input, cost_output, cost_cache_read, cost_cache_write, cost_total,
			turns, tool_calls, started_at, ended_at, recorded_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		in.ID, in.SessionID, in.Agent, nullStr(in.ParentAgent), in.Model,
		in.Tokens.Input, in.Tokens.Output, in.Tokens.CacheRead, in.Tokens.CacheWrite, in.Tokens.Total,
		in.Cost.Input, in.Cost.Output, in.Cost.CacheRead, in.Cost.CacheWrite, in.Cost.Total,
		in.Turns, string(toolCalls), in.StartedAt, nullTime(in.EndedAt), in.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("usage: insert session: %w", err)
	}
	return nil
}

func (s *Store) updateSession(in model.SessionRecord) error {
	toolCalls, _ := json.Marshal(in.ToolCalls)
	_, err := s.db.Exec(
		`UPDATE sessions SET
			agent=?, parent_agent=?, model=?,
			tokens_input=?, tokens_output=?, tokens_cache_read=?, tokens_cache_write=?, tokens_total=?,
			cost_input=?, cost_output=?, cost_cache_read=?, cost_cache_write=?, cost_total=?,
			turns=?, tool_calls=?, started_at=?, ended_at=?, recorded_at=?
		 WHERE id=?`,
		in.Agent, nullStr(in.ParentAgent), in.Model,
		in.Tokens.Input, in.Tokens.Output, in.Tokens.CacheRead, in.Tokens.CacheWrite, in.Tokens.Total,
		in.Cost.Input, in.Cost.Output, in.Cost.CacheRead, in.Cost.CacheWrite, in.Cost.Total,
		in.Turns, string(toolCalls), in.StartedAt, nullTime(in.EndedAt), in.RecordedAt,
		in.ID,
	)
	if err != nil {
		return fmt.Errorf("usage: update session: %w", err)
	}
	return nil
}

func (s *Store) getSessionBySessionID(sessionID string) (model.SessionRecord, error) {
	row := s.db.QueryRow(sessionSelectSQL+" WHERE session_id = ?", sessionID)
	rec, err := scanSession(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.SessionRecord{}, apierr.NotFoundf("session %q not found", sessionID)
		}
		return model.SessionRecord{}, err
	}
	return rec, nil
}

// SessionFilters narrows ListSessions.
type SessionFilters struct {
	Agent string
	Range string
}

// ListSessions returns sessions matching filters, newest-started-first.
func (s *Store) ListSessions(f SessionFilters) ([]model.SessionRecord, error) {
	query := sessionSelectSQL + " WHERE started_at >= ?"
	args := []any{cutoffFor(f.Range)}
	if f.Agent != "" {
		query += " AND agent = ?"
		args = append(args, f.Agent)
	}
	query += " ORDER BY started_at DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecordVM inserts a VM lifecycle row, or (when DestroyedAt is set and a
// prior row for the same VMID exists) updates that row's destroyed_at.
func (s *Store) RecordVM(in model.VMAccountingRecord) (model.VMAccountingRecord, error) {
	if in.VMID == "" {
		return model.VMAccountingRecord{}, apierr.Validationf("vmId is required")
	}
	in.RecordedAt = time.Now().UTC()

	if in.DestroyedAt != nil {
		existing, err := s.latestVMRecord(in.VMID)
		if err == nil {
			existing.DestroyedAt = in.DestroyedAt
			existing.RecordedAt = in.RecordedAt
			if _, err := s.db.Exec(
				`UPDATE vm_records SET destroyed_at = ?, recorded_at = ? WHERE id = ?`,
				existing.DestroyedAt, existing.RecordedAt, existing.ID,
			); err != nil {
				return model.VMAccountingRecord{}, fmt.Errorf("usage: update vm record: %w", err)
			}
			return existing, nil
		}
		if !apierr.IsNotFound(err) {
			return model.VMAccountingRecord{}, err
		}
	}

	in.ID = idgen.New()
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO vm_records (id, vm_id, role, agent, commit_id, created_at, destroyed_at, recorded_at)
		 VALUES (?,?,?,?,?,?,?,?)`,
		in.ID, in.VMID, string(in.Role), in.Agent, nullStr(in.CommitID), in.CreatedAt, nullTime(in.DestroyedAt), in.RecordedAt,
	)
	if err != nil {
		return model.VMAccountingRecord{}, fmt.Errorf("usage: insert vm record: %w", err)
	}
	return in, nil
}

func (s *Store) latestVMRecord(vmID string) (model.VMAccountingRecord, error) {
	row := s.db.QueryRow(vmSelectSQL+" WHERE vm_id = ? ORDER BY created_at DESC LIMIT 1", vmID)
	rec, err := scanVM(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.VMAccountingRecord{}, apierr.NotFoundf("vm record %q not found", vmID)
		}
		return model.VMAccountingRecord{}, err
	}
	return rec, nil
}

// VMFilters narrows ListVMs.
type VMFilters struct {
	Role  model.VMRole
	Agent string
	Range string
}

// ListVMs returns VM lifecycle rows matching filters, deduplicated by VMID
// keeping each VM's most recent record, newest-created-first.
func (s *Store) ListVMs(f VMFilters) ([]model.VMAccountingRecord, error) {
	query := vmSelectSQL + " WHERE created_at >= ?"
	args := []any{cutoffFor(f.Range)}
	if f.Role != "" {
		query += " AND role = ?"
		args = append(args, string(f.Role))
	}
	if f.Agent != "" {
		query += " AND agent = ?"
		args = append(args, f.Agent)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var out []model.VMAccountingRecord
	for rows.Next() {
		rec, err := scanVM(rows)
		if err != nil {
			return nil, err
		}
		if seen[rec.VMID] {
			continue
		}
		seen[rec.VMID] = true
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Summary computes the time-ranged rollup of §4.L: totals plus a byAgent
// breakdown. The per-agent rows are sorted by descending cost before they
// are stored, but ByAgent is a map, so the result carries no order (JSON
// encodes its keys alphabetically). vms is a raw row count within the
// range, not deduplicated by vm_id — an ambiguity spec.md §9 leaves as the
// source behaves (see DESIGN.md).
func (s *Store) Summary(rng string) (model.UsageSummary, error) {
	cutoff := cutoffFor(rng)

	summary := model.UsageSummary{ByAgent: map[string]model.AgentSummary{}}

	row := s.db.QueryRow(
		`SELECT COALESCE(SUM(tokens_total),0), COALESCE(SUM(cost_total),0), COUNT(*)
		 FROM sessions WHERE started_at >= ?`, cutoff,
	)
	if err := row.Scan(&summary.Tokens, &summary.Cost, &summary.Sessions); err != nil {
		return model.UsageSummary{}, err
	}
	summary.Cost = round2(summary.Cost)

	vmRow := s.db.QueryRow(`SELECT COUNT(*) FROM vm_records WHERE created_at >= ?`, cutoff)
	if err := vmRow.Scan(&summary.VMs); err != nil {
		return model.UsageSummary{}, err
	}

	rows, err := s.db.Query(
		`SELECT agent, COALESCE(SUM(tokens_total),0), COALESCE(SUM(cost_total),0), COUNT(*)
		 FROM sessions WHERE started_at >= ? GROUP BY agent`, cutoff,
	)
	if err != nil {
		return model.UsageSummary{}, err
	}
	defer rows.Close()

	type agentRow struct {
		agent string
		as    model.AgentSummary
	}
	var byAgent []agentRow
	for rows.Next() {
		var ar agentRow
		if err := rows.Scan(&ar.agent, &ar.as.Tokens, &ar.as.Cost, &ar.as.Sessions); err != nil {
			return model.UsageSummary{}, err
		}
		ar.as.Cost = round2(ar.as.Cost)
		byAgent = append(byAgent, ar)
	}
	if err := rows.Err(); err != nil {
		return model.UsageSummary{}, err
	}
	sort.Slice(byAgent, func(i, j int) bool { return byAgent[i].as.Cost > byAgent[j].as.Cost })
	for _, ar := range byAgent {
		summary.ByAgent[ar.agent] = ar.as
	}

	return summary, nil
}

var rangePattern = regexp.MustCompile(`^(\d+)(h|d)$`)

// cutoffFor parses a §4.L range string ("Nh"/"Nd") into an absolute cutoff
// time. An unrecognized range falls back to epoch-0 (all history).
func cutoffFor(rng string) time.Time {
	m := rangePattern.FindStringSubmatch(rng)
	if m == nil {
		return time.Unix(0, 0).UTC()
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Unix(0, 0).UTC()
	}
	unit := time.Hour
	if m[2] == "d" {
		unit = 24 * time.Hour
	}
	return time.Now().UTC().Add(-time.Duration(n) * unit)
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

func nullStr(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

const sessionSelectSQL = `SELECT id, session_id, agent, parent_agent, model,
	tokens_input, tokens_output, tokens_cache_read, tokens_cache_write, tokens_total,
	cost_input, cost_output, cost_cache_read, cost_cache_write, cost_total,
	turns, tool_calls, started_at, ended_at, recorded_at FROM sessions`

const vmSelectSQL = `SELECT id, vm_id, role, agent, commit_id, created_at, destroyed_at, recorded_at FROM vm_records`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (model.SessionRecord, error) {
	var rec model.SessionRecord
	var parentAgent, toolCallsJSON sql.NullString
	var endedAt sql.NullTime
	if err := row.Scan(
		&rec.ID, &rec.SessionID, &rec.Agent, &parentAgent, &rec.Model,
		&rec.Tokens.Input, &rec.Tokens.Output, &rec.Tokens.CacheRead, &rec.Tokens.CacheWrite, &rec.Tokens.Total,
		&rec.Cost.Input, &rec.Cost.Output, &rec.Cost.CacheRead, &rec.Cost.CacheWrite, &rec.Cost.Total,
		&rec.Turns, &toolCallsJSON, &rec.StartedAt, &endedAt, &rec.RecordedAt,
	); err != nil {
		return model.SessionRecord{}, err
	}
	rec.ParentAgent = parentAgent.String
	if endedAt.Valid {
		t := endedAt.Time
		rec.EndedAt = &t
	}
	if toolCallsJSON.String != "" {
		_ = json.Unmarshal([]byte(toolCallsJSON.String), &rec.ToolCalls)
	}
	return rec, nil
}

func scanVM(row scanner) (model.VMAccountingRecord, error) {
	var rec model.VMAccountingRecord
	var role, commitID string
	var commitIDNull sql.NullString
	var destroyedAt sql.NullTime
	if err := row.Scan(&rec.ID, &rec.VMID, &role, &rec.Agent, &commitIDNull, &rec.CreatedAt, &destroyedAt, &rec.RecordedAt); err != nil {
		return model.VMAccountingRecord{}, err
	}
	rec.Role = model.VMRole(role)
	commitID = commitIDNull.String
	rec.CommitID = commitID
	if destroyedAt.Valid {
		t := destroyedAt.Time
		rec.DestroyedAt = &t
	}
	return rec, nil
}
