// Package model holds the shared entity shapes of spec.md §3. Each store
// package owns exactly one of these exclusively; cross-entity references are
// by ID only, resolved at read time (a miss surfaces as apierr.NotFound).
package model

import "time"

// Task status enum.
type TaskStatus string

const (
	TaskOpen       TaskStatus = "open"
	TaskInProgress TaskStatus = "in_progress"
	TaskInReview   TaskStatus = "in_review"
	TaskBlocked    TaskStatus = "blocked"
	TaskDone       TaskStatus = "done"
)

// NoteType enum.
type NoteType string

const (
	NoteFinding  NoteType = "finding"
	NoteBlocker  NoteType = "blocker"
	NoteQuestion NoteType = "question"
	NoteUpdate   NoteType = "update"
)

// ArtifactType enum.
type ArtifactType string

const (
	ArtifactBranch ArtifactType = "branch"
	ArtifactReport ArtifactType = "report"
	ArtifactDeploy ArtifactType = "deploy"
	ArtifactDiff   ArtifactType = "diff"
	ArtifactFile   ArtifactType = "file"
	ArtifactURL    ArtifactType = "url"
)

// Note is a timestamped annotation on a Task.
type Note struct {
	ID        string   `json:"id"`
	Author    string   `json:"author"`
	Content   string   `json:"content"`
	Type      NoteType `json:"type"`
	CreatedAt time.Time `json:"createdAt"`
}

// Artifact links a Task to external work product.
type Artifact struct {
	Type    ArtifactType `json:"type"`
	URL     string       `json:"url"`
	Label   string       `json:"label"`
	AddedAt time.Time    `json:"addedAt"`
	AddedBy string       `json:"addedBy,omitempty"`
}

// Task is a board work item.
type Task struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Status        TaskStatus `json:"status"`
	Assignee      string     `json:"assignee,omitempty"`
	Tags          []string   `json:"tags"`
	Dependencies  []string   `json:"dependencies"`
	CreatedBy     string     `json:"createdBy"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	Score         int        `json:"score"`
	Notes         []Note     `json:"notes"`
	Artifacts     []Artifact `json:"artifacts"`
	ReviewCycles  int        `json:"reviewCycles,omitempty"`
}

// Report is an author-submitted long-form document.
type Report struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ShareLink grants public read access to a Report.
type ShareLink struct {
	LinkID    string     `json:"linkId"`
	ReportID  string     `json:"reportId"`
	CreatedBy string     `json:"createdBy"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Revoked   bool       `json:"revoked"`
	Label     string     `json:"label,omitempty"`
}

// Valid reports whether the link still grants access: not revoked, and
// either no expiry or an expiry in the future.
func (s ShareLink) Valid(now time.Time) bool {
	if s.Revoked {
		return false
	}
	if s.ExpiresAt != nil && !s.ExpiresAt.After(now) {
		return false
	}
	return true
}

// AccessEntry records one visit to a share link.
type AccessEntry struct {
	LinkID    string    `json:"linkId"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	Referrer  string    `json:"referrer,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// VMRole enum.
type VMRole string

const (
	RoleInfra       VMRole = "infra"
	RoleLieutenant  VMRole = "lieutenant"
	RoleWorker      VMRole = "worker"
	RoleGolden      VMRole = "golden"
	RoleCustom      VMRole = "custom"
)

// VMStatus enum.
type VMStatus string

const (
	VMRunning VMStatus = "running"
	VMPaused  VMStatus = "paused"
	VMStopped VMStatus = "stopped"
)

// RegisteredVM is an entry in the fleet's VM inventory.
type RegisteredVM struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Role         VMRole            `json:"role"`
	Status       VMStatus          `json:"status"`
	Address      string            `json:"address"`
	Services     []string          `json:"services,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	RegisteredBy string            `json:"registeredBy"`
	RegisteredAt time.Time         `json:"registeredAt"`
	LastSeen     time.Time         `json:"lastSeen"`
}

// Stale reports whether a running VM's heartbeat is older than threshold.
func (v RegisteredVM) Stale(now time.Time, threshold time.Duration) bool {
	return v.Status == VMRunning && now.Sub(v.LastSeen) > threshold
}

// Skill/Extension share the same shape; Kind distinguishes them at the
// store boundary only (they live in separate MapStores per §3).
type Skill struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Version     int       `json:"version"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	PublishedBy string    `json:"publishedBy"`
	PublishedAt time.Time `json:"publishedAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Tags        []string  `json:"tags"`
	Enabled     bool      `json:"enabled"`
}

// SkillRef is an agent's pinned {name, version} pair.
type SkillRef struct {
	Name    string `json:"name"`
	Version int    `json:"version"`
}

// AgentManifest is an agent's reported skill/extension inventory.
type AgentManifest struct {
	AgentID    string     `json:"agentId"`
	VMID       string     `json:"vmId,omitempty"`
	Skills     []SkillRef `json:"skills"`
	Extensions []SkillRef `json:"extensions"`
	LastSync   time.Time  `json:"lastSync"`
}

// SyncAction enum for the skill-sync protocol (§4.N).
type SyncAction string

const (
	ActionInstall SyncAction = "install"
	ActionUpdate  SyncAction = "update"
	ActionRemove  SyncAction = "remove"
)

// SyncItem is one line of a sync plan.
type SyncItem struct {
	Type    string     `json:"type"` // "skill" | "extension"
	Name    string     `json:"name"`
	Version int        `json:"version"`
	Action  SyncAction `json:"action"`
}

// CommitEntry is a VM snapshot record.
type CommitEntry struct {
	ID       string            `json:"id"`
	CommitID string            `json:"commitId"`
	VMID     string            `json:"vmId"`
	Timestamp time.Time        `json:"timestamp"`
	Label    string            `json:"label,omitempty"`
	Agent    string            `json:"agent,omitempty"`
	Tags     []string          `json:"tags,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (c CommitEntry) RecordKey() string { return c.ID }

// JournalEntry / LogEntry share a shape; kept distinct types so each store's
// RecordKey and JSON tags are unambiguous.
type JournalEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
	Author    string    `json:"author,omitempty"`
	Mood      string    `json:"mood,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
}

func (j JournalEntry) RecordKey() string { return j.ID }

type LogEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
	Agent     string    `json:"agent,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
}

func (l LogEntry) RecordKey() string { return l.ID }

// ConfigEntryType enum.
type ConfigEntryType string

const (
	ConfigKindConfig ConfigEntryType = "config"
	ConfigKindSecret ConfigEntryType = "secret"
)

// ConfigEntry is a key-value setting; secrets mask on read except on
// explicit reveal or agent-environment export.
type ConfigEntry struct {
	Key       string          `json:"key"`
	Value     string          `json:"value"`
	Type      ConfigEntryType `json:"type"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Masked returns the entry with its value masked if it is a secret.
func (c ConfigEntry) Masked() ConfigEntry {
	if c.Type != ConfigKindSecret {
		return c
	}
	masked := c
	masked.Value = MaskSecret(c.Value)
	return masked
}

// MaskSecret keeps the first 6 characters and replaces the rest with "***".
func MaskSecret(value string) string {
	if len(value) <= 6 {
		return value + "***"
	}
	return value[:6] + "***"
}
