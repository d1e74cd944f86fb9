package model

import "time"

// TokenUsage tallies tokens across the categories spec.md §3 names.
type TokenUsage struct {
	Input      int64 `json:"input"`
	Output     int64 `json:"output"`
	CacheRead  int64 `json:"cacheRead"`
	CacheWrite int64 `json:"cacheWrite"`
	Total      int64 `json:"total"`
}

// CostUsage mirrors TokenUsage in dollars.
type CostUsage struct {
	Input      float64 `json:"input"`
	Output     float64 `json:"output"`
	CacheRead  float64 `json:"cacheRead"`
	CacheWrite float64 `json:"cacheWrite"`
	Total      float64 `json:"total"`
}

// SessionRecord is one agent session's accounting row.
type SessionRecord struct {
	ID           string         `json:"id"`
	SessionID    string         `json:"sessionId"`
	Agent        string         `json:"agent"`
	ParentAgent  string         `json:"parentAgent,omitempty"`
	Model        string         `json:"model"`
	Tokens       TokenUsage     `json:"tokens"`
	Cost         CostUsage      `json:"cost"`
	Turns        int            `json:"turns"`
	ToolCalls    map[string]int `json:"toolCalls,omitempty"`
	StartedAt    time.Time      `json:"startedAt"`
	EndedAt      *time.Time     `json:"endedAt,omitempty"`
	RecordedAt   time.Time      `json:"recordedAt"`
}

// VMAccountingRecord is one VM lifecycle accounting row.
type VMAccountingRecord struct {
	ID          string     `json:"id"`
	VMID        string     `json:"vmId"`
	Role        VMRole     `json:"role"`
	Agent       string     `json:"agent"`
	CommitID    string     `json:"commitId,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	DestroyedAt *time.Time `json:"destroyedAt,omitempty"`
	RecordedAt  time.Time  `json:"recordedAt"`
}

// UsageSummary is the aggregation result of §4.L's summary(range).
type UsageSummary struct {
	Tokens   int64                   `json:"tokens"`
	Cost     float64                 `json:"cost"`
	Sessions int64                   `json:"sessions"`
	VMs      int64                   `json:"vms"`
	ByAgent  map[string]AgentSummary `json:"byAgent"`
}

// AgentSummary is one row of the summary's byAgent breakdown.
type AgentSummary struct {
	Tokens   int64   `json:"tokens"`
	Cost     float64 `json:"cost"`
	Sessions int64   `json:"sessions"`
}
