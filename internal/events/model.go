package events

import (
	"time"

	"github.com/google/uuid"
)

// Classification is the classifier output attached to every raw event.
type Classification struct {
	AttackType string  `json:"attack_type"`
	RiskScore  int     `json:"risk_score"`
	Confidence float64 `json:"confidence"`
	IsAnomaly  bool    `json:"is_anomaly"`
}

// HoneypotLog is an immutable ingestion record from an SSH/FTP/Web honeypot.
type HoneypotLog struct {
	ID             uuid.UUID         `json:"id"`
	NodeID         string            `json:"node_id"`
	Service        string            `json:"service"`
	SourceIP       string            `json:"source_ip"`
	Activity       string            `json:"activity"`
	Payload        string            `json:"payload"`
	Extra          map[string]string `json:"extra,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
	Classification Classification    `json:"classification"`
	IngestedAt     time.Time         `json:"ingested_at"`
}

// AgentEvent is an immutable ingestion record from an endpoint agent
// observing a honeytoken access.
type AgentEvent struct {
	ID             uuid.UUID      `json:"id"`
	NodeID         string         `json:"node_id"`
	Hostname       string         `json:"hostname"`
	Username       string         `json:"username"`
	FileAccessed   string         `json:"file_accessed"`
	FilePath       string         `json:"file_path"`
	Action         string         `json:"action"`
	Severity       string         `json:"severity"`
	AlertType      string         `json:"alert_type"`
	Timestamp      time.Time      `json:"timestamp"`
	Classification Classification `json:"classification"`
	IngestedAt     time.Time      `json:"ingested_at"`
}

// Event kinds for the merged listing.
const (
	KindHoneypot = "honeypot_log"
	KindAgent    = "agent_event"
)

// Event is the common envelope returned by merged listings. Variant-specific
// fields are empty for the other kind.
type Event struct {
	ID             uuid.UUID      `json:"id"`
	Kind           string         `json:"kind"`
	NodeID         string         `json:"node_id"`
	Timestamp      time.Time      `json:"timestamp"`
	SourceID       string         `json:"source_id"`
	Service        string         `json:"service,omitempty"`
	Activity       string         `json:"activity,omitempty"`
	Payload        string         `json:"payload,omitempty"`
	Username       string         `json:"username,omitempty"`
	FileAccessed   string         `json:"file_accessed,omitempty"`
	FilePath       string         `json:"file_path,omitempty"`
	Action         string         `json:"action,omitempty"`
	Severity       string         `json:"severity,omitempty"`
	AlertType      string         `json:"alert_type,omitempty"`
	Classification Classification `json:"classification"`
}

// Filter narrows a merged event listing. NodeIDs is the mandatory ownership
// scope; the remaining fields are optional.
type Filter struct {
	NodeIDs  []string
	Severity string
	Search   string
	Limit    int
}

// Listing limits.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)
