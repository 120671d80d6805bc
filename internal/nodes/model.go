package nodes

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a node.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusUnknown  Status = "unknown"
)

// ValidStatus reports whether s is one of the known node states.
func ValidStatus(s Status) bool {
	switch s {
	case StatusActive, StatusInactive, StatusUnknown:
		return true
	}
	return false
}

// Node is a deployed probe — a honeypot host or an endpoint agent — owned by
// exactly one user. The owning user is immutable after creation.
type Node struct {
	NodeID    string     `json:"node_id"    db:"node_id"`
	UserID    uuid.UUID  `json:"user_id"    db:"user_id"`
	Name      string     `json:"name"       db:"name"`
	Status    Status     `json:"status"     db:"status"`
	KeyHash   string     `json:"-"          db:"key_hash"`
	Hostname  string     `json:"hostname,omitempty" db:"hostname"`
	OS        string     `json:"os,omitempty"       db:"os"`
	LastSeen  *time.Time `json:"last_seen"  db:"last_seen"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// MaxNameLen bounds the human-readable node name.
const MaxNameLen = 100
