package decoys

import (
	"time"

	"github.com/google/uuid"
)

// Kind classifies a bait resource.
type Kind string

const (
	KindFile       Kind = "file"
	KindService    Kind = "service"
	KindPort       Kind = "port"
	KindHoneytoken Kind = "honeytoken"
)

// Status is the toggle state of a decoy.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Decoy is a bait resource on a node. (node_id, name) is unique within a
// node: repeated events for the same name increment rather than duplicate.
type Decoy struct {
	ID            uuid.UUID  `json:"id"             db:"id"`
	NodeID        string     `json:"node_id"        db:"node_id"`
	Kind          Kind       `json:"kind"           db:"kind"`
	Name          string     `json:"name"           db:"name"`
	Status        Status     `json:"status"         db:"status"`
	TriggerCount  int        `json:"trigger_count"  db:"trigger_count"`
	LastTriggered *time.Time `json:"last_triggered" db:"last_triggered"`
	Port          *int       `json:"port,omitempty" db:"port"`
	CreatedAt     time.Time  `json:"created_at"     db:"created_at"`
}
