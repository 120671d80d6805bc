package alerts

import (
	"time"

	"github.com/google/uuid"
)

// Status is the triage state of an alert.
type Status string

const (
	StatusOpen          Status = "open"
	StatusInvestigating Status = "investigating"
	StatusResolved      Status = "resolved"
)

// ValidStatus reports whether s is one of the known triage states.
func ValidStatus(s Status) bool {
	switch s {
	case StatusOpen, StatusInvestigating, StatusResolved:
		return true
	}
	return false
}

// Alert is a materialised high-risk incident. user_id is denormalised from
// the node's owner as observed at ingest time so owner-scoped listings never
// need a join.
type Alert struct {
	ID         uuid.UUID `json:"id"          db:"id"`
	Timestamp  time.Time `json:"timestamp"   db:"ts"`
	SourceIP   string    `json:"source_ip"   db:"source_ip"`
	Service    string    `json:"service"     db:"service"`
	Activity   string    `json:"activity"    db:"activity"`
	AttackType string    `json:"attack_type" db:"attack_type"`
	RiskScore  int       `json:"risk_score"  db:"risk_score"`
	Confidence float64   `json:"confidence"  db:"confidence"`
	Payload    string    `json:"payload"     db:"payload"`
	NodeID     string    `json:"node_id"     db:"node_id"`
	UserID     uuid.UUID `json:"user_id"     db:"user_id"`
	Status     Status    `json:"status"      db:"status"`
	CreatedAt  time.Time `json:"created_at"  db:"created_at"`
}

// Severity maps a 0–10 risk score to a display label:
//
//	9–10 → "critical"
//	7–8  → "high"
//	4–6  → "medium"
//	0–3  → "low"
func Severity(riskScore int) string {
	switch {
	case riskScore >= 9:
		return "critical"
	case riskScore >= 7:
		return "high"
	case riskScore >= 4:
		return "medium"
	default:
		return "low"
	}
}

// Stats is the owner-scoped dashboard aggregate.
type Stats struct {
	TotalAttacks      int     `json:"total_attacks"`
	ActiveAlerts      int     `json:"active_alerts"`
	UniqueAttackers   int     `json:"unique_attackers"`
	AvgRiskScore      float64 `json:"avg_risk_score"`
	HighRiskCount     int     `json:"high_risk_count"`
	TotalNodes        int     `json:"total_nodes"`
	ActiveNodes       int     `json:"active_nodes"`
	RecentRiskAverage float64 `json:"recent_risk_average"`
}
