package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides append-only event persistence and the merged
// chronological listing consumed by the dashboard.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// AppendHoneypotLog persists a honeypot log with its classification.
func (r *Repository) AppendHoneypotLog(ctx context.Context, l *HoneypotLog) error {
	l.ID = uuid.New()
	l.IngestedAt = time.Now().UTC()

	var extra []byte
	if l.Extra != nil {
		var err error
		if extra, err = json.Marshal(l.Extra); err != nil {
			return fmt.Errorf("marshal extra: %w", err)
		}
	}

	q := `
		INSERT INTO honeypot_logs (
			id, node_id, service, source_ip, activity, payload, extra, ts,
			attack_type, risk_score, confidence, is_anomaly, ingested_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := r.db.Exec(ctx, q,
		l.ID, l.NodeID, l.Service, l.SourceIP, l.Activity, l.Payload, extra, l.Timestamp.UTC(),
		l.Classification.AttackType, l.Classification.RiskScore,
		l.Classification.Confidence, l.Classification.IsAnomaly, l.IngestedAt,
	)
	if err != nil {
		return fmt.Errorf("append honeypot log: %w", err)
	}
	return nil
}

// AppendAgentEvent persists an agent event with its classification.
func (r *Repository) AppendAgentEvent(ctx context.Context, e *AgentEvent) error {
	e.ID = uuid.New()
	e.IngestedAt = time.Now().UTC()

	q := `
		INSERT INTO agent_events (
			id, node_id, hostname, username, file_accessed, file_path, action,
			severity, alert_type, ts, attack_type, risk_score, confidence,
			is_anomaly, ingested_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err := r.db.Exec(ctx, q,
		e.ID, e.NodeID, e.Hostname, e.Username, e.FileAccessed, e.FilePath, e.Action,
		e.Severity, e.AlertType, e.Timestamp.UTC(), e.Classification.AttackType,
		e.Classification.RiskScore, e.Classification.Confidence,
		e.Classification.IsAnomaly, e.IngestedAt,
	)
	if err != nil {
		return fmt.Errorf("append agent event: %w", err)
	}
	return nil
}

// List returns the chronologically descending merge of honeypot logs and
// agent events for the filter's node set. Both sides are fetched up to the
// limit, merged, and cut; a query either succeeds fully or fails.
func (r *Repository) List(ctx context.Context, f Filter) ([]*Event, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if len(f.NodeIDs) == 0 {
		return nil, nil
	}

	search := ""
	if f.Search != "" {
		search = "%" + f.Search + "%"
	}

	logs, err := r.listHoneypotLogs(ctx, f.NodeIDs, f.Severity, search, limit)
	if err != nil {
		return nil, err
	}
	agents, err := r.listAgentEvents(ctx, f.NodeIDs, f.Severity, search, limit)
	if err != nil {
		return nil, err
	}

	merged := append(logs, agents...)
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp.After(merged[j].Timestamp)
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// Honeypot logs have no severity field; a severity filter excludes them.
func (r *Repository) listHoneypotLogs(ctx context.Context, nodeIDs []string, severity, search string, limit int) ([]*Event, error) {
	if severity != "" {
		return nil, nil
	}
	q := `
		SELECT id, node_id, ts, service, source_ip, activity, payload,
		       attack_type, risk_score, confidence, is_anomaly
		FROM honeypot_logs
		WHERE node_id = ANY($1)
		  AND ($2 = '' OR source_ip ILIKE $2 OR activity ILIKE $2 OR service ILIKE $2)
		ORDER BY ts DESC
		LIMIT $3`
	rows, err := r.db.Query(ctx, q, nodeIDs, search, limit)
	if err != nil {
		return nil, fmt.Errorf("list honeypot logs: %w", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		e := &Event{Kind: KindHoneypot}
		if err := rows.Scan(
			&e.ID, &e.NodeID, &e.Timestamp, &e.Service, &e.SourceID, &e.Activity, &e.Payload,
			&e.Classification.AttackType, &e.Classification.RiskScore,
			&e.Classification.Confidence, &e.Classification.IsAnomaly,
		); err != nil {
			return nil, fmt.Errorf("scan honeypot log: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repository) listAgentEvents(ctx context.Context, nodeIDs []string, severity, search string, limit int) ([]*Event, error) {
	q := `
		SELECT id, node_id, ts, hostname, username, file_accessed, file_path,
		       action, severity, alert_type, attack_type, risk_score, confidence, is_anomaly
		FROM agent_events
		WHERE node_id = ANY($1)
		  AND ($2 = '' OR severity ILIKE $2)
		  AND ($3 = '' OR hostname ILIKE $3 OR file_accessed ILIKE $3 OR alert_type ILIKE $3 OR action ILIKE $3)
		ORDER BY ts DESC
		LIMIT $4`
	rows, err := r.db.Query(ctx, q, nodeIDs, severity, search, limit)
	if err != nil {
		return nil, fmt.Errorf("list agent events: %w", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		e := &Event{Kind: KindAgent}
		if err := rows.Scan(
			&e.ID, &e.NodeID, &e.Timestamp, &e.SourceID, &e.Username, &e.FileAccessed, &e.FilePath,
			&e.Action, &e.Severity, &e.AlertType, &e.Classification.AttackType,
			&e.Classification.RiskScore, &e.Classification.Confidence, &e.Classification.IsAnomaly,
		); err != nil {
			return nil, fmt.Errorf("scan agent event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
