package alerts

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when an alert lookup finds no matching record.
var ErrNotFound = errors.New("alert not found")

// Listing limits.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Repository provides alert persistence and the owner-scoped statistics
// aggregate against PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts a new alert with status open.
func (r *Repository) Create(ctx context.Context, a *Alert) error {
	a.ID = uuid.New()
	a.Status = StatusOpen
	a.CreatedAt = time.Now().UTC()

	q := `
		INSERT INTO alerts (
			id, ts, source_ip, service, activity, attack_type, risk_score,
			confidence, payload, node_id, user_id, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := r.db.Exec(ctx, q,
		a.ID, a.Timestamp.UTC(), a.SourceIP, a.Service, a.Activity, a.AttackType,
		a.RiskScore, a.Confidence, a.Payload, a.NodeID, a.UserID, a.Status, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	return nil
}

// GetByID retrieves an alert.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Alert, error) {
	rows, err := r.db.Query(ctx, selectCols+` WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("query alert: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return scanAlert(rows)
}

// ListByOwner returns the user's alerts sorted by timestamp descending.
// severity filters on the derived label; status filters on triage state.
func (r *Repository) ListByOwner(ctx context.Context, userID uuid.UUID, severity string, status Status, limit int) ([]*Alert, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	// Severity is derived from risk; translate the label back to a range.
	minRisk, maxRisk := 0, 10
	switch severity {
	case "critical":
		minRisk = 9
	case "high":
		minRisk, maxRisk = 7, 8
	case "medium":
		minRisk, maxRisk = 4, 6
	case "low":
		maxRisk = 3
	}

	q := selectCols + `
		WHERE user_id = $1
		  AND risk_score BETWEEN $2 AND $3
		  AND ($4 = '' OR status = $4)
		ORDER BY ts DESC
		LIMIT $5`
	rows, err := r.db.Query(ctx, q, userID, minRisk, maxRisk, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []*Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateStatus transitions an alert's triage state.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := r.db.Exec(ctx, `UPDATE alerts SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update alert status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Stats computes the alert side of the dashboard aggregate for one owner.
// Node counts are filled in by the caller. highRiskThreshold is Θ.
func (r *Repository) Stats(ctx context.Context, userID uuid.UUID, highRiskThreshold int) (*Stats, error) {
	s := &Stats{}

	q := `
		SELECT count(*),
		       count(*) FILTER (WHERE status IN ('open', 'investigating')),
		       count(DISTINCT source_ip),
		       COALESCE(avg(risk_score), 0),
		       count(*) FILTER (WHERE risk_score >= $2)
		FROM alerts WHERE user_id = $1`
	var avg float64
	if err := r.db.QueryRow(ctx, q, userID, highRiskThreshold).Scan(
		&s.TotalAttacks, &s.ActiveAlerts, &s.UniqueAttackers, &avg, &s.HighRiskCount,
	); err != nil {
		return nil, fmt.Errorf("aggregate alerts: %w", err)
	}
	s.AvgRiskScore = round1(avg)

	q = `
		SELECT COALESCE(avg(risk_score), 0)
		FROM (SELECT risk_score FROM alerts WHERE user_id = $1 ORDER BY ts DESC LIMIT 10) recent`
	var recent float64
	if err := r.db.QueryRow(ctx, q, userID).Scan(&recent); err != nil {
		return nil, fmt.Errorf("aggregate recent alerts: %w", err)
	}
	s.RecentRiskAverage = round1(recent)

	return s, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

const selectCols = `
	SELECT id, ts, source_ip, service, activity, attack_type, risk_score,
	       confidence, payload, node_id, user_id, status, created_at
	FROM alerts`

func scanAlert(rows pgx.Rows) (*Alert, error) {
	var a Alert
	if err := rows.Scan(
		&a.ID, &a.Timestamp, &a.SourceIP, &a.Service, &a.Activity, &a.AttackType,
		&a.RiskScore, &a.Confidence, &a.Payload, &a.NodeID, &a.UserID, &a.Status, &a.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("scan alert: %w", err)
	}
	return &a, nil
}
