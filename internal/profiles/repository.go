package profiles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no profile exists for a source identifier.
var ErrNotFound = errors.New("attacker profile not found")

// Repository persists attacker profiles. The upsert is one INSERT … ON
// CONFLICT statement whose arithmetic references the existing row, so the
// row lock serialises concurrent updates per source identifier without any
// in-process coordination.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Upsert folds one classified event into the profile for sourceIP.
func (r *Repository) Upsert(ctx context.Context, sourceIP string, u Update) error {
	seedAttacks, err := json.Marshal(map[string]int{u.AttackType: 1})
	if err != nil {
		return fmt.Errorf("marshal attack histogram: %w", err)
	}
	seedServices, err := json.Marshal(map[string]int{u.Service: 1})
	if err != nil {
		return fmt.Errorf("marshal service histogram: %w", err)
	}

	q := `
		INSERT INTO attacker_profiles (
			source_ip, total_attacks, average_risk, first_seen, last_seen,
			attack_types, services_targeted
		) VALUES ($1, 1, $2, $3, $3, $4, $5)
		ON CONFLICT (source_ip) DO UPDATE SET
			average_risk  = (attacker_profiles.average_risk * attacker_profiles.total_attacks + EXCLUDED.average_risk)
			                / (attacker_profiles.total_attacks + 1),
			total_attacks = attacker_profiles.total_attacks + 1,
			first_seen    = LEAST(attacker_profiles.first_seen, EXCLUDED.first_seen),
			last_seen     = GREATEST(attacker_profiles.last_seen, EXCLUDED.last_seen),
			attack_types  = jsonb_set(
				attacker_profiles.attack_types, ARRAY[$6],
				to_jsonb(COALESCE((attacker_profiles.attack_types->>$6)::int, 0) + 1)),
			services_targeted = jsonb_set(
				attacker_profiles.services_targeted, ARRAY[$7],
				to_jsonb(COALESCE((attacker_profiles.services_targeted->>$7)::int, 0) + 1))`
	_, err = r.db.Exec(ctx, q,
		sourceIP, float64(u.RiskScore), u.Timestamp.UTC(),
		seedAttacks, seedServices, u.AttackType, u.Service,
	)
	if err != nil {
		return fmt.Errorf("upsert attacker profile: %w", err)
	}
	return nil
}

// Get returns the profile for a source identifier.
func (r *Repository) Get(ctx context.Context, sourceIP string) (*Profile, error) {
	rows, err := r.db.Query(ctx, selectCols+` WHERE source_ip = $1`, sourceIP)
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return scanProfile(rows)
}

// Top returns the most active profiles by total attacks.
func (r *Repository) Top(ctx context.Context, limit int) ([]*Profile, error) {
	if limit <= 0 {
		limit = 10
	}
	q := selectCols + ` ORDER BY total_attacks DESC LIMIT $1`
	rows, err := r.db.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list top profiles: %w", err)
	}
	defer rows.Close()

	var out []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const selectCols = `
	SELECT source_ip, total_attacks, average_risk, first_seen, last_seen,
	       attack_types, services_targeted
	FROM attacker_profiles`

func scanProfile(rows pgx.Rows) (*Profile, error) {
	var p Profile
	var attacks, services []byte
	if err := rows.Scan(
		&p.SourceIP, &p.TotalAttacks, &p.AverageRisk, &p.FirstSeen, &p.LastSeen,
		&attacks, &services,
	); err != nil {
		return nil, fmt.Errorf("scan profile: %w", err)
	}
	if err := json.Unmarshal(attacks, &p.AttackTypes); err != nil {
		return nil, fmt.Errorf("unmarshal attack histogram: %w", err)
	}
	if err := json.Unmarshal(services, &p.ServicesTargeted); err != nil {
		return nil, fmt.Errorf("unmarshal service histogram: %w", err)
	}
	p.MostCommonAttack = MostCommon(p.AttackTypes)
	return &p, nil
}
