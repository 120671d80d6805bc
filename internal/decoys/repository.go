package decoys

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a decoy lookup finds no matching record.
var ErrNotFound = errors.New("decoy not found")

// DefaultLimit bounds fleet-wide decoy listings unless the caller asks for more.
const DefaultLimit = 50

// MaxLimit caps listing sizes regardless of the requested limit.
const MaxLimit = 1000

// Repository provides decoy persistence against PostgreSQL. The trigger
// upsert is a single atomic statement so concurrent ingest calls for the
// same decoy never lose counts.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// UpsertTrigger records a decoy access: inserts the decoy on first sight,
// otherwise increments the trigger count and advances last-triggered.
func (r *Repository) UpsertTrigger(ctx context.Context, nodeID, name string, kind Kind, triggeredAt time.Time) error {
	q := `
		INSERT INTO decoys (id, node_id, kind, name, status, trigger_count, last_triggered, created_at)
		VALUES ($1, $2, $3, $4, 'active', 1, $5, $6)
		ON CONFLICT (node_id, name) DO UPDATE SET
			trigger_count  = decoys.trigger_count + 1,
			last_triggered = GREATEST(COALESCE(decoys.last_triggered, EXCLUDED.last_triggered), EXCLUDED.last_triggered)`
	_, err := r.db.Exec(ctx, q, uuid.New(), nodeID, kind, name, triggeredAt.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert decoy trigger: %w", err)
	}
	return nil
}

// GetByID retrieves a decoy by its row identifier.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Decoy, error) {
	rows, err := r.db.Query(ctx, selectCols+` WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("query decoy: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return scanDecoy(rows)
}

// ListByNode returns all decoys on one node, optionally filtered to a kind.
func (r *Repository) ListByNode(ctx context.Context, nodeID string, kind Kind) ([]*Decoy, error) {
	q := selectCols + ` WHERE node_id = $1 AND ($2 = '' OR kind = $2) ORDER BY created_at DESC`
	return r.list(ctx, q, nodeID, string(kind))
}

// ListByNodes returns decoys across the given node set, optionally filtered
// to a kind, bounded by limit.
func (r *Repository) ListByNodes(ctx context.Context, nodeIDs []string, kind Kind, limit int) ([]*Decoy, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	q := selectCols + `
		WHERE node_id = ANY($1) AND ($2 = '' OR kind = $2)
		ORDER BY created_at DESC
		LIMIT $3`
	return r.list(ctx, q, nodeIDs, string(kind), limit)
}

// UpdateStatus toggles a decoy.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := r.db.Exec(ctx, `UPDATE decoys SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update decoy status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a decoy.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM decoys WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete decoy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByNode removes all decoys on a node (node-delete cascade).
func (r *Repository) DeleteByNode(ctx context.Context, nodeID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM decoys WHERE node_id = $1`, nodeID)
	if err != nil {
		return fmt.Errorf("delete node decoys: %w", err)
	}
	return nil
}

const selectCols = `
	SELECT id, node_id, kind, name, status, trigger_count, last_triggered, port, created_at
	FROM decoys`

func (r *Repository) list(ctx context.Context, q string, args ...any) ([]*Decoy, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list decoys: %w", err)
	}
	defer rows.Close()

	var out []*Decoy
	for rows.Next() {
		d, err := scanDecoy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDecoy(rows pgx.Rows) (*Decoy, error) {
	var d Decoy
	if err := rows.Scan(
		&d.ID, &d.NodeID, &d.Kind, &d.Name, &d.Status,
		&d.TriggerCount, &d.LastTriggered, &d.Port, &d.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("scan decoy: %w", err)
	}
	return &d, nil
}
