package nodes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a node lookup finds no matching record.
var ErrNotFound = errors.New("node not found")

// ErrDuplicateID is returned when a node id collides with an existing row.
var ErrDuplicateID = errors.New("node id already exists")

// Repository provides CRUD operations for nodes against PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts a new node. NodeID, UserID, Name, Status and KeyHash must be
// set by the caller; CreatedAt is stamped here.
func (r *Repository) Create(ctx context.Context, n *Node) error {
	n.CreatedAt = time.Now().UTC()
	q := `
		INSERT INTO nodes (node_id, user_id, name, status, key_hash, hostname, os, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.Exec(ctx, q,
		n.NodeID, n.UserID, n.Name, n.Status, n.KeyHash, n.Hostname, n.OS, n.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateID
		}
		return fmt.Errorf("create node: %w", err)
	}
	return nil
}

// GetByID retrieves a node by its opaque identifier.
func (r *Repository) GetByID(ctx context.Context, nodeID string) (*Node, error) {
	q := selectCols + ` WHERE node_id = $1`
	rows, err := r.db.Query(ctx, q, nodeID)
	if err != nil {
		return nil, fmt.Errorf("query node: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return scanNode(rows)
}

// ListByOwner returns all nodes owned by the user, newest first.
func (r *Repository) ListByOwner(ctx context.Context, userID uuid.UUID) ([]*Node, error) {
	q := selectCols + ` WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	var out []*Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// UpdateStatus sets the node's status.
func (r *Repository) UpdateStatus(ctx context.Context, nodeID string, status Status) error {
	tag, err := r.db.Exec(ctx, `UPDATE nodes SET status = $2 WHERE node_id = $1`, nodeID, status)
	if err != nil {
		return fmt.Errorf("update node status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetKeyHash atomically replaces the node's credential verifier.
func (r *Repository) SetKeyHash(ctx context.Context, nodeID, keyHash string) error {
	tag, err := r.db.Exec(ctx, `UPDATE nodes SET key_hash = $2 WHERE node_id = $1`, nodeID, keyHash)
	if err != nil {
		return fmt.Errorf("set node key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetRegistration records agent metadata at first launch: status active,
// hostname/OS, and a last-seen bump. Idempotent.
func (r *Repository) SetRegistration(ctx context.Context, nodeID, hostname, os string) error {
	q := `
		UPDATE nodes
		SET status = 'active', hostname = $2, os = $3, last_seen = $4
		WHERE node_id = $1`
	tag, err := r.db.Exec(ctx, q, nodeID, hostname, os, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("register node: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// BumpLastSeen advances the node's last-seen instant.
func (r *Repository) BumpLastSeen(ctx context.Context, nodeID string, seen time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE nodes SET last_seen = GREATEST(COALESCE(last_seen, $2), $2) WHERE node_id = $1`,
		nodeID, seen.UTC(),
	)
	if err != nil {
		return fmt.Errorf("bump last seen: %w", err)
	}
	return nil
}

// Delete removes the node row. A deleted node never reappears in any list.
func (r *Repository) Delete(ctx context.Context, nodeID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM nodes WHERE node_id = $1`, nodeID)
	if err != nil {
		return fmt.Errorf("delete node: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByOwner returns total and active node counts for the stats surface.
func (r *Repository) CountByOwner(ctx context.Context, userID uuid.UUID) (total, active int, err error) {
	q := `
		SELECT count(*), count(*) FILTER (WHERE status = 'active')
		FROM nodes WHERE user_id = $1`
	if err := r.db.QueryRow(ctx, q, userID).Scan(&total, &active); err != nil {
		return 0, 0, fmt.Errorf("count nodes: %w", err)
	}
	return total, active, nil
}

const selectCols = `
	SELECT node_id, user_id, name, status, key_hash, hostname, os, last_seen, created_at
	FROM nodes`

func scanNode(rows pgx.Rows) (*Node, error) {
	var n Node
	if err := rows.Scan(
		&n.NodeID, &n.UserID, &n.Name, &n.Status, &n.KeyHash,
		&n.Hostname, &n.OS, &n.LastSeen, &n.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("scan node: %w", err)
	}
	return &n, nil
}
