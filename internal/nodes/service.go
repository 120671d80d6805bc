package nodes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/decoyverse/decoyverse/internal/identity"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrUnauthenticated is returned when a node credential pair does not verify.
// Unknown node and bad key are deliberately indistinguishable.
var ErrUnauthenticated = errors.New("invalid node credentials")

// ErrInactive is returned when a valid credential belongs to an inactive node.
var ErrInactive = errors.New("node is inactive")

// ErrForbidden is returned when a node exists but is owned by another user.
var ErrForbidden = errors.New("node belongs to another user")

// nodeRepo is the storage interface consumed by Service.
type nodeRepo interface {
	Create(ctx context.Context, n *Node) error
	GetByID(ctx context.Context, nodeID string) (*Node, error)
	ListByOwner(ctx context.Context, userID uuid.UUID) ([]*Node, error)
	UpdateStatus(ctx context.Context, nodeID string, status Status) error
	SetKeyHash(ctx context.Context, nodeID, keyHash string) error
	SetRegistration(ctx context.Context, nodeID, hostname, os string) error
	BumpLastSeen(ctx context.Context, nodeID string, seen time.Time) error
	Delete(ctx context.Context, nodeID string) error
}

// decoyCleaner removes a deleted node's decoys so they drop out of
// node-scoped queries.
type decoyCleaner interface {
	DeleteByNode(ctx context.Context, nodeID string) error
}

// Service implements the node lifecycle: creation with credential minting,
// ownership checks, status tracking, and agent liveness.
type Service struct {
	repo   nodeRepo
	decoys decoyCleaner
	open   bool
	logger *zap.Logger
}

// NewService creates a new Service. decoys may be nil when cascade cleanup is
// handled elsewhere (tests). open skips credential verification (demo mode).
func NewService(repo nodeRepo, decoys decoyCleaner, open bool, logger *zap.Logger) *Service {
	return &Service{repo: repo, decoys: decoys, open: open, logger: logger}
}

// Create mints a node identifier and credential and persists the node. The
// cleartext credential is returned exactly once; only its hash is stored.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, name string) (*Node, *identity.IssuedNodeCredential, error) {
	if name == "" {
		return nil, nil, fmt.Errorf("node name is required")
	}
	if len(name) > MaxNameLen {
		return nil, nil, fmt.Errorf("node name exceeds %d characters", MaxNameLen)
	}

	nodeID, err := identity.NewNodeID()
	if err != nil {
		return nil, nil, err
	}
	cleartext, verifier, err := identity.MintNodeKey()
	if err != nil {
		return nil, nil, err
	}

	n := &Node{
		NodeID:  nodeID,
		UserID:  userID,
		Name:    name,
		Status:  StatusUnknown,
		KeyHash: verifier,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, nil, err
	}

	s.logger.Info("node created",
		zap.String("node_id", n.NodeID),
		zap.String("user_id", userID.String()),
	)
	return n, &identity.IssuedNodeCredential{NodeID: nodeID, Key: cleartext}, nil
}

// Authenticate verifies a node credential pair for ingestion. Returns the
// node on success; ErrUnauthenticated or ErrInactive otherwise.
func (s *Service) Authenticate(ctx context.Context, nodeID, presentedKey string) (*Node, error) {
	if nodeID == "" {
		return nil, ErrUnauthenticated
	}
	n, err := s.repo.GetByID(ctx, nodeID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}

	if !s.open && !identity.VerifyNodeKey(n.KeyHash, presentedKey) {
		s.logger.Warn("invalid node key presented", zap.String("node_id", nodeID))
		return nil, ErrUnauthenticated
	}
	if n.Status == StatusInactive {
		return nil, ErrInactive
	}
	return n, nil
}

// GetOwned loads a node and asserts the given user owns it.
func (s *Service) GetOwned(ctx context.Context, userID uuid.UUID, nodeID string) (*Node, error) {
	n, err := s.repo.GetByID(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if n.UserID != userID {
		return nil, ErrForbidden
	}
	return n, nil
}

// List returns the user's nodes, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]*Node, error) {
	return s.repo.ListByOwner(ctx, userID)
}

// UpdateStatus mutates the status of a node the user owns.
func (s *Service) UpdateStatus(ctx context.Context, userID uuid.UUID, nodeID string, status Status) (*Node, error) {
	if !ValidStatus(status) {
		return nil, fmt.Errorf("unknown status %q", status)
	}
	if _, err := s.GetOwned(ctx, userID, nodeID); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, nodeID, status); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, nodeID)
}

// Delete removes a node the user owns together with its decoys. Raw events
// and alerts are kept for audit but are unreachable through node-scoped
// queries once the node row is gone.
func (s *Service) Delete(ctx context.Context, userID uuid.UUID, nodeID string) error {
	if _, err := s.GetOwned(ctx, userID, nodeID); err != nil {
		return err
	}
	if s.decoys != nil {
		if err := s.decoys.DeleteByNode(ctx, nodeID); err != nil {
			s.logger.Warn("decoy cleanup on node delete failed",
				zap.String("node_id", nodeID), zap.Error(err))
		}
	}
	if err := s.repo.Delete(ctx, nodeID); err != nil {
		return err
	}
	s.logger.Info("node deleted", zap.String("node_id", nodeID))
	return nil
}

// ReissueCredential mints a fresh credential for a node the user owns and
// atomically replaces the stored verifier. Used by the agent-bundle download,
// which is how an agent acquires its credentials.
func (s *Service) ReissueCredential(ctx context.Context, userID uuid.UUID, nodeID string) (*Node, *identity.IssuedNodeCredential, error) {
	n, err := s.GetOwned(ctx, userID, nodeID)
	if err != nil {
		return nil, nil, err
	}
	cleartext, verifier, err := identity.MintNodeKey()
	if err != nil {
		return nil, nil, err
	}
	if err := s.repo.SetKeyHash(ctx, nodeID, verifier); err != nil {
		return nil, nil, err
	}
	return n, &identity.IssuedNodeCredential{NodeID: nodeID, Key: cleartext}, nil
}

// Register handles an agent's first-launch call: verifies the credential,
// marks the node active, records host metadata, bumps last-seen. Idempotent.
func (s *Service) Register(ctx context.Context, nodeID, presentedKey, hostname, os string) (*Node, error) {
	n, err := s.Authenticate(ctx, nodeID, presentedKey)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetRegistration(ctx, nodeID, hostname, os); err != nil {
		return nil, err
	}
	s.logger.Info("agent registered",
		zap.String("node_id", nodeID),
		zap.String("hostname", hostname),
		zap.String("os", os),
	)
	return n, nil
}

// Heartbeat bumps last-seen for an authenticated node. Idempotent.
func (s *Service) Heartbeat(ctx context.Context, nodeID, presentedKey string) error {
	if _, err := s.Authenticate(ctx, nodeID, presentedKey); err != nil {
		return err
	}
	return s.repo.BumpLastSeen(ctx, nodeID, time.Now().UTC())
}

// BumpLastSeen advances last-seen without re-authenticating; the ingest
// pipeline calls it after it has already verified the node.
func (s *Service) BumpLastSeen(ctx context.Context, nodeID string, seen time.Time) error {
	return s.repo.BumpLastSeen(ctx, nodeID, seen)
}
