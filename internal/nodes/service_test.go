package nodes_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/decoyverse/decoyverse/internal/nodes"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ── Stub repo ─────────────────────────────────────────────────────────────

type stubNodeRepo struct {
	mu   sync.RWMutex
	byID map[string]*nodes.Node
}

func newStubNodeRepo() *stubNodeRepo {
	return &stubNodeRepo{byID: make(map[string]*nodes.Node)}
}

func (r *stubNodeRepo) Create(_ context.Context, n *nodes.Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[n.NodeID]; exists {
		return nodes.ErrDuplicateID
	}
	n.CreatedAt = time.Now()
	cp := *n
	r.byID[n.NodeID] = &cp
	return nil
}

func (r *stubNodeRepo) GetByID(_ context.Context, nodeID string) (*nodes.Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.byID[nodeID]
	if !ok {
		return nil, nodes.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (r *stubNodeRepo) ListByOwner(_ context.Context, userID uuid.UUID) ([]*nodes.Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*nodes.Node
	for _, n := range r.byID {
		if n.UserID == userID {
			cp := *n
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *stubNodeRepo) UpdateStatus(_ context.Context, nodeID string, status nodes.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.byID[nodeID]
	if !ok {
		return nodes.ErrNotFound
	}
	n.Status = status
	return nil
}

func (r *stubNodeRepo) SetKeyHash(_ context.Context, nodeID, keyHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.byID[nodeID]
	if !ok {
		return nodes.ErrNotFound
	}
	n.KeyHash = keyHash
	return nil
}

func (r *stubNodeRepo) SetRegistration(_ context.Context, nodeID, hostname, os string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.byID[nodeID]
	if !ok {
		return nodes.ErrNotFound
	}
	now := time.Now()
	n.Status = nodes.StatusActive
	n.Hostname = hostname
	n.OS = os
	n.LastSeen = &now
	return nil
}

func (r *stubNodeRepo) BumpLastSeen(_ context.Context, nodeID string, seen time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.byID[nodeID]
	if !ok {
		return nodes.ErrNotFound
	}
	if n.LastSeen == nil || seen.After(*n.LastSeen) {
		n.LastSeen = &seen
	}
	return nil
}

func (r *stubNodeRepo) Delete(_ context.Context, nodeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[nodeID]; !ok {
		return nodes.ErrNotFound
	}
	delete(r.byID, nodeID)
	return nil
}

// ── Tests ─────────────────────────────────────────────────────────────────

func newService() (*nodes.Service, *stubNodeRepo) {
	repo := newStubNodeRepo()
	return nodes.NewService(repo, nil, false, zap.NewNop()), repo
}

func TestCreateMintsCredentialOnce(t *testing.T) {
	svc, repo := newService()
	owner := uuid.New()

	n, cred, err := svc.Create(context.Background(), owner, "n1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if n.NodeID == "" {
		t.Error("empty node id")
	}
	if !strings.HasPrefix(cred.Key, "nk_") {
		t.Errorf("credential %q lacks nk_ prefix", cred.Key)
	}

	stored, _ := repo.GetByID(context.Background(), n.NodeID)
	if stored.KeyHash == cred.Key {
		t.Error("cleartext credential persisted")
	}
	if stored.Status != nodes.StatusUnknown {
		t.Errorf("new node status = %s, want unknown", stored.Status)
	}
}

func TestAuthenticate(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	owner := uuid.New()

	n, cred, err := svc.Create(ctx, owner, "n1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := svc.Authenticate(ctx, n.NodeID, cred.Key)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.NodeID != n.NodeID {
		t.Errorf("Authenticate returned node %s, want %s", got.NodeID, n.NodeID)
	}

	if _, err := svc.Authenticate(ctx, n.NodeID, "nk_wrong"); !errors.Is(err, nodes.ErrUnauthenticated) {
		t.Errorf("wrong key err = %v, want ErrUnauthenticated", err)
	}
	if _, err := svc.Authenticate(ctx, "ghost", cred.Key); !errors.Is(err, nodes.ErrUnauthenticated) {
		t.Errorf("unknown node err = %v, want ErrUnauthenticated", err)
	}
}

func TestAuthenticateInactiveNode(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	owner := uuid.New()

	n, cred, err := svc.Create(ctx, owner, "n1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, owner, n.NodeID, nodes.StatusInactive); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	if _, err := svc.Authenticate(ctx, n.NodeID, cred.Key); !errors.Is(err, nodes.ErrInactive) {
		t.Errorf("inactive node err = %v, want ErrInactive", err)
	}
}

func TestOwnershipEnforced(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	n, _, err := svc.Create(ctx, alice, "n1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.GetOwned(ctx, bob, n.NodeID); !errors.Is(err, nodes.ErrForbidden) {
		t.Errorf("GetOwned by other user err = %v, want ErrForbidden", err)
	}
	if err := svc.Delete(ctx, bob, n.NodeID); !errors.Is(err, nodes.ErrForbidden) {
		t.Errorf("Delete by other user err = %v, want ErrForbidden", err)
	}
	if _, err := svc.UpdateStatus(ctx, bob, n.NodeID, nodes.StatusActive); !errors.Is(err, nodes.ErrForbidden) {
		t.Errorf("UpdateStatus by other user err = %v, want ErrForbidden", err)
	}
}

func TestRegisterIdempotent(t *testing.T) {
	svc, repo := newService()
	ctx := context.Background()
	owner := uuid.New()

	n, cred, err := svc.Create(ctx, owner, "n1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := svc.Register(ctx, n.NodeID, cred.Key, "host-a", "linux"); err != nil {
			t.Fatalf("Register #%d: %v", i+1, err)
		}
	}

	stored, _ := repo.GetByID(ctx, n.NodeID)
	if stored.Status != nodes.StatusActive {
		t.Errorf("status after register = %s, want active", stored.Status)
	}
	if stored.Hostname != "host-a" || stored.OS != "linux" {
		t.Errorf("host metadata = %q/%q, want host-a/linux", stored.Hostname, stored.OS)
	}
	if stored.LastSeen == nil {
		t.Error("last_seen not set by register")
	}
}

func TestReissueCredentialReplacesVerifier(t *testing.T) {
	svc, repo := newService()
	ctx := context.Background()
	owner := uuid.New()

	n, first, err := svc.Create(ctx, owner, "n1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, second, err := svc.ReissueCredential(ctx, owner, n.NodeID)
	if err != nil {
		t.Fatalf("ReissueCredential: %v", err)
	}
	if first.Key == second.Key {
		t.Error("reissue returned the same credential")
	}

	if _, err := svc.Authenticate(ctx, n.NodeID, second.Key); err != nil {
		t.Errorf("new credential rejected: %v", err)
	}
	if _, err := svc.Authenticate(ctx, n.NodeID, first.Key); !errors.Is(err, nodes.ErrUnauthenticated) {
		t.Errorf("old credential still valid after reissue, err = %v", err)
	}

	stored, _ := repo.GetByID(ctx, n.NodeID)
	if stored.KeyHash == second.Key {
		t.Error("cleartext credential persisted on reissue")
	}
}
