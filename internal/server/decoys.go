package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/decoyverse/decoyverse/internal/decoys"
	"github.com/decoyverse/decoyverse/internal/identity"
)

// decoyStore is the interface expected by DecoyHandler, satisfied by
// *decoys.Repository.
type decoyStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*decoys.Decoy, error)
	ListByNode(ctx context.Context, nodeID string, kind decoys.Kind) ([]*decoys.Decoy, error)
	ListByNodes(ctx context.Context, nodeIDs []string, kind decoys.Kind, limit int) ([]*decoys.Decoy, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status decoys.Status) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// DecoyHandler serves decoy and honeytoken queries. Honeytokens are the
// kind = honeytoken subset of decoys; both route families share logic.
type DecoyHandler struct {
	decoys decoyStore
	nodes  nodeSvc
	logger *zap.Logger
}

// NewDecoyHandler creates a DecoyHandler.
func NewDecoyHandler(decoyRepo decoyStore, nodeService nodeSvc, logger *zap.Logger) *DecoyHandler {
	return &DecoyHandler{decoys: decoyRepo, nodes: nodeService, logger: logger}
}

// Register mounts the decoy and honeytoken routes.
func (h *DecoyHandler) Register(r gin.IRouter) {
	r.GET("/decoys", h.listFleet(""))
	r.GET("/decoys/node/:id", h.listNode(""))
	r.PATCH("/decoys/:id", h.UpdateStatus)
	r.DELETE("/decoys/:id", h.Delete)

	r.GET("/honeytokens", h.listFleet(decoys.KindHoneytoken))
	r.GET("/honeytokens/node/:id", h.listNode(decoys.KindHoneytoken))
	r.PATCH("/honeytokens/:id", h.UpdateStatus)
	r.DELETE("/honeytokens/:id", h.Delete)

	// Original dashboard path for a node's decoys.
	r.GET("/nodes/:id/decoys", h.listNode(""))
}

func (h *DecoyHandler) listFleet(kind decoys.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		scope, _ := identity.Scope(c)

		nodeIDs, err := h.ownedNodeIDs(c, scope)
		if err != nil {
			failFrom(c, h.logger, err)
			return
		}

		list, err := h.decoys.ListByNodes(c.Request.Context(), nodeIDs, kind, queryInt(c, "limit", decoys.DefaultLimit))
		if err != nil {
			failFrom(c, h.logger, err)
			return
		}
		if list == nil {
			list = []*decoys.Decoy{}
		}
		c.JSON(http.StatusOK, list)
	}
}

func (h *DecoyHandler) listNode(kind decoys.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		scope, _ := identity.Scope(c)

		n, err := h.nodes.GetOwned(c.Request.Context(), scope, c.Param("id"))
		if err != nil {
			failFrom(c, h.logger, hideExistence(err))
			return
		}

		list, err := h.decoys.ListByNode(c.Request.Context(), n.NodeID, kind)
		if err != nil {
			failFrom(c, h.logger, err)
			return
		}
		if list == nil {
			list = []*decoys.Decoy{}
		}
		c.JSON(http.StatusOK, list)
	}
}

type updateDecoyRequest struct {
	Status decoys.Status `json:"status" binding:"required"`
}

// UpdateStatus handles PATCH /decoys/:id and /honeytokens/:id. Ownership is
// re-checked by loading the decoy's node.
func (h *DecoyHandler) UpdateStatus(c *gin.Context) {
	scope, _ := identity.Scope(c)

	var req updateDecoyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	if req.Status != decoys.StatusActive && req.Status != decoys.StatusInactive {
		writeError(c, http.StatusBadRequest, "invalid_input", "status must be active or inactive")
		return
	}

	d, err := h.ownedDecoy(c, scope)
	if err != nil {
		failFrom(c, h.logger, err)
		return
	}

	if err := h.decoys.UpdateStatus(c.Request.Context(), d.ID, req.Status); err != nil {
		failFrom(c, h.logger, err)
		return
	}
	d.Status = req.Status
	c.JSON(http.StatusOK, d)
}

// Delete handles DELETE /decoys/:id and /honeytokens/:id.
func (h *DecoyHandler) Delete(c *gin.Context) {
	scope, _ := identity.Scope(c)

	d, err := h.ownedDecoy(c, scope)
	if err != nil {
		failFrom(c, h.logger, err)
		return
	}

	if err := h.decoys.Delete(c.Request.Context(), d.ID); err != nil {
		failFrom(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// ownedDecoy loads the decoy and asserts the caller owns its node.
func (h *DecoyHandler) ownedDecoy(c *gin.Context, scope uuid.UUID) (*decoys.Decoy, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, decoys.ErrNotFound
	}
	d, err := h.decoys.GetByID(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if _, err := h.nodes.GetOwned(c.Request.Context(), scope, d.NodeID); err != nil {
		return nil, hideExistence(err)
	}
	return d, nil
}

// ownedNodeIDs resolves the caller's fleet scope: the set N of node ids every
// fleet-wide query is filtered by.
func (h *DecoyHandler) ownedNodeIDs(c *gin.Context, scope uuid.UUID) ([]string, error) {
	list, err := h.nodes.List(c.Request.Context(), scope)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(list))
	for _, n := range list {
		ids = append(ids, n.NodeID)
	}
	return ids, nil
}

// queryInt parses an integer query parameter with a fallback.
func queryInt(c *gin.Context, key string, fallback int) int {
	v := c.Query(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
