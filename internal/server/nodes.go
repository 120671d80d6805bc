package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/decoyverse/decoyverse/internal/bundle"
	"github.com/decoyverse/decoyverse/internal/identity"
	"github.com/decoyverse/decoyverse/internal/nodes"
)

// nodeSvc is the interface expected by NodeHandler, satisfied by *nodes.Service.
type nodeSvc interface {
	Create(ctx context.Context, userID uuid.UUID, name string) (*nodes.Node, *identity.IssuedNodeCredential, error)
	List(ctx context.Context, userID uuid.UUID) ([]*nodes.Node, error)
	GetOwned(ctx context.Context, userID uuid.UUID, nodeID string) (*nodes.Node, error)
	UpdateStatus(ctx context.Context, userID uuid.UUID, nodeID string, status nodes.Status) (*nodes.Node, error)
	Delete(ctx context.Context, userID uuid.UUID, nodeID string) error
	ReissueCredential(ctx context.Context, userID uuid.UUID, nodeID string) (*nodes.Node, *identity.IssuedNodeCredential, error)
}

// bundleBuilder builds the per-node agent archive.
type bundleBuilder interface {
	Build(nodeID, nodeName, nodeAPIKey string) ([]byte, error)
}

// NodeHandler handles the node lifecycle and agent-bundle download.
type NodeHandler struct {
	nodes   nodeSvc
	bundles bundleBuilder
	logger  *zap.Logger
}

// NewNodeHandler creates a NodeHandler.
func NewNodeHandler(nodes nodeSvc, bundles bundleBuilder, logger *zap.Logger) *NodeHandler {
	return &NodeHandler{nodes: nodes, bundles: bundles, logger: logger}
}

// Register mounts the node routes behind the user-auth middleware.
func (h *NodeHandler) Register(r gin.IRouter) {
	r.POST("/nodes", h.CreateNode)
	r.GET("/nodes", h.ListNodes)
	r.GET("/nodes/:id", h.GetNode)
	r.PATCH("/nodes/:id", h.UpdateNode)
	r.DELETE("/nodes/:id", h.DeleteNode)
	r.GET("/nodes/:id/agent-download", h.DownloadAgent)
}

type createNodeRequest struct {
	Name string `json:"name" binding:"required"`
}

type updateNodeRequest struct {
	Status nodes.Status `json:"status" binding:"required"`
}

// CreateNode handles POST /nodes. The response is the only place the
// cleartext node credential ever appears.
func (h *NodeHandler) CreateNode(c *gin.Context) {
	scope, _ := identity.Scope(c)

	var req createNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	n, cred, err := h.nodes.Create(c.Request.Context(), scope, req.Name)
	if err != nil {
		failFrom(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"node_id":      n.NodeID,
		"node_api_key": cred.Key,
		"name":         n.Name,
		"owner":        n.UserID,
		"status":       n.Status,
		"created_at":   n.CreatedAt,
	})
}

// ListNodes handles GET /nodes.
func (h *NodeHandler) ListNodes(c *gin.Context) {
	scope, _ := identity.Scope(c)

	list, err := h.nodes.List(c.Request.Context(), scope)
	if err != nil {
		failFrom(c, h.logger, err)
		return
	}
	if list == nil {
		list = []*nodes.Node{}
	}
	c.JSON(http.StatusOK, list)
}

// GetNode handles GET /nodes/:id. An absent node and another user's node are
// indistinguishable: both respond Forbidden.
func (h *NodeHandler) GetNode(c *gin.Context) {
	scope, _ := identity.Scope(c)

	n, err := h.nodes.GetOwned(c.Request.Context(), scope, c.Param("id"))
	if err != nil {
		failFrom(c, h.logger, hideExistence(err))
		return
	}
	c.JSON(http.StatusOK, n)
}

// UpdateNode handles PATCH /nodes/:id.
func (h *NodeHandler) UpdateNode(c *gin.Context) {
	scope, _ := identity.Scope(c)

	var req updateNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	if !nodes.ValidStatus(req.Status) {
		writeError(c, http.StatusBadRequest, "invalid_input", fmt.Sprintf("unknown status %q", req.Status))
		return
	}

	n, err := h.nodes.UpdateStatus(c.Request.Context(), scope, c.Param("id"), req.Status)
	if err != nil {
		failFrom(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

// DeleteNode handles DELETE /nodes/:id.
func (h *NodeHandler) DeleteNode(c *gin.Context) {
	scope, _ := identity.Scope(c)

	if err := h.nodes.Delete(c.Request.Context(), scope, c.Param("id")); err != nil {
		failFrom(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// DownloadAgent handles GET /nodes/:id/agent-download. Each download mints a
// fresh node credential (replacing the stored verifier) and embeds it in the
// archive's config.json; the previous credential stops working.
func (h *NodeHandler) DownloadAgent(c *gin.Context) {
	scope, _ := identity.Scope(c)
	nodeID := c.Param("id")

	n, cred, err := h.nodes.ReissueCredential(c.Request.Context(), scope, nodeID)
	if err != nil {
		failFrom(c, h.logger, hideExistence(err))
		return
	}

	archive, err := h.bundles.Build(n.NodeID, n.Name, cred.Key)
	if err != nil {
		h.logger.Error("build agent bundle", zap.String("node_id", nodeID), zap.Error(err))
		writeError(c, http.StatusInternalServerError, "internal", "bundle generation failed")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", bundle.Filename(n.NodeID)))
	c.Data(http.StatusOK, "application/zip", archive)
}

// hideExistence folds "absent" into "not yours" for node-scoped reads, so
// callers cannot probe which node ids exist.
func hideExistence(err error) error {
	if errors.Is(err, nodes.ErrNotFound) {
		return nodes.ErrForbidden
	}
	return err
}
