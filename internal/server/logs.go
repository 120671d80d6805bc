package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/decoyverse/decoyverse/internal/events"
	"github.com/decoyverse/decoyverse/internal/identity"
)

// eventStore is the interface expected by LogHandler, satisfied by
// *events.Repository.
type eventStore interface {
	List(ctx context.Context, f events.Filter) ([]*events.Event, error)
}

// LogHandler serves the merged event listings.
type LogHandler struct {
	events eventStore
	nodes  nodeSvc
	logger *zap.Logger
}

// NewLogHandler creates a LogHandler.
func NewLogHandler(eventRepo eventStore, nodeService nodeSvc, logger *zap.Logger) *LogHandler {
	return &LogHandler{events: eventRepo, nodes: nodeService, logger: logger}
}

// Register mounts the log routes.
func (h *LogHandler) Register(r gin.IRouter) {
	r.GET("/logs", h.ListFleet)
	r.GET("/logs/node/:id", h.ListNode)
}

// ListFleet handles GET /logs: a chronologically descending merge of
// honeypot logs and agent events across the caller's nodes. An explicit
// node_id filter must name one of the caller's own nodes.
func (h *LogHandler) ListFleet(c *gin.Context) {
	scope, _ := identity.Scope(c)

	var nodeIDs []string
	if nodeID := c.Query("node_id"); nodeID != "" {
		n, err := h.nodes.GetOwned(c.Request.Context(), scope, nodeID)
		if err != nil {
			failFrom(c, h.logger, hideExistence(err))
			return
		}
		nodeIDs = []string{n.NodeID}
	} else {
		list, err := h.nodes.List(c.Request.Context(), scope)
		if err != nil {
			failFrom(c, h.logger, err)
			return
		}
		for _, n := range list {
			nodeIDs = append(nodeIDs, n.NodeID)
		}
	}

	h.list(c, nodeIDs)
}

// ListNode handles GET /logs/node/:id.
func (h *LogHandler) ListNode(c *gin.Context) {
	scope, _ := identity.Scope(c)

	n, err := h.nodes.GetOwned(c.Request.Context(), scope, c.Param("id"))
	if err != nil {
		failFrom(c, h.logger, hideExistence(err))
		return
	}
	h.list(c, []string{n.NodeID})
}

func (h *LogHandler) list(c *gin.Context, nodeIDs []string) {
	list, err := h.events.List(c.Request.Context(), events.Filter{
		NodeIDs:  nodeIDs,
		Severity: c.Query("severity"),
		Search:   c.Query("search"),
		Limit:    queryInt(c, "limit", events.DefaultLimit),
	})
	if err != nil {
		failFrom(c, h.logger, err)
		return
	}
	if list == nil {
		list = []*events.Event{}
	}
	c.JSON(http.StatusOK, list)
}
