package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/decoyverse/decoyverse/internal/ingest"
	"github.com/decoyverse/decoyverse/internal/nodes"
)

// ingestPipeline is the interface expected by AgentHandler, satisfied by
// *ingest.Pipeline.
type ingestPipeline interface {
	IngestHoneypotLog(ctx context.Context, nodeID, presentedKey string, in ingest.HoneypotLogInput) (*ingest.Result, error)
	IngestAgentEvent(ctx context.Context, nodeID, presentedKey string, in ingest.AgentEventInput) (*ingest.Result, error)
}

// agentNodeSvc is the node-side surface consumed by agent endpoints.
type agentNodeSvc interface {
	Register(ctx context.Context, nodeID, presentedKey, hostname, os string) (*nodes.Node, error)
	Heartbeat(ctx context.Context, nodeID, presentedKey string) error
}

// AgentHandler serves the node-credential-authenticated surface: agent
// registration, heartbeats, and both ingestion entry points.
type AgentHandler struct {
	pipeline ingestPipeline
	nodes    agentNodeSvc
	logger   *zap.Logger
}

// NewAgentHandler creates an AgentHandler.
func NewAgentHandler(pipeline ingestPipeline, nodeService agentNodeSvc, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{pipeline: pipeline, nodes: nodeService, logger: logger}
}

// Register mounts the agent routes. These are NOT behind the user-auth
// middleware; every handler authenticates the node credential itself.
func (h *AgentHandler) Register(r gin.IRouter) {
	r.POST("/agent/register", h.RegisterAgent)
	r.POST("/agent/heartbeat", h.Heartbeat)
	r.POST("/honeypot-log", h.HoneypotLog)
	r.POST("/agent-alert", h.AgentAlert)
}

// nodeCredentials extracts the node credential pair: the X-Node-Id and
// X-Node-Key headers, with body fields as a fallback for older agents.
func nodeCredentials(c *gin.Context, bodyID, bodyKey string) (nodeID, key string) {
	nodeID = c.GetHeader("X-Node-Id")
	if nodeID == "" {
		nodeID = bodyID
	}
	key = c.GetHeader("X-Node-Key")
	if key == "" {
		key = bodyKey
	}
	return nodeID, key
}

type agentRegisterRequest struct {
	NodeID     string `json:"node_id"`
	NodeAPIKey string `json:"node_api_key"`
	Hostname   string `json:"hostname" binding:"required"`
	OS         string `json:"os"`
}

// RegisterAgent handles POST /agent/register.
func (h *AgentHandler) RegisterAgent(c *gin.Context) {
	var req agentRegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	nodeID, key := nodeCredentials(c, req.NodeID, req.NodeAPIKey)
	n, err := h.nodes.Register(c.Request.Context(), nodeID, key, req.Hostname, req.OS)
	if err != nil {
		failFrom(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "node_id": n.NodeID, "name": n.Name})
}

type heartbeatRequest struct {
	NodeID     string `json:"node_id"`
	NodeAPIKey string `json:"node_api_key"`
}

// Heartbeat handles POST /agent/heartbeat.
func (h *AgentHandler) Heartbeat(c *gin.Context) {
	var req heartbeatRequest
	_ = c.ShouldBindJSON(&req)

	nodeID, key := nodeCredentials(c, req.NodeID, req.NodeAPIKey)
	if err := h.nodes.Heartbeat(c.Request.Context(), nodeID, key); err != nil {
		failFrom(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

type honeypotLogRequest struct {
	Service   string            `json:"service"   binding:"required"`
	SourceIP  string            `json:"source_ip" binding:"required"`
	Activity  string            `json:"activity"  binding:"required"`
	Payload   string            `json:"payload"`
	Timestamp string            `json:"timestamp" binding:"required"`
	Extra     map[string]string `json:"extra"`
	NodeID    string            `json:"node_id"`
}

// HoneypotLog handles POST /honeypot-log.
func (h *AgentHandler) HoneypotLog(c *gin.Context) {
	var req honeypotLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	ts, err := parseTimestamp(req.Timestamp)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	nodeID, key := nodeCredentials(c, req.NodeID, "")
	res, err := h.pipeline.IngestHoneypotLog(c.Request.Context(), nodeID, key, ingest.HoneypotLogInput{
		Service:   req.Service,
		SourceIP:  req.SourceIP,
		Activity:  req.Activity,
		Payload:   req.Payload,
		Extra:     req.Extra,
		Timestamp: ts,
	})
	if err != nil {
		failFrom(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "success",
		"event_id":       res.EventID,
		"classification": res.Classification,
		"alert_created":  res.AlertCreated,
	})
}

type agentEventRequest struct {
	Timestamp    string `json:"timestamp"     binding:"required"`
	Hostname     string `json:"hostname"      binding:"required"`
	Username     string `json:"username"`
	FileAccessed string `json:"file_accessed" binding:"required"`
	FilePath     string `json:"file_path"`
	Action       string `json:"action"        binding:"required"`
	Severity     string `json:"severity"      binding:"required"`
	AlertType    string `json:"alert_type"`
	NodeID       string `json:"node_id"`
}

// AgentAlert handles POST /agent-alert.
func (h *AgentHandler) AgentAlert(c *gin.Context) {
	var req agentEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	ts, err := parseTimestamp(req.Timestamp)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	nodeID, key := nodeCredentials(c, req.NodeID, "")
	res, err := h.pipeline.IngestAgentEvent(c.Request.Context(), nodeID, key, ingest.AgentEventInput{
		Hostname:     req.Hostname,
		Username:     req.Username,
		FileAccessed: req.FileAccessed,
		FilePath:     req.FilePath,
		Action:       req.Action,
		Severity:     strings.ToLower(req.Severity),
		AlertType:    req.AlertType,
		Timestamp:    ts,
	})
	if err != nil {
		failFrom(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "success",
		"event_id":       res.EventID,
		"classification": res.Classification,
		"alert_created":  res.AlertCreated,
	})
}

func parseTimestamp(s string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp must be ISO-8601 with timezone")
	}
	return ts, nil
}
