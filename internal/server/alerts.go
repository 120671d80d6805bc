package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/decoyverse/decoyverse/internal/alerts"
	"github.com/decoyverse/decoyverse/internal/identity"
	"github.com/decoyverse/decoyverse/internal/nodes"
)

// alertStore is the interface expected by AlertHandler, satisfied by
// *alerts.Repository.
type alertStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*alerts.Alert, error)
	ListByOwner(ctx context.Context, userID uuid.UUID, severity string, status alerts.Status, limit int) ([]*alerts.Alert, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status alerts.Status) error
	Stats(ctx context.Context, userID uuid.UUID, highRiskThreshold int) (*alerts.Stats, error)
}

// AlertHandler serves alert listings, triage updates, and the dashboard
// statistics aggregate.
type AlertHandler struct {
	alerts    alertStore
	nodes     nodeSvc
	threshold int
	logger    *zap.Logger
}

// NewAlertHandler creates an AlertHandler. threshold is Θ, used for the
// high-risk count in statistics.
func NewAlertHandler(alertRepo alertStore, nodeService nodeSvc, threshold int, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{alerts: alertRepo, nodes: nodeService, threshold: threshold, logger: logger}
}

// Register mounts the alert and statistics routes.
func (h *AlertHandler) Register(r gin.IRouter) {
	r.GET("/alerts", h.List)
	r.PATCH("/alerts/:id", h.UpdateStatus)
	r.GET("/stats", h.Stats)
	r.GET("/recent-attacks", h.RecentAttacks)
}

// alertView augments an alert with its derived severity label.
type alertView struct {
	*alerts.Alert
	Severity string `json:"severity"`
}

// List handles GET /alerts.
func (h *AlertHandler) List(c *gin.Context) {
	scope, _ := identity.Scope(c)

	status := alerts.Status(c.Query("status"))
	if status != "" && !alerts.ValidStatus(status) {
		writeError(c, http.StatusBadRequest, "invalid_input", "unknown status filter")
		return
	}

	list, err := h.alerts.ListByOwner(c.Request.Context(), scope,
		c.Query("severity"), status, queryInt(c, "limit", alerts.DefaultLimit))
	if err != nil {
		failFrom(c, h.logger, err)
		return
	}

	out := make([]alertView, 0, len(list))
	for _, a := range list {
		out = append(out, alertView{Alert: a, Severity: alerts.Severity(a.RiskScore)})
	}
	c.JSON(http.StatusOK, out)
}

type updateAlertRequest struct {
	Status alerts.Status `json:"status" binding:"required"`
}

// UpdateStatus handles PATCH /alerts/:id.
func (h *AlertHandler) UpdateStatus(c *gin.Context) {
	scope, _ := identity.Scope(c)

	var req updateAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	if !alerts.ValidStatus(req.Status) {
		writeError(c, http.StatusBadRequest, "invalid_input", "status must be open, investigating, or resolved")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		failFrom(c, h.logger, alerts.ErrNotFound)
		return
	}

	a, err := h.alerts.GetByID(c.Request.Context(), id)
	if err != nil {
		failFrom(c, h.logger, err)
		return
	}
	if a.UserID != scope {
		failFrom(c, h.logger, nodes.ErrForbidden)
		return
	}

	if err := h.alerts.UpdateStatus(c.Request.Context(), id, req.Status); err != nil {
		failFrom(c, h.logger, err)
		return
	}
	a.Status = req.Status
	c.JSON(http.StatusOK, alertView{Alert: a, Severity: alerts.Severity(a.RiskScore)})
}

// Stats handles GET /stats: single-collection aggregations, each filtered by
// the caller's scope.
func (h *AlertHandler) Stats(c *gin.Context) {
	scope, _ := identity.Scope(c)

	s, err := h.alerts.Stats(c.Request.Context(), scope, h.threshold)
	if err != nil {
		failFrom(c, h.logger, err)
		return
	}

	nodeList, err := h.nodes.List(c.Request.Context(), scope)
	if err != nil {
		failFrom(c, h.logger, err)
		return
	}
	s.TotalNodes = len(nodeList)
	for _, n := range nodeList {
		if n.Status == nodes.StatusActive {
			s.ActiveNodes++
		}
	}

	c.JSON(http.StatusOK, s)
}

// recentAttack is the trimmed projection served by /recent-attacks.
type recentAttack struct {
	Timestamp  string `json:"timestamp"`
	SourceIP   string `json:"source_ip"`
	Service    string `json:"service"`
	Activity   string `json:"activity"`
	AttackType string `json:"attack_type"`
	RiskScore  int    `json:"risk_score"`
}

// RecentAttacks handles GET /recent-attacks.
func (h *AlertHandler) RecentAttacks(c *gin.Context) {
	scope, _ := identity.Scope(c)

	list, err := h.alerts.ListByOwner(c.Request.Context(), scope, "", "", queryInt(c, "limit", 10))
	if err != nil {
		failFrom(c, h.logger, err)
		return
	}

	out := make([]recentAttack, 0, len(list))
	for _, a := range list {
		out = append(out, recentAttack{
			Timestamp:  a.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00"),
			SourceIP:   a.SourceIP,
			Service:    a.Service,
			Activity:   a.Activity,
			AttackType: a.AttackType,
			RiskScore:  a.RiskScore,
		})
	}
	c.JSON(http.StatusOK, out)
}
