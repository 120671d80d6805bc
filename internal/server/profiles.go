package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/decoyverse/decoyverse/internal/profiles"
)

// profileStore is the interface expected by ProfileHandler, satisfied by
// *profiles.Repository.
type profileStore interface {
	Get(ctx context.Context, sourceIP string) (*profiles.Profile, error)
	Top(ctx context.Context, limit int) ([]*profiles.Profile, error)
}

// ProfileHandler serves attacker profiles. Profiles are global: a source
// identifier is not a user-owned secret, so reads require a valid bearer but
// are not intersected with the caller's fleet.
type ProfileHandler struct {
	profiles profileStore
	logger   *zap.Logger
}

// NewProfileHandler creates a ProfileHandler.
func NewProfileHandler(profileRepo profileStore, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profileRepo, logger: logger}
}

// Register mounts the profile routes.
func (h *ProfileHandler) Register(r gin.IRouter) {
	r.GET("/attacker-profile/:source_id", h.Get)
	r.GET("/attacker-profiles/top", h.Top)
}

// Get handles GET /attacker-profile/:source_id.
func (h *ProfileHandler) Get(c *gin.Context) {
	p, err := h.profiles.Get(c.Request.Context(), c.Param("source_id"))
	if err != nil {
		failFrom(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Top handles GET /attacker-profiles/top.
func (h *ProfileHandler) Top(c *gin.Context) {
	list, err := h.profiles.Top(c.Request.Context(), queryInt(c, "limit", 10))
	if err != nil {
		failFrom(c, h.logger, err)
		return
	}
	if list == nil {
		list = []*profiles.Profile{}
	}
	c.JSON(http.StatusOK, list)
}
