package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/decoyverse/decoyverse/internal/identity"
	"github.com/decoyverse/decoyverse/internal/users"
)

// userSvc is the interface expected by AuthHandler, satisfied by *users.Service.
type userSvc interface {
	Register(ctx context.Context, email, password string) (*users.User, error)
	Login(ctx context.Context, email, password string) (*users.User, error)
}

// AuthHandler handles user registration and login.
type AuthHandler struct {
	users  userSvc
	tokens *identity.TokenIssuer
	logger *zap.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(users userSvc, tokens *identity.TokenIssuer, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens, logger: logger}
}

// Register mounts the auth routes.
func (h *AuthHandler) Register(r gin.IRouter) {
	auth := r.Group("/auth")
	{
		auth.POST("/register", h.RegisterUser)
		auth.POST("/login", h.Login)
	}
}

type credentialsRequest struct {
	Email    string `json:"email"    binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RegisterUser handles POST /auth/register.
func (h *AuthHandler) RegisterUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	u, err := h.users.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		failFrom(c, h.logger, err)
		return
	}

	tok, err := h.tokens.Issue(u.ID, u.Email)
	if err != nil {
		h.logger.Error("issue token after register", zap.Error(err))
		writeError(c, http.StatusInternalServerError, "internal", "token issuance failed")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"access_token": tok, "token_type": "bearer", "user": u})
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	u, err := h.users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		failFrom(c, h.logger, err)
		return
	}

	tok, err := h.tokens.Issue(u.ID, u.Email)
	if err != nil {
		h.logger.Error("issue token after login", zap.Error(err))
		writeError(c, http.StatusInternalServerError, "internal", "token issuance failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"access_token": tok, "token_type": "bearer", "user": u})
}
