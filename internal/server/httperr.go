package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/decoyverse/decoyverse/internal/alerts"
	"github.com/decoyverse/decoyverse/internal/decoys"
	"github.com/decoyverse/decoyverse/internal/ingest"
	"github.com/decoyverse/decoyverse/internal/nodes"
	"github.com/decoyverse/decoyverse/internal/profiles"
	"github.com/decoyverse/decoyverse/internal/users"
)

// writeError sends a structured error body. Payloads are never echoed; the
// message is a short stable description.
func writeError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"code": code, "error": msg})
}

// failFrom maps domain sentinels onto the error taxonomy. Unrecognised
// errors are logged and surfaced as internal.
func failFrom(c *gin.Context, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, ingest.ErrInvalidInput):
		writeError(c, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, users.ErrBadCredentials):
		writeError(c, http.StatusUnauthorized, "bad_credentials", "invalid credentials")
	case errors.Is(err, nodes.ErrUnauthenticated):
		writeError(c, http.StatusUnauthorized, "unauthenticated", "invalid node credentials")
	case errors.Is(err, nodes.ErrInactive):
		writeError(c, http.StatusForbidden, "node_inactive", "node is inactive")
	case errors.Is(err, nodes.ErrForbidden):
		writeError(c, http.StatusForbidden, "forbidden", "resource belongs to another user")
	case errors.Is(err, nodes.ErrNotFound),
		errors.Is(err, decoys.ErrNotFound),
		errors.Is(err, alerts.ErrNotFound),
		errors.Is(err, profiles.ErrNotFound),
		errors.Is(err, users.ErrNotFound):
		writeError(c, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, users.ErrDuplicateEmail):
		writeError(c, http.StatusConflict, "email_taken", "email already registered")
	case errors.Is(err, ingest.ErrStorageUnavailable):
		logger.Error("storage unavailable", zap.Error(err))
		writeError(c, http.StatusServiceUnavailable, "storage_unavailable", "storage unavailable")
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(c, http.StatusInternalServerError, "internal", "internal error")
	}
}
