package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Mode selects how request principals are resolved.
type Mode string

const (
	// ModeEnforced requires a valid bearer token and node credential pair.
	ModeEnforced Mode = "enforced"
	// ModeOpen resolves every verify call to the demo principal and skips
	// node credential checks. Persisted-data shape is unchanged.
	ModeOpen Mode = "open"
)

// Demo principal returned by every verify call in open mode.
var (
	DemoUserID    = uuid.MustParse("00000000-0000-0000-0000-00000000d390")
	DemoUserEmail = "demo@decoyverse.local"
)

const scopeKey = "auth.user_id"

// RequireUser returns a Gin middleware that resolves the Authorization bearer
// to a user identifier once per request and threads it into the context.
// Handlers read it back with Scope.
func RequireUser(tokens *TokenIssuer, mode Mode) gin.HandlerFunc {
	return func(c *gin.Context) {
		if mode == ModeOpen {
			c.Set(scopeKey, DemoUserID)
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":  "unauthenticated",
				"error": "missing bearer token",
			})
			return
		}

		uid, err := tokens.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":  "unauthenticated",
				"error": "invalid or expired token",
			})
			return
		}

		c.Set(scopeKey, uid)
		c.Next()
	}
}

// Scope returns the authenticated user identifier set by RequireUser.
// The boolean is false on routes that did not pass through the middleware.
func Scope(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(scopeKey)
	if !ok {
		return uuid.Nil, false
	}
	uid, ok := v.(uuid.UUID)
	return uid, ok
}
