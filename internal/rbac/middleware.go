package rbac

import (
	"net/http"

	"voice-agent-platform/internal/auth"

	"github.com/gin-gonic/gin"
)

// Require admits sessions whose role carries p. It must run after
// auth.RequireSession; without a session the request is unauthenticated.
// Organization scoping is not decided here: handlers read only rows owned by
// the session's organization.
func Require(p Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := auth.SessionFrom(c.Request.Context())
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		if !Allowed(s.Role, p) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
