package auth

import (
	"errors"
	"net/http"
	"strings"

	"voice-agent-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

const authorizationHeader = "Authorization"
const bearerPrefix = "Bearer "

// RequireSession resolves the bearer token through the session provider and
// stores the session in the request context. Role checks belong to internal/rbac.
func RequireSession(p SessionProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		if p == nil {
			logger.FromGin(c).Error("session provider not configured")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "session_unavailable"})
			return
		}
		raw := strings.TrimSpace(c.GetHeader(authorizationHeader))
		if !strings.HasPrefix(raw, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}

		s, err := p.Session(c.Request.Context(), strings.TrimPrefix(raw, bearerPrefix))
		if err != nil {
			if errors.Is(err, ErrNoSession) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
				return
			}
			logger.FromGin(c).Error("session lookup failed", "err", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "session_unavailable"})
			return
		}
		if s.OrganizationID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}

		c.Request = c.Request.WithContext(WithSession(c.Request.Context(), s))
		logger.Bind(c, logger.FromGin(c).With("user_id", s.UserID, "organization_id", s.OrganizationID))
		c.Next()
	}
}
