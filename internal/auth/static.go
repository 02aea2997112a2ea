package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RequireStaticBearer guards machine-to-machine endpoints (the agent runtime)
// with a shared token. An empty token disables the check.
func RequireStaticBearer(token string) gin.HandlerFunc {
	want := []byte(token)
	return func(c *gin.Context) {
		if len(want) == 0 {
			c.Next()
			return
		}
		raw := strings.TrimSpace(c.GetHeader(authorizationHeader))
		got := []byte(strings.TrimPrefix(raw, bearerPrefix))
		if !strings.HasPrefix(raw, bearerPrefix) || subtle.ConstantTimeCompare(got, want) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"})
			return
		}
		c.Next()
	}
}
