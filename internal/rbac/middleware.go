package rbac

import (
	"net/http"

	"wallet-ledger/internal/auth"
	"wallet-ledger/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RequireAnyRole admits callers holding one of allowed. super_admin always
// passes. Denials are logged so privileged-route probing shows up in request logs.
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		if IsSuperAdmin(role) {
			c.Next()
			return
		}
		if _, ok := allowedSet[role]; !ok {
			logger.FromGin(c).Warn("role denied", "role", role, "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
