package middleware

import (
	"context"
	"net/http"

	"github.com/debtdesk/backoffice/pkg/httputil"
	"github.com/debtdesk/backoffice/pkg/logger"
	"github.com/gin-gonic/gin"
)

// Authorizer answers whether a user may perform action on module.
type Authorizer interface {
	Can(ctx context.Context, userID, module, action string) (bool, error)
}

// RequirePermission rejects requests whose actor lacks module/action.
// A nil Authorizer disables the check (used by tests and single-user dev runs).
func RequirePermission(az Authorizer, module, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if az == nil {
			c.Next()
			return
		}
		actor := httputil.Actor(c)
		if actor == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		ok, err := az.Can(c.Request.Context(), actor, module, action)
		if err != nil {
			logger.Errorf("permission check %s:%s for %s failed: %v", module, action, actor, err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "permission check failed"})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "module": module, "action": action})
			return
		}
		c.Next()
	}
}
