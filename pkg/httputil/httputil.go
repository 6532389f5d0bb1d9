// Package httputil holds small gin helpers shared by every handler.
package httputil

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// ClaimsKey is the gin context key under which AuthMiddleware stores token claims.
const ClaimsKey = "claims"

// BindError responds 400 for a failed ShouldBind*. Validation failures are
// flattened to {"Field": "tag"}.
func BindError(c *gin.Context, err error) {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		fields := make(map[string]string, len(ve))
		for _, fe := range ve {
			fields[fe.Field()] = fe.Tag()
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": fields})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// Claims returns the verified token claims, or nil when the request is anonymous.
func Claims(c *gin.Context) map[string]interface{} {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil
	}
	cm, _ := v.(map[string]interface{})
	return cm
}

// Actor returns the acting user id: the "uid" claim for locally issued
// tokens, otherwise the OIDC subject.
func Actor(c *gin.Context) string {
	cm := Claims(c)
	if cm == nil {
		return ""
	}
	if uid, ok := cm["uid"].(string); ok && uid != "" {
		return uid
	}
	sub, _ := cm["sub"].(string)
	return sub
}

// IntQuery parses an integer query parameter, returning def when absent or malformed.
func IntQuery(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
