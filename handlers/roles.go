package handlers

import (
	"errors"
	"net/http"

	"github.com/debtdesk/backoffice/internal/rbac"
	"github.com/debtdesk/backoffice/pkg/httputil"
	"github.com/debtdesk/backoffice/pkg/logger"
	"github.com/debtdesk/backoffice/pkg/middleware"
	"github.com/gin-gonic/gin"
)

func writeRoleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, rbac.ErrRoleNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, rbac.ErrDuplicateName), errors.Is(err, rbac.ErrSystemRole):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, rbac.ErrInvalidRole):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.Errorf("roles: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// RegisterRoleRoutes mounts role administration and the permission catalog.
func RegisterRoleRoutes(rg *gin.RouterGroup, svc *rbac.Service, az middleware.Authorizer) {
	perm := func(action string) gin.HandlerFunc {
		return middleware.RequirePermission(az, rbac.ModuleRoles, action)
	}

	rg.GET("/permissions/catalog", perm(rbac.ActionRead), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"modules": rbac.AllModules, "actions": rbac.AllActions})
	})

	g := rg.Group("/roles")
	g.GET("", perm(rbac.ActionRead), func(c *gin.Context) {
		list, err := svc.ListRoles(c.Request.Context())
		if err != nil {
			writeRoleError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	g.POST("", perm(rbac.ActionCreate), func(c *gin.Context) {
		var req rbac.RoleInput
		if err := c.ShouldBindJSON(&req); err != nil {
			httputil.BindError(c, err)
			return
		}
		r, err := svc.CreateRole(c.Request.Context(), req)
		if err != nil {
			writeRoleError(c, err)
			return
		}
		c.JSON(http.StatusCreated, r)
	})

	g.GET("/:id", perm(rbac.ActionRead), func(c *gin.Context) {
		r, err := svc.GetRole(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeRoleError(c, err)
			return
		}
		c.JSON(http.StatusOK, r)
	})

	g.PUT("/:id", perm(rbac.ActionUpdate), func(c *gin.Context) {
		var req rbac.RoleInput
		if err := c.ShouldBindJSON(&req); err != nil {
			httputil.BindError(c, err)
			return
		}
		r, err := svc.UpdateRole(c.Request.Context(), c.Param("id"), req)
		if err != nil {
			writeRoleError(c, err)
			return
		}
		c.JSON(http.StatusOK, r)
	})

	g.DELETE("/:id", perm(rbac.ActionDelete), func(c *gin.Context) {
		if err := svc.DeleteRole(c.Request.Context(), c.Param("id")); err != nil {
			writeRoleError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}
