package handlers

import (
	"errors"
	"net/http"

	"github.com/debtdesk/backoffice/internal/rbac"
	"github.com/debtdesk/backoffice/internal/statements"
	"github.com/debtdesk/backoffice/pkg/httputil"
	"github.com/debtdesk/backoffice/pkg/logger"
	"github.com/debtdesk/backoffice/pkg/middleware"
	"github.com/gin-gonic/gin"
)

func writeStatementError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, statements.ErrNotFound), errors.Is(err, statements.ErrClientNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, statements.ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, statements.ErrDuplicateNumber):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger.Errorf("statements: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// RegisterStatementRoutes mounts the statement letter endpoints.
func RegisterStatementRoutes(rg *gin.RouterGroup, svc *statements.Service, az middleware.Authorizer) {
	perm := func(action string) gin.HandlerFunc {
		return middleware.RequirePermission(az, rbac.ModuleStatements, action)
	}
	g := rg.Group("/statements")

	g.GET("", perm(rbac.ActionRead), func(c *gin.Context) {
		list, err := svc.List(c.Request.Context(), c.Query("clientId"))
		if err != nil {
			writeStatementError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	g.POST("", perm(rbac.ActionCreate), func(c *gin.Context) {
		var req statements.CreateInput
		if err := c.ShouldBindJSON(&req); err != nil {
			httputil.BindError(c, err)
			return
		}
		st, err := svc.Create(c.Request.Context(), req, httputil.Actor(c))
		if err != nil {
			writeStatementError(c, err)
			return
		}
		c.JSON(http.StatusCreated, st)
	})

	g.GET("/:id", perm(rbac.ActionRead), func(c *gin.Context) {
		st, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeStatementError(c, err)
			return
		}
		c.JSON(http.StatusOK, st)
	})

	g.PUT("/:id/body", perm(rbac.ActionUpdate), func(c *gin.Context) {
		var req struct {
			Body string `json:"body" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			httputil.BindError(c, err)
			return
		}
		st, err := svc.UpdateBody(c.Request.Context(), c.Param("id"), req.Body)
		if err != nil {
			writeStatementError(c, err)
			return
		}
		c.JSON(http.StatusOK, st)
	})

	// render returns JSON by default; ?format=html streams the document itself
	g.POST("/:id/render", perm(rbac.ActionExport), func(c *gin.Context) {
		out, err := svc.Render(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeStatementError(c, err)
			return
		}
		if c.Query("format") == "html" && out.HTML != "" {
			c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(out.HTML))
			return
		}
		c.JSON(http.StatusOK, out)
	})

	g.DELETE("/:id", perm(rbac.ActionDelete), func(c *gin.Context) {
		if err := svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
			writeStatementError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}
