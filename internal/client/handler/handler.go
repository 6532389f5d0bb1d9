package handler

import (
	"errors"
	"net/http"

	"github.com/debtdesk/backoffice/internal/client"
	"github.com/debtdesk/backoffice/internal/client/service"
	"github.com/debtdesk/backoffice/internal/rbac"
	"github.com/debtdesk/backoffice/pkg/httputil"
	"github.com/debtdesk/backoffice/pkg/logger"
	"github.com/debtdesk/backoffice/pkg/middleware"
	"github.com/gin-gonic/gin"
)

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, service.ErrInvalid), errors.Is(err, service.ErrInvalidPhone):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.Errorf("clients: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// RegisterClientRoutes mounts the client intake endpoints on r.
func RegisterClientRoutes(r gin.IRouter, svc service.Service, az middleware.Authorizer) {
	perm := func(action string) gin.HandlerFunc {
		return middleware.RequirePermission(az, rbac.ModuleClients, action)
	}

	r.GET("/api/clients", perm(rbac.ActionRead), func(c *gin.Context) {
		list, err := svc.List(c.Request.Context(), client.Filter{
			Search: c.Query("q"),
			Limit:  httputil.IntQuery(c, "limit", 50),
			Offset: httputil.IntQuery(c, "offset", 0),
		})
		if err != nil {
			writeError(c, err)
			return
		}
		out := make([]gin.H, 0, len(list))
		for _, cl := range list {
			out = append(out, gin.H{
				"id":               cl.ID,
				"name":             cl.Name,
				"phone":            cl.Phone,
				"totalOutstanding": cl.TotalOutstanding(),
				"updatedAt":        cl.UpdatedAt,
			})
		}
		c.JSON(http.StatusOK, out)
	})

	r.POST("/api/clients", perm(rbac.ActionCreate), func(c *gin.Context) {
		var req client.Client
		if err := c.ShouldBindJSON(&req); err != nil {
			httputil.BindError(c, err)
			return
		}
		req.ID = ""
		req.CreatedBy = httputil.Actor(c)
		id, err := svc.Create(c.Request.Context(), &req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": id, "name": req.Name, "phone": req.Phone})
	})

	r.GET("/api/clients/:id", perm(rbac.ActionRead), func(c *gin.Context) {
		cl, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, cl)
	})

	r.PATCH("/api/clients/:id", perm(rbac.ActionUpdate), func(c *gin.Context) {
		var req client.Patch
		if err := c.ShouldBindJSON(&req); err != nil {
			httputil.BindError(c, err)
			return
		}
		cl, err := svc.Update(c.Request.Context(), c.Param("id"), req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, cl)
	})

	r.DELETE("/api/clients/:id", perm(rbac.ActionDelete), func(c *gin.Context) {
		if err := svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}
