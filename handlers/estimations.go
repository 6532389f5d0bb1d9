package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/debtdesk/backoffice/internal/estimation"
	"github.com/debtdesk/backoffice/internal/rbac"
	"github.com/debtdesk/backoffice/internal/spreadsheet"
	"github.com/debtdesk/backoffice/pkg/httputil"
	"github.com/debtdesk/backoffice/pkg/logger"
	"github.com/debtdesk/backoffice/pkg/middleware"
	"github.com/gin-gonic/gin"
)

func writeEstimationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, estimation.ErrNotFound), errors.Is(err, estimation.ErrClientNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, estimation.ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.Errorf("estimations: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// sendSpreadsheet writes an xlsx attachment named <base>-<date>.xlsx.
func sendSpreadsheet(c *gin.Context, base string, buf *bytes.Buffer) {
	name := fmt.Sprintf("%s-%s.xlsx", base, time.Now().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(http.StatusOK, spreadsheet.ContentType, buf.Bytes())
}

// RegisterEstimationRoutes mounts the settlement estimation endpoints.
func RegisterEstimationRoutes(rg *gin.RouterGroup, svc *estimation.Service, az middleware.Authorizer) {
	perm := func(action string) gin.HandlerFunc {
		return middleware.RequirePermission(az, rbac.ModuleEstimations, action)
	}
	g := rg.Group("/estimations")

	g.POST("/calculate", perm(rbac.ActionRead), func(c *gin.Context) {
		var req estimation.Input
		if err := c.ShouldBindJSON(&req); err != nil {
			httputil.BindError(c, err)
			return
		}
		in, res, err := svc.Calculate(c.Request.Context(), req)
		if err != nil {
			writeEstimationError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"input": in, "result": res})
	})

	g.GET("", perm(rbac.ActionRead), func(c *gin.Context) {
		list, err := svc.List(c.Request.Context(), c.Query("clientId"))
		if err != nil {
			writeEstimationError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	g.POST("", perm(rbac.ActionCreate), func(c *gin.Context) {
		var req estimation.Input
		if err := c.ShouldBindJSON(&req); err != nil {
			httputil.BindError(c, err)
			return
		}
		rec, err := svc.Save(c.Request.Context(), req, httputil.Actor(c))
		if err != nil {
			writeEstimationError(c, err)
			return
		}
		c.JSON(http.StatusCreated, rec)
	})

	g.GET("/export", perm(rbac.ActionExport), func(c *gin.Context) {
		var buf bytes.Buffer
		if err := svc.Export(c.Request.Context(), &buf, c.Query("clientId")); err != nil {
			writeEstimationError(c, err)
			return
		}
		sendSpreadsheet(c, "estimasi", &buf)
	})

	g.GET("/:id", perm(rbac.ActionRead), func(c *gin.Context) {
		rec, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeEstimationError(c, err)
			return
		}
		c.JSON(http.StatusOK, rec)
	})

	g.DELETE("/:id", perm(rbac.ActionDelete), func(c *gin.Context) {
		if err := svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
			writeEstimationError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}
