package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/debtdesk/backoffice/internal/rbac"
	"github.com/debtdesk/backoffice/internal/spreadsheet"
	"github.com/debtdesk/backoffice/internal/telemarketing"
	"github.com/debtdesk/backoffice/pkg/httputil"
	"github.com/debtdesk/backoffice/pkg/logger"
	"github.com/debtdesk/backoffice/pkg/middleware"
	"github.com/gin-gonic/gin"
)

const maxImportBytes = 10 << 20

func writeTelemarketingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, telemarketing.ErrProspectNotFound),
		errors.Is(err, telemarketing.ErrSessionNotFound),
		errors.Is(err, telemarketing.ErrCallLogNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, telemarketing.ErrNotSessionOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, telemarketing.ErrInvalidProspect),
		errors.Is(err, telemarketing.ErrInvalidPhone),
		errors.Is(err, telemarketing.ErrUnknownStatus),
		errors.Is(err, telemarketing.ErrUnknownSource),
		errors.Is(err, telemarketing.ErrInvalidSettings),
		errors.Is(err, telemarketing.ErrInvalidCallback),
		errors.Is(err, telemarketing.ErrNoAgent),
		errors.Is(err, spreadsheet.ErrEmpty):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, telemarketing.ErrDuplicatePhone),
		errors.Is(err, telemarketing.ErrNotCallable),
		errors.Is(err, telemarketing.ErrProspectInCall),
		errors.Is(err, telemarketing.ErrStatusInUse),
		errors.Is(err, telemarketing.ErrSessionActive),
		errors.Is(err, telemarketing.ErrSessionEnded),
		errors.Is(err, telemarketing.ErrOnBreak),
		errors.Is(err, telemarketing.ErrNotOnBreak),
		errors.Is(err, telemarketing.ErrCallInProgress),
		errors.Is(err, telemarketing.ErrNoActiveCall),
		errors.Is(err, telemarketing.ErrNoProspects),
		errors.Is(err, telemarketing.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger.Errorf("telemarketing: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// timeQuery accepts RFC3339 or a plain date. A plain "to" date covers the whole day.
func timeQuery(c *gin.Context, key string) (time.Time, error) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, errors.New(key + " must be RFC3339 or YYYY-MM-DD")
	}
	if key == "to" {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func timeRangeQuery(c *gin.Context) (time.Time, time.Time, bool) {
	from, err := timeQuery(c, "from")
	if err == nil {
		var to time.Time
		if to, err = timeQuery(c, "to"); err == nil {
			return from, to, true
		}
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	return time.Time{}, time.Time{}, false
}

// TelemarketingHandler exposes settings, prospects, call sessions and call logs.
type TelemarketingHandler struct {
	settings  *telemarketing.SettingsService
	prospects *telemarketing.ProspectService
	engine    *telemarketing.Engine
	logs      *telemarketing.CallLogService
}

func NewTelemarketingHandler(settings *telemarketing.SettingsService, prospects *telemarketing.ProspectService, engine *telemarketing.Engine, logs *telemarketing.CallLogService) *TelemarketingHandler {
	return &TelemarketingHandler{settings: settings, prospects: prospects, engine: engine, logs: logs}
}

func (h *TelemarketingHandler) Register(rg *gin.RouterGroup, az middleware.Authorizer) {
	perm := func(module, action string) gin.HandlerFunc {
		return middleware.RequirePermission(az, module, action)
	}

	st := rg.Group("/telemarketing/settings")
	st.GET("", perm(rbac.ModuleSettings, rbac.ActionRead), h.getSettings)
	st.PUT("", perm(rbac.ModuleSettings, rbac.ActionUpdate), h.updateSettings)
	st.POST("/statuses/rename", perm(rbac.ModuleSettings, rbac.ActionUpdate), h.rename(true))
	st.POST("/sources/rename", perm(rbac.ModuleSettings, rbac.ActionUpdate), h.rename(false))

	p := rg.Group("/prospects")
	p.GET("", perm(rbac.ModuleProspects, rbac.ActionRead), h.listProspects)
	p.POST("", perm(rbac.ModuleProspects, rbac.ActionCreate), h.createProspect)
	p.POST("/import", perm(rbac.ModuleProspects, rbac.ActionCreate), h.importProspects)
	p.GET("/export", perm(rbac.ModuleProspects, rbac.ActionExport), h.exportProspects)
	p.POST("/assign", perm(rbac.ModuleProspects, rbac.ActionUpdate), h.assignProspects)
	p.GET("/:id", perm(rbac.ModuleProspects, rbac.ActionRead), h.getProspect)
	p.PATCH("/:id", perm(rbac.ModuleProspects, rbac.ActionUpdate), h.updateProspect)
	p.DELETE("/:id", perm(rbac.ModuleProspects, rbac.ActionDelete), h.deleteProspect)

	tm := rg.Group("/telemarketing")
	read := perm(rbac.ModuleTelemarketing, rbac.ActionRead)
	work := perm(rbac.ModuleTelemarketing, rbac.ActionUpdate)
	tm.GET("/queue", read, h.queue)
	tm.GET("/sessions", read, h.listSessions)
	tm.POST("/sessions", perm(rbac.ModuleTelemarketing, rbac.ActionCreate), h.startSession)
	tm.GET("/sessions/active", read, h.activeSession)
	tm.GET("/sessions/:id", read, h.getSession)
	tm.GET("/sessions/:id/stats", read, h.stats)
	tm.POST("/sessions/:id/calls", work, h.startCall)
	tm.POST("/sessions/:id/skip", work, h.skip)
	tm.POST("/sessions/:id/disposition", work, h.disposition)
	tm.POST("/sessions/:id/break/start", work, h.startBreak)
	tm.POST("/sessions/:id/break/end", work, h.endBreak)
	tm.POST("/sessions/:id/end", work, h.endSession)

	cl := rg.Group("/call-logs")
	cl.GET("", perm(rbac.ModuleCallLogs, rbac.ActionRead), h.listCallLogs)
	cl.GET("/export", perm(rbac.ModuleCallLogs, rbac.ActionExport), h.exportCallLogs)
	cl.GET("/:id", perm(rbac.ModuleCallLogs, rbac.ActionRead), h.getCallLog)
}

func (h *TelemarketingHandler) getSettings(c *gin.Context) {
	s, err := h.settings.Get(c.Request.Context())
	if err != nil {
		writeTelemarketingError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *TelemarketingHandler) updateSettings(c *gin.Context) {
	var req telemarketing.Settings
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BindError(c, err)
		return
	}
	s, err := h.settings.Update(c.Request.Context(), req)
	if err != nil {
		writeTelemarketingError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *TelemarketingHandler) rename(status bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			From string `json:"from" binding:"required"`
			To   string `json:"to" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			httputil.BindError(c, err)
			return
		}
		rename := h.settings.RenameSource
		if status {
			rename = h.settings.RenameStatus
		}
		s, n, err := rename(c.Request.Context(), req.From, req.To)
		if err != nil {
			writeTelemarketingError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"settings": s, "prospectsUpdated": n})
	}
}

func prospectFilter(c *gin.Context) telemarketing.ProspectFilter {
	return telemarketing.ProspectFilter{
		Status:     c.Query("status"),
		Source:     c.Query("source"),
		AssignedTo: c.Query("assignedTo"),
		Unassigned: c.Query("unassigned") == "true",
		Search:     c.Query("q"),
		Limit:      httputil.IntQuery(c, "limit", 50),
		Offset:     httputil.IntQuery(c, "offset", 0),
	}
}

func (h *TelemarketingHandler) listProspects(c *gin.Context) {
	list, err := h.prospects.List(c.Request.Context(), prospectFilter(c))
	if err != nil {
		writeTelemarketingError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *TelemarketingHandler) createProspect(c *gin.Context) {
	var req telemarketing.NewProspect
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BindError(c, err)
		return
	}
	p, err := h.prospects.Create(c.Request.Context(), req, httputil.Actor(c))
	if err != nil {
		writeTelemarketingError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *TelemarketingHandler) importProspects(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()
	res, err := h.prospects.Import(c.Request.Context(), f, httputil.Actor(c))
	if err != nil {
		writeTelemarketingError(c, err)
		return
	}
	logger.WithFields(logger.Fields{"file": fh.Filename, "imported": res.Imported, "skipped": res.Skipped}).Info("prospects imported")
	c.JSON(http.StatusOK, res)
}

func (h *TelemarketingHandler) exportProspects(c *gin.Context) {
	f := prospectFilter(c)
	f.Limit, f.Offset = 0, 0
	var buf bytes.Buffer
	if err := h.prospects.Export(c.Request.Context(), &buf, f); err != nil {
		writeTelemarketingError(c, err)
		return
	}
	sendSpreadsheet(c, "prospects", &buf)
}

func (h *TelemarketingHandler) assignProspects(c *gin.Context) {
	var req struct {
		IDs     []string `json:"ids" binding:"required,min=1"`
		AgentID string   `json:"agentId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BindError(c, err)
		return
	}
	n, err := h.prospects.Assign(c.Request.Context(), req.IDs, req.AgentID)
	if err != nil {
		writeTelemarketingError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (h *TelemarketingHandler) getProspect(c *gin.Context) {
	p, err := h.prospects.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeTelemarketingError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *TelemarketingHandler) updateProspect(c *gin.Context) {
	var req telemarketing.ProspectPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BindError(c, err)
		return
	}
	p, err := h.prospects.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeTelemarketingError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *TelemarketingHandler) deleteProspect(c *gin.Context) {
	if err := h.prospects.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeTelemarketingError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TelemarketingHandler) queue(c *gin.Context) {
	list, err := h.engine.Queue(c.Request.Context(), httputil.Actor(c), httputil.IntQuery(c, "limit", 20))
	if err != nil {
		writeTelemarketingError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *TelemarketingHandler) listSessions(c *gin.Context) {
	from, to, ok := timeRangeQuery(c)
	if !ok {
		return
	}
	list, err := h.engine.ListSessions(c.Request.Context(), telemarketing.SessionFilter{
		AgentID: c.Query("agentId"),
		Status:  c.Query("status"),
		From:    from,
		To:      to,
		Limit:   httputil.IntQuery(c, "limit", 50),
	})
	if err != nil {
		writeTelemarketingError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *TelemarketingHandler) startSession(c *gin.Context) {
	s, err := h.engine.StartSession(c.Request.Context(), httputil.Actor(c))
	if err != nil {
		writeTelemarketingError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

func (h *TelemarketingHandler) activeSession(c *gin.Context) {
	s, err := h.engine.ActiveSession(c.Request.Context(), httputil.Actor(c))
	if err != nil {
		writeTelemarketingError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *TelemarketingHandler) getSession(c *gin.Context) {
	s, err := h.engine.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeTelemarketingError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *TelemarketingHandler) stats(c *gin.Context) {
	s, err := h.engine.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeTelemarketingError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *TelemarketingHandler) startCall(c *gin.Context) {
	var req struct {
		ProspectID string `json:"prospectId"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httputil.BindError(c, err)
			return
		}
	}
	log, err := h.engine.StartCall(c.Request.Context(), c.Param("id"), httputil.Actor(c), req.ProspectID)
	if err != nil {
		writeTelemarketingError(c, err)
		return
	}
	c.JSON(http.StatusCreated, log)
}

func (h *TelemarketingHandler) skip(c *gin.Context) {
	log, err := h.engine.SkipToNext(c.Request.Context(), c.Param("id"), httputil.Actor(c))
	if err != nil {
		writeTelemarketingError(c, err)
		return
	}
	c.JSON(http.StatusCreated, log)
}

func (h *TelemarketingHandler) disposition(c *gin.Context) {
	var req telemarketing.Disposition
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BindError(c, err)
		return
	}
	res, err := h.engine.RecordDisposition(c.Request.Context(), c.Param("id"), httputil.Actor(c), req)
	if err != nil {
		writeTelemarketingError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *TelemarketingHandler) sessionAction(c *gin.Context, fn func(ctx context.Context, sessionID, agentID string) (*telemarketing.CallSession, error)) {
	s, err := fn(c.Request.Context(), c.Param("id"), httputil.Actor(c))
	if err != nil {
		writeTelemarketingError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *TelemarketingHandler) startBreak(c *gin.Context) { h.sessionAction(c, h.engine.StartBreak) }
func (h *TelemarketingHandler) endBreak(c *gin.Context)   { h.sessionAction(c, h.engine.EndBreak) }
func (h *TelemarketingHandler) endSession(c *gin.Context) { h.sessionAction(c, h.engine.EndSession) }

func callLogFilter(c *gin.Context) (telemarketing.CallLogFilter, bool) {
	from, to, ok := timeRangeQuery(c)
	if !ok {
		return telemarketing.CallLogFilter{}, false
	}
	return telemarketing.CallLogFilter{
		SessionID:  c.Query("sessionId"),
		AgentID:    c.Query("agentId"),
		ProspectID: c.Query("prospectId"),
		From:       from,
		To:         to,
		Limit:      httputil.IntQuery(c, "limit", 100),
	}, true
}

func (h *TelemarketingHandler) listCallLogs(c *gin.Context) {
	f, ok := callLogFilter(c)
	if !ok {
		return
	}
	list, err := h.logs.List(c.Request.Context(), f)
	if err != nil {
		writeTelemarketingError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *TelemarketingHandler) exportCallLogs(c *gin.Context) {
	f, ok := callLogFilter(c)
	if !ok {
		return
	}
	f.Limit = 0
	var buf bytes.Buffer
	if err := h.logs.Export(c.Request.Context(), &buf, f); err != nil {
		writeTelemarketingError(c, err)
		return
	}
	sendSpreadsheet(c, "call-logs", &buf)
}

func (h *TelemarketingHandler) getCallLog(c *gin.Context) {
	l, err := h.logs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeTelemarketingError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}
