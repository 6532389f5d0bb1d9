package handlers

import (
	"errors"
	"net/http"

	"github.com/debtdesk/backoffice/internal/rbac"
	"github.com/debtdesk/backoffice/internal/sessions"
	"github.com/debtdesk/backoffice/internal/users"
	"github.com/debtdesk/backoffice/pkg/httputil"
	"github.com/debtdesk/backoffice/pkg/logger"
	"github.com/debtdesk/backoffice/pkg/middleware"
	"github.com/gin-gonic/gin"
)

func writeUserError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, users.ErrNotFound), errors.Is(err, rbac.ErrRoleNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, users.ErrUsernameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, users.ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.Errorf("users: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// UsersHandler administers back-office accounts and their roles.
type UsersHandler struct {
	users    *users.Service
	roles    *rbac.Service
	sessions *sessions.Service
}

func NewUsersHandler(u *users.Service, roles *rbac.Service, s *sessions.Service) *UsersHandler {
	return &UsersHandler{users: u, roles: roles, sessions: s}
}

func (h *UsersHandler) Register(rg *gin.RouterGroup, az middleware.Authorizer) {
	perm := func(action string) gin.HandlerFunc {
		return middleware.RequirePermission(az, rbac.ModuleUsers, action)
	}
	g := rg.Group("/users")
	g.GET("", perm(rbac.ActionRead), h.list)
	g.POST("", perm(rbac.ActionCreate), h.create)
	g.GET("/:id", perm(rbac.ActionRead), h.get)
	g.PATCH("/:id", perm(rbac.ActionUpdate), h.update)
	g.PUT("/:id/password", perm(rbac.ActionUpdate), h.resetPassword)
	g.DELETE("/:id", perm(rbac.ActionDelete), h.delete)
	g.GET("/:id/roles", perm(rbac.ActionRead), h.getRoles)
	g.PUT("/:id/roles", perm(rbac.ActionUpdate), h.setRoles)
	g.GET("/:id/permissions", perm(rbac.ActionRead), h.permissions)
}

func (h *UsersHandler) list(c *gin.Context) {
	list, err := h.users.List(c.Request.Context())
	if err != nil {
		writeUserError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *UsersHandler) create(c *gin.Context) {
	var req struct {
		users.NewUser
		Roles []string `json:"roles"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BindError(c, err)
		return
	}
	ctx := c.Request.Context()
	u, err := h.users.Create(ctx, req.NewUser)
	if err != nil {
		writeUserError(c, err)
		return
	}
	if len(req.Roles) > 0 {
		if _, err := h.roles.AssignRoles(ctx, u.ID, req.Roles); err != nil {
			writeUserError(c, err)
			return
		}
	}
	logger.WithFields(logger.Fields{"user": u.ID, "by": httputil.Actor(c)}).Info("user created")
	c.JSON(http.StatusCreated, u)
}

func (h *UsersHandler) get(c *gin.Context) {
	u, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeUserError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *UsersHandler) update(c *gin.Context) {
	var req users.UserPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BindError(c, err)
		return
	}
	u, err := h.users.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeUserError(c, err)
		return
	}
	if !u.Active {
		h.revoke(c, u.ID)
	}
	c.JSON(http.StatusOK, u)
}

func (h *UsersHandler) resetPassword(c *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BindError(c, err)
		return
	}
	id := c.Param("id")
	if err := h.users.ResetPassword(c.Request.Context(), id, req.Password); err != nil {
		writeUserError(c, err)
		return
	}
	h.revoke(c, id)
	c.Status(http.StatusNoContent)
}

func (h *UsersHandler) delete(c *gin.Context) {
	id := c.Param("id")
	if id == httputil.Actor(c) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot delete your own account"})
		return
	}
	if err := h.users.Delete(c.Request.Context(), id); err != nil {
		writeUserError(c, err)
		return
	}
	if _, err := h.roles.AssignRoles(c.Request.Context(), id, nil); err != nil {
		logger.Warnf("clear roles of deleted user %s: %v", id, err)
	}
	h.revoke(c, id)
	c.Status(http.StatusNoContent)
}

// revoke drops refresh sessions; access tokens already issued run out their TTL.
func (h *UsersHandler) revoke(c *gin.Context, userID string) {
	if h.sessions == nil {
		return
	}
	if err := h.sessions.RevokeUser(c.Request.Context(), userID); err != nil {
		logger.Warnf("revoke sessions of %s: %v", userID, err)
	}
}

func (h *UsersHandler) getRoles(c *gin.Context) {
	roles, err := h.roles.UserRoles(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeUserError(c, err)
		return
	}
	c.JSON(http.StatusOK, roles)
}

func (h *UsersHandler) setRoles(c *gin.Context) {
	var req struct {
		RoleIDs []string `json:"roleIds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BindError(c, err)
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := h.users.Get(ctx, id); err != nil {
		writeUserError(c, err)
		return
	}
	ur, err := h.roles.AssignRoles(ctx, id, req.RoleIDs)
	if err != nil {
		writeUserError(c, err)
		return
	}
	c.JSON(http.StatusOK, ur)
}

func (h *UsersHandler) permissions(c *gin.Context) {
	perms, err := h.roles.EffectivePermissions(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeUserError(c, err)
		return
	}
	c.JSON(http.StatusOK, perms)
}
