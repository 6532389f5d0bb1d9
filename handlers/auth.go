package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/debtdesk/backoffice/internal/config"
	"github.com/debtdesk/backoffice/internal/models"
	"github.com/debtdesk/backoffice/internal/oidc"
	"github.com/debtdesk/backoffice/internal/rbac"
	"github.com/debtdesk/backoffice/internal/sessions"
	"github.com/debtdesk/backoffice/internal/tokens"
	"github.com/debtdesk/backoffice/internal/users"
	"github.com/debtdesk/backoffice/pkg/httputil"
	"github.com/debtdesk/backoffice/pkg/logger"
	"github.com/debtdesk/backoffice/pkg/middleware"
	"github.com/gin-gonic/gin"
)

// LoginRequest selects local password login or a Keycloak authorization code exchange.
type LoginRequest struct {
	Mode        string `json:"mode" binding:"required"` // "password" | "auth_code"
	Username    string `json:"username"`
	Password    string `json:"password"`
	Code        string `json:"code"`
	RedirectURI string `json:"redirect_uri"`
}

// AuthHandler holds dependencies
type AuthHandler struct {
	cfg         *config.Config
	usersSvc    *users.Service
	sessionsSvc *sessions.Service
	roles       *rbac.Service
	keycloak    *oidc.Keycloak
}

// NewAuthHandler wires the auth endpoints. kc may be nil when Keycloak is not configured.
func NewAuthHandler(cfg *config.Config, u *users.Service, s *sessions.Service, roles *rbac.Service, kc *oidc.Keycloak) *AuthHandler {
	return &AuthHandler{cfg: cfg, usersSvc: u, sessionsSvc: s, roles: roles, keycloak: kc}
}

// Register routes under /auth
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	a := rg.Group("/auth")
	a.POST("/login", h.Login)
	a.POST("/refresh", h.Refresh)
	a.POST("/logout", h.Logout)
}

// RegisterProtected mounts endpoints that need a verified token.
func (h *AuthHandler) RegisterProtected(rg *gin.RouterGroup) {
	rg.GET("/auth/me", h.Me)
}

func (h *AuthHandler) accessTTL() time.Duration {
	if h.cfg.JWT.AccessTokenTTL > 0 {
		return h.cfg.JWT.AccessTokenTTL
	}
	return 15 * time.Minute
}

func (h *AuthHandler) refreshTTL() time.Duration {
	if h.cfg.JWT.RefreshTokenTTL > 0 {
		return h.cfg.JWT.RefreshTokenTTL
	}
	return 7 * 24 * time.Hour
}

// Login authenticates a user and returns an access token plus a refresh token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BindError(c, err)
		return
	}

	var (
		u   *models.User
		err error
	)
	switch req.Mode {
	case "password":
		u, err = h.usersSvc.Authenticate(c.Request.Context(), req.Username, req.Password)
		if errors.Is(err, users.ErrInvalidCredentials) || errors.Is(err, users.ErrInactive) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed", "details": err.Error()})
			return
		}
	case "auth_code":
		if h.keycloak == nil {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "Keycloak not configured"})
			return
		}
		if req.Code == "" || req.RedirectURI == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "code and redirect_uri required for auth_code mode"})
			return
		}
		u, err = h.codeLogin(c, req.Code, req.RedirectURI)
		if err != nil {
			logger.Errorf("auth-code login failed (redirect_uri=%q): %v", req.RedirectURI, err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed", "details": err.Error()})
			return
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported mode"})
		return
	}
	if err != nil {
		logger.Errorf("login: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	rft, err := h.sessionsSvc.CreateSession(c.Request.Context(), u.ID, c.Request.UserAgent(), h.refreshTTL())
	if err != nil {
		logger.Errorf("failed to create session: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}
	access, err := h.issue(c, u)
	if err != nil {
		logger.Errorf("failed to create access token: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create access token"})
		return
	}
	logger.WithFields(logger.Fields{"user": u.ID, "mode": req.Mode}).Info("login")
	c.JSON(http.StatusOK, gin.H{
		"access_token":  access,
		"refresh_token": rft,
		"expires_in":    int(h.accessTTL().Seconds()),
		"user":          u,
	})
}

func (h *AuthHandler) codeLogin(c *gin.Context, code, redirectURI string) (*models.User, error) {
	ctx := c.Request.Context()
	tr, err := h.keycloak.ExchangeCode(ctx, code, redirectURI)
	if err != nil {
		return nil, err
	}
	claims, err := h.keycloak.IDTokenClaims(ctx, tr.IDToken)
	if err != nil {
		return nil, fmt.Errorf("invalid id token: %w", err)
	}
	u, err := h.usersSvc.UpsertFromClaims(ctx, claims)
	if err != nil {
		return nil, fmt.Errorf("user upsert: %w", err)
	}
	if u == nil {
		return nil, errors.New("id token has no subject")
	}
	return u, nil
}

func (h *AuthHandler) issue(c *gin.Context, u *models.User) (string, error) {
	var roles []string
	if h.roles != nil {
		var err error
		roles, err = h.roles.RoleNames(c.Request.Context(), u.ID)
		if err != nil {
			return "", err
		}
	}
	return tokens.GenerateAccessToken(h.cfg, u, roles, h.accessTTL())
}

// Refresh accepts a refresh token and returns a new access token
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BindError(c, err)
		return
	}
	sess, err := h.sessionsSvc.ValidateRefresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		logger.Errorf("refresh validation: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "validation failed"})
		return
	}
	if sess == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	u, err := h.usersSvc.Get(c.Request.Context(), sess.UserID)
	if errors.Is(err, users.ErrNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user no longer exists"})
		return
	}
	if err != nil {
		logger.Errorf("refresh user lookup: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user lookup failed"})
		return
	}
	if !u.Active {
		c.JSON(http.StatusUnauthorized, gin.H{"error": users.ErrInactive.Error()})
		return
	}
	access, err := h.issue(c, u)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create access token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": access, "expires_in": int(h.accessTTL().Seconds())})
}

// Logout invalidates the refresh token and blacklists the presented access token.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BindError(c, err)
		return
	}
	if at, ok := middleware.BearerToken(c.GetHeader("Authorization")); ok {
		if exp, err := parseExpFromJWT(at); err == nil {
			if err := sessions.BlacklistAccessToken(c.Request.Context(), at, time.Until(exp)); err != nil {
				logger.Errorf("blacklist access token: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to blacklist access token"})
				return
			}
		}
	}
	if err := h.sessionsSvc.DeleteRefresh(c.Request.Context(), req.RefreshToken); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me returns the caller's account and effective permissions.
func (h *AuthHandler) Me(c *gin.Context) {
	actor := httputil.Actor(c)
	u, err := h.usersSvc.Get(c.Request.Context(), actor)
	if errors.Is(err, users.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		logger.Errorf("me: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user lookup failed"})
		return
	}
	perms := []rbac.Permission{}
	if h.roles != nil {
		if perms, err = h.roles.EffectivePermissions(c.Request.Context(), u.ID); err != nil {
			logger.Errorf("me permissions: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "permission lookup failed"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"user": u, "permissions": perms})
}

// parseExpFromJWT decodes the JWT payload and returns the `exp` claim.
// The signature is not checked; the result only sizes the blacklist TTL.
func parseExpFromJWT(tok string) (time.Time, error) {
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("invalid token")
	}
	b, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return time.Time{}, err
	}
	var claims struct {
		Exp *json.Number `json:"exp"`
	}
	if err := json.Unmarshal(b, &claims); err != nil {
		return time.Time{}, err
	}
	if claims.Exp == nil {
		return time.Time{}, fmt.Errorf("exp claim not present")
	}
	f, err := claims.Exp.Float64()
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(f), 0), nil
}
