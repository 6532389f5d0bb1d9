package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/debtdesk/backoffice/internal/models"
	"github.com/debtdesk/backoffice/internal/rbac"
	"github.com/debtdesk/backoffice/internal/sessions"
	"github.com/debtdesk/backoffice/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type adminFixture struct {
	router   *gin.Engine
	users    *users.Service
	sessions *sessions.Service
	adminID  string
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	ctx := context.Background()
	uSvc := users.NewService(users.NewMemoryUserRepository())
	roles := rbac.NewService(rbac.NewMemoryRepository())
	require.NoError(t, roles.SeedDefaults(ctx))
	admin, err := uSvc.Create(ctx, users.NewUser{Username: "boss", Name: "Boss", Password: "boss-pass-1"})
	require.NoError(t, err)
	_, err = roles.AssignRoles(ctx, admin.ID, []string{"admin"})
	require.NoError(t, err)
	sSvc := sessions.NewService(sessions.NewMemoryRepository())

	r, api := actorRouter()
	NewUsersHandler(uSvc, roles, sSvc).Register(api, roles)
	RegisterRoleRoutes(api, roles, roles)
	return &adminFixture{router: r, users: uSvc, sessions: sSvc, adminID: admin.ID}
}

func TestUsersAdministration(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	w := callJSON(f.router, http.MethodPost, "/api/users", f.adminID,
		`{"username":"Dewi","name":"Dewi","email":"dewi@example.com","password":"dewi-pass-1","roles":["telemarketer"]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	dewi := decode[models.User](t, w)
	assert.Equal(t, "dewi", dewi.Username)
	assert.True(t, dewi.Active)
	assert.NotContains(t, w.Body.String(), "passwordHash")

	w = callJSON(f.router, http.MethodPost, "/api/users", f.adminID, `{"username":"dewi","name":"Other","password":"other-pass-1"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	w = callJSON(f.router, http.MethodPost, "/api/users", f.adminID, `{"username":"x","name":"X","password":"short"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = callJSON(f.router, http.MethodPost, "/api/users", f.adminID, `{"username":"budi","name":"Budi","password":"budi-pass-1","roles":["nope"]}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// a telemarketer cannot administer users
	w = callJSON(f.router, http.MethodGet, "/api/users", dewi.ID, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = callJSON(f.router, http.MethodGet, "/api/users", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = callJSON(f.router, http.MethodGet, "/api/users/"+dewi.ID+"/roles", f.adminID, "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[[]rbac.Role](t, w)
	require.Len(t, got, 1)
	assert.Equal(t, "telemarketer", got[0].ID)

	w = callJSON(f.router, http.MethodPut, "/api/users/"+dewi.ID+"/roles", f.adminID, `{"roleIds":["supervisor"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	w = callJSON(f.router, http.MethodGet, "/api/users/"+dewi.ID+"/permissions", f.adminID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"module":"clients"`)
	w = callJSON(f.router, http.MethodPut, "/api/users/missing/roles", f.adminID, `{"roleIds":["supervisor"]}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// deactivating drops refresh sessions
	refresh, err := f.sessions.CreateSession(ctx, dewi.ID, "test", time.Hour)
	require.NoError(t, err)
	w = callJSON(f.router, http.MethodPatch, "/api/users/"+dewi.ID, f.adminID, `{"active":false}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[models.User](t, w).Active)
	sess, err := f.sessions.ValidateRefresh(ctx, refresh)
	require.NoError(t, err)
	assert.Nil(t, sess)

	w = callJSON(f.router, http.MethodPut, "/api/users/"+dewi.ID+"/password", f.adminID, `{"password":"new-pass-123"}`)
	require.Equal(t, http.StatusNoContent, w.Code)
	_, err = f.users.Authenticate(ctx, "dewi", "new-pass-123")
	assert.ErrorIs(t, err, users.ErrInactive)

	w = callJSON(f.router, http.MethodDelete, "/api/users/"+f.adminID, f.adminID, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = callJSON(f.router, http.MethodDelete, "/api/users/"+dewi.ID, f.adminID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = callJSON(f.router, http.MethodGet, "/api/users/"+dewi.ID, f.adminID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoleAdministration(t *testing.T) {
	f := newAdminFixture(t)

	w := callJSON(f.router, http.MethodGet, "/api/permissions/catalog", f.adminID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"telemarketing"`)

	w = callJSON(f.router, http.MethodPost, "/api/roles", f.adminID,
		`{"name":"Auditor","permissions":[{"module":"call_logs","actions":["read","export"]}]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	auditor := decode[rbac.Role](t, w)
	assert.False(t, auditor.System)

	w = callJSON(f.router, http.MethodPost, "/api/roles", f.adminID, `{"name":"Auditor"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	w = callJSON(f.router, http.MethodPost, "/api/roles", f.adminID,
		`{"name":"Broken","permissions":[{"module":"nowhere","actions":["read"]}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = callJSON(f.router, http.MethodPut, "/api/roles/"+auditor.ID, f.adminID,
		`{"name":"Auditor","description":"Reads call logs","permissions":[{"module":"call_logs","actions":["read"]}]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Reads call logs", decode[rbac.Role](t, w).Description)

	w = callJSON(f.router, http.MethodGet, "/api/roles", f.adminID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]rbac.Role](t, w), 4)

	w = callJSON(f.router, http.MethodDelete, "/api/roles/admin", f.adminID, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	w = callJSON(f.router, http.MethodDelete, "/api/roles/"+auditor.ID, f.adminID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = callJSON(f.router, http.MethodGet, "/api/roles/"+auditor.ID, f.adminID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
