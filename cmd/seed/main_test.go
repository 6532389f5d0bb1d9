package main

import (
	"context"
	"testing"

	"github.com/debtdesk/backoffice/internal/config"
	"github.com/debtdesk/backoffice/internal/rbac"
	"github.com/debtdesk/backoffice/internal/telemarketing"
	"github.com/debtdesk/backoffice/internal/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	prospects := telemarketing.NewMemoryProspectRepository()
	settingsRepo := telemarketing.NewMemorySettingsRepository()
	s := &seeder{
		users: users.NewService(users.NewMemoryUserRepository()),
		roles: rbac.NewService(rbac.NewMemoryRepository()),
		settings: telemarketing.NewSettingsService(settingsRepo, prospects,
			config.TelemarketingConfig{MaxCallAttempts: 4, MaxBreakMinutes: 15, DailyCallTarget: 80}),
	}
	admin := users.NewUser{Username: "Admin", Name: "Administrator", Password: "admin-pass-1"}

	id, err := s.run(ctx, admin)
	require.NoError(t, err)
	ok, err := s.roles.Can(ctx, id, rbac.ModuleUsers, rbac.ActionDelete)
	require.NoError(t, err)
	assert.True(t, ok)

	st, err := settingsRepo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, st.MaxCallAttempts)

	again, err := s.run(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, id, again)
	names, err := s.roles.RoleNames(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, names)

	list, err := s.users.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
