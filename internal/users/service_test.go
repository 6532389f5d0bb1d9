package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateAndAuthenticate(t *testing.T) {
	svc := NewService(NewMemoryUserRepository())
	ctx := context.Background()

	u, err := svc.Create(ctx, NewUser{Username: " Agent01 ", Name: "Agent One", Email: "A1@Example.com", Password: "rahasia123"})
	require.NoError(t, err)
	require.Equal(t, "agent01", u.Username)
	require.Equal(t, "a1@example.com", u.Email)
	require.NotEqual(t, "rahasia123", u.PasswordHash)

	got, err := svc.Authenticate(ctx, "AGENT01", "rahasia123")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	_, err = svc.Authenticate(ctx, "agent01", "wrong-pass")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "nobody", "rahasia123")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Create(ctx, NewUser{Username: "agent01", Name: "Dup", Password: "rahasia123"})
	require.ErrorIs(t, err, ErrUsernameTaken)
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(NewMemoryUserRepository())
	_, err := svc.Create(context.Background(), NewUser{Username: "ab", Name: "x", Password: "short"})
	require.ErrorIs(t, err, ErrInvalid)
}

func TestDeactivatedUserCannotLogin(t *testing.T) {
	svc := NewService(NewMemoryUserRepository())
	ctx := context.Background()
	u, err := svc.Create(ctx, NewUser{Username: "agent02", Name: "Agent Two", Password: "rahasia123"})
	require.NoError(t, err)

	inactive := false
	_, err = svc.Update(ctx, u.ID, UserPatch{Active: &inactive})
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, "agent02", "rahasia123")
	require.ErrorIs(t, err, ErrInactive)
}

func TestResetPassword(t *testing.T) {
	svc := NewService(NewMemoryUserRepository())
	ctx := context.Background()
	u, err := svc.Create(ctx, NewUser{Username: "agent03", Name: "Agent Three", Password: "rahasia123"})
	require.NoError(t, err)

	require.ErrorIs(t, svc.ResetPassword(ctx, u.ID, "short"), ErrInvalid)
	require.NoError(t, svc.ResetPassword(ctx, u.ID, "baru-sekali-456"))

	_, err = svc.Authenticate(ctx, "agent03", "rahasia123")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "agent03", "baru-sekali-456")
	require.NoError(t, err)

	require.ErrorIs(t, svc.ResetPassword(ctx, "missing", "baru-sekali-456"), ErrNotFound)
}

func TestUpsertFromClaims(t *testing.T) {
	svc := NewService(NewMemoryUserRepository())
	ctx := context.Background()
	claims := map[string]interface{}{
		"sub":                "sub-123",
		"email":              "x@example.com",
		"name":               "X User",
		"preferred_username": "xuser",
	}

	u, err := svc.UpsertFromClaims(ctx, claims)
	require.NoError(t, err)
	require.NotNil(t, u)
	require.Equal(t, "sub-123", u.Sub)
	require.Equal(t, "xuser", u.Username)
	require.NotEmpty(t, u.ID)
	require.False(t, u.CreatedAt.IsZero())

	claims["name"] = "X Renamed"
	u2, err := svc.UpsertFromClaims(ctx, claims)
	require.NoError(t, err)
	require.Equal(t, u.ID, u2.ID)
	require.Equal(t, "X Renamed", u2.Name)

	u3, err := svc.UpsertFromClaims(ctx, map[string]interface{}{"email": "y@e.com"})
	require.NoError(t, err)
	require.Nil(t, u3)
}
