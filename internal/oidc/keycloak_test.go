package oidc

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/debtdesk/backoffice/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func unsignedToken(payload string) string {
	enc := base64.RawURLEncoding
	return enc.EncodeToString([]byte(`{"alg":"none"}`)) + "." + enc.EncodeToString([]byte(payload)) + "."
}

func TestInsecureVerifierDecodesClaims(t *testing.T) {
	tok, err := NewInsecureVerifier().Verify(context.Background(), unsignedToken(`{"sub":"kc-1","email":"a@b.c"}`))
	require.NoError(t, err)
	var claims map[string]interface{}
	require.NoError(t, tok.Claims(&claims))
	require.Equal(t, "kc-1", claims["sub"])

	_, err = NewInsecureVerifier().Verify(context.Background(), "garbage")
	require.Error(t, err)

	_, err = NewInsecureVerifier().Verify(context.Background(), unsignedToken(`{"sub":"kc-1","exp":1000}`))
	require.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestExchangeCodeFallsBackToBasicAuth(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		require.Equal(t, "/realms/office/protocol/openid-connect/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		if _, _, ok := r.BasicAuth(); !ok {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized_client"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","id_token":"it"}`))
	}))
	defer srv.Close()

	kc := NewKeycloak(config.KeycloakConfig{URL: srv.URL, Realm: "office", ClientID: "backoffice", ClientSecret: "s3cret"})
	tr, err := kc.ExchangeCode(context.Background(), "code-1", "http://localhost/cb")
	require.NoError(t, err)
	require.Equal(t, "it", tr.IDToken)
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestPasswordGrantSurfacesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	kc := NewKeycloak(config.KeycloakConfig{URL: srv.URL, Realm: "office", ClientID: "backoffice"})
	_, err := kc.PasswordGrant(context.Background(), "rina", "wrong")
	require.ErrorContains(t, err, "400")
}

func TestConnectFallsBackToInsecure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	kc := NewKeycloak(config.KeycloakConfig{URL: srv.URL, Realm: "office", ClientID: "backoffice"})
	require.Error(t, kc.Connect(context.Background()))

	kc = NewKeycloak(config.KeycloakConfig{URL: srv.URL, Realm: "office", ClientID: "backoffice", AllowInsecure: true})
	require.NoError(t, kc.Connect(context.Background()))
	claims, err := kc.IDTokenClaims(context.Background(), unsignedToken(`{"sub":"kc-2","preferred_username":"budi"}`))
	require.NoError(t, err)
	require.Equal(t, "budi", claims["preferred_username"])
}

func TestNotConfigured(t *testing.T) {
	kc := NewKeycloak(config.KeycloakConfig{})
	require.ErrorIs(t, kc.Connect(context.Background()), ErrNotConfigured)
	_, err := kc.PasswordGrant(context.Background(), "a", "b")
	require.ErrorIs(t, err, ErrNotConfigured)
}
