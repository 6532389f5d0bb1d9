package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/debtdesk/backoffice/pkg/middleware"
	"github.com/golang-jwt/jwt/v5"
)

type claimsToken jwt.MapClaims

func (t claimsToken) Claims(v interface{}) error {
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// InsecureVerifier decodes token claims WITHOUT checking the signature.
// It is only installed when ALLOW_INSECURE_TOKEN is set and discovery failed.
// Expired tokens are still rejected.
type InsecureVerifier struct {
	now func() time.Time
}

func NewInsecureVerifier() *InsecureVerifier { return &InsecureVerifier{now: time.Now} }

func (v *InsecureVerifier) Verify(_ context.Context, raw string) (middleware.Token, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, err
	}
	if exp != nil && v.now().After(exp.Time) {
		return nil, jwt.ErrTokenExpired
	}
	return claimsToken(claims), nil
}
