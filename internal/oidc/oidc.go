package oidc

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/debtdesk/backoffice/pkg/middleware"
)

var ErrWrongClient = errors.New("token was not issued for this client")

// Verifier checks Keycloak tokens against the realm's published keys.
// Keycloak access tokens carry aud=account and name the client in azp, so a
// token is accepted when either claim matches the configured client.
type Verifier struct {
	clientID string
	verifier *oidc.IDTokenVerifier
}

// NewVerifier runs provider discovery for issuer.
func NewVerifier(ctx context.Context, issuer, clientID string) (*Verifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	v := provider.Verifier(&oidc.Config{ClientID: clientID, SkipClientIDCheck: true})
	return &Verifier{clientID: clientID, verifier: v}, nil
}

func (v *Verifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	tok, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	if slices.Contains(tok.Audience, v.clientID) {
		return tok, nil
	}
	var c struct {
		AuthorizedParty string `json:"azp"`
	}
	if err := tok.Claims(&c); err != nil {
		return nil, err
	}
	if c.AuthorizedParty != v.clientID {
		return nil, ErrWrongClient
	}
	return tok, nil
}
