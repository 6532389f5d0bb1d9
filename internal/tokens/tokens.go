package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/debtdesk/backoffice/internal/config"
	"github.com/debtdesk/backoffice/internal/models"
	"github.com/debtdesk/backoffice/pkg/middleware"
	"github.com/golang-jwt/jwt/v5"
)

// GenerateAccessToken creates a signed JWT access token for the user.
// uid carries the local user id; sub keeps the OIDC subject when there is one.
func GenerateAccessToken(cfg *config.Config, u *models.User, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	sub := u.Sub
	if sub == "" {
		sub = u.ID
	}
	if roles == nil {
		roles = []string{}
	}
	claims := jwt.MapClaims{
		"sub":                sub,
		"uid":                u.ID,
		"preferred_username": u.Username,
		"name":               u.Name,
		"email":              u.Email,
		"roles":              roles,
		"iss":                cfg.JWT.Issuer,
		"iat":                now.Unix(),
		"exp":                now.Add(ttl).Unix(),
	}
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return jt.SignedString([]byte(cfg.JWT.Secret))
}

// ErrInvalidToken wraps every verification failure.
var ErrInvalidToken = errors.New("invalid access token")

type localToken struct {
	claims jwt.MapClaims
}

func (t *localToken) Claims(v interface{}) error {
	b, err := json.Marshal(t.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// Verifier checks tokens minted by GenerateAccessToken.
type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(cfg *config.Config) *Verifier {
	return &Verifier{secret: []byte(cfg.JWT.Secret), issuer: cfg.JWT.Issuer}
}

func (v *Verifier) Verify(_ context.Context, raw string) (middleware.Token, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return &localToken{claims: claims}, nil
}

// ChainVerifier tries each verifier in order and returns the first success.
// It lets locally issued tokens and Keycloak tokens share one middleware.
type ChainVerifier []middleware.Verifier

func (c ChainVerifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	var errs []error
	for _, v := range c {
		if v == nil {
			continue
		}
		tok, err := v.Verify(ctx, raw)
		if err == nil {
			return tok, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, ErrInvalidToken
	}
	return nil, errors.Join(errs...)
}
