package sessions

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Service wraps repository operations with business logic
type Service struct {
	repo Repository
}

func NewService(r Repository) *Service { return &Service{repo: r} }

// CreateSession stores a new refresh session and returns the raw refresh token
func (s *Service) CreateSession(ctx context.Context, userID, userAgent string, ttl time.Duration) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	raw := hex.EncodeToString(b)
	sess := &Session{
		TokenHash: HashToken(raw),
		UserID:    userID,
		UserAgent: userAgent,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return "", err
	}
	return raw, nil
}

// ValidateRefresh returns the session if refresh token is valid and not expired.
// A nil session with nil error means the token is unknown or expired.
func (s *Service) ValidateRefresh(ctx context.Context, refresh string) (*Session, error) {
	hash := HashToken(refresh)
	sess, err := s.repo.GetByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}
	if time.Now().UTC().After(sess.ExpiresAt) {
		_ = s.repo.DeleteByHash(ctx, hash)
		return nil, nil
	}
	return sess, nil
}

func (s *Service) DeleteRefresh(ctx context.Context, refresh string) error {
	return s.repo.DeleteByHash(ctx, HashToken(refresh))
}

// RevokeUser drops every refresh session of a user (password reset, deactivation).
func (s *Service) RevokeUser(ctx context.Context, userID string) error {
	return s.repo.DeleteByUser(ctx, userID)
}
