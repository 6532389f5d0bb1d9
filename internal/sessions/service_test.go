package sessions

import (
	"context"
	"testing"
	"time"
)

type fakeRepo struct {
	store map[string]*Session
}

func (f *fakeRepo) Create(ctx context.Context, s *Session) error {
	if f.store == nil {
		f.store = map[string]*Session{}
	}
	f.store[s.TokenHash] = s
	return nil
}

func (f *fakeRepo) GetByHash(ctx context.Context, hash string) (*Session, error) {
	s, ok := f.store[hash]
	if !ok {
		return nil, nil
	}
	return s, nil
}

func (f *fakeRepo) DeleteByHash(ctx context.Context, hash string) error {
	delete(f.store, hash)
	return nil
}

func (f *fakeRepo) DeleteByUser(ctx context.Context, userID string) error {
	for h, s := range f.store {
		if s.UserID == userID {
			delete(f.store, h)
		}
	}
	return nil
}

func TestCreateAndValidateSession(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo)
	ctx := context.Background()
	r, err := svc.CreateSession(ctx, "u-1", "test-agent", time.Hour)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if r == "" {
		t.Fatalf("expected refresh token")
	}
	if _, stored := repo.store[r]; stored {
		t.Fatalf("raw refresh token must not be used as storage key")
	}
	sess, err := svc.ValidateRefresh(ctx, r)
	if err != nil {
		t.Fatalf("validate error: %v", err)
	}
	if sess == nil || sess.UserID != "u-1" {
		t.Fatalf("unexpected session: %v", sess)
	}
	if err := svc.DeleteRefresh(ctx, r); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	sess2, _ := svc.ValidateRefresh(ctx, r)
	if sess2 != nil {
		t.Fatalf("expected session removed")
	}
}

func TestValidateRefresh_Expired(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo)
	ctx := context.Background()
	r, err := svc.CreateSession(ctx, "u-1", "", -time.Minute)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	sess, err := svc.ValidateRefresh(ctx, r)
	if err != nil || sess != nil {
		t.Fatalf("expected expired session to be rejected, got %v %v", sess, err)
	}
	if len(repo.store) != 0 {
		t.Fatalf("expired session should be cleaned up")
	}
}

func TestRevokeUser(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo)
	ctx := context.Background()
	a, _ := svc.CreateSession(ctx, "u-1", "", time.Hour)
	b, _ := svc.CreateSession(ctx, "u-2", "", time.Hour)
	if err := svc.RevokeUser(ctx, "u-1"); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if s, _ := svc.ValidateRefresh(ctx, a); s != nil {
		t.Fatalf("u-1 session should be revoked")
	}
	if s, _ := svc.ValidateRefresh(ctx, b); s == nil {
		t.Fatalf("u-2 session should survive")
	}
}

func TestMemoryRepositoryRevokeUser(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()
	a, err := svc.CreateSession(ctx, "u-1", "", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	b, err := svc.CreateSession(ctx, "u-2", "", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.RevokeUser(ctx, "u-1"); err != nil {
		t.Fatal(err)
	}
	if s, _ := svc.ValidateRefresh(ctx, a); s != nil {
		t.Fatalf("u-1 session survived revocation")
	}
	if s, _ := svc.ValidateRefresh(ctx, b); s == nil || s.UserID != "u-2" {
		t.Fatalf("u-2 session lost: %+v", s)
	}
}
