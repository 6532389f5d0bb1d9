package statements

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/debtdesk/backoffice/internal/client"
	clientsvc "github.com/debtdesk/backoffice/internal/client/service"
	"github.com/debtdesk/backoffice/internal/storage"
	"github.com/debtdesk/backoffice/pkg/logger"
	"github.com/google/uuid"
)

var (
	ErrClientNotFound = errors.New("client not found")
	ErrInvalid        = errors.New("invalid statement")
)

const (
	defaultPlace    = "Jakarta"
	numberAttempts  = 5
	htmlContentType = "text/html; charset=utf-8"
)

// ClientSource loads the client a statement is generated from.
type ClientSource interface {
	Get(ctx context.Context, id string) (*client.Client, error)
}

type Service struct {
	repo       Repository
	clients    ClientSource
	store      storage.ObjectStore
	presignTTL time.Duration
	now        func() time.Time
}

// NewService wires the statement service. store may be nil, in which case
// rendered HTML is returned inline.
func NewService(repo Repository, clients ClientSource, store storage.ObjectStore, presignTTL time.Duration) *Service {
	if presignTTL <= 0 {
		presignTTL = 15 * time.Minute
	}
	return &Service{repo: repo, clients: clients, store: store, presignTTL: presignTTL, now: time.Now}
}

func objectKey(id string) string {
	return "statements/" + id + ".html"
}

// nextNumber returns SP/<yyyy>/<mm>/<seq> for the month of date.
func (s *Service) nextNumber(ctx context.Context, date time.Time) (string, error) {
	prefix := fmt.Sprintf("SP/%04d/%02d", date.Year(), int(date.Month()))
	n, err := s.repo.NextSequence(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("next statement number: %w", err)
	}
	return fmt.Sprintf("%s/%04d", prefix, n), nil
}

// Create generates a statement from the client record.
func (s *Service) Create(ctx context.Context, in CreateInput, actor string) (*Statement, error) {
	if strings.TrimSpace(in.ClientID) == "" {
		return nil, fmt.Errorf("%w: clientId is required", ErrInvalid)
	}
	c, err := s.clients.Get(ctx, in.ClientID)
	if err != nil {
		if errors.Is(err, clientsvc.ErrNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}
	kind := strings.ToLower(strings.TrimSpace(in.Kind))
	if kind == "" {
		kind = KindSettlement
	}
	if _, ok := closing[kind]; !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalid, in.Kind)
	}
	now := s.now().UTC()
	date := now
	if in.Date != nil && !in.Date.IsZero() {
		date = in.Date.UTC()
	}
	place := strings.TrimSpace(in.Place)
	if place == "" {
		place = defaultPlace
	}
	st := &Statement{
		ID:        uuid.NewString(),
		ClientID:  c.ID,
		Kind:      kind,
		Place:     place,
		Date:      date,
		CreatedBy: actor,
		CreatedAt: now,
		UpdatedAt: now,
	}
	// Statements written before the counter existed can still hold a number;
	// the unique index rejects it and the counter moves past it.
	for attempt := 0; attempt < numberAttempts; attempt++ {
		st.Number, err = s.nextNumber(ctx, date)
		if err != nil {
			return nil, err
		}
		st.Body, err = buildBody(st, c)
		if err != nil {
			return nil, err
		}
		err = s.repo.Create(ctx, st)
		if !errors.Is(err, ErrDuplicateNumber) {
			break
		}
		logger.Warnf("statement number %s taken, retrying", st.Number)
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Statement, error) {
	return s.repo.Get(ctx, id)
}

// List returns statements of one client, or all when clientID is empty.
func (s *Service) List(ctx context.Context, clientID string) ([]*Statement, error) {
	return s.repo.ListByClient(ctx, clientID)
}

// UpdateBody replaces the markdown body. A previously rendered file is
// dropped so the next Render reflects the edit.
func (s *Service) UpdateBody(ctx context.Context, id, body string) (*Statement, error) {
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("%w: body is required", ErrInvalid)
	}
	st, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	st.Body = body
	oldKey := st.HTMLKey
	st.HTMLKey = ""
	st.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, st); err != nil {
		return nil, err
	}
	s.dropObject(ctx, oldKey)
	return st, nil
}

// Render converts the body to HTML. With object storage the page is uploaded
// and a presigned URL returned; otherwise the HTML is returned inline.
func (s *Service) Render(ctx context.Context, id string) (*Rendered, error) {
	st, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	page, err := RenderHTML("Surat Pernyataan "+st.Number, st.Body)
	if err != nil {
		return nil, err
	}
	if s.store == nil {
		return &Rendered{Statement: st, HTML: page}, nil
	}
	key := objectKey(st.ID)
	if err := s.store.Put(ctx, key, []byte(page), htmlContentType); err != nil {
		return nil, fmt.Errorf("upload statement: %w", err)
	}
	if st.HTMLKey != key {
		st.HTMLKey = key
		st.UpdatedAt = s.now().UTC()
		if err := s.repo.Update(ctx, st); err != nil {
			return nil, err
		}
	}
	u, err := s.store.PresignedURL(ctx, key, s.presignTTL)
	if err != nil {
		return nil, fmt.Errorf("presign statement: %w", err)
	}
	return &Rendered{Statement: st, URL: u}, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	st, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.dropObject(ctx, st.HTMLKey)
	return nil
}

func (s *Service) dropObject(ctx context.Context, key string) {
	if key == "" || s.store == nil {
		return
	}
	if err := s.store.Delete(ctx, key); err != nil {
		logger.Warnf("remove %s: %v", key, err)
	}
}
