package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/debtdesk/backoffice/internal/client"
	"github.com/debtdesk/backoffice/internal/client/repository"
	"github.com/debtdesk/backoffice/internal/phone"
	"github.com/go-playground/validator/v10"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidPhone = errors.New("invalid phone number")
	ErrInvalid      = errors.New("invalid client")
)

// Service defines the client operations used by the handler layer.
type Service interface {
	Create(ctx context.Context, c *client.Client) (string, error)
	Get(ctx context.Context, id string) (*client.Client, error)
	List(ctx context.Context, f client.Filter) ([]*client.Client, error)
	Update(ctx context.Context, id string, p client.Patch) (*client.Client, error)
	Delete(ctx context.Context, id string) error
}

// New returns a Service over the given repository. region is the default
// phone region used for normalization.
func New(repo repository.Repository, region string) Service {
	return &clientService{repo: repo, region: region, validate: validator.New()}
}

// NewMemoryService returns a Service backed by the in-memory repository.
func NewMemoryService() Service {
	return New(repository.NewMemoryRepo(), "ID")
}

type clientService struct {
	repo     repository.Repository
	region   string
	validate *validator.Validate
}

func (s *clientService) Create(ctx context.Context, c *client.Client) (string, error) {
	if err := s.normalize(c); err != nil {
		return "", err
	}
	return s.repo.Create(ctx, c)
}

func (s *clientService) Get(ctx context.Context, id string) (*client.Client, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, mapErr(err)
	}
	return c, nil
}

func (s *clientService) List(ctx context.Context, f client.Filter) ([]*client.Client, error) {
	return s.repo.List(ctx, f)
}

func (s *clientService) Update(ctx context.Context, id string, p client.Patch) (*client.Client, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, mapErr(err)
	}
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.NIK != nil {
		c.NIK = *p.NIK
	}
	if p.Phone != nil {
		c.Phone = *p.Phone
	}
	if p.Email != nil {
		c.Email = *p.Email
	}
	if p.Address != nil {
		c.Address = *p.Address
	}
	if p.Occupation != nil {
		c.Occupation = *p.Occupation
	}
	if p.Creditors != nil {
		c.Creditors = *p.Creditors
	}
	if p.Notes != nil {
		c.Notes = *p.Notes
	}
	if err := s.normalize(c); err != nil {
		return nil, err
	}
	if err := s.repo.Replace(ctx, c); err != nil {
		return nil, mapErr(err)
	}
	return c, nil
}

func (s *clientService) Delete(ctx context.Context, id string) error {
	return mapErr(s.repo.Delete(ctx, id))
}

func (s *clientService) normalize(c *client.Client) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	if c.Email != "" {
		if err := s.validate.Var(c.Email, "email"); err != nil {
			return fmt.Errorf("%w: email is not valid", ErrInvalid)
		}
	}
	if c.Creditors == nil {
		c.Creditors = []client.CreditorDebt{}
	}
	for i := range c.Creditors {
		if err := s.validate.Struct(c.Creditors[i]); err != nil {
			return fmt.Errorf("%w: creditor %d: %v", ErrInvalid, i+1, err)
		}
	}
	if c.Phone != "" {
		p, err := phone.Normalize(c.Phone, s.region)
		if err != nil {
			return ErrInvalidPhone
		}
		c.Phone = p
	}
	return nil
}

func mapErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
