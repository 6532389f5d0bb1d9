package repository

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/debtdesk/backoffice/internal/client"
	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("client not found")
)

// Repository is the persistence contract for clients.
type Repository interface {
	Create(ctx context.Context, c *client.Client) (string, error)
	Get(ctx context.Context, id string) (*client.Client, error)
	List(ctx context.Context, f client.Filter) ([]*client.Client, error)
	Replace(ctx context.Context, c *client.Client) error
	Delete(ctx context.Context, id string) error
}

// MemoryRepo keeps clients in process memory. Used by tests and by
// development runs without MONGODB_URI.
type MemoryRepo struct {
	mu    sync.RWMutex
	store map[string]*client.Client
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{store: make(map[string]*client.Client)}
}

func (m *MemoryRepo) Create(_ context.Context, c *client.Client) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	m.store[c.ID] = &cp
	return c.ID, nil
}

func (m *MemoryRepo) Get(_ context.Context, id string) (*client.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.store[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *MemoryRepo) List(_ context.Context, f client.Filter) ([]*client.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]*client.Client, 0, len(m.store))
	for _, c := range m.store {
		if q != "" && !strings.Contains(strings.ToLower(c.Name), q) && !strings.Contains(c.Phone, q) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, f.Offset, f.Limit), nil
}

func (m *MemoryRepo) Replace(_ context.Context, c *client.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[c.ID]; !ok {
		return ErrNotFound
	}
	c.UpdatedAt = time.Now().UTC()
	cp := *c
	m.store[c.ID] = &cp
	return nil
}

func (m *MemoryRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[id]; !ok {
		return ErrNotFound
	}
	delete(m.store, id)
	return nil
}

func page(in []*client.Client, offset, limit int) []*client.Client {
	if offset > 0 {
		if offset >= len(in) {
			return []*client.Client{}
		}
		in = in[offset:]
	}
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}
