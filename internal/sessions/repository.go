package sessions

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/debtdesk/backoffice/internal/database"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Repository provides session persistence keyed by refresh-token hash.
type Repository interface {
	Create(ctx context.Context, s *Session) error
	GetByHash(ctx context.Context, hash string) (*Session, error)
	DeleteByHash(ctx context.Context, hash string) error
	DeleteByUser(ctx context.Context, userID string) error
}

// MongoRepository implements Repository using a Mongo collection. A TTL
// index on expiresAt lets MongoDB purge stale sessions.
type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(ctx context.Context, col *mongo.Collection) (*MongoRepository, error) {
	if err := database.EnsureIndexes(ctx, col,
		database.Index{Keys: bson.D{{Key: "tokenHash", Value: 1}}, Unique: true},
		database.Index{Keys: bson.D{{Key: "userId", Value: 1}}},
		database.Index{Keys: bson.D{{Key: "expiresAt", Value: 1}}, TTL: time.Second},
	); err != nil {
		return nil, err
	}
	return &MongoRepository{col: col}, nil
}

func (r *MongoRepository) Create(ctx context.Context, s *Session) error {
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.ExpiresAt.IsZero() {
		s.ExpiresAt = now.Add(7 * 24 * time.Hour)
	}
	_, err := r.col.InsertOne(ctx, s)
	return err
}

func (r *MongoRepository) GetByHash(ctx context.Context, hash string) (*Session, error) {
	var s Session
	if err := r.col.FindOne(ctx, bson.M{"tokenHash": hash}).Decode(&s); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *MongoRepository) DeleteByHash(ctx context.Context, hash string) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"tokenHash": hash})
	return err
}

func (r *MongoRepository) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.col.DeleteMany(ctx, bson.M{"userId": userID})
	return err
}

// MemoryRepository keeps sessions in process for single-instance dev runs.
type MemoryRepository struct {
	mu     sync.Mutex
	byHash map[string]*Session
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byHash: map[string]*Session{}}
}

func (m *MemoryRepository) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	cp := *s
	m.byHash[s.TokenHash] = &cp
	return nil
}

func (m *MemoryRepository) GetByHash(_ context.Context, hash string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byHash[hash]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryRepository) DeleteByHash(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byHash, hash)
	return nil
}

func (m *MemoryRepository) DeleteByUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for h, s := range m.byHash {
		if s.UserID == userID {
			delete(m.byHash, h)
		}
	}
	return nil
}
