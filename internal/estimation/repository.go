package estimation

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/debtdesk/backoffice/internal/database"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrNotFound = errors.New("estimation not found")

type Repository interface {
	Create(ctx context.Context, r *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context, clientID string) ([]*Record, error)
	Delete(ctx context.Context, id string) error
}

type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(ctx context.Context, col *mongo.Collection) (*MongoRepository, error) {
	if err := database.EnsureIndexes(ctx, col,
		database.Index{Keys: bson.D{{Key: "clientId", Value: 1}, {Key: "createdAt", Value: -1}}},
	); err != nil {
		return nil, err
	}
	return &MongoRepository{col: col}, nil
}

func (m *MongoRepository) Create(ctx context.Context, r *Record) error {
	_, err := m.col.InsertOne(ctx, r)
	return err
}

func (m *MongoRepository) Get(ctx context.Context, id string) (*Record, error) {
	var r Record
	if err := m.col.FindOne(ctx, bson.M{"_id": id}).Decode(&r); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (m *MongoRepository) List(ctx context.Context, clientID string) ([]*Record, error) {
	filter := bson.M{}
	if clientID != "" {
		filter["clientId"] = clientID
	}
	cur, err := m.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*Record{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *MongoRepository) Delete(ctx context.Context, id string) error {
	res, err := m.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: map[string]*Record{}}
}

func clone(r *Record) *Record {
	cp := *r
	cp.Input.Debts = append([]DebtItem(nil), r.Input.Debts...)
	return &cp
}

func (m *MemoryRepository) Create(_ context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[r.ID] = clone(r)
	return nil
}

func (m *MemoryRepository) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(r), nil
}

func (m *MemoryRepository) List(_ context.Context, clientID string) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*Record{}
	for _, r := range m.records {
		if clientID == "" || r.ClientID == clientID {
			out = append(out, clone(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}
