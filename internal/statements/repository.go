package statements

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

var (
	ErrNotFound        = errors.New("statement not found")
	ErrDuplicateNumber = errors.New("statement number already used")
)

// Repository persists statements.
type Repository interface {
	Create(ctx context.Context, s *Statement) error
	Get(ctx context.Context, id string) (*Statement, error)
	ListByClient(ctx context.Context, clientID string) ([]*Statement, error)
	Update(ctx context.Context, s *Statement) error
	Delete(ctx context.Context, id string) error
	// NextSequence advances the counter for a numbering prefix and returns
	// the new value. Numbers freed by a delete are never handed out again.
	NextSequence(ctx context.Context, prefix string) (int64, error)
}

type MongoRepository struct {
	col      *mongo.Collection
	counters *mongo.Collection
}

type sequence struct {
	Prefix string `bson:"_id"`
	Seq    int64  `bson:"seq"`
}

func NewMongoRepository(ctx context.Context, col *mongo.Collection) (*MongoRepository, error) {
	err := database.EnsureIndexes(ctx, col,
		database.Index{Keys: bson.D{{Key: "number", Value: 1}}, Unique: true},
		database.Index{Keys: bson.D{{Key: "clientId", Value: 1}, {Key: "createdAt", Value: -1}}},
		database.Index{Keys: bson.D{{Key: "date", Value: 1}}},
	)
	if err != nil {
		return nil, err
	}
	counters := col.Database().Collection(database.StatementCountersCollection)
	return &MongoRepository{col: col, counters: counters}, nil
}

func (r *MongoRepository) Create(ctx context.Context, s *Statement) error {
	_, err := r.col.InsertOne(ctx, s)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateNumber
	}
	return err
}

func (r *MongoRepository) Get(ctx context.Context, id string) (*Statement, error) {
	var s Statement
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&s); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *MongoRepository) ListByClient(ctx context.Context, clientID string) ([]*Statement, error) {
	filter := bson.M{}
	if clientID != "" {
		filter["clientId"] = clientID
	}
	cur, err := r.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*Statement{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *MongoRepository) Update(ctx context.Context, s *Statement) error {
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": s.ID}, s)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoRepository) Delete(ctx context.Context, id string) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoRepository) NextSequence(ctx context.Context, prefix string) (int64, error) {
	var seq sequence
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := r.counters.FindOneAndUpdate(ctx, bson.M{"_id": prefix}, bson.M{"$inc": bson.M{"seq": int64(1)}}, opts).Decode(&seq)
	if err != nil {
		return 0, err
	}
	return seq.Seq, nil
}

type MemoryRepository struct {
	mu       sync.RWMutex
	items    map[string]*Statement
	counters map[string]int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: map[string]*Statement{}, counters: map[string]int64{}}
}

func (m *MemoryRepository) Create(_ context.Context, s *Statement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ex := range m.items {
		if ex.Number == s.Number {
			return ErrDuplicateNumber
		}
	}
	cp := *s
	m.items[s.ID] = &cp
	return nil
}

func (m *MemoryRepository) Get(_ context.Context, id string) (*Statement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryRepository) ListByClient(_ context.Context, clientID string) ([]*Statement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*Statement{}
	for _, s := range m.items {
		if clientID != "" && s.ClientID != clientID {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepository) Update(_ context.Context, s *Statement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[s.ID]; !ok {
		return ErrNotFound
	}
	cp := *s
	m.items[s.ID] = &cp
	return nil
}

func (m *MemoryRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *MemoryRepository) NextSequence(_ context.Context, prefix string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[prefix]++
	return m.counters[prefix], nil
}
