package rbac

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/debtdesk/backoffice/internal/database"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository persists roles and user-role assignments.
type Repository interface {
	SaveRole(ctx context.Context, r *Role) error
	GetRole(ctx context.Context, id string) (*Role, error)
	GetRoleByName(ctx context.Context, name string) (*Role, error)
	ListRoles(ctx context.Context) ([]*Role, error)
	DeleteRole(ctx context.Context, id string) error
	SetUserRoles(ctx context.Context, ur *UserRole) error
	GetUserRoles(ctx context.Context, userID string) (*UserRole, error)
	RemoveRoleFromUsers(ctx context.Context, roleID string) error
}

// MongoRepository stores roles in "roles" and assignments in "user_roles".
type MongoRepository struct {
	roles     *mongo.Collection
	userRoles *mongo.Collection
}

func NewMongoRepository(ctx context.Context, db *mongo.Database) (*MongoRepository, error) {
	r := &MongoRepository{
		roles:     db.Collection(database.RolesCollection),
		userRoles: db.Collection(database.UserRolesCollection),
	}
	if err := database.EnsureIndexes(ctx, r.roles, database.Index{Keys: bson.D{{Key: "name", Value: 1}}, Unique: true}); err != nil {
		return nil, err
	}
	if err := database.EnsureIndexes(ctx, r.userRoles, database.Index{Keys: bson.D{{Key: "roleIds", Value: 1}}}); err != nil {
		return nil, err
	}
	return r, nil
}

func (m *MongoRepository) SaveRole(ctx context.Context, r *Role) error {
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	_, err := m.roles.ReplaceOne(ctx, bson.M{"_id": r.ID}, r, options.Replace().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateName
	}
	return err
}

func (m *MongoRepository) GetRole(ctx context.Context, id string) (*Role, error) {
	return m.findRole(ctx, bson.M{"_id": id})
}

func (m *MongoRepository) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	return m.findRole(ctx, bson.M{"name": name})
}

func (m *MongoRepository) findRole(ctx context.Context, filter bson.M) (*Role, error) {
	var r Role
	if err := m.roles.FindOne(ctx, filter).Decode(&r); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrRoleNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (m *MongoRepository) ListRoles(ctx context.Context) ([]*Role, error) {
	cur, err := m.roles.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*Role{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *MongoRepository) DeleteRole(ctx context.Context, id string) error {
	res, err := m.roles.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrRoleNotFound
	}
	return nil
}

func (m *MongoRepository) SetUserRoles(ctx context.Context, ur *UserRole) error {
	ur.UpdatedAt = time.Now().UTC()
	_, err := m.userRoles.ReplaceOne(ctx, bson.M{"_id": ur.UserID}, ur, options.Replace().SetUpsert(true))
	return err
}

func (m *MongoRepository) GetUserRoles(ctx context.Context, userID string) (*UserRole, error) {
	var ur UserRole
	if err := m.userRoles.FindOne(ctx, bson.M{"_id": userID}).Decode(&ur); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return &UserRole{UserID: userID, RoleIDs: []string{}}, nil
		}
		return nil, err
	}
	return &ur, nil
}

func (m *MongoRepository) RemoveRoleFromUsers(ctx context.Context, roleID string) error {
	_, err := m.userRoles.UpdateMany(ctx, bson.M{"roleIds": roleID}, bson.M{"$pull": bson.M{"roleIds": roleID}})
	return err
}

// MemoryRepository is the in-process Repository.
type MemoryRepository struct {
	mu        sync.RWMutex
	roles     map[string]*Role
	userRoles map[string]*UserRole
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{roles: map[string]*Role{}, userRoles: map[string]*UserRole{}}
}

func (m *MemoryRepository) SaveRole(_ context.Context, r *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ex := range m.roles {
		if id != r.ID && ex.Name == r.Name {
			return ErrDuplicateName
		}
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	cp := *r
	cp.Permissions = append([]Permission(nil), r.Permissions...)
	m.roles[r.ID] = &cp
	return nil
}

func (m *MemoryRepository) GetRole(_ context.Context, id string) (*Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.roles[id]
	if !ok {
		return nil, ErrRoleNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryRepository) GetRoleByName(_ context.Context, name string) (*Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.roles {
		if r.Name == name {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrRoleNotFound
}

func (m *MemoryRepository) ListRoles(_ context.Context) ([]*Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Role, 0, len(m.roles))
	for _, r := range m.roles {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryRepository) DeleteRole(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[id]; !ok {
		return ErrRoleNotFound
	}
	delete(m.roles, id)
	return nil
}

func (m *MemoryRepository) SetUserRoles(_ context.Context, ur *UserRole) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ur.UpdatedAt = time.Now().UTC()
	cp := *ur
	cp.RoleIDs = append([]string(nil), ur.RoleIDs...)
	m.userRoles[ur.UserID] = &cp
	return nil
}

func (m *MemoryRepository) GetUserRoles(_ context.Context, userID string) (*UserRole, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ur, ok := m.userRoles[userID]
	if !ok {
		return &UserRole{UserID: userID, RoleIDs: []string{}}, nil
	}
	cp := *ur
	cp.RoleIDs = append([]string(nil), ur.RoleIDs...)
	return &cp, nil
}

func (m *MemoryRepository) RemoveRoleFromUsers(_ context.Context, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ur := range m.userRoles {
		kept := ur.RoleIDs[:0]
		for _, id := range ur.RoleIDs {
			if id != roleID {
				kept = append(kept, id)
			}
		}
		ur.RoleIDs = kept
	}
	return nil
}
