package database

import (
	"context"
	"fmt"
	"time"

	"github.com/debtdesk/backoffice/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names shared by repositories and tools.
const (
	ClientsCollection           = "clients"
	StatementsCollection        = "statements"
	StatementCountersCollection = "statement_counters"
	EstimationsCollection       = "estimations"
	ProspectsCollection         = "prospects"
	CallSessionsCollection      = "call_sessions"
	CallLogsCollection          = "call_logs"
	SettingsCollection          = "telemarketing_settings"
	RolesCollection             = "roles"
	UserRolesCollection         = "user_roles"
	UsersCollection             = "users"
	RefreshSessionsCollection   = "sessions"
)

// ConnectMongo opens a connection and returns the client. Caller should call client.Disconnect(ctx).
func ConnectMongo(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	clientOpts := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// ConnectMongoWithRetry retries ConnectMongo with exponential backoff to
// tolerate startup races with the database container.
func ConnectMongoWithRetry(ctx context.Context, uri string, timeout time.Duration, maxAttempts int) (*mongo.Client, error) {
	backoff := time.Second
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		client, err := ConnectMongo(ctx, uri, timeout)
		if err == nil {
			return client, nil
		}
		lastErr = err
		logger.Warnf("attempt %d/%d: failed to connect to MongoDB: %v", attempt, maxAttempts, err)
		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return nil, fmt.Errorf("mongo: giving up after %d attempts: %w", maxAttempts, lastErr)
}

// Index describes one index to ensure on a collection.
type Index struct {
	Keys   bson.D
	Unique bool
	Sparse bool
	// TTL > 0 makes a TTL index; documents expire TTL after the indexed time.
	TTL time.Duration
}

// EnsureIndexes creates the given indexes; existing identical indexes are a no-op.
func EnsureIndexes(ctx context.Context, col *mongo.Collection, idx ...Index) error {
	if len(idx) == 0 {
		return nil
	}
	models := make([]mongo.IndexModel, 0, len(idx))
	for _, i := range idx {
		opts := options.Index()
		if i.Unique {
			opts.SetUnique(true)
		}
		if i.Sparse {
			opts.SetSparse(true)
		}
		if i.TTL > 0 {
			opts.SetExpireAfterSeconds(int32(i.TTL / time.Second))
		}
		models = append(models, mongo.IndexModel{Keys: i.Keys, Options: opts})
	}
	if _, err := col.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("ensure indexes on %s: %w", col.Name(), err)
	}
	return nil
}
