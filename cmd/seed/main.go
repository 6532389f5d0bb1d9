// Command seed prepares a fresh database: system roles, telemarketing
// settings and the first administrator account. Running it again is safe.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/debtdesk/backoffice/internal/config"
	"github.com/debtdesk/backoffice/internal/database"
	"github.com/debtdesk/backoffice/internal/rbac"
	"github.com/debtdesk/backoffice/internal/telemarketing"
	"github.com/debtdesk/backoffice/internal/users"
	"github.com/debtdesk/backoffice/pkg/logger"
	"github.com/spf13/pflag"
)

type seeder struct {
	users    *users.Service
	roles    *rbac.Service
	settings *telemarketing.SettingsService
}

// run seeds everything and returns the administrator's user id.
func (s *seeder) run(ctx context.Context, admin users.NewUser) (string, error) {
	if err := s.roles.SeedDefaults(ctx); err != nil {
		return "", err
	}
	if err := s.settings.Seed(ctx); err != nil {
		return "", fmt.Errorf("seed settings: %w", err)
	}

	id, err := s.ensureUser(ctx, admin)
	if err != nil {
		return "", err
	}
	current, err := s.roles.UserRoles(ctx, id)
	if err != nil {
		return "", err
	}
	ids := []string{"admin"}
	for _, r := range current {
		if r.ID != "admin" {
			ids = append(ids, r.ID)
		}
	}
	if _, err := s.roles.AssignRoles(ctx, id, ids); err != nil {
		return "", err
	}
	return id, nil
}

// ensureUser creates the account or finds the existing one. An existing
// password is left alone.
func (s *seeder) ensureUser(ctx context.Context, in users.NewUser) (string, error) {
	u, err := s.users.Create(ctx, in)
	if err == nil {
		logger.WithFields(logger.Fields{"user": u.ID, "username": u.Username}).Info("admin user created")
		return u.ID, nil
	}
	if !errors.Is(err, users.ErrUsernameTaken) {
		return "", err
	}
	list, err := s.users.List(ctx)
	if err != nil {
		return "", err
	}
	for _, ex := range list {
		if ex.Username == in.Username {
			logger.Infof("admin user %s already exists", ex.Username)
			return ex.ID, nil
		}
	}
	return "", fmt.Errorf("user %q reported taken but not found", in.Username)
}

func main() {
	username := pflag.StringP("username", "u", "admin", "administrator username")
	name := pflag.String("name", "Administrator", "administrator display name")
	email := pflag.String("email", "", "administrator email")
	password := pflag.StringP("password", "p", os.Getenv("SEED_ADMIN_PASSWORD"), "administrator password (or SEED_ADMIN_PASSWORD)")
	pflag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.Log.Level)
	logger.SetFormat(cfg.Log.Format)
	if cfg.MongoDB.URI == "" {
		logger.Fatalf("MONGODB_URI is required to seed")
	}
	if *password == "" {
		logger.Fatalf("an administrator password is required (--password or SEED_ADMIN_PASSWORD)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	client, err := database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 5)
	if err != nil {
		logger.Fatalf("mongo: %v", err)
	}
	defer func() { _ = client.Disconnect(context.Background()) }()
	db := client.Database(cfg.MongoDB.Database)

	userRepo, err := users.NewMongoUserRepository(ctx, db.Collection(database.UsersCollection))
	if err != nil {
		logger.Fatalf("users repository: %v", err)
	}
	roleRepo, err := rbac.NewMongoRepository(ctx, db)
	if err != nil {
		logger.Fatalf("roles repository: %v", err)
	}
	prospects, err := telemarketing.NewMongoProspectRepository(ctx, db.Collection(database.ProspectsCollection))
	if err != nil {
		logger.Fatalf("prospects repository: %v", err)
	}
	settings := telemarketing.NewSettingsService(
		telemarketing.NewMongoSettingsRepository(db.Collection(database.SettingsCollection)), prospects, cfg.Telemarketing)

	s := &seeder{users: users.NewService(userRepo), roles: rbac.NewService(roleRepo), settings: settings}
	id, err := s.run(ctx, users.NewUser{Username: *username, Name: *name, Email: *email, Password: *password})
	if err != nil {
		logger.Fatalf("seed: %v", err)
	}
	logger.WithFields(logger.Fields{"admin": id, "database": cfg.MongoDB.Database}).Info("seed complete")
}
