package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/debtdesk/backoffice/handlers"
	clienthandler "github.com/debtdesk/backoffice/internal/client/handler"
	clientrepo "github.com/debtdesk/backoffice/internal/client/repository"
	clientsvc "github.com/debtdesk/backoffice/internal/client/service"
	"github.com/debtdesk/backoffice/internal/config"
	"github.com/debtdesk/backoffice/internal/database"
	"github.com/debtdesk/backoffice/internal/estimation"
	"github.com/debtdesk/backoffice/internal/oidc"
	"github.com/debtdesk/backoffice/internal/rbac"
	"github.com/debtdesk/backoffice/internal/sessions"
	"github.com/debtdesk/backoffice/internal/statements"
	"github.com/debtdesk/backoffice/internal/storage"
	"github.com/debtdesk/backoffice/internal/telemarketing"
	"github.com/debtdesk/backoffice/internal/tokens"
	"github.com/debtdesk/backoffice/internal/users"
	"github.com/debtdesk/backoffice/pkg/logger"
	"github.com/debtdesk/backoffice/pkg/metrics"
	"github.com/debtdesk/backoffice/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

var startTime = time.Now()

// repos holds one implementation per repository; Mongo when connected, memory otherwise.
type repos struct {
	users       users.UserRepository
	roles       rbac.Repository
	sessions    sessions.Repository
	clients     clientrepo.Repository
	statements  statements.Repository
	estimations estimation.Repository
	prospects   telemarketing.ProspectRepository
	callSess    telemarketing.SessionRepository
	callLogs    telemarketing.CallLogRepository
	settings    telemarketing.SettingsRepository
}

func memoryRepos() *repos {
	return &repos{
		users:       users.NewMemoryUserRepository(),
		roles:       rbac.NewMemoryRepository(),
		sessions:    sessions.NewMemoryRepository(),
		clients:     clientrepo.NewMemoryRepo(),
		statements:  statements.NewMemoryRepository(),
		estimations: estimation.NewMemoryRepository(),
		prospects:   telemarketing.NewMemoryProspectRepository(),
		callSess:    telemarketing.NewMemorySessionRepository(),
		callLogs:    telemarketing.NewMemoryCallLogRepository(),
		settings:    telemarketing.NewMemorySettingsRepository(),
	}
}

func mongoRepos(ctx context.Context, db *mongo.Database) (*repos, error) {
	var (
		r   repos
		err error
	)
	if r.users, err = users.NewMongoUserRepository(ctx, db.Collection(database.UsersCollection)); err != nil {
		return nil, err
	}
	if r.roles, err = rbac.NewMongoRepository(ctx, db); err != nil {
		return nil, err
	}
	if r.sessions, err = sessions.NewMongoRepository(ctx, db.Collection(database.RefreshSessionsCollection)); err != nil {
		return nil, err
	}
	if r.clients, err = clientrepo.NewMongoRepo(ctx, db.Collection(database.ClientsCollection)); err != nil {
		return nil, err
	}
	if r.statements, err = statements.NewMongoRepository(ctx, db.Collection(database.StatementsCollection)); err != nil {
		return nil, err
	}
	if r.estimations, err = estimation.NewMongoRepository(ctx, db.Collection(database.EstimationsCollection)); err != nil {
		return nil, err
	}
	if r.prospects, err = telemarketing.NewMongoProspectRepository(ctx, db.Collection(database.ProspectsCollection)); err != nil {
		return nil, err
	}
	if r.callSess, err = telemarketing.NewMongoSessionRepository(ctx, db.Collection(database.CallSessionsCollection)); err != nil {
		return nil, err
	}
	if r.callLogs, err = telemarketing.NewMongoCallLogRepository(ctx, db.Collection(database.CallLogsCollection)); err != nil {
		return nil, err
	}
	r.settings = telemarketing.NewMongoSettingsRepository(db.Collection(database.SettingsCollection))
	return &r, nil
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Disposition, Retry-After")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.Log.Level)
	logger.SetFormat(cfg.Log.Format)
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis backs refresh sessions, the access token blacklist, the shared
	// rate limiter and call session locks. Everything degrades to in-process
	// state without it.
	var rdb *redis.Client
	if addr := cfg.Redis.Addr(); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s): %v", addr, err)
			_ = rdb.Close()
			rdb = nil
		} else {
			sessions.SetBlacklistClient(rdb)
			defer rdb.Close()
			logger.Infof("connected to Redis at %s", addr)
		}
	}

	store := memoryRepos()
	var mongoClient *mongo.Client
	if cfg.MongoDB.URI != "" {
		mongoClient, err = database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 5)
		if err != nil {
			logger.Fatalf("mongo: %v", err)
		}
		defer func() { _ = mongoClient.Disconnect(context.Background()) }()
		store, err = mongoRepos(ctx, mongoClient.Database(cfg.MongoDB.Database))
		if err != nil {
			logger.Fatalf("mongo repositories: %v", err)
		}
		logger.Infof("using MongoDB database %q", cfg.MongoDB.Database)
	}
	if rdb != nil {
		store.sessions = sessions.NewRedisRepository(rdb, "session:")
	}

	var objects storage.ObjectStore
	if cfg.MinIO.Endpoint != "" {
		mc, err := storage.NewMinIOStorage(ctx, cfg.MinIO)
		if err != nil {
			logger.Warnf("minio unavailable, statements render inline: %v", err)
		} else {
			objects = mc
		}
	}

	userSvc := users.NewService(store.users)
	sessionSvc := sessions.NewService(store.sessions)
	roleSvc := rbac.NewService(store.roles)
	if err := roleSvc.SeedDefaults(ctx); err != nil {
		logger.Fatalf("seed roles: %v", err)
	}

	clients := clientsvc.New(store.clients, cfg.Telemarketing.PhoneRegion)
	statementSvc := statements.NewService(store.statements, clients, objects, cfg.MinIO.PresignTTL)
	estimationSvc := estimation.NewService(store.estimations, clients)

	settingsSvc := telemarketing.NewSettingsService(store.settings, store.prospects, cfg.Telemarketing)
	if err := settingsSvc.Seed(ctx); err != nil {
		logger.Fatalf("seed telemarketing settings: %v", err)
	}
	prospectSvc := telemarketing.NewProspectService(store.prospects, settingsSvc, cfg.Telemarketing.PhoneRegion)
	engine := telemarketing.NewEngine(telemarketing.EngineOptions{
		Sessions:  store.callSess,
		Logs:      store.callLogs,
		Prospects: store.prospects,
		Settings:  settingsSvc,
		Queue:     prospectSvc,
		Redis:     rdb,
		LockTTL:   cfg.Telemarketing.LockTTL,
	})

	var kc *oidc.Keycloak
	verifier := tokens.ChainVerifier{tokens.NewVerifier(cfg)}
	if cfg.Keycloak.Enabled() {
		kc = oidc.NewKeycloak(cfg.Keycloak)
		if err := kc.Connect(ctx); err != nil {
			logger.Warnf("keycloak discovery failed, only password login is available: %v", err)
			kc = nil
		} else {
			verifier = append(verifier, kc.Verifier())
		}
	}

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(cors(), gin.Logger(), gin.Recovery())

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && rdb != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(rdb, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// ready only when every configured dependency answers
	r.GET("/ready", func(c *gin.Context) {
		ready := true
		deps := map[string]bool{}
		if mongoClient != nil {
			deps["mongo"] = mongoClient.Ping(c.Request.Context(), nil) == nil
			ready = ready && deps["mongo"]
		}
		if rdb != nil {
			deps["redis"] = rdb.Ping(c.Request.Context()).Err() == nil
			ready = ready && deps["redis"]
		}
		if cfg.Keycloak.Enabled() {
			deps["oidc"] = kc != nil
			ready = ready && deps["oidc"]
		}
		deps["objectStore"] = objects != nil
		status, code := "ready", http.StatusOK
		if !ready {
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "deps": deps, "uptime": time.Since(startTime).String()})
	})

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterSwagger(r)

	auth := handlers.NewAuthHandler(cfg, userSvc, sessionSvc, roleSvc, kc)
	auth.Register(r.Group("/"))

	api := r.Group("/api", middleware.AuthMiddleware(verifier))
	auth.RegisterProtected(api)
	handlers.NewUsersHandler(userSvc, roleSvc, sessionSvc).Register(api, roleSvc)
	handlers.RegisterRoleRoutes(api, roleSvc, roleSvc)
	clienthandler.RegisterClientRoutes(api, clients, roleSvc)
	handlers.RegisterStatementRoutes(api, statementSvc, roleSvc)
	handlers.RegisterEstimationRoutes(api, estimationSvc, roleSvc)
	handlers.NewTelemarketingHandler(settingsSvc, prospectSvc, engine, telemarketing.NewCallLogService(store.callLogs)).
		Register(api, roleSvc)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("starting backoffice on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}
