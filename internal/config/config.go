package config

import (
	"time"

	"github.com/debtdesk/backoffice/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server        ServerConfig
	MongoDB       MongoDBConfig
	Redis         RedisConfig
	Keycloak      KeycloakConfig
	JWT           JWTConfig
	RateLimit     RateLimitConfig
	MinIO         MinIOConfig
	Telemarketing TelemarketingConfig
	Log           LogConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port, or "" when Redis is not configured.
func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	return r.Host + ":" + r.Port
}

type KeycloakConfig struct {
	URL          string
	Realm        string
	ClientID     string
	ClientSecret string
	// AllowInsecure accepts unsigned ID tokens when discovery fails. Local use only.
	AllowInsecure bool
}

// Enabled reports whether Keycloak login is configured.
func (k KeycloakConfig) Enabled() bool {
	return k.URL != "" && k.Realm != ""
}

type JWTConfig struct {
	Secret          string
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

type MinIOConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	UseSSL     bool
	Bucket     string
	PresignTTL time.Duration
}

// TelemarketingConfig carries the defaults used until an administrator
// saves telemarketing settings.
type TelemarketingConfig struct {
	MaxCallAttempts      int
	AutoNextCall         bool
	AutoNextDelaySeconds int
	MaxBreakMinutes      int
	DailyCallTarget      int
	LockTTL              time.Duration
	PhoneRegion          string
}

type LogConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "5001")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("MONGODB_DATABASE", "backoffice")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("JWT_ISSUER", "backoffice")
	v.SetDefault("JWT_ACCESS_TOKEN_TTL", 15)
	v.SetDefault("JWT_REFRESH_TOKEN_TTL", 10080)
	v.SetDefault("RATE_LIMIT_ENABLED", false)
	v.SetDefault("RATE_LIMIT_USE_REDIS", false)
	v.SetDefault("RATE_LIMIT_RPS", 20.0)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)
	v.SetDefault("MINIO_BUCKET", "backoffice")
	v.SetDefault("MINIO_PRESIGN_TTL_MINUTES", 15)
	v.SetDefault("TELEMARKETING_MAX_CALL_ATTEMPTS", 5)
	v.SetDefault("TELEMARKETING_AUTO_NEXT_CALL", true)
	v.SetDefault("TELEMARKETING_AUTO_NEXT_DELAY_SECONDS", 3)
	v.SetDefault("TELEMARKETING_MAX_BREAK_MINUTES", 15)
	v.SetDefault("TELEMARKETING_DAILY_CALL_TARGET", 100)
	v.SetDefault("TELEMARKETING_LOCK_TTL_SECONDS", 10)
	v.SetDefault("PHONE_REGION", "ID")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("SERVER_PORT"),
			Host:         v.GetString("SERVER_HOST"),
			Environment:  v.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:      v.GetString("MONGODB_URI"),
			Database: v.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Keycloak: KeycloakConfig{
			URL:           v.GetString("KEYCLOAK_URL"),
			Realm:         v.GetString("KEYCLOAK_REALM"),
			ClientID:      v.GetString("KEYCLOAK_CLIENT_ID"),
			ClientSecret:  v.GetString("KEYCLOAK_CLIENT_SECRET"),
			AllowInsecure: v.GetBool("ALLOW_INSECURE_TOKEN"),
		},
		JWT: JWTConfig{
			Secret:          v.GetString("JWT_SECRET"),
			Issuer:          v.GetString("JWT_ISSUER"),
			AccessTokenTTL:  time.Duration(v.GetInt("JWT_ACCESS_TOKEN_TTL")) * time.Minute,
			RefreshTokenTTL: time.Duration(v.GetInt("JWT_REFRESH_TOKEN_TTL")) * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      v.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		MinIO: MinIOConfig{
			Endpoint:   v.GetString("MINIO_ENDPOINT"),
			AccessKey:  v.GetString("MINIO_ACCESS_KEY"),
			SecretKey:  v.GetString("MINIO_SECRET_KEY"),
			UseSSL:     v.GetBool("MINIO_USE_SSL"),
			Bucket:     v.GetString("MINIO_BUCKET"),
			PresignTTL: time.Duration(v.GetInt("MINIO_PRESIGN_TTL_MINUTES")) * time.Minute,
		},
		Telemarketing: TelemarketingConfig{
			MaxCallAttempts:      v.GetInt("TELEMARKETING_MAX_CALL_ATTEMPTS"),
			AutoNextCall:         v.GetBool("TELEMARKETING_AUTO_NEXT_CALL"),
			AutoNextDelaySeconds: v.GetInt("TELEMARKETING_AUTO_NEXT_DELAY_SECONDS"),
			MaxBreakMinutes:      v.GetInt("TELEMARKETING_MAX_BREAK_MINUTES"),
			DailyCallTarget:      v.GetInt("TELEMARKETING_DAILY_CALL_TARGET"),
			LockTTL:              time.Duration(v.GetInt("TELEMARKETING_LOCK_TTL_SECONDS")) * time.Second,
			PhoneRegion:          v.GetString("PHONE_REGION"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
	}

	if cfg.JWT.Secret == "" {
		if cfg.Server.Environment == "production" {
			return nil, ErrMissingSecret
		}
		logger.Warn("JWT_SECRET is not set; using an insecure development secret")
		cfg.JWT.Secret = devSecret
	}
	if cfg.MongoDB.URI == "" {
		logger.Warn("MONGODB_URI is not set; repositories will be kept in memory")
	}

	return cfg, nil
}
