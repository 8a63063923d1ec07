package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const devSecret = "development-secret-key-change-in-production"

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Quota    QuotaConfig
	Events   EventsConfig
	Worker   WorkerConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string `env:"APP_NAME" envDefault:"qhub-auth"`
	Env                   string `env:"APP_ENV" envDefault:"development"`
	Host                  string `env:"APP_HOST" envDefault:"0.0.0.0"`
	Port                  string `env:"APP_PORT" envDefault:"8080"`
	Version               string `env:"APP_VERSION" envDefault:"dev"`
	RequestTimeoutSeconds int    `env:"HTTP_REQUEST_TIMEOUT_SECONDS" envDefault:"30"`
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string `env:"POSTGRES_DSN"`
	MaxConns       int32  `env:"POSTGRES_MAX_CONNS" envDefault:"10"`
	MinConns       int32  `env:"POSTGRES_MIN_CONNS" envDefault:"2"`
	RunMigrations  bool   `env:"POSTGRES_RUN_MIGRATIONS" envDefault:"true"`
	ConnMaxIdleSec int32  `env:"POSTGRES_CONN_MAX_IDLE_SECONDS" envDefault:"30"`
	ConnMaxLifeSec int32  `env:"POSTGRES_CONN_MAX_LIFE_SECONDS" envDefault:"300"`
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret  string        `env:"AUTH_JWT_SECRET" envDefault:"development-secret-key-change-in-production"`
	TokenTTL   time.Duration `env:"AUTH_TOKEN_TTL" envDefault:"24h"`
	BcryptCost int           `env:"AUTH_BCRYPT_COST" envDefault:"12"`
}

// QuotaConfig selects the usage counter backend: postgres, redis or memory.
// Empty picks postgres when a DSN is configured and memory otherwise.
type QuotaConfig struct {
	Backend     string `env:"QUOTA_BACKEND"`
	RedisPrefix string `env:"QUOTA_REDIS_PREFIX" envDefault:"quota"`
}

// EventsConfig controls publication of auth events to RabbitMQ.
type EventsConfig struct {
	AMQPURL string `env:"EVENTS_AMQP_URL"`
	Queue   string `env:"EVENTS_QUEUE" envDefault:"auth.events"`
}

// WorkerConfig configures background maintenance.
type WorkerConfig struct {
	SessionSweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"15m"`
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("AUTH_JWT_SECRET must not be empty")
	}
	if c.Auth.BcryptCost < 10 {
		return fmt.Errorf("AUTH_BCRYPT_COST must be at least 10, got %d", c.Auth.BcryptCost)
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("AUTH_TOKEN_TTL must be positive, got %s", c.Auth.TokenTTL)
	}
	switch c.QuotaBackend() {
	case "postgres", "redis", "memory":
	default:
		return fmt.Errorf("unsupported QUOTA_BACKEND %q", c.Quota.Backend)
	}
	if c.QuotaBackend() == "postgres" && c.Postgres.DSN == "" {
		return errors.New("QUOTA_BACKEND=postgres requires POSTGRES_DSN")
	}
	if c.QuotaBackend() == "redis" && c.Redis.Addr == "" {
		return errors.New("QUOTA_BACKEND=redis requires REDIS_ADDR")
	}
	return nil
}

// QuotaBackend resolves the effective usage counter backend.
func (c *Config) QuotaBackend() string {
	backend := strings.ToLower(strings.TrimSpace(c.Quota.Backend))
	if backend != "" {
		return backend
	}
	if c.Postgres.DSN != "" {
		return "postgres"
	}
	return "memory"
}

// UsesDevSecret reports whether the built-in development secret is in use.
func (a AuthConfig) UsesDevSecret() bool {
	return a.JWTSecret == devSecret
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}
