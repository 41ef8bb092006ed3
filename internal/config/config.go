package config

import (
	"fmt"
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Session backends accepted by SESSION_BACKEND.
const (
	SessionBackendPostgres = "postgres"
	SessionBackendMemory   = "memory"
)

// Config holds the application's configuration values.
// Tags like `envconfig:"APP_ENV"` specify the environment variable name.
type Config struct {
	AppEnv     string `envconfig:"APP_ENV" default:"development"` // e.g., development, staging, production
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
	HttpServer ServerConfig
	GrpcServer GrpcServerConfig
	Postgres   PostgresConfig
	Session    SessionConfig
	Catalog    CatalogConfig

	MigrateOnStart  bool `envconfig:"MIGRATE_ON_START" default:"true"`
	AdminAPIEnabled bool `envconfig:"ADMIN_API_ENABLED" default:"false"` // Mounts the unauthenticated catalog CRUD under /api/admin
}

// ServerConfig holds HTTP server-specific configurations.
type ServerConfig struct {
	Port         string        `envconfig:"HTTP_SERVER_PORT" default:"8080"`
	TimeoutRead  time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_READ" default:"15s"`
	TimeoutWrite time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_WRITE" default:"15s"`
	TimeoutIdle  time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_IDLE" default:"60s"`
}

// GrpcServerConfig holds gRPC server-specific configurations.
type GrpcServerConfig struct {
	Port string `envconfig:"GRPC_SERVER_PORT" default:"9090"`
}

// PostgresConfig holds PostgreSQL database connection details.
type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" required:"true"`
	Port     string `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" required:"true"`
	Password string `envconfig:"POSTGRES_PASSWORD" required:"true"`
	DBName   string `envconfig:"POSTGRES_DBNAME" required:"true"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
}

// SessionConfig controls the visitor session cookie and where session data lives.
type SessionConfig struct {
	Backend      string        `envconfig:"SESSION_BACKEND" default:"postgres"`
	CookieName   string        `envconfig:"SESSION_COOKIE_NAME" default:"sessionid"`
	TTL          time.Duration `envconfig:"SESSION_TTL" default:"336h"`
	CookieSecure bool          `envconfig:"SESSION_COOKIE_SECURE" default:"false"`
	CleanupEvery time.Duration `envconfig:"SESSION_CLEANUP_INTERVAL" default:"1h"`
	CartKey      string        `envconfig:"CART_SESSION_KEY" default:"cart"`
}

// CatalogConfig holds page sizes for the HTML and JSON catalog listings.
type CatalogConfig struct {
	PageSize       int `envconfig:"CATALOG_PAGE_SIZE" default:"6"`
	APIPageSize    int `envconfig:"API_PAGE_SIZE" default:"10"`
	APIMaxPageSize int `envconfig:"API_MAX_PAGE_SIZE" default:"100"`
}

// DSN constructs the Data Source Name string for connecting to PostgreSQL.
func (pc *PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		pc.Host, pc.Port, pc.User, pc.Password, pc.DBName, pc.SSLMode)
}

// URL returns the connection string in URL form, as expected by the migration driver.
func (pc *PostgresConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		pc.User, pc.Password, pc.Host, pc.Port, pc.DBName, pc.SSLMode)
}

// Load initializes the configuration from environment variables.
// It should be called once during application startup.
func Load() (*Config, error) {
	log.Println("Loading service configuration...")
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process configuration: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	log.Printf("Configuration loaded successfully for APP_ENV: %s", cfg.AppEnv)
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Session.Backend {
	case SessionBackendPostgres, SessionBackendMemory:
	default:
		return fmt.Errorf("invalid SESSION_BACKEND %q: must be %q or %q",
			c.Session.Backend, SessionBackendPostgres, SessionBackendMemory)
	}
	if c.Session.CleanupEvery <= 0 {
		return fmt.Errorf("SESSION_CLEANUP_INTERVAL must be positive")
	}
	if c.Session.CartKey == "" {
		return fmt.Errorf("CART_SESSION_KEY must not be empty")
	}
	if c.Catalog.PageSize <= 0 || c.Catalog.APIPageSize <= 0 {
		return fmt.Errorf("page sizes must be positive")
	}
	if c.Catalog.APIMaxPageSize < c.Catalog.APIPageSize {
		return fmt.Errorf("API_MAX_PAGE_SIZE (%d) cannot be smaller than API_PAGE_SIZE (%d)",
			c.Catalog.APIMaxPageSize, c.Catalog.APIPageSize)
	}
	return nil
}
