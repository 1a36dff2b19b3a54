package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server   ServerConfig
	App      AppConfig
	Store    StoreConfig
	Redis    RedisConfig
	Sync     SyncConfig
	Presence PresenceConfig
	Scanner  ScannerConfig
	Cache    CacheConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string   `envconfig:"APP_NAME" default:"stocktake-api"`
	Environment string   `envconfig:"APP_ENV" default:"development"`
	Version     string   `envconfig:"APP_VERSION" default:"1.0.0"`
	APIKeys     []string `envconfig:"API_KEYS"` // empty = auth disabled
}

// StoreConfig holds document store settings.
type StoreConfig struct {
	Type string `envconfig:"STORE_TYPE" default:"sqlite"` // sqlite, mongodb, or memory
	Path string `envconfig:"STORE_PATH" default:"./data/stocktake.db"`

	MongoURI      string `envconfig:"MONGODB_URI" default:""`
	MongoDatabase string `envconfig:"MONGODB_DATABASE" default:"stocktake"`
}

// RedisConfig holds Redis connection settings. Redis backs presence
// records, the event stream, and operator preferences; the server falls
// back to in-memory equivalents when it is unreachable.
type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// SyncConfig tunes the bulk upload/delete engine.
type SyncConfig struct {
	BatchSize  int           `envconfig:"SYNC_BATCH_SIZE" default:"200"`
	PageSize   int           `envconfig:"SYNC_PAGE_SIZE" default:"100"`
	MaxRetries int           `envconfig:"SYNC_MAX_RETRIES" default:"3"`
	RetryDelay time.Duration `envconfig:"SYNC_RETRY_DELAY" default:"1s"`
	Throttle   time.Duration `envconfig:"SYNC_THROTTLE" default:"300ms"`
}

// PresenceConfig tunes the advisory presence heartbeat.
type PresenceConfig struct {
	Interval time.Duration `envconfig:"PRESENCE_INTERVAL" default:"30s"`
	TTL      time.Duration `envconfig:"PRESENCE_TTL" default:"90s"`
}

// ScannerConfig tunes barcode token acceptance.
type ScannerConfig struct {
	MinLength int `envconfig:"SCANNER_MIN_LENGTH" default:"1"`
	MaxLength int `envconfig:"SCANNER_MAX_LENGTH" default:"50"`

	// ScanTimeout is the inter-keystroke gap below which input would be
	// considered scanner-typed. Recorded for tuning but not consulted:
	// Enter-termination is the sole completion signal.
	ScanTimeout time.Duration `envconfig:"SCANNER_SCAN_TIMEOUT" default:"100ms"`
}

// CacheConfig holds cache TTLs.
type CacheConfig struct {
	SessionListTTL time.Duration `envconfig:"CACHE_SESSION_LIST_TTL" default:"5s"`
	PreferenceTTL  time.Duration `envconfig:"CACHE_PREFERENCE_TTL" default:"720h"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Address returns the Redis address in host:port format.
func (r *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
