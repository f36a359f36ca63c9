package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultPath is the config file read when no --config flag is given.
const DefaultPath = "config.yaml"

// Config holds all configuration for the registry.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"30s"`

	Log        LogConfig        `yaml:"log"`
	Auth       AuthConfig       `yaml:"auth"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	EntityCard EntityCardConfig `yaml:"entity_card"`
	Sync       SyncConfig       `yaml:"sync"`
	RateLimits RateLimitConfig  `yaml:"rate_limits"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	Refresh    RefreshConfig    `yaml:"refresh"`

	// MigrationsPath is the directory holding SQL migrations.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"` // json or console
}

// AuthConfig holds provider authentication configuration.
type AuthConfig struct {
	// EnableVerification controls whether dashboard JWT signatures are verified.
	// Set to false for local development without an auth server.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	// Format: "issuer1=url1,issuer2=url2"
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"dockai"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"dockai_registry"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// RedisConfig holds the optional Redis connection used for the Entity Card
// cache. An empty host disables Redis and the in-memory cache is used.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// EntityCardConfig controls fetching and caching of Entity Cards.
type EntityCardConfig struct {
	FetchTimeout time.Duration `yaml:"fetch_timeout" env:"ENTITY_CARD_FETCH_TIMEOUT" env-default:"5s"`
	CacheTTL     time.Duration `yaml:"cache_ttl" env:"ENTITY_CARD_CACHE_TTL" env-default:"1h"`
	NegativeTTL  time.Duration `yaml:"negative_ttl" env:"ENTITY_CARD_NEGATIVE_TTL" env-default:"5m"`
	MaxBytes     int64         `yaml:"max_bytes" env:"ENTITY_CARD_MAX_BYTES" env-default:"1048576"`
	UserAgent    string        `yaml:"user_agent" env:"ENTITY_CARD_USER_AGENT" env-default:"DockAI-Registry/1.0 (+https://dockai.co)"`
	// Scheme is "https" in production; tests point it at plain HTTP servers.
	Scheme string `yaml:"scheme" env:"ENTITY_CARD_SCHEME" env-default:"https"`
}

// SyncConfig controls provider bulk ingestion.
type SyncConfig struct {
	AsyncThreshold int `yaml:"async_threshold" env:"SYNC_ASYNC_THRESHOLD" env-default:"1000"`
	ChunkSize      int `yaml:"chunk_size" env:"SYNC_CHUNK_SIZE" env-default:"500"`
	Workers        int `yaml:"workers" env:"SYNC_WORKERS" env-default:"2"`
	MaxOperations  int `yaml:"max_operations" env:"SYNC_MAX_OPERATIONS" env-default:"1000"`
	MaxRetries     int `yaml:"max_retries" env:"SYNC_MAX_RETRIES" env-default:"3"`
	QueueHistory   int `yaml:"queue_history" env:"SYNC_QUEUE_HISTORY" env-default:"100"`
}

// RateLimitConfig holds per endpoint class limits in requests per minute.
type RateLimitConfig struct {
	Enabled  bool `yaml:"enabled" env:"RATE_LIMIT_ENABLED" env-default:"true"`
	Resolve  int  `yaml:"resolve" env:"RATE_LIMIT_RESOLVE" env-default:"100"`
	Submit   int  `yaml:"submit" env:"RATE_LIMIT_SUBMIT" env-default:"10"`
	Sync     int  `yaml:"sync" env:"RATE_LIMIT_SYNC" env-default:"100"`
	Register int  `yaml:"register" env:"RATE_LIMIT_REGISTER" env-default:"200"`
}

// DiscoveryConfig controls pending provider detection.
type DiscoveryConfig struct {
	Enabled     bool   `yaml:"enabled" env:"DISCOVERY_ENABLED" env-default:"true"`
	CatalogPath string `yaml:"catalog_path" env:"DISCOVERY_CATALOG_PATH" env-default:""` // Empty uses the built-in catalog
}

// RefreshConfig controls scheduled Entity Card revalidation.
type RefreshConfig struct {
	Enabled  bool   `yaml:"enabled" env:"REFRESH_ENABLED" env-default:"true"`
	Schedule string `yaml:"schedule" env:"REFRESH_SCHEDULE" env-default:"@every 1h"`
	// BatchSize caps how many indexed cards are revalidated per run.
	BatchSize int `yaml:"batch_size" env:"REFRESH_BATCH_SIZE" env-default:"200"`
}

// Load reads configuration from path with environment variable overrides.
// A missing file is not an error when path is the default: every field has an
// env binding and a default. The version parameter is injected at build time.
func Load(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if path == "" {
		path = DefaultPath
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		if path != DefaultPath || !isNotExist(err) {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	cfg.Auth.JWKSEndpoints = parseJWKSEndpoints(cfg.Auth.JWKSEndpointsStr)
	cfg.Database.Host = ResolveHostForDocker(cfg.Database.Host)
	if cfg.Redis.Host != "" {
		cfg.Redis.Host = ResolveHostForDocker(cfg.Redis.Host)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Auto-derive BaseURL from Port if not explicitly set
	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Sync.AsyncThreshold <= 0 {
		return fmt.Errorf("sync.async_threshold must be positive")
	}
	if c.Sync.ChunkSize <= 0 {
		return fmt.Errorf("sync.chunk_size must be positive")
	}
	if c.Sync.Workers <= 0 {
		return fmt.Errorf("sync.workers must be positive")
	}
	if c.Sync.MaxOperations <= 0 {
		return fmt.Errorf("sync.max_operations must be positive")
	}
	if c.EntityCard.FetchTimeout <= 0 {
		return fmt.Errorf("entity_card.fetch_timeout must be positive")
	}
	if c.EntityCard.Scheme != "https" && c.EntityCard.Scheme != "http" {
		return fmt.Errorf("entity_card.scheme must be http or https, got %q", c.EntityCard.Scheme)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	return nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// parseJWKSEndpoints parses the JWKS endpoints string into a map.
// Format: "issuer1=url1,issuer2=url2"
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	if value == "" {
		return endpoints
	}

	for _, pair := range strings.Split(value, ",") {
		issuer, jwksURL, ok := strings.Cut(pair, "=")
		if ok {
			endpoints[strings.TrimSpace(issuer)] = strings.TrimSpace(jwksURL)
		}
	}
	return endpoints
}

// ConnectionString returns a PostgreSQL connection URL.
func (c *DatabaseConfig) ConnectionString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// Addr returns the host:port of the Redis server.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
