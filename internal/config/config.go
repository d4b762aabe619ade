// Package config loads the History server configuration from the
// environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xraph/history/registration"
)

// Store backends.
const (
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Config is the server configuration. Load fills it from the environment;
// Validate checks it once command-line overrides have been applied.
type Config struct {
	Port      int        // PORT (default 3001)
	PublicURL string     // PUBLIC_URL (required)
	LogLevel  slog.Level // LOG_LEVEL (default warn)

	// Relay
	RelayURL           string        // RELAY_URL (default https://relay.walletconnect.com)
	RelayProjectID     string        // RELAY_PROJECT_ID (optional)
	RelayTimeout       time.Duration // RELAY_TIMEOUT (default 10s)
	ValidateSignatures bool          // VALIDATE_SIGNATURES (default true)

	// Storage
	StoreBackend  string // STORE_BACKEND (mongo|postgres|redis|memory, default mongo)
	MongoAddress  string // MONGO_ADDRESS (required for mongo)
	MongoDatabase string // MONGO_DATABASE (default "history")
	DatabaseURL   string // DATABASE_URL (required for postgres)
	RedisAddr     string // REDIS_ADDR (required for redis)

	// Telemetry
	PrometheusPort int // TELEMETRY_PROMETHEUS_PORT (optional, 0 = disabled)

	// Registration cache
	CacheMaxWeight int           // CACHE_MAX_WEIGHT (bytes, default 32MiB)
	CacheTTL       time.Duration // CACHE_TTL (default 30m)
	CacheTTI       time.Duration // CACHE_TTI (default 5m)

	HistoryRateLimit int // HISTORY_RATE_LIMIT (requests/sec per client, 0 = unlimited)
}

// Load reads the configuration from the environment, applying defaults. It
// reports malformed values but does not check cross-field requirements; call
// Validate for those.
func Load() (*Config, error) {
	c := &Config{
		PublicURL:      os.Getenv("PUBLIC_URL"),
		RelayURL:       envOrDefault("RELAY_URL", "https://relay.walletconnect.com"),
		RelayProjectID: os.Getenv("RELAY_PROJECT_ID"),
		StoreBackend:   strings.ToLower(envOrDefault("STORE_BACKEND", BackendMongo)),
		MongoAddress:   os.Getenv("MONGO_ADDRESS"),
		MongoDatabase:  envOrDefault("MONGO_DATABASE", "history"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
	}
	var err error
	if c.Port, err = envInt("PORT", 3001); err != nil {
		return nil, err
	}
	if c.PrometheusPort, err = envInt("TELEMETRY_PROMETHEUS_PORT", 0); err != nil {
		return nil, err
	}
	if c.CacheMaxWeight, err = envInt("CACHE_MAX_WEIGHT", registration.DefaultMaxWeight); err != nil {
		return nil, err
	}
	if c.HistoryRateLimit, err = envInt("HISTORY_RATE_LIMIT", 0); err != nil {
		return nil, err
	}
	if c.RelayTimeout, err = envDuration("RELAY_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if c.CacheTTL, err = envDuration("CACHE_TTL", registration.DefaultTTL.String()); err != nil {
		return nil, err
	}
	if c.CacheTTI, err = envDuration("CACHE_TTI", registration.DefaultTTI.String()); err != nil {
		return nil, err
	}

	validate, err := strconv.ParseBool(envOrDefault("VALIDATE_SIGNATURES", "true"))
	if err != nil {
		return nil, fmt.Errorf("VALIDATE_SIGNATURES: %w", err)
	}
	c.ValidateSignatures = validate

	if err := c.LogLevel.UnmarshalText([]byte(envOrDefault("LOG_LEVEL", "warn"))); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return c, nil
}

// Validate checks the required settings, including the connection setting
// of the selected store backend.
func (c *Config) Validate() error {
	if c.PublicURL == "" {
		return fmt.Errorf("PUBLIC_URL is required")
	}
	switch c.StoreBackend {
	case BackendMongo:
		if c.MongoAddress == "" {
			return fmt.Errorf("MONGO_ADDRESS is required for the mongo store")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis store")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q (must be mongo, postgres, redis or memory)", c.StoreBackend)
	}
	return nil
}

// CacheConfig returns the registration cache settings.
func (c *Config) CacheConfig() registration.CacheConfig {
	return registration.CacheConfig{
		MaxWeight: c.CacheMaxWeight,
		TTL:       c.CacheTTL,
		TTI:       c.CacheTTI,
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
