package config

import (
	"log/slog"
	"testing"
	"time"
)

var allEnvVars = []string{
	"PORT", "PUBLIC_URL", "LOG_LEVEL", "RELAY_URL", "RELAY_PROJECT_ID", "RELAY_TIMEOUT",
	"VALIDATE_SIGNATURES", "STORE_BACKEND", "MONGO_ADDRESS", "MONGO_DATABASE",
	"DATABASE_URL", "REDIS_ADDR", "TELEMETRY_PROMETHEUS_PORT", "CACHE_MAX_WEIGHT",
	"CACHE_TTL", "CACHE_TTI", "HISTORY_RATE_LIMIT",
}

func clearAllEnv(t *testing.T) {
	t.Helper()
	for _, key := range allEnvVars {
		t.Setenv(key, "")
	}
}

func setEnv(t *testing.T, env map[string]string) {
	t.Helper()
	for k, v := range env {
		t.Setenv(k, v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearAllEnv(t)
	setEnv(t, map[string]string{
		"PUBLIC_URL":    "https://history.example.com",
		"MONGO_ADDRESS": "mongodb://localhost:27017",
	})

	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if c.Port != 3001 {
		t.Errorf("Port = %d, want 3001", c.Port)
	}
	if c.LogLevel != slog.LevelWarn {
		t.Errorf("LogLevel = %v, want WARN", c.LogLevel)
	}
	if c.RelayURL != "https://relay.walletconnect.com" {
		t.Errorf("RelayURL = %q", c.RelayURL)
	}
	if c.RelayTimeout != 10*time.Second {
		t.Errorf("RelayTimeout = %v, want 10s", c.RelayTimeout)
	}
	if !c.ValidateSignatures {
		t.Error("ValidateSignatures should default to true")
	}
	if c.StoreBackend != BackendMongo || c.MongoDatabase != "history" {
		t.Errorf("unexpected store settings %q / %q", c.StoreBackend, c.MongoDatabase)
	}
	if c.PrometheusPort != 0 || c.HistoryRateLimit != 0 {
		t.Errorf("unexpected optional settings %d / %d", c.PrometheusPort, c.HistoryRateLimit)
	}
	cc := c.CacheConfig()
	if cc.MaxWeight != 32*1024*1024 || cc.TTL != 30*time.Minute || cc.TTI != 5*time.Minute {
		t.Errorf("unexpected cache config %+v", cc)
	}
}

func TestLoad_Custom(t *testing.T) {
	clearAllEnv(t)
	setEnv(t, map[string]string{
		"PUBLIC_URL":                "https://history.example.com",
		"PORT":                      "8080",
		"LOG_LEVEL":                 "debug",
		"RELAY_TIMEOUT":             "3s",
		"VALIDATE_SIGNATURES":       "false",
		"STORE_BACKEND":             "Postgres",
		"DATABASE_URL":              "postgres://localhost/history",
		"TELEMETRY_PROMETHEUS_PORT": "9090",
		"CACHE_TTI":                 "1m",
		"HISTORY_RATE_LIMIT":        "20",
	})

	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Port != 8080 || c.LogLevel != slog.LevelDebug || c.RelayTimeout != 3*time.Second {
		t.Errorf("unexpected config %+v", c)
	}
	if c.ValidateSignatures {
		t.Error("ValidateSignatures should be false")
	}
	if c.StoreBackend != BackendPostgres {
		t.Errorf("StoreBackend = %q, want postgres", c.StoreBackend)
	}
	if c.PrometheusPort != 9090 || c.CacheTTI != time.Minute || c.HistoryRateLimit != 20 {
		t.Errorf("unexpected config %+v", c)
	}
}

func TestLoad_Errors(t *testing.T) {
	for _, tc := range []struct {
		name string
		env  map[string]string
	}{
		{"BadPort", map[string]string{"PORT": "http"}},
		{"BadDuration", map[string]string{"CACHE_TTL": "soon"}},
		{"BadBool", map[string]string{"VALIDATE_SIGNATURES": "maybe"}},
		{"BadLogLevel", map[string]string{"LOG_LEVEL": "loud"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clearAllEnv(t)
			setEnv(t, tc.env)
			if _, err := Load(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoad_DefersRequirements(t *testing.T) {
	clearAllEnv(t)

	// The default mongo backend without MONGO_ADDRESS, and no PUBLIC_URL.
	c, err := Load()
	if err != nil {
		t.Fatalf("Load should not check requirements: %v", err)
	}
	if err := c.Validate(); err == nil {
		t.Fatal("expected Validate to reject the incomplete config")
	}
}

func TestValidate_Errors(t *testing.T) {
	for _, tc := range []struct {
		name string
		env  map[string]string
	}{
		{"MissingPublicURL", map[string]string{"STORE_BACKEND": "memory"}},
		{"MissingMongoAddress", map[string]string{"PUBLIC_URL": "https://h"}},
		{"MissingDatabaseURL", map[string]string{"PUBLIC_URL": "https://h", "STORE_BACKEND": "postgres"}},
		{"MissingRedisAddr", map[string]string{"PUBLIC_URL": "https://h", "STORE_BACKEND": "redis"}},
		{"UnknownBackend", map[string]string{"PUBLIC_URL": "https://h", "STORE_BACKEND": "cassandra"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clearAllEnv(t)
			setEnv(t, tc.env)
			c, err := Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if err := c.Validate(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
