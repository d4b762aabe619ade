package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/xraph/history/internal/config"
	"github.com/xraph/history/store"
	"github.com/xraph/history/store/memory"
	"github.com/xraph/history/store/mongo"
	"github.com/xraph/history/store/postgres"
	"github.com/xraph/history/store/redis"
)

// overrides holds flag values that take precedence over the environment.
type overrides struct {
	port    int
	backend string
}

// loadConfig reads the environment, applies the flag overrides and then
// validates the result.
func loadConfig(o overrides) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.backend != "" {
		cfg.StoreBackend = o.backend
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openStore connects to the configured backend and applies migrations.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	var (
		s   store.Store
		err error
	)
	switch cfg.StoreBackend {
	case config.BackendMongo:
		s, err = mongo.Connect(ctx, cfg.MongoAddress, cfg.MongoDatabase)
	case config.BackendPostgres:
		s, err = postgres.Open(ctx, cfg.DatabaseURL)
	case config.BackendRedis:
		s, err = redis.Connect(ctx, cfg.RedisAddr)
	case config.BackendMemory:
		s = memory.New()
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	if err != nil {
		return nil, err
	}

	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}
