// Package redis implements store.Store on Redis via Grove KV.
//
// Each message is a JSON document under its own key. A per-topic sorted set
// of score-0 members, ordered lexicographically, carries the log order used
// for pagination.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/grove/kv"
	"github.com/xraph/grove/kv/drivers/redisdriver"

	historystore "github.com/xraph/history/store"
)

// compile-time interface check
var _ historystore.Store = (*Store)(nil)

// maxTxRetries bounds optimistic transaction retries on contended keys.
const maxTxRetries = 5

// Store implements store.Store using Redis via Grove KV.
type Store struct {
	kv  *kv.Store
	rdb goredis.UniversalClient
}

// New creates a new Redis store backed by Grove KV.
func New(store *kv.Store) *Store {
	return &Store{
		kv:  store,
		rdb: redisdriver.UnwrapClient(store),
	}
}

// Connect opens a driver for addr, which is either host:port or a redis://
// URL, and verifies connectivity.
func Connect(ctx context.Context, addr string) (*Store, error) {
	dsn := addr
	if !strings.Contains(dsn, "://") {
		dsn = "redis://" + dsn
	}
	drv := redisdriver.New()
	if err := drv.Open(ctx, dsn); err != nil {
		_ = drv.Close()
		return nil, fmt.Errorf("history/redis: connect: %w", err)
	}
	store, err := kv.Open(drv)
	if err != nil {
		_ = drv.Close()
		return nil, fmt.Errorf("history/redis: open kv: %w", err)
	}
	return New(store), nil
}

// KV returns the underlying grove KV store.
func (s *Store) KV() *kv.Store { return s.kv }

// Migrate is a no-op for Redis (no schema migrations needed).
func (s *Store) Migrate(_ context.Context) error {
	return nil
}

// Ping checks Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.kv.Ping(ctx)
}

// Close closes the KV store.
func (s *Store) Close() error {
	return s.kv.Close()
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNotFound checks if an error is a KV not-found sentinel.
func isNotFound(err error) bool {
	return errors.Is(err, kv.ErrNotFound)
}

// isRedisNil checks if an error is a Redis nil (key not found).
func isRedisNil(err error) bool {
	return errors.Is(err, goredis.Nil)
}

// getEntity retrieves and decodes a JSON entity from a KV key.
func (s *Store) getEntity(ctx context.Context, key string, dest any) error {
	raw, err := s.kv.GetRaw(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// getWatched reads a JSON entity inside an optimistic transaction. It
// returns goredis.Nil when the key does not exist.
func getWatched(ctx context.Context, tx *goredis.Tx, key string, dest any) error {
	raw, err := tx.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// watch runs fn in an optimistic transaction over keys, retrying when a
// watched key changes underneath it.
func (s *Store) watch(ctx context.Context, fn func(*goredis.Tx) error, keys ...string) error {
	var err error
	for range maxTxRetries {
		err = s.rdb.Watch(ctx, fn, keys...)
		if !errors.Is(err, goredis.TxFailedErr) {
			return err
		}
	}
	return err
}
