package registration

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/history/id"
	"github.com/xraph/history/internal/entity"
)

// Source tells where Resolve found a registration.
type Source int

const (
	// SourceCache means the registration came from the in-process cache.
	SourceCache Source = iota
	// SourceStore means the cache missed and the store was read.
	SourceStore
)

// Service is the cache-aside front for a registration Store.
type Service struct {
	store  Store
	cache  *Cache
	logger *slog.Logger
}

// NewService creates a Service over store and cache.
func NewService(store Store, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		cache:  cache,
		logger: logger,
	}
}

// Cache returns the underlying cache.
func (svc *Service) Cache() *Cache { return svc.cache }

// Resolve returns the registration for clientID from the cache or, on a
// miss, from the store, repopulating the cache. Store errors, including
// not-found, are returned unchanged.
func (svc *Service) Resolve(ctx context.Context, clientID string) (Cached, Source, error) {
	if c, ok := svc.cache.Get(clientID); ok {
		return c, SourceCache, nil
	}

	reg, err := svc.store.GetRegistration(ctx, clientID)
	if err != nil {
		return Cached{}, SourceStore, err
	}

	c := reg.Cached()
	svc.cache.Put(clientID, c)
	svc.logger.DebugContext(ctx, "registration cache filled", "client_id", clientID)
	return c, SourceStore, nil
}

// Save upserts the registration and puts it in the cache. The write runs
// detached from ctx cancellation, bounded by timeout, so a disconnecting
// caller cannot leave the store and cache disagreeing.
func (svc *Service) Save(ctx context.Context, r *Registration, timeout time.Duration) error {
	if r.ID.IsNil() {
		r.ID = id.NewRegistrationID()
	}
	if r.CreatedAt.IsZero() {
		r.Entity = entity.New()
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := svc.store.UpsertRegistration(wctx, r); err != nil {
		return err
	}

	svc.cache.Put(r.ClientID, r.Cached())
	return nil
}
