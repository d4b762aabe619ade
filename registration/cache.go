package registration

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Default cache policy.
const (
	DefaultMaxWeight = 32 * 1024 * 1024
	DefaultTTL       = 30 * time.Minute
	DefaultTTI       = 5 * time.Minute
)

// CacheConfig configures a Cache. Zero fields take the defaults.
type CacheConfig struct {
	// MaxWeight bounds the summed weight of all entries.
	MaxWeight int

	// TTL is the lifetime of an entry from insertion.
	TTL time.Duration

	// TTI is the lifetime of an entry from its last access.
	TTI time.Duration

	// SweepInterval is how often the janitor removes expired entries.
	// Defaults to TTI / 5.
	SweepInterval time.Duration

	// Now overrides the clock.
	Now func() time.Time
}

// Cache is a size-weighted LRU cache whose entries expire after TTL from
// insertion or TTI from last access, whichever comes first. It is safe for
// concurrent use.
type Cache struct {
	cfg CacheConfig

	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List // front is most recently used
	weight  int

	cancel context.CancelFunc // set while the janitor runs; guarded by mu
	wg     sync.WaitGroup
}

type cacheEntry struct {
	key        string
	value      Cached
	weight     int
	insertedAt time.Time
	accessedAt time.Time
}

// NewCache creates an empty cache. Call Start to run the expiry janitor.
func NewCache(cfg CacheConfig) *Cache {
	if cfg.MaxWeight <= 0 {
		cfg.MaxWeight = DefaultMaxWeight
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.TTI <= 0 {
		cfg.TTI = DefaultTTI
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = cfg.TTI / 5
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Cache{
		cfg:     cfg,
		entries: make(map[string]*list.Element),
		lru:     list.New(),
	}
}

// Get returns the live entry for clientID and refreshes its idle timer.
func (c *Cache) Get(clientID string) (Cached, bool) {
	now := c.cfg.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[clientID]
	if !ok {
		return Cached{}, false
	}
	e := el.Value.(*cacheEntry)
	if c.expired(e, now) {
		c.remove(el)
		return Cached{}, false
	}
	e.accessedAt = now
	c.lru.MoveToFront(el)
	return e.value, true
}

// Put inserts or replaces the entry for clientID, resetting both timers.
// Least recently used entries are evicted until the cache fits MaxWeight.
func (c *Cache) Put(clientID string, v Cached) {
	now := c.cfg.Now()
	w := len(clientID) + v.weight()

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[clientID]; ok {
		c.remove(el)
	}
	if w > c.cfg.MaxWeight {
		return
	}

	c.entries[clientID] = c.lru.PushFront(&cacheEntry{
		key:        clientID,
		value:      v,
		weight:     w,
		insertedAt: now,
		accessedAt: now,
	})
	c.weight += w

	for c.weight > c.cfg.MaxWeight {
		c.remove(c.lru.Back())
	}
}

// Invalidate drops the entry for clientID.
func (c *Cache) Invalidate(clientID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[clientID]; ok {
		c.remove(el)
	}
}

// Len returns the number of entries, including expired ones not yet swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Weight returns the summed weight of all entries.
func (c *Cache) Weight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.weight
}

// Sweep removes every expired entry and returns how many were removed.
func (c *Cache) Sweep() int {
	now := c.cfg.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for el := c.lru.Back(); el != nil; {
		prev := el.Prev()
		if c.expired(el.Value.(*cacheEntry), now) {
			c.remove(el)
			removed++
		}
		el = prev
	}
	return removed
}

// Start runs the janitor until ctx is cancelled or Stop is called. Calling
// Start again before Stop is a no-op.
func (c *Cache) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Sweep()
			}
		}
	}()
}

// Stop halts the janitor and waits for it to exit.
func (c *Cache) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}

// expired must be called with mu held.
func (c *Cache) expired(e *cacheEntry, now time.Time) bool {
	return now.Sub(e.insertedAt) >= c.cfg.TTL || now.Sub(e.accessedAt) >= c.cfg.TTI
}

// remove must be called with mu held.
func (c *Cache) remove(el *list.Element) {
	e := el.Value.(*cacheEntry)
	c.lru.Remove(el)
	delete(c.entries, e.key)
	c.weight -= e.weight
}
