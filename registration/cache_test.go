package registration

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func sample(relayID string) Cached {
	return Cached{
		Tags:     []uint32{4000, 4001},
		RelayURL: "https://relay.example.com",
		RelayID:  relayID,
	}
}

func TestCache_PutGet(t *testing.T) {
	c := NewCache(CacheConfig{})

	if _, ok := c.Get("client-1"); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Put("client-1", sample("relay-1"))
	got, ok := c.Get("client-1")
	if !ok {
		t.Fatal("expected hit")
	}
	if got.RelayID != "relay-1" || !got.HasTag(4001) || got.HasTag(1) {
		t.Fatalf("unexpected entry %+v", got)
	}
}

func TestCache_PutReplaces(t *testing.T) {
	c := NewCache(CacheConfig{})
	c.Put("client-1", sample("relay-1"))
	c.Put("client-1", sample("relay-2"))

	got, _ := c.Get("client-1")
	if got.RelayID != "relay-2" {
		t.Fatalf("expected replaced entry, got %q", got.RelayID)
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", c.Len())
	}
	if want := len("client-1") + sample("relay-2").weight(); c.Weight() != want {
		t.Fatalf("expected weight %d, got %d", want, c.Weight())
	}
}

func TestCache_TimeToLive(t *testing.T) {
	clock := newFakeClock()
	c := NewCache(CacheConfig{TTL: 30 * time.Minute, TTI: 5 * time.Minute, Now: clock.Now})
	c.Put("client-1", sample("relay-1"))

	// Keep the entry busy so only the TTL can expire it.
	for range 7 {
		clock.Advance(4 * time.Minute)
		if _, ok := c.Get("client-1"); !ok {
			t.Fatal("expected hit while accessed within TTI and TTL")
		}
	}

	clock.Advance(4 * time.Minute) // 32 minutes since insertion
	if _, ok := c.Get("client-1"); ok {
		t.Fatal("expected entry to expire after TTL")
	}
}

func TestCache_TimeToIdle(t *testing.T) {
	clock := newFakeClock()
	c := NewCache(CacheConfig{TTL: 30 * time.Minute, TTI: 5 * time.Minute, Now: clock.Now})
	c.Put("client-1", sample("relay-1"))

	clock.Advance(4 * time.Minute)
	if _, ok := c.Get("client-1"); !ok {
		t.Fatal("expected hit within TTI")
	}

	clock.Advance(5 * time.Minute)
	if _, ok := c.Get("client-1"); ok {
		t.Fatal("expected entry to expire after TTI")
	}
	if c.Len() != 0 {
		t.Fatalf("expected expired entry removed, got %d entries", c.Len())
	}
}

func TestCache_WeightEviction(t *testing.T) {
	entry := sample("relay-1")
	per := len("client-0") + entry.weight()
	c := NewCache(CacheConfig{MaxWeight: 3 * per})

	c.Put("client-0", entry)
	c.Put("client-1", entry)
	c.Put("client-2", entry)

	// Touch client-0 so client-1 becomes least recently used.
	if _, ok := c.Get("client-0"); !ok {
		t.Fatal("expected client-0 hit")
	}
	c.Put("client-3", entry)

	if _, ok := c.Get("client-1"); ok {
		t.Fatal("expected client-1 to be evicted")
	}
	for _, key := range []string{"client-0", "client-2", "client-3"} {
		if _, ok := c.Get(key); !ok {
			t.Fatalf("expected %s to survive", key)
		}
	}
	if c.Weight() > 3*per {
		t.Fatalf("weight %d exceeds max %d", c.Weight(), 3*per)
	}
}

func TestCache_OversizedEntryNotStored(t *testing.T) {
	c := NewCache(CacheConfig{MaxWeight: 8})
	c.Put("client-1", sample("relay-1"))
	if c.Len() != 0 {
		t.Fatalf("expected oversized entry to be dropped, got %d entries", c.Len())
	}
}

func TestCache_Sweep(t *testing.T) {
	clock := newFakeClock()
	c := NewCache(CacheConfig{TTI: time.Minute, Now: clock.Now})
	c.Put("old", sample("relay-1"))
	clock.Advance(2 * time.Minute)
	c.Put("new", sample("relay-1"))

	if n := c.Sweep(); n != 1 {
		t.Fatalf("expected 1 swept entry, got %d", n)
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 remaining entry, got %d", c.Len())
	}
}

func TestCache_Janitor(t *testing.T) {
	clock := newFakeClock()
	c := NewCache(CacheConfig{TTI: time.Minute, SweepInterval: 5 * time.Millisecond, Now: clock.Now})
	c.Start(context.Background())
	defer c.Stop()

	c.Put("client-1", sample("relay-1"))
	clock.Advance(2 * time.Minute)

	deadline := time.Now().Add(2 * time.Second)
	for c.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("janitor did not remove expired entry")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCache_StartTwiceThenStop(t *testing.T) {
	c := NewCache(CacheConfig{SweepInterval: time.Millisecond})
	c.Start(context.Background())
	c.Start(context.Background())

	done := make(chan struct{})
	go func() {
		c.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return; a janitor was left running")
	}

	// The cache can be restarted after Stop.
	c.Start(context.Background())
	c.Stop()
}

func TestCache_Concurrent(t *testing.T) {
	c := NewCache(CacheConfig{})

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("client-%d", n%4)
			for range 200 {
				c.Put(key, sample(key))
				if got, ok := c.Get(key); ok && got.RelayID != key {
					t.Errorf("key %s returned relay %s", key, got.RelayID)
				}
			}
		}(i)
	}
	wg.Wait()

	if c.Len() != 4 {
		t.Fatalf("expected 4 entries, got %d", c.Len())
	}
}
