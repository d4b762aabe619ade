// Package registration holds the client→relay bindings that authorize
// webhook deliveries, and the cache-aside layer in front of their store.
package registration

import (
	"context"
	"slices"

	"github.com/xraph/history/id"
	"github.com/xraph/history/internal/entity"
)

// Registration binds a client identity to the relay and tags it registered
// with. There is at most one per ClientID.
type Registration struct {
	entity.Entity
	ID       id.ID    `json:"id"`
	ClientID string   `json:"clientId"`
	Tags     []uint32 `json:"tags"`
	RelayURL string   `json:"relayUrl"`
	RelayID  string   `json:"relayId"`
}

// Cached returns the projection kept in the Cache.
func (r *Registration) Cached() Cached {
	return Cached{
		Tags:     slices.Clone(r.Tags),
		RelayURL: r.RelayURL,
		RelayID:  r.RelayID,
	}
}

// Cached is the cached projection of a Registration. The client id is the
// cache key.
type Cached struct {
	Tags     []uint32
	RelayURL string
	RelayID  string
}

// HasTag reports whether tag is one of the registered tags.
func (c Cached) HasTag(tag uint32) bool {
	return slices.Contains(c.Tags, tag)
}

// weight approximates the memory held by an entry.
func (c Cached) weight() int {
	return len(c.RelayURL) + len(c.RelayID) + 4*len(c.Tags)
}

// Store defines the persistence contract for registrations.
type Store interface {
	// UpsertRegistration inserts r or fully replaces the registration with the
	// same ClientID. An existing registration keeps its ID and CreatedAt; r is
	// updated to reflect the stored values.
	UpsertRegistration(ctx context.Context, r *Registration) error

	// GetRegistration returns the registration for clientID, or an error
	// wrapping history.ErrRegistrationNotFound.
	GetRegistration(ctx context.Context, clientID string) (*Registration, error)
}
