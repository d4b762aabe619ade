// Package store defines the composite Store interface for all History
// persistence.
//
// Each subsystem defines its own store interface and the aggregate Store
// composes them.
package store

import (
	"context"

	"github.com/xraph/history/message"
	"github.com/xraph/history/registration"
)

// Store is the aggregate persistence interface.
type Store interface {
	registration.Store
	message.Store

	// Migrate runs all schema migrations or index creation.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the backend connection.
	Close() error
}
