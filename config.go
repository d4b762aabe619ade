package history

import (
	"time"

	"github.com/xraph/history/registration"
)

// Config holds the configuration for a History instance.
type Config struct {
	// PublicURL is the externally reachable base URL of this service. It is
	// the audience expected on bearer and watch-event tokens.
	PublicURL string

	// ValidateSignatures enables EdDSA signature checks on inbound tokens.
	ValidateSignatures bool

	// WriteTimeout bounds registration and message writes, which run
	// detached from the request context.
	WriteTimeout time.Duration

	// RelayTimeout bounds each relay handshake call.
	RelayTimeout time.Duration

	// DefaultRelayURL is used for registrations that do not name a relay.
	DefaultRelayURL string

	// RelayProjectID is sent to the relay with each handshake.
	RelayProjectID string

	// DefaultPageSize is used when a history query omits the page size.
	DefaultPageSize int

	// MaxPageSize caps the page size of history queries.
	MaxPageSize int

	// Cache configures the registration cache.
	Cache registration.CacheConfig
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ValidateSignatures: true,
		WriteTimeout:       10 * time.Second,
		RelayTimeout:       10 * time.Second,
		DefaultPageSize:    50,
		MaxPageSize:        500,
		Cache: registration.CacheConfig{
			MaxWeight: registration.DefaultMaxWeight,
			TTL:       registration.DefaultTTL,
			TTI:       registration.DefaultTTI,
		},
	}
}
