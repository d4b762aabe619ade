package history

import (
	"log/slog"
	"time"

	"github.com/xraph/history/claims"
	"github.com/xraph/history/observability"
	"github.com/xraph/history/registration"
	"github.com/xraph/history/store"
)

// Option configures a History instance.
type Option func(*History) error

// WithStore sets the persistence backend.
func WithStore(s store.Store) Option {
	return func(h *History) error {
		h.store = s
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *History) error {
		h.logger = logger
		return nil
	}
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(h *History) error {
		h.config = cfg
		return nil
	}
}

// WithPublicURL sets the public URL used as the expected token audience.
func WithPublicURL(u string) Option {
	return func(h *History) error {
		h.config.PublicURL = u
		return nil
	}
}

// WithSignatureValidation toggles EdDSA signature checks.
func WithSignatureValidation(enabled bool) Option {
	return func(h *History) error {
		h.config.ValidateSignatures = enabled
		return nil
	}
}

// WithVerifier sets a custom claims verifier, overriding PublicURL and
// ValidateSignatures.
func WithVerifier(v *claims.Verifier) Option {
	return func(h *History) error {
		h.verifier = v
		return nil
	}
}

// WithRelay sets the relay handshake implementation.
func WithRelay(r Relay) Option {
	return func(h *History) error {
		h.relay = r
		return nil
	}
}

// WithCache sets the registration cache. The caller owns its janitor when
// the cache is shared between instances.
func WithCache(c *registration.Cache) Option {
	return func(h *History) error {
		h.cache = c
		return nil
	}
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *observability.Metrics) Option {
	return func(h *History) error {
		h.metrics = m
		return nil
	}
}

// WithTracer sets the OpenTelemetry tracer.
func WithTracer(t *observability.Tracer) Option {
	return func(h *History) error {
		h.tracer = t
		return nil
	}
}

// WithWriteTimeout bounds detached store writes.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *History) error {
		h.config.WriteTimeout = d
		return nil
	}
}

// WithRelayTimeout bounds each relay handshake call.
func WithRelayTimeout(d time.Duration) Option {
	return func(h *History) error {
		h.config.RelayTimeout = d
		return nil
	}
}

// WithRelayProjectID sets the project id sent to the relay.
func WithRelayProjectID(projectID string) Option {
	return func(h *History) error {
		h.config.RelayProjectID = projectID
		return nil
	}
}

// WithDefaultRelayURL sets the relay used when a registration omits one.
func WithDefaultRelayURL(u string) Option {
	return func(h *History) error {
		h.config.DefaultRelayURL = u
		return nil
	}
}

// WithPageSizes sets the default and maximum history page sizes.
func WithPageSizes(defaultSize, maxSize int) Option {
	return func(h *History) error {
		h.config.DefaultPageSize = defaultSize
		h.config.MaxPageSize = maxSize
		return nil
	}
}
