package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xraph/history/claims"
	"github.com/xraph/history/message"
	"github.com/xraph/history/observability"
	"github.com/xraph/history/registration"
	"github.com/xraph/history/relayclient"
	"github.com/xraph/history/store"
)

// Relay performs the watch-register handshake with a relay. It returns the
// relay's did:key identity.
type Relay interface {
	WatchRegister(ctx context.Context, relayURL, registerAuth string) (string, error)
}

// History is the root message history service.
type History struct {
	config        Config
	store         store.Store
	verifier      *claims.Verifier
	relay         Relay
	cache         *registration.Cache
	ownCache      bool
	registrations *registration.Service
	paginator     *message.Paginator
	metrics       *observability.Metrics
	tracer        *observability.Tracer
	logger        *slog.Logger
}

// New creates a History with the given options.
func New(opts ...Option) (*History, error) {
	h := &History{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, err
		}
	}
	if h.store == nil {
		return nil, ErrNoStore
	}
	if h.verifier == nil && h.config.PublicURL == "" {
		return nil, ErrNoPublicURL
	}
	h.wireServices()
	return h, nil
}

// wireServices fills in collaborators that were not supplied as options.
func (h *History) wireServices() {
	if h.tracer == nil {
		h.tracer = observability.NewTracer()
	}

	if h.verifier == nil {
		var vopts []claims.VerifierOption
		if !h.config.ValidateSignatures {
			vopts = append(vopts, claims.WithoutSignatureCheck())
		}
		h.verifier = claims.NewVerifier(h.config.PublicURL, vopts...)
	}

	if h.relay == nil {
		h.relay = relayclient.New(relayclient.Config{
			Timeout:   h.config.RelayTimeout,
			ProjectID: h.config.RelayProjectID,
			Backoff:   relayclient.DefaultBackoff,
			Metrics:   h.metrics,
			Tracer:    h.tracer,
		}, h.logger)
	}

	if h.cache == nil {
		h.cache = registration.NewCache(h.config.Cache)
		h.ownCache = true
	}

	h.registrations = registration.NewService(h.store, h.cache, h.logger)
	h.paginator = message.NewPaginator(h.store)
}

// Start runs the registration cache janitor when History owns the cache.
func (h *History) Start(ctx context.Context) {
	if h.ownCache {
		h.cache.Start(ctx)
	}
}

// Stop halts background work.
func (h *History) Stop(_ context.Context) {
	if h.ownCache {
		h.cache.Stop()
	}
}

// Store returns the underlying store.
func (h *History) Store() store.Store {
	return h.store
}

// Cache returns the registration cache.
func (h *History) Cache() *registration.Cache {
	return h.cache
}

// Caller is an authenticated API client.
type Caller struct {
	DID      string
	ClientID string
}

// Authenticate verifies an API bearer token.
func (h *History) Authenticate(bearer string) (Caller, error) {
	c, err := h.verifier.VerifyBearer(bearer)
	if err != nil {
		return Caller{}, newError(ErrInvalidClaims, "invalid bearer token", err)
	}
	clientID, err := claims.ClientID(c.Issuer)
	if err != nil {
		return Caller{}, newError(ErrInvalidClaims, "invalid bearer token", err)
	}
	return Caller{DID: c.Issuer, ClientID: clientID}, nil
}

// RegisterInput is a webhook registration request.
type RegisterInput struct {
	// Token is the client-signed watch-register token forwarded to the relay.
	Token    string   `json:"jwt"`
	Tags     []uint32 `json:"tags"`
	RelayURL string   `json:"relayUrl"`
}

// Register asks the relay to deliver the caller's events to this service and
// records the resulting registration, replacing any previous one.
//
// The flow:
//  1. Verify the pass-through watch-register token.
//  2. Reject it unless it was issued by the caller.
//  3. Perform the relay handshake with an ephemeral key.
//  4. Upsert the registration and populate the cache.
func (h *History) Register(ctx context.Context, caller Caller, in RegisterInput) (reg *registration.Registration, err error) {
	if in.RelayURL == "" {
		in.RelayURL = h.config.DefaultRelayURL
	}
	ctx, span := h.tracer.StartRegisterSpan(ctx, caller.ClientID, in.RelayURL)
	defer func() {
		h.tracer.EndSpan(span, "", err)
		if h.metrics != nil {
			h.metrics.RecordRegistration(resultLabel(err))
		}
	}()

	if in.RelayURL == "" {
		return nil, newError(ErrInvalidInput, "relayUrl is required", nil)
	}

	// 1. Verify the token the relay will receive.
	wr, err := h.verifier.VerifyWatchRegister(in.Token)
	if err != nil {
		return nil, newError(ErrInvalidClaims, "invalid watch register token", err)
	}

	// 2. The caller may only register webhooks for itself.
	if wr.Issuer != caller.DID {
		return nil, newError(ErrForbidden, "Authentication JWT iss does not match body JWT iss", nil)
	}

	// 3. Relay handshake. Nothing is persisted if it fails.
	relayDID, err := h.relay.WatchRegister(ctx, in.RelayURL, in.Token)
	if err != nil {
		h.logger.WarnContext(ctx, "relay handshake failed",
			"client_id", caller.ClientID,
			"relay_url", in.RelayURL,
			"error", err,
		)
		return nil, newError(ErrRelayRegistration, "relay rejected the registration", err)
	}
	relayID, err := claims.ClientID(relayDID)
	if err != nil {
		return nil, newError(ErrRelayRegistration, "relay returned an invalid identity", err)
	}

	// 4. Persist and cache.
	reg = &registration.Registration{
		ClientID: caller.ClientID,
		Tags:     in.Tags,
		RelayURL: in.RelayURL,
		RelayID:  relayID,
	}
	if err := h.registrations.Save(ctx, reg, h.config.WriteTimeout); err != nil {
		return nil, fmt.Errorf("history: save registration: %w", err)
	}

	h.logger.DebugContext(ctx, "webhook registered",
		"client_id", caller.ClientID,
		"relay_id", relayID,
		"tags", len(in.Tags),
	)
	return reg, nil
}

// Registration returns the caller's stored registration.
func (h *History) Registration(ctx context.Context, caller Caller) (*registration.Registration, error) {
	return h.store.GetRegistration(ctx, caller.ClientID)
}

// Query selects a page of a topic's history.
type Query struct {
	Topic     string
	OriginID  string
	Count     int
	Direction message.Direction
}

// Messages returns one page of history. An OriginID that does not exist in
// the topic yields ErrMessageNotFound.
func (h *History) Messages(ctx context.Context, q Query) (page *message.Page, err error) {
	if q.Topic == "" {
		return nil, newError(ErrInvalidInput, "topic is required", nil)
	}
	if q.Count == 0 {
		q.Count = h.config.DefaultPageSize
	}
	if q.Count < 1 || q.Count > h.config.MaxPageSize {
		return nil, newError(ErrInvalidInput,
			fmt.Sprintf("messageCount must be between 1 and %d", h.config.MaxPageSize), nil)
	}
	if q.Direction == "" {
		q.Direction = message.Forward
	}
	if !q.Direction.Valid() {
		return nil, newError(ErrInvalidInput, "direction must be forward or backward", nil)
	}

	ctx, span := h.tracer.StartPageSpan(ctx, q.Topic, string(q.Direction))
	defer func() { h.tracer.EndSpan(span, "", err) }()

	if q.Direction == message.Forward {
		page, err = h.paginator.After(ctx, q.Topic, q.OriginID, q.Count)
	} else {
		page, err = h.paginator.Before(ctx, q.Topic, q.OriginID, q.Count)
	}
	if err != nil {
		if errors.Is(err, ErrMessageNotFound) {
			return nil, newError(ErrMessageNotFound, "origin message not found in topic", err)
		}
		return nil, fmt.Errorf("history: list messages: %w", err)
	}

	if h.metrics != nil {
		h.metrics.RecordPage(string(q.Direction))
	}
	return page, nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidClaims):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrRelayRegistration):
		return "relay_failed"
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}
