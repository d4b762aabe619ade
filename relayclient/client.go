// Package relayclient performs the watch-register handshake with a relay on
// behalf of a client.
package relayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/history/claims"
	"github.com/xraph/history/observability"
)

const (
	methodWatchRegister = "irn_watchRegister"
	maxResponseBody     = 64 * 1024
)

var (
	// ErrTransport is returned when the relay cannot be reached.
	ErrTransport = errors.New("relayclient: transport error")

	// ErrBadResponse is returned for non-2xx statuses and undecodable bodies.
	ErrBadResponse = errors.New("relayclient: bad response")
)

// RPCError is a JSON-RPC error object returned by the relay.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("relayclient: rpc error %d: %s", e.Code, e.Message)
}

// Config configures a Client.
type Config struct {
	// Timeout bounds each RPC call, including reading the response.
	Timeout time.Duration

	// ProjectID is sent as the projectId query parameter when set.
	ProjectID string

	// AuthTTL is the lifetime of the per-call auth token.
	AuthTTL time.Duration

	// Backoff is the wait before each retry of a transient failure. Nil
	// disables retries.
	Backoff []time.Duration

	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Client calls the relay's JSON-RPC endpoint.
type Client struct {
	http    *http.Client
	cfg     Config
	retrier retrier
	logger  *slog.Logger
	seq     atomic.Uint64
}

// New creates a Client.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.AuthTTL <= 0 {
		cfg.AuthTTL = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		cfg:     cfg,
		retrier: retrier{schedule: cfg.Backoff},
		logger:  logger,
	}
	c.seq.Store(uint64(time.Now().UnixMilli()) * 1000) //nolint:gosec // positive
	return c
}

type rpcRequest struct {
	ID      uint64 `json:"id"`
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	ID      uint64          `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type watchRegisterParams struct {
	RegisterAuth string `json:"registerAuth"`
}

type watchRegisterResult struct {
	RelayID string `json:"relayId"`
}

// WatchRegister forwards a client-signed watch-register token to the relay at
// relayURL and returns the relay's did:key identity. Each call authenticates
// with a freshly generated ephemeral key.
func (c *Client) WatchRegister(ctx context.Context, relayURL, registerAuth string) (string, error) {
	endpoint, err := rpcURL(relayURL, c.cfg.ProjectID)
	if err != nil {
		return "", err
	}

	signer, err := claims.GenerateSigner()
	if err != nil {
		return "", err
	}
	auth, err := signer.Sign(&claims.Bearer{Basic: claims.NewBasic(relayURL, relayURL, c.cfg.AuthTTL)})
	if err != nil {
		return "", err
	}

	var result watchRegisterResult
	params := watchRegisterParams{RegisterAuth: registerAuth}
	for attempt := 1; ; attempt++ {
		err = c.call(ctx, endpoint, auth, methodWatchRegister, params, &result)
		d := c.retrier.decide(ctx, err, attempt)
		if d == done {
			break
		}
		if d == fail {
			return "", err
		}

		wait := c.retrier.backoff(attempt)
		c.logger.WarnContext(ctx, "relay call failed, retrying",
			"method", methodWatchRegister,
			"attempt", attempt,
			"backoff", wait,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return "", err
		case <-time.After(wait):
		}
	}
	if _, err := claims.DecodeDIDKey(result.RelayID); err != nil {
		return "", fmt.Errorf("%w: relay id: %w", ErrBadResponse, err)
	}
	return result.RelayID, nil
}

func (c *Client) call(ctx context.Context, endpoint, auth, method string, params, result any) (err error) {
	if c.cfg.Tracer != nil {
		var span trace.Span
		ctx, span = c.cfg.Tracer.StartRelaySpan(ctx, method, endpoint)
		defer func() { c.cfg.Tracer.EndSpan(span, "", err) }()
	}

	body, err := json.Marshal(rpcRequest{
		ID:      c.seq.Add(1),
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("relayclient: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("relayclient: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "History/1.0")
	req.Header.Set("Authorization", "Bearer "+auth)

	start := time.Now()
	resp, err := c.http.Do(req) //nolint:gosec // relay URL is supplied by an authenticated client
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RelayRequestDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("%w: read body: %w", ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.WarnContext(ctx, "relay rejected request",
			"method", method,
			"status", resp.StatusCode,
			"body", string(raw),
		)
		return &StatusError{StatusCode: resp.StatusCode}
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return fmt.Errorf("%w: decode: %w", ErrBadResponse, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if len(rpcResp.Result) == 0 {
		return fmt.Errorf("%w: missing result", ErrBadResponse)
	}
	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("%w: decode result: %w", ErrBadResponse, err)
	}
	return nil
}

// rpcURL maps a relay address to its HTTP JSON-RPC endpoint. Websocket
// schemes are rewritten to their HTTP equivalents.
func rpcURL(relayURL, projectID string) (string, error) {
	u, err := url.Parse(relayURL)
	if err != nil {
		return "", fmt.Errorf("relayclient: parse relay url: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	default:
		return "", fmt.Errorf("relayclient: unsupported relay url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("relayclient: relay url %q has no host", relayURL)
	}

	u = u.JoinPath("rpc")
	if projectID != "" {
		q := u.Query()
		q.Set("projectId", projectID)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
