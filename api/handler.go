// Package api provides the HTTP surface of History: webhook registration,
// the relay's webhook delivery endpoint, history queries and health.
package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/xraph/history"
	"github.com/xraph/history/ratelimit"
)

const (
	pathRegister = "/v1/register-save-message-webhook"
	pathWebhook  = "/v1/save-message-webhook"

	maxBodyBytes = 256 * 1024
)

// Config configures a Handler.
type Config struct {
	// Version is reported by the health endpoint.
	Version string

	// HistoryRateLimit is the number of history queries per second allowed
	// per client. Zero disables limiting.
	HistoryRateLimit int
}

// Handler is the root HTTP handler for the History API.
type Handler struct {
	history   *history.History
	cfg       Config
	validator *validator
	limiter   *ratelimit.Limiter
	logger    *slog.Logger
	mux       *http.ServeMux
}

// NewHandler creates a new API handler.
func NewHandler(h *history.History, cfg Config, logger *slog.Logger) (*Handler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	v, err := newValidator()
	if err != nil {
		return nil, err
	}

	hd := &Handler{
		history:   h,
		cfg:       cfg,
		validator: v,
		limiter:   ratelimit.New(),
		logger:    logger,
		mux:       http.NewServeMux(),
	}

	hd.registerRoutes()
	return hd, nil
}

func (hd *Handler) registerRoutes() {
	// Registration
	hd.mux.HandleFunc("POST "+pathRegister, hd.register)
	hd.mux.HandleFunc("GET "+pathRegister, hd.getRegistration)

	// Relay deliveries
	hd.mux.HandleFunc("POST "+pathWebhook, hd.saveMessage)

	// History
	hd.mux.HandleFunc("GET /messages", hd.getMessages)

	// Health
	hd.mux.HandleFunc("GET /health", hd.health)
}

// ServeHTTP implements http.Handler.
func (hd *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	hd.withMiddleware(hd.mux).ServeHTTP(w, r)
}

func (hd *Handler) withMiddleware(next http.Handler) http.Handler {
	return hd.panicRecovery(hd.requestID(hd.cors(hd.logging(next))))
}

func (hd *Handler) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		hd.logger.InfoContext(r.Context(), "api request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"request_id", w.Header().Get(headerRequestID),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

const headerRequestID = "X-Request-Id"

func (hd *Handler) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(headerRequestID)
		if rid == "" {
			if generated, err := gonanoid.New(); err == nil {
				rid = generated
			}
		}
		w.Header().Set(headerRequestID, rid)
		next.ServeHTTP(w, r)
	})
}

func (hd *Handler) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (hd *Handler) panicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				hd.logger.Error("panic recovered",
					"error", rec,
					"stack", string(debug.Stack()),
				)
				writeFailure(w, http.StatusInternalServerError, nameInternal, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// JSON helpers.

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best effort
}

// readBody reads a request body up to maxBodyBytes.
func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}

// bearerToken returns the token of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// queryParam returns a query parameter value, or empty string if not present.
func queryParam(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}

// queryInt returns a query parameter as int, the default when absent, or
// ok=false when it is not an integer.
func queryInt(r *http.Request, key string, defaultVal int) (int, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
