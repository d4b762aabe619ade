package relayclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// DefaultBackoff is the retry schedule used by History's relay client.
var DefaultBackoff = []time.Duration{250 * time.Millisecond, time.Second}

// StatusError is returned for non-2xx relay responses.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relayclient: bad response: status %d", e.StatusCode)
}

func (e *StatusError) Unwrap() error { return ErrBadResponse }

// decision is the outcome of evaluating a relay call.
type decision int

const (
	// done means the call succeeded.
	done decision = iota

	// retry means the call should be attempted again after a backoff.
	retry

	// fail means the error is final.
	fail
)

// retrier decides whether a failed relay call is worth repeating.
type retrier struct {
	schedule []time.Duration
}

// decide classifies err after the given 1-based attempt.
//
// Decision matrix:
//   - nil → done
//   - JSON-RPC error → fail (the relay rejected the registration)
//   - 429, 5xx → retry while the schedule lasts
//   - other non-2xx → fail
//   - transport error → retry while the schedule lasts, unless ctx ended
//   - undecodable response → fail
func (r retrier) decide(ctx context.Context, err error, attempt int) decision {
	if err == nil {
		return done
	}
	if ctx.Err() != nil || attempt > len(r.schedule) {
		return fail
	}

	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return fail
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500 {
			return retry
		}
		return fail
	}

	if errors.Is(err, ErrTransport) {
		return retry
	}
	return fail
}

// backoff returns the wait before the attempt following attempt.
func (r retrier) backoff(attempt int) time.Duration {
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(r.schedule) {
		idx = len(r.schedule) - 1
	}
	return r.schedule[idx]
}
