package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/xraph/history"
)

// Response statuses.
const (
	statusSuccess = "success"
	statusFailure = "failure"
)

// Error names returned to callers.
const (
	nameUnauthorized      = "unauthorized"
	nameForbidden         = "forbidden"
	nameNotFound          = "not_found"
	nameBadRequest        = "bad_request"
	nameRateLimited       = "rate_limited"
	nameRelayRegistration = "relay_registration_failed"
	nameInternal          = "internal"
)

// Response is the envelope of every API response.
type Response struct {
	Status     string          `json:"status"`
	StatusCode int             `json:"statusCode"`
	Errors     []ResponseError `json:"errors"`
	Data       any             `json:"data"`
}

// ResponseError is one entry of Response.Errors.
type ResponseError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

func writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{
		Status:     statusSuccess,
		StatusCode: http.StatusOK,
		Errors:     []ResponseError{},
		Data:       data,
	})
}

func writeFailure(w http.ResponseWriter, status int, name, msg string) {
	writeJSON(w, status, Response{
		Status:     statusFailure,
		StatusCode: status,
		Errors:     []ResponseError{{Name: name, Message: msg}},
	})
}

// writeError maps a History error onto a failure response. Errors without a
// known kind are logged and reported as internal.
func (hd *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, name := http.StatusInternalServerError, nameInternal
	switch {
	case errors.Is(err, history.ErrInvalidClaims):
		status, name = http.StatusUnauthorized, nameUnauthorized
	case errors.Is(err, history.ErrForbidden):
		status, name = http.StatusForbidden, nameForbidden
	case errors.Is(err, history.ErrRegistrationNotFound), errors.Is(err, history.ErrMessageNotFound):
		status, name = http.StatusNotFound, nameNotFound
	case errors.Is(err, history.ErrInvalidInput):
		status, name = http.StatusBadRequest, nameBadRequest
	case errors.Is(err, history.ErrRelayRegistration):
		status, name = http.StatusBadGateway, nameRelayRegistration
	}

	if status == http.StatusInternalServerError {
		hd.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeFailure(w, status, name, "internal server error")
		return
	}

	msg := http.StatusText(status)
	var herr *history.Error
	if errors.As(err, &herr) {
		msg = herr.Message
	}
	hd.logger.DebugContext(r.Context(), "request rejected",
		"path", r.URL.Path,
		"name", name,
		"error", err,
		slog.Int("status", status),
	)
	writeFailure(w, status, name, msg)
}
