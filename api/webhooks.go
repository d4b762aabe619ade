package api

import (
	"errors"
	"net/http"

	"github.com/xraph/history"
)

type webhookBody struct {
	EventAuth string `json:"eventAuth"`
}

// authenticate resolves the caller of a bearer-authenticated route. It writes
// the failure response and returns false when authentication fails.
func (hd *Handler) authenticate(w http.ResponseWriter, r *http.Request) (history.Caller, bool) {
	token, ok := bearerToken(r)
	if !ok {
		writeFailure(w, http.StatusUnauthorized, nameUnauthorized, "missing bearer token")
		return history.Caller{}, false
	}
	caller, err := hd.history.Authenticate(token)
	if err != nil {
		hd.writeError(w, r, err)
		return history.Caller{}, false
	}
	return caller, true
}

func (hd *Handler) register(w http.ResponseWriter, r *http.Request) {
	caller, ok := hd.authenticate(w, r)
	if !ok {
		return
	}

	body, err := readBody(r)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, nameBadRequest, "unreadable request body")
		return
	}
	var in history.RegisterInput
	if err := hd.validator.decode(schemaRegister, body, &in); err != nil {
		writeFailure(w, http.StatusBadRequest, nameBadRequest, err.Error())
		return
	}

	if _, err := hd.history.Register(r.Context(), caller, in); err != nil {
		hd.writeError(w, r, err)
		return
	}
	writeSuccess(w, nil)
}

func (hd *Handler) getRegistration(w http.ResponseWriter, r *http.Request) {
	caller, ok := hd.authenticate(w, r)
	if !ok {
		return
	}

	reg, err := hd.history.Registration(r.Context(), caller)
	if err != nil {
		hd.writeError(w, r, err)
		return
	}
	writeSuccess(w, reg)
}

func (hd *Handler) saveMessage(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, nameBadRequest, "unreadable request body")
		return
	}
	var in webhookBody
	if err := hd.validator.decode(schemaWebhook, body, &in); err != nil {
		writeFailure(w, http.StatusBadRequest, nameBadRequest, err.Error())
		return
	}

	outcome, err := hd.history.Ingest(r.Context(), in.EventAuth)
	switch outcome {
	case history.OutcomeAcknowledged, history.OutcomeAckedNotFound:
		writeSuccess(w, nil)
	case history.OutcomeRejectedAuth:
		writeFailure(w, http.StatusUnauthorized, nameUnauthorized, "invalid event claims")
	case history.OutcomeRejectedForbidden:
		writeFailure(w, http.StatusForbidden, nameForbidden, "relay_id does not match the registered relay_id")
	default:
		if err == nil {
			err = errors.New("api: ingest produced no outcome")
		}
		hd.writeError(w, r, err)
	}
}
