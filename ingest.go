package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/history/claims"
	"github.com/xraph/history/id"
	"github.com/xraph/history/message"
	"github.com/xraph/history/registration"
)

// Outcome is the terminal state of a webhook delivery.
type Outcome string

const (
	// OutcomeAcknowledged means the message was stored.
	OutcomeAcknowledged Outcome = "acknowledged"

	// OutcomeAckedNotFound means no registration exists for the client. The
	// relay is still told the delivery succeeded so it stops retrying.
	OutcomeAckedNotFound Outcome = "acked_not_found"

	// OutcomeRejectedAuth means the event claims failed verification.
	OutcomeRejectedAuth Outcome = "rejected_auth"

	// OutcomeRejectedForbidden means the event was signed by a relay other
	// than the registered one.
	OutcomeRejectedForbidden Outcome = "rejected_forbidden"

	// OutcomeFailed means a store error stopped the pipeline.
	OutcomeFailed Outcome = "failed"
)

// Ingest runs one webhook delivery through verification, authorization and
// persistence.
//
// The critical path:
//  1. Verify the watch-event claims (signature, expiry, audience, action).
//  2. Resolve the subject's registration, cache first. No registration is
//     acknowledged without storing anything.
//  3. Reject events whose issuer is not the registered relay.
//  4. Warn, without rejecting, when the tag is not registered. The relay may
//     know about a tag update before the local registration does.
//  5. Upsert the message keyed by (client, topic, message id).
func (h *History) Ingest(ctx context.Context, eventToken string) (outcome Outcome, err error) {
	ctx, span := h.tracer.StartIngestSpan(ctx)
	defer func() {
		h.tracer.EndSpan(span, string(outcome), err)
		if h.metrics != nil {
			h.metrics.RecordOutcome(string(outcome))
		}
	}()
	if h.metrics != nil {
		h.metrics.ReceivedItems.Inc()
	}

	// 1. Verify.
	evt, err := h.verifier.VerifyWatchEvent(eventToken)
	if err != nil {
		return OutcomeRejectedAuth, newError(ErrInvalidClaims, "invalid event claims", err)
	}
	clientID, err := claims.ClientID(evt.Subject)
	if err != nil {
		return OutcomeRejectedAuth, newError(ErrInvalidClaims, "invalid event subject", err)
	}
	issuerID, err := claims.ClientID(evt.Issuer)
	if err != nil {
		return OutcomeRejectedAuth, newError(ErrInvalidClaims, "invalid event issuer", err)
	}

	// 2. Resolve the registration.
	reg, src, err := h.registrations.Resolve(ctx, clientID)
	if err != nil {
		if errors.Is(err, ErrRegistrationNotFound) {
			h.logger.InfoContext(ctx, "webhook for unregistered client acknowledged",
				"client_id", clientID,
				"topic", evt.Event.Topic,
			)
			return OutcomeAckedNotFound, nil
		}
		return OutcomeFailed, fmt.Errorf("history: resolve registration: %w", err)
	}
	if h.metrics != nil {
		if src == registration.SourceCache {
			h.metrics.CachedRegistrations.Inc()
		} else {
			h.metrics.FetchedRegistrations.Inc()
		}
	}

	// 3. Relay identity.
	if issuerID != reg.RelayID {
		h.logger.WarnContext(ctx, "webhook from unexpected relay",
			"client_id", clientID,
			"relay_id", issuerID,
			"registered_relay_id", reg.RelayID,
		)
		return OutcomeRejectedForbidden, newError(ErrForbidden, "relay_id does not match the registered relay_id", nil)
	}

	// 4. Tag consistency is informational only.
	if !reg.HasTag(evt.Event.Tag) {
		h.logger.WarnContext(ctx, "webhook tag not in registration",
			"client_id", clientID,
			"tag", evt.Event.Tag,
			"registered_tags", reg.Tags,
		)
		if h.metrics != nil {
			h.metrics.TagMismatches.Inc()
		}
	}

	// 5. Persist.
	m := &message.Message{
		ID:        id.NewMessageID(),
		ClientID:  clientID,
		Topic:     evt.Event.Topic,
		MessageID: evt.Event.MessageID,
		Message:   evt.Event.Message,
		Tag:       evt.Event.Tag,
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
	}
	if m.MessageID == "" {
		m.MessageID = message.ContentID(evt.Event.Message)
	}
	if evt.Event.PublishedAt > 0 {
		m.PublishedAt = time.UnixMilli(evt.Event.PublishedAt).UTC()
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.config.WriteTimeout)
	defer cancel()
	if err := h.store.UpsertMessage(wctx, m); err != nil {
		return OutcomeFailed, fmt.Errorf("history: upsert message: %w", err)
	}
	if h.metrics != nil {
		h.metrics.StoredItems.Inc()
	}

	h.logger.DebugContext(ctx, "message stored",
		"client_id", clientID,
		"topic", m.Topic,
		"message_id", m.MessageID,
	)
	return OutcomeAcknowledged, nil
}
