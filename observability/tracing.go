package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/xraph/history"

// Tracer provides OpenTelemetry tracing for History.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer on the global provider.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartIngestSpan starts a span for one webhook delivery.
func (t *Tracer) StartIngestSpan(ctx context.Context) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "history.ingest", trace.WithSpanKind(trace.SpanKindServer))
}

// StartRegisterSpan starts a span for a webhook registration.
func (t *Tracer) StartRegisterSpan(ctx context.Context, clientID, relayURL string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "history.register",
		trace.WithAttributes(
			attribute.String("history.client_id", clientID),
			attribute.String("history.relay_url", relayURL),
		),
	)
}

// StartRelaySpan starts a client span for an outbound relay RPC.
func (t *Tracer) StartRelaySpan(ctx context.Context, method, url string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "history.relay."+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rpc.method", method),
			attribute.String("url.full", url),
		),
	)
}

// StartPageSpan starts a span for a history page query.
func (t *Tracer) StartPageSpan(ctx context.Context, topic, direction string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "history.page",
		trace.WithAttributes(
			attribute.String("history.topic", topic),
			attribute.String("history.direction", direction),
		),
	)
}

// EndSpan records the outcome and error, if any, and ends the span.
func (t *Tracer) EndSpan(span trace.Span, outcome string, err error) {
	if outcome != "" {
		span.SetAttributes(attribute.String("history.outcome", outcome))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
