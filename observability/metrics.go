package observability

import (
	gu "github.com/xraph/go-utils/metrics"
)

// Metrics holds metric instruments for History, backed by any go-utils
// MetricFactory.
type Metrics struct {
	ReceivedItems        gu.Counter
	StoredItems          gu.Counter
	CachedRegistrations  gu.Counter
	FetchedRegistrations gu.Counter
	TagMismatches        gu.Counter
	Registrations        gu.Counter
	WebhookOutcomes      gu.Counter
	RelayRequestDuration gu.Histogram
	HistoryPagesServed   gu.Counter
}

// NewMetrics creates History metric instruments using the supplied factory.
// Pass NewPrometheusFactory(reg) to export them for scraping, or
// metrics.NewMetricsCollector() for in-process use.
func NewMetrics(factory gu.MetricFactory) *Metrics {
	return &Metrics{
		ReceivedItems: factory.Counter("history_received_items_total",
			gu.WithDescription("Webhook deliveries received.")),
		StoredItems: factory.Counter("history_stored_items_total",
			gu.WithDescription("Messages upserted into the store.")),
		CachedRegistrations: factory.Counter("history_cached_registrations_total",
			gu.WithDescription("Registrations resolved from the cache.")),
		FetchedRegistrations: factory.Counter("history_fetched_registrations_total",
			gu.WithDescription("Registrations resolved from the store after a cache miss.")),
		TagMismatches: factory.Counter("history_tag_mismatch_total",
			gu.WithDescription("Deliveries whose tag is not among the registered tags.")),
		Registrations: factory.Counter("history_registrations_total",
			gu.WithDescription("Webhook registrations by result."),
			gu.WithLabel("result", "")),
		WebhookOutcomes: factory.Counter("history_webhook_outcomes_total",
			gu.WithDescription("Webhook deliveries by pipeline outcome."),
			gu.WithLabel("outcome", "")),
		RelayRequestDuration: factory.Histogram("history_relay_request_seconds",
			gu.WithDescription("Latency of relay handshake calls."),
			gu.WithUnit("s")),
		HistoryPagesServed: factory.Counter("history_pages_served_total",
			gu.WithDescription("History pages served by direction."),
			gu.WithLabel("direction", "")),
	}
}

// RecordOutcome counts a webhook pipeline outcome.
func (m *Metrics) RecordOutcome(outcome string) {
	m.WebhookOutcomes.WithLabels(map[string]string{"outcome": outcome}).Inc()
}

// RecordRegistration counts a registration attempt with the given result.
func (m *Metrics) RecordRegistration(result string) {
	m.Registrations.WithLabels(map[string]string{"result": result}).Inc()
}

// RecordPage counts a served history page in the given direction.
func (m *Metrics) RecordPage(direction string) {
	m.HistoryPagesServed.WithLabels(map[string]string{"direction": direction}).Inc()
}
