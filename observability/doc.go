// Package observability provides Prometheus metrics and OpenTelemetry
// tracing for History.
package observability
