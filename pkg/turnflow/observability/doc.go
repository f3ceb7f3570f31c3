// Package observability carries the logging, metrics, and tracing
// hooks for graph runs. Logging goes through slog; metrics and spans
// go through OpenTelemetry when a provider is configured and through
// no-ops otherwise, so instrumented code never branches on whether
// observability is on.
package observability
