package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics discards every measurement.
type NoopMetrics struct{}

var _ MetricsRecorder = NoopMetrics{}

func (NoopMetrics) RecordNodeExecution(context.Context, string, time.Duration, error) {}

func (NoopMetrics) RecordGraphRun(context.Context, bool, time.Duration) {}

func (NoopMetrics) RecordSuspension(context.Context, string) {}

func (NoopMetrics) RecordSnapshot(context.Context, string, int64) {}

// NoopSpanManager hands out inert spans and leaves contexts untouched.
type NoopSpanManager struct{}

var _ SpanManager = NoopSpanManager{}

// The otel noop package supplies a span that safely absorbs End,
// RecordError, and status calls.
var inertSpan = noop.Span{}

func (NoopSpanManager) StartRunSpan(ctx context.Context, _, _ string) (context.Context, trace.Span) {
	return ctx, inertSpan
}

func (NoopSpanManager) StartNodeSpan(ctx context.Context, _ string) (context.Context, trace.Span) {
	return ctx, inertSpan
}

func (NoopSpanManager) EndSpanWithError(trace.Span, error) {}

func (NoopSpanManager) AddSpanEvent(context.Context, string, ...attribute.KeyValue) {}
