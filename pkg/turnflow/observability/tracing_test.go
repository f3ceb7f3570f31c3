package observability

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// captureSpans points the package tracer at an in-memory exporter for
// the duration of the test.
func captureSpans(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	tracer = otel.Tracer("turnflow")

	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		tracer = otel.Tracer("turnflow")
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Logf("shutting down tracer provider: %v", err)
		}
	})
	return exporter
}

func findSpan(spans tracetest.SpanStubs, name string) (tracetest.SpanStub, bool) {
	for _, s := range spans {
		if s.Name == name {
			return s, true
		}
	}
	return tracetest.SpanStub{}, false
}

func spanAttrs(s tracetest.SpanStub) map[string]string {
	out := make(map[string]string, len(s.Attributes))
	for _, kv := range s.Attributes {
		out[string(kv.Key)] = kv.Value.AsString()
	}
	return out
}

func TestSpanManager_SpanNamesAndAttributes(t *testing.T) {
	exporter := captureSpans(t)
	sm := NewSpanManager()
	require.NotNil(t, sm)

	ctx, runSpan := sm.StartRunSpan(context.Background(), "travel", "conv-42")
	_, nodeSpan := sm.StartNodeSpan(ctx, "classify_intent")
	nodeSpan.End()
	runSpan.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	run, ok := findSpan(spans, "turnflow.run")
	require.True(t, ok)
	attrs := spanAttrs(run)
	assert.Equal(t, "travel", attrs["graph.name"])
	assert.Equal(t, "conv-42", attrs["run.id"])

	node, ok := findSpan(spans, "turnflow.node.classify_intent")
	require.True(t, ok)
	assert.Equal(t, "classify_intent", spanAttrs(node)["node.id"])
	assert.True(t, node.Parent.IsValid(), "node span should nest under the run span")
}

func TestSpanManager_EndSpanWithError(t *testing.T) {
	sm := NewSpanManager()

	t.Run("nil error ends with OK status", func(t *testing.T) {
		exporter := captureSpans(t)
		_, span := sm.StartRunSpan(context.Background(), "test", "run-1")
		sm.EndSpanWithError(span, nil)

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Ok, spans[0].Status.Code)
		assert.Equal(t, "", spans[0].Status.Description)
	})

	t.Run("error sets status and records an exception event", func(t *testing.T) {
		exporter := captureSpans(t)
		_, span := sm.StartRunSpan(context.Background(), "test", "run-2")
		sm.EndSpanWithError(span, errors.New("something went wrong"))

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status.Code)
		assert.Equal(t, "something went wrong", spans[0].Status.Description)

		names := make([]string, 0, len(spans[0].Events))
		for _, ev := range spans[0].Events {
			names = append(names, ev.Name)
		}
		assert.Contains(t, names, "exception")
	})

	t.Run("wrapped error text survives into the description", func(t *testing.T) {
		exporter := captureSpans(t)
		_, span := sm.StartRunSpan(context.Background(), "test", "run-3")
		sm.EndSpanWithError(span, fmt.Errorf("plan trip: %w", errors.New("no flights")))

		spans := exporter.GetSpans()
		require.NotEmpty(t, spans)
		assert.Contains(t, spans[0].Status.Description, "no flights")
	})

	t.Run("nil span is ignored", func(t *testing.T) {
		assert.NotPanics(t, func() {
			sm.EndSpanWithError(nil, nil)
			sm.EndSpanWithError(nil, errors.New("boom"))
		})
	})
}

func TestSpanManager_AddSpanEvent(t *testing.T) {
	exporter := captureSpans(t)
	sm := NewSpanManager()

	t.Run("attaches event and attributes to the span in context", func(t *testing.T) {
		ctx, span := sm.StartRunSpan(context.Background(), "test", "run-1")
		sm.AddSpanEvent(ctx, "snapshot_saved",
			attribute.String("node_id", "human_approval"),
			attribute.Int64("size_bytes", 1024))
		span.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)

		var got map[attribute.Key]attribute.Value
		for _, ev := range spans[0].Events {
			if ev.Name == "snapshot_saved" {
				got = make(map[attribute.Key]attribute.Value, len(ev.Attributes))
				for _, kv := range ev.Attributes {
					got[kv.Key] = kv.Value
				}
			}
		}
		require.NotNil(t, got, "expected a snapshot_saved event")
		assert.Equal(t, "human_approval", got["node_id"].AsString())
		assert.Equal(t, int64(1024), got["size_bytes"].AsInt64())
	})

	t.Run("without a span in context it is a no-op", func(t *testing.T) {
		assert.NotPanics(t, func() {
			sm.AddSpanEvent(context.Background(), "ignored")
		})
	})
}
