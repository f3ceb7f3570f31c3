package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestNoopMetrics_AbsorbsEverything(t *testing.T) {
	m := NoopMetrics{}

	assert.NotPanics(t, func() {
		m.RecordNodeExecution(context.Background(), "plan_trip", 100*time.Millisecond, nil)
		m.RecordNodeExecution(context.Background(), "plan_trip", 10*time.Millisecond, errors.New("rate limited"))
		m.RecordGraphRun(context.Background(), true, 500*time.Millisecond)
		m.RecordGraphRun(context.Background(), false, 100*time.Millisecond)
		m.RecordSuspension(context.Background(), "human_approval")
		m.RecordSnapshot(context.Background(), "plan_trip", 1024)
		m.RecordSnapshot(context.Background(), "plan_trip", 0)
		m.RecordSnapshot(context.Background(), "plan_trip", -1)
	})

	t.Run("nil context", func(t *testing.T) {
		assert.NotPanics(t, func() {
			m.RecordNodeExecution(nil, "plan_trip", 0, nil)
			m.RecordGraphRun(nil, true, 0)
			m.RecordSuspension(nil, "")
			m.RecordSnapshot(nil, "plan_trip", 1024)
		})
	})
}

func TestNoopSpanManager_Spans(t *testing.T) {
	sm := NoopSpanManager{}

	t.Run("contexts pass through unchanged", func(t *testing.T) {
		ctx := context.Background()

		runCtx, runSpan := sm.StartRunSpan(ctx, "graph", "run-1")
		assert.Equal(t, ctx, runCtx)
		require.NotNil(t, runSpan)
		assert.False(t, runSpan.IsRecording())

		nodeCtx, nodeSpan := sm.StartNodeSpan(ctx, "classify_intent")
		assert.Equal(t, ctx, nodeCtx)
		require.NotNil(t, nodeSpan)
		assert.False(t, nodeSpan.IsRecording())
	})

	t.Run("end and events absorb anything", func(t *testing.T) {
		_, span := sm.StartRunSpan(context.Background(), "", "")
		assert.NotPanics(t, func() {
			sm.EndSpanWithError(span, errors.New("span already ended"))
			sm.EndSpanWithError(nil, nil)
			sm.AddSpanEvent(context.Background(), "provider_retry", attribute.String("key", "value"))
			sm.AddSpanEvent(nil, "provider_retry")
		})
	})
}

func TestNoopPair_FullRunShape(t *testing.T) {
	// A realistic run shape through the no-op pair should leave no
	// trace anywhere.

	metrics := NoopMetrics{}
	spans := NoopSpanManager{}

	ctx := context.Background()
	ctx, runSpan := spans.StartRunSpan(ctx, "travel", "conv-123")

	for i, nodeID := range []string{"classify_intent", "extract_constraints", "human_approval"} {
		nodeCtx, nodeSpan := spans.StartNodeSpan(ctx, nodeID)

		var err error
		if i == 1 {
			err = errors.New("weather provider down")
		}
		metrics.RecordNodeExecution(nodeCtx, nodeID, time.Millisecond, err)

		if i == 2 {
			metrics.RecordSuspension(nodeCtx, nodeID)
			metrics.RecordSnapshot(nodeCtx, nodeID, 512)
			spans.AddSpanEvent(nodeCtx, "snapshot_saved", attribute.Int64("size", 512))
		}

		spans.EndSpanWithError(nodeSpan, err)
	}

	metrics.RecordGraphRun(ctx, true, 100*time.Millisecond)
	spans.EndSpanWithError(runSpan, nil)
}
