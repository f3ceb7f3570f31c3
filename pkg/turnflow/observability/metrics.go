package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder receives execution events from graph runs. Use
// NewMetricsRecorder for OpenTelemetry-backed metrics or NoopMetrics
// when metrics are off.
type MetricsRecorder interface {
	RecordNodeExecution(ctx context.Context, nodeID string, duration time.Duration, err error)
	RecordGraphRun(ctx context.Context, success bool, duration time.Duration)
	RecordSuspension(ctx context.Context, nodeID string)
	RecordSnapshot(ctx context.Context, nodeID string, sizeBytes int64)
}

// otelRecorder records through the global OpenTelemetry meter.
type otelRecorder struct {
	nodeExecutions metric.Int64Counter
	nodeLatency    metric.Float64Histogram
	nodeErrors     metric.Int64Counter
	graphRuns      metric.Int64Counter
	graphLatency   metric.Float64Histogram
	suspensions    metric.Int64Counter
	snapshotSize   metric.Int64Histogram
}

// Instruments are process-wide; every NewMetricsRecorder call shares
// one set.
var sharedInstruments = sync.OnceValues(newOtelRecorder)

// NewMetricsRecorder returns a recorder bound to the global OpenTelemetry
// meter provider, so configure the provider first:
//
//	otel.SetMeterProvider(yourProvider)
//
// If instrument creation fails the returned recorder is a no-op.
func NewMetricsRecorder() MetricsRecorder {
	m, err := sharedInstruments()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder", "error", err.Error())
		return NoopMetrics{}
	}
	return m
}

func newOtelRecorder() (*otelRecorder, error) {
	meter := otel.Meter("turnflow")

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		keep(err)
		return c
	}
	latency := func(name, desc string) metric.Float64Histogram {
		h, err := meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("ms"))
		keep(err)
		return h
	}

	m := &otelRecorder{
		nodeExecutions: counter("turnflow.node.executions", "Number of node executions"),
		nodeLatency:    latency("turnflow.node.latency_ms", "Node execution latency in milliseconds"),
		nodeErrors:     counter("turnflow.node.errors", "Number of node execution errors"),
		graphRuns:      counter("turnflow.graph.runs", "Number of graph runs"),
		graphLatency:   latency("turnflow.graph.latency_ms", "Graph run latency in milliseconds"),
		suspensions:    counter("turnflow.graph.suspensions", "Number of runs suspended waiting for input"),
	}

	size, err := meter.Int64Histogram("turnflow.snapshot.size_bytes",
		metric.WithDescription("Snapshot size in bytes"),
		metric.WithUnit("By"))
	keep(err)
	m.snapshotSize = size

	if firstErr != nil {
		return nil, firstErr
	}
	return m, nil
}

func (m *otelRecorder) RecordNodeExecution(ctx context.Context, nodeID string, duration time.Duration, err error) {
	byNode := metric.WithAttributes(attribute.String("node_id", nodeID))

	m.nodeExecutions.Add(ctx, 1, byNode)
	m.nodeLatency.Record(ctx, float64(duration.Milliseconds()), byNode)
	if err != nil {
		m.nodeErrors.Add(ctx, 1, byNode)
	}
}

func (m *otelRecorder) RecordGraphRun(ctx context.Context, success bool, duration time.Duration) {
	byOutcome := metric.WithAttributes(attribute.Bool("success", success))

	m.graphRuns.Add(ctx, 1, byOutcome)
	m.graphLatency.Record(ctx, float64(duration.Milliseconds()), byOutcome)
}

func (m *otelRecorder) RecordSuspension(ctx context.Context, nodeID string) {
	m.suspensions.Add(ctx, 1, metric.WithAttributes(attribute.String("node_id", nodeID)))
}

func (m *otelRecorder) RecordSnapshot(ctx context.Context, nodeID string, sizeBytes int64) {
	m.snapshotSize.Record(ctx, sizeBytes, metric.WithAttributes(attribute.String("node_id", nodeID)))
}
