package turnflow

import (
	"fmt"
	"log/slog"

	"github.com/randalmurphal/traveops/pkg/turnflow/observability"
	"github.com/randalmurphal/traveops/pkg/turnflow/session"
)

const (
	// DefaultMaxIterations applies when WithMaxIterations is not given.
	DefaultMaxIterations = 1000

	// MaxIterationsLimit is the ceiling WithMaxIterations will accept.
	MaxIterationsLimit = 100000
)

// runConfig collects the per-run settings assembled from RunOptions.
type runConfig struct {
	maxIterations int

	// Observability
	logger         *slog.Logger
	metrics        observability.MetricsRecorder
	spans          observability.SpanManager
	tracingEnabled bool

	// Snapshotting
	store                session.Store
	runID                string
	seq                  int
	snapshotFailureFatal bool
}

func defaultRunConfig() runConfig {
	return runConfig{
		maxIterations: DefaultMaxIterations,
		metrics:       observability.NoopMetrics{},
		spans:         observability.NewSpanManager(),
	}
}

// RunOption adjusts one run of a compiled graph.
type RunOption func(*runConfig)

// WithMaxIterations caps how many node executions a run may take before
// failing with ErrMaxIterations; the cap is what turns an accidental
// infinite loop into an error. Values outside (0, MaxIterationsLimit]
// panic.
//
// Example:
//
//	result, err := compiled.Run(ctx, state, turnflow.WithMaxIterations(100))
func WithMaxIterations(n int) RunOption {
	switch {
	case n <= 0:
		panic("turnflow: max iterations must be > 0")
	case n > MaxIterationsLimit:
		panic(fmt.Sprintf("turnflow: max iterations exceeds limit (%d)", MaxIterationsLimit))
	}
	return func(c *runConfig) {
		c.maxIterations = n
	}
}

// WithRunLogger sets the logger for run-level and node-level lifecycle events.
// Without a run logger, lifecycle logging is disabled; nodes still get the
// context logger.
func WithRunLogger(logger *slog.Logger) RunOption {
	return func(c *runConfig) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics recorder for the run.
// Default: no-op recorder.
func WithMetrics(m observability.MetricsRecorder) RunOption {
	return func(c *runConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTracing enables or disables OpenTelemetry span creation for the run
// and each node execution. Default: disabled.
func WithTracing(enabled bool) RunOption {
	return func(c *runConfig) {
		c.tracingEnabled = enabled
	}
}

// WithSnapshots enables durable snapshotting to the given store.
// A run ID must also be provided via WithRunID, otherwise Run returns
// ErrRunIDRequired. Snapshotting is required for suspension: a node
// calling Await without a store configured fails the run.
func WithSnapshots(store session.Store) RunOption {
	return func(c *runConfig) {
		c.store = store
	}
}

// WithRunID sets the run identifier used as the snapshot key.
// Use a stable identifier (like a conversation ID) so the run can be
// resumed later.
func WithRunID(id string) RunOption {
	return func(c *runConfig) {
		c.runID = id
	}
}

// WithSnapshotFailureFatal controls whether a failed snapshot save aborts
// the run. Default: false (failures are logged and execution continues).
// Saves of suspended snapshots are always fatal on failure, because losing
// one makes the run impossible to resume.
func WithSnapshotFailureFatal(fatal bool) RunOption {
	return func(c *runConfig) {
		c.snapshotFailureFatal = fatal
	}
}
