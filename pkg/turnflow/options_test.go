package turnflow

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/randalmurphal/traveops/pkg/turnflow/observability"
	"github.com/randalmurphal/traveops/pkg/turnflow/session"
)

func TestWithMaxIterations(t *testing.T) {
	t.Run("accepts values in range", func(t *testing.T) {
		for _, n := range []int{1, 100, DefaultMaxIterations, 50000, MaxIterationsLimit} {
			cfg := defaultRunConfig()
			WithMaxIterations(n)(&cfg)
			assert.Equal(t, n, cfg.maxIterations)
		}
	})

	t.Run("rejects non-positive values", func(t *testing.T) {
		for _, n := range []int{0, -1, -100} {
			assert.PanicsWithValue(t, "turnflow: max iterations must be > 0", func() {
				WithMaxIterations(n)
			})
		}
	})

	t.Run("rejects values over the ceiling", func(t *testing.T) {
		for _, n := range []int{MaxIterationsLimit + 1, 1000000} {
			assert.PanicsWithValue(t, "turnflow: max iterations exceeds limit (100000)", func() {
				WithMaxIterations(n)
			})
		}
	})
}

func TestIterationConstants(t *testing.T) {
	assert.Equal(t, 1000, DefaultMaxIterations)
	assert.Equal(t, 100000, MaxIterationsLimit)
}

func TestWithRunLogger(t *testing.T) {
	cfg := defaultRunConfig()
	assert.Nil(t, cfg.logger)

	logger := slog.Default()
	WithRunLogger(logger)(&cfg)
	assert.Equal(t, logger, cfg.logger)
}

func TestWithMetrics(t *testing.T) {
	cfg := defaultRunConfig()
	assert.IsType(t, observability.NoopMetrics{}, cfg.metrics)

	recorder := observability.NewMetricsRecorder()
	WithMetrics(recorder)(&cfg)
	assert.Equal(t, recorder, cfg.metrics)

	// A nil recorder must not clobber the configured one.
	WithMetrics(nil)(&cfg)
	assert.Equal(t, recorder, cfg.metrics)
}

func TestWithTracing(t *testing.T) {
	cfg := defaultRunConfig()
	assert.False(t, cfg.tracingEnabled)

	WithTracing(true)(&cfg)
	assert.True(t, cfg.tracingEnabled)

	WithTracing(false)(&cfg)
	assert.False(t, cfg.tracingEnabled)
}

func TestWithSnapshotsAndRunID(t *testing.T) {
	store := session.NewMemoryStore()
	defer store.Close()

	cfg := defaultRunConfig()
	assert.Nil(t, cfg.store)
	assert.Empty(t, cfg.runID)

	WithSnapshots(store)(&cfg)
	WithRunID("conv-42")(&cfg)

	assert.Equal(t, store, cfg.store)
	assert.Equal(t, "conv-42", cfg.runID)
}

func TestWithSnapshotFailureFatal(t *testing.T) {
	cfg := defaultRunConfig()
	assert.False(t, cfg.snapshotFailureFatal)

	WithSnapshotFailureFatal(true)(&cfg)
	assert.True(t, cfg.snapshotFailureFatal)
}
