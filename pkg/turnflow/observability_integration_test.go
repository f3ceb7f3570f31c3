package turnflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/traveops/pkg/turnflow/session"
)

// memHandler is a slog.Handler that keeps each record as a flat map.
type memHandler struct {
	mu   sync.Mutex
	recs []map[string]any
}

func (h *memHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *memHandler) Handle(_ context.Context, r slog.Record) error {
	rec := map[string]any{
		"level": r.Level.String(),
		"msg":   r.Message,
	}
	r.Attrs(func(a slog.Attr) bool {
		rec[a.Key] = a.Value.Any()
		return true
	})
	h.mu.Lock()
	h.recs = append(h.recs, rec)
	h.mu.Unlock()
	return nil
}

func (h *memHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *memHandler) WithGroup(string) slog.Handler      { return h }

// find returns the first record with the given message, or nil.
func (h *memHandler) find(msg string) map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.recs {
		if r["msg"] == msg {
			return r
		}
	}
	return nil
}

func (h *memHandler) count(msg string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range h.recs {
		if r["msg"] == msg {
			n++
		}
	}
	return n
}

func (h *memHandler) empty() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.recs) == 0
}

// metricsSpy records every recorder callback it receives.
type metricsSpy struct {
	mu        sync.Mutex
	execs     []nodeExec
	runs      []bool
	suspended []string
	snapped   []string
}

type nodeExec struct {
	id  string
	err error
}

func (m *metricsSpy) RecordNodeExecution(_ context.Context, nodeID string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execs = append(m.execs, nodeExec{id: nodeID, err: err})
}

func (m *metricsSpy) RecordGraphRun(_ context.Context, success bool, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, success)
}

func (m *metricsSpy) RecordSuspension(_ context.Context, nodeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suspended = append(m.suspended, nodeID)
}

func (m *metricsSpy) RecordSnapshot(_ context.Context, nodeID string, _ int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapped = append(m.snapped, nodeID)
}

func compileTwoInc(t *testing.T) *CompiledGraph[Tally] {
	t.Helper()
	return mustBuild(t, NewGraph[Tally]().
		AddNode("leg1", addOne).
		AddNode("leg2", addOne).
		AddEdge("leg1", "leg2").
		AddEdge("leg2", END).
		SetEntry("leg1"))
}

// compileGated builds prep -> gate -> wrap where gate suspends on first entry.
func compileGated(t *testing.T) *CompiledGraph[Tally] {
	t.Helper()
	gate := func(ctx Context, s Tally) (Tally, error) {
		if _, err := Await[string](ctx, "need input"); err != nil {
			return s, err
		}
		return s, nil
	}
	return mustBuild(t, NewGraph[Tally]().
		AddNode("stage", addOne).
		AddNode("gate", gate).
		AddNode("settle", addOne).
		AddEdge("stage", "gate").
		AddEdge("gate", "settle").
		AddEdge("settle", END).
		SetEntry("stage"))
}

func TestRun_WithRunLogger(t *testing.T) {
	h := &memHandler{}
	compiled := compileTwoInc(t)

	ctx := NewContext(context.Background(), WithContextRunID("obs-run-1"))
	result, err := compiled.Run(ctx, Tally{}, WithRunLogger(slog.New(h)))

	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)

	started := h.find("graph run starting")
	require.NotNil(t, started)
	assert.Equal(t, "obs-run-1", started["run_id"])

	completed := h.find("graph run completed")
	require.NotNil(t, completed)
	assert.Equal(t, "obs-run-1", completed["run_id"])

	assert.Equal(t, 2, h.count("node starting"))
	assert.Equal(t, 2, h.count("node completed"))
}

func TestRun_WithRunLogger_Error(t *testing.T) {
	h := &memHandler{}

	errProvider := errors.New("provider unavailable")
	compiled := mustBuild(t, NewGraph[Tally]().
		AddNode("healthy", addOne).
		AddNode("broken", func(ctx Context, s Tally) (Tally, error) {
			return s, errProvider
		}).
		AddEdge("healthy", "broken").
		AddEdge("broken", END).
		SetEntry("healthy"))

	ctx := NewContext(context.Background(), WithContextRunID("failed-run"))
	_, err := compiled.Run(ctx, Tally{}, WithRunLogger(slog.New(h)))
	require.Error(t, err)

	nodeFailed := h.find("node failed")
	require.NotNil(t, nodeFailed)
	assert.Equal(t, "broken", nodeFailed["node_id"])

	runFailed := h.find("graph run failed")
	require.NotNil(t, runFailed)
	assert.Equal(t, "failed-run", runFailed["run_id"])
	assert.Equal(t, "broken", runFailed["last_node"])
}

func TestRun_WithRunLogger_Suspended(t *testing.T) {
	h := &memHandler{}
	compiled := compileGated(t)

	store := session.NewMemoryStore()
	_, err := compiled.Run(NewContext(context.Background()), Tally{},
		WithRunLogger(slog.New(h)),
		WithSnapshots(store),
		WithRunID("suspend-run"))

	_, ok := AsInterrupt(err)
	require.True(t, ok)

	suspendedRec := h.find("graph run suspended")
	require.NotNil(t, suspendedRec)
	assert.Equal(t, "suspend-run", suspendedRec["run_id"])
	assert.Equal(t, "gate", suspendedRec["node_id"])

	// A suspension is neither a node failure nor a run failure, and only
	// prep ran to completion.
	assert.Nil(t, h.find("graph run failed"))
	assert.Nil(t, h.find("node failed"))
	assert.Equal(t, 1, h.count("node completed"))
}

func TestRun_MetricsRecorder_Success(t *testing.T) {
	spy := &metricsSpy{}
	compiled := compileTwoInc(t)

	store := session.NewMemoryStore()
	result, err := compiled.Run(bgCtx(), Tally{},
		WithMetrics(spy),
		WithSnapshots(store),
		WithRunID("metrics-run"))

	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)

	require.Len(t, spy.execs, 2)
	assert.Equal(t, "leg1", spy.execs[0].id)
	assert.NoError(t, spy.execs[0].err)
	assert.Equal(t, "leg2", spy.execs[1].id)
	assert.NoError(t, spy.execs[1].err)

	assert.Equal(t, []bool{true}, spy.runs)
	assert.Empty(t, spy.suspended)
	assert.Equal(t, []string{"leg1", "leg2"}, spy.snapped)
}

func TestRun_MetricsRecorder_NodeFailure(t *testing.T) {
	spy := &metricsSpy{}

	errProvider := errors.New("provider unavailable")
	compiled := mustBuild(t, NewGraph[Tally]().
		AddNode("broken", func(ctx Context, s Tally) (Tally, error) {
			return s, errProvider
		}).
		AddEdge("broken", END).
		SetEntry("broken"))

	_, err := compiled.Run(bgCtx(), Tally{}, WithMetrics(spy))
	require.Error(t, err)

	require.Len(t, spy.execs, 1)
	assert.Error(t, spy.execs[0].err)
	assert.Equal(t, []bool{false}, spy.runs)
}

func TestRun_MetricsRecorder_Suspension(t *testing.T) {
	spy := &metricsSpy{}
	compiled := compileGated(t)

	store := session.NewMemoryStore()
	_, err := compiled.Run(bgCtx(), Tally{},
		WithMetrics(spy),
		WithSnapshots(store),
		WithRunID("suspend-metrics"))

	_, ok := AsInterrupt(err)
	require.True(t, ok)

	// The awaiting node counts as a successful execution; the run records
	// a suspension instead of a completed graph run.
	require.Len(t, spy.execs, 2)
	assert.Equal(t, "gate", spy.execs[1].id)
	assert.NoError(t, spy.execs[1].err)
	assert.Equal(t, []string{"gate"}, spy.suspended)
	assert.Empty(t, spy.runs)

	// One step snapshot for prep plus the suspension snapshot for gate.
	assert.Equal(t, []string{"stage", "gate"}, spy.snapped)
}

func TestRun_MetricsRecorder_DirectiveJump(t *testing.T) {
	spy := &metricsSpy{}

	compiled := mustBuild(t, NewGraph[Tally]().
		AddNode("skip", func(ctx Context, s Tally) (Tally, error) {
			return s, Goto("closing")
		}).
		AddNode("relay", addOne).
		AddNode("closing", addOne).
		AddEdge("skip", "relay").
		AddEdge("relay", "closing").
		AddEdge("closing", END).
		SetEntry("skip"))

	result, err := compiled.Run(bgCtx(), Tally{}, WithMetrics(spy))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)

	// The jump travels on the error return but is not recorded as one.
	require.Len(t, spy.execs, 2)
	assert.Equal(t, "skip", spy.execs[0].id)
	assert.NoError(t, spy.execs[0].err)
	assert.Equal(t, []bool{true}, spy.runs)
}

func TestRun_TracingToggle(t *testing.T) {
	compiled := mustBuild(t, NewGraph[Tally]().
		AddNode("tick", addOne).
		AddEdge("tick", END).
		SetEntry("tick"))

	t.Run("disabled by default", func(t *testing.T) {
		result, err := compiled.Run(bgCtx(), Tally{})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Total)
	})

	t.Run("enabled without a provider", func(t *testing.T) {
		result, err := compiled.Run(bgCtx(), Tally{}, WithTracing(true))
		require.NoError(t, err)
		assert.Equal(t, 1, result.Total)
	})
}

func TestRun_AllHooksTogether(t *testing.T) {
	h := &memHandler{}
	spy := &metricsSpy{}
	compiled := compileTwoInc(t)

	ctx := NewContext(context.Background(), WithContextRunID("all-hooks-run"))
	result, err := compiled.Run(ctx, Tally{},
		WithRunLogger(slog.New(h)),
		WithMetrics(spy),
		WithTracing(true))

	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)

	assert.False(t, h.empty())
	assert.Len(t, spy.execs, 2)
	assert.Equal(t, []bool{true}, spy.runs)
}
