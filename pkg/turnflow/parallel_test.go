package turnflow

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// branchState implements ParallelState. Merge prefixes every key a branch
// produced with the branch ID, so tests can see which branch wrote what.
type branchState struct {
	Values   map[string]int
	BranchID string
}

func (s branchState) Clone(branchID string) branchState {
	out := branchState{Values: make(map[string]int, len(s.Values)), BranchID: branchID}
	for k, v := range s.Values {
		out.Values[k] = v
	}
	return out
}

func (s branchState) Merge(branches map[string]branchState) branchState {
	out := branchState{Values: make(map[string]int, len(s.Values))}
	for k, v := range s.Values {
		out.Values[k] = v
	}
	for id, bs := range branches {
		for k, v := range bs.Values {
			out.Values[id+"_"+k] = v
		}
	}
	return out
}

func newBranchState() branchState {
	return branchState{Values: make(map[string]int)}
}

// compileFanOut builds start -> every worker -> collect -> END, workers in
// sorted ID order, and compiles it. start forks, collect joins.
func compileFanOut(t *testing.T, workers map[string]NodeFunc[branchState], configure ...func(*Graph[branchState])) *CompiledGraph[branchState] {
	t.Helper()

	idle := func(ctx Context, s branchState) (branchState, error) { return s, nil }

	graph := NewGraph[branchState]().
		AddNode("start", idle).
		AddNode("collect", idle)

	ids := make([]string, 0, len(workers))
	for id := range workers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		graph.AddNode(id, workers[id]).
			AddEdge("start", id).
			AddEdge(id, "collect")
	}
	graph.AddEdge("collect", END).SetEntry("start")

	for _, fn := range configure {
		fn(graph)
	}

	compiled, err := graph.Compile()
	require.NoError(t, err)
	return compiled
}

// gauge counts workers running at once and remembers the highest count.
type gauge struct {
	running int32
	peak    int32
}

func (g *gauge) worker(d time.Duration) NodeFunc[branchState] {
	return func(ctx Context, s branchState) (branchState, error) {
		n := atomic.AddInt32(&g.running, 1)
		for {
			p := atomic.LoadInt32(&g.peak)
			if n <= p || atomic.CompareAndSwapInt32(&g.peak, p, n) {
				break
			}
		}
		time.Sleep(d)
		atomic.AddInt32(&g.running, -1)
		return s, nil
	}
}

func (g *gauge) max() int32 { return atomic.LoadInt32(&g.peak) }

// stubHook adapts bare funcs to BranchHook, defaulting to no-ops.
type stubHook struct {
	fork     func(Context, string, branchState) (branchState, error)
	join     func(Context, map[string]branchState) error
	branchEr func(Context, string, branchState, error)
}

func (h *stubHook) OnFork(ctx Context, branchID string, s branchState) (branchState, error) {
	if h.fork == nil {
		return s, nil
	}
	return h.fork(ctx, branchID, s)
}

func (h *stubHook) OnJoin(ctx Context, branchStates map[string]branchState) error {
	if h.join == nil {
		return nil
	}
	return h.join(ctx, branchStates)
}

func (h *stubHook) OnBranchError(ctx Context, branchID string, s branchState, err error) {
	if h.branchEr != nil {
		h.branchEr(ctx, branchID, s, err)
	}
}

func TestForkJoin_Basic(t *testing.T) {
	// The fork sits mid-graph, not at the entry:
	//
	//                      +-> workerA -+
	// start -> dispatch ->-+            +-> collect -> END
	//                      +-> workerB -+
	mark := func(key string) NodeFunc[branchState] {
		return func(ctx Context, s branchState) (branchState, error) {
			s.Values[key] = 1
			return s, nil
		}
	}

	graph := NewGraph[branchState]().
		AddNode("start", mark("started")).
		AddNode("dispatch", mark("dispatched")).
		AddNode("workerA", mark("workerA_done")).
		AddNode("workerB", mark("workerB_done")).
		AddNode("collect", mark("collected")).
		AddEdge("start", "dispatch").
		AddEdge("dispatch", "workerA").
		AddEdge("dispatch", "workerB").
		AddEdge("workerA", "collect").
		AddEdge("workerB", "collect").
		AddEdge("collect", END).
		SetEntry("start")

	compiled, err := graph.Compile()
	require.NoError(t, err)

	assert.True(t, compiled.HasParallelExecution())

	fork := compiled.GetForkNode("dispatch")
	require.NotNil(t, fork)
	assert.Equal(t, "collect", fork.JoinNodeID)
	assert.Len(t, fork.Branches, 2)

	result, err := compiled.Run(NewContext(context.Background()), newBranchState())
	require.NoError(t, err)

	// Pre-fork and post-join writes land unprefixed, branch writes prefixed.
	assert.Equal(t, 1, result.Values["started"])
	assert.Equal(t, 1, result.Values["dispatched"])
	assert.Equal(t, 1, result.Values["collected"])
	assert.Equal(t, 1, result.Values["workerA_workerA_done"])
	assert.Equal(t, 1, result.Values["workerB_workerB_done"])
}

func TestForkJoin_Concurrency(t *testing.T) {
	var g gauge
	compiled := compileFanOut(t, map[string]NodeFunc[branchState]{
		"workerA": g.worker(50 * time.Millisecond),
		"workerB": g.worker(50 * time.Millisecond),
	})

	began := time.Now()
	_, err := compiled.Run(NewContext(context.Background()), newBranchState())
	elapsed := time.Since(began)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, g.max(), int32(2), "branches should overlap")
	assert.Less(t, elapsed, 80*time.Millisecond, "two 50ms branches should not run back to back")
}

func TestForkJoin_BranchError(t *testing.T) {
	compiled := compileFanOut(t, map[string]NodeFunc[branchState]{
		"workerA": func(ctx Context, s branchState) (branchState, error) {
			return s, nil
		},
		"workerB": func(ctx Context, s branchState) (branchState, error) {
			return s, errors.New("workerB failed")
		},
	})

	_, err := compiled.Run(NewContext(context.Background()), newBranchState())
	require.Error(t, err)

	var forkErr *ForkJoinError
	require.ErrorAs(t, err, &forkErr)
	assert.Equal(t, "workerB", forkErr.BranchID, "the failing branch is the one reported")
	assert.Equal(t, "start", forkErr.ForkNodeID)
}

func TestForkJoin_BranchHook(t *testing.T) {
	var forked []string
	var joined []string

	hook := &stubHook{
		fork: func(ctx Context, branchID string, s branchState) (branchState, error) {
			forked = append(forked, branchID)
			s.Values["hook_"+branchID] = 1
			return s, nil
		},
		join: func(ctx Context, branchStates map[string]branchState) error {
			for branchID := range branchStates {
				joined = append(joined, branchID)
			}
			return nil
		},
	}

	// Each worker checks that the OnFork mutation reached it.
	sawHook := func(id string) NodeFunc[branchState] {
		return func(ctx Context, s branchState) (branchState, error) {
			if s.Values["hook_"+id] != 1 {
				return s, errors.New("hook not applied to " + id)
			}
			return s, nil
		}
	}

	compiled := compileFanOut(t,
		map[string]NodeFunc[branchState]{
			"workerA": sawHook("workerA"),
			"workerB": sawHook("workerB"),
		},
		func(g *Graph[branchState]) { g.SetBranchHook(hook) })

	_, err := compiled.Run(NewContext(context.Background()), newBranchState())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"workerA", "workerB"}, forked)
	assert.ElementsMatch(t, []string{"workerA", "workerB"}, joined)
}

func TestForkJoin_MaxConcurrency(t *testing.T) {
	var g gauge
	compiled := compileFanOut(t,
		map[string]NodeFunc[branchState]{
			"workerA": g.worker(50 * time.Millisecond),
			"workerB": g.worker(50 * time.Millisecond),
			"workerC": g.worker(50 * time.Millisecond),
		},
		func(gr *Graph[branchState]) {
			gr.SetForkJoinConfig(ForkJoinConfig{MaxConcurrency: 2})
		})

	_, err := compiled.Run(NewContext(context.Background()), newBranchState())
	require.NoError(t, err)

	assert.LessOrEqual(t, g.max(), int32(2))
}

func TestForkJoin_FailFastCancelsSiblings(t *testing.T) {
	compiled := compileFanOut(t,
		map[string]NodeFunc[branchState]{
			"slow": func(ctx Context, s branchState) (branchState, error) {
				select {
				case <-ctx.Done():
					return s, ctx.Err()
				case <-time.After(3 * time.Second):
					return s, nil
				}
			},
			"failing": func(ctx Context, s branchState) (branchState, error) {
				return s, errors.New("failing branch")
			},
		},
		func(g *Graph[branchState]) {
			g.SetForkJoinConfig(ForkJoinConfig{FailFast: true})
		})

	began := time.Now()
	_, err := compiled.Run(NewContext(context.Background()), newBranchState())
	elapsed := time.Since(began)

	var forkErr *ForkJoinError
	require.ErrorAs(t, err, &forkErr)
	assert.Less(t, elapsed, 1500*time.Millisecond, "slow branch should be cancelled, not awaited")
}

func TestForkJoin_MergeTimeout(t *testing.T) {
	compiled := compileFanOut(t,
		map[string]NodeFunc[branchState]{
			"fast": func(ctx Context, s branchState) (branchState, error) {
				s.Values["fast"] = 1
				return s, nil
			},
			"stuck": func(ctx Context, s branchState) (branchState, error) {
				select {
				case <-ctx.Done():
					return s, ctx.Err()
				case <-time.After(3 * time.Second):
					return s, nil
				}
			},
		},
		func(g *Graph[branchState]) {
			g.SetForkJoinConfig(ForkJoinConfig{MergeTimeout: 50 * time.Millisecond})
		})

	began := time.Now()
	_, err := compiled.Run(NewContext(context.Background()), newBranchState())
	elapsed := time.Since(began)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, 1500*time.Millisecond)
}

func TestForkJoin_BranchesRunToEND(t *testing.T) {
	// No common join: each branch runs to END and the merged state is final.
	mark := func(key string) NodeFunc[branchState] {
		return func(ctx Context, s branchState) (branchState, error) {
			s.Values[key] = 1
			return s, nil
		}
	}

	graph := NewGraph[branchState]().
		AddNode("start", mark("started")).
		AddNode("workerA", mark("a")).
		AddNode("workerB", mark("b")).
		AddEdge("start", "workerA").
		AddEdge("start", "workerB").
		AddEdge("workerA", END).
		AddEdge("workerB", END).
		SetEntry("start")

	compiled, err := graph.Compile()
	require.NoError(t, err)

	fork := compiled.GetForkNode("start")
	require.NotNil(t, fork)
	assert.Empty(t, fork.JoinNodeID)

	result, err := compiled.Run(NewContext(context.Background()), newBranchState())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Values["workerA_a"])
	assert.Equal(t, 1, result.Values["workerB_b"])
}

func TestSequential_NoForkDetected(t *testing.T) {
	mark := func(key string) NodeFunc[branchState] {
		return func(ctx Context, s branchState) (branchState, error) {
			s.Values[key] = 1
			return s, nil
		}
	}

	graph := NewGraph[branchState]().
		AddNode("a", mark("a")).
		AddNode("b", mark("b")).
		AddEdge("a", "b").
		AddEdge("b", END).
		SetEntry("a")

	compiled, err := graph.Compile()
	require.NoError(t, err)

	assert.False(t, compiled.HasParallelExecution())

	result, err := compiled.Run(NewContext(context.Background()), newBranchState())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Values["a"])
	assert.Equal(t, 1, result.Values["b"])
}
