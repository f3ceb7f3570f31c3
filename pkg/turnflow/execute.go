package turnflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/randalmurphal/traveops/pkg/turnflow/observability"
	"github.com/randalmurphal/traveops/pkg/turnflow/session"
	"go.opentelemetry.io/otel/trace"
)

// Run executes the graph from its entry point with the given state.
//
// The returned state is the last one produced: the state after the final
// node on success, the state at the suspended node when a node awaits
// input, and the state at the failure point on error. Suspension is
// signalled by an InterruptError; by the time Run returns one, the
// suspended snapshot is already persisted and the run can be picked up
// with Resume.
//
// Each step checks for cancellation, runs the active node, then picks
// the next node from a simple edge, a router, a directive returned by
// the node, or the fork/join machinery, until END.
//
// Example:
//
//	ctx := turnflow.NewContext(context.Background())
//	final, err := compiled.Run(ctx, start)
//	if intr, ok := turnflow.AsInterrupt(err); ok {
//	    // run suspended; resume later with compiled.Resume
//	}
func (cg *CompiledGraph[S]) Run(ctx Context, state S, opts ...RunOption) (result S, runErr error) {
	if ctx == nil {
		return state, ErrNilContext
	}

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	// Snapshots need a run ID to key on.
	if cfg.store != nil && cfg.runID == "" {
		return state, ErrRunIDRequired
	}

	runID := cfg.runID
	if runID == "" {
		runID = ctx.RunID()
	}

	started := time.Now()
	observability.LogRunStart(cfg.logger, runID)

	var traceCtx context.Context = ctx
	if cfg.tracingEnabled {
		var runSpan trace.Span
		traceCtx, runSpan = cfg.spans.StartRunSpan(ctx, "turnflow", runID)
		defer func() {
			// A suspended run ends its span clean; it is not a failure.
			if _, suspended := AsInterrupt(runErr); suspended {
				cfg.spans.EndSpanWithError(runSpan, nil)
				return
			}
			cfg.spans.EndSpanWithError(runSpan, runErr)
		}()
	}

	var steps int
	result, steps, runErr = cg.runLoop(traceCtx, ctx, state, cg.entry, &cfg)

	elapsedMs := float64(time.Since(started).Milliseconds())

	if intr, ok := AsInterrupt(runErr); ok {
		cfg.metrics.RecordSuspension(ctx, intr.NodeID)
		observability.LogRunSuspended(cfg.logger, runID, intr.NodeID, elapsedMs)
		return result, runErr
	}

	cfg.metrics.RecordGraphRun(ctx, runErr == nil, time.Since(started))

	if runErr == nil {
		observability.LogRunComplete(cfg.logger, runID, elapsedMs, steps)
		return result, nil
	}

	lastNode := ""
	var nodeErr *NodeError
	var maxErr *MaxIterationsError
	var cancelErr *CancellationError
	switch {
	case errors.As(runErr, &nodeErr):
		lastNode = nodeErr.NodeID
	case errors.As(runErr, &maxErr):
		lastNode = maxErr.LastNodeID
	case errors.As(runErr, &cancelErr):
		lastNode = cancelErr.NodeID
	}
	observability.LogRunError(cfg.logger, runID, runErr, elapsedMs, lastNode)

	return result, runErr
}

// runFrom continues the graph at an arbitrary node. Resume uses it; the
// run-level spans and logs are the caller's business.
func (cg *CompiledGraph[S]) runFrom(ctx Context, state S, startNode string, cfg *runConfig) (S, error) {
	result, _, err := cg.runLoop(ctx, ctx, state, startNode, cfg)
	return result, err
}

// runLoop is the main execution loop. tracingCtx carries span context
// and may differ from the turnflow Context tfCtx when a run span is
// open. It returns the final state and how many nodes completed.
func (cg *CompiledGraph[S]) runLoop(tracingCtx context.Context, tfCtx Context, state S, startNode string, cfg *runConfig) (S, int, error) {
	node := startNode
	prior := ""
	visits := 0
	completed := 0

	for node != END {
		visits++
		if visits > cfg.maxIterations {
			return state, completed, &MaxIterationsError{
				Max:        cfg.maxIterations,
				LastNodeID: node,
				State:      state,
			}
		}

		select {
		case <-tfCtx.Done():
			return state, completed, &CancellationError{
				NodeID:       node,
				State:        state,
				Cause:        tfCtx.Err(),
				WasExecuting: false,
			}
		default:
		}

		observability.LogNodeStart(cfg.logger, node)

		spanCtx := tracingCtx
		var nodeSpan trace.Span
		if cfg.tracingEnabled {
			spanCtx, nodeSpan = cfg.spans.StartNodeSpan(tracingCtx, node)
		}

		nodeStart := time.Now()

		var nodeErr error
		state, nodeErr = cg.invokeNode(tfCtx, node, state)

		nodeElapsed := time.Since(nodeStart)

		// Suspensions and control transfers travel on the error return
		// but count as successful executions for metrics and spans.
		intr, suspended := AsInterrupt(nodeErr)
		var dir *Directive
		jumped := errors.As(nodeErr, &dir)

		metricErr := nodeErr
		if suspended || jumped {
			metricErr = nil
		}
		cfg.metrics.RecordNodeExecution(spanCtx, node, nodeElapsed, metricErr)
		if cfg.tracingEnabled {
			cfg.spans.EndSpanWithError(nodeSpan, metricErr)
		}

		if suspended {
			if cfg.store == nil {
				return state, completed, &SnapshotError{
					NodeID: node,
					Op:     "suspend",
					Err:    ErrStoreRequired,
				}
			}
			if err := cg.persistSuspension(tfCtx, cfg, node, prior, state, intr); err != nil {
				return state, completed, err
			}
			return state, completed, intr
		}

		if nodeErr != nil && !jumped {
			observability.LogNodeError(cfg.logger, node, nodeErr)
			return state, completed, nodeErr
		}

		observability.LogNodeComplete(cfg.logger, node, float64(nodeElapsed.Milliseconds()))
		completed++

		var next string
		switch {
		case jumped:
			next = dir.Target
			if next == "" {
				return state, completed, &RouterError{
					FromNode: node,
					Returned: next,
					Err:      ErrInvalidRouterResult,
				}
			}
			if next != END && !cg.HasNode(next) {
				return state, completed, &RouterError{
					FromNode: node,
					Returned: next,
					Err:      ErrRouterTargetNotFound,
				}
			}

		case cg.IsForkNode(node):
			var fjErr error
			state, next, fjErr = cg.runForkJoin(tfCtx, cg.GetForkNode(node), state, cfg)
			if fjErr != nil {
				return state, completed, fjErr
			}
			// Branches that ran all the way to END leave nothing to join.
			if next == "" {
				next = END
			}

		default:
			var routeErr error
			next, routeErr = cg.pickNext(tfCtx, state, node)
			if routeErr != nil {
				return state, completed, routeErr
			}
		}

		if cfg.store != nil {
			if err := cg.persistStep(tfCtx, cfg, node, prior, state, next); err != nil {
				return state, completed, err
			}
		}

		prior = node
		node = next
	}

	return state, completed, nil
}

// persistStep snapshots the state after a node completes. Unless
// snapshotFailureFatal is set, a failed save is logged and the run
// carries on.
func (cg *CompiledGraph[S]) persistStep(ctx Context, cfg *runConfig, nodeID, priorID string, state S, nextNode string) error {
	soften := func(op string, err error) error {
		if cfg.snapshotFailureFatal {
			return &SnapshotError{NodeID: nodeID, Op: op, Err: err}
		}
		observability.LogSnapshotError(cfg.logger, nodeID, op, err)
		return nil
	}

	stateBytes, err := json.Marshal(state)
	if err != nil {
		return soften("serialize", err)
	}

	cfg.seq++
	snap := session.New(cfg.runID, nodeID, cfg.seq, stateBytes, nextNode).
		WithPrevNode(priorID)
	if nextNode == END {
		snap = snap.WithStatus(session.StatusCompleted)
	}
	if tc, ok := ctx.(*turnContext); ok {
		snap = snap.WithAttempt(tc.attempt)
	}

	data, err := snap.Marshal()
	if err != nil {
		return soften("marshal", err)
	}

	if err := cfg.store.Save(cfg.runID, nodeID, data); err != nil {
		return soften("save", err)
	}

	observability.LogSnapshot(cfg.logger, nodeID, len(data))
	cfg.metrics.RecordSnapshot(ctx, nodeID, int64(len(data)))

	return nil
}

// persistSuspension writes the suspended snapshot with its interrupt
// record. Failures here are always fatal: losing this snapshot would
// strand the run. NextNode points back at the suspended node so crash
// recovery re-runs it.
func (cg *CompiledGraph[S]) persistSuspension(ctx Context, cfg *runConfig, nodeID, priorID string, state S, intr *InterruptError) error {
	stateBytes, err := json.Marshal(state)
	if err != nil {
		return &SnapshotError{NodeID: nodeID, Op: "serialize", Err: err}
	}

	cfg.seq++
	snap := session.New(cfg.runID, nodeID, cfg.seq, stateBytes, nodeID).
		WithStatus(session.StatusSuspended).
		WithInterrupt(&session.InterruptRecord{
			NodeID:  intr.NodeID,
			Payload: intr.Payload,
		}).
		WithPrevNode(priorID)
	if tc, ok := ctx.(*turnContext); ok {
		snap = snap.WithAttempt(tc.attempt)
	}

	data, err := snap.Marshal()
	if err != nil {
		return &SnapshotError{NodeID: nodeID, Op: "marshal", Err: err}
	}

	if err := cfg.store.Save(cfg.runID, nodeID, data); err != nil {
		return &SnapshotError{NodeID: nodeID, Op: "save", Err: err}
	}

	observability.LogSnapshot(cfg.logger, nodeID, len(data))
	cfg.metrics.RecordSnapshot(ctx, nodeID, int64(len(data)))

	return nil
}

// invokeNode runs one node with panic recovery. Errors from the node
// come back wrapped in a NodeError; panics become PanicErrors.
func (cg *CompiledGraph[S]) invokeNode(ctx Context, nodeID string, state S) (result S, err error) {
	fn, ok := cg.nodes[nodeID]
	if !ok {
		// Unreachable after a successful Compile.
		return state, &NodeError{
			NodeID: nodeID,
			Op:     "lookup",
			Err:    fmt.Errorf("unknown node %s", nodeID),
		}
	}

	fnCtx := ctx
	if tc, ok := ctx.(*turnContext); ok {
		fnCtx = tc.nodeScoped(nodeID)
	}

	defer func() {
		if r := recover(); r != nil {
			result = state
			err = &PanicError{
				NodeID: nodeID,
				Value:  r,
				Stack:  string(debug.Stack()),
			}
		}
	}()

	result, err = fn(fnCtx, state)
	if err != nil {
		return result, &NodeError{
			NodeID: nodeID,
			Op:     "execute",
			Err:    err,
		}
	}

	return result, nil
}

// pickNext resolves which node follows the one just run: the router
// when one is attached, otherwise the node's simple edge.
func (cg *CompiledGraph[S]) pickNext(ctx Context, state S, node string) (string, error) {
	if router, ok := cg.routers[node]; ok {
		fnCtx := ctx
		if tc, ok := ctx.(*turnContext); ok {
			fnCtx = tc.nodeScoped(node)
		}

		next := router(fnCtx, state)

		if next == "" {
			return "", &RouterError{
				FromNode: node,
				Returned: next,
				Err:      ErrInvalidRouterResult,
			}
		}
		if next != END && !cg.HasNode(next) {
			return "", &RouterError{
				FromNode: node,
				Returned: next,
				Err:      ErrRouterTargetNotFound,
			}
		}

		return next, nil
	}

	targets := cg.edges[node]
	if len(targets) == 0 {
		// Unreachable after a successful Compile.
		return "", &NodeError{
			NodeID: node,
			Op:     "routing",
			Err:    fmt.Errorf("node %s has no outgoing edge", node),
		}
	}

	// A single simple edge is the normal case; multiple edges go through
	// the fork/join path before routing gets here.
	return targets[0], nil
}
