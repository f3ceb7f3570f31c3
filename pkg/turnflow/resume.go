package turnflow

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/randalmurphal/traveops/pkg/turnflow/session"
)

// resumeConfig holds configuration for resuming a run.
type resumeConfig struct {
	stateOverride func(any) any
	validateState func(any) error
	replayNode    bool
	runOptions    []RunOption
}

// ResumeOption configures resume behavior.
type ResumeOption func(*resumeConfig)

// WithStateOverride modifies the loaded state before execution continues.
// The function receives the deserialized state and should return a value
// of the same type; other types are ignored.
func WithStateOverride(fn func(any) any) ResumeOption {
	return func(c *resumeConfig) {
		c.stateOverride = fn
	}
}

// WithStateValidation validates the loaded state before execution continues.
// A validation error aborts the resume.
func WithStateValidation(fn func(any) error) ResumeOption {
	return func(c *resumeConfig) {
		c.validateState = fn
	}
}

// WithReplay re-executes the snapshotted node instead of continuing from
// its successor. Only meaningful for ResumeRun and ResumeFrom; Resume
// always re-executes the suspended node.
func WithReplay() ResumeOption {
	return func(c *resumeConfig) {
		c.replayNode = true
	}
}

// WithRunOptions forwards run options (logger, metrics, tracing, iteration
// limit) to the resumed portion of the run. The store, run ID, and sequence
// are always taken from the resume call itself and cannot be overridden.
func WithRunOptions(opts ...RunOption) ResumeOption {
	return func(c *resumeConfig) {
		c.runOptions = append(c.runOptions, opts...)
	}
}

// Resume continues a suspended run, delivering a value to the node that
// called Await. The suspended node is re-executed from the top; its Await
// call returns the provided value instead of suspending.
//
// Returns ErrNotSuspended if the run's latest snapshot is not suspended.
// The resumed run may suspend again, in which case Resume returns a new
// InterruptError.
//
// Example:
//
//	// A previous Run suspended at the approval node
//	result, err := compiled.Resume(ctx, store, "conv-123", userReply,
//	    turnflow.WithRunOptions(turnflow.WithRunLogger(logger)))
func (cg *CompiledGraph[S]) Resume(ctx Context, store session.Store, runID string, resumeValue any, opts ...ResumeOption) (S, error) {
	var zero S

	if ctx == nil {
		return zero, ErrNilContext
	}

	rcfg := collectResumeOptions(opts)

	snap, state, err := latestState[S](store, runID)
	if err != nil {
		return zero, err
	}

	if snap.Status != session.StatusSuspended {
		return zero, fmt.Errorf("%w: run %s is %s", ErrNotSuspended, runID, snap.Status)
	}

	state, err = applyResumeState(state, &rcfg)
	if err != nil {
		return state, err
	}

	// The value rides in as JSON so the node's Await can decode it into
	// whatever type it expects.
	raw, err := json.Marshal(resumeValue)
	if err != nil {
		return state, fmt.Errorf("%w: resume value: %v", ErrSerializeState, err)
	}

	runCfg := resumeRunConfig(store, runID, snap.Sequence, rcfg.runOptions)
	resumeCtx := deliverResumeValue(ctx, snap.NodeID, raw)

	return cg.runFrom(resumeCtx, state, snap.NodeID, runCfg)
}

// ResumeRun continues a run from its latest snapshot without delivering a
// resume value. Use this for crash recovery: a running snapshot continues
// from the next node, a completed snapshot returns the final state
// unchanged, and a suspended snapshot re-executes the waiting node, which
// suspends again.
//
// Example:
//
//	// Process restarted; pick the run back up
//	result, err := compiled.ResumeRun(ctx, store, "conv-123")
func (cg *CompiledGraph[S]) ResumeRun(ctx Context, store session.Store, runID string, opts ...ResumeOption) (S, error) {
	var zero S

	if ctx == nil {
		return zero, ErrNilContext
	}

	rcfg := collectResumeOptions(opts)

	snap, state, err := latestState[S](store, runID)
	if err != nil {
		return zero, err
	}

	state, err = applyResumeState(state, &rcfg)
	if err != nil {
		return state, err
	}

	startNode := snap.NextNode
	if rcfg.replayNode {
		startNode = snap.NodeID
	}
	if startNode != END && !cg.HasNode(startNode) {
		return zero, fmt.Errorf("%w: %s", ErrInvalidResumeNode, startNode)
	}

	runCfg := resumeRunConfig(store, runID, snap.Sequence, rcfg.runOptions)

	return cg.runFrom(ctx, state, startNode, runCfg)
}

// ResumeFrom continues execution from the snapshot at a specific node.
// Unlike ResumeRun, this loads the snapshot at that node rather than the
// latest one. Useful for retrying from a known-good point.
//
// Example:
//
//	result, err := compiled.ResumeFrom(ctx, store, "conv-123", "compile_research")
func (cg *CompiledGraph[S]) ResumeFrom(ctx Context, store session.Store, runID, nodeID string, opts ...ResumeOption) (S, error) {
	var zero S

	if ctx == nil {
		return zero, ErrNilContext
	}

	rcfg := collectResumeOptions(opts)

	data, err := store.Load(runID, nodeID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return zero, fmt.Errorf("%w: %s at node %s", ErrNoSnapshots, runID, nodeID)
		}
		return zero, fmt.Errorf("load snapshot: %w", err)
	}

	snap, err := session.Unmarshal(data)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", ErrDeserializeState, err)
	}

	if snap.Version != session.Version {
		return zero, fmt.Errorf("%w: got %d, expected %d",
			session.ErrVersionMismatch, snap.Version, session.Version)
	}

	var state S
	if err := json.Unmarshal(snap.State, &state); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrDeserializeState, err)
	}

	state, err = applyResumeState(state, &rcfg)
	if err != nil {
		return state, err
	}

	startNode := snap.NextNode
	if rcfg.replayNode {
		startNode = nodeID
	}

	if startNode != END && !cg.HasNode(startNode) {
		return zero, fmt.Errorf("%w: %s", ErrInvalidResumeNode, startNode)
	}

	runCfg := resumeRunConfig(store, runID, snap.Sequence, rcfg.runOptions)

	return cg.runFrom(ctx, state, startNode, runCfg)
}

func collectResumeOptions(opts []ResumeOption) resumeConfig {
	var rcfg resumeConfig
	for _, opt := range opts {
		opt(&rcfg)
	}
	return rcfg
}

// latestState loads the run's most recent snapshot and decodes its state.
func latestState[S any](store session.Store, runID string) (*session.Snapshot, S, error) {
	var zero S

	snap, err := session.LoadLatest(store, runID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, zero, fmt.Errorf("%w: %s", ErrNoSnapshots, runID)
		}
		return nil, zero, err
	}

	var state S
	if err := json.Unmarshal(snap.State, &state); err != nil {
		return nil, zero, fmt.Errorf("%w: %v", ErrDeserializeState, err)
	}

	return snap, state, nil
}

// applyResumeState applies override and validation hooks to loaded state.
func applyResumeState[S any](state S, cfg *resumeConfig) (S, error) {
	if cfg.stateOverride != nil {
		modified := cfg.stateOverride(state)
		if typed, ok := modified.(S); ok {
			state = typed
		}
	}

	if cfg.validateState != nil {
		if err := cfg.validateState(state); err != nil {
			return state, fmt.Errorf("state validation failed: %w", err)
		}
	}

	return state, nil
}

// resumeRunConfig builds the run configuration for a resumed run.
// Store, run ID, and sequence always come from the snapshot context.
func resumeRunConfig(store session.Store, runID string, seq int, opts []RunOption) *runConfig {
	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.store = store
	cfg.runID = runID
	cfg.seq = seq
	return &cfg
}

// deliverResumeValue attaches a resume envelope addressed to nodeID.
func deliverResumeValue(ctx Context, nodeID string, value json.RawMessage) Context {
	env := &resumeEnvelope{nodeID: nodeID, value: value}
	if tc, ok := ctx.(*turnContext); ok {
		return tc.withResumeEnvelope(env)
	}

	// Custom Context implementations can't carry the envelope; wrap them.
	wrapped := NewContext(ctx,
		WithLogger(ctx.Logger()),
		WithContextRunID(ctx.RunID()),
	)
	return wrapped.(*turnContext).withResumeEnvelope(env)
}
