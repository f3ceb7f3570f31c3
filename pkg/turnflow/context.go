package turnflow

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Context is what nodes receive: a context.Context plus the run metadata
// and logger for the execution. Values are immutable; the executor
// derives per-node contexts rather than mutating.
type Context interface {
	context.Context

	// Logger returns the run's logger, enriched with run and node
	// attributes. Never nil; slog.Default() when nothing was configured.
	Logger() *slog.Logger

	// RunID identifies this execution. Auto-generated unless set.
	RunID() string

	// NodeID names the node currently executing, or "" outside one.
	NodeID() string

	// Attempt is the retry attempt number, starting at 1.
	Attempt() int
}

type turnContext struct {
	context.Context

	logger  *slog.Logger
	runID   string
	nodeID  string
	attempt int
	resume  *resumeEnvelope
}

func (c *turnContext) Logger() *slog.Logger { return c.logger }
func (c *turnContext) RunID() string        { return c.runID }
func (c *turnContext) NodeID() string       { return c.nodeID }
func (c *turnContext) Attempt() int         { return c.attempt }

// ContextOption configures a Context at construction.
type ContextOption func(*turnContext)

// WithLogger sets the base logger. During execution it picks up run_id,
// node_id, and attempt attributes.
func WithLogger(logger *slog.Logger) ContextOption {
	return func(c *turnContext) {
		c.logger = logger
	}
}

// WithContextRunID sets the run identifier used in logs and traces; a
// UUID is generated otherwise. Snapshotting keys on the separate
// WithRunID RunOption, not on this.
func WithContextRunID(id string) ContextOption {
	return func(c *turnContext) {
		c.runID = id
	}
}

// NewContext wraps a standard context for use with Run.
//
// Example:
//
//	ctx := turnflow.NewContext(context.Background(),
//	    turnflow.WithLogger(myLogger),
//	    turnflow.WithContextRunID("conv-123"))
func NewContext(ctx context.Context, opts ...ContextOption) Context {
	tc := &turnContext{
		Context: ctx,
		logger:  slog.Default(),
		runID:   uuid.New().String(),
		attempt: 1,
	}
	for _, opt := range opts {
		opt(tc)
	}
	return tc
}

func (c *turnContext) clone() *turnContext {
	copied := *c
	return &copied
}

// nodeScoped derives the per-node context the executor hands each node,
// with the logger enriched for that node.
func (c *turnContext) nodeScoped(nodeID string) *turnContext {
	d := c.clone()
	d.nodeID = nodeID
	d.logger = c.logger.With("run_id", c.runID, "node_id", nodeID, "attempt", c.attempt)
	return d
}

// withResumeEnvelope derives a context carrying the resume value on its
// way to the suspended node.
func (c *turnContext) withResumeEnvelope(env *resumeEnvelope) *turnContext {
	d := c.clone()
	d.resume = env
	return d
}

// withParent swaps the embedded context so branch nodes observe
// branch-scoped cancellation. The resume envelope does not cross into
// branches; Await is not supported there.
func (c *turnContext) withParent(parent context.Context) *turnContext {
	d := c.clone()
	d.Context = parent
	d.resume = nil
	return d
}
