// Package turnflow provides a graph-based conversational workflow engine
// with durable suspend/resume.
package turnflow

import (
	"errors"
	"fmt"
)

// Build and compile failures.
var (
	// ErrNoEntryPoint: Compile was called before SetEntry.
	ErrNoEntryPoint = errors.New("entry point not set")

	// ErrEntryNotFound: the entry point names a node that was never added.
	ErrEntryNotFound = errors.New("entry point node not found")

	// ErrNodeNotFound: an edge endpoint names a node that was never added.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNoPathToEnd: no way to reach END from the entry point.
	ErrNoPathToEnd = errors.New("no path to END from entry")
)

// Execution failures.
var (
	// ErrMaxIterations: the run took more steps than the configured limit.
	ErrMaxIterations = errors.New("exceeded maximum iterations")

	// ErrNilContext: Run was handed a nil context.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrInvalidRouterResult: a router returned the empty string.
	ErrInvalidRouterResult = errors.New("router returned empty string")

	// ErrRouterTargetNotFound: a router named a node the graph does not have.
	ErrRouterTargetNotFound = errors.New("router returned unknown node")

	// ErrInterruptInBranch: a node called Await inside a parallel branch.
	// Only the main execution path can suspend.
	ErrInterruptInBranch = errors.New("await not supported inside parallel branch")
)

// Snapshot and resume failures.
var (
	// ErrRunIDRequired: snapshotting was enabled without a run ID to key on.
	ErrRunIDRequired = errors.New("run ID required for snapshots")

	// ErrStoreRequired: a node suspended but no session store was configured,
	// so the suspension cannot be persisted.
	ErrStoreRequired = errors.New("session store required to suspend")

	// ErrSerializeState: the state would not serialize.
	ErrSerializeState = errors.New("failed to serialize state")

	// ErrDeserializeState: a stored state would not deserialize.
	ErrDeserializeState = errors.New("failed to deserialize state")

	// ErrNoSnapshots: the store has nothing under this run ID.
	ErrNoSnapshots = errors.New("no snapshots found for run")

	// ErrNotSuspended: Resume was called on a run that is not waiting
	// for input.
	ErrNotSuspended = errors.New("run is not suspended")

	// ErrInvalidResumeNode: the snapshot points at a node the graph no
	// longer has.
	ErrInvalidResumeNode = errors.New("invalid resume node")
)

// SnapshotError reports a failed snapshot operation. Op says which step
// failed: "serialize", "marshal", "save", or "suspend".
type SnapshotError struct {
	NodeID string
	Op     string
	Err    error
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("snapshot %s at node %s: %v", e.Op, e.NodeID, e.Err)
}

func (e *SnapshotError) Unwrap() error {
	return e.Err
}

// NodeError attaches the failing node and operation to an error coming
// out of node execution.
type NodeError struct {
	NodeID string
	Op     string
	Err    error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %s: %v", e.NodeID, e.Op, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// PanicError is a recovered panic from a node, with the stack captured
// at the panic site.
type PanicError struct {
	NodeID string
	Value  any
	Stack  string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.NodeID, e.Value)
}

// CancellationError records where a run was cancelled and the state it
// held at that moment. State is the generic state as any; type-assert to
// recover it. Cause is context.Canceled or context.DeadlineExceeded.
// WasExecuting distinguishes cancellation during a node from
// cancellation between nodes.
type CancellationError struct {
	NodeID       string
	State        any
	Cause        error
	WasExecuting bool
}

func (e *CancellationError) Error() string {
	if e.WasExecuting {
		return fmt.Sprintf("cancelled during node %s: %v", e.NodeID, e.Cause)
	}
	return fmt.Sprintf("cancelled before node %s: %v", e.NodeID, e.Cause)
}

func (e *CancellationError) Unwrap() error {
	return e.Cause
}

// RouterError reports an unusable routing decision: a router or a
// control-transfer directive returned the empty string or an unknown
// node. Returned carries the offending value.
type RouterError struct {
	FromNode string
	Returned string
	Err      error
}

func (e *RouterError) Error() string {
	return fmt.Sprintf("router from %s returned %q: %v", e.FromNode, e.Returned, e.Err)
}

func (e *RouterError) Unwrap() error {
	return e.Err
}

// MaxIterationsError reports a run that hit the step limit, with the
// node that would have run next and the state at termination (as any;
// type-assert to recover it).
type MaxIterationsError struct {
	Max        int
	LastNodeID string
	State      any
}

func (e *MaxIterationsError) Error() string {
	return fmt.Sprintf("exceeded maximum iterations (%d) at node %s", e.Max, e.LastNodeID)
}

func (e *MaxIterationsError) Unwrap() error {
	return ErrMaxIterations
}
