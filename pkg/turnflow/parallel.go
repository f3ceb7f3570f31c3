package turnflow

import (
	"encoding/json"
	"fmt"
	"time"
)

// ParallelState lets a state type control how it is copied into parallel
// branches and how branch results fold back together.
//
// State types without this interface get JSON round-trip cloning, and on
// merge the pre-fork state is kept as-is, dropping branch results.
// Implement it when the state holds structures JSON cannot round-trip,
// when merging needs real conflict resolution, or when the serialization
// cost matters.
//
// Example:
//
//	func (s ResearchState) Clone(branchID string) ResearchState {
//	    out := s
//	    out.Branch = branchID
//	    return out
//	}
//
//	func (s ResearchState) Merge(branches map[string]ResearchState) ResearchState {
//	    out := s
//	    for _, b := range branches {
//	        out.Results = append(out.Results, b.Results...)
//	    }
//	    return out
//	}
type ParallelState[S any] interface {
	// Clone returns an independent copy for the branch named branchID.
	Clone(branchID string) S

	// Merge folds the branch results into the receiver, which is the
	// state as it was at the fork point. Keys are branch IDs.
	Merge(branches map[string]S) S
}

// BranchHook receives lifecycle callbacks around a parallel section:
// OnFork once per branch before it starts, then OnJoin after every
// branch finishes, with OnBranchError fired for each branch that failed
// along the way. A nil hook is fine.
type BranchHook[S any] interface {
	// OnFork may adjust the cloned state a branch will start from.
	// Returning an error aborts the whole fork.
	OnFork(ctx Context, branchID string, state S) (S, error)

	// OnJoin sees all successful branch states before they are merged.
	// Returning an error fails the fork/join section.
	OnJoin(ctx Context, branchStates map[string]S) error

	// OnBranchError is notified of a branch failure with the state at
	// the point of failure. The error itself is already recorded.
	OnBranchError(ctx Context, branchID string, state S, err error)
}

// ForkJoinConfig tunes parallel sections. The zero value means run every
// branch at once, wait for all of them, and never time out.
//
// BranchHook lives on the Graph (SetBranchHook) rather than here so it
// can carry the state type parameter.
type ForkJoinConfig struct {
	// MaxConcurrency caps how many branches run at the same time.
	// 0 lifts the cap.
	MaxConcurrency int

	// FailFast cancels the remaining branches as soon as one fails.
	// The default is to let them all finish.
	FailFast bool

	// MergeTimeout bounds how long the section may take; branches still
	// running when it expires are cancelled. 0 waits indefinitely.
	MergeTimeout time.Duration
}

// DefaultForkJoinConfig returns the zero configuration spelled out.
func DefaultForkJoinConfig() ForkJoinConfig {
	return ForkJoinConfig{
		MaxConcurrency: 0,
		FailFast:       false,
		MergeTimeout:   0,
	}
}

// ForkNode describes a point where execution splits, detected at compile
// time from a node with multiple unconditional edges.
type ForkNode struct {
	// NodeID is the forking node.
	NodeID string

	// Branches holds the first node of each branch, in edge order.
	Branches []string

	// JoinNodeID is where the branches converge, found by
	// post-dominator analysis during compilation.
	JoinNodeID string
}

// JoinNode describes the convergence point of a parallel section.
type JoinNode struct {
	// NodeID is the joining node.
	NodeID string

	// ForkNodeID is the fork this join belongs to.
	ForkNodeID string

	// ExpectedBranches lists the branch entry nodes that must arrive.
	ExpectedBranches []string
}

// BranchResult is the outcome of one branch.
type BranchResult[S any] struct {
	// BranchID names the branch; it equals the branch's first node ID.
	BranchID string

	// State is the branch's state on reaching the join point.
	State S

	// Error is set when the branch failed.
	Error error

	// Duration is the branch's wall-clock time.
	Duration time.Duration
}

// cloneForBranch copies the state for one branch, preferring the type's
// own Clone and falling back to a JSON round trip.
func cloneForBranch[S any](state S, branchID string) (S, error) {
	var out S

	if impl, ok := any(state).(ParallelState[S]); ok {
		return impl.Clone(branchID), nil
	}

	data, err := json.Marshal(state)
	if err != nil {
		return out, fmt.Errorf("clone state for branch %s: marshal: %w", branchID, err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("clone state for branch %s: unmarshal: %w", branchID, err)
	}

	return out, nil
}

// foldBranches merges branch results into the pre-fork state via the
// type's Merge. Without ParallelState there is no way to know how, so
// the pre-fork state wins; OnJoin is the place to observe branch output
// in that case.
func foldBranches[S any](preFork S, results map[string]S) S {
	if impl, ok := any(preFork).(ParallelState[S]); ok {
		return impl.Merge(results)
	}
	return preFork
}
