package turnflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// runForkJoin executes the parallel section rooted at a fork node: clone
// the state per branch, run the branches concurrently, merge the
// surviving states. Returns the merged state and the join node to
// continue from.
func (cg *CompiledGraph[S]) runForkJoin(
	ctx Context,
	fork *ForkNode,
	state S,
	cfg *runConfig,
) (merged S, joinNode string, err error) {
	started := time.Now()
	hook := cg.branchHook
	fj := cg.forkJoinConfig

	var slots chan struct{}
	if fj.MaxConcurrency > 0 {
		slots = make(chan struct{}, fj.MaxConcurrency)
	}

	// One context covers the whole section: parent cancellation, the
	// merge timeout, and fail-fast teardown when a sibling errors.
	var sectionCtx context.Context
	var cancelSection context.CancelFunc
	if fj.MergeTimeout > 0 {
		sectionCtx, cancelSection = context.WithTimeout(ctx, fj.MergeTimeout)
	} else {
		sectionCtx, cancelSection = context.WithCancel(ctx)
	}
	defer cancelSection()

	// Nodes inside branches observe the section context via Done().
	branchTfCtx := ctx
	if tc, ok := ctx.(*turnContext); ok {
		branchTfCtx = tc.withParent(sectionCtx)
	}

	seeds := make(map[string]S, len(fork.Branches))
	for _, branchID := range fork.Branches {
		seed, cloneErr := cloneForBranch(state, branchID)
		if cloneErr != nil {
			return state, "", fmt.Errorf("fork %s: branch %s: %w",
				fork.NodeID, branchID, cloneErr)
		}

		if hook != nil {
			var hookErr error
			seed, hookErr = hook.OnFork(ctx, branchID, seed)
			if hookErr != nil {
				return state, "", fmt.Errorf("fork %s: OnFork for branch %s: %w",
					fork.NodeID, branchID, hookErr)
			}
		}

		seeds[branchID] = seed
	}

	outcomes := make(chan BranchResult[S], len(fork.Branches))
	var wg sync.WaitGroup

	for _, branchID := range fork.Branches {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if slots != nil {
				select {
				case slots <- struct{}{}:
					defer func() { <-slots }()
				case <-sectionCtx.Done():
					outcomes <- BranchResult[S]{
						BranchID: branchID,
						Error:    sectionCtx.Err(),
					}
					return
				}
			}

			res := cg.runBranch(sectionCtx, branchTfCtx, branchID, seeds[branchID], fork.JoinNodeID, cfg)

			if res.Error != nil {
				if fj.FailFast {
					cancelSection()
				}
				if hook != nil {
					hook.OnBranchError(ctx, branchID, res.State, res.Error)
				}
			}

			outcomes <- res
		}()
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	var branchErr error
	var failedBranch string
	survived := make(map[string]S)
	for res := range outcomes {
		switch {
		case res.Error == nil:
			survived[res.BranchID] = res.State
		case branchErr == nil:
			branchErr = res.Error
			failedBranch = res.BranchID
		}
	}

	if branchErr != nil {
		return state, "", &ForkJoinError{
			ForkNodeID: fork.NodeID,
			BranchID:   failedBranch,
			Err:        branchErr,
		}
	}

	if hook != nil {
		if joinErr := hook.OnJoin(ctx, survived); joinErr != nil {
			return state, "", fmt.Errorf("fork %s: OnJoin: %w",
				fork.NodeID, joinErr)
		}
	}

	merged = foldBranches(state, survived)

	ctx.Logger().Info("parallel section merged",
		"fork_node", fork.NodeID,
		"join_node", fork.JoinNodeID,
		"branches", len(fork.Branches),
		"duration_ms", time.Since(started).Milliseconds())

	return merged, fork.JoinNodeID, nil
}

// runBranch walks one branch from its start node until the join node or
// END. Directives transfer control within the branch; Await is not
// allowed here and fails the branch.
func (cg *CompiledGraph[S]) runBranch(
	sectionCtx context.Context,
	tfCtx Context,
	branchID string,
	state S,
	joinNodeID string,
	cfg *runConfig,
) BranchResult[S] {
	started := time.Now()
	node := branchID
	steps := 0

	fail := func(err error) BranchResult[S] {
		return BranchResult[S]{
			BranchID: branchID,
			State:    state,
			Error:    err,
			Duration: time.Since(started),
		}
	}

	for node != joinNodeID && node != END {
		steps++
		if steps > cfg.maxIterations {
			return fail(&MaxIterationsError{
				Max:        cfg.maxIterations,
				LastNodeID: node,
				State:      state,
			})
		}

		select {
		case <-sectionCtx.Done():
			return fail(&CancellationError{
				NodeID:       node,
				State:        state,
				Cause:        sectionCtx.Err(),
				WasExecuting: false,
			})
		default:
		}

		var nodeErr error
		state, nodeErr = cg.invokeNode(tfCtx, node, state)
		if nodeErr != nil {
			var dir *Directive
			if errors.As(nodeErr, &dir) {
				target := dir.Target
				if target == "" {
					return fail(&RouterError{
						FromNode: node,
						Returned: target,
						Err:      ErrInvalidRouterResult,
					})
				}
				if target != END && !cg.HasNode(target) {
					return fail(&RouterError{
						FromNode: node,
						Returned: target,
						Err:      ErrRouterTargetNotFound,
					})
				}
				node = target
				continue
			}

			if _, suspended := AsInterrupt(nodeErr); suspended {
				nodeErr = &NodeError{
					NodeID: node,
					Op:     "execute",
					Err:    ErrInterruptInBranch,
				}
			}

			return fail(nodeErr)
		}

		next, routeErr := cg.pickNext(tfCtx, state, node)
		if routeErr != nil {
			return fail(routeErr)
		}

		node = next
	}

	return BranchResult[S]{
		BranchID: branchID,
		State:    state,
		Duration: time.Since(started),
	}
}

// ForkJoinError reports a branch failure inside a parallel section.
type ForkJoinError struct {
	ForkNodeID string
	BranchID   string
	Err        error
}

func (e *ForkJoinError) Error() string {
	return fmt.Sprintf("fork/join error at %s (branch %s): %v", e.ForkNodeID, e.BranchID, e.Err)
}

func (e *ForkJoinError) Unwrap() error {
	return e.Err
}
