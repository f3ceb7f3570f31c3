package turnflow

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
)

// Compile validates the graph and freezes it into a CompiledGraph.
// All validation problems are reported at once via errors.Join: a missing
// entry point, an entry naming an unknown node, edges whose endpoints do
// not exist, and the absence of any path from entry to END. Nodes that can
// never be reached from the entry are only warned about, since a router
// may still jump to them at runtime.
func (g *Graph[S]) Compile() (*CompiledGraph[S], error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var errs []error

	switch {
	case g.entry == "":
		errs = append(errs, ErrNoEntryPoint)
	case !g.hasNode(g.entry):
		errs = append(errs, fmt.Errorf("%w: %s", ErrEntryNotFound, g.entry))
	}

	for from, targets := range g.edges {
		// A source backed by neither a node nor a router is dangling.
		if from != END && !g.hasNode(from) {
			if _, routed := g.routers[from]; !routed {
				errs = append(errs, fmt.Errorf("%w: edge source '%s' was never added", ErrNodeNotFound, from))
			}
		}
		for _, to := range targets {
			if to != END && !g.hasNode(to) {
				errs = append(errs, fmt.Errorf("%w: edge target '%s' was never added", ErrNodeNotFound, to))
			}
		}
	}

	for from := range g.routers {
		if !g.hasNode(from) {
			errs = append(errs, fmt.Errorf("%w: router source '%s' was never added", ErrNodeNotFound, from))
		}
	}

	if g.hasNode(g.entry) && !g.endReachable() {
		errs = append(errs, ErrNoPathToEnd)
	}

	g.warnOrphans()

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return g.freeze(), nil
}

func (g *Graph[S]) hasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// endReachable reports whether the entry point has some path to END.
// The set of END-reaching nodes is grown backwards to a fixed point over
// the simple edges. Any node with a router counts as END-reaching: the
// router's targets are unknowable here and may include END.
func (g *Graph[S]) endReachable() bool {
	reaches := map[string]bool{END: true}
	for from := range g.routers {
		reaches[from] = true
	}

	for {
		grew := false
		for from, targets := range g.edges {
			if reaches[from] {
				continue
			}
			for _, to := range targets {
				if reaches[to] {
					reaches[from] = true
					grew = true
					break
				}
			}
		}
		if !grew {
			return reaches[g.entry]
		}
	}
}

// warnOrphans logs nodes the entry can never walk to.
func (g *Graph[S]) warnOrphans() {
	if g.entry == "" {
		return
	}
	seen := g.walkFromEntry()
	for id := range g.nodes {
		if !seen[id] {
			slog.Warn("node is unreachable from entry", "node_id", id)
		}
	}
}

// walkFromEntry returns every node a run starting at the entry could
// visit. A router's runtime target can be any node, so hitting one marks
// everything reachable.
func (g *Graph[S]) walkFromEntry() map[string]bool {
	seen := make(map[string]bool)
	if g.entry == "" {
		return seen
	}

	frontier := []string{g.entry}
	seen[g.entry] = true
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]

		for _, to := range g.edges[id] {
			if to != END && !seen[to] {
				seen[to] = true
				frontier = append(frontier, to)
			}
		}
		if _, routed := g.routers[id]; routed {
			for candidate := range g.nodes {
				if !seen[candidate] {
					seen[candidate] = true
					frontier = append(frontier, candidate)
				}
			}
		}
	}
	return seen
}

// freeze copies the builder state into an immutable CompiledGraph with
// the derived lookup tables the executor needs.
func (g *Graph[S]) freeze() *CompiledGraph[S] {
	nodes := maps.Clone(g.nodes)

	edges := make(map[string][]string, len(g.edges))
	successors := make(map[string][]string, len(g.edges))
	predecessors := make(map[string][]string)
	for from, targets := range g.edges {
		copied := make([]string, len(targets))
		copy(copied, targets)
		edges[from] = copied
		successors[from] = copied
		for _, to := range copied {
			if to != END {
				predecessors[to] = append(predecessors[to], from)
			}
		}
	}

	routers := make(map[string]RouterFunc[S], len(g.routers))
	isConditional := make(map[string]bool, len(g.routers))
	for from, router := range g.routers {
		routers[from] = router
		isConditional[from] = true
	}

	forkNodes, joinNodes := detectForks(edges, isConditional)

	return &CompiledGraph[S]{
		nodes:          nodes,
		edges:          edges,
		routers:        routers,
		entry:          g.entry,
		successors:     successors,
		predecessors:   predecessors,
		isConditional:  isConditional,
		branchHook:     g.branchHook,
		forkJoinConfig: g.forkJoinConfig,
		forkNodes:      forkNodes,
		joinNodes:      joinNodes,
	}
}

// detectForks finds fork points and pairs each with its join. A fork is a
// node with more than one unconditional outgoing edge; its join is the
// nearest node every branch passes through on the way to END (the common
// post-dominator). The pairing handles the straightforward
// fork-branches-join shape; exotic DAGs fall back to no detected join.
func detectForks(edges map[string][]string, isConditional map[string]bool) (map[string]*ForkNode, map[string]*JoinNode) {
	forkNodes := make(map[string]*ForkNode)
	joinNodes := make(map[string]*JoinNode)

	for from, targets := range edges {
		if len(targets) < 2 || isConditional[from] {
			continue
		}

		branches := make([]string, len(targets))
		copy(branches, targets)
		join := commonJoin(branches, edges)

		forkNodes[from] = &ForkNode{
			NodeID:     from,
			Branches:   branches,
			JoinNodeID: join,
		}
		if join != "" && join != END {
			joinNodes[join] = &JoinNode{
				NodeID:           join,
				ForkNodeID:       from,
				ExpectedBranches: branches,
			}
		}
	}

	return forkNodes, joinNodes
}

// commonJoin returns the node closest to the first branch that all
// branches can reach, or "" when the branches never converge.
func commonJoin(branches []string, edges map[string][]string) string {
	if len(branches) == 0 {
		return ""
	}

	shared := downstream(branches[0], edges)
	for _, branch := range branches[1:] {
		other := downstream(branch, edges)
		for id := range shared {
			if !other[id] {
				delete(shared, id)
			}
		}
	}
	if len(shared) == 0 {
		return ""
	}
	return nearest(branches[0], shared, edges)
}

// downstream collects every node reachable from start over simple edges,
// start included.
func downstream(start string, edges map[string][]string) map[string]bool {
	set := map[string]bool{start: true}
	frontier := []string{start}
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		for _, to := range edges[id] {
			if to != END && !set[to] {
				set[to] = true
				frontier = append(frontier, to)
			}
		}
	}
	return set
}

// nearest BFS-walks from start and returns the first node that is in the
// candidate set.
func nearest(start string, candidates map[string]bool, edges map[string][]string) string {
	if candidates[start] {
		return start
	}

	visited := map[string]bool{start: true}
	frontier := []string{start}
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		for _, to := range edges[id] {
			if to == END {
				continue
			}
			if candidates[to] {
				return to
			}
			if !visited[to] {
				visited[to] = true
				frontier = append(frontier, to)
			}
		}
	}
	return ""
}
