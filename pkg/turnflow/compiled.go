package turnflow

import (
	"maps"
	"slices"
)

// CompiledGraph is the frozen, runnable form of a Graph. Compile produces
// it; after that the structure never changes, so a single CompiledGraph
// can serve any number of concurrent Run calls.
//
// The introspection methods expose the structure for debugging and for
// building visualizations on top of the graph.
type CompiledGraph[S any] struct {
	nodes   map[string]NodeFunc[S]
	edges   map[string][]string
	routers map[string]RouterFunc[S]
	entry   string

	// Lookup tables derived at compile time.
	successors    map[string][]string
	predecessors  map[string][]string
	isConditional map[string]bool

	// Fork/join structure and knobs for parallel sections.
	branchHook     BranchHook[S]
	forkJoinConfig ForkJoinConfig
	forkNodes      map[string]*ForkNode
	joinNodes      map[string]*JoinNode
}

// EntryPoint returns the node ID a run starts at.
func (cg *CompiledGraph[S]) EntryPoint() string {
	return cg.entry
}

// NodeIDs lists every node in the graph, in no particular order.
func (cg *CompiledGraph[S]) NodeIDs() []string {
	return slices.Collect(maps.Keys(cg.nodes))
}

// HasNode reports whether the graph contains a node with the given ID.
func (cg *CompiledGraph[S]) HasNode(id string) bool {
	_, ok := cg.nodes[id]
	return ok
}

// Successors returns the targets of the node's simple edges. Targets
// picked by a router at runtime are not listed. END and unknown IDs
// yield nil.
func (cg *CompiledGraph[S]) Successors(id string) []string {
	if id == END {
		return nil
	}
	return cg.successors[id]
}

// Predecessors returns the nodes with a simple edge into the given node.
// The entry node and unknown IDs yield nil.
func (cg *CompiledGraph[S]) Predecessors(id string) []string {
	return cg.predecessors[id]
}

// IsConditional reports whether the node routes via a RouterFunc.
func (cg *CompiledGraph[S]) IsConditional(id string) bool {
	return cg.isConditional[id]
}

// IsForkNode reports whether the node was detected as a fork point, the
// start of a parallel section.
func (cg *CompiledGraph[S]) IsForkNode(id string) bool {
	return cg.forkNodes[id] != nil
}

// GetForkNode returns the fork metadata for a node, or nil when the node
// is not a fork.
func (cg *CompiledGraph[S]) GetForkNode(id string) *ForkNode {
	return cg.forkNodes[id]
}

// IsJoinNode reports whether parallel branches converge at this node.
func (cg *CompiledGraph[S]) IsJoinNode(id string) bool {
	return cg.joinNodes[id] != nil
}

// GetJoinNode returns the join metadata for a node, or nil when the node
// is not a join.
func (cg *CompiledGraph[S]) GetJoinNode(id string) *JoinNode {
	return cg.joinNodes[id]
}

// ForkNodes returns the metadata for every detected fork point. The
// slice is empty when the graph has no parallel sections.
func (cg *CompiledGraph[S]) ForkNodes() []*ForkNode {
	return slices.Collect(maps.Values(cg.forkNodes))
}

// HasParallelExecution reports whether any fork/join section exists.
func (cg *CompiledGraph[S]) HasParallelExecution() bool {
	return len(cg.forkNodes) > 0
}
