package turnflow

import (
	"fmt"
	"strings"
	"sync"
)

// Graph is the mutable builder side of the package. Chain AddNode,
// AddEdge, AddConditionalEdge, and SetEntry to describe the workflow,
// then Compile to get a runnable CompiledGraph.
//
// Build from a single goroutine. Only the compiled form is meant to be
// shared.
//
// Example:
//
//	graph := turnflow.NewGraph[Conversation]().
//	    AddNode("classify_intent", classifyIntent).
//	    AddNode("plan_trip", planTrip).
//	    AddEdge("classify_intent", "plan_trip").
//	    AddEdge("plan_trip", turnflow.END).
//	    SetEntry("classify_intent")
//
//	compiled, err := graph.Compile()
type Graph[S any] struct {
	mu             sync.RWMutex
	nodes          map[string]NodeFunc[S]
	edges          map[string][]string
	routers        map[string]RouterFunc[S]
	entry          string
	branchHook     BranchHook[S]
	forkJoinConfig ForkJoinConfig
}

// NewGraph returns an empty builder for graphs over state type S.
func NewGraph[S any]() *Graph[S] {
	return &Graph[S]{
		nodes:   make(map[string]NodeFunc[S]),
		edges:   make(map[string][]string),
		routers: make(map[string]RouterFunc[S]),
	}
}

// AddNode registers a node under the given ID.
//
// Bad registrations panic rather than surface at Compile: an empty ID,
// the reserved END name in any casing, whitespace in the ID, a nil
// function, or a duplicate ID.
func (g *Graph[S]) AddNode(id string, fn NodeFunc[S]) *Graph[S] {
	switch {
	case id == "":
		panic("turnflow: node ID cannot be empty")
	case strings.EqualFold(id, "end") || strings.EqualFold(id, END):
		panic("turnflow: node ID cannot be reserved word 'END'")
	case strings.ContainsAny(id, " \t\n\r"):
		panic("turnflow: node ID cannot contain whitespace")
	case fn == nil:
		panic("turnflow: node function cannot be nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, dup := g.nodes[id]; dup {
		panic(fmt.Sprintf("turnflow: duplicate node ID: %s", id))
	}

	g.nodes[id] = fn
	return g
}

// AddEdge wires an unconditional edge from one node to another node or
// to turnflow.END. Endpoints are checked at Compile time, so edges may
// be added before their nodes.
//
// Giving a node several unconditional edges makes it a fork point: the
// targets run in parallel and converge at a join node.
func (g *Graph[S]) AddEdge(from, to string) *Graph[S] {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.edges[from] = append(g.edges[from], to)
	return g
}

// AddConditionalEdge attaches a router to the node: after the node runs,
// the router inspects the state and names the next node (or END).
//
// A node with both kinds of edges routes through the conditional one;
// its simple edges are ignored.
func (g *Graph[S]) AddConditionalEdge(from string, router RouterFunc[S]) *Graph[S] {
	if router == nil {
		panic("turnflow: router function cannot be nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.routers[from] = router
	return g
}

// SetEntry names the node a run starts at. Compile checks it exists.
func (g *Graph[S]) SetEntry(id string) *Graph[S] {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.entry = id
	return g
}

// SetBranchHook installs lifecycle callbacks for fork/join sections.
func (g *Graph[S]) SetBranchHook(hook BranchHook[S]) *Graph[S] {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.branchHook = hook
	return g
}

// SetForkJoinConfig sets the concurrency knobs shared by every fork
// point in the graph.
func (g *Graph[S]) SetForkJoinConfig(cfg ForkJoinConfig) *Graph[S] {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.forkJoinConfig = cfg
	return g
}
