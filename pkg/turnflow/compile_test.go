package turnflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_AcceptedShapes(t *testing.T) {
	routeWhenSettled := func(ctx Context, s Trip) string {
		if s.Settled {
			return END
		}
		return "work"
	}

	tests := []struct {
		name  string
		graph *Graph[Trip]
	}{
		{
			name: "linear chain",
			graph: NewGraph[Trip]().
				AddNode("plan", keep[Trip]).
				AddNode("quote", keep[Trip]).
				AddNode("book", keep[Trip]).
				AddEdge("plan", "quote").
				AddEdge("quote", "book").
				AddEdge("book", END).
				SetEntry("plan"),
		},
		{
			name: "single node",
			graph: NewGraph[Trip]().
				AddNode("only", keep[Trip]).
				AddEdge("only", END).
				SetEntry("only"),
		},
		{
			name: "cycle with conditional exit",
			graph: NewGraph[Trip]().
				AddNode("check", keep[Trip]).
				AddNode("work", keep[Trip]).
				AddConditionalEdge("check", routeWhenSettled).
				AddEdge("work", "check").
				SetEntry("check"),
		},
		{
			name: "self loop with conditional exit",
			graph: NewGraph[Trip]().
				AddNode("work", keep[Trip]).
				AddConditionalEdge("work", routeWhenSettled).
				SetEntry("work"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compiled, err := tt.graph.Compile()
			require.NoError(t, err)
			assert.NotNil(t, compiled)
		})
	}
}

func TestCompile_RouterGraph(t *testing.T) {
	compiled := mustBuild(t, NewGraph[Trip]().
		AddNode("classify", keep[Trip]).
		AddNode("left", keep[Trip]).
		AddNode("right", keep[Trip]).
		AddNode("finalize", keep[Trip]).
		AddConditionalEdge("classify", func(ctx Context, s Trip) string {
			if s.PreferLeft {
				return "left"
			}
			return "right"
		}).
		AddEdge("left", "finalize").
		AddEdge("right", "finalize").
		AddEdge("finalize", END).
		SetEntry("classify"))

	assert.True(t, compiled.IsConditional("classify"))
	assert.False(t, compiled.IsConditional("left"))
	assert.False(t, compiled.IsConditional("right"))
}

func TestCompile_RejectedShapes(t *testing.T) {
	tests := []struct {
		name      string
		graph     *Graph[Tally]
		sentinels []error
		mentions  []string
	}{
		{
			name: "entry never set",
			graph: NewGraph[Tally]().
				AddNode("plan", addOne).
				AddEdge("plan", END),
			sentinels: []error{ErrNoEntryPoint},
		},
		{
			name:      "empty graph",
			graph:     NewGraph[Tally](),
			sentinels: []error{ErrNoEntryPoint},
		},
		{
			name: "entry names unknown node",
			graph: NewGraph[Tally]().
				AddNode("plan", addOne).
				AddEdge("plan", END).
				SetEntry("nonexistent"),
			sentinels: []error{ErrEntryNotFound},
			mentions:  []string{"nonexistent"},
		},
		{
			name:      "only entry set",
			graph:     NewGraph[Tally]().SetEntry("nonexistent"),
			sentinels: []error{ErrEntryNotFound},
		},
		{
			name: "edge target missing",
			graph: NewGraph[Tally]().
				AddNode("plan", addOne).
				AddEdge("plan", "nonexistent").
				SetEntry("plan"),
			sentinels: []error{ErrNodeNotFound},
			mentions:  []string{"nonexistent"},
		},
		{
			name: "edge source missing",
			graph: NewGraph[Tally]().
				AddNode("plan", addOne).
				AddEdge("nonexistent", "plan").
				AddEdge("plan", END).
				SetEntry("plan"),
			sentinels: []error{ErrNodeNotFound},
			mentions:  []string{"nonexistent"},
		},
		{
			name: "conditional edge source missing",
			graph: NewGraph[Tally]().
				AddConditionalEdge("nonexistent", func(ctx Context, s Tally) string { return END }).
				SetEntry("nonexistent"),
			sentinels: []error{ErrNodeNotFound},
		},
		{
			name: "dead end node",
			graph: NewGraph[Tally]().
				AddNode("plan", addOne).
				AddNode("quote", addOne).
				AddEdge("plan", "quote").
				SetEntry("plan"),
			sentinels: []error{ErrNoPathToEnd},
		},
		{
			name: "several problems reported together",
			graph: NewGraph[Tally]().
				AddNode("plan", addOne).
				AddEdge("plan", "missing1").
				AddEdge("missing2", END),
			sentinels: []error{ErrNoEntryPoint, ErrNodeNotFound},
			mentions:  []string{"missing1", "missing2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.graph.Compile()
			require.Error(t, err)

			for _, sentinel := range tt.sentinels {
				assert.ErrorIs(t, err, sentinel)
			}
			for _, fragment := range tt.mentions {
				assert.Contains(t, err.Error(), fragment)
			}
		})
	}
}

func TestCompile_DetectsForkAndJoin(t *testing.T) {
	compiled := mustBuild(t, NewGraph[Trip]().
		AddNode("prepare", keep[Trip]).
		AddNode("branch_a", keep[Trip]).
		AddNode("branch_b", keep[Trip]).
		AddNode("branch_c", keep[Trip]).
		AddNode("merge", keep[Trip]).
		AddEdge("prepare", "branch_a").
		AddEdge("prepare", "branch_b").
		AddEdge("prepare", "branch_c").
		AddEdge("branch_a", "merge").
		AddEdge("branch_b", "merge").
		AddEdge("branch_c", "merge").
		AddEdge("merge", END).
		SetEntry("prepare"))

	assert.True(t, compiled.HasParallelExecution())
	assert.True(t, compiled.IsForkNode("prepare"))
	assert.False(t, compiled.IsForkNode("branch_a"))

	fork := compiled.GetForkNode("prepare")
	require.NotNil(t, fork)
	assert.ElementsMatch(t, []string{"branch_a", "branch_b", "branch_c"}, fork.Branches)
	assert.Equal(t, "merge", fork.JoinNodeID)

	require.True(t, compiled.IsJoinNode("merge"))
	join := compiled.GetJoinNode("merge")
	assert.Equal(t, "prepare", join.ForkNodeID)

	assert.Len(t, compiled.ForkNodes(), 1)
}

func TestCompile_LinearGraphHasNoForks(t *testing.T) {
	compiled := mustBuild(t, NewGraph[Tally]().
		AddNode("plan", addOne).
		AddNode("quote", addOne).
		AddEdge("plan", "quote").
		AddEdge("quote", END).
		SetEntry("plan"))

	assert.False(t, compiled.HasParallelExecution())
	assert.Nil(t, compiled.GetForkNode("plan"))
	assert.Empty(t, compiled.ForkNodes())
}

func TestCompiledGraph_Topology(t *testing.T) {
	compiled := mustBuild(t, NewGraph[Tally]().
		AddNode("intake", addOne).
		AddNode("assemble", addOne).
		AddNode("deliver", addOne).
		AddEdge("intake", "assemble").
		AddEdge("assemble", "deliver").
		AddEdge("deliver", END).
		SetEntry("intake"))

	t.Run("entry point", func(t *testing.T) {
		assert.Equal(t, "intake", compiled.EntryPoint())
	})

	t.Run("node IDs", func(t *testing.T) {
		assert.ElementsMatch(t, []string{"intake", "assemble", "deliver"}, compiled.NodeIDs())
	})

	t.Run("has node", func(t *testing.T) {
		assert.True(t, compiled.HasNode("intake"))
		assert.True(t, compiled.HasNode("deliver"))
		assert.False(t, compiled.HasNode("nonexistent"))
	})

	t.Run("successors", func(t *testing.T) {
		assert.Equal(t, []string{"assemble"}, compiled.Successors("intake"))
		assert.Equal(t, []string{"deliver"}, compiled.Successors("assemble"))
		assert.Equal(t, []string{END}, compiled.Successors("deliver"))
		assert.Nil(t, compiled.Successors(END))
		assert.Nil(t, compiled.Successors("nonexistent"))
	})

	t.Run("predecessors", func(t *testing.T) {
		assert.Equal(t, []string{"intake"}, compiled.Predecessors("assemble"))
		assert.Equal(t, []string{"assemble"}, compiled.Predecessors("deliver"))
		assert.Nil(t, compiled.Predecessors("intake"))
	})

	t.Run("is conditional", func(t *testing.T) {
		assert.False(t, compiled.IsConditional("intake"))
		assert.False(t, compiled.IsConditional("assemble"))
	})
}

func TestCompiledGraph_ConditionalNodes(t *testing.T) {
	compiled := mustBuild(t, NewGraph[Tally]().
		AddNode("intake", addOne).
		AddNode("poll", addOne).
		AddEdge("intake", "poll").
		AddConditionalEdge("poll", func(ctx Context, s Tally) string { return END }).
		SetEntry("intake"))

	assert.False(t, compiled.IsConditional("intake"))
	assert.True(t, compiled.IsConditional("poll"))
}

// Compiling freezes a copy; the builder can keep evolving without
// affecting graphs already compiled from it.
func TestCompile_FrozenCopyIndependentOfBuilder(t *testing.T) {
	graph := NewGraph[Tally]().
		AddNode("plan", addOne).
		AddEdge("plan", END).
		SetEntry("plan")

	first := mustBuild(t, graph)

	graph.AddNode("quote", addOne).
		AddEdge("plan", "quote").
		AddEdge("quote", END)

	second := mustBuild(t, graph)

	assert.Len(t, first.NodeIDs(), 1)
	assert.Len(t, second.NodeIDs(), 2)
}

func TestCompile_EdgeStraightToEND(t *testing.T) {
	compiled := mustBuild(t, NewGraph[Tally]().
		AddNode("plan", addOne).
		AddEdge("plan", END).
		SetEntry("plan"))

	assert.Equal(t, []string{END}, compiled.Successors("plan"))
}
