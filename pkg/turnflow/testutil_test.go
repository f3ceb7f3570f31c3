package turnflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// Fixtures shared across the package tests.

// Tally is the smallest useful state, a single running total.
type Tally struct {
	Total int
}

// Trip gives routing, looping, and visit-order tests one state type
// with a field for each concern.
type Trip struct {
	Phase      int
	Trail      []string
	Seed       string
	Settled    bool
	PreferLeft bool
	Loops      int
}

func addOne(ctx Context, s Tally) (Tally, error) {
	s.Total++
	return s, nil
}

func keep[S any](ctx Context, s S) (S, error) {
	return s, nil
}

// visitLogger returns a node that appends name to both log and the
// trip's Trail on every visit.
func visitLogger(name string, log *[]string) NodeFunc[Trip] {
	return func(ctx Context, s Trip) (Trip, error) {
		*log = append(*log, name)
		s.Trail = append(s.Trail, name)
		return s, nil
	}
}

func alwaysFail(err error) NodeFunc[Trip] {
	return func(ctx Context, s Trip) (Trip, error) {
		return s, err
	}
}

func alwaysPanic(value any) NodeFunc[Trip] {
	return func(ctx Context, s Trip) (Trip, error) {
		panic(value)
	}
}

func bgCtx() Context {
	return NewContext(context.Background())
}

// mustBuild compiles the graph and fails the test on any build error.
func mustBuild[S any](t *testing.T, g *Graph[S]) *CompiledGraph[S] {
	t.Helper()
	compiled, err := g.Compile()
	require.NoError(t, err)
	return compiled
}
