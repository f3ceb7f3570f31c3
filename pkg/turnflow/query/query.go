// Package query provides read-only inspection of conversations.
//
// Queries retrieve information about a conversation without modifying it:
// whether it is waiting on the user, which node it stopped at, what the
// classified intent was. They are synchronous and answer from whatever
// state the loader can see, typically the latest session snapshot.
//
// The design follows Temporal's workflow queries: named handlers, a
// registry, and an executor that dispatches by name so callers such as a
// status endpoint or a CLI can ask by string.
package query

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// ErrQueryNotFound is returned when no handler exists for a query name.
var ErrQueryNotFound = errors.New("query not found")

// ErrTargetNotFound is returned when the queried conversation doesn't exist.
var ErrTargetNotFound = errors.New("target not found")

// Handler answers a named query for a target conversation.
// Handlers must not modify conversation state.
type Handler func(ctx context.Context, targetID string, args any) (any, error)

// Registry maps query names to their handlers.
type Registry struct {
	handlers map[string]Handler
	mu       sync.RWMutex
}

// NewRegistry creates an empty query registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler for a query name. A name can only be
// claimed once.
func (r *Registry) Register(queryName string, handler Handler) error {
	switch {
	case queryName == "":
		return errors.New("query name is required")
	case handler == nil:
		return errors.New("handler is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.handlers[queryName]; taken {
		return fmt.Errorf("handler for query %q already registered", queryName)
	}
	r.handlers[queryName] = handler
	return nil
}

// MustRegister is Register for wiring done at startup, where a
// duplicate or empty name is a programming error worth a panic.
func (r *Registry) MustRegister(queryName string, handler Handler) {
	if err := r.Register(queryName, handler); err != nil {
		panic(err)
	}
}

// Get looks up the handler registered under queryName.
func (r *Registry) Get(queryName string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[queryName]
	return handler, ok
}

// List returns the registered query names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.handlers))
}

// Unregister removes the handler for a query name.
func (r *Registry) Unregister(queryName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, queryName)
}

// StateLoader retrieves the queryable state for a conversation.
// Returning (nil, nil) means the conversation is unknown.
type StateLoader func(ctx context.Context, targetID string) (*State, error)

// State is the queryable view of a conversation.
type State struct {
	// TargetID is the conversation identifier.
	TargetID string `json:"target_id"`

	// Status is the session status: active, suspended, completed, failed.
	Status string `json:"status"`

	// CurrentNode is the node the conversation last stopped at.
	CurrentNode string `json:"current_node,omitempty"`

	// Intent is the classified intent, empty until classification ran.
	Intent string `json:"intent,omitempty"`

	// Variables holds extracted values such as destination or budget.
	Variables map[string]any `json:"variables,omitempty"`

	// PendingPrompt is set while the conversation waits on the user.
	PendingPrompt *PendingPrompt `json:"pending_prompt,omitempty"`

	// Custom holds additional queryable data.
	Custom map[string]any `json:"custom,omitempty"`
}

// PendingPrompt describes the question a suspended conversation is
// waiting to have answered.
type PendingPrompt struct {
	NodeID   string         `json:"node_id"`
	Question string         `json:"question,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
	AskedAt  string         `json:"asked_at,omitempty"`
}

// Executor dispatches queries to registered handlers.
type Executor struct {
	registry *Registry
}

// NewExecutor creates an executor over a registry.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{registry: registry}
}

// Execute runs one named query against a conversation.
func (e *Executor) Execute(ctx context.Context, targetID, queryName string, args any) (any, error) {
	switch {
	case targetID == "":
		return nil, errors.New("target ID is required")
	case queryName == "":
		return nil, errors.New("query name is required")
	}

	handler, ok := e.registry.Get(queryName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrQueryNotFound, queryName)
	}
	return handler(ctx, targetID, args)
}

// Names of the built-in queries RegisterBuiltins installs.
const (
	QueryStatus        = "status"         // session status
	QueryCurrentNode   = "current_node"   // node the conversation stopped at
	QueryIntent        = "intent"         // classified intent
	QueryVariables     = "variables"      // extracted variables, or one by name
	QueryPendingPrompt = "pending_prompt" // question awaiting the user
	QueryState         = "state"          // full queryable state
)

// stateQuery adapts a function over loaded State into a Handler,
// folding in the load-and-check-missing step.
func stateQuery(load StateLoader, fn func(state *State, args any) (any, error)) Handler {
	return func(ctx context.Context, targetID string, args any) (any, error) {
		state, err := load(ctx, targetID)
		if err != nil {
			return nil, err
		}
		if state == nil {
			return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, targetID)
		}
		return fn(state, args)
	}
}

// RegisterBuiltins registers the standard conversation queries.
func RegisterBuiltins(registry *Registry, load StateLoader) error {
	std := map[string]Handler{
		QueryStatus: stateQuery(load, func(state *State, _ any) (any, error) {
			return state.Status, nil
		}),
		QueryCurrentNode: stateQuery(load, func(state *State, _ any) (any, error) {
			return state.CurrentNode, nil
		}),
		QueryIntent: stateQuery(load, func(state *State, _ any) (any, error) {
			return state.Intent, nil
		}),
		QueryVariables: stateQuery(load, func(state *State, args any) (any, error) {
			if key, ok := args.(string); ok && key != "" {
				val, found := state.Variables[key]
				if !found {
					return nil, fmt.Errorf("variable %q not found", key)
				}
				return val, nil
			}
			return state.Variables, nil
		}),
		QueryPendingPrompt: stateQuery(load, func(state *State, _ any) (any, error) {
			return state.PendingPrompt, nil
		}),
		QueryState: stateQuery(load, func(state *State, _ any) (any, error) {
			return state, nil
		}),
	}

	for name, handler := range std {
		if err := registry.Register(name, handler); err != nil {
			return fmt.Errorf("failed to register builtin query %q: %w", name, err)
		}
	}
	return nil
}

// Result pairs a query's answer, or its failure, with the name and
// target it answers for.
type Result struct {
	QueryName string `json:"query_name"`
	TargetID  string `json:"target_id"`
	Value     any    `json:"value"`
	Error     string `json:"error,omitempty"`
}

// ExecuteMultiple runs several queries against one conversation.
// Results are returned for all queries, including any that failed.
func (e *Executor) ExecuteMultiple(ctx context.Context, targetID string, queries map[string]any) []Result {
	results := make([]Result, 0, len(queries))
	for queryName, args := range queries {
		res := Result{QueryName: queryName, TargetID: targetID}
		if value, err := e.Execute(ctx, targetID, queryName, args); err != nil {
			res.Error = err.Error()
		} else {
			res.Value = value
		}
		results = append(results, res)
	}
	return results
}
