package turnflow

// END is the reserved edge target that terminates a run.
const END = "__end__"

// NodeFunc is the unit of work in a graph. It receives the execution
// context and the current state, and returns the state to carry forward.
//
// State moves by value: change the copy and return it rather than
// mutating through pointers, or parallel branches will race.
//
// Example:
//
//	func classify(ctx turnflow.Context, s Conversation) (Conversation, error) {
//	    s.Intent = detectIntent(s.LastMessage)
//	    return s, nil
//	}
type NodeFunc[S any] func(ctx Context, state S) (S, error)

// RouterFunc picks the next node for a conditional edge by inspecting
// the state. Return a node ID or turnflow.END; an empty string or an
// unknown ID fails the run with a RouterError.
//
// Example:
//
//	func afterApproval(ctx turnflow.Context, s Conversation) string {
//	    if s.Approved {
//	        return "book_trip"
//	    }
//	    return turnflow.END
//	}
type RouterFunc[S any] func(ctx Context, state S) string
