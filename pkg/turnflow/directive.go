package turnflow

import "fmt"

// Directive is a control-flow value returned as an error from a node.
// When the executor sees a Directive it applies the state the node returned,
// then transfers control to the directive's target instead of following the
// node's edges. It is not treated as a failure.
//
// Use the Goto and Halt constructors rather than building a Directive directly.
type Directive struct {
	// Target is the node to transfer control to, or END.
	Target string
}

// Error implements the error interface so directives can flow through the
// normal (S, error) node return. The executor recognizes them with errors.As.
func (d *Directive) Error() string {
	return fmt.Sprintf("goto node %s", d.Target)
}

// Goto returns a directive that transfers control to the named node,
// skipping the current node's outgoing edges.
//
// The target must be a node in the graph or END; an unknown target fails
// the run with a RouterError. The state returned alongside the directive
// is preserved.
//
// Example:
//
//	func validate(ctx turnflow.Context, s State) (State, error) {
//	    if s.Amount < minimum {
//	        s.Error = "amount below minimum"
//	        return s, turnflow.Goto("finalize")
//	    }
//	    return s, nil
//	}
func Goto(target string) error {
	return &Directive{Target: target}
}

// Halt returns a directive that ends the run immediately.
// Equivalent to Goto(END). The state returned alongside the directive
// becomes the final state.
func Halt() error {
	return &Directive{Target: END}
}
