package turnflow

import (
	"encoding/json"
	"errors"
	"fmt"
)

// InterruptError indicates the run suspended at a node waiting for external
// input. The executor persists a suspended snapshot before returning it, so
// the run can be continued later with Resume.
//
// Callers detect suspension with errors.As or the AsInterrupt helper:
//
//	result, err := compiled.Run(ctx, state, opts...)
//	if intr, ok := turnflow.AsInterrupt(err); ok {
//	    // show intr.Payload to the user, then Resume with their answer
//	}
type InterruptError struct {
	// NodeID is the node that suspended.
	NodeID string
	// Payload is the serialized value the node passed to Await,
	// typically a prompt or question for the caller.
	Payload json.RawMessage
}

// Error implements the error interface.
func (e *InterruptError) Error() string {
	return fmt.Sprintf("run suspended at node %s awaiting input", e.NodeID)
}

// AsInterrupt reports whether err (or anything it wraps) is an InterruptError.
func AsInterrupt(err error) (*InterruptError, bool) {
	var intr *InterruptError
	if errors.As(err, &intr) {
		return intr, true
	}
	return nil, false
}

// resumeEnvelope carries the value delivered by Resume to the node that
// suspended. It is shared by pointer across derived contexts so the used
// flag survives per-node context enrichment. A run has a single writer,
// so no locking is needed.
type resumeEnvelope struct {
	nodeID string
	value  json.RawMessage
	used   bool
}

// Await requests a value from outside the run.
//
// On first execution it serializes payload and suspends the run by returning
// an InterruptError; the node should propagate that error unchanged. When the
// run is resumed, the interrupted node is re-executed from the top and the
// same Await call returns the value passed to Resume, decoded into T.
//
// Any code before Await in the node body runs again on resume, so keep the
// pre-Await portion idempotent or guard it with state fields.
//
// A node may call Await more than once across loop iterations; each call
// after the resume value is consumed suspends again. Await must not be used
// inside parallel branches.
//
// Example:
//
//	decision, err := turnflow.Await[Approval](ctx, prompt)
//	if err != nil {
//	    return s, err
//	}
func Await[T any](ctx Context, payload any) (T, error) {
	var zero T

	if tc, ok := ctx.(*turnContext); ok {
		env := tc.resume
		if env != nil && !env.used && env.nodeID == tc.nodeID {
			env.used = true
			var v T
			if err := json.Unmarshal(env.value, &v); err != nil {
				return zero, fmt.Errorf("%w: resume value: %v", ErrDeserializeState, err)
			}
			return v, nil
		}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return zero, fmt.Errorf("%w: interrupt payload: %v", ErrSerializeState, err)
	}

	return zero, &InterruptError{
		NodeID:  ctx.NodeID(),
		Payload: raw,
	}
}
