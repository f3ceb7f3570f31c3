package errors

// ModelName identifies a model in an escalation chain.
type ModelName string

// EscalationChain is an ordered list of models, weakest first.
// When a weaker model keeps failing, the handler moves to the next one.
type EscalationChain struct {
	// Models is the escalation order, weakest first.
	Models []ModelName

	// MaxAttempts is the total number of failures tolerated across
	// the chain before giving up.
	MaxAttempts int
}

// DefaultEscalation escalates from the fast default model to the
// stronger recovery model.
var DefaultEscalation = EscalationChain{
	Models:      []ModelName{"gpt-4o-mini", "gpt-4o"},
	MaxAttempts: 3,
}

// escalationState tracks progress through an escalation chain.
type escalationState struct {
	models      []ModelName
	maxAttempts int
	index       int
	failures    int
}

// newEscalationState creates escalation state starting at the given model.
// A nil or empty chain degrades to a single-model chain with one attempt.
func newEscalationState(chain *EscalationChain, start ModelName) *escalationState {
	if chain == nil || len(chain.Models) == 0 {
		return &escalationState{
			models:      []ModelName{start},
			maxAttempts: 1,
		}
	}

	index := 0
	for i, m := range chain.Models {
		if m == start {
			index = i
			break
		}
	}

	return &escalationState{
		models:      chain.Models,
		maxAttempts: chain.MaxAttempts,
		index:       index,
	}
}

// CurrentModel returns the model that should handle the next attempt.
func (s *escalationState) CurrentModel() ModelName {
	return s.models[s.index]
}

// RecordFailure records a failed attempt and advances to the next model
// if one is available. It returns false when the chain is exhausted.
func (s *escalationState) RecordFailure() bool {
	s.failures++
	if s.failures >= s.maxAttempts {
		return false
	}
	if s.index+1 < len(s.models) {
		s.index++
	}
	return true
}

// Exhausted reports whether no further attempts are allowed.
func (s *escalationState) Exhausted() bool {
	return s.failures >= s.maxAttempts
}
