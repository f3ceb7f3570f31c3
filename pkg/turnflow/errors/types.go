package errors

import "fmt"

// HTTPError carries the status of a failed provider or LLM transport call.
type HTTPError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *HTTPError) Error() string {
	if e.Endpoint == "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("HTTP %d at %s: %s", e.StatusCode, e.Endpoint, e.Message)
}

// JSONParseError means model output could not be parsed as JSON. Input
// holds the offending text for diagnostics.
type JSONParseError struct {
	Input   string
	Message string
}

func (e *JSONParseError) Error() string {
	return fmt.Sprintf("JSON parse error: %s", e.Message)
}

// ValidationError means model output parsed but violated a schema or
// constraint check.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// TimeoutError means an operation ran out of time.
type TimeoutError struct {
	Operation string
	Duration  string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s: %s", e.Duration, e.Operation)
}

// HumanInterventionError means the user must answer Question before the
// operation can continue.
type HumanInterventionError struct {
	Question string
	Options  []string
	Original error
}

func (e *HumanInterventionError) Error() string {
	return fmt.Sprintf("human intervention required: %s", e.Question)
}

func (e *HumanInterventionError) Unwrap() error {
	return e.Original
}
