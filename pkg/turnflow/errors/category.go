// Package errors classifies failures from LLM calls and tool invocations
// and decides what to do about them: retry with backoff, escalate to a
// stronger model, hand the problem to the user, or give up.
//
// The layers build on each other:
//
//   - Typed errors (HTTPError, JSONParseError, ...) describe what failed.
//   - Categorize maps any error to a handling category.
//   - WithRetryContext retries transient failures with backoff.
//   - Handler adds model escalation on top of retry.
package errors

import (
	"errors"
	"fmt"
)

// Category tells the caller how to treat a failure.
type Category int

const (
	// CategoryTransient failures clear up on their own. Retry.
	CategoryTransient Category = iota
	// CategoryPermanent failures will not improve with repetition. Give up.
	CategoryPermanent
	// CategoryEscalatable failures may be within reach of a stronger model.
	CategoryEscalatable
	// CategoryHumanRequired failures need the user to decide something.
	CategoryHumanRequired
)

var categoryNames = map[Category]string{
	CategoryTransient:     "transient",
	CategoryPermanent:     "permanent",
	CategoryEscalatable:   "escalatable",
	CategoryHumanRequired: "human_required",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "unknown"
}

// CategorizedError wraps an error with its category and how many
// attempts were already spent on it.
type CategorizedError struct {
	Err      error
	Category Category
	Retries  int
	Context  string
}

func (e *CategorizedError) Error() string {
	msg := fmt.Sprintf("%s (category: %s, attempts: %d)", e.Err, e.Category, e.Retries)
	if e.Context != "" {
		msg = e.Context + ": " + msg
	}
	return msg
}

func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// NewCategorized wraps err with an explicit category.
func NewCategorized(err error, category Category, context string) *CategorizedError {
	return &CategorizedError{Err: err, Category: category, Context: context}
}

// Transient marks err as retryable.
func Transient(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryTransient, context)
}

// Permanent marks err as not worth retrying.
func Permanent(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryPermanent, context)
}

// Escalatable marks err as a candidate for a stronger model.
func Escalatable(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryEscalatable, context)
}

// HumanRequired marks err as needing user input.
func HumanRequired(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryHumanRequired, context)
}

// Categorize maps err to a handling category. An explicit
// CategorizedError anywhere in the chain wins; otherwise the error type
// decides. Unrecognized errors are treated as permanent so unknown
// failures never loop.
func Categorize(err error) Category {
	if err == nil {
		return CategoryPermanent
	}

	var (
		tagged     *CategorizedError
		needsHuman *HumanInterventionError
		httpErr    *HTTPError
		parseErr   *JSONParseError
		valErr     *ValidationError
		timeoutErr *TimeoutError
	)

	switch {
	case errors.As(err, &tagged):
		return tagged.Category
	case errors.As(err, &needsHuman):
		return CategoryHumanRequired
	case errors.As(err, &httpErr):
		return categorizeHTTP(httpErr.StatusCode)
	case errors.As(err, &parseErr), errors.As(err, &valErr):
		// Bad output from the model, not a broken pipe. A stronger
		// model may produce output that parses.
		return CategoryEscalatable
	case errors.As(err, &timeoutErr):
		return CategoryTransient
	}
	return CategoryPermanent
}

// categorizeHTTP maps a status code to a category. Rate limits and 5xx
// are worth retrying, auth failures are not, and a 400 is often a
// prompt problem a stronger model can avoid.
func categorizeHTTP(status int) Category {
	switch {
	case status == 429 || status >= 500:
		return CategoryTransient
	case status == 400:
		return CategoryEscalatable
	default:
		return CategoryPermanent
	}
}

// IsRetryable reports whether err is worth another attempt as-is.
func IsRetryable(err error) bool {
	return Categorize(err) == CategoryTransient
}

// IsEscalatable reports whether a stronger model might succeed where
// this attempt failed.
func IsEscalatable(err error) bool {
	return Categorize(err) == CategoryEscalatable
}

// NeedsHuman reports whether err requires user input to resolve.
func NeedsHuman(err error) bool {
	return Categorize(err) == CategoryHumanRequired
}
