package expr

import (
	"strings"
)

// BinaryOp compares two resolved values.
type BinaryOp func(left, right any) bool

// Evaluator evaluates boolean expressions, optionally extended with
// caller-supplied operators.
type Evaluator struct {
	userOps map[string]BinaryOp
}

// Option adjusts how an Evaluator is built.
type Option func(*Evaluator)

// WithCustomOperator registers fn under name. Names that collide with a
// built-in operator never match, since built-ins are tried first.
func WithCustomOperator(name string, fn BinaryOp) Option {
	return func(e *Evaluator) {
		e.userOps[name] = fn
	}
}

// New builds an Evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{userOps: make(map[string]BinaryOp)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs expr against vars.
func (e *Evaluator) Evaluate(expr string, vars map[string]any) (bool, error) {
	return e.eval(expr, vars)
}

// Eval runs expr against vars with no custom operators.
func Eval(expr string, vars map[string]any) (bool, error) {
	return New().Evaluate(expr, vars)
}

// knownOps in match order. Two-character operators come before their
// one-character prefixes so ">=" is never read as ">".
var knownOps = []string{"==", "!=", ">=", "<=", ">", "<", " contains "}

// eval recursively evaluates an expression. Negation binds outermost,
// then and, then or, then a single comparison, then bare truthiness.
func (e *Evaluator) eval(expr string, vars map[string]any) (bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return false, nil
	}

	for _, neg := range []string{"not ", "!"} {
		rest, found := strings.CutPrefix(expr, neg)
		if !found {
			continue
		}
		v, err := e.eval(rest, vars)
		if err != nil {
			return false, err
		}
		return !v, nil
	}

	for _, conj := range []string{" and ", " or "} {
		lhs, rhs, found := strings.Cut(expr, conj)
		if !found {
			continue
		}
		lv, err := e.eval(lhs, vars)
		if err != nil {
			return false, err
		}
		rv, err := e.eval(rhs, vars)
		if err != nil {
			return false, err
		}
		if conj == " and " {
			return lv && rv, nil
		}
		return lv || rv, nil
	}

	for _, op := range knownOps {
		lhs, rhs, found := strings.Cut(expr, op)
		if !found {
			continue
		}
		return Compare(Resolve(lhs, vars), Resolve(rhs, vars), strings.TrimSpace(op))
	}

	for name, fn := range e.userOps {
		lhs, rhs, found := strings.Cut(expr, " "+name+" ")
		if !found {
			continue
		}
		return fn(Resolve(lhs, vars), Resolve(rhs, vars)), nil
	}

	return IsTruthy(Resolve(expr, vars)), nil
}
