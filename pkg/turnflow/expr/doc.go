/*
Package expr evaluates small boolean expressions against a variable map.

It exists for rules that live in configuration rather than code, such as
the budget feasibility check applied to extracted trip constraints:

	vars := map[string]any{
		"budget":      5000,
		"min_budget":  10000,
		"destination": "Tokyo",
	}
	ok, _ := expr.Eval("budget >= min_budget", vars)            // false
	ok, _ = expr.Eval("destination != '' and budget > 0", vars) // true

# Syntax

An expression is a comparison, a logical combination of expressions, or a
single value checked for truthiness:

	<expr>       := <comparison>
	              | <expr> 'and' <expr>
	              | <expr> 'or' <expr>
	              | 'not' <expr> | '!' <expr>
	              | <value>
	<comparison> := <value> <op> <value>
	<op>         := '==' | '!=' | '<' | '>' | '<=' | '>=' | 'contains'
	<value>      := 'string' | "string" | number | true | false | null | identifier

Equality, inequality and contains compare the rendered text of both
sides. The ordering operators compare numerically. Identifiers resolve
through the variable map; an identifier with no entry is treated as a
bare string.

# Truthiness

A single value standing alone is truthy unless it is nil, false, an
empty string, or a zero number.

# Custom Operators

An Evaluator can carry extra binary operators. Built-ins are matched
first, so a custom operator cannot shadow them:

	e := expr.New(
		expr.WithCustomOperator("matches", func(left, right any) bool {
			matched, _ := regexp.MatchString(fmt.Sprintf("%v", right), fmt.Sprintf("%v", left))
			return matched
		}),
	)
	ok, _ := e.Evaluate("city matches '^[A-Z]{3}$'", vars)
*/
package expr
