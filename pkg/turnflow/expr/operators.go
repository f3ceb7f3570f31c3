package expr

import (
	"fmt"
	"strings"
)

// Compare applies op to left and right. Equality and contains work on the
// rendered text of both sides; the ordering operators compare numerically.
func Compare(left, right any, op string) (bool, error) {
	switch op {
	case "==":
		return text(left) == text(right), nil
	case "!=":
		return text(left) != text(right), nil
	case "<":
		return ToFloat64(left) < ToFloat64(right), nil
	case ">":
		return ToFloat64(left) > ToFloat64(right), nil
	case "<=":
		return ToFloat64(left) <= ToFloat64(right), nil
	case ">=":
		return ToFloat64(left) >= ToFloat64(right), nil
	case "contains":
		return strings.Contains(text(left), text(right)), nil
	}
	return false, fmt.Errorf("unknown operator: %s", op)
}

func text(v any) string {
	return fmt.Sprintf("%v", v)
}
