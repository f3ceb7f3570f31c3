package expr

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Resolve turns a token into a value: quoted strings become their contents,
// boolean and null literals their values, numbers int64 or float64, and
// anything else is looked up in vars or kept as a bare string.
func Resolve(s string, vars map[string]any) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if lit, ok := unquote(s); ok {
		return lit
	}

	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	case "null", "nil":
		return nil
	}

	// json.Number keeps int64 precision that a straight float parse loses.
	var parsed json.Number
	if json.Unmarshal([]byte(s), &parsed) == nil {
		if i, err := parsed.Int64(); err == nil {
			return i
		}
		if f, err := parsed.Float64(); err == nil {
			return f
		}
	}

	if val, ok := vars[s]; ok {
		return val
	}
	return s
}

// unquote strips matching single or double quotes. A lone quote character
// resolves to the empty string.
func unquote(s string) (string, bool) {
	q := s[0]
	if (q != '\'' && q != '"') || s[len(s)-1] != q {
		return "", false
	}
	if len(s) == 1 {
		return "", true
	}
	return s[1 : len(s)-1], true
}

// IsTruthy reports whether v counts as true. Nil, false, the empty
// string, and numeric zero are falsy; any other value is truthy.
func IsTruthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case int32:
		return val != 0
	case int64:
		return val != 0
	case float32:
		return val != 0
	case float64:
		return val != 0
	}
	return true
}

// ToFloat64 coerces v for numeric comparison. Values with no numeric
// reading come back as 0.
func ToFloat64(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case string:
		var f float64
		_, _ = fmt.Sscanf(val, "%f", &f)
		return f
	}
	return 0
}
